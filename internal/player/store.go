package player

import (
	"sort"
	"sync"
)

// MemoryStore is the authoritative state store. The host bridge is the only
// writer; everything else reads snapshots or subscribes.
type MemoryStore struct {
	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// NewMemoryStore returns a store holding the zero state with an unknown
// track state.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: State{TrackState: TrackUnknown},
		subs:  make(map[int]func(State)),
	}
}

// Snapshot returns the current state.
func (m *MemoryStore) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Set replaces the state and notifies subscribers in registration order.
// Subscribers run on the caller's goroutine; they must not block.
func (m *MemoryStore) Set(s State) {
	m.mu.Lock()
	m.state = s
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	fns := make([]func(State), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Subscribe registers fn for every Set and returns its unsubscribe func.
func (m *MemoryStore) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}
