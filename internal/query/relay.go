// Package query relays asynchronous data requests to the media surface and
// correlates the answers by id.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rvald/ytmcompanion/internal/player"
)

// Query kinds understood by the host.
const (
	KindPlaylists = "playlists"
)

// DefaultTimeout bounds how long a query waits for the host.
const DefaultTimeout = 5 * time.Second

var (
	// ErrUnavailable means no media surface was attached, or it went away
	// before answering.
	ErrUnavailable = errors.New("media surface unavailable")
	// ErrTimeout means the surface did not answer in time.
	ErrTimeout = errors.New("media surface result timeout")
)

// Result is the host's answer to one query.
type Result struct {
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Sender is the media surface as seen by the relay.
type Sender interface {
	SendQuery(id, kind string) error
	SessionID() string
}

// Accessor returns the current media surface, or false when none is
// attached. It is called on every query.
type Accessor func() (Sender, bool)

// pendingQuery tracks a single in-flight query.
type pendingQuery struct {
	result    chan Result
	cancel    chan struct{}
	sessionID string
}

// Relay is the correlation table: id → pending completion. Whoever removes
// an entry from the table completes it; nobody else touches it.
type Relay struct {
	surface Accessor
	timeout time.Duration
	pending map[string]*pendingQuery
	mu      sync.Mutex
}

// NewRelay creates a relay reading the surface through accessor.
// timeout <= 0 uses DefaultTimeout.
func NewRelay(accessor Accessor, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Relay{
		surface: accessor,
		timeout: timeout,
		pending: make(map[string]*pendingQuery),
	}
}

// Do sends a query of kind to the surface and waits for its payload.
func (r *Relay) Do(ctx context.Context, kind string) (json.RawMessage, error) {
	sender, ok := r.surface()
	if !ok {
		return nil, ErrUnavailable
	}

	id := uuid.NewString()
	pq := &pendingQuery{
		result:    make(chan Result, 1),
		cancel:    make(chan struct{}),
		sessionID: sender.SessionID(),
	}

	r.mu.Lock()
	r.pending[id] = pq
	r.mu.Unlock()

	// The deadline covers the send too; a host that stops reading must not
	// hold the caller past the timeout.
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	sent := make(chan error, 1)
	go func() { sent <- sender.SendQuery(id, kind) }()

	for {
		select {
		case err := <-sent:
			if err == nil {
				sent = nil
				continue
			}
			if r.take(id) {
				return nil, fmt.Errorf("%w: send: %v", ErrUnavailable, err)
			}
		case res := <-pq.result:
			return payload(res)
		case <-pq.cancel:
			return nil, fmt.Errorf("%w: surface disconnected", ErrUnavailable)
		case <-timer.C:
			if r.take(id) {
				return nil, ErrTimeout
			}
		case <-ctx.Done():
			if r.take(id) {
				return nil, ctx.Err()
			}
		}
		break
	}

	// Lost the race: a resolver or a cancel already owns the entry and is
	// completing it now.
	select {
	case res := <-pq.result:
		return payload(res)
	case <-pq.cancel:
		return nil, fmt.Errorf("%w: surface disconnected", ErrUnavailable)
	}
}

// Playlists lists the library playlists through the surface.
func (r *Relay) Playlists(ctx context.Context) ([]player.Playlist, error) {
	raw, err := r.Do(ctx, KindPlaylists)
	if err != nil {
		return nil, err
	}

	out := []player.Playlist{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode playlists: %w", err)
		}
	}
	return out, nil
}

// Resolve delivers a host answer to the waiting query.
// Returns false if no matching query is pending (late or duplicate).
func (r *Relay) Resolve(res Result) bool {
	r.mu.Lock()
	pq, ok := r.pending[res.ID]
	if ok {
		delete(r.pending, res.ID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	pq.result <- res
	return true
}

// CancelSession fails every query sent to the given surface session.
// Called when the host disconnects.
func (r *Relay) CancelSession(sessionID string) int {
	r.mu.Lock()
	var toCancel []*pendingQuery
	for id, pq := range r.pending {
		if pq.sessionID == sessionID {
			toCancel = append(toCancel, pq)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, pq := range toCancel {
		close(pq.cancel)
	}
	return len(toCancel)
}

// Pending returns the number of registered queries.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// take removes id from the table and reports whether the caller now owns it.
func (r *Relay) take(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; !ok {
		return false
	}
	delete(r.pending, id)
	return true
}

func payload(res Result) (json.RawMessage, error) {
	if !res.OK {
		msg := res.Error
		if msg == "" {
			msg = "query failed"
		}
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	return res.Payload, nil
}
