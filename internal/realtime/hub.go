// Package realtime is the authenticated publish/subscribe channel that pushes
// player state and playlist changes to companions.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rvald/ytmcompanion/internal/metrics"
	"github.com/rvald/ytmcompanion/internal/player"
	"github.com/rvald/ytmcompanion/internal/protocol"
)

const (
	eventBuffer = 256
	sendBuffer  = 64
)

type event struct {
	name    string
	payload any
}

// Subscriber is one admitted realtime connection.
type Subscriber struct {
	ID    string
	AppID string

	send      chan []byte
	closeOnce sync.Once
}

// Messages returns the frames queued for this subscriber. The channel is
// closed when the subscriber is removed.
func (s *Subscriber) Messages() <-chan []byte { return s.send }

// Hub fans events out to subscribers. Events flow through one queue consumed
// by Run, so every subscriber sees them in publish order.
type Hub struct {
	events chan event
	done   chan struct{}
	once   sync.Once

	mu   sync.RWMutex
	subs map[string]*Subscriber
	seq  uint64
}

// NewHub creates a hub. Call Run to start delivery.
func NewHub() *Hub {
	return &Hub{
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
		subs:   make(map[string]*Subscriber),
	}
}

// Publish queues an event for every current subscriber. Subscribers that
// join later never see it. After Run returns, events are discarded.
func (h *Hub) Publish(name string, payload any) {
	select {
	case h.events <- event{name: name, payload: payload}:
	case <-h.done:
	}
}

// WatchState publishes a state-update with the projected view on every
// change of src. It returns the unsubscribe func.
func (h *Hub) WatchState(src interface {
	Subscribe(func(player.State)) func()
}) func() {
	return src.Subscribe(func(s player.State) {
		h.Publish(protocol.EventStateUpdate, player.Project(s))
	})
}

// Run delivers queued events until ctx is done, then removes every
// subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev event) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	data, err := protocol.MarshalEventSeq(ev.name, ev.payload, &seq)
	if err != nil {
		slog.Error("realtime.marshal_failed", "event", ev.name, "error", err)
		return
	}
	metrics.IncBroadcast(ev.name)

	// Sends happen under the read lock so Remove cannot close a channel
	// mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.send <- data:
		default:
			metrics.SubscriberDrops.Inc()
			slog.Debug("realtime.dropped", "subscriber", s.ID, "event", ev.name)
		}
	}
}

// Add admits a subscriber. Callers must have validated its token.
func (h *Hub) Add(appID string) *Subscriber {
	s := &Subscriber{
		ID:    uuid.NewString(),
		AppID: appID,
		send:  make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	slog.Info("realtime.subscriber_added", "subscriber", s.ID, "app", appID)
	return s
}

// Remove drops a subscriber and closes its message channel. Safe to call
// more than once.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s.ID]
	if ok {
		delete(h.subs, s.ID)
		s.closeOnce.Do(func() { close(s.send) })
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	metrics.Subscribers.Dec()
	slog.Info("realtime.subscriber_removed", "subscriber", s.ID, "app", s.AppID)
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) stop() {
	h.once.Do(func() { close(h.done) })

	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		h.Remove(s)
	}
}
