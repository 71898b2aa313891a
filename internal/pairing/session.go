package pairing

import (
	"sync"
	"time"
)

// Outcome is the terminal state of a pairing session.
type Outcome string

const (
	OutcomeApproved       Outcome = "approved"
	OutcomeDenied         Outcome = "denied"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeCancelled      Outcome = "cancelled" // window closed without a decision
	OutcomeConnectionLost Outcome = "connection_lost"
)

// session is the handle for one confirmation interaction. Every listener
// for the session resolves through this handle, never through shared state.
type session struct {
	id        string
	appID     string
	code      string
	startedAt time.Time

	result chan Outcome
	once   sync.Once
}

func newSession(id, appID, code string, now time.Time) *session {
	return &session{
		id:        id,
		appID:     appID,
		code:      code,
		startedAt: now,
		result:    make(chan Outcome, 1),
	}
}

// resolve records the first outcome; later calls are ignored.
func (s *session) resolve(o Outcome) bool {
	won := false
	s.once.Do(func() {
		s.result <- o
		won = true
	})
	return won
}
