package pairing

import (
	"context"
	"time"
)

// Decision is an explicit answer given on a confirmation surface.
type Decision int

const (
	Deny Decision = iota
	Approve
)

func (d Decision) String() string {
	if d == Approve {
		return "approve"
	}
	return "deny"
}

// Prompt describes one pairing request shown to the user.
type Prompt struct {
	SessionID string
	AppID     string
	Code      string
	Deadline  time.Time
}

// Surface is an open confirmation window bound to one session.
type Surface interface {
	// Decisions yields at most one decision. A closed channel means the
	// window was closed without a decision.
	Decisions() <-chan Decision
	// Close tears the window down. It is always called once the session
	// resolves, whatever the outcome.
	Close() error
}

// Opener creates a fresh Surface per session. ctx is cancelled when the
// session resolves.
type Opener interface {
	Open(ctx context.Context, p Prompt) (Surface, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, p Prompt) (Surface, error)

func (f OpenerFunc) Open(ctx context.Context, p Prompt) (Surface, error) { return f(ctx, p) }

// AutoDenyOpener is the headless default: every window closes at once.
type AutoDenyOpener struct{}

func (AutoDenyOpener) Open(context.Context, Prompt) (Surface, error) {
	ch := make(chan Decision)
	close(ch)
	return closedSurface{ch: ch}, nil
}

type closedSurface struct{ ch chan Decision }

func (s closedSurface) Decisions() <-chan Decision { return s.ch }
func (closedSurface) Close() error                 { return nil }
