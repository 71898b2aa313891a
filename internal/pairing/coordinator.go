// Package pairing runs the human-confirmed handshake that exchanges a
// temporary code for a long-lived companion token.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/rvald/ytmcompanion/internal/metrics"
	"github.com/rvald/ytmcompanion/internal/tokens"
)

var (
	// ErrDisabled means pairing is switched off in settings.
	ErrDisabled = errors.New("pairing disabled")
	// ErrInvalidCode means no live code matched (app, code).
	ErrInvalidCode = errors.New("invalid or expired pairing code")
	// ErrDenied covers every non-approval outcome of a session.
	ErrDenied = errors.New("pairing denied")
	// ErrCodeTimeout means no code could be issued within the wait.
	ErrCodeTimeout = errors.New("pairing code request timed out")
	// ErrMissingApp means the request did not name an app.
	ErrMissingApp = errors.New("app id is required")
)

// Settings is the pairing feature flag.
type Settings interface {
	CompanionAuthorizationEnabled() bool
	SetCompanionAuthorizationEnabled(bool) error
}

// TokenIssuer creates the token handed out on approval.
type TokenIssuer interface {
	Issue(appID string) (tokens.Token, error)
}

// Config bounds the handshake.
type Config struct {
	CodeTTL        time.Duration // lifetime of a temporary code
	ConfirmTimeout time.Duration // how long the user has to decide
	IssueWait      time.Duration // how long RequestCode waits for the issuer
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		CodeTTL:        30 * time.Second,
		ConfirmTimeout: 30 * time.Second,
		IssueWait:      10 * time.Second,
	}
}

// Coordinator issues codes and runs confirmation sessions. The issuer slot
// is held while a code is generated and for the whole of a confirmation,
// so at most one confirmation window is open at a time.
type Coordinator struct {
	cfg      Config
	settings Settings
	tokens   TokenIssuer
	opener   Opener

	codes  *codeBook
	issuer *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*session

	now     func() time.Time
	newCode func() string
}

// NewCoordinator wires a coordinator. Zero config fields take defaults.
func NewCoordinator(cfg Config, settings Settings, issuer TokenIssuer, opener Opener) *Coordinator {
	def := DefaultConfig()
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = def.CodeTTL
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.IssueWait <= 0 {
		cfg.IssueWait = def.IssueWait
	}
	if opener == nil {
		opener = AutoDenyOpener{}
	}
	return &Coordinator{
		cfg:      cfg,
		settings: settings,
		tokens:   issuer,
		opener:   opener,
		codes:    newCodeBook(),
		issuer:   semaphore.NewWeighted(1),
		sessions: make(map[string]*session),
		now:      time.Now,
		newCode:  GenerateCode,
	}
}

// Enabled reports the pairing feature flag.
func (c *Coordinator) Enabled() bool {
	return c.settings.CompanionAuthorizationEnabled()
}

// RequestCode issues a temporary code bound to appID. It returns
// ErrCodeTimeout if the issuer stays busy for longer than IssueWait.
func (c *Coordinator) RequestCode(ctx context.Context, appID string) (string, error) {
	if appID == "" {
		return "", ErrMissingApp
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.IssueWait)
	defer cancel()
	if err := c.issuer.Acquire(waitCtx, 1); err != nil {
		slog.Warn("pairing.code_timeout", "app", appID)
		return "", ErrCodeTimeout
	}
	defer c.issuer.Release(1)

	now := c.now()
	c.codes.sweep(now)
	code := c.newCode()
	c.codes.put(appID, code, now.Add(c.cfg.CodeTTL))

	slog.Info("pairing.code_issued", "app", appID, "code", code, "ttl", c.cfg.CodeTTL)
	return code, nil
}

// Confirm consumes the code for appID and asks the user to approve. ctx is
// the requesting client's connection: its cancellation resolves the
// session as connection lost.
func (c *Coordinator) Confirm(ctx context.Context, appID, code string) (tokens.Token, error) {
	if !c.settings.CompanionAuthorizationEnabled() {
		return tokens.Token{}, ErrDisabled
	}
	if !c.codes.take(appID, code, c.now()) {
		return tokens.Token{}, ErrInvalidCode
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.IssueWait)
	err := c.issuer.Acquire(waitCtx, 1)
	cancel()
	if err != nil {
		slog.Warn("pairing.busy", "app", appID)
		return tokens.Token{}, fmt.Errorf("%w: another pairing is in progress", ErrDenied)
	}
	defer c.issuer.Release(1)

	// An approval that finished while this call waited has switched
	// pairing off again.
	if !c.settings.CompanionAuthorizationEnabled() {
		return tokens.Token{}, ErrDisabled
	}

	outcome := c.runSession(ctx, appID, code)
	metrics.IncPairingOutcome(string(outcome))

	if outcome != OutcomeApproved {
		return tokens.Token{}, fmt.Errorf("%w (%s)", ErrDenied, outcome)
	}

	tok, err := c.tokens.Issue(appID)
	if err != nil {
		return tokens.Token{}, fmt.Errorf("issue token: %w", err)
	}
	if err := c.settings.SetCompanionAuthorizationEnabled(false); err != nil {
		slog.Error("pairing.disable_failed", "error", err)
	}
	return tok, nil
}

// runSession opens a confirmation surface and waits for the first of:
// a decision, the window closing, the client going away, or the deadline.
// Every listener is torn down before it returns.
func (c *Coordinator) runSession(ctx context.Context, appID, code string) Outcome {
	now := c.now()
	s := newSession(uuid.NewString(), appID, code, now)

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.sessions, s.id)
		c.mu.Unlock()
	}()

	sessCtx, cancelSession := context.WithCancel(context.Background())
	defer cancelSession()

	surface, err := c.opener.Open(sessCtx, Prompt{
		SessionID: s.id,
		AppID:     appID,
		Code:      code,
		Deadline:  now.Add(c.cfg.ConfirmTimeout),
	})
	if err != nil {
		slog.Error("pairing.surface_failed", "session", s.id, "error", err)
		return OutcomeCancelled
	}
	slog.Info("pairing.session_started", "session", s.id, "app", appID)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case d, ok := <-surface.Decisions():
			switch {
			case !ok:
				s.resolve(OutcomeCancelled)
			case d == Approve:
				s.resolve(OutcomeApproved)
			default:
				s.resolve(OutcomeDenied)
			}
		case <-sessCtx.Done():
		}
	}()

	stopConnWatch := context.AfterFunc(ctx, func() { s.resolve(OutcomeConnectionLost) })
	timer := time.AfterFunc(c.cfg.ConfirmTimeout, func() { s.resolve(OutcomeTimedOut) })

	outcome := <-s.result

	timer.Stop()
	stopConnWatch()
	cancelSession()
	wg.Wait()
	if err := surface.Close(); err != nil {
		slog.Warn("pairing.surface_close_failed", "session", s.id, "error", err)
	}

	slog.Info("pairing.resolved", "session", s.id, "app", appID, "outcome", outcome,
		"elapsed", c.now().Sub(s.startedAt).Round(time.Millisecond))
	return outcome
}

// ActiveSessions returns the number of sessions awaiting a decision.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
