package pairing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvald/ytmcompanion/internal/tokens"
)

type fakeSettings struct {
	enabled atomic.Bool
	setErr  error
}

func (f *fakeSettings) CompanionAuthorizationEnabled() bool { return f.enabled.Load() }

func (f *fakeSettings) SetCompanionAuthorizationEnabled(v bool) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.enabled.Store(v)
	return nil
}

type fakeIssuer struct {
	mu     sync.Mutex
	issued []string
	err    error
}

func (f *fakeIssuer) Issue(appID string) (tokens.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tokens.Token{}, f.err
	}
	f.issued = append(f.issued, appID)
	return tokens.Token{ID: "t1", Value: "tok-" + appID, AppID: appID}, nil
}

func (f *fakeIssuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.issued)
}

// fakeSurface is controlled by the test through decide/closeWindow.
type fakeSurface struct {
	prompt    Prompt
	ctx       context.Context
	decisions chan Decision
	closed    atomic.Int32
	closeOnce sync.Once
}

func (s *fakeSurface) Decisions() <-chan Decision { return s.decisions }

func (s *fakeSurface) Close() error {
	s.closed.Add(1)
	return nil
}

func (s *fakeSurface) decide(d Decision) { s.decisions <- d }

func (s *fakeSurface) closeWindow() { s.closeOnce.Do(func() { close(s.decisions) }) }

type fakeOpener struct {
	mu      sync.Mutex
	opened  []*fakeSurface
	onOpen  func(*fakeSurface)
	openErr error
}

func (o *fakeOpener) Open(ctx context.Context, p Prompt) (Surface, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	s := &fakeSurface{prompt: p, ctx: ctx, decisions: make(chan Decision, 1)}
	o.mu.Lock()
	o.opened = append(o.opened, s)
	cb := o.onOpen
	o.mu.Unlock()
	if cb != nil {
		go cb(s)
	}
	return s, nil
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func (o *fakeOpener) last() *fakeSurface {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[len(o.opened)-1]
}

type harness struct {
	c        *Coordinator
	settings *fakeSettings
	issuer   *fakeIssuer
	opener   *fakeOpener
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{settings: &fakeSettings{}, issuer: &fakeIssuer{}, opener: &fakeOpener{}}
	h.settings.enabled.Store(true)
	h.c = NewCoordinator(cfg, h.settings, h.issuer, h.opener)
	h.c.newCode = func() string { return "123456" }
	return h
}

func (h *harness) approveOnOpen() {
	h.opener.onOpen = func(s *fakeSurface) { s.decide(Approve) }
}

func TestRequestCode(t *testing.T) {
	h := newHarness(t, Config{})
	code, err := h.c.RequestCode(context.Background(), "remote")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	_, err = h.c.RequestCode(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingApp)
}

func TestConfirm_ApproveIssuesTokenAndDisablesPairing(t *testing.T) {
	h := newHarness(t, Config{})
	h.approveOnOpen()

	code, err := h.c.RequestCode(context.Background(), "remote")
	require.NoError(t, err)

	tok, err := h.c.Confirm(context.Background(), "remote", code)
	require.NoError(t, err)
	assert.Equal(t, "tok-remote", tok.Value)
	assert.False(t, h.settings.CompanionAuthorizationEnabled())

	s := h.opener.last()
	assert.Equal(t, "remote", s.prompt.AppID)
	assert.Equal(t, "123456", s.prompt.Code)
	assert.Equal(t, int32(1), s.closed.Load())
	assert.Error(t, s.ctx.Err(), "session context must be cancelled")
	assert.Zero(t, h.c.ActiveSessions())
}

func TestConfirm_CodeConsumedOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.approveOnOpen()

	code, _ := h.c.RequestCode(context.Background(), "remote")
	_, err := h.c.Confirm(context.Background(), "remote", code)
	require.NoError(t, err)

	h.settings.enabled.Store(true)
	_, err = h.c.Confirm(context.Background(), "remote", code)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, 1, h.issuer.count())
}

func TestConfirm_DisabledHasNoSideEffects(t *testing.T) {
	h := newHarness(t, Config{})
	code, _ := h.c.RequestCode(context.Background(), "remote")
	h.settings.enabled.Store(false)

	_, err := h.c.Confirm(context.Background(), "remote", code)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Zero(t, h.opener.count())
	assert.Equal(t, 1, h.c.codes.len(), "code must not be consumed")

	h.settings.enabled.Store(true)
	h.approveOnOpen()
	_, err = h.c.Confirm(context.Background(), "remote", code)
	assert.NoError(t, err)
}

func TestConfirm_InvalidCodes(t *testing.T) {
	h := newHarness(t, Config{CodeTTL: time.Minute})
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var offset atomic.Int64
	h.c.now = func() time.Time { return base.Add(time.Duration(offset.Load())) }

	code, _ := h.c.RequestCode(context.Background(), "remote")

	_, err := h.c.Confirm(context.Background(), "other-app", code)
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = h.c.Confirm(context.Background(), "remote", "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	offset.Store(int64(time.Minute))
	_, err = h.c.Confirm(context.Background(), "remote", code)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Zero(t, h.opener.count())
}

func TestConfirm_DenyClassOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		act     func(s *fakeSurface, cancelClient context.CancelFunc)
		outcome Outcome
	}{
		{"explicit deny", func(s *fakeSurface, _ context.CancelFunc) { s.decide(Deny) }, OutcomeDenied},
		{"window closed", func(s *fakeSurface, _ context.CancelFunc) { s.closeWindow() }, OutcomeCancelled},
		{"client gone", func(_ *fakeSurface, cancel context.CancelFunc) { cancel() }, OutcomeConnectionLost},
		{"no decision", func(*fakeSurface, context.CancelFunc) {}, OutcomeTimedOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{ConfirmTimeout: 100 * time.Millisecond})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			h.opener.onOpen = func(s *fakeSurface) { tt.act(s, cancel) }

			code, _ := h.c.RequestCode(context.Background(), "remote")
			_, err := h.c.Confirm(ctx, "remote", code)

			require.ErrorIs(t, err, ErrDenied)
			assert.True(t, strings.Contains(err.Error(), string(tt.outcome)), "got %v", err)
			assert.Zero(t, h.issuer.count())
			assert.True(t, h.settings.CompanionAuthorizationEnabled())

			s := h.opener.last()
			assert.Equal(t, int32(1), s.closed.Load(), "surface closed exactly once")
			assert.Error(t, s.ctx.Err())
			assert.Zero(t, h.c.ActiveSessions())
		})
	}
}

func TestConfirm_LateSignalsAfterResolutionAreIgnored(t *testing.T) {
	h := newHarness(t, Config{ConfirmTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	h.opener.onOpen = func(s *fakeSurface) { s.decide(Deny) }

	code, _ := h.c.RequestCode(context.Background(), "remote")
	_, err := h.c.Confirm(ctx, "remote", code)
	require.ErrorIs(t, err, ErrDenied)

	// Connection loss and a late approve after resolution change nothing.
	cancel()
	h.opener.last().decisions <- Approve
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.issuer.count())
}

func TestConfirm_DefaultTimeoutIsThirtySeconds(t *testing.T) {
	assert.Equal(t, 30*time.Second, NewCoordinator(Config{}, &fakeSettings{}, &fakeIssuer{}, nil).cfg.ConfirmTimeout)
}

func TestConfirm_SurfaceOpenFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.opener.openErr = errors.New("no display")

	code, _ := h.c.RequestCode(context.Background(), "remote")
	_, err := h.c.Confirm(context.Background(), "remote", code)
	assert.ErrorIs(t, err, ErrDenied)
	assert.Zero(t, h.c.ActiveSessions())
}

func TestConfirm_TokenFailureKeepsPairingEnabled(t *testing.T) {
	h := newHarness(t, Config{})
	h.approveOnOpen()
	h.issuer.err = errors.New("disk full")

	code, _ := h.c.RequestCode(context.Background(), "remote")
	_, err := h.c.Confirm(context.Background(), "remote", code)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDenied)
	assert.True(t, h.settings.CompanionAuthorizationEnabled())
}

func TestConfirm_AutoDenyOpener(t *testing.T) {
	settings := &fakeSettings{}
	settings.enabled.Store(true)
	c := NewCoordinator(Config{}, settings, &fakeIssuer{}, AutoDenyOpener{})

	code, err := c.RequestCode(context.Background(), "remote")
	require.NoError(t, err)
	_, err = c.Confirm(context.Background(), "remote", code)
	assert.ErrorIs(t, err, ErrDenied)
}

func twoCodes(h *harness) {
	var n atomic.Int32
	h.c.newCode = func() string {
		if n.Add(1) == 1 {
			return "111111"
		}
		return "222222"
	}
}

func TestConcurrentSessionsDoNotInterfere(t *testing.T) {
	h := newHarness(t, Config{ConfirmTimeout: 2 * time.Second, IssueWait: 2 * time.Second})
	twoCodes(h)
	opened := make(chan *fakeSurface, 2)
	h.opener.onOpen = func(s *fakeSurface) { opened <- s }

	c1, _ := h.c.RequestCode(context.Background(), "first")
	c2, _ := h.c.RequestCode(context.Background(), "second")

	firstDone := make(chan error, 1)
	go func() {
		_, err := h.c.Confirm(context.Background(), "first", c1)
		firstDone <- err
	}()
	first := <-opened
	require.Equal(t, "first", first.prompt.AppID)

	secondDone := make(chan error, 1)
	go func() {
		_, err := h.c.Confirm(context.Background(), "second", c2)
		secondDone <- err
	}()

	first.decide(Deny)
	assert.ErrorIs(t, <-firstDone, ErrDenied)

	second := <-opened
	assert.Equal(t, "second", second.prompt.AppID)
	second.decide(Approve)
	assert.NoError(t, <-secondDone)

	assert.Equal(t, 2, h.opener.count())
	assert.Equal(t, 1, h.issuer.count())
	assert.Zero(t, h.c.ActiveSessions())
}

func TestConfirm_QueuedAfterApprovalIsDisabled(t *testing.T) {
	h := newHarness(t, Config{ConfirmTimeout: 2 * time.Second, IssueWait: 2 * time.Second})
	twoCodes(h)
	opened := make(chan *fakeSurface, 2)
	h.opener.onOpen = func(s *fakeSurface) { opened <- s }

	c1, _ := h.c.RequestCode(context.Background(), "a")
	c2, _ := h.c.RequestCode(context.Background(), "b")

	firstDone := make(chan error, 1)
	go func() {
		_, err := h.c.Confirm(context.Background(), "a", c1)
		firstDone <- err
	}()
	first := <-opened

	secondDone := make(chan error, 1)
	go func() {
		_, err := h.c.Confirm(context.Background(), "b", c2)
		secondDone <- err
	}()
	// Let b get past the flag check and queue on the issuer slot.
	time.Sleep(50 * time.Millisecond)

	first.decide(Approve)
	require.NoError(t, <-firstDone)

	assert.ErrorIs(t, <-secondDone, ErrDisabled)
	assert.False(t, h.settings.CompanionAuthorizationEnabled())
	assert.Equal(t, 1, h.opener.count())
	assert.Equal(t, 1, h.issuer.count())
}

func TestRequestCode_TimesOutWhileWindowOpen(t *testing.T) {
	h := newHarness(t, Config{ConfirmTimeout: time.Second, IssueWait: 50 * time.Millisecond})
	opened := make(chan *fakeSurface, 1)
	h.opener.onOpen = func(s *fakeSurface) { opened <- s }

	code, _ := h.c.RequestCode(context.Background(), "remote")
	done := make(chan error, 1)
	go func() {
		_, err := h.c.Confirm(context.Background(), "remote", code)
		done <- err
	}()

	s := <-opened
	_, err := h.c.RequestCode(context.Background(), "another")
	assert.ErrorIs(t, err, ErrCodeTimeout)

	s.decide(Deny)
	require.ErrorIs(t, <-done, ErrDenied)

	_, err = h.c.RequestCode(context.Background(), "another")
	assert.NoError(t, err)
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		c := GenerateCode()
		require.Len(t, c, 6)
		for _, r := range c {
			require.True(t, r >= '0' && r <= '9')
		}
		seen[c] = true
	}
	assert.Greater(t, len(seen), 40)
}
