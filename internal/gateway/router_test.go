package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvald/ytmcompanion/internal/command"
	"github.com/rvald/ytmcompanion/internal/pairing"
	"github.com/rvald/ytmcompanion/internal/player"
	"github.com/rvald/ytmcompanion/internal/protocol"
	"github.com/rvald/ytmcompanion/internal/query"
	"github.com/rvald/ytmcompanion/internal/ratelimit"
	"github.com/rvald/ytmcompanion/internal/realtime"
	"github.com/rvald/ytmcompanion/internal/tokens"
)

// --- fakes ---

type fakeTokens map[string]string

func (f fakeTokens) Validate(value string) (string, bool) {
	app, ok := f[value]
	return app, ok
}

type flag struct{ enabled atomic.Bool }

func (f *flag) CompanionAuthorizationEnabled() bool           { return f.enabled.Load() }
func (f *flag) SetCompanionAuthorizationEnabled(v bool) error { f.enabled.Store(v); return nil }

// answer is a confirmation surface that decides immediately.
type answer struct{ ch chan pairing.Decision }

func (a answer) Decisions() <-chan pairing.Decision { return a.ch }
func (answer) Close() error                         { return nil }

func answering(d pairing.Decision) pairing.Opener {
	return pairing.OpenerFunc(func(context.Context, pairing.Prompt) (pairing.Surface, error) {
		ch := make(chan pairing.Decision, 1)
		ch <- d
		return answer{ch: ch}, nil
	})
}

type sentCommand struct {
	name  string
	value any
}

type fakeSurface struct {
	mu   sync.Mutex
	sent []sentCommand
}

func (f *fakeSurface) SendCommand(name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCommand{name, value})
	return nil
}

func (f *fakeSurface) calls() []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCommand(nil), f.sent...)
}

// --- harness ---

type env struct {
	handler  http.Handler
	tokens   *tokens.SQLiteStore
	settings *flag
	store    *player.MemoryStore
	surface  *fakeSurface
	attached atomic.Bool
	relay    *query.Relay
	hub      *realtime.Hub
}

const validToken = "tok-remote"

func newEnv(t *testing.T, opener pairing.Opener, tweak func(*RouterConfig)) *env {
	t.Helper()

	tokStore, err := tokens.OpenSQLite(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { tokStore.Close() })

	e := &env{
		tokens:   tokStore,
		settings: &flag{},
		store:    player.NewMemoryStore(),
		surface:  &fakeSurface{},
		hub:      realtime.NewHub(),
	}
	e.settings.enabled.Store(true)
	e.attached.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	e.relay = query.NewRelay(func() (query.Sender, bool) { return nil, false }, time.Second)
	dispatcher := command.NewDispatcher(func() (command.Target, bool) {
		if !e.attached.Load() {
			return nil, false
		}
		return e.surface, true
	})

	cfg := RouterConfig{
		Tokens:    validatorChain{fakeTokens{validToken: "remote", "tok-other": "other"}, tokStore},
		Pairing:   pairing.NewCoordinator(pairing.Config{}, e.settings, tokStore, opener),
		State:     e.store,
		Playlists: e.relay,
		Commands:  dispatcher,
		Realtime:  e.hub,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	e.handler = NewRouter(cfg)
	return e
}

// validatorChain accepts a token known to any of its validators.
type validatorChain []TokenValidator

func (c validatorChain) Validate(value string) (string, bool) {
	for _, v := range c {
		if app, ok := v.Validate(value); ok {
			return app, true
		}
	}
	return "", false
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// --- pairing routes ---

func TestPairing_ApproveThenReuseCode(t *testing.T) {
	e := newEnv(t, answering(pairing.Approve), nil)

	rec := e.do(t, http.MethodPost, "/auth/requestcode", "", map[string]string{"appName": "x"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var codeResp struct{ Code string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &codeResp))
	require.Len(t, codeResp.Code, 6)

	rec = e.do(t, http.MethodPost, "/auth/request", "", map[string]string{"appName": "x", "code": codeResp.Code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokResp struct{ Token string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokResp))
	require.NotEmpty(t, tokResp.Token)

	app, ok := e.tokens.Validate(tokResp.Token)
	assert.True(t, ok)
	assert.Equal(t, "x", app)
	assert.False(t, e.settings.CompanionAuthorizationEnabled(), "approval disables pairing")

	// Re-enable so the second attempt reaches the code check.
	e.settings.enabled.Store(true)
	rec = e.do(t, http.MethodPost, "/auth/request", "", map[string]string{"appName": "x", "code": codeResp.Code})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeAuthorizationInvalid, decodeError(t, rec).Error)

	// The issued token opens the API.
	rec = e.do(t, http.MethodGet, "/state", tokResp.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPairing_Errors(t *testing.T) {
	tests := []struct {
		name     string
		opener   pairing.Opener
		disabled bool
		code     string
		status   int
		errCode  string
	}{
		{"denied", answering(pairing.Deny), false, "", http.StatusForbidden, CodeAuthorizationDenied},
		{"window closed", pairing.AutoDenyOpener{}, false, "", http.StatusForbidden, CodeAuthorizationDenied},
		{"disabled", answering(pairing.Approve), true, "", http.StatusForbidden, CodeAuthorizationDisabled},
		{"wrong code", answering(pairing.Approve), false, "999999x", http.StatusBadRequest, CodeAuthorizationInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.opener, nil)

			rec := e.do(t, http.MethodPost, "/auth/requestcode", "", map[string]string{"appName": "x"})
			require.Equal(t, http.StatusOK, rec.Code)
			var codeResp struct{ Code string }
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &codeResp))

			code := codeResp.Code
			if tt.code != "" {
				code = tt.code
			}
			e.settings.enabled.Store(!tt.disabled)

			rec = e.do(t, http.MethodPost, "/auth/request", "", map[string]string{"appName": "x", "code": code})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.errCode, decodeError(t, rec).Error)

			list, err := e.tokens.List()
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestPairing_BadBodies(t *testing.T) {
	e := newEnv(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/requestcode", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/auth/requestcode", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/auth/request", "", map[string]string{"appName": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeAuthorizationInvalid, decodeError(t, rec).Error)
}

func TestPairing_DisabledReportedBeforeMissingFields(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.settings.enabled.Store(false)

	for _, body := range []map[string]string{{}, {"appName": "x"}, {"code": "123456"}} {
		rec := e.do(t, http.MethodPost, "/auth/request", "", body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, CodeAuthorizationDisabled, decodeError(t, rec).Error)
	}
}

func TestPairing_AppIDTakesPrecedence(t *testing.T) {
	assert.Equal(t, "com.example.remote", AuthRequest{AppID: "com.example.remote", AppName: "Remote"}.app())
	assert.Equal(t, "Remote", AuthRequest{AppName: " Remote "}.app())
}

// --- token gate ---

func TestAuthGate(t *testing.T) {
	e := newEnv(t, nil, nil)

	for _, path := range []string{"/state", "/playlists"} {
		rec := e.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, CodeUnauthorized, decodeError(t, rec).Error)

		rec = e.do(t, http.MethodGet, path, "forged", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := e.do(t, http.MethodPost, "/command", "", CommandRequest{Command: "play"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, e.surface.calls(), "rejected requests have no side effects")
}

func TestOperationalRoutesAreOpen(t *testing.T) {
	e := newEnv(t, nil, nil)

	rec := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")

	rec = e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ytmcompanion_")

	rec = e.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- state, playlists, commands ---

func TestState_ReturnsProjection(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.store.Set(player.State{TrackState: player.TrackPlaying, Volume: 42, PlaylistID: "PL1"})

	rec := e.do(t, http.MethodGet, "/state", validToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view player.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, player.TrackPlaying, view.Player.TrackState)
	assert.Equal(t, 42, view.Player.Volume)
	assert.Equal(t, "PL1", view.PlaylistID)
}

func TestPlaylists_UnavailableFailsFast(t *testing.T) {
	e := newEnv(t, nil, nil)

	start := time.Now()
	rec := e.do(t, http.MethodGet, "/playlists", validToken, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeUnavailable, decodeError(t, rec).Error)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, e.relay.Pending())
}

func TestCommand_VolumeScenario(t *testing.T) {
	e := newEnv(t, nil, nil)

	rec := e.do(t, http.MethodPost, "/command", validToken, map[string]any{"command": "setVolume", "data": 150})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, command.CodeInvalidVolume, body.Error)
	assert.Contains(t, body.Message, "150")

	rec = e.do(t, http.MethodPost, "/command", validToken, map[string]any{"command": "setVolume", "data": 50})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	calls := e.surface.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "setVolume", calls[0].name)
	assert.Equal(t, json.Number("50"), calls[0].value)
}

func TestCommand_Errors(t *testing.T) {
	tests := []struct {
		body map[string]any
		code string
		msg  string
	}{
		{map[string]any{"command": "selfDestruct"}, command.CodeInvalidCommand, "selfDestruct"},
		{map[string]any{"command": "repeatMode", "data": "SOMETIMES"}, command.CodeInvalidRepeatMode, "SOMETIMES"},
		{map[string]any{"command": "setVolume", "data": "loud"}, command.CodeInvalidVolume, "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := newEnv(t, nil, nil)
			rec := e.do(t, http.MethodPost, "/command", validToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Error)
			assert.Contains(t, body.Message, tt.msg)
		})
	}
}

func TestCommand_DroppedWhenSurfaceMissing(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.attached.Store(false)

	rec := e.do(t, http.MethodPost, "/command", validToken, CommandRequest{Command: "next"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, e.surface.calls())
}

// --- rate limits ---

func TestRateLimit_PerRouteAndIdentity(t *testing.T) {
	e := newEnv(t, nil, nil)

	rec := e.do(t, http.MethodGet, "/state", validToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/state", validToken, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	body := decodeError(t, rec)
	assert.Equal(t, CodeRateLimited, body.Error)
	assert.Greater(t, body.RetryAfterMs, int64(4000))

	// Another app from the same address has its own bucket.
	rec = e.do(t, http.MethodGet, "/state", "tok-other", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Buckets are per route.
	rec = e.do(t, http.MethodPost, "/command", validToken, CommandRequest{Command: "play"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimit_CommandBurst(t *testing.T) {
	e := newEnv(t, nil, nil)

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = e.do(t, http.MethodPost, "/command", validToken, CommandRequest{Command: "play"}).Code
	}
	assert.Equal(t, []int{204, 204, 429}, codes)
	assert.Len(t, e.surface.calls(), 2, "the rejected command never reached the dispatcher")
}

func TestRateLimit_GlobalLayer(t *testing.T) {
	e := newEnv(t, nil, func(c *RouterConfig) {
		c.Global = ratelimit.NewGlobal(2, time.Minute)
	})

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/state", validToken, nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/command", validToken, CommandRequest{Command: "play"}).Code)

	rec := e.do(t, http.MethodPost, "/command", validToken, CommandRequest{Command: "play"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Operational routes sit outside the layer.
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", "", nil).Code)
}

// --- realtime ---

func TestRealtime_RejectsInvalidTokenBeforeUpgrade(t *testing.T) {
	e := newEnv(t, nil, nil)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime?token=forged"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, e.hub.Count())
}

func TestRealtime_ReceivesBroadcasts(t *testing.T) {
	e := newEnv(t, nil, nil)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	header := http.Header{"Authorization": {"Bearer " + validToken}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return e.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	e.hub.Publish(protocol.EventPlaylistDeleted, "PL9")

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	frame, err := protocol.ParseFrame(msg)
	require.NoError(t, err)
	evt := frame.(*protocol.EventFrame)
	assert.Equal(t, protocol.EventPlaylistDeleted, evt.Event)
	assert.JSONEq(t, `"PL9"`, string(evt.Payload))
}

func TestHostGate(t *testing.T) {
	var hits atomic.Int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) })

	remote := httptest.NewRequest(http.MethodGet, "/host", nil) // RemoteAddr 192.0.2.1
	rec := httptest.NewRecorder()
	hostGate(false, next).ServeHTTP(rec, remote)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	hostGate(true, next).ServeHTTP(httptest.NewRecorder(), remote)

	local := httptest.NewRequest(http.MethodGet, "/host", nil)
	local.RemoteAddr = "127.0.0.1:5555"
	hostGate(false, next).ServeHTTP(httptest.NewRecorder(), local)

	assert.Equal(t, int32(2), hits.Load())
}
