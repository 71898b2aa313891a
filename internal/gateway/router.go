package gateway

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rvald/ytmcompanion/internal/metrics"
	"github.com/rvald/ytmcompanion/internal/ratelimit"
)

const maxBodyBytes = 64 << 10

// RouterConfig holds everything the HTTP surface depends on.
type RouterConfig struct {
	Tokens    TokenValidator
	Pairing   Pairing
	State     StateReader
	Playlists PlaylistQuerier
	Commands  CommandDispatcher
	Realtime  Subscriptions

	// Host serves the media-surface bridge. Non-loopback hosts are only
	// accepted when RemoteHosts is set.
	Host        http.Handler
	RemoteHosts bool

	Limiter *ratelimit.Limiter
	Global  *ratelimit.Global
}

// NewRouter builds the companion API. Every API route passes the global
// layer, then the token gate where required, then its own rule, before the
// handler runs.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(DefaultLimits())
	}
	if cfg.Global == nil {
		cfg.Global = ratelimit.NewGlobal(DefaultGlobalLimit, DefaultGlobalWindow)
	}
	h := &handlers{
		pairing:   cfg.Pairing,
		state:     cfg.State,
		playlists: cfg.Playlists,
		commands:  cfg.Commands,
		realtime:  cfg.Realtime,
	}
	l := cfg.Limiter

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" not allowed")
	})

	// Operational routes: no token, no limits.
	r.HandleFunc("/health", health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if cfg.Host != nil {
		r.Handle("/host", hostGate(cfg.RemoteHosts, cfg.Host)).Methods(http.MethodGet)
	}

	api := r.NewRoute().Subrouter()
	api.Use(limitGlobal(cfg.Global))

	api.HandleFunc("/auth/requestcode", limitRoute(l, RouteRequestCode, h.requestCode)).Methods(http.MethodPost)
	api.HandleFunc("/auth/request", limitRoute(l, RouteRequest, h.request)).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(requireToken(cfg.Tokens))

	authed.HandleFunc("/playlists", limitRoute(l, RoutePlaylists, h.getPlaylists)).Methods(http.MethodGet)
	authed.HandleFunc("/state", limitRoute(l, RouteState, h.getState)).Methods(http.MethodGet)
	authed.HandleFunc("/command", limitRoute(l, RouteCommand, h.postCommand)).Methods(http.MethodPost)
	authed.HandleFunc("/realtime", h.realtimeWS).Methods(http.MethodGet)

	return r
}

// hostGate keeps the bridge on loopback unless remote hosts are allowed.
func hostGate(remote bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !remote && !isLoopback(r.RemoteAddr) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "host bridge is loopback only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
