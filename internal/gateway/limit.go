package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rvald/ytmcompanion/internal/metrics"
	"github.com/rvald/ytmcompanion/internal/ratelimit"
)

// Route names used as rate-limit table keys.
const (
	RouteRequestCode = "auth.requestcode"
	RouteRequest     = "auth.request"
	RoutePlaylists   = "playlists"
	RouteState       = "state"
	RouteCommand     = "command"
)

// DefaultLimits is the per-route table.
func DefaultLimits() map[string]ratelimit.Rule {
	return map[string]ratelimit.Rule{
		RouteRequestCode: {Limit: 5, Window: 60 * time.Second, Key: ratelimit.KeyIdentity},
		RouteRequest:     {Limit: 5, Window: 60 * time.Second, Key: ratelimit.KeyIdentity},
		RoutePlaylists:   {Limit: 1, Window: 30 * time.Second, Key: ratelimit.KeyIdentity},
		RouteState:       {Limit: 1, Window: 5 * time.Second, Key: ratelimit.KeyIdentity},
		RouteCommand:     {Limit: 2, Window: time.Second, Key: ratelimit.KeyIdentity},
	}
}

// Global default layer beneath the per-route rules.
const (
	DefaultGlobalLimit  = 100
	DefaultGlobalWindow = 60 * time.Second
)

// limitGlobal applies the per-address default layer to every request.
func limitGlobal(g *ratelimit.Global) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d := g.Check(clientAddr(r)); !d.Allowed {
				reject(w, r, "global", d.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitRoute gates h with the route's rule. The bucket key is the
// authenticated app when requireToken ran first, else the caller address.
func limitRoute(l *ratelimit.Limiter, route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := AppIDFromContext(r.Context())
		if key == "" {
			key = clientAddr(r)
		}
		if d := l.Check(route, key); !d.Allowed {
			reject(w, r, route, d.RetryAfter)
			return
		}
		h(w, r)
	}
}

func reject(w http.ResponseWriter, r *http.Request, route string, retry time.Duration) {
	metrics.IncRateLimited(route)
	slog.Info("ratelimit.rejected", "route", route, "remote", clientAddr(r), "retry_after", retry)
	writeRateLimited(w, retry)
}
