package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const appIDKey contextKey = "appId"

// TokenValidator resolves a companion token to its app.
type TokenValidator interface {
	Validate(value string) (appID string, ok bool)
}

// requireToken admits requests carrying a valid companion token in the
// Authorization header, or in the "token" query parameter for websocket
// handshakes. Anything else is answered 401 before the handler runs.
func requireToken(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization")
				return
			}

			appID, ok := tokens.Validate(token)
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), appIDKey, appID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AppIDFromContext returns the authenticated app, or "".
func AppIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appIDKey).(string); ok {
		return v
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// clientAddr is the network address used to key unauthenticated callers.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return strings.TrimPrefix(host, "::ffff:")
}

// isLoopback reports whether addr is a loopback address.
func isLoopback(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "::ffff:")
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}
