package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rvald/ytmcompanion/internal/command"
	"github.com/rvald/ytmcompanion/internal/pairing"
	"github.com/rvald/ytmcompanion/internal/query"
)

// Machine-readable error codes returned in the "error" field.
const (
	CodeAuthorizationTimeout  = "AUTHORIZATION_TIMEOUT"
	CodeAuthorizationDenied   = "AUTHORIZATION_DENIED"
	CodeAuthorizationInvalid  = "AUTHORIZATION_INVALID"
	CodeAuthorizationDisabled = "AUTHORIZATION_DISABLED"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeResultTimeout         = "YTM_RESULT_TIMEOUT"
	CodeUnavailable           = "YTM_UNAVAILABLE"
	CodeRateLimited           = "RATE_LIMITED"
	CodeBadRequest            = "BAD_REQUEST"
	CodeInternal              = "INTERNAL_ERROR"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error        string `json:"error"`
	Message      string `json:"message,omitempty"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("gateway.write_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: code, Message: message})
}

// writeRateLimited answers 429 with Retry-After in whole seconds, rounded up.
func writeRateLimited(w http.ResponseWriter, retry time.Duration) {
	secs := int(math.Ceil(retry.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, ErrorBody{
		Error:        CodeRateLimited,
		Message:      "too many requests",
		RetryAfterMs: retry.Milliseconds(),
	})
}

// statusFor maps a domain error to its HTTP status and code.
func statusFor(err error) (int, string) {
	var cmdErr *command.Error
	switch {
	case errors.As(err, &cmdErr):
		return http.StatusBadRequest, cmdErr.Code
	case errors.Is(err, pairing.ErrCodeTimeout):
		return http.StatusGatewayTimeout, CodeAuthorizationTimeout
	case errors.Is(err, pairing.ErrDisabled):
		return http.StatusForbidden, CodeAuthorizationDisabled
	case errors.Is(err, pairing.ErrDenied):
		return http.StatusForbidden, CodeAuthorizationDenied
	case errors.Is(err, pairing.ErrInvalidCode):
		return http.StatusBadRequest, CodeAuthorizationInvalid
	case errors.Is(err, pairing.ErrMissingApp):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, query.ErrTimeout):
		return http.StatusGatewayTimeout, CodeResultTimeout
	case errors.Is(err, query.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeErr answers with the status and code mapped from err. Internal
// errors are logged and their detail withheld.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("gateway.internal_error", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}
