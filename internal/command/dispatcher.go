// Package command validates remote-control commands and forwards them to
// the media surface.
package command

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/rvald/ytmcompanion/internal/metrics"
)

// Validation error codes.
const (
	CodeInvalidCommand      = "INVALID_COMMAND"
	CodeInvalidVolume       = "INVALID_VOLUME"
	CodeInvalidRepeatMode   = "INVALID_REPEAT_MODE"
	CodeInvalidSeekPosition = "INVALID_SEEK_POSITION"
	CodeInvalidQueueIndex   = "INVALID_QUEUE_INDEX"
)

// Error is a user input error with a stable machine-readable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Target is the media surface as seen by the dispatcher.
type Target interface {
	SendCommand(command string, value any) error
}

// Accessor returns the current media surface, or false when none is
// attached. It is called on every dispatch.
type Accessor func() (Target, bool)

// Dispatcher validates and forwards commands.
type Dispatcher struct {
	surface Accessor
}

// NewDispatcher creates a dispatcher reading the surface through accessor.
func NewDispatcher(accessor Accessor) *Dispatcher {
	return &Dispatcher{surface: accessor}
}

type validator func(value any) (any, *Error)

var commands = map[string]validator{
	"playPause":      noValue,
	"play":           noValue,
	"pause":          noValue,
	"volumeUp":       noValue,
	"volumeDown":     noValue,
	"mute":           noValue,
	"unmute":         noValue,
	"next":           noValue,
	"previous":       noValue,
	"shuffle":        noValue,
	"toggleLike":     noValue,
	"toggleDislike":  noValue,
	"setVolume":      validateVolume,
	"repeatMode":     validateRepeatMode,
	"seekTo":         validateSeek,
	"playQueueIndex": validateQueueIndex,
}

// Known reports whether name is a recognized command.
func Known(name string) bool {
	_, ok := commands[name]
	return ok
}

// Dispatch validates value for command and forwards both to the media
// surface. Validation failures return *Error. A missing surface drops the
// command and returns nil.
func (d *Dispatcher) Dispatch(command string, value any) error {
	validate, ok := commands[command]
	if !ok {
		return errorf(CodeInvalidCommand, "Command %q is not recognized", command)
	}

	forward, verr := validate(value)
	if verr != nil {
		return verr
	}

	target, ok := d.surface()
	if !ok {
		metrics.CommandsDropped.Inc()
		slog.Debug("command.dropped", "command", command, "reason", "surface unavailable")
		return nil
	}

	if err := target.SendCommand(command, forward); err != nil {
		metrics.CommandsDropped.Inc()
		slog.Debug("command.dropped", "command", command, "error", err)
		return nil
	}

	metrics.IncCommand(command)
	return nil
}

func noValue(any) (any, *Error) { return nil, nil }

func validateVolume(v any) (any, *Error) {
	f, ok := number(v)
	if !ok || f < 0 || f > 100 {
		return nil, errorf(CodeInvalidVolume, "Volume must be a number between 0 and 100, got %v", v)
	}
	return v, nil
}

func validateRepeatMode(v any) (any, *Error) {
	s, ok := v.(string)
	switch {
	case ok && (s == "NONE" || s == "ALL" || s == "ONE"):
		return s, nil
	default:
		return nil, errorf(CodeInvalidRepeatMode, "Repeat mode must be one of NONE, ALL, ONE, got %v", v)
	}
}

func validateSeek(v any) (any, *Error) {
	f, ok := number(v)
	if !ok || f < 0 {
		return nil, errorf(CodeInvalidSeekPosition, "Seek position must be a non-negative number of seconds, got %v", v)
	}
	return v, nil
}

func validateQueueIndex(v any) (any, *Error) {
	f, ok := number(v)
	if !ok || f < 0 || f != math.Trunc(f) {
		return nil, errorf(CodeInvalidQueueIndex, "Queue index must be a non-negative integer, got %v", v)
	}
	return v, nil
}

// number accepts the numeric shapes a decoded JSON body or a Go caller may
// produce. Strings are not numbers.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
