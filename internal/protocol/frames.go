// Package protocol is the JSON frame format spoken on the host bridge and the
// realtime channel.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame error codes.
const (
	CodeInvalidJSON      = "INVALID_JSON"
	CodeMissingField     = "MISSING_FIELD"
	CodeUnknownType      = "UNKNOWN_TYPE"
	CodeProtocolMismatch = "PROTOCOL_MISMATCH"
)

// FrameError carries structured context for observability.
type FrameError struct {
	Code    string
	Field   string // which field was the problem, if applicable
	Message string
}

func (e *FrameError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("frame error [%s]: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("frame error [%s]: %s", e.Code, e.Message)
}

func missing(kind, field string) *FrameError {
	return &FrameError{
		Code:    CodeMissingField,
		Field:   field,
		Message: fmt.Sprintf("%s frame missing required %q field", kind, field),
	}
}

// FrameType discriminates frames on the wire.
type FrameType string

const (
	FrameTypeReq   FrameType = "req"
	FrameTypeRes   FrameType = "res"
	FrameTypeEvent FrameType = "event"
)

// Frame is any decoded frame: *RequestFrame, *ResponseFrame or *EventFrame.
type Frame interface {
	FrameType() FrameType
}

type RequestFrame struct {
	Type   FrameType       `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*RequestFrame) FrameType() FrameType { return FrameTypeReq }

type ResponseFrame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

func (*ResponseFrame) FrameType() FrameType { return FrameTypeRes }

type EventFrame struct {
	Type    FrameType       `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     *uint64         `json:"seq,omitempty"`
}

func (*EventFrame) FrameType() FrameType { return FrameTypeEvent }

type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable *bool  `json:"retryable,omitempty"`
}

// ParseFrame decodes one frame, dispatching on "type" and checking the
// fields each type requires.
func ParseFrame(data []byte) (Frame, error) {
	var head struct {
		Type FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &FrameError{Code: CodeInvalidJSON, Message: fmt.Sprintf("invalid frame JSON: %v", err)}
	}

	switch head.Type {
	case "":
		return nil, missing("any", "type")

	case FrameTypeReq:
		var req RequestFrame
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		if req.ID == "" {
			return nil, missing("request", "id")
		}
		if req.Method == "" {
			return nil, missing("request", "method")
		}
		if bytes.Equal(req.Params, []byte("null")) {
			req.Params = nil
		}
		return &req, nil

	case FrameTypeRes:
		var res ResponseFrame
		if err := decode(data, &res); err != nil {
			return nil, err
		}
		if res.ID == "" {
			return nil, missing("response", "id")
		}
		return &res, nil

	case FrameTypeEvent:
		var evt EventFrame
		if err := decode(data, &evt); err != nil {
			return nil, err
		}
		if evt.Event == "" {
			return nil, missing("event", "event")
		}
		return &evt, nil

	default:
		return nil, &FrameError{Code: CodeUnknownType, Message: fmt.Sprintf("unknown frame type: %q", head.Type)}
	}
}

func decode(data []byte, v Frame) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &FrameError{Code: CodeInvalidJSON, Message: fmt.Sprintf("invalid %s frame JSON: %v", v.FrameType(), err)}
	}
	return nil
}
