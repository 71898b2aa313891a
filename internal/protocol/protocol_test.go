package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	t.Run("request", func(t *testing.T) {
		frame, err := ParseFrame([]byte(`{"type":"req","id":"r1","method":"state.update","params":{"volume":10}}`))
		require.NoError(t, err)
		req, ok := frame.(*RequestFrame)
		require.True(t, ok)
		assert.Equal(t, "r1", req.ID)
		assert.Equal(t, MethodStateUpdate, req.Method)
		assert.JSONEq(t, `{"volume":10}`, string(req.Params))
	})

	t.Run("null params dropped", func(t *testing.T) {
		frame, err := ParseFrame([]byte(`{"type":"req","id":"r1","method":"x","params":null}`))
		require.NoError(t, err)
		assert.Nil(t, frame.(*RequestFrame).Params)
	})

	t.Run("response", func(t *testing.T) {
		frame, err := ParseFrame([]byte(`{"type":"res","id":"r1","ok":false,"error":{"code":"X","message":"m"}}`))
		require.NoError(t, err)
		res := frame.(*ResponseFrame)
		assert.False(t, res.OK)
		require.NotNil(t, res.Error)
		assert.Equal(t, "X", res.Error.Code)
	})

	t.Run("event", func(t *testing.T) {
		frame, err := ParseFrame([]byte(`{"type":"event","event":"connect.challenge","payload":{"nonce":"n","ts":1}}`))
		require.NoError(t, err)
		evt := frame.(*EventFrame)
		assert.Equal(t, EventChallenge, evt.Event)
		assert.Nil(t, evt.Seq)
	})
}

func TestParseFrame_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
		field string
	}{
		{"bad json", `{broken`, CodeInvalidJSON, ""},
		{"empty", ``, CodeInvalidJSON, ""},
		{"no type", `{"id":"a"}`, CodeMissingField, "type"},
		{"unknown type", `{"type":"wat"}`, CodeUnknownType, ""},
		{"req without id", `{"type":"req","method":"m"}`, CodeMissingField, "id"},
		{"req without method", `{"type":"req","id":"a"}`, CodeMissingField, "method"},
		{"res without id", `{"type":"res","ok":true}`, CodeMissingField, "id"},
		{"event without name", `{"type":"event"}`, CodeMissingField, "event"},
		{"wrong field type", `{"type":"req","id":5,"method":"m"}`, CodeInvalidJSON, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseFrame([]byte(tt.input))
			assert.Nil(t, frame)
			var ferr *FrameError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.code, ferr.Code)
			assert.Equal(t, tt.field, ferr.Field)
		})
	}
}

func TestMarshalEvent(t *testing.T) {
	data, err := MarshalEvent(EventPlaylistDeleted, PlaylistRef{ID: "PL9"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event","event":"playlist-deleted","payload":{"id":"PL9"}}`, string(data))

	seq := uint64(7)
	data, err = MarshalEventSeq(EventStateUpdate, json.RawMessage(`{"a":1}`), &seq)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event","event":"state-update","payload":{"a":1},"seq":7}`, string(data))

	_, err = MarshalEvent("", nil)
	assert.Error(t, err)

	_, err = MarshalEvent("x", make(chan int))
	var ferr *FrameError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, CodeInvalidJSON, ferr.Code)
}

func TestMarshalRequestAndResponse(t *testing.T) {
	data, err := MarshalRequest("r1", MethodConnect, ConnectParams{MinProtocol: 1, MaxProtocol: 1})
	require.NoError(t, err)
	frame, err := ParseFrame(data)
	require.NoError(t, err)
	assert.Equal(t, MethodConnect, frame.(*RequestFrame).Method)

	_, err = MarshalRequest("", "m", nil)
	assert.Error(t, err)

	data, err = MarshalResponse("r1", false, nil, &ErrorShape{Code: "AUTH_FAILED", Message: "no"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"res","id":"r1","ok":false,"error":{"code":"AUTH_FAILED","message":"no"}}`, string(data))
}

func TestValidateConnect(t *testing.T) {
	assert.NoError(t, ValidateConnect(ConnectParams{MinProtocol: 1, MaxProtocol: 3}))
	assert.NoError(t, ValidateConnect(ConnectParams{MinProtocol: ServerProtocol, MaxProtocol: ServerProtocol}))

	err := ValidateConnect(ConnectParams{MinProtocol: 2, MaxProtocol: 4})
	var ferr *FrameError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, CodeProtocolMismatch, ferr.Code)
}
