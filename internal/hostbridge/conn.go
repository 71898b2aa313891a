// Package hostbridge attaches the media surface and player-state owner (the
// host renderer) to the server over a websocket.
package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rvald/ytmcompanion/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	handshakeWait  = 10 * time.Second
	maxMessageSize = 4 << 20 // queue + lyrics payloads can be large
	sendBuffer     = 64
)

var (
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("host connection closed")
	// ErrSendQueueFull means the host is not keeping up; the event is dropped.
	ErrSendQueueFull = errors.New("host send queue full")
)

// ConnState represents the lifecycle state of a connection.
type ConnState string

const (
	StateConnecting    ConnState = "connecting"
	StateAuthenticated ConnState = "authenticated"
	StateClosed        ConnState = "closed"
)

// WebSocket is the subset of *websocket.Conn used by Conn.
type WebSocket interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Handler receives lifecycle events from a Conn.
type Handler interface {
	OnAuthenticated(conn *Conn) error
	// OnRequest handles one host request; a non-nil error is answered with
	// an ok=false response.
	OnRequest(conn *Conn, req *protocol.RequestFrame) error
	OnDisconnected(conn *Conn)
}

// Conn manages one host websocket through the handshake and the
// authenticated message loop.
type Conn struct {
	ws      WebSocket
	auth    AuthConfig
	handler Handler
	version string

	mu     sync.Mutex
	state  ConnState
	params *protocol.ConnectParams

	writeMu   sync.Mutex
	writeWait time.Duration
	send      chan []byte // events, drained by writePump

	id    string
	nonce string
}

// NewConn creates a new connection in the connecting state.
func NewConn(ws WebSocket, auth AuthConfig, handler Handler, version string) *Conn {
	return &Conn{
		ws:      ws,
		auth:    auth,
		handler: handler,
		version: version,
		state:     StateConnecting,
		writeWait: writeWait,
		send:      make(chan []byte, sendBuffer),
		id:        uuid.NewString(),
	}
}

// SessionID identifies this host session.
func (c *Conn) SessionID() string { return c.id }

// State returns the lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Client returns the host's self-description, once connected.
func (c *Conn) Client() (protocol.ClientInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params == nil {
		return protocol.ClientInfo{}, false
	}
	return c.params.Client, true
}

// SendEvent queues an event frame for the host. It never blocks: a full
// queue drops the event with ErrSendQueueFull.
func (c *Conn) SendEvent(event string, payload any) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	data, err := protocol.MarshalEvent(event, payload)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("hostbridge.send_queue_full", "session", c.id, "event", event)
		return ErrSendQueueFull
	}
}

// SendCommand forwards a remote-control command.
func (c *Conn) SendCommand(command string, value any) error {
	return c.SendEvent(protocol.EventCommand, protocol.CommandEvent{Command: command, Value: value})
}

// SendQuery asks the host for data; the answer arrives as query.result.
func (c *Conn) SendQuery(id, kind string) error {
	return c.SendEvent(protocol.EventQuery, protocol.QueryEvent{ID: id, Kind: kind})
}

// Close closes the underlying websocket, ending Run.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// writeMessage writes one frame within writeWait. A failed write leaves
// the websocket unusable, so it is closed, which ends Run.
func (c *Conn) writeMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.ws.Close()
		return err
	}
	return nil
}

func (c *Conn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			if err := c.writeMessage(data); err != nil {
				slog.Debug("hostbridge.write_failed", "session", c.id, "error", err)
				return
			}
		}
	}
}

// Run drives the connection lifecycle: challenge → connect → read loop.
// It blocks until the connection is closed or the context is cancelled.
func (c *Conn) Run(ctx context.Context) {
	defer c.shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Close websocket on context cancellation to unblock reads.
	go func() {
		<-ctx.Done()
		c.ws.Close()
	}()
	go c.writePump(ctx)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(handshakeWait))

	if err := c.sendChallenge(); err != nil {
		return
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return
	}
	if err := c.processConnect(data); err != nil {
		slog.Warn("hostbridge.handshake_failed", "session", c.id, "error", err)
		return
	}

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop(ctx)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("hostbridge.read_error", "session", c.id, "error", err)
			}
			return
		}
		c.processRequest(data)
	}
}

func (c *Conn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.ws.Close()
				return
			}
		}
	}
}

func (c *Conn) sendChallenge() error {
	c.nonce = uuid.NewString()
	data, err := protocol.MarshalEvent(protocol.EventChallenge, protocol.Challenge{
		Nonce: c.nonce,
		Ts:    time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return c.writeMessage(data)
}

func (c *Conn) processConnect(data []byte) error {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		return err
	}

	req, ok := frame.(*protocol.RequestFrame)
	if !ok {
		return fmt.Errorf("expected request frame, got %s", frame.FrameType())
	}

	if req.Method != protocol.MethodConnect {
		c.sendError(req.ID, "INVALID_METHOD", "first request must be connect")
		return fmt.Errorf("first request must be connect, got %q", req.Method)
	}

	var params protocol.ConnectParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			c.sendError(req.ID, protocol.CodeInvalidJSON, fmt.Sprintf("invalid connect params: %v", err))
			return err
		}
	}

	if err := protocol.ValidateConnect(params); err != nil {
		var fe *protocol.FrameError
		if errors.As(err, &fe) {
			c.sendError(req.ID, fe.Code, fe.Message)
		}
		return err
	}

	if result := Authenticate(c.auth, params.Auth); !result.OK {
		c.sendError(req.ID, "UNAUTHORIZED", result.Reason)
		return fmt.Errorf("auth failed: %s", result.Reason)
	}

	hello := protocol.HelloOk{
		Protocol: protocol.ServerProtocol,
		Server:   protocol.ServerInfo{Version: c.version, SessionID: c.id},
		Features: protocol.Features{
			Methods: []string{protocol.MethodQueryResult, protocol.MethodStateUpdate, protocol.MethodPlaylistCreated, protocol.MethodPlaylistDeleted},
			Events:  []string{protocol.EventCommand, protocol.EventQuery},
		},
		Policy: protocol.Policy{MaxPayload: maxMessageSize, TickIntervalMs: int(pingPeriod / time.Millisecond)},
	}
	resData, err := protocol.MarshalResponse(req.ID, true, hello, nil)
	if err != nil {
		return err
	}
	if err := c.writeMessage(resData); err != nil {
		return err
	}

	c.mu.Lock()
	c.params = &params
	c.state = StateAuthenticated
	c.mu.Unlock()

	return c.handler.OnAuthenticated(c)
}

func (c *Conn) processRequest(data []byte) {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		slog.Debug("hostbridge.bad_frame", "session", c.id, "error", err)
		return
	}

	req, ok := frame.(*protocol.RequestFrame)
	if !ok {
		return
	}

	if err := c.handler.OnRequest(c, req); err != nil {
		c.sendError(req.ID, "BAD_REQUEST", err.Error())
		return
	}
	if resData, err := protocol.MarshalResponse(req.ID, true, nil, nil); err == nil {
		c.writeMessage(resData)
	}
}

func (c *Conn) sendError(id, code, message string) {
	data, err := protocol.MarshalResponse(id, false, nil, &protocol.ErrorShape{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	c.writeMessage(data)
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	wasAuthenticated := c.state == StateAuthenticated
	c.state = StateClosed
	c.mu.Unlock()

	c.ws.Close()

	if wasAuthenticated {
		c.handler.OnDisconnected(c)
	}
}
