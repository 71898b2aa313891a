package hostbridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rvald/ytmcompanion/internal/command"
	"github.com/rvald/ytmcompanion/internal/metrics"
	"github.com/rvald/ytmcompanion/internal/player"
	"github.com/rvald/ytmcompanion/internal/protocol"
	"github.com/rvald/ytmcompanion/internal/query"
)

// StateWriter is the authoritative player-state store.
type StateWriter interface {
	Set(player.State)
}

// Publisher receives playlist notifications for the realtime channel.
type Publisher interface {
	Publish(event string, payload any)
}

// Resolver completes pending media-surface queries.
type Resolver interface {
	Resolve(query.Result) bool
	CancelSession(sessionID string) int
}

// Config wires a Bridge.
type Config struct {
	Auth    AuthConfig
	Version string
	Store   StateWriter
	Events  Publisher
}

// Bridge tracks the attached host. At most one host is current; a newer
// host replaces an older one.
type Bridge struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	current *Conn
	conns   map[*Conn]struct{}
	relay   Resolver
}

// NewBridge creates a bridge with no host attached.
func NewBridge(cfg Config) *Bridge {
	return &Bridge{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			// The host is a local renderer, not a browser page.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
}

// SetRelay attaches the query relay that host answers are delivered to.
func (b *Bridge) SetRelay(r Resolver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = r
}

// Surface returns the current host, if any. Callers must re-fetch it
// rather than keep it across a wait.
func (b *Bridge) Surface() (*Conn, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current, b.current != nil
}

// CommandTarget adapts Surface for command.NewDispatcher.
func (b *Bridge) CommandTarget() (command.Target, bool) {
	c, ok := b.Surface()
	if !ok {
		return nil, false
	}
	return c, true
}

// QuerySender adapts Surface for query.NewRelay.
func (b *Bridge) QuerySender() (query.Sender, bool) {
	c, ok := b.Surface()
	if !ok {
		return nil, false
	}
	return c, true
}

// ServeHTTP upgrades a host connection and runs it until it closes.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("hostbridge.upgrade_failed", "error", err)
		return
	}

	conn := NewConn(ws, b.cfg.Auth, b, b.cfg.Version)

	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	conn.Run(r.Context())

	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
}

// CloseAll closes every host connection.
func (b *Bridge) CloseAll() {
	b.mu.RLock()
	conns := make([]*Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}

// --- Handler implementation ---

func (b *Bridge) OnAuthenticated(conn *Conn) error {
	b.mu.Lock()
	old := b.current
	b.current = conn
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	metrics.HostConnected.Set(1)
	client, _ := conn.Client()
	slog.Info("hostbridge.connected", "session", conn.SessionID(), "client", client.ID, "version", client.Version)

	if old != nil && old != conn {
		slog.Info("hostbridge.replaced", "old", old.SessionID(), "new", conn.SessionID())
		old.Close()
	}
	return nil
}

func (b *Bridge) OnRequest(conn *Conn, req *protocol.RequestFrame) error {
	if cur, _ := b.Surface(); cur != conn {
		return fmt.Errorf("session %s is not the active host", conn.SessionID())
	}

	switch req.Method {
	case protocol.MethodQueryResult:
		var res query.Result
		if err := decodeParams(req, &res); err != nil {
			return err
		}
		b.mu.RLock()
		relay := b.relay
		b.mu.RUnlock()
		if relay == nil || !relay.Resolve(res) {
			slog.Debug("hostbridge.result_unmatched", "id", res.ID)
		}
		return nil

	case protocol.MethodStateUpdate:
		var st player.State
		if err := decodeParams(req, &st); err != nil {
			return err
		}
		if b.cfg.Store != nil {
			b.cfg.Store.Set(st)
		}
		return nil

	case protocol.MethodPlaylistCreated:
		var pl player.Playlist
		if err := decodeParams(req, &pl); err != nil {
			return err
		}
		if pl.ID == "" {
			return fmt.Errorf("playlist id is required")
		}
		b.publish(protocol.EventPlaylistCreated, pl)
		return nil

	case protocol.MethodPlaylistDeleted:
		var ref protocol.PlaylistRef
		if err := decodeParams(req, &ref); err != nil {
			return err
		}
		if ref.ID == "" {
			return fmt.Errorf("playlist id is required")
		}
		b.publish(protocol.EventPlaylistDeleted, ref.ID)
		return nil

	default:
		return fmt.Errorf("unknown method %q", req.Method)
	}
}

func (b *Bridge) OnDisconnected(conn *Conn) {
	b.mu.Lock()
	wasCurrent := b.current == conn
	if wasCurrent {
		b.current = nil
	}
	delete(b.conns, conn)
	relay := b.relay
	b.mu.Unlock()

	if wasCurrent {
		metrics.HostConnected.Set(0)
	}
	cancelled := 0
	if relay != nil {
		cancelled = relay.CancelSession(conn.SessionID())
	}
	slog.Info("hostbridge.disconnected", "session", conn.SessionID(), "current", wasCurrent, "cancelled_queries", cancelled)
}

func (b *Bridge) publish(event string, payload any) {
	if b.cfg.Events != nil {
		b.cfg.Events.Publish(event, payload)
	}
}

func decodeParams(req *protocol.RequestFrame, v any) error {
	if req.Params == nil {
		return fmt.Errorf("%s: params are required", req.Method)
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return fmt.Errorf("%s: invalid params: %w", req.Method, err)
	}
	return nil
}
