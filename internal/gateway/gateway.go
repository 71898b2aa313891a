// Package gateway is the companion HTTP surface: pairing routes, the
// token-gated REST API, the realtime channel and the media-surface bridge.
package gateway

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rvald/ytmcompanion/internal/command"
	"github.com/rvald/ytmcompanion/internal/hostbridge"
	"github.com/rvald/ytmcompanion/internal/player"
	"github.com/rvald/ytmcompanion/internal/query"
	"github.com/rvald/ytmcompanion/internal/ratelimit"
	"github.com/rvald/ytmcompanion/internal/realtime"
)

// Config configures the gateway.
type Config struct {
	Port    int
	Bind    string // "loopback" or "lan"
	Version string

	// HostSecret authenticates the media-surface host. Empty accepts any
	// loopback host.
	HostSecret   string
	QueryTimeout time.Duration

	Limits       map[string]ratelimit.Rule // nil uses DefaultLimits
	GlobalLimit  int
	GlobalWindow time.Duration

	SweepInterval   time.Duration
	ShutdownTimeout time.Duration

	Tokens  TokenValidator
	Pairing Pairing
}

// Gateway is the top-level orchestrator. It owns the player-state store,
// the realtime hub, the host bridge and everything between them.
type Gateway struct {
	config Config

	store      *player.MemoryStore
	hub        *realtime.Hub
	bridge     *hostbridge.Bridge
	relay      *query.Relay
	dispatcher *command.Dispatcher
	limiter    *ratelimit.Limiter
	global     *ratelimit.Global
	server     *Server
}

// New creates and wires up a new Gateway.
func New(config Config) (*Gateway, error) {
	if config.Tokens == nil {
		return nil, errors.New("gateway: token store is required")
	}
	if config.Pairing == nil {
		return nil, errors.New("gateway: pairing coordinator is required")
	}
	if config.Limits == nil {
		config.Limits = DefaultLimits()
	}
	if config.GlobalLimit == 0 {
		config.GlobalLimit = DefaultGlobalLimit
	}
	if config.GlobalWindow <= 0 {
		config.GlobalWindow = DefaultGlobalWindow
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}

	gw := &Gateway{
		config:  config,
		store:   player.NewMemoryStore(),
		hub:     realtime.NewHub(),
		limiter: ratelimit.New(config.Limits),
		global:  ratelimit.NewGlobal(config.GlobalLimit, config.GlobalWindow),
	}

	gw.bridge = hostbridge.NewBridge(hostbridge.Config{
		Auth:    hostbridge.AuthConfigFor(config.HostSecret),
		Version: config.Version,
		Store:   gw.store,
		Events:  gw.hub,
	})
	gw.relay = query.NewRelay(gw.bridge.QuerySender, config.QueryTimeout)
	gw.bridge.SetRelay(gw.relay)
	gw.dispatcher = command.NewDispatcher(gw.bridge.CommandTarget)

	router := NewRouter(RouterConfig{
		Tokens:      config.Tokens,
		Pairing:     config.Pairing,
		State:       gw.store,
		Playlists:   gw.relay,
		Commands:    gw.dispatcher,
		Realtime:    gw.hub,
		Host:        gw.bridge,
		RemoteHosts: config.HostSecret != "",
		Limiter:     gw.limiter,
		Global:      gw.global,
	})
	gw.server = NewServer(ServerConfig{
		Port:            config.Port,
		Bind:            config.Bind,
		ShutdownTimeout: config.ShutdownTimeout,
	}, router)
	return gw, nil
}

// Run serves until ctx is cancelled or the listener fails.
func (gw *Gateway) Run(ctx context.Context) error {
	unwatch := gw.hub.WatchState(gw.store)
	defer unwatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gw.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		gw.limiter.Run(gctx, gw.config.SweepInterval)
		return nil
	})
	g.Go(func() error {
		gw.global.Run(gctx, gw.config.SweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		gw.bridge.CloseAll()
		return nil
	})
	g.Go(func() error {
		return gw.server.ListenAndServe(gctx)
	})
	return g.Wait()
}

// Addr returns the bound listen address, or "" before Run binds.
func (gw *Gateway) Addr() string { return gw.server.Addr() }

// Ready is closed once the listener is bound.
func (gw *Gateway) Ready() <-chan struct{} { return gw.server.Ready() }

// Store returns the authoritative player-state store.
func (gw *Gateway) Store() *player.MemoryStore { return gw.store }

// Hub returns the realtime hub.
func (gw *Gateway) Hub() *realtime.Hub { return gw.hub }

// Bridge returns the media-surface bridge.
func (gw *Gateway) Bridge() *hostbridge.Bridge { return gw.bridge }
