package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rvald/ytmcompanion/internal/config"
	"github.com/rvald/ytmcompanion/internal/discord"
	"github.com/rvald/ytmcompanion/internal/discovery"
	"github.com/rvald/ytmcompanion/internal/gateway"
	"github.com/rvald/ytmcompanion/internal/logger"
	"github.com/rvald/ytmcompanion/internal/pairing"
	"github.com/rvald/ytmcompanion/internal/settings"
)

var (
	cfgPort       int
	cfgBind       string
	cfgHostSecret string
	cfgSurface    string
	cfgMDNS       bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the companion server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		closer := logger.Setup(cfg.StateDir, level, nil)
		defer closer.Close()

		return runServer(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().IntVar(&cfgPort, "port", config.DefaultPort, "API port")
	serverCmd.Flags().StringVar(&cfgBind, "bind", config.BindLoopback, "Bind mode: loopback or lan")
	serverCmd.Flags().StringVar(&cfgHostSecret, "host-secret", "", "Secret the media-surface host presents on /host")
	serverCmd.Flags().StringVar(&cfgSurface, "surface", "", "Pairing confirmation surface: console, discord or auto-deny")
	serverCmd.Flags().BoolVar(&cfgMDNS, "mdns", false, "Advertise the server over mDNS")
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = cfgPort
	}
	if flags.Changed("bind") {
		cfg.Server.Bind = cfgBind
	}
	if flags.Changed("host-secret") {
		cfg.Server.HostSecret = cfgHostSecret
	}
	if flags.Changed("surface") {
		cfg.Pairing.Surface = cfgSurface
	}
	if flags.Changed("mdns") {
		cfg.Discovery.Enabled = cfgMDNS
	}
}

func runServer(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Persistent state
	st, err := openSettings(cfg)
	if err != nil {
		return err
	}
	tokenStore, closeTokens, err := openTokens(cfg, st)
	if err != nil {
		return fmt.Errorf("token store: %w", err)
	}
	defer closeTokens()

	if cfg.Settings.Watch {
		watcher, err := settings.NewWatcher(st)
		if err != nil {
			return fmt.Errorf("settings watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			slog.Warn("settings.watch_failed", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	// 2. Confirmation surface
	var bot *discord.Bot
	var opener pairing.Opener
	switch cfg.Pairing.Surface {
	case config.SurfaceConsole:
		opener = pairing.NewConsoleOpener(os.Stdin, os.Stdout)
	case config.SurfaceDiscord:
		bot, err = discord.NewBot(discord.BotConfig{
			Token:     cfg.Discord.Token,
			ChannelID: cfg.Discord.ChannelID,
			GuildID:   cfg.Discord.GuildID,
		})
		if err != nil {
			return fmt.Errorf("discord init: %w", err)
		}
		bot.SetRouter(discord.NewCommandRouter(tokenStore, st))
		if err := bot.Start(ctx); err != nil {
			return fmt.Errorf("discord start: %w", err)
		}
		defer bot.Stop()
		opener = bot.Opener()
	default:
		opener = pairing.AutoDenyOpener{}
	}

	coordinator := pairing.NewCoordinator(pairing.Config{
		CodeTTL:        cfg.Pairing.CodeTTL,
		ConfirmTimeout: cfg.Pairing.ConfirmTimeout,
		IssueWait:      cfg.Pairing.IssueWait,
	}, st, tokenStore, opener)

	// 3. Gateway
	gw, err := gateway.New(gateway.Config{
		Port:            cfg.Server.Port,
		Bind:            cfg.Server.Bind,
		Version:         version,
		HostSecret:      cfg.Server.HostSecret,
		QueryTimeout:    cfg.Query.Timeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Tokens:          tokenStore,
		Pairing:         coordinator,
	})
	if err != nil {
		return fmt.Errorf("gateway init: %w", err)
	}

	// 4. Discovery
	if cfg.Discovery.Enabled {
		adv, err := discovery.NewAdvertiser(discovery.Config{
			InstanceName: cfg.Discovery.Name,
			Port:         cfg.Server.Port,
			Meta: discovery.Metadata{
				Version: version,
				Pairing: st.CompanionAuthorizationEnabled(),
			},
		})
		if err != nil {
			return fmt.Errorf("discovery init: %w", err)
		}
		if err := adv.Start(); err != nil {
			slog.Warn("discovery.start_failed", "error", err)
		} else {
			defer adv.Stop()
			st.OnReload(func() {
				if err := adv.SetPairing(st.CompanionAuthorizationEnabled()); err != nil {
					slog.Warn("discovery.republish_failed", "error", err)
				}
			})
		}
	}

	printBanner(cfg, st.CompanionAuthorizationEnabled())

	err = gw.Run(ctx)
	slog.Info("server.stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printBanner(cfg config.Config, pairingEnabled bool) {
	bindAddr := "127.0.0.1"
	if cfg.Server.Bind == config.BindLAN {
		bindAddr = "0.0.0.0"
	}
	hostAuth := "none"
	if cfg.Server.HostSecret != "" {
		hostAuth = "secret"
	}
	pairingState := "disabled"
	if pairingEnabled {
		pairingState = "enabled"
	}
	mdns := "off"
	if cfg.Discovery.Enabled {
		mdns = "on"
	}

	fmt.Printf("\n")
	fmt.Printf("  ytmcompanion v%s\n", version)
	fmt.Printf("  api:      http://%s:%d  bind=%s\n", bindAddr, cfg.Server.Port, cfg.Server.Bind)
	fmt.Printf("  realtime: ws://%s:%d/realtime\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  host:     ws://%s:%d/host  auth=%s\n", bindAddr, cfg.Server.Port, hostAuth)
	fmt.Printf("  pairing:  %s  surface=%s  tokens=%s  mdns=%s\n", pairingState, cfg.Pairing.Surface, cfg.Tokens.Backend, mdns)
	fmt.Printf("  state:    %s\n", cfg.StateDir)
	fmt.Printf("\n")
}
