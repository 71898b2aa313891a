// Package config loads the server configuration: defaults, then an optional
// YAML file, then YTMC_* environment variables. Command-line flags are
// applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the companion API port.
const DefaultPort = 26538

type Config struct {
	StateDir  string    `yaml:"state_dir"`
	LogLevel  string    `yaml:"log_level"`
	Server    Server    `yaml:"server"`
	Pairing   Pairing   `yaml:"pairing"`
	Query     Query     `yaml:"query"`
	Tokens    Tokens    `yaml:"tokens"`
	Settings  Settings  `yaml:"settings"`
	Discovery Discovery `yaml:"discovery"`
	Discord   Discord   `yaml:"discord"`
}

type Server struct {
	Port int    `yaml:"port"`
	Bind string `yaml:"bind"` // loopback | lan

	// HostSecret authenticates the media-surface host on /host. Required
	// for a lan bind.
	HostSecret      string        `yaml:"host_secret"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Pairing struct {
	CodeTTL        time.Duration `yaml:"code_ttl"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	IssueWait      time.Duration `yaml:"issue_wait"`
	Surface        string        `yaml:"surface"` // console | discord | auto-deny
}

type Query struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Tokens struct {
	Backend string `yaml:"backend"` // settings | sqlite
	Path    string `yaml:"path"`    // sqlite file, relative to state_dir
}

type Settings struct {
	// Key is the passphrase sealing secret fields. Empty uses a key file
	// generated in the state directory.
	Key   string `yaml:"key"`
	Watch bool   `yaml:"watch"`
}

type Discovery struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

type Discord struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
	GuildID   string `yaml:"guild_id"`
}

const (
	BindLoopback = "loopback"
	BindLAN      = "lan"

	BackendSettings = "settings"
	BackendSQLite   = "sqlite"

	SurfaceConsole  = "console"
	SurfaceDiscord  = "discord"
	SurfaceAutoDeny = "auto-deny"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir: DefaultStateDir(),
		LogLevel: "info",
		Server: Server{
			Port:            DefaultPort,
			Bind:            BindLoopback,
			ShutdownTimeout: 5 * time.Second,
		},
		Pairing: Pairing{
			CodeTTL:        30 * time.Second,
			ConfirmTimeout: 30 * time.Second,
			IssueWait:      10 * time.Second,
			Surface:        SurfaceAutoDeny,
		},
		Query:     Query{Timeout: 5 * time.Second},
		Tokens:    Tokens{Backend: BackendSettings, Path: "tokens.db"},
		Settings:  Settings{Watch: true},
		Discovery: Discovery{Name: "YouTube Music Companion"},
	}
}

// DefaultStateDir returns $XDG_STATE_HOME/ytmcompanion or
// ~/.local/state/ytmcompanion.
func DefaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "ytmcompanion")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ytmcompanion")
	}
	return filepath.Join(home, ".local", "state", "ytmcompanion")
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment. It does not validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("YTMC_STATE_DIR", &cfg.StateDir)
	str("YTMC_LOG_LEVEL", &cfg.LogLevel)
	num("YTMC_PORT", &cfg.Server.Port)
	str("YTMC_BIND", &cfg.Server.Bind)
	str("YTMC_HOST_SECRET", &cfg.Server.HostSecret)
	dur("YTMC_PAIRING_CODE_TTL", &cfg.Pairing.CodeTTL)
	dur("YTMC_PAIRING_CONFIRM_TIMEOUT", &cfg.Pairing.ConfirmTimeout)
	str("YTMC_PAIRING_SURFACE", &cfg.Pairing.Surface)
	dur("YTMC_QUERY_TIMEOUT", &cfg.Query.Timeout)
	str("YTMC_TOKEN_BACKEND", &cfg.Tokens.Backend)
	str("YTMC_SETTINGS_KEY", &cfg.Settings.Key)
	flag("YTMC_MDNS", &cfg.Discovery.Enabled)
	str("YTMC_DISCORD_TOKEN", &cfg.Discord.Token)
	str("YTMC_DISCORD_CHANNEL", &cfg.Discord.ChannelID)
	str("YTMC_DISCORD_GUILD", &cfg.Discord.GuildID)

	return errors.Join(errs...)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StateDir) == "" {
		return errors.New("state_dir is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (debug|info|warn|error)", c.LogLevel)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	switch c.Server.Bind {
	case BindLoopback:
	case BindLAN:
		if c.Server.HostSecret == "" {
			return errors.New("refusing to start: bind lan requires server.host_secret")
		}
	default:
		return fmt.Errorf("invalid bind mode %q (loopback|lan)", c.Server.Bind)
	}

	for name, d := range map[string]time.Duration{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"pairing.code_ttl":        c.Pairing.CodeTTL,
		"pairing.confirm_timeout": c.Pairing.ConfirmTimeout,
		"pairing.issue_wait":      c.Pairing.IssueWait,
		"query.timeout":           c.Query.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	switch c.Tokens.Backend {
	case BackendSettings:
	case BackendSQLite:
		if c.Tokens.Path == "" {
			return errors.New("tokens.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid tokens.backend %q (settings|sqlite)", c.Tokens.Backend)
	}

	switch c.Pairing.Surface {
	case SurfaceConsole, SurfaceAutoDeny:
	case SurfaceDiscord:
		if c.Discord.Token == "" || c.Discord.ChannelID == "" {
			return errors.New("pairing.surface discord requires discord.token and discord.channel_id")
		}
	default:
		return fmt.Errorf("invalid pairing.surface %q (console|discord|auto-deny)", c.Pairing.Surface)
	}

	if c.Discovery.Enabled && c.Discovery.Name == "" {
		return errors.New("discovery.name is required when discovery is enabled")
	}
	return nil
}

// TokenDBPath resolves the sqlite token file against the state directory.
func (c *Config) TokenDBPath() string {
	if filepath.IsAbs(c.Tokens.Path) {
		return c.Tokens.Path
	}
	return filepath.Join(c.StateDir, c.Tokens.Path)
}

// Redacted returns a copy with secrets masked, for printing.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Server.HostSecret = mask(c.Server.HostSecret)
	c.Settings.Key = mask(c.Settings.Key)
	c.Discord.Token = mask(c.Discord.Token)
	return c
}
