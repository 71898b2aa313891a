package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/rvald/ytmcompanion/internal/config"
	"github.com/rvald/ytmcompanion/internal/secret"
	"github.com/rvald/ytmcompanion/internal/settings"
	"github.com/rvald/ytmcompanion/internal/tokens"
)

const keyFileName = "settings.key"

// openSettings opens the persistent settings sealed with the configured
// passphrase, or with the key file kept in the state directory.
func openSettings(cfg config.Config) (*settings.Store, error) {
	key := cfg.Settings.Key
	if key == "" {
		var err error
		key, err = secret.LoadOrCreateKey(filepath.Join(cfg.StateDir, keyFileName))
		if err != nil {
			return nil, fmt.Errorf("settings key: %w", err)
		}
	}
	cipher, err := secret.New(key)
	if err != nil {
		return nil, err
	}
	store, err := settings.Open(cfg.StateDir, cipher)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return store, nil
}

// openTokens returns the configured token backend. The close func is
// always non-nil. A settings-backed store follows settings reloads.
func openTokens(cfg config.Config, st *settings.Store) (tokens.Store, func() error, error) {
	switch cfg.Tokens.Backend {
	case config.BackendSQLite:
		db, err := tokens.OpenSQLite(cfg.TokenDBPath())
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		ts, err := tokens.NewSettingsStore(st)
		if err != nil {
			return nil, nil, err
		}
		st.OnReload(func() {
			if err := ts.Reload(); err != nil {
				slog.Error("tokens.reload_failed", "error", err)
			}
		})
		return ts, func() error { return nil }, nil
	}
}
