// Package settings is the persistent configuration store shared with the host:
// plain settings plus encrypted secret fields, kept in one JSON file.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rvald/ytmcompanion/internal/secret"
)

// FileName is the settings file inside the state directory.
const FileName = "settings.json"

// Settings is the root document serialized to disk.
type Settings struct {
	RemoteControl RemoteControl     `json:"remoteControl"`
	Secrets       map[string]string `json:"secrets,omitempty"` // values are aes-gcm sealed
}

// RemoteControl holds the companion server toggles.
type RemoteControl struct {
	// CompanionAuthorizationEnabled gates new pairings. It is switched off
	// after every successful pairing.
	CompanionAuthorizationEnabled bool `json:"companionAuthorizationEnabled"`
}

// Store manages settings.json.
// All methods are concurrency-safe (internal mutex).
type Store struct {
	mu       sync.Mutex
	path     string
	cipher   *secret.Cipher
	data     Settings
	onReload []func()
}

// Open loads settings from dir, creating the directory (0700) when needed.
// A missing file yields default settings.
func Open(dir string, c *secret.Cipher) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("settings: cipher is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	s := &Store{
		path:   filepath.Join(dir, FileName),
		cipher: c,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Snapshot returns a copy of the current settings (secrets still sealed).
func (s *Store) Snapshot() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.data
	out.Secrets = make(map[string]string, len(s.data.Secrets))
	for k, v := range s.data.Secrets {
		out.Secrets[k] = v
	}
	return out
}

// CompanionAuthorizationEnabled reports whether new pairings are accepted.
func (s *Store) CompanionAuthorizationEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.RemoteControl.CompanionAuthorizationEnabled
}

// SetCompanionAuthorizationEnabled toggles pairing and persists.
func (s *Store) SetCompanionAuthorizationEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.RemoteControl.CompanionAuthorizationEnabled = enabled
	return s.save()
}

// Secret returns the decrypted value of a secret field ("" when unset).
func (s *Store) Secret(key string) (string, error) {
	s.mu.Lock()
	sealed := s.data.Secrets[key]
	s.mu.Unlock()

	plain, err := s.cipher.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("secret %q: %w", key, err)
	}
	return plain, nil
}

// SetSecret encrypts value and persists it under key. An empty value
// removes the field.
func (s *Store) SetSecret(key, value string) error {
	sealed, err := s.cipher.Encrypt(value)
	if err != nil {
		return fmt.Errorf("seal %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Secrets == nil {
		s.data.Secrets = make(map[string]string)
	}
	if sealed == "" {
		delete(s.data.Secrets, key)
	} else {
		s.data.Secrets[key] = sealed
	}
	return s.save()
}

// OnReload registers fn to run after every successful Reload.
func (s *Store) OnReload(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Reload re-reads the file, picking up edits made by other processes (CLI).
func (s *Store) Reload() error {
	var fresh Settings
	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		// fresh state
	case err != nil:
		return fmt.Errorf("read %s: %w", FileName, err)
	default:
		if err := json.Unmarshal(data, &fresh); err != nil {
			return fmt.Errorf("unmarshal %s: %w", FileName, err)
		}
	}

	s.mu.Lock()
	s.data = fresh
	hooks := make([]func(), len(s.onReload))
	copy(hooks, s.onReload)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

// save writes settings as JSON using atomic rename. Caller holds mu.
func (s *Store) save() error {
	bytes, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", FileName, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, bytes, 0600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", FileName, err)
	}
	return nil
}
