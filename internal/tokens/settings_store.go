package tokens

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// SecretKey is the encrypted settings field holding the token list.
const SecretKey = "remoteControl.tokens"

// Secrets is the slice of the settings store this package needs.
type Secrets interface {
	Secret(key string) (string, error)
	SetSecret(key, value string) error
}

// SettingsStore keeps tokens as one encrypted JSON array inside the
// persistent settings. An in-memory copy serves Validate.
type SettingsStore struct {
	mu      sync.RWMutex
	secrets Secrets
	tokens  []Token
	now     func() time.Time
}

// NewSettingsStore loads the current token list from secrets.
func NewSettingsStore(secrets Secrets) (*SettingsStore, error) {
	s := &SettingsStore{secrets: secrets, now: time.Now}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the token list, e.g. after a CLI revoke.
func (s *SettingsStore) Reload() error {
	raw, err := s.secrets.Secret(SecretKey)
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}

	var list []Token
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return fmt.Errorf("decode tokens: %w", err)
		}
	}

	s.mu.Lock()
	s.tokens = list
	s.mu.Unlock()
	return nil
}

// Issue implements Store.
func (s *SettingsStore) Issue(appID string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok := newToken(appID, s.now())
	next := append(append([]Token(nil), s.tokens...), tok)
	if err := s.persist(next); err != nil {
		return Token{}, err
	}
	s.tokens = next

	slog.Info("tokens.issued", "id", tok.ID, "app", appID)
	return tok, nil
}

// Validate implements Store. Every stored token is compared so the time
// taken does not depend on which one matches.
func (s *SettingsStore) Validate(value string) (string, bool) {
	if value == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	appID, found := "", false
	for _, tok := range s.tokens {
		if Equal(value, tok.Value) && !found {
			appID, found = tok.AppID, true
		}
	}
	return appID, found
}

// List implements Store.
func (s *SettingsStore) List() ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Token, 0, len(s.tokens))
	for _, tok := range s.tokens {
		tok.Value = ""
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

// Revoke implements Store.
func (s *SettingsStore) Revoke(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Token, 0, len(s.tokens))
	for _, tok := range s.tokens {
		if tok.ID != id {
			next = append(next, tok)
		}
	}
	if len(next) == len(s.tokens) {
		return false, nil
	}
	if err := s.persist(next); err != nil {
		return false, err
	}
	s.tokens = next

	slog.Info("tokens.revoked", "id", id)
	return true, nil
}

// persist writes list through the settings store. Caller holds mu.
func (s *SettingsStore) persist(list []Token) error {
	if len(list) == 0 {
		return s.secrets.SetSecret(SecretKey, "")
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	if err := s.secrets.SetSecret(SecretKey, string(data)); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}
