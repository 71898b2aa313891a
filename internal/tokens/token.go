// Package tokens issues and validates the long-lived bearer tokens handed to
// paired companion applications.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Token is one issued credential. Immutable once issued.
type Token struct {
	ID       string    `json:"id"`
	Value    string    `json:"value,omitempty"`
	AppID    string    `json:"appId"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Store persists tokens. Several tokens per app are allowed.
type Store interface {
	// Issue creates and persists a token bound to appID.
	Issue(appID string) (Token, error)
	// Validate returns the owning appID. Unknown, empty or malformed values
	// report ok=false; it never errors.
	Validate(value string) (appID string, ok bool)
	// List returns issued tokens, newest first. Values are omitted.
	List() ([]Token, error)
	// Revoke deletes a token by id and reports whether it existed.
	Revoke(id string) (bool, error)
}

// GenerateValue returns a 32-byte cryptographically random token encoded as
// base64url (no padding).
func GenerateValue() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("tokens: crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Equal compares two token values in constant time.
func Equal(provided, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func newToken(appID string, now time.Time) Token {
	return Token{
		ID:       uuid.NewString(),
		Value:    GenerateValue(),
		AppID:    appID,
		IssuedAt: now.UTC(),
	}
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
