package hostbridge

import (
	"crypto/subtle"

	"github.com/rvald/ytmcompanion/internal/protocol"
)

// AuthConfig holds the host authentication settings.
type AuthConfig struct {
	Mode   string // "none" or "secret"
	Secret string // required when Mode == "secret"
}

// AuthConfigFor returns secret auth when secret is set, else none.
func AuthConfigFor(secret string) AuthConfig {
	if secret == "" {
		return AuthConfig{Mode: "none"}
	}
	return AuthConfig{Mode: "secret", Secret: secret}
}

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool
	Reason string // failure reason, empty on success
}

// Authenticate checks the host's credentials against cfg.
func Authenticate(cfg AuthConfig, provided *protocol.ConnectAuth) AuthResult {
	switch cfg.Mode {
	case "none":
		return AuthResult{OK: true}

	case "secret":
		if provided == nil || provided.Token == "" {
			return AuthResult{Reason: "secret_missing"}
		}
		if subtle.ConstantTimeCompare([]byte(cfg.Secret), []byte(provided.Token)) != 1 {
			return AuthResult{Reason: "secret_mismatch"}
		}
		return AuthResult{OK: true}

	default:
		return AuthResult{Reason: "unknown_auth_mode"}
	}
}
