package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/rvald/ytmcompanion/internal/tokens"
)

// CommandResponse is the result returned by command handlers.
type CommandResponse struct {
	OK      bool
	Message string
}

// Invocation is a parsed slash command.
type Invocation struct {
	Name    string
	Sub     string
	Options map[string]string
}

// TokenAdmin lists and revokes companion tokens.
type TokenAdmin interface {
	List() ([]tokens.Token, error)
	Revoke(id string) (bool, error)
}

// PairingToggle flips the pairing feature flag.
type PairingToggle interface {
	CompanionAuthorizationEnabled() bool
	SetCompanionAuthorizationEnabled(bool) error
}

// CommandRouter dispatches operator slash commands.
type CommandRouter struct {
	tokens  TokenAdmin
	pairing PairingToggle
}

// NewCommandRouter creates a router backed by the token store and settings.
func NewCommandRouter(tokens TokenAdmin, pairing PairingToggle) *CommandRouter {
	return &CommandRouter{tokens: tokens, pairing: pairing}
}

// Commands returns the slash command definitions for Discord registration.
func (r *CommandRouter) Commands() []SlashCommand {
	sub := func(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        name,
			Description: desc,
			Options:     opts,
		}
	}
	return []SlashCommand{
		{
			Name:        "pairing",
			Description: "Control whether new companion apps may pair",
			Options: []*discordgo.ApplicationCommandOption{
				sub("enable", "Accept one new pairing"),
				sub("disable", "Stop accepting pairings"),
				sub("status", "Show whether pairing is enabled"),
			},
		},
		{
			Name:        "tokens",
			Description: "Manage companion tokens",
			Options: []*discordgo.ApplicationCommandOption{
				sub("list", "List issued tokens"),
				sub("revoke", "Revoke a token",
					&discordgo.ApplicationCommandOption{
						Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Token ID", Required: true,
					}),
			},
		},
	}
}

// Handle runs one invocation.
func (r *CommandRouter) Handle(inv Invocation) CommandResponse {
	switch inv.Name + " " + inv.Sub {
	case "pairing enable":
		return r.HandlePairing(true)
	case "pairing disable":
		return r.HandlePairing(false)
	case "pairing status":
		return r.HandlePairingStatus()
	case "tokens list":
		return r.HandleTokens()
	case "tokens revoke":
		return r.HandleRevoke(inv.Options["id"])
	}
	return CommandResponse{Message: fmt.Sprintf("Unknown command: %s", strings.TrimSpace(inv.Name+" "+inv.Sub))}
}

// HandlePairing enables or disables pairing.
func (r *CommandRouter) HandlePairing(enabled bool) CommandResponse {
	if err := r.pairing.SetCompanionAuthorizationEnabled(enabled); err != nil {
		return CommandResponse{Message: fmt.Sprintf("❌ Could not update settings: %v", err)}
	}
	if enabled {
		return CommandResponse{OK: true, Message: "🔓 Pairing enabled for the next companion app"}
	}
	return CommandResponse{OK: true, Message: "🔒 Pairing disabled"}
}

// HandlePairingStatus reports the pairing flag.
func (r *CommandRouter) HandlePairingStatus() CommandResponse {
	if r.pairing.CompanionAuthorizationEnabled() {
		return CommandResponse{OK: true, Message: "Pairing is **enabled**"}
	}
	return CommandResponse{OK: true, Message: "Pairing is **disabled**"}
}

// HandleTokens lists issued tokens without their values.
func (r *CommandRouter) HandleTokens() CommandResponse {
	list, err := r.tokens.List()
	if err != nil {
		return CommandResponse{Message: fmt.Sprintf("❌ %v", err)}
	}
	if len(list) == 0 {
		return CommandResponse{OK: true, Message: "No tokens issued."}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Tokens** (%d)\n", len(list))
	for _, t := range list {
		fmt.Fprintf(&sb, "• `%s` %s (issued %s)\n", t.ID, t.AppID, t.IssuedAt.UTC().Format(time.RFC3339))
	}
	return CommandResponse{OK: true, Message: sb.String()}
}

// HandleRevoke revokes one token by id.
func (r *CommandRouter) HandleRevoke(id string) CommandResponse {
	if id == "" {
		return CommandResponse{Message: "❌ Token ID is required"}
	}
	ok, err := r.tokens.Revoke(id)
	if err != nil {
		return CommandResponse{Message: fmt.Sprintf("❌ Revoke failed: %v", err)}
	}
	if !ok {
		return CommandResponse{Message: fmt.Sprintf("❌ No token found for `%s`", id)}
	}
	return CommandResponse{OK: true, Message: fmt.Sprintf("🔒 Revoked token `%s`", id)}
}
