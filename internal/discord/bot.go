// Package discord lets an operator approve companion pairings and manage
// tokens from a Discord channel.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// BotConfig holds the configuration for the Discord bot.
type BotConfig struct {
	Token     string
	ChannelID string // where confirmation prompts are posted
	GuildID   string // slash command scope; empty registers globally
}

// Bot wraps a discordgo session. It owns the pairing Opener and, when a
// router is set, the operator slash commands.
type Bot struct {
	config  BotConfig
	session *discordgo.Session
	opener  *Opener
	router  *CommandRouter
}

// NewBot validates config and creates a new Bot.
func NewBot(config BotConfig) (*Bot, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	if config.ChannelID == "" {
		return nil, fmt.Errorf("discord channel id is required")
	}
	b := &Bot{config: config}
	b.opener = NewOpener(sessionMessenger{b: b}, config.ChannelID)
	return b, nil
}

// Opener returns the confirmation surface factory backed by this bot.
func (b *Bot) Opener() *Opener { return b.opener }

// SetRouter enables the operator slash commands.
func (b *Bot) SetRouter(router *CommandRouter) {
	b.router = router
}

// Start connects to Discord, registers slash commands and installs the
// interaction and message-delete handlers.
func (b *Bot) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + b.config.Token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	b.session = session
	b.session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
		b.opener.HandleMessageDelete(m.ID)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	slog.Info("discord.connected", "user", b.session.State.User.Username, "channel", b.config.ChannelID)

	if b.router != nil {
		for _, cmd := range toApplicationCommands(b.router.Commands()) {
			if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.config.GuildID, cmd); err != nil {
				slog.Warn("discord.command_register_failed", "command", cmd.Name, "error", err)
			}
		}
	}
	return nil
}

// Stop closes the Discord session.
func (b *Bot) Stop() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		b.opener.HandleComponent(i.Interaction)
	case discordgo.InteractionApplicationCommand:
		if b.router == nil {
			return
		}
		resp := b.router.Handle(commandInvocation(i.ApplicationCommandData()))
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: resp.Message,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		if err != nil {
			slog.Warn("discord.respond_failed", "error", err)
		}
	}
}

func commandInvocation(data discordgo.ApplicationCommandInteractionData) Invocation {
	inv := Invocation{Name: data.Name, Options: map[string]string{}}
	opts := data.Options
	// Subcommands carry their own options one level down.
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		inv.Sub = opts[0].Name
		opts = opts[0].Options
	}
	for _, opt := range opts {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			inv.Options[opt.Name] = opt.StringValue()
		}
	}
	return inv
}

// SlashCommand defines a Discord slash command with options.
type SlashCommand struct {
	Name        string
	Description string
	Options     []*discordgo.ApplicationCommandOption
}

func toApplicationCommands(cmds []SlashCommand) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, len(cmds))
	for i, cmd := range cmds {
		out[i] = &discordgo.ApplicationCommand{
			Name:        cmd.Name,
			Description: cmd.Description,
			Options:     cmd.Options,
		}
	}
	return out
}

// sessionMessenger sends through the bot's live session.
type sessionMessenger struct{ b *Bot }

func (m sessionMessenger) Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	if m.b.session == nil {
		return nil, fmt.Errorf("discord: bot not started")
	}
	return m.b.session.ChannelMessageSendComplex(channelID, msg)
}

func (m sessionMessenger) Edit(edit *discordgo.MessageEdit) error {
	if m.b.session == nil {
		return fmt.Errorf("discord: bot not started")
	}
	_, err := m.b.session.ChannelMessageEditComplex(edit)
	return err
}

func (m sessionMessenger) Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	if m.b.session == nil {
		return fmt.Errorf("discord: bot not started")
	}
	return m.b.session.InteractionRespond(i, resp)
}
