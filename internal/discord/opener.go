package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/rvald/ytmcompanion/internal/pairing"
)

const customIDPrefix = "ytmc"

// Messenger is the slice of the Discord API the opener needs.
type Messenger interface {
	Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
	Edit(edit *discordgo.MessageEdit) error
	Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
}

// Opener posts one message with Approve/Deny buttons per pairing session.
type Opener struct {
	api       Messenger
	channelID string

	mu       sync.Mutex
	surfaces map[string]*surface // by session id
}

// NewOpener creates an opener posting to channelID.
func NewOpener(api Messenger, channelID string) *Opener {
	return &Opener{api: api, channelID: channelID, surfaces: make(map[string]*surface)}
}

// Open implements pairing.Opener.
func (o *Opener) Open(ctx context.Context, p pairing.Prompt) (pairing.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg, err := o.api.Send(o.channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{promptEmbed(p)},
		Components: buttons(p.SessionID),
	})
	if err != nil {
		return nil, fmt.Errorf("post pairing prompt: %w", err)
	}

	s := &surface{
		opener:    o,
		sessionID: p.SessionID,
		appID:     p.AppID,
		messageID: msg.ID,
		decisions: make(chan Decision, 1),
	}
	o.mu.Lock()
	o.surfaces[p.SessionID] = s
	o.mu.Unlock()

	slog.Debug("discord.prompt_posted", "session", p.SessionID, "message", msg.ID)
	return s, nil
}

// Decision aliases the pairing decision for callers of this package.
type Decision = pairing.Decision

// HandleComponent resolves a button press. Presses for sessions that are
// already gone get an ephemeral notice.
func (o *Opener) HandleComponent(i *discordgo.Interaction) {
	decision, sessionID, ok := parseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	o.mu.Lock()
	s := o.surfaces[sessionID]
	o.mu.Unlock()

	if s == nil || !s.decide(decision) {
		o.respond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "This pairing request is no longer pending.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		return
	}

	slog.Info("discord.decision", "session", sessionID, "decision", decision, "by", interactionUser(i))
	empty := []discordgo.MessageComponent{}
	o.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    fmt.Sprintf("%s by %s", label(decision), interactionUser(i)),
			Components: empty,
		},
	})
}

// HandleMessageDelete treats a deleted prompt as a closed window.
func (o *Opener) HandleMessageDelete(messageID string) {
	o.mu.Lock()
	var s *surface
	for _, candidate := range o.surfaces {
		if candidate.messageID == messageID {
			s = candidate
			break
		}
	}
	o.mu.Unlock()

	if s != nil {
		s.markDeleted()
	}
}

// Pending returns the number of prompts still awaiting Close.
func (o *Opener) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.surfaces)
}

func (o *Opener) respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) {
	if err := o.api.Respond(i, resp); err != nil {
		slog.Warn("discord.respond_failed", "error", err)
	}
}

func (o *Opener) forget(sessionID string) {
	o.mu.Lock()
	delete(o.surfaces, sessionID)
	o.mu.Unlock()
}

type surface struct {
	opener    *Opener
	sessionID string
	appID     string
	messageID string

	decisions chan Decision

	mu       sync.Mutex
	answered bool
	decided  *Decision
	deleted  bool
	closed   bool
}

func (s *surface) Decisions() <-chan Decision { return s.decisions }

// decide delivers the first answer. Later presses are rejected.
func (s *surface) decide(d Decision) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answered || s.closed {
		return false
	}
	s.answered = true
	s.decided = &d
	s.decisions <- d
	return true
}

func (s *surface) markDeleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = true
	if !s.answered && !s.closed {
		s.answered = true
		close(s.decisions)
	}
}

// Close strips the buttons and records how the prompt ended. A deleted
// message is left alone.
func (s *surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	deleted := s.deleted
	status := "Expired"
	if s.decided != nil {
		status = label(*s.decided)
	}
	s.mu.Unlock()

	s.opener.forget(s.sessionID)
	if deleted {
		return nil
	}

	content := fmt.Sprintf("Pairing request from **%s**: %s", s.appID, status)
	empty := []discordgo.MessageComponent{}
	noEmbeds := []*discordgo.MessageEmbed{}
	edit := discordgo.NewMessageEdit(s.opener.channelID, s.messageID)
	edit.Content = &content
	edit.Components = &empty
	edit.Embeds = &noEmbeds
	return s.opener.api.Edit(edit)
}

func promptEmbed(p pairing.Prompt) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Companion pairing request",
		Description: fmt.Sprintf("**%s** wants remote control access.", p.AppID),
		Color:       0xff0000,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Code", Value: fmt.Sprintf("`%s`", p.Code), Inline: true},
			{Name: "Expires", Value: fmt.Sprintf("<t:%d:R>", p.Deadline.Unix()), Inline: true},
		},
	}
}

func buttons(sessionID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Approve", Style: discordgo.SuccessButton, CustomID: customID(pairing.Approve, sessionID)},
			discordgo.Button{Label: "Deny", Style: discordgo.DangerButton, CustomID: customID(pairing.Deny, sessionID)},
		}},
	}
}

func customID(d Decision, sessionID string) string {
	return customIDPrefix + ":" + d.String() + ":" + sessionID
}

func parseCustomID(id string) (Decision, string, bool) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[2] == "" {
		return pairing.Deny, "", false
	}
	switch parts[1] {
	case pairing.Approve.String():
		return pairing.Approve, parts[2], true
	case pairing.Deny.String():
		return pairing.Deny, parts[2], true
	}
	return pairing.Deny, "", false
}

func interactionUser(i *discordgo.Interaction) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.Username
	case i.User != nil:
		return i.User.Username
	}
	return "unknown"
}

func label(d Decision) string {
	if d == pairing.Approve {
		return "Approved"
	}
	return "Denied"
}
