// Package discord relays prefixed channel messages to orchestrator sessions,
// one per user and channel.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/user/samarth/internal/orchestrator"
	"github.com/user/samarth/internal/render"
	"github.com/user/samarth/internal/types"
)

const (
	DefaultPrefix = "!samarth"

	// Discord rejects messages over 2000 characters.
	maxDiscordMessage = 1900
)

type channelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Relay bridges Discord channels to the backend.
type Relay struct {
	session  *discordgo.Session
	out      channelSender
	registry *orchestrator.Registry
	prefix   string

	ctx context.Context
	wg  sync.WaitGroup
}

// New creates a relay for the given bot token. Messages are handled only
// when they start with prefix; an empty prefix uses DefaultPrefix.
func New(token, prefix string, registry *orchestrator.Registry) (*Relay, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	r := newRelay(session, prefix, registry)
	r.session = session
	session.AddHandler(func(_ *discordgo.Session, ev *discordgo.Ready) {
		slog.Info("discord bot online", "username", ev.User.Username, "guilds", len(ev.Guilds))
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		r.handleMessage(m.Message)
	})
	return r, nil
}

func newRelay(out channelSender, prefix string, registry *orchestrator.Registry) *Relay {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Relay{
		out:      out,
		registry: registry,
		prefix:   prefix,
		ctx:      context.Background(),
	}
}

// Run opens the gateway connection and blocks until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.ctx = ctx
	if err := r.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	slog.Info("discord relay started", "prefix", r.prefix)

	<-ctx.Done()
	r.wg.Wait()
	return r.session.Close()
}

func (r *Relay) handleMessage(m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	content := strings.TrimLeft(m.Content, " \t\n")
	if strings.TrimSpace(content) != r.prefix && !strings.HasPrefix(content, r.prefix+" ") {
		return
	}
	// The question is submitted as typed after the prefix and its separator.
	text := strings.TrimPrefix(content[len(r.prefix):], " ")
	key := buildSessionKey(m.Author.ID, m.ChannelID)

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "":
		r.send(m.ChannelID, fmt.Sprintf("Ask a question after `%s`, or use `%s samples`.", r.prefix, r.prefix))
		return
	case "samples":
		sess := r.registry.ResolveOrCreate(key)
		r.send(m.ChannelID, formatSamples(sess.Samples()))
		return
	case "health":
		r.send(m.ChannelID, render.BadgeText(r.registry.Monitor().Probe(r.ctx)))
		return
	case "new":
		r.registry.Reset(key)
		r.send(m.ChannelID, "Started a new conversation.")
		return
	}

	sess := r.registry.ResolveOrCreate(key)
	ch := sess.SubmitAsync(r.ctx, text)
	select {
	case o := <-ch:
		r.deliver(m.ChannelID, o)
		return
	default:
	}

	if err := r.out.ChannelTyping(m.ChannelID); err != nil {
		slog.Debug("discord typing failed", "channel_id", m.ChannelID, "error", err)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.deliver(m.ChannelID, <-ch)
	}()
}

func (r *Relay) deliver(channelID string, o orchestrator.Outcome) {
	switch {
	case o.Status == orchestrator.StatusRejected && o.Reason == orchestrator.RejectBusy:
		r.send(channelID, "⏳ Still working on your previous question.")
	case o.Reply != nil:
		r.send(channelID, formatReply(*o.Reply))
	}
}

func (r *Relay) send(channelID, text string) {
	chunks := splitMessage(text, maxDiscordMessage)
	for i, chunk := range chunks {
		if _, err := r.out.ChannelMessageSend(channelID, chunk); err != nil {
			slog.Error("discord send failed", "channel_id", channelID, "error", err)
			return
		}
		if i < len(chunks)-1 {
			time.Sleep(200 * time.Millisecond)
		}
	}
}

func formatSamples(samples []string) string {
	var b strings.Builder
	b.WriteString("**" + render.SamplesTitle + "**")
	for i, q := range samples {
		fmt.Fprintf(&b, "\n%d. %s", i+1, q)
	}
	return b.String()
}

// formatReply renders a bot message with its citations as Discord markdown.
// Links are wrapped in <> to suppress embeds.
func formatReply(m types.Message) string {
	var b strings.Builder
	b.WriteString(m.Content)
	if len(m.Sources) > 0 {
		b.WriteString("\n\n**" + render.SourcesTitle + "**")
		for _, src := range m.Sources {
			b.WriteString("\n• " + src.Dataset)
			if src.Publisher != "" {
				b.WriteString(" (" + src.Publisher + ")")
			}
			if src.URL != "" {
				b.WriteString("\n  View Dataset: <" + src.URL + ">")
			}
			if src.ResourceID != "" {
				b.WriteString("\n  ID: `" + src.ResourceID + "`")
			}
		}
	}
	return b.String()
}

// splitMessage splits text into chunks of at most maxLength bytes,
// preferring word boundaries and never cutting a UTF-8 sequence.
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxLength {
		split := maxLength
		if i := strings.LastIndexAny(text[:maxLength], " \n"); i > maxLength/2 {
			split = i
		} else {
			for split > 0 && !utf8.RuneStart(text[split]) {
				split--
			}
			if split == 0 {
				split = maxLength
			}
		}
		chunks = append(chunks, text[:split])
		text = strings.TrimLeft(text[split:], " \n")
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

func buildSessionKey(userID, channelID string) types.SessionKey {
	return types.NewSessionKey("discord", userID, channelID)
}
