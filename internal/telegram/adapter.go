package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/samarth/internal/orchestrator"
	"github.com/user/samarth/internal/render"
	"github.com/user/samarth/internal/types"
)

const maxTelegramMessage = 4096

const busyNotice = "⏳ Still working on your previous question."

// sender is the part of the bot API the adapter needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Adapter relays Telegram chats to orchestrator sessions, one per chat.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	out      sender
	registry *orchestrator.Registry
	wg       sync.WaitGroup
}

// New creates a Telegram adapter.
func New(token string, registry *orchestrator.Registry) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)
	a := newAdapter(bot, registry)
	a.bot = bot
	return a, nil
}

func newAdapter(out sender, registry *orchestrator.Registry) *Adapter {
	return &Adapter{out: out, registry: registry}
}

// Start long-polls for updates until ctx is done, then waits for in-flight
// replies to be delivered.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			a.wg.Wait()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}
	a.await(msg.Chat.ID, a.session(msg).SubmitAsync(ctx, msg.Text))
}

// await delivers a submission's outcome. Rejections and instant answers go
// out inline; anything still in flight is delivered from a goroutine.
func (a *Adapter) await(chatID int64, ch <-chan orchestrator.Outcome) {
	select {
	case o := <-ch:
		a.deliver(chatID, o)
		return
	default:
	}

	a.sendTyping(chatID)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.deliver(chatID, <-ch)
	}()
}

func (a *Adapter) deliver(chatID int64, o orchestrator.Outcome) {
	switch {
	case o.Status == orchestrator.StatusRejected && o.Reason == orchestrator.RejectBusy:
		a.sendPlain(chatID, busyNotice)
	case o.Reply != nil:
		a.sendResponse(chatID, formatReply(*o.Reply))
	}
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := buildSessionKey(msg.From.ID, msg.Chat.ID)

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, greeting(a.registry.ResolveOrCreate(key)))

	case "new":
		sess := a.registry.Reset(key)
		a.sendResponse(chatID, "Started a new conversation.\n\n"+greeting(sess))

	case "sample":
		sess := a.registry.ResolveOrCreate(key)
		n, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
		if err != nil {
			a.sendPlain(chatID, "Usage: /sample N")
			return
		}
		if _, err := sess.UseSample(n - 1); err != nil {
			a.sendPlain(chatID, err.Error())
			return
		}
		a.await(chatID, sess.SubmitInputAsync(ctx))

	case "status":
		sess := a.registry.ResolveOrCreate(key)
		a.sendPlain(chatID, fmt.Sprintf("Session: %s\nMessages: %d\nBackend: %s",
			sess.SessionID(), len(sess.Messages()), render.BadgeText(sess.Connectivity())))

	case "health":
		state := a.registry.Monitor().Probe(ctx)
		a.sendPlain(chatID, render.BadgeText(state))

	default:
		a.sendPlain(chatID, "Unknown command. Available: /start, /new, /sample N, /status, /health")
	}
}

func (a *Adapter) session(msg *tgbotapi.Message) *orchestrator.Session {
	return a.registry.ResolveOrCreate(buildSessionKey(msg.From.ID, msg.Chat.ID))
}

func (a *Adapter) sendTyping(chatID int64) {
	if _, err := a.out.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("send typing action failed", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) sendPlain(chatID int64, text string) {
	if _, err := a.out.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("send message failed", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.DisableWebPagePreview = true
		if _, err := a.out.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.out.Send(msg); err != nil {
				slog.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

func greeting(sess *orchestrator.Session) string {
	var b strings.Builder
	if msgs := sess.Messages(); len(msgs) > 0 {
		b.WriteString(msgs[0].Content)
	}
	if sess.ShowSamples() {
		b.WriteString("\n\n*" + render.SamplesTitle + "*\n")
		for i, q := range sess.Samples() {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		b.WriteString("\nSend /sample N to ask one.")
	}
	return b.String()
}

// formatReply renders a bot message with its citations as Telegram Markdown.
func formatReply(m types.Message) string {
	var b strings.Builder
	b.WriteString(m.Content)
	if len(m.Sources) > 0 {
		b.WriteString("\n\n*" + render.SourcesTitle + "*")
		for _, src := range m.Sources {
			b.WriteString("\n• " + src.Dataset)
			if src.Publisher != "" {
				b.WriteString(" (" + src.Publisher + ")")
			}
			if src.URL != "" {
				b.WriteString("\n  [View Dataset](" + src.URL + ")")
			}
			if src.ResourceID != "" {
				b.WriteString("\n  ID: `" + src.ResourceID + "`")
			}
		}
	}
	return b.String()
}

// splitMessage cuts text into chunks Telegram accepts. Cuts never fall
// inside a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		end := maxTelegramMessage
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		if end == 0 {
			end = maxTelegramMessage
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	if len(text) > 0 {
		parts = append(parts, text)
	}
	return parts
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}
