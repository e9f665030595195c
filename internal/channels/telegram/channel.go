// Package telegram implements the Telegram-style long-poll channel (§6.1).
//
// Grounded on the teacher's internal/channels/telegram/channel.go (telego
// bot construction, UpdatesViaLongPolling with a cancellable poll context,
// clean shutdown by cancel-then-wait), trimmed of the teacher's
// streaming/reaction/forum-topic/group-file-writer machinery — none of which
// this spec's Non-goals leave room for (no streaming output) or the data
// model needs (no forum topics, no DB-backed team store).
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/omegagate/internal/bus"
	"github.com/nextlevelbuilder/omegagate/internal/channels"
)

const (
	longPollServerTimeout = 30 * time.Second
	maxMessageBytes        = 4096
)

// Config is the Telegram-specific subset of config.ChannelConfig.
type Config struct {
	Token     string
	Allowlist []string
}

// Channel is a Telegram long-poll channel adapter.
type Channel struct {
	cfg        Config
	bot        *telego.Bot
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

func New(cfg Config) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Channel{cfg: cfg, bot: bot}, nil
}

func (c *Channel) Name() string { return "telegram" }

// Start begins long polling and returns a channel of IncomingMessage,
// translating telego updates into the gateway's wire type. The adapter adds
// no backoff of its own on poll errors; retrying a failed poll is left to
// telego's long-polling loop.
func (c *Channel) Start(ctx context.Context) (<-chan bus.IncomingMessage, error) {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	out := make(chan bus.IncomingMessage, 64)

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        int(longPollServerTimeout.Seconds()),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("telegram: start long polling: %w", err)
	}

	go func() {
		defer close(c.pollDone)
		defer close(out)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil {
					continue
				}
				msg := c.translate(update.Message)
				select {
				case out <- msg:
				case <-pollCtx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (c *Channel) translate(m *telego.Message) bus.IncomingMessage {
	chatID := fmt.Sprintf("%d", m.Chat.ID)
	senderID := chatID
	displayName := ""
	if m.From != nil {
		senderID = fmt.Sprintf("%d", m.From.ID)
		displayName = m.From.FirstName
	}
	var replyTo string
	if m.ReplyToMessage != nil {
		replyTo = fmt.Sprintf("%d", m.ReplyToMessage.MessageID)
	}
	return bus.IncomingMessage{
		ID:          fmt.Sprintf("%d", m.MessageID),
		Channel:     c.Name(),
		SenderID:    senderID,
		DisplayName: displayName,
		Text:        m.Text,
		Timestamp:   time.Unix(int64(m.Date), 0).UTC(),
		ReplyToID:   replyTo,
		ReplyTarget: chatID,
		IsGroup:     m.Chat.Type == "group" || m.Chat.Type == "supergroup",
	}
}

// Send delivers text to msg.ReplyTarget, chunked at 4096 bytes, retrying a
// markdown parse failure as plain text once (§6.1).
func (c *Channel) Send(ctx context.Context, msg bus.OutgoingMessage) error {
	chatID, err := parseChatID(msg.ReplyTarget)
	if err != nil {
		return fmt.Errorf("telegram: invalid reply target %q: %w", msg.ReplyTarget, err)
	}
	for _, chunk := range channels.SplitMessage(msg.Text, maxMessageBytes) {
		params := &telego.SendMessageParams{
			ChatID:    telego.ChatID{ID: chatID},
			Text:      chunk,
			ParseMode: telego.ModeMarkdown,
		}
		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			slog.Warn("telegram: markdown send failed, retrying as plain text", "error", err)
			params.ParseMode = ""
			if _, err2 := c.bot.SendMessage(ctx, params); err2 != nil {
				return fmt.Errorf("telegram: send: %w", err2)
			}
		}
	}
	return nil
}

func (c *Channel) SendTyping(ctx context.Context, target string) error {
	chatID, err := parseChatID(target)
	if err != nil {
		return err
	}
	return c.bot.SendChatAction(ctx, &telego.SendChatActionParams{
		ChatID: telego.ChatID{ID: chatID},
		Action: telego.ChatActionTyping,
	})
}

func (c *Channel) Stop(ctx context.Context) error {
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram: poll goroutine did not exit within timeout")
		}
	}
	return nil
}

func parseChatID(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	return id, err
}

var _ channels.Channel = (*Channel)(nil)
