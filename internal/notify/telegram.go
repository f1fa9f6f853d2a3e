package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the part of *tgbotapi.BotAPI the notifier needs
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// MessageLog persists the last message sent per notification ID so that
// replacement keeps working across restarts
type MessageLog interface {
	LastMessage(ctx context.Context, notificationID string) (chatID int64, messageID int, err error)
	RememberMessage(ctx context.Context, notificationID string, chatID int64, messageID int) error
}

// Telegram delivers notifications as chat messages. Re-delivering under an ID
// deletes the previous message for that ID so only the latest stays visible.
type Telegram struct {
	api     sender
	chatID  int64
	enabled bool
	log     MessageLog // optional
	logger  *slog.Logger

	mu       sync.Mutex
	messages map[string]int // notification ID -> Telegram message ID
}

// NewTelegram connects to the Bot API with token
func NewTelegram(token string, chatID int64, enabled bool, messages MessageLog, logger *slog.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is not set")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	logger.Info("authorized on telegram", "account", api.Self.UserName)
	return newTelegram(api, chatID, enabled, messages, logger), nil
}

func newTelegram(api sender, chatID int64, enabled bool, messages MessageLog, logger *slog.Logger) *Telegram {
	return &Telegram{
		api:      api,
		chatID:   chatID,
		enabled:  enabled,
		log:      messages,
		logger:   logger.With("component", "telegram"),
		messages: make(map[string]int),
	}
}

// Permitted is false when notifications are disabled or no chat is configured
func (t *Telegram) Permitted() bool {
	return t.enabled && t.chatID != 0
}

// Deliver sends n to the configured chat
func (t *Telegram) Deliver(ctx context.Context, n Notification) (Outcome, error) {
	if !t.Permitted() {
		return Suppressed, nil
	}
	if err := ctx.Err(); err != nil {
		return Suppressed, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if previous, ok := t.previous(ctx, n.ID); ok {
		// The old message may already be gone (deleted by the user, older than 48h).
		if _, err := t.api.Request(tgbotapi.NewDeleteMessage(t.chatID, previous)); err != nil {
			t.logger.Debug("could not delete previous message", "id", n.ID, "message_id", previous, "error", err)
		}
		delete(t.messages, n.ID)
	}

	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("*%s*\n%s", escapeMarkdown(n.Title), escapeMarkdown(n.Body)))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	sent, err := t.api.Send(msg)
	if err != nil {
		return Suppressed, fmt.Errorf("send notification %s: %w", n.ID, err)
	}
	t.messages[n.ID] = sent.MessageID
	if t.log != nil {
		if err := t.log.RememberMessage(ctx, n.ID, t.chatID, sent.MessageID); err != nil {
			t.logger.Warn("could not persist message id", "id", n.ID, "error", err)
		}
	}
	t.logger.Info("notification sent", "id", n.ID, "message_id", sent.MessageID)
	return Delivered, nil
}

// previous finds the message currently shown for id in the configured chat
func (t *Telegram) previous(ctx context.Context, id string) (int, bool) {
	if msgID, ok := t.messages[id]; ok {
		return msgID, true
	}
	if t.log == nil {
		return 0, false
	}
	chatID, msgID, err := t.log.LastMessage(ctx, id)
	if err != nil || chatID != t.chatID {
		return 0, false
	}
	return msgID, true
}

func escapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}
