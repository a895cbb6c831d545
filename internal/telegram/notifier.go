package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/logging"
	"tg_roster_bot/internal/metrics"
)

// ErrDelivery is returned when both a message and its fallback failed.
var ErrDelivery = errors.New("telegram delivery failed")

// FallbackText is sent, once, in place of a message Telegram rejected.
const FallbackText = "Errore del server, riprova più tardi."

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier sends MarkdownV2 text messages to chats.
type Notifier struct {
	sender  messageSender
	metrics *metrics.Metrics
	logger  *logrus.Entry
}

// NewNotifier builds a Notifier over sender. m may be nil.
func NewNotifier(sender messageSender, m *metrics.Metrics, logger *logrus.Entry) *Notifier {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Notifier{sender: sender, metrics: m, logger: logger}
}

// Send delivers text, which must already be escaped, to chatID. When Telegram
// rejects it a single escaped fallback is attempted; Send returns nil if the
// fallback got through and ErrDelivery otherwise.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if n == nil || n.sender == nil {
		return errors.New("notifier is not initialized")
	}

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err == nil {
		n.metrics.Message(metrics.MessageSent)
		return nil
	}

	entry := n.logger.WithFields(logging.Fields{
		"event":   "telegram_send_failed",
		"chat_id": chatID,
	})
	entry.WithError(err).Warn("message rejected, sending fallback")

	_, fallbackErr := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      Escape(FallbackText),
		ParseMode: models.ParseModeMarkdown,
	})
	if fallbackErr == nil {
		n.metrics.Message(metrics.MessageFallback)
		return nil
	}

	n.metrics.Message(metrics.MessageFailed)
	entry.WithError(fallbackErr).Error("fallback message failed")
	return fmt.Errorf("%w: %v", ErrDelivery, fallbackErr)
}
