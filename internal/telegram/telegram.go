// Package telegram hosts the Telegram client, the inbound update adapter and
// the outbound notifier.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/config"
	"tg_roster_bot/internal/logging"
)

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Incoming is a text message addressed to the bot.
type Incoming struct {
	UserID   int64
	ChatID   int64
	Username string
	Text     string
}

// Handle is the chat handle recorded for the sender: the username, or a
// user_<id> placeholder when the account has none.
func (in Incoming) Handle() string {
	if in.Username != "" {
		return in.Username
	}
	if in.UserID == 0 {
		return ""
	}
	return PlaceholderHandle(in.UserID)
}

// UpdateHandler consumes inbound text messages.
type UpdateHandler func(ctx context.Context, in Incoming)

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	bot     botAPI
	logger  *logrus.Entry
	handler UpdateHandler
}

// NewClient initializes the Telegram bot. Updates received by polling are
// forwarded to the handler installed with SetHandler.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	c := &Client{logger: logger}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(c.defaultHandler()),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	c.bot = tgBot
	return c, nil
}

// SetHandler installs the consumer of inbound messages.
func (c *Client) SetHandler(h UpdateHandler) {
	c.handler = h
}

// Start drops any registered webhook and receives updates via long polling
// until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := c.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		c.logger.WithField("event", "telegram_webhook_delete_failed").WithError(err).Warn("could not delete webhook before polling")
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// RegisterWebhook points Telegram at url, signing deliveries with secret.
func (c *Client) RegisterWebhook(ctx context.Context, url, secret string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if c == nil || c.bot == nil {
		return errors.New("telegram client is not initialized")
	}

	if _, err := c.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: defaultAllowedUpdates,
	}); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	c.logger.WithFields(logging.Fields{
		"event": "telegram_webhook_registered",
		"url":   url,
	}).Info("telegram webhook registered")
	return nil
}

// SendMessage forwards to the Bot API.
func (c *Client) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if c == nil || c.bot == nil {
		return nil, errors.New("telegram client is not initialized")
	}
	return c.bot.SendMessage(ctx, params)
}

// HandleUpdate logs the update and forwards text messages to the handler.
// Both polling and the webhook endpoint feed this method.
func (c *Client) HandleUpdate(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}

	meta := extractUpdateMeta(update)

	fields := logging.Fields{
		"event":       "telegram_update",
		"update_type": meta.updateType,
	}
	if meta.userID != 0 {
		fields["user_id"] = meta.userID
	}
	if meta.chatID != 0 {
		fields["chat_id"] = meta.chatID
	}

	entry := c.logger.WithFields(fields)
	entry.Info("telegram update received")
	if meta.text != "" {
		entry.WithField("text", meta.text).Debug("telegram update text")
	}

	in, ok := IncomingFromUpdate(update)
	if !ok || c.handler == nil {
		return
	}
	c.handler(ctx, in)
}

func (c *Client) defaultHandler() bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		c.HandleUpdate(ctx, update)
	}
}

// IncomingFromUpdate extracts a text message; ok is false when the update
// carries no text.
func IncomingFromUpdate(update *models.Update) (Incoming, bool) {
	if update == nil || update.Message == nil {
		return Incoming{}, false
	}

	msg := update.Message
	if strings.TrimSpace(msg.Text) == "" {
		return Incoming{}, false
	}

	in := Incoming{
		ChatID: chatID(&msg.Chat),
		Text:   msg.Text,
	}
	if msg.From != nil {
		in.UserID = msg.From.ID
		in.Username = msg.From.Username
	}
	return in, true
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     chatID(&update.EditedMessage.Chat),
			text:       strings.TrimSpace(update.EditedMessage.Text),
			updateType: "edited_message",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}
