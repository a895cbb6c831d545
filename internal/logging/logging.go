// Package logging provides structured logging setup for the bot.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/config"
)

const serviceName = "roster-bot"

var baseLogger *logrus.Entry

// Context carries the per-message fields attached to dispatch logs.
type Context struct {
	UserID  int64
	ChatID  int64
	Event   string
	Command string
}

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Setup configures the global logger using the provided runtime configuration.
// It applies environment-specific formatting, log level, and default fields.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	baseLogger = newEntry(level, cfg.AppEnv)
	return baseLogger, nil
}

// Logger returns the configured base logger, initializing a default one if Setup
// has not been called (useful for early boot errors).
func Logger() *logrus.Entry {
	if baseLogger == nil {
		baseLogger = newEntry(logrus.InfoLevel, config.DefaultAppEnv)
	}
	return baseLogger
}

// Discard returns an entry that drops everything written to it.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// From enriches an existing entry with the non-zero fields of ctx.
func From(entry *logrus.Entry, ctx Context) *logrus.Entry {
	if entry == nil {
		entry = Logger()
	}

	fields := Fields{}
	if ctx.UserID != 0 {
		fields["user_id"] = ctx.UserID
	}
	if ctx.ChatID != 0 {
		fields["chat_id"] = ctx.ChatID
	}
	if event := strings.TrimSpace(ctx.Event); event != "" {
		fields["event"] = event
	}
	if command := strings.TrimSpace(ctx.Command); command != "" {
		fields["command"] = command
	}

	if len(fields) == 0 {
		return entry
	}
	return entry.WithFields(fields)
}

// Info logs an informational message with optional structured fields.
func Info(msg string, fields Fields) {
	withFields(fields).Info(msg)
}

// Error logs an error message with optional structured fields.
func Error(msg string, fields Fields) {
	withFields(fields).Error(msg)
}

func withFields(fields Fields) *logrus.Entry {
	if len(fields) == 0 {
		return Logger()
	}
	return Logger().WithFields(fields)
}

func newEntry(level logrus.Level, appEnv string) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterForEnv(appEnv))

	return logger.WithFields(Fields{
		"service": serviceName,
		"env":     appEnv,
	})
}

func formatterForEnv(appEnv string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func parseLevel(value string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}

	return level, nil
}

// resetLogger clears the cached logger; used in tests.
func resetLogger() {
	baseLogger = nil
}
