package telegram

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
)

// Placeholder is the escaped glyph shown for absent values.
const Placeholder = `\-`

// Escape prefixes every MarkdownV2 reserved character in s with a backslash,
// the backslash itself included. Escaping an already escaped string escapes
// it again.
func Escape(s string) string {
	return bot.EscapeMarkdown(strings.ReplaceAll(s, `\`, `\\`))
}

// PlaceholderHandle is the handle recorded for an account without a
// Telegram username.
func PlaceholderHandle(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// Value escapes s, mapping a blank value to Placeholder.
func Value(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return Escape(s)
}

// Bold renders label in bold; label is escaped.
func Bold(label string) string {
	return "*" + Escape(label) + "*"
}
