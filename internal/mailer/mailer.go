// Package mailer delivers outbound email over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"tg_roster_bot/internal/config"
	"tg_roster_bot/internal/logging"
)

// Message is one email with a plain text body and an HTML alternative.
type Message struct {
	Subject string
	Text    string
	HTML    string
	To      []string
}

type mailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

var newMailClient = func(cfg config.MailConfig) (mailClient, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(cfg.TLS)),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return mail.NewClient(cfg.Host, opts...)
}

// Mailer sends messages from the configured sender address.
type Mailer struct {
	client mailClient
	from   string
	logger *logrus.Entry
}

// New builds a Mailer from cfg. It fails when no SMTP host is configured.
func New(cfg config.MailConfig, logger *logrus.Entry) (*Mailer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mail host is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client, err := newMailClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("init mail client: %w", err)
	}

	return &Mailer{
		client: client,
		from:   cfg.From,
		logger: logger,
	}, nil
}

// Send delivers msg to every recipient. Failures are returned, never dropped.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("mailer is not initialized")
	}

	built, err := buildMessage(m.from, msg)
	if err != nil {
		return err
	}

	if err := m.client.DialAndSendWithContext(ctx, built); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	m.logger.WithFields(logging.Fields{
		"event":      "mail_sent",
		"recipients": len(msg.To),
	}).Info("email delivered")
	return nil
}

func buildMessage(from string, msg Message) (*mail.Msg, error) {
	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		if to = strings.TrimSpace(to); to != "" {
			recipients = append(recipients, to)
		}
	}
	if len(recipients) == 0 {
		return nil, errors.New("build mail: at least one recipient is required")
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("build mail: sender: %w", err)
	}
	if err := m.To(recipients...); err != nil {
		return nil, fmt.Errorf("build mail: recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

// SplitRecipients splits a semicolon separated address field.
func SplitRecipients(field string) []string {
	parts := strings.Split(field, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func tlsPolicy(value string) mail.TLSPolicy {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}
