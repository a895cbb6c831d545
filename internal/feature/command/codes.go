package command

import (
	"context"
	"fmt"
	"strings"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/feature/access"
	"tg_roster_bot/internal/feature/user"
	"tg_roster_bot/internal/telegram"
)

func (d *Dispatcher) handleRegister(ctx context.Context, req *request) error {
	code := req.arg(0)
	if code == "" {
		return d.reply(ctx, req, MissingCodeText)
	}
	if req.caller.UserID == 0 {
		req.rejected = true
		return d.reply(ctx, req, access.NotAuthorizedText)
	}

	outcome, m, err := d.registrar.Register(ctx, code, req.caller.UserID, req.handle)
	if err != nil {
		return err
	}

	switch outcome {
	case user.Registered:
		return d.reply(ctx, req, "Complimenti, questo account è stato registrato per "+m.FullName())
	case user.CallerBound:
		req.rejected = true
		return d.reply(ctx, req, "Questo account telegram è già registrato per "+m.FullName())
	case user.TargetBound:
		req.rejected = true
		return d.reply(ctx, req, m.FullName()+" ha già un account telegram associato")
	default:
		req.rejected = true
		return d.reply(ctx, req, InvalidCodeText)
	}
}

// handleGenerateCodes issues codes to eligible members: all of them with
// "tutti", those matching a query, or by default those without a code.
func (d *Dispatcher) handleGenerateCodes(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.AdminRoles) {
		return nil
	}

	var (
		targets []domain.Member
		err     error
	)
	switch q := req.arg(0); {
	case q == domain.WildcardQuery:
		targets, err = d.members.ListCodeEligible(ctx, false)
	case q != "":
		var found []domain.Member
		found, err = d.members.Search(ctx, q, domain.SearchOptions{})
		for _, m := range found {
			if m.CodeEligible {
				targets = append(targets, m)
			}
		}
	default:
		targets, err = d.members.ListCodeEligible(ctx, true)
	}
	if err != nil {
		return fmt.Errorf("select code targets: %w", err)
	}

	for _, m := range targets {
		code, err := d.newCode()
		if err != nil {
			return err
		}
		if err := d.members.Update(ctx, m.FiscalCode, domain.SetAuthCode(code)); err != nil {
			return fmt.Errorf("store auth code for %s: %w", m.MemberCode, err)
		}
		text := telegram.Escape("Authcode per "+m.FullName()+": ") + "*" + telegram.Escape(code) + "*"
		if err := d.send(ctx, req, text); err != nil {
			return err
		}
	}

	return d.send(ctx, req, telegram.Escape("Aggiornati ")+"*"+telegram.Escape(fmt.Sprint(len(targets)))+"*"+telegram.Escape(" authcode"))
}

func (d *Dispatcher) handleSendCode(ctx context.Context, req *request) error {
	id := req.arg(0)
	if id == "" {
		return d.reply(ctx, req, MissingRecipientText)
	}
	if d.mailer == nil {
		return d.reply(ctx, req, MailDisabledText)
	}

	matches, err := d.members.FindByIdentifier(ctx, id)
	if err != nil {
		return fmt.Errorf("find member %q: %w", id, err)
	}
	if len(matches) != 1 {
		return d.reply(ctx, req, RecipientNotFoundText)
	}

	m := matches[0]
	if strings.TrimSpace(m.AuthCode) == "" || strings.TrimSpace(m.Email) == "" {
		return d.reply(ctx, req, RecipientNotFoundText)
	}

	msg := authCodeEmail(m, d.orgName, d.botUsername)
	if len(msg.To) == 0 {
		return d.reply(ctx, req, RecipientNotFoundText)
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("mail auth code to %s: %w", m.MemberCode, err)
	}
	return d.reply(ctx, req, MailSentText)
}
