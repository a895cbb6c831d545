package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/telegram"
)

// handleInfo: /info [query|tutti] [tutti]. The second "tutti" includes
// inactive members.
func (d *Dispatcher) handleInfo(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.MemberRoles) {
		return nil
	}

	opts := domain.SearchOptions{ActiveOnly: req.arg(1) != domain.WildcardQuery}
	found, err := d.members.Search(ctx, req.arg(0), opts)
	if err != nil {
		return fmt.Errorf("search members: %w", err)
	}
	if len(found) == 0 {
		return d.reply(ctx, req, NoMatchesText)
	}

	elevated := d.guard.IsAdmin(ctx, req.caller, false)
	for _, m := range found {
		if err := d.send(ctx, req, memberCard(m, elevated)); err != nil {
			return err
		}
	}
	return d.send(ctx, req, countSummary("Iscritti trovati:", len(found)))
}

func (d *Dispatcher) handleMemberCode(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.MemberRoles) {
		return nil
	}
	if req.arg(0) == "" {
		return d.reply(ctx, req, NothingToSearchText)
	}

	found, err := d.members.Search(ctx, req.arg(0), domain.SearchOptions{})
	if err != nil {
		return fmt.Errorf("search members: %w", err)
	}
	if len(found) == 0 {
		return d.reply(ctx, req, NoMatchesText)
	}
	return d.send(ctx, req, memberCodeList(found))
}

func (d *Dispatcher) handleEnabled(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.AdminRoles) {
		return nil
	}

	enabled, err := d.members.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled members: %w", err)
	}
	if len(enabled) == 0 {
		return d.reply(ctx, req, NoEnabledText)
	}

	var b strings.Builder
	for _, m := range enabled {
		fmt.Fprintf(&b, "%s %s %s\n",
			telegram.Bold(m.FullName()),
			handleText(m),
			telegram.Escape("("+m.Role.DisplayName()+")"))
	}
	b.WriteString(countSummary("Iscritti abilitati:", len(enabled)))
	return d.send(ctx, req, b.String())
}

func (d *Dispatcher) handleStatus(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.SuperAdminRoles) {
		return nil
	}

	members, err := d.stats.CountMembers(ctx)
	if err != nil {
		return fmt.Errorf("count members: %w", err)
	}
	entries, err := d.stats.CountAuditEntries(ctx)
	if err != nil {
		return fmt.Errorf("count audit entries: %w", err)
	}
	enabled, err := d.members.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled members: %w", err)
	}

	backend := d.backend
	if backend == "" {
		backend = "-"
	}
	uptime := d.now().Sub(d.startedAt).Truncate(time.Second)

	var b strings.Builder
	b.WriteString(telegram.Bold("Stato del bot") + "\n")
	b.WriteString(line("Iscritti:", telegram.Escape(fmt.Sprint(members))))
	b.WriteString(line("Abilitati:", telegram.Escape(fmt.Sprint(len(enabled)))))
	b.WriteString(line("Log:", telegram.Escape(fmt.Sprint(entries))))
	b.WriteString(line("Archivio:", telegram.Escape(backend)))
	b.WriteString(line("Attivo da:", telegram.Escape(uptime.String())))
	return d.send(ctx, req, strings.TrimSuffix(b.String(), "\n"))
}

func (d *Dispatcher) handleHelp(ctx context.Context, req *request) error {
	return d.reply(ctx, req, HelpText())
}
