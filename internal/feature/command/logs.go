package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/logging"
	"tg_roster_bot/internal/telegram"
)

// windowDays reads the optional day-window argument, falling back to the
// default when it is missing or not a positive integer. Larger windows are
// capped at maxLogDays.
func windowDays(req *request) int {
	days, err := strconv.Atoi(req.arg(0))
	switch {
	case errors.Is(err, strconv.ErrRange) && days > 0:
		return maxLogDays
	case err != nil || days <= 0:
		return defaultLogDays
	case days > maxLogDays:
		return maxLogDays
	}
	return days
}

func (d *Dispatcher) handleLog(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.SuperAdminRoles) {
		return nil
	}

	days := windowDays(req)
	since := d.now().AddDate(0, 0, -days)
	entries, err := d.auditLog.Recent(ctx, since, maxLogEntries)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	if len(entries) == 0 {
		return d.reply(ctx, req, fmt.Sprintf("Nessun log negli ultimi %d giorni", days))
	}

	for _, e := range entries {
		if err := d.send(ctx, req, auditLine(e)); err != nil {
			return err
		}
	}
	return nil
}

// handlePurgeLog removes entries older than the window; newer ones survive.
func (d *Dispatcher) handlePurgeLog(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.SuperAdminRoles) {
		return nil
	}

	days := windowDays(req)
	cutoff := d.now().AddDate(0, 0, -days)
	purged, err := d.auditLog.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge audit log: %w", err)
	}

	d.metrics.AuditPurged(purged)
	d.logger.WithFields(logging.Fields{
		"event":  "audit_purged",
		"purged": purged,
		"days":   days,
	}).Info("purged audit log")

	return d.send(ctx, req, telegram.Escape("Eliminati ")+"*"+telegram.Escape(fmt.Sprint(purged))+"*"+
		telegram.Escape(fmt.Sprintf(" log più vecchi di %d giorni", days)))
}

func (d *Dispatcher) handleRefresh(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.AdminRoles) {
		return nil
	}
	if d.importer == nil {
		return d.reply(ctx, req, ImportDisabledText)
	}

	if err := d.reply(ctx, req, ImportStartedText); err != nil {
		return err
	}

	result, err := d.importer.Import(ctx)
	if err != nil {
		return fmt.Errorf("refresh roster: %w", err)
	}

	text := fmt.Sprintf("Ho inserito %d nuovi iscritti e aggiornato gli altri %d", result.Inserted, result.Updated)
	if result.Rejected > 0 {
		text += fmt.Sprintf("\nRighe scartate perché non valide: %d", result.Rejected)
	}
	return d.reply(ctx, req, text)
}
