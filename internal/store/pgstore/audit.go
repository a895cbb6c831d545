package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg_roster_bot/internal/domain"
)

// AuditLog implements domain.AuditLog over the audit_logs table.
type AuditLog struct {
	pool *pgxpool.Pool
}

func (a *AuditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	if err := a.ready(ctx); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}

	_, err := a.pool.Exec(ctx, `INSERT INTO audit_logs (id, logged_at, username, command) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.LoggedAt.UTC(), entry.Username, entry.Command)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (a *AuditLog) Recent(ctx context.Context, since time.Time, limit int) ([]domain.AuditEntry, error) {
	if err := a.ready(ctx); err != nil {
		return nil, err
	}

	// Newest first inside the subquery so LIMIT keeps the most recent rows.
	sql := `SELECT id, logged_at, username, command FROM (
		SELECT id, logged_at, username, command FROM audit_logs
		WHERE logged_at >= $1 ORDER BY logged_at DESC`
	args := []any{since.UTC()}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}
	sql += `) recent ORDER BY logged_at ASC`

	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.LoggedAt, &e.Username, &e.Command); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.LoggedAt = e.LoggedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	return out, nil
}

func (a *AuditLog) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := a.ready(ctx); err != nil {
		return 0, err
	}

	ct, err := a.pool.Exec(ctx, `DELETE FROM audit_logs WHERE logged_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (a *AuditLog) Count(ctx context.Context) (int64, error) {
	if err := a.ready(ctx); err != nil {
		return 0, err
	}

	var count int64
	if err := a.pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

func (a *AuditLog) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if a == nil || a.pool == nil {
		return errors.New("audit log is not initialized")
	}
	return nil
}

var _ domain.AuditLog = (*AuditLog)(nil)
