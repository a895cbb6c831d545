package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tg_roster_bot/internal/domain"
)

type auditRecord struct {
	ID       string    `gorm:"primaryKey;size:36"`
	LoggedAt time.Time `gorm:"index"`
	Username string
	Command  string
}

func (auditRecord) TableName() string {
	return "audit_logs"
}

// AuditLog implements domain.AuditLog. Timestamps are stored in UTC so text
// comparison in SQLite matches chronological order.
type AuditLog struct {
	db *gorm.DB
}

func (a *AuditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	db, err := a.ready(ctx)
	if err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now()
	}

	rec := auditRecord{ID: entry.ID, LoggedAt: entry.LoggedAt.UTC(), Username: entry.Username, Command: entry.Command}
	if err := db.Create(&rec).Error; err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (a *AuditLog) Recent(ctx context.Context, since time.Time, limit int) ([]domain.AuditEntry, error) {
	db, err := a.ready(ctx)
	if err != nil {
		return nil, err
	}

	q := db.Where("logged_at >= ?", since.UTC()).Order("logged_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []auditRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, len(records))
	for i, rec := range records {
		entries[len(records)-1-i] = domain.AuditEntry{
			ID:       rec.ID,
			LoggedAt: rec.LoggedAt,
			Username: rec.Username,
			Command:  rec.Command,
		}
	}
	return entries, nil
}

func (a *AuditLog) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := a.ready(ctx)
	if err != nil {
		return 0, err
	}

	res := db.Where("logged_at < ?", cutoff.UTC()).Delete(&auditRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge audit entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (a *AuditLog) Count(ctx context.Context) (int64, error) {
	db, err := a.ready(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&auditRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

func (a *AuditLog) ready(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if a == nil || a.db == nil {
		return nil, errors.New("audit log is not initialized")
	}
	return a.db.WithContext(ctx), nil
}

var _ domain.AuditLog = (*AuditLog)(nil)
