// Package sqlitestore persists the roster and the audit log in an embedded
// SQLite database through gorm.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tg_roster_bot/internal/logging"
)

// Store owns the gorm handle. It implements domain.MemberRepository; the audit
// log is exposed through Audit.
type Store struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// Open opens (or creates) the database at path. An empty path opens a private
// in-memory database.
func Open(path string, logger *logrus.Entry) (*Store, error) {
	if logger == nil {
		logger = logging.Logger()
	}

	var dsn string
	if path == "" {
		dsn = fmt.Sprintf("file:roster-%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		if err := os.MkdirAll(filepath.Dir(path), fs.ModePerm); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		// WAL journal mode and a 20MB page cache
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=cache_size(-20000)", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&memberRecord{}, &auditRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	logger.WithFields(logging.Fields{
		"event": "sqlite_opened",
		"path":  firstNonEmpty(path, ":memory:"),
	}).Info("sqlite store ready")

	return &Store{db: db, logger: logger}, nil
}

// Audit returns the audit log sharing this database.
func (s *Store) Audit() *AuditLog {
	return &AuditLog{db: s.db}
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if s == nil || s.db == nil {
		return errors.New("sqlite store is not initialized")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store is not initialized")
	}
	return s.db.WithContext(ctx), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
