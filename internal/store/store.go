// Package store selects and opens the configured persistence backend.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/config"
	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/logging"
	"tg_roster_bot/internal/store/memstore"
	"tg_roster_bot/internal/store/mongostore"
	"tg_roster_bot/internal/store/pgstore"
	"tg_roster_bot/internal/store/sqlitestore"
)

// Backend bundles the repositories of one opened store with its lifecycle.
type Backend struct {
	Name    string
	Members domain.MemberRepository
	Audit   domain.AuditLog

	ping  func(context.Context) error
	close func(context.Context) error
}

// Openers are overridable for tests.
var (
	openMongo = func(ctx context.Context, cfg config.Config, _ *logrus.Entry) (*Backend, error) {
		manager, err := mongostore.NewManager(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := manager.EnsureBaseIndexes(ctx); err != nil {
			_ = manager.Close(ctx)
			return nil, err
		}
		members, audit := manager.Repositories()
		return &Backend{Members: members, Audit: audit, ping: manager.Ping, close: manager.Close}, nil
	}

	openPostgres = func(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Backend, error) {
		s, err := pgstore.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Members: s, Audit: s.Audit(), ping: s.Ping, close: s.Close}, nil
	}

	openSQLite = func(_ context.Context, cfg config.Config, logger *logrus.Entry) (*Backend, error) {
		s, err := sqlitestore.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Members: s, Audit: s.Audit(), ping: s.Ping, close: s.Close}, nil
	}

	openMemory = func(context.Context, config.Config, *logrus.Entry) (*Backend, error) {
		s := memstore.New()
		return &Backend{Members: s, Audit: s.Audit(), ping: s.Ping, close: s.Close}, nil
	}
)

// Open connects to the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Backend, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	var open func(context.Context, config.Config, *logrus.Entry) (*Backend, error)
	switch cfg.StoreBackend {
	case config.BackendMongo:
		open = openMongo
	case config.BackendPostgres:
		open = openPostgres
	case config.BackendSQLite:
		open = openSQLite
	case config.BackendMemory:
		open = openMemory
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	backend, err := open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	backend.Name = cfg.StoreBackend

	logger.WithFields(logging.Fields{
		"event":   "store_opened",
		"backend": backend.Name,
	}).Info("store ready")

	return backend, nil
}

// Ping checks the backend's connectivity.
func (b *Backend) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if b == nil || b.ping == nil {
		return errors.New("store backend is not initialized")
	}
	return b.ping(ctx)
}

// Close releases the backend.
func (b *Backend) Close(ctx context.Context) error {
	if b == nil || b.close == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return b.close(ctx)
}

// Stats builds a StatsProvider over this backend.
func (b *Backend) Stats() *StatsProvider {
	return NewStatsProvider(b.Members, b.Audit)
}
