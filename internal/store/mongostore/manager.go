// Package mongostore persists the roster and the audit log in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_roster_bot/internal/config"
)

// Collection names used by the bot.
const (
	CollectionMembers   = "members"
	CollectionAuditLogs = "audit_logs"
)

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Client returns the underlying mongo.Client when available. Tests using fakes
// may receive nil here.
func (m *Manager) Client() *mongo.Client {
	client, ok := m.client.(*mongo.Client)
	if !ok {
		return nil
	}
	return client
}

// Members returns the members collection handle.
func (m *Manager) Members() *mongo.Collection {
	return m.db.Collection(CollectionMembers)
}

// AuditLogs returns the audit log collection handle.
func (m *Manager) AuditLogs() *mongo.Collection {
	return m.db.Collection(CollectionAuditLogs)
}

// Repositories builds the member repository and audit log over this manager.
func (m *Manager) Repositories() (*MemberRepository, *AuditLog) {
	return NewMemberRepository(m.Members(), m.WithTransaction), NewAuditLog(m.AuditLogs())
}

// EnsureBaseIndexes creates the identity indexes on members and the time
// index on the audit log. Collections are created implicitly.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	memberIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "fiscal_code", Value: 1}},
			Options: options.Index().
				SetName("fiscal_code_unique").
				SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "telegram_id", Value: 1}},
			Options: options.Index().
				SetName("telegram_id_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"telegram_id": bson.M{"$gt": 0}}),
		},
	}

	if _, err := createIndexes(ctx, m.Members(), memberIndexes); err != nil {
		return fmt.Errorf("create members indexes: %w", err)
	}

	auditIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "logged_at", Value: 1}},
			Options: options.Index().SetName("logged_at"),
		},
	}

	if _, err := createIndexes(ctx, m.AuditLogs(), auditIndexes); err != nil {
		return fmt.Errorf("create audit log indexes: %w", err)
	}

	return nil
}

// WithTransaction runs fn inside a session transaction. The deployment must
// be a replica set.
func (m *Manager) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	client := m.Client()
	if client == nil {
		return errors.New("mongo client does not support sessions")
	}

	return client.UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(txCtx mongo.SessionContext) (interface{}, error) {
			return nil, fn(txCtx)
		})
		return err
	})
}

// Ping verifies the primary is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
