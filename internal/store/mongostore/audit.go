package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_roster_bot/internal/domain"
)

type auditCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// AuditLog implements domain.AuditLog over a Mongo collection.
type AuditLog struct {
	coll auditCollection
}

// NewAuditLog wraps coll.
func NewAuditLog(coll auditCollection) *AuditLog {
	return &AuditLog{coll: coll}
}

func (a *AuditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	if err := a.ready(ctx); err != nil {
		return err
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}

	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (a *AuditLog) Recent(ctx context.Context, since time.Time, limit int) ([]domain.AuditEntry, error) {
	if err := a.ready(ctx); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "logged_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := a.coll.Find(ctx, bson.M{"logged_at": bson.M{"$gte": since}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}

	// newest first from the server; callers expect oldest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (a *AuditLog) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := a.ready(ctx); err != nil {
		return 0, err
	}

	res, err := a.coll.DeleteMany(ctx, bson.M{"logged_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	return res.DeletedCount, nil
}

func (a *AuditLog) Count(ctx context.Context) (int64, error) {
	if err := a.ready(ctx); err != nil {
		return 0, err
	}

	count, err := a.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

func (a *AuditLog) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if a == nil || a.coll == nil {
		return errors.New("audit log is not initialized")
	}
	return nil
}

var _ domain.AuditLog = (*AuditLog)(nil)
