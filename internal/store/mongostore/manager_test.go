package mongostore

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_roster_bot/internal/config"
)

var testConfig = config.Config{MongoURI: "mongodb://stub", MongoDB: "roster_bot_test"}

func TestNewManagerConnectsAndExposesCollections(t *testing.T) {
	fake := newFakeMongoClient(t)
	restore := stubConnect(fake, nil)
	t.Cleanup(restore)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	manager, err := NewManager(ctx, testConfig)
	if err != nil {
		t.Fatalf("expected manager to initialize, got error: %v", err)
	}

	if manager.Database().Name() != testConfig.MongoDB {
		t.Fatalf("expected database %s, got %s", testConfig.MongoDB, manager.Database().Name())
	}
	if len(fake.databaseRequests) != 1 || fake.databaseRequests[0] != testConfig.MongoDB {
		t.Fatalf("expected database request for %s, got %v", testConfig.MongoDB, fake.databaseRequests)
	}
	if manager.Members().Name() != CollectionMembers {
		t.Fatalf("expected members collection %s, got %s", CollectionMembers, manager.Members().Name())
	}
	if manager.AuditLogs().Name() != CollectionAuditLogs {
		t.Fatalf("expected audit collection %s, got %s", CollectionAuditLogs, manager.AuditLogs().Name())
	}

	members, audit := manager.Repositories()
	if members == nil || audit == nil {
		t.Fatalf("expected repositories")
	}

	if err := manager.Close(ctx); err != nil {
		t.Fatalf("expected clean disconnect, got %v", err)
	}
	if !fake.disconnectCalled {
		t.Fatalf("expected disconnect to be called")
	}
}

func TestNewManagerFailsOnPingAndCleansUp(t *testing.T) {
	fake := newFakeMongoClient(t)
	fake.pingErr = errors.New("ping failed")

	restore := stubConnect(fake, nil)
	t.Cleanup(restore)

	if _, err := NewManager(context.Background(), testConfig); err == nil {
		t.Fatalf("expected ping error")
	}
	if !fake.disconnectCalled {
		t.Fatalf("expected disconnect after ping failure")
	}
}

func TestNewManagerPropagatesConnectError(t *testing.T) {
	restore := stubConnect(nil, errors.New("connect failed"))
	t.Cleanup(restore)

	if _, err := NewManager(context.Background(), testConfig); err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestManagerRequiresContext(t *testing.T) {
	if _, err := NewManager(nil, testConfig); err == nil {
		t.Fatalf("expected error for nil context")
	}

	fake := newFakeMongoClient(t)
	restore := stubConnect(fake, nil)
	t.Cleanup(restore)

	manager, err := NewManager(context.Background(), testConfig)
	if err != nil {
		t.Fatalf("expected manager to initialize, got error: %v", err)
	}

	if err := manager.Close(nil); err == nil {
		t.Fatalf("expected Close to reject nil context")
	}
	if err := manager.Ping(nil); err == nil {
		t.Fatalf("expected Ping to reject nil context")
	}
	if err := manager.EnsureBaseIndexes(nil); err == nil {
		t.Fatalf("expected EnsureBaseIndexes to reject nil context")
	}
	if err := manager.WithTransaction(nil, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected WithTransaction to reject nil context")
	}
}

func TestManagerPingUsesPrimary(t *testing.T) {
	fake := newFakeMongoClient(t)
	restore := stubConnect(fake, nil)
	t.Cleanup(restore)

	manager, err := NewManager(context.Background(), testConfig)
	if err != nil {
		t.Fatalf("expected manager to initialize, got error: %v", err)
	}

	if err := manager.Ping(context.Background()); err != nil {
		t.Fatalf("expected ping to succeed, got error: %v", err)
	}
	if fake.pingCalls != 2 {
		t.Fatalf("expected init and explicit ping, got %d", fake.pingCalls)
	}
	if fake.lastReadPref != "primary" {
		t.Fatalf("expected primary read preference, got %q", fake.lastReadPref)
	}

	errPing := errors.New("ping failed")
	fake.pingErr = errPing
	if err := manager.Ping(context.Background()); !errors.Is(err, errPing) {
		t.Fatalf("expected ping error to wrap ping failed, got %v", err)
	}
}

func TestWithTransactionNeedsLiveClient(t *testing.T) {
	fake := newFakeMongoClient(t)
	restore := stubConnect(fake, nil)
	t.Cleanup(restore)

	manager, err := NewManager(context.Background(), testConfig)
	if err != nil {
		t.Fatalf("expected manager to initialize, got error: %v", err)
	}

	called := false
	err = manager.WithTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Fatalf("expected fake client to refuse sessions, err=%v called=%v", err, called)
	}
}

func TestEnsureBaseIndexesCreatesIdentityIndexes(t *testing.T) {
	fake := newFakeMongoClient(t)
	restoreConnect := stubConnect(fake, nil)
	t.Cleanup(restoreConnect)

	manager, err := NewManager(context.Background(), testConfig)
	if err != nil {
		t.Fatalf("expected manager to initialize, got error: %v", err)
	}

	recorder := newIndexRecorder(t, "")
	t.Cleanup(recorder.stub())

	if err := manager.EnsureBaseIndexes(context.Background()); err != nil {
		t.Fatalf("expected indexes to be created, got error: %v", err)
	}
	if len(recorder.calls) != 2 {
		t.Fatalf("expected 2 index creation calls, got %d", len(recorder.calls))
	}

	memberCall := recorder.calls[0]
	if memberCall.collection != CollectionMembers || len(memberCall.models) != 2 {
		t.Fatalf("unexpected members call: %+v", memberCall)
	}
	assertUniqueIndex(t, memberCall.models[0], "fiscal_code", "fiscal_code_unique")
	assertUniqueIndex(t, memberCall.models[1], "telegram_id", "telegram_id_unique")
	if memberCall.models[1].Options.PartialFilterExpression == nil {
		t.Fatalf("expected telegram id index to skip unbound members")
	}

	auditCall := recorder.calls[1]
	if auditCall.collection != CollectionAuditLogs || len(auditCall.models) != 1 {
		t.Fatalf("unexpected audit call: %+v", auditCall)
	}
}

func TestEnsureBaseIndexesFailsFastOnErrors(t *testing.T) {
	fake := newFakeMongoClient(t)
	restoreConnect := stubConnect(fake, nil)
	t.Cleanup(restoreConnect)

	manager, err := NewManager(context.Background(), testConfig)
	if err != nil {
		t.Fatalf("expected manager to initialize, got error: %v", err)
	}

	recorder := newIndexRecorder(t, CollectionMembers)
	t.Cleanup(recorder.stub())

	err = manager.EnsureBaseIndexes(context.Background())
	if !errors.Is(err, errIndexFailure) {
		t.Fatalf("expected error to wrap index failure, got %v", err)
	}
	if len(recorder.calls) != 1 {
		t.Fatalf("expected to stop after first failure, got %d calls", len(recorder.calls))
	}
}

type fakeMongoClient struct {
	client           *mongo.Client
	pingErr          error
	disconnectCalled bool
	databaseRequests []string
	pingCalls        int
	lastReadPref     string
}

func newFakeMongoClient(t *testing.T) *fakeMongoClient {
	t.Helper()

	client, err := mongo.NewClient(options.Client().ApplyURI("mongodb://example.com:27017"))
	if err != nil {
		t.Fatalf("failed to build fake client: %v", err)
	}

	return &fakeMongoClient{client: client}
}

func (f *fakeMongoClient) Ping(_ context.Context, rp *readpref.ReadPref) error {
	f.pingCalls++
	if rp != nil {
		f.lastReadPref = rp.String()
	}
	return f.pingErr
}

func (f *fakeMongoClient) Database(name string, opts ...*options.DatabaseOptions) *mongo.Database {
	f.databaseRequests = append(f.databaseRequests, name)
	return f.client.Database(name, opts...)
}

func (f *fakeMongoClient) Disconnect(context.Context) error {
	f.disconnectCalled = true
	return nil
}

func stubConnect(fake mongoClient, err error) func() {
	prev := connectMongo
	connectMongo = func(context.Context, *options.ClientOptions) (mongoClient, error) {
		return fake, err
	}

	return func() {
		connectMongo = prev
	}
}

var errIndexFailure = errors.New("index failure")

type indexCall struct {
	collection string
	models     []mongo.IndexModel
}

type indexRecorder struct {
	t               *testing.T
	calls           []indexCall
	errorCollection string
}

func newIndexRecorder(t *testing.T, errorCollection string) *indexRecorder {
	t.Helper()
	return &indexRecorder{t: t, errorCollection: errorCollection}
}

func (r *indexRecorder) stub() func() {
	prev := createIndexes
	createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
		r.calls = append(r.calls, indexCall{collection: coll.Name(), models: models})
		if r.errorCollection == coll.Name() {
			return nil, errIndexFailure
		}
		return []string{coll.Name() + "_idx"}, nil
	}

	return func() {
		createIndexes = prev
	}
}

func assertUniqueIndex(t *testing.T, model mongo.IndexModel, key, name string) {
	t.Helper()

	keysDoc, ok := model.Keys.(bson.D)
	if !ok {
		t.Fatalf("expected bson.D keys, got %T", model.Keys)
	}
	if len(keysDoc) != 1 || keysDoc[0].Key != key {
		t.Fatalf("expected index key %s, got %v", key, keysDoc)
	}
	if model.Options == nil || model.Options.Unique == nil || !*model.Options.Unique {
		t.Fatalf("expected unique option for %s", key)
	}
	if model.Options.Name == nil || *model.Options.Name != name {
		t.Fatalf("expected index name %s, got %v", name, model.Options.Name)
	}
}
