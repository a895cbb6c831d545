package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/logging"
	"tg_roster_bot/internal/store/storetest"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(path, logging.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (domain.MemberRepository, domain.AuditLog) {
		s := openTestStore(t, "")
		return s, s.Audit()
	})
}

func TestOpenOnDiskPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "roster.sqlite")
	ctx := context.Background()

	first, err := Open(path, logging.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := first.UpsertBatch(ctx, storetest.Roster()); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if err := first.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := openTestStore(t, path)
	count, err := second.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != int64(len(storetest.Roster())) {
		t.Fatalf("expected roster to survive reopen, got %d members", count)
	}
}

func TestPatchColumnsClearsBinding(t *testing.T) {
	cols := patchColumns(domain.BindTelegram("", 0), time.Now())
	if v, ok := cols["telegram_id"]; !ok || v != nil {
		t.Fatalf("expected unbinding to write NULL, got %v", cols)
	}
}

func TestStoreRequiresContext(t *testing.T) {
	s := openTestStore(t, "")
	if _, err := s.Count(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := s.Audit().Count(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}

	var nilStore *Store
	if err := nilStore.Ping(context.Background()); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
