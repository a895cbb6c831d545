package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_roster_bot/internal/domain"
)

type fakeLog struct {
	entries []domain.AuditEntry
	err     error
}

func (f *fakeLog) Append(_ context.Context, entry domain.AuditEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func TestRecordNormalizesCommand(t *testing.T) {
	log := &fakeLog{}
	logger, _ := logtest.NewNullLogger()
	r := NewRecorder(log, logrus.NewEntry(logger))

	fixed := time.Date(2024, 3, 1, 10, 30, 0, 123456789, time.FixedZone("CET", 3600))
	r.now = func() time.Time { return fixed }

	entry, err := r.Record(context.Background(), "maria_r", "  /Info \"Rossi Maria\" ")
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	if entry.Command != "/info \"rossi maria\"" {
		t.Fatalf("unexpected command %q", entry.Command)
	}
	if entry.Username != "maria_r" {
		t.Fatalf("unexpected username %q", entry.Username)
	}
	if !entry.LoggedAt.Equal(fixed.Truncate(time.Millisecond)) || entry.LoggedAt.Location() != time.UTC {
		t.Fatalf("expected UTC millisecond timestamp, got %v", entry.LoggedAt)
	}
	if _, err := uuid.Parse(entry.ID); err != nil {
		t.Fatalf("expected uuid id, got %q", entry.ID)
	}
	if len(log.entries) != 1 || log.entries[0] != entry {
		t.Fatalf("expected entry to be appended, got %+v", log.entries)
	}
}

func TestRecordAnonymousSender(t *testing.T) {
	log := &fakeLog{}
	r := NewRecorder(log, nil)

	entry, err := r.Record(context.Background(), "  ", "/help")
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if entry.Username != AnonymousName {
		t.Fatalf("expected placeholder name, got %q", entry.Username)
	}
}

func TestRecordWrapsAppendError(t *testing.T) {
	expected := errors.New("disk full")
	r := NewRecorder(&fakeLog{err: expected}, nil)

	if _, err := r.Record(context.Background(), "x", "/help"); !errors.Is(err, expected) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRecordGuards(t *testing.T) {
	var r *Recorder
	if _, err := r.Record(context.Background(), "x", "y"); err == nil {
		t.Fatalf("expected error for nil recorder")
	}

	if _, err := NewRecorder(&fakeLog{}, nil).Record(nil, "x", "y"); err == nil {
		t.Fatalf("expected error for nil context")
	}
}
