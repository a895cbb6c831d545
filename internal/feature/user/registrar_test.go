package user

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/store/memstore"
)

const (
	mariaFC = "RSSMRA80A41A509X"
	luigiFC = "BNCLGU85A01A509Y"
)

func newStore() *memstore.Store {
	s := memstore.New()
	s.Seed(
		domain.Member{FiscalCode: mariaFC, MemberCode: "AV100", FirstName: "Maria", LastName: "Rossi", AuthCode: "Abc-123", Active: true},
		domain.Member{FiscalCode: luigiFC, MemberCode: "AV200", FirstName: "Luigi", LastName: "Bianchi", AuthCode: "zzz", TelegramHandle: "luigi", TelegramID: 200, Active: true},
	)
	return s
}

func TestRegisterBindsByCode(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	s := newStore()
	registrar := NewRegistrar(s, logrus.NewEntry(hookLogger))

	outcome, m, err := registrar.Register(context.Background(), "abc-123", 100, "maria_r")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if outcome != Registered {
		t.Fatalf("expected Registered, got %v", outcome)
	}
	if m.FiscalCode != mariaFC || m.TelegramID != 100 || m.TelegramHandle != "maria_r" {
		t.Fatalf("unexpected member %+v", m)
	}

	stored, _ := s.Get(mariaFC)
	if stored.TelegramID != 100 || stored.TelegramHandle != "maria_r" {
		t.Fatalf("expected binding to be persisted, got %+v", stored)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "user_registered" || entry.Data["member_code"] != "AV100" {
		t.Fatalf("expected registration log, got %v", entry)
	}

	// The code stays on the record but no longer binds anyone.
	outcome, _, err = registrar.Register(context.Background(), "abc-123", 101, "other")
	if err != nil || outcome != TargetBound {
		t.Fatalf("expected TargetBound on reuse, got %v (%v)", outcome, err)
	}
}

func TestRegisterRejectsBoundCaller(t *testing.T) {
	s := newStore()
	outcome, m, err := NewRegistrar(s, nil).Register(context.Background(), "abc-123", 200, "luigi")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if outcome != CallerBound || m.FiscalCode != luigiFC {
		t.Fatalf("expected CallerBound for Luigi, got %v %+v", outcome, m)
	}

	stored, _ := s.Get(mariaFC)
	if stored.Bound() {
		t.Fatalf("expected Maria to stay unbound")
	}
}

func TestRegisterInvalidCodes(t *testing.T) {
	s := newStore()
	s.Seed(domain.Member{FiscalCode: "VRDGNN90A01A509Z", MemberCode: "AV300", FirstName: "Giovanni", LastName: "Verdi", AuthCode: "dup"})
	s.Seed(domain.Member{FiscalCode: "NRIPLA70A01A509W", MemberCode: "AV400", FirstName: "Paola", LastName: "Neri", AuthCode: "DUP"})
	registrar := NewRegistrar(s, nil)

	for _, code := range []string{"", "  ", "nope", "dup"} {
		outcome, _, err := registrar.Register(context.Background(), code, 500, "x")
		if err != nil {
			t.Fatalf("Register(%q) returned error: %v", code, err)
		}
		if outcome != InvalidCode {
			t.Fatalf("Register(%q) = %v, want InvalidCode", code, outcome)
		}
	}
}

func TestRegisterTargetAlreadyBound(t *testing.T) {
	outcome, m, err := NewRegistrar(newStore(), nil).Register(context.Background(), "ZZZ", 300, "someone")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if outcome != TargetBound || m.MemberCode != "AV200" {
		t.Fatalf("expected TargetBound for AV200, got %v %+v", outcome, m)
	}
}

func TestRegisterPropagatesStoreErrors(t *testing.T) {
	s := newStore()
	expected := errors.New("db down")
	s.FailNext(expected)

	if _, _, err := NewRegistrar(s, nil).Register(context.Background(), "abc-123", 1, "x"); !errors.Is(err, expected) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRegisterGuards(t *testing.T) {
	var r *Registrar
	if _, _, err := r.Register(context.Background(), "x", 1, "h"); err == nil {
		t.Fatalf("expected error for nil registrar")
	}

	registrar := NewRegistrar(newStore(), nil)
	if _, _, err := registrar.Register(nil, "x", 1, "h"); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, _, err := registrar.Register(context.Background(), "x", 0, "h"); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}
