// Package storetest holds the behavioural contract every roster backend must
// satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"tg_roster_bot/internal/domain"
)

// Factory builds a fresh, empty backend for one test.
type Factory func(t *testing.T) (domain.MemberRepository, domain.AuditLog)

// Run executes the full contract against the backend built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("upsert batch", func(t *testing.T) { runUpsertBatch(t, newBackend) })
	t.Run("lookups", func(t *testing.T) { runLookups(t, newBackend) })
	t.Run("search", func(t *testing.T) { runSearch(t, newBackend) })
	t.Run("views", func(t *testing.T) { runViews(t, newBackend) })
	t.Run("update", func(t *testing.T) { runUpdate(t, newBackend) })
	t.Run("audit log", func(t *testing.T) { runAuditLog(t, newBackend) })
}

// Roster returns a small, varied roster used across the contract.
func Roster() []domain.Member {
	birth := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	return []domain.Member{
		{
			FiscalCode: "RSSMRA90E57A509X", MemberCode: "AV100", FirstName: "Maria", LastName: "Rossi",
			Sex: domain.SexFemale, BirthDate: birth, BirthPlace: "Avellino", City: "Avellino", Province: "AV",
			PostalCode: "83100", Branch: domain.BranchAdults, CodeEligible: true, Email: "maria@example.org",
			Role: domain.RoleMember,
		},
		{
			FiscalCode: "BNCLGU85A01A509Y", MemberCode: "AV200", FirstName: "Luigi", LastName: "Bianchi",
			Sex: domain.SexMale, BirthDate: birth, Branch: domain.BranchScouts, CodeEligible: true,
			Role: domain.RoleMember,
		},
		{
			FiscalCode: "VRDGNN10B02A509Z", MemberCode: "AV300", FirstName: "Giovanni", LastName: "Verdi",
			Sex: domain.SexMale, BirthDate: birth, Branch: domain.BranchCubs,
			Role: domain.RoleMember,
		},
	}
}

func seed(t *testing.T, repo domain.MemberRepository) []domain.Member {
	t.Helper()

	roster := Roster()
	inserted, updated, err := repo.UpsertBatch(context.Background(), roster)
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if inserted != len(roster) || updated != 0 {
		t.Fatalf("expected %d inserted and 0 updated, got %d/%d", len(roster), inserted, updated)
	}
	return roster
}

func runUpsertBatch(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	repo, _ := newBackend(t)
	roster := seed(t, repo)

	maria := roster[0]
	if err := repo.Update(ctx, maria.FiscalCode, domain.MemberPatch{
		Role:     rolePtr(domain.RoleAdmin),
		AuthCode: strPtr("code-1"),
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := repo.Update(ctx, maria.FiscalCode, domain.BindTelegram("maria_r", 1001)); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := repo.Update(ctx, maria.FiscalCode, domain.SetActive(false)); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	refreshed := roster[0]
	refreshed.MemberCode = "AV101"
	refreshed.Email = ""
	refreshed.Role = domain.RoleMember
	newcomer := domain.Member{
		FiscalCode: "nrengl12c03a509w", MemberCode: "AV400", FirstName: "Angela", LastName: "Neri",
		Sex: domain.SexFemale, BirthDate: time.Date(2012, 3, 3, 0, 0, 0, 0, time.UTC), Branch: domain.BranchScouts,
	}

	inserted, updated, err := repo.UpsertBatch(ctx, []domain.Member{refreshed, newcomer})
	if err != nil {
		t.Fatalf("second UpsertBatch: %v", err)
	}
	if inserted != 1 || updated != 1 {
		t.Fatalf("expected 1 inserted and 1 updated, got %d/%d", inserted, updated)
	}

	got := single(t, repo, "AV101")
	if got.Email != "" {
		t.Fatalf("expected imported fields to be overwritten, got email %q", got.Email)
	}
	if got.Role != domain.RoleAdmin || got.Active || got.TelegramID != 1001 || got.TelegramHandle != "maria_r" || got.AuthCode != "code-1" {
		t.Fatalf("expected role, activation, binding and code to survive import, got %+v", got)
	}

	angela := single(t, repo, "NRENGL12C03A509W")
	if !angela.Active || angela.Role != domain.RoleMember {
		t.Fatalf("expected new members to be active members, got %+v", angela)
	}

	count, err := repo.Count(ctx)
	if err != nil || count != 4 {
		t.Fatalf("expected 4 members, got %d (err=%v)", count, err)
	}

	if _, _, err := repo.UpsertBatch(ctx, []domain.Member{{FiscalCode: "ZZZ", MemberCode: "AV900", FirstName: "Zed", LastName: "Zeta"}, {FiscalCode: " "}}); err == nil {
		t.Fatalf("expected blank fiscal code to fail the batch")
	}
	if members, _ := repo.FindByIdentifier(ctx, "AV900"); len(members) != 0 {
		t.Fatalf("expected failed batch to leave no partial writes, got %+v", members)
	}
}

func runLookups(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	repo, _ := newBackend(t)
	roster := seed(t, repo)

	for _, m := range roster {
		for _, id := range []string{m.FiscalCode, m.MemberCode, toLower(m.MemberCode)} {
			found, err := repo.FindByIdentifier(ctx, id)
			if err != nil {
				t.Fatalf("FindByIdentifier(%s): %v", id, err)
			}
			if len(found) != 1 || found[0].FiscalCode != m.FiscalCode {
				t.Fatalf("FindByIdentifier(%s) = %+v, want exactly %s", id, found, m.FiscalCode)
			}
		}
	}

	if found, err := repo.FindByIdentifier(ctx, "AV1"); err != nil || len(found) != 0 {
		t.Fatalf("expected identifier lookup to be exact, got %+v (err=%v)", found, err)
	}
	if found, err := repo.FindByIdentifier(ctx, ""); err != nil || len(found) != 0 {
		t.Fatalf("expected blank identifier to match nothing, got %+v (err=%v)", found, err)
	}

	if err := repo.Update(ctx, roster[1].FiscalCode, domain.BindTelegram("luigi", 2002)); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := repo.Update(ctx, roster[1].FiscalCode, domain.SetAuthCode("Xy_z-09")); err != nil {
		t.Fatalf("set code: %v", err)
	}

	byChat, err := repo.FindByTelegramID(ctx, 2002)
	if err != nil || len(byChat) != 1 || byChat[0].MemberCode != "AV200" {
		t.Fatalf("FindByTelegramID = %+v (err=%v)", byChat, err)
	}
	if none, err := repo.FindByTelegramID(ctx, 0); err != nil || len(none) != 0 {
		t.Fatalf("expected zero telegram id to match nothing, got %+v (err=%v)", none, err)
	}

	byCode, err := repo.FindByAuthCode(ctx, "xy_z-09")
	if err != nil || len(byCode) != 1 || byCode[0].MemberCode != "AV200" {
		t.Fatalf("FindByAuthCode = %+v (err=%v)", byCode, err)
	}
	if none, err := repo.FindByAuthCode(ctx, "xy_z"); err != nil || len(none) != 0 {
		t.Fatalf("expected auth code lookup to be exact, got %+v (err=%v)", none, err)
	}

	if err := repo.Update(ctx, roster[2].FiscalCode, domain.BindTelegram("other", 2002)); err == nil {
		t.Fatalf("expected a chat identity to bind at most one member")
	}
}

func runSearch(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	repo, _ := newBackend(t)
	roster := seed(t, repo)

	if err := repo.Update(ctx, roster[2].FiscalCode, domain.SetActive(false)); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	tests := []struct {
		query string
		opts  domain.SearchOptions
		want  []string
	}{
		{query: "ross", want: []string{"AV100"}},
		{query: "LUIGI", want: []string{"AV200"}},
		{query: "av", want: []string{"AV200", "AV100", "AV300"}},
		{query: "a509y", want: []string{"AV200"}},
		{query: "l/c", want: []string{"AV300"}},
		{query: "adulti", want: []string{"AV100"}},
		{query: "tutti", want: []string{"AV200", "AV100", "AV300"}},
		{query: "", opts: domain.SearchOptions{ActiveOnly: true}, want: []string{"AV200", "AV100"}},
		{query: "rossi", opts: domain.SearchOptions{All: true}, want: []string{"AV200", "AV100", "AV300"}},
		{query: "verdi", opts: domain.SearchOptions{ActiveOnly: true}, want: nil},
		{query: "50%", want: nil},
	}

	for _, tt := range tests {
		got, err := repo.Search(ctx, tt.query, tt.opts)
		if err != nil {
			t.Fatalf("Search(%q): %v", tt.query, err)
		}
		assertCodes(t, "Search("+tt.query+")", got, tt.want)
	}
}

func runViews(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	repo, _ := newBackend(t)
	roster := seed(t, repo)

	if err := repo.Update(ctx, roster[0].FiscalCode, domain.BindTelegram("maria_r", 1001)); err != nil {
		t.Fatalf("bind maria: %v", err)
	}
	if err := repo.Update(ctx, roster[2].FiscalCode, domain.BindTelegram("gianni", 3003)); err != nil {
		t.Fatalf("bind gianni: %v", err)
	}
	if err := repo.Update(ctx, roster[2].FiscalCode, domain.SetActive(false)); err != nil {
		t.Fatalf("deactivate gianni: %v", err)
	}

	enabled, err := repo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	assertCodes(t, "ListEnabled", enabled, []string{"AV100", "AV300"})

	eligible, err := repo.ListCodeEligible(ctx, false)
	if err != nil {
		t.Fatalf("ListCodeEligible: %v", err)
	}
	assertCodes(t, "ListCodeEligible", eligible, []string{"AV200", "AV100"})

	if err := repo.Update(ctx, roster[0].FiscalCode, domain.SetAuthCode("abc")); err != nil {
		t.Fatalf("set code: %v", err)
	}
	withoutCode, err := repo.ListCodeEligible(ctx, true)
	if err != nil {
		t.Fatalf("ListCodeEligible(without code): %v", err)
	}
	assertCodes(t, "ListCodeEligible(without code)", withoutCode, []string{"AV200"})
}

func runUpdate(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	repo, _ := newBackend(t)
	roster := seed(t, repo)

	err := repo.Update(ctx, "NOPE", domain.SetActive(true))
	if !errors.Is(err, domain.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}

	if err := repo.Update(ctx, toLower(roster[1].FiscalCode), domain.SetRole(domain.RoleLeader)); err != nil {
		t.Fatalf("Update with lower-case fiscal code: %v", err)
	}
	got := single(t, repo, roster[1].MemberCode)
	if got.Role != domain.RoleLeader || !got.Active {
		t.Fatalf("expected only the role to change, got %+v", got)
	}
	if !got.UpdatedAt.After(time.Time{}) {
		t.Fatalf("expected updated_at to be stamped")
	}
}

func runAuditLog(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	_, audit := newBackend(t)

	base := time.Now().UTC().Truncate(time.Second).Add(-30 * 24 * time.Hour)
	for day := 0; day < 30; day++ {
		entry := domain.AuditEntry{
			ID:       uuid.NewString(),
			LoggedAt: base.Add(time.Duration(day) * 24 * time.Hour),
			Username: "maria_r",
			Command:  "info rossi",
		}
		if err := audit.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	count, err := audit.Count(ctx)
	if err != nil || count != 30 {
		t.Fatalf("expected 30 entries, got %d (err=%v)", count, err)
	}

	recent, err := audit.Recent(ctx, base, 20)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if !recent[i-1].LoggedAt.Before(recent[i].LoggedAt) {
			t.Fatalf("expected ascending order, got %v then %v", recent[i-1].LoggedAt, recent[i].LoggedAt)
		}
	}
	if want := base.Add(29 * 24 * time.Hour); !recent[len(recent)-1].LoggedAt.Equal(want) {
		t.Fatalf("expected newest entry %v last, got %v", want, recent[len(recent)-1].LoggedAt)
	}

	window, err := audit.Recent(ctx, base.Add(25*24*time.Hour), 20)
	if err != nil || len(window) != 5 {
		t.Fatalf("expected 5 entries in window, got %d (err=%v)", len(window), err)
	}

	cutoff := base.Add(23 * 24 * time.Hour)
	purged, err := audit.PurgeBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("PurgeBefore: %v", err)
	}
	if purged != 23 {
		t.Fatalf("expected 23 purged entries, got %d", purged)
	}

	remaining, err := audit.Recent(ctx, base, 100)
	if err != nil {
		t.Fatalf("Recent after purge: %v", err)
	}
	if len(remaining) != 7 || !remaining[0].LoggedAt.Equal(cutoff) {
		t.Fatalf("expected entries inside the window to survive, got %d starting %v", len(remaining), firstTime(remaining))
	}
}

func single(t *testing.T, repo domain.MemberRepository, id string) domain.Member {
	t.Helper()

	found, err := repo.FindByIdentifier(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByIdentifier(%s): %v", id, err)
	}
	if len(found) != 1 {
		t.Fatalf("expected exactly one member for %s, got %d", id, len(found))
	}
	return found[0]
}

func assertCodes(t *testing.T, label string, got []domain.Member, want []string) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("%s: expected %v, got %v", label, want, codes(got))
	}
	for i := range want {
		if got[i].MemberCode != want[i] {
			t.Fatalf("%s: expected %v, got %v", label, want, codes(got))
		}
	}
}

func codes(members []domain.Member) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.MemberCode)
	}
	return out
}

func firstTime(entries []domain.AuditEntry) time.Time {
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].LoggedAt
}

func toLower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + ('a' - 'A')
		}
	}
	return string(out)
}

func rolePtr(r domain.Role) *domain.Role { return &r }
func strPtr(s string) *string             { return &s }
