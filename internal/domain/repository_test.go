package domain

import (
	"testing"
	"time"
)

func TestRolePriority(t *testing.T) {
	tests := []struct {
		role     Role
		expected int
	}{
		{RoleSuperAdmin, RolePrioritySuperAdmin},
		{RoleAdmin, RolePriorityAdmin},
		{RoleLeader, RolePriorityLeader},
		{RoleMember, RolePriorityMember},
		{"unknown", 0},
	}

	for _, tt := range tests {
		if got := RolePriority(tt.role); got != tt.expected {
			t.Fatalf("RolePriority(%s) = %d, want %d", tt.role, got, tt.expected)
		}
	}
}

func TestRoleHelpers(t *testing.T) {
	if !RoleSuperAdmin.AtLeast(RoleAdmin) || RoleLeader.AtLeast(RoleAdmin) {
		t.Fatalf("unexpected AtLeast ordering")
	}
	if Role("bogus").AtLeast(Role("other")) {
		t.Fatalf("unknown roles must never compare as privileged")
	}
	if !RoleAdmin.Elevated() || RoleLeader.Elevated() {
		t.Fatalf("expected only admin tiers to be elevated")
	}
	if !RoleLeader.In(MemberRoles) || RoleLeader.In(AdminRoles) || RoleAdmin.In(SuperAdminRoles) {
		t.Fatalf("unexpected role set membership")
	}
	if RoleLeader.DisplayName() != "Capo" || RoleMember.DisplayName() != "Iscritto" {
		t.Fatalf("unexpected display names")
	}

	for _, raw := range []string{"SA", "super_admin", " Super_Admin "} {
		if role, ok := ParseRole(raw); !ok || role != RoleSuperAdmin {
			t.Fatalf("ParseRole(%q) = %q, %v", raw, role, ok)
		}
	}
	if _, ok := ParseRole("owner"); ok {
		t.Fatalf("expected unknown role to be rejected")
	}
}

func TestParseBranch(t *testing.T) {
	tests := []struct {
		raw  string
		want Branch
		ok   bool
	}{
		{"Branca L/C", BranchCubs, true},
		{"branca e/g", BranchScouts, true},
		{"R/S", BranchRovers, true},
		{"Adulti", BranchAdults, true},
		{"Co.Ca.", BranchAdults, true},
		{"Reparto", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseBranch(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseBranch(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}

	if BranchAdults.DisplayName() != "Co.Ca." || BranchCubs.DisplayName() != "Branca L/C" {
		t.Fatalf("unexpected branch display names")
	}
}

func TestMemberMatchingHelpers(t *testing.T) {
	m := Member{
		FiscalCode: "RSSMRA80A01A509X",
		MemberCode: "AV123",
		FirstName:  "Maria",
		LastName:   "Rossi",
		Branch:     BranchScouts,
		Sex:        SexFemale,
	}

	for _, q := range []string{"mari", "ROSS", "av1", "a509", "e/g"} {
		if !m.Matches(q) {
			t.Fatalf("expected %q to match", q)
		}
	}
	if m.Matches("bianchi") {
		t.Fatalf("expected bianchi not to match")
	}

	if !m.HasIdentifier("av123") || !m.HasIdentifier("rssmra80a01a509x") || m.HasIdentifier("av12") {
		t.Fatalf("expected exact case-insensitive identifier matching")
	}

	if m.Gendered("o", "a") != "a" {
		t.Fatalf("expected feminine form")
	}
	if m.FullName() != "Maria Rossi" {
		t.Fatalf("unexpected full name %q", m.FullName())
	}

	other := Member{MemberCode: "av123"}
	if !m.SameIdentity(other) {
		t.Fatalf("expected same identity by member code")
	}
	if m.SameIdentity(Member{MemberCode: "AV999", FiscalCode: "OTHER"}) {
		t.Fatalf("expected different identity")
	}
	if (Member{}).SameIdentity(Member{}) {
		t.Fatalf("blank records must not share an identity")
	}
}

func TestMemberEnabled(t *testing.T) {
	tests := []struct {
		name   string
		member Member
		want   bool
	}{
		{"bound active", Member{TelegramHandle: "maria", Active: true}, true},
		{"bound inactive", Member{TelegramHandle: "maria"}, true},
		{"unbound active", Member{Active: true}, false},
		{"unbound inactive", Member{}, false},
		{"blank handle", Member{TelegramHandle: "  ", Active: true}, false},
	}

	for _, tt := range tests {
		if got := tt.member.Enabled(); got != tt.want {
			t.Fatalf("%s: Enabled() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMemberPatchApply(t *testing.T) {
	m := Member{Role: RoleMember}

	if !(MemberPatch{}).Empty() {
		t.Fatalf("expected zero patch to be empty")
	}

	BindTelegram("maria", 42).Apply(&m)
	SetRole(RoleLeader).Apply(&m)
	SetActive(true).Apply(&m)
	SetAuthCode("abc").Apply(&m)

	if m.TelegramHandle != "maria" || m.TelegramID != 42 || !m.Bound() {
		t.Fatalf("expected telegram binding, got %+v", m)
	}
	if m.Role != RoleLeader || !m.Active || m.AuthCode != "abc" {
		t.Fatalf("expected patched fields, got %+v", m)
	}
}

func TestSearchOptionsMatchesEverything(t *testing.T) {
	if !(SearchOptions{}).MatchesEverything("") {
		t.Fatalf("empty query should match everything")
	}
	if !(SearchOptions{}).MatchesEverything("TUTTI") {
		t.Fatalf("wildcard should match everything")
	}
	if !(SearchOptions{All: true}).MatchesEverything("rossi") {
		t.Fatalf("All should bypass the text filter")
	}
	if (SearchOptions{}).MatchesEverything("rossi") {
		t.Fatalf("plain query should filter")
	}
}

func TestSortMembersAndKeepNewest(t *testing.T) {
	members := []Member{
		{LastName: "verdi", FirstName: "Anna", FiscalCode: "B"},
		{LastName: "Rossi", FirstName: "Mario", FiscalCode: "C"},
		{LastName: "rossi", FirstName: "Maria", FiscalCode: "A"},
	}
	SortMembers(members)

	if members[0].FirstName != "Maria" || members[1].FirstName != "Mario" || members[2].LastName != "verdi" {
		t.Fatalf("unexpected order: %+v", members)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := make([]AuditEntry, 0, 5)
	for i := 0; i < 5; i++ {
		entries = append(entries, AuditEntry{LoggedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	kept := KeepNewest(entries, 2)
	if len(kept) != 2 || !kept[0].LoggedAt.Equal(base.Add(3*time.Minute)) || !kept[1].LoggedAt.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("expected the two newest entries in ascending order, got %+v", kept)
	}
	if len(KeepNewest(entries, 0)) != 5 {
		t.Fatalf("expected non-positive limit to keep everything")
	}
}

func TestNormalizeForImport(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	m := NormalizeForImport(Member{FiscalCode: " rssmra80a01a509x "}, now)

	if m.FiscalCode != "RSSMRA80A01A509X" {
		t.Fatalf("expected normalized fiscal code, got %q", m.FiscalCode)
	}
	if m.Role != RoleMember || !m.CreatedAt.Equal(now) || !m.UpdatedAt.Equal(now) {
		t.Fatalf("expected defaults, got %+v", m)
	}
}
