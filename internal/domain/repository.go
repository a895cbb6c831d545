package domain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// WildcardQuery is the search sentinel meaning "every member".
const WildcardQuery = "tutti"

// ErrMemberNotFound is returned by field updates addressing an unknown fiscal code.
var ErrMemberNotFound = errors.New("member not found")

// SearchOptions tunes MemberRepository.Search.
type SearchOptions struct {
	// All bypasses the text filter.
	All bool
	// ActiveOnly drops inactive members from the result.
	ActiveOnly bool
}

// MatchesEverything reports whether a search for q with opts ignores the text filter.
func (o SearchOptions) MatchesEverything(q string) bool {
	q = strings.TrimSpace(q)
	return o.All || q == "" || strings.EqualFold(q, WildcardQuery)
}

// MemberRepository is the roster query layer. Lookups return every matching
// row; callers decide what a count other than one means.
type MemberRepository interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Member, error)
	FindByIdentifier(ctx context.Context, id string) ([]Member, error)
	FindByTelegramID(ctx context.Context, telegramID int64) ([]Member, error)
	FindByAuthCode(ctx context.Context, code string) ([]Member, error)
	ListEnabled(ctx context.Context) ([]Member, error)
	ListCodeEligible(ctx context.Context, withoutCodeOnly bool) ([]Member, error)
	Update(ctx context.Context, fiscalCode string, patch MemberPatch) error
	// UpsertBatch writes all members keyed by fiscal code in one atomic unit.
	// New rows default to RoleMember and active; existing rows keep their
	// role, binding, code and active flag.
	UpsertBatch(ctx context.Context, members []Member) (inserted, updated int, err error)
	Count(ctx context.Context) (int64, error)
}

// AuditLog is the append-only command log.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	// Recent returns up to limit entries logged at or after since, the most
	// recent ones, ordered oldest first.
	Recent(ctx context.Context, since time.Time, limit int) ([]AuditEntry, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// SortMembers orders members by last name, first name, then fiscal code,
// case-insensitively, so every backend returns the same sequence.
func SortMembers(members []Member) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if la, lb := strings.ToLower(a.LastName), strings.ToLower(b.LastName); la != lb {
			return la < lb
		}
		if fa, fb := strings.ToLower(a.FirstName), strings.ToLower(b.FirstName); fa != fb {
			return fa < fb
		}
		return a.FiscalCode < b.FiscalCode
	})
}

// NormalizeForImport fills defaults for a freshly imported member.
func NormalizeForImport(m Member, now time.Time) Member {
	m.FiscalCode = strings.ToUpper(strings.TrimSpace(m.FiscalCode))
	if m.Role == "" {
		m.Role = RoleMember
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return m
}

// KeepNewest trims entries (sorted oldest first) to the newest limit entries
// while keeping ascending order.
func KeepNewest(entries []AuditEntry, limit int) []AuditEntry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
