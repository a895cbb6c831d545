// Package memstore keeps the roster and audit log in process memory. It backs
// STORE_BACKEND=memory and the handler tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tg_roster_bot/internal/domain"
)

// Store implements domain.MemberRepository and domain.AuditLog.
type Store struct {
	mu      sync.RWMutex
	members map[string]domain.Member
	audit   []domain.AuditEntry
	now     func() time.Time

	// failNext is returned, once, by the next repository call.
	failNext error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		members: make(map[string]domain.Member),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts members verbatim, keeping their role, binding and flags.
func (s *Store) Seed(members ...domain.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range members {
		m.FiscalCode = strings.ToUpper(strings.TrimSpace(m.FiscalCode))
		if m.Role == "" {
			m.Role = domain.RoleMember
		}
		s.members[m.FiscalCode] = m
	}
}

// Get returns a member by fiscal code.
func (s *Store) Get(fiscalCode string) (domain.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[strings.ToUpper(fiscalCode)]
	return m, ok
}

// Entries returns a copy of the audit log in insertion order.
func (s *Store) Entries() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// FailNext arranges for the next call to fail with err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error {
	return nil
}

func (s *Store) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.Member, error) {
	everything := opts.MatchesEverything(query)
	needle := strings.TrimSpace(query)

	return s.filter(ctx, func(m domain.Member) bool {
		if opts.ActiveOnly && !m.Active {
			return false
		}
		return everything || m.Matches(needle)
	})
}

func (s *Store) FindByIdentifier(ctx context.Context, id string) ([]domain.Member, error) {
	id = strings.TrimSpace(id)
	return s.filter(ctx, func(m domain.Member) bool {
		return id != "" && m.HasIdentifier(id)
	})
}

func (s *Store) FindByTelegramID(ctx context.Context, telegramID int64) ([]domain.Member, error) {
	return s.filter(ctx, func(m domain.Member) bool {
		return telegramID != 0 && m.TelegramID == telegramID
	})
}

func (s *Store) FindByAuthCode(ctx context.Context, code string) ([]domain.Member, error) {
	code = strings.TrimSpace(code)
	return s.filter(ctx, func(m domain.Member) bool {
		return code != "" && strings.EqualFold(m.AuthCode, code)
	})
}

func (s *Store) ListEnabled(ctx context.Context) ([]domain.Member, error) {
	return s.filter(ctx, domain.Member.Enabled)
}

func (s *Store) ListCodeEligible(ctx context.Context, withoutCodeOnly bool) ([]domain.Member, error) {
	return s.filter(ctx, func(m domain.Member) bool {
		if !m.CodeEligible {
			return false
		}
		return !withoutCodeOnly || m.AuthCode == ""
	})
}

func (s *Store) Update(ctx context.Context, fiscalCode string, patch domain.MemberPatch) error {
	if err := s.guard(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(strings.TrimSpace(fiscalCode))
	m, ok := s.members[key]
	if !ok {
		return domain.ErrMemberNotFound
	}
	if patch.TelegramID != nil && *patch.TelegramID != 0 {
		for other, existing := range s.members {
			if other != key && existing.TelegramID == *patch.TelegramID {
				return fmt.Errorf("update member: telegram id %d already bound", *patch.TelegramID)
			}
		}
	}

	patch.Apply(&m)
	m.UpdatedAt = s.now()
	s.members[key] = m
	return nil
}

func (s *Store) UpsertBatch(ctx context.Context, members []domain.Member) (int, int, error) {
	if err := s.guard(ctx); err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage into a copy so a failure leaves the roster untouched.
	staged := make(map[string]domain.Member, len(s.members)+len(members))
	for k, v := range s.members {
		staged[k] = v
	}

	now := s.now()
	inserted, updated := 0, 0
	for _, incoming := range members {
		incoming = domain.NormalizeForImport(incoming, now)
		if incoming.FiscalCode == "" {
			return 0, 0, errors.New("upsert members: fiscal code is required")
		}

		existing, ok := staged[incoming.FiscalCode]
		if !ok {
			incoming.Active = true
			incoming.TelegramHandle, incoming.TelegramID, incoming.AuthCode = "", 0, ""
			staged[incoming.FiscalCode] = incoming
			inserted++
			continue
		}

		incoming.Role = existing.Role
		incoming.Active = existing.Active
		incoming.TelegramHandle = existing.TelegramHandle
		incoming.TelegramID = existing.TelegramID
		incoming.AuthCode = existing.AuthCode
		incoming.CreatedAt = existing.CreatedAt
		staged[incoming.FiscalCode] = incoming
		updated++
	}

	s.members = staged
	return inserted, updated, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := s.guard(ctx); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.members)), nil
}

// Audit exposes the audit log half of the store.
func (s *Store) Audit() *AuditLog {
	return &AuditLog{store: s}
}

func (s *Store) filter(ctx context.Context, keep func(domain.Member) bool) ([]domain.Member, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Member, 0)
	for _, m := range s.members {
		if keep(m) {
			out = append(out, m)
		}
	}
	domain.SortMembers(out)
	return out, nil
}

func (s *Store) guard(ctx context.Context) error {
	if s == nil {
		return errors.New("memory store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	return nil
}

// AuditLog is the audit half of Store. Count is defined here as well so the
// type satisfies domain.AuditLog.
type AuditLog struct {
	store *Store
}

func (a *AuditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	if err := a.store.guard(ctx); err != nil {
		return err
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = a.store.now()
	}
	a.store.audit = append(a.store.audit, entry)
	return nil
}

func (a *AuditLog) Recent(ctx context.Context, since time.Time, limit int) ([]domain.AuditEntry, error) {
	if err := a.store.guard(ctx); err != nil {
		return nil, err
	}

	a.store.mu.RLock()
	defer a.store.mu.RUnlock()

	out := make([]domain.AuditEntry, 0)
	for _, e := range a.store.audit {
		if !e.LoggedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LoggedAt.Before(out[j].LoggedAt) })
	return domain.KeepNewest(out, limit), nil
}

func (a *AuditLog) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := a.store.guard(ctx); err != nil {
		return 0, err
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	kept := a.store.audit[:0]
	var purged int64
	for _, e := range a.store.audit {
		if e.LoggedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	a.store.audit = kept
	return purged, nil
}

func (a *AuditLog) Count(ctx context.Context) (int64, error) {
	if err := a.store.guard(ctx); err != nil {
		return 0, err
	}

	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	return int64(len(a.store.audit)), nil
}

var (
	_ domain.MemberRepository = (*Store)(nil)
	_ domain.AuditLog         = (*AuditLog)(nil)
)
