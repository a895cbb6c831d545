package store

import (
	"context"
	"errors"
	"fmt"
)

type memberCounter interface {
	Count(ctx context.Context) (int64, error)
}

type auditCounter interface {
	Count(ctx context.Context) (int64, error)
}

// StatsProvider exposes roster and audit log counts for diagnostics without
// leaking backend details to callers.
type StatsProvider struct {
	members memberCounter
	audit   auditCounter
}

// NewStatsProvider constructs a StatsProvider over the provided repositories.
func NewStatsProvider(members memberCounter, audit auditCounter) *StatsProvider {
	return &StatsProvider{
		members: members,
		audit:   audit,
	}
}

// CountMembers returns the number of roster entries.
func (p *StatsProvider) CountMembers(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.members == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.members.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}

	return count, nil
}

// CountAuditEntries returns the number of stored audit entries.
func (p *StatsProvider) CountAuditEntries(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.audit == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.audit.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}

	return count, nil
}
