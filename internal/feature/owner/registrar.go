// Package owner provides startup helpers for ensuring the configured bot owner
// holds the super admin role in the roster.
package owner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/logging"
)

type memberStore interface {
	FindByIdentifier(ctx context.Context, id string) ([]domain.Member, error)
	Update(ctx context.Context, fiscalCode string, patch domain.MemberPatch) error
}

// Registrar bootstraps the configured bot owner record.
type Registrar struct {
	members memberStore
	logger  *logrus.Entry
}

// NewRegistrar constructs a Registrar over the roster.
func NewRegistrar(members memberStore, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		members: members,
		logger:  logger,
	}
}

// EnsureOwner promotes the member identified by membership or fiscal code to
// super admin and activates them. It returns promoted=false without error when
// no identifier is configured or the member has not been imported yet.
func (r *Registrar) EnsureOwner(ctx context.Context, identifier string) (bool, error) {
	if r == nil || r.members == nil {
		return false, errors.New("owner registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		r.logger.WithField("event", "owner_bootstrap_skipped").Debug("no bot owner configured")
		return false, nil
	}

	matches, err := r.members.FindByIdentifier(ctx, identifier)
	if err != nil {
		return false, fmt.Errorf("find owner: %w", err)
	}

	switch len(matches) {
	case 0:
		r.logger.WithFields(logging.Fields{
			"event": "owner_bootstrap_skipped",
			"owner": identifier,
		}).Warn("bot owner is not in the roster yet")
		return false, nil
	case 1:
	default:
		return false, fmt.Errorf("owner identifier %q matches %d members", identifier, len(matches))
	}

	owner := matches[0]
	if owner.Role == domain.RoleSuperAdmin && owner.Active {
		r.logger.WithFields(logging.Fields{
			"event": "owner_bootstrap",
			"owner": owner.MemberCode,
		}).Debug("bot owner already super admin")
		return false, nil
	}

	role := domain.RoleSuperAdmin
	active := true
	if err := r.members.Update(ctx, owner.FiscalCode, domain.MemberPatch{Role: &role, Active: &active}); err != nil {
		return false, fmt.Errorf("ensure owner: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":         "owner_bootstrap",
		"owner":         owner.MemberCode,
		"previous_role": owner.Role,
	}).Info("promoted bot owner to super admin")

	return true, nil
}
