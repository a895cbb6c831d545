// Package access implements the role gates every privileged command passes
// through, plus the guard that stops callers from stripping their own powers.
package access

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/logging"
	"tg_roster_bot/internal/telegram"
)

// NotAuthorizedText is the reply sent when a gate fails.
const NotAuthorizedText = "Spiacente, ma non sei autorizzato/a"

type memberFinder interface {
	FindByTelegramID(ctx context.Context, telegramID int64) ([]domain.Member, error)
}

type notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Caller identifies who sent a command and where replies go.
type Caller struct {
	UserID int64
	ChatID int64
}

// SelfCheck is the outcome of CheckSelf.
type SelfCheck int

const (
	// SelfOK means caller and target are different members.
	SelfOK SelfCheck = iota
	// SelfTarget means the caller is the target.
	SelfTarget
	// SelfUnresolved means the caller's own record could not be resolved.
	SelfUnresolved
)

// Guard evaluates callers against role sets.
type Guard struct {
	members  memberFinder
	notifier notifier
	logger   *logrus.Entry
}

// NewGuard constructs a Guard. notifier may be nil, in which case failures are
// never reported to the chat.
func NewGuard(members memberFinder, n notifier, logger *logrus.Entry) *Guard {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Guard{
		members:  members,
		notifier: n,
		logger:   logger,
	}
}

// Resolve returns the member bound to userID. ok is false unless exactly one
// member matches; lookup errors are returned alongside.
func (g *Guard) Resolve(ctx context.Context, userID int64) (domain.Member, bool, error) {
	if g == nil || g.members == nil {
		return domain.Member{}, false, errors.New("access guard is not initialized")
	}
	if ctx == nil {
		return domain.Member{}, false, errors.New("context is required")
	}
	if userID == 0 {
		return domain.Member{}, false, nil
	}

	matches, err := g.members.FindByTelegramID(ctx, userID)
	if err != nil {
		return domain.Member{}, false, err
	}
	if len(matches) != 1 {
		return domain.Member{}, false, nil
	}
	return matches[0], true, nil
}

// Check passes when the caller resolves to exactly one active member whose
// role is in roles. Lookup faults fail the check like any other mismatch.
func (g *Guard) Check(ctx context.Context, caller Caller, roles []domain.Role, notify bool) bool {
	member, ok, err := g.Resolve(ctx, caller.UserID)
	if err != nil {
		g.logger.WithFields(logging.Fields{
			"event":   "access_lookup_failed",
			"user_id": caller.UserID,
		}).WithError(err).Warn("caller lookup failed")
	}

	if ok && member.Active && member.Role.In(roles) {
		return true
	}

	if notify {
		g.reject(ctx, caller)
	}
	return false
}

// IsMember gates leaders and above.
func (g *Guard) IsMember(ctx context.Context, caller Caller, notify bool) bool {
	return g.Check(ctx, caller, domain.MemberRoles, notify)
}

// IsAdmin gates admins and super admins.
func (g *Guard) IsAdmin(ctx context.Context, caller Caller, notify bool) bool {
	return g.Check(ctx, caller, domain.AdminRoles, notify)
}

// IsSuperAdmin gates super admins only.
func (g *Guard) IsSuperAdmin(ctx context.Context, caller Caller, notify bool) bool {
	return g.Check(ctx, caller, domain.SuperAdminRoles, notify)
}

// CheckSelf resolves the caller's own record and compares it with target.
func (g *Guard) CheckSelf(ctx context.Context, caller Caller, target domain.Member) (SelfCheck, error) {
	self, ok, err := g.Resolve(ctx, caller.UserID)
	if err != nil {
		return SelfUnresolved, err
	}
	if !ok {
		return SelfUnresolved, nil
	}
	if self.SameIdentity(target) {
		return SelfTarget, nil
	}
	return SelfOK, nil
}

func (g *Guard) reject(ctx context.Context, caller Caller) {
	if g.notifier == nil || caller.ChatID == 0 {
		return
	}

	if err := g.notifier.Send(ctx, caller.ChatID, telegram.Escape(NotAuthorizedText)); err != nil {
		g.logger.WithFields(logging.Fields{
			"event":   "access_notify_failed",
			"chat_id": caller.ChatID,
		}).WithError(err).Warn("could not report authorization failure")
	}
}
