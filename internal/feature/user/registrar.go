// Package user binds chat accounts to roster members through authorization
// codes.
package user

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
	FindByTelegramID(ctx context.Context, telegramID int64) ([]domain.Member, error)
	FindByAuthCode(ctx context.Context, code string) ([]domain.Member, error)
	Update(ctx context.Context, fiscalCode string, patch domain.MemberPatch) error
}

// Outcome classifies a registration attempt.
type Outcome int

const (
	// Registered means the chat account is now bound to the member.
	Registered Outcome = iota
	// CallerBound means the chat account already belongs to a member.
	CallerBound
	// InvalidCode means the code resolved to no member or to several.
	InvalidCode
	// TargetBound means the member already has a chat account.
	TargetBound
)

// Registrar binds chat accounts to members.
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

// Register binds userID and handle to the member holding code. The returned
// member is the one the outcome refers to: the newly bound member, the member
// already owning the caller's account, or the already bound target.
func (r *Registrar) Register(ctx context.Context, code string, userID int64, handle string) (Outcome, domain.Member, error) {
	if r == nil || r.members == nil {
		return InvalidCode, domain.Member{}, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return InvalidCode, domain.Member{}, errors.New("context is required")
	}
	if userID == 0 {
		return InvalidCode, domain.Member{}, errors.New("user id is required")
	}

	existing, err := r.members.FindByTelegramID(ctx, userID)
	if err != nil {
		return InvalidCode, domain.Member{}, fmt.Errorf("find caller: %w", err)
	}
	if len(existing) > 0 {
		return CallerBound, existing[0], nil
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return InvalidCode, domain.Member{}, nil
	}

	targets, err := r.members.FindByAuthCode(ctx, code)
	if err != nil {
		return InvalidCode, domain.Member{}, fmt.Errorf("find code holder: %w", err)
	}
	if len(targets) != 1 {
		return InvalidCode, domain.Member{}, nil
	}

	target := targets[0]
	if target.Bound() {
		return TargetBound, target, nil
	}

	patch := domain.BindTelegram(handle, userID)
	if err := r.members.Update(ctx, target.FiscalCode, patch); err != nil {
		return InvalidCode, domain.Member{}, fmt.Errorf("bind telegram account: %w", err)
	}
	patch.Apply(&target)

	r.logger.WithFields(logging.Fields{
		"event":       "user_registered",
		"user_id":     userID,
		"member_code": target.MemberCode,
	}).Info("bound telegram account to member")

	return Registered, target, nil
}
