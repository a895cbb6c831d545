// Package audit records every inbound command before it is interpreted.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/logging"
)

// AnonymousName is recorded when the sender has no usable handle.
const AnonymousName = "anonimo"

type auditAppender interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
}

// Recorder appends audit entries for inbound commands.
type Recorder struct {
	log    auditAppender
	logger *logrus.Entry
	now    func() time.Time
}

// NewRecorder constructs a Recorder writing to log.
func NewRecorder(log auditAppender, logger *logrus.Entry) *Recorder {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Recorder{
		log:    log,
		logger: logger,
		now:    time.Now,
	}
}

// Record stores the lower-cased, trimmed command text under the sender's
// display name and returns the written entry.
func (r *Recorder) Record(ctx context.Context, username, command string) (domain.AuditEntry, error) {
	if r == nil || r.log == nil {
		return domain.AuditEntry{}, errors.New("audit recorder is not initialized")
	}
	if ctx == nil {
		return domain.AuditEntry{}, errors.New("context is required")
	}

	name := strings.TrimSpace(username)
	if name == "" {
		name = AnonymousName
	}

	entry := domain.AuditEntry{
		ID:       uuid.NewString(),
		LoggedAt: r.now().UTC().Truncate(time.Millisecond),
		Username: name,
		Command:  strings.ToLower(strings.TrimSpace(command)),
	}

	if err := r.log.Append(ctx, entry); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("append audit entry: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":    "command_audited",
		"audit_id": entry.ID,
		"username": entry.Username,
	}).Debug("recorded command")

	return entry, nil
}
