package command

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/feature/access"
	"tg_roster_bot/internal/feature/audit"
	"tg_roster_bot/internal/feature/user"
	"tg_roster_bot/internal/importer"
	"tg_roster_bot/internal/logging"
	"tg_roster_bot/internal/mailer"
	"tg_roster_bot/internal/metrics"
	"tg_roster_bot/internal/telegram"
)

const (
	// authCodeBytes yields eight URL-safe characters.
	authCodeBytes = 6

	defaultLogDays = 7
	maxLogDays     = 36500
	maxLogEntries  = 20
)

type notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type mailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type importRunner interface {
	Import(ctx context.Context) (importer.Result, error)
}

type statsProvider interface {
	CountMembers(ctx context.Context) (int64, error)
	CountAuditEntries(ctx context.Context) (int64, error)
}

// Option configures optional Dispatcher collaborators.
type Option func(*Dispatcher)

// WithMailer enables /inviacodice.
func WithMailer(m mailSender) Option {
	return func(d *Dispatcher) { d.mailer = m }
}

// WithImporter enables /aggiorna.
func WithImporter(i importRunner) Option {
	return func(d *Dispatcher) { d.importer = i }
}

// WithStats supplies the counters shown by /stato.
func WithStats(s statsProvider) Option {
	return func(d *Dispatcher) { d.stats = s }
}

// WithCodeGenerator replaces the random authorization code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(d *Dispatcher) { d.newCode = gen }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithMetrics records command outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithBotUsername sets the name used in deep links and @suffix stripping.
func WithBotUsername(name string) Option {
	return func(d *Dispatcher) { d.botUsername = strings.TrimPrefix(name, "@") }
}

// WithOrgName sets the organisation named in outgoing email.
func WithOrgName(name string) Option {
	return func(d *Dispatcher) { d.orgName = name }
}

// WithBackendName sets the store name reported by /stato.
func WithBackendName(name string) Option {
	return func(d *Dispatcher) { d.backend = name }
}

// WithProcessStart sets the process start time used for uptime.
func WithProcessStart(start time.Time) Option {
	return func(d *Dispatcher) { d.startedAt = start }
}

type handlerFunc func(ctx context.Context, req *request) error

// request is the per-message state handed to a handler.
type request struct {
	caller access.Caller
	handle string
	raw    string
	args   []string

	rejected bool
}

func (r *request) arg(i int) string {
	if i < len(r.args) {
		return r.args[i]
	}
	return ""
}

// Dispatcher routes inbound messages to command handlers.
type Dispatcher struct {
	members   domain.MemberRepository
	auditLog  domain.AuditLog
	notifier  notifier
	guard     *access.Guard
	recorder  *audit.Recorder
	registrar *user.Registrar
	logger    *logrus.Entry

	mailer   mailSender
	importer importRunner
	stats    statsProvider
	metrics  *metrics.Metrics

	newCode     func() (string, error)
	now         func() time.Time
	botUsername string
	orgName     string
	backend     string
	startedAt   time.Time

	handlers map[Command]handlerFunc
}

// NewDispatcher wires the command handlers over the roster and audit log.
func NewDispatcher(members domain.MemberRepository, auditLog domain.AuditLog, n notifier, logger *logrus.Entry, opts ...Option) (*Dispatcher, error) {
	if members == nil || auditLog == nil {
		return nil, errors.New("member repository and audit log are required")
	}
	if n == nil {
		return nil, errors.New("notifier is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	d := &Dispatcher{
		members:   members,
		auditLog:  auditLog,
		notifier:  n,
		guard:     access.NewGuard(members, n, logger),
		recorder:  audit.NewRecorder(auditLog, logger),
		registrar: user.NewRegistrar(members, logger),
		logger:    logger,
		newCode:   randomCode,
		now:       time.Now,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.stats == nil {
		d.stats = memberAndAuditCounts{members: members, audit: auditLog}
	}

	d.handlers = map[Command]handlerFunc{
		Info:          d.handleInfo,
		MemberCode:    d.handleMemberCode,
		Register:      d.handleRegister,
		GenerateCodes: d.handleGenerateCodes,
		SendCode:      d.handleSendCode,
		AddAdmin:      d.handleAddAdmin,
		AddLeader:     d.handleAddLeader,
		RemoveAdmin:   d.handleRemoveAdmin,
		RemoveLeader:  d.handleRemoveLeader,
		Activate:      d.handleActivate,
		Deactivate:    d.handleDeactivate,
		Log:           d.handleLog,
		PurgeLog:      d.handlePurgeLog,
		Refresh:       d.handleRefresh,
		Enabled:       d.handleEnabled,
		Status:        d.handleStatus,
		Help:          d.handleHelp,
	}
	return d, nil
}

// Handle processes one inbound message. It never returns an error: every
// outcome is reported to the chat, and faults are logged.
func (d *Dispatcher) Handle(ctx context.Context, in telegram.Incoming) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(in.Text) == "" {
		return
	}

	started := d.now()
	req := &request{
		caller: access.Caller{UserID: in.UserID, ChatID: in.ChatID},
		handle: in.Handle(),
		raw:    in.Text,
	}
	entry := logging.From(d.logger, logging.Context{UserID: in.UserID, ChatID: in.ChatID})

	if _, err := d.recorder.Record(ctx, req.handle, in.Text); err != nil {
		d.fault(ctx, entry, req, Unknown, started, err)
		return
	}

	tokens, err := Tokenize(in.Text, d.botUsername)
	if err != nil {
		d.fault(ctx, entry, req, Unknown, started, err)
		return
	}

	cmd := Unknown
	if len(tokens) > 0 {
		cmd, _ = Lookup(tokens[0])
		req.args = tokens[1:]
	}

	handler, ok := d.handlers[cmd]
	if !ok {
		if err := d.notifier.Send(ctx, req.caller.ChatID, unknownCommandText(in.Text)); err != nil {
			entry.WithError(err).Warn("could not send unknown command reply")
		}
		entry.WithField("event", "command_unknown").Info("unknown command")
		d.metrics.Command(Unknown.String(), metrics.OutcomeUnknown, d.now().Sub(started).Seconds())
		return
	}

	if err := d.run(ctx, handler, req); err != nil {
		d.fault(ctx, entry, req, cmd, started, err)
		return
	}

	outcome := metrics.OutcomeOK
	if req.rejected {
		outcome = metrics.OutcomeRejected
	}
	entry.WithFields(logging.Fields{
		"event":   "command_dispatched",
		"command": cmd.String(),
		"outcome": outcome,
	}).Info("command handled")
	d.metrics.Command(cmd.String(), outcome, d.now().Sub(started).Seconds())
}

// run calls handler, turning a panic into an error.
func (d *Dispatcher) run(ctx context.Context, handler handlerFunc, req *request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return handler(ctx, req)
}

func (d *Dispatcher) fault(ctx context.Context, entry *logrus.Entry, req *request, cmd Command, started time.Time, cause error) {
	entry.WithFields(logging.Fields{
		"event":   "command_fault",
		"command": cmd.String(),
	}).WithError(cause).Error("command failed")

	if err := d.notifier.Send(ctx, req.caller.ChatID, telegram.Escape(FaultText)); err != nil {
		entry.WithError(err).Warn("could not report command failure")
	}
	d.metrics.Command(cmd.String(), metrics.OutcomeFault, d.now().Sub(started).Seconds())
}

// reply escapes text and sends it to the caller's chat.
func (d *Dispatcher) reply(ctx context.Context, req *request, text string) error {
	return d.send(ctx, req, telegram.Escape(text))
}

// send delivers preformatted MarkdownV2 to the caller's chat.
func (d *Dispatcher) send(ctx context.Context, req *request, markdown string) error {
	return d.notifier.Send(ctx, req.caller.ChatID, markdown)
}

// gate runs a role check, marking the request rejected on failure.
func (d *Dispatcher) gate(ctx context.Context, req *request, roles []domain.Role) bool {
	if d.guard.Check(ctx, req.caller, roles, true) {
		return true
	}
	req.rejected = true
	return false
}

// resolveTarget looks up the member named by the first argument. ok is false
// when a corrective reply was sent instead.
func (d *Dispatcher) resolveTarget(ctx context.Context, req *request) (domain.Member, bool, error) {
	id := req.arg(0)
	if id == "" {
		return domain.Member{}, false, d.reply(ctx, req, NothingToSearchText)
	}

	matches, err := d.members.FindByIdentifier(ctx, id)
	if err != nil {
		return domain.Member{}, false, fmt.Errorf("find member %q: %w", id, err)
	}
	if len(matches) != 1 {
		return domain.Member{}, false, d.reply(ctx, req, fmt.Sprintf("L'iscritto %s non è valido", id))
	}
	return matches[0], true, nil
}

func randomCode() (string, error) {
	buf := make([]byte, authCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate auth code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// memberAndAuditCounts backs /stato when no stats provider is configured.
type memberAndAuditCounts struct {
	members domain.MemberRepository
	audit   domain.AuditLog
}

func (c memberAndAuditCounts) CountMembers(ctx context.Context) (int64, error) {
	return c.members.Count(ctx)
}

func (c memberAndAuditCounts) CountAuditEntries(ctx context.Context) (int64, error) {
	return c.audit.Count(ctx)
}
