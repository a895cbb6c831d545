// Package metrics defines the bot's Prometheus collectors. All recording
// methods are safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeUnknown  = "unknown"
	OutcomeRejected = "rejected"
	OutcomeFault    = "fault"
)

// Message delivery results.
const (
	MessageSent     = "sent"
	MessageFallback = "fallback"
	MessageFailed   = "failed"
)

// Import row results.
const (
	RowInserted = "inserted"
	RowUpdated  = "updated"
	RowRejected = "rejected"
)

// Metrics holds the bot's collectors.
type Metrics struct {
	commands     *prometheus.CounterVec
	messages     *prometheus.CounterVec
	importRows   *prometheus.CounterVec
	auditPurged  prometheus.Counter
	commandTimes *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rosterbot_commands_total",
				Help: "commands handled, by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rosterbot_messages_total",
				Help: "outbound chat messages, by delivery result",
			},
			[]string{"result"},
		),
		importRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rosterbot_import_rows_total",
				Help: "roster rows processed by the importer",
			},
			[]string{"result"},
		),
		auditPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rosterbot_audit_entries_purged_total",
				Help: "audit entries removed by purge commands",
			},
		),
		commandTimes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rosterbot_command_duration_seconds",
				Help:    "time spent handling one command",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
}

// Command records one handled command.
func (m *Metrics) Command(command, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.commandTimes.WithLabelValues(command).Observe(seconds)
}

// Message records one outbound delivery attempt.
func (m *Metrics) Message(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}

// ImportRows adds n rows with the given result.
func (m *Metrics) ImportRows(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importRows.WithLabelValues(result).Add(float64(n))
}

// AuditPurged adds n purged entries.
func (m *Metrics) AuditPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.auditPurged.Add(float64(n))
}
