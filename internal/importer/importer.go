// Package importer loads the roster from a spreadsheet and upserts it into
// the member store in a single atomic batch keyed by fiscal code.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/logging"
	"tg_roster_bot/internal/metrics"
)

type upserter interface {
	UpsertBatch(ctx context.Context, members []domain.Member) (inserted, updated int, err error)
}

// Result summarizes one import run.
type Result struct {
	Inserted int
	Updated  int
	Rejected int
}

// Importer copies rows from a Source into the roster.
type Importer struct {
	source  Source
	members upserter
	metrics *metrics.Metrics
	logger  *logrus.Entry
}

// New constructs an Importer. m may be nil.
func New(source Source, members upserter, m *metrics.Metrics, logger *logrus.Entry) *Importer {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Importer{
		source:  source,
		members: members,
		metrics: m,
		logger:  logger,
	}
}

// Import reads every row, drops the invalid ones and upserts the rest.
// Either all valid rows are written or none are.
func (i *Importer) Import(ctx context.Context) (Result, error) {
	if i == nil || i.source == nil || i.members == nil {
		return Result{}, errors.New("importer is not initialized")
	}
	if ctx == nil {
		return Result{}, errors.New("context is required")
	}

	rows, err := i.source.Rows(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load roster rows: %w", err)
	}

	members := make([]domain.Member, 0, len(rows))
	var result Result
	for n, row := range rows {
		m, err := row.Member()
		if err != nil {
			result.Rejected++
			i.logger.WithFields(logging.Fields{
				"event": "import_row_rejected",
				// Header is row 1.
				"row": n + 2,
			}).WithError(err).Warn("skipping invalid roster row")
			continue
		}
		members = append(members, m)
	}

	if len(members) > 0 {
		inserted, updated, err := i.members.UpsertBatch(ctx, members)
		if err != nil {
			return Result{}, fmt.Errorf("upsert roster: %w", err)
		}
		result.Inserted, result.Updated = inserted, updated
	}

	i.metrics.ImportRows(metrics.RowInserted, result.Inserted)
	i.metrics.ImportRows(metrics.RowUpdated, result.Updated)
	i.metrics.ImportRows(metrics.RowRejected, result.Rejected)

	i.logger.WithFields(logging.Fields{
		"event":    "import_completed",
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"rejected": result.Rejected,
	}).Info("roster import completed")

	return result, nil
}
