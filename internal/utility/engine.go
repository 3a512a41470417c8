package utility

import (
	"context"

	"github.com/sirupsen/logrus"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// TableSource hands out tables by name
type TableSource interface {
	Table(ctx context.Context, name string) (*models.Table, error)
}

// Snapshot holds captured statistics keyed by column
type Snapshot map[ColumnRef]Statistics

// ColumnDelta compares one column before and after masking
type ColumnDelta struct {
	Column ColumnRef
	Before Statistics
	After  Statistics
	Deltas map[Statistic]float64
}

// Report is the outcome of a utility comparison. Summary holds the mean delta per numeric
// statistic across numeric columns; Overall is the mean of those.
type Report struct {
	Columns     []ColumnDelta
	Summary     map[Statistic]float64
	Overall     float64
	Unavailable []error
}

// Engine captures and compares column statistics
type Engine struct {
	Logger *logrus.Logger
}

// NewEngine creates a new utility engine
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{Logger: logger}
}

// Capture describes every column; columns that cannot be described are reported and skipped
func (e *Engine) Capture(ctx context.Context, src TableSource, columns []ColumnRef) (Snapshot, []error, error) {
	snap := make(Snapshot, len(columns))
	var unavailable []error
	for _, ref := range columns {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		t, err := src.Table(ctx, ref.Table)
		if err == nil {
			var s Statistics
			if s, err = Describe(t, ref.Column); err == nil {
				snap[ref] = s
				continue
			}
		}
		unavailable = append(unavailable, e.unavailable(ref, err))
	}
	return snap, unavailable, nil
}

// Compare pairs the statistics of each column present in both snapshots
func (e *Engine) Compare(columns []ColumnRef, before, after Snapshot) *Report {
	report := &Report{Summary: make(map[Statistic]float64)}

	numeric := 0
	for _, ref := range columns {
		pre, okPre := before[ref]
		post, okPost := after[ref]
		if !okPre || !okPost {
			continue
		}

		cd := ColumnDelta{Column: ref, Before: pre, After: post, Deltas: make(map[Statistic]float64)}
		cd.Deltas[Entropy] = Delta(post.Values[Entropy], pre.Values[Entropy])
		if pre.Numeric && post.Numeric {
			for _, st := range NumericStatistics {
				d := Delta(post.Values[st], pre.Values[st])
				cd.Deltas[st] = d
				report.Summary[st] += d
			}
			numeric++
		}
		report.Columns = append(report.Columns, cd)
	}

	if numeric == 0 {
		return report
	}
	for _, st := range NumericStatistics {
		report.Summary[st] /= float64(numeric)
		report.Overall += report.Summary[st]
	}
	report.Overall /= float64(len(NumericStatistics))
	return report
}

func (e *Engine) unavailable(ref ColumnRef, err error) error {
	e.Logger.WithFields(logrus.Fields{
		"table":  ref.Table,
		"column": ref.Column,
	}).Warnf("Utility statistics unavailable: %v", err)
	return apperrors.NewMetricError(err, "utility").WithContext("column", ref.String())
}
