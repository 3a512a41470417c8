// Package preparation fills NULL values of configured columns before any masking operator runs.
package preparation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Entry is one named imputation policy
type Entry struct {
	Name   string                  `yaml:"name" mapstructure:"name"`
	Table  string                  `yaml:"table" mapstructure:"table"`
	Column string                  `yaml:"column" mapstructure:"column"`
	Method models.ImputationPolicy `yaml:"method" mapstructure:"method"`
}

// Change records one imputed cell
type Change struct {
	Table  string
	Column string
	Row    int
	Method models.ImputationPolicy
	Value  interface{}
}

// SchemaLookup returns the columns of a table
type SchemaLookup func(ctx context.Context, table string) ([]models.Column, error)

// Validate checks entries against the schema
func Validate(ctx context.Context, entries []Entry, lookup SchemaLookup) error {
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Name == "" {
			return apperrors.NewConfigurationError("preparation_name", "preparation entry for %s.%s has no name", e.Table, e.Column)
		}
		if seen[e.Name] {
			return apperrors.NewConfigurationError("preparation_name", "duplicate preparation entry %q", e.Name)
		}
		seen[e.Name] = true

		if !e.Method.Valid() {
			return apperrors.NewConfigurationError("preparation_method", "preparation %q: unknown method %q", e.Name, e.Method)
		}

		columns, err := lookup(ctx, e.Table)
		if err != nil {
			return apperrors.NewConfigurationError("preparation_table", "preparation %q: table %s: %v", e.Name, e.Table, err)
		}
		var col *models.Column
		for i := range columns {
			if columns[i].Name == e.Column {
				col = &columns[i]
				break
			}
		}
		if col == nil {
			return apperrors.NewConfigurationError("preparation_column", "preparation %q: column %s not found in table %s", e.Name, e.Column, e.Table)
		}
		if e.Method == models.ImputeAverage && col.Type == models.String {
			return apperrors.NewConfigurationError("preparation_method", "preparation %q: cannot average string column %s.%s", e.Name, e.Table, e.Column)
		}
	}
	return nil
}

// Preparer runs imputation entries against a workspace
type Preparer struct {
	Entries []Entry
	Logger  *logrus.Logger
}

// NewPreparer creates a preparer for the given entries
func NewPreparer(entries []Entry, logger *logrus.Logger) *Preparer {
	return &Preparer{Entries: entries, Logger: logger}
}

// Run imputes every configured column in order and returns the cells it filled
func (p *Preparer) Run(ctx context.Context, ws *dataset.Workspace) ([]Change, error) {
	var changes []Change
	for _, e := range p.Entries {
		if e.Method == models.ImputeNone {
			continue
		}

		t, err := ws.Table(ctx, e.Table)
		if err != nil {
			return changes, apperrors.NewPreparationError(err, e.Name)
		}

		filled, err := Impute(t, e.Column, e.Method)
		if err != nil {
			p.Logger.Errorf("Error imputing %s.%s: %v", e.Table, e.Column, err)
			return changes, apperrors.NewPreparationError(err, e.Name)
		}
		if len(filled) == 0 {
			p.Logger.Debugf("Nothing to impute in %s.%s", e.Table, e.Column)
			continue
		}

		ws.MarkDirty(e.Table)
		p.Logger.Infof("Imputed %d NULL values in %s.%s using %s", len(filled), e.Table, e.Column, e.Method)
		changes = append(changes, filled...)
	}
	return changes, nil
}

// Impute replaces the NULL values of one column with the statistic named by method.
// A column without any non-null value is left untouched.
func Impute(t *models.Table, column string, method models.ImputationPolicy) ([]Change, error) {
	col := t.ColumnIndex(column)
	if col < 0 {
		return nil, fmt.Errorf("%w: %s.%s", apperrors.ErrColumnNotFound, t.Name, column)
	}
	if method == models.ImputeNone {
		return nil, nil
	}

	values := t.Values(col)
	nulls := 0
	present := 0
	for _, v := range values {
		if v == nil {
			nulls++
		} else {
			present++
		}
	}
	if nulls == 0 || present == 0 {
		return nil, nil
	}

	st := t.Columns[col].Type
	var fill interface{}
	var err error
	switch method {
	case models.ImputeAverage:
		fill, err = models.Mean(values, st)
	case models.ImputeMedian:
		fill, err = models.Median(values, st)
	case models.ImputeMode:
		fill, err = models.Mode(values)
	default:
		return nil, fmt.Errorf("unknown imputation method %q", method)
	}
	if err != nil {
		return nil, err
	}

	// Write back in the column's own representation: integers round, dates stay dates
	fill, err = models.Cast(fill, st)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for r, row := range t.Rows {
		if row[col] != nil {
			continue
		}
		row[col] = fill
		changes = append(changes, Change{Table: t.Name, Column: column, Row: r, Method: method, Value: fill})
	}
	return changes, nil
}
