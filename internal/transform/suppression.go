package transform

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Suppression strategies
const (
	SuppressDelete = 1
	SuppressNull   = 2
	SuppressSmooth = 3
)

// Smoothing sources
const (
	SmoothAverage = 1
	SmoothManual  = 2
)

// LocalSuppression handles records that are unique over the target columns
type LocalSuppression struct {
	Table       string   `yaml:"table"`
	Columns     []string `yaml:"columns"`
	Strategy    int      `yaml:"strategy"`
	Smoothing   int      `yaml:"smoothing,omitempty"`
	Replacement string   `yaml:"replacement,omitempty"`
}

func (o *LocalSuppression) Kind() Kind { return KindLocalSuppression }

func (o *LocalSuppression) Target() (string, []string) {
	return o.Table, o.Columns
}

func (o *LocalSuppression) Validate(ctx context.Context, lookup SchemaLookup) error {
	if len(o.Columns) == 0 {
		return invalid(o.Kind(), "at least one column is required")
	}
	cols, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Columns...)
	if err != nil {
		return err
	}

	switch o.Strategy {
	case SuppressDelete, SuppressNull:
		return nil
	case SuppressSmooth:
	default:
		return invalid(o.Kind(), "strategy must be 1 (delete), 2 (null) or 3 (smooth), got %d", o.Strategy)
	}

	switch o.Smoothing {
	case SmoothAverage:
		for _, c := range cols {
			if c.Type == models.String {
				return invalid(o.Kind(), "cannot average string column %s", c.Name)
			}
		}
	case SmoothManual:
	default:
		return invalid(o.Kind(), "smoothing must be 1 (average) or 2 (manual), got %d", o.Smoothing)
	}
	return nil
}

// UniqueRows returns the indexes of rows whose projection over cols occurs exactly once.
// NULL groups like any other value.
func UniqueRows(t *models.Table, cols []int) []int {
	keys := make([]string, len(t.Rows))
	counts := make(map[string]int)
	for r, row := range t.Rows {
		values := make([]interface{}, len(cols))
		for i, c := range cols {
			values[i] = row[c]
		}
		keys[r] = models.TupleKey(values...)
		counts[keys[r]]++
	}

	var unique []int
	for r, k := range keys {
		if counts[k] == 1 {
			unique = append(unique, r)
		}
	}
	return unique
}

func (o *LocalSuppression) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	cols := make([]int, len(o.Columns))
	for i, name := range o.Columns {
		if cols[i], err = columnIndex(t, name); err != nil {
			return Result{}, err
		}
	}

	unique := UniqueRows(t, cols)
	env.Logger.Debugf("Found %d unique records in %s over %v", len(unique), o.Table, o.Columns)
	if len(unique) == 0 {
		return Result{}, nil
	}

	switch o.Strategy {
	case SuppressDelete:
		remove := make(map[int]bool, len(unique))
		for _, r := range unique {
			remove[r] = true
		}
		deleted := t.DeleteRows(func(i int, _ []interface{}) bool { return remove[i] })
		env.Workspace.MarkDirty(t.Name)
		return Result{RowsDeleted: deleted}, nil

	case SuppressNull:
		for _, r := range unique {
			for _, c := range cols {
				t.Rows[r][c] = nil
			}
		}
		env.Workspace.MarkDirty(t.Name)
		return Result{RowsAffected: len(unique)}, nil
	}

	replacements, failed := o.replacements(t, cols, env.Logger)
	if len(failed) > 0 {
		// The same replacement applies to every unique row, so none of them can be smoothed
		env.Logger.WithFields(logrus.Fields{
			"table":   o.Table,
			"columns": failed,
			"rows":    len(unique),
		}).Warn("Skipping smoothing of unique records: replacement does not fit the column type")
		return Result{}, nil
	}

	for _, r := range unique {
		for i, c := range cols {
			t.Rows[r][c] = replacements[i]
		}
	}
	env.Workspace.MarkDirty(t.Name)
	return Result{RowsAffected: len(unique)}, nil
}

// replacements computes one type-checked replacement per target column and lists the
// columns for which none could be produced
func (o *LocalSuppression) replacements(t *models.Table, cols []int, logger *logrus.Logger) ([]interface{}, []string) {
	out := make([]interface{}, len(cols))
	var failed []string
	for i, c := range cols {
		column := t.Columns[c]

		var v interface{}
		var err error
		if o.Smoothing == SmoothAverage {
			v, err = models.Mean(t.Values(c), column.Type)
			if err == nil {
				v, err = models.Cast(v, column.Type)
			}
		} else {
			v, err = models.Coerce(o.Replacement, column.Type)
		}
		if err != nil {
			logger.Debugf("No replacement for %s.%s: %v", t.Name, column.Name, err)
			failed = append(failed, column.Name)
			continue
		}
		out[i] = v
	}
	return out, failed
}
