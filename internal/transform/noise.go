package transform

import (
	"context"
	"math"
	"time"

	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// ValueVariance adds zero-mean uniform noise of up to Sigma percent to each value.
// Numbers vary by a share of their own magnitude, dates by a share of the column's span.
type ValueVariance struct {
	Table  string  `yaml:"table"`
	Column string  `yaml:"column"`
	Sigma  float64 `yaml:"sigma"`
}

func (o *ValueVariance) Kind() Kind { return KindValueVariance }

func (o *ValueVariance) Target() (string, []string) {
	return o.Table, []string{o.Column}
}

func (o *ValueVariance) Validate(ctx context.Context, lookup SchemaLookup) error {
	cols, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Column)
	if err != nil {
		return err
	}
	if cols[0].Type == models.String {
		return invalid(o.Kind(), "column %s is not numeric or date", o.Column)
	}
	if o.Sigma <= 0 || o.Sigma > 100 || math.IsNaN(o.Sigma) {
		return invalid(o.Kind(), "sigma must be within (0,100], got %v", o.Sigma)
	}
	return nil
}

func (o *ValueVariance) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	col, err := columnIndex(t, o.Column)
	if err != nil {
		return Result{}, err
	}

	share := o.Sigma / 100
	st := t.Columns[col].Type

	// Dates have no meaningful magnitude, so the column's range sets the scale
	var span time.Duration
	if st == models.Date {
		var lo, hi time.Time
		first := true
		for _, row := range t.Rows {
			tm, ok := row[col].(time.Time)
			if !ok {
				continue
			}
			if first || tm.Before(lo) {
				lo = tm
			}
			if first || tm.After(hi) {
				hi = tm
			}
			first = false
		}
		span = hi.Sub(lo)
	}

	changed := 0
	for _, row := range t.Rows {
		if row[col] == nil {
			continue
		}
		u := env.Rand.Float64()*2 - 1

		switch st {
		case models.Integer:
			v, ok := models.ToInt(row[col])
			if !ok {
				continue
			}
			row[col] = int64(math.Round(float64(v) + float64(v)*share*u))
		case models.Float:
			v, ok := models.ToFloat(row[col])
			if !ok {
				continue
			}
			row[col] = v + v*share*u
		case models.Date:
			tm, ok := models.ToTime(row[col])
			if !ok {
				continue
			}
			offset := time.Duration(float64(span) * share * u)
			row[col] = tm.Add(offset)
		default:
			continue
		}
		changed++
	}
	if changed > 0 {
		env.Workspace.MarkDirty(t.Name)
	}
	return Result{RowsAffected: changed}, nil
}
