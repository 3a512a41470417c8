package transform

import (
	"context"
	"math"
	"time"

	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Round rounds a numeric column to a number of decimal places
type Round struct {
	Table     string `yaml:"table"`
	Column    string `yaml:"column"`
	Precision int    `yaml:"precision"`
}

func (o *Round) Kind() Kind { return KindRound }

func (o *Round) Target() (string, []string) {
	return o.Table, []string{o.Column}
}

func (o *Round) Validate(ctx context.Context, lookup SchemaLookup) error {
	cols, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Column)
	if err != nil {
		return err
	}
	if !cols[0].Type.IsNumeric() {
		return invalid(o.Kind(), "column %s is not numeric", o.Column)
	}
	if o.Precision < 0 || o.Precision > 15 {
		return invalid(o.Kind(), "precision must be within [0,15], got %d", o.Precision)
	}
	return nil
}

// RoundValue rounds half away from zero to precision decimal places
func RoundValue(v float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}

func (o *Round) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	col, err := columnIndex(t, o.Column)
	if err != nil {
		return Result{}, err
	}
	if t.Columns[col].Type != models.Float {
		// Integers already have no decimals
		return Result{}, nil
	}

	changed := 0
	for _, row := range t.Rows {
		f, ok := row[col].(float64)
		if !ok {
			continue
		}
		if r := RoundValue(f, o.Precision); r != f {
			row[col] = r
			changed++
		}
	}
	if changed > 0 {
		env.Workspace.MarkDirty(t.Name)
	}
	return Result{RowsAffected: changed}, nil
}

// DateUnit is a truncation boundary for dates
type DateUnit string

const (
	UnitSecond DateUnit = "second"
	UnitMinute DateUnit = "minute"
	UnitHour   DateUnit = "hour"
	UnitDay    DateUnit = "day"
	UnitMonth  DateUnit = "month"
	UnitYear   DateUnit = "year"
)

// TruncateTime cuts t down to the start of its unit
func TruncateTime(t time.Time, unit DateUnit) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	loc := t.Location()
	switch unit {
	case UnitSecond:
		return time.Date(y, mo, d, h, mi, s, 0, loc)
	case UnitMinute:
		return time.Date(y, mo, d, h, mi, 0, 0, loc)
	case UnitHour:
		return time.Date(y, mo, d, h, 0, 0, 0, loc)
	case UnitDay:
		return time.Date(y, mo, d, 0, 0, 0, 0, loc)
	case UnitMonth:
		return time.Date(y, mo, 1, 0, 0, 0, 0, loc)
	case UnitYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	}
	return t
}

// RoundDate truncates a date column to a unit boundary
type RoundDate struct {
	Table  string   `yaml:"table"`
	Column string   `yaml:"column"`
	Unit   DateUnit `yaml:"unit"`
}

func (o *RoundDate) Kind() Kind { return KindRoundDate }

func (o *RoundDate) Target() (string, []string) {
	return o.Table, []string{o.Column}
}

func (o *RoundDate) Validate(ctx context.Context, lookup SchemaLookup) error {
	cols, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Column)
	if err != nil {
		return err
	}
	if cols[0].Type != models.Date {
		return invalid(o.Kind(), "column %s is not a date", o.Column)
	}
	switch o.Unit {
	case UnitSecond, UnitMinute, UnitHour, UnitDay, UnitMonth, UnitYear:
		return nil
	}
	return invalid(o.Kind(), "unknown unit %q", o.Unit)
}

func (o *RoundDate) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	col, err := columnIndex(t, o.Column)
	if err != nil {
		return Result{}, err
	}

	changed := 0
	for _, row := range t.Rows {
		tm, ok := row[col].(time.Time)
		if !ok {
			continue
		}
		if r := TruncateTime(tm, o.Unit); !r.Equal(tm) {
			row[col] = r
			changed++
		}
	}
	if changed > 0 {
		env.Workspace.MarkDirty(t.Name)
	}
	return Result{RowsAffected: changed}, nil
}
