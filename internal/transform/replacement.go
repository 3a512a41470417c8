package transform

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// ValueReplacement overwrites the non-null values of a column with a constant, with values
// drawn from a file, or with generated fake values
type ValueReplacement struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
	Value  string `yaml:"value,omitempty"`
	File   string `yaml:"file,omitempty"`
	Fake   bool   `yaml:"fake,omitempty"`
}

func (o *ValueReplacement) Kind() Kind { return KindValueReplacement }

func (o *ValueReplacement) Target() (string, []string) {
	return o.Table, []string{o.Column}
}

func (o *ValueReplacement) sources() int {
	n := 0
	if o.Value != "" {
		n++
	}
	if o.File != "" {
		n++
	}
	if o.Fake {
		n++
	}
	return n
}

func (o *ValueReplacement) Validate(ctx context.Context, lookup SchemaLookup) error {
	cols, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Column)
	if err != nil {
		return err
	}
	if o.sources() != 1 {
		return invalid(o.Kind(), "exactly one of value, file or fake must be set")
	}
	if o.Value != "" {
		if _, err := models.Coerce(o.Value, cols[0].Type); err != nil {
			return invalid(o.Kind(), "value does not fit column %s: %v", o.Column, err)
		}
	}
	if o.File != "" {
		values, err := readValues(o.File)
		if err != nil {
			return invalid(o.Kind(), "%v", err)
		}
		for _, v := range values {
			if _, err := models.Coerce(v, cols[0].Type); err != nil {
				return invalid(o.Kind(), "file value does not fit column %s: %v", o.Column, err)
			}
		}
	}
	return nil
}

// readValues reads one replacement value per non-empty line
func readValues(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replacement file: %w", err)
	}
	defer f.Close()

	var values []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			values = append(values, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("replacement file %s is empty", path)
	}
	return values, nil
}

func (o *ValueReplacement) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	col, err := columnIndex(t, o.Column)
	if err != nil {
		return Result{}, err
	}
	column := t.Columns[col]

	var next func() (interface{}, error)
	switch {
	case o.Fake:
		if env.Generator == nil {
			return Result{}, fmt.Errorf("no value generator configured")
		}
		next = func() (interface{}, error) { return env.Generator.GenerateValue(column), nil }
	case o.File != "":
		lines, err := readValues(o.File)
		if err != nil {
			return Result{}, err
		}
		values := make([]interface{}, len(lines))
		for i, l := range lines {
			if values[i], err = models.Coerce(l, column.Type); err != nil {
				return Result{}, err
			}
		}
		next = func() (interface{}, error) { return values[env.Rand.Intn(len(values))], nil }
	default:
		v, err := models.Coerce(o.Value, column.Type)
		if err != nil {
			return Result{}, err
		}
		next = func() (interface{}, error) { return v, nil }
	}

	changed := 0
	for _, row := range t.Rows {
		if row[col] == nil {
			continue
		}
		v, err := next()
		if err != nil {
			return Result{}, err
		}
		row[col] = v
		changed++
	}
	if changed > 0 {
		env.Workspace.MarkDirty(t.Name)
	}
	return Result{RowsAffected: changed}, nil
}

// PatternReplacement rewrites the matches of a regular expression in a text column
type PatternReplacement struct {
	Table       string `yaml:"table"`
	Column      string `yaml:"column"`
	Regex       string `yaml:"regex"`
	Replacement string `yaml:"replacement"`
}

func (o *PatternReplacement) Kind() Kind { return KindPatternReplacement }

func (o *PatternReplacement) Target() (string, []string) {
	return o.Table, []string{o.Column}
}

func (o *PatternReplacement) Validate(ctx context.Context, lookup SchemaLookup) error {
	cols, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Column)
	if err != nil {
		return err
	}
	if cols[0].Type != models.String {
		return invalid(o.Kind(), "column %s is not text", o.Column)
	}
	if o.Regex == "" {
		return invalid(o.Kind(), "regex is required")
	}
	if _, err := regexp.Compile(o.Regex); err != nil {
		return invalid(o.Kind(), "regex %q: %v", o.Regex, err)
	}
	return nil
}

func (o *PatternReplacement) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	col, err := columnIndex(t, o.Column)
	if err != nil {
		return Result{}, err
	}
	re, err := regexp.Compile(o.Regex)
	if err != nil {
		return Result{}, err
	}

	changed := 0
	for _, row := range t.Rows {
		s, ok := row[col].(string)
		if !ok {
			continue
		}
		if r := re.ReplaceAllString(s, o.Replacement); r != s {
			row[col] = r
			changed++
		}
	}
	if changed > 0 {
		env.Workspace.MarkDirty(t.Name)
	}
	return Result{RowsAffected: changed}, nil
}

// DateAging shifts every date of a column by a fixed offset
type DateAging struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
	Years  int    `yaml:"years,omitempty"`
	Months int    `yaml:"months,omitempty"`
	Days   int    `yaml:"days,omitempty"`
}

func (o *DateAging) Kind() Kind { return KindDateAging }

func (o *DateAging) Target() (string, []string) {
	return o.Table, []string{o.Column}
}

func (o *DateAging) Validate(ctx context.Context, lookup SchemaLookup) error {
	cols, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Column)
	if err != nil {
		return err
	}
	if cols[0].Type != models.Date {
		return invalid(o.Kind(), "column %s is not a date", o.Column)
	}
	if o.Years == 0 && o.Months == 0 && o.Days == 0 {
		return invalid(o.Kind(), "offset must not be zero")
	}
	return nil
}

func (o *DateAging) Apply(ctx context.Context, env *Env) (Result, error) {
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
		row[col] = tm.AddDate(o.Years, o.Months, o.Days)
		changed++
	}
	if changed > 0 {
		env.Workspace.MarkDirty(t.Name)
	}
	return Result{RowsAffected: changed}, nil
}
