package transform

import (
	"context"
	"math"

	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Sampling keeps a random Percent of the values of one column and deletes the rows whose
// value was not kept. Rows with a NULL value are left alone.
type Sampling struct {
	Table   string  `yaml:"table"`
	Column  string  `yaml:"column"`
	Percent float64 `yaml:"percent"`
}

func (o *Sampling) Kind() Kind { return KindSampling }

func (o *Sampling) Target() (string, []string) {
	return o.Table, []string{o.Column}
}

func (o *Sampling) Validate(ctx context.Context, lookup SchemaLookup) error {
	if _, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Column); err != nil {
		return err
	}
	if o.Percent < 0 || o.Percent > 100 || math.IsNaN(o.Percent) {
		return invalid(o.Kind(), "percent must be within [0,100], got %v", o.Percent)
	}
	return nil
}

func (o *Sampling) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	col, err := columnIndex(t, o.Column)
	if err != nil {
		return Result{}, err
	}

	var values []interface{}
	for _, row := range t.Rows {
		if row[col] != nil {
			values = append(values, row[col])
		}
	}
	env.Rand.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })

	size := int(math.Round(float64(len(values)) * o.Percent / 100))
	kept := make(map[string]bool, size)
	for _, v := range values[:size] {
		kept[models.Key(v)] = true
	}

	deleted := t.DeleteRows(func(_ int, row []interface{}) bool {
		return row[col] != nil && !kept[models.Key(row[col])]
	})
	if deleted > 0 {
		env.Workspace.MarkDirty(t.Name)
	}
	return Result{RowsDeleted: deleted}, nil
}

// Shuffle permutes the values of each non-key column independently across rows
type Shuffle struct {
	Table      string   `yaml:"table"`
	Columns    []string `yaml:"columns,omitempty"`
	KeyColumns []string `yaml:"key_columns,omitempty"`
}

func (o *Shuffle) Kind() Kind { return KindShuffle }

func (o *Shuffle) Target() (string, []string) {
	return o.Table, o.Columns
}

func (o *Shuffle) Validate(ctx context.Context, lookup SchemaLookup) error {
	names := append(append([]string(nil), o.Columns...), o.KeyColumns...)
	if _, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, names...); err != nil {
		return err
	}
	keys := make(map[string]bool, len(o.KeyColumns))
	for _, k := range o.KeyColumns {
		keys[k] = true
	}
	for _, c := range o.Columns {
		if keys[c] {
			return invalid(o.Kind(), "column %s is both shuffled and a key", c)
		}
	}
	return nil
}

// shuffled resolves the columns to permute: the configured ones, or every visible column
// that is not a key. Without configured keys the first column is the key.
func (o *Shuffle) shuffled(t *models.Table) ([]int, error) {
	if len(o.Columns) > 0 {
		cols := make([]int, len(o.Columns))
		for i, name := range o.Columns {
			c, err := columnIndex(t, name)
			if err != nil {
				return nil, err
			}
			cols[i] = c
		}
		return cols, nil
	}

	keys := make(map[string]bool)
	for _, k := range o.KeyColumns {
		keys[k] = true
	}
	if len(keys) == 0 && len(t.Columns) > 0 {
		keys[t.Columns[0].Name] = true
	}

	var cols []int
	for i, c := range t.Columns {
		if !c.Hidden && !keys[c.Name] {
			cols = append(cols, i)
		}
	}
	return cols, nil
}

func (o *Shuffle) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	cols, err := o.shuffled(t)
	if err != nil {
		return Result{}, err
	}

	for _, c := range cols {
		values := t.Values(c)
		perm := env.Rand.Perm(len(values))
		for r, row := range t.Rows {
			row[c] = values[perm[r]]
		}
	}
	if len(cols) > 0 && len(t.Rows) > 1 {
		env.Workspace.MarkDirty(t.Name)
	}
	return Result{RowsAffected: len(t.Rows)}, nil
}
