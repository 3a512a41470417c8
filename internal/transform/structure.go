package transform

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Decomposition moves columns out of a table into a new side table
type Decomposition struct {
	Table    string   `yaml:"table"`
	Columns  []string `yaml:"columns"`
	NewTable string   `yaml:"new_table"`
}

func (o *Decomposition) Kind() Kind { return KindDecomposition }

func (o *Decomposition) Target() (string, []string) {
	return o.Table, o.Columns
}

func (o *Decomposition) Validate(ctx context.Context, lookup SchemaLookup) error {
	if len(o.Columns) == 0 {
		return invalid(o.Kind(), "at least one column is required")
	}
	if _, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Columns...); err != nil {
		return err
	}
	if o.NewTable == "" || o.NewTable == o.Table {
		return invalid(o.Kind(), "a new table name different from %s is required", o.Table)
	}
	return keepsSomeColumn(ctx, lookup, o.Kind(), o.Table, o.Columns)
}

func (o *Decomposition) Apply(ctx context.Context, env *Env) (Result, error) {
	exists, err := env.Workspace.Has(ctx, o.NewTable)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{}, fmt.Errorf("%w: table %s already exists", apperrors.ErrDuplicateName, o.NewTable)
	}

	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	cols := make([]int, len(o.Columns))
	moved := make([]models.Column, len(o.Columns))
	for i, name := range o.Columns {
		if cols[i], err = columnIndex(t, name); err != nil {
			return Result{}, err
		}
		moved[i] = t.Columns[cols[i]]
		moved[i].ColumnKey = ""
	}

	side := models.NewTable(o.NewTable, moved)
	side.Source = t.Source
	side.Rows = make([][]interface{}, len(t.Rows))
	for r, row := range t.Rows {
		values := make([]interface{}, len(cols))
		for i, c := range cols {
			values[i] = row[c]
		}
		side.Rows[r] = values
	}

	t.DropColumns(o.Columns...)
	env.Workspace.MarkDirty(t.Name)
	if err := env.Workspace.Put(ctx, side); err != nil {
		return Result{}, err
	}
	return Result{RowsAffected: len(t.Rows), TablesCreated: []string{o.NewTable}}, nil
}

// DeleteColumns drops columns entirely
type DeleteColumns struct {
	Table   string   `yaml:"table"`
	Columns []string `yaml:"columns"`
}

func (o *DeleteColumns) Kind() Kind { return KindDeleteColumns }

func (o *DeleteColumns) Target() (string, []string) {
	return o.Table, o.Columns
}

func (o *DeleteColumns) Validate(ctx context.Context, lookup SchemaLookup) error {
	if len(o.Columns) == 0 {
		return invalid(o.Kind(), "at least one column is required")
	}
	if _, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Columns...); err != nil {
		return err
	}
	return keepsSomeColumn(ctx, lookup, o.Kind(), o.Table, o.Columns)
}

func (o *DeleteColumns) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}
	for _, name := range o.Columns {
		if _, err := columnIndex(t, name); err != nil {
			return Result{}, err
		}
	}
	t.DropColumns(o.Columns...)
	env.Workspace.MarkDirty(t.Name)
	return Result{RowsAffected: len(t.Rows)}, nil
}

func keepsSomeColumn(ctx context.Context, lookup SchemaLookup, kind Kind, table string, removed []string) error {
	columns, err := lookup(ctx, table)
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(removed))
	for _, c := range removed {
		drop[c] = true
	}
	for _, c := range columns {
		if !c.Hidden && !drop[c.Name] {
			return nil
		}
	}
	return invalid(kind, "table %s would be left without columns", table)
}

// Identifier modes
const (
	IdentifierUUID     = "uuid"
	IdentifierSequence = "sequence"
)

// Identifier adds a surrogate identifier column to a table
type Identifier struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column,omitempty"`
	Mode   string `yaml:"mode,omitempty"`
}

func (o *Identifier) Kind() Kind { return KindIdentifier }

func (o *Identifier) column() string {
	if o.Column == "" {
		return "surrogate_id"
	}
	return o.Column
}

func (o *Identifier) mode() string {
	if o.Mode == "" {
		return IdentifierUUID
	}
	return o.Mode
}

func (o *Identifier) Target() (string, []string) {
	return o.Table, []string{o.column()}
}

func (o *Identifier) Validate(ctx context.Context, lookup SchemaLookup) error {
	if _, err := lookupColumns(ctx, lookup, o.Kind(), o.Table); err != nil {
		return err
	}
	all, err := lookup(ctx, o.Table)
	if err != nil {
		return err
	}
	for _, c := range all {
		if c.Name == o.column() {
			return invalid(o.Kind(), "column %s already exists in table %s", o.column(), o.Table)
		}
	}
	switch o.mode() {
	case IdentifierUUID, IdentifierSequence:
		return nil
	}
	return invalid(o.Kind(), "unknown mode %q", o.Mode)
}

func (o *Identifier) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, o.Table)
	if err != nil {
		return Result{}, err
	}

	column := models.Column{Name: o.column(), Type: models.String, Classification: models.Identifying}
	values := make([]interface{}, len(t.Rows))
	if o.mode() == IdentifierSequence {
		column.Type = models.Integer
		for i := range values {
			values[i] = int64(i + 1)
		}
	} else {
		for i := range values {
			id, err := uuid.NewRandomFromReader(env.Rand)
			if err != nil {
				return Result{}, err
			}
			values[i] = id.String()
		}
	}

	if err := t.AddColumn(column, values); err != nil {
		return Result{}, err
	}
	env.Workspace.MarkDirty(t.Name)
	return Result{RowsAffected: len(t.Rows)}, nil
}
