package models

import (
	"fmt"
	"sort"
)

// Table is an in-memory materialization of a dataset table
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]interface{}
	Source  SourceKind
}

// NewTable creates an empty table with the given columns
func NewTable(name string, columns []Column) *Table {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Table{Name: name, Columns: cols}
}

// RowCount returns the number of rows
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column or -1
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column
func (t *Table) Column(name string) (Column, bool) {
	if i := t.ColumnIndex(name); i >= 0 {
		return t.Columns[i], true
	}
	return Column{}, false
}

// ColumnNames returns the names of the visible columns
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !c.Hidden {
			names = append(names, c.Name)
		}
	}
	return names
}

// Values returns a copy of one column's values in row order
func (t *Table) Values(col int) []interface{} {
	values := make([]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[col]
	}
	return values
}

// AddColumn appends a column. values may be nil for an all-NULL column.
func (t *Table) AddColumn(c Column, values []interface{}) error {
	if t.ColumnIndex(c.Name) >= 0 {
		return fmt.Errorf("column %s already exists in table %s", c.Name, t.Name)
	}
	if values != nil && len(values) != len(t.Rows) {
		return fmt.Errorf("column %s has %d values for %d rows", c.Name, len(values), len(t.Rows))
	}
	t.Columns = append(t.Columns, c)
	for i := range t.Rows {
		var v interface{}
		if values != nil {
			v = values[i]
		}
		t.Rows[i] = append(t.Rows[i], v)
	}
	return nil
}

// DropColumns removes the named columns; unknown names are ignored
func (t *Table) DropColumns(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	var keep []int
	var columns []Column
	for i, c := range t.Columns {
		if !drop[c.Name] {
			keep = append(keep, i)
			columns = append(columns, c)
		}
	}
	if len(keep) == len(t.Columns) {
		return
	}

	for r, row := range t.Rows {
		projected := make([]interface{}, len(keep))
		for j, i := range keep {
			projected[j] = row[i]
		}
		t.Rows[r] = projected
	}
	t.Columns = columns
}

// SetColumnType changes the semantic type of a column and converts its values
func (t *Table) SetColumnType(col int, st SemanticType) error {
	for r, row := range t.Rows {
		v, err := Cast(row[col], st)
		if err != nil {
			return fmt.Errorf("row %d: %w", r, err)
		}
		t.Rows[r][col] = v
	}
	t.Columns[col].Type = st
	t.Columns[col].DataType = ""
	return nil
}

// DeleteRows removes every row for which remove returns true and returns the count removed
func (t *Table) DeleteRows(remove func(i int, row []interface{}) bool) int {
	kept := t.Rows[:0]
	removed := 0
	for i, row := range t.Rows {
		if remove(i, row) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	for i := len(kept); i < len(t.Rows); i++ {
		t.Rows[i] = nil
	}
	t.Rows = kept
	return removed
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	c := NewTable(t.Name, t.Columns)
	c.Source = t.Source
	c.Rows = make([][]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]interface{}, len(row))
		copy(r, row)
		c.Rows[i] = r
	}
	return c
}

// SameSchema reports whether two column lists have identical names and types, ignoring hidden columns
func SameSchema(a, b []Column) bool {
	va, vb := visible(a), visible(b)
	if len(va) != len(vb) {
		return false
	}
	for i := range va {
		if va[i].Name != vb[i].Name || va[i].Type != vb[i].Type {
			return false
		}
	}
	return true
}

func visible(cols []Column) []Column {
	var out []Column
	for _, c := range cols {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

// AssignOrdinals returns the 1-based ordinal of each row under a stable ascending sort on the
// first column. ordinals[i] is the ordinal of t.Rows[i].
func AssignOrdinals(t *Table) []int64 {
	order := make([]int, len(t.Rows))
	for i := range order {
		order[i] = i
	}
	if len(t.Columns) > 0 {
		sort.SliceStable(order, func(a, b int) bool {
			return Compare(t.Rows[order[a]][0], t.Rows[order[b]][0]) < 0
		})
	}

	ordinals := make([]int64, len(t.Rows))
	for rank, row := range order {
		ordinals[row] = int64(rank + 1)
	}
	return ordinals
}

// TableFromRecords builds a table from text cells, inferring the semantic type of every
// column. Empty cells are NULL and short records are padded with NULLs.
func TableFromRecords(name string, header []string, body [][]string) (*Table, error) {
	columns := make([]Column, len(header))
	for i, h := range header {
		samples := make([]string, 0, len(body))
		for _, rec := range body {
			if i < len(rec) {
				samples = append(samples, rec[i])
			}
		}
		st := InferColumnType(samples)
		columns[i] = Column{
			Name:           h,
			DataType:       st.String(),
			Type:           st,
			Classification: ClassifyColumn(h),
			Imputation:     ImputeNone,
			IsNullable:     true,
		}
	}

	t := NewTable(name, columns)
	for _, rec := range body {
		if len(rec) > len(columns) {
			return nil, fmt.Errorf("record has %d cells for %d columns", len(rec), len(columns))
		}
		row := make([]interface{}, len(columns))
		for i, cell := range rec {
			if cell == "" {
				continue
			}
			v, err := Coerce(cell, columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", columns[i].Name, err)
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
