package staging

import (
	"context"
	"fmt"
	"sort"

	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// backup applies the configured selection percents, tags every row of a restricted table
// with its ordinal and copies the unselected rows into a side table. It returns the
// restricted tables.
func (c *Coordinator) backup(ctx context.Context, ws *dataset.Workspace, percents map[string]float64, report *Report) ([]string, error) {
	for _, table := range sortedTables(percents) {
		t, err := ws.Table(ctx, table)
		if err != nil {
			return nil, err
		}
		if err := c.Sampler.SelectRows(table, t.RowCount(), percents[table]); err != nil {
			return nil, err
		}
	}

	var restricted []string
	for _, table := range c.Sampler.Tables() {
		exists, err := ws.Has(ctx, table)
		if err != nil {
			return nil, err
		}
		if !exists {
			c.Logger.Warningf("Selection on %s ignored: table not found", table)
			continue
		}
		t, err := ws.Table(ctx, table)
		if err != nil {
			return nil, err
		}

		ordinals := models.AssignOrdinals(t)
		values := make([]interface{}, len(ordinals))
		for i, o := range ordinals {
			values[i] = o
		}
		col := models.Column{Name: OrdinalColumn, DataType: "bigint", Type: models.Integer, Hidden: true}
		if err := t.AddColumn(col, values); err != nil {
			return nil, err
		}

		bak := models.NewTable(BackupTableName(table), t.Columns)
		selected := 0
		for i, row := range t.Rows {
			if c.Sampler.IsRowSelected(table, ordinals[i]) {
				selected++
				continue
			}
			copied := make([]interface{}, len(row))
			copy(copied, row)
			bak.Rows = append(bak.Rows, copied)
		}
		if err := ws.Put(ctx, bak); err != nil {
			return nil, err
		}
		ws.MarkDirty(table)

		report.Selected[table] = selected
		restricted = append(restricted, table)
		c.Logger.Infof("Backed up %d unselected rows of %s into %s", bak.RowCount(), table, bak.Name)
	}
	return restricted, nil
}

// restore puts the unselected rows back. Rows of a restricted table whose ordinal is not
// selected are deleted, the backed-up rows are re-inserted column by column and the table
// is put back in ordinal order. Columns added by transforms are NULL on restored rows, and
// a column whose type no longer holds the restored values becomes text.
func (c *Coordinator) restore(ctx context.Context, ws *dataset.Workspace, tables []string) error {
	for _, table := range tables {
		bakName := BackupTableName(table)
		bak, err := ws.Table(ctx, bakName)
		if err != nil {
			return err
		}
		t, err := ws.Table(ctx, table)
		if err != nil {
			return err
		}

		ordCol := t.ColumnIndex(OrdinalColumn)
		if ordCol < 0 {
			return fmt.Errorf("table %s lost its %s column", table, OrdinalColumn)
		}
		dropped := t.DeleteRows(func(_ int, row []interface{}) bool {
			o, ok := row[ordCol].(int64)
			return !ok || !c.Sampler.IsRowSelected(table, o)
		})

		mapping := make([]int, len(t.Columns))
		for i, col := range t.Columns {
			mapping[i] = bak.ColumnIndex(col.Name)
		}
		widen := make([]bool, len(t.Columns))
		for _, src := range bak.Rows {
			row := make([]interface{}, len(t.Columns))
			for i, j := range mapping {
				if j >= 0 {
					row[i] = src[j]
					widen[i] = widen[i] || !models.Holds(t.Columns[i].Type, row[i])
				}
			}
			t.Rows = append(t.Rows, row)
		}
		// A transform changed the column type; text keeps the original values next to the masked ones
		for i, w := range widen {
			if !w {
				continue
			}
			c.Logger.Warningf("Column %s.%s no longer fits its unselected rows, storing it as text", table, t.Columns[i].Name)
			if err := t.SetColumnType(i, models.String); err != nil {
				return err
			}
		}

		sort.SliceStable(t.Rows, func(a, b int) bool {
			return models.Compare(t.Rows[a][ordCol], t.Rows[b][ordCol]) < 0
		})
		t.DropColumns(OrdinalColumn)
		ws.MarkDirty(table)
		ws.Drop(bakName)

		c.Logger.Infof("Restored %d unselected rows of %s (%d rows outside the selection removed)", bak.RowCount(), table, dropped)
	}
	return nil
}
