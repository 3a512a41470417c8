// Package risk groups rows into equivalence classes over quasi-identifier sets and scores
// their re-identification risk.
package risk

import (
	"fmt"
	"sort"

	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// EquivalenceClass is a group of rows sharing identical values over a QI set
type EquivalenceClass struct {
	Key    string
	Values []interface{}
	Size   int
}

// Classes partitions the rows with non-null values in every column into equivalence classes.
// Classes are returned in key order; their sizes sum to the number of complete rows.
func Classes(t *models.Table, columns []string) ([]EquivalenceClass, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("quasi-identifier set of table %s is empty", t.Name)
	}
	cols := make([]int, len(columns))
	for i, name := range columns {
		cols[i] = t.ColumnIndex(name)
		if cols[i] < 0 {
			return nil, fmt.Errorf("%w: %s.%s", apperrors.ErrColumnNotFound, t.Name, name)
		}
	}

	index := make(map[string]*EquivalenceClass)
	for _, row := range t.Rows {
		values := make([]interface{}, len(cols))
		complete := true
		for i, c := range cols {
			if row[c] == nil {
				complete = false
				break
			}
			values[i] = row[c]
		}
		if !complete {
			continue
		}

		key := models.TupleKey(values...)
		class, ok := index[key]
		if !ok {
			class = &EquivalenceClass{Key: key, Values: values}
			index[key] = class
		}
		class.Size++
	}

	classes := make([]EquivalenceClass, 0, len(index))
	for _, c := range index {
		classes = append(classes, *c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Key < classes[j].Key })
	return classes, nil
}

// Population returns the number of rows covered by the classes
func Population(classes []EquivalenceClass) int {
	n := 0
	for _, c := range classes {
		n += c.Size
	}
	return n
}

// KLevel returns the size of the smallest class, or 0 when there are none
func KLevel(classes []EquivalenceClass) int {
	k := 0
	for i, c := range classes {
		if i == 0 || c.Size < k {
			k = c.Size
		}
	}
	return k
}

// Uniques counts the classes of size one
func Uniques(classes []EquivalenceClass) int {
	n := 0
	for _, c := range classes {
		if c.Size == 1 {
			n++
		}
	}
	return n
}
