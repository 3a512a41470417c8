package transform

import (
	"context"
	"math"
	"sort"

	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MicroAggregation groups at least GroupSize similar rows and replaces their values with the
// group mean. Similarity is MDAV over standardized columns, or the order of a single Axis
// column when one is given. Rows with a NULL in any target column are left out.
type MicroAggregation struct {
	Table     string   `yaml:"table"`
	Columns   []string `yaml:"columns"`
	GroupSize int      `yaml:"group_size"`
	Axis      string   `yaml:"axis,omitempty"`
}

func (o *MicroAggregation) Kind() Kind { return KindMicroAggregation }

func (o *MicroAggregation) Target() (string, []string) {
	return o.Table, o.Columns
}

func (o *MicroAggregation) Validate(ctx context.Context, lookup SchemaLookup) error {
	if len(o.Columns) == 0 {
		return invalid(o.Kind(), "at least one column is required")
	}
	cols, err := lookupColumns(ctx, lookup, o.Kind(), o.Table, o.Columns...)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if !c.Type.IsNumeric() {
			return invalid(o.Kind(), "column %s is not numeric", c.Name)
		}
	}
	if o.GroupSize < 2 {
		return invalid(o.Kind(), "group size must be at least 2, got %d", o.GroupSize)
	}
	if o.Axis != "" {
		for _, c := range o.Columns {
			if c == o.Axis {
				return nil
			}
		}
		return invalid(o.Kind(), "axis %s is not one of the target columns", o.Axis)
	}
	return nil
}

func (o *MicroAggregation) Apply(ctx context.Context, env *Env) (Result, error) {
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

	// points[i] holds the values of row rows[i]
	var rows []int
	var points [][]float64
	for r, row := range t.Rows {
		p := make([]float64, len(cols))
		complete := true
		for i, c := range cols {
			f, ok := models.ToFloat(row[c])
			if row[c] == nil || !ok {
				complete = false
				break
			}
			p[i] = f
		}
		if complete {
			rows = append(rows, r)
			points = append(points, p)
		}
	}
	if len(points) < o.GroupSize {
		env.Logger.Warnf("Micro-aggregation on %s skipped: %d complete rows for group size %d", o.Table, len(points), o.GroupSize)
		return Result{}, nil
	}

	var groups [][]int
	if o.Axis != "" {
		axis := 0
		for i, name := range o.Columns {
			if name == o.Axis {
				axis = i
			}
		}
		groups = axisGroups(points, axis, o.GroupSize)
	} else {
		groups = MDAV(standardize(points), o.GroupSize)
	}

	for _, g := range groups {
		for i, c := range cols {
			values := make([]float64, len(g))
			for j, p := range g {
				values[j] = points[p][i]
			}
			mean := stat.Mean(values, nil)

			var v interface{} = mean
			if t.Columns[c].Type == models.Integer {
				v = int64(math.Round(mean))
			}
			for _, p := range g {
				t.Rows[rows[p]][c] = v
			}
		}
	}

	env.Workspace.MarkDirty(t.Name)
	return Result{RowsAffected: len(rows)}, nil
}

// standardize returns z-scores per dimension; constant dimensions become 0
func standardize(points [][]float64) [][]float64 {
	if len(points) == 0 {
		return nil
	}
	dims := len(points[0])
	out := make([][]float64, len(points))
	for i := range out {
		out[i] = make([]float64, dims)
	}

	column := make([]float64, len(points))
	for d := 0; d < dims; d++ {
		for i, p := range points {
			column[i] = p[d]
		}
		mean, std := stat.MeanStdDev(column, nil)
		for i, p := range points {
			if std > 0 && !math.IsNaN(std) {
				out[i][d] = (p[d] - mean) / std
			}
		}
	}
	return out
}

// MDAV partitions points into groups of k to 2k-1 members with the maximum distance to
// average vector heuristic. Groups hold indexes into points.
func MDAV(points [][]float64, k int) [][]int {
	remaining := make([]int, len(points))
	for i := range remaining {
		remaining[i] = i
	}

	var groups [][]int
	for len(remaining) >= 3*k {
		c := centroid(points, remaining)
		r := farthestFrom(points, remaining, c)
		s := farthestFrom(points, remaining, points[r])

		var group []int
		group, remaining = nearest(points, remaining, points[r], k)
		groups = append(groups, group)
		// Ties can pull s into r's group
		if !contains(remaining, s) {
			s = farthestFrom(points, remaining, points[r])
		}
		group, remaining = nearest(points, remaining, points[s], k)
		groups = append(groups, group)
	}

	if len(remaining) >= 2*k {
		c := centroid(points, remaining)
		r := farthestFrom(points, remaining, c)
		var group []int
		group, remaining = nearest(points, remaining, points[r], k)
		groups = append(groups, group)
	}
	if len(remaining) > 0 {
		groups = append(groups, remaining)
	}
	return groups
}

func centroid(points [][]float64, idx []int) []float64 {
	c := make([]float64, len(points[idx[0]]))
	for _, i := range idx {
		floats.Add(c, points[i])
	}
	floats.Scale(1/float64(len(idx)), c)
	return c
}

// farthestFrom returns the index in idx of the point farthest from x
func farthestFrom(points [][]float64, idx []int, x []float64) int {
	best, bestDist := idx[0], -1.0
	for _, i := range idx {
		if d := floats.Distance(points[i], x, 2); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// nearest splits idx into the k points closest to x and the rest
func nearest(points [][]float64, idx []int, x []float64, k int) ([]int, []int) {
	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return floats.Distance(points[sorted[a]], x, 2) < floats.Distance(points[sorted[b]], x, 2)
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	group := append([]int(nil), sorted[:k]...)
	rest := make([]int, 0, len(idx)-k)
	taken := make(map[int]bool, k)
	for _, i := range group {
		taken[i] = true
	}
	for _, i := range idx {
		if !taken[i] {
			rest = append(rest, i)
		}
	}
	return group, rest
}

func contains(idx []int, v int) bool {
	for _, i := range idx {
		if i == v {
			return true
		}
	}
	return false
}

// axisGroups sorts points on one dimension and cuts consecutive groups of k; a short tail
// joins the last full group
func axisGroups(points [][]float64, axis, k int) [][]int {
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return points[order[a]][axis] < points[order[b]][axis]
	})

	var groups [][]int
	for start := 0; start < len(order); start += k {
		end := start + k
		if end > len(order) {
			end = len(order)
		}
		group := append([]int(nil), order[start:end]...)
		if len(group) < k && len(groups) > 0 {
			groups[len(groups)-1] = append(groups[len(groups)-1], group...)
			continue
		}
		groups = append(groups, group)
	}
	return groups
}
