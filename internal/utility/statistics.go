// Package utility measures how much information masking removed from assessed columns.
package utility

import (
	"fmt"
	"math"

	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistic names one captured figure
type Statistic string

const (
	Min     Statistic = "min"
	Max     Statistic = "max"
	Avg     Statistic = "avg"
	RMSE    Statistic = "rmse"
	MSE     Statistic = "mse"
	MAD     Statistic = "mad"
	Entropy Statistic = "entropy"
)

// NumericStatistics are the figures that count towards the delta summary
var NumericStatistics = []Statistic{Min, Max, Avg, RMSE, MSE, MAD}

// ColumnRef names an assessed column
type ColumnRef struct {
	Table  string
	Column string
}

func (c ColumnRef) String() string {
	return c.Table + "." + c.Column
}

// Statistics is the fingerprint of one column at one point in time
type Statistics struct {
	Column  ColumnRef
	Numeric bool
	Values  map[Statistic]float64
}

// ShannonEntropy returns the entropy in bits of the distribution of non-null values
func ShannonEntropy(values []interface{}) float64 {
	counts := make(map[string]float64)
	total := 0.0
	for _, v := range values {
		if v == nil {
			continue
		}
		counts[models.Key(v)]++
		total++
	}
	if total == 0 {
		return 0
	}

	p := make([]float64, 0, len(counts))
	for _, c := range counts {
		p = append(p, c/total)
	}
	// stat.Entropy is in nats
	return stat.Entropy(p) / math.Ln2
}

// Describe captures the statistics of a column. Text and date columns get entropy only.
func Describe(t *models.Table, column string) (Statistics, error) {
	col := t.ColumnIndex(column)
	if col < 0 {
		return Statistics{}, fmt.Errorf("%w: %s.%s", apperrors.ErrColumnNotFound, t.Name, column)
	}

	values := t.Values(col)
	s := Statistics{
		Column:  ColumnRef{Table: t.Name, Column: column},
		Numeric: t.Columns[col].Type.IsNumeric(),
		Values:  map[Statistic]float64{Entropy: ShannonEntropy(values)},
	}
	if !s.Numeric {
		return s, nil
	}

	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		f, ok := models.ToFloat(v)
		if !ok {
			return Statistics{}, fmt.Errorf("value %v of %s.%s is not numeric", v, t.Name, column)
		}
		nums = append(nums, f)
	}
	if len(nums) == 0 {
		return Statistics{}, fmt.Errorf("%s.%s has no non-null values", t.Name, column)
	}

	n := float64(len(nums))
	avg := stat.Mean(nums, nil)
	squares, deviations := 0.0, 0.0
	for _, v := range nums {
		squares += v * v
		deviations += math.Abs(v - avg)
	}

	s.Values[Min] = floats.Min(nums)
	s.Values[Max] = floats.Max(nums)
	s.Values[Avg] = avg
	s.Values[MSE] = squares / n
	s.Values[RMSE] = math.Sqrt(squares / n)
	s.Values[MAD] = deviations / n
	return s, nil
}

// Delta is the percentage change of a statistic, |1 - masked/original| * 100.
// A zero baseline yields 0.
func Delta(masked, original float64) float64 {
	if original == 0 {
		return 0
	}
	return math.Abs(1-masked/original) * 100
}
