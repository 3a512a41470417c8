package models

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of the non-null values. Integer and Float yield float64,
// Date yields the mean instant truncated to the day.
func Mean(values []interface{}, t SemanticType) (interface{}, error) {
	nums, err := numbers(values, t)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, fmt.Errorf("no non-null values")
	}

	mean := stat.Mean(nums, nil)
	if t == Date {
		return truncateDay(time.Unix(int64(math.Round(mean)), 0).UTC()), nil
	}
	return mean, nil
}

// Median returns the exact median of the non-null values. For an even count numeric columns
// average the two middle values and dates take the earlier one plus half the day span.
func Median(values []interface{}, t SemanticType) (interface{}, error) {
	var present []interface{}
	for _, v := range values {
		if v != nil {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return nil, fmt.Errorf("no non-null values")
	}
	sort.SliceStable(present, func(i, j int) bool { return Compare(present[i], present[j]) < 0 })

	n := len(present)
	if n%2 == 1 {
		return present[n/2], nil
	}

	lo, hi := present[n/2-1], present[n/2]
	switch t {
	case Date:
		a, okA := ToTime(lo)
		b, okB := ToTime(hi)
		if !okA || !okB {
			return nil, fmt.Errorf("median of non-date values")
		}
		days := int(b.Sub(a).Hours() / 24)
		return a.AddDate(0, 0, days/2), nil
	case Integer, Float:
		a, okA := ToFloat(lo)
		b, okB := ToFloat(hi)
		if !okA || !okB {
			return nil, fmt.Errorf("median of non-numeric values")
		}
		return (a + b) / 2, nil
	}
	return lo, nil
}

// Mode returns the most frequent non-null value. Ties go to the smallest value.
func Mode(values []interface{}) (interface{}, error) {
	counts := make(map[string]int)
	first := make(map[string]interface{})
	for _, v := range values {
		if v == nil {
			continue
		}
		k := Key(v)
		if _, ok := first[k]; !ok {
			first[k] = v
		}
		counts[k]++
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("no non-null values")
	}

	var best interface{}
	bestCount := 0
	for k, c := range counts {
		v := first[k]
		if c > bestCount || (c == bestCount && Compare(v, best) < 0) {
			best, bestCount = v, c
		}
	}
	return best, nil
}

func numbers(values []interface{}, t SemanticType) ([]float64, error) {
	if !t.IsNumeric() && t != Date {
		return nil, fmt.Errorf("cannot average %s values", t)
	}
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		f, ok := ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("value %v is not numeric", v)
		}
		nums = append(nums, f)
	}
	return nums, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
