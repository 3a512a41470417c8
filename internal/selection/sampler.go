// Package selection decides which rows of a table take part in masking when only part of
// the population is anonymized.
package selection

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
)

// Sampler keeps a per-table set of selected row ordinals. Tables without an entry are
// fully selected.
type Sampler struct {
	Logger *logrus.Logger

	mu       sync.RWMutex
	rng      *rand.Rand
	selected map[string]map[int64]bool
	percents map[string]float64
}

// NewSampler creates a sampler drawing from rng
func NewSampler(rng *rand.Rand, logger *logrus.Logger) *Sampler {
	return &Sampler{
		Logger:   logger,
		rng:      rng,
		selected: make(map[string]map[int64]bool),
		percents: make(map[string]float64),
	}
}

// SelectRows picks round(total*percent/100) of the ordinals 1..total uniformly at random.
// A percent of 100 clears the restriction on the table.
func (s *Sampler) SelectRows(table string, total int, percent float64) error {
	if percent < 0 || percent > 100 || math.IsNaN(percent) {
		return apperrors.NewConfigurationError("selection_percent",
			"selection percent for table %s must be within [0,100], got %v", table, percent)
	}
	if total < 0 {
		return apperrors.NewConfigurationError("selection_total",
			"row count for table %s must not be negative, got %d", table, total)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if percent >= 100 {
		delete(s.selected, table)
		delete(s.percents, table)
		s.Logger.Debugf("Cleared row selection on %s", table)
		return nil
	}

	count := int(math.Round(float64(total) * percent / 100))
	perm := s.rng.Perm(total)
	chosen := make(map[int64]bool, count)
	for _, p := range perm[:count] {
		chosen[int64(p+1)] = true
	}

	s.selected[table] = chosen
	s.percents[table] = percent
	s.Logger.Infof("Selected %d of %d rows (%.2f%%) in %s", count, total, percent, table)
	return nil
}

// HasCustomSelection reports whether a restriction is active on the table
func (s *Sampler) HasCustomSelection(table string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[table]
	return ok
}

// IsRowSelected reports whether the row with the given ordinal takes part in masking
func (s *Sampler) IsRowSelected(table string, ordinal int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chosen, ok := s.selected[table]
	if !ok {
		return true
	}
	return chosen[ordinal]
}

// Selected returns the selected ordinals of a table in ascending order, or nil when the
// table has no restriction
func (s *Sampler) Selected(table string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chosen, ok := s.selected[table]
	if !ok {
		return nil
	}
	ordinals := make([]int64, 0, len(chosen))
	for o := range chosen {
		ordinals = append(ordinals, o)
	}
	sort.Slice(ordinals, func(i, j int) bool { return ordinals[i] < ordinals[j] })
	return ordinals
}

// Percent returns the configured percent of a table, 100 when unrestricted
func (s *Sampler) Percent(table string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.percents[table]; ok {
		return p
	}
	return 100
}

// Tables returns the restricted tables in name order
func (s *Sampler) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tables := make([]string, 0, len(s.selected))
	for t := range s.selected {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Clear removes the restriction on one table, or on all tables when none is given
func (s *Sampler) Clear(tables ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(tables) == 0 {
		s.selected = make(map[string]map[int64]bool)
		s.percents = make(map[string]float64)
		return
	}
	for _, t := range tables {
		delete(s.selected, t)
		delete(s.percents, t)
	}
}
