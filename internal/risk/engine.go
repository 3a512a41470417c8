package risk

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Metric names a risk score
type Metric string

const (
	ProsecutorA Metric = "ProsecutorA"
	ProsecutorB Metric = "ProsecutorB"
	ProsecutorC Metric = "ProsecutorC"
	GlobalRisk  Metric = "GlobalRisk"
)

// MetricRequest selects a metric and, for ProsecutorA and GlobalRisk, its proportion
type MetricRequest struct {
	Name       Metric  `yaml:"name" mapstructure:"name"`
	Proportion float64 `yaml:"proportion,omitempty" mapstructure:"proportion"`
}

// QISet is a quasi-identifier column set of one table
type QISet struct {
	Table   string   `yaml:"table" mapstructure:"table"`
	Columns []string `yaml:"columns" mapstructure:"columns"`
}

func (s QISet) String() string {
	return fmt.Sprintf("%s[%s]", s.Table, strings.Join(s.Columns, ","))
}

// ValidateRequests checks metric names and proportions
func ValidateRequests(requests []MetricRequest) error {
	seen := make(map[Metric]bool)
	for _, r := range requests {
		switch r.Name {
		case ProsecutorA, ProsecutorB, ProsecutorC, GlobalRisk:
		default:
			return apperrors.NewConfigurationError("unknown_metric", "unknown risk metric %q", r.Name)
		}
		if seen[r.Name] {
			return apperrors.NewConfigurationError("duplicate_metric", "risk metric %s requested twice", r.Name)
		}
		seen[r.Name] = true
		if r.Proportion < 0 || r.Proportion > 1 || math.IsNaN(r.Proportion) {
			return apperrors.NewConfigurationError("invalid_proportion", "proportion of %s must be within [0,1], got %v", r.Name, r.Proportion)
		}
	}
	return nil
}

// Compute scores one metric over the classes of a QI set, where f is a class size and n
// the number of rows the classes cover.
//
//	ProsecutorA  share of records whose class risk 1/f exceeds the proportion
//	ProsecutorB  highest individual risk, 1/min f
//	ProsecutorC  average individual risk, classes/n
//	GlobalRisk   ProsecutorC discounted by the proportion
func Compute(metric Metric, classes []EquivalenceClass, proportion float64) (float64, error) {
	n := Population(classes)
	if n == 0 {
		return 0, fmt.Errorf("%w: no complete rows", apperrors.ErrMetricUnavailable)
	}

	switch metric {
	case ProsecutorA:
		atRisk := 0
		for _, c := range classes {
			if 1/float64(c.Size) > proportion {
				atRisk += c.Size
			}
		}
		return float64(atRisk) / float64(n), nil
	case ProsecutorB:
		return 1 / float64(KLevel(classes)), nil
	case ProsecutorC:
		return float64(len(classes)) / float64(n), nil
	case GlobalRisk:
		return proportion * float64(len(classes)) / float64(n), nil
	}
	return 0, fmt.Errorf("unknown risk metric %q", metric)
}

// TableSource hands out tables by name
type TableSource interface {
	Table(ctx context.Context, name string) (*models.Table, error)
}

// SetResult holds the scores of one QI set
type SetResult struct {
	Set     QISet
	Rows    int
	Classes int
	KLevel  int
	Uniques int
	Metrics map[Metric]float64
}

// Assessment is the outcome of a risk assessment. Averages hold each metric averaged over
// the QI sets where it could be computed; failures are listed in Unavailable.
type Assessment struct {
	PerSet      []SetResult
	Averages    map[Metric]float64
	Unavailable []error
}

// Engine computes risk metrics over a dataset
type Engine struct {
	Logger *logrus.Logger
}

// NewEngine creates a new risk engine
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{Logger: logger}
}

// Assess scores every requested metric over every QI set. A metric that cannot be computed
// for a set is recorded as unavailable and the assessment continues; only a cancelled
// context aborts it.
func (e *Engine) Assess(ctx context.Context, src TableSource, sets []QISet, requests []MetricRequest) (*Assessment, error) {
	result := &Assessment{Averages: make(map[Metric]float64)}
	if len(requests) == 0 || len(sets) == 0 {
		return result, nil
	}

	sums := make(map[Metric]float64)
	counts := make(map[Metric]int)

	for _, set := range sets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		classes, err := e.classes(ctx, src, set)
		if err != nil {
			for _, req := range requests {
				result.Unavailable = append(result.Unavailable, e.unavailable(req.Name, set, err))
			}
			continue
		}
		if len(classes) == 0 {
			e.Logger.Warnf("QI set %s has no complete rows, skipping", set)
			continue
		}

		sr := SetResult{
			Set:     set,
			Rows:    Population(classes),
			Classes: len(classes),
			KLevel:  KLevel(classes),
			Uniques: Uniques(classes),
			Metrics: make(map[Metric]float64),
		}
		for _, req := range requests {
			v, err := Compute(req.Name, classes, req.Proportion)
			if err != nil {
				result.Unavailable = append(result.Unavailable, e.unavailable(req.Name, set, err))
				continue
			}
			sr.Metrics[req.Name] = v
			sums[req.Name] += v
			counts[req.Name]++
		}
		result.PerSet = append(result.PerSet, sr)
		e.Logger.Debugf("QI set %s: %d rows in %d classes, k=%d, %d unique", set, sr.Rows, sr.Classes, sr.KLevel, sr.Uniques)
	}

	for metric, sum := range sums {
		result.Averages[metric] = sum / float64(counts[metric])
	}
	return result, nil
}

func (e *Engine) classes(ctx context.Context, src TableSource, set QISet) ([]EquivalenceClass, error) {
	t, err := src.Table(ctx, set.Table)
	if err != nil {
		return nil, err
	}
	return Classes(t, set.Columns)
}

func (e *Engine) unavailable(metric Metric, set QISet, err error) error {
	e.Logger.WithFields(logrus.Fields{
		"metric": metric,
		"set":    set.String(),
	}).Warnf("Risk metric unavailable: %v", err)
	return apperrors.NewMetricError(err, string(metric)).WithContext("set", set.String())
}
