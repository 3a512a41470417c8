// Package transform holds the masking operators and the ordered plan they run in.
package transform

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/internal/generator"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Kind is the stable discriminant of an operator in a persisted plan
type Kind string

const (
	KindGeneralizationRange   Kind = "generalization_range"
	KindGeneralizationPattern Kind = "generalization_pattern"
	KindRound                 Kind = "round"
	KindRoundDate             Kind = "round_date"
	KindValueVariance         Kind = "value_variance"
	KindLocalSuppression      Kind = "local_suppression"
	KindDecomposition         Kind = "decomposition"
	KindSampling              Kind = "sampling"
	KindDeleteColumns         Kind = "delete_columns"
	KindShuffle               Kind = "shuffle"
	KindIdentifier            Kind = "identifier"
	KindMicroAggregation      Kind = "micro_aggregation"
	KindValueReplacement      Kind = "value_replacement"
	KindPatternReplacement    Kind = "pattern_replacement"
	KindDateAging             Kind = "date_aging"
)

// Kinds lists every operator kind in catalog order
var Kinds = []Kind{
	KindGeneralizationRange, KindGeneralizationPattern, KindRound, KindRoundDate,
	KindValueVariance, KindLocalSuppression, KindDecomposition, KindSampling,
	KindDeleteColumns, KindShuffle, KindIdentifier, KindMicroAggregation,
	KindValueReplacement, KindPatternReplacement, KindDateAging,
}

// New returns an empty operator of the given kind, ready to be decoded into
func New(kind Kind) (Operator, error) {
	switch kind {
	case KindGeneralizationRange:
		return &GeneralizationRange{}, nil
	case KindGeneralizationPattern:
		return &GeneralizationPattern{}, nil
	case KindRound:
		return &Round{}, nil
	case KindRoundDate:
		return &RoundDate{}, nil
	case KindValueVariance:
		return &ValueVariance{}, nil
	case KindLocalSuppression:
		return &LocalSuppression{}, nil
	case KindDecomposition:
		return &Decomposition{}, nil
	case KindSampling:
		return &Sampling{}, nil
	case KindDeleteColumns:
		return &DeleteColumns{}, nil
	case KindShuffle:
		return &Shuffle{}, nil
	case KindIdentifier:
		return &Identifier{}, nil
	case KindMicroAggregation:
		return &MicroAggregation{}, nil
	case KindValueReplacement:
		return &ValueReplacement{}, nil
	case KindPatternReplacement:
		return &PatternReplacement{}, nil
	case KindDateAging:
		return &DateAging{}, nil
	}
	return nil, apperrors.NewConfigurationError("unknown_kind", "unknown transform kind %q", kind)
}

// SchemaLookup returns the columns of a table
type SchemaLookup func(ctx context.Context, table string) ([]models.Column, error)

// Operator is one configured masking step
type Operator interface {
	Kind() Kind
	// Target returns the table and columns the operator touches
	Target() (string, []string)
	// Validate checks parameters and target columns before a run starts
	Validate(ctx context.Context, lookup SchemaLookup) error
	// Apply mutates the workspace tables
	Apply(ctx context.Context, env *Env) (Result, error)
}

// Env is what an operator may touch while it runs
type Env struct {
	Workspace *dataset.Workspace
	Rand      *rand.Rand
	Generator *generator.DataGenerator
	Logger    *logrus.Logger
}

// Result summarizes the effect of one operator
type Result struct {
	Name          string
	Kind          Kind
	RowsAffected  int
	RowsDeleted   int
	TablesCreated []string
	Duration      time.Duration
}

// Execute runs one named operator and wraps any failure as an operator error
func Execute(ctx context.Context, name string, op Operator, env *Env) (Result, error) {
	table, columns := op.Target()
	env.Logger.WithFields(logrus.Fields{
		"transform": name,
		"kind":      op.Kind(),
		"table":     table,
		"columns":   columns,
	}).Info("Applying transform")

	start := time.Now()
	res, err := op.Apply(ctx, env)
	res.Name = name
	res.Kind = op.Kind()
	res.Duration = time.Since(start)
	if err != nil {
		env.Logger.Errorf("Error applying transform %s: %v", name, err)
		return res, apperrors.NewOperatorError(err, name)
	}

	env.Logger.Infof("Transform %s affected %d rows, deleted %d rows", name, res.RowsAffected, res.RowsDeleted)
	return res, nil
}

// lookupColumns resolves the named columns of a table or returns a configuration error
func lookupColumns(ctx context.Context, lookup SchemaLookup, kind Kind, table string, names ...string) ([]models.Column, error) {
	if table == "" {
		return nil, apperrors.NewConfigurationError("missing_table", "%s: target table is required", kind)
	}
	columns, err := lookup(ctx, table)
	if err != nil {
		return nil, apperrors.NewConfigurationError("missing_table", "%s: table %s: %v", kind, table, err)
	}

	found := make([]models.Column, 0, len(names))
	for _, name := range names {
		var match *models.Column
		for i := range columns {
			if columns[i].Name == name {
				match = &columns[i]
				break
			}
		}
		if match == nil {
			return nil, apperrors.NewConfigurationError("missing_column", "%s: column %s not found in table %s", kind, name, table)
		}
		found = append(found, *match)
	}
	return found, nil
}

// columnIndex resolves a column of a workspace table at run time
func columnIndex(t *models.Table, column string) (int, error) {
	i := t.ColumnIndex(column)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s.%s", apperrors.ErrColumnNotFound, t.Name, column)
	}
	return i, nil
}

func invalid(kind Kind, format string, args ...interface{}) error {
	return apperrors.NewConfigurationError("invalid_parameter", "%s: %s", kind, fmt.Sprintf(format, args...))
}
