package staging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/internal/metrics"
	"github.com/vitebski/mysql-data-anonymizer/internal/risk"
	"github.com/vitebski/mysql-data-anonymizer/internal/snapshot"
	"github.com/vitebski/mysql-data-anonymizer/internal/transform"
	"github.com/vitebski/mysql-data-anonymizer/internal/utility"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// people builds n rows stored in descending id order
func people(n int) *models.Table {
	t := models.NewTable("person", []models.Column{
		{Name: "id", Type: models.Integer},
		{Name: "age", Type: models.Integer},
		{Name: "city", Type: models.String},
	})
	for i := n; i >= 1; i-- {
		t.Rows = append(t.Rows, []interface{}{int64(i), int64(18 + i%50), fmt.Sprintf("city-%d", i%7)})
	}
	return t
}

// trackingStore records whether its working copies were dropped
type trackingStore struct {
	*snapshot.Store
	dropped int
}

func (s *trackingStore) CreateWorkingCopy(ctx context.Context) (dataset.Store, error) {
	wc, err := s.Store.CreateWorkingCopy(ctx)
	if err != nil {
		return nil, err
	}
	return &trackedCopy{Store: wc, parent: s}, nil
}

type trackedCopy struct {
	dataset.Store
	parent *trackingStore
}

func (c *trackedCopy) DropWorkingCopy(ctx context.Context) error {
	c.parent.dropped++
	return c.Store.DropWorkingCopy(ctx)
}

// stubOperator fails or blocks on demand
type stubOperator struct {
	err     error
	started chan struct{}
	release chan struct{}
}

func (o *stubOperator) Kind() transform.Kind { return "stub" }

func (o *stubOperator) Target() (string, []string) { return "person", nil }

func (o *stubOperator) Validate(ctx context.Context, lookup transform.SchemaLookup) error {
	return nil
}

func (o *stubOperator) Apply(ctx context.Context, env *transform.Env) (transform.Result, error) {
	if o.started != nil {
		close(o.started)
		<-o.release
	}
	return transform.Result{}, o.err
}

func newStore(t *testing.T) *trackingStore {
	t.Helper()
	store := snapshot.New("test", testLogger())
	store.AddTable(people(200))
	return &trackingStore{Store: store}
}

func TestRunKeepsUnselectedRowsIntact(t *testing.T) {
	ctx := context.Background()
	origin := newStore(t)
	coord := NewCoordinator(origin, 7, testLogger())
	rec, err := metrics.NewRecorder(testLogger())
	require.NoError(t, err)
	coord.Metrics = rec

	plan := transform.NewPlan()
	require.NoError(t, plan.Add("mask_city", &transform.ValueReplacement{Table: "person", Column: "city", Value: "masked"}))

	report, err := coord.Run(ctx, RunConfig{
		Plan:      plan,
		Selection: map[string]float64{"person": 25},
		QISets:    []risk.QISet{{Table: "person", Columns: []string{"age", "city"}}},
		Metrics:   []risk.MetricRequest{{Name: risk.ProsecutorC}},
		Assess:    []utility.ColumnRef{{Table: "person", Column: "age"}},
	})
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, StateDone, coord.State())
	assert.Equal(t, 50, report.Selected["person"])
	require.Len(t, report.Transforms, 1)
	require.NotNil(t, report.Risk)
	require.NotNil(t, report.Utility)
	assert.Contains(t, report.Risk.Averages, risk.ProsecutorC)

	active := coord.Active()
	assert.Equal(t, "mask_test", active.Name())
	tables, err := active.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"person"}, tables)

	masked, err := active.LoadTable(ctx, "person")
	require.NoError(t, err)
	original, err := origin.LoadTable(ctx, "person")
	require.NoError(t, err)
	require.Equal(t, 200, masked.RowCount())
	assert.Equal(t, -1, masked.ColumnIndex(OrdinalColumn))

	byID := make(map[int64][]interface{}, original.RowCount())
	for _, row := range original.Rows {
		byID[row[0].(int64)] = row
	}

	selected, unchanged := 0, 0
	for i, row := range masked.Rows {
		assert.Equal(t, int64(i+1), row[0], "rows are back in ordinal order")
		if row[2] == "masked" {
			selected++
			continue
		}
		assert.Equal(t, byID[row[0].(int64)], row)
		unchanged++
	}
	assert.Equal(t, 50, selected)
	assert.Equal(t, 150, unchanged)

	for _, row := range original.Rows {
		assert.NotEqual(t, "masked", row[2], "origin is never written")
	}
	assert.True(t, coord.CanRevert())
}

func TestRunFailureDropsWorkingCopy(t *testing.T) {
	ctx := context.Background()
	origin := newStore(t)
	coord := NewCoordinator(origin, 1, testLogger())

	plan := transform.NewPlan()
	require.NoError(t, plan.Add("first", &transform.ValueReplacement{Table: "person", Column: "city", Value: "x"}))
	require.NoError(t, plan.Add("broken", &stubOperator{err: errors.New("disk full")}))

	report, err := coord.Run(ctx, RunConfig{Plan: plan, Selection: map[string]float64{"person": 10}})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeOperator))
	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, StateFailed, coord.State())

	assert.Equal(t, 1, origin.dropped)
	assert.Same(t, origin, coord.Active())
	assert.False(t, coord.CanRevert())

	tbl, err := origin.LoadTable(ctx, "person")
	require.NoError(t, err)
	for _, row := range tbl.Rows {
		assert.NotEqual(t, "x", row[2])
	}
}

func TestRunRejectsInvalidConfiguration(t *testing.T) {
	origin := newStore(t)
	coord := NewCoordinator(origin, 1, testLogger())

	plan := transform.NewPlan()
	require.NoError(t, plan.Add("r", &transform.Round{Table: "person", Column: "missing", Precision: 1}))
	_, err := coord.Run(context.Background(), RunConfig{Plan: plan})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))

	_, err = coord.Run(context.Background(), RunConfig{Selection: map[string]float64{"person": 120}})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))

	assert.Equal(t, 0, origin.dropped, "nothing was staged")
	assert.Equal(t, StateIdle, coord.State())
}

func TestRunIsNotReentrant(t *testing.T) {
	origin := newStore(t)
	coord := NewCoordinator(origin, 1, testLogger())

	op := &stubOperator{started: make(chan struct{}), release: make(chan struct{})}
	plan := transform.NewPlan()
	require.NoError(t, plan.Add("slow", op))

	done := make(chan error, 1)
	go func() {
		_, err := coord.Run(context.Background(), RunConfig{Plan: plan})
		done <- err
	}()

	select {
	case <-op.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not start")
	}
	assert.Equal(t, StateTransforming, coord.State())

	_, err := coord.Run(context.Background(), RunConfig{})
	assert.ErrorIs(t, err, apperrors.ErrSessionActive)
	assert.ErrorIs(t, coord.Revert(context.Background()), apperrors.ErrSessionActive)

	close(op.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateDone, coord.State())
}

func TestRevert(t *testing.T) {
	ctx := context.Background()
	origin := newStore(t)
	coord := NewCoordinator(origin, 3, testLogger())

	err := coord.Revert(ctx)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStaging))

	plan := transform.NewPlan()
	require.NoError(t, plan.Add("mask_city", &transform.ValueReplacement{Table: "person", Column: "city", Value: "masked"}))
	_, err = coord.Run(ctx, RunConfig{Plan: plan})
	require.NoError(t, err)
	assert.NotSame(t, origin, coord.Active())

	require.NoError(t, coord.Revert(ctx))
	assert.Same(t, origin, coord.Active())
	assert.Equal(t, StateIdle, coord.State())
	assert.Equal(t, 1, origin.dropped)
	assert.False(t, coord.CanRevert())
}
