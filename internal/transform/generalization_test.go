package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

func ageBins() []Bin {
	return []Bin{
		{Label: "minor", Lower: "0", Upper: "18"},
		{Label: "adult", Lower: "18", Upper: "65"},
		{Label: "senior", Lower: "65", Upper: "200"},
	}
}

func TestGeneralizationRangeDefaultScenario(t *testing.T) {
	ctx := context.Background()
	person := models.NewTable("person", []models.Column{
		{Name: "id", Type: models.Integer},
		{Name: "age", Type: models.Integer},
	})
	for i := 0; i < 1000; i++ {
		person.Rows = append(person.Rows, []interface{}{int64(i + 1), int64(i%200 + 1)})
	}
	person.Rows[0][1] = int64(150)

	env, store := newEnv(t, person)
	op := &GeneralizationRange{Table: "person", Column: "age", Bins: ageBins()}
	require.NoError(t, op.Validate(ctx, schemaOf(store)))

	res, err := op.Apply(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"person_age_generalization"}, res.TablesCreated)

	lookup := table(t, env, "person_age_generalization")
	require.Equal(t, 3, lookup.RowCount())
	assert.Equal(t, []interface{}{int64(3), "senior"}, lookup.Rows[2])

	got := table(t, env, "person")
	assert.Equal(t, int64(3), got.Rows[0][1])
	col, _ := got.Column("age")
	assert.Equal(t, models.Integer, col.Type)
	for _, row := range got.Rows {
		idx, ok := row[1].(int64)
		require.True(t, ok)
		assert.True(t, idx >= 1 && idx <= 3)
	}

	require.NoError(t, env.Workspace.Flush(ctx))
	tables, _ := store.ListTables(ctx)
	assert.Contains(t, tables, "person_age_generalization")
}

func TestGeneralizationRangeDefaultKeepsValuesOutsideBins(t *testing.T) {
	ctx := context.Background()
	person := models.NewTable("person", []models.Column{
		{Name: "id", Type: models.Integer},
		{Name: "age", Type: models.Integer},
	})
	person.Rows = [][]interface{}{{int64(1), int64(30)}, {int64(2), int64(250)}, {int64(3), nil}}

	env, _ := newEnv(t, person)
	op := &GeneralizationRange{Table: "person", Column: "age", Bins: ageBins()}
	res, err := op.Apply(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsAffected)

	got := table(t, env, "person")
	col, _ := got.Column("age")
	assert.Equal(t, models.String, col.Type)
	assert.Equal(t, [][]interface{}{{int64(1), "2"}, {int64(2), "250"}, {int64(3), nil}}, got.Rows)
	assert.Equal(t, 3, table(t, env, "person_age_generalization").RowCount())
}

func TestGeneralizationRangeFirstBinWins(t *testing.T) {
	tbl := models.NewTable("t", []models.Column{{Name: "v", Type: models.Float}})
	tbl.Rows = [][]interface{}{{30.0}, {60.0}, {0.0}, {nil}, {150.0}}

	op := &GeneralizationRange{Table: "t", Column: "v", Bins: []Bin{
		{Label: "a", Lower: "0", Upper: "50"},
		{Label: "b", Lower: "20", Upper: "100"},
		{Label: "open", Lower: "100"},
	}}
	assigned, err := op.Assign(tbl)
	require.NoError(t, err)
	// 30 is in both a and b; a was configured first. 0 is outside (0,50].
	assert.Equal(t, []int{0, 1, -1, -1, 2}, assigned)
}

func TestGeneralizationRangeAverageKeepsUnmatched(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t, peopleTable())

	op := &GeneralizationRange{Table: "person", Column: "age", Instruction: InstructionAverage, Bins: []Bin{
		{Label: "young", Lower: "0", Upper: "30"},
		{Label: "middle", Lower: "30", Upper: "50"},
	}}
	res, err := op.Apply(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, 4, res.RowsAffected)
	assert.Empty(t, res.TablesCreated)

	got := table(t, env, "person")
	col, _ := got.Column("age")
	assert.Equal(t, models.Float, col.Type)
	// young: 17, 25, 25
	assert.InDelta(t, 22.3333, got.Rows[0][1], 1e-3)
	assert.InDelta(t, 22.3333, got.Rows[2][1], 1e-3)
	assert.Equal(t, 70.0, got.Rows[3][1], "no bin matched, value kept")
	assert.Nil(t, got.Rows[4][1])
	assert.Equal(t, 40.0, got.Rows[5][1])
}

func TestGeneralizationRangeDateMedian(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t, peopleTable())

	op := &GeneralizationRange{Table: "person", Column: "born", Instruction: InstructionMedian, Bins: []Bin{
		{Label: "old", Upper: "1980-01-01"},
		{Label: "new", Lower: "1980-01-01"},
	}}
	_, err := op.Apply(ctx, env)
	require.NoError(t, err)

	got := table(t, env, "person")
	// old: 1950-12-31, 1978-01-20 -> earlier plus half the day span
	assert.Equal(t, got.Rows[3][3], got.Rows[5][3])
	assert.Equal(t, day(1964, 7, 11), got.Rows[3][3])
	// new: 1985-07-01 twice and 1990-03-15 -> middle value
	assert.Equal(t, day(1985, 7, 1), got.Rows[0][3])
}

func TestGeneralizationRangeValidate(t *testing.T) {
	ctx := context.Background()
	_, store := newEnv(t, peopleTable())

	cases := map[string]*GeneralizationRange{
		"string column": {Table: "person", Column: "city", Bins: ageBins()},
		"no bins":       {Table: "person", Column: "age"},
		"bad bound":     {Table: "person", Column: "age", Bins: []Bin{{Label: "x", Lower: "abc"}}},
		"empty bin":     {Table: "person", Column: "age", Bins: []Bin{{Label: "x", Lower: "10", Upper: "5"}}},
		"instruction":   {Table: "person", Column: "age", Bins: ageBins(), Instruction: "max"},
		"missing":       {Table: "person", Column: "height", Bins: ageBins()},
	}
	for name, op := range cases {
		err := op.Validate(ctx, schemaOf(store))
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration), name)
	}
}

func TestGeneralizationPattern(t *testing.T) {
	ctx := context.Background()
	env, store := newEnv(t, peopleTable())

	op := &GeneralizationPattern{Table: "person", Column: "city", Patterns: []PatternRule{
		{Pattern: "^(Oslo|Bergen)$", Replacement: "big city"},
		{Pattern: "heim$", Replacement: "town"},
	}}
	require.NoError(t, op.Validate(ctx, schemaOf(store)))

	res, err := op.Apply(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, 5, res.RowsAffected)

	got := table(t, env, "person")
	assert.Equal(t, "big city", got.Rows[0][4])
	assert.Equal(t, "town", got.Rows[5][4])
	assert.Nil(t, got.Rows[4][4])

	lookup := table(t, env, "person_city_patterns")
	assert.Equal(t, [][]interface{}{
		{"big city", "^(Oslo|Bergen)$"},
		{"town", "heim$"},
	}, lookup.Rows)

	bad := &GeneralizationPattern{Table: "person", Column: "city", Patterns: []PatternRule{{Pattern: "("}}}
	assert.Error(t, bad.Validate(ctx, schemaOf(store)))
}
