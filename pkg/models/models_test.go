package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferSemanticType(t *testing.T) {
	cases := map[string]SemanticType{
		"int":       Integer,
		"bigint":    Integer,
		"integer":   Integer,
		"decimal":   Float,
		"double":    Float,
		"numeric":   Float,
		"date":      Date,
		"datetime":  Date,
		"varchar":   String,
		"text":      String,
	}
	for dataType, want := range cases {
		assert.Equal(t, want, InferSemanticType(dataType), dataType)
	}
	assert.Equal(t, Date, InferSemanticType("timestamp without time zone"))
}

func TestClassifyColumn(t *testing.T) {
	assert.Equal(t, Identifying, ClassifyColumn("email"))
	assert.Equal(t, Identifying, ClassifyColumn("last_name"))
	assert.Equal(t, QuasiIdentifying, ClassifyColumn("age"))
	assert.Equal(t, QuasiIdentifying, ClassifyColumn("date_of_birth"))
	assert.Equal(t, Insensitive, ClassifyColumn("language"))
	assert.Equal(t, Sensitive, ClassifyColumn("salary"))
}

func TestCoerce(t *testing.T) {
	v, err := Coerce("42.6", Integer)
	require.NoError(t, err)
	assert.Equal(t, int64(43), v)

	v, err = Coerce("3.25", Float)
	require.NoError(t, err)
	assert.Equal(t, 3.25, v)

	v, err = Coerce("2020-02-03", Date)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 2, 3, 0, 0, 0, 0, time.UTC), v)

	_, err = Coerce("abc", Integer)
	assert.Error(t, err)
}

func TestCompareOrdersNullFirst(t *testing.T) {
	assert.Equal(t, -1, Compare(nil, int64(1)))
	assert.Equal(t, 1, Compare(int64(10), int64(9)))
	assert.Equal(t, 0, Compare(int64(2), 2.0))
	assert.Equal(t, -1, Compare("a", "b"))
}

func TestTupleKeyIsUnambiguous(t *testing.T) {
	assert.NotEqual(t, TupleKey("x|y", "z"), TupleKey("x", "y|z"))
	assert.NotEqual(t, TupleKey(`a","b`), TupleKey("a", "b"))
	assert.NotEqual(t, TupleKey(nil), TupleKey("null"))
	assert.NotEqual(t, TupleKey(nil), TupleKey(""))
	assert.Equal(t, TupleKey(int64(3), "x"), TupleKey(int64(3), "x"))
}

func TestHolds(t *testing.T) {
	assert.True(t, Holds(Integer, nil))
	assert.True(t, Holds(Float, int64(3)))
	assert.False(t, Holds(Float, int64(1)<<60))
	assert.False(t, Holds(Integer, 17.5))
	assert.False(t, Holds(Integer, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, Holds(String, "x"))
	assert.False(t, Holds(String, int64(1)))
}

func TestInferColumnType(t *testing.T) {
	assert.Equal(t, Integer, InferColumnType([]string{"1", "", "3"}))
	assert.Equal(t, Float, InferColumnType([]string{"1", "2.5"}))
	assert.Equal(t, Date, InferColumnType([]string{"2020-01-01", "2021-05-06 10:00:00"}))
	assert.Equal(t, String, InferColumnType([]string{"x", "1"}))
	assert.Equal(t, String, InferColumnType([]string{"", ""}))
}

func TestAssignOrdinalsIsStableOnFirstColumn(t *testing.T) {
	table := NewTable("t", []Column{{Name: "id", Type: Integer}, {Name: "v", Type: String}})
	table.Rows = [][]interface{}{
		{int64(30), "c"},
		{int64(10), "a"},
		{int64(20), "b"},
		{int64(10), "a2"},
	}

	assert.Equal(t, []int64{4, 1, 3, 2}, AssignOrdinals(table))
}

func TestDropColumnsAndAddColumn(t *testing.T) {
	table := NewTable("t", []Column{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	table.Rows = [][]interface{}{{1, 2, 3}, {4, 5, 6}}

	table.DropColumns("b")
	assert.Equal(t, []string{"a", "c"}, table.ColumnNames())
	assert.Equal(t, []interface{}{4, 6}, table.Rows[1])

	require.NoError(t, table.AddColumn(Column{Name: "d"}, []interface{}{"x", "y"}))
	assert.Equal(t, "y", table.Rows[1][2])
	assert.Error(t, table.AddColumn(Column{Name: "d"}, nil))
}

func TestDeleteRows(t *testing.T) {
	table := NewTable("t", []Column{{Name: "a"}})
	table.Rows = [][]interface{}{{int64(1)}, {int64(2)}, {int64(3)}}

	removed := table.DeleteRows(func(_ int, row []interface{}) bool { return row[0].(int64)%2 == 1 })
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, table.RowCount())
}

func TestMedian(t *testing.T) {
	v, err := Median([]interface{}{int64(3), nil, int64(1), int64(2)}, Integer)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	v, err = Median([]interface{}{int64(1), int64(2), int64(3), int64(10)}, Integer)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	d1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2020, 1, 4, 0, 0, 0, 0, time.UTC)
	v, err = Median([]interface{}{d2, d1}, Date)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), v)

	_, err = Median([]interface{}{nil}, Integer)
	assert.Error(t, err)
}

func TestMeanAndMode(t *testing.T) {
	v, err := Mean([]interface{}{int64(40), nil, int64(60)}, Integer)
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)

	_, err = Mean([]interface{}{"a"}, String)
	assert.Error(t, err)

	m, err := Mode([]interface{}{"b", "a", "b", "a", nil, nil, nil})
	require.NoError(t, err)
	assert.Equal(t, "a", m)
}
