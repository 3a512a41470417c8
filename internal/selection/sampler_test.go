package selection

import (
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
)

func newTestSampler() *Sampler {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewSampler(rand.New(rand.NewSource(42)), logger)
}

func TestSelectRowsCount(t *testing.T) {
	s := newTestSampler()

	for _, n := range []int{0, 1, 7, 200, 1000} {
		for _, p := range []float64{0, 12.5, 25, 50, 99.9} {
			require.NoError(t, s.SelectRows("t", n, p))
			want := int(math.Round(float64(n) * p / 100))
			assert.Len(t, s.Selected("t"), want, "n=%d p=%v", n, p)
			assert.True(t, s.HasCustomSelection("t"))
		}
	}
}

func TestSelectRowsFullClearsRestriction(t *testing.T) {
	s := newTestSampler()

	require.NoError(t, s.SelectRows("person", 200, 25))
	assert.Len(t, s.Selected("person"), 50)
	assert.Equal(t, 25.0, s.Percent("person"))

	require.NoError(t, s.SelectRows("person", 200, 100))
	assert.False(t, s.HasCustomSelection("person"))
	assert.Nil(t, s.Selected("person"))
	assert.True(t, s.IsRowSelected("person", 1))
	assert.Equal(t, 100.0, s.Percent("person"))
}

func TestSelectRowsZeroSelectsNone(t *testing.T) {
	s := newTestSampler()

	require.NoError(t, s.SelectRows("person", 10, 0))
	assert.True(t, s.HasCustomSelection("person"))
	for o := int64(1); o <= 10; o++ {
		assert.False(t, s.IsRowSelected("person", o))
	}
}

func TestSelectedOrdinalsAreDistinctAndInRange(t *testing.T) {
	s := newTestSampler()

	require.NoError(t, s.SelectRows("person", 100, 30))
	seen := make(map[int64]bool)
	for _, o := range s.Selected("person") {
		assert.GreaterOrEqual(t, o, int64(1))
		assert.LessOrEqual(t, o, int64(100))
		assert.False(t, seen[o])
		seen[o] = true
		assert.True(t, s.IsRowSelected("person", o))
	}
}

func TestSelectRowsRejectsInvalidPercent(t *testing.T) {
	s := newTestSampler()

	for _, p := range []float64{-1, 100.5, math.NaN()} {
		err := s.SelectRows("person", 10, p)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
	}
	assert.False(t, s.HasCustomSelection("person"))
}

func TestUnrestrictedTableIsFullySelected(t *testing.T) {
	s := newTestSampler()
	assert.False(t, s.HasCustomSelection("other"))
	assert.True(t, s.IsRowSelected("other", 12345))
}

func TestClear(t *testing.T) {
	s := newTestSampler()

	require.NoError(t, s.SelectRows("a", 10, 50))
	require.NoError(t, s.SelectRows("b", 10, 50))
	assert.Equal(t, []string{"a", "b"}, s.Tables())

	s.Clear("a")
	assert.Equal(t, []string{"b"}, s.Tables())

	s.Clear()
	assert.Empty(t, s.Tables())
}
