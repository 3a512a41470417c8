package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestRecorderCounts(t *testing.T) {
	r, err := NewRecorder(testLogger())
	require.NoError(t, err)

	r.RecordRun("done")
	r.RecordRun("done")
	r.RecordRun("failed")
	r.RecordOperator("round", 10*time.Millisecond, 7, 0)
	r.RecordOperator("round", 5*time.Millisecond, 3, 1)
	r.SetRisk("ProsecutorC", 0.25)
	r.AddUnavailable(2)
	r.AddUnavailable(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.rowsAffected.WithLabelValues("round")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rowsDeleted.WithLabelValues("round")))
	assert.Equal(t, 0.25, testutil.ToFloat64(r.riskScore.WithLabelValues("ProsecutorC")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.unavailable))
}

func TestRecorderWriteTextfile(t *testing.T) {
	r, err := NewRecorder(testLogger())
	require.NoError(t, err)
	r.RecordState("TRANSFORMING", time.Second)
	r.SetUtility("avg", 10)

	path := filepath.Join(t.TempDir(), "anonymizer.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `anonymizer_utility_delta_percent{statistic="avg"} 10`))
	assert.Contains(t, text, "anonymizer_state_duration_seconds_count")
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.RecordRun("done")
	r.RecordState("STAGING", time.Second)
	r.RecordOperator("round", time.Second, 1, 1)
	r.SetRisk("GlobalRisk", 1)
	r.SetUtility("min", 1)
	r.AddUnavailable(3)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/path"))
}
