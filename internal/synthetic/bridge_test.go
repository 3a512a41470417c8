package synthetic

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/internal/snapshot"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func patients() *models.Table {
	t := models.NewTable("patients", []models.Column{
		{Name: "id", Type: models.Integer},
		{Name: "diagnosis", Type: models.String},
		{Name: "__row_ordinal", Type: models.Integer, Hidden: true},
	})
	t.Rows = [][]interface{}{
		{int64(1), "flu", int64(1)},
		{int64(2), nil, int64(2)},
	}
	return t
}

func workspace(tables ...*models.Table) *dataset.Workspace {
	store := snapshot.New("test", testLogger())
	for _, t := range tables {
		store.AddTable(t)
	}
	return dataset.NewWorkspace(store, testLogger())
}

// script writes a shell generator into a temp dir and returns a bridge that runs it
func script(t *testing.T, body string) *Bridge {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gen.sh"), []byte(body), 0o755))
	b := NewBridge("sh", dir, testLogger())
	b.Scripts["test"] = "gen.sh"
	return b
}

func TestBuildRequest(t *testing.T) {
	req := BuildRequest(patients(), Config{Method: "ctgan", Rows: 10, Target: "diagnosis", Name: "fake"})

	assert.Equal(t, []string{"id", "diagnosis"}, req.Columns)
	require.Len(t, req.Rows, 2)
	assert.Equal(t, "flu", *req.Rows[0][1])
	assert.Nil(t, req.Rows[1][1])

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"ctgan","table":"patients","columns":["id","diagnosis"],
		"rows":[["1","flu"],["2",null]],"config":{"n":10,"target":"diagnosis","name":"fake"}}`, string(data))
}

func TestParseOutputScansFromTheEnd(t *testing.T) {
	lines := []string{
		`{"status":"ok","data_synth":[{"x":"stale"}]}`,
		"training epoch 1",
		`{"status":"ok","data_synth":[{"b":1,"a":"x"},{"a":"y","c":null,"b":2.5}]}`,
		"",
		"done {not json",
	}

	got, err := ParseOutput(lines, "out")
	require.NoError(t, err)
	assert.Equal(t, "out", got.Name)
	assert.Equal(t, []string{"b", "a", "c"}, got.ColumnNames())

	b, _ := got.Column("b")
	assert.Equal(t, models.Float, b.Type)
	assert.Equal(t, []interface{}{1.0, "x", nil}, got.Rows[0])
	assert.Equal(t, []interface{}{2.5, "y", nil}, got.Rows[1])
}

func TestParseOutputErrors(t *testing.T) {
	_, err := ParseOutput([]string{"nothing useful"}, "out")
	assert.ErrorIs(t, err, apperrors.ErrNoBridgeResponse)

	_, err = ParseOutput([]string{`{"status":"error","error":"bad input"}`}, "out")
	assert.ErrorContains(t, err, "bad input")

	_, err = ParseOutput([]string{`{"status":"ok","data_synth":[]}`}, "out")
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	b := script(t, `#!/bin/sh
read -r payload
echo "got: $payload" >&2
echo "args: $*"
echo '{"status":"ok","data_synth":[{"id":"7","diagnosis":"cold"},{"id":"8","diagnosis":"flu"}]}'
echo "bye"
`)
	ws := workspace(patients())

	got, err := b.Generate(context.Background(), ws, Config{Method: "TEST", Table: "patients", Rows: 2})
	require.NoError(t, err)
	assert.Equal(t, "patients_synthetic", got.Name)
	assert.Equal(t, []string{"id", "diagnosis"}, got.ColumnNames())
	assert.Equal(t, []interface{}{int64(7), "cold"}, got.Rows[0])
}

func TestGenerateNonZeroExit(t *testing.T) {
	b := script(t, `#!/bin/sh
cat > /dev/null
echo "missing module sdv"
exit 3
`)
	_, err := b.Generate(context.Background(), workspace(patients()), Config{Method: "test", Table: "patients"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeBridge))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "missing module sdv")
}

func TestGenerateUnknownMethod(t *testing.T) {
	b := NewBridge("python", "scripts", testLogger())
	_, err := b.Generate(context.Background(), workspace(patients()), Config{Method: "gan++", Table: "patients"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
}

func TestSend(t *testing.T) {
	b := script(t, `#!/bin/sh
cat > /dev/null
echo "received"
echo '{"status":"ok","message":"accepted"}'
`)
	msg, err := b.Send(context.Background(), workspace(patients()), "patients", "test")
	require.NoError(t, err)
	assert.Equal(t, "accepted", msg)
}

func TestConfigOutputName(t *testing.T) {
	assert.Equal(t, "people_synthetic", Config{Table: "people"}.OutputName())
	assert.Equal(t, "fakes", Config{Table: "people", Name: "fakes"}.OutputName())
}
