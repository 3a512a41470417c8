package transform

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/internal/generator"
	"github.com/vitebski/mysql-data-anonymizer/internal/snapshot"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// newEnv builds an environment over a snapshot store holding the given tables
func newEnv(t *testing.T, tables ...*models.Table) (*Env, *snapshot.Store) {
	t.Helper()
	store := snapshot.New("test", testLogger())
	for _, table := range tables {
		store.AddTable(table)
	}
	return &Env{
		Workspace: dataset.NewWorkspace(store, testLogger()),
		Rand:      rand.New(rand.NewSource(1)),
		Generator: generator.NewDataGenerator(1, testLogger()),
		Logger:    testLogger(),
	}, store
}

func table(t *testing.T, env *Env, name string) *models.Table {
	t.Helper()
	tbl, err := env.Workspace.Table(context.Background(), name)
	require.NoError(t, err)
	return tbl
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// peopleTable has an id, an integer age, a float salary, a date and a city
func peopleTable() *models.Table {
	t := models.NewTable("person", []models.Column{
		{Name: "id", Type: models.Integer, ColumnKey: "PRI"},
		{Name: "age", Type: models.Integer},
		{Name: "salary", Type: models.Float},
		{Name: "born", Type: models.Date},
		{Name: "city", Type: models.String},
	})
	t.Rows = [][]interface{}{
		{int64(1), int64(17), 1000.456, day(1990, 3, 15), "Oslo"},
		{int64(2), int64(25), 2000.5, day(1985, 7, 1), "Bergen"},
		{int64(3), int64(25), 2500.0, day(1985, 7, 1), "Bergen"},
		{int64(4), int64(70), nil, day(1950, 12, 31), "Oslo"},
		{int64(5), nil, 3000.25, nil, nil},
		{int64(6), int64(40), 1500.0, day(1978, 1, 20), "Trondheim"},
	}
	return t
}

func schemaOf(store *snapshot.Store) SchemaLookup {
	return store.Describe
}
