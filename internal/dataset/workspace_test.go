package dataset_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/internal/snapshot"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

func newStore(t *testing.T) *snapshot.Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	s := snapshot.New("db", logger)
	table := models.NewTable("person", []models.Column{{Name: "id", Type: models.Integer}, {Name: "age", Type: models.Integer}})
	table.Rows = [][]interface{}{{int64(1), int64(20)}, {int64(2), int64(30)}}
	s.AddTable(table)
	return s
}

func TestWorkspaceFlushWritesOnlyDirtyTables(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	ws := dataset.NewWorkspace(store, logrus.New())

	person, err := ws.Table(ctx, "person")
	require.NoError(t, err)
	person.Rows[0][1] = int64(99)

	// Not marked dirty: the store must keep the original value
	require.NoError(t, ws.Flush(ctx))
	stored, err := store.LoadTable(ctx, "person")
	require.NoError(t, err)
	assert.Equal(t, int64(20), stored.Rows[0][1])

	ws.MarkDirty("person")
	require.NoError(t, ws.Flush(ctx))
	stored, err = store.LoadTable(ctx, "person")
	require.NoError(t, err)
	assert.Equal(t, int64(99), stored.Rows[0][1])
}

func TestWorkspaceCreatedThenDroppedTableNeverReachesStore(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	ws := dataset.NewWorkspace(store, logrus.New())

	scratch := models.NewTable("person__backup", []models.Column{{Name: "id", Type: models.Integer}})
	require.NoError(t, ws.Put(ctx, scratch))
	assert.Equal(t, []string{"person__backup"}, ws.Dirty())

	ws.Drop("person__backup")
	require.NoError(t, ws.Flush(ctx))

	tables, err := store.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"person"}, tables)
}

func TestWorkspaceDropRemovesStoredTable(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	ws := dataset.NewWorkspace(store, logrus.New())

	ws.Drop("person")
	ok, err := ws.Has(ctx, "person")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = ws.Table(ctx, "person")
	assert.Error(t, err)

	require.NoError(t, ws.Flush(ctx))
	tables, err := store.ListTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}
