package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/mysql-data-anonymizer/internal/connector"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	return newDialectStore(t, connector.MySQL)
}

func newDialectStore(t *testing.T, dialect connector.Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	conn := &connector.DatabaseConnector{
		Dialect:  dialect,
		Host:     "localhost",
		User:     dialect.DefaultUser(),
		Database: "shop",
		Port:     dialect.DefaultPort(),
		DB:       sqlx.NewDb(db, "sqlmock"),
		Logger:   logger,
	}
	return New(conn, logger), mock
}

func personColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_key"}).
		AddRow("id", "int", "NO", "PRI").
		AddRow("name", "varchar", "YES", "").
		AddRow("born", "date", "YES", "")
}

func TestLoadTableNormalizesValues(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("information_schema.columns").WithArgs("shop", "person").WillReturnRows(personColumns())
	mock.ExpectQuery("SELECT \\* FROM `person`").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "born"}).
			AddRow([]byte("1"), []byte("Alice"), []byte("1990-05-01")).
			AddRow(int64(2), nil, nil))

	table, err := s.LoadTable(context.Background(), "person")
	require.NoError(t, err)

	assert.Equal(t, models.LiveRelational, table.Source)
	require.Equal(t, 2, table.RowCount())
	assert.Equal(t, int64(1), table.Rows[0][0])
	assert.Equal(t, "Alice", table.Rows[0][1])
	assert.Equal(t, time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), table.Rows[0][2])
	assert.Nil(t, table.Rows[1][1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS count FROM `person`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	count, err := s.RowCount(context.Background(), "person")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestSaveTableKeepsSchemaWhenUnchanged(t *testing.T) {
	s, mock := newMockStore(t)

	table := models.NewTable("person", []models.Column{
		{Name: "id", Type: models.Integer},
		{Name: "name", Type: models.String},
		{Name: "born", Type: models.Date},
		{Name: "__row_ordinal", Type: models.Integer, Hidden: true},
	})
	table.Rows = [][]interface{}{
		{int64(1), "Alice", nil, int64(1)},
		{int64(2), "Bob", nil, int64(2)},
	}

	mock.ExpectQuery("information_schema.columns").WillReturnRows(personColumns())
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `person`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectPrepare("INSERT INTO `person` \\(`id`, `name`, `born`\\) VALUES \\(\\?, \\?, \\?\\)")
	mock.ExpectExec("INSERT INTO `person`").WithArgs(int64(1), "Alice", nil).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `person`").WithArgs(int64(2), "Bob", nil).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveTable(context.Background(), table))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTableRecreatesChangedSchema(t *testing.T) {
	s, mock := newMockStore(t)

	table := models.NewTable("person", []models.Column{
		{Name: "id", Type: models.Integer},
		{Name: "name", Type: models.String},
		{Name: "born", Type: models.Integer},
	})
	table.Rows = [][]interface{}{{int64(1), "Alice", int64(3)}}

	mock.ExpectQuery("information_schema.columns").WillReturnRows(personColumns())
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE `person`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE `person` \\(`id` BIGINT, `name` TEXT, `born` BIGINT\\)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("INSERT INTO `person`")
	mock.ExpectExec("INSERT INTO `person`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveTable(context.Background(), table))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTableOnPostgresIgnoresReferencingRows(t *testing.T) {
	s, mock := newDialectStore(t, connector.Postgres)

	table := models.NewTable("person", []models.Column{
		{Name: "id", Type: models.Integer},
		{Name: "name", Type: models.String},
	})
	table.Rows = [][]interface{}{{int64(1), "Alice"}}

	mock.ExpectQuery("information_schema.columns").WithArgs("shop", "person").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_key"}).
			AddRow("id", "integer", "NO", "").
			AddRow("name", "text", "YES", ""))
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL session_replication_role = replica").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "person"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(`INSERT INTO "person" \("id", "name"\) VALUES \(\$1, \$2\)`)
	mock.ExpectExec(`INSERT INTO "person"`).WithArgs(int64(1), "Alice").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveTable(context.Background(), table))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTableOnPostgresCascadesRecreate(t *testing.T) {
	s, mock := newDialectStore(t, connector.Postgres)

	table := models.NewTable("person", []models.Column{
		{Name: "id", Type: models.Integer},
		{Name: "name", Type: models.Integer},
	})
	table.Rows = [][]interface{}{{int64(1), int64(2)}}

	mock.ExpectQuery("information_schema.columns").WithArgs("shop", "person").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_key"}).
			AddRow("id", "integer", "NO", "").
			AddRow("name", "text", "YES", ""))
	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE "person" CASCADE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE "person" \("id" BIGINT, "name" BIGINT\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(`INSERT INTO "person"`)
	mock.ExpectExec(`INSERT INTO "person"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveTable(context.Background(), table))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteOrderPutsReferencedTablesFirst(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("users"))
	mock.ExpectQuery("information_schema.columns").WithArgs("shop", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_key"}).
			AddRow("id", "int", "NO", "PRI").
			AddRow("user_id", "int", "NO", "MUL"))
	mock.ExpectQuery("information_schema.columns").WithArgs("shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_key"}).
			AddRow("id", "int", "NO", "PRI"))
	mock.ExpectQuery("information_schema.key_column_usage").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "referenced_table_name", "referenced_column_name", "constraint_name"}).
			AddRow("orders", "user_id", "users", "id", "fk_orders_users"))

	ordered, err := s.WriteOrder(context.Background(), []string{"orders", "users", "orders_backup"})
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "orders", "orders_backup"}, ordered)
}

func TestDropWorkingCopyRequiresOrigin(t *testing.T) {
	s, _ := newMockStore(t)
	assert.Error(t, s.DropWorkingCopy(context.Background()))
}
