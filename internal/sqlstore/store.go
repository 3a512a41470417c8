// Package sqlstore implements the dataset contract over a MySQL or PostgreSQL database.
package sqlstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/internal/analyzer"
	"github.com/vitebski/mysql-data-anonymizer/internal/connector"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Store is a relational dataset reached through a DatabaseConnector
type Store struct {
	Connector *connector.DatabaseConnector
	Analyzer  *analyzer.SchemaAnalyzer
	Logger    *logrus.Logger

	origin *Store
}

// New wraps a connected connector
func New(conn *connector.DatabaseConnector, logger *logrus.Logger) *Store {
	return &Store{
		Connector: conn,
		Analyzer:  analyzer.NewSchemaAnalyzer(conn, logger),
		Logger:    logger,
	}
}

// Name returns the database name
func (s *Store) Name() string {
	return s.Connector.Database
}

// Kind reports a live relational source
func (s *Store) Kind() models.SourceKind {
	return models.LiveRelational
}

// ListTables returns the base tables of the database
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	return s.Analyzer.ListTables(ctx)
}

// ColumnNames returns the column names of a table in ordinal order
func (s *Store) ColumnNames(ctx context.Context, table string) ([]string, error) {
	columns, err := s.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names, nil
}

// RowCount counts the rows of a table
func (s *Store) RowCount(ctx context.Context, table string) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", s.Connector.Dialect.Quote(table))
	result, err := s.Connector.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, fmt.Errorf("no result returned for count query on table %s", table)
	}

	count, ok := result[0]["count"].(int64)
	if !ok {
		parsed, err := strconv.ParseInt(fmt.Sprintf("%v", result[0]["count"]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse count for table %s: %w", table, err)
		}
		count = parsed
	}
	return int(count), nil
}

// Describe returns the typed columns of a table
func (s *Store) Describe(ctx context.Context, table string) ([]models.Column, error) {
	columns, err := s.Analyzer.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrTableNotFound, table, err)
	}
	return columns, nil
}

// Execute runs a statement against the database
func (s *Store) Execute(ctx context.Context, statement string, params ...interface{}) (int64, error) {
	return s.Connector.ExecuteStatement(ctx, statement, params...)
}

// Query runs a query against the database
func (s *Store) Query(ctx context.Context, statement string, params ...interface{}) ([]map[string]interface{}, error) {
	return s.Connector.ExecuteQuery(ctx, statement, params...)
}

// LoadTable reads a whole table, normalizing values to the column semantic types
func (s *Store) LoadTable(ctx context.Context, table string) (*models.Table, error) {
	columns, err := s.Describe(ctx, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s", s.Connector.Dialect.Quote(table))
	names, rows, err := s.Connector.QueryRows(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(names) != len(columns) {
		return nil, fmt.Errorf("table %s: query returned %d columns, schema has %d", table, len(names), len(columns))
	}

	t := models.NewTable(table, columns)
	t.Source = models.LiveRelational
	t.Rows = make([][]interface{}, len(rows))
	for r, row := range rows {
		for i := range row {
			row[i] = models.Normalize(row[i], columns[i].Type)
		}
		t.Rows[r] = row
	}
	return t, nil
}

// SaveTable replaces the contents of a table. The existing DDL is kept when the visible
// columns still match; otherwise the table is recreated from the semantic types.
func (s *Store) SaveTable(ctx context.Context, t *models.Table) error {
	dialect := s.Connector.Dialect

	var names []string
	var idx []int
	for i, c := range t.Columns {
		if !c.Hidden {
			names = append(names, c.Name)
			idx = append(idx, i)
		}
	}

	var setup []string
	existing, err := s.Analyzer.Columns(ctx, t.Name)
	switch {
	case err == nil && models.SameSchema(existing, t.Columns):
		setup = dialect.ReplaceRowsStatements(t.Name)
	case err == nil:
		s.Logger.Infof("Schema of %s changed, recreating table", t.Name)
		setup = dialect.RecreateTableStatements(t.Name, t.Columns)
	default:
		setup = []string{dialect.CreateTableStatement(t.Name, t.Columns)}
	}

	paramsList := make([][]interface{}, 0, len(t.Rows))
	for _, row := range t.Rows {
		params := make([]interface{}, len(idx))
		for j, i := range idx {
			params[j] = row[i]
		}
		paramsList = append(paramsList, params)
	}

	_, err = s.Connector.ExecuteInTransaction(ctx, setup, dialect.InsertStatement(t.Name, names), paramsList)
	if err != nil {
		s.Logger.Errorf("Error writing table %s: %v", t.Name, err)
		return err
	}
	return nil
}

// DropTable drops a table if it exists
func (s *Store) DropTable(ctx context.Context, table string) error {
	_, err := s.Connector.ExecuteStatement(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.Connector.Dialect.Quote(table)))
	return err
}

// WriteOrder sorts tables so referenced tables are written first
func (s *Store) WriteOrder(ctx context.Context, tables []string) ([]string, error) {
	if s.Analyzer.DependencyGraph == nil {
		if err := s.Analyzer.AnalyzeSchema(ctx); err != nil {
			return nil, err
		}
	}

	want := make(map[string]bool, len(tables))
	for _, t := range tables {
		want[t] = true
	}

	var ordered []string
	for _, t := range s.Analyzer.GetTableCopyOrder() {
		if want[t] {
			ordered = append(ordered, t)
			delete(want, t)
		}
	}
	// Tables created during the run are not in the analyzed graph
	for _, t := range tables {
		if want[t] {
			ordered = append(ordered, t)
		}
	}
	return ordered, nil
}

// CreateWorkingCopy clones the database into mask_<name> and connects to the clone
func (s *Store) CreateWorkingCopy(ctx context.Context) (dataset.Store, error) {
	if err := s.Analyzer.AnalyzeSchema(ctx); err != nil {
		return nil, err
	}

	name := dataset.WorkingCopyName(s.Name())
	if err := s.Connector.CloneDatabase(ctx, name, s.Analyzer.GetTableCopyOrder()); err != nil {
		return nil, err
	}

	conn := s.Connector.WithDatabase(name)
	if err := conn.Connect(); err != nil {
		if dropErr := s.Connector.DropDatabase(ctx, name); dropErr != nil {
			s.Logger.Errorf("Error dropping unreachable working copy %s: %v", name, dropErr)
		}
		return nil, err
	}

	wc := New(conn, s.Logger)
	wc.origin = s
	return wc, nil
}

// DropWorkingCopy disconnects from the working copy and drops it through the origin connection
func (s *Store) DropWorkingCopy(ctx context.Context) error {
	if s.origin == nil {
		return fmt.Errorf("%s is not a working copy", s.Name())
	}
	s.Connector.Disconnect()
	return s.origin.Connector.DropDatabase(ctx, s.Name())
}

// Close disconnects from the database
func (s *Store) Close() error {
	s.Connector.Disconnect()
	return nil
}
