// Package snapshot implements an in-memory tabular dataset, loaded from and exported to CSV.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Store holds a set of tables in memory
type Store struct {
	name   string
	Logger *logrus.Logger

	mu     sync.RWMutex
	tables map[string]*models.Table
	origin *Store
}

// New creates an empty snapshot store
func New(name string, logger *logrus.Logger) *Store {
	return &Store{
		name:   name,
		Logger: logger,
		tables: make(map[string]*models.Table),
	}
}

// AddTable stores a copy of the table
func (s *Store) AddTable(t *models.Table) {
	c := t.Clone()
	c.Source = models.InMemorySnapshot
	s.mu.Lock()
	s.tables[t.Name] = c
	s.mu.Unlock()
}

// Name returns the dataset name
func (s *Store) Name() string {
	return s.name
}

// Kind reports an in-memory snapshot source
func (s *Store) Kind() models.SourceKind {
	return models.InMemorySnapshot
}

// ListTables returns table names in name order
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ColumnNames returns the visible column names of a table
func (s *Store) ColumnNames(ctx context.Context, table string) ([]string, error) {
	t, err := s.get(table)
	if err != nil {
		return nil, err
	}
	return t.ColumnNames(), nil
}

// RowCount returns the number of rows of a table
func (s *Store) RowCount(ctx context.Context, table string) (int, error) {
	t, err := s.get(table)
	if err != nil {
		return 0, err
	}
	return t.RowCount(), nil
}

// Describe returns the columns of a table
func (s *Store) Describe(ctx context.Context, table string) ([]models.Column, error) {
	t, err := s.get(table)
	if err != nil {
		return nil, err
	}
	columns := make([]models.Column, len(t.Columns))
	copy(columns, t.Columns)
	return columns, nil
}

// Execute is not supported: a snapshot is not a query engine
func (s *Store) Execute(ctx context.Context, statement string, params ...interface{}) (int64, error) {
	return 0, apperrors.ErrUnsupported
}

// Query is not supported: a snapshot is not a query engine
func (s *Store) Query(ctx context.Context, statement string, params ...interface{}) ([]map[string]interface{}, error) {
	return nil, apperrors.ErrUnsupported
}

// LoadTable returns a deep copy of a table
func (s *Store) LoadTable(ctx context.Context, table string) (*models.Table, error) {
	t, err := s.get(table)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// SaveTable replaces a table with a copy of t, without hidden columns
func (s *Store) SaveTable(ctx context.Context, t *models.Table) error {
	c := t.Clone()
	var hidden []string
	for _, col := range c.Columns {
		if col.Hidden {
			hidden = append(hidden, col.Name)
		}
	}
	c.DropColumns(hidden...)
	c.Source = models.InMemorySnapshot

	s.mu.Lock()
	s.tables[t.Name] = c
	s.mu.Unlock()
	return nil
}

// DropTable removes a table; unknown tables are ignored
func (s *Store) DropTable(ctx context.Context, table string) error {
	s.mu.Lock()
	delete(s.tables, table)
	s.mu.Unlock()
	return nil
}

// CreateWorkingCopy deep-copies every table into a new store
func (s *Store) CreateWorkingCopy(ctx context.Context) (dataset.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wc := New(dataset.WorkingCopyName(s.name), s.Logger)
	wc.origin = s
	for name, t := range s.tables {
		wc.tables[name] = t.Clone()
	}
	s.Logger.Infof("Materialized working copy %s with %d tables", wc.name, len(wc.tables))
	return wc, nil
}

// DropWorkingCopy discards the tables of a working copy
func (s *Store) DropWorkingCopy(ctx context.Context) error {
	if s.origin == nil {
		return fmt.Errorf("%s is not a working copy", s.name)
	}
	s.mu.Lock()
	s.tables = make(map[string]*models.Table)
	s.mu.Unlock()
	s.Logger.Infof("Discarded working copy %s", s.name)
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func (s *Store) get(table string) (*models.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, table)
	}
	return t, nil
}
