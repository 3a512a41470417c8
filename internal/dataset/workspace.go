package dataset

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Workspace caches the tables of a working copy in memory while operators run.
// Only tables that were changed are written back on Flush.
type Workspace struct {
	Store  Store
	Logger *logrus.Logger

	tables  map[string]*models.Table
	dirty   map[string]bool
	created map[string]bool
	dropped map[string]bool
}

// NewWorkspace creates a workspace over a store
func NewWorkspace(store Store, logger *logrus.Logger) *Workspace {
	return &Workspace{
		Store:   store,
		Logger:  logger,
		tables:  make(map[string]*models.Table),
		dirty:   make(map[string]bool),
		created: make(map[string]bool),
		dropped: make(map[string]bool),
	}
}

// Table returns the cached table, loading it from the store on first access
func (w *Workspace) Table(ctx context.Context, name string) (*models.Table, error) {
	if t, ok := w.tables[name]; ok {
		return t, nil
	}
	if w.dropped[name] {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
	}

	t, err := w.Store.LoadTable(ctx, name)
	if err != nil {
		return nil, err
	}
	w.tables[name] = t
	w.Logger.Debugf("Loaded table %s (%d rows) into workspace", name, t.RowCount())
	return t, nil
}

// Has reports whether the table exists in the workspace or the underlying store
func (w *Workspace) Has(ctx context.Context, name string) (bool, error) {
	if _, ok := w.tables[name]; ok {
		return true, nil
	}
	if w.dropped[name] {
		return false, nil
	}
	tables, err := w.Store.ListTables(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == name {
			return true, nil
		}
	}
	return false, nil
}

// Describe returns the current columns of a table
func (w *Workspace) Describe(ctx context.Context, name string) ([]models.Column, error) {
	t, err := w.Table(ctx, name)
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

// Put adds or replaces a table and marks it changed
func (w *Workspace) Put(ctx context.Context, t *models.Table) error {
	if _, cached := w.tables[t.Name]; !cached {
		exists, err := w.Has(ctx, t.Name)
		if err != nil {
			return err
		}
		if !exists {
			w.created[t.Name] = true
		}
	}
	w.tables[t.Name] = t
	w.dirty[t.Name] = true
	delete(w.dropped, t.Name)
	return nil
}

// MarkDirty records that a cached table was changed in place
func (w *Workspace) MarkDirty(name string) {
	if _, ok := w.tables[name]; ok {
		w.dirty[name] = true
	}
}

// Drop removes a table from the workspace; it is dropped from the store on Flush
func (w *Workspace) Drop(name string) {
	delete(w.tables, name)
	delete(w.dirty, name)
	if w.created[name] {
		delete(w.created, name)
		return
	}
	w.dropped[name] = true
}

// Dirty returns the names of changed tables in name order
func (w *Workspace) Dirty() []string {
	names := make([]string, 0, len(w.dirty))
	for name := range w.dirty {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Flush writes changed tables back to the store and drops removed ones
func (w *Workspace) Flush(ctx context.Context) error {
	for name := range w.dropped {
		if err := w.Store.DropTable(ctx, name); err != nil {
			return apperrors.NewStorageError(err, fmt.Sprintf("dropping table %s", name))
		}
		w.Logger.Infof("Dropped table %s from %s", name, w.Store.Name())
	}
	w.dropped = make(map[string]bool)

	names := w.Dirty()
	if orderer, ok := w.Store.(Orderer); ok {
		ordered, err := orderer.WriteOrder(ctx, names)
		if err != nil {
			return err
		}
		names = ordered
	}

	for _, name := range names {
		t := w.tables[name]
		if err := w.Store.SaveTable(ctx, t); err != nil {
			return apperrors.NewStorageError(err, fmt.Sprintf("writing table %s", name))
		}
		w.Logger.Infof("Wrote table %s (%d rows) to %s", name, t.RowCount(), w.Store.Name())
	}
	w.dirty = make(map[string]bool)
	w.created = make(map[string]bool)
	return nil
}
