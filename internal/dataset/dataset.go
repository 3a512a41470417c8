// Package dataset defines the storage contract the masking pipeline works against and the
// in-memory workspace that caches tables of a working copy.
package dataset

import (
	"context"

	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Store is a dataset: a named set of tables reachable through one connection or snapshot
type Store interface {
	Name() string
	Kind() models.SourceKind

	ListTables(ctx context.Context) ([]string, error)
	ColumnNames(ctx context.Context, table string) ([]string, error)
	RowCount(ctx context.Context, table string) (int, error)
	Describe(ctx context.Context, table string) ([]models.Column, error)

	Execute(ctx context.Context, statement string, params ...interface{}) (int64, error)
	Query(ctx context.Context, statement string, params ...interface{}) ([]map[string]interface{}, error)

	LoadTable(ctx context.Context, table string) (*models.Table, error)
	SaveTable(ctx context.Context, table *models.Table) error
	DropTable(ctx context.Context, table string) error

	// CreateWorkingCopy materializes an isolated copy of the whole dataset
	CreateWorkingCopy(ctx context.Context) (Store, error)
	// DropWorkingCopy destroys a store returned by CreateWorkingCopy
	DropWorkingCopy(ctx context.Context) error
	Close() error
}

// Orderer is implemented by stores whose tables must be written in dependency order
type Orderer interface {
	WriteOrder(ctx context.Context, tables []string) ([]string, error)
}

// WorkingCopyName is the conventional name of the working copy of a dataset
func WorkingCopyName(origin string) string {
	return "mask_" + origin
}
