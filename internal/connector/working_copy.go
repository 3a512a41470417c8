package connector

import (
	"context"
	"fmt"
)

// CloneDatabase creates database dst as a full copy of the connected database.
// tables lists the tables to copy in creation order; it is ignored by PostgreSQL.
func (dc *DatabaseConnector) CloneDatabase(ctx context.Context, dst string, tables []string) error {
	if dst == dc.Database {
		return fmt.Errorf("working copy name %s equals the origin database", dst)
	}

	dc.Logger.Infof("Creating working copy %s of %s", dst, dc.Database)
	for i, statement := range dc.Dialect.CloneStatements(dc.Database, dst, dc.User, tables) {
		dc.Logger.Debugf("Clone statement: %s", statement)
		if _, err := dc.ExecuteStatement(ctx, statement); err != nil {
			dc.Logger.Errorf("Error creating working copy %s: %v", dst, err)
			// Only the leading DROP IF EXISTS ran when i is 0; later failures leave a partial copy
			if i > 0 {
				if dropErr := dc.DropDatabase(context.Background(), dst); dropErr != nil {
					dc.Logger.Errorf("Error dropping partial working copy %s: %v", dst, dropErr)
				}
			}
			return err
		}
	}
	return nil
}

// DropDatabase drops another database reachable from this connection
func (dc *DatabaseConnector) DropDatabase(ctx context.Context, name string) error {
	if name == dc.Database {
		return fmt.Errorf("refusing to drop the connected database %s", name)
	}

	if _, err := dc.ExecuteStatement(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", dc.Dialect.Quote(name))); err != nil {
		dc.Logger.Errorf("Error dropping database %s: %v", name, err)
		return err
	}
	dc.Logger.Infof("Dropped database %s", name)
	return nil
}
