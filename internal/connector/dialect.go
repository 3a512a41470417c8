package connector

import (
	"fmt"
	"strings"

	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Dialect identifies the SQL flavour spoken by a connector
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// DialectFor maps a driver name to a dialect, defaulting to MySQL
func DialectFor(driver string) Dialect {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pg":
		return Postgres
	}
	return MySQL
}

func (d Dialect) String() string {
	if d == Postgres {
		return "PostgreSQL"
	}
	return "MySQL"
}

// DriverName returns the database/sql driver name
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "postgres"
	}
	return "mysql"
}

// DefaultPort returns the server's usual port
func (d Dialect) DefaultPort() string {
	if d == Postgres {
		return "5432"
	}
	return "3306"
}

// DefaultUser returns the server's usual administrative user
func (d Dialect) DefaultUser() string {
	if d == Postgres {
		return "postgres"
	}
	return "root"
}

// Quote quotes an identifier
func (d Dialect) Quote(ident string) string {
	if d == Postgres {
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// Placeholders returns n bind placeholders separated by commas
func (d Dialect) Placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		if d == Postgres {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// ColumnType returns the DDL type used to materialize a semantic type
func (d Dialect) ColumnType(t models.SemanticType) string {
	switch t {
	case models.Integer:
		return "BIGINT"
	case models.Float:
		if d == Postgres {
			return "DOUBLE PRECISION"
		}
		return "DOUBLE"
	case models.Date:
		if d == Postgres {
			return "TIMESTAMP"
		}
		return "DATETIME"
	}
	return "TEXT"
}

// TablesQuery lists base tables of the connected database
func (d Dialect) TablesQuery() string {
	if d == Postgres {
		return `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_catalog = $1
		AND table_schema = 'public'
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	}
	return `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
}

// ColumnsQuery lists the columns of one table in ordinal order
func (d Dialect) ColumnsQuery() string {
	if d == Postgres {
		return `
		SELECT
			column_name AS column_name,
			data_type AS data_type,
			is_nullable AS is_nullable,
			'' AS column_key
		FROM information_schema.columns
		WHERE table_catalog = $1
		AND table_schema = 'public'
		AND table_name = $2
		ORDER BY ordinal_position
	`
	}
	return `
		SELECT
			column_name AS column_name,
			data_type AS data_type,
			is_nullable AS is_nullable,
			column_key AS column_key
		FROM information_schema.columns
		WHERE table_schema = ?
		AND table_name = ?
		ORDER BY ordinal_position
	`
}

// ForeignKeysQuery lists foreign key columns of the connected database
func (d Dialect) ForeignKeysQuery() string {
	if d == Postgres {
		return `
		SELECT
			tc.table_name AS table_name,
			kcu.column_name AS column_name,
			ccu.table_name AS referenced_table_name,
			ccu.column_name AS referenced_column_name,
			tc.constraint_name AS constraint_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
		AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		ON ccu.constraint_name = tc.constraint_name
		AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_catalog = $1
		AND tc.table_schema = 'public'
		ORDER BY tc.table_name, kcu.column_name
	`
	}
	return `
		SELECT
			table_name AS table_name,
			column_name AS column_name,
			referenced_table_name AS referenced_table_name,
			referenced_column_name AS referenced_column_name,
			constraint_name AS constraint_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		AND referenced_table_name IS NOT NULL
		ORDER BY table_name, column_name
	`
}

// CloneStatements returns the statements that create database dst as a full copy of src.
// PostgreSQL clones by template; MySQL recreates each table (in dependency order) and copies rows.
func (d Dialect) CloneStatements(src, dst, owner string, tables []string) []string {
	statements := []string{
		fmt.Sprintf("DROP DATABASE IF EXISTS %s", d.Quote(dst)),
	}
	if d == Postgres {
		return append(statements, fmt.Sprintf("CREATE DATABASE %s WITH TEMPLATE %s OWNER %s",
			d.Quote(dst), d.Quote(src), d.Quote(owner)))
	}

	statements = append(statements, fmt.Sprintf("CREATE DATABASE %s", d.Quote(dst)))
	for _, table := range tables {
		from := d.Quote(src) + "." + d.Quote(table)
		to := d.Quote(dst) + "." + d.Quote(table)
		statements = append(statements,
			fmt.Sprintf("CREATE TABLE %s LIKE %s", to, from),
			fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", to, from),
		)
	}
	return statements
}

// ReplaceRowsStatements empties a table before its rows are written again. A PostgreSQL
// clone keeps the foreign keys of its template, so referential triggers are switched off
// for the rest of the transaction; MySQL copies are created with CREATE TABLE LIKE and
// carry no foreign keys.
func (d Dialect) ReplaceRowsStatements(table string) []string {
	deleteRows := fmt.Sprintf("DELETE FROM %s", d.Quote(table))
	if d == Postgres {
		return []string{"SET LOCAL session_replication_role = replica", deleteRows}
	}
	return []string{deleteRows}
}

// RecreateTableStatements drops a table and creates it again from the semantic types.
// On PostgreSQL the drop cascades to the foreign keys of referencing tables.
func (d Dialect) RecreateTableStatements(table string, columns []models.Column) []string {
	drop := fmt.Sprintf("DROP TABLE %s", d.Quote(table))
	if d == Postgres {
		drop += " CASCADE"
	}
	return []string{drop, d.CreateTableStatement(table, columns)}
}

// CreateTableStatement builds a CREATE TABLE for the visible columns of a table
func (d Dialect) CreateTableStatement(table string, columns []models.Column) string {
	var defs []string
	for _, c := range columns {
		if c.Hidden {
			continue
		}
		defs = append(defs, fmt.Sprintf("%s %s", d.Quote(c.Name), d.ColumnType(c.Type)))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(table), strings.Join(defs, ", "))
}

// InsertStatement builds a single-row INSERT for the given columns
func (d Dialect) InsertStatement(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(quoted, ", "), d.Placeholders(len(columns)))
}
