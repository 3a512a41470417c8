package connector

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConnector handles database connection and query execution
type DatabaseConnector struct {
	Dialect  Dialect
	Host     string
	User     string
	Password string
	Database string
	Port     string
	DB       *sqlx.DB
	Logger   *logrus.Logger
}

// NewDatabaseConnector creates a new database connector
func NewDatabaseConnector(driver, host, user, password, database, port string, logger *logrus.Logger) *DatabaseConnector {
	if driver == "" {
		driver = getEnvOrDefault("ANON_DRIVER", "mysql")
	}
	dialect := DialectFor(driver)

	if host == "" {
		host = getEnvOrDefault("ANON_HOST", "localhost")
	}
	if user == "" {
		user = getEnvOrDefault("ANON_USER", dialect.DefaultUser())
	}
	if password == "" {
		password = getEnvOrDefault("ANON_PASSWORD", "")
	}
	if database == "" {
		database = getEnvOrDefault("ANON_DATABASE", "")
	}
	if port == "" {
		port = getEnvOrDefault("ANON_PORT", dialect.DefaultPort())
	}

	return &DatabaseConnector{
		Dialect:  dialect,
		Host:     host,
		User:     user,
		Password: password,
		Database: database,
		Port:     port,
		Logger:   logger,
	}
}

// WithDatabase returns an unconnected copy of the connector pointing at another database
func (dc *DatabaseConnector) WithDatabase(database string) *DatabaseConnector {
	return &DatabaseConnector{
		Dialect:  dc.Dialect,
		Host:     dc.Host,
		User:     dc.User,
		Password: dc.Password,
		Database: database,
		Port:     dc.Port,
		Logger:   dc.Logger,
	}
}

// DSN builds the driver data source name
func (dc *DatabaseConnector) DSN() string {
	if dc.Dialect == Postgres {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(dc.User, dc.Password),
			Host:     dc.Host + ":" + dc.Port,
			Path:     "/" + dc.Database,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", dc.User, dc.Password, dc.Host, dc.Port, dc.Database)
}

// Connect establishes a connection to the database
func (dc *DatabaseConnector) Connect() error {
	if dc.Database == "" {
		return fmt.Errorf("database name must be provided either as an argument or as ANON_DATABASE environment variable")
	}

	db, err := sqlx.Open(dc.Dialect.DriverName(), dc.DSN())
	if err != nil {
		dc.Logger.Errorf("Error connecting to %s database: %v", dc.Dialect, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		dc.Logger.Errorf("Error pinging %s database: %v", dc.Dialect, err)
		db.Close()
		return err
	}

	dc.DB = db
	dc.Logger.Infof("Connected to %s database: %s", dc.Dialect, dc.Database)
	return nil
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Infof("%s connection to %s closed", dc.Dialect, dc.Database)
		}
		dc.DB = nil
	}
}

// ExecuteQuery executes a SQL query and returns the results
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if dc.DB == nil {
		if err := dc.Connect(); err != nil {
			return nil, err
		}
	}

	rows, err := dc.DB.QueryxContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, err
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, err
		}

		// Convert []byte to string for text fields
		for col, val := range row {
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, err
	}

	return results, nil
}

// QueryRows executes a query and returns the column names and rows in select order
func (dc *DatabaseConnector) QueryRows(ctx context.Context, query string, params ...interface{}) ([]string, [][]interface{}, error) {
	if dc.DB == nil {
		if err := dc.Connect(); err != nil {
			return nil, nil, err
		}
	}

	rows, err := dc.DB.QueryxContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, nil, err
	}

	var results [][]interface{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, nil, err
		}
		for i, val := range values {
			if b, ok := val.([]byte); ok {
				values[i] = string(b)
			}
		}
		results = append(results, values)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, nil, err
	}

	return columns, results, nil
}

// ExecuteStatement executes a SQL statement and returns the number of affected rows
func (dc *DatabaseConnector) ExecuteStatement(ctx context.Context, query string, params ...interface{}) (int64, error) {
	if dc.DB == nil {
		if err := dc.Connect(); err != nil {
			return 0, err
		}
	}

	result, err := dc.DB.ExecContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing statement: %v", err)
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		dc.Logger.Errorf("Error getting affected rows: %v", err)
		return 0, err
	}

	return affected, nil
}

// ExecuteMany executes a SQL statement with multiple parameter sets in one transaction
func (dc *DatabaseConnector) ExecuteMany(ctx context.Context, query string, paramsList [][]interface{}) (int64, error) {
	return dc.ExecuteInTransaction(ctx, nil, query, paramsList)
}

// ExecuteInTransaction runs the setup statements, then the parameterised query once per
// parameter set, all inside a single transaction
func (dc *DatabaseConnector) ExecuteInTransaction(ctx context.Context, setup []string, query string, paramsList [][]interface{}) (int64, error) {
	if dc.DB == nil {
		if err := dc.Connect(); err != nil {
			return 0, err
		}
	}

	tx, err := dc.DB.BeginTxx(ctx, nil)
	if err != nil {
		dc.Logger.Errorf("Error starting transaction: %v", err)
		return 0, err
	}

	for _, statement := range setup {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			dc.Logger.Errorf("Error executing statement: %v", err)
			tx.Rollback()
			return 0, err
		}
	}

	var totalAffected int64
	if query != "" && len(paramsList) > 0 {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			dc.Logger.Errorf("Error preparing statement: %v", err)
			tx.Rollback()
			return 0, err
		}
		defer stmt.Close()

		for _, params := range paramsList {
			result, err := stmt.ExecContext(ctx, params...)
			if err != nil {
				dc.Logger.Errorf("Error executing batch statement: %v", err)
				tx.Rollback()
				return 0, err
			}

			affected, err := result.RowsAffected()
			if err != nil {
				dc.Logger.Errorf("Error getting affected rows: %v", err)
				tx.Rollback()
				return 0, err
			}
			totalAffected += affected
		}
	}

	if err := tx.Commit(); err != nil {
		dc.Logger.Errorf("Error committing transaction: %v", err)
		tx.Rollback()
		return 0, err
	}

	return totalAffected, nil
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
