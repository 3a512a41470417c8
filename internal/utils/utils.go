package utils

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/internal/analyzer"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/internal/risk"
	"github.com/vitebski/mysql-data-anonymizer/internal/staging"
	"github.com/vitebski/mysql-data-anonymizer/internal/utility"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	// Create a new logger
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("ANON_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	// Parse log level
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	// Configure logger
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	logger.Infof("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from .env file and reports whether
// the connection settings of a live database are complete
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	// Load environment variables from .env file if it exists
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Infof("No %s file found, using existing environment variables", envFile)
	}

	requiredVars := []string{"ANON_HOST", "ANON_USER", "ANON_DATABASE"}
	var missingVars []string

	for _, v := range requiredVars {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		logger.Debugf("Connection variables not set: %s", strings.Join(missingVars, ", "))
		return false
	}

	// Log all available ANON_* environment variables (for debugging)
	if logger.Level == logrus.DebugLevel {
		for _, env := range os.Environ() {
			if strings.HasPrefix(env, "ANON_") {
				parts := strings.SplitN(env, "=", 2)
				if len(parts) == 2 {
					if parts[0] == "ANON_PASSWORD" {
						logger.Debugf("%s=********", parts[0])
					} else {
						logger.Debugf("%s=%s", parts[0], parts[1])
					}
				}
			}
		}
	}

	return true
}

// GetEnvInt gets an integer value from environment variable
func GetEnvInt(varName string, defaultValue int) int {
	value := os.Getenv(varName)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// ValidateConnectionParams validates database connection parameters
func ValidateConnectionParams(host, user, password, database, port string, logger *logrus.Logger) bool {
	if host == "" {
		logger.Error("Database host is required")
		return false
	}

	if user == "" {
		logger.Error("Database user is required")
		return false
	}

	if password == "" { // Empty password is allowed
		logger.Warning("Database password is empty")
	}

	if database == "" {
		logger.Error("Database name is required")
		return false
	}

	if _, err := strconv.Atoi(port); err != nil {
		logger.Errorf("Invalid port number: %s", port)
		return false
	}

	return true
}

// PrintSchemaAnalysis prints the tables of a dataset with the semantic type and the
// privacy classification hint of every column. The foreign key section is printed when an
// analyzer of a live database is given.
func PrintSchemaAnalysis(ctx context.Context, store dataset.Store, schemaAnalyzer *analyzer.SchemaAnalyzer) error {
	tables, err := store.ListTables(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("DATASET SCHEMA ANALYSIS REPORT")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("\n1. BASIC STATISTICS")
	fmt.Printf("   Dataset: %s (%s)\n", store.Name(), store.Kind())
	fmt.Printf("   Total tables: %d\n", len(tables))

	fmt.Println("\n2. COLUMNS")
	for _, table := range tables {
		columns, err := store.Describe(ctx, table)
		if err != nil {
			return err
		}
		rows, err := store.RowCount(ctx, table)
		if err != nil {
			return err
		}
		fmt.Printf("   %s (%d rows)\n", table, rows)
		for _, c := range columns {
			if c.Hidden {
				continue
			}
			nullable := ""
			if c.IsNullable {
				nullable = ", nullable"
			}
			fmt.Printf("     - %-30s %-8s %s%s\n", c.Name, c.Type, c.Classification, nullable)
		}
	}

	if schemaAnalyzer != nil {
		circularTables := schemaAnalyzer.GetCircularTables()

		fmt.Println("\n3. FOREIGN KEYS")
		fmt.Printf("   Tables with foreign keys: %d\n", len(schemaAnalyzer.ForeignKeys))
		fmt.Printf("   Tables in circular dependencies: %d\n", len(circularTables))
		for _, table := range schemaAnalyzer.Tables {
			for _, fk := range schemaAnalyzer.ForeignKeys[table] {
				fmt.Printf("     %s.%s -> %s.%s\n", fk.Table, fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
			}
		}

		fmt.Println("\n4. WORKING COPY ORDER")
		for i, table := range schemaAnalyzer.GetTableCopyOrder() {
			category := "Standalone"
			if circularTables[table] {
				category = "Circular"
			} else if _, hasFKs := schemaAnalyzer.ForeignKeys[table]; hasFKs {
				category = "Dependent"
			}
			fmt.Printf("   %3d. %s (%s)\n", i+1, table, category)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	return nil
}

// PrintRunReport prints a summary of a masking run
func PrintRunReport(report *staging.Report) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("MASKING RUN SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Session: %s\n", report.SessionID)
	fmt.Printf("Origin: %s\n", report.Origin)
	fmt.Printf("Working copy: %s\n", report.WorkingCopy)
	fmt.Printf("State: %s\n", report.State)
	fmt.Printf("Duration: %v\n", report.Duration)
	fmt.Printf("Imputed cells: %d\n", len(report.Preparation))

	if len(report.Selected) > 0 {
		fmt.Println("\nRow selection:")
		for _, table := range sortedKeys(report.Selected) {
			fmt.Printf("  - %s: %d rows selected\n", table, report.Selected[table])
		}
	}

	if len(report.Transforms) > 0 {
		fmt.Println("\nTransforms:")
		for _, res := range report.Transforms {
			fmt.Printf("  - %s (%s): %d affected, %d deleted", res.Name, res.Kind, res.RowsAffected, res.RowsDeleted)
			if len(res.TablesCreated) > 0 {
				fmt.Printf(", created %s", strings.Join(res.TablesCreated, ", "))
			}
			fmt.Println()
		}
	}

	if report.Risk != nil && len(report.Risk.PerSet) > 0 {
		fmt.Println("\nPrivacy risk:")
		for _, set := range report.Risk.PerSet {
			fmt.Printf("  %s: %d rows, %d classes, k=%d, %d unique\n", set.Set, set.Rows, set.Classes, set.KLevel, set.Uniques)
		}
		metrics := make([]risk.Metric, 0, len(report.Risk.Averages))
		for m := range report.Risk.Averages {
			metrics = append(metrics, m)
		}
		sort.Slice(metrics, func(i, j int) bool { return metrics[i] < metrics[j] })
		for _, m := range metrics {
			fmt.Printf("  %-12s %.4f\n", m, report.Risk.Averages[m])
		}
	}

	if report.Utility != nil && len(report.Utility.Columns) > 0 {
		fmt.Println("\nUtility loss (percent delta):")
		for _, col := range report.Utility.Columns {
			fmt.Printf("  %s:", col.Column)
			for _, stat := range utility.NumericStatistics {
				if d, ok := col.Deltas[stat]; ok {
					fmt.Printf(" %s=%.2f", stat, d)
				}
			}
			if d, ok := col.Deltas[utility.Entropy]; ok {
				fmt.Printf(" %s=%.2f", utility.Entropy, d)
			}
			fmt.Println()
		}
		if len(report.Utility.Summary) > 0 {
			fmt.Printf("  Overall: %.2f%%\n", report.Utility.Overall)
		}
	}

	if len(report.Warnings) > 0 {
		fmt.Printf("\n⚠️  %d metrics unavailable:\n", len(report.Warnings))
		for _, w := range report.Warnings {
			fmt.Printf("  - %v\n", w)
		}
	}

	fmt.Println(strings.Repeat("=", 60))
}

// VerifyRowCounts compares the row counts of every table of origin with the same table in
// the masked dataset and returns the tables whose count changed
func VerifyRowCounts(ctx context.Context, origin, masked dataset.Store, logger *logrus.Logger) (map[string][2]int, error) {
	logger.Infof("Verifying row counts of %s against %s...", masked.Name(), origin.Name())

	tables, err := origin.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	changed := make(map[string][2]int)
	for _, table := range tables {
		before, err := origin.RowCount(ctx, table)
		if err != nil {
			logger.Warningf("Could not count rows of %s in %s: %v", table, origin.Name(), err)
			continue
		}
		after, err := masked.RowCount(ctx, table)
		if err != nil {
			logger.Warningf("Could not count rows of %s in %s: %v", table, masked.Name(), err)
			after = -1
		}
		if before != after {
			changed[table] = [2]int{before, after}
		}
	}

	if len(changed) == 0 {
		logger.Info("Verification successful: all tables kept their row counts")
	} else {
		logger.Warningf("%d tables changed their row count", len(changed))
	}
	return changed, nil
}

// PrintVerificationResults prints the tables whose row count changed during masking
func PrintVerificationResults(changed map[string][2]int) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("ROW COUNT VERIFICATION RESULTS")
	fmt.Println(strings.Repeat("=", 50))

	if len(changed) == 0 {
		fmt.Println("✅ All tables kept their row counts")
		fmt.Println(strings.Repeat("=", 50))
		return
	}

	fmt.Printf("⚠️  %d tables changed:\n", len(changed))
	tables := make([]string, 0, len(changed))
	for table := range changed {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		counts := changed[table]
		if counts[1] < 0 {
			fmt.Printf("  - %s: %d rows, now missing\n", table, counts[0])
			continue
		}
		fmt.Printf("  - %s: %d -> %d rows\n", table, counts[0], counts[1])
	}
	fmt.Println(strings.Repeat("=", 50))
}

// PrintTable prints the first rows of a table
func PrintTable(t *models.Table, limit int) {
	names := t.ColumnNames()
	fmt.Println(strings.Join(names, "\t"))
	for i, row := range t.Rows {
		if limit > 0 && i >= limit {
			fmt.Printf("... %d more rows\n", t.RowCount()-limit)
			break
		}
		cells := make([]string, 0, len(names))
		for j, c := range t.Columns {
			if c.Hidden {
				continue
			}
			cells = append(cells, models.FormatValue(row[j]))
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
