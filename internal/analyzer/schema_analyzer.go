package analyzer

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/internal/connector"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
	"github.com/yourbasic/graph"
)

// SchemaAnalyzer introspects a database: tables, typed columns and the foreign key graph
type SchemaAnalyzer struct {
	DB              *connector.DatabaseConnector
	Tables          []string
	ForeignKeys     map[string][]models.ForeignKey
	TableColumns    map[string][]models.Column
	DependencyGraph *graph.Mutable
	TableIndexMap   map[string]int
	IndexTableMap   map[int]string
	Logger          *logrus.Logger
}

// NewSchemaAnalyzer creates a new schema analyzer
func NewSchemaAnalyzer(db *connector.DatabaseConnector, logger *logrus.Logger) *SchemaAnalyzer {
	return &SchemaAnalyzer{
		DB:            db,
		ForeignKeys:   make(map[string][]models.ForeignKey),
		TableColumns:  make(map[string][]models.Column),
		TableIndexMap: make(map[string]int),
		IndexTableMap: make(map[int]string),
		Logger:        logger,
	}
}

// AnalyzeSchema loads tables, columns and foreign keys of the connected database
func (sa *SchemaAnalyzer) AnalyzeSchema(ctx context.Context) error {
	tables, err := sa.ListTables(ctx)
	if err != nil {
		return err
	}
	sa.Tables = tables

	for _, table := range sa.Tables {
		columns, err := sa.Columns(ctx, table)
		if err != nil {
			sa.Logger.Warningf("Failed to retrieve columns for table %s: %v", table, err)
			continue
		}
		sa.TableColumns[table] = columns
	}

	fkResult, err := sa.DB.ExecuteQuery(ctx, sa.DB.Dialect.ForeignKeysQuery(), sa.DB.Database)
	if err != nil {
		sa.Logger.Errorf("Error getting foreign keys: %v", err)
		return err
	}

	sa.buildGraph(fkResult)
	return nil
}

// ListTables returns the base tables of the connected database
func (sa *SchemaAnalyzer) ListTables(ctx context.Context) ([]string, error) {
	result, err := sa.DB.ExecuteQuery(ctx, sa.DB.Dialect.TablesQuery(), sa.DB.Database)
	if err != nil {
		sa.Logger.Errorf("Error getting tables: %v", err)
		return nil, err
	}

	tables := make([]string, 0, len(result))
	for _, row := range result {
		tables = append(tables, fmt.Sprintf("%v", row["table_name"]))
	}
	return tables, nil
}

// Columns returns the columns of a table with inferred semantic types
func (sa *SchemaAnalyzer) Columns(ctx context.Context, table string) ([]models.Column, error) {
	result, err := sa.DB.ExecuteQuery(ctx, sa.DB.Dialect.ColumnsQuery(), sa.DB.Database, table)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("table %s has no columns or does not exist", table)
	}

	columns := make([]models.Column, 0, len(result))
	for _, row := range result {
		name := fmt.Sprintf("%v", row["column_name"])
		dataType := fmt.Sprintf("%v", row["data_type"])
		columns = append(columns, models.Column{
			Name:           name,
			DataType:       dataType,
			Type:           models.InferSemanticType(dataType),
			Classification: models.ClassifyColumn(name),
			Imputation:     models.ImputeNone,
			IsNullable:     fmt.Sprintf("%v", row["is_nullable"]) == "YES",
			ColumnKey:      stringOrEmpty(row["column_key"]),
		})
	}
	return columns, nil
}

// buildGraph records foreign keys and adds one edge per reference to the dependency graph
func (sa *SchemaAnalyzer) buildGraph(fkResult []map[string]interface{}) {
	for i, table := range sa.Tables {
		sa.TableIndexMap[table] = i
		sa.IndexTableMap[i] = table
	}
	sa.DependencyGraph = graph.New(len(sa.Tables))

	for _, row := range fkResult {
		tableName := fmt.Sprintf("%v", row["table_name"])
		columnName := fmt.Sprintf("%v", row["column_name"])

		isNullable := false
		for _, col := range sa.TableColumns[tableName] {
			if col.Name == columnName {
				isNullable = col.IsNullable
				break
			}
		}

		fk := models.ForeignKey{
			Table:            tableName,
			Column:           columnName,
			ReferencedTable:  fmt.Sprintf("%v", row["referenced_table_name"]),
			ReferencedColumn: fmt.Sprintf("%v", row["referenced_column_name"]),
			IsNullable:       isNullable,
			ConstraintName:   stringOrEmpty(row["constraint_name"]),
		}
		sa.AddForeignKey(fk)
	}
}

// AddForeignKey registers a foreign key and its graph edge (referencing -> referenced)
func (sa *SchemaAnalyzer) AddForeignKey(fk models.ForeignKey) {
	sa.ForeignKeys[fk.Table] = append(sa.ForeignKeys[fk.Table], fk)
	if sa.DependencyGraph == nil {
		return
	}

	// Mandatory references weigh less so they are preferred when breaking cycles
	weight := int64(2)
	if !fk.IsNullable {
		weight = int64(1)
	}
	if srcIdx, ok := sa.TableIndexMap[fk.Table]; ok {
		if destIdx, ok := sa.TableIndexMap[fk.ReferencedTable]; ok {
			sa.DependencyGraph.AddCost(srcIdx, destIdx, weight)
		}
	}
}

// GetCircularTables returns tables that sit on a foreign key cycle, including self-references
func (sa *SchemaAnalyzer) GetCircularTables() map[string]bool {
	circular := make(map[string]bool)
	if sa.DependencyGraph == nil {
		return circular
	}

	for _, component := range graph.StrongComponents(sa.DependencyGraph) {
		if len(component) > 1 {
			for _, v := range component {
				circular[sa.IndexTableMap[v]] = true
			}
			continue
		}
		v := component[0]
		if sa.DependencyGraph.Edge(v, v) {
			circular[sa.IndexTableMap[v]] = true
		}
	}
	return circular
}

// GetTableCopyOrder orders tables so referenced tables come before the tables referencing
// them. Tables on a cycle are appended by name.
func (sa *SchemaAnalyzer) GetTableCopyOrder() []string {
	if sa.DependencyGraph == nil {
		ordered := append([]string(nil), sa.Tables...)
		sort.Strings(ordered)
		return ordered
	}

	circular := sa.GetCircularTables()

	// Edges point from referencing to referenced, so a topological order lists dependents
	// first; the copy order is its reverse.
	acyclic := graph.New(len(sa.Tables))
	for v := 0; v < sa.DependencyGraph.Order(); v++ {
		sa.DependencyGraph.Visit(v, func(w int, c int64) bool {
			if !circular[sa.IndexTableMap[v]] && !circular[sa.IndexTableMap[w]] && v != w {
				acyclic.AddCost(v, w, c)
			}
			return false
		})
	}

	order, ok := graph.TopSort(acyclic)
	if !ok {
		sa.Logger.Warning("Unexpected cycle in dependency graph, falling back to name order")
		ordered := append([]string(nil), sa.Tables...)
		sort.Strings(ordered)
		return ordered
	}

	var ordered []string
	for i := len(order) - 1; i >= 0; i-- {
		table := sa.IndexTableMap[order[i]]
		if !circular[table] {
			ordered = append(ordered, table)
		}
	}

	var circularList []string
	for table := range circular {
		circularList = append(circularList, table)
	}
	sort.Strings(circularList)
	return append(ordered, circularList...)
}

func stringOrEmpty(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
