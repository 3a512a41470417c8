package analyzer

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/internal/connector"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
	"github.com/yourbasic/graph"
)

func newTestAnalyzer(tables ...string) *SchemaAnalyzer {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests

	db := &connector.DatabaseConnector{
		Dialect:  connector.MySQL,
		Host:     "localhost",
		User:     "user",
		Password: "password",
		Database: "database",
		Port:     "3306",
		Logger:   logger,
	}

	analyzer := NewSchemaAnalyzer(db, logger)
	analyzer.Tables = tables
	for i, table := range tables {
		analyzer.TableIndexMap[table] = i
		analyzer.IndexTableMap[i] = table
	}
	analyzer.DependencyGraph = graph.New(len(tables))
	return analyzer
}

func TestNewSchemaAnalyzer(t *testing.T) {
	analyzer := newTestAnalyzer()

	if analyzer.ForeignKeys == nil {
		t.Error("Expected analyzer.ForeignKeys to be initialized")
	}
	if analyzer.TableColumns == nil {
		t.Error("Expected analyzer.TableColumns to be initialized")
	}
	if analyzer.TableIndexMap == nil {
		t.Error("Expected analyzer.TableIndexMap to be initialized")
	}
	if analyzer.IndexTableMap == nil {
		t.Error("Expected analyzer.IndexTableMap to be initialized")
	}
}

func TestGetCircularTables(t *testing.T) {
	analyzer := newTestAnalyzer("employees", "departments", "audit")

	analyzer.AddForeignKey(models.ForeignKey{Table: "employees", Column: "dept_id", ReferencedTable: "departments"})
	analyzer.AddForeignKey(models.ForeignKey{Table: "departments", Column: "head_id", ReferencedTable: "employees", IsNullable: true})
	analyzer.AddForeignKey(models.ForeignKey{Table: "audit", Column: "parent_id", ReferencedTable: "audit", IsNullable: true})

	circularTables := analyzer.GetCircularTables()

	if !circularTables["employees"] {
		t.Error("Expected employees to be detected as a circular table")
	}
	if !circularTables["departments"] {
		t.Error("Expected departments to be detected as a circular table")
	}
	if !circularTables["audit"] {
		t.Error("Expected self-referencing audit to be detected as a circular table")
	}
}

func TestGetTableCopyOrder(t *testing.T) {
	analyzer := newTestAnalyzer("comments", "posts", "user_posts", "users")

	// posts depends on users, comments on posts, user_posts on both
	analyzer.AddForeignKey(models.ForeignKey{Table: "posts", Column: "user_id", ReferencedTable: "users"})
	analyzer.AddForeignKey(models.ForeignKey{Table: "comments", Column: "post_id", ReferencedTable: "posts"})
	analyzer.AddForeignKey(models.ForeignKey{Table: "user_posts", Column: "user_id", ReferencedTable: "users"})
	analyzer.AddForeignKey(models.ForeignKey{Table: "user_posts", Column: "post_id", ReferencedTable: "posts"})

	ordered := analyzer.GetTableCopyOrder()
	if len(ordered) != 4 {
		t.Fatalf("Expected 4 tables in the ordered list, got %d", len(ordered))
	}

	index := make(map[string]int)
	for i, table := range ordered {
		index[table] = i
	}
	if index["users"] > index["posts"] {
		t.Error("Expected users to come before posts")
	}
	if index["posts"] > index["comments"] {
		t.Error("Expected posts to come before comments")
	}
	if index["posts"] > index["user_posts"] || index["users"] > index["user_posts"] {
		t.Error("Expected user_posts after both referenced tables")
	}
}

func TestGetTableCopyOrderAppendsCircularTables(t *testing.T) {
	analyzer := newTestAnalyzer("b", "a", "standalone")
	analyzer.AddForeignKey(models.ForeignKey{Table: "a", Column: "b_id", ReferencedTable: "b"})
	analyzer.AddForeignKey(models.ForeignKey{Table: "b", Column: "a_id", ReferencedTable: "a"})

	ordered := analyzer.GetTableCopyOrder()
	want := []string{"standalone", "a", "b"}
	if len(ordered) != len(want) {
		t.Fatalf("got %v, want %v", ordered, want)
	}
	for i := range want {
		if ordered[i] != want[i] {
			t.Errorf("got %v, want %v", ordered, want)
			break
		}
	}
}

func TestColumnsInfersTypes(t *testing.T) {
	analyzer := newTestAnalyzer()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	analyzer.DB.DB = sqlx.NewDb(db, "sqlmock")

	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("database", "person").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_key"}).
			AddRow("id", "int", "NO", "PRI").
			AddRow("email", "varchar", "YES", "").
			AddRow("birth_date", "date", "YES", "").
			AddRow("salary", "decimal", "YES", ""))

	columns, err := analyzer.Columns(context.Background(), "person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(columns) != 4 {
		t.Fatalf("Expected 4 columns, got %d", len(columns))
	}

	wantTypes := []models.SemanticType{models.Integer, models.String, models.Date, models.Float}
	for i, want := range wantTypes {
		if columns[i].Type != want {
			t.Errorf("column %s: got type %s, want %s", columns[i].Name, columns[i].Type, want)
		}
	}
	if columns[1].Classification != models.Identifying {
		t.Errorf("Expected email to be identifying, got %s", columns[1].Classification)
	}
	if !columns[2].IsNullable || columns[0].IsNullable {
		t.Error("Nullability not carried over")
	}
	if columns[0].ColumnKey != "PRI" {
		t.Errorf("Expected PRI column key, got %q", columns[0].ColumnKey)
	}
}
