package models

import (
	"fmt"
	"strings"
)

// SemanticType is the inferred value type of a column
type SemanticType int

const (
	String SemanticType = iota
	Integer
	Float
	Date
)

// String returns the lowercase name of the semantic type
func (t SemanticType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Date:
		return "date"
	default:
		return "string"
	}
}

// IsNumeric reports whether the type holds numbers
func (t SemanticType) IsNumeric() bool {
	return t == Integer || t == Float
}

// ParseSemanticType parses a semantic type name
func ParseSemanticType(s string) (SemanticType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text":
		return String, nil
	case "integer", "int":
		return Integer, nil
	case "float", "double", "numeric":
		return Float, nil
	case "date", "datetime", "timestamp":
		return Date, nil
	}
	return String, fmt.Errorf("unknown semantic type: %s", s)
}

// InferSemanticType maps a storage data type (information_schema data_type) to a semantic type
func InferSemanticType(dataType string) SemanticType {
	dt := strings.ToLower(dataType)
	switch {
	case strings.HasSuffix(dt, "int"), dt == "integer", dt == "int2", dt == "int4", dt == "int8",
		dt == "serial", dt == "bigserial", dt == "smallserial", dt == "year":
		return Integer
	case strings.Contains(dt, "float"), strings.Contains(dt, "double"), strings.Contains(dt, "real"),
		strings.Contains(dt, "decimal"), strings.Contains(dt, "numeric"):
		return Float
	case dt == "date", strings.HasPrefix(dt, "datetime"), strings.HasPrefix(dt, "timestamp"):
		return Date
	}
	return String
}

// Classification is the privacy classification of a column
type Classification int

const (
	Insensitive Classification = iota
	Sensitive
	QuasiIdentifying
	Identifying
)

func (c Classification) String() string {
	switch c {
	case Sensitive:
		return "sensitive"
	case QuasiIdentifying:
		return "quasi-identifying"
	case Identifying:
		return "identifying"
	default:
		return "insensitive"
	}
}

// ImputationPolicy is the null-filling strategy of a column
type ImputationPolicy string

const (
	ImputeNone    ImputationPolicy = "none"
	ImputeAverage ImputationPolicy = "average"
	ImputeMedian  ImputationPolicy = "median"
	ImputeMode    ImputationPolicy = "mode"
)

// Valid reports whether the policy is known
func (p ImputationPolicy) Valid() bool {
	switch p {
	case ImputeNone, ImputeAverage, ImputeMedian, ImputeMode:
		return true
	}
	return false
}

// SourceKind tells where a table lives
type SourceKind int

const (
	LiveRelational SourceKind = iota
	InMemorySnapshot
)

func (k SourceKind) String() string {
	if k == InMemorySnapshot {
		return "in-memory snapshot"
	}
	return "live relational"
}

// Column represents a table column with its properties
type Column struct {
	Name           string
	DataType       string
	Type           SemanticType
	Classification Classification
	Imputation     ImputationPolicy
	IsNullable     bool
	ColumnKey      string
	Hidden         bool
}

// ForeignKey represents a foreign key relationship
type ForeignKey struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
	IsNullable       bool
	ConstraintName   string
}

// ClassifyColumn guesses a privacy classification from a column name
func ClassifyColumn(name string) Classification {
	n := strings.ToLower(name)
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(n, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		tokens[tok] = true
	}

	if n == "id" || n == "name" || tokens["ssn"] || tokens["passport"] || tokens["phone"] {
		return Identifying
	}
	for _, marker := range []string{"email", "first_name", "last_name", "full_name", "surname"} {
		if strings.Contains(n, marker) {
			return Identifying
		}
	}

	if tokens["age"] || tokens["sex"] || tokens["zip"] || tokens["city"] || tokens["job"] {
		return QuasiIdentifying
	}
	for _, marker := range []string{"birth", "gender", "postal", "address", "region", "profession"} {
		if strings.Contains(n, marker) {
			return QuasiIdentifying
		}
	}

	for _, marker := range []string{"salary", "income", "diagnos", "disease", "religion", "credit", "balance"} {
		if strings.Contains(n, marker) {
			return Sensitive
		}
	}
	return Insensitive
}
