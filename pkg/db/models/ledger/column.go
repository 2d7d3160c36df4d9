package ledger

import (
	"fmt"
	"strings"
)

// ColumnDef defines a single column for a table.
// This is the single source of truth for column definitions used by the
// read-only store in pkg/db/ledger: schema DDL and SELECT lists are both
// generated from it so they cannot drift apart.
type ColumnDef struct {
	// Name is the column name in the source table
	Name string

	// Type is the ClickHouse data type (e.g., "UInt64", "String", "UInt128")
	Type string

	// Codec is the optional compression codec (e.g., "ZSTD(1)", "DoubleDelta, LZ4")
	// Leave empty for no codec
	Codec string
}

// SQL returns the full column definition for CREATE TABLE statements.
// Example: "account String CODEC(ZSTD(1))"
func (c ColumnDef) SQL() string {
	if c.Codec != "" {
		return fmt.Sprintf("%s %s CODEC(%s)", c.Name, c.Type, c.Codec)
	}
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

// ColumnsToSchemaSQL renders the column list of a CREATE TABLE statement.
func ColumnsToSchemaSQL(cols []ColumnDef) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, c.SQL())
	}
	return strings.Join(parts, ",\n\t\t\t")
}

// ColumnsToSelectSQL renders the column list of a SELECT statement.
func ColumnsToSelectSQL(cols []ColumnDef) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, c.Name)
	}
	return strings.Join(parts, ", ")
}
