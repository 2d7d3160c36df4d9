package ledger

import (
	"fmt"

	models "github.com/lumen-network/balancex/pkg/db/models/ledger"
)

// schemaStatements returns the DDL for the ledger tables, generated from the
// shared column definitions.
//
// ORDER BY (account, contract, event_index) on balance_events serves the
// window query shape directly; the minmax index on blocks.timestamp keeps
// timestamp resolution lookups off a full scan.
func schemaStatements(database string) []string {
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."%s" (
				%s
			) ENGINE = MergeTree
			ORDER BY (account, contract, event_index)
		`, database, models.EventsTableName, models.ColumnsToSchemaSQL(models.EventColumns)),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."%s" (
				%s,
				INDEX idx_timestamp timestamp TYPE minmax GRANULARITY 8192
			) ENGINE = MergeTree
			ORDER BY (height)
		`, database, models.BlocksTableName, models.ColumnsToSchemaSQL(models.BlockColumns)),
	}
}
