package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnSQL(t *testing.T) {
	assert.Equal(t, "account String CODEC(ZSTD(1))",
		ColumnDef{Name: "account", Type: "String", Codec: "ZSTD(1)"}.SQL())
	assert.Equal(t, "status LowCardinality(String)",
		ColumnDef{Name: "status", Type: "LowCardinality(String)"}.SQL())
}

func TestEventColumnsSelectOrderMatchesScan(t *testing.T) {
	// The scan loops in pkg/db/ledger rely on this exact column order.
	assert.Equal(t,
		"event_index, account, contract, counterparty, delta, cause, status, block_height, block_timestamp",
		ColumnsToSelectSQL(EventColumns))
}

func TestEventColumnsSchemaSQL(t *testing.T) {
	ddl := ColumnsToSchemaSQL(EventColumns)
	assert.Contains(t, ddl, "event_index UInt128 CODEC(ZSTD(1))")
	assert.Contains(t, ddl, "delta Int128 CODEC(ZSTD(1))")
	assert.True(t, strings.HasPrefix(ddl, "event_index"))
}
