package ledger

import (
	"math/big"
)

const EventsTableName = "balance_events"

// Event status values. An event is recorded even when the transaction that
// produced it failed; failed events never move a balance.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Known cause values. The set is open: the indexer may introduce new causes
// without a schema change, which is why the column is a plain
// LowCardinality(String) and not an Enum.
const (
	CauseTransfer = "transfer"
	CauseMint     = "mint"
	CauseBurn     = "burn"
	CauseGas      = "gas"
	CauseStake    = "stake"
)

// EventColumns defines the schema for the balance_events table.
// ORDER BY (account, contract, event_index) serves the hot query:
// WHERE account = ? AND contract = ? AND event_index < ? ORDER BY event_index DESC.
var EventColumns = []ColumnDef{
	{Name: "event_index", Type: "UInt128", Codec: "ZSTD(1)"},
	{Name: "account", Type: "String", Codec: "ZSTD(1)"},
	{Name: "contract", Type: "String", Codec: "ZSTD(1)"}, // empty = native token
	{Name: "counterparty", Type: "Nullable(String)", Codec: "ZSTD(1)"},
	{Name: "delta", Type: "Int128", Codec: "ZSTD(1)"},
	{Name: "cause", Type: "LowCardinality(String)"},
	{Name: "status", Type: "LowCardinality(String)"},
	{Name: "block_height", Type: "UInt64", Codec: "DoubleDelta, LZ4"},
	{Name: "block_timestamp", Type: "UInt64", Codec: "DoubleDelta, LZ4"}, // nanoseconds
}

// BalanceEvent is one signed balance change for exactly one account, written
// by the external indexer. Rows are immutable; this service never inserts.
//
// EventIndex is a u128 whose top 64 bits are the block timestamp in
// nanoseconds, followed by the shard id (32 bits) and the intra-block
// sequence number (32 bits). It doubles as the pagination cursor.
//
// Delta is signed relative to Account: positive when Account's balance
// increased. The convention is uniform across asset kinds.
type BalanceEvent struct {
	EventIndex     *big.Int `ch:"event_index" json:"event_index"`
	Account        string   `ch:"account" json:"account"`
	Contract       string   `ch:"contract" json:"contract,omitempty"`
	Counterparty   *string  `ch:"counterparty" json:"counterparty,omitempty"`
	Delta          *big.Int `ch:"delta" json:"delta"`
	Cause          string   `ch:"cause" json:"cause"`
	Status         string   `ch:"status" json:"status"`
	BlockHeight    uint64   `ch:"block_height" json:"block_height"`
	BlockTimestamp uint64   `ch:"block_timestamp" json:"block_timestamp_nanos"`
}

// Succeeded reports whether the event actually moved a balance.
func (e *BalanceEvent) Succeeded() bool { return e.Status == StatusSuccess }
