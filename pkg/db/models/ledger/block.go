package ledger

const BlocksTableName = "blocks"

// BlockColumns defines the schema for the blocks table.
// The minmax index on timestamp keeps "highest block with timestamp <= X"
// lookups cheap.
var BlockColumns = []ColumnDef{
	{Name: "height", Type: "UInt64", Codec: "DoubleDelta, LZ4"},
	{Name: "hash", Type: "String", Codec: "ZSTD(1)"},
	{Name: "timestamp", Type: "UInt64", Codec: "DoubleDelta, LZ4"}, // nanoseconds
	{Name: "parent_hash", Type: "String", Codec: "ZSTD(1)"},
}

// Block is the (height, timestamp) row the resolver pins a request to.
type Block struct {
	Height     uint64 `ch:"height" json:"height"`
	Hash       string `ch:"hash" json:"hash"`
	Timestamp  uint64 `ch:"timestamp" json:"timestamp_nanos"`
	ParentHash string `ch:"parent_hash" json:"parent_hash"`
}
