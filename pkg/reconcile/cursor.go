package reconcile

import (
	"math/big"

	"github.com/lumen-network/balancex/pkg/ledgererr"
)

// An event index is a u128 laid out as:
//
//	bits 127..64  block timestamp, nanoseconds
//	bits  63..32  shard id
//	bits  31..0   intra-block sequence
//
// The timestamp in the top bits makes the index both the sort key and a
// block-alignment tool: all events of the block at timestamp ts live in
// [ts<<64, (ts+1)<<64).
const timestampShift = 64

var maxEventIndex = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// IndexAtTimestamp returns the lowest event index a block with the given
// timestamp can contain.
func IndexAtTimestamp(tsNanos uint64) *big.Int {
	return new(big.Int).Lsh(new(big.Int).SetUint64(tsNanos), timestampShift)
}

// IndexAfterTimestamp returns the exclusive upper bound of event indexes for
// a block with the given timestamp.
func IndexAfterTimestamp(tsNanos uint64) *big.Int {
	return new(big.Int).Lsh(new(big.Int).SetUint64(tsNanos+1), timestampShift)
}

// TimestampOfIndex extracts the block timestamp encoded in an event index.
func TimestampOfIndex(idx *big.Int) uint64 {
	return new(big.Int).Rsh(idx, timestampShift).Uint64()
}

// CursorCodec validates and interprets the opaque pagination cursor. The
// cursor is the decimal event index of the previously returned oldest item;
// the next page is bounded strictly below it.
type CursorCodec struct {
	// LowWaterMark is the event index from which the indexer began
	// backfilling. Cursors below it would page into a range the store never
	// ingested and silently return truncated history, so they are rejected
	// instead.
	LowWaterMark *big.Int
}

func NewCursorCodec(lowWaterMark *big.Int) *CursorCodec {
	if lowWaterMark == nil {
		lowWaterMark = big.NewInt(0)
	}
	return &CursorCodec{LowWaterMark: lowWaterMark}
}

// Decode parses and validates a client-supplied cursor. Clients must only
// echo an event_index a previous page returned; anything else is on them.
func (c *CursorCodec) Decode(raw string) (*big.Int, error) {
	idx, ok := new(big.Int).SetString(raw, 10)
	if !ok || idx.Sign() < 0 {
		return nil, ledgererr.New(ledgererr.CodeInvalidInput, "malformed cursor %q", raw)
	}
	if idx.Cmp(maxEventIndex) > 0 {
		return nil, ledgererr.New(ledgererr.CodeInvalidInput, "cursor %q exceeds the event index range", raw)
	}
	if idx.Cmp(c.LowWaterMark) < 0 {
		return nil, ledgererr.New(ledgererr.CodeInvalidInput,
			"cursor %s is below the indexed history low-water-mark %s", idx, c.LowWaterMark)
	}
	return idx, nil
}

// Encode renders an event index as an opaque cursor string.
func Encode(idx *big.Int) string {
	return idx.String()
}
