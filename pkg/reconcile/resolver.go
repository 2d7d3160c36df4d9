package reconcile

import (
	"context"
	"math/big"

	models "github.com/lumen-network/balancex/pkg/db/models/ledger"
	"github.com/lumen-network/balancex/pkg/ledgererr"
)

// BlockRef is a request's reference to "now": at most one of Height,
// TimestampNanos, or Cursor. All nil means the latest indexed block.
type BlockRef struct {
	Height         *uint64
	TimestampNanos *uint64
	Cursor         *big.Int
}

// BlockResolver turns a BlockRef into the canonical (height, timestamp)
// block every later step of the pipeline is pinned to.
type BlockResolver struct {
	Blocks BlockSource
}

// Resolve picks the reference block.
//
// A timestamp older than the earliest indexed block falls back to that
// earliest block instead of failing: "history since before genesis" is a
// reasonable question with a well-defined answer. A cursor resolves to the
// block of its encoded timestamp, so repeated calls against the same logical
// page stay pinned even as new blocks arrive.
func (r *BlockResolver) Resolve(ctx context.Context, ref BlockRef) (*models.Block, error) {
	if ref.Height != nil && ref.TimestampNanos != nil {
		return nil, ledgererr.New(ledgererr.CodeInvalidInput,
			"block_height and block_timestamp_nanos are mutually exclusive")
	}

	switch {
	case ref.Cursor != nil:
		return r.resolveTimestamp(ctx, TimestampOfIndex(ref.Cursor))

	case ref.Height != nil:
		block, err := r.Blocks.BlockByHeight(ctx, *ref.Height)
		if err != nil {
			return nil, err
		}
		if block == nil {
			return nil, ledgererr.New(ledgererr.CodeInvalidInput, "no block at height %d", *ref.Height)
		}
		return block, nil

	case ref.TimestampNanos != nil:
		return r.resolveTimestamp(ctx, *ref.TimestampNanos)

	default:
		block, err := r.Blocks.LatestBlock(ctx)
		if err != nil {
			return nil, err
		}
		if block == nil {
			return nil, ledgererr.New(ledgererr.CodeStorage, "no blocks indexed yet")
		}
		return block, nil
	}
}

func (r *BlockResolver) resolveTimestamp(ctx context.Context, tsNanos uint64) (*models.Block, error) {
	block, err := r.Blocks.HighestBlockBefore(ctx, tsNanos)
	if err != nil {
		return nil, err
	}
	if block != nil {
		return block, nil
	}

	// Requested time predates genesis: lenient fallback to the earliest block.
	block, err = r.Blocks.EarliestBlock(ctx)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ledgererr.New(ledgererr.CodeStorage, "no blocks indexed yet")
	}
	return block, nil
}
