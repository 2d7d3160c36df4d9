package ledger

import (
	"context"
	"fmt"

	"github.com/lumen-network/balancex/pkg/db/clickhouse"
	models "github.com/lumen-network/balancex/pkg/db/models/ledger"
	"github.com/lumen-network/balancex/pkg/retry"
)

// BlockByHeight returns the block at the exact height, or nil when no such
// block is indexed.
func (db *DB) BlockByHeight(ctx context.Context, height uint64) (*models.Block, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s"
		WHERE height = ?
		LIMIT 1
	`, models.ColumnsToSelectSQL(models.BlockColumns), db.Client.Database, models.BlocksTableName)

	return db.selectBlock(ctx, "block_by_height", query, height)
}

// LatestBlock returns the highest indexed block, or nil when the chain has
// not been indexed at all.
func (db *DB) LatestBlock(ctx context.Context) (*models.Block, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s"
		ORDER BY height DESC
		LIMIT 1
	`, models.ColumnsToSelectSQL(models.BlockColumns), db.Client.Database, models.BlocksTableName)

	return db.selectBlock(ctx, "latest_block", query)
}

// EarliestBlock returns the lowest indexed block. Used as the fallback when a
// requested timestamp predates genesis.
func (db *DB) EarliestBlock(ctx context.Context) (*models.Block, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s"
		ORDER BY height ASC
		LIMIT 1
	`, models.ColumnsToSelectSQL(models.BlockColumns), db.Client.Database, models.BlocksTableName)

	return db.selectBlock(ctx, "earliest_block", query)
}

// HighestBlockBefore returns the highest block with timestamp <= tsNanos, or
// nil when every indexed block is newer.
func (db *DB) HighestBlockBefore(ctx context.Context, tsNanos uint64) (*models.Block, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s"
		WHERE timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, models.ColumnsToSelectSQL(models.BlockColumns), db.Client.Database, models.BlocksTableName)

	return db.selectBlock(ctx, "highest_block_before", query, tsNanos)
}

// selectBlock runs a single-row block query under the retry policy. A missing
// row is not a storage fault: it is marked permanent so the executor does not
// burn attempts on it, and surfaces as (nil, nil).
func (db *DB) selectBlock(ctx context.Context, operation, query string, args ...interface{}) (*models.Block, error) {
	var b models.Block
	err := db.read(ctx, operation, func() error {
		err := db.Client.QueryRow(ctx, query, args...).Scan(
			&b.Height,
			&b.Hash,
			&b.Timestamp,
			&b.ParentHash,
		)
		if clickhouse.IsNoRows(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		if clickhouse.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
