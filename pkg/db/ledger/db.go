// Package ledger is the read-only gateway to the balance_events and blocks
// tables maintained by the external indexer. Every query runs through the
// retrying executor: reads can transiently fail while replication catches up,
// and the retry absorbs that without bothering the caller.
package ledger

import (
	"context"
	"fmt"

	"github.com/lumen-network/balancex/pkg/db/clickhouse"
	"github.com/lumen-network/balancex/pkg/ledgererr"
	"github.com/lumen-network/balancex/pkg/retry"
	"go.uber.org/zap"
)

type DB struct {
	Client *clickhouse.Client
	Logger *zap.Logger
	Retry  retry.Config
}

func New(client *clickhouse.Client, logger *zap.Logger) *DB {
	return &DB{
		Client: client,
		Logger: logger,
		Retry:  retry.QueryConfig(),
	}
}

// read executes fn with the store's retry policy. Exhausted attempts surface
// as a retriable StorageError; a retry.Permanent error (row not found) passes
// through untagged so callers can interpret it.
func (db *DB) read(ctx context.Context, operation string, fn func() error) error {
	err := retry.WithBackoff(ctx, db.Retry, db.Logger, operation, fn)
	if err == nil {
		return nil
	}
	if clickhouse.IsNoRows(err) {
		return err
	}
	return ledgererr.Wrap(ledgererr.CodeStorage, err, "%s", operation)
}

// Ping verifies the underlying connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.Client.Ping(ctx)
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.Client.Close()
}

// EnsureSchema creates the ledger tables when they do not exist yet. The
// indexer owns the schema in production; this exists for local development
// and integration tests, gated behind CLICKHOUSE_ENSURE_SCHEMA.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(db.Client.Database) {
		if err := db.Client.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure ledger schema: %w", err)
		}
	}
	db.Logger.Debug("Ledger schema ensured", zap.String("database", db.Client.Database))
	return nil
}
