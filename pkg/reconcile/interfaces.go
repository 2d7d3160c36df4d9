// Package reconcile reconstructs gap-free historical balance pages from two
// sources with different guarantees: the indexer's append-only delta events
// (cheap, relative) and the chain node's absolute balance oracle
// (authoritative, expensive). Deltas are walked backwards from an oracle
// anchor and cross-checked against a second oracle snapshot; any disagreement
// fails the whole request.
package reconcile

import (
	"context"
	"math/big"

	models "github.com/lumen-network/balancex/pkg/db/models/ledger"
)

// Scope selects the asset whose history is being reconciled: the native
// token, or a fungible-token contract.
type Scope struct {
	// Contract is empty for the native token.
	Contract string
}

func NativeScope() Scope              { return Scope{} }
func TokenScope(contract string) Scope { return Scope{Contract: contract} }

func (s Scope) Native() bool { return s.Contract == "" }

func (s Scope) String() string {
	if s.Native() {
		return "native"
	}
	return s.Contract
}

// EventSource is the read-only view of the indexer's balance_events table.
// Implementations are expected to retry transient read failures internally
// and surface only exhausted retries (see pkg/db/ledger).
type EventSource interface {
	// EventsBelow returns up to limit events with event_index < boundary,
	// newest first.
	EventsBelow(ctx context.Context, account, contract string, boundary *big.Int, limit int) ([]*models.BalanceEvent, error)
	// EventsInRange returns all events with event_index in [lo, hi),
	// newest first.
	EventsInRange(ctx context.Context, account, contract string, lo, hi *big.Int) ([]*models.BalanceEvent, error)
}

// BlockSource resolves blocks by height, timestamp, or position. A nil block
// with a nil error means "no such block".
type BlockSource interface {
	BlockByHeight(ctx context.Context, height uint64) (*models.Block, error)
	LatestBlock(ctx context.Context) (*models.Block, error)
	EarliestBlock(ctx context.Context) (*models.Block, error)
	HighestBlockBefore(ctx context.Context, tsNanos uint64) (*models.Block, error)
}

// Oracle reports the authoritative absolute balance at the end of a block.
// When the account/contract state did not exist at that height,
// implementations must fail with a ledgererr.CodeOracleNotFound error (see
// NodeOracle).
type Oracle interface {
	AbsoluteBalance(ctx context.Context, account, contract string, height uint64) (*big.Int, error)
}
