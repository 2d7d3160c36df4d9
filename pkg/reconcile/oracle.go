package reconcile

import (
	"context"
	"errors"
	"math/big"

	"github.com/lumen-network/balancex/pkg/ledgererr"
	"github.com/lumen-network/balancex/pkg/rpc"
)

// NodeOracle adapts the node RPC client to the Oracle interface, translating
// the transport-level not-found answer into the shared taxonomy. Oracle calls
// are deliberately not retried here: the node answer is either authoritative
// or a hard failure, and the transport client already fails over between
// endpoints.
type NodeOracle struct {
	Client *rpc.HTTPClient
}

func (o *NodeOracle) AbsoluteBalance(ctx context.Context, account, contract string, height uint64) (*big.Int, error) {
	amount, err := o.Client.AbsoluteBalance(ctx, account, contract, height)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ledgererr.Wrap(ledgererr.CodeOracleNotFound, err,
				"account %s (%s) did not exist at height %d", account, Scope{Contract: contract}, height)
		}
		return nil, err
	}
	return amount, nil
}
