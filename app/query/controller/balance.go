package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lumen-network/balancex/pkg/ledgererr"
	"github.com/lumen-network/balancex/pkg/reconcile"
)

type balanceResponse struct {
	Account        string         `json:"account"`
	Contract       string         `json:"contract,omitempty"`
	Balance        string         `json:"balance"`
	ReferenceBlock referenceBlock `json:"reference_block"`
}

// HandleBalance returns an account's absolute balance at a reference block,
// straight from the oracle. No reconciliation: this is the authoritative
// value history pages are validated against.
// Query parameters:
//   - contract_id: token contract, omitted for the native token
//   - block_height / block_timestamp_nanos: reference point (mutually exclusive)
func (c *Controller) HandleBalance(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	params, err := c.parseHistoryParams(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if params.Cursor != nil {
		writeLedgerError(w, ledgererr.New(ledgererr.CodeInvalidInput,
			"after_event_index does not apply to a point balance lookup"))
		return
	}

	ctx := r.Context()

	refBlock, err := c.App.Resolver.Resolve(ctx, params.Ref)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	oracle := reconcile.NodeOracle{Client: c.App.Oracle}
	balance, err := oracle.AbsoluteBalance(ctx, account, params.Scope.Contract, refBlock.Height)
	if err != nil {
		if ledgererr.Is(err, ledgererr.CodeOracleNotFound) {
			writeLedgerError(w, ledgererr.New(ledgererr.CodeInvalidInput,
				"account %s (%s) did not exist at height %d", account, params.Scope, refBlock.Height))
			return
		}
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account:  account,
		Contract: params.Scope.Contract,
		Balance:  balance.String(),
		ReferenceBlock: referenceBlock{
			Height:         refBlock.Height,
			TimestampNanos: refBlock.Timestamp,
		},
	})
}
