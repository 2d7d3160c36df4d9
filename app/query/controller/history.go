package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lumen-network/balancex/pkg/reconcile"
	"github.com/lumen-network/balancex/pkg/rpc"
)

// historyEntry renders one reconciled event. Indexes and amounts are decimal
// strings: event indexes are u128 and balances may exceed what a JSON number
// survives.
type historyEntry struct {
	EventIndex     string  `json:"event_index"`
	Counterparty   *string `json:"counterparty,omitempty"`
	DeltaBalance   string  `json:"delta_balance"`
	Balance        string  `json:"balance"`
	Cause          string  `json:"cause"`
	Status         string  `json:"status"`
	BlockHeight    uint64  `json:"block_height"`
	BlockTimestamp uint64  `json:"block_timestamp_nanos"`
}

type referenceBlock struct {
	Height         uint64 `json:"height"`
	TimestampNanos uint64 `json:"timestamp_nanos"`
}

type historyResponse struct {
	Account        string             `json:"account"`
	Contract       string             `json:"contract,omitempty"`
	Token          *rpc.TokenMetadata `json:"token,omitempty"`
	ReferenceBlock referenceBlock     `json:"reference_block"`
	Data           []historyEntry     `json:"data"`
	Limit          int                `json:"limit"`
	NextCursor     *string            `json:"next_cursor,omitempty"`
}

// HandleBalanceHistory returns one page of an account's reconciled balance
// history, newest first.
// Query parameters:
//   - contract_id: token contract, omitted for the native token
//   - block_height / block_timestamp_nanos: reference point (mutually exclusive)
//   - after_event_index: cursor from a previous page
//   - limit: page size (default 20, max 100)
func (c *Controller) HandleBalanceHistory(w http.ResponseWriter, r *http.Request) {
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

	ctx := r.Context()

	refBlock, err := c.App.Resolver.Resolve(ctx, params.Ref)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	page, err := c.App.Reconciler.History(ctx, reconcile.Request{
		Account:  account,
		Scope:    params.Scope,
		Cursor:   params.Cursor,
		Limit:    params.Limit,
		RefBlock: refBlock,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	resp := historyResponse{
		Account:  account,
		Contract: params.Scope.Contract,
		ReferenceBlock: referenceBlock{
			Height:         refBlock.Height,
			TimestampNanos: refBlock.Timestamp,
		},
		Data:  make([]historyEntry, 0, len(page.Items)),
		Limit: params.Limit,
	}

	if !params.Scope.Native() {
		// Best effort: history is still served when the node cannot
		// describe the token.
		if meta, ok := c.App.LoadTokenMetadata(ctx, params.Scope.Contract); ok {
			resp.Token = meta
		}
	}

	for _, item := range page.Items {
		resp.Data = append(resp.Data, historyEntry{
			EventIndex:     item.EventIndex.String(),
			Counterparty:   item.Counterparty,
			DeltaBalance:   item.DeltaBalance.String(),
			Balance:        item.Balance.String(),
			Cause:          item.Cause,
			Status:         item.Status,
			BlockHeight:    item.BlockHeight,
			BlockTimestamp: item.BlockTimestamp,
		})
	}

	if page.NextCursor != nil {
		cursor := reconcile.Encode(page.NextCursor)
		resp.NextCursor = &cursor
	}

	writeJSON(w, http.StatusOK, resp)
}
