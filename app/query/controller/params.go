package controller

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/lumen-network/balancex/pkg/ledgererr"
	"github.com/lumen-network/balancex/pkg/reconcile"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type historyParams struct {
	Scope  reconcile.Scope
	Ref    reconcile.BlockRef
	Cursor *big.Int
	Limit  int
}

// parseHistoryParams validates the balance-history query string. An
// out-of-range limit is rejected rather than clamped: a client asking for
// 500 rows deserves to learn the cap instead of silently getting 100.
func (c *Controller) parseHistoryParams(r *http.Request) (historyParams, error) {
	qs := r.URL.Query()

	params := historyParams{
		Scope: reconcile.Scope{Contract: qs.Get("contract_id")},
		Limit: defaultLimit,
	}

	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return historyParams{}, ledgererr.New(ledgererr.CodeInvalidInput,
				"limit must be between 1 and %d", maxLimit)
		}
		params.Limit = n
	}

	if v := qs.Get("block_height"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return historyParams{}, ledgererr.New(ledgererr.CodeInvalidInput, "invalid block_height %q", v)
		}
		params.Ref.Height = &n
	}

	if v := qs.Get("block_timestamp_nanos"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return historyParams{}, ledgererr.New(ledgererr.CodeInvalidInput, "invalid block_timestamp_nanos %q", v)
		}
		params.Ref.TimestampNanos = &n
	}

	if v := qs.Get("after_event_index"); v != "" {
		cursor, err := c.App.Cursors.Decode(v)
		if err != nil {
			return historyParams{}, err
		}
		params.Cursor = cursor
		params.Ref.Cursor = cursor
	}

	// The resolver rejects height+timestamp; cursor additionally overrides
	// both, which is a client mistake worth flagging here.
	if params.Cursor != nil && (params.Ref.Height != nil || params.Ref.TimestampNanos != nil) {
		return historyParams{}, ledgererr.New(ledgererr.CodeInvalidInput,
			"after_event_index cannot be combined with block_height or block_timestamp_nanos")
	}

	return params, nil
}
