package rpc

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
)

// balanceRequest queries the node's view of an absolute balance at the end of
// a block. contract is omitted for the native token.
type balanceRequest struct {
	Account  string `json:"account"`
	Contract string `json:"contract,omitempty"`
	Height   uint64 `json:"height"`
}

// balanceResponse carries amounts as decimal strings: balances are u128 and
// must not pass through float64 on the way out of encoding/json.
type balanceResponse struct {
	Amount string `json:"amount"`
	Height uint64 `json:"height"`
}

// AbsoluteBalance returns the authoritative balance of account at the end of
// the block at height. contract is empty for the native token.
//
// Returns ErrNotFound when the account/contract state did not exist at that
// height.
func (c *HTTPClient) AbsoluteBalance(ctx context.Context, account, contract string, height uint64) (*big.Int, error) {
	var resp balanceResponse
	err := c.doJSON(ctx, http.MethodPost, balancePath, balanceRequest{
		Account:  account,
		Contract: contract,
		Height:   height,
	}, &resp)
	if err != nil {
		return nil, err
	}

	amount, ok := new(big.Int).SetString(resp.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("node returned unparseable amount %q for %s at height %d", resp.Amount, account, height)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("node returned negative balance %s for %s at height %d", resp.Amount, account, height)
	}
	return amount, nil
}
