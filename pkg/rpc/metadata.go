package rpc

import (
	"context"
	"net/http"
)

// TokenMetadata is the static descriptor of a fungible-token contract. It
// never changes after deployment, so callers are free to cache it.
type TokenMetadata struct {
	Contract string `json:"contract"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type tokenMetadataRequest struct {
	Contract string `json:"contract"`
}

// TokenMetadataByContract fetches a fungible-token contract's descriptor.
// Returns ErrNotFound when the contract is unknown to the node.
func (c *HTTPClient) TokenMetadataByContract(ctx context.Context, contract string) (*TokenMetadata, error) {
	var meta TokenMetadata
	err := c.doJSON(ctx, http.MethodPost, tokenMetadataPath, tokenMetadataRequest{Contract: contract}, &meta)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}
