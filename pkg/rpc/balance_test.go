package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(endpoints ...string) *HTTPClient {
	return NewHTTPWithOpts(Opts{
		Endpoints: endpoints,
		RPS:       1000,
		Burst:     1000,
	})
}

func TestAbsoluteBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, balancePath, r.URL.Path)

		var req balanceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice.test", req.Account)
		assert.Equal(t, uint64(42), req.Height)

		_ = json.NewEncoder(w).Encode(balanceResponse{Amount: "340282366920938463463374607431768211455", Height: 42})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	amount, err := c.AbsoluteBalance(context.Background(), "alice.test", "", 42)
	require.NoError(t, err)
	// max u128 must round-trip without precision loss
	assert.Equal(t, "340282366920938463463374607431768211455", amount.String())
}

func TestAbsoluteBalanceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.AbsoluteBalance(context.Background(), "ghost.test", "token.test", 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAbsoluteBalanceRejectsGarbageAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(balanceResponse{Amount: "not-a-number"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.AbsoluteBalance(context.Background(), "alice.test", "", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable amount")
}

func TestDoJSONFailsOverToSecondEndpoint(t *testing.T) {
	var primaryHits atomic.Int64
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(balanceResponse{Amount: "100"})
	}))
	defer good.Close()

	c := newTestClient(bad.URL, good.URL)
	amount, err := c.AbsoluteBalance(context.Background(), "alice.test", "", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), primaryHits.Load())
	assert.Equal(t, "100", amount.String())
}

func TestTokenMetadataByContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, tokenMetadataPath, r.URL.Path)
		_ = json.NewEncoder(w).Encode(TokenMetadata{
			Contract: "token.test",
			Name:     "Test Token",
			Symbol:   "TST",
			Decimals: 18,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	meta, err := c.TokenMetadataByContract(context.Background(), "token.test")
	require.NoError(t, err)
	assert.Equal(t, "TST", meta.Symbol)
	assert.Equal(t, uint8(18), meta.Decimals)
}
