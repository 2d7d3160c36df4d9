package controller

import (
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/lumen-network/balancex/app/query/types"
	"github.com/lumen-network/balancex/pkg/ledgererr"
	"github.com/lumen-network/balancex/pkg/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testController() *Controller {
	return NewController(&types.App{
		Cursors: reconcile.NewCursorCodec(nil),
	})
}

func TestParseHistoryParamsDefaults(t *testing.T) {
	c := testController()

	r := httptest.NewRequest("GET", "/v1/accounts/alice/balance-history", nil)
	params, err := c.parseHistoryParams(r)
	require.NoError(t, err)

	assert.True(t, params.Scope.Native())
	assert.Equal(t, defaultLimit, params.Limit)
	assert.Nil(t, params.Cursor)
	assert.Nil(t, params.Ref.Height)
	assert.Nil(t, params.Ref.TimestampNanos)
}

func TestParseHistoryParamsFull(t *testing.T) {
	c := testController()

	r := httptest.NewRequest("GET",
		"/v1/accounts/alice/balance-history?contract_id=0xfeed&block_height=42&limit=5", nil)
	params, err := c.parseHistoryParams(r)
	require.NoError(t, err)

	assert.Equal(t, "0xfeed", params.Scope.Contract)
	require.NotNil(t, params.Ref.Height)
	assert.Equal(t, uint64(42), *params.Ref.Height)
	assert.Equal(t, 5, params.Limit)
}

func TestParseHistoryParamsCursor(t *testing.T) {
	c := testController()

	cursor := new(big.Int).Lsh(big.NewInt(2000), 64)
	r := httptest.NewRequest("GET",
		"/v1/accounts/alice/balance-history?after_event_index="+cursor.String(), nil)
	params, err := c.parseHistoryParams(r)
	require.NoError(t, err)

	require.NotNil(t, params.Cursor)
	assert.Zero(t, cursor.Cmp(params.Cursor))
	assert.Equal(t, params.Cursor, params.Ref.Cursor)
}

func TestParseHistoryParamsRejects(t *testing.T) {
	c := testController()

	for name, query := range map[string]string{
		"limit zero":           "limit=0",
		"limit negative":       "limit=-1",
		"limit above max":      "limit=101",
		"limit not a number":   "limit=abc",
		"bad height":           "block_height=abc",
		"bad timestamp":        "block_timestamp_nanos=-5",
		"bad cursor":           "after_event_index=xyz",
		"cursor plus height":   "after_event_index=100&block_height=42",
		"cursor plus ts":       "after_event_index=100&block_timestamp_nanos=2000",
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/accounts/alice/balance-history?"+query, nil)
			_, err := c.parseHistoryParams(r)
			require.Error(t, err)
			assert.True(t, ledgererr.Is(err, ledgererr.CodeInvalidInput))
		})
	}
}
