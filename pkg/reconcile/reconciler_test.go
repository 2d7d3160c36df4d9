package reconcile

import (
	"context"
	"math/big"
	"sort"
	"testing"

	models "github.com/lumen-network/balancex/pkg/db/models/ledger"
	"github.com/lumen-network/balancex/pkg/ledgererr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func idx(ts, seq uint64) *big.Int {
	i := new(big.Int).Lsh(new(big.Int).SetUint64(ts), 64)
	return i.Or(i, new(big.Int).SetUint64(seq))
}

func ev(ts, seq, height uint64, delta int64, status string) *models.BalanceEvent {
	return &models.BalanceEvent{
		EventIndex:     idx(ts, seq),
		Account:        "alice",
		Delta:          big.NewInt(delta),
		Cause:          models.CauseTransfer,
		Status:         status,
		BlockHeight:    height,
		BlockTimestamp: ts,
	}
}

// fakeEvents serves a fixed, newest-first event log.
type fakeEvents struct {
	events []*models.BalanceEvent
}

func newFakeEvents(events ...*models.BalanceEvent) *fakeEvents {
	sort.Slice(events, func(i, j int) bool {
		return events[i].EventIndex.Cmp(events[j].EventIndex) > 0
	})
	return &fakeEvents{events: events}
}

func (f *fakeEvents) EventsBelow(_ context.Context, account, contract string, boundary *big.Int, limit int) ([]*models.BalanceEvent, error) {
	var out []*models.BalanceEvent
	for _, e := range f.events {
		if e.Account != account || e.Contract != contract {
			continue
		}
		if e.EventIndex.Cmp(boundary) >= 0 {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEvents) EventsInRange(_ context.Context, account, contract string, lo, hi *big.Int) ([]*models.BalanceEvent, error) {
	var out []*models.BalanceEvent
	for _, e := range f.events {
		if e.Account != account || e.Contract != contract {
			continue
		}
		if e.EventIndex.Cmp(lo) < 0 || e.EventIndex.Cmp(hi) >= 0 {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// fakeOracle serves per-height balances; missing heights report not-found
// the way NodeOracle does.
type fakeOracle struct {
	balances map[uint64]int64
	calls    int
}

func (f *fakeOracle) AbsoluteBalance(_ context.Context, account, contract string, height uint64) (*big.Int, error) {
	f.calls++
	b, ok := f.balances[height]
	if !ok {
		return nil, ledgererr.New(ledgererr.CodeOracleNotFound,
			"no state for %s at height %d", account, height)
	}
	return big.NewInt(b), nil
}

// Three blocks of native-token activity for alice. The account is created at
// height 10, so the oracle has no state at height 9.
//
//	h=10 ts=1000: +50, -10   -> 40
//	h=11 ts=2000: +30, -5, +15 -> 80
//	h=12 ts=3000: +20        -> 100
func fixture() (*fakeEvents, *fakeOracle) {
	events := newFakeEvents(
		ev(1000, 0, 10, 50, models.StatusSuccess),
		ev(1000, 1, 10, -10, models.StatusSuccess),
		ev(2000, 0, 11, 30, models.StatusSuccess),
		ev(2000, 1, 11, -5, models.StatusSuccess),
		ev(2000, 2, 11, 15, models.StatusSuccess),
		ev(3000, 0, 12, 20, models.StatusSuccess),
	)
	oracle := &fakeOracle{balances: map[uint64]int64{10: 40, 11: 80, 12: 100}}
	return events, oracle
}

func refBlock(height, ts uint64) *models.Block {
	return &models.Block{Height: height, Timestamp: ts}
}

func balances(page *Page) []int64 {
	out := make([]int64, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, it.Balance.Int64())
	}
	return out
}

func TestHistoryFullWalk(t *testing.T) {
	events, oracle := fixture()
	r := NewReconciler(events, oracle, zap.NewNop())

	page, err := r.History(context.Background(), Request{
		Account:  "alice",
		Scope:    NativeScope(),
		Limit:    10,
		RefBlock: refBlock(12, 3000),
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 6)

	assert.Equal(t, []int64{100, 80, 65, 70, 40, 50}, balances(page))
	assert.Equal(t, idx(3000, 0), page.Items[0].EventIndex)
	assert.Equal(t, idx(1000, 0), page.NextCursor)

	// Anchor at height 12, creation probe at height 9.
	assert.Equal(t, 2, oracle.calls)
}

func TestHistoryEmptyPage(t *testing.T) {
	events, oracle := fixture()
	r := NewReconciler(events, oracle, zap.NewNop())

	// Reference block predates every event.
	page, err := r.History(context.Background(), Request{
		Account:  "alice",
		Scope:    NativeScope(),
		Limit:    10,
		RefBlock: refBlock(5, 500),
	})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.NextCursor)
	assert.Zero(t, oracle.calls, "an empty page must not consult the oracle")
}

func TestHistoryPagination(t *testing.T) {
	events, oracle := fixture()
	r := NewReconciler(events, oracle, zap.NewNop())
	ref := refBlock(12, 3000)

	page1, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 2, RefBlock: ref,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 80}, balances(page1))
	require.Equal(t, idx(2000, 2), page1.NextCursor)

	// The cursor pins the second page even though RefBlock no longer matters.
	page2, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 2, RefBlock: ref,
		Cursor: page1.NextCursor,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{65, 70}, balances(page2))
	require.Equal(t, idx(2000, 0), page2.NextCursor)

	// Page 1 ended mid-block; page 2 resumes inside the same block.
	assert.Equal(t, page1.Items[len(page1.Items)-1].BlockHeight, page2.Items[0].BlockHeight)

	page3, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 2, RefBlock: ref,
		Cursor: page2.NextCursor,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{40, 50}, balances(page3))

	// Pages never overlap and never skip.
	all := append(append(balances(page1), balances(page2)...), balances(page3)...)
	assert.Equal(t, []int64{100, 80, 65, 70, 40, 50}, all)
}

func TestHistoryCursorMidBlock(t *testing.T) {
	events, oracle := fixture()
	r := NewReconciler(events, oracle, zap.NewNop())

	// Cursor inside block 11: the walk must still anchor at the end of
	// block 11 and step down past the already-served rows.
	page, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 2,
		RefBlock: refBlock(12, 3000),
		Cursor:   idx(2000, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{70, 40}, balances(page))
	assert.Equal(t, idx(2000, 0), page.Items[0].EventIndex)
	assert.Equal(t, idx(1000, 1), page.NextCursor)
}

func TestHistoryDeterministicForPinnedReference(t *testing.T) {
	events, oracle := fixture()
	r := NewReconciler(events, oracle, zap.NewNop())
	req := Request{Account: "alice", Scope: NativeScope(), Limit: 3, RefBlock: refBlock(11, 2000)}

	first, err := r.History(context.Background(), req)
	require.NoError(t, err)

	// New blocks arrive; the pinned reference must shield the page.
	events.events = append([]*models.BalanceEvent{ev(4000, 0, 13, 999, models.StatusSuccess)}, events.events...)
	oracle.balances[13] = 1099

	second, err := r.History(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, balances(first), balances(second))
	assert.Equal(t, first.NextCursor, second.NextCursor)
}

func TestHistoryFailedEventsReportedUnapplied(t *testing.T) {
	events := newFakeEvents(
		ev(1000, 0, 10, 50, models.StatusSuccess),
		ev(2000, 0, 11, 25, models.StatusFailure),
		ev(2000, 1, 11, 10, models.StatusSuccess),
	)
	oracle := &fakeOracle{balances: map[uint64]int64{10: 50, 11: 60}}
	r := NewReconciler(events, oracle, zap.NewNop())

	page, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 10, RefBlock: refBlock(11, 2000),
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	// The failed +25 shows up in the page but the balance around it is flat.
	assert.Equal(t, []int64{60, 50, 50}, balances(page))
	assert.Equal(t, models.StatusFailure, page.Items[1].Status)
	assert.Equal(t, int64(25), page.Items[1].DeltaBalance.Int64())
}

func TestHistoryWalkAcrossBlocks(t *testing.T) {
	// One event per block: -10, then +30, then a failed +5, anchored at 100.
	events := newFakeEvents(
		ev(3000, 0, 3, 5, models.StatusFailure),
		ev(4000, 0, 4, 30, models.StatusSuccess),
		ev(5000, 0, 5, -10, models.StatusSuccess),
	)
	oracle := &fakeOracle{balances: map[uint64]int64{2: 80, 5: 100}}
	r := NewReconciler(events, oracle, zap.NewNop())

	page, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 10, RefBlock: refBlock(5, 5000),
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	// 100 before the -10, 110 before the +30, 80 around the failed event,
	// which the trailing-edge snapshot at height 2 must also report.
	assert.Equal(t, []int64{100, 110, 80}, balances(page))
}

func TestHistoryGenesisBlock(t *testing.T) {
	events := newFakeEvents(ev(0, 0, 0, 5, models.StatusSuccess))
	oracle := &fakeOracle{balances: map[uint64]int64{0: 5}}
	r := NewReconciler(events, oracle, zap.NewNop())

	page, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 10, RefBlock: refBlock(0, 0),
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(5), page.Items[0].Balance.Int64())

	// Nothing precedes genesis; only the anchor call is made.
	assert.Equal(t, 1, oracle.calls)
}

func TestHistoryTokenScope(t *testing.T) {
	native := ev(1000, 0, 10, 50, models.StatusSuccess)
	tok := ev(1000, 1, 10, 7, models.StatusSuccess)
	tok.Contract = "0xfeed"
	events := newFakeEvents(native, tok)
	oracle := &fakeOracle{balances: map[uint64]int64{10: 7}}
	r := NewReconciler(events, oracle, zap.NewNop())

	page, err := r.History(context.Background(), Request{
		Account: "alice", Scope: TokenScope("0xfeed"), Limit: 10, RefBlock: refBlock(10, 1000),
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1, "native rows must not leak into a token query")
	assert.Equal(t, int64(7), page.Items[0].Balance.Int64())
}

func TestHistoryAnchorMissingState(t *testing.T) {
	events, _ := fixture()
	oracle := &fakeOracle{balances: map[uint64]int64{}}
	r := NewReconciler(events, oracle, zap.NewNop())

	_, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 10, RefBlock: refBlock(12, 3000),
	})
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeLedgerInconsistency))
}

func TestHistoryNegativeRunningBalance(t *testing.T) {
	events, oracle := fixture()
	// Anchor too small for the deltas it must absorb.
	oracle.balances[12] = 10
	r := NewReconciler(events, oracle, zap.NewNop())

	_, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 10, RefBlock: refBlock(12, 3000),
	})
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeLedgerInconsistency))
}

func TestHistoryTrailingEdgeMismatch(t *testing.T) {
	events, oracle := fixture()
	// End of block 10 disagrees with the walk (40).
	oracle.balances[10] = 41
	r := NewReconciler(events, oracle, zap.NewNop())

	_, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 2, RefBlock: refBlock(12, 3000),
		Cursor: idx(2000, 0),
	})
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeLedgerInconsistency))
	assert.True(t, ledgererr.Retriable(err))
}

func TestHistoryTrailingEdgeBeforeCreation(t *testing.T) {
	events, oracle := fixture()
	r := NewReconciler(events, oracle, zap.NewNop())

	// Oldest returned block is 10; height 9 has no state, which must read
	// as an implied zero, not an error.
	page, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 2, RefBlock: refBlock(10, 1000),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{40, 50}, balances(page))
}

func TestHistoryLimitClamped(t *testing.T) {
	events, oracle := fixture()
	r := NewReconciler(events, oracle, zap.NewNop())

	page, err := r.History(context.Background(), Request{
		Account: "alice", Scope: NativeScope(), Limit: 0, RefBlock: refBlock(12, 3000),
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, MinLimit)
}
