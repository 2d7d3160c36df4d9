package reconcile

import (
	"context"
	"math/big"

	models "github.com/lumen-network/balancex/pkg/db/models/ledger"
	"github.com/lumen-network/balancex/pkg/ledgererr"
	"go.uber.org/zap"
)

const (
	// MinLimit and MaxLimit bound a page. The HTTP layer rejects
	// out-of-range limits; the clamp here is the engine's own floor.
	MinLimit = 1
	MaxLimit = 100
)

// HistoryItem is one balance-annotated event of a page.
type HistoryItem struct {
	EventIndex     *big.Int
	Counterparty   *string
	DeltaBalance   *big.Int
	Balance        *big.Int
	Cause          string
	Status         string
	BlockHeight    uint64
	BlockTimestamp uint64
}

// Page is a newest-first, gap-free slice of an account's balance history.
type Page struct {
	Items []HistoryItem
	// NextCursor is the event index of the oldest returned item; nil for an
	// empty page. The next page is bounded strictly below it.
	NextCursor *big.Int
}

// Request is a fully resolved history query: the cursor has been validated
// by the CursorCodec and the reference block pinned by the BlockResolver.
type Request struct {
	Account  string
	Scope    Scope
	Cursor   *big.Int
	Limit    int
	RefBlock *models.Block
}

// Reconciler reconstructs history pages from delta events anchored to and
// validated against oracle snapshots. One instance serves all asset kinds;
// per-kind behavior comes from RuleFor.
type Reconciler struct {
	Events EventSource
	Oracle Oracle
	Logger *zap.Logger
}

func NewReconciler(events EventSource, oracle Oracle, logger *zap.Logger) *Reconciler {
	return &Reconciler{Events: events, Oracle: oracle, Logger: logger}
}

// walked pairs a window event with the running balance before and after
// undoing it. after[i] is the balance implied immediately before event i,
// which is also the reported balance of the next (older) item.
type walked struct {
	ev      *models.BalanceEvent
	balance *big.Int // reported balance: running balance before undoing ev
	after   *big.Int // running balance after undoing ev
}

// History builds one page.
//
// The window is overfetched to whole blocks on both edges because the oracle
// only exposes end-of-block snapshots: anchoring and trailing-edge validation
// are only meaningful when every block in the window is either fully included
// or fully excluded. The rows fetched beyond the requested page exist purely
// for those two cross-checks and are trimmed before returning.
//
// Known limitation: the newest block may still be mid-write in the store. A
// half-ingested block fails the oracle cross-check and surfaces as a
// retriable LedgerInconsistency rather than a wrong answer.
func (r *Reconciler) History(ctx context.Context, req Request) (*Page, error) {
	limit := req.Limit
	if limit < MinLimit {
		limit = MinLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	boundary := req.Cursor
	if boundary == nil {
		// Synthetic boundary one past the reference block's timestamp, so
		// the reference block's own events are included.
		boundary = IndexAfterTimestamp(req.RefBlock.Timestamp)
	}

	initial, err := r.Events.EventsBelow(ctx, req.Account, req.Scope.Contract, boundary, limit)
	if err != nil {
		return nil, err
	}
	if len(initial) == 0 {
		// Nothing at or below the boundary: empty page, zero oracle calls.
		return &Page{Items: []HistoryItem{}}, nil
	}

	// Extend to whole blocks at both edges. The range may also pick up rows
	// of the newest block that sit at or above the boundary (already served
	// on the previous page); the walk needs them to step down from the
	// end-of-block anchor to the boundary.
	newestTs := initial[0].BlockTimestamp
	oldestTs := initial[len(initial)-1].BlockTimestamp
	window, err := r.Events.EventsInRange(ctx, req.Account, req.Scope.Contract,
		IndexAtTimestamp(oldestTs), IndexAfterTimestamp(newestTs))
	if err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, ledgererr.New(ledgererr.CodeInternal,
			"window query returned no rows although the initial slice had %d", len(initial))
	}

	anchor, err := r.Oracle.AbsoluteBalance(ctx, req.Account, req.Scope.Contract, window[0].BlockHeight)
	if err != nil {
		if ledgererr.Is(err, ledgererr.CodeOracleNotFound) {
			// Events exist at this block but the oracle says the account
			// did not: that is a data defect, not an absent account.
			return nil, ledgererr.Wrap(ledgererr.CodeLedgerInconsistency, err,
				"oracle reports no state for %s (%s) at height %d despite indexed events",
				req.Account, req.Scope, window[0].BlockHeight)
		}
		return nil, err
	}

	walk, err := r.walk(req.Account, req.Scope, window, anchor)
	if err != nil {
		return nil, err
	}

	page := trim(walk, boundary, limit)
	if len(page) == 0 {
		// Every window row sat at or above the boundary. Cannot happen with
		// a consistent store: the initial slice came from below it.
		return nil, ledgererr.New(ledgererr.CodeInternal,
			"trim discarded the whole %d-row window", len(walk))
	}

	if err := r.validateTrailingEdge(ctx, req, walk, page[len(page)-1]); err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(page))
	for _, w := range page {
		items = append(items, HistoryItem{
			EventIndex:     w.ev.EventIndex,
			Counterparty:   w.ev.Counterparty,
			DeltaBalance:   w.ev.Delta,
			Balance:        w.balance,
			Cause:          w.ev.Cause,
			Status:         w.ev.Status,
			BlockHeight:    w.ev.BlockHeight,
			BlockTimestamp: w.ev.BlockTimestamp,
		})
	}

	return &Page{
		Items:      items,
		NextCursor: page[len(page)-1].ev.EventIndex,
	}, nil
}

// walk traverses the window newest to oldest. Each item's reported balance is
// the running balance before undoing its own delta; undoing a SUCCESS event's
// signed delta yields the balance implied immediately before it. FAILURE
// events are reported but leave the running balance untouched.
func (r *Reconciler) walk(account string, scope Scope, window []*models.BalanceEvent, anchor *big.Int) ([]walked, error) {
	rule := RuleFor(scope)
	running := new(big.Int).Set(anchor)
	out := make([]walked, 0, len(window))

	for _, ev := range window {
		if err := rule.CheckEvent(account, scope, ev); err != nil {
			return nil, err
		}

		balance := new(big.Int).Set(running)
		if ev.Succeeded() {
			running.Sub(running, rule.SignedDelta(ev))
			if running.Sign() < 0 {
				// Never clamp: a negative implied balance means the delta
				// log and the oracle disagree.
				return nil, ledgererr.New(ledgererr.CodeLedgerInconsistency,
					"running balance for %s (%s) goes negative at event %s", account, scope, ev.EventIndex)
			}
		}
		out = append(out, walked{ev: ev, balance: balance, after: new(big.Int).Set(running)})
	}

	return out, nil
}

// trim keeps the rows the caller actually asked for: strictly below the
// boundary, at most limit of them.
func trim(walk []walked, boundary *big.Int, limit int) []walked {
	out := make([]walked, 0, limit)
	for _, w := range walk {
		if w.ev.EventIndex.Cmp(boundary) >= 0 {
			continue
		}
		out = append(out, w)
		if len(out) == limit {
			break
		}
	}
	return out
}

// validateTrailingEdge cross-checks the walk against the oracle at the block
// immediately preceding the oldest returned item. The walk's running balance
// after undoing every window event of that item's block is the balance at the
// end of the preceding block; the oracle must agree.
func (r *Reconciler) validateTrailingEdge(ctx context.Context, req Request, walk []walked, oldest walked) error {
	h := oldest.ev.BlockHeight

	// The window is block-aligned, so the last window row of block h is the
	// oldest event the account has in that block.
	var computed *big.Int
	for _, w := range walk {
		if w.ev.BlockHeight == h {
			computed = w.after
		}
	}
	if computed == nil {
		return ledgererr.New(ledgererr.CodeInternal,
			"oldest returned block %d missing from the walked window", h)
	}

	expected := big.NewInt(0)
	if h > 0 {
		oracleBalance, err := r.Oracle.AbsoluteBalance(ctx, req.Account, req.Scope.Contract, h-1)
		switch {
		case err == nil:
			expected = oracleBalance
		case ledgererr.Is(err, ledgererr.CodeOracleNotFound):
			// The account/contract did not exist yet: implied zero.
		default:
			return err
		}
	}

	if expected.Cmp(computed) != 0 {
		r.Logger.Warn("Trailing-edge balance mismatch",
			zap.String("account", req.Account),
			zap.String("scope", req.Scope.String()),
			zap.Uint64("oldest_height", h),
			zap.String("oracle", expected.String()),
			zap.String("computed", computed.String()))
		return ledgererr.New(ledgererr.CodeLedgerInconsistency,
			"balance for %s (%s) before height %d: oracle says %s, event walk says %s",
			req.Account, req.Scope, h, expected, computed)
	}

	return nil
}
