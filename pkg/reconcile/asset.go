package reconcile

import (
	"math/big"

	models "github.com/lumen-network/balancex/pkg/db/models/ledger"
	"github.com/lumen-network/balancex/pkg/ledgererr"
)

// AssetRule captures the per-asset-kind behavior the walk needs injected:
// how to validate that a stored row belongs to the query, and how to orient
// its delta. The control flow in the reconciler is identical for every kind.
type AssetRule struct {
	Kind string

	// CheckEvent verifies the row actually belongs to (account, scope).
	// A mismatch is a store/query contract violation, never user error.
	CheckEvent func(account string, scope Scope, ev *models.BalanceEvent) error

	// SignedDelta orients ev.Delta so that a positive value means account's
	// balance increased. The indexer stores deltas already oriented this
	// way for every asset kind; keeping the hook here pins that convention
	// to one place should a future event source diverge.
	SignedDelta func(ev *models.BalanceEvent) *big.Int
}

// RuleFor returns the asset rule for a scope.
func RuleFor(scope Scope) AssetRule {
	if scope.Native() {
		return AssetRule{
			Kind:        "native",
			CheckEvent:  checkNativeEvent,
			SignedDelta: storedDelta,
		}
	}
	return AssetRule{
		Kind:        "token",
		CheckEvent:  checkTokenEvent,
		SignedDelta: storedDelta,
	}
}

func storedDelta(ev *models.BalanceEvent) *big.Int { return ev.Delta }

func checkNativeEvent(account string, _ Scope, ev *models.BalanceEvent) error {
	if ev.Account != account {
		return ledgererr.New(ledgererr.CodeInternal,
			"event %s affects account %s, expected %s", ev.EventIndex, ev.Account, account)
	}
	if ev.Contract != "" {
		return ledgererr.New(ledgererr.CodeInternal,
			"event %s carries contract %s in a native-token query", ev.EventIndex, ev.Contract)
	}
	return nil
}

func checkTokenEvent(account string, scope Scope, ev *models.BalanceEvent) error {
	if ev.Account != account {
		return ledgererr.New(ledgererr.CodeInternal,
			"event %s affects account %s, expected %s", ev.EventIndex, ev.Account, account)
	}
	if ev.Contract != scope.Contract {
		return ledgererr.New(ledgererr.CodeInternal,
			"event %s belongs to contract %s, expected %s", ev.EventIndex, ev.Contract, scope.Contract)
	}
	return nil
}
