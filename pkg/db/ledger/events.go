package ledger

import (
	"context"
	"fmt"
	"math/big"

	models "github.com/lumen-network/balancex/pkg/db/models/ledger"
)

// EventsBelow returns up to limit events for (account, contract) with
// event_index strictly below boundary, newest first. contract is empty for
// the native token.
func (db *DB) EventsBelow(ctx context.Context, account, contract string, boundary *big.Int, limit int) ([]*models.BalanceEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s"
		WHERE account = ? AND contract = ? AND event_index < ?
		ORDER BY event_index DESC
		LIMIT ?
	`, models.ColumnsToSelectSQL(models.EventColumns), db.Client.Database, models.EventsTableName)

	var events []*models.BalanceEvent
	err := db.read(ctx, "events_below", func() error {
		rows, err := db.selectEvents(ctx, query, account, contract, boundary, limit)
		if err != nil {
			return err
		}
		events = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// EventsInRange returns every event for (account, contract) with event_index
// in [lo, hi), newest first. Because the top 64 bits of an event index are
// the block timestamp, a [ts<<64, (ts+1)<<64) range covers whole blocks; the
// reconciler relies on that to fetch block-aligned windows.
func (db *DB) EventsInRange(ctx context.Context, account, contract string, lo, hi *big.Int) ([]*models.BalanceEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s"
		WHERE account = ? AND contract = ? AND event_index >= ? AND event_index < ?
		ORDER BY event_index DESC
	`, models.ColumnsToSelectSQL(models.EventColumns), db.Client.Database, models.EventsTableName)

	var events []*models.BalanceEvent
	err := db.read(ctx, "events_in_range", func() error {
		rows, err := db.selectEvents(ctx, query, account, contract, lo, hi)
		if err != nil {
			return err
		}
		events = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (db *DB) selectEvents(ctx context.Context, query string, args ...interface{}) ([]*models.BalanceEvent, error) {
	rows, err := db.Client.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query balance events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*models.BalanceEvent, 0)
	for rows.Next() {
		var ev models.BalanceEvent
		if err := rows.Scan(
			&ev.EventIndex,
			&ev.Account,
			&ev.Contract,
			&ev.Counterparty,
			&ev.Delta,
			&ev.Cause,
			&ev.Status,
			&ev.BlockHeight,
			&ev.BlockTimestamp,
		); err != nil {
			return nil, fmt.Errorf("scan balance event row: %w", err)
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance event rows: %w", err)
	}

	return events, nil
}
