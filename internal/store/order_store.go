package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kowloon-quant/tradeengine/internal/errkind"
)

// OrderStore is C6: today's order ledger, answering the "does this
// symbol already have an open/pending buy today?" question C8's
// dedup filter and C9's idempotence check both depend on.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order record, normally in pending_submit
// state immediately after broker.SubmitOrder succeeds.
func (s *OrderStore) Create(ctx context.Context, o OrderRecord) (int64, error) {
	const q = `
		INSERT INTO order_records
			(account_id, client_order_id, broker_order_id, symbol, side, quantity, price, state, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	submittedAt := o.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	var id int64
	err := s.pool.QueryRow(ctx, q, o.AccountID, o.ClientOrderID, o.BrokerOrderID, o.Symbol, o.Side, o.Quantity, o.Price, o.State, submittedAt).Scan(&id)
	if err != nil {
		return 0, errkind.New(errkind.TransientNetwork, fmt.Errorf("order store: create: %w", err))
	}
	return id, nil
}

// UpdateState sets an order's state; the price and quantity recorded
// by Create are left unchanged.
func (s *OrderStore) UpdateState(ctx context.Context, accountID, clientOrderID string, state OrderState) error {
	const q = `
		UPDATE order_records SET state = $3
		WHERE account_id = $1 AND client_order_id = $2
	`
	_, err := s.pool.Exec(ctx, q, accountID, clientOrderID, state)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("order store: update_state: %w", err))
	}
	return nil
}

// ByClientOrderID looks up an existing order by the signal id that
// originated it, letting C9 resume status polling instead of
// resubmitting on an at-least-once redelivery.
func (s *OrderStore) ByClientOrderID(ctx context.Context, accountID, clientOrderID string) (OrderRecord, bool, error) {
	const q = `
		SELECT id, broker_order_id, symbol, side, quantity, price, state, submitted_at
		FROM order_records
		WHERE account_id = $1 AND client_order_id = $2
	`
	var o OrderRecord
	err := s.pool.QueryRow(ctx, q, accountID, clientOrderID).Scan(
		&o.ID, &o.BrokerOrderID, &o.Symbol, &o.Side, &o.Quantity, &o.Price, &o.State, &o.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderRecord{}, false, nil
	}
	if err != nil {
		return OrderRecord{}, false, errkind.New(errkind.TransientNetwork, fmt.Errorf("order store: by_client_order_id: %w", err))
	}
	o.AccountID = accountID
	o.ClientOrderID = clientOrderID
	return o, true, nil
}

// FilledOrders returns every filled order since the given time,
// ordered by submitted_at, for the performance report's trade
// matching to consume. Unlike TodayBuySymbols this spans both sides
// and any date range, so it does not use the same-day index.
func (s *OrderStore) FilledOrders(ctx context.Context, accountID string, since time.Time) ([]OrderRecord, error) {
	const q = `
		SELECT id, client_order_id, broker_order_id, symbol, side, quantity, price, state, submitted_at
		FROM order_records
		WHERE account_id = $1 AND state = $2 AND submitted_at >= $3
		ORDER BY submitted_at ASC
	`
	rows, err := s.pool.Query(ctx, q, accountID, OrderFilled, since)
	if err != nil {
		return nil, errkind.New(errkind.TransientNetwork, fmt.Errorf("order store: filled_orders: %w", err))
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var o OrderRecord
		if err := rows.Scan(&o.ID, &o.ClientOrderID, &o.BrokerOrderID, &o.Symbol, &o.Side, &o.Quantity, &o.Price, &o.State, &o.SubmittedAt); err != nil {
			return nil, fmt.Errorf("order store: scan: %w", err)
		}
		o.AccountID = accountID
		out = append(out, o)
	}
	return out, rows.Err()
}

// TodayBuySymbols returns the set of symbols with a same-day BUY in
// any of pending_submit|live|partially_filled|filled, backed by an
// index on (account_id, date, side, state) for sub-linear lookup.
func (s *OrderStore) TodayBuySymbols(ctx context.Context, accountID string, today time.Time) (map[string]bool, error) {
	const q = `
		SELECT DISTINCT symbol
		FROM order_records
		WHERE account_id = $1
		  AND side = 'BUY'
		  AND state = ANY($2)
		  AND submitted_at >= $3 AND submitted_at < $4
	`
	dayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.pool.Query(ctx, q, accountID, openOrderStates, dayStart, dayEnd)
	if err != nil {
		return nil, errkind.New(errkind.TransientNetwork, fmt.Errorf("order store: today_buy_symbols: %w", err))
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("order store: scan: %w", err)
		}
		out[symbol] = true
	}
	return out, rows.Err()
}
