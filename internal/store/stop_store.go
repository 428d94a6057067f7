package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kowloon-quant/tradeengine/internal/errkind"
)

// StopStore is C5: the durable one-active-row-per-symbol stop/target
// ledger. All operations are safe under concurrent workers.
type StopStore struct {
	pool *pgxpool.Pool
}

// NewStopStore wraps an existing pool. Schema is created by the
// migration embedded in schema.go.
func NewStopStore(pool *pgxpool.Pool) *StopStore {
	return &StopStore{pool: pool}
}

// Put inserts a StopContract, enforcing at most one active row per
// (account_id, symbol) via a partial unique index; a second
// concurrent active insert fails with StopStoreConflict rather than
// silently overwriting the first.
func (s *StopStore) Put(ctx context.Context, c StopContract) error {
	const q = `
		INSERT INTO stop_contracts
			(account_id, symbol, entry_price, quantity, stop_loss, take_profit, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	now := c.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	_, err := s.pool.Exec(ctx, q, c.AccountID, c.Symbol, c.EntryPrice, c.Quantity, c.StopLoss, c.TakeProfit, c.Status, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errkind.New(errkind.StopStoreConflict, fmt.Errorf("stop store: active contract already exists for %s", c.Symbol))
		}
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("stop store: put: %w", err))
	}
	return nil
}

// GetActive returns the active StopContract for symbol, or
// (StopContract{}, false) if none exists.
func (s *StopStore) GetActive(ctx context.Context, accountID, symbol string) (StopContract, bool, error) {
	const q = `
		SELECT symbol, entry_price, quantity, stop_loss, take_profit,
		       COALESCE(backup_stop_order_id, ''), COALESCE(backup_tp_order_id, ''),
		       status, created_at, updated_at
		FROM stop_contracts
		WHERE account_id = $1 AND symbol = $2 AND status = 'active'
	`
	row := s.pool.QueryRow(ctx, q, accountID, symbol)
	c, err := scanStopContract(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StopContract{}, false, nil
	}
	if err != nil {
		return StopContract{}, false, errkind.New(errkind.TransientNetwork, fmt.Errorf("stop store: get_active: %w", err))
	}
	c.AccountID = accountID
	return c, true, nil
}

// LoadAllActive returns every active StopContract for the account.
func (s *StopStore) LoadAllActive(ctx context.Context, accountID string) ([]StopContract, error) {
	const q = `
		SELECT symbol, entry_price, quantity, stop_loss, take_profit,
		       COALESCE(backup_stop_order_id, ''), COALESCE(backup_tp_order_id, ''),
		       status, created_at, updated_at
		FROM stop_contracts
		WHERE account_id = $1 AND status = 'active'
	`
	rows, err := s.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, errkind.New(errkind.TransientNetwork, fmt.Errorf("stop store: load_all_active: %w", err))
	}
	defer rows.Close()

	var out []StopContract
	for rows.Next() {
		c, err := scanStopContract(rows)
		if err != nil {
			return nil, fmt.Errorf("stop store: scan: %w", err)
		}
		c.AccountID = accountID
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkClosed atomically transitions the active row for symbol to
// closed (called by C9 on successful SELL or reconciliation).
func (s *StopStore) MarkClosed(ctx context.Context, accountID, symbol string) error {
	const q = `
		UPDATE stop_contracts
		SET status = 'closed', updated_at = $3
		WHERE account_id = $1 AND symbol = $2 AND status = 'active'
	`
	tag, err := s.pool.Exec(ctx, q, accountID, symbol, time.Now())
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("stop store: mark_closed: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return errkind.New(errkind.StopStoreConflict, fmt.Errorf("stop store: no active contract for %s to close", symbol))
	}
	return nil
}

// AttachBackup atomically records the broker order ids of the two
// backup conditional orders submitted after a BUY fill.
func (s *StopStore) AttachBackup(ctx context.Context, accountID, symbol, stopOrderID, tpOrderID string) error {
	const q = `
		UPDATE stop_contracts
		SET backup_stop_order_id = $3, backup_tp_order_id = $4, updated_at = $5
		WHERE account_id = $1 AND symbol = $2 AND status = 'active'
	`
	_, err := s.pool.Exec(ctx, q, accountID, symbol, stopOrderID, tpOrderID, time.Now())
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("stop store: attach_backup: %w", err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStopContract(row rowScanner) (StopContract, error) {
	var c StopContract
	err := row.Scan(&c.Symbol, &c.EntryPrice, &c.Quantity, &c.StopLoss, &c.TakeProfit,
		&c.BackupStopOrderID, &c.BackupTPOrderID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
