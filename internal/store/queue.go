// Package store - queue.go implements C7, the durable priority
// queue. Consume blocks on Postgres LISTEN/NOTIFY the way the
// teacher's dashboard EventListener blocks on lib/pq's pq.Listener
// (internal/dashboard/events.go), falling back to a short poll so a
// notification missed during a reconnect window is never fatal.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/kowloon-quant/tradeengine/internal/errkind"
)

const queueNotifyChannel = "signal_published"

// Queue is C7: a durable, priority-ordered, at-least-once work queue
// of Signals. One logical queue is shared by every executor worker.
type Queue struct {
	pool     *pgxpool.Pool
	listener *pq.Listener
	log      zerolog.Logger
	visibilityTimeout time.Duration
}

// NewQueue wraps pool for transactional claim/ack/fail operations and
// dbConnStr's pq.Listener for push-driven consume wakeups.
func NewQueue(pool *pgxpool.Pool, dbConnStr string, log zerolog.Logger) *Queue {
	listener := pq.NewListener(dbConnStr, time.Second, 10*time.Second, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("queue listener: connection event")
		}
	})
	if err := listener.Listen(queueNotifyChannel); err != nil {
		log.Warn().Err(err).Msg("queue listener: failed to subscribe, falling back to polling only")
	}
	return &Queue{pool: pool, listener: listener, log: log.With().Str("component", "queue").Logger(), visibilityTimeout: DefaultVisibilityTimeout}
}

// Close releases the listener connection.
func (q *Queue) Close() error {
	return q.listener.Close()
}

type signalRow struct {
	ID          string
	AccountID   string
	Symbol      string
	Kind        SignalKind
	Score       float64
	Reference   float64
	StopLoss    float64
	TakeProfit  float64
	SnapshotJSON []byte
	GeneratedAt time.Time
}

// Publish adds signal to pending, idempotent on signal.id: a
// duplicate publish (e.g. redelivered upstream) is a silent no-op.
func (q *Queue) Publish(ctx context.Context, sig Signal, priority int) error {
	snapJSON, err := json.Marshal(sig.IndicatorsSnapshot)
	if err != nil {
		return fmt.Errorf("queue: marshal snapshot: %w", err)
	}

	const insertQ = `
		INSERT INTO queue_entries
			(id, account_id, symbol, kind, score, reference_price, stop_loss, take_profit,
			 snapshot_json, generated_at, priority, status, attempts, publish_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', 0, now())
		ON CONFLICT (id) DO NOTHING
	`
	_, err = q.pool.Exec(ctx, insertQ, sig.ID, sig.AccountID, sig.Symbol, sig.Kind, sig.Score,
		sig.ReferencePrice, sig.StopLoss, sig.TakeProfit, snapJSON, sig.GeneratedAt, priority)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: publish: %w", err))
	}

	if _, err := q.pool.Exec(ctx, "SELECT pg_notify($1, $2)", queueNotifyChannel, sig.ID); err != nil {
		q.log.Warn().Err(err).Msg("queue: notify failed, consumers fall back to polling")
	}
	return nil
}

// Consume atomically claims the lowest-priority (earliest) pending
// entry and moves it to processing, blocking up to timeout for a
// LISTEN wakeup or a fallback poll tick if the queue is empty.
func (q *Queue) Consume(ctx context.Context, timeout time.Duration) (Signal, bool, error) {
	deadline := time.Now().Add(timeout)
	pollTicker := time.NewTicker(500 * time.Millisecond)
	defer pollTicker.Stop()

	for {
		sig, ok, err := q.tryClaim(ctx)
		if err != nil {
			return Signal{}, false, err
		}
		if ok {
			return sig, true, nil
		}
		if time.Now().After(deadline) {
			return Signal{}, false, nil
		}
		select {
		case <-ctx.Done():
			return Signal{}, false, ctx.Err()
		case <-q.listener.Notify:
		case <-pollTicker.C:
		case <-time.After(time.Until(deadline)):
		}
	}
}

func (q *Queue) tryClaim(ctx context.Context) (Signal, bool, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return Signal{}, false, errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: begin claim tx: %w", err))
	}
	defer tx.Rollback(ctx)

	const claimQ = `
		SELECT id, account_id, symbol, kind, score, reference_price, stop_loss, take_profit,
		       snapshot_json, generated_at
		FROM queue_entries
		WHERE status = 'pending'
		ORDER BY priority ASC, publish_time ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`
	var row signalRow
	err = tx.QueryRow(ctx, claimQ).Scan(&row.ID, &row.AccountID, &row.Symbol, &row.Kind, &row.Score,
		&row.Reference, &row.StopLoss, &row.TakeProfit, &row.SnapshotJSON, &row.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Signal{}, false, nil
	}
	if err != nil {
		return Signal{}, false, errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: claim: %w", err))
	}

	const updateQ = `
		UPDATE queue_entries
		SET status = 'processing', claimed_at = now(), attempts = attempts + 1
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, updateQ, row.ID); err != nil {
		return Signal{}, false, errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: mark processing: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return Signal{}, false, errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: commit claim: %w", err))
	}

	var snap interface{}
	if len(row.SnapshotJSON) > 0 {
		_ = json.Unmarshal(row.SnapshotJSON, &snap)
	}
	sig := Signal{
		ID: row.ID, AccountID: row.AccountID, Symbol: row.Symbol, Kind: row.Kind,
		Score: row.Score, ReferencePrice: row.Reference, StopLoss: row.StopLoss,
		TakeProfit: row.TakeProfit, GeneratedAt: row.GeneratedAt,
	}
	if len(row.SnapshotJSON) > 0 {
		_ = json.Unmarshal(row.SnapshotJSON, &sig.IndicatorsSnapshot)
	}
	return sig, true, nil
}

// Ack removes a successfully handled entry from processing and logs
// the outcome for stats()'s success-rate calculation.
func (q *Queue) Ack(ctx context.Context, signalID string) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: ack: begin: %w", err))
	}
	defer tx.Rollback(ctx)

	var accountID string
	err = tx.QueryRow(ctx, `DELETE FROM queue_entries WHERE id = $1 AND status = 'processing' RETURNING account_id`, signalID).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: ack: %w", err))
	}
	if _, err := tx.Exec(ctx, `INSERT INTO queue_history (id, account_id, status) VALUES ($1, $2, 'acked')`, signalID, accountID); err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: ack: history: %w", err))
	}
	return tx.Commit(ctx)
}

// Fail handles a handling failure: if retryable and attempts < MaxAttempts,
// the entry is re-published with its priority degraded (buys only);
// otherwise it is marked failed (status 'failed') for operator inspection.
func (q *Queue) Fail(ctx context.Context, signalID string, retryable bool) error {
	const selectQ = `SELECT kind, priority, attempts FROM queue_entries WHERE id = $1 AND status = 'processing'`
	var kind SignalKind
	var priority, attempts int
	err := q.pool.QueryRow(ctx, selectQ, signalID).Scan(&kind, &priority, &attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: fail: lookup: %w", err))
	}

	if retryable && attempts < MaxAttempts {
		newPriority := priority
		if kind.IsBuy() {
			newPriority += RetryPriorityPenalty
		}
		const requeueQ = `
			UPDATE queue_entries
			SET status = 'pending', priority = $2, publish_time = now(), claimed_at = NULL
			WHERE id = $1
		`
		_, err := q.pool.Exec(ctx, requeueQ, signalID, newPriority)
		if err != nil {
			return errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: requeue: %w", err))
		}
		return nil
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: fail: begin: %w", err))
	}
	defer tx.Rollback(ctx)

	var accountID string
	err = tx.QueryRow(ctx, `UPDATE queue_entries SET status = 'failed' WHERE id = $1 RETURNING account_id`, signalID).Scan(&accountID)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: mark failed: %w", err))
	}
	if _, err := tx.Exec(ctx, `INSERT INTO queue_history (id, account_id, status) VALUES ($1, $2, 'failed')`, signalID, accountID); err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: fail: history: %w", err))
	}
	return tx.Commit(ctx)
}

// HasPending reports whether a pending or processing (claimed but not
// yet acked or failed) entry exists for symbol/kind — C8's layer-1
// dedup check.
func (q *Queue) HasPending(ctx context.Context, accountID, symbol string, kind SignalKind) (bool, error) {
	const qstr = `
		SELECT EXISTS(
			SELECT 1 FROM queue_entries
			WHERE account_id = $1 AND symbol = $2 AND kind = $3 AND status IN ('pending', 'processing')
		)
	`
	var exists bool
	if err := q.pool.QueryRow(ctx, qstr, accountID, symbol, kind).Scan(&exists); err != nil {
		return false, errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: has_pending: %w", err))
	}
	return exists, nil
}

// Stats returns pending/processing/failed counts and the rolling
// success rate for the CLI's `queue stats` command.
func (q *Queue) Stats(ctx context.Context, accountID string) (QueueStats, error) {
	var stats QueueStats
	const countQ = `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM queue_entries WHERE account_id = $1
	`
	if err := q.pool.QueryRow(ctx, countQ, accountID).Scan(&stats.Pending, &stats.Processing, &stats.Failed); err != nil {
		return stats, errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: stats: %w", err))
	}

	const rateQ = `
		SELECT
			COUNT(*) FILTER (WHERE status = 'acked')::float8 /
			NULLIF(COUNT(*) FILTER (WHERE status IN ('acked', 'failed')), 0)
		FROM queue_history WHERE account_id = $1
	`
	var rate *float64
	if err := q.pool.QueryRow(ctx, rateQ, accountID).Scan(&rate); err == nil && rate != nil {
		stats.SuccessRate = *rate
	}
	return stats, nil
}

// RequeueStuck moves any processing entry whose visibility timeout
// has elapsed back to pending with attempts already incremented at
// claim time (spec §4.7's crash-recovery invariant).
func (q *Queue) RequeueStuck(ctx context.Context) (int64, error) {
	const q2 = `
		UPDATE queue_entries
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < now() - $1::interval
	`
	tag, err := q.pool.Exec(ctx, q2, q.visibilityTimeout.String())
	if err != nil {
		return 0, errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: requeue_stuck: %w", err))
	}
	return tag.RowsAffected(), nil
}

// ClearPending, ClearProcessing, ClearFailed back the CLI's
// `queue clear {pending|processing|failed}` subcommand.
func (q *Queue) ClearPending(ctx context.Context, accountID string) (int64, error) {
	return q.clearByStatus(ctx, accountID, "pending")
}

func (q *Queue) ClearProcessing(ctx context.Context, accountID string) (int64, error) {
	return q.clearByStatus(ctx, accountID, "processing")
}

func (q *Queue) ClearFailed(ctx context.Context, accountID string) (int64, error) {
	return q.clearByStatus(ctx, accountID, "failed")
}

func (q *Queue) clearByStatus(ctx context.Context, accountID, status string) (int64, error) {
	tag, err := q.pool.Exec(ctx, `DELETE FROM queue_entries WHERE account_id = $1 AND status = $2`, accountID, status)
	if err != nil {
		return 0, errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: clear %s: %w", status, err))
	}
	return tag.RowsAffected(), nil
}

// RetryFailed moves every failed entry back to pending with its
// attempts counter reset, for the CLI's `queue retry-failed`.
func (q *Queue) RetryFailed(ctx context.Context, accountID string) (int64, error) {
	const q2 = `
		UPDATE queue_entries
		SET status = 'pending', attempts = 0, publish_time = now()
		WHERE account_id = $1 AND status = 'failed'
	`
	tag, err := q.pool.Exec(ctx, q2, accountID)
	if err != nil {
		return 0, errkind.New(errkind.TransientNetwork, fmt.Errorf("queue: retry_failed: %w", err))
	}
	return tag.RowsAffected(), nil
}
