// Package executor implements C9: N independent consume-handle-ack
// workers that turn published signals into broker orders, enforcing
// dedup, sizing, and idempotence before ever calling the broker.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kowloon-quant/tradeengine/internal/broker"
	"github.com/kowloon-quant/tradeengine/internal/errkind"
	"github.com/kowloon-quant/tradeengine/internal/notify"
	"github.com/kowloon-quant/tradeengine/internal/store"
)

// Config holds C9's tunables, sourced from spec §6's configuration
// keys that bear on order sizing and pricing.
type Config struct {
	AccountID          string
	ConsumeTimeout     time.Duration
	SubmitTimeout      time.Duration
	PollTimeout        time.Duration
	MinBuyPowerHKD     float64
	MinBuyPowerUSD     float64
	FXHKDPerUSD        float64
	MaxSlippagePct     float64
	HKLotSizeDefault   int
	LotSizeOverrides   map[string]int
	BackupStopDiscount float64
}

// DefaultConfig mirrors spec §6/§4.9's defaults.
func DefaultConfig(accountID string) Config {
	return Config{
		AccountID:          accountID,
		ConsumeTimeout:     5 * time.Second,
		SubmitTimeout:      10 * time.Second,
		PollTimeout:        3 * time.Second,
		MinBuyPowerHKD:     1000,
		MinBuyPowerUSD:     150,
		FXHKDPerUSD:        7.8,
		MaxSlippagePct:     maxSlippagePct,
		HKLotSizeDefault:   100,
		BackupStopDiscount: 0.995,
	}
}

// signalQueue is the subset of *store.Queue a worker drives.
type signalQueue interface {
	Consume(ctx context.Context, timeout time.Duration) (store.Signal, bool, error)
	Ack(ctx context.Context, signalID string) error
	Fail(ctx context.Context, signalID string, retryable bool) error
	HasPending(ctx context.Context, accountID, symbol string, kind store.SignalKind) (bool, error)
}

// stopStore is the subset of *store.StopStore a worker needs.
type stopStore interface {
	GetActive(ctx context.Context, accountID, symbol string) (store.StopContract, bool, error)
	Put(ctx context.Context, c store.StopContract) error
	MarkClosed(ctx context.Context, accountID, symbol string) error
	AttachBackup(ctx context.Context, accountID, symbol, stopOrderID, tpOrderID string) error
}

// orderStore is the subset of *store.OrderStore a worker needs.
type orderStore interface {
	Create(ctx context.Context, o store.OrderRecord) (int64, error)
	UpdateState(ctx context.Context, accountID, clientOrderID string, state store.OrderState) error
	ByClientOrderID(ctx context.Context, accountID, clientOrderID string) (store.OrderRecord, bool, error)
	TodayBuySymbols(ctx context.Context, accountID string, today time.Time) (map[string]bool, error)
}

// Worker is one C9 consume-handle-ack loop. Multiple Workers may run
// concurrently against the same queue, in the same process or
// separate ones.
type Worker struct {
	id  int
	cfg Config

	queue   signalQueue
	stops   stopStore
	orders  orderStore
	broker  broker.Broker
	notify  *notify.Sink

	log zerolog.Logger
}

// NewWorker builds one executor worker.
func NewWorker(id int, cfg Config, q signalQueue, stops stopStore, orders orderStore, b broker.Broker, n *notify.Sink, log zerolog.Logger) *Worker {
	return &Worker{
		id: id, cfg: cfg, queue: q, stops: stops, orders: orders, broker: b, notify: n,
		log: log.With().Str("component", "executor").Int("worker", id).Logger(),
	}
}

// Run blocks, consuming and handling signals until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sig, found, err := w.queue.Consume(ctx, w.cfg.ConsumeTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("consume failed")
			continue
		}
		if !found {
			continue
		}

		w.handle(ctx, sig)
	}
}

// handle dispatches a consumed signal to the BUY or SELL path and
// applies the fail-policy dispatch from spec §7 to the result.
func (w *Worker) handle(ctx context.Context, sig store.Signal) {
	var err error
	if sig.Kind.IsBuy() {
		err = w.handleBuy(ctx, sig)
	} else {
		err = w.handleSell(ctx, sig)
	}

	switch {
	case err == nil:
		if ackErr := w.queue.Ack(ctx, sig.ID); ackErr != nil {
			w.log.Error().Err(ackErr).Str("signal_id", sig.ID).Msg("ack failed")
		}
	case isAckableSkip(err):
		w.log.Info().Str("signal_id", sig.ID).Str("symbol", sig.Symbol).Err(err).Msg("signal skipped, acking")
		if ackErr := w.queue.Ack(ctx, sig.ID); ackErr != nil {
			w.log.Error().Err(ackErr).Str("signal_id", sig.ID).Msg("ack failed")
		}
	default:
		retryable := errkind.KindOf(err).Retryable()
		w.log.Warn().Err(err).Bool("retryable", retryable).Str("signal_id", sig.ID).Msg("signal failed")
		if failErr := w.queue.Fail(ctx, sig.ID, retryable); failErr != nil {
			w.log.Error().Err(failErr).Str("signal_id", sig.ID).Msg("fail failed")
		}
	}
}

// ErrDedupSkip marks a re-checked dedup hit (spec §4.9 BUY step 1):
// ack, not a failure.
var ErrDedupSkip = errors.New("executor: dedup re-check hit, skipping")

// ErrNothingToDo marks a SELL signal with neither a position nor a
// stop contract to act on (spec §4.9 SELL step 1): ack, not a failure.
var ErrNothingToDo = errors.New("executor: nothing to do, skipping")

// isAckableSkip reports whether err represents a non-failure outcome
// that should still ack the signal (spec §7: InsufficientFunds skips,
// AlreadyFilled is idempotently satisfied; §4.9 dedup re-check and
// "nothing to do" are likewise non-failures).
func isAckableSkip(err error) bool {
	if errors.Is(err, ErrDedupSkip) || errors.Is(err, ErrNothingToDo) {
		return true
	}
	kind := errkind.KindOf(err)
	return kind == errkind.InsufficientFunds || kind == errkind.AlreadyFilled
}
