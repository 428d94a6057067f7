// Package store implements the durable state the pipeline shares
// across scan cycles and process restarts: the Stop Store (C5), the
// Order Store (C6), and the Priority Queue (C7). All three are
// Postgres-backed via pgx/v5 and scoped per account_id for multi-
// account deployments.
package store

import (
	"time"

	"github.com/kowloon-quant/tradeengine/internal/indicator"
)

// SignalKind distinguishes the five signal shapes a scan can emit.
type SignalKind string

const (
	KindStrongBuy      SignalKind = "STRONG_BUY"
	KindBuy            SignalKind = "BUY"
	KindSellStopLoss   SignalKind = "SELL_STOP_LOSS"
	KindSellTakeProfit SignalKind = "SELL_TAKE_PROFIT"
	KindSellSmartExit  SignalKind = "SELL_SMART_EXIT"
)

// IsBuy reports whether the kind is one of the two buy kinds.
func (k SignalKind) IsBuy() bool {
	return k == KindStrongBuy || k == KindBuy
}

// Signal is the immutable unit of work C8 publishes and C9 consumes.
type Signal struct {
	ID                 string
	AccountID          string
	Symbol             string
	Kind               SignalKind
	Score              float64
	ReferencePrice     float64
	IndicatorsSnapshot indicator.Snapshot
	StopLoss           float64
	TakeProfit         float64
	GeneratedAt        time.Time
}

// Priority computes the C7 dispatch priority for this signal: lower
// values are dispatched earlier. Buys rank by 100−score; sells rank
// by a fixed urgency tier (stop-loss fastest, then smart-exit, then
// take-profit).
func (s Signal) Priority() int {
	switch s.Kind {
	case KindStrongBuy, KindBuy:
		return int(100 - s.Score)
	case KindSellStopLoss:
		return 0
	case KindSellSmartExit:
		return 5
	case KindSellTakeProfit:
		return 10
	default:
		return 50
	}
}

// StopStatus is the lifecycle state of a StopContract.
type StopStatus string

const (
	StopActive StopStatus = "active"
	StopClosed StopStatus = "closed"
)

// StopContract records the entry/exit levels for one open position,
// written once by C9 on BUY fill and mutated only by C9 thereafter.
type StopContract struct {
	AccountID        string
	Symbol           string
	EntryPrice       float64
	Quantity         int
	StopLoss         float64
	TakeProfit       float64
	BackupStopOrderID string
	BackupTPOrderID   string
	Status           StopStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderSide is BUY or SELL, mirroring broker.Side so the store has no
// compile-time dependency on the broker package.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderState is the lifecycle state of an OrderRecord. Transitions
// are monotonic toward filled, failed, or cancelled.
type OrderState string

const (
	OrderPendingSubmit   OrderState = "pending_submit"
	OrderLive            OrderState = "live"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderFilled          OrderState = "filled"
	OrderFailed          OrderState = "failed"
	OrderCancelled       OrderState = "cancelled"
)

// openOrderStates are the states a same-day buy counts as "already
// placed" for C6's today_buy_symbols query.
var openOrderStates = []OrderState{OrderPendingSubmit, OrderLive, OrderPartiallyFilled, OrderFilled}

// OrderRecord is C6's record of one order submitted to the broker,
// keyed by ClientOrderID (= the originating signal's id) for C9's
// idempotent resume-on-retry behavior.
type OrderRecord struct {
	ID            int64
	AccountID     string
	ClientOrderID string
	BrokerOrderID string
	Symbol        string
	Side          OrderSide
	Quantity      int
	Price         float64
	State         OrderState
	SubmittedAt   time.Time
}

// QueueStats summarizes C7's current state for the queue stats CLI
// command and operational dashboards.
type QueueStats struct {
	Pending    int
	Processing int
	Failed     int
	SuccessRate float64
}

// DefaultVisibilityTimeout is how long a consumed-but-unacked entry
// stays invisible before being requeued (spec §4.7).
const DefaultVisibilityTimeout = 5 * time.Minute

// MaxAttempts is the retry ceiling before fail() marks an entry
// failed instead of republishing it.
const MaxAttempts = 3

// RetryPriorityPenalty is added to a buy signal's priority on a
// retryable failure; sell priorities are left unchanged so exits are
// never starved by retry backoff.
const RetryPriorityPenalty = 20
