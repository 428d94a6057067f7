// Package broker defines the external broker abstraction the core
// pipeline depends on (spec §6). The broker, and any concrete
// implementation of it, is an external collaborator: the core never
// embeds broker-specific logic outside this package.
package broker

import (
	"context"
	"time"

	"github.com/kowloon-quant/tradeengine/internal/indicator"
)

// Side is BUY or SELL.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType distinguishes a plain limit order from a exchange-side
// limit-if-touched conditional order (used for backup stop/target
// orders, spec §4.9 step 8).
type OrderType string

const (
	TypeLimit OrderType = "LIMIT"
	TypeLIT   OrderType = "LIT"
)

// TimeInForce controls order lifetime.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
)

// State is the broker-reported lifecycle state of a submitted order.
type State string

const (
	StatePendingSubmit    State = "pending_submit"
	StateLive             State = "live"
	StatePartiallyFilled  State = "partially_filled"
	StateFilled           State = "filled"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

// Quote is a single real-time tick for a symbol.
type Quote struct {
	Symbol      string
	LastPrice   float64
	VolumeToday float64
	Timestamp   time.Time
}

// Depth is the best bid/ask for a symbol, used to price marketable
// limit orders (spec §4.9 step 5 and SELL handling step 3).
type Depth struct {
	Symbol   string
	BidPrice float64
	AskPrice float64
}

// CurrencyBalance is one currency's worth of account_balance() (spec §6).
type CurrencyBalance struct {
	Cash             float64
	BuyPower         float64
	MaxFinance       float64
	RemainingFinance float64
	NetAssets        float64
}

// Position is a single open broker position.
type Position struct {
	Symbol   string
	Qty      int
	AvgCost  float64
	Currency string
}

// OrderStatus is the result of polling an order's state.
type OrderStatus struct {
	State        State
	FilledQty    int
	AvgFillPrice float64
}

// Broker is the only contract between the core pipeline and any
// broker implementation. Implementations must be safe for concurrent
// use from multiple executor workers.
type Broker interface {
	// PollQuotes fetches a best-effort snapshot for the given symbols.
	// Missing symbols are simply absent from the result map; a single
	// symbol's failure never fails the whole call.
	PollQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)

	// StreamQuotes is an optional push subscription. Implementations
	// that don't support streaming return ErrStreamingUnsupported;
	// callers fall back to PollQuotes on a timer.
	StreamQuotes(ctx context.Context, symbols []string) (<-chan Quote, error)

	// Candles fetches oldest-first OHLCV history.
	Candles(ctx context.Context, symbol string, count int) ([]indicator.Candle, error)

	// Depth fetches the current best bid/ask.
	Depth(ctx context.Context, symbol string) (Depth, error)

	// AccountBalance returns buy power and cash, keyed by currency.
	AccountBalance(ctx context.Context) (map[string]CurrencyBalance, error)

	// Positions returns all open broker positions.
	Positions(ctx context.Context) ([]Position, error)

	// SubmitOrder places a plain order, idempotent on clientOrderID.
	SubmitOrder(ctx context.Context, clientOrderID, symbol string, side Side, qty int, price float64, typ OrderType, tif TimeInForce) (brokerOrderID string, err error)

	// OrderStatus polls a previously submitted order.
	OrderStatus(ctx context.Context, brokerOrderID string) (OrderStatus, error)

	// CancelOrder cancels a pending/live order.
	CancelOrder(ctx context.Context, brokerOrderID string) error

	// SubmitConditional places an exchange-side LIT backup order.
	SubmitConditional(ctx context.Context, symbol string, side Side, qty int, trigger, limit float64, tif TimeInForce) (brokerOrderID string, err error)
}
