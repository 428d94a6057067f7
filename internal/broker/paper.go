// Package broker - paper.go implements a simulated broker for tests
// and paper-trading deployments. Orders fill immediately at the
// requested price (simplified, same as the teacher's paper broker),
// so every engine code path above this interface behaves identically
// whether paper or live.
package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kowloon-quant/tradeengine/internal/indicator"
)

// PaperBroker simulates broker operations in memory.
type PaperBroker struct {
	mu        sync.Mutex
	balances  map[string]CurrencyBalance
	positions map[string]*Position
	orders    map[string]*paperOrder
	quotes    map[string]Quote
	candles   map[string][]indicator.Candle
	nextID    int
}

type paperOrder struct {
	symbol string
	status OrderStatus
}

// NewPaperBroker creates a paper broker seeded with the given
// per-currency buy power.
func NewPaperBroker(balances map[string]CurrencyBalance) *PaperBroker {
	return &PaperBroker{
		balances:  balances,
		positions: make(map[string]*Position),
		orders:    make(map[string]*paperOrder),
		quotes:    make(map[string]Quote),
		candles:   make(map[string][]indicator.Candle),
	}
}

// SeedQuote lets tests/paper deployments inject a quote for a symbol.
func (pb *PaperBroker) SeedQuote(q Quote) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.quotes[q.Symbol] = q
}

// SeedCandles lets tests/paper deployments inject candle history.
func (pb *PaperBroker) SeedCandles(symbol string, candles []indicator.Candle) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.candles[symbol] = candles
}

func (pb *PaperBroker) PollQuotes(_ context.Context, symbols []string) (map[string]Quote, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	out := make(map[string]Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := pb.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (pb *PaperBroker) StreamQuotes(_ context.Context, _ []string) (<-chan Quote, error) {
	return nil, ErrStreamingUnsupported
}

func (pb *PaperBroker) Candles(_ context.Context, symbol string, count int) ([]indicator.Candle, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	c := pb.candles[symbol]
	if len(c) > count {
		c = c[len(c)-count:]
	}
	return c, nil
}

func (pb *PaperBroker) Depth(_ context.Context, symbol string) (Depth, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	q, ok := pb.quotes[symbol]
	if !ok {
		return Depth{}, fmt.Errorf("paper broker: no quote for %s", symbol)
	}
	spread := q.LastPrice * 0.0005
	return Depth{Symbol: symbol, BidPrice: q.LastPrice - spread, AskPrice: q.LastPrice + spread}, nil
}

func (pb *PaperBroker) AccountBalance(_ context.Context) (map[string]CurrencyBalance, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	out := make(map[string]CurrencyBalance, len(pb.balances))
	for k, v := range pb.balances {
		out[k] = v
	}
	return out, nil
}

func (pb *PaperBroker) Positions(_ context.Context) ([]Position, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	out := make([]Position, 0, len(pb.positions))
	for _, p := range pb.positions {
		out = append(out, *p)
	}
	return out, nil
}

// SubmitOrder places a new order on every call; a repeated
// clientOrderID is not detected.
func (pb *PaperBroker) SubmitOrder(_ context.Context, clientOrderID, symbol string, side Side, qty int, price float64, _ OrderType, _ TimeInForce) (string, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	currency := currencyForSymbol(symbol)
	cost := price * float64(qty)

	if side == SideBuy {
		bal := pb.balances[currency]
		if bal.BuyPower < cost {
			return "", fmt.Errorf("paper broker: insufficient buy power in %s", currency)
		}
		bal.BuyPower -= cost
		bal.Cash -= cost
		pb.balances[currency] = bal

		if p, ok := pb.positions[symbol]; ok {
			total := p.Qty + qty
			p.AvgCost = (p.AvgCost*float64(p.Qty) + price*float64(qty)) / float64(total)
			p.Qty = total
		} else {
			pb.positions[symbol] = &Position{Symbol: symbol, Qty: qty, AvgCost: price, Currency: currency}
		}
	} else {
		p, ok := pb.positions[symbol]
		if !ok || p.Qty < qty {
			return "", fmt.Errorf("paper broker: insufficient position in %s", symbol)
		}
		bal := pb.balances[currency]
		bal.BuyPower += price * float64(qty)
		bal.Cash += price * float64(qty)
		pb.balances[currency] = bal

		p.Qty -= qty
		if p.Qty == 0 {
			delete(pb.positions, symbol)
		}
	}

	pb.nextID++
	orderID := fmt.Sprintf("PAPER-%s-%d", clientOrderID, pb.nextID)
	pb.orders[orderID] = &paperOrder{
		symbol: symbol,
		status: OrderStatus{State: StateFilled, FilledQty: qty, AvgFillPrice: price},
	}
	return orderID, nil
}

func (pb *PaperBroker) OrderStatus(_ context.Context, brokerOrderID string) (OrderStatus, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	o, ok := pb.orders[brokerOrderID]
	if !ok {
		return OrderStatus{}, ErrOrderNotFound
	}
	return o.status, nil
}

func (pb *PaperBroker) CancelOrder(_ context.Context, brokerOrderID string) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	o, ok := pb.orders[brokerOrderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.status.State == StateFilled {
		return fmt.Errorf("paper broker: order %s already filled", brokerOrderID)
	}
	o.status.State = StateCancelled
	return nil
}

func (pb *PaperBroker) SubmitConditional(_ context.Context, symbol string, _ Side, _ int, _, limit float64, _ TimeInForce) (string, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.nextID++
	orderID := fmt.Sprintf("PAPER-COND-%d", pb.nextID)
	pb.orders[orderID] = &paperOrder{
		symbol: symbol,
		status: OrderStatus{State: StateLive, AvgFillPrice: limit},
	}
	return orderID, nil
}

func currencyForSymbol(symbol string) string {
	if strings.HasSuffix(symbol, ".HK") {
		return "HKD"
	}
	return "USD"
}

var _ Broker = (*PaperBroker)(nil)
