package quote

import (
	"context"

	"github.com/kowloon-quant/tradeengine/internal/broker"
	"github.com/kowloon-quant/tradeengine/internal/indicator"
)

// snapshotCapable is satisfied by broker.LongportBroker, which offers
// a distinct lower-frequency quote endpoint beyond the core Broker
// interface's PollQuotes.
type snapshotCapable interface {
	SnapshotQuotes(ctx context.Context, symbols []string) (map[string]broker.Quote, error)
}

// brokerSource adapts any broker.Broker into a quote.Source. When the
// underlying broker also implements snapshotCapable (the live
// Longport client), Snapshot hits that distinct endpoint; otherwise
// it degrades to a second PollQuotes call, which is still a
// reasonable fallback for brokers with only one quote endpoint (e.g.
// the paper broker in tests).
type brokerSource struct {
	b broker.Broker
}

// Adapt wraps b so it satisfies quote.Source.
func Adapt(b broker.Broker) Source {
	return &brokerSource{b: b}
}

func (a *brokerSource) Realtime(ctx context.Context, symbols []string) (map[string]broker.Quote, error) {
	return a.b.PollQuotes(ctx, symbols)
}

func (a *brokerSource) Snapshot(ctx context.Context, symbols []string) (map[string]broker.Quote, error) {
	if sc, ok := a.b.(snapshotCapable); ok {
		return sc.SnapshotQuotes(ctx, symbols)
	}
	return a.b.PollQuotes(ctx, symbols)
}

func (a *brokerSource) Candles(ctx context.Context, symbol string, count int) ([]indicator.Candle, error) {
	return a.b.Candles(ctx, symbol, count)
}
