// Package quote implements C3, the quote and candle client every
// scan iteration of C8 depends on. It adds two things the raw broker
// interface doesn't: realtime→snapshot endpoint fallback, and a
// bounded worker pool with per-endpoint serialization so a burst of
// symbol lookups never exceeds the gateway's rate limit — the same
// rate-limiting-by-mutex shape as the teacher's DhanDataProvider
// (internal/market/dhan_data.go).
package quote

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kowloon-quant/tradeengine/internal/broker"
	"github.com/kowloon-quant/tradeengine/internal/indicator"
)

// shrunkCandleCount is the retry count used when the gateway rejects
// a candle request as "kline symbol count out of limit".
const shrunkCandleCount = 40

// Source is the subset of gateway operations the quote client needs.
// broker.LongportBroker and broker.PaperBroker both satisfy Candles;
// Realtime/Snapshot are provided by an adapter (see Adapt below) since
// the snapshot fallback endpoint isn't part of the core Broker
// interface every implementation must support.
type Source interface {
	Realtime(ctx context.Context, symbols []string) (map[string]broker.Quote, error)
	Snapshot(ctx context.Context, symbols []string) (map[string]broker.Quote, error)
	Candles(ctx context.Context, symbol string, count int) ([]indicator.Candle, error)
}

// Client wraps a Source with worker-pooled, rate-limit-aware
// quote/candle fetching.
type Client struct {
	src Source

	quoteMu  sync.Mutex
	candleMu sync.Mutex

	quoteInterval  time.Duration
	candleInterval time.Duration
	lastQuoteCall  time.Time
	lastCandleCall time.Time

	parallelism int64
}

// NewClient builds a quote client with the given per-endpoint rate
// limit intervals and fetch parallelism.
func NewClient(src Source, quoteInterval, candleInterval time.Duration, parallelism int64) *Client {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Client{src: src, quoteInterval: quoteInterval, candleInterval: candleInterval, parallelism: parallelism}
}

// Quotes fetches the realtime endpoint, falling back once to the
// snapshot endpoint if the realtime response is empty. Individual
// symbol absence is not an error; only a fully failed request is.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]broker.Quote, error) {
	c.throttle(&c.quoteMu, &c.lastQuoteCall, c.quoteInterval)

	quotes, err := c.src.Realtime(ctx, symbols)
	if err != nil {
		return nil, err
	}
	if len(quotes) > 0 {
		return quotes, nil
	}

	c.throttle(&c.quoteMu, &c.lastQuoteCall, c.quoteInterval)
	return c.src.Snapshot(ctx, symbols)
}

// Candles fetches oldest-first history, retrying once with a shrunk
// count if the gateway rejects the original count as out of limit.
// A failure on both attempts yields an empty list — callers decide
// whether that's fatal for their symbol's scan.
func (c *Client) Candles(ctx context.Context, symbol string, count int) []indicator.Candle {
	c.throttle(&c.candleMu, &c.lastCandleCall, c.candleInterval)

	candles, err := c.src.Candles(ctx, symbol, count)
	if err == nil {
		return candles
	}
	if count <= shrunkCandleCount {
		return nil
	}

	c.throttle(&c.candleMu, &c.lastCandleCall, c.candleInterval)
	candles, err = c.src.Candles(ctx, symbol, shrunkCandleCount)
	if err != nil {
		return nil
	}
	return candles
}

// CandlesBatch fetches candles for every symbol on a bounded worker
// pool, the caller-supplied parallelism cap from spec §4.3. Missing
// or failed symbols are simply absent from the result map.
func (c *Client) CandlesBatch(ctx context.Context, symbols []string, count int) map[string][]indicator.Candle {
	sem := semaphore.NewWeighted(c.parallelism)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	out := make(map[string][]indicator.Candle, len(symbols))

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			candles := c.Candles(gctx, symbol, count)
			if len(candles) == 0 {
				return nil
			}
			mu.Lock()
			out[symbol] = candles
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// throttle blocks until at least interval has elapsed since the last
// call through this mutex, serializing calls to a single endpoint so
// concurrent workers never collectively exceed the gateway's rate
// limit.
func (c *Client) throttle(mu *sync.Mutex, last *time.Time, interval time.Duration) {
	if interval <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	elapsed := time.Since(*last)
	if elapsed < interval {
		time.Sleep(interval - elapsed)
	}
	*last = time.Now()
}
