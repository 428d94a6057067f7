package signalgen

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kowloon-quant/tradeengine/internal/broker"
	"github.com/kowloon-quant/tradeengine/internal/calendar"
	"github.com/kowloon-quant/tradeengine/internal/indicator"
	"github.com/kowloon-quant/tradeengine/internal/store"
)

type fakeQuoteSource struct {
	quotes  map[string]broker.Quote
	candles map[string][]indicator.Candle
}

func (f *fakeQuoteSource) Quotes(_ context.Context, symbols []string) (map[string]broker.Quote, error) {
	out := make(map[string]broker.Quote)
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (f *fakeQuoteSource) Candles(_ context.Context, symbol string, _ int) []indicator.Candle {
	return f.candles[symbol]
}

type fakePositions struct {
	positions []broker.Position
}

func (f *fakePositions) Positions(_ context.Context) ([]broker.Position, error) {
	return f.positions, nil
}

type fakeStopLoader struct {
	stops []store.StopContract
}

func (f *fakeStopLoader) LoadAllActive(_ context.Context, _ string) ([]store.StopContract, error) {
	return f.stops, nil
}

type fakeBuySymbols struct {
	symbols map[string]bool
}

func (f *fakeBuySymbols) TodayBuySymbols(_ context.Context, _ string, _ time.Time) (map[string]bool, error) {
	return f.symbols, nil
}

type fakeSignalQueue struct {
	published []store.Signal
}

func (f *fakeSignalQueue) HasPending(_ context.Context, _, _ string, _ store.SignalKind) (bool, error) {
	return false, nil
}

func (f *fakeSignalQueue) Publish(_ context.Context, sig store.Signal, _ int) error {
	f.published = append(f.published, sig)
	return nil
}

// flatCandles builds a window where close trends steadily upward,
// enough bars for every indicator to resolve with full periods.
func flatCandles(n int, start float64) []indicator.Candle {
	out := make([]indicator.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		price += 0.5
		out[i] = indicator.Candle{
			Open: price - 0.5, High: price + 0.2, Low: price - 0.7, Close: price,
			Volume: 1000 + float64(i)*10,
		}
	}
	return out
}

func newTestGenerator(qs quoteSource, pos positionLister, stops stopLoader, buys buySymbolsLoader, q signalQueue) *Generator {
	cfg := DefaultConfig("acct-1")
	cfg.ScanInterval = time.Minute
	return NewGenerator(cfg, []string{"AAPL.US"}, qs, pos, stops, buys, q, zerolog.Nop())
}

func TestGenerator_ScanOnce_SkipsWhenNoActiveMarket(t *testing.T) {
	q := &fakeSignalQueue{}
	g := newTestGenerator(&fakeQuoteSource{}, &fakePositions{}, &fakeStopLoader{}, &fakeBuySymbols{}, q)

	// A Saturday in Asia/Shanghai: both HK and US sessions are closed.
	closed := time.Date(2026, 8, 1, 12, 0, 0, 0, calendar.CST)

	ctx := context.Background()
	if err := g.scanAt(ctx, closed); err != nil {
		t.Fatalf("scanAt: %v", err)
	}
	if len(q.published) != 0 {
		t.Errorf("expected no publishes outside market hours, got %d", len(q.published))
	}
}

func TestGenerator_EvaluateEntry_PublishesBuyAboveThreshold(t *testing.T) {
	candles := flatCandles(60, 90)
	last := candles[len(candles)-1]

	qs := &fakeQuoteSource{
		quotes:  map[string]broker.Quote{"AAPL.US": {Symbol: "AAPL.US", LastPrice: last.Close * 0.9}},
		candles: map[string][]indicator.Candle{"AAPL.US": candles},
	}
	q := &fakeSignalQueue{}
	g := newTestGenerator(qs, &fakePositions{}, &fakeStopLoader{}, &fakeBuySymbols{}, q)
	g.cfg.MinBuyScore = 0
	g.cfg.StrongBuyScore = 1000 // force BUY not STRONG_BUY classification path to still exercise

	results := &scanResults{}
	g.evaluateEntry(context.Background(), "AAPL.US", results)
	if len(results.signals) != 1 {
		t.Fatalf("expected one signal, got %d: %+v", len(results.signals), results.signals)
	}
	if results.signals[0].Kind != store.KindBuy {
		t.Errorf("expected BUY kind, got %v", results.signals[0].Kind)
	}
}

func TestGenerator_EvaluateExit_StopLossFloorPublishesImmediately(t *testing.T) {
	qs := &fakeQuoteSource{
		quotes: map[string]broker.Quote{"AAPL.US": {Symbol: "AAPL.US", LastPrice: 40}},
	}
	results := &scanResults{}
	g := newTestGenerator(qs, &fakePositions{}, &fakeStopLoader{}, &fakeBuySymbols{}, &fakeSignalQueue{})

	stop := store.StopContract{Symbol: "AAPL.US", EntryPrice: 50, StopLoss: 45, TakeProfit: 60}
	g.evaluateExit(context.Background(), stop, results)

	if len(results.signals) != 1 || results.signals[0].Kind != store.KindSellStopLoss {
		t.Fatalf("expected stop-loss signal, got %+v", results.signals)
	}
}

func TestGenerator_AnalyzeEntries_SkipsOpenPositionsAndExitTargets(t *testing.T) {
	qs := &fakeQuoteSource{
		quotes: map[string]broker.Quote{
			"AAPL.US": {Symbol: "AAPL.US", LastPrice: 100},
			"TSLA.US": {Symbol: "TSLA.US", LastPrice: 100},
		},
	}
	g := newTestGenerator(qs, &fakePositions{}, &fakeStopLoader{}, &fakeBuySymbols{}, &fakeSignalQueue{})

	results := &scanResults{}
	openPositions := map[string]bool{"AAPL.US": true}
	exitTargets := map[string]bool{"TSLA.US": true}
	g.analyzeEntries(context.Background(), []string{"AAPL.US", "TSLA.US"}, openPositions, exitTargets, map[string]bool{}, results)

	if len(results.signals) != 0 {
		t.Errorf("expected no entry evaluation for positioned/exit-target symbols, got %+v", results.signals)
	}
}

func TestGenerator_PublishAll_PublishesAllEligibleSignals(t *testing.T) {
	q := &fakeSignalQueue{}
	g := newTestGenerator(&fakeQuoteSource{}, &fakePositions{}, &fakeStopLoader{}, &fakeBuySymbols{}, q)

	signals := []store.Signal{
		{ID: "low", Symbol: "A.US", Kind: store.KindBuy, Score: 10},
		{ID: "high", Symbol: "B.US", Kind: store.KindBuy, Score: 90},
	}
	g.publishAll(context.Background(), signals, map[string]bool{}, map[string]bool{})

	if len(q.published) != 2 {
		t.Fatalf("expected both signals published, got %d", len(q.published))
	}
}
