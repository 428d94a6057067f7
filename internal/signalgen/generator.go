// Package signalgen - generator.go runs C8's scan loop: refresh
// inputs, evaluate exits before entries, score, dedup, and publish —
// on a ticker the way the teacher's scheduler drives its job cycles,
// but as one continuous loop rather than a nightly/market-hour split,
// since this spec has a single always-on scan cadence.
package signalgen

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kowloon-quant/tradeengine/internal/broker"
	"github.com/kowloon-quant/tradeengine/internal/calendar"
	"github.com/kowloon-quant/tradeengine/internal/indicator"
	"github.com/kowloon-quant/tradeengine/internal/store"
	"github.com/kowloon-quant/tradeengine/internal/tick"
	"github.com/rs/zerolog"
)

// Config holds the scan loop's tunables.
type Config struct {
	AccountID         string
	ScanInterval      time.Duration
	CandleWindow      int
	MinBuyScore       float64
	StrongBuyScore    float64
	WeakBuyEnabled    bool
	WeakBuyScore      float64
	KSL               float64
	KTP               float64
	CooldownWindow    time.Duration
	WorkerParallelism int64
	IndicatorConfig   indicator.Config
}

// DefaultConfig mirrors spec §4.8's defaults.
func DefaultConfig(accountID string) Config {
	return Config{
		AccountID:         accountID,
		ScanInterval:      60 * time.Second,
		CandleWindow:      100,
		MinBuyScore:       45,
		StrongBuyScore:    60,
		WeakBuyEnabled:    false,
		WeakBuyScore:      30,
		KSL:               2,
		KTP:               3,
		CooldownWindow:    DefaultCooldown,
		WorkerParallelism: 8,
		IndicatorConfig:   indicator.DefaultConfig(),
	}
}

// quoteSource is the subset of *quote.Client the scan loop needs,
// narrowed so tests can fake quote and candle responses without a
// live gateway.
type quoteSource interface {
	Quotes(ctx context.Context, symbols []string) (map[string]broker.Quote, error)
	Candles(ctx context.Context, symbol string, count int) []indicator.Candle
}

// positionLister is the subset of broker.Broker the scan loop needs.
type positionLister interface {
	Positions(ctx context.Context) ([]broker.Position, error)
}

// stopLoader is the subset of *store.StopStore the scan loop needs.
type stopLoader interface {
	LoadAllActive(ctx context.Context, accountID string) ([]store.StopContract, error)
}

// buySymbolsLoader is the subset of *store.OrderStore the scan loop needs.
type buySymbolsLoader interface {
	TodayBuySymbols(ctx context.Context, accountID string, today time.Time) (map[string]bool, error)
}

// signalQueue is the subset of *store.Queue the scan loop needs.
type signalQueue interface {
	pendingChecker
	Publish(ctx context.Context, sig store.Signal, priority int) error
}

// Generator is C8: it owns the scan loop and every collaborator it
// reads from or publishes to.
type Generator struct {
	cfg       Config
	watchlist []string

	quoteClient quoteSource
	broker      positionLister
	stopStore   stopLoader
	orderStore  buySymbolsLoader
	queue       signalQueue
	cooldowns   *Cooldowns

	log zerolog.Logger

	iteration int
}

// NewGenerator wires the scan loop's collaborators.
func NewGenerator(cfg Config, watchlist []string, qc quoteSource, b positionLister, stopStore stopLoader, orderStore buySymbolsLoader, q signalQueue, log zerolog.Logger) *Generator {
	return &Generator{
		cfg: cfg, watchlist: watchlist, quoteClient: qc, broker: b,
		stopStore: stopStore, orderStore: orderStore, queue: q,
		cooldowns: NewCooldowns(cfg.CooldownWindow),
		log:       log.With().Str("component", "signalgen").Logger(),
	}
}

// Run blocks, ticking every cfg.ScanInterval until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		if err := g.scanOnce(ctx); err != nil {
			g.log.Error().Err(err).Msg("scan iteration failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// scanOnce runs one full scan iteration (spec §4.8 steps 1-5) against
// the current time.
func (g *Generator) scanOnce(ctx context.Context) error {
	return g.scanAt(ctx, time.Now())
}

// scanAt runs one scan iteration as of now, separated from scanOnce so
// tests can exercise market-hours gating without depending on the
// wall clock at test-run time.
func (g *Generator) scanAt(ctx context.Context, now time.Time) error {
	g.iteration++

	active := calendar.ActiveMarkets(now)
	hasActive := false
	for _, on := range active {
		if on {
			hasActive = true
			break
		}
	}
	if !hasActive {
		g.log.Debug().Msg("no active markets, skipping scan")
		return nil
	}

	symbols := calendar.FilterActive(g.watchlist, active)

	openPositions, err := g.fetchOpenPositions(ctx)
	if err != nil {
		return err
	}
	todayBuy, err := g.orderStore.TodayBuySymbols(ctx, g.cfg.AccountID, now)
	if err != nil {
		return err
	}
	activeStops, err := g.stopStore.LoadAllActive(ctx, g.cfg.AccountID)
	if err != nil {
		return err
	}

	exitTargets := make(map[string]bool, len(activeStops))
	for _, c := range activeStops {
		exitTargets[c.Symbol] = true
	}

	results := g.analyzeExits(ctx, activeStops)
	g.analyzeEntries(ctx, symbols, openPositions, exitTargets, todayBuy, results)

	sort.Slice(results.signals, func(i, j int) bool {
		return results.signals[i].Score > results.signals[j].Score
	})
	g.publishAll(ctx, results.signals, todayBuy, openPositions)

	if g.iteration%10 == 0 {
		g.cooldowns.GC(time.Now())
	}
	return nil
}

type scanResults struct {
	mu      sync.Mutex
	signals []store.Signal
}

func (r *scanResults) add(s store.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

func (g *Generator) fetchOpenPositions(ctx context.Context) (map[string]bool, error) {
	positions, err := g.broker.Positions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(positions))
	for _, p := range positions {
		out[p.Symbol] = true
	}
	return out, nil
}

// analyzeExits evaluates every active stop in parallel (exits run
// first, per spec §4.8 step 3 "for safety").
func (g *Generator) analyzeExits(ctx context.Context, stops []store.StopContract) *scanResults {
	results := &scanResults{}
	sem := semaphore.NewWeighted(g.cfg.WorkerParallelism)
	grp, gctx := errgroup.WithContext(ctx)

	for _, stop := range stops {
		stop := stop
		grp.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			g.evaluateExit(gctx, stop, results)
			return nil
		})
	}
	_ = grp.Wait()
	return results
}

func (g *Generator) evaluateExit(ctx context.Context, stop store.StopContract, results *scanResults) {
	quotes, err := g.quoteClient.Quotes(ctx, []string{stop.Symbol})
	if err != nil {
		g.log.Warn().Err(err).Str("symbol", stop.Symbol).Msg("exit quote fetch failed")
		return
	}
	q, ok := quotes[stop.Symbol]
	if !ok {
		return
	}

	if q.LastPrice <= stop.StopLoss {
		results.add(g.buildSignal(stop.Symbol, store.KindSellStopLoss, 0, q.LastPrice, indicator.Snapshot{}, stop.StopLoss, stop.TakeProfit))
		return
	}

	candles := g.quoteClient.Candles(ctx, stop.Symbol, g.cfg.CandleWindow)
	snap, ok := indicator.Compute(candles, g.cfg.IndicatorConfig)
	if !ok {
		return
	}

	exitScore := ExitScore(snap, q.LastPrice, stop.EntryPrice)
	decision := DecideExit(exitScore, q.LastPrice, stop.StopLoss, stop.TakeProfit)
	if !decision.ShouldPublish {
		return
	}
	results.add(g.buildSignal(stop.Symbol, decision.Kind, exitScore.Total, q.LastPrice, snap, stop.StopLoss, stop.TakeProfit))
}

// analyzeEntries evaluates every remaining watchlist symbol in
// parallel (spec §4.8 step 4).
func (g *Generator) analyzeEntries(ctx context.Context, symbols []string, openPositions, exitTargets, todayBuy map[string]bool, results *scanResults) {
	sem := semaphore.NewWeighted(g.cfg.WorkerParallelism)
	grp, gctx := errgroup.WithContext(ctx)

	for _, symbol := range symbols {
		symbol := symbol
		if openPositions[symbol] || exitTargets[symbol] {
			continue
		}
		grp.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			g.evaluateEntry(gctx, symbol, results)
			return nil
		})
	}
	_ = grp.Wait()
}

func (g *Generator) evaluateEntry(ctx context.Context, symbol string, results *scanResults) {
	quotes, err := g.quoteClient.Quotes(ctx, []string{symbol})
	if err != nil {
		g.log.Warn().Err(err).Str("symbol", symbol).Msg("entry quote fetch failed")
		return
	}
	q, ok := quotes[symbol]
	if !ok {
		return
	}

	candles := g.quoteClient.Candles(ctx, symbol, g.cfg.CandleWindow)
	snap, ok := indicator.Compute(candles, g.cfg.IndicatorConfig)
	if !ok {
		return
	}

	breakdown := BuyScore(snap, q.LastPrice)
	entryThreshold := g.cfg.MinBuyScore
	if g.cfg.WeakBuyEnabled && g.cfg.WeakBuyScore < entryThreshold {
		entryThreshold = g.cfg.WeakBuyScore
	}
	if breakdown.Total < entryThreshold {
		return
	}
	kind := store.KindBuy
	if breakdown.Total >= g.cfg.StrongBuyScore {
		kind = store.KindStrongBuy
	}

	stopLoss := tick.Round(symbol, q.LastPrice-g.cfg.KSL*snap.ATR)
	takeProfit := tick.Round(symbol, q.LastPrice+g.cfg.KTP*snap.ATR)
	results.add(g.buildSignal(symbol, kind, breakdown.Total, q.LastPrice, snap, stopLoss, takeProfit))
}

func (g *Generator) buildSignal(symbol string, kind store.SignalKind, score, price float64, snap indicator.Snapshot, stopLoss, takeProfit float64) store.Signal {
	return store.Signal{
		ID:                 uuid.NewString(),
		AccountID:          g.cfg.AccountID,
		Symbol:             symbol,
		Kind:               kind,
		Score:              score,
		ReferencePrice:     price,
		IndicatorsSnapshot: snap,
		StopLoss:           stopLoss,
		TakeProfit:         takeProfit,
		GeneratedAt:        time.Now(),
	}
}

func (g *Generator) publishAll(ctx context.Context, signals []store.Signal, todayBuy, openPositions map[string]bool) {
	for _, sig := range signals {
		deps := DedupDeps{
			AccountID:       g.cfg.AccountID,
			Queue:           g.queue,
			OpenPositions:   openPositions,
			TodayBuySymbols: todayBuy,
			Cooldowns:       g.cooldowns,
		}
		result, err := CheckDedup(ctx, deps, sig.Symbol, sig.Kind, time.Now())
		if err != nil {
			g.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("dedup check failed")
			continue
		}
		if !result.Publishable {
			g.log.Debug().Str("symbol", sig.Symbol).Str("kind", string(sig.Kind)).Str("reason", result.SkipReason).Msg("signal skipped")
			continue
		}
		if err := g.queue.Publish(ctx, sig, sig.Priority()); err != nil {
			g.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("publish failed")
			continue
		}
		if sig.Kind.IsBuy() {
			g.cooldowns.Stamp(sig.Symbol, time.Now())
		}
	}
}
