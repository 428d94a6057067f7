package signalgen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kowloon-quant/tradeengine/internal/store"
)

// DefaultCooldown is how long a symbol is excluded from re-publishing
// a BUY after its last successful publish (spec §4.8.3 layer 4).
const DefaultCooldown = 5 * time.Minute

// Cooldowns tracks per-symbol last-publish timestamps in memory. It is
// intentionally not durable: a process restart simply re-opens the
// cooldown window, which is an acceptable corner per spec's silence on
// cooldown durability.
type Cooldowns struct {
	mu      sync.Mutex
	last    map[string]time.Time
	window  time.Duration
}

// NewCooldowns builds a tracker with the given cooldown window.
func NewCooldowns(window time.Duration) *Cooldowns {
	return &Cooldowns{last: make(map[string]time.Time), window: window}
}

// Remaining returns how long is left in symbol's cooldown, or 0 if
// it's clear to publish.
func (c *Cooldowns) Remaining(symbol string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.last[symbol]
	if !ok {
		return 0
	}
	elapsed := now.Sub(t)
	if elapsed >= c.window {
		return 0
	}
	return c.window - elapsed
}

// Stamp records now as symbol's last successful publish time.
func (c *Cooldowns) Stamp(symbol string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[symbol] = now
}

// GC drops entries whose cooldown has already elapsed, called every
// 10th scan iteration per spec §4.8 step 5.
func (c *Cooldowns) GC(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol, t := range c.last {
		if now.Sub(t) >= c.window {
			delete(c.last, symbol)
		}
	}
}

// pendingChecker is the subset of *store.Queue the dedup filter needs,
// narrowed to an interface so it can be faked in tests without a
// database.
type pendingChecker interface {
	HasPending(ctx context.Context, accountID, symbol string, kind store.SignalKind) (bool, error)
}

// DedupDeps bundles the collaborators the four-layer filter reads.
type DedupDeps struct {
	AccountID       string
	Queue           pendingChecker
	OpenPositions   map[string]bool
	TodayBuySymbols map[string]bool
	Cooldowns       *Cooldowns
}

// DedupResult reports whether a signal may be published, and why not
// if it was skipped.
type DedupResult struct {
	Publishable bool
	SkipReason  string
}

// CheckDedup runs the four-layer filter in spec order, short-
// circuiting on the first failure.
func CheckDedup(ctx context.Context, deps DedupDeps, symbol string, kind store.SignalKind, now time.Time) (DedupResult, error) {
	pending, err := deps.Queue.HasPending(ctx, deps.AccountID, symbol, kind)
	if err != nil {
		return DedupResult{}, fmt.Errorf("dedup: has_pending: %w", err)
	}
	if pending {
		return DedupResult{SkipReason: "queue_dedup"}, nil
	}

	if kind.IsBuy() {
		if deps.OpenPositions[symbol] {
			return DedupResult{SkipReason: "position_dedup"}, nil
		}
		if deps.TodayBuySymbols[symbol] {
			return DedupResult{SkipReason: "same_day_order_dedup"}, nil
		}
		if remaining := deps.Cooldowns.Remaining(symbol, now); remaining > 0 {
			return DedupResult{SkipReason: fmt.Sprintf("cooldown: %s remaining", remaining.Round(time.Second))}, nil
		}
	}

	return DedupResult{Publishable: true}, nil
}
