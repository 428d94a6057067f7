package signalgen

import (
	"context"
	"testing"
	"time"

	"github.com/kowloon-quant/tradeengine/internal/store"
)

type fakeQueue struct {
	pending bool
}

func (f *fakeQueue) HasPending(_ context.Context, _, _ string, _ store.SignalKind) (bool, error) {
	return f.pending, nil
}

func TestCheckDedup_QueuePendingBlocksEverything(t *testing.T) {
	deps := DedupDeps{Queue: &fakeQueue{pending: true}, Cooldowns: NewCooldowns(time.Minute)}
	res, err := CheckDedup(context.Background(), deps, "AAPL.US", store.KindBuy, time.Now())
	if err != nil {
		t.Fatalf("CheckDedup: %v", err)
	}
	if res.Publishable || res.SkipReason != "queue_dedup" {
		t.Errorf("expected queue_dedup skip, got %+v", res)
	}
}

func TestCheckDedup_OpenPositionBlocksBuy(t *testing.T) {
	deps := DedupDeps{
		Queue:         &fakeQueue{},
		OpenPositions: map[string]bool{"AAPL.US": true},
		Cooldowns:     NewCooldowns(time.Minute),
	}
	res, err := CheckDedup(context.Background(), deps, "AAPL.US", store.KindBuy, time.Now())
	if err != nil {
		t.Fatalf("CheckDedup: %v", err)
	}
	if res.Publishable || res.SkipReason != "position_dedup" {
		t.Errorf("expected position_dedup skip, got %+v", res)
	}
}

func TestCheckDedup_SameDayOrderBlocksBuy(t *testing.T) {
	deps := DedupDeps{
		Queue:           &fakeQueue{},
		TodayBuySymbols: map[string]bool{"AAPL.US": true},
		Cooldowns:       NewCooldowns(time.Minute),
	}
	res, err := CheckDedup(context.Background(), deps, "AAPL.US", store.KindBuy, time.Now())
	if err != nil {
		t.Fatalf("CheckDedup: %v", err)
	}
	if res.Publishable || res.SkipReason != "same_day_order_dedup" {
		t.Errorf("expected same_day_order_dedup skip, got %+v", res)
	}
}

func TestCheckDedup_CooldownBlocksBuy(t *testing.T) {
	cd := NewCooldowns(time.Minute)
	now := time.Now()
	cd.Stamp("AAPL.US", now)

	deps := DedupDeps{Queue: &fakeQueue{}, Cooldowns: cd}
	res, err := CheckDedup(context.Background(), deps, "AAPL.US", store.KindBuy, now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("CheckDedup: %v", err)
	}
	if res.Publishable {
		t.Errorf("expected cooldown to block buy, got %+v", res)
	}
}

func TestCheckDedup_SellSignalsIgnoreBuyOnlyLayers(t *testing.T) {
	deps := DedupDeps{
		Queue:           &fakeQueue{},
		OpenPositions:   map[string]bool{"AAPL.US": true},
		TodayBuySymbols: map[string]bool{"AAPL.US": true},
		Cooldowns:       NewCooldowns(time.Minute),
	}
	res, err := CheckDedup(context.Background(), deps, "AAPL.US", store.KindSellStopLoss, time.Now())
	if err != nil {
		t.Fatalf("CheckDedup: %v", err)
	}
	if !res.Publishable {
		t.Errorf("expected sell signal to bypass buy-only dedup layers, got %+v", res)
	}
}

func TestCooldowns_RemainingAndGC(t *testing.T) {
	cd := NewCooldowns(time.Minute)
	now := time.Now()
	cd.Stamp("AAPL.US", now)

	if r := cd.Remaining("AAPL.US", now.Add(30*time.Second)); r <= 0 {
		t.Errorf("expected remaining cooldown, got %v", r)
	}
	if r := cd.Remaining("AAPL.US", now.Add(2*time.Minute)); r != 0 {
		t.Errorf("expected expired cooldown to report 0, got %v", r)
	}

	cd.GC(now.Add(2 * time.Minute))
	if r := cd.Remaining("AAPL.US", now.Add(2*time.Minute)); r != 0 {
		t.Errorf("expected GC to clear expired entry, got %v", r)
	}
}
