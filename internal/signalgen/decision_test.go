package signalgen

import (
	"testing"

	"github.com/kowloon-quant/tradeengine/internal/store"
)

func TestDecideExit_StopLossFloorAlwaysWins(t *testing.T) {
	score := ExitScoreBreakdown{Total: -100}
	d := DecideExit(score, 49, 50, 200)
	if !d.ShouldPublish || d.Kind != store.KindSellStopLoss {
		t.Errorf("expected stop-loss floor to override, got %+v", d)
	}
}

func TestDecideExit_HighScoreAlwaysSmartExit(t *testing.T) {
	d := DecideExit(ExitScoreBreakdown{Total: 55}, 100, 50, 120)
	if !d.ShouldPublish || d.Kind != store.KindSellSmartExit {
		t.Errorf("expected smart exit at score >= 50, got %+v", d)
	}
}

func TestDecideExit_MidBandRequiresNearTakeProfit(t *testing.T) {
	near := DecideExit(ExitScoreBreakdown{Total: 35}, 95, 50, 100)
	if !near.ShouldPublish {
		t.Errorf("expected take-profit at 95%% of target for score 35, got %+v", near)
	}

	far := DecideExit(ExitScoreBreakdown{Total: 35}, 80, 50, 100)
	if far.ShouldPublish {
		t.Errorf("expected hold below 95%% of target for score 35, got %+v", far)
	}
}

func TestDecideExit_VeryNegativeScoreRequiresBigOvershoot(t *testing.T) {
	d := DecideExit(ExitScoreBreakdown{Total: -45}, 119, 50, 100)
	if d.ShouldPublish {
		t.Errorf("expected hold below 120%% of target for score <= -40, got %+v", d)
	}
	d2 := DecideExit(ExitScoreBreakdown{Total: -45}, 121, 50, 100)
	if !d2.ShouldPublish {
		t.Errorf("expected take-profit above 120%% of target for score <= -40, got %+v", d2)
	}
}

func TestDecideExit_NeutralBandHoldsUntilFullTarget(t *testing.T) {
	below := DecideExit(ExitScoreBreakdown{Total: 0}, 99, 50, 100)
	if below.ShouldPublish {
		t.Errorf("expected hold below full target for neutral score, got %+v", below)
	}
	at := DecideExit(ExitScoreBreakdown{Total: 0}, 100, 50, 100)
	if !at.ShouldPublish || at.Kind != store.KindSellTakeProfit {
		t.Errorf("expected take-profit at full target for neutral score, got %+v", at)
	}
}
