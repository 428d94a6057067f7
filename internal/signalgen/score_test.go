package signalgen

import (
	"testing"

	"github.com/kowloon-quant/tradeengine/internal/indicator"
)

func TestBuyScore_StrongSetupHitsHighScore(t *testing.T) {
	snap := indicator.Snapshot{
		RSI: 25, BBLower: 100, BBUpper: 104, BBMiddle: 102,
		PrevMACDHist: -1, MACDHist: 1,
		VolumeRatio: 2.5, SMA20: 95, SMA50: 90,
	}
	b := BuyScore(snap, 99)
	if b.Total < 60 {
		t.Errorf("expected strong buy score >= 60, got %+v", b)
	}
}

func TestBuyScore_NeutralSetupScoresLow(t *testing.T) {
	snap := indicator.Snapshot{
		RSI: 55, BBLower: 90, BBUpper: 110, BBMiddle: 100,
		PrevMACDHist: -1, MACDHist: -0.5,
		VolumeRatio: 1.0, SMA20: 100, SMA50: 105,
	}
	b := BuyScore(snap, 100)
	if b.Total > 10 {
		t.Errorf("expected low score for neutral setup, got %+v", b)
	}
}

func TestBollingerScore_SqueezeBonus(t *testing.T) {
	tight := indicator.Snapshot{BBLower: 99, BBUpper: 101, BBMiddle: 100}
	wide := indicator.Snapshot{BBLower: 80, BBUpper: 120, BBMiddle: 100}

	tightScore := bollingerScore(tight, 98)
	wideScore := bollingerScore(wide, 98)
	if tightScore <= wideScore {
		t.Errorf("expected squeeze bonus to raise score: tight=%v wide=%v", tightScore, wideScore)
	}
}

func TestMACDScore_ZeroCrossUpScoresHighest(t *testing.T) {
	cross := macdScore(indicator.Snapshot{PrevMACDHist: -0.1, MACDHist: 0.1})
	expanding := macdScore(indicator.Snapshot{PrevMACDHist: 0.1, MACDHist: 0.2})
	plain := macdScore(indicator.Snapshot{PrevMACDHist: 0.3, MACDHist: 0.2})
	if cross != 20 || expanding != 10 || plain != 15 {
		t.Errorf("expected cross=20, expanding=10, positive=15, got %v %v %v", cross, expanding, plain)
	}
}

func TestTrendScore_CapsAtTen(t *testing.T) {
	snap := indicator.Snapshot{SMA20: 100, SMA50: 90}
	got := trendScore(snap, 105)
	if got != 10 {
		t.Errorf("expected trend score capped at 10, got %v", got)
	}
}

func TestExitScore_BearishCrossDominates(t *testing.T) {
	snap := indicator.Snapshot{
		PrevMACDHist: 1, MACDHist: -1,
		RSI: 60, SMA20: 100, SMA50: 110, VolumeRatio: 1,
		BBUpper: 120,
	}
	e := ExitScore(snap, 99, 90)
	if e.Total < 50 {
		t.Errorf("expected bearish cross to dominate exit score, got %+v", e)
	}
}

func TestExitScore_StrongUptrendInProfitGoesNegative(t *testing.T) {
	snap := indicator.Snapshot{
		PrevMACDHist: 0.1, MACDHist: 0.2,
		RSI: 60, SMA20: 105, SMA50: 100, VolumeRatio: 1,
		BBUpper: 130,
	}
	e := ExitScore(snap, 110, 100)
	if e.Total >= 0 {
		t.Errorf("expected negative (hold) exit score for strong uptrend in profit, got %+v", e)
	}
}

func TestExitScore_NoConditionsFireAtZero(t *testing.T) {
	snap := indicator.Snapshot{
		PrevMACDHist: 0, MACDHist: 0,
		RSI: 50, SMA20: 100, SMA50: 100, VolumeRatio: 1,
		BBUpper: 110,
	}
	e := ExitScore(snap, 100, 100)
	if e.Total != 0 {
		t.Errorf("expected zero exit score for neutral snapshot, got %+v", e)
	}
}
