// Package signalgen implements C8: the scan loop that turns indicator
// snapshots into buy/sell Signals. score.go holds the two pure
// scoring functions (buy and exit); they take no I/O dependency so
// they're trivial to table-test against the spec's point values.
package signalgen

import "github.com/kowloon-quant/tradeengine/internal/indicator"

// BandwidthSqueezeThreshold gates the Bollinger squeeze bonus; lower
// means tighter bands relative to price.
const BandwidthSqueezeThreshold = 0.04

// BuyScoreBreakdown exposes each axis's contribution for logging and
// testing, alongside the additive Total.
type BuyScoreBreakdown struct {
	RSI       float64
	Bollinger float64
	MACD      float64
	Volume    float64
	Trend     float64
	Total     float64
}

// BuyScore computes the 0-100 additive buy score from a snapshot and
// the current price (spec §4.8.1).
func BuyScore(snap indicator.Snapshot, price float64) BuyScoreBreakdown {
	b := BuyScoreBreakdown{
		RSI:       rsiScore(snap.RSI),
		Bollinger: bollingerScore(snap, price),
		MACD:      macdScore(snap),
		Volume:    volumeScore(snap.VolumeRatio),
		Trend:     trendScore(snap, price),
	}
	b.Total = b.RSI + b.Bollinger + b.MACD + b.Volume + b.Trend
	return b
}

func rsiScore(rsi float64) float64 {
	switch {
	case rsi <= 20:
		return 30
	case rsi <= 30:
		return 25
	case rsi <= 40:
		return 15
	case rsi <= 50:
		return 5
	default:
		return 0
	}
}

func bollingerScore(snap indicator.Snapshot, price float64) float64 {
	var score float64
	switch {
	case price < snap.BBLower:
		score = 25
	case price <= snap.BBLower*1.02:
		score = 20
	case price < snap.BBMiddle:
		score = 10
	}
	if snap.BBMiddle != 0 {
		width := (snap.BBUpper - snap.BBLower) / snap.BBMiddle
		if width <= BandwidthSqueezeThreshold {
			score += 5
		}
	}
	if score > 25 {
		score = 25
	}
	return score
}

func macdScore(snap indicator.Snapshot) float64 {
	switch {
	case snap.PrevMACDHist <= 0 && snap.MACDHist > 0:
		return 20
	case snap.MACDHist > 0 && snap.MACDHist > snap.PrevMACDHist && snap.PrevMACDHist > 0:
		return 10
	case snap.MACDHist > 0:
		return 15
	default:
		return 0
	}
}

func volumeScore(ratio float64) float64 {
	switch {
	case ratio >= 2:
		return 15
	case ratio >= 1.5:
		return 10
	case ratio >= 1.2:
		return 5
	default:
		return 0
	}
}

func trendScore(snap indicator.Snapshot, price float64) float64 {
	var score float64
	if price > snap.SMA20 {
		score += 3
	}
	if snap.SMA20 > snap.SMA50 {
		score += 7
	}
	if score > 10 {
		score = 10
	}
	return score
}

// ExitScoreBreakdown lists every signed sub-score that fired, for
// observability; Total drives the action table.
type ExitScoreBreakdown struct {
	Reasons []string
	Total   float64
}

func (e *ExitScoreBreakdown) add(delta float64, reason string) {
	if delta == 0 {
		return
	}
	e.Total += delta
	e.Reasons = append(e.Reasons, reason)
}

// ExitScore computes the signed exit score for an open position
// (spec §4.8.2). profitPct is (price-entry)/entry.
func ExitScore(snap indicator.Snapshot, price, entry float64) ExitScoreBreakdown {
	var e ExitScoreBreakdown
	profitPct := 0.0
	if entry != 0 {
		profitPct = (price - entry) / entry
	}
	inProfit := profitPct > 0
	inLoss := profitPct < 0

	if snap.PrevMACDHist > 0 && snap.MACDHist < 0 {
		e.add(50, "macd_bearish_cross")
	}
	if snap.RSI > 80 && inProfit {
		e.add(40, "rsi_overbought_profit")
	}
	if snap.RSI > 70 && profitPct > 0.05 {
		e.add(30, "rsi_70_profit_5pct")
	}
	if snap.SMA20 < snap.SMA50 && price < snap.SMA20 {
		e.add(25, "downtrend_below_sma20")
	}
	if price < snap.SMA20 && inLoss {
		e.add(20, "below_sma20_in_loss")
	}
	if snap.VolumeRatio < 0.5 && profitPct > 0.08 {
		e.add(15, "volume_fade_large_profit")
	}
	if price > snap.SMA20 && snap.SMA20 > snap.SMA50 && profitPct > 0.05 {
		e.add(-30, "strong_uptrend")
	}
	if snap.PrevMACDHist < 0 && snap.MACDHist > 0 {
		e.add(-25, "macd_bullish_cross")
	}
	if snap.MACDHist > 0 && snap.MACDHist > snap.PrevMACDHist {
		e.add(-15, "histogram_expanding")
	}
	if snap.RSI >= 50 && snap.RSI <= 70 && profitPct > 0.05 {
		e.add(-20, "rsi_midrange_profit")
	}
	if snap.RSI < 30 && inLoss {
		e.add(-15, "rsi_oversold_in_loss")
	}
	if price > snap.BBUpper && profitPct > 0.05 {
		e.add(-15, "break_above_upper_band_profit")
	}
	if snap.VolumeRatio > 1.5 && profitPct > 0.05 {
		e.add(-10, "volume_surge_profit")
	}
	return e
}
