// Package indicator computes technical indicators from OHLCV candle
// windows. Every function here is pure and stateless: given the same
// candle slice it returns the same result, with no I/O and no shared
// state between calls.
package indicator

import (
	"math"
	"time"
)

// Candle is a single OHLCV bar. A Candle slice is always ordered
// oldest-first.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Unknown is the sentinel for an indicator value that could not be
// computed (insufficient data, or the owning snapshot was built from a
// window too short for the period in question). Callers must check
// IsUnknown rather than comparing to zero — zero is a valid RSI,
// MACD histogram, or Bollinger band value.
var Unknown = math.NaN()

// IsUnknown reports whether v is the Unknown sentinel.
func IsUnknown(v float64) bool {
	return math.IsNaN(v)
}

// Snapshot is a point-in-time bundle of every indicator this package
// produces, taken from the latest candle in a window. No field is
// Unknown when a Snapshot is handed to a scoring function — Compute
// guarantees this by returning ok=false when any field cannot be
// resolved.
type Snapshot struct {
	RSI          float64
	MACD         float64
	MACDSignal   float64
	MACDHist     float64
	PrevMACDHist float64
	BBUpper      float64
	BBMiddle     float64
	BBLower      float64
	SMA20        float64
	SMA50        float64
	ATR          float64
	VolumeRatio  float64
}

// HasUnknown reports whether any field of the snapshot is still
// Unknown. Scoring functions must reject such a snapshot rather than
// silently treating Unknown as zero — see Compute and the scoring
// package for the single place this substitution boundary lives.
func (s Snapshot) HasUnknown() bool {
	fields := []float64{
		s.RSI, s.MACD, s.MACDSignal, s.MACDHist, s.PrevMACDHist,
		s.BBUpper, s.BBMiddle, s.BBLower, s.SMA20, s.SMA50, s.ATR, s.VolumeRatio,
	}
	for _, f := range fields {
		if IsUnknown(f) {
			return true
		}
	}
	return false
}

// closes extracts the closing price series from a candle window.
func closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// volumes extracts the volume series from a candle window.
func volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// adaptivePeriod shrinks period to fit a short window, per spec: when
// len <= period but len >= 3, period shrinks to len-1.
// Returns 0 if the window is too short (< 3) for any period to make
// sense, signalling "everything unknown" to the caller.
func adaptivePeriod(period, length int) int {
	if length < 3 {
		return 0
	}
	if length <= period {
		p := length - 1
		if p < 1 {
			p = 1
		}
		return p
	}
	return period
}

// alignSeries truncates every series to the length of the shortest
// one, keeping the most recent (rightmost) entries — the alignment
// rule every caller of this package's series functions applies before
// reading paired values across indicators.
func alignSeries(series ...[]float64) [][]float64 {
	min := -1
	for _, s := range series {
		if min == -1 || len(s) < min {
			min = len(s)
		}
	}
	out := make([][]float64, len(series))
	for i, s := range series {
		out[i] = s[len(s)-min:]
	}
	return out
}
