package indicator

import (
	"math"
	"testing"
	"time"
)

func makeCandles(closes []float64) []Candle {
	candles := make([]Candle, len(closes))
	for i, c := range closes {
		candles[i] = Candle{
			Timestamp: time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Open:      c - 1,
			High:      c + 2,
			Low:       c - 2,
			Close:     c,
			Volume:    100000 + float64(i*1000),
		}
	}
	return candles
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

func TestRSISeries_FirstValidAtPeriod(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	series := RSISeries(closes, 14)
	for i := 0; i < 14; i++ {
		if !IsUnknown(series[i]) {
			t.Errorf("index %d: expected Unknown before warmup, got %v", i, series[i])
		}
	}
	if IsUnknown(series[14]) {
		t.Errorf("index 14: expected a valid RSI value")
	}
	// Strictly increasing closes -> RSI should be high (no losses).
	if series[14] < 90 {
		t.Errorf("expected RSI near 100 for all-gains series, got %v", series[14])
	}
}

func TestRSISeries_InsufficientData(t *testing.T) {
	closes := []float64{100, 101, 102}
	series := RSISeries(closes, 14)
	for i, v := range series {
		if !IsUnknown(v) {
			t.Errorf("index %d: expected Unknown, got %v", i, v)
		}
	}
}

func TestATRSeries_Basic(t *testing.T) {
	candles := makeCandles([]float64{
		100, 102, 104, 103, 105, 107, 106, 108, 110, 109,
		111, 113, 112, 114, 116, 115,
	})
	series := ATRSeries(candles, 14)
	if IsUnknown(series[14]) || series[14] <= 0 {
		t.Errorf("expected positive ATR at warmup index, got %v", series[14])
	}
}

func TestSMASeries_Basic(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	series := SMASeries(closes, 5)
	if IsUnknown(series[4]) {
		t.Fatal("expected a value at index 4")
	}
	if !almostEqual(series[4], 3, 1e-9) {
		t.Errorf("expected SMA 3, got %v", series[4])
	}
}

func TestBollingerSeries_BandOrdering(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	upper, middle, lower := BollingerSeries(closes, 20, 2)
	last := len(closes) - 1
	if upper[last] <= middle[last] || middle[last] <= lower[last] {
		t.Errorf("expected upper > middle > lower, got %v/%v/%v", upper[last], middle[last], lower[last])
	}
}

func TestMACDSeries_HistogramSign(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 0.01*float64(i*i)
	}
	_, _, hist := MACDSeries(closes, 12, 26, 9)
	last := len(hist) - 1
	if IsUnknown(hist[last]) {
		t.Fatal("expected a valid histogram value")
	}
	// Accelerating uptrend: the MACD line keeps rising and its signal EMA
	// lags behind it, so the histogram is positive. (A linear trend gives
	// a constant MACD line and a zero histogram.)
	if hist[last] <= 0 {
		t.Errorf("expected positive histogram for uptrend, got %v", hist[last])
	}
}

func TestVolumeRatioSeries(t *testing.T) {
	vols := make([]float64, 25)
	for i := range vols {
		vols[i] = 1000
	}
	vols[24] = 3000
	series := VolumeRatioSeries(vols, 20)
	last := len(vols) - 1
	if IsUnknown(series[last]) {
		t.Fatal("expected a valid ratio")
	}
	if series[last] <= 1 {
		t.Errorf("expected ratio > 1 for volume spike, got %v", series[last])
	}
}

func TestCompute_FewerThanThreeCandlesAllUnknown(t *testing.T) {
	snap, ok := Compute(makeCandles([]float64{100, 101}), DefaultConfig())
	if ok {
		t.Fatal("expected ok=false for <3 candles")
	}
	if !snap.HasUnknown() {
		t.Error("expected every field Unknown")
	}
}

func TestCompute_AdaptiveShorteningNeverCrashes(t *testing.T) {
	closes := []float64{100, 102, 101, 103, 104}
	snap, ok := Compute(makeCandles(closes), DefaultConfig())
	if !ok {
		t.Fatal("expected ok=true for >=3 candles")
	}
	if snap.HasUnknown() {
		t.Errorf("expected all fields resolved via adaptive shortening, got %+v", snap)
	}
}

func TestCompute_FullWindowNoUnknowns(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}
	snap, ok := Compute(makeCandles(closes), DefaultConfig())
	if !ok {
		t.Fatal("expected ok=true")
	}
	if snap.HasUnknown() {
		t.Errorf("expected no Unknown fields with a full window, got %+v", snap)
	}
}

func TestSnapshot_HasUnknownDetectsEachField(t *testing.T) {
	base := Snapshot{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if base.HasUnknown() {
		t.Fatal("fully-populated snapshot should not report Unknown")
	}
	withUnknown := base
	withUnknown.ATR = Unknown
	if !withUnknown.HasUnknown() {
		t.Error("expected HasUnknown true when ATR is Unknown")
	}
}
