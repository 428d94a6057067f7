package indicator

import "math"

// ATRSeries computes the Average True Range over period using
// Wilder's smoothing of the true range. Entries before the warmup
// point are Unknown.
func ATRSeries(candles []Candle, period int) []float64 {
	out := make([]float64, len(candles))
	for i := range out {
		out[i] = Unknown
	}
	if period <= 0 || len(candles) <= period {
		return out
	}

	tr := make([]float64, len(candles))
	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < len(candles); i++ {
		curr, prev := candles[i], candles[i-1]
		tr1 := curr.High - curr.Low
		tr2 := math.Abs(curr.High - prev.Close)
		tr3 := math.Abs(curr.Low - prev.Close)
		tr[i] = math.Max(tr1, math.Max(tr2, tr3))
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = atr
	}

	return out
}
