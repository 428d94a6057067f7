package indicator

// MACDSeries computes MACD(fast, slow, signal): the difference of two
// EMAs, and the signal line is an EMA of that difference. The
// histogram is macd - signal. The two EMAs are aligned via alignSeries
// before subtracting, so all three series share one length.
func MACDSeries(closes []float64, fast, slow, signal int) (macd, macdSignal, hist []float64) {
	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)

	aligned := alignSeries(fastEMA, slowEMA)
	fastEMA, slowEMA = aligned[0], aligned[1]

	macd = make([]float64, len(fastEMA))
	for i := range macd {
		if IsUnknown(fastEMA[i]) || IsUnknown(slowEMA[i]) {
			macd[i] = Unknown
		} else {
			macd[i] = fastEMA[i] - slowEMA[i]
		}
	}

	macdSignal = emaSkippingUnknown(macd, signal)

	aligned = alignSeries(macd, macdSignal)
	macd, macdSignal = aligned[0], aligned[1]

	hist = make([]float64, len(macd))
	for i := range hist {
		if IsUnknown(macd[i]) || IsUnknown(macdSignal[i]) {
			hist[i] = Unknown
		} else {
			hist[i] = macd[i] - macdSignal[i]
		}
	}

	return macd, macdSignal, hist
}

// emaSkippingUnknown computes an EMA over a series that may have a
// leading run of Unknown values (as macd does, since it inherits the
// slow EMA's warmup), seeding from the first `period` known values.
func emaSkippingUnknown(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = Unknown
	}
	if period <= 0 {
		return out
	}

	start := -1
	for i, v := range values {
		if !IsUnknown(v) {
			start = i
			break
		}
	}
	if start == -1 || len(values)-start < period {
		return out
	}

	var sum float64
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	seedIdx := start + period - 1
	out[seedIdx] = ema

	k := 2.0 / (float64(period) + 1.0)
	for i := seedIdx + 1; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
		out[i] = ema
	}

	return out
}
