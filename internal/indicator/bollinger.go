package indicator

import "math"

// BollingerSeries computes upper, middle (SMA), and lower bands over
// period using k standard deviations of population variance. All
// three series share the same warmup length as SMASeries(period).
func BollingerSeries(closes []float64, period int, k float64) (upper, middle, lower []float64) {
	middle = SMASeries(closes, period)
	upper = make([]float64, len(closes))
	lower = make([]float64, len(closes))
	for i := range upper {
		upper[i] = Unknown
		lower[i] = Unknown
	}
	if period <= 0 || len(closes) < period {
		return upper, middle, lower
	}

	for i := period - 1; i < len(closes); i++ {
		mean := middle[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			variance += d * d
		}
		variance /= float64(period)
		stddev := math.Sqrt(variance)
		upper[i] = mean + k*stddev
		lower[i] = mean - k*stddev
	}

	return upper, middle, lower
}
