package indicator

// VolumeRatioSeries computes today's volume divided by SMA20(volume)
// for every index where the SMA20 window is full.
func VolumeRatioSeries(volumes []float64, smaPeriod int) []float64 {
	volSMA := SMASeries(volumes, smaPeriod)
	out := make([]float64, len(volumes))
	for i := range out {
		if IsUnknown(volSMA[i]) || volSMA[i] == 0 {
			out[i] = Unknown
			continue
		}
		out[i] = volumes[i] / volSMA[i]
	}
	return out
}
