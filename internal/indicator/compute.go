package indicator

// Config holds the configured (un-shortened) periods for every
// indicator. Defaults match spec §4.1.
type Config struct {
	RSIPeriod      int
	BollingerPeriod int
	BollingerK     float64
	MACDFast       int
	MACDSlow       int
	MACDSignal     int
	ATRPeriod      int
	SMAFast        int
	SMASlow        int
	VolumeSMA      int
}

// DefaultConfig returns the indicator periods named in spec §4.1.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:       14,
		BollingerPeriod: 20,
		BollingerK:      2,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		ATRPeriod:       14,
		SMAFast:         20,
		SMASlow:         50,
		VolumeSMA:       20,
	}
}

// Compute builds a Snapshot from the latest candle in the window,
// applying adaptive period shortening (spec §4.1) and aligning every
// series to its shortest produced length before reading the final
// values. ok is false when fewer than 3 candles are supplied — every
// field of the returned Snapshot is then Unknown — and also when any
// field of the snapshot cannot be resolved (e.g. all-zero volume).
func Compute(candles []Candle, cfg Config) (snap Snapshot, ok bool) {
	n := len(candles)
	if n < 3 {
		return unknownSnapshot(), false
	}

	cl := closes(candles)
	vol := volumes(candles)

	rsiPeriod := adaptivePeriod(cfg.RSIPeriod, n)
	atrPeriod := adaptivePeriod(cfg.ATRPeriod, n)
	bbPeriod := adaptivePeriod(cfg.BollingerPeriod, n)
	smaFastPeriod := adaptivePeriod(cfg.SMAFast, n)
	smaSlowPeriod := adaptivePeriod(cfg.SMASlow, n)
	volSMAPeriod := adaptivePeriod(cfg.VolumeSMA, n)
	macdFast := adaptivePeriod(cfg.MACDFast, n)
	macdSlow := adaptivePeriod(cfg.MACDSlow, n)
	macdSignal := adaptivePeriod(cfg.MACDSignal, n)
	// The signal EMA runs over the MACD line, which has only n-macdSlow+1
	// known values; keep at least two histogram values (current and previous).
	if maxSignal := n - macdSlow; macdSignal > maxSignal {
		macdSignal = maxSignal
	}
	if macdSignal < 1 {
		macdSignal = 1
	}

	rsi := RSISeries(cl, rsiPeriod)
	atr := ATRSeries(candles, atrPeriod)
	bbUpper, bbMiddle, bbLower := BollingerSeries(cl, bbPeriod, cfg.BollingerK)
	smaFast := SMASeries(cl, smaFastPeriod)
	smaSlow := SMASeries(cl, smaSlowPeriod)
	volRatio := VolumeRatioSeries(vol, volSMAPeriod)
	macd, macdSig, hist := MACDSeries(cl, macdFast, macdSlow, macdSignal)

	aligned := alignSeries(rsi, atr, bbUpper, bbMiddle, bbLower, smaFast, smaSlow, volRatio, macd, macdSig, hist)
	rsi, atr, bbUpper, bbMiddle, bbLower = aligned[0], aligned[1], aligned[2], aligned[3], aligned[4]
	smaFast, smaSlow, volRatio = aligned[5], aligned[6], aligned[7]
	macd, macdSig, hist = aligned[8], aligned[9], aligned[10]

	last := len(rsi) - 1
	if last < 1 {
		return unknownSnapshot(), false
	}

	snap = Snapshot{
		RSI:          rsi[last],
		MACD:         macd[last],
		MACDSignal:   macdSig[last],
		MACDHist:     hist[last],
		PrevMACDHist: hist[last-1],
		BBUpper:      bbUpper[last],
		BBMiddle:     bbMiddle[last],
		BBLower:      bbLower[last],
		SMA20:        smaFast[last],
		SMA50:        smaSlow[last],
		ATR:          atr[last],
		VolumeRatio:  volRatio[last],
	}
	if snap.HasUnknown() {
		return snap, false
	}
	return snap, true
}

func unknownSnapshot() Snapshot {
	return Snapshot{
		RSI: Unknown, MACD: Unknown, MACDSignal: Unknown, MACDHist: Unknown, PrevMACDHist: Unknown,
		BBUpper: Unknown, BBMiddle: Unknown, BBLower: Unknown, SMA20: Unknown, SMA50: Unknown,
		ATR: Unknown, VolumeRatio: Unknown,
	}
}
