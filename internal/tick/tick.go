// Package tick rounds order prices to the nearest valid exchange
// tick size. Pure, stateless, no I/O.
package tick

import (
	"math"
	"strings"
)

// Side distinguishes BUY and SELL for the sell-side no-worse-than-raw
// pre-check a caller may apply after rounding.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// hkLadder maps "price strictly below this threshold" to its tick
// size, per spec §4.4. The ladder is checked in ascending order; a
// price at or above the last threshold uses the final tick.
var hkLadder = []struct {
	below float64
	tick  float64
}{
	{0.25, 0.001},
	{0.50, 0.005},
	{10, 0.01},
	{20, 0.02},
	{100, 0.05},
	{200, 0.10},
	{500, 0.20},
	{1000, 0.50},
	{2000, 1.00},
	{5000, 2.00},
}

const hkTickAbove5000 = 5.00
const usTick = 0.01

// TickSize returns the tick size applicable to price on the given
// market suffix, for callers that need the raw increment rather than
// a rounded price (e.g. computing "one tick above/below reference").
func TickSize(symbol string, price float64) float64 {
	return tickFor(symbol, price)
}

// tickFor returns the tick size applicable to price on the given
// market suffix.
func tickFor(symbol string, price float64) float64 {
	if strings.HasSuffix(symbol, ".US") {
		return usTick
	}
	for _, rung := range hkLadder {
		if price < rung.below {
			return rung.tick
		}
	}
	return hkTickAbove5000
}

// Round rounds price to the nearest multiple of the symbol's tick
// size, with ties rounding to even (banker's rounding) to match
// spec §4.4 and §8's round-half-to-even example. Round is idempotent:
// Round(Round(p)) == Round(p).
func Round(symbol string, price float64) float64 {
	t := tickFor(symbol, price)
	if t <= 0 {
		return price
	}
	ratio := price / t
	rounded := math.RoundToEven(ratio)
	return roundTo(rounded*t, t)
}

// roundTo corrects float64 accumulation error by rounding the result
// to a sane number of decimal places derived from the tick size, so
// that e.g. 0.1+0.2-style drift never creeps into a quoted price.
func roundTo(value, tick float64) float64 {
	decimals := 0
	for t := tick; t < 1 && decimals < 6; t *= 10 {
		decimals++
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}

// SellNotBelowRaw reports whether a rounded SELL price stays within
// one tick of the raw (unrounded) price below it — the caller's
// pre-check from spec §4.4 ("for SELL side the rounded price must not
// be below the raw price by more than one tick").
func SellNotBelowRaw(symbol string, raw, rounded float64) bool {
	t := tickFor(symbol, raw)
	return rounded >= raw-t
}
