package executor

import (
	"math"

	"github.com/kowloon-quant/tradeengine/internal/tick"
)

// budgetFractionMin/Max and the score band they're linear over, spec
// §4.9 step 3.
const (
	budgetFractionMin = 0.08
	budgetFractionMax = 0.20
	budgetScoreLow    = 30.0
	budgetScoreHigh   = 100.0
)

// budgetFraction is linear in [budgetFractionMin, budgetFractionMax]
// over scores [budgetScoreLow, budgetScoreHigh], clamped outside that
// range.
func budgetFraction(score float64) float64 {
	if score <= budgetScoreLow {
		return budgetFractionMin
	}
	if score >= budgetScoreHigh {
		return budgetFractionMax
	}
	t := (score - budgetScoreLow) / (budgetScoreHigh - budgetScoreLow)
	return budgetFractionMin + t*(budgetFractionMax-budgetFractionMin)
}

// maxSlippagePct is the reject threshold from spec §4.9 step 5.
const maxSlippagePct = 0.01

// buyLimitPrice computes the BUY limit per spec §4.9 step 5: the
// lesser of the ask and one tick above the reference price, rounded,
// rejecting if that's more than maxSlippage above the reference.
func buyLimitPrice(symbol string, referencePrice, ask, tickSize, maxSlippage float64) (price float64, ok bool) {
	candidate := referencePrice + tickSize
	if ask > 0 && ask < candidate {
		candidate = ask
	}
	rounded := tick.Round(symbol, candidate)
	if rounded > referencePrice*(1+maxSlippage) {
		return 0, false
	}
	return rounded, true
}

// sellLimitPrice computes the SELL limit per spec §4.9 SELL step 3:
// the greater of the bid and one tick below the reference price.
func sellLimitPrice(symbol string, referencePrice, bid, tickSize float64) float64 {
	candidate := referencePrice - tickSize
	if bid > candidate {
		candidate = bid
	}
	return tick.Round(symbol, candidate)
}

// lotSize returns the board lot size for symbol. US equities trade in
// lots of 1; HK board lots vary per listing in reality, but this spec
// has no per-symbol lot-size feed (it's absent from the configuration
// key list in spec §6), so a configurable per-symbol override map is
// consulted first, falling back to a flat default for the market —
// a documented implementer decision, see DESIGN.md.
func lotSize(symbol string, overrides map[string]int, hkDefault int) int {
	if n, ok := overrides[symbol]; ok && n > 0 {
		return n
	}
	if hkDefault <= 0 {
		hkDefault = 100
	}
	if isUSSymbol(symbol) {
		return 1
	}
	return hkDefault
}

func isUSSymbol(symbol string) bool {
	for i := len(symbol) - 1; i >= 0; i-- {
		if symbol[i] == '.' {
			return symbol[i+1:] == "US"
		}
	}
	return false
}

// quantityForBudget computes floor(value/price/lot)*lot, spec §4.9
// step 6. Returns 0 (reject) if the result quantizes to zero lots.
func quantityForBudget(value, price float64, lot int) int {
	if price <= 0 || lot <= 0 {
		return 0
	}
	lots := math.Floor(value / price / float64(lot))
	return int(lots) * lot
}
