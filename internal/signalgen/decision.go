package signalgen

import "github.com/kowloon-quant/tradeengine/internal/store"

// ExitDecision is the action table's verdict for one exit evaluation:
// whether to act at all, and which signal kind if so.
type ExitDecision struct {
	ShouldPublish bool
	Kind          store.SignalKind
}

// DecideExit applies spec §4.8.2's action table. The static
// stop-loss floor (price <= stopLoss) always overrides the table,
// matching §4.8's "always enforce the floor" instruction.
func DecideExit(score ExitScoreBreakdown, price, stopLoss, takeProfit float64) ExitDecision {
	if price <= stopLoss {
		return ExitDecision{ShouldPublish: true, Kind: store.KindSellStopLoss}
	}

	s := score.Total
	switch {
	case s >= 50:
		return ExitDecision{ShouldPublish: true, Kind: store.KindSellSmartExit}
	case s >= 30:
		if price >= takeProfit*0.95 {
			return ExitDecision{ShouldPublish: true, Kind: store.KindSellTakeProfit}
		}
		return ExitDecision{}
	case s > -20:
		if price >= takeProfit {
			return ExitDecision{ShouldPublish: true, Kind: store.KindSellTakeProfit}
		}
		return ExitDecision{}
	case s > -40:
		if price >= takeProfit*1.15 {
			return ExitDecision{ShouldPublish: true, Kind: store.KindSellTakeProfit}
		}
		return ExitDecision{}
	default: // s <= -40
		if price >= takeProfit*1.20 {
			return ExitDecision{ShouldPublish: true, Kind: store.KindSellTakeProfit}
		}
		return ExitDecision{}
	}
}
