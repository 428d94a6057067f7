// Package analytics computes performance metrics from closed
// positions.
//
// It provides:
//   - Win rate, total P&L, average P&L, per currency
//   - Maximum drawdown (absolute and percentage)
//   - Sharpe ratio (annualized, assuming 252 trading days)
//   - Profit factor (gross profits / gross losses)
//   - Average hold time, min/max hold days
//   - Human-readable formatted report
//
// All functions are stateless and work on slices of ClosedTrade,
// which BuildClosedTrades reconstructs from the order ledger.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kowloon-quant/tradeengine/internal/store"
)

// ClosedTrade is one matched BUY→SELL pair reconstructed from the
// order ledger. Because the stop store enforces at most one active
// StopContract per symbol (spec invariant), a chronological FIFO
// match of filled BUYs to filled SELLs per symbol reproduces the
// actual position history without needing a dedicated trade table.
type ClosedTrade struct {
	Symbol     string
	Currency   string
	Quantity   int
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PnL        float64
}

// BuildClosedTrades matches filled BUY and SELL order records into
// ClosedTrades by FIFO per symbol: the oldest unmatched BUY for a
// symbol is paired with the next SELL for that symbol. Orders must
// already be sorted by submitted_at ascending (OrderStore.FilledOrders
// guarantees this).
func BuildClosedTrades(orders []store.OrderRecord, currencyFor func(symbol string) string) []ClosedTrade {
	openBuys := make(map[string][]store.OrderRecord)
	var trades []ClosedTrade

	for _, o := range orders {
		switch o.Side {
		case store.OrderSideBuy:
			openBuys[o.Symbol] = append(openBuys[o.Symbol], o)
		case store.OrderSideSell:
			queue := openBuys[o.Symbol]
			if len(queue) == 0 {
				continue
			}
			entry := queue[0]
			openBuys[o.Symbol] = queue[1:]

			qty := entry.Quantity
			if o.Quantity < qty {
				qty = o.Quantity
			}
			trades = append(trades, ClosedTrade{
				Symbol:     o.Symbol,
				Currency:   currencyFor(o.Symbol),
				Quantity:   qty,
				EntryPrice: entry.Price,
				ExitPrice:  o.Price,
				EntryTime:  entry.SubmittedAt,
				ExitTime:   o.SubmittedAt,
				PnL:        (o.Price - entry.Price) * float64(qty),
			})
		}
	}
	return trades
}

// CurrencyReport holds the performance metrics for the trades
// denominated in one currency (HKD for HK-listed symbols, USD for
// US-listed symbols — this engine never nets P&L across currencies).
type CurrencyReport struct {
	Currency string

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percentage (0-100)

	TotalPnL    float64
	AveragePnL  float64
	GrossProfit float64
	GrossLoss   float64

	MaxDrawdown    float64 // absolute drawdown
	MaxDrawdownPct float64 // percentage drawdown from peak
	SharpeRatio    float64 // annualized
	ProfitFactor   float64 // gross profit / gross loss

	AverageHoldDays float64
	MaxHoldDays     int
	MinHoldDays     int
}

// PerformanceReport holds one CurrencyReport per currency that had at
// least one closed trade in the analyzed window.
type PerformanceReport struct {
	GeneratedAt time.Time
	ByCurrency  map[string]*CurrencyReport
}

// EquityCurvePoint represents a point on the equity curve.
type EquityCurvePoint struct {
	Date     time.Time
	Equity   float64
	Drawdown float64
}

// Analyze computes the full performance report from a slice of closed
// trades, grouped by currency. initialCapital gives the starting
// equity per currency; a currency absent from the map defaults to 0.
func Analyze(trades []ClosedTrade, initialCapital map[string]float64) *PerformanceReport {
	report := &PerformanceReport{
		GeneratedAt: time.Now(),
		ByCurrency:  make(map[string]*CurrencyReport),
	}
	if len(trades) == 0 {
		return report
	}

	byCurrency := make(map[string][]ClosedTrade)
	for _, t := range trades {
		byCurrency[t.Currency] = append(byCurrency[t.Currency], t)
	}

	for currency, ts := range byCurrency {
		report.ByCurrency[currency] = analyzeCurrency(currency, ts, initialCapital[currency])
	}
	return report
}

func analyzeCurrency(currency string, trades []ClosedTrade, initialCapital float64) *CurrencyReport {
	cr := &CurrencyReport{Currency: currency, MinHoldDays: math.MaxInt32}

	sorted := make([]ClosedTrade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExitTime.Before(sorted[j].ExitTime) })

	var totalHoldDays float64
	var pnls []float64

	for _, t := range sorted {
		pnls = append(pnls, t.PnL)
		cr.TotalTrades++
		cr.TotalPnL += t.PnL

		if t.PnL > 0 {
			cr.WinningTrades++
			cr.GrossProfit += t.PnL
		} else if t.PnL < 0 {
			cr.LosingTrades++
			cr.GrossLoss += math.Abs(t.PnL)
		}

		holdDays := holdDaysForTrade(t)
		totalHoldDays += float64(holdDays)
		if holdDays > cr.MaxHoldDays {
			cr.MaxHoldDays = holdDays
		}
		if holdDays < cr.MinHoldDays {
			cr.MinHoldDays = holdDays
		}
	}

	if cr.TotalTrades == 0 {
		cr.MinHoldDays = 0
		return cr
	}

	cr.WinRate = float64(cr.WinningTrades) / float64(cr.TotalTrades) * 100
	cr.AveragePnL = cr.TotalPnL / float64(cr.TotalTrades)
	cr.AverageHoldDays = totalHoldDays / float64(cr.TotalTrades)

	if cr.GrossLoss > 0 {
		cr.ProfitFactor = cr.GrossProfit / cr.GrossLoss
	} else if cr.GrossProfit > 0 {
		cr.ProfitFactor = math.Inf(1)
	}

	equity := initialCapital
	peak := equity
	for _, pnl := range pnls {
		equity += pnl
		if equity > peak {
			peak = equity
		}
		dd := peak - equity
		if dd > cr.MaxDrawdown {
			cr.MaxDrawdown = dd
			if peak > 0 {
				cr.MaxDrawdownPct = (dd / peak) * 100
			}
		}
	}

	cr.SharpeRatio = computeSharpeRatio(pnls)
	return cr
}

// EquityCurve generates the equity curve for one currency's trades,
// sorted by exit time.
func EquityCurve(trades []ClosedTrade, initialCapital float64) []EquityCurvePoint {
	if len(trades) == 0 {
		return nil
	}

	sorted := make([]ClosedTrade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExitTime.Before(sorted[j].ExitTime) })

	equity := initialCapital
	peak := equity
	points := make([]EquityCurvePoint, 0, len(sorted)+1)
	points = append(points, EquityCurvePoint{Date: sorted[0].EntryTime, Equity: equity})

	for _, t := range sorted {
		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		dd := peak - equity
		points = append(points, EquityCurvePoint{Date: t.ExitTime, Equity: equity, Drawdown: dd})
	}
	return points
}

// FormatReport returns a human-readable text summary of the
// performance report, one section per currency.
func FormatReport(report *PerformanceReport) string {
	if report == nil || len(report.ByCurrency) == 0 {
		return "No closed trades to analyze.\n"
	}

	currencies := make([]string, 0, len(report.ByCurrency))
	for c := range report.ByCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	var b strings.Builder
	b.WriteString("═══════════════════════════════════════════════════\n")
	fmt.Fprintf(&b, "  PERFORMANCE REPORT — generated %s\n", report.GeneratedAt.Format("2006-01-02 15:04"))
	b.WriteString("═══════════════════════════════════════════════════\n\n")

	for _, currency := range currencies {
		cr := report.ByCurrency[currency]
		fmt.Fprintf(&b, "── %s ──\n", currency)
		fmt.Fprintf(&b, "  Total trades:    %d\n", cr.TotalTrades)
		fmt.Fprintf(&b, "  Winning trades:  %d (%.1f%%)\n", cr.WinningTrades, cr.WinRate)
		fmt.Fprintf(&b, "  Losing trades:   %d\n", cr.LosingTrades)
		fmt.Fprintf(&b, "  Total P&L:       %.2f %s\n", cr.TotalPnL, currency)
		fmt.Fprintf(&b, "  Average P&L:     %.2f %s\n", cr.AveragePnL, currency)
		fmt.Fprintf(&b, "  Gross profit:    %.2f %s\n", cr.GrossProfit, currency)
		fmt.Fprintf(&b, "  Gross loss:      %.2f %s\n", cr.GrossLoss, currency)
		fmt.Fprintf(&b, "  Profit factor:   %.2f\n", cr.ProfitFactor)
		fmt.Fprintf(&b, "  Max drawdown:    %.2f %s (%.2f%%)\n", cr.MaxDrawdown, currency, cr.MaxDrawdownPct)
		fmt.Fprintf(&b, "  Sharpe ratio:    %.2f\n", cr.SharpeRatio)
		fmt.Fprintf(&b, "  Avg hold:        %.1f days (min %d, max %d)\n", cr.AverageHoldDays, cr.MinHoldDays, cr.MaxHoldDays)
		b.WriteString("\n")
	}

	b.WriteString("═══════════════════════════════════════════════════\n")
	return b.String()
}

// holdDaysForTrade counts the whole 24-hour periods between a trade's entry and exit.
func holdDaysForTrade(t ClosedTrade) int {
	days := int(t.ExitTime.Sub(t.EntryTime).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days
}

// computeSharpeRatio calculates the annualized Sharpe ratio from a
// slice of per-trade P&L values. Assumes zero risk-free rate and 252
// trading days per year.
func computeSharpeRatio(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}

	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / float64(len(pnls))

	var variance float64
	for _, p := range pnls {
		diff := p - mean
		variance += diff * diff
	}
	variance /= float64(len(pnls) - 1)
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}

	return (mean / stdDev) * math.Sqrt(252)
}
