package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/kowloon-quant/tradeengine/internal/broker"
	"github.com/kowloon-quant/tradeengine/internal/calendar"
	"github.com/kowloon-quant/tradeengine/internal/errkind"
	"github.com/kowloon-quant/tradeengine/internal/notify"
	"github.com/kowloon-quant/tradeengine/internal/store"
	"github.com/kowloon-quant/tradeengine/internal/tick"
)

// handleBuy implements spec §4.9's BUY handling, in its mandated
// strict order.
func (w *Worker) handleBuy(ctx context.Context, sig store.Signal) error {
	// Step 1: re-check dedup.
	positions, err := w.broker.Positions(ctx)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("buy: positions: %w", err))
	}
	for _, p := range positions {
		if p.Symbol == sig.Symbol {
			return ErrDedupSkip
		}
	}
	todayBuy, err := w.orders.TodayBuySymbols(ctx, w.cfg.AccountID, time.Now())
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("buy: today_buy_symbols: %w", err))
	}
	if todayBuy[sig.Symbol] {
		return ErrDedupSkip
	}

	// Idempotence: resume rather than resubmit on at-least-once redelivery.
	existing, found, err := w.orders.ByClientOrderID(ctx, w.cfg.AccountID, sig.ID)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("buy: by_client_order_id: %w", err))
	}
	if found {
		return w.resumeBuy(ctx, sig, existing)
	}

	// Step 2: account snapshot, currency fallback.
	balances, err := w.broker.AccountBalance(ctx)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("buy: account_balance: %w", err))
	}
	buyPower, err := w.effectiveBuyPower(sig.Symbol, balances)
	if err != nil {
		return err
	}

	// Step 3-4: budget fraction, target order value.
	fraction := budgetFraction(sig.Score)
	targetValue := buyPower * fraction

	// Step 5: price at bid/ask depth.
	depth, err := w.broker.Depth(ctx, sig.Symbol)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("buy: depth: %w", err))
	}
	tickSize := tick.TickSize(sig.Symbol, sig.ReferencePrice)
	maxSlippage := w.cfg.MaxSlippagePct
	if maxSlippage <= 0 {
		maxSlippage = maxSlippagePct
	}
	price, ok := buyLimitPrice(sig.Symbol, sig.ReferencePrice, depth.AskPrice, tickSize, maxSlippage)
	if !ok {
		return errkind.New(errkind.InvalidPrice, fmt.Errorf("buy: %s price slippage exceeds %.1f%% of reference %.4f", sig.Symbol, maxSlippage*100, sig.ReferencePrice))
	}

	// Step 6: lot-quantized quantity.
	lot := lotSize(sig.Symbol, w.cfg.LotSizeOverrides, w.cfg.HKLotSizeDefault)
	qty := quantityForBudget(targetValue, price, lot)
	if qty <= 0 {
		return errkind.New(errkind.InvalidPrice, fmt.Errorf("buy: %s quantizes to zero shares at lot size %d", sig.Symbol, lot))
	}

	// Step 7: submit, record, poll.
	submitCtx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
	defer cancel()
	brokerOrderID, err := w.broker.SubmitOrder(submitCtx, sig.ID, sig.Symbol, broker.SideBuy, qty, price, broker.TypeLimit, broker.TIFDay)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("buy: submit_order: %w", err))
	}

	record := store.OrderRecord{
		AccountID: w.cfg.AccountID, ClientOrderID: sig.ID, BrokerOrderID: brokerOrderID,
		Symbol: sig.Symbol, Side: store.OrderSideBuy, Quantity: qty, Price: price,
		State: store.OrderPendingSubmit, SubmittedAt: time.Now(),
	}
	// If SubmitOrder succeeded but Create fails here, no OrderRecord is
	// persisted: a later redelivery of this signal won't find it via
	// ByClientOrderID and will call SubmitOrder again with the same
	// sig.ID as client_order_id. Safety then depends on the broker
	// itself treating client_order_id as an idempotency key.
	if _, err := w.orders.Create(ctx, record); err != nil {
		return fmt.Errorf("buy: create order record: %w", err)
	}

	status := w.pollOrder(ctx, brokerOrderID)
	return w.settleBuy(ctx, sig, brokerOrderID, price, qty, status)
}

// resumeBuy handles an at-least-once redelivery of a BUY already
// recorded: poll rather than resubmit.
func (w *Worker) resumeBuy(ctx context.Context, sig store.Signal, existing store.OrderRecord) error {
	if existing.State == store.OrderFilled {
		return errkind.New(errkind.AlreadyFilled, fmt.Errorf("buy: %s already filled", sig.Symbol))
	}
	status := w.pollOrder(ctx, existing.BrokerOrderID)
	return w.settleBuy(ctx, sig, existing.BrokerOrderID, existing.Price, existing.Quantity, status)
}

// pollOrder polls order status for up to cfg.PollTimeout (spec §4.9
// step 7's "poll status up to 3 s").
func (w *Worker) pollOrder(ctx context.Context, brokerOrderID string) broker.OrderStatus {
	pollCtx, cancel := context.WithTimeout(ctx, w.cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var last broker.OrderStatus
	for {
		status, err := w.broker.OrderStatus(pollCtx, brokerOrderID)
		if err == nil {
			last = status
			if status.State == broker.StateFilled || status.State == broker.StateLive {
				return status
			}
		}
		select {
		case <-pollCtx.Done():
			return last
		case <-ticker.C:
		}
	}
}

// settleBuy finishes a BUY after polling: update the order state and,
// on fill (full or partial with at least one lot), write the stop
// contract and attempt the backup conditional orders.
func (w *Worker) settleBuy(ctx context.Context, sig store.Signal, brokerOrderID string, price float64, qty int, status broker.OrderStatus) error {
	state := mapOrderState(status.State)
	if state == store.OrderPendingSubmit {
		state = store.OrderLive
	}
	if err := w.orders.UpdateState(ctx, w.cfg.AccountID, sig.ID, state); err != nil {
		w.log.Error().Err(err).Str("signal_id", sig.ID).Msg("update order state failed")
	}

	filledQty := status.FilledQty
	lot := lotSize(sig.Symbol, w.cfg.LotSizeOverrides, w.cfg.HKLotSizeDefault)
	if state != store.OrderFilled && state != store.OrderPartiallyFilled {
		return nil
	}
	if filledQty < lot {
		return nil
	}

	fillPrice := status.AvgFillPrice
	if fillPrice <= 0 {
		fillPrice = price
	}

	contract := store.StopContract{
		AccountID: w.cfg.AccountID, Symbol: sig.Symbol, EntryPrice: fillPrice, Quantity: filledQty,
		StopLoss: sig.StopLoss, TakeProfit: sig.TakeProfit, Status: store.StopActive, CreatedAt: time.Now(),
	}
	if err := w.stops.Put(ctx, contract); err != nil {
		return fmt.Errorf("buy: write stop contract: %w", err)
	}

	w.attachBackupOrders(ctx, sig, fillPrice, filledQty)

	if w.notify != nil {
		w.notify.Send(notify.Event{Kind: "buy_filled", Symbol: sig.Symbol, Message: fmt.Sprintf("filled %d @ %.4f", filledQty, fillPrice), Timestamp: time.Now()})
	}
	return nil
}

// attachBackupOrders submits the two exchange-side LIT backup orders
// (spec §4.9 step 8). Failures here are logged but never fail the
// BUY — the in-process exit engine is the primary path; the backups
// are a safety net.
func (w *Worker) attachBackupOrders(ctx context.Context, sig store.Signal, entryPrice float64, qty int) {
	stopLimit := sig.StopLoss * w.cfg.BackupStopDiscount

	stopOrderID, err := w.broker.SubmitConditional(ctx, sig.Symbol, broker.SideSell, qty, sig.StopLoss, stopLimit, broker.TIFGTC)
	if err != nil {
		w.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("backup stop-loss order failed")
	}
	tpOrderID, err := w.broker.SubmitConditional(ctx, sig.Symbol, broker.SideSell, qty, sig.TakeProfit, sig.TakeProfit, broker.TIFGTC)
	if err != nil {
		w.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("backup take-profit order failed")
	}
	if stopOrderID == "" && tpOrderID == "" {
		return
	}
	if err := w.stops.AttachBackup(ctx, w.cfg.AccountID, sig.Symbol, stopOrderID, tpOrderID); err != nil {
		w.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("attach backup order ids failed")
	}
}

// effectiveBuyPower implements spec §4.9 step 2: prefer the quote's
// native currency; fall back to the secondary currency converted at
// the configured static FX rate if the native balance is below the
// configured minimum.
func (w *Worker) effectiveBuyPower(symbol string, balances map[string]broker.CurrencyBalance) (float64, error) {
	native, secondary, minNative := w.currenciesFor(symbol)
	nativeBalance := balances[native].BuyPower
	if nativeBalance >= minNative {
		return nativeBalance, nil
	}

	secondaryBalance := balances[secondary].BuyPower
	converted := w.convert(secondaryBalance, secondary, native)
	if converted > nativeBalance {
		nativeBalance = converted
	}
	if nativeBalance < minNative {
		return 0, errkind.New(errkind.InsufficientFunds, fmt.Errorf("executor: insufficient buy power for %s: %.2f %s", symbol, nativeBalance, native))
	}
	return nativeBalance, nil
}

func (w *Worker) currenciesFor(symbol string) (native, secondary string, minNative float64) {
	if market, ok := calendar.MarketForSymbol(symbol); ok && market == calendar.HK {
		return "HKD", "USD", w.cfg.MinBuyPowerHKD
	}
	return "USD", "HKD", w.cfg.MinBuyPowerUSD
}

func (w *Worker) convert(amount float64, from, to string) float64 {
	if from == to {
		return amount
	}
	fx := w.cfg.FXHKDPerUSD
	if fx <= 0 {
		fx = 7.8
	}
	if from == "USD" && to == "HKD" {
		return amount * fx
	}
	if from == "HKD" && to == "USD" {
		return amount / fx
	}
	return amount
}

func mapOrderState(s broker.State) store.OrderState {
	switch s {
	case broker.StateFilled:
		return store.OrderFilled
	case broker.StatePartiallyFilled:
		return store.OrderPartiallyFilled
	case broker.StateLive:
		return store.OrderLive
	case broker.StateCancelled:
		return store.OrderCancelled
	case broker.StateFailed:
		return store.OrderFailed
	default:
		return store.OrderPendingSubmit
	}
}
