package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/kowloon-quant/tradeengine/internal/broker"
	"github.com/kowloon-quant/tradeengine/internal/errkind"
	"github.com/kowloon-quant/tradeengine/internal/notify"
	"github.com/kowloon-quant/tradeengine/internal/store"
	"github.com/kowloon-quant/tradeengine/internal/tick"
)

// handleSell implements spec §4.9's SELL handling.
func (w *Worker) handleSell(ctx context.Context, sig store.Signal) error {
	// Step 1: nothing to do if there's no active stop and no position.
	contract, found, err := w.stops.GetActive(ctx, w.cfg.AccountID, sig.Symbol)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("sell: get_active: %w", err))
	}
	positions, err := w.broker.Positions(ctx)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("sell: positions: %w", err))
	}
	position, hasPosition := findPosition(positions, sig.Symbol)
	if !found && !hasPosition {
		return ErrNothingToDo
	}

	qty := position.Qty
	if qty <= 0 {
		qty = contract.Quantity
	}
	if qty <= 0 {
		return ErrNothingToDo
	}

	// Step 2: cancel both backup orders, ignoring failures — they may
	// already be filled, cancelled, or never submitted.
	w.cancelBackupOrders(ctx, contract)

	// Step 3: price and submit.
	depth, err := w.broker.Depth(ctx, sig.Symbol)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("sell: depth: %w", err))
	}
	tickSize := tick.TickSize(sig.Symbol, sig.ReferencePrice)
	price := sellLimitPrice(sig.Symbol, sig.ReferencePrice, depth.BidPrice, tickSize)

	submitCtx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
	defer cancel()
	brokerOrderID, err := w.broker.SubmitOrder(submitCtx, sig.ID, sig.Symbol, broker.SideSell, qty, price, broker.TypeLimit, broker.TIFDay)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, fmt.Errorf("sell: submit_order: %w", err))
	}

	record := store.OrderRecord{
		AccountID: w.cfg.AccountID, ClientOrderID: sig.ID, BrokerOrderID: brokerOrderID,
		Symbol: sig.Symbol, Side: store.OrderSideSell, Quantity: qty, Price: price,
		State: store.OrderPendingSubmit, SubmittedAt: time.Now(),
	}
	if _, err := w.orders.Create(ctx, record); err != nil {
		return fmt.Errorf("sell: create order record: %w", err)
	}

	status := w.pollOrder(ctx, brokerOrderID)
	state := mapOrderState(status.State)
	if state == store.OrderPendingSubmit {
		state = store.OrderLive
	}
	if err := w.orders.UpdateState(ctx, w.cfg.AccountID, sig.ID, state); err != nil {
		w.log.Error().Err(err).Str("signal_id", sig.ID).Msg("update order state failed")
	}

	// Step 4: on fill, close the stop contract and notify.
	if state == store.OrderFilled {
		if err := w.stops.MarkClosed(ctx, w.cfg.AccountID, sig.Symbol); err != nil {
			w.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("mark_closed failed")
		}
		if w.notify != nil {
			fillPrice := status.AvgFillPrice
			if fillPrice <= 0 {
				fillPrice = price
			}
			w.notify.Send(notify.Event{Kind: string(sig.Kind), Symbol: sig.Symbol, Message: fmt.Sprintf("sold %d @ %.4f", qty, fillPrice), Timestamp: time.Now()})
		}
		return nil
	}

	// Step 5: anything short of a fill here is retryable — the next
	// delivery runs the whole SELL path again and submits a new order
	// without looking up this one (no client-order-id re-check exists
	// on the SELL path).
	return errkind.New(errkind.TransientNetwork, fmt.Errorf("sell: %s order %s not yet filled (state=%s)", sig.Symbol, brokerOrderID, state))
}

func (w *Worker) cancelBackupOrders(ctx context.Context, contract store.StopContract) {
	if contract.BackupStopOrderID != "" {
		if err := w.broker.CancelOrder(ctx, contract.BackupStopOrderID); err != nil {
			w.log.Debug().Err(err).Str("order_id", contract.BackupStopOrderID).Msg("cancel backup stop-loss order failed")
		}
	}
	if contract.BackupTPOrderID != "" {
		if err := w.broker.CancelOrder(ctx, contract.BackupTPOrderID); err != nil {
			w.log.Debug().Err(err).Str("order_id", contract.BackupTPOrderID).Msg("cancel backup take-profit order failed")
		}
	}
}

func findPosition(positions []broker.Position, symbol string) (broker.Position, bool) {
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return broker.Position{}, false
}
