package executor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kowloon-quant/tradeengine/internal/broker"
	"github.com/kowloon-quant/tradeengine/internal/store"
)

type fakeQueue struct {
	acked  []string
	failed map[string]bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failed: make(map[string]bool)}
}

func (f *fakeQueue) Consume(_ context.Context, _ time.Duration) (store.Signal, bool, error) {
	return store.Signal{}, false, nil
}
func (f *fakeQueue) Ack(_ context.Context, signalID string) error {
	f.acked = append(f.acked, signalID)
	return nil
}
func (f *fakeQueue) Fail(_ context.Context, signalID string, retryable bool) error {
	f.failed[signalID] = retryable
	return nil
}
func (f *fakeQueue) HasPending(_ context.Context, _, _ string, _ store.SignalKind) (bool, error) {
	return false, nil
}

type fakeStops struct {
	active    map[string]store.StopContract
	closed    map[string]bool
	backupSet map[string][2]string
}

func newFakeStops() *fakeStops {
	return &fakeStops{active: make(map[string]store.StopContract), closed: make(map[string]bool), backupSet: make(map[string][2]string)}
}

func (f *fakeStops) GetActive(_ context.Context, _, symbol string) (store.StopContract, bool, error) {
	c, ok := f.active[symbol]
	return c, ok, nil
}
func (f *fakeStops) Put(_ context.Context, c store.StopContract) error {
	f.active[c.Symbol] = c
	return nil
}
func (f *fakeStops) MarkClosed(_ context.Context, _, symbol string) error {
	f.closed[symbol] = true
	delete(f.active, symbol)
	return nil
}
func (f *fakeStops) AttachBackup(_ context.Context, _, symbol, stopOrderID, tpOrderID string) error {
	f.backupSet[symbol] = [2]string{stopOrderID, tpOrderID}
	c := f.active[symbol]
	c.BackupStopOrderID = stopOrderID
	c.BackupTPOrderID = tpOrderID
	f.active[symbol] = c
	return nil
}

type fakeOrders struct {
	records   map[string]store.OrderRecord
	states    map[string]store.OrderState
	todayBuys map[string]bool
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{records: make(map[string]store.OrderRecord), states: make(map[string]store.OrderState), todayBuys: make(map[string]bool)}
}

func (f *fakeOrders) Create(_ context.Context, o store.OrderRecord) (int64, error) {
	f.records[o.ClientOrderID] = o
	return 1, nil
}
func (f *fakeOrders) UpdateState(_ context.Context, _, clientOrderID string, state store.OrderState) error {
	f.states[clientOrderID] = state
	return nil
}
func (f *fakeOrders) ByClientOrderID(_ context.Context, _, clientOrderID string) (store.OrderRecord, bool, error) {
	o, ok := f.records[clientOrderID]
	return o, ok, nil
}
func (f *fakeOrders) TodayBuySymbols(_ context.Context, _ string, _ time.Time) (map[string]bool, error) {
	return f.todayBuys, nil
}

func newTestWorker(q *fakeQueue, stops *fakeStops, orders *fakeOrders, b broker.Broker) *Worker {
	cfg := DefaultConfig("acct-1")
	return NewWorker(1, cfg, q, stops, orders, b, nil, zerolog.Nop())
}

func buySignal(symbol string, score float64, price float64) store.Signal {
	return store.Signal{
		ID: "sig-" + symbol, AccountID: "acct-1", Symbol: symbol, Kind: store.KindStrongBuy,
		Score: score, ReferencePrice: price, StopLoss: price * 0.95, TakeProfit: price * 1.1,
		GeneratedAt: time.Now(),
	}
}

func TestHandleBuy_FillsAndWritesStopContractWithBackups(t *testing.T) {
	pb := broker.NewPaperBroker(map[string]broker.CurrencyBalance{
		"USD": {Cash: 100000, BuyPower: 100000},
	})
	pb.SeedQuote(broker.Quote{Symbol: "AAPL.US", LastPrice: 150})

	q, stops, orders := newFakeQueue(), newFakeStops(), newFakeOrders()
	w := newTestWorker(q, stops, orders, pb)

	sig := buySignal("AAPL.US", 60, 150)
	if err := w.handleBuy(context.Background(), sig); err != nil {
		t.Fatalf("handleBuy: %v", err)
	}

	contract, ok := stops.active["AAPL.US"]
	if !ok {
		t.Fatal("expected stop contract to be written")
	}
	if contract.Quantity <= 0 {
		t.Fatalf("expected positive quantity, got %d", contract.Quantity)
	}
	if contract.BackupStopOrderID == "" || contract.BackupTPOrderID == "" {
		t.Fatal("expected both backup order ids attached")
	}
	if orders.states[sig.ID] != store.OrderFilled {
		t.Fatalf("expected order state filled, got %v", orders.states[sig.ID])
	}
}

func TestHandleBuy_DedupSkipWhenAlreadyPositioned(t *testing.T) {
	pb := broker.NewPaperBroker(map[string]broker.CurrencyBalance{"USD": {BuyPower: 100000}})
	pb.SeedQuote(broker.Quote{Symbol: "AAPL.US", LastPrice: 150})
	pb.SeedCandles("AAPL.US", nil)
	// Seed an existing position via a prior paper BUY.
	if _, err := pb.SubmitOrder(context.Background(), "seed", "AAPL.US", broker.SideBuy, 10, 150, broker.TypeLimit, broker.TIFDay); err != nil {
		t.Fatalf("seed: %v", err)
	}

	q, stops, orders := newFakeQueue(), newFakeStops(), newFakeOrders()
	w := newTestWorker(q, stops, orders, pb)

	sig := buySignal("AAPL.US", 60, 150)
	err := w.handleBuy(context.Background(), sig)
	if err != ErrDedupSkip {
		t.Fatalf("expected ErrDedupSkip, got %v", err)
	}
}

func TestHandleBuy_InsufficientFundsRejected(t *testing.T) {
	pb := broker.NewPaperBroker(map[string]broker.CurrencyBalance{"USD": {BuyPower: 50}})
	pb.SeedQuote(broker.Quote{Symbol: "AAPL.US", LastPrice: 150})

	q, stops, orders := newFakeQueue(), newFakeStops(), newFakeOrders()
	w := newTestWorker(q, stops, orders, pb)

	sig := buySignal("AAPL.US", 60, 150)
	err := w.handleBuy(context.Background(), sig)
	if err == nil {
		t.Fatal("expected an error for insufficient buy power")
	}
	if !isAckableSkip(err) {
		t.Fatalf("expected insufficient-funds to be an ackable skip, got %v", err)
	}
}

func TestHandleSell_NothingToDoWhenNoPositionOrStop(t *testing.T) {
	pb := broker.NewPaperBroker(map[string]broker.CurrencyBalance{"USD": {BuyPower: 100000}})
	q, stops, orders := newFakeQueue(), newFakeStops(), newFakeOrders()
	w := newTestWorker(q, stops, orders, pb)

	sig := store.Signal{ID: "sell-1", AccountID: "acct-1", Symbol: "AAPL.US", Kind: store.KindSellStopLoss, ReferencePrice: 140}
	err := w.handleSell(context.Background(), sig)
	if err != ErrNothingToDo {
		t.Fatalf("expected ErrNothingToDo, got %v", err)
	}
}

func TestHandleSell_ClosesStopAndCancelsBackupsOnFill(t *testing.T) {
	pb := broker.NewPaperBroker(map[string]broker.CurrencyBalance{"USD": {BuyPower: 100000}})
	pb.SeedQuote(broker.Quote{Symbol: "AAPL.US", LastPrice: 140})
	if _, err := pb.SubmitOrder(context.Background(), "seed", "AAPL.US", broker.SideBuy, 10, 150, broker.TypeLimit, broker.TIFDay); err != nil {
		t.Fatalf("seed buy: %v", err)
	}
	stopOrderID, err := pb.SubmitConditional(context.Background(), "AAPL.US", broker.SideSell, 10, 142.5, 141.8, broker.TIFGTC)
	if err != nil {
		t.Fatalf("seed conditional: %v", err)
	}

	q, stops, orders := newFakeQueue(), newFakeStops(), newFakeOrders()
	stops.active["AAPL.US"] = store.StopContract{
		AccountID: "acct-1", Symbol: "AAPL.US", EntryPrice: 150, Quantity: 10,
		StopLoss: 142.5, TakeProfit: 165, Status: store.StopActive, BackupStopOrderID: stopOrderID,
	}
	w := newTestWorker(q, stops, orders, pb)

	sig := store.Signal{ID: "sell-2", AccountID: "acct-1", Symbol: "AAPL.US", Kind: store.KindSellStopLoss, ReferencePrice: 140}
	if err := w.handleSell(context.Background(), sig); err != nil {
		t.Fatalf("handleSell: %v", err)
	}

	if !stops.closed["AAPL.US"] {
		t.Fatal("expected stop contract to be marked closed")
	}
	if orders.states[sig.ID] != store.OrderFilled {
		t.Fatalf("expected sell order filled, got %v", orders.states[sig.ID])
	}
	status, err := pb.OrderStatus(context.Background(), stopOrderID)
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if status.State != broker.StateCancelled {
		t.Fatalf("expected backup stop order cancelled, got %v", status.State)
	}
}

func TestHandle_AcksOnSuccessAndFailsOnError(t *testing.T) {
	pb := broker.NewPaperBroker(map[string]broker.CurrencyBalance{"USD": {BuyPower: 100000}})
	pb.SeedQuote(broker.Quote{Symbol: "AAPL.US", LastPrice: 150})

	q, stops, orders := newFakeQueue(), newFakeStops(), newFakeOrders()
	w := newTestWorker(q, stops, orders, pb)

	sig := buySignal("AAPL.US", 60, 150)
	w.handle(context.Background(), sig)
	if len(q.acked) != 1 || q.acked[0] != sig.ID {
		t.Fatalf("expected signal acked, got acked=%v failed=%v", q.acked, q.failed)
	}

	// No quote is seeded for MSFT.US, so the depth lookup errors and the
	// signal is failed as retryable.
	failSig := buySignal("MSFT.US", 60, 300)
	w.handle(context.Background(), failSig)
	if retryable, ok := q.failed[failSig.ID]; !ok || !retryable {
		t.Fatalf("expected signal failed as retryable, got acked=%v failed=%v", q.acked, q.failed)
	}
}
