package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingBroker struct {
	*PaperBroker
	failOrders bool
}

func (f *failingBroker) SubmitOrder(ctx context.Context, clientOrderID, symbol string, side Side, qty int, price float64, typ OrderType, tif TimeInForce) (string, error) {
	if f.failOrders {
		return "", errors.New("simulated broker failure")
	}
	return f.PaperBroker.SubmitOrder(ctx, clientOrderID, symbol, side, qty, price, typ, tif)
}

func TestCircuitBreakerBroker_TripsAfterConsecutiveFailures(t *testing.T) {
	inner := &failingBroker{PaperBroker: newTestPaperBroker(), failOrders: true}
	cb := WrapCircuitBreaker(inner, 2, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cb.SubmitOrder(ctx, "c", "AAPL.US", SideBuy, 1, 100, TypeLimit, TIFDay); err == nil {
			t.Fatalf("expected failure on attempt %d", i)
		}
	}

	// Breaker should now be open; error should be reported promptly
	// without invoking the inner broker again.
	if _, err := cb.SubmitOrder(ctx, "c", "AAPL.US", SideBuy, 1, 100, TypeLimit, TIFDay); err == nil {
		t.Fatal("expected circuit-open error")
	}
}

func TestCircuitBreakerBroker_RecoversAfterTimeout(t *testing.T) {
	inner := &failingBroker{PaperBroker: newTestPaperBroker(), failOrders: true}
	cb := WrapCircuitBreaker(inner, 1, 20*time.Millisecond)
	ctx := context.Background()

	if _, err := cb.SubmitOrder(ctx, "c", "AAPL.US", SideBuy, 1, 100, TypeLimit, TIFDay); err == nil {
		t.Fatal("expected initial failure")
	}

	inner.failOrders = false
	time.Sleep(30 * time.Millisecond)

	if _, err := cb.SubmitOrder(ctx, "c", "AAPL.US", SideBuy, 1, 100, TypeLimit, TIFDay); err != nil {
		t.Fatalf("expected recovery after half-open trial, got %v", err)
	}
}
