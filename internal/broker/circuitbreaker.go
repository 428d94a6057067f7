// Package broker - circuitbreaker.go wraps any Broker implementation
// with one circuit breaker per method family (quotes, orders,
// account), so repeated broker failures degrade into fast, explicit
// errors instead of hammering the exchange gateway. Grounded in the
// teacher's own risk.CircuitBreaker concept, rebuilt on
// sony/gobreaker; StreamQuotes passes through unwrapped.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kowloon-quant/tradeengine/internal/indicator"
)

// CircuitBreakerBroker decorates a Broker with one gobreaker.CircuitBreaker
// per method family, tripping after a run of consecutive failures.
type CircuitBreakerBroker struct {
	inner    Broker
	quotes   *gobreaker.CircuitBreaker
	orders   *gobreaker.CircuitBreaker
	account  *gobreaker.CircuitBreaker
}

// WrapCircuitBreaker returns a Broker that trips a breaker after
// maxConsecutiveFailures and stays open for openDuration before
// allowing a single trial call through.
func WrapCircuitBreaker(inner Broker, maxConsecutiveFailures uint32, openDuration time.Duration) *CircuitBreakerBroker {
	newBreaker := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: openDuration,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxConsecutiveFailures
			},
		})
	}
	return &CircuitBreakerBroker{
		inner:   inner,
		quotes:  newBreaker("broker-quotes"),
		orders:  newBreaker("broker-orders"),
		account: newBreaker("broker-account"),
	}
}

func (c *CircuitBreakerBroker) PollQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	res, err := c.quotes.Execute(func() (interface{}, error) {
		return c.inner.PollQuotes(ctx, symbols)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]Quote), nil
}

func (c *CircuitBreakerBroker) StreamQuotes(ctx context.Context, symbols []string) (<-chan Quote, error) {
	return c.inner.StreamQuotes(ctx, symbols)
}

func (c *CircuitBreakerBroker) Candles(ctx context.Context, symbol string, count int) ([]indicator.Candle, error) {
	res, err := c.quotes.Execute(func() (interface{}, error) {
		return c.inner.Candles(ctx, symbol, count)
	})
	if err != nil {
		return nil, err
	}
	return res.([]indicator.Candle), nil
}

func (c *CircuitBreakerBroker) Depth(ctx context.Context, symbol string) (Depth, error) {
	res, err := c.quotes.Execute(func() (interface{}, error) {
		return c.inner.Depth(ctx, symbol)
	})
	if err != nil {
		return Depth{}, err
	}
	return res.(Depth), nil
}

func (c *CircuitBreakerBroker) AccountBalance(ctx context.Context) (map[string]CurrencyBalance, error) {
	res, err := c.account.Execute(func() (interface{}, error) {
		return c.inner.AccountBalance(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]CurrencyBalance), nil
}

func (c *CircuitBreakerBroker) Positions(ctx context.Context) ([]Position, error) {
	res, err := c.account.Execute(func() (interface{}, error) {
		return c.inner.Positions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]Position), nil
}

func (c *CircuitBreakerBroker) SubmitOrder(ctx context.Context, clientOrderID, symbol string, side Side, qty int, price float64, typ OrderType, tif TimeInForce) (string, error) {
	res, err := c.orders.Execute(func() (interface{}, error) {
		return c.inner.SubmitOrder(ctx, clientOrderID, symbol, side, qty, price, typ, tif)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return "", fmt.Errorf("broker circuit open: %w", err)
		}
		return "", err
	}
	return res.(string), nil
}

func (c *CircuitBreakerBroker) OrderStatus(ctx context.Context, brokerOrderID string) (OrderStatus, error) {
	res, err := c.orders.Execute(func() (interface{}, error) {
		return c.inner.OrderStatus(ctx, brokerOrderID)
	})
	if err != nil {
		return OrderStatus{}, err
	}
	return res.(OrderStatus), nil
}

func (c *CircuitBreakerBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	_, err := c.orders.Execute(func() (interface{}, error) {
		return nil, c.inner.CancelOrder(ctx, brokerOrderID)
	})
	return err
}

func (c *CircuitBreakerBroker) SubmitConditional(ctx context.Context, symbol string, side Side, qty int, trigger, limit float64, tif TimeInForce) (string, error) {
	res, err := c.orders.Execute(func() (interface{}, error) {
		return c.inner.SubmitConditional(ctx, symbol, side, qty, trigger, limit, tif)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

var _ Broker = (*CircuitBreakerBroker)(nil)
