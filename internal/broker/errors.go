package broker

import "errors"

// ErrStreamingUnsupported is returned by StreamQuotes implementations
// that have no push channel; callers fall back to PollQuotes on a timer.
var ErrStreamingUnsupported = errors.New("broker: streaming quotes not supported")

// ErrOrderNotFound is returned by OrderStatus/CancelOrder for an
// unknown broker order id.
var ErrOrderNotFound = errors.New("broker: order not found")
