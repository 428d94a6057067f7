// Package errkind classifies errors into the kinds named by spec §7,
// so that the executor's fail-policy dispatch can switch on a typed
// kind instead of matching substrings in error messages.
package errkind

import "errors"

// Kind is one error kind from spec §7's table.
type Kind string

const (
	TransientNetwork  Kind = "TRANSIENT_NETWORK"
	RateLimited       Kind = "RATE_LIMITED"
	QuotaExceeded     Kind = "QUOTA_EXCEEDED"
	InvalidPrice      Kind = "INVALID_PRICE"
	InsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	AlreadyFilled     Kind = "ALREADY_FILLED"
	StopStoreConflict Kind = "STOP_STORE_CONFLICT"
	Notification      Kind = "NOTIFICATION_FAILURE"
	Cancellation      Kind = "CANCELLATION"
)

// Retryable reports whether the default disposition for this kind is
// a retryable failure (spec §7's "Policy" column).
func (k Kind) Retryable() bool {
	switch k {
	case TransientNetwork, RateLimited:
		return true
	default:
		return false
	}
}

// Error wraps an underlying error with a classification. Components
// that originate a classifiable failure (broker submit, quote fetch,
// store write) should wrap it with New so that the executor can
// recover the kind with As.
type Error struct {
	Kind Kind
	Err  error
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, errkind.Sentinel(errkind.TransientNetwork)) style checks by
// comparing kinds rather than identity — see the Kind sentinel
// wrappers below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinel returns a zero-value *Error carrying only a kind, suitable
// as the target of errors.Is(err, errkind.Sentinel(errkind.RateLimited)).
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind from err if it (or something it wraps) is
// an *Error, defaulting to TransientNetwork — the safest default per
// spec §7, since an unclassified I/O failure should be retried rather
// than silently dropped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return TransientNetwork
}
