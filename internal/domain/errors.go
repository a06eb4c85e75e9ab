package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrReservesUnavailable = errors.New("pool reserves not fetched")
	ErrUpstreamUnavailable = errors.New("upstream returned no data")
	ErrInvalidToken        = errors.New("token is not one of the pool's tokens")
	ErrInvalidSlippage     = errors.New("slippage tolerance must be between 0 and 1")
	ErrTokenMismatch       = errors.New("token quantities have different tokens")
)

// ValidationError reports malformed caller input. It is returned
// synchronously at operation entry and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TickSizeError reports a price or size that is not a multiple of the
// market's tick size. Nearest carries the closest valid value in
// human-readable form so callers can surface actionable guidance.
type TickSizeError struct {
	Field   string // "price" or "size"
	Nearest string
}

func (e *TickSizeError) Error() string {
	return fmt.Sprintf("invalid %s tick size, nearest valid value is %s", e.Field, e.Nearest)
}

// ConfirmationTimeoutError reports that the correlation poll exhausted its
// retry budget without observing a matching message. The submitted message
// id is kept as a trace reference; the underlying write may still settle
// later.
type ConfirmationTimeoutError struct {
	MessageID string
	Retries   int
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("no confirmation after %d retries, message id %s", e.Retries, e.MessageID)
}

// RemoteFailureError reports an explicit failure signal observed in the
// effect stream, such as an error tag on a refund message.
type RemoteFailureError struct {
	MessageID string
	Reason    string
}

func (e *RemoteFailureError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("operation rejected by process, message id %s", e.MessageID)
	}
	return fmt.Sprintf("operation rejected by process: %s (message id %s)", e.Reason, e.MessageID)
}
