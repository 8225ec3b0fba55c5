package types

import "errors"

// Errors returned by the order lifecycle. Callers match with errors.Is;
// adapters wrap their own failures with these.
var (
	// Local input checks, never reach the broker
	ErrValidation = errors.New("validation failed")

	// Pre-order failures, no state is mutated
	ErrSubscription     = errors.New("instrument subscription failed")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrQuantityTooSmall = errors.New("capital too small for one share")

	// Broker outcomes
	ErrOrderRejected   = errors.New("order rejected by broker")
	ErrExitOrderFailed = errors.New("exit order failed")

	// Trade table lookups
	ErrTradeNotFound = errors.New("trade not found")
	ErrInvalidState  = errors.New("operation not allowed in current trade state")

	// Snapshot durability
	ErrPersistence = errors.New("snapshot write failed")
)
