package engine

import (
	"fmt"
	"strings"
	"time"

	"order-executor/internal/market"
	"order-executor/internal/types"
)

type RejectionCategory string

const (
	RejectMarketClosed      RejectionCategory = "MARKET_CLOSED"
	RejectInsufficientFunds RejectionCategory = "INSUFFICIENT_FUNDS"
	RejectInvalidSymbol     RejectionCategory = "INVALID_SYMBOL"
	RejectProductMismatch   RejectionCategory = "PRODUCT_MISMATCH"
	RejectUnknown           RejectionCategory = "UNKNOWN"
)

var rejectionHints = map[RejectionCategory]string{
	RejectMarketClosed:      "Market is closed. Orders can be placed on weekdays between 09:15 and 15:30 IST.",
	RejectInsufficientFunds: "Insufficient funds. Lower the capital or add margin to the account.",
	RejectInvalidSymbol:     "The broker does not recognise this instrument. Search for it again.",
	RejectProductMismatch:   "This product type is not allowed for the instrument. Check the product setting.",
	RejectUnknown:           "The broker rejected the order.",
}

// RejectionError is returned when the broker declines an entry order.
// It matches types.ErrOrderRejected with errors.Is.
type RejectionError struct {
	Category RejectionCategory
	Hint     string
	Message  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected (%s): %s", e.Category, e.Message)
}

func (e *RejectionError) Unwrap() error { return types.ErrOrderRejected }

// classifyRejection maps a broker message to a category. An unrecognised
// message outside market hours is reported as market closed.
func classifyRejection(msg string, now time.Time) *RejectionError {
	m := strings.ToLower(msg)

	cat := RejectUnknown
	switch {
	case strings.Contains(m, "market") || strings.Contains(m, "closed"):
		cat = RejectMarketClosed
	case strings.Contains(m, "insufficient") || strings.Contains(m, "fund"):
		cat = RejectInsufficientFunds
	case strings.Contains(m, "invalid") || strings.Contains(m, "symbol"):
		cat = RejectInvalidSymbol
	case strings.Contains(m, "product"):
		cat = RejectProductMismatch
	}
	if cat == RejectUnknown && !market.IsOpen(now) {
		cat = RejectMarketClosed
	}

	return &RejectionError{Category: cat, Hint: rejectionHints[cat], Message: msg}
}
