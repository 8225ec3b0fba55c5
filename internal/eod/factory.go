package eod

import (
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/market"
)

// NewSummarizer writes summaries of ledger rows under dir/eod.
func NewSummarizer(ledger interfaces.Ledger, dir string) interfaces.EodSummarizer {
	return newSummarizer(ledger, dir, market.Now)
}

func newSummarizer(ledger interfaces.Ledger, dir string, now func() time.Time) *eodSummarizer {
	if dir == "" {
		dir = "logs"
	}
	return &eodSummarizer{ledger: ledger, dir: dir, now: now}
}
