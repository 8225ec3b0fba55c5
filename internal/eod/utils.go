package eod

import (
	"path/filepath"
	"time"

	"order-executor/internal/market"
)

func eodCSVPath(dir string, t time.Time) string {
	return filepath.Join(dir, "eod", market.Day(t)+".csv")
}

// summaryCutoff is 15:40 IST, ten minutes after the session closes.
func summaryCutoff(t time.Time) time.Time {
	t = t.In(market.IST)
	return time.Date(t.Year(), t.Month(), t.Day(), 15, 40, 0, 0, market.IST)
}
