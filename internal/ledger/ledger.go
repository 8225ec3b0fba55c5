package ledger

import (
	"order-executor/internal/sizing"
	"order-executor/internal/types"
)

// TotalPnL sums realised PnL across closed rows.
func TotalPnL(rows []types.LedgerRow) float64 {
	var total float64
	for _, r := range rows {
		if r.PnL != nil {
			total += *r.PnL
		}
	}
	return sizing.Round2(total)
}
