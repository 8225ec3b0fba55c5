package engine

import (
	"fmt"
	"strings"

	"order-executor/internal/sizing"
	"order-executor/internal/types"
)

func confirmationText(t types.Trade) string {
	var b strings.Builder
	switch t.OrderKind {
	case types.OrderKindLimit:
		fmt.Fprintf(&b, "LIMIT BUY %d %s (%s) @ %.2f placed, waiting for fill\n", t.Quantity, t.Symbol, t.Exchange, t.EntryPrice)
	default:
		fmt.Fprintf(&b, "MARKET BUY %d %s (%s) @ %.2f\n", t.Quantity, t.Symbol, t.Exchange, t.EntryPrice)
	}
	fmt.Fprintf(&b, "Order: %s\n", t.OrderID)
	fmt.Fprintf(&b, "SL: %.2f (%.2f%%) | Target: %.2f (%.2f%%)\n", t.StopLossPrice, t.StopLossPercent, t.TargetPrice, t.TargetPercent)
	b.WriteString(sizing.FormatProjection(t.EntryPrice, t.StopLossPrice, t.TargetPrice, t.Quantity))
	return b.String()
}

func exitText(t types.Trade, r types.ExitResult) string {
	var head string
	switch r.Reason {
	case types.ExitStopLoss:
		head = "Stop-loss hit"
	case types.ExitTarget:
		head = "Target hit"
	default:
		head = "Position exited"
	}
	return fmt.Sprintf("%s for %s: sold %d @ %.2f (entry %.2f)\nPnL: %.2f (%.2f%%)",
		head, t.Symbol, t.Quantity, r.ExitPrice, t.EntryPrice, r.PnL, r.PnLPercent)
}

func exitFailedText(t types.Trade, reason types.ExitReason, err error) string {
	return fmt.Sprintf("EXIT FAILED for %s (%s, %s): %v\nPosition of %d is still open. Retry with manual exit or close it at the broker.",
		t.Symbol, t.OrderID, reason, err, t.Quantity)
}
