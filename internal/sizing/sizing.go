// Package sizing holds the pure position arithmetic: share quantity from
// capital, stop-loss and target thresholds, realised PnL and percent parsing.
// Money values are rounded half away from zero to two places.
package sizing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"order-executor/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// ComputeQuantity returns floor(capital/price), or 0 when either input is not
// positive.
func ComputeQuantity(capital, price float64) int {
	if capital <= 0 || price <= 0 {
		return 0
	}
	q := decimal.NewFromFloat(capital).Div(decimal.NewFromFloat(price)).Floor()
	return int(q.IntPart())
}

// ComputeThresholds derives the stop-loss and target prices for a long
// position entered at entry.
func ComputeThresholds(entry, slPct, targetPct float64) (stopLoss, target float64) {
	e := decimal.NewFromFloat(entry)
	one := decimal.NewFromInt(1)

	sl := e.Mul(one.Sub(decimal.NewFromFloat(slPct).Div(hundred))).Round(2)
	tg := e.Mul(one.Add(decimal.NewFromFloat(targetPct).Div(hundred))).Round(2)

	stopLoss, _ = sl.Float64()
	target, _ = tg.Float64()
	return stopLoss, target
}

// ComputePnL returns the absolute and percent profit of selling qty shares at
// exit after buying at entry.
func ComputePnL(entry, exit float64, qty int) (pnl, pnlPct float64) {
	e := decimal.NewFromFloat(entry)
	diff := decimal.NewFromFloat(exit).Sub(e)

	pnl, _ = diff.Mul(decimal.NewFromInt(int64(qty))).Round(2).Float64()
	if e.IsZero() {
		return pnl, 0
	}
	pnlPct, _ = diff.Div(e).Mul(hundred).Round(2).Float64()
	return pnl, pnlPct
}

// ParsePercent accepts "1.5", "1.5%" or " 2 % " and returns the number.
// Values outside [0, 100] are rejected.
func ParsePercent(s string) (float64, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSpace(strings.TrimSuffix(v, "%"))
	if v == "" {
		return 0, fmt.Errorf("%w: empty percentage", types.ErrValidation)
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", types.ErrValidation, s)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: percentage cannot be negative, got %v", types.ErrValidation, f)
	}
	if f > 100 {
		return 0, fmt.Errorf("%w: percentage cannot exceed 100, got %v", types.ErrValidation, f)
	}
	return f, nil
}

// FormatProjection renders the loss at stop-loss and profit at target for a
// freshly placed position.
func FormatProjection(entry, stopLoss, target float64, qty int) string {
	slLoss, slPct := ComputePnL(entry, stopLoss, qty)
	tgProfit, tgPct := ComputePnL(entry, target, qty)
	return fmt.Sprintf("Loss on SL: %.2f (%.2f%%)\nProfit on target: %.2f (%.2f%%)",
		slLoss, slPct, tgProfit, tgPct)
}
