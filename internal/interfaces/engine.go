package interfaces

import (
	"context"

	"order-executor/internal/types"
)

// Engine is the command surface exposed to the operator.
type Engine interface {
	PlaceEntry(ctx context.Context, req types.EntryRequest) (types.Confirmation, error)
	ModifySL(ctx context.Context, orderID string, pct float64) (float64, error)
	ModifyTarget(ctx context.Context, orderID string, pct float64) (float64, error)
	ModifyLimitPrice(ctx context.Context, orderID string, price float64) (types.Trade, error)
	CancelOrder(ctx context.Context, orderID string) error
	ManualExit(ctx context.Context, orderID string) (types.ExitResult, error)
	ListOpenTrades(ctx context.Context) []types.TradeSummary
	GetStatistics(ctx context.Context) (types.Statistics, error)
}
