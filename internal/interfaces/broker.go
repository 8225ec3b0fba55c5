package interfaces

import (
	"context"

	"order-executor/internal/types"
)

// Gateway is the broker surface the engine trades through.
type Gateway interface {
	GetQuote(ctx context.Context, exchange string, token uint32) (float64, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
	CancelOrder(ctx context.Context, orderID string) error
	ModifyOrder(ctx context.Context, orderID string, price float64, qty int) error
	// GetOrder reports the latest known status of an order.
	GetOrder(ctx context.Context, orderID string) (types.OrderUpdate, error)
	Subscribe(ctx context.Context, exchange string, token uint32) error
	Unsubscribe(ctx context.Context, exchange string, token uint32) error
	SearchInstruments(ctx context.Context, exchange, query string) ([]types.Instrument, error)

	// Callbacks must be registered before Start.
	OnTick(fn func(types.Tick))
	OnOrderUpdate(fn func(types.OrderUpdate))

	Start(ctx context.Context) error
	Stop(ctx context.Context)
}
