package interfaces

import (
	"context"

	"order-executor/internal/types"
)

// Notifier delivers operator messages. Notify never blocks on delivery.
type Notifier interface {
	Notify(ctx context.Context, n types.Notification)
}
