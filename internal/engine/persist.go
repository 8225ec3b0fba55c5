package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"order-executor/internal/logger"
	"order-executor/internal/types"

	"github.com/cenkalti/backoff/v4"
)

// persist writes the whole trade table to the snapshot store.
//
// Retry policy: up to SnapshotRetryAttempts tries with exponential backoff
// starting at SnapshotRetryInitial. If every attempt fails the in-memory
// transition still stands; the failure is logged at WARN, counted, and
// returned wrapped in ErrPersistence so callers can surface it as a
// durability warning rather than an operation failure.
//
// Must not be called with e.mu held.
func (e *Engine) persist(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	trades := e.tableCopy()
	start := time.Now()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.cfg.SnapshotRetryInitial
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(e.cfg.SnapshotRetryAttempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return e.store.Save(ctx, trades)
	}, policy)

	e.metrics.SnapshotWritten(time.Since(start), err == nil)
	if err != nil {
		logger.Warn(ctx, "Snapshot write failed, state is not durable",
			"event", "SNAPSHOT_WRITE_FAILED",
			"attempts", attempts,
			"trades", len(trades),
			"error", err)
		return fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}

	logger.Debug(ctx, "Snapshot written", "trades", len(trades), "attempts", attempts)
	return nil
}

func (e *Engine) tableCopy() []types.Trade {
	e.mu.Lock()
	out := make([]types.Trade, 0, len(e.trades))
	for _, t := range e.trades {
		out = append(out, t.Clone())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}
