package engine

import (
	"context"
	"fmt"
	"math"

	"order-executor/internal/logger"
	"order-executor/internal/sizing"
	"order-executor/internal/types"
)

// ModifySL moves the stop-loss to pct below the unchanged entry price and
// returns the new absolute price. An error wrapping ErrPersistence comes
// with a valid price: the change is live but not yet durable.
func (e *Engine) ModifySL(ctx context.Context, orderID string, pct float64) (float64, error) {
	if !(pct > 0 && pct < 100) {
		return 0, fmt.Errorf("%w: stop-loss percent must be in (0, 100), got %v", types.ErrValidation, pct)
	}
	return e.modifyThreshold(ctx, orderID, pct, "MODIFY_SL", func(t *types.Trade) float64 {
		sl, _ := sizing.ComputeThresholds(t.EntryPrice, pct, t.TargetPercent)
		t.StopLossPrice = sl
		t.StopLossPercent = pct
		return sl
	})
}

// ModifyTarget moves the target to pct above the unchanged entry price.
func (e *Engine) ModifyTarget(ctx context.Context, orderID string, pct float64) (float64, error) {
	if !(pct > 0 && pct <= 100) {
		return 0, fmt.Errorf("%w: target percent must be in (0, 100], got %v", types.ErrValidation, pct)
	}
	return e.modifyThreshold(ctx, orderID, pct, "MODIFY_TARGET", func(t *types.Trade) float64 {
		_, tg := sizing.ComputeThresholds(t.EntryPrice, t.StopLossPercent, pct)
		t.TargetPrice = tg
		t.TargetPercent = pct
		return tg
	})
}

func (e *Engine) modifyThreshold(ctx context.Context, orderID string, pct float64, event string, apply func(*types.Trade) float64) (float64, error) {
	e.mu.Lock()
	t, ok := e.trades[orderID]
	if !ok {
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", types.ErrTradeNotFound, orderID)
	}
	if !t.IsOpen() || t.ExitGuard {
		status := t.Status
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: %s is %s", types.ErrInvalidState, orderID, status)
	}
	price := apply(t)
	symbol := t.Symbol
	e.mu.Unlock()

	logger.Info(ctx, "Threshold modified", "order_id", orderID, "symbol", symbol, "event", event, "percent", pct, "price", price)
	e.record(ctx, types.JournalEvent{
		Event:   event,
		OrderID: orderID,
		Symbol:  symbol,
		Price:   price,
		Extra:   map[string]any{"percent": pct},
	})

	if err := e.persist(ctx); err != nil {
		return price, err
	}
	return price, nil
}

// ModifyLimitPrice amends a pending limit order. The broker is asked first;
// local state changes only after it accepts.
func (e *Engine) ModifyLimitPrice(ctx context.Context, orderID string, price float64) (types.Trade, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return types.Trade{}, fmt.Errorf("%w: limit price must be positive, got %v", types.ErrValidation, price)
	}

	e.mu.Lock()
	t, ok := e.trades[orderID]
	if !ok {
		e.mu.Unlock()
		return types.Trade{}, fmt.Errorf("%w: %s", types.ErrTradeNotFound, orderID)
	}
	if t.Status != types.StatusPending {
		status := t.Status
		e.mu.Unlock()
		return types.Trade{}, fmt.Errorf("%w: %s is %s, only pending orders can be amended", types.ErrInvalidState, orderID, status)
	}
	qty, slPct, tgPct := t.Quantity, t.StopLossPercent, t.TargetPercent
	e.mu.Unlock()

	sl, tg := sizing.ComputeThresholds(price, slPct, tgPct)
	if !(sl < price && price < tg) {
		return types.Trade{}, fmt.Errorf("%w: percentages too small for price %.2f", types.ErrValidation, price)
	}

	if err := e.gw.ModifyOrder(ctx, orderID, price, qty); err != nil {
		logger.ErrorWithErr(ctx, "Broker refused limit amendment", err, "order_id", orderID, "price", price)
		return types.Trade{}, fmt.Errorf("modify order %s: %w", orderID, err)
	}

	e.mu.Lock()
	t, ok = e.trades[orderID]
	if !ok {
		e.mu.Unlock()
		return types.Trade{}, fmt.Errorf("%w: %s", types.ErrTradeNotFound, orderID)
	}
	if t.Status != types.StatusPending {
		status := t.Status
		e.mu.Unlock()
		return types.Trade{}, fmt.Errorf("%w: %s became %s during amendment", types.ErrInvalidState, orderID, status)
	}
	lp := price
	t.LimitPrice = &lp
	t.EntryPrice = price
	t.StopLossPrice = sl
	t.TargetPrice = tg
	snap := t.Clone()
	e.mu.Unlock()

	logger.Info(ctx, "Limit price amended", "order_id", orderID, "symbol", snap.Symbol, "price", price, "stop_loss", sl, "target", tg)
	e.record(ctx, types.JournalEvent{
		Event:   "MODIFY_LIMIT",
		OrderID: orderID,
		Symbol:  snap.Symbol,
		Qty:     snap.Quantity,
		Price:   price,
		Extra:   map[string]any{"stop_loss": sl, "target": tg},
	})

	if err := e.persist(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

// CancelOrder withdraws a pending entry. No ledger exit is written since the
// order never filled.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	t, ok := e.trades[orderID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrTradeNotFound, orderID)
	}
	if t.Status != types.StatusPending {
		status := t.Status
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, only pending orders can be cancelled", types.ErrInvalidState, orderID, status)
	}
	e.mu.Unlock()

	if err := e.gw.CancelOrder(ctx, orderID); err != nil {
		logger.ErrorWithErr(ctx, "Broker refused cancellation", err, "order_id", orderID)
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	e.mu.Lock()
	var snap types.Trade
	removed := false
	if t, ok := e.trades[orderID]; ok && t.Status == types.StatusPending {
		snap, removed = e.removeLocked(orderID)
	}
	open := len(e.trades)
	e.mu.Unlock()

	// An order update may have removed it already.
	if !removed {
		return nil
	}
	e.subs.release(ctx, snap.Exchange, snap.InstrumentToken)

	logger.Info(ctx, "Pending order cancelled", "order_id", orderID, "symbol", snap.Symbol)
	e.metrics.SetOpenTrades(open)
	e.record(ctx, types.JournalEvent{
		Event:   "CANCEL",
		OrderID: orderID,
		Symbol:  snap.Symbol,
		Qty:     snap.Quantity,
		Reason:  string(types.ExitOrderCancelledByUser),
	})
	e.notify(ctx, types.NotifyCancelled, orderID, snap.Symbol,
		fmt.Sprintf("Order %s for %s cancelled.", orderID, snap.Symbol))

	return e.persist(ctx)
}
