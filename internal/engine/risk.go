package engine

import (
	"context"
	"fmt"
	"math"

	"order-executor/internal/logger"
	"order-executor/internal/sizing"
	"order-executor/internal/types"
)

type exitTrigger struct {
	orderID string
	symbol  string
	price   float64
	reason  types.ExitReason
}

// evaluate checks stop-loss before target, so a tick that satisfies both
// exits on the stop-loss.
func evaluate(t *types.Trade, price float64) types.ExitReason {
	switch {
	case price <= t.StopLossPrice:
		return types.ExitStopLoss
	case price >= t.TargetPrice:
		return types.ExitTarget
	}
	return ""
}

// OnTick evaluates one price update. Triggered trades are guarded under the
// table lock and their exits run on separate goroutines, so a slow broker
// never holds up the next tick.
func (e *Engine) OnTick(tick types.Tick) {
	if !(tick.LastPrice > 0) || math.IsInf(tick.LastPrice, 0) {
		return
	}
	e.ltp.set(tick.Token, tick.LastPrice)
	if !e.ready.Load() {
		return
	}
	e.metrics.TickProcessed()

	var fired []exitTrigger
	e.mu.Lock()
	for _, t := range e.trades {
		if t.InstrumentToken != tick.Token || t.Status != types.StatusFilled || t.ExitGuard {
			continue
		}
		reason := evaluate(t, tick.LastPrice)
		if reason == "" {
			continue
		}
		t.ExitGuard = true
		t.Status = types.StatusExiting
		fired = append(fired, exitTrigger{orderID: t.OrderID, symbol: t.Symbol, price: tick.LastPrice, reason: reason})
	}
	e.mu.Unlock()

	for _, f := range fired {
		e.dispatchExit(f)
	}
}

func (e *Engine) dispatchExit(f exitTrigger) {
	e.metrics.ExitTriggered(string(f.reason))
	e.exits.Add(1)
	go func() {
		defer e.exits.Done()
		op := logger.StartOperation(context.Background(), "engine.auto_exit",
			"order_id", f.orderID, "symbol", f.symbol, "reason", string(f.reason))
		ctx := op.GetContext()

		logger.Risk(ctx, f.symbol, string(f.reason), "order_id", f.orderID, "price", f.price)

		// The guard must be durable before the broker sees the sell.
		_ = e.persist(ctx)
		res, err := e.exitTrade(ctx, f.orderID, f.price, f.reason)
		if err != nil {
			op.EndWithError(err)
			return
		}
		op.End("exit_order_id", res.ExitOrderID, "pnl", res.PnL)
	}()
}

// exitTrade sells the full quantity of a trade already marked EXITING.
// A failed sell parks the trade in EXIT_FAILED and is never retried here.
func (e *Engine) exitTrade(ctx context.Context, orderID string, price float64, reason types.ExitReason) (types.ExitResult, error) {
	e.mu.Lock()
	t, ok := e.trades[orderID]
	if !ok {
		e.mu.Unlock()
		return types.ExitResult{}, fmt.Errorf("%w: %s", types.ErrTradeNotFound, orderID)
	}
	if t.Status != types.StatusExiting {
		status := t.Status
		e.mu.Unlock()
		return types.ExitResult{}, fmt.Errorf("%w: %s is %s", types.ErrInvalidState, orderID, status)
	}
	snap := t.Clone()
	e.mu.Unlock()

	resp, err := e.gw.PlaceOrder(ctx, types.OrderReq{
		Side:     types.SideSell,
		Exchange: snap.Exchange,
		Symbol:   snap.Symbol,
		Qty:      snap.Quantity,
		Kind:     types.OrderKindMarket,
		Tag:      string(reason),
	})
	if err == nil && resp.OrderID == "" {
		err = fmt.Errorf("broker returned no order id (status %q)", resp.Status)
	}
	if err != nil {
		return types.ExitResult{}, e.failExit(ctx, snap, reason, err)
	}

	pnl, pnlPct := sizing.ComputePnL(snap.EntryPrice, price, snap.Quantity)
	result := types.ExitResult{
		OrderID:     snap.OrderID,
		ExitOrderID: resp.OrderID,
		Symbol:      snap.Symbol,
		Reason:      reason,
		ExitPrice:   price,
		PnL:         pnl,
		PnLPercent:  pnlPct,
	}
	logger.Trade(ctx, snap.Symbol, string(types.SideSell), snap.Quantity, price, resp.OrderID,
		"entry_order_id", snap.OrderID,
		"reason", reason,
		"pnl", pnl,
		"pnl_pct", pnlPct)

	exitTime := e.now()
	if snap.LedgerRowRef != "" {
		if err := e.ledger.UpdateExit(ctx, snap.LedgerRowRef, types.LedgerExit{ExitPrice: price, ExitTime: exitTime, PnL: pnl}); err != nil {
			logger.ErrorWithErr(ctx, "Ledger exit update failed", err, "order_id", snap.OrderID, "ref", snap.LedgerRowRef)
		}
	} else {
		logger.Warn(ctx, "Trade has no ledger row, exit not booked", "order_id", snap.OrderID)
	}

	e.mu.Lock()
	_, removed := e.removeLocked(orderID)
	open := len(e.trades)
	e.mu.Unlock()
	if removed {
		e.subs.release(ctx, snap.Exchange, snap.InstrumentToken)
	}

	_ = e.persist(ctx)

	e.metrics.ExitFinished(string(reason), true)
	e.metrics.SetOpenTrades(open)
	e.record(ctx, types.JournalEvent{
		Event:   "EXIT",
		OrderID: snap.OrderID,
		Symbol:  snap.Symbol,
		Side:    types.SideSell,
		Qty:     snap.Quantity,
		Price:   price,
		Reason:  string(reason),
		Extra:   map[string]any{"exit_order_id": resp.OrderID, "pnl": pnl, "pnl_pct": pnlPct},
	})
	e.notify(ctx, types.NotifyExit, snap.OrderID, snap.Symbol, exitText(snap, result))

	return result, nil
}

func (e *Engine) failExit(ctx context.Context, snap types.Trade, reason types.ExitReason, cause error) error {
	e.mu.Lock()
	if t, ok := e.trades[snap.OrderID]; ok {
		t.Status = types.StatusExitFailed
		t.FailureReason = cause.Error()
	}
	e.mu.Unlock()

	logger.Risk(ctx, snap.Symbol, "EXIT_FAILED", "order_id", snap.OrderID, "reason", reason, "error", cause.Error())
	_ = e.persist(ctx)

	e.metrics.ExitFinished(string(reason), false)
	e.record(ctx, types.JournalEvent{
		Event:   "EXIT_FAILED",
		OrderID: snap.OrderID,
		Symbol:  snap.Symbol,
		Side:    types.SideSell,
		Qty:     snap.Quantity,
		Reason:  string(reason),
		Extra:   map[string]any{"error": cause.Error()},
	})
	e.notify(ctx, types.NotifyExitFailed, snap.OrderID, snap.Symbol, exitFailedText(snap, reason, cause))

	return fmt.Errorf("%w: %s: %v", types.ErrExitOrderFailed, snap.OrderID, cause)
}

// ManualExit sells an open position at the current quote, falling back to
// the last tick. It is also the retry path for EXIT_FAILED trades.
func (e *Engine) ManualExit(ctx context.Context, orderID string) (types.ExitResult, error) {
	e.mu.Lock()
	t, ok := e.trades[orderID]
	if !ok {
		e.mu.Unlock()
		return types.ExitResult{}, fmt.Errorf("%w: %s", types.ErrTradeNotFound, orderID)
	}
	if err := manualExitAllowed(t); err != nil {
		e.mu.Unlock()
		return types.ExitResult{}, err
	}
	exchange, token, symbol := t.Exchange, t.InstrumentToken, t.Symbol
	e.mu.Unlock()

	price, err := e.gw.GetQuote(ctx, exchange, token)
	if err != nil || !(price > 0) {
		cached, ok := e.ltp.get(token)
		if !ok {
			return types.ExitResult{}, fmt.Errorf("%w: %s", types.ErrQuoteUnavailable, symbol)
		}
		logger.Warn(ctx, "Quote unavailable, using last traded price", "symbol", symbol, "price", cached, "error", err)
		price = cached
	}

	e.mu.Lock()
	t, ok = e.trades[orderID]
	if !ok {
		e.mu.Unlock()
		return types.ExitResult{}, fmt.Errorf("%w: %s", types.ErrTradeNotFound, orderID)
	}
	if err := manualExitAllowed(t); err != nil {
		e.mu.Unlock()
		return types.ExitResult{}, err
	}
	t.ExitGuard = true
	t.Status = types.StatusExiting
	e.mu.Unlock()

	e.metrics.ExitTriggered(string(types.ExitManual))
	_ = e.persist(ctx)

	// Once the sell is sent it must finish even if the caller goes away.
	return e.exitTrade(context.WithoutCancel(ctx), orderID, price, types.ExitManual)
}

func manualExitAllowed(t *types.Trade) error {
	switch {
	case t.Status == types.StatusExitFailed:
		return nil
	case t.Status == types.StatusFilled && !t.ExitGuard:
		return nil
	case t.Status == types.StatusPending:
		return fmt.Errorf("%w: %s is not filled yet, cancel it instead", types.ErrInvalidState, t.OrderID)
	}
	return fmt.Errorf("%w: %s is %s", types.ErrInvalidState, t.OrderID, t.Status)
}
