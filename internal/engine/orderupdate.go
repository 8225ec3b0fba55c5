package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"order-executor/internal/logger"
	"order-executor/internal/sizing"
	"order-executor/internal/types"
)

// earlyUpdateTTL bounds how long an update for an unknown order is held
// waiting for its trade to be registered.
const earlyUpdateTTL = 15 * time.Minute

type earlyUpdate struct {
	u  types.OrderUpdate
	at time.Time
}

// updateOutcome is the result of applying an update to the table; its side
// effects run after e.mu is released.
type updateOutcome struct {
	status  string
	message string
	snap    types.Trade
	open    int
	filled  bool
	removed bool
}

// OnOrderUpdate applies broker-pushed order status. A completed limit entry
// becomes FILLED at the reported average price; a cancelled or rejected
// pending entry is removed. A rejection arriving for a market entry already
// treated as filled also removes it, since no position exists.
//
// An update for an order the table does not hold yet is kept and replayed
// when PlaceEntry or Recover registers the trade.
func (e *Engine) OnOrderUpdate(u types.OrderUpdate) {
	ctx := context.Background()

	e.mu.Lock()
	if _, ok := e.trades[u.OrderID]; !ok {
		e.stashLocked(u)
		e.mu.Unlock()
		logger.Debug(ctx, "Order update held for unregistered order", "order_id", u.OrderID, "status", u.Status)
		return
	}
	out := e.applyUpdateLocked(u)
	e.mu.Unlock()

	e.finishUpdate(ctx, out)
}

// stashLocked keeps u until its trade appears. Caller holds e.mu.
func (e *Engine) stashLocked(u types.OrderUpdate) {
	now := e.now()
	for id, eu := range e.early {
		if now.Sub(eu.at) > earlyUpdateTTL {
			delete(e.early, id)
		}
	}
	e.early[u.OrderID] = earlyUpdate{u: u, at: now}
}

// takeEarlyLocked applies a held update for orderID, if any.
// Caller holds e.mu.
func (e *Engine) takeEarlyLocked(orderID string) (updateOutcome, bool) {
	eu, ok := e.early[orderID]
	if !ok {
		return updateOutcome{}, false
	}
	delete(e.early, orderID)
	if _, ok := e.trades[orderID]; !ok {
		return updateOutcome{}, false
	}
	return e.applyUpdateLocked(eu.u), true
}

// applyUpdateLocked mutates the table for u. Caller holds e.mu and has
// checked the trade exists.
func (e *Engine) applyUpdateLocked(u types.OrderUpdate) updateOutcome {
	out := updateOutcome{status: strings.ToUpper(u.Status), message: u.Message}
	t := e.trades[u.OrderID]

	switch out.status {
	case types.OrderStatusComplete:
		if t.Status != types.StatusPending {
			break
		}
		if u.AveragePrice > 0 {
			t.EntryPrice = u.AveragePrice
		}
		t.StopLossPrice, t.TargetPrice = sizing.ComputeThresholds(t.EntryPrice, t.StopLossPercent, t.TargetPercent)
		t.Status = types.StatusFilled
		out.snap = t.Clone()
		out.filled = true
	case types.OrderStatusCancelled, types.OrderStatusRejected:
		pending := t.Status == types.StatusPending
		unexitedFill := out.status == types.OrderStatusRejected && t.Status == types.StatusFilled && !t.ExitGuard
		if pending || unexitedFill {
			out.snap, out.removed = e.removeLocked(u.OrderID)
		}
	}
	out.open = len(e.trades)
	return out
}

func (e *Engine) finishUpdate(ctx context.Context, out updateOutcome) {
	switch {
	case out.filled:
		snap := out.snap
		logger.Info(ctx, "Limit order filled",
			"order_id", snap.OrderID,
			"symbol", snap.Symbol,
			"entry_price", snap.EntryPrice,
			"stop_loss", snap.StopLossPrice,
			"target", snap.TargetPrice)
		_ = e.persist(ctx)
		e.record(ctx, types.JournalEvent{
			Event:   "FILL",
			OrderID: snap.OrderID,
			Symbol:  snap.Symbol,
			Side:    types.SideBuy,
			Qty:     snap.Quantity,
			Price:   snap.EntryPrice,
		})
		e.notify(ctx, types.NotifyFill, snap.OrderID, snap.Symbol,
			fmt.Sprintf("%s filled: %d @ %.2f\nSL: %.2f | Target: %.2f",
				snap.Symbol, snap.Quantity, snap.EntryPrice, snap.StopLossPrice, snap.TargetPrice))

	case out.removed:
		snap := out.snap
		e.subs.release(ctx, snap.Exchange, snap.InstrumentToken)
		logger.Warn(ctx, "Entry order closed by broker",
			"order_id", snap.OrderID,
			"symbol", snap.Symbol,
			"status", out.status,
			"message", out.message)
		_ = e.persist(ctx)
		e.metrics.SetOpenTrades(out.open)

		kind := types.NotifyCancelled
		if out.status == types.OrderStatusRejected {
			kind = types.NotifyRejected
		}
		e.record(ctx, types.JournalEvent{
			Event:   out.status,
			OrderID: snap.OrderID,
			Symbol:  snap.Symbol,
			Qty:     snap.Quantity,
			Reason:  out.message,
		})
		text := fmt.Sprintf("Order %s for %s was %s by the broker.", snap.OrderID, snap.Symbol, strings.ToLower(out.status))
		if out.message != "" {
			text += " " + out.message
		}
		e.notify(ctx, kind, snap.OrderID, snap.Symbol, text)
	}
}

// reconcilePending asks the broker for the current status of every PENDING
// trade and applies any terminal status the process missed while down.
func (e *Engine) reconcilePending(ctx context.Context) {
	e.mu.Lock()
	var ids []string
	for id, t := range e.trades {
		if t.Status == types.StatusPending {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()

	for _, id := range ids {
		u, err := e.gw.GetOrder(ctx, id)
		if err != nil {
			logger.Warn(ctx, "Pending order status unavailable, waiting for updates", "order_id", id, "error", err)
			continue
		}
		u.OrderID = id
		switch strings.ToUpper(u.Status) {
		case types.OrderStatusComplete, types.OrderStatusCancelled, types.OrderStatusRejected:
		default:
			continue
		}

		e.mu.Lock()
		if _, ok := e.trades[id]; !ok {
			e.mu.Unlock()
			continue
		}
		out := e.applyUpdateLocked(u)
		e.mu.Unlock()
		e.finishUpdate(ctx, out)
	}
}
