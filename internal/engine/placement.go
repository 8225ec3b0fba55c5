package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"order-executor/internal/logger"
	"order-executor/internal/sizing"
	"order-executor/internal/types"
)

// PlaceEntry sizes and submits a BUY entry. A market order is registered as
// FILLED at the quoted price, a limit order as PENDING at its limit price.
// A successful placement appends one ledger row and writes one snapshot;
// any failure before broker acceptance leaves no trace.
func (e *Engine) PlaceEntry(ctx context.Context, req types.EntryRequest) (types.Confirmation, error) {
	req.Symbol = strings.TrimSpace(req.Symbol)
	req.Exchange = strings.ToUpper(strings.TrimSpace(req.Exchange))
	if req.Kind == "" {
		req.Kind = types.OrderKindMarket
	}
	if err := validateEntry(req); err != nil {
		return types.Confirmation{}, err
	}

	if err := e.subs.acquire(ctx, req.Exchange, req.Token); err != nil {
		logger.ErrorWithErr(ctx, "Subscription failed", err, "symbol", req.Symbol, "exchange", req.Exchange, "token", req.Token)
		return types.Confirmation{}, fmt.Errorf("%w: %s:%d: %v", types.ErrSubscription, req.Exchange, req.Token, err)
	}
	registered := false
	defer func() {
		if !registered {
			e.subs.release(ctx, req.Exchange, req.Token)
		}
	}()

	quote, err := e.gw.GetQuote(ctx, req.Exchange, req.Token)
	if err != nil {
		return types.Confirmation{}, fmt.Errorf("%w: %s: %v", types.ErrQuoteUnavailable, req.Symbol, err)
	}
	if !(quote > 0) || math.IsInf(quote, 0) {
		return types.Confirmation{}, fmt.Errorf("%w: %s: got %v", types.ErrQuoteUnavailable, req.Symbol, quote)
	}
	e.ltp.set(req.Token, quote)

	entry := quote
	if req.Kind == types.OrderKindLimit {
		entry = *req.LimitPrice
	}

	qty := sizing.ComputeQuantity(req.Capital, entry)
	if qty <= 0 {
		return types.Confirmation{}, fmt.Errorf("%w: capital %.2f at price %.2f", types.ErrQuantityTooSmall, req.Capital, entry)
	}

	sl, tg := sizing.ComputeThresholds(entry, req.StopLossPercent, req.TargetPercent)
	if !(sl < entry && entry < tg) {
		return types.Confirmation{}, fmt.Errorf("%w: percentages too small for price %.2f (sl %.2f, target %.2f)",
			types.ErrValidation, entry, sl, tg)
	}

	orderReq := types.OrderReq{
		Side:     types.SideBuy,
		Exchange: req.Exchange,
		Symbol:   req.Symbol,
		Qty:      qty,
		Kind:     req.Kind,
		Tag:      "ENTRY",
	}
	if req.Kind == types.OrderKindLimit {
		orderReq.Price = entry
	}

	resp, err := e.gw.PlaceOrder(ctx, orderReq)
	if err == nil && resp.OrderID == "" {
		err = fmt.Errorf("broker returned no order id (status %q)", resp.Status)
	}
	if err != nil {
		rej := classifyRejection(err.Error(), e.now())
		e.metrics.EntryRejected(string(rej.Category))
		logger.Warn(ctx, "Entry order rejected",
			"symbol", req.Symbol,
			"category", rej.Category,
			"message", rej.Message)
		return types.Confirmation{}, rej
	}

	trade := &types.Trade{
		OrderID:         resp.OrderID,
		Symbol:          req.Symbol,
		Exchange:        req.Exchange,
		InstrumentToken: req.Token,
		Quantity:        qty,
		EntryPrice:      entry,
		StopLossPrice:   sl,
		TargetPrice:     tg,
		StopLossPercent: req.StopLossPercent,
		TargetPercent:   req.TargetPercent,
		OrderKind:       req.Kind,
		Status:          types.StatusFilled,
		EntryTime:       e.now(),
	}
	if req.Kind == types.OrderKindLimit {
		lp := entry
		trade.LimitPrice = &lp
		trade.Status = types.StatusPending
	}

	ref, err := e.ledger.AppendEntry(ctx, types.LedgerEntry{
		Symbol:     trade.Symbol,
		EntryPrice: trade.EntryPrice,
		EntryTime:  trade.EntryTime,
	})
	if err != nil {
		// The broker already holds the order, so the trade is tracked anyway.
		logger.ErrorWithErr(ctx, "Ledger append failed", err, "order_id", trade.OrderID, "symbol", trade.Symbol)
	}
	trade.LedgerRowRef = ref

	e.mu.Lock()
	e.trades[trade.OrderID] = trade
	snap := trade.Clone()
	// the broker may have reported on the order before PlaceOrder returned
	early, replay := e.takeEarlyLocked(trade.OrderID)
	open := len(e.trades)
	e.mu.Unlock()
	registered = true

	logger.Trade(ctx, snap.Symbol, string(types.SideBuy), snap.Quantity, snap.EntryPrice, snap.OrderID,
		"kind", snap.OrderKind,
		"status", snap.Status,
		"stop_loss", snap.StopLossPrice,
		"target", snap.TargetPrice)

	conf := types.Confirmation{
		OrderID: snap.OrderID,
		Trade:   snap,
		Message: confirmationText(snap),
	}
	if err := e.persist(ctx); err != nil {
		conf.PersistWarning = err.Error()
	}

	e.metrics.EntryPlaced(string(snap.OrderKind))
	e.metrics.SetOpenTrades(open)
	e.record(ctx, types.JournalEvent{
		Event:   "ENTRY",
		OrderID: snap.OrderID,
		Symbol:  snap.Symbol,
		Side:    types.SideBuy,
		Qty:     snap.Quantity,
		Price:   snap.EntryPrice,
		Extra: map[string]any{
			"kind":      snap.OrderKind,
			"status":    snap.Status,
			"stop_loss": snap.StopLossPrice,
			"target":    snap.TargetPrice,
		},
	})
	e.notify(ctx, types.NotifyEntry, snap.OrderID, snap.Symbol, conf.Message)

	if replay {
		e.finishUpdate(ctx, early)
		if early.filled {
			conf.Trade = early.snap
		}
	}
	return conf, nil
}

func validateEntry(req types.EntryRequest) error {
	switch {
	case req.Symbol == "":
		return fmt.Errorf("%w: symbol is required", types.ErrValidation)
	case req.Exchange == "":
		return fmt.Errorf("%w: exchange is required", types.ErrValidation)
	case req.Token == 0:
		return fmt.Errorf("%w: instrument token is required", types.ErrValidation)
	case !(req.Capital > 0) || math.IsInf(req.Capital, 0):
		return fmt.Errorf("%w: capital must be positive, got %v", types.ErrValidation, req.Capital)
	case !(req.StopLossPercent > 0 && req.StopLossPercent < 100):
		return fmt.Errorf("%w: stop-loss percent must be in (0, 100), got %v", types.ErrValidation, req.StopLossPercent)
	case !(req.TargetPercent > 0 && req.TargetPercent <= 100):
		return fmt.Errorf("%w: target percent must be in (0, 100], got %v", types.ErrValidation, req.TargetPercent)
	}

	switch req.Kind {
	case types.OrderKindMarket:
	case types.OrderKindLimit:
		if req.LimitPrice == nil || !(*req.LimitPrice > 0) || math.IsInf(*req.LimitPrice, 0) {
			return fmt.Errorf("%w: limit order needs a positive limit price", types.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown order kind %q", types.ErrValidation, req.Kind)
	}
	return nil
}
