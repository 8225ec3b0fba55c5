package zerodha

import (
	"context"
	"time"

	"order-executor/internal/logger"
	"order-executor/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
)

// setupEventHandlers configures all WebSocket event callbacks
func (tm *tickerManager) setupEventHandlers() {
	tm.ticker.OnConnect(tm.onConnect)
	tm.ticker.OnError(tm.onError)
	tm.ticker.OnClose(tm.onClose)
	tm.ticker.OnReconnect(tm.onReconnect)
	tm.ticker.OnNoReconnect(tm.onNoReconnect)
	tm.ticker.OnTick(tm.onTick)
	tm.ticker.OnOrderUpdate(tm.onOrderUpdate)
}

func (tm *tickerManager) onConnect() {
	ctx := context.Background()

	tm.mu.Lock()
	tm.connected = true
	n := len(tm.tokens)
	err := tm.resubscribeAll()
	tm.mu.Unlock()

	if err != nil {
		logger.ErrorWithErr(ctx, "Resubscribe after connect failed", err, "tokens", n)
		return
	}
	logger.Info(ctx, "WebSocket connected", "resubscribed", n)
}

func (tm *tickerManager) onError(err error) {
	logger.ErrorWithErr(context.Background(), "WebSocket error occurred", err)
}

func (tm *tickerManager) onClose(code int, reason string) {
	tm.mu.Lock()
	tm.connected = false
	tm.mu.Unlock()

	logger.Warn(context.Background(), "WebSocket connection closed",
		"code", code,
		"reason", reason,
	)
}

func (tm *tickerManager) onReconnect(attempt int, delay time.Duration) {
	logger.Info(context.Background(), "WebSocket reconnecting",
		"attempt", attempt,
		"delay", delay,
	)
}

func (tm *tickerManager) onNoReconnect(attempt int) {
	tm.mu.Lock()
	tm.connected = false
	n := len(tm.tokens)
	tm.mu.Unlock()

	// Open trades are no longer monitored from here on.
	logger.Error(context.Background(), "WebSocket reconnection failed - giving up",
		"attempts", attempt,
		"unmonitored_tokens", n,
	)
}

func (tm *tickerManager) onTick(tick models.Tick) {
	if tm.onTickFn == nil {
		return
	}
	tm.onTickFn(types.Tick{
		Symbol:    tm.mapper.getSymbol(tick.InstrumentToken),
		Token:     tick.InstrumentToken,
		LastPrice: tick.LastPrice,
	})
}

func (tm *tickerManager) onOrderUpdate(order kiteconnect.Order) {
	logger.Debug(context.Background(), "Order update received",
		"order_id", order.OrderID,
		"status", order.Status,
		"symbol", order.TradingSymbol,
	)
	if tm.onOrderFn == nil {
		return
	}
	tm.onOrderFn(types.OrderUpdate{
		OrderID:      order.OrderID,
		Status:       order.Status,
		AveragePrice: order.AveragePrice,
		Message:      order.StatusMessage,
	})
}
