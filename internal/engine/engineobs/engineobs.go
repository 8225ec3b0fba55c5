package engineobs

import (
	"context"
	"errors"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
	"order-executor/internal/trace"
	"order-executor/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

// Wrap adds spans and command logging around the operator surface.
func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

// logFailure reports a command error. A missing trade is an expected race
// with automatic exits, so it is logged at info.
func logFailure(ctx context.Context, msg string, err error, start time.Time, args ...any) {
	args = append(args, "duration_ms", time.Since(start).Milliseconds())
	if errors.Is(err, types.ErrTradeNotFound) {
		logger.InfoSkip(ctx, 2, msg, append(args, "error", err)...)
		return
	}
	logger.ErrorWithErrSkip(ctx, 2, msg, err, args...)
}

func (oe *observableEngine) PlaceEntry(ctx context.Context, req types.EntryRequest) (types.Confirmation, error) {
	ctx, span := trace.StartSpan(ctx, "engine.PlaceEntry")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Placing entry",
		"symbol", req.Symbol,
		"exchange", req.Exchange,
		"kind", req.Kind,
		"capital", req.Capital,
		"sl_pct", req.StopLossPercent,
		"target_pct", req.TargetPercent,
	)

	conf, err := oe.engine.PlaceEntry(ctx, req)
	if err != nil {
		logFailure(ctx, "Entry failed", err, start, "symbol", req.Symbol)
		return conf, err
	}

	logger.InfoSkip(ctx, 1, "Entry placed",
		"symbol", req.Symbol,
		"order_id", conf.OrderID,
		"status", conf.Trade.Status,
		"qty", conf.Trade.Quantity,
		"persisted", conf.PersistWarning == "",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return conf, nil
}

func (oe *observableEngine) ModifySL(ctx context.Context, orderID string, pct float64) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "engine.ModifySL")
	defer span.End()

	start := time.Now()
	price, err := oe.engine.ModifySL(ctx, orderID, pct)
	if err != nil {
		logFailure(ctx, "Stop-loss modification failed", err, start, "order_id", orderID, "pct", pct)
		return price, err
	}
	logger.InfoSkip(ctx, 1, "Stop-loss modified", "order_id", orderID, "pct", pct, "price", price)
	return price, nil
}

func (oe *observableEngine) ModifyTarget(ctx context.Context, orderID string, pct float64) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "engine.ModifyTarget")
	defer span.End()

	start := time.Now()
	price, err := oe.engine.ModifyTarget(ctx, orderID, pct)
	if err != nil {
		logFailure(ctx, "Target modification failed", err, start, "order_id", orderID, "pct", pct)
		return price, err
	}
	logger.InfoSkip(ctx, 1, "Target modified", "order_id", orderID, "pct", pct, "price", price)
	return price, nil
}

func (oe *observableEngine) ModifyLimitPrice(ctx context.Context, orderID string, price float64) (types.Trade, error) {
	ctx, span := trace.StartSpan(ctx, "engine.ModifyLimitPrice")
	defer span.End()

	start := time.Now()
	t, err := oe.engine.ModifyLimitPrice(ctx, orderID, price)
	if err != nil {
		logFailure(ctx, "Limit amendment failed", err, start, "order_id", orderID, "price", price)
		return t, err
	}
	logger.InfoSkip(ctx, 1, "Limit amended", "order_id", orderID, "price", price,
		"stop_loss", t.StopLossPrice, "target", t.TargetPrice)
	return t, nil
}

func (oe *observableEngine) CancelOrder(ctx context.Context, orderID string) error {
	ctx, span := trace.StartSpan(ctx, "engine.CancelOrder")
	defer span.End()

	start := time.Now()
	if err := oe.engine.CancelOrder(ctx, orderID); err != nil {
		logFailure(ctx, "Cancel failed", err, start, "order_id", orderID)
		return err
	}
	logger.InfoSkip(ctx, 1, "Order cancelled", "order_id", orderID)
	return nil
}

func (oe *observableEngine) ManualExit(ctx context.Context, orderID string) (types.ExitResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.ManualExit")
	defer span.End()

	start := time.Now()
	res, err := oe.engine.ManualExit(ctx, orderID)
	if err != nil {
		logFailure(ctx, "Manual exit failed", err, start, "order_id", orderID)
		return res, err
	}
	logger.InfoSkip(ctx, 1, "Manual exit completed",
		"order_id", orderID,
		"exit_order_id", res.ExitOrderID,
		"exit_price", res.ExitPrice,
		"pnl", res.PnL,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (oe *observableEngine) ListOpenTrades(ctx context.Context) []types.TradeSummary {
	ctx, span := trace.StartSpan(ctx, "engine.ListOpenTrades")
	defer span.End()

	out := oe.engine.ListOpenTrades(ctx)
	logger.DebugSkip(ctx, 1, "Listed open trades", "count", len(out))
	return out
}

func (oe *observableEngine) GetStatistics(ctx context.Context) (types.Statistics, error) {
	ctx, span := trace.StartSpan(ctx, "engine.GetStatistics")
	defer span.End()

	stats, err := oe.engine.GetStatistics(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Statistics failed", err)
		return stats, err
	}
	logger.DebugSkip(ctx, 1, "Statistics computed",
		"total_pnl", stats.TotalPnL,
		"open", stats.OpenCount,
		"total", stats.TotalCount,
	)
	return stats, nil
}
