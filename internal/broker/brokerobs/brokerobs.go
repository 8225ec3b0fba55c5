package brokerobs

import (
	"context"
	"fmt"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
	"order-executor/internal/metrics"
	"order-executor/internal/trace"
	"order-executor/internal/types"
)

// observableGateway wraps a Gateway with logging, tracing and broker call
// latency metrics.
type observableGateway struct {
	gw      interfaces.Gateway
	metrics *metrics.Metrics
}

var _ interfaces.Gateway = (*observableGateway)(nil)

// Wrap wraps a gateway with observability middleware. m may be nil.
func Wrap(gw interfaces.Gateway, m *metrics.Metrics) interfaces.Gateway {
	return &observableGateway{
		gw:      gw,
		metrics: m,
	}
}

func (og *observableGateway) observe(op string, start time.Time, err error) {
	if og.metrics != nil {
		og.metrics.BrokerCall(op, time.Since(start), err)
	}
}

func (og *observableGateway) GetQuote(ctx context.Context, exchange string, token uint32) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetQuote")
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Fetching quote", "exchange", exchange, "token", token)

	price, err := og.gw.GetQuote(ctx, exchange, token)
	og.observe("quote", start, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch quote", err, "exchange", exchange, "token", token)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Quote fetched", "token", token, "price", price)
	return price, nil
}

func (og *observableGateway) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"kind", req.Kind,
		"qty", req.Qty,
		"price", req.Price,
		"tag", req.Tag,
	)

	resp, err := og.gw.PlaceOrder(ctx, req)
	og.observe("place", start, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"symbol", req.Symbol,
		"order_id", resp.OrderID,
		"status", resp.Status,
	)
	return resp, nil
}

func (og *observableGateway) CancelOrder(ctx context.Context, orderID string) error {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()

	start := time.Now()
	err := og.gw.CancelOrder(ctx, orderID)
	og.observe("cancel", start, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", orderID)
		return err
	}
	logger.InfoSkip(ctx, 1, "Order cancelled at broker", "order_id", orderID)
	return nil
}

func (og *observableGateway) ModifyOrder(ctx context.Context, orderID string, price float64, qty int) error {
	ctx, span := trace.StartSpan(ctx, "broker.ModifyOrder")
	defer span.End()

	start := time.Now()
	err := og.gw.ModifyOrder(ctx, orderID, price, qty)
	og.observe("modify", start, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to modify order", err, "order_id", orderID, "price", price, "qty", qty)
		return err
	}
	logger.InfoSkip(ctx, 1, "Order modified at broker", "order_id", orderID, "price", price, "qty", qty)
	return nil
}

func (og *observableGateway) GetOrder(ctx context.Context, orderID string) (types.OrderUpdate, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetOrder")
	defer span.End()

	start := time.Now()
	u, err := og.gw.GetOrder(ctx, orderID)
	og.observe("order_status", start, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch order status", err, "order_id", orderID)
		return types.OrderUpdate{}, err
	}
	logger.DebugSkip(ctx, 1, "Order status fetched", "order_id", orderID, "status", u.Status)
	return u, nil
}

func (og *observableGateway) Subscribe(ctx context.Context, exchange string, token uint32) error {
	ctx, span := trace.StartSpan(ctx, "broker.Subscribe")
	defer span.End()

	if err := og.gw.Subscribe(ctx, exchange, token); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to subscribe", err, "exchange", exchange, "token", token)
		return fmt.Errorf("subscribe %s:%d: %w", exchange, token, err)
	}
	logger.DebugSkip(ctx, 1, "Subscribed", "exchange", exchange, "token", token)
	return nil
}

func (og *observableGateway) Unsubscribe(ctx context.Context, exchange string, token uint32) error {
	ctx, span := trace.StartSpan(ctx, "broker.Unsubscribe")
	defer span.End()

	if err := og.gw.Unsubscribe(ctx, exchange, token); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to unsubscribe", err, "exchange", exchange, "token", token)
		return err
	}
	logger.DebugSkip(ctx, 1, "Unsubscribed", "exchange", exchange, "token", token)
	return nil
}

func (og *observableGateway) SearchInstruments(ctx context.Context, exchange, query string) ([]types.Instrument, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SearchInstruments")
	defer span.End()

	start := time.Now()
	out, err := og.gw.SearchInstruments(ctx, exchange, query)
	og.observe("search", start, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Instrument search failed", err, "exchange", exchange, "query", query)
		return nil, err
	}
	logger.DebugSkip(ctx, 1, "Instrument search", "exchange", exchange, "query", query, "results", len(out))
	return out, nil
}

func (og *observableGateway) OnTick(fn func(types.Tick)) {
	og.gw.OnTick(fn)
}

func (og *observableGateway) OnOrderUpdate(fn func(types.OrderUpdate)) {
	og.gw.OnOrderUpdate(func(u types.OrderUpdate) {
		logger.Info(context.Background(), "Broker order update",
			"order_id", u.OrderID,
			"status", u.Status,
			"average_price", u.AveragePrice,
		)
		fn(u)
	})
}

func (og *observableGateway) Start(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.Start")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting broker")
	if err := og.gw.Start(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start broker", err)
		return fmt.Errorf("broker start failed: %w", err)
	}
	logger.InfoSkip(ctx, 1, "Broker started successfully")
	return nil
}

func (og *observableGateway) Stop(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "broker.Stop")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Stopping broker")
	og.gw.Stop(ctx)
	logger.InfoSkip(ctx, 1, "Broker stopped successfully")
}
