package brokerobs

import (
	"context"
	"testing"
	"time"

	"order-executor/internal/broker/zerodha"
	"order-executor/internal/metrics"
	"order-executor/internal/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_DelegatesAndCounts(t *testing.T) {
	m := metrics.New()
	paper := zerodha.NewPaper(zerodha.PaperParams{SeedPrice: 250, Seed: 1, TickInterval: time.Hour})
	gw := Wrap(paper, m)
	ctx := context.Background()

	price, err := gw.GetQuote(ctx, "NSE", 408065)
	require.NoError(t, err)
	assert.Equal(t, 250.0, price)

	resp, err := gw.PlaceOrder(ctx, types.OrderReq{Side: types.SideBuy, Symbol: "INFY", Qty: 2, Kind: types.OrderKindLimit, Price: 1})
	require.NoError(t, err)
	require.NoError(t, gw.ModifyOrder(ctx, resp.OrderID, 2, 2))
	require.NoError(t, gw.CancelOrder(ctx, resp.OrderID))
	assert.Error(t, gw.CancelOrder(ctx, resp.OrderID))

	u, err := gw.GetOrder(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, u.Status)
	_, err = gw.GetOrder(ctx, "missing")
	assert.Error(t, err)

	_, err = gw.PlaceOrder(ctx, types.OrderReq{Side: types.SideBuy, Symbol: "UNKNOWN", Qty: 1})
	assert.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerCalls.WithLabelValues("place", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerCalls.WithLabelValues("place", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerCalls.WithLabelValues("cancel", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerCalls.WithLabelValues("quote", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerCalls.WithLabelValues("order_status", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerCalls.WithLabelValues("order_status", "failed")))
}

func TestWrap_ForwardsOrderUpdates(t *testing.T) {
	paper := zerodha.NewPaper(zerodha.PaperParams{SeedPrice: 100, Seed: 1, TickInterval: time.Hour})
	gw := Wrap(paper, nil)
	ctx := context.Background()

	var got []types.OrderUpdate
	gw.OnOrderUpdate(func(u types.OrderUpdate) { got = append(got, u) })

	resp, err := gw.PlaceOrder(ctx, types.OrderReq{Side: types.SideBuy, Symbol: "TCS", Qty: 1, Kind: types.OrderKindLimit, Price: 500})
	require.NoError(t, err)
	paper.Step()

	require.Len(t, got, 1)
	assert.Equal(t, resp.OrderID, got[0].OrderID)
	assert.Equal(t, types.OrderStatusComplete, got[0].Status)
}
