package zerodha

import (
	"context"
	"errors"
	"sync"
	"testing"

	"order-executor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

type fakeKite struct {
	ltp        kiteconnect.QuoteLTP
	ltpErr     error
	placed     []kiteconnect.OrderParams
	modified   []kiteconnect.OrderParams
	cancelled  []string
	instFetch  int
	instrument kiteconnect.Instruments
	history    map[string][]kiteconnect.Order
}

func (f *fakeKite) GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error) {
	return f.ltp, f.ltpErr
}

func (f *fakeKite) PlaceOrder(variety string, p kiteconnect.OrderParams) (kiteconnect.OrderResponse, error) {
	f.placed = append(f.placed, p)
	return kiteconnect.OrderResponse{OrderID: "240306000001"}, nil
}

func (f *fakeKite) ModifyOrder(variety, orderID string, p kiteconnect.OrderParams) (kiteconnect.OrderResponse, error) {
	f.modified = append(f.modified, p)
	return kiteconnect.OrderResponse{OrderID: orderID}, nil
}

func (f *fakeKite) CancelOrder(variety, orderID string, parent *string) (kiteconnect.OrderResponse, error) {
	f.cancelled = append(f.cancelled, orderID)
	return kiteconnect.OrderResponse{OrderID: orderID}, nil
}

func (f *fakeKite) GetOrderHistory(orderID string) ([]kiteconnect.Order, error) {
	h, ok := f.history[orderID]
	if !ok {
		return nil, errors.New("order not found")
	}
	return h, nil
}

func (f *fakeKite) GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error) {
	f.instFetch++
	return f.instrument, nil
}

type fakeConn struct {
	mu    sync.Mutex
	subs  [][]uint32
	unsub [][]uint32
	modes []kiteticker.Mode
}

func (c *fakeConn) Subscribe(tokens []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, append([]uint32(nil), tokens...))
	return nil
}

func (c *fakeConn) Unsubscribe(tokens []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsub = append(c.unsub, append([]uint32(nil), tokens...))
	return nil
}

func (c *fakeConn) SetMode(mode kiteticker.Mode, tokens []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modes = append(c.modes, mode)
	return nil
}

func newTestZerodha(kc *fakeKite) (*Zerodha, *fakeConn) {
	tm := newTickerManager("key", "token")
	conn := &fakeConn{}
	tm.conn = conn
	return newZerodha(Params{Exchange: "NSE", Product: kiteconnect.ProductMIS}, kc, tm), conn
}

func TestNewZerodha_RequiresCredentials(t *testing.T) {
	_, err := NewZerodha(Params{APIKey: "key"})
	require.Error(t, err)
}

func TestGetQuote(t *testing.T) {
	kc := &fakeKite{ltp: kiteconnect.QuoteLTP{
		"408065": {InstrumentToken: 408065, LastPrice: 1502.35},
	}}
	z, _ := newTestZerodha(kc)

	price, err := z.GetQuote(context.Background(), "NSE", 408065)
	require.NoError(t, err)
	assert.Equal(t, 1502.35, price)

	_, err = z.GetQuote(context.Background(), "NSE", 1)
	assert.Error(t, err)

	kc.ltpErr = errors.New("token expired")
	_, err = z.GetQuote(context.Background(), "NSE", 408065)
	assert.ErrorContains(t, err, "token expired")
}

func TestGetOrder_LatestHistoryEntry(t *testing.T) {
	kc := &fakeKite{history: map[string][]kiteconnect.Order{
		"A1": {
			{OrderID: "A1", Status: "OPEN PENDING"},
			{OrderID: "A1", Status: "OPEN"},
			{OrderID: "A1", Status: "COMPLETE", AveragePrice: 1488.2},
		},
		"A2": {},
	}}
	z, _ := newTestZerodha(kc)
	ctx := context.Background()

	u, err := z.GetOrder(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, types.OrderUpdate{OrderID: "A1", Status: "COMPLETE", AveragePrice: 1488.2}, u)

	_, err = z.GetOrder(ctx, "A2")
	assert.ErrorContains(t, err, "empty")
	_, err = z.GetOrder(ctx, "missing")
	assert.ErrorContains(t, err, "order not found")
}

func TestPlaceOrder_Params(t *testing.T) {
	kc := &fakeKite{}
	z, _ := newTestZerodha(kc)

	resp, err := z.PlaceOrder(context.Background(), types.OrderReq{
		Side:   types.SideBuy,
		Symbol: "INFY",
		Qty:    6,
		Kind:   types.OrderKindLimit,
		Price:  1490,
		Tag:    "ENTRY",
	})
	require.NoError(t, err)
	assert.Equal(t, "240306000001", resp.OrderID)

	_, err = z.PlaceOrder(context.Background(), types.OrderReq{
		Side:   types.SideSell,
		Symbol: "INFY",
		Qty:    6,
		Kind:   types.OrderKindMarket,
		Tag:    "STOP_LOSS",
	})
	require.NoError(t, err)

	require.Len(t, kc.placed, 2)
	buy, sell := kc.placed[0], kc.placed[1]
	assert.Equal(t, "NSE", buy.Exchange)
	assert.Equal(t, kiteconnect.OrderTypeLimit, buy.OrderType)
	assert.Equal(t, 1490.0, buy.Price)
	assert.Equal(t, kiteconnect.TransactionTypeBuy, buy.TransactionType)
	assert.Equal(t, kiteconnect.ProductMIS, buy.Product)

	assert.Equal(t, kiteconnect.OrderTypeMarket, sell.OrderType)
	assert.Equal(t, kiteconnect.TransactionTypeSell, sell.TransactionType)
	assert.Equal(t, "STOPLOSS", sell.Tag)
	assert.Zero(t, sell.Price)
}

func TestModifyAndCancel(t *testing.T) {
	kc := &fakeKite{}
	z, _ := newTestZerodha(kc)

	require.NoError(t, z.ModifyOrder(context.Background(), "X1", 97.5, 102))
	require.NoError(t, z.CancelOrder(context.Background(), "X1"))

	require.Len(t, kc.modified, 1)
	assert.Equal(t, 97.5, kc.modified[0].Price)
	assert.Equal(t, 102, kc.modified[0].Quantity)
	assert.Equal(t, []string{"X1"}, kc.cancelled)
}

func TestSearchInstruments_CachesPerExchange(t *testing.T) {
	kc := &fakeKite{instrument: kiteconnect.Instruments{
		{InstrumentToken: 408065, Tradingsymbol: "INFY", Name: "INFOSYS"},
		{InstrumentToken: 2953217, Tradingsymbol: "TCS", Name: "TATA CONSULTANCY SERV LT"},
		{InstrumentToken: 1, Tradingsymbol: "INFYBEES", Name: "INFY ETF"},
	}}
	z, _ := newTestZerodha(kc)

	got, err := z.SearchInstruments(context.Background(), "nse", "infy")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "INFY", got[0].Symbol)
	assert.Equal(t, "INFYBEES", got[1].Symbol)

	got, err = z.SearchInstruments(context.Background(), "", "tata")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(2953217), got[0].Token)

	assert.Equal(t, 1, kc.instFetch)
	assert.Equal(t, "TCS", z.ticker.mapper.getSymbol(2953217))
}

func TestKiteTag(t *testing.T) {
	assert.Equal(t, "STOPLOSS", kiteTag("STOP_LOSS"))
	assert.Equal(t, "ENTRY", kiteTag("ENTRY"))
	assert.Equal(t, "ORDERCANCELLEDBYUSER", kiteTag("ORDER_CANCELLED_BY_USER_AGAIN"))
	assert.Empty(t, kiteTag("--"))
}

func TestMatchInstruments_Ranking(t *testing.T) {
	list := []types.Instrument{
		{Symbol: "SBICARD", Name: "SBI CARDS"},
		{Symbol: "SBIN", Name: "STATE BANK OF INDIA"},
		{Symbol: "ASBI", Name: "A"},
		{Symbol: "SBI", Name: "SBI ETF"},
	}

	got := matchInstruments(list, " sbi ", 3)
	require.Len(t, got, 3)
	assert.Equal(t, "SBI", got[0].Symbol)
	assert.Equal(t, "SBICARD", got[1].Symbol)
	assert.Equal(t, "SBIN", got[2].Symbol)

	assert.Nil(t, matchInstruments(list, "  ", 10))
}

func TestTickerManager_QueuesUntilConnected(t *testing.T) {
	z, conn := newTestZerodha(&fakeKite{})
	ctx := context.Background()

	require.NoError(t, z.Subscribe(ctx, "NSE", 20))
	require.NoError(t, z.Subscribe(ctx, "NSE", 10))
	assert.Empty(t, conn.subs)

	z.ticker.onConnect()
	require.Len(t, conn.subs, 1)
	assert.Equal(t, []uint32{10, 20}, conn.subs[0])
	assert.Equal(t, []kiteticker.Mode{kiteticker.ModeLTP}, conn.modes)

	require.NoError(t, z.Subscribe(ctx, "NSE", 30))
	assert.Equal(t, []uint32{30}, conn.subs[1])

	require.NoError(t, z.Unsubscribe(ctx, "NSE", 10))
	assert.Equal(t, [][]uint32{{10}}, conn.unsub)

	// a reconnect replays what is still wanted
	z.ticker.onClose(1006, "abnormal")
	z.ticker.onConnect()
	assert.Equal(t, []uint32{20, 30}, conn.subs[2])
}

func TestTickerManager_Events(t *testing.T) {
	z, _ := newTestZerodha(&fakeKite{})
	z.ticker.mapper.addMapping("INFY", 408065)

	var ticks []types.Tick
	var updates []types.OrderUpdate
	z.OnTick(func(tk types.Tick) { ticks = append(ticks, tk) })
	z.OnOrderUpdate(func(u types.OrderUpdate) { updates = append(updates, u) })

	z.ticker.onTick(models.Tick{InstrumentToken: 408065, LastPrice: 1501})
	z.ticker.onOrderUpdate(kiteconnect.Order{
		OrderID:       "X1",
		Status:        "COMPLETE",
		AveragePrice:  1499.5,
		TradingSymbol: "INFY",
	})

	require.Len(t, ticks, 1)
	assert.Equal(t, types.Tick{Symbol: "INFY", Token: 408065, LastPrice: 1501}, ticks[0])
	require.Len(t, updates, 1)
	assert.Equal(t, types.OrderUpdate{OrderID: "X1", Status: "COMPLETE", AveragePrice: 1499.5}, updates[0])
}
