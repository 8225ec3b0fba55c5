package zerodha

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
	"order-executor/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

type Params struct {
	Mode        string
	APIKey      string
	AccessToken string
	Exchange    string
	Product     string
}

// kiteAPI is the slice of the Kite Connect REST client the gateway uses.
type kiteAPI interface {
	GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error)
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	ModifyOrder(variety string, orderID string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	CancelOrder(variety string, orderID string, parentOrderID *string) (kiteconnect.OrderResponse, error)
	GetOrderHistory(orderID string) ([]kiteconnect.Order, error)
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
}

// Zerodha trades through Kite Connect and streams prices and order updates
// over the Kite ticker.
type Zerodha struct {
	p      Params
	kc     kiteAPI
	ticker *tickerManager

	// instrument lists per exchange, fetched once
	instMu      sync.Mutex
	instruments map[string][]types.Instrument
}

var _ interfaces.Gateway = (*Zerodha)(nil)

func NewZerodha(p Params) (*Zerodha, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, errors.New("missing API key/access token")
	}
	if p.Product == "" {
		p.Product = kiteconnect.ProductMIS
	}

	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)

	return newZerodha(p, kc, newTickerManager(p.APIKey, p.AccessToken)), nil
}

func newZerodha(p Params, kc kiteAPI, tm *tickerManager) *Zerodha {
	return &Zerodha{
		p:           p,
		kc:          kc,
		ticker:      tm,
		instruments: make(map[string][]types.Instrument),
	}
}

func (z *Zerodha) GetQuote(ctx context.Context, exchange string, token uint32) (float64, error) {
	key := strconv.FormatUint(uint64(token), 10)
	quotes, err := z.kc.GetLTP(key)
	if err != nil {
		return 0, fmt.Errorf("ltp %s:%d: %w", exchange, token, err)
	}
	q, ok := quotes[key]
	if !ok || q.LastPrice <= 0 {
		return 0, fmt.Errorf("ltp %s:%d: no price in response", exchange, token)
	}
	return q.LastPrice, nil
}

func (z *Zerodha) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	params := z.orderParams(req)
	resp, err := z.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return types.OrderResp{}, err
	}

	logger.Debug(ctx, "Kite order accepted",
		"order_id", resp.OrderID,
		"symbol", req.Symbol,
		"side", req.Side,
		"type", params.OrderType,
		"qty", req.Qty)
	return types.OrderResp{OrderID: resp.OrderID, Status: "PLACED", Message: "ok"}, nil
}

func (z *Zerodha) ModifyOrder(ctx context.Context, orderID string, price float64, qty int) error {
	_, err := z.kc.ModifyOrder(kiteconnect.VarietyRegular, orderID, kiteconnect.OrderParams{
		OrderType: kiteconnect.OrderTypeLimit,
		Quantity:  qty,
		Price:     price,
		Validity:  kiteconnect.ValidityDay,
	})
	return err
}

func (z *Zerodha) CancelOrder(ctx context.Context, orderID string) error {
	_, err := z.kc.CancelOrder(kiteconnect.VarietyRegular, orderID, nil)
	return err
}

// GetOrder returns the last state in the order's history.
func (z *Zerodha) GetOrder(ctx context.Context, orderID string) (types.OrderUpdate, error) {
	hist, err := z.kc.GetOrderHistory(orderID)
	if err != nil {
		return types.OrderUpdate{}, fmt.Errorf("order history %s: %w", orderID, err)
	}
	if len(hist) == 0 {
		return types.OrderUpdate{}, fmt.Errorf("order history %s: empty", orderID)
	}
	last := hist[len(hist)-1]
	return types.OrderUpdate{
		OrderID:      orderID,
		Status:       last.Status,
		AveragePrice: last.AveragePrice,
		Message:      last.StatusMessage,
	}, nil
}

func (z *Zerodha) Subscribe(ctx context.Context, exchange string, token uint32) error {
	return z.ticker.subscribe(ctx, token)
}

func (z *Zerodha) Unsubscribe(ctx context.Context, exchange string, token uint32) error {
	return z.ticker.unsubscribe(ctx, token)
}

// SearchInstruments matches the query against trading symbols and names of
// the exchange's instrument dump.
func (z *Zerodha) SearchInstruments(ctx context.Context, exchange, query string) ([]types.Instrument, error) {
	if exchange == "" {
		exchange = z.p.Exchange
	}
	list, err := z.exchangeInstruments(ctx, strings.ToUpper(exchange))
	if err != nil {
		return nil, err
	}
	return matchInstruments(list, query, maxSearchResults), nil
}

func (z *Zerodha) exchangeInstruments(ctx context.Context, exchange string) ([]types.Instrument, error) {
	z.instMu.Lock()
	defer z.instMu.Unlock()

	if list, ok := z.instruments[exchange]; ok {
		return list, nil
	}

	raw, err := z.kc.GetInstrumentsByExchange(exchange)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments for %s: %w", exchange, err)
	}
	list := make([]types.Instrument, 0, len(raw))
	for _, in := range raw {
		inst := types.Instrument{
			Exchange: exchange,
			Symbol:   in.Tradingsymbol,
			Name:     in.Name,
			Token:    uint32(in.InstrumentToken),
		}
		list = append(list, inst)
		z.ticker.mapper.addMapping(inst.Symbol, inst.Token)
	}
	z.instruments[exchange] = list

	logger.Info(ctx, "Instrument list loaded", "exchange", exchange, "count", len(list))
	return list, nil
}

func (z *Zerodha) OnTick(fn func(types.Tick)) {
	z.ticker.onTickFn = fn
}

func (z *Zerodha) OnOrderUpdate(fn func(types.OrderUpdate)) {
	z.ticker.onOrderFn = fn
}

func (z *Zerodha) Start(ctx context.Context) error {
	return z.ticker.Start(ctx)
}

func (z *Zerodha) Stop(ctx context.Context) {
	z.ticker.Stop(ctx)
}

func (z *Zerodha) orderParams(req types.OrderReq) kiteconnect.OrderParams {
	exchange := req.Exchange
	if exchange == "" {
		exchange = z.p.Exchange
	}

	params := kiteconnect.OrderParams{
		Exchange:        exchange,
		Tradingsymbol:   req.Symbol,
		Validity:        kiteconnect.ValidityDay,
		Product:         z.p.Product,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: kiteconnect.TransactionTypeBuy,
		Quantity:        req.Qty,
		Tag:             kiteTag(req.Tag),
	}
	if req.Side == types.SideSell {
		params.TransactionType = kiteconnect.TransactionTypeSell
	}
	if req.Kind == types.OrderKindLimit {
		params.OrderType = kiteconnect.OrderTypeLimit
		params.Price = req.Price
	}
	return params
}

// kiteTag keeps the alphanumeric characters of tag, capped at the 20
// characters Kite accepts.
func kiteTag(tag string) string {
	var b strings.Builder
	for _, r := range tag {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 20 {
			break
		}
	}
	return b.String()
}
