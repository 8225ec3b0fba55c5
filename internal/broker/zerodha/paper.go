package zerodha

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
	"order-executor/internal/types"

	"github.com/google/uuid"
)

// paperUniverse seeds the simulated instrument list.
var paperUniverse = map[string]uint32{
	"RELIANCE":   738561,
	"TCS":        2953217,
	"HDFCBANK":   341249,
	"INFY":       408065,
	"HCLTECH":    1850625,
	"LT":         2939649,
	"SBIN":       779521,
	"ICICIBANK":  1270529,
	"AXISBANK":   1510401,
	"KOTAKBANK":  492033,
	"ITC":        424961,
	"TATAMOTORS": 884737,
	"TITAN":      897537,
	"JSWSTEEL":   3001089,
	"ULTRACEMCO": 2952193,
	"BAJFINANCE": 81153,
	"HDFCLIFE":   119553,
	"BHARTIARTL": 2714625,
	"ASIANPAINT": 60417,
	"MARUTI":     2815745,
}

type PaperParams struct {
	Exchange     string
	SeedPrice    float64
	TickInterval time.Duration
	Seed         int64
}

type paperOrder struct {
	id     string
	token  uint32
	symbol string
	price  float64
	qty    int
}

// Paper is the DRY_RUN gateway. Prices follow a seeded random walk, market
// orders complete at once and limit buys complete when the walk reaches
// their price.
type Paper struct {
	p      PaperParams
	mapper *instrumentMapper

	mu         sync.Mutex
	rng        *rand.Rand
	prices     map[uint32]float64
	subscribed map[uint32]struct{}
	pending    map[string]*paperOrder
	done       map[string]types.OrderUpdate

	onTickFn  func(types.Tick)
	onOrderFn func(types.OrderUpdate)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ interfaces.Gateway = (*Paper)(nil)

func NewPaper(p PaperParams) *Paper {
	if p.Exchange == "" {
		p.Exchange = "NSE"
	}
	if p.SeedPrice <= 0 {
		p.SeedPrice = 100
	}
	if p.TickInterval <= 0 {
		p.TickInterval = time.Second
	}
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	pg := &Paper{
		p:          p,
		mapper:     newInstrumentMapper(),
		rng:        rand.New(rand.NewSource(seed)),
		prices:     make(map[uint32]float64),
		subscribed: make(map[uint32]struct{}),
		pending:    make(map[string]*paperOrder),
		done:       make(map[string]types.OrderUpdate),
	}
	for sym, tok := range paperUniverse {
		pg.mapper.addMapping(sym, tok)
	}
	return pg
}

// SetPrice pins the simulated price of a token.
func (pg *Paper) SetPrice(token uint32, price float64) {
	pg.mu.Lock()
	pg.prices[token] = price
	pg.mu.Unlock()
}

func (pg *Paper) GetQuote(ctx context.Context, exchange string, token uint32) (float64, error) {
	if token == 0 {
		return 0, errors.New("unknown instrument")
	}
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.priceLocked(token), nil
}

func (pg *Paper) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	token, ok := pg.mapper.getToken(req.Symbol)
	if !ok {
		return types.OrderResp{}, fmt.Errorf("invalid symbol %s", req.Symbol)
	}
	if req.Qty <= 0 {
		return types.OrderResp{}, fmt.Errorf("invalid quantity %d", req.Qty)
	}

	id := "PAPER-" + uuid.NewString()
	if req.Kind == types.OrderKindLimit {
		pg.mu.Lock()
		pg.pending[id] = &paperOrder{id: id, token: token, symbol: req.Symbol, price: req.Price, qty: req.Qty}
		pg.mu.Unlock()
		logger.Info(ctx, "Paper limit order resting", "order_id", id, "symbol", req.Symbol, "price", req.Price, "qty", req.Qty)
		return types.OrderResp{OrderID: id, Status: "OPEN", Message: "dry-run"}, nil
	}

	logger.Info(ctx, "Paper market order filled", "order_id", id, "symbol", req.Symbol, "side", req.Side, "qty", req.Qty)
	return types.OrderResp{OrderID: id, Status: types.OrderStatusComplete, Message: "dry-run"}, nil
}

func (pg *Paper) ModifyOrder(ctx context.Context, orderID string, price float64, qty int) error {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	o, ok := pg.pending[orderID]
	if !ok {
		return fmt.Errorf("order %s is not open", orderID)
	}
	o.price = price
	o.qty = qty
	return nil
}

func (pg *Paper) CancelOrder(ctx context.Context, orderID string) error {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if _, ok := pg.pending[orderID]; !ok {
		return fmt.Errorf("order %s is not open", orderID)
	}
	delete(pg.pending, orderID)
	pg.done[orderID] = types.OrderUpdate{OrderID: orderID, Status: types.OrderStatusCancelled}
	return nil
}

func (pg *Paper) GetOrder(ctx context.Context, orderID string) (types.OrderUpdate, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if _, ok := pg.pending[orderID]; ok {
		return types.OrderUpdate{OrderID: orderID, Status: "OPEN"}, nil
	}
	if u, ok := pg.done[orderID]; ok {
		return u, nil
	}
	return types.OrderUpdate{}, fmt.Errorf("order %s is unknown", orderID)
}

func (pg *Paper) Subscribe(ctx context.Context, exchange string, token uint32) error {
	pg.mu.Lock()
	pg.subscribed[token] = struct{}{}
	pg.mu.Unlock()
	return nil
}

func (pg *Paper) Unsubscribe(ctx context.Context, exchange string, token uint32) error {
	pg.mu.Lock()
	delete(pg.subscribed, token)
	pg.mu.Unlock()
	return nil
}

func (pg *Paper) SearchInstruments(ctx context.Context, exchange, query string) ([]types.Instrument, error) {
	list := make([]types.Instrument, 0, len(paperUniverse))
	for sym, tok := range paperUniverse {
		list = append(list, types.Instrument{Exchange: pg.p.Exchange, Symbol: sym, Name: sym, Token: tok})
	}
	return matchInstruments(list, query, maxSearchResults), nil
}

func (pg *Paper) OnTick(fn func(types.Tick))               { pg.onTickFn = fn }
func (pg *Paper) OnOrderUpdate(fn func(types.OrderUpdate)) { pg.onOrderFn = fn }

func (pg *Paper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	pg.cancel = cancel

	pg.wg.Add(1)
	go func() {
		defer pg.wg.Done()
		t := time.NewTicker(pg.p.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				pg.Step()
			}
		}
	}()

	logger.Info(ctx, "Paper gateway started", "tick_interval", pg.p.TickInterval.String())
	return nil
}

func (pg *Paper) Stop(ctx context.Context) {
	if pg.cancel != nil {
		pg.cancel()
	}
	pg.wg.Wait()
}

// Step advances every subscribed price once, fills crossed limit orders
// and delivers the resulting ticks and order updates.
func (pg *Paper) Step() {
	pg.mu.Lock()
	ticks := make([]types.Tick, 0, len(pg.subscribed))
	for tok := range pg.subscribed {
		p := pg.priceLocked(tok)
		p *= 1 + (pg.rng.Float64()-0.5)*0.004
		p = math.Round(p*20) / 20
		if p <= 0 {
			p = 0.05
		}
		pg.prices[tok] = p
		ticks = append(ticks, types.Tick{Symbol: pg.mapper.getSymbol(tok), Token: tok, LastPrice: p})
	}

	var fills []types.OrderUpdate
	for id, o := range pg.pending {
		if pg.priceLocked(o.token) <= o.price {
			u := types.OrderUpdate{OrderID: id, Status: types.OrderStatusComplete, AveragePrice: o.price}
			fills = append(fills, u)
			pg.done[id] = u
			delete(pg.pending, id)
		}
	}
	onTick, onOrder := pg.onTickFn, pg.onOrderFn
	pg.mu.Unlock()

	for _, u := range fills {
		if onOrder != nil {
			onOrder(u)
		}
	}
	for _, tk := range ticks {
		if onTick != nil {
			onTick(tk)
		}
	}
}

// priceLocked returns the current price, seeding it on first use.
// Caller holds pg.mu.
func (pg *Paper) priceLocked(token uint32) float64 {
	p, ok := pg.prices[token]
	if !ok {
		p = pg.p.SeedPrice
		pg.prices[token] = p
	}
	return p
}
