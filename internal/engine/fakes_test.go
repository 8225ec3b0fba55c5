package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"order-executor/internal/market"
	"order-executor/internal/types"

	"github.com/stretchr/testify/require"
)

// Wednesday, market open.
var testNow = time.Date(2024, 3, 6, 10, 0, 0, 0, market.IST)

type fakeGateway struct {
	mu sync.Mutex

	quotes    map[uint32]float64
	quoteErr  error
	entryErr  error
	sellErr   error
	subErr    error
	modErr    error
	cancelErr error

	nextID    int
	orders    []types.OrderReq
	modified  []string
	cancelled []string
	subs      map[uint32]int
	unsubs    map[uint32]int

	// subscribe fails once this many calls have succeeded; 0 disables.
	subFailAfter int

	// broker-side order status returned by GetOrder
	status map[string]types.OrderUpdate

	// onPlace runs inside PlaceOrder before the response is built.
	onPlace func(types.OrderReq)
	// afterPlace runs inside PlaceOrder once the order ID is assigned.
	afterPlace func(types.OrderResp)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		quotes: map[uint32]float64{},
		subs:   map[uint32]int{},
		unsubs: map[uint32]int{},
		status: map[string]types.OrderUpdate{},
	}
}

func (g *fakeGateway) GetQuote(ctx context.Context, exchange string, token uint32) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.quoteErr != nil {
		return 0, g.quoteErr
	}
	p, ok := g.quotes[token]
	if !ok {
		return 0, errors.New("no quote")
	}
	return p, nil
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	g.mu.Lock()
	hook := g.onPlace
	g.mu.Unlock()
	if hook != nil {
		hook(req)
	}

	g.mu.Lock()
	g.orders = append(g.orders, req)
	if req.Side == types.SideBuy && g.entryErr != nil {
		g.mu.Unlock()
		return types.OrderResp{}, g.entryErr
	}
	if req.Side == types.SideSell && g.sellErr != nil {
		g.mu.Unlock()
		return types.OrderResp{}, g.sellErr
	}
	g.nextID++
	resp := types.OrderResp{OrderID: "ORD" + strconv.Itoa(g.nextID), Status: "OPEN"}
	after := g.afterPlace
	g.mu.Unlock()

	if after != nil {
		after(resp)
	}
	return resp, nil
}

func (g *fakeGateway) GetOrder(ctx context.Context, orderID string) (types.OrderUpdate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.status[orderID]
	if !ok {
		return types.OrderUpdate{}, errors.New("unknown order")
	}
	return u, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *fakeGateway) ModifyOrder(ctx context.Context, orderID string, price float64, qty int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.modErr != nil {
		return g.modErr
	}
	g.modified = append(g.modified, fmt.Sprintf("%s@%.2fx%d", orderID, price, qty))
	return nil
}

func (g *fakeGateway) Subscribe(ctx context.Context, exchange string, token uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subErr != nil {
		return g.subErr
	}
	if g.subFailAfter > 0 && totalCalls(g.subs) >= g.subFailAfter {
		return errors.New("ticker disconnected")
	}
	g.subs[token]++
	return nil
}

func (g *fakeGateway) Unsubscribe(ctx context.Context, exchange string, token uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unsubs[token]++
	return nil
}

func (g *fakeGateway) SearchInstruments(ctx context.Context, exchange, query string) ([]types.Instrument, error) {
	return nil, nil
}

func (g *fakeGateway) OnTick(fn func(types.Tick))               {}
func (g *fakeGateway) OnOrderUpdate(fn func(types.OrderUpdate)) {}
func (g *fakeGateway) Start(ctx context.Context) error          { return nil }
func (g *fakeGateway) Stop(ctx context.Context)                 {}

func totalCalls(m map[uint32]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

func (g *fakeGateway) sells() []types.OrderReq {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []types.OrderReq
	for _, o := range g.orders {
		if o.Side == types.SideSell {
			out = append(out, o)
		}
	}
	return out
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

type fakeStore struct {
	mu       sync.Mutex
	loaded   []types.Trade
	saves    [][]types.Trade
	attempts int
	failing  bool
}

func (s *fakeStore) Save(ctx context.Context, trades []types.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failing {
		return errors.New("disk full")
	}
	s.saves = append(s.saves, append([]types.Trade(nil), trades...))
	return nil
}

func (s *fakeStore) Load(ctx context.Context) ([]types.Trade, error) {
	return s.loaded, nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *fakeStore) last() []types.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

type fakeLedger struct {
	mu   sync.Mutex
	rows []types.LedgerRow
}

func (l *fakeLedger) AppendEntry(ctx context.Context, e types.LedgerEntry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ref := strconv.Itoa(len(l.rows) + 1)
	l.rows = append(l.rows, types.LedgerRow{Ref: ref, Symbol: e.Symbol, EntryPrice: e.EntryPrice, EntryTime: e.EntryTime})
	return ref, nil
}

func (l *fakeLedger) UpdateExit(ctx context.Context, ref string, x types.LedgerExit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rows {
		if l.rows[i].Ref == ref {
			price, at, pnl := x.ExitPrice, x.ExitTime, x.PnL
			l.rows[i].ExitPrice, l.rows[i].ExitTime, l.rows[i].PnL = &price, &at, &pnl
			return nil
		}
	}
	return errors.New("unknown ref")
}

func (l *fakeLedger) Rows(ctx context.Context) ([]types.LedgerRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.LedgerRow(nil), l.rows...), nil
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []types.Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, msg types.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, msg)
}

func (n *fakeNotifier) kinds() []types.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []types.NotificationKind
	for _, m := range n.got {
		out = append(out, m.Kind)
	}
	return out
}

type harness struct {
	eng      *Engine
	gw       *fakeGateway
	store    *fakeStore
	ledger   *fakeLedger
	notifier *fakeNotifier
}

func newHarness(t *testing.T, loaded ...types.Trade) *harness {
	t.Helper()
	h := newIdleHarness(loaded...)
	require.NoError(t, h.eng.Recover(context.Background()))
	return h
}

// newIdleHarness builds the engine without recovering the snapshot.
func newIdleHarness(loaded ...types.Trade) *harness {
	h := &harness{
		gw:       newFakeGateway(),
		store:    &fakeStore{loaded: loaded},
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
	}
	h.eng = New(Deps{
		Gateway:  h.gw,
		Store:    h.store,
		Ledger:   h.ledger,
		Notifier: h.notifier,
	}, Config{
		StalenessBound:        24 * time.Hour,
		SnapshotRetryAttempts: 3,
		SnapshotRetryInitial:  time.Millisecond,
		Now:                   func() time.Time { return testNow },
	})
	return h
}

// waitExits blocks until dispatched exits finish. The engine stops
// evaluating ticks afterwards.
func (h *harness) waitExits(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.eng.Close(ctx))
}

func (h *harness) trade(id string) (types.Trade, bool) {
	h.eng.mu.Lock()
	defer h.eng.mu.Unlock()
	t, ok := h.eng.trades[id]
	if !ok {
		return types.Trade{}, false
	}
	return t.Clone(), true
}

func marketEntry() types.EntryRequest {
	return types.EntryRequest{
		Symbol:          "XYZ",
		Exchange:        "NSE",
		Token:           123,
		Capital:         10000,
		StopLossPercent: 0.5,
		TargetPercent:   1.0,
		Kind:            types.OrderKindMarket,
	}
}

func limitEntry(price float64) types.EntryRequest {
	req := marketEntry()
	req.Kind = types.OrderKindLimit
	req.LimitPrice = &price
	return req
}
