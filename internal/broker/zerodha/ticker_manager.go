package zerodha

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"order-executor/internal/logger"
	"order-executor/internal/types"

	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

// tickerManager owns the Kite WebSocket. It remembers every subscribed
// token and replays the set on each (re)connect, so a dropped socket does
// not silently stop price monitoring.
type tickerManager struct {
	apiKey      string
	accessToken string

	ticker *kiteticker.Ticker
	mapper *instrumentMapper

	mu        sync.Mutex
	conn      tickerConn
	connected bool
	tokens    map[uint32]struct{}

	onTickFn  func(types.Tick)
	onOrderFn func(types.OrderUpdate)
}

func newTickerManager(apiKey, accessToken string) *tickerManager {
	return &tickerManager{
		apiKey:      apiKey,
		accessToken: accessToken,
		mapper:      newInstrumentMapper(),
		tokens:      make(map[uint32]struct{}),
	}
}

func (tm *tickerManager) Start(ctx context.Context) error {
	tm.ticker = kiteticker.New(tm.apiKey, tm.accessToken)

	tm.mu.Lock()
	tm.conn = tm.ticker
	tm.mu.Unlock()

	tm.setupEventHandlers()

	go func() {
		logger.Info(ctx, "Starting Zerodha WebSocket ticker")
		tm.ticker.Serve()
	}()

	return nil
}

func (tm *tickerManager) Stop(ctx context.Context) {
	if tm.ticker != nil {
		logger.Info(ctx, "Stopping Zerodha WebSocket ticker")
		tm.ticker.Stop()
	}
	tm.mu.Lock()
	tm.connected = false
	tm.mu.Unlock()
}

func (tm *tickerManager) subscribe(ctx context.Context, token uint32) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.tokens[token] = struct{}{}
	if !tm.connected || tm.conn == nil {
		logger.Debug(ctx, "Ticker not connected, subscription queued", "token", token)
		return nil
	}
	return tm.sendSubscribe([]uint32{token})
}

func (tm *tickerManager) unsubscribe(ctx context.Context, token uint32) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	delete(tm.tokens, token)
	if !tm.connected || tm.conn == nil {
		return nil
	}
	if err := tm.conn.Unsubscribe([]uint32{token}); err != nil {
		return fmt.Errorf("failed to unsubscribe token %d: %w", token, err)
	}
	return nil
}

// resubscribeAll replays the desired token set. Caller holds tm.mu.
func (tm *tickerManager) resubscribeAll() error {
	if len(tm.tokens) == 0 {
		return nil
	}
	return tm.sendSubscribe(tm.tokenList())
}

func (tm *tickerManager) sendSubscribe(tokens []uint32) error {
	if err := tm.conn.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe to tokens: %w", err)
	}
	if err := tm.conn.SetMode(kiteticker.ModeLTP, tokens); err != nil {
		return fmt.Errorf("failed to set ticker mode: %w", err)
	}
	return nil
}

func (tm *tickerManager) tokenList() []uint32 {
	out := make([]uint32, 0, len(tm.tokens))
	for t := range tm.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
