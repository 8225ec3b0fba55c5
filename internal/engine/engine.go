// Package engine owns the live trade table. It places entries, watches ticks
// for stop-loss and target crossings, drives exits and keeps the snapshot in
// step with every transition.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/ledger"
	"order-executor/internal/logger"
	"order-executor/internal/metrics"
	"order-executor/internal/sizing"
	"order-executor/internal/types"
)

const (
	defaultStalenessBound = 24 * time.Hour
	defaultRetryAttempts  = 3
	defaultRetryInitial   = 50 * time.Millisecond
)

// Config tunes recovery and snapshot durability.
type Config struct {
	StalenessBound        time.Duration
	SnapshotRetryAttempts int
	SnapshotRetryInitial  time.Duration

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Deps are the collaborators the engine drives. Notifier, Journal and
// Metrics may be nil.
type Deps struct {
	Gateway  interfaces.Gateway
	Store    interfaces.SnapshotStore
	Ledger   interfaces.Ledger
	Notifier interfaces.Notifier
	Journal  interfaces.Journal
	Metrics  *metrics.Metrics
}

type Engine struct {
	gw       interfaces.Gateway
	store    interfaces.SnapshotStore
	ledger   interfaces.Ledger
	notifier interfaces.Notifier
	journal  interfaces.Journal
	metrics  *metrics.Metrics

	cfg Config
	now func() time.Time

	// mu guards trades, every field of the trades it holds, and early.
	mu     sync.Mutex
	trades map[string]*types.Trade
	// early holds order updates that arrived before their trade was
	// registered, keyed by order ID.
	early map[string]earlyUpdate

	subs *subscriptions
	ltp  *priceCache

	// persistMu serialises snapshot writes; each write copies the table
	// after acquiring it so the newest state always lands last.
	persistMu sync.Mutex

	ready atomic.Bool
	exits sync.WaitGroup
}

var _ interfaces.Engine = (*Engine)(nil)

func New(deps Deps, cfg Config) *Engine {
	if cfg.StalenessBound <= 0 {
		cfg.StalenessBound = defaultStalenessBound
	}
	if cfg.SnapshotRetryAttempts < 1 {
		cfg.SnapshotRetryAttempts = defaultRetryAttempts
	}
	if cfg.SnapshotRetryInitial <= 0 {
		cfg.SnapshotRetryInitial = defaultRetryInitial
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		gw:       deps.Gateway,
		store:    deps.Store,
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
		cfg:      cfg,
		now:      now,
		trades:   make(map[string]*types.Trade),
		early:    make(map[string]earlyUpdate),
		subs:     newSubscriptions(deps.Gateway),
		ltp:      newPriceCache(),
	}
}

// Ready reports whether recovery has finished and ticks are being evaluated.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// Recover reloads the snapshot, drops malformed and stale records, parks
// trades caught mid-exit in EXIT_FAILED and resubscribes every admitted
// instrument. Updates that arrived before the table was loaded are applied,
// then every PENDING entry is checked against the broker. Ticks are ignored
// until it returns successfully.
func (e *Engine) Recover(ctx context.Context) error {
	if e.ready.Load() {
		return fmt.Errorf("%w: engine already recovered", types.ErrInvalidState)
	}

	loaded, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	now := e.now()
	admitted := make(map[string]*types.Trade, len(loaded))
	var parked []types.Trade
	dropped := 0

	for i := range loaded {
		t := loaded[i]
		if reason := malformedReason(&t); reason != "" {
			logger.Warn(ctx, "Dropping malformed snapshot record", "order_id", t.OrderID, "reason", reason)
			dropped++
			continue
		}
		if age := now.Sub(t.EntryTime); age > e.cfg.StalenessBound {
			logger.Warn(ctx, "Dropping stale snapshot record",
				"order_id", t.OrderID,
				"symbol", t.Symbol,
				"age", age.Round(time.Minute).String(),
				"bound", e.cfg.StalenessBound.String())
			dropped++
			continue
		}

		switch t.Status {
		case types.StatusClosed, types.StatusCancelled, types.StatusRejected:
			logger.Warn(ctx, "Dropping terminal snapshot record", "order_id", t.OrderID, "status", t.Status)
			dropped++
			continue
		}

		if t.ExitGuard || t.Status == types.StatusExiting {
			t.ExitGuard = true
			if t.Status != types.StatusExitFailed {
				t.Status = types.StatusExitFailed
				t.FailureReason = "exit was in flight at shutdown and is unconfirmed"
				parked = append(parked, t)
			}
		}
		admitted[t.OrderID] = &t
	}

	var acquired []*types.Trade
	for _, t := range admitted {
		if err := e.subs.acquire(ctx, t.Exchange, t.InstrumentToken); err != nil {
			for _, a := range acquired {
				e.subs.release(ctx, a.Exchange, a.InstrumentToken)
			}
			return fmt.Errorf("%w: resubscribe %s:%d: %v", types.ErrSubscription, t.Exchange, t.InstrumentToken, err)
		}
		acquired = append(acquired, t)
	}

	e.mu.Lock()
	e.trades = admitted
	var replayed []updateOutcome
	for id := range admitted {
		if out, ok := e.takeEarlyLocked(id); ok {
			replayed = append(replayed, out)
		}
	}
	open := len(e.trades)
	e.mu.Unlock()

	// Best effort: the table is already correct in memory.
	_ = e.persist(ctx)
	e.metrics.SetOpenTrades(open)
	for _, out := range replayed {
		e.finishUpdate(ctx, out)
	}

	for _, t := range parked {
		logger.Risk(ctx, t.Symbol, "EXIT_UNCONFIRMED", "order_id", t.OrderID)
		e.notify(ctx, types.NotifyRecovery, t.OrderID, t.Symbol,
			fmt.Sprintf("%s (%s) was mid-exit at restart. Check the position with the broker, then use manual exit.", t.Symbol, t.OrderID))
	}

	e.ready.Store(true)
	e.reconcilePending(ctx)
	logger.Info(ctx, "Recovery complete", "admitted", open, "dropped", dropped, "parked", len(parked))
	return nil
}

// Close stops tick evaluation and waits for in-flight exits to finish.
func (e *Engine) Close(ctx context.Context) error {
	e.ready.Store(false)

	done := make(chan struct{})
	go func() {
		e.exits.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for exits: %w", ctx.Err())
	}
}

func (e *Engine) ListOpenTrades(ctx context.Context) []types.TradeSummary {
	e.mu.Lock()
	out := make([]types.TradeSummary, 0, len(e.trades))
	for _, t := range e.trades {
		s := types.TradeSummary{
			OrderID:       t.OrderID,
			Symbol:        t.Symbol,
			Status:        t.Status,
			Quantity:      t.Quantity,
			EntryPrice:    t.EntryPrice,
			StopLoss:      t.StopLossPrice,
			Target:        t.TargetPrice,
			EntryTime:     t.EntryTime,
			FailureReason: t.FailureReason,
		}
		if p, ok := e.ltp.get(t.InstrumentToken); ok {
			s.CurrentPrice = p
			s.HasPrice = true
			s.PnL, s.PnLPercent = sizing.ComputePnL(t.EntryPrice, p, t.Quantity)
		}
		out = append(out, s)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

// GetStatistics totals realised PnL across the ledger. TotalCount counts
// every ledger row, OpenCount the trades still in the live table.
func (e *Engine) GetStatistics(ctx context.Context) (types.Statistics, error) {
	rows, err := e.ledger.Rows(ctx)
	if err != nil {
		return types.Statistics{}, fmt.Errorf("read ledger: %w", err)
	}

	e.mu.Lock()
	open := len(e.trades)
	e.mu.Unlock()

	return types.Statistics{
		TotalPnL:   ledger.TotalPnL(rows),
		OpenCount:  open,
		TotalCount: len(rows),
	}, nil
}

// removeLocked deletes a trade and reports whether it was present.
// Caller holds e.mu.
func (e *Engine) removeLocked(orderID string) (types.Trade, bool) {
	t, ok := e.trades[orderID]
	if !ok {
		return types.Trade{}, false
	}
	delete(e.trades, orderID)
	return t.Clone(), true
}

func (e *Engine) notify(ctx context.Context, kind types.NotificationKind, orderID, symbol, text string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, types.Notification{Kind: kind, OrderID: orderID, Symbol: symbol, Text: text})
}

func (e *Engine) record(ctx context.Context, ev types.JournalEvent) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ev); err != nil {
		logger.Warn(ctx, "Failed to record journal event", "event", ev.Event, "order_id", ev.OrderID, "error", err)
	}
}

func malformedReason(t *types.Trade) string {
	switch {
	case t.OrderID == "":
		return "missing order id"
	case t.Symbol == "" || t.Exchange == "":
		return "missing instrument"
	case t.InstrumentToken == 0:
		return "missing instrument token"
	case t.Quantity <= 0:
		return "non-positive quantity"
	case !(t.EntryPrice > 0):
		return "non-positive entry price"
	case t.EntryTime.IsZero():
		return "missing entry time"
	case !t.Status.Valid():
		return "unknown status"
	case t.OrderKind == types.OrderKindLimit && t.LimitPrice == nil:
		return "limit order without limit price"
	}
	return ""
}
