package types

import "time"

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusFilled     Status = "FILLED"
	StatusExiting    Status = "EXITING"
	StatusClosed     Status = "CLOSED"
	StatusExitFailed Status = "EXIT_FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFilled, StatusExiting, StatusClosed,
		StatusExitFailed, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type ExitReason string

const (
	ExitStopLoss             ExitReason = "STOP_LOSS"
	ExitTarget               ExitReason = "TARGET"
	ExitManual               ExitReason = "MANUAL"
	ExitOrderCancelledByUser ExitReason = "ORDER_CANCELLED_BY_USER"
)

// Trade is one long position tracked from entry order to exit.
type Trade struct {
	OrderID         string    `json:"order_id"`
	Symbol          string    `json:"symbol"`
	Exchange        string    `json:"exchange"`
	InstrumentToken uint32    `json:"instrument_token"`
	Quantity        int       `json:"quantity"`
	EntryPrice      float64   `json:"entry_price"`
	StopLossPrice   float64   `json:"stop_loss_price"`
	TargetPrice     float64   `json:"target_price"`
	StopLossPercent float64   `json:"stop_loss_percent"`
	TargetPercent   float64   `json:"target_percent"`
	OrderKind       OrderKind `json:"order_kind"`
	LimitPrice      *float64  `json:"limit_price,omitempty"`
	Status          Status    `json:"status"`
	EntryTime       time.Time `json:"entry_time"`
	LedgerRowRef    string    `json:"ledger_row_ref"`
	ExitGuard       bool      `json:"exit_guard"`
	FailureReason   string    `json:"failure_reason,omitempty"`
}

// IsOpen reports whether the trade still holds a live order or position.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusPending || t.Status == StatusFilled
}

// Clone returns a deep copy safe to hand outside the engine lock.
func (t *Trade) Clone() Trade {
	c := *t
	if t.LimitPrice != nil {
		lp := *t.LimitPrice
		c.LimitPrice = &lp
	}
	return c
}

type Tick struct {
	Symbol    string
	Token     uint32
	LastPrice float64
}

// OrderUpdate is a broker-pushed status change for a previously placed order.
type OrderUpdate struct {
	OrderID      string
	Status       string
	AveragePrice float64
	Message      string
}

// Broker order status strings carried by OrderUpdate.
const (
	OrderStatusComplete  = "COMPLETE"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRejected  = "REJECTED"
)

type OrderReq struct {
	Side     Side
	Exchange string
	Symbol   string
	Qty      int
	Kind     OrderKind
	Price    float64
	Tag      string
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Instrument struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Token    uint32 `json:"token"`
}

type EntryRequest struct {
	Symbol          string    `json:"symbol"`
	Exchange        string    `json:"exchange"`
	Token           uint32    `json:"token"`
	Capital         float64   `json:"capital"`
	StopLossPercent float64   `json:"sl_percent"`
	TargetPercent   float64   `json:"target_percent"`
	Kind            OrderKind `json:"kind"`
	LimitPrice      *float64  `json:"limit_price,omitempty"`
}

// Confirmation is returned for an accepted entry. PersistWarning is set when
// the trade is live in memory but the snapshot write did not succeed.
type Confirmation struct {
	OrderID        string `json:"order_id"`
	Trade          Trade  `json:"trade"`
	Message        string `json:"message"`
	PersistWarning string `json:"persist_warning,omitempty"`
}

type ExitResult struct {
	OrderID     string     `json:"order_id"`
	ExitOrderID string     `json:"exit_order_id"`
	Symbol      string     `json:"symbol"`
	Reason      ExitReason `json:"reason"`
	ExitPrice   float64    `json:"exit_price"`
	PnL         float64    `json:"pnl"`
	PnLPercent  float64    `json:"pnl_percent"`
}

type TradeSummary struct {
	OrderID       string    `json:"order_id"`
	Symbol        string    `json:"symbol"`
	Status        Status    `json:"status"`
	Quantity      int       `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	StopLoss      float64   `json:"stop_loss"`
	Target        float64   `json:"target"`
	EntryTime     time.Time `json:"entry_time"`
	CurrentPrice  float64   `json:"current_price"`
	HasPrice      bool      `json:"has_price"`
	PnL           float64   `json:"pnl"`
	PnLPercent    float64   `json:"pnl_percent"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

type Statistics struct {
	TotalPnL   float64 `json:"total_pnl"`
	OpenCount  int     `json:"open_count"`
	TotalCount int     `json:"total_count"`
}

type LedgerEntry struct {
	Symbol     string
	EntryPrice float64
	EntryTime  time.Time
}

type LedgerExit struct {
	ExitPrice float64
	ExitTime  time.Time
	PnL       float64
}

// LedgerRow is a historical trade record. Exit fields stay nil until close.
type LedgerRow struct {
	Ref        string     `json:"ref"`
	Symbol     string     `json:"symbol"`
	EntryPrice float64    `json:"entry_price"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	ExitTime   *time.Time `json:"exit_time,omitempty"`
	PnL        *float64   `json:"pnl,omitempty"`
}

type NotificationKind string

const (
	NotifyEntry      NotificationKind = "ENTRY"
	NotifyFill       NotificationKind = "FILL"
	NotifyExit       NotificationKind = "EXIT"
	NotifyExitFailed NotificationKind = "EXIT_FAILED"
	NotifyCancelled  NotificationKind = "CANCELLED"
	NotifyRejected   NotificationKind = "REJECTED"
	NotifyRecovery   NotificationKind = "RECOVERY"
)

type Notification struct {
	ID      string           `json:"id"`
	Kind    NotificationKind `json:"kind"`
	OrderID string           `json:"order_id,omitempty"`
	Symbol  string           `json:"symbol,omitempty"`
	Text    string           `json:"text"`
	Time    time.Time        `json:"time"`
}

// JournalEvent is one line of the lifecycle audit trail.
type JournalEvent struct {
	Time    string         `json:"time"`
	Event   string         `json:"event"`
	OrderID string         `json:"order_id"`
	Symbol  string         `json:"symbol"`
	Side    Side           `json:"side,omitempty"`
	Qty     int            `json:"qty,omitempty"`
	Price   float64        `json:"price,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}
