package interfaces

import (
	"context"

	"order-executor/internal/types"
)

// SnapshotStore keeps the full set of live trades. Save replaces everything.
type SnapshotStore interface {
	Save(ctx context.Context, trades []types.Trade) error
	Load(ctx context.Context) ([]types.Trade, error)
}

// Ledger is the permanent trade history, one row per trade.
type Ledger interface {
	AppendEntry(ctx context.Context, e types.LedgerEntry) (ref string, err error)
	UpdateExit(ctx context.Context, ref string, x types.LedgerExit) error
	Rows(ctx context.Context) ([]types.LedgerRow, error)
}

// Journal records lifecycle events for audit.
type Journal interface {
	Record(e types.JournalEvent) error
}
