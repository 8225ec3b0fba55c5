package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrades() []types.Trade {
	limit := 250.5
	entry := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	return []types.Trade{
		{
			OrderID: "240306000001", Symbol: "XYZ", Exchange: "NSE", InstrumentToken: 123,
			Quantity: 100, EntryPrice: 100, StopLossPrice: 99.5, TargetPrice: 101,
			StopLossPercent: 0.5, TargetPercent: 1, OrderKind: types.OrderKindMarket,
			Status: types.StatusFilled, EntryTime: entry, LedgerRowRef: "1",
		},
		{
			OrderID: "240306000002", Symbol: "ABC", Exchange: "BSE", InstrumentToken: 456,
			Quantity: 39, EntryPrice: limit, StopLossPrice: 245.49, TargetPrice: 258.02,
			StopLossPercent: 2, TargetPercent: 3, OrderKind: types.OrderKindLimit, LimitPrice: &limit,
			Status: types.StatusPending, EntryTime: entry, LedgerRowRef: "2",
		},
	}
}

func stores(t *testing.T) map[string]interfaces.SnapshotStore {
	t.Helper()
	dir := t.TempDir()

	sq, err := NewSQLiteStore(context.Background(), filepath.Join(dir, "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]interfaces.SnapshotStore{
		"file":   NewFileStore(filepath.Join(dir, "active_trades.json")),
		"sqlite": sq,
	}
}

func TestStores_RoundTripAndReplace(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			want := sampleTrades()
			require.NoError(t, s.Save(ctx, want))

			got, err = s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, want[0].OrderID, got[0].OrderID)
			assert.Equal(t, want[0].StopLossPrice, got[0].StopLossPrice)
			assert.True(t, want[0].EntryTime.Equal(got[0].EntryTime))
			require.NotNil(t, got[1].LimitPrice)
			assert.Equal(t, 250.5, *got[1].LimitPrice)

			// full replace: the second save drops the first trade
			require.NoError(t, s.Save(ctx, want[1:]))
			got, err = s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "240306000002", got[0].OrderID)

			require.NoError(t, s.Save(ctx, nil))
			got, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestFileStore_SkipsUndecodableRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_trades.json")
	doc := `{
  "good": {"order_id": "good", "symbol": "XYZ", "quantity": 10},
  "bad": {"order_id": "bad", "quantity": "ten"},
  "mismatch": {"order_id": "other"}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].OrderID)
}

func TestFileStore_CorruptContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_trades.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}
