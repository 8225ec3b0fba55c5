package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"order-executor/internal/market"
	"order-executor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVLedger_AppendAndUpdate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trade_log.csv")
	l := NewCSVLedger(path)

	entry := time.Date(2024, 3, 6, 9, 30, 0, 0, market.IST)
	ref1, err := l.AppendEntry(ctx, types.LedgerEntry{Symbol: "XYZ", EntryPrice: 100, EntryTime: entry})
	require.NoError(t, err)
	ref2, err := l.AppendEntry(ctx, types.LedgerEntry{Symbol: "ABC", EntryPrice: 250.5, EntryTime: entry})
	require.NoError(t, err)
	assert.Equal(t, "1", ref1)
	assert.Equal(t, "2", ref2)

	exit := entry.Add(40 * time.Minute)
	require.NoError(t, l.UpdateExit(ctx, ref1, types.LedgerExit{ExitPrice: 99.4, ExitTime: exit, PnL: -60}))

	rows, err := l.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "XYZ", rows[0].Symbol)
	require.NotNil(t, rows[0].PnL)
	assert.Equal(t, -60.0, *rows[0].PnL)
	assert.Equal(t, 99.4, *rows[0].ExitPrice)
	assert.True(t, exit.Equal(*rows[0].ExitTime))
	assert.True(t, entry.Equal(rows[0].EntryTime))

	assert.Nil(t, rows[1].ExitPrice)
	assert.Nil(t, rows[1].PnL)

	assert.Equal(t, -60.0, TotalPnL(rows))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	header := strings.SplitN(string(b), "\n", 2)[0]
	assert.Equal(t, "Symbol,EntryPrice,EntryTime,ExitPrice,ExitTime,PnL", header)
}

func TestCSVLedger_UnknownRef(t *testing.T) {
	ctx := context.Background()
	l := NewCSVLedger(filepath.Join(t.TempDir(), "trade_log.csv"))

	_, err := l.AppendEntry(ctx, types.LedgerEntry{Symbol: "XYZ", EntryPrice: 1, EntryTime: time.Now()})
	require.NoError(t, err)

	for _, ref := range []string{"", "0", "2", "abc"} {
		err := l.UpdateExit(ctx, ref, types.LedgerExit{ExitPrice: 1, ExitTime: time.Now()})
		assert.ErrorIs(t, err, ErrNotFound, ref)
	}

	_, err = l.AppendEntry(ctx, types.LedgerEntry{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCSVLedger_EmptyFile(t *testing.T) {
	rows, err := NewCSVLedger(filepath.Join(t.TempDir(), "none.csv")).Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}
