package ledger

import (
	"context"
	"testing"
	"time"

	"order-executor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a disposable Postgres and returns a connected pool.
func setupTestDB(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	t.Cleanup(func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})
	return pool
}

func TestPostgresLedger_AppendAndUpdate(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	l, err := NewPostgresLedger(ctx, pool)
	require.NoError(t, err)

	entry := time.Date(2024, 3, 6, 4, 0, 0, 0, time.UTC)
	ref, err := l.AppendEntry(ctx, types.LedgerEntry{Symbol: "XYZ", EntryPrice: 100, EntryTime: entry})
	require.NoError(t, err)
	_, err = l.AppendEntry(ctx, types.LedgerEntry{Symbol: "ABC", EntryPrice: 50, EntryTime: entry})
	require.NoError(t, err)

	exit := entry.Add(time.Hour)
	require.NoError(t, l.UpdateExit(ctx, ref, types.LedgerExit{ExitPrice: 101, ExitTime: exit, PnL: 100}))

	rows, err := l.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ref, rows[0].Ref)
	require.NotNil(t, rows[0].PnL)
	assert.Equal(t, 100.0, *rows[0].PnL)
	assert.True(t, exit.Equal(*rows[0].ExitTime))
	assert.Nil(t, rows[1].PnL)
	assert.Equal(t, 100.0, TotalPnL(rows))

	err = l.UpdateExit(ctx, "99999", types.LedgerExit{ExitPrice: 1, ExitTime: exit})
	assert.ErrorIs(t, err, ErrNotFound)
}
