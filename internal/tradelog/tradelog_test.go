package tradelog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"order-executor/internal/market"
	"order-executor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_Record(t *testing.T) {
	dir := t.TempDir()
	j := New(dir)
	fixed := time.Date(2024, 3, 6, 4, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	require.NoError(t, j.Record(types.JournalEvent{Event: "ENTRY", OrderID: "1", Symbol: "XYZ", Side: types.SideBuy, Qty: 100, Price: 100}))
	require.NoError(t, j.Record(types.JournalEvent{Event: "EXIT", OrderID: "1", Symbol: "XYZ", Side: types.SideSell, Qty: 100, Price: 99.4, Reason: "STOP_LOSS"}))

	f, err := os.Open(filepath.Join(dir, "2024-03-06.txt"))
	require.NoError(t, err)
	defer f.Close()

	var events []types.JournalEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e types.JournalEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, "2024-03-06 09:30:00", events[0].Time)
	assert.Equal(t, "STOP_LOSS", events[1].Reason)
	assert.Equal(t, j.DailyPath(fixed.In(market.IST)), f.Name())
}

func TestJournal_CompressOlder(t *testing.T) {
	dir := t.TempDir()
	j := New(dir)

	old := filepath.Join(dir, "2024-01-01.txt")
	fresh := filepath.Join(dir, "2024-03-06.txt")
	require.NoError(t, os.WriteFile(old, []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("{}\n"), 0o644))

	past := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(old, past, past))

	require.NoError(t, j.CompressOlder(7))

	assert.NoFileExists(t, old)
	assert.FileExists(t, old+".gz")
	assert.FileExists(t, fresh)
	assert.NoFileExists(t, fresh+".gz")

	require.NoError(t, j.CompressOlder(0))
}
