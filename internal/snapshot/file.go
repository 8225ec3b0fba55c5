// Package snapshot persists the live trade table so it survives a restart.
// Every Save replaces the whole set; records are keyed by order id.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
	"order-executor/internal/types"
)

// FileStore keeps the snapshot in a single JSON document.
type FileStore struct {
	path string
}

var _ interfaces.SnapshotStore = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes to a temp file in the same directory and renames it over the
// previous snapshot, so readers never observe a half-written document.
func (s *FileStore) Save(ctx context.Context, trades []types.Trade) error {
	doc := make(map[string]types.Trade, len(trades))
	for _, t := range trades {
		doc[t.OrderID] = t
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load returns every decodable record. A missing file is an empty snapshot.
// Records that fail to decode are skipped with a warning.
func (s *FileStore) Load(ctx context.Context) ([]types.Trade, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	trades := make([]types.Trade, 0, len(raw))
	for _, id := range keys {
		t, err := decodeRecord(id, raw[id])
		if err != nil {
			logger.Warn(ctx, "Dropping undecodable snapshot record", "order_id", id, "error", err)
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func decodeRecord(key string, data []byte) (types.Trade, error) {
	var t types.Trade
	if err := json.Unmarshal(data, &t); err != nil {
		return types.Trade{}, err
	}
	if t.OrderID == "" {
		t.OrderID = key
	}
	if t.OrderID != key {
		return types.Trade{}, fmt.Errorf("record key %q does not match order id %q", key, t.OrderID)
	}
	return t, nil
}
