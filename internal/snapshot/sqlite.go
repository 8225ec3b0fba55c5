package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
	"order-executor/internal/types"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS open_trades (
	order_id   TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteStore keeps one row per live trade; Save swaps the whole table in a
// single transaction.
type SQLiteStore struct {
	db *sql.DB
}

var _ interfaces.SnapshotStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between concurrent saves
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, trades []types.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM open_trades"); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO open_trades (order_id, payload, updated_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, t := range trades {
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode trade %s: %w", t.OrderID, err)
		}
		if _, err := stmt.ExecContext(ctx, t.OrderID, string(payload), now); err != nil {
			return fmt.Errorf("insert trade %s: %w", t.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT order_id, payload FROM open_trades ORDER BY order_id")
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		t, err := decodeRecord(id, []byte(payload))
		if err != nil {
			logger.Warn(ctx, "Dropping undecodable snapshot record", "order_id", id, "error", err)
			continue
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
