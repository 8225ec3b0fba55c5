// Package ledger is the permanent record of every trade: one row written at
// entry, completed in place when the position is closed.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/market"
	"order-executor/internal/types"

	"github.com/gocarina/gocsv"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	ErrNotFound     = errors.New("ledger row not found")
	ErrInvalidInput = errors.New("invalid ledger input")
)

type csvRow struct {
	Symbol     string  `csv:"Symbol"`
	EntryPrice float64 `csv:"EntryPrice"`
	EntryTime  string  `csv:"EntryTime"`
	ExitPrice  string  `csv:"ExitPrice"`
	ExitTime   string  `csv:"ExitTime"`
	PnL        string  `csv:"PnL"`
}

// CSVLedger stores rows in a spreadsheet-friendly CSV file. The row ref is
// the 1-based data row number, which never changes since rows are only
// appended.
type CSVLedger struct {
	mu   sync.Mutex
	path string
}

var _ interfaces.Ledger = (*CSVLedger)(nil)

func NewCSVLedger(path string) *CSVLedger {
	return &CSVLedger{path: path}
}

func (l *CSVLedger) AppendEntry(ctx context.Context, e types.LedgerEntry) (string, error) {
	if e.Symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.read()
	if err != nil {
		return "", err
	}
	rows = append(rows, &csvRow{
		Symbol:     e.Symbol,
		EntryPrice: e.EntryPrice,
		EntryTime:  e.EntryTime.In(market.IST).Format(timeLayout),
	})
	if err := l.write(rows); err != nil {
		return "", err
	}
	return strconv.Itoa(len(rows)), nil
}

func (l *CSVLedger) UpdateExit(ctx context.Context, ref string, x types.LedgerExit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.read()
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(ref)
	if err != nil || idx < 1 || idx > len(rows) {
		return fmt.Errorf("%w: ref %q", ErrNotFound, ref)
	}

	r := rows[idx-1]
	r.ExitPrice = strconv.FormatFloat(x.ExitPrice, 'f', 2, 64)
	r.ExitTime = x.ExitTime.In(market.IST).Format(timeLayout)
	r.PnL = strconv.FormatFloat(x.PnL, 'f', 2, 64)
	return l.write(rows)
}

func (l *CSVLedger) Rows(ctx context.Context) ([]types.LedgerRow, error) {
	l.mu.Lock()
	rows, err := l.read()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]types.LedgerRow, 0, len(rows))
	for i, r := range rows {
		row, err := r.toLedgerRow(strconv.Itoa(i + 1))
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i+1, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *csvRow) toLedgerRow(ref string) (types.LedgerRow, error) {
	entryTime, err := time.ParseInLocation(timeLayout, r.EntryTime, market.IST)
	if err != nil {
		return types.LedgerRow{}, err
	}
	row := types.LedgerRow{
		Ref:        ref,
		Symbol:     r.Symbol,
		EntryPrice: r.EntryPrice,
		EntryTime:  entryTime,
	}
	if r.ExitPrice == "" {
		return row, nil
	}

	exitPrice, err := strconv.ParseFloat(r.ExitPrice, 64)
	if err != nil {
		return types.LedgerRow{}, err
	}
	pnl, err := strconv.ParseFloat(r.PnL, 64)
	if err != nil {
		return types.LedgerRow{}, err
	}
	exitTime, err := time.ParseInLocation(timeLayout, r.ExitTime, market.IST)
	if err != nil {
		return types.LedgerRow{}, err
	}
	row.ExitPrice = &exitPrice
	row.ExitTime = &exitTime
	row.PnL = &pnl
	return row, nil
}

func (l *CSVLedger) read() ([]*csvRow, error) {
	b, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}

	var rows []*csvRow
	if err := gocsv.UnmarshalBytes(b, &rows); err != nil {
		return nil, fmt.Errorf("parse ledger: %w", err)
	}
	return rows, nil
}

func (l *CSVLedger) write(rows []*csvRow) error {
	var buf bytes.Buffer
	if err := gocsv.Marshal(&rows, &buf); err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
