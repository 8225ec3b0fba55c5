// Package eod writes the end-of-day per-symbol summary of the trade ledger.
package eod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/market"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

type eodSummarizer struct {
	ledger interfaces.Ledger
	dir    string
	now    func() time.Time
}

var _ interfaces.EodSummarizer = (*eodSummarizer)(nil)

// SummarizeDay aggregates the ledger rows entered on t's IST date. It returns
// an empty path and no error when there were no trades that day.
func (s *eodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	rows, err := s.ledger.Rows(ctx)
	if err != nil {
		return "", fmt.Errorf("read ledger: %w", err)
	}

	day := market.Day(t)
	aggs := map[string]*aggRow{}
	for _, r := range rows {
		if market.Day(r.EntryTime) != day {
			continue
		}
		a := aggs[r.Symbol]
		if a == nil {
			a = &aggRow{Symbol: r.Symbol}
			aggs[r.Symbol] = a
		}
		a.Trades++
		if r.PnL == nil {
			continue
		}
		a.Closed++
		a.RealizedPnL += *r.PnL
		switch {
		case *r.PnL > 0:
			a.Wins++
		case *r.PnL < 0:
			a.Losses++
		}
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*summaryRow, 0, len(keys)+1)
	total := aggRow{Symbol: "TOTAL"}
	for _, k := range keys {
		a := aggs[k]
		out = append(out, toSummaryRow(a))
		total.Trades += a.Trades
		total.Closed += a.Closed
		total.Wins += a.Wins
		total.Losses += a.Losses
		total.RealizedPnL += a.RealizedPnL
	}
	out = append(out, toSummaryRow(&total))

	var buf bytes.Buffer
	if err := gocsv.Marshal(&out, &buf); err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}

	outPath := eodCSVPath(s.dir, t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, s.now())
}

// ShouldRunNow is true after 15:40 IST on a day whose summary has not been
// written yet.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := s.now()
	outPath := eodCSVPath(s.dir, now)
	if now.After(summaryCutoff(now)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}

func toSummaryRow(a *aggRow) *summaryRow {
	return &summaryRow{
		Symbol:      a.Symbol,
		Trades:      a.Trades,
		Closed:      a.Closed,
		Open:        a.Trades - a.Closed,
		Wins:        a.Wins,
		Losses:      a.Losses,
		RealizedPnL: decimal.NewFromFloat(a.RealizedPnL).StringFixed(2),
	}
}
