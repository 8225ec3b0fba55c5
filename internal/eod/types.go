package eod

// aggRow accumulates the day's ledger rows for one symbol.
type aggRow struct {
	Symbol      string
	Trades      int
	Closed      int
	Wins        int
	Losses      int
	RealizedPnL float64
}

// summaryRow is one line of the end-of-day CSV.
type summaryRow struct {
	Symbol      string `csv:"symbol"`
	Trades      int    `csv:"trades"`
	Closed      int    `csv:"closed"`
	Open        int    `csv:"open"`
	Wins        int    `csv:"wins"`
	Losses      int    `csv:"losses"`
	RealizedPnL string `csv:"realized_pnl"`
}
