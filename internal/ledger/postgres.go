package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS trade_ledger (
	id          BIGSERIAL PRIMARY KEY,
	symbol      TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	entry_time  TIMESTAMPTZ NOT NULL,
	exit_price  DOUBLE PRECISION,
	exit_time   TIMESTAMPTZ,
	pnl         DOUBLE PRECISION
);`

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a Postgres connection pool and verifies it with a ping.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// PostgresLedger keeps the ledger in the trade_ledger table; the row ref is
// the serial id.
type PostgresLedger struct {
	pool *Pool
}

var _ interfaces.Ledger = (*PostgresLedger)(nil)

// NewPostgresLedger creates the table if needed.
func NewPostgresLedger(ctx context.Context, pool *Pool) (*PostgresLedger, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &PostgresLedger{pool: pool}, nil
}

func (l *PostgresLedger) AppendEntry(ctx context.Context, e types.LedgerEntry) (string, error) {
	if e.Symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	var id int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO trade_ledger (symbol, entry_price, entry_time) VALUES ($1, $2, $3) RETURNING id`,
		e.Symbol, e.EntryPrice, e.EntryTime,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert ledger entry: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (l *PostgresLedger) UpdateExit(ctx context.Context, ref string, x types.LedgerExit) error {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: ref %q", ErrNotFound, ref)
	}
	tag, err := l.pool.Exec(ctx,
		`UPDATE trade_ledger SET exit_price = $2, exit_time = $3, pnl = $4 WHERE id = $1`,
		id, x.ExitPrice, x.ExitTime, x.PnL,
	)
	if err != nil {
		return fmt.Errorf("update ledger exit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: ref %q", ErrNotFound, ref)
	}
	return nil
}

func (l *PostgresLedger) Rows(ctx context.Context) ([]types.LedgerRow, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, symbol, entry_price, entry_time, exit_price, exit_time, pnl FROM trade_ledger ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []types.LedgerRow
	for rows.Next() {
		var (
			id        int64
			r         types.LedgerRow
			exitPrice *float64
			exitTime  *time.Time
			pnl       *float64
		)
		if err := rows.Scan(&id, &r.Symbol, &r.EntryPrice, &r.EntryTime, &exitPrice, &exitTime, &pnl); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		r.Ref = strconv.FormatInt(id, 10)
		r.ExitPrice, r.ExitTime, r.PnL = exitPrice, exitTime, pnl
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return out, nil
}
