package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"order-executor/internal/broker/brokerobs"
	"order-executor/internal/broker/zerodha"
	"order-executor/internal/engine"
	"order-executor/internal/eod"
	"order-executor/internal/eod/eodobs"
	"order-executor/internal/interfaces"
	"order-executor/internal/ledger"
	"order-executor/internal/logger"
	"order-executor/internal/metrics"
	"order-executor/internal/notify"
	"order-executor/internal/snapshot"
	"order-executor/internal/store"
	"order-executor/internal/trace"
	"order-executor/internal/tradelog"

	"github.com/joho/godotenv"
)

// closer collects shutdown hooks in reverse order of creation.
type closer []func()

func (c *closer) add(fn func()) { *c = append(*c, fn) }

func (c closer) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// initializeSystem loads the environment and initializes logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	logger.Info(ctx, "Config loaded",
		"mode", cfg.Mode,
		"exchange", cfg.Exchange,
		"snapshot", cfg.Snapshot.Backend,
		"ledger", cfg.Ledger.Backend,
	)
	return cfg, nil
}

// compressOldLogs gzips journal files older than TRADER_LOG_RETENTION_DAYS.
func compressOldLogs(ctx context.Context, j *tradelog.Journal) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Warn(ctx, "Ignoring invalid TRADER_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := j.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

func initializeSnapshot(ctx context.Context, cfg *store.Config, c *closer) (interfaces.SnapshotStore, error) {
	if cfg.Snapshot.Backend == "sqlite" {
		s, err := snapshot.NewSQLiteStore(ctx, cfg.Snapshot.Path)
		if err != nil {
			return nil, err
		}
		c.add(func() { _ = s.Close() })
		return s, nil
	}
	return snapshot.NewFileStore(cfg.Snapshot.Path), nil
}

func initializeLedger(ctx context.Context, cfg *store.Config, c *closer) (interfaces.Ledger, error) {
	if cfg.Ledger.Backend != "postgres" {
		return ledger.NewCSVLedger(cfg.Ledger.Path), nil
	}

	dsn := os.Getenv(cfg.Ledger.DSNEnv)
	if dsn == "" {
		return nil, fmt.Errorf("%s is not set", cfg.Ledger.DSNEnv)
	}
	pool, err := ledger.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	c.add(pool.Close)
	return ledger.NewPostgresLedger(ctx, pool)
}

func initializeNotifier(ctx context.Context, cfg *store.Config, m *metrics.Metrics, c *closer) *notify.Queue {
	sinks := []notify.Sink{notify.LogSink{}}
	if cfg.Notify.Telegram {
		tg, err := notify.NewTelegramSink(os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"))
		if err != nil {
			logger.Warn(ctx, "Telegram notifications disabled", "error", err)
		} else {
			sinks = append(sinks, tg)
		}
	}

	q := notify.NewQueue(cfg.Notify.QueueSize, m, sinks...)
	q.Start(context.WithoutCancel(ctx))
	c.add(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Close(closeCtx)
	})
	return q
}

// initializeGateway builds the paper or Kite gateway with observability.
func initializeGateway(ctx context.Context, cfg *store.Config, m *metrics.Metrics) (interfaces.Gateway, error) {
	gw, err := zerodha.NewGateway(ctx, zerodha.Params{
		Mode:        cfg.Mode,
		APIKey:      os.Getenv("KITE_API_KEY"),
		AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
		Exchange:    cfg.Exchange,
		Product:     cfg.Product,
	}, zerodha.PaperParams{
		Exchange:     cfg.Exchange,
		SeedPrice:    cfg.Paper.SeedPrice,
		TickInterval: time.Duration(cfg.Paper.TickMs) * time.Millisecond,
		Seed:         cfg.Paper.Seed,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Mode == zerodha.ModeDryRun {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}
	return brokerobs.Wrap(gw, m), nil
}

func initializeEngine(cfg *store.Config, deps engine.Deps) *engine.Engine {
	return engine.New(deps, engine.Config{
		StalenessBound:        cfg.StalenessBound(),
		SnapshotRetryAttempts: cfg.Snapshot.RetryAttempts,
		SnapshotRetryInitial:  cfg.SnapshotRetryInitial(),
	})
}

func initializeEOD(l interfaces.Ledger, dir string) interfaces.EodSummarizer {
	return eodobs.Wrap(eod.NewSummarizer(l, dir))
}
