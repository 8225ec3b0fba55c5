package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-executor/internal/engine"
	"order-executor/internal/engine/engineobs"
	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
	"order-executor/internal/metrics"
	"order-executor/internal/preferences"
	"order-executor/internal/server"
	"order-executor/internal/trace"
	"order-executor/internal/tradelog"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	must(initializeSystem())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logger.ErrorWithErr(ctx, "Executor stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}

	var cleanup closer
	defer cleanup.run()
	cleanup.add(func() { _ = trace.Shutdown(context.Background()) })

	m := metrics.New()

	journal := tradelog.New(cfg.JournalDir)
	compressOldLogs(ctx, journal)

	snap, err := initializeSnapshot(ctx, cfg, &cleanup)
	if err != nil {
		return err
	}
	led, err := initializeLedger(ctx, cfg, &cleanup)
	if err != nil {
		return err
	}
	prefs, err := preferences.Open(cfg.PreferencesPath)
	if err != nil {
		return err
	}
	notifier := initializeNotifier(ctx, cfg, m, &cleanup)

	gw, err := initializeGateway(ctx, cfg, m)
	if err != nil {
		return err
	}

	eng := initializeEngine(cfg, engine.Deps{
		Gateway:  gw,
		Store:    snap,
		Ledger:   led,
		Notifier: notifier,
		Journal:  journal,
		Metrics:  m,
	})

	// Callbacks go in before the stream starts; ticks are ignored until
	// recovery finishes.
	gw.OnTick(eng.OnTick)
	gw.OnOrderUpdate(eng.OnOrderUpdate)
	if err := gw.Start(ctx); err != nil {
		return err
	}
	cleanup.add(func() { gw.Stop(context.Background()) })

	if err := eng.Recover(ctx); err != nil {
		return err
	}
	cleanup.add(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			logger.Warn(context.Background(), "Exits still running at shutdown", "error", err)
		}
	})

	srv := server.New(server.Deps{
		Engine:      engineobs.Wrap(eng),
		Gateway:     gw,
		Preferences: prefs,
		Metrics:     m,
		Ready:       eng.Ready,
		Exchange:    cfg.Exchange,
	})
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srvErr := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe(ctx, cfg.HTTP.Addr)
		cancel()
		srvErr <- err
	}()

	summarizer := initializeEOD(led, cfg.JournalDir)
	runLoop(ctx, summarizer)

	logger.Info(ctx, "Shutting down...")
	if err := <-srvErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runLoop writes the end-of-day summary once the cutoff passes and returns
// when ctx is done.
func runLoop(ctx context.Context, summarizer interfaces.EodSummarizer) {
	eodTick := time.NewTicker(60 * time.Second)
	defer eodTick.Stop()

	logger.Info(ctx, "Executor started")
	for {
		select {
		case <-eodTick.C:
			if ok, _ := summarizer.ShouldRunNow(); ok {
				_, _ = summarizer.SummarizeToday(ctx)
			}
		case <-ctx.Done():
			_, _ = summarizer.SummarizeToday(context.WithoutCancel(ctx))
			return
		}
	}
}
