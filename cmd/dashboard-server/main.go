package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/juankaspain/BotV2-sub004/internal/config"
	"github.com/juankaspain/BotV2-sub004/internal/httpapi"
	"github.com/juankaspain/BotV2-sub004/internal/loader"
	"github.com/juankaspain/BotV2-sub004/internal/metrics"
	"github.com/juankaspain/BotV2-sub004/internal/section"
	"github.com/juankaspain/BotV2-sub004/internal/store"
	"github.com/juankaspain/BotV2-sub004/internal/util"
)

func main() {
	cfgPath := "config/dashboard.yaml"
	if p := os.Getenv("DASHBOARD_CONFIG"); p != "" {
		cfgPath = p
	}

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); err == nil {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
	} else {
		cfg = config.Default()
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}

	state, err := store.NewStateStore(
		filepath.Join(cfg.Storage.DataDir, cfg.Storage.SQLitePath), logger)
	if err != nil {
		log.Fatalf("opening state store: %v", err)
	}
	defer state.Close()
	snaps := store.NewSnapshotStore(cfg.Storage.DataDir)

	mon := metrics.NewMonitor(logger, 0)
	catalog := section.NewCatalog(cfg.Alpaca, cfg.Perf, logger)

	ld := loader.New(loader.Config{
		Fetch:          catalog.Fetch,
		Predict:        section.Next,
		CacheCapacity:  cfg.Perf.CacheCapacity,
		CacheTTL:       cfg.Perf.CacheTTL(),
		PrefetchMaxAge: cfg.Perf.PrefetchMaxAge(),
		QueueSize:      cfg.Perf.QueueConcurrency,
		Monitor:        mon,
		Logger:         logger,
	})

	srv := httpapi.NewDashboardServer(ld, state, snaps, mon, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("dashboard server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Warm the first sections a user lands on.
	g.Go(func() error {
		for _, key := range []string{section.KeyAccount, section.KeyPositions} {
			ld.Prefetch(ctx, key)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down dashboard server")
		srv.Hub().Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
