// Package main provides the entry point for the plan comparison dashboard.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/config"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/dataset"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/health"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/logging"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/metrics"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/server"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// LOG_LEVEL and LOG_FORMAT apply until the configured logger replaces this one.
	logger := logging.New("info", "json")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	for _, w := range cfg.Warnings {
		logger.Warn("configuration adjusted", zap.String("detail", w))
	}

	logger.Info("starting dashboard",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("data_dir", cfg.Data.Dir),
		zap.String("root_dir", cfg.Data.RootDir))

	m := metrics.NewMetrics()

	finder := dataset.NewFinder(cfg.Data.ConsolidatedDir(), cfg.Data.RootDir)
	cache := dataset.NewCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
	store := dataset.NewStore(finder, cache, m, logger)
	healthCheck := health.NewHealthCheck(store, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go healthCheck.Run(ctx)

	if _, err := finder.Latest(); err != nil {
		// Not fatal: the pages show the error until a file lands.
		logger.Warn("no consolidated file available yet", zap.Error(err))
	}

	var watcher *dataset.Watcher
	if cfg.Watcher.Enabled {
		watcher, err = dataset.NewWatcher(finder.Dirs(), cfg.Watcher.Debounce, func() {
			store.Refresh()
			healthCheck.Invalidate()
		}, logger)
		if err != nil {
			logger.Error("failed to create file watcher", zap.Error(err))
		} else if err := watcher.Start(ctx); err != nil {
			logger.Error("failed to start file watcher", zap.Error(err))
		}
	}

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := server.NewServer(cfg, store, healthCheck, m, logger)
	httpServer.SetupRoutes()

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
	}

	logger.Info("initiating graceful shutdown")
	healthCheck.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}
	if watcher != nil {
		watcher.Stop()
	}

	logger.Info("dashboard shutdown complete")
	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}
