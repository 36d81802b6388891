package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger.With(applog.FieldComponent, applog.ComponentBackend)).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	dashboards := cache.NewLRUCache[services.Dashboard](cfg.StatsCacheSize, cfg.StatsCacheTTL)
	caches := cache.NewManager()
	caches.Register(dashboards)
	caches.StartCleanup(time.Minute)

	stats := services.NewStatsService(res.Store, dashboards, cfg.StoreTimeout)
	notifiers := services.Notifiers{stats}
	if res.AMQP != nil {
		notifiers = append(notifiers, services.NewAMQPNotifier(res.AMQP))
	}
	lifecycle := services.NewLifecycleService(res.Store, notifiers, cli.LifecycleConfig(cfg))

	// An in-memory store is invisible to the worker process, so pending
	// ledger entries are reconciled here.
	var reconciler *services.LedgerReconciler
	if backendCfg.Type == backend.MemoryBackend {
		reconciler = services.NewLedgerReconciler(res.Store, stats, cli.ReconcilerConfig(cfg))
	}

	srv := apphttp.NewServer(":"+cfg.Port, lifecycle, stats, res.Store, apphttp.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if reconciler != nil {
			if err := reconciler.Stop(ctx); err != nil {
				logger.Error("Reconciler shutdown error", "error", err)
			}
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	// Reconciliations in the worker process reach this cache through the
	// broker; without one, cached dashboards live until STATS_CACHE_TTL.
	if res.AMQP != nil {
		go followBalanceChanges(ctx, logger, res.AMQP, worker.NewCacheInvalidator(stats))
	}

	if reconciler != nil {
		if err := reconciler.Start(ctx); err != nil {
			logger.Error("Failed to start reconciler", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Starting fintrack API", "port", cfg.Port, "backend", cfg.DataBackend, "base_url", cfg.BaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// followBalanceChanges keeps a subscription open until ctx is done.
func followBalanceChanges(ctx context.Context, logger *applog.Logger, client *amqp.Client, handler func(context.Context, *amqp.LedgerEvent) error) {
	for {
		err := client.Subscribe(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("Balance change subscription interrupted, retrying", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
