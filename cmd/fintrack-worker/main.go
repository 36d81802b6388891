package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/worker"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting fintrack-worker")

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	if backendCfg.Type == backend.MemoryBackend {
		logger.Error("The worker needs a shared store; set DATA_BACKEND to sqlite or postgres")
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.Logger.With(applog.FieldComponent, applog.ComponentBackend))
	res, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	}()

	mirror, err := factory.CreateMirror(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize ledger mirror", "error", err)
		os.Exit(1)
	}
	if mirror == nil {
		logger.Info("Ledger mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	var notifier services.Notifier = services.NopNotifier{}
	if res.AMQP != nil {
		notifier = services.NewAMQPNotifier(res.AMQP)
	}
	reconciler := services.NewLedgerReconciler(res.Store, notifier, cli.ReconcilerConfig(cfg))
	syncWorker := worker.NewSyncWorker(res.Store, mirror, reconciler, cfg.ReconcileBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := reconciler.Stop(ctx); err != nil {
			logger.Error("Reconciler shutdown error", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reconciler.Start(gctx)
	})

	if res.AMQP != nil {
		g.Go(func() error {
			err := res.AMQP.Consume(gctx, syncWorker.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping AMQP message consumption - no broker available, polling only")
	}

	g.Go(func() error {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.ReconcileCleanupSchedule, func() {
			if _, err := reconciler.Cleanup(gctx); err != nil {
				logger.Error("Scheduled ledger sync cleanup failed", "error", err)
			}
		}); err != nil {
			return err
		}
		scheduler.Start()
		logger.Info("Scheduled ledger sync cleanup", "schedule", cfg.ReconcileCleanupSchedule)

		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = reconciler.Stop(stopCtx)
		cancel()
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
