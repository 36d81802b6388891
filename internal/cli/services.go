package cli

import (
	"fintrack/internal/config"
	"fintrack/internal/services"
)

// LifecycleConfig maps the compound-operation settings.
func LifecycleConfig(cfg *config.Config) services.Config {
	return services.Config{
		StoreTimeout:          cfg.StoreTimeout,
		DerivedWriteAttempts:  cfg.DerivedWriteAttempts,
		DerivedWriteBackoff:   cfg.DerivedWriteBackoff,
		RequireFundedDeposits: cfg.RequireFundedDeposits,
	}
}

// ReconcilerConfig maps the reconciler settings onto the defaults.
func ReconcilerConfig(cfg *config.Config) services.ReconcilerConfig {
	rcfg := services.DefaultReconcilerConfig()
	rcfg.PollInterval = cfg.ReconcileInterval
	rcfg.BatchSize = cfg.ReconcileBatchSize
	rcfg.MaxRetries = cfg.ReconcileMaxRetries
	rcfg.CleanupAge = cfg.ReconcileRetention
	rcfg.CallTimeout = cfg.StoreTimeout
	return rcfg
}
