package storage

import (
	"context"
	"streamflix/internal/models"
	"streamflix/internal/providers"
	"streamflix/internal/services"
	"streamflix/internal/structures"
)

const DriverPostgres = "postgres"

// NewLedgerRepository opens the repository selected by storage.driver. The
// returned cleanup releases its connections.
func NewLedgerRepository(conf *structures.Config, logger providers.Logger) (services.LedgerRepository, func(), error) {
	if conf.Storage.Driver == DriverPostgres {
		repo, err := NewPostgresLedgerRepository(context.Background(), conf.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	}
	logger.Infof(providers.TypeApp, "Using in-memory ledger store persisted to %s", conf.Persistence.FilePath)
	return models.NewLedgerStore(conf.Ledger.MaxLedgers), func() {}, nil
}

// NewReportGuard shares report ids through Redis when enabled. An unreachable
// Redis at startup falls back to the in-process guard.
func NewReportGuard(conf *structures.Config, logger providers.Logger) (services.ReportGuard, func()) {
	if !conf.Redis.Enabled {
		return services.NewMemoryReportGuard(conf.Ledger.ReportIDTTL, nil), func() {}
	}

	client := NewRedisClient(conf.Redis)
	guard := NewRedisReportGuard(client, conf.Ledger.ReportIDTTL, conf.Redis.Timeout)
	if err := guard.Ping(context.Background()); err != nil {
		logger.Warnf(providers.TypeApp, "Redis %s unavailable, report ids are tracked per process: %s", conf.Redis.Addr, err)
		_ = client.Close()
		return services.NewMemoryReportGuard(conf.Ledger.ReportIDTTL, nil), func() {}
	}
	logger.Infof(providers.TypeApp, "Report ids are tracked in Redis at %s", conf.Redis.Addr)
	return guard, func() { _ = client.Close() }
}
