//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"
	"streamflix/internal"
	"streamflix/internal/controllers"
	"streamflix/internal/persistence"
	"streamflix/internal/providers"
	"streamflix/internal/services"
	"streamflix/internal/storage"
	"streamflix/internal/structures"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, func(), error) {
	wire.Build(
		providers.NewConfigProvider,
		provideLogger,
		providers.NewCacheProvider,
		providers.NewIdentityProvider,

		storage.NewLedgerRepository,
		storage.NewReportGuard,
		services.NewLedgerService,
		services.NewLedgerMetrics,

		provideCompressor,
		persistence.NewFileManager,
		persistence.NewHistoryArchiveFromConfig,
		persistence.NewScheduler,
		controllers.NewApiController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil, nil
}
