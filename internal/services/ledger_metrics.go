package services

import (
	"streamflix/internal/providers"
	"streamflix/internal/structures"
)

// NewLedgerMetrics builds the metrics provider and hands it back to service,
// whose ledger count feeds the ledgers gauge.
func NewLedgerMetrics(conf *structures.Config, service LedgerServiceInterface) providers.MetricsProviderInterface {
	metrics := providers.NewMetricsProvider(conf, service)
	service.SetMetrics(metrics)
	return metrics
}
