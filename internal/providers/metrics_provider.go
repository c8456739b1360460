package providers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"streamflix/internal/structures"
	"time"
)

const (
	CreditOutcomeCredited  = "credited"
	CreditOutcomeZero      = "zero"
	CreditOutcomeDuplicate = "duplicate"
	CreditOutcomeRejected  = "rejected"
	CreditOutcomeFailed    = "failed"
)

// LedgerCounter reports how many ledgers exist, for the ledgers gauge.
type LedgerCounter interface {
	LedgerCount() int
}

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	ObservePersistenceDuration(duration time.Duration)
	IncCredits(outcome string)
	AddTokensAwarded(amount float64)
	SetArchivePending(count int)
}

type MetricsProvider struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	persistenceDuration prometheus.Histogram
	creditsTotal        *prometheus.CounterVec
	tokensAwarded       prometheus.Counter
	archivePending      prometheus.Gauge
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) ObservePersistenceDuration(duration time.Duration) {
	m.persistenceDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCredits(outcome string) {
	m.creditsTotal.WithLabelValues(outcome).Inc()
}

func (m *MetricsProvider) AddTokensAwarded(amount float64) {
	if amount > 0 {
		m.tokensAwarded.Add(amount)
	}
}

func (m *MetricsProvider) SetArchivePending(count int) {
	m.archivePending.Set(float64(count))
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config, ledgers LedgerCounter) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	m := &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamflix_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamflix_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamflix_cache_hits_total",
			Help: "Total number of leaderboard cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamflix_cache_misses_total",
			Help: "Total number of leaderboard cache misses",
		}),

		persistenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamflix_persistence_duration_seconds",
			Help:    "Duration of snapshot persistence in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		creditsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamflix_credits_total",
			Help: "Seeding reports processed by outcome",
		}, []string{"outcome"}),

		tokensAwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamflix_tokens_awarded_total",
			Help: "Tokens credited to ledgers",
		}),

		archivePending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamflix_archive_pending_entries",
			Help: "Evicted history entries waiting for the next archive flush",
		}),
	}

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "streamflix_ledgers_total",
		Help: "Number of user ledgers",
	}, func() float64 {
		return float64(ledgers.LedgerCount())
	})

	return m
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func NewNoopMetrics() MetricsProviderInterface {
	return &noopMetrics{}
}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) ObservePersistenceDuration(_ time.Duration)       {}
func (n *noopMetrics) IncCredits(_ string)                              {}
func (n *noopMetrics) AddTokensAwarded(_ float64)                       {}
func (n *noopMetrics) SetArchivePending(_ int)                          {}
