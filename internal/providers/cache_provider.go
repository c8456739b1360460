package providers

import (
	"github.com/coocood/freecache"
	"streamflix/internal/structures"
	"unsafe"
)

// CacheProviderInterface holds rendered responses, currently only the public leaderboard.
type CacheProviderInterface interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

type CacheProvider struct {
	cache   *freecache.Cache
	ttl     int
	logger  Logger
	metrics MetricsProviderInterface
}

// NewCacheProvider returns a freecache-backed cache sized in MB. A disabled cache
// is a noop that records neither hits nor misses.
func NewCacheProvider(conf *structures.Config, logger Logger, metrics MetricsProviderInterface) CacheProviderInterface {
	if !conf.Cache.Enabled || conf.Cache.Size <= 0 {
		logger.Infof(TypeApp, "Leaderboard cache disabled")
		return &noopCache{}
	}

	sizeBytes := conf.Cache.Size * 1024 * 1024
	ttl := max(int(conf.Cache.TTL.Seconds()), 1)

	logger.Infof(TypeApp, "Leaderboard cache initialized: %dMB, TTL=%ds", conf.Cache.Size, ttl)

	return &CacheProvider{
		cache:   freecache.NewCache(sizeBytes),
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// freecache copies keys, so the aliased bytes are never written.
func unsafeStringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func (c *CacheProvider) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get(unsafeStringToBytes(key))
	if err != nil {
		c.metrics.IncCacheMisses()
		return nil, false
	}
	c.metrics.IncCacheHits()
	return val, true
}

// Set stores value for the configured TTL. Entries above 1/1024 of the cache
// size are rejected by freecache and only logged.
func (c *CacheProvider) Set(key string, value []byte) {
	if err := c.cache.Set(unsafeStringToBytes(key), value, c.ttl); err != nil {
		c.logger.Warnf(TypeApp, "Cache set %q (%d bytes) failed: %v", key, len(value), err)
	}
}

type noopCache struct{}

func (n *noopCache) Get(_ string) ([]byte, bool) { return nil, false }
func (n *noopCache) Set(_ string, _ []byte)      {}
