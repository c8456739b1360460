package storage

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"streamflix/internal/structures"
	"time"
)

const (
	reportKeyPrefix       = "streamflix:report:"
	defaultRedisTimeout   = 500 * time.Millisecond
	defaultRedisReportTTL = 10 * time.Minute
)

// RedisReportGuard shares claimed report ids between ledger replicas.
type RedisReportGuard struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
}

func NewRedisReportGuard(client redis.UniversalClient, ttl, timeout time.Duration) *RedisReportGuard {
	if ttl <= 0 {
		ttl = defaultRedisReportTTL
	}
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &RedisReportGuard{client: client, ttl: ttl, timeout: timeout}
}

func NewRedisClient(conf structures.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		DialTimeout:  conf.Timeout,
		ReadTimeout:  conf.Timeout,
		WriteTimeout: conf.Timeout,
	})
}

func reportKey(userID, reportID string) string {
	return reportKeyPrefix + userID + ":" + reportID
}

func (g *RedisReportGuard) Claim(ctx context.Context, userID, reportID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ok, err := g.client.SetNX(ctx, reportKey(userID, reportID), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim report %s: %w", reportID, err)
	}
	return ok, nil
}

// Release forgets a claim so the report can be retried after a failed credit.
func (g *RedisReportGuard) Release(ctx context.Context, userID, reportID string) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	g.client.Del(ctx, reportKey(userID, reportID))
}

func (g *RedisReportGuard) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.client.Ping(ctx).Err()
}
