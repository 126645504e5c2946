// Package cache stores readiness reports keyed by campaign structure version.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foxzi/flowry/internal/metrics"
	"github.com/foxzi/flowry/internal/readiness"
)

const keyPrefix = "flowry:readiness:"

// ReportCache looks up readiness reports. Misses and failures both return false.
type ReportCache interface {
	Get(ctx context.Context, campaignID string, version int64, goal string) (*readiness.Report, bool)
	Set(ctx context.Context, campaignID string, version int64, goal string, report *readiness.Report)
	Invalidate(ctx context.Context, campaignID string)
}

// Key builds the cache key. The goal is hashed since it is free text.
func Key(campaignID string, version int64, goal string) string {
	sum := sha256.Sum256([]byte(goal))
	return fmt.Sprintf("%s%s:%d:%s", keyPrefix, campaignID, version, hex.EncodeToString(sum[:4]))
}

// Config contains redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache keeps reports in redis with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis connects to redis and verifies the connection
func NewRedis(ctx context.Context, cfg Config, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(client, cfg.TTL, logger), nil
}

// NewRedisWithClient wraps an existing client
func NewRedisWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, campaignID string, version int64, goal string) (*readiness.Report, bool) {
	data, err := c.client.Get(ctx, Key(campaignID, version, goal)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.IncReadinessCache("miss")
		} else {
			c.logger.Warn("readiness cache get failed", "campaign_id", campaignID, "error", err)
			metrics.IncReadinessCache("error")
		}
		return nil, false
	}

	var r readiness.Report
	if err := json.Unmarshal(data, &r); err != nil {
		c.logger.Warn("corrupt readiness cache entry", "campaign_id", campaignID, "error", err)
		metrics.IncReadinessCache("error")
		return nil, false
	}
	metrics.IncReadinessCache("hit")
	return &r, true
}

func (c *RedisCache) Set(ctx context.Context, campaignID string, version int64, goal string, report *readiness.Report) {
	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Warn("failed to encode readiness report", "campaign_id", campaignID, "error", err)
		return
	}
	if err := c.client.Set(ctx, Key(campaignID, version, goal), data, c.ttl).Err(); err != nil {
		c.logger.Warn("readiness cache set failed", "campaign_id", campaignID, "error", err)
	}
}

// Invalidate drops every cached version of a campaign
func (c *RedisCache) Invalidate(ctx context.Context, campaignID string) {
	iter := c.client.Scan(ctx, 0, keyPrefix+campaignID+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("readiness cache scan failed", "campaign_id", campaignID, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("readiness cache delete failed", "campaign_id", campaignID, "error", err)
	}
}

// Close closes the redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Nop never caches anything
type Nop struct{}

func (Nop) Get(ctx context.Context, campaignID string, version int64, goal string) (*readiness.Report, bool) {
	return nil, false
}

func (Nop) Set(ctx context.Context, campaignID string, version int64, goal string, report *readiness.Report) {
}

func (Nop) Invalidate(ctx context.Context, campaignID string) {}
