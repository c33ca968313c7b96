// Package statscache is a Redis cache-aside layer over the materialized
// stats tables. The indexer invalidates entries after every recompute,
// so readers see at most one TTL of staleness and usually none.
package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyCampaign       = "campaign:"
	keyCampaignEvents = "campaign:events:"
	keyCampaignList   = "campaigns:all"
	keyWallet         = "wallet:"
	keyLeaderboard    = "leaderboard:"
)

type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

func DefaultConfig() Config {
	return Config{
		Addr: "localhost:6379",
		TTL:  30 * time.Second,
	}
}

// Cache wraps a Redis client with JSON get/set helpers.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, cfg.TTL, logger), nil
}

// NewWithClient wires an existing client, used by tests with miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "statscache"),
	}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// getJSON loads a cached value into dest. Returns false on miss; cache
// errors degrade to a miss so Redis trouble never breaks reads.
func (c *Cache) getJSON(ctx context.Context, key string, dest any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		c.client.Del(ctx, key)
		return false
	}
	return true
}

func (c *Cache) setJSON(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *Cache) del(ctx context.Context, keys ...string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache delete failed", "keys", keys, "error", err)
	}
}

// delPattern removes every key matching the pattern via SCAN.
func (c *Cache) delPattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed", "pattern", pattern, "error", err)
		return
	}
	if len(keys) > 0 {
		c.del(ctx, keys...)
	}
}

// InvalidateCampaign drops the campaign's entry plus the list views that
// embed it.
func (c *Cache) InvalidateCampaign(ctx context.Context, campaign string) {
	c.del(ctx, keyCampaign+campaign, keyCampaignEvents+campaign, keyCampaignList)
}

// InvalidateWallet drops the wallet's entry plus every leaderboard view.
func (c *Cache) InvalidateWallet(ctx context.Context, wallet string) {
	c.del(ctx, keyWallet+wallet)
	c.delPattern(ctx, keyLeaderboard+"*")
}
