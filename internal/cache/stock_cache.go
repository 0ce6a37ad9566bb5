// Package cache keeps display reads of stock figures in Redis. The database
// stays authoritative: entries are dropped after every committed stock change
// and a cache miss or Redis failure falls through to Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ricemill-inventory/internal/config"
	"ricemill-inventory/internal/core"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "ricemill:stock:"

// allProducts is the levels key for an unfiltered stock listing.
const allProducts = 0

// StockCache is nil-safe: a nil *StockCache never hits and ignores writes.
type StockCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

// NewClient returns nil when no address is configured.
func NewClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewStockCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *StockCache {
	if rdb == nil {
		return nil
	}
	return &StockCache{rdb: rdb, ttl: ttl, log: log}
}

func productKey(productID int) string { return fmt.Sprintf("%sproduct:%d", keyPrefix, productID) }
func levelsKey(productID int) string  { return fmt.Sprintf("%slevels:%d", keyPrefix, productID) }

func (c *StockCache) GetProductStock(ctx context.Context, productID int) (*core.ProductStock, bool) {
	var ps core.ProductStock
	if !c.get(ctx, productKey(productID), &ps) {
		return nil, false
	}
	return &ps, true
}

func (c *StockCache) SetProductStock(ctx context.Context, ps *core.ProductStock) {
	c.set(ctx, productKey(ps.ProductID), ps)
}

// GetStockLevels looks up a listing; productID 0 is the listing of every product.
func (c *StockCache) GetStockLevels(ctx context.Context, productID int) ([]core.StockLevel, bool) {
	var levels []core.StockLevel
	if !c.get(ctx, levelsKey(productID), &levels) {
		return nil, false
	}
	return levels, true
}

func (c *StockCache) SetStockLevels(ctx context.Context, productID int, levels []core.StockLevel) {
	c.set(ctx, levelsKey(productID), levels)
}

// StockChanged drops every entry a committed change can have made stale.
func (c *StockCache) StockChanged(ctx context.Context, change core.StockChange) {
	if c == nil {
		return
	}
	keys := []string{levelsKey(allProducts)}
	for _, id := range change.ProductIDs {
		keys = append(keys, productKey(id), levelsKey(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("stock cache invalidation failed",
			zap.String("operation", change.Operation),
			zap.Ints("product_ids", change.ProductIDs),
			zap.Error(err))
	}
}

// Flush drops every cached stock entry, used after a projection rebuild.
func (c *StockCache) Flush(ctx context.Context) error {
	if c == nil {
		return nil
	}
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan stock cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to flush stock cache: %w", err)
	}
	return nil
}

func (c *StockCache) get(ctx context.Context, key string, v any) bool {
	if c == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("stock cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.log.Warn("stock cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *StockCache) set(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("stock cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("stock cache write failed", zap.String("key", key), zap.Error(err))
	}
}
