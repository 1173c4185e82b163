package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	"github.com/redis/go-redis/v9"
)

// -----------------------------------------------------------------------------
// RedisCache mirrors the latest ticker and price payloads into Redis with
// per-class TTLs so the REST surface and other processes read what the
// streams produce. Keys follow the scheme <prefix>:<class>:<identifier>.
// -----------------------------------------------------------------------------

type RedisCache struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
	marketTTL  time.Duration
	priceTTL   time.Duration
	Logger     *logger.Logger
}

// -----------------------------------------------------------------------------

// NewRedisCache connects and pings the configured Redis instance.
func NewRedisCache(cfg models.MCacheConfig, log *logger.Logger) (*RedisCache, error) {
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

	rc := &RedisCache{
		client:     client,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: time.Duration(cfg.DefaultTTLSeconds) * time.Second,
		marketTTL:  time.Duration(cfg.MarketTTLSeconds) * time.Second,
		priceTTL:   time.Duration(cfg.PriceTTLSeconds) * time.Second,
		Logger:     log,
	}
	log.Info("Connected to Redis at %s (prefix=%s)", cfg.Addr, cfg.KeyPrefix)
	return rc, nil
}

// -----------------------------------------------------------------------------

func (rc *RedisCache) key(class, identifier string) string {
	return fmt.Sprintf("%s:%s:%s", rc.keyPrefix, class, identifier)
}

// -----------------------------------------------------------------------------

// SetTicker stores a formatted ticker under the market TTL class.
func (rc *RedisCache) SetTicker(ctx context.Context, symbol string, ticker *models.MTicker) error {
	data, err := json.Marshal(ticker)
	if err != nil {
		return fmt.Errorf("marshal ticker for %s: %w", symbol, err)
	}
	return rc.client.Set(ctx, rc.key("market", "data:"+symbol), data, rc.marketTTL).Err()
}

// -----------------------------------------------------------------------------

// GetTicker returns the cached ticker or nil on miss.
func (rc *RedisCache) GetTicker(ctx context.Context, symbol string) (*models.MTicker, error) {
	data, err := rc.client.Get(ctx, rc.key("market", "data:"+symbol)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ticker models.MTicker
	if err := json.Unmarshal(data, &ticker); err != nil {
		return nil, fmt.Errorf("unmarshal cached ticker for %s: %w", symbol, err)
	}
	return &ticker, nil
}

// -----------------------------------------------------------------------------

// SetPrice stores a tick snapshot under the short price TTL class.
func (rc *RedisCache) SetPrice(ctx context.Context, symbol string, snap models.MTickSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal price for %s: %w", symbol, err)
	}
	return rc.client.Set(ctx, rc.key("market", "price:"+symbol), data, rc.priceTTL).Err()
}

// -----------------------------------------------------------------------------

// GetPrice returns the cached snapshot and whether one was present.
func (rc *RedisCache) GetPrice(ctx context.Context, symbol string) (models.MTickSnapshot, bool, error) {
	data, err := rc.client.Get(ctx, rc.key("market", "price:"+symbol)).Bytes()
	if err == redis.Nil {
		return models.MTickSnapshot{}, false, nil
	}
	if err != nil {
		return models.MTickSnapshot{}, false, err
	}
	var snap models.MTickSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.MTickSnapshot{}, false, err
	}
	return snap, true, nil
}

// -----------------------------------------------------------------------------

// Close releases the underlying connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// -----------------------------------------------------------------------------
// NoopMarketCache is used when caching is disabled or Redis is unreachable.
// Writes vanish and reads always miss; callers never branch on availability.
// -----------------------------------------------------------------------------

type NoopMarketCache struct{}

func (NoopMarketCache) SetTicker(ctx context.Context, symbol string, ticker *models.MTicker) error {
	return nil
}

func (NoopMarketCache) GetTicker(ctx context.Context, symbol string) (*models.MTicker, error) {
	return nil, nil
}

func (NoopMarketCache) SetPrice(ctx context.Context, symbol string, snap models.MTickSnapshot) error {
	return nil
}

func (NoopMarketCache) GetPrice(ctx context.Context, symbol string) (models.MTickSnapshot, bool, error) {
	return models.MTickSnapshot{}, false, nil
}

func (NoopMarketCache) Close() error { return nil }
