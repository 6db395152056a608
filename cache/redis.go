// Package cache holds the advisory Redis caches for balances and jackpot
// pools. Every value here may be stale or missing; callers always fall back
// to Postgres.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casino/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	balanceKeyFormat = "casino:account:%s:balance"
	poolKeyFormat    = "casino:jackpot:%s:pool"

	DefaultBalanceTTL = 5 * time.Minute
	DefaultPoolTTL    = 24 * time.Hour
)

// Connect opens a Redis client from config. It returns nil when Redis is not
// configured or unreachable; the service then runs without a cache.
func Connect(ctx context.Context, cfg *config.Config) *redis.Client {
	if !cfg.RedisEnabled() {
		log.Info("Redis not configured, running without cache")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("Redis connection failed, continuing without cache")
		_ = client.Close()
		return nil
	}

	log.WithField("addr", cfg.RedisAddr).Info("Redis connection established")
	return client
}

// RedisCache implements both the balance and the jackpot pool cache
type RedisCache struct {
	client     *redis.Client
	balanceTTL time.Duration
	poolTTL    time.Duration
}

// NewRedisCache wraps client with the default TTLs
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:     client,
		balanceTTL: DefaultBalanceTTL,
		poolTTL:    DefaultPoolTTL,
	}
}

// WithTTLs overrides the expiry of cached entries
func (c *RedisCache) WithTTLs(balanceTTL, poolTTL time.Duration) *RedisCache {
	c.balanceTTL = balanceTTL
	c.poolTTL = poolTTL
	return c
}

func balanceKey(accountID uuid.UUID) string {
	return fmt.Sprintf(balanceKeyFormat, accountID)
}

func poolKey(gameID string) string {
	return fmt.Sprintf(poolKeyFormat, gameID)
}

func (c *RedisCache) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, bool, error) {
	return c.getDecimal(ctx, balanceKey(accountID))
}

func (c *RedisCache) SetBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error {
	return c.setDecimal(ctx, balanceKey(accountID), balance, c.balanceTTL)
}

func (c *RedisCache) InvalidateBalance(ctx context.Context, accountID uuid.UUID) error {
	return c.del(ctx, balanceKey(accountID))
}

func (c *RedisCache) GetPool(ctx context.Context, gameID string) (decimal.Decimal, bool, error) {
	return c.getDecimal(ctx, poolKey(gameID))
}

func (c *RedisCache) SetPool(ctx context.Context, gameID string, amount decimal.Decimal) error {
	return c.setDecimal(ctx, poolKey(gameID), amount, c.poolTTL)
}

func (c *RedisCache) InvalidatePool(ctx context.Context, gameID string) error {
	return c.del(ctx, poolKey(gameID))
}

func (c *RedisCache) getDecimal(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	amount, err := decimal.NewFromString(val)
	if err != nil {
		// unreadable entries are dropped so the next read repopulates them
		_ = c.client.Del(ctx, key).Err()
		return decimal.Zero, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return amount, true, nil
}

func (c *RedisCache) setDecimal(ctx context.Context, key string, amount decimal.Decimal, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, amount.StringFixed(2), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}
