// Package cache stores computed results as JSON in Redis. A Cache without
// a client is a no-op, so the service runs unchanged when Redis is absent.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

// DefaultTTL bounds how long a result stays cached.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "opensoda:"

// Cache wraps a Redis client.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger log.Logger
}

// New connects to addr and pings it once. On failure it returns a disabled
// Cache together with the error so callers can log and continue.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	if addr == "" {
		return Disabled(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return Disabled(), errors.Wrapf(err, "redis ping %s", addr)
	}
	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl, logger: log.GetLoggerWithName("cache")}
}

// Disabled returns a Cache that never stores anything.
func Disabled() *Cache {
	return &Cache{ttl: DefaultTTL, logger: log.GetLoggerWithName("cache")}
}

// Available reports whether a Redis client is attached.
func (c *Cache) Available() bool {
	return c != nil && c.client != nil
}

// Key builds a namespaced key from parts. Parts are hashed so file paths
// and column names cannot collide with the separator.
func Key(kind string, parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return keyPrefix + kind + ":" + hex.EncodeToString(h[:12])
}

// Get decodes the value at key into dest. It reports false on a miss, on a
// disabled cache and on Redis errors, which are logged.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if !c.Available() {
		return false
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("Cache read failed", err, "cache.key", key)
		return false
	}
	if err := json.Unmarshal(val, dest); err != nil {
		c.logger.Warn("Cache entry undecodable", err, "cache.key", key)
		return false
	}
	return true
}

// Set stores value at key with the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if !c.Available() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.Available() {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	if !c.Available() {
		return nil
	}
	return c.client.Close()
}
