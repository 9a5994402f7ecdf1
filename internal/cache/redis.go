package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the shared Redis deployment.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "authcore:"
)

// RedisClient implements Store on top of go-redis. Keys are namespaced with a fixed prefix so the
// instance can be shared with other applications.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client and pings it so misconfiguration is surfaced during
// application startup.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		host := cfg.Address
		if idx := strings.LastIndex(host, ":"); idx > 0 {
			host = host[:idx]
		}
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisClient{client: client}, nil
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client *redis.Client) *RedisClient {
	if client == nil {
		return nil
	}
	return &RedisClient{client: client}
}

// Client exposes the underlying go-redis client for components that need transactions.
func (c *RedisClient) Client() *redis.Client {
	return c.client
}

// Ping verifies the connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection pool.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// IncrementWithTTL increments the supplied key and sets the TTL to the requested window on the
// first increment. It returns the current count and the remaining time-to-live.
func (c *RedisClient) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	prefixedKey := c.prefixed(key)

	count, err := c.client.Incr(ctx, prefixedKey).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := c.client.PExpire(ctx, prefixedKey, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	remaining, err := c.client.PTTL(ctx, prefixedKey).Result()
	if err != nil || remaining < 0 {
		return count, window, nil
	}
	return count, remaining, nil
}

// Set stores a value with PX expiry semantics. A non-positive ttl keeps the key indefinitely.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.prefixed(key), value, ttl).Err()
}

// Get retrieves the value associated with a key.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes keys from the store.
func (c *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = c.prefixed(key)
	}
	return c.client.Del(ctx, prefixed...).Err()
}

// Key returns the namespaced form of key as stored in Redis.
func (c *RedisClient) Key(key string) string {
	return c.prefixed(key)
}

func (c *RedisClient) prefixed(key string) string {
	key = normalizeKey(strings.TrimSpace(key))
	if strings.HasPrefix(key, redisKeyPrefix) {
		return key
	}
	return redisKeyPrefix + strings.TrimPrefix(key, ":")
}

// normalizeKey collapses repeated separators.
func normalizeKey(key string) string {
	if key == "" {
		return key
	}
	var builder strings.Builder
	builder.Grow(len(key))
	prevColon := false
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch == ':' {
			if prevColon {
				continue
			}
			prevColon = true
		} else {
			prevColon = false
		}
		builder.WriteByte(ch)
	}
	return builder.String()
}
