package predict

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/leaf-check/internal/logging"
)

// Cache abstracts the Redis operations used by the client to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// DialRedisCache connects to addr and verifies the connection.
func DialRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, logging.NewOperationError("cache.dial", "", err)
	}
	return NewRedisCache(client), nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// resultCache stores successful results keyed by image content. Failures are
// logged and treated as misses so the cache never blocks a prediction.
type resultCache struct {
	cache          Cache
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func newResultCache(cache Cache, ttl time.Duration, logger *zap.Logger) *resultCache {
	return &resultCache{
		cache:          cache,
		ttl:            ttl,
		logger:         logger,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func cacheKey(image []byte) string {
	sum := sha1.Sum(image)
	return "prediction:" + hex.EncodeToString(sum[:])
}

func (rc *resultCache) lookup(ctx context.Context, requestID string, image []byte) (*Result, bool) {
	if rc == nil {
		return nil, false
	}
	var cached string
	err := rc.withRetry(ctx, requestID, "cache.get.result", func() error {
		value, err := rc.cache.Get(ctx, cacheKey(image))
		if err != nil {
			return err
		}
		cached = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(rc.logger, "cache.get.result", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}

	var result Result
	if err := json.Unmarshal([]byte(cached), &result); err != nil {
		logging.WithOperation(rc.logger, "cache.get.result", requestID).Warn("failed to decode cached result", zap.Error(err))
		return nil, false
	}
	return &result, true
}

// store caches result under the image hash. Gate rejections are skipped since
// they depend on thresholds the server may change.
func (rc *resultCache) store(ctx context.Context, requestID string, image []byte, result *Result) {
	if rc == nil || result == nil || result.Malformed {
		return
	}
	if result.Accepted != nil && !*result.Accepted {
		return
	}
	serialized, err := json.Marshal(result)
	if err != nil {
		logging.WithOperation(rc.logger, "cache.set.result", requestID).Warn("failed to serialize result", zap.Error(err))
		return
	}
	if err := rc.withRetry(ctx, requestID, "cache.set.result", func() error {
		return rc.cache.Set(ctx, cacheKey(image), string(serialized), rc.ttl)
	}); err != nil {
		logging.WithOperation(rc.logger, "cache.set.result", requestID).Warn("failed to cache result", zap.Error(err))
	}
}

func (rc *resultCache) withRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	backoff := rc.initialBackoff
	opLogger := logging.WithOperation(rc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < rc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= rc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == rc.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
