package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
	"partsledger/internal/logging"
)

// Redis owns the shared client behind the product cache and the locker.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr string, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{client: client}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) ProductCache() *RedisProductCache {
	return &RedisProductCache{client: r.client}
}

func (r *Redis) Locker(ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{locker: redislock.New(r.client), ttl: ttl, logger: logging.OrNop(logger).Named("locker")}
}

// setRetries bounds how often Set re-runs its WATCH transaction when another
// client touches the key in between.
const setRetries = 3

type RedisProductCache struct {
	client *redis.Client
}

func (c *RedisProductCache) Get(ctx context.Context, id string) (*domain.Product, bool, error) {
	val, err := c.client.Get(ctx, ProductKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if isDeletionMarker(val) {
		return nil, false, nil
	}

	var product domain.Product
	if err := json.Unmarshal(val, &product); err != nil {
		return nil, false, err
	}
	return &product, true, nil
}

// Set stores product under WATCH so a slow reader holding an old copy can
// never replace a newer version written after a mutation.
func (c *RedisProductCache) Set(ctx context.Context, product *domain.Product, ttl time.Duration) error {
	if product == nil {
		return nil
	}
	payload, err := json.Marshal(product)
	if err != nil {
		return err
	}

	key := ProductKey(product.ID)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && !Replaces(current, product.Version) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < setRetries; i++ {
		err = c.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	// Still contended: drop the entry rather than risk keeping a stale one.
	return c.client.Del(ctx, key).Err()
}

// Invalidate replaces the entries with short-lived deletion markers. A reader
// that loaded one of these products before it was removed cannot put it back.
func (c *RedisProductCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Set(ctx, ProductKey(id), deletionMarker, markerTTL)
		}
		return nil
	})
	return err
}

type RedisLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

// Lock obtains lock:<key>, retrying briefly. A lock still held by another
// writer after the retries surfaces as CONFLICT.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.locker.Obtain(ctx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 40),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperr.New(apperr.KindConflict, "%s is being modified by another request, retry shortly", key)
	}
	if err != nil {
		return nil, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			// ErrLockNotHeld means the ttl ran out before the write finished.
			l.logger.Warn("lock release failed",
				zap.String("key", key),
				zap.Bool("expired", errors.Is(err, redislock.ErrLockNotHeld)),
				zap.Error(err))
		}
	}, nil
}
