package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultStoreTimeout = 5 * time.Second

// RedisCounterStore is a CounterStore backed by Redis. INCR gives the
// gap-free concurrent counting the engine relies on, and key expiry is
// handled server-side, so counters for idle subjects clean themselves up.
// Safe for use from many application instances sharing one Redis.
type RedisCounterStore struct {
	client  *redis.Client
	timeout time.Duration
}

// RedisOption configures a RedisCounterStore.
type RedisOption func(*RedisCounterStore)

// WithTimeout caps each Redis round trip at d, on top of whatever deadline
// the caller's context already carries. A check that cannot complete within
// the cap fails as a whole; the engine never falls back to local counting.
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisCounterStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewRedisCounterStore wraps client, verifying connectivity with a ping.
func NewRedisCounterStore(client *redis.Client, opts ...RedisOption) (*RedisCounterStore, error) {
	s := &RedisCounterStore{
		client:  client,
		timeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// Redis signals "no key" and "no TTL" with negative sentinels.
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Del(ctx, key).Err()
}

func (s *RedisCounterStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}
