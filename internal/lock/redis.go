package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(1, `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Redis is a cross-process locker using SET NX PX with token-checked release.
type Redis struct {
	pool   *redis.Pool
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// NewRedisPool creates a connection pool for addr.
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(2*time.Second),
				redis.DialWriteTimeout(2*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedis creates a Redis locker. Locks expire after ttl if never released.
func NewRedis(pool *redis.Pool, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Redis{pool: pool, ttl: ttl, retry: 25 * time.Millisecond, prefix: "reflectra:lock:"}
}

// Lock implements Locker.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	name := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.tryAcquire(ctx, name, token)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { r.release(name, token) }, nil
		}

		t := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ErrTimeout
		case <-t.C:
		}
	}
}

func (r *Redis) tryAcquire(ctx context.Context, name, token string) (bool, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return false, fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	_, err = redis.String(conn.Do("SET", name, token, "NX", "PX", r.ttl.Milliseconds()))
	if errors.Is(err, redis.ErrNil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis set: %w", err)
	}
	return true, nil
}

func (r *Redis) release(name, token string) {
	conn := r.pool.Get()
	defer conn.Close()
	if _, err := releaseScript.Do(conn, name, token); err != nil {
		log.Warn().Err(err).Str("key", name).Msg("Failed to release lock")
	}
}

// Close closes the underlying pool.
func (r *Redis) Close() error {
	return r.pool.Close()
}
