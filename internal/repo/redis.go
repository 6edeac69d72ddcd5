package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	// ErrLockBusy is returned when another holder owns the lock.
	ErrLockBusy = errors.New("lock is busy")
	ErrLockLost = errors.New("lock lease lost")
)

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OpenRedis connects and pings Redis.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	log.Info().Str("addr", cfg.Addr).Msg("redis ready")
	return client, nil
}

// RedisLock is a single-holder lease. The holder proves ownership with a
// random token, so an expired lease taken over by someone else is never
// released or extended by the previous holder.
type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

// Lock takes the lease or returns ErrLockBusy.
func (l *RedisLock) Lock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.key, err)
	}
	if !ok {
		return ErrLockBusy
	}
	l.token = token
	return nil
}

// Compare-and-act scripts; both return 0 when the token no longer matches.
var (
	unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// Extend pushes the lease out by another ttl. ErrLockLost means the lease
// expired and may now belong to someone else.
func (l *RedisLock) Extend(ctx context.Context) error {
	if l.token == "" {
		return ErrLockLost
	}
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Unlock releases the lease if this holder still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	err := unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
	l.token = ""
	return err
}
