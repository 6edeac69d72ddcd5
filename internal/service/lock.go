package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"BucketDash/internal/repo"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrPrefixBusy is returned when another recursive delete holds the prefix.
var ErrPrefixBusy = errors.New("prefix is locked")

// PrefixLocker serializes recursive deletes of the same prefix across processes.
type PrefixLocker interface {
	Acquire(ctx context.Context, prefix string) (release func(), err error)
}

// RedisPrefixLocker uses repo.RedisLock with one key per prefix. The lease is
// short and renewed while held, so a crashed holder frees the prefix quickly.
type RedisPrefixLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPrefixLocker(client *redis.Client, ttl time.Duration) *RedisPrefixLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPrefixLocker{client: client, ttl: ttl}
}

func (l *RedisPrefixLocker) Acquire(ctx context.Context, prefix string) (func(), error) {
	lock := repo.NewRedisLock(l.client, "lock:folder-delete:"+prefix, l.ttl)
	if err := lock.Lock(ctx); err != nil {
		if errors.Is(err, repo.ErrLockBusy) {
			return nil, ErrPrefixBusy
		}
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := lock.Extend(context.WithoutCancel(ctx)); err != nil {
					log.Error().Err(err).Str("prefix", prefix).Msg("folder delete lock renewal failed")
					if errors.Is(err, repo.ErrLockLost) {
						return
					}
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Str("prefix", prefix).Msg("release folder delete lock failed")
			}
		})
	}, nil
}

// LocalPrefixLocker is the single-process PrefixLocker.
type LocalPrefixLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalPrefixLocker() *LocalPrefixLocker {
	return &LocalPrefixLocker{held: make(map[string]struct{})}
}

func (l *LocalPrefixLocker) Acquire(ctx context.Context, prefix string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[prefix]; ok {
		return nil, ErrPrefixBusy
	}
	l.held[prefix] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, prefix)
		l.mu.Unlock()
	}, nil
}
