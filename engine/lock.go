package engine

import (
	"context"
	"sync"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Locker hands out per-loan locks so that two liquidator processes never work
// on the same loan at once. Acquire returns core.ErrLockHeld when another
// holder has the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// RedisLocker takes locks with SETNX and releases them only when the stored
// token is still ours. A held lock is extended every third of its ttl, so an
// attempt waiting on its receipt never outlives it.
type RedisLocker struct {
	rdb     redis.UniversalClient
	clk     clock.Clock
	unlock  *redis.Script
	refresh *redis.Script
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(rdb redis.UniversalClient, clk clock.Clock) *RedisLocker {
	return &RedisLocker{
		rdb:     rdb,
		clk:     clk,
		unlock:  redis.NewScript(unlockLua),
		refresh: redis.NewScript(refreshLua),
	}
}

func lockKey(key string) string {
	return "liquidator:lock:" + key
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.Must(uuid.NewV4()).String()
	lk := lockKey(key)

	ok, err := r.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "engine/lock: acquire %s", key)
	}
	if !ok {
		return nil, errors.Wrapf(core.ErrLockHeld, "%s", key)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, r.clk, ttl/3, func() (bool, error) {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := r.refresh.Run(refreshCtx, r.rdb, []string{lk}, token, ttl.Milliseconds()).Int64()
			return n == 1, err
		})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.unlock.Run(unlockCtx, r.rdb, []string{lk}, token).Err()
		})
	}, nil
}

// keepAlive calls extend every interval until stop is closed or extend
// reports the lock is no longer ours. Errors are retried on the next tick.
func keepAlive(stop <-chan struct{}, clk clock.Clock, interval time.Duration, extend func() (bool, error)) {
	if interval <= 0 {
		return
	}
	ticker := clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := extend()
			if err == nil && !ok {
				return
			}
		}
	}
}

// LocalLocker serializes attempts inside one process. Used when no redis is
// configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]bool{}}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, errors.Wrapf(core.ErrLockHeld, "%s", key)
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
