package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes the lock key only if it still holds the caller's
// token, so an expired holder cannot release someone else's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshLua extends the lock's TTL only while it still holds the caller's
// token.
const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// Redis extends Local across instances with a SETNX lock and TTL. The
// local mutex still serializes callers inside this process. While a
// section is held the TTL is refreshed every third of its length, so a
// slow operation keeps the lock; the TTL only bounds how long a crashed
// holder blocks the others.
type Redis struct {
	local     Local
	rdb       *redis.Client
	key       string
	ttl       time.Duration
	retry     time.Duration
	unlockSc  *redis.Script
	refreshSc *redis.Script
}

// NewRedis creates a guard on key whose lock expires ttl after its holder
// stops refreshing it. A non-positive ttl selects 30s.
func NewRedis(rdb *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		rdb:       rdb,
		key:       "lock:" + key,
		ttl:       ttl,
		retry:     25 * time.Millisecond,
		unlockSc:  redis.NewScript(unlockLua),
		refreshSc: redis.NewScript(refreshLua),
	}
}

func (g *Redis) Enter(ctx context.Context) (context.Context, func(), error) {
	inner, releaseLocal, err := g.local.Enter(ctx)
	if err != nil {
		return ctx, releaseLocal, err
	}

	token := uuid.New().String()
	for {
		ok, err := g.rdb.SetNX(ctx, g.key, token, g.ttl).Result()
		if err != nil {
			releaseLocal()
			return ctx, func() {}, fmt.Errorf("redis: acquire %s: %w", g.key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			releaseLocal()
			return ctx, func() {}, ctx.Err()
		case <-time.After(g.retry):
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go g.keepAlive(token, stop, stopped)

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		close(stop)
		<-stopped

		// Background context so release succeeds even if the caller's
		// context is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.unlockSc.Run(unlockCtx, g.rdb, []string{g.key}, token).Err()
		releaseLocal()
	}
	return inner, release, nil
}

// keepAlive refreshes the lock until stop is closed or the token is no
// longer the holder.
func (g *Redis) keepAlive(token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	every := g.ttl / 3
	if every <= 0 {
		every = time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			n, err := g.refreshSc.Run(ctx, g.rdb, []string{g.key}, token, g.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				slog.Warn("lock lost while held", "key", g.key)
				return
			}
		}
	}
}

var (
	_ Guard = (*Local)(nil)
	_ Guard = (*Redis)(nil)
)
