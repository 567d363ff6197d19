package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// Deletes the key only while it still carries this holder's token.
var releaseScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the expiry only while the key still carries this holder's token.
var renewScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared by every process connected to the same Redis. A held
// lock is renewed every ttl/3 until it is released or the context passed to TryLock
// ends; a holder that dies stops renewing and its lock expires after ttl.
type RedisLocker struct {
	client rueidis.Client
	prefix string
}

// NewRedisLocker creates a RedisLocker whose keys are namespaced by prefix.
func NewRedisLocker(client rueidis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// TryLock sets the lock key with NX and a millisecond expiry.
func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (Release, bool, error) {
	key := l.prefix + name
	token := uuid.NewString()

	cmd := l.client.B().Set().Key(key).Value(token).Nx().PxMilliseconds(ttl.Milliseconds()).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}

	renewCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go l.renew(renewCtx, done, key, token, ttl)

	var once sync.Once
	release := func(ctx context.Context) error {
		var err error
		once.Do(func() {
			stop()
			<-done

			err = releaseScript.Exec(ctx, l.client, []string{key}, []string{token}).Error()
			if err != nil && !rueidis.IsRedisNil(err) {
				err = fmt.Errorf("failed to release lock %s: %w", name, err)
				return
			}
			err = nil
		})
		return err
	}

	return release, true, nil
}

func (l *RedisLocker) renew(ctx context.Context, done chan<- struct{}, key, token string, ttl time.Duration) {
	defer close(done)

	interval := ttl / 3
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	millis := fmt.Sprint(ttl.Milliseconds())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := renewScript.Exec(ctx, l.client, []string{key}, []string{token, millis}).AsInt64()
			if err != nil && ctx.Err() != nil {
				return
			}
			if err == nil && extended == 0 {
				// Lost: expired or taken over.
				return
			}
		}
	}
}
