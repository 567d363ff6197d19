// Package lock provides named, expiring locks that keep a scheduled job to one running
// instance.
package lock

import (
	"context"
	"sync"
	"time"
)

// Release gives up a held lock.
type Release func(ctx context.Context) error

// Locker acquires named locks without blocking. ok is false when another holder owns name.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release Release, ok bool, err error)
}

// LocalLocker is an in-process Locker. ttl is ignored; a lock is held until released.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock acquires name if no one in this process holds it.
func (l *LocalLocker) TryLock(_ context.Context, name string, _ time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[name]; taken {
		return nil, false, nil
	}
	l.held[name] = struct{}{}

	var once sync.Once
	release := func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
		return nil
	}

	return release, true, nil
}
