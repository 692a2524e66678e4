// Package lock serializes mutations of one plan across goroutines and
// processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockTimeout is returned when the wait for a key runs out.
var ErrLockTimeout = errors.New("lock wait exceeded")

// Locker grants exclusive access to a key until release is called.
// Release is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// PlanKey is the lock key for one user's plan on one date.
func PlanKey(userID string, date time.Time) string {
	return fmt.Sprintf("plan:%s:%s", userID, date.Format("2006-01-02"))
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	wait time.Duration

	mu   sync.Mutex
	keys map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker waits at most wait for a key; zero waits until ctx ends.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{wait: wait, keys: make(map[string]*localEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	entry := l.ref(key)

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.unref(key)
		})
	}, nil
}

func (l *LocalLocker) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.keys[key]
	if !ok {
		entry = &localEntry{sem: make(chan struct{}, 1)}
		l.keys[key] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.keys[key]; ok {
		entry.refs--
		if entry.refs == 0 {
			delete(l.keys, key)
		}
	}
}
