package storage

import (
	"context"
	"sync"
	"time"
)

// LocalLocker serializes holders of the same key inside one process. Acquire
// waits for the key instead of failing, and the ttl is ignored.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

var _ Locker = (*LocalLocker)(nil)
