package locker

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a process-local GlobalLocker. One semaphore per key;
// keys are never evicted, which is acceptable for the bounded set of
// active accounts a single process works on.
type MemoryLocker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{sems: make(map[string]chan struct{})}
}

func (l *MemoryLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.sems[key] = sem
	}
	return sem
}

func (l *MemoryLocker) Lock(ctx context.Context, key string, timeout time.Duration) (*Handle, error) {
	sem := l.sem(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return NewHandle(key, func() { <-sem }), nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
