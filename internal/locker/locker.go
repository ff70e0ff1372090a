// Package locker provides mutual exclusion keyed by account identifier.
// All state-changing payment operations for one account serialize
// through the locker; acquisition blocks up to a timeout and release is
// unconditional.
package locker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when the lock could not be acquired within the timeout.
var ErrLockTimeout = errors.New("lock_timeout")

// GlobalLocker serializes operations per key.
type GlobalLocker interface {
	// Lock blocks until the lock for key is held, the timeout elapses or
	// ctx is done. The returned handle must be released by the caller.
	Lock(ctx context.Context, key string, timeout time.Duration) (*Handle, error)
}

// Handle represents one held lock. Unlock is idempotent.
type Handle struct {
	key     string
	release func()
	once    sync.Once
}

func NewHandle(key string, release func()) *Handle {
	return &Handle{key: key, release: release}
}

func (h *Handle) Key() string { return h.key }

// Unlock releases the lock. Safe to call more than once.
func (h *Handle) Unlock() {
	h.once.Do(h.release)
}
