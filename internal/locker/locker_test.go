package locker_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/paycore/internal/locker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	l := locker.NewMemoryLocker()
	ctx := context.Background()

	h1, err := l.Lock(ctx, "payment-account-1", time.Second)
	require.NoError(t, err)

	_, err = l.Lock(ctx, "payment-account-1", 50*time.Millisecond)
	assert.ErrorIs(t, err, locker.ErrLockTimeout)

	h1.Unlock()

	h2, err := l.Lock(ctx, "payment-account-1", time.Second)
	require.NoError(t, err)
	h2.Unlock()
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	l := locker.NewMemoryLocker()
	ctx := context.Background()

	h1, err := l.Lock(ctx, "payment-account-1", time.Second)
	require.NoError(t, err)
	defer h1.Unlock()

	h2, err := l.Lock(ctx, "payment-account-2", 50*time.Millisecond)
	require.NoError(t, err)
	h2.Unlock()
}

func TestMemoryLockerUnlockIsIdempotent(t *testing.T) {
	l := locker.NewMemoryLocker()
	ctx := context.Background()

	h, err := l.Lock(ctx, "payment-account-1", time.Second)
	require.NoError(t, err)

	h.Unlock()
	h.Unlock()

	// A double unlock must not free the semaphore twice: the key is
	// still lockable exactly once.
	h2, err := l.Lock(ctx, "payment-account-1", 50*time.Millisecond)
	require.NoError(t, err)
	defer h2.Unlock()

	_, err = l.Lock(ctx, "payment-account-1", 50*time.Millisecond)
	assert.ErrorIs(t, err, locker.ErrLockTimeout)
}

func TestMemoryLockerBlocksUntilReleased(t *testing.T) {
	l := locker.NewMemoryLocker()
	ctx := context.Background()

	h1, err := l.Lock(ctx, "payment-account-1", time.Second)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		h2, err := l.Lock(ctx, "payment-account-1", 2*time.Second)
		if err == nil {
			h2.Unlock()
		}
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	h1.Unlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the lock after release")
	}
}

func TestMemoryLockerRespectsContext(t *testing.T) {
	l := locker.NewMemoryLocker()

	h, err := l.Lock(context.Background(), "payment-account-1", time.Second)
	require.NoError(t, err)
	defer h.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Lock(ctx, "payment-account-1", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
