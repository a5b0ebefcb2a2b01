package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	args := m.Called(ctx, key, ttl)
	unlock, _ := args.Get(0).(ports.UnlockFunc)
	return unlock, args.Error(1)
}

func TestGuard_SerializesPasses(t *testing.T) {
	g := NewGuard("robot", nil, 0, nil)

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.WithLock(context.Background(), func(context.Context) error {
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestGuard_DistributedLock(t *testing.T) {
	locker := new(MockLocker)
	var released bool
	locker.On("Lock", mock.Anything, "robot", 3*time.Second).
		Return(ports.UnlockFunc(func(context.Context) error { released = true; return nil }), nil).Once()

	g := NewGuard("robot", locker, 3*time.Second, nil)
	err := g.WithLock(context.Background(), func(context.Context) error {
		assert.False(t, released)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, released)
	locker.AssertExpectations(t)
}

func TestGuard_LockFailure(t *testing.T) {
	locker := new(MockLocker)
	locker.On("Lock", mock.Anything, "robot", DefaultLockTTL).Return(nil, errors.New("redis down"))

	g := NewGuard("robot", locker, 0, nil)
	called := false
	err := g.WithLock(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, domain.ErrLockAcquire)
	assert.False(t, called)
}

func TestGuard_ReleasesOnPanic(t *testing.T) {
	locker := new(MockLocker)
	var released atomic.Bool
	locker.On("Lock", mock.Anything, "robot", DefaultLockTTL).
		Return(ports.UnlockFunc(func(context.Context) error { released.Store(true); return nil }), nil)

	g := NewGuard("robot", locker, 0, nil)
	assert.Panics(t, func() {
		_ = g.WithLock(context.Background(), func(context.Context) error {
			panic(&domain.InvariantError{Op: "test"})
		})
	})
	assert.True(t, released.Load())

	// The local mutex is free again.
	require.NoError(t, g.WithLock(context.Background(), func(context.Context) error { return nil }))
}
