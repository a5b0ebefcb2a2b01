package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/wmbridge/internal/logging"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold the distributed lock.
const DefaultLockTTL = 10 * time.Second

// Guard is the single synchronization lock of the bridge. It serializes
// every pass within the process and, when a DistributedLocker is configured,
// across replicas driving the same agent.
type Guard struct {
	mu sync.Mutex

	key    string
	ttl    time.Duration
	locker ports.DistributedLocker // Optional distributed locker
	logger *slog.Logger
}

// NewGuard creates a guard for the given agent key. locker may be nil.
func NewGuard(key string, locker ports.DistributedLocker, ttl time.Duration, logger *slog.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{key: key, ttl: ttl, locker: locker, logger: logger}
}

// WithLock runs fn while holding the lock. The lock is released when fn
// returns or panics.
func (g *Guard) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locker != nil {
		unlock, err := g.locker.Lock(ctx, g.key, g.ttl)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrLockAcquire, err)
		}
		defer func() {
			// Release even if ctx was canceled during the pass
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				g.logger.ErrorContext(ctx, "failed to release distributed lock", "key", g.key, "error", err)
			}
		}()
	}

	return fn(ctx)
}
