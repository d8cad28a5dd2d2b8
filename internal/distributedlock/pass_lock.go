package distributedlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/momentum-mod/livestreams/internal/domain"
)

// PassLock serialises reconciliation passes for one channel across processes.
type PassLock struct {
	lock *DistributedLock
	key  string
	wait time.Duration
}

func NewPassLock(lock *DistributedLock, channelID string, wait time.Duration) *PassLock {
	return &PassLock{
		lock: lock,
		key:  fmt.Sprintf("livestreams:lock:%s", channelID),
		wait: wait,
	}
}

// Acquire waits up to the configured time for the channel lock. When another
// process keeps holding it the error wraps domain.ErrBusy.
func (p *PassLock) Acquire(ctx context.Context) (func() error, error) {
	l, err := p.lock.WaitAcquireLock(ctx, p.key, p.wait)
	if errors.Is(err, ErrLockAcquisitionTimeout) {
		return nil, fmt.Errorf("%w: %w", domain.ErrBusy, err)
	}
	if err != nil {
		return nil, err
	}

	return func() error {
		// The pass context may already be cancelled by the time we release.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.Release(ctx)
	}, nil
}
