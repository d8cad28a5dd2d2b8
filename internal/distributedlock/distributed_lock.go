// Package distributedlock provides a redis lock so that several processes
// sharing one announcement channel never run passes at the same time.
package distributedlock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofrs/uuid"
)

const defaultPollInterval = 250 * time.Millisecond

var (
	ErrLockAcquisitionTimeout = errors.New("gave up waiting for channel lock")
	ErrLockAlreadyAcquired    = errors.New("channel lock held elsewhere")
	ErrLockExpired            = errors.New("channel lock expired before release")
)

type DistributedLock struct {
	client  *redis.Client
	timeout time.Duration

	poll  time.Duration
	newID func() string
}

// New returns a lock factory whose locks expire after timeout if never
// released.
func New(client *redis.Client, timeout time.Duration) *DistributedLock {
	return &DistributedLock{
		client:  client,
		timeout: timeout,
		poll:    defaultPollInterval,
		newID:   generateUniqueID,
	}
}

func (d *DistributedLock) setLock(ctx context.Context, key string, uid string) error {
	result, err := d.client.SetNX(ctx, key, uid, d.timeout).Result()
	if err != nil {
		return err
	}

	if !result {
		return ErrLockAlreadyAcquired
	}

	return nil
}

func (d *DistributedLock) AcquireLock(ctx context.Context, key string) (*Lock, error) {
	uid := d.newID()
	if err := d.setLock(ctx, key, uid); err != nil {
		return nil, err
	}

	return NewLock(d, key, uid), nil
}

// WaitAcquireLock retries AcquireLock until it succeeds or wait elapses.
func (d *DistributedLock) WaitAcquireLock(ctx context.Context, key string, wait time.Duration) (*Lock, error) {
	uid := d.newID()

	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		err := d.setLock(ctx, key, uid)
		if err == nil {
			return NewLock(d, key, uid), nil
		}
		if err != ErrLockAlreadyAcquired {
			return nil, err
		}

		select {
		case <-deadline.C:
			return nil, ErrLockAcquisitionTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func generateUniqueID() string {
	return uuid.Must(uuid.NewV4()).String()
}
