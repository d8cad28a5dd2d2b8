package distributedlock

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Deletes the key only while it still holds our uid.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Lock struct {
	distributedLock *DistributedLock
	key             string
	uid             string
}

func NewLock(distributedLock *DistributedLock, key string, uid string) *Lock {
	return &Lock{
		distributedLock: distributedLock,
		key:             key,
		uid:             uid,
	}
}

func (l *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.distributedLock.client, []string{l.key}, l.uid).Result()
	if err != nil {
		return err
	}

	if result == int64(0) {
		return ErrLockExpired
	}

	return nil
}
