package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"openamm/internal/storage"
)

// unlockLua deletes the key only while it still holds the caller's token, so
// an expired holder cannot release someone else's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager grants per-pool locks with SETNX and a TTL.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	prefix   string
}

func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:      c.rdb,
		unlockSc: redis.NewScript(unlockLua),
		prefix:   "openamm:lock:",
	}
}

// Acquire takes the lock for key or returns storage.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lm.prefix + key

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, storage.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true
		// the caller's context may already be cancelled
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}

var _ storage.Locker = (*LockManager)(nil)
