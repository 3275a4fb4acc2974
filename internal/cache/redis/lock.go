package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/afrifutures/marketd/internal/domain"
)

// releaseScript deletes the lock only while it still carries our token, so a
// holder whose TTL lapsed cannot free the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
    return 0
end
return redis.call('DEL', KEYS[1])
`)

// releaseTimeout bounds the release call, which runs on a fresh context
// because the caller's may already be cancelled.
const releaseTimeout = 5 * time.Second

// LockManager hands out per-market resolution locks. Two resolver instances
// never query the oracle for the same market at once.
type LockManager struct {
	rdb *redis.Client
}

var _ domain.LockManager = (*LockManager)(nil)

func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.rdb}
}

func lockKey(name string) string { return key("lock", name) }

// Acquire takes the lock named name for at most ttl. It fails fast with
// domain.ErrLockHeld when someone else holds it. The returned release func
// is idempotent.
func (lm *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	k, token := lockKey(name), uuid.NewString()

	err := lm.rdb.SetArgs(ctx, k, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("redis: lock %s: %w", name, domain.ErrLockHeld)
	case err != nil:
		return nil, fmt.Errorf("redis: lock %s: %w", name, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = releaseScript.Run(ctx, lm.rdb, []string{k}, token).Err()
		})
	}, nil
}
