package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/afrifutures/marketd/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindow = redis.NewScript(slidingWindowLua)

// minRetry keeps Wait from spinning when the script reports a tiny gap.
const minRetry = 10 * time.Millisecond

// RateLimiter is a sliding-window limiter shared by every marketd process.
// The resolver throttles oracle queries with it and the API throttles
// clients.
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter on the given client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb, now: time.Now}
}

func rateLimitKey(name string) string { return key("ratelimit", name) }

// admit counts one request if the window has room. When it does not, it
// returns how long until the oldest request leaves the window.
func (rl *RateLimiter) admit(ctx context.Context, name string, limit int, window time.Duration) (bool, time.Duration, error) {
	res, err := slidingWindow.Run(ctx, rl.rdb,
		[]string{rateLimitKey(name)},
		rl.now().UnixMicro(), window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", name, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis: rate limit %s: malformed reply %v", name, res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Microsecond, nil
}

// Allow admits one request if the window has room and reports whether it did.
func (rl *RateLimiter) Allow(ctx context.Context, name string, limit int, window time.Duration) (bool, error) {
	ok, _, err := rl.admit(ctx, name, limit, window)
	return ok, err
}

// Wait blocks until a slot opens, sleeping for the gap the limiter reports.
func (rl *RateLimiter) Wait(ctx context.Context, name string, limit int, window time.Duration) error {
	for {
		ok, retry, err := rl.admit(ctx, name, limit, window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		t := time.NewTimer(max(retry, minRetry))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("redis: rate limit %s: %w", name, ctx.Err())
		case <-t.C:
		}
	}
}
