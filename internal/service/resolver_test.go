package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrifutures/marketd/internal/domain"
)

type heldLocks struct{ held map[string]bool }

func (l heldLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

// countingLimiter records every Wait. failFirst fails the first call; block
// waits for the context instead of admitting.
type countingLimiter struct {
	mu        sync.Mutex
	waits     int
	keys      []string
	limits    []int
	failFirst bool
	block     bool
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(ctx context.Context, key string, limit int, _ time.Duration) error {
	l.mu.Lock()
	l.waits++
	l.keys = append(l.keys, key)
	l.limits = append(l.limits, limit)
	first := l.waits == 1
	l.mu.Unlock()

	if l.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if l.failFirst && first {
		return domain.ErrRateLimited
	}
	return nil
}

func (l *countingLimiter) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waits
}

func newLimitedResolver(f *fixture, locks domain.LockManager, limiter domain.RateLimiter, itemTimeout time.Duration) *Resolver {
	return NewResolver(f.markets, f.resolution, locks, limiter, ResolverConfig{
		Concurrency:    3,
		ItemTimeout:    itemTimeout,
		OracleRate:     5,
		InitialBackoff: time.Minute,
		MaxBackoff:     4 * time.Minute,
	}, discardLogger()).WithClock(f.clock.Now)
}

func newResolver(f *fixture, locks domain.LockManager) *Resolver {
	return NewResolver(f.markets, f.resolution, locks, nil, ResolverConfig{
		Concurrency:    3,
		ItemTimeout:    time.Second,
		InitialBackoff: time.Minute,
		MaxBackoff:     4 * time.Minute,
	}, discardLogger()).WithClock(f.clock.Now)
}

func TestResolverIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	good := f.market(t, domain.CommodityCoffee, 25000, time.Hour)
	bad := f.market(t, domain.CommodityCocoa, 900000, time.Hour)
	f.market(t, domain.CommodityTea, 300, 48*time.Hour)
	f.clock.Advance(time.Hour)
	f.quote(domain.CommodityCoffee, 26000)
	f.oracle.fail(domain.CommodityCocoa, errors.New("timeout"))

	r := newResolver(f, nil)
	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Results, 2)

	byID := map[int64]ItemResult{}
	for _, it := range res.Results {
		byID[it.MarketID] = it
	}
	require.NotNil(t, byID[good.ID].Outcome)
	assert.True(t, *byID[good.ID].Outcome)
	assert.True(t, strings.Contains(byID[bad.ID].Error, "oracle unavailable"))

	// Inside the backoff window the failed market is not retried.
	calls := f.oracle.calls.Load()
	res, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, calls, f.oracle.calls.Load())

	f.clock.Advance(2 * time.Minute)
	f.quote(domain.CommodityCocoa, 800000)
	res, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)

	left, err := f.markets.ListExpiredUnresolved(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestResolverSkipsLockedMarkets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityGold, 200000, time.Hour)
	f.clock.Advance(time.Hour)
	f.quote(domain.CommodityGold, 1)

	r := newResolver(f, heldLocks{held: map[string]bool{"resolve:" + strconv.FormatInt(m.ID, 10): true}})
	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, f.oracle.calls.Load())
}

func TestResolverBackoffDoubles(t *testing.T) {
	f := newFixture(t)
	r := newResolver(f, nil)
	assert.Equal(t, time.Minute, r.recordFailure(7))
	assert.Equal(t, 2*time.Minute, r.recordFailure(7))
	assert.Equal(t, 4*time.Minute, r.recordFailure(7))
	assert.Equal(t, 4*time.Minute, r.recordFailure(7))
	assert.True(t, r.backingOff(7))
	r.clearBackoff(7)
	assert.False(t, r.backingOff(7))
}

func TestResolverBatchSizeTakesOldestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.market(t, domain.CommodityGold, 100, time.Hour)
	second := f.market(t, domain.CommodityGold, 100, 2*time.Hour)
	third := f.market(t, domain.CommodityGold, 100, 3*time.Hour)
	f.clock.Advance(3 * time.Hour)
	f.quote(domain.CommodityGold, 150)

	r := NewResolver(f.markets, f.resolution, nil, nil, ResolverConfig{BatchSize: 2}, discardLogger()).
		WithClock(f.clock.Now)

	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, first.ID, res.Results[0].MarketID)
	assert.Equal(t, second.ID, res.Results[1].MarketID)
	assert.Equal(t, 2, res.Resolved)

	res, err = r.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, third.ID, res.Results[0].MarketID)
}

func TestResolverWaitsOncePerAttemptedMarket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.market(t, domain.CommodityCoffee, 25000, time.Hour)
	f.market(t, domain.CommodityGold, 100, time.Hour)
	bad := f.market(t, domain.CommodityCocoa, 900000, time.Hour)
	f.market(t, domain.CommodityTea, 300, 48*time.Hour)
	f.clock.Advance(time.Hour)
	f.quote(domain.CommodityCoffee, 26000)
	f.quote(domain.CommodityGold, 150)
	f.oracle.fail(domain.CommodityCocoa, errors.New("timeout"))

	lim := &countingLimiter{}
	r := newLimitedResolver(f, nil, lim, time.Second)
	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, lim.count())
	for i := range lim.keys {
		assert.Equal(t, "oracle", lim.keys[i])
		assert.Equal(t, 5, lim.limits[i])
	}

	// The failed market is backing off and the others are resolved, so
	// nothing is attempted and the limiter is not consulted.
	res, err = r.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, bad.ID, res.Results[0].MarketID)
	assert.Equal(t, statusSkipped, res.Results[0].Status)
	assert.Equal(t, 3, lim.count())
}

func TestResolverLimiterErrorFailsOnlyThatMarket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.market(t, domain.CommodityCoffee, 25000, time.Hour)
	f.market(t, domain.CommodityGold, 100, time.Hour)
	f.market(t, domain.CommodityWheat, 100, time.Hour)
	f.clock.Advance(time.Hour)
	f.quote(domain.CommodityCoffee, 26000)
	f.quote(domain.CommodityGold, 150)
	f.quote(domain.CommodityWheat, 150)

	lim := &countingLimiter{failFirst: true}
	r := newLimitedResolver(f, nil, lim, time.Second)
	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, lim.count())
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, 1, res.Failed)
	// A throttled market never reaches the oracle.
	assert.Equal(t, int64(2), f.oracle.calls.Load())

	var failed ItemResult
	for _, it := range res.Results {
		if it.Status == statusFailed {
			failed = it
		}
	}
	assert.Contains(t, failed.Error, domain.ErrRateLimited.Error())

	left, err := f.markets.ListExpiredUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, failed.MarketID, left[0].ID)
}

func TestResolverLimiterWaitBoundedByItemTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityGold, 100, time.Hour)
	f.clock.Advance(time.Hour)
	f.quote(domain.CommodityGold, 150)

	locks := &countingLocks{}
	lim := &countingLimiter{block: true}
	r := newLimitedResolver(f, locks, lim, 20*time.Millisecond)
	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, m.ID, res.Results[0].MarketID)
	assert.Equal(t, statusFailed, res.Results[0].Status)
	assert.Contains(t, res.Results[0].Error, context.DeadlineExceeded.Error())
	// The lock is only taken once the limiter admits the call.
	assert.Zero(t, locks.count())
	assert.Zero(t, f.oracle.calls.Load())
}

type countingLocks struct {
	mu       sync.Mutex
	acquired int
}

func (l *countingLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired++
	return func() {}, nil
}

func (l *countingLocks) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}
