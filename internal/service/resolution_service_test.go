package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrifutures/marketd/internal/domain"
)

func TestResolveBeforeExpiry(t *testing.T) {
	f := newFixture(t)
	m := f.market(t, domain.CommodityCoffee, 25000, time.Hour)
	f.quote(domain.CommodityCoffee, 30000)

	_, err := f.resolution.Resolve(context.Background(), m.ID)
	require.ErrorIs(t, err, domain.ErrMarketNotExpired)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
	assert.Zero(t, f.oracle.calls.Load())
}

func TestResolveOutcomeAtThreshold(t *testing.T) {
	tests := []struct {
		name    string
		price   int64
		outcome bool
	}{
		{"above", 25001, true},
		{"equal", 25000, true},
		{"below", 24999, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			m := f.market(t, domain.CommodityCoffee, 25000, time.Hour)
			f.clock.Advance(time.Hour)
			f.quote(domain.CommodityCoffee, tc.price)

			res, err := f.resolution.Resolve(ctx, m.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, res.Outcome)
			assert.Equal(t, tc.price, res.OraclePrice)
			assert.Len(t, res.Receipt, 66)

			got, err := f.markets.GetMarket(ctx, m.ID)
			require.NoError(t, err)
			assert.True(t, got.Resolved)
			assert.Equal(t, tc.outcome, got.Outcome)
			assert.Equal(t, domain.MarketStateResolved, got.State(f.clock.Now()))
		})
	}
}

func TestResolveIsFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityGold, 200000, time.Hour)
	f.clock.Advance(2 * time.Hour)
	f.quote(domain.CommodityGold, 210000)

	first, err := f.resolution.Resolve(ctx, m.ID)
	require.NoError(t, err)

	f.quote(domain.CommodityGold, 100)
	_, err = f.resolution.Resolve(ctx, m.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Equal(t, int64(1), f.oracle.calls.Load())

	got, err := f.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Outcome, got.Outcome)
	assert.Equal(t, int64(210000), got.OraclePrice)
}

func TestResolveOracleFailureLeavesMarketOpenForRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityTea, 300, time.Hour)
	f.clock.Advance(time.Hour)

	f.oracle.fail(domain.CommodityTea, errors.New("upstream 503"))
	_, err := f.resolution.Resolve(ctx, m.ID)
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)

	expired, err := f.markets.ListExpiredUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	f.quote(domain.CommodityTea, 250)
	res, err := f.resolution.Resolve(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, res.Outcome)
}

func TestResolveRejectsUnusableQuotes(t *testing.T) {
	tests := []struct {
		name  string
		quote func(now time.Time) domain.PriceQuote
	}{
		{"low confidence", func(now time.Time) domain.PriceQuote {
			return domain.PriceQuote{Commodity: domain.CommodityCotton, Price: 100, Confidence: 10, Timestamp: now}
		}},
		{"stale", func(now time.Time) domain.PriceQuote {
			return domain.PriceQuote{Commodity: domain.CommodityCotton, Price: 100, Confidence: 95, Timestamp: now.Add(-2 * time.Hour)}
		}},
		{"zero price", func(now time.Time) domain.PriceQuote {
			return domain.PriceQuote{Commodity: domain.CommodityCotton, Confidence: 95, Timestamp: now}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			m := f.market(t, domain.CommodityCotton, 90, time.Hour)
			f.clock.Advance(time.Hour)
			f.oracle.set(tc.quote(f.clock.Now()))

			_, err := f.resolution.Resolve(ctx, m.ID)
			require.ErrorIs(t, err, domain.ErrOracleUnavailable)
			got, err := f.markets.GetMarket(ctx, m.ID)
			require.NoError(t, err)
			assert.False(t, got.Resolved)
		})
	}
}

func TestResolveAllocatesPayouts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityCashew, 1000, time.Hour)
	f.stake(t, m.ID, alice, domain.SideNo, 1)
	f.stake(t, m.ID, bob, domain.SideNo, 1)
	f.stake(t, m.ID, carol, domain.SideNo, 1)
	f.stake(t, m.ID, creator, domain.SideYes, 10)
	f.clock.Advance(time.Hour)
	f.quote(domain.CommodityCashew, 999)

	_, err := f.resolution.Resolve(ctx, m.ID)
	require.NoError(t, err)

	positions, err := f.store.PositionStore().ListByMarket(ctx, m.ID)
	require.NoError(t, err)
	var paid int64
	for _, p := range positions {
		paid += p.Payout + p.Fee
		if p.NoShares == 0 {
			assert.Zero(t, p.Payout)
		}
	}
	assert.Equal(t, int64(13), paid)
}
