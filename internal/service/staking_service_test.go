package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrifutures/marketd/internal/domain"
)

func TestStakeUpdatesPoolsAndPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityCoffee, 25000, time.Hour)

	res, err := f.staking.Stake(ctx, m.ID, alice, domain.SideYes, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Shares)
	assert.Equal(t, int64(100), res.NewYesPool)
	assert.Zero(t, res.NewNoPool)
	assert.NotEmpty(t, res.Receipt)

	f.stake(t, m.ID, alice, domain.SideNo, 40)

	pos, err := f.store.PositionStore().Get(ctx, m.ID, addr(t, alice))
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos.YesShares)
	assert.Equal(t, int64(40), pos.NoShares)

	assert.Equal(t, int64(1_000_000-140), f.custody.Balance(addr(t, alice)))
	assert.Equal(t, int64(140), f.custody.Escrow())

	history, err := f.staking.ListStakes(ctx, m.ID, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestStakeRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityCocoa, 900000, time.Hour)

	tests := []struct {
		name    string
		id      int64
		user    string
		side    domain.Side
		amount  int64
		wantErr error
	}{
		{"zero amount", m.ID, alice, domain.SideYes, 0, domain.ErrBelowMinimumStake},
		{"bad side", m.ID, alice, domain.Side("MAYBE"), 10, domain.ErrInvalidParameters},
		{"bad user", m.ID, "not-an-address", domain.SideYes, 10, domain.ErrInvalidParameters},
		{"unknown market", 404, alice, domain.SideYes, 10, domain.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.staking.Stake(ctx, tc.id, tc.user, tc.side, tc.amount)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
	assert.Zero(t, f.custody.Escrow())
}

func TestStakeAfterExpiryIsClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityTea, 300, time.Hour)

	f.clock.Advance(time.Hour)
	_, err := f.staking.Stake(ctx, m.ID, alice, domain.SideYes, 10)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
	assert.Zero(t, f.custody.Escrow())
}

func TestStakeTransferFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityGold, 200000, time.Hour)
	f.custody.Fund(addr(t, bob), 5)

	_, err := f.staking.Stake(ctx, m.ID, bob, domain.SideNo, 10)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := f.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalPool())
	_, err = f.store.PositionStore().Get(ctx, m.ID, addr(t, bob))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStakeRefundsWhenLedgerCommitFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityWheat, 4000, time.Hour)

	broken := NewStakingService(f.store, f.store.PositionStore(), f.store, brokenCommit{f.store},
		f.custody, nil, 1, 200, discardLogger()).WithClock(f.clock.Now)

	_, err := broken.Stake(ctx, m.ID, alice, domain.SideYes, 500)
	require.ErrorIs(t, err, errCommit)
	assert.Equal(t, int64(1_000_000), f.custody.Balance(addr(t, alice)))
	assert.Zero(t, f.custody.Escrow())
}

func TestConcurrentStakesConservePools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityMaize, 3500, time.Hour)

	users := []string{alice, bob, carol}
	var wg sync.WaitGroup
	for i := range 60 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			side := domain.SideYes
			if i%2 == 1 {
				side = domain.SideNo
			}
			_, err := f.staking.Stake(ctx, m.ID, users[i%len(users)], side, int64(i+1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60*61/2), got.TotalPool())
	assert.Equal(t, got.TotalPool(), f.custody.Escrow())

	positions, err := f.store.PositionStore().ListByMarket(ctx, m.ID)
	require.NoError(t, err)
	var yes, no int64
	for _, p := range positions {
		yes += p.YesShares
		no += p.NoShares
	}
	assert.Equal(t, got.YesPool, yes)
	assert.Equal(t, got.NoPool, no)
}

func TestStakeRejectsPoolOverflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityCoffee, 25000, time.Hour)
	f.custody.Fund(addr(t, alice), math.MaxInt64)
	f.custody.Fund(addr(t, bob), math.MaxInt64)

	f.stake(t, m.ID, alice, domain.SideYes, math.MaxInt64-5)

	for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
		_, err := f.staking.Stake(ctx, m.ID, bob, side, 10)
		require.ErrorIs(t, err, domain.ErrInvalidParameters)
		var merr *domain.MarketError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, "amount", merr.Field)

		_, err = f.staking.CalculatePayoutPreview(ctx, m.ID, side, 10)
		assert.ErrorIs(t, err, domain.ErrInvalidParameters)
	}

	got, err := f.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64-5), got.YesPool)
	assert.Zero(t, got.NoPool)
	assert.Equal(t, int64(math.MaxInt64), f.custody.Balance(addr(t, bob)))
	assert.Equal(t, got.TotalPool(), f.custody.Escrow())

	// Filling the pool exactly is still allowed.
	f.stake(t, m.ID, bob, domain.SideNo, 5)
	got, err = f.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got.TotalPool())
}

func TestOddsAndPreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityCoffee, 25000, time.Hour)

	odds, err := f.staking.GetOdds(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, odds.YesOdds)
	assert.Equal(t, 50.0, odds.NoOdds)

	f.stake(t, m.ID, alice, domain.SideYes, 100)
	f.stake(t, m.ID, bob, domain.SideNo, 50)

	odds, err = f.staking.GetOdds(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 66.67, odds.YesOdds)
	assert.Equal(t, 33.33, odds.NoOdds)
	assert.Equal(t, int64(10_000), odds.YesBps+odds.NoBps)

	// A further 100 on YES would share the 50 NO pool with alice's 100; the
	// 2% fee on 25 floors to zero.
	got, err := f.staking.CalculatePayoutPreview(ctx, m.ID, domain.SideYes, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(125), got)

	_, err = f.staking.CalculatePayoutPreview(ctx, m.ID, domain.SideNo, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	after, err := f.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), after.TotalPool())
}

func TestListPositionsByUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.market(t, domain.CommodityCoffee, 25000, time.Hour)
	b := f.market(t, domain.CommodityCocoa, 900000, time.Hour)
	f.stake(t, a.ID, carol, domain.SideYes, 10)
	f.stake(t, b.ID, carol, domain.SideNo, 20)

	got, err := f.staking.ListPositions(ctx, carol, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].MarketID)
}
