package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrifutures/marketd/internal/domain"
)

func TestCreateMarketValidation(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	tests := []struct {
		name   string
		params domain.CreateMarketParams
	}{
		{"unknown commodity", domain.CreateMarketParams{Commodity: "OIL", ThresholdPrice: 1, ExpiryTime: now.Add(time.Hour), Creator: creator}},
		{"zero threshold", domain.CreateMarketParams{Commodity: domain.CommodityTea, ExpiryTime: now.Add(time.Hour), Creator: creator}},
		{"past expiry", domain.CreateMarketParams{Commodity: domain.CommodityTea, ThresholdPrice: 1, ExpiryTime: now, Creator: creator}},
		{"too far out", domain.CreateMarketParams{Commodity: domain.CommodityTea, ThresholdPrice: 1, ExpiryTime: now.AddDate(2, 0, 0), Creator: creator}},
		{"bad creator", domain.CreateMarketParams{Commodity: domain.CommodityTea, ThresholdPrice: 1, ExpiryTime: now.Add(time.Hour), Creator: "bob"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.markets.CreateMarket(context.Background(), tc.params)
			assert.ErrorIs(t, err, domain.ErrInvalidParameters)
		})
	}
}

func TestCreateMarketStartsOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityCoffee, 25000, time.Hour)

	assert.Equal(t, addr(t, creator), m.Creator)
	assert.Zero(t, m.TotalPool())
	assert.Equal(t, domain.MarketStateOpen, m.State(f.clock.Now()))

	entries, err := f.store.AuditStore().List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "market.created", entries[0].Event)
}

func TestMarketStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.CommodityGold, 200000, 90*24*time.Hour)
	f.stake(t, m.ID, alice, domain.SideYes, 500)
	f.stake(t, m.ID, bob, domain.SideNo, 500)
	f.stake(t, m.ID, alice, domain.SideNo, 100)

	st, err := f.markets.Stats(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), st.Volume)
	assert.Equal(t, int64(3), st.Stakes)
	assert.Equal(t, int64(2), st.Participants)
	assert.Equal(t, domain.MarketStateOpen, st.State)
	assert.Equal(t, 25, st.Health.Timing)
}

func TestScoreHealth(t *testing.T) {
	even := domain.Odds{YesBps: 5000, NoBps: 5000}
	lopsided := domain.Odds{YesBps: 9000, NoBps: 1000}

	h := ScoreHealth(200_000_000, 250, even, 90*24*time.Hour)
	assert.Equal(t, 100, h.Score)
	assert.Equal(t, "excellent", h.Level)

	h = ScoreHealth(1000, 2, lopsided, time.Hour)
	assert.Equal(t, 5+3+0+0, h.Score)
	assert.Equal(t, "very_poor", h.Level)
}
