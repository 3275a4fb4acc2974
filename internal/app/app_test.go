package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrifutures/marketd/internal/config"
	"github.com/afrifutures/marketd/internal/domain"
	"github.com/afrifutures/marketd/internal/platform/custody"
	"github.com/afrifutures/marketd/internal/platform/oracle"
	"github.com/afrifutures/marketd/internal/store/memory"
)

type fixedFeed struct{ price int64 }

func (f fixedFeed) GetPrice(_ context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	return domain.PriceQuote{Commodity: c, Price: f.price, Confidence: 99, Timestamp: time.Now(), Source: "fixed"}, nil
}

type mapQuotes map[domain.Commodity]domain.PriceQuote

func (m mapQuotes) SetQuote(_ context.Context, q domain.PriceQuote) error {
	m[q.Commodity] = q
	return nil
}

func (m mapQuotes) GetQuote(_ context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	q, ok := m[c]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return q, nil
}

func memoryDeps(logger *slog.Logger) *Dependencies {
	store := memory.New()
	return &Dependencies{
		Markets:   store,
		Positions: store.PositionStore(),
		Stakes:    store,
		Ledger:    store,
		Audit:     store.AuditStore(),
		Oracle:    oracle.NewCachedOracle(fixedFeed{price: 500}, mapQuotes{}, logger),
		Transfer:  custody.NewSandbox(1_000),
	}
}

func TestWireRejectsUnknownBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Backend = "sqlite"
	_, _, err := Wire(context.Background(), &cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestBuildServicesSettlesAMarket(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := config.Defaults()
	cfg.Storage.Backend = "memory"
	a := New(&cfg, logger)
	deps := memoryDeps(logger)
	svc := a.buildServices(deps)

	clock := time.Now()
	now := func() time.Time { return clock }
	svc.markets.WithClock(now)
	svc.staking.WithClock(now)
	svc.resolution.WithClock(now)
	svc.resolver.WithClock(now)

	m, err := svc.markets.CreateMarket(ctx, domain.CreateMarketParams{
		Commodity:      domain.CommodityMaize,
		ThresholdPrice: 400,
		ExpiryTime:     clock.Add(time.Minute),
		Creator:        "0x9999999999999999999999999999999999999999",
	})
	require.NoError(t, err)
	_, err = svc.staking.Stake(ctx, m.ID, "0x1111111111111111111111111111111111111111", domain.SideYes, 100)
	require.NoError(t, err)
	_, err = svc.staking.Stake(ctx, m.ID, "0x2222222222222222222222222222222222222222", domain.SideNo, 100)
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	res, err := svc.resolver.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)

	claim, err := svc.claims.Claim(ctx, m.ID, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, int64(198), claim.Payout)
	assert.Equal(t, int64(2), claim.Fee)

	entries, err := deps.Audit.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRunRejectsUnknownModeBeforeWiring(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trader"
	a := New(&cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported mode "trader"`)
	a.Close()
}
