package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afrifutures/marketd/internal/crypto"
	"github.com/afrifutures/marketd/internal/domain"
	"github.com/afrifutures/marketd/internal/platform/custody"
	"github.com/afrifutures/marketd/internal/store/memory"
)

const (
	alice   = "0x1111111111111111111111111111111111111111"
	bob     = "0x2222222222222222222222222222222222222222"
	carol   = "0x3333333333333333333333333333333333333333"
	creator = "0x9999999999999999999999999999999999999999"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func addr(t *testing.T, a string) string {
	t.Helper()
	n, err := crypto.NormalizeAddress(a)
	require.NoError(t, err)
	return n
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeOracle struct {
	mu     sync.Mutex
	quotes map[domain.Commodity]domain.PriceQuote
	errs   map[domain.Commodity]error
	calls  atomic.Int64
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		quotes: make(map[domain.Commodity]domain.PriceQuote),
		errs:   make(map[domain.Commodity]error),
	}
}

func (o *fakeOracle) set(q domain.PriceQuote) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[q.Commodity] = q
	delete(o.errs, q.Commodity)
}

func (o *fakeOracle) fail(c domain.Commodity, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[c] = err
}

func (o *fakeOracle) GetPrice(_ context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	o.calls.Add(1)
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.errs[c]; err != nil {
		return domain.PriceQuote{}, err
	}
	q, ok := o.quotes[c]
	if !ok {
		return domain.PriceQuote{}, errors.New("no quote")
	}
	return q, nil
}

// flakyTransfer fails the next failOut payouts before delegating.
type flakyTransfer struct {
	domain.AssetTransfer
	failOut atomic.Int64
}

func (f *flakyTransfer) TransferOut(ctx context.Context, user string, amount int64) (domain.Receipt, error) {
	if f.failOut.Add(-1) >= 0 {
		return domain.Receipt{}, domain.ErrTransferFailed
	}
	return f.AssetTransfer.TransferOut(ctx, user, amount)
}

// brokenCommit runs fn against the real ledger but refuses to commit.
type brokenCommit struct{ *memory.Store }

var errCommit = errors.New("commit failed")

func (b brokenCommit) InMarketTx(ctx context.Context, id int64, fn func(domain.MarketTx) error) error {
	return b.Store.InMarketTx(ctx, id, func(tx domain.MarketTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errCommit
	})
}

type fixture struct {
	store    *memory.Store
	custody  *custody.Sandbox
	transfer *flakyTransfer
	oracle   *fakeOracle
	clock    *clock

	markets    *MarketService
	staking    *StakingService
	resolution *ResolutionService
	claims     *ClaimService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := discardLogger()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.New().WithClock(clk.Now)
	sandbox := custody.NewSandbox(1_000_000)
	transfer := &flakyTransfer{AssetTransfer: sandbox}
	oracle := newFakeOracle()
	events := NewEvents(nil, store.AuditStore(), logger)

	f := &fixture{
		store:    store,
		custody:  sandbox,
		transfer: transfer,
		oracle:   oracle,
		clock:    clk,
		markets:  NewMarketService(store, store, events, 365*24*time.Hour, logger).WithClock(clk.Now),
		staking: NewStakingService(store, store.PositionStore(), store, store, transfer, events, 1, 200, logger).
			WithClock(clk.Now),
		resolution: NewResolutionService(store, store, oracle, events, ResolutionConfig{
			OracleTimeout: time.Second,
			MinConfidence: 50,
			MaxQuoteAge:   time.Hour,
			FeeBps:        200,
		}, logger).WithClock(clk.Now),
		claims: NewClaimService(store, transfer, events, logger).WithClock(clk.Now),
	}
	return f
}

func (f *fixture) market(t *testing.T, c domain.Commodity, threshold int64, ttl time.Duration) domain.Market {
	t.Helper()
	m, err := f.markets.CreateMarket(context.Background(), domain.CreateMarketParams{
		Commodity:      c,
		ThresholdPrice: threshold,
		ExpiryTime:     f.clock.Now().Add(ttl),
		Creator:        creator,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) stake(t *testing.T, id int64, user string, side domain.Side, amount int64) {
	t.Helper()
	_, err := f.staking.Stake(context.Background(), id, user, side, amount)
	require.NoError(t, err)
}

func (f *fixture) quote(c domain.Commodity, price int64) {
	f.oracle.set(domain.PriceQuote{
		Commodity:  c,
		Price:      price,
		Confidence: 90,
		Timestamp:  f.clock.Now(),
		Source:     "test",
	})
}
