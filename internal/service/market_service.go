package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/afrifutures/marketd/internal/crypto"
	"github.com/afrifutures/marketd/internal/domain"
	"github.com/afrifutures/marketd/internal/payout"
)

// MarketService is the market ledger: creation, lookup and listings.
type MarketService struct {
	markets   domain.MarketStore
	stakes    domain.StakeEventStore
	events    *Events
	maxExpiry time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. maxExpiry bounds how far in the
// future a market may expire; zero means unbounded.
func NewMarketService(
	markets domain.MarketStore,
	stakes domain.StakeEventStore,
	events *Events,
	maxExpiry time.Duration,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		stakes:    stakes,
		events:    events,
		maxExpiry: maxExpiry,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// WithClock replaces the time source.
func (s *MarketService) WithClock(now func() time.Time) *MarketService {
	s.now = now
	return s
}

// CreateMarket validates params and records a new open market.
func (s *MarketService) CreateMarket(ctx context.Context, p domain.CreateMarketParams) (domain.Market, error) {
	now := s.now()

	if !p.Commodity.Valid() {
		return domain.Market{}, domain.InvalidParam("commodity", fmt.Sprintf("unsupported commodity %q", p.Commodity))
	}
	if p.ThresholdPrice <= 0 {
		return domain.Market{}, domain.InvalidParam("threshold_price", "must be positive")
	}
	if !p.ExpiryTime.After(now) {
		return domain.Market{}, domain.InvalidParam("expiry_time", "must be in the future")
	}
	if s.maxExpiry > 0 && p.ExpiryTime.After(now.Add(s.maxExpiry)) {
		return domain.Market{}, domain.InvalidParam("expiry_time", fmt.Sprintf("must be within %s", s.maxExpiry))
	}
	creator, err := crypto.NormalizeAddress(p.Creator)
	if err != nil {
		return domain.Market{}, domain.InvalidParam("creator", err.Error())
	}
	p.Creator = creator

	m, err := s.markets.Create(ctx, p, now)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.Int64("market_id", m.ID),
		slog.String("commodity", string(m.Commodity)),
		slog.Int64("threshold_price", m.ThresholdPrice),
		slog.Time("expiry_time", m.ExpiryTime),
	)
	s.events.Audit(ctx, "market.created", map[string]any{
		"market_id":       m.ID,
		"commodity":       string(m.Commodity),
		"threshold_price": m.ThresholdPrice,
		"expiry_time":     m.ExpiryTime.Format(time.RFC3339),
		"creator":         m.Creator,
	})
	s.events.Publish(ctx, domain.ChannelMarketCreated, domain.MarketEvent{
		MarketID:  m.ID,
		Commodity: m.Commodity,
		User:      m.Creator,
	})
	return m, nil
}

// GetMarket returns a market by id.
func (s *MarketService) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %d: %w", id, err)
	}
	return m, nil
}

// ListMarkets returns markets matching filter.
func (s *MarketService) ListMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, filter, s.now())
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// ListExpiredUnresolved returns the resolution worklist: every unresolved
// market whose expiry has passed.
func (s *MarketService) ListExpiredUnresolved(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.markets.ListExpiredUnresolved(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("market_service: list expired: %w", err)
	}
	return markets, nil
}

// Stats returns activity figures and a health score for a market.
func (s *MarketService) Stats(ctx context.Context, id int64) (MarketStats, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return MarketStats{}, err
	}
	st, err := s.stakes.Stats(ctx, id)
	if err != nil {
		return MarketStats{}, fmt.Errorf("market_service: stats %d: %w", id, err)
	}
	now := s.now()
	odds := payout.Odds(m.YesPool, m.NoPool)
	return MarketStats{
		Market:       m,
		State:        m.State(now),
		Odds:         odds,
		Volume:       m.TotalPool(),
		Stakes:       st.Stakes,
		Participants: st.Participants,
		LastStakeAt:  st.LastStakeAt,
		Health:       ScoreHealth(m.TotalPool(), st.Participants, odds, m.ExpiryTime.Sub(now)),
	}, nil
}
