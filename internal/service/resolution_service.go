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

// ResolutionConfig bounds what counts as a usable oracle quote.
type ResolutionConfig struct {
	OracleTimeout time.Duration
	MinConfidence int
	MaxQuoteAge   time.Duration
	FeeBps        int64
}

// ResolutionService settles expired markets against the price oracle.
type ResolutionService struct {
	markets domain.MarketStore
	ledger  domain.Ledger
	oracle  domain.PriceOracle
	events  *Events
	cfg     ResolutionConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(
	markets domain.MarketStore,
	ledger domain.Ledger,
	oracle domain.PriceOracle,
	events *Events,
	cfg ResolutionConfig,
	logger *slog.Logger,
) *ResolutionService {
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = 10 * time.Second
	}
	return &ResolutionService{
		markets: markets,
		ledger:  ledger,
		oracle:  oracle,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "resolution_service")),
	}
}

// WithClock replaces the time source.
func (s *ResolutionService) WithClock(now func() time.Time) *ResolutionService {
	s.now = now
	return s
}

// Resolve queries the oracle for an expired market, fixes its outcome and
// allocates every winning position's payout in one commit. The oracle is
// queried without holding the market lock. A resolved market is never queried
// again.
func (s *ResolutionService) Resolve(ctx context.Context, marketID int64) (domain.ResolutionResult, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("resolution_service: resolve %d: %w", marketID, err)
	}
	if m.Resolved {
		return domain.ResolutionResult{}, domain.NewMarketError(domain.ErrAlreadyResolved, marketID, "", "")
	}
	if s.now().Before(m.ExpiryTime) {
		return domain.ResolutionResult{}, domain.NewMarketError(domain.ErrMarketNotExpired, marketID, "expiry_time",
			"expires at "+m.ExpiryTime.Format(time.RFC3339))
	}

	quote, err := s.fetchQuote(ctx, m)
	if err != nil {
		s.logger.WarnContext(ctx, "oracle unavailable",
			slog.Int64("market_id", marketID),
			slog.String("commodity", string(m.Commodity)),
			slog.String("error", err.Error()),
		)
		s.events.Publish(ctx, domain.ChannelOracleFailure, domain.MarketEvent{
			MarketID:  marketID,
			Commodity: m.Commodity,
			Error:     err.Error(),
		})
		return domain.ResolutionResult{}, err
	}

	var (
		result   domain.ResolutionResult
		resolved domain.Market
		totalFee int64
		winners  int
	)
	err = s.ledger.InMarketTx(ctx, marketID, func(tx domain.MarketTx) error {
		m := tx.Market()
		if m.Resolved {
			return domain.NewMarketError(domain.ErrAlreadyResolved, marketID, "", "")
		}

		resolvedAt := s.now().UTC()
		m.Resolved = true
		m.Outcome = quote.Price >= m.ThresholdPrice
		m.ResolutionTime = &resolvedAt
		m.OraclePrice = quote.Price
		m.OracleConfidence = quote.Confidence

		fees, n, err := s.allocate(ctx, tx, m)
		if err != nil {
			return err
		}
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		totalFee, winners, resolved = fees, n, m
		result = domain.ResolutionResult{
			MarketID:         marketID,
			Outcome:          m.Outcome,
			OraclePrice:      quote.Price,
			OracleConfidence: quote.Confidence,
			Receipt:          crypto.ResolutionDigest(marketID, quote.Price, quote.Confidence, quote.Timestamp),
			ResolvedAt:       resolvedAt,
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return domain.ResolutionResult{}, err
		}
		return domain.ResolutionResult{}, fmt.Errorf("resolution_service: resolve %d: %w", marketID, err)
	}

	s.logger.InfoContext(ctx, "market resolved",
		slog.Int64("market_id", marketID),
		slog.String("commodity", string(resolved.Commodity)),
		slog.Bool("outcome", result.Outcome),
		slog.Int64("oracle_price", result.OraclePrice),
		slog.Int64("threshold_price", resolved.ThresholdPrice),
		slog.Int("winners", winners),
		slog.Int64("fees", totalFee),
	)
	s.events.Audit(ctx, "market.resolved", map[string]any{
		"market_id":         marketID,
		"outcome":           result.Outcome,
		"oracle_price":      result.OraclePrice,
		"oracle_confidence": result.OracleConfidence,
		"threshold_price":   resolved.ThresholdPrice,
		"yes_pool":          resolved.YesPool,
		"no_pool":           resolved.NoPool,
		"winners":           winners,
		"fees":              totalFee,
		"receipt":           result.Receipt,
	})
	outcome := result.Outcome
	s.events.Publish(ctx, domain.ChannelMarketResolved, domain.MarketEvent{
		MarketID:  marketID,
		Commodity: resolved.Commodity,
		YesPool:   resolved.YesPool,
		NoPool:    resolved.NoPool,
		Outcome:   &outcome,
		Price:     result.OraclePrice,
	})
	return result, nil
}

// fetchQuote queries the oracle under OracleTimeout and rejects quotes that
// are missing, low-confidence or stale.
func (s *ResolutionService) fetchQuote(ctx context.Context, m domain.Market) (domain.PriceQuote, error) {
	octx, cancel := context.WithTimeout(ctx, s.cfg.OracleTimeout)
	defer cancel()

	q, err := s.oracle.GetPrice(octx, m.Commodity)
	if err != nil {
		return domain.PriceQuote{}, domain.NewMarketError(domain.ErrOracleUnavailable, m.ID, "", err.Error())
	}
	if q.Price <= 0 {
		return domain.PriceQuote{}, domain.NewMarketError(domain.ErrOracleUnavailable, m.ID, "price",
			fmt.Sprintf("non-positive price %d", q.Price))
	}
	if q.Confidence < s.cfg.MinConfidence {
		return domain.PriceQuote{}, domain.NewMarketError(domain.ErrOracleUnavailable, m.ID, "confidence",
			fmt.Sprintf("%d below minimum %d", q.Confidence, s.cfg.MinConfidence))
	}
	if s.cfg.MaxQuoteAge > 0 {
		if age := s.now().Sub(q.Timestamp); age > s.cfg.MaxQuoteAge {
			return domain.PriceQuote{}, domain.NewMarketError(domain.ErrOracleUnavailable, m.ID, "timestamp",
				fmt.Sprintf("quote is %s old", age.Round(time.Second)))
		}
	}
	return q, nil
}

// allocate records each position's payout for the resolved market m and
// returns the total fee and the number of winning positions.
func (s *ResolutionService) allocate(ctx context.Context, tx domain.MarketTx, m domain.Market) (int64, int, error) {
	positions, err := tx.Positions(ctx)
	if err != nil {
		return 0, 0, err
	}

	win := m.WinningSide()
	holdings := make([]payout.Holding, 0, len(positions))
	for _, p := range positions {
		if sh := p.Shares(win); sh > 0 {
			holdings = append(holdings, payout.Holding{User: p.User, Shares: sh})
		}
	}
	allocs := payout.Allocate(holdings, m.Pool(win), m.Pool(win.Opposite()), s.cfg.FeeBps)

	var totalFee int64
	for _, a := range allocs {
		p, err := tx.Position(ctx, a.User)
		if err != nil {
			return 0, 0, err
		}
		p.Payout = a.Net
		p.Fee = a.Fee
		if err := tx.SavePosition(ctx, p); err != nil {
			return 0, 0, err
		}
		totalFee += a.Fee
	}
	return totalFee, len(allocs), nil
}
