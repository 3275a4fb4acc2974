package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/afrifutures/marketd/internal/crypto"
	"github.com/afrifutures/marketd/internal/domain"
	"github.com/afrifutures/marketd/internal/payout"
)

// StakingService accepts stakes and quotes odds and payout previews.
type StakingService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	stakes    domain.StakeEventStore
	ledger    domain.Ledger
	transfer  domain.AssetTransfer
	events    *Events
	minStake  int64
	feeBps    int64
	now       func() time.Time
	logger    *slog.Logger
}

// NewStakingService creates a StakingService.
func NewStakingService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	stakes domain.StakeEventStore,
	ledger domain.Ledger,
	transfer domain.AssetTransfer,
	events *Events,
	minStake, feeBps int64,
	logger *slog.Logger,
) *StakingService {
	if minStake < 1 {
		minStake = 1
	}
	return &StakingService{
		markets:   markets,
		positions: positions,
		stakes:    stakes,
		ledger:    ledger,
		transfer:  transfer,
		events:    events,
		minStake:  minStake,
		feeBps:    feeBps,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "staking_service")),
	}
}

// WithClock replaces the time source.
func (s *StakingService) WithClock(now func() time.Time) *StakingService {
	s.now = now
	return s
}

// Stake moves amount from user into the market and credits the same number
// of shares on side. The asset transfer happens while the market is locked;
// if it fails nothing is recorded and the transfer error is returned as is.
func (s *StakingService) Stake(ctx context.Context, marketID int64, user string, side domain.Side, amount int64) (domain.StakeResult, error) {
	user, err := crypto.NormalizeAddress(user)
	if err != nil {
		return domain.StakeResult{}, domain.InvalidParam("user", err.Error())
	}
	if side != domain.SideYes && side != domain.SideNo {
		return domain.StakeResult{}, domain.InvalidParam("side", fmt.Sprintf("unknown side %q", side))
	}
	if amount < s.minStake {
		return domain.StakeResult{}, domain.NewMarketError(domain.ErrBelowMinimumStake, marketID, "amount",
			fmt.Sprintf("%d < %d", amount, s.minStake))
	}

	var (
		result  domain.StakeResult
		receipt *domain.Receipt
		market  domain.Market
	)
	txErr := s.ledger.InMarketTx(ctx, marketID, func(tx domain.MarketTx) error {
		m := tx.Market()
		if m.Resolved {
			return domain.NewMarketError(domain.ErrMarketClosed, marketID, "", "market is resolved")
		}
		now := s.now()
		if !now.Before(m.ExpiryTime) {
			return domain.NewMarketError(domain.ErrMarketClosed, marketID, "", "market expired at "+m.ExpiryTime.Format(time.RFC3339))
		}
		if err := checkPoolCapacity(m, amount); err != nil {
			return err
		}

		rc, err := s.transfer.TransferIn(domain.WithIdempotencyKey(ctx, "stake-"+uuid.NewString()), user, amount)
		if err != nil {
			return err
		}
		receipt = &rc

		shares := amount
		pos, err := tx.Position(ctx, user)
		if err != nil {
			return err
		}
		pos.AddShares(side, shares)
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}

		if side == domain.SideYes {
			m.YesPool += amount
		} else {
			m.NoPool += amount
		}
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		if _, err := tx.AppendStakeEvent(ctx, domain.StakeEvent{
			User:      user,
			Side:      side,
			Amount:    amount,
			Shares:    shares,
			Receipt:   rc.ID,
			Timestamp: now.UTC(),
		}); err != nil {
			return err
		}

		market = m
		result = domain.StakeResult{
			MarketID:   marketID,
			Side:       side,
			Shares:     shares,
			NewYesPool: m.YesPool,
			NewNoPool:  m.NoPool,
			Receipt:    rc.ID,
		}
		return nil
	})
	if txErr != nil {
		if receipt != nil {
			s.refund(ctx, marketID, user, *receipt, txErr)
		}
		if isDomainError(txErr) {
			return domain.StakeResult{}, txErr
		}
		return domain.StakeResult{}, fmt.Errorf("staking_service: stake %d: %w", marketID, txErr)
	}

	s.logger.InfoContext(ctx, "stake placed",
		slog.Int64("market_id", marketID),
		slog.String("user", user),
		slog.String("side", string(side)),
		slog.Int64("amount", amount),
		slog.Int64("yes_pool", result.NewYesPool),
		slog.Int64("no_pool", result.NewNoPool),
	)
	s.events.Audit(ctx, "stake.placed", map[string]any{
		"market_id": marketID,
		"user":      user,
		"side":      string(side),
		"amount":    amount,
		"receipt":   result.Receipt,
	})
	s.events.Publish(ctx, domain.ChannelStakePlaced, domain.MarketEvent{
		MarketID:  marketID,
		Commodity: market.Commodity,
		User:      user,
		Side:      side,
		Amount:    amount,
		YesPool:   market.YesPool,
		NoPool:    market.NoPool,
	})
	return result, nil
}

// refund returns a stake whose transfer succeeded but whose ledger write did
// not commit.
func (s *StakingService) refund(ctx context.Context, marketID int64, user string, rc domain.Receipt, cause error) {
	ctx = domain.WithIdempotencyKey(context.WithoutCancel(ctx), "refund-"+rc.ID)
	if _, err := s.transfer.TransferOut(ctx, user, rc.Amount); err != nil {
		s.logger.ErrorContext(ctx, "stake refund failed",
			slog.Int64("market_id", marketID),
			slog.String("user", user),
			slog.Int64("amount", rc.Amount),
			slog.String("receipt", rc.ID),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		s.events.Audit(ctx, "stake.refund_failed", map[string]any{
			"market_id": marketID,
			"user":      user,
			"amount":    rc.Amount,
			"receipt":   rc.ID,
		})
		return
	}
	s.logger.WarnContext(ctx, "stake refunded after ledger failure",
		slog.Int64("market_id", marketID),
		slog.String("user", user),
		slog.Int64("amount", rc.Amount),
		slog.String("cause", cause.Error()),
	)
}

// GetOdds returns the implied odds of each side.
func (s *StakingService) GetOdds(ctx context.Context, marketID int64) (domain.Odds, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Odds{}, fmt.Errorf("staking_service: odds %d: %w", marketID, err)
	}
	return payout.Odds(m.YesPool, m.NoPool), nil
}

// CalculatePayoutPreview returns what a stake of amount on side would pay if
// side won and no further stakes arrived. It does not modify anything.
func (s *StakingService) CalculatePayoutPreview(ctx context.Context, marketID int64, side domain.Side, amount int64) (int64, error) {
	if side != domain.SideYes && side != domain.SideNo {
		return 0, domain.InvalidParam("side", fmt.Sprintf("unknown side %q", side))
	}
	if amount <= 0 {
		return 0, domain.InvalidParam("amount", "must be positive")
	}
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("staking_service: preview %d: %w", marketID, err)
	}
	if err := checkPoolCapacity(m, amount); err != nil {
		return 0, err
	}
	return payout.Preview(m, side, amount, s.feeBps), nil
}

// checkPoolCapacity rejects an amount that would push the market's total pool
// past the int64 range. Escrow mirrors the total pool, so the bound is on the
// sum of both sides.
func checkPoolCapacity(m domain.Market, amount int64) error {
	if amount > math.MaxInt64-m.TotalPool() {
		return domain.NewMarketError(domain.ErrInvalidParameters, m.ID, "amount",
			fmt.Sprintf("stake of %d exceeds remaining pool capacity %d", amount, math.MaxInt64-m.TotalPool()))
	}
	return nil
}

// ListStakes returns the stake history of a market.
func (s *StakingService) ListStakes(ctx context.Context, marketID int64, opts domain.ListOpts) ([]domain.StakeEvent, error) {
	if _, err := s.markets.GetByID(ctx, marketID); err != nil {
		return nil, fmt.Errorf("staking_service: stakes %d: %w", marketID, err)
	}
	events, err := s.stakes.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("staking_service: stakes %d: %w", marketID, err)
	}
	return events, nil
}

// ListPositions returns a user's positions across markets.
func (s *StakingService) ListPositions(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Position, error) {
	user, err := crypto.NormalizeAddress(user)
	if err != nil {
		return nil, domain.InvalidParam("user", err.Error())
	}
	positions, err := s.positions.ListByUser(ctx, user, opts)
	if err != nil {
		return nil, fmt.Errorf("staking_service: positions %s: %w", user, err)
	}
	return positions, nil
}

// isDomainError reports whether err already carries a market-level sentinel
// that callers match on.
func isDomainError(err error) bool {
	var me *domain.MarketError
	return errors.As(err, &me) ||
		errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrTransferFailed)
}
