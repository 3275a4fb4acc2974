package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/afrifutures/marketd/internal/crypto"
	"github.com/afrifutures/marketd/internal/domain"
)

// ClaimService pays out winning positions of resolved markets.
type ClaimService struct {
	ledger   domain.Ledger
	transfer domain.AssetTransfer
	events   *Events
	now      func() time.Time
	logger   *slog.Logger
}

// NewClaimService creates a ClaimService.
func NewClaimService(ledger domain.Ledger, transfer domain.AssetTransfer, events *Events, logger *slog.Logger) *ClaimService {
	return &ClaimService{
		ledger:   ledger,
		transfer: transfer,
		events:   events,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "claim_service")),
	}
}

// WithClock replaces the time source.
func (s *ClaimService) WithClock(now func() time.Time) *ClaimService {
	s.now = now
	return s
}

// Claim transfers the payout allocated to user's winning position. The
// position is marked claimed only after the transfer succeeds, and the market
// lock guarantees at most one successful claim per position.
func (s *ClaimService) Claim(ctx context.Context, marketID int64, user string) (domain.ClaimResult, error) {
	user, err := crypto.NormalizeAddress(user)
	if err != nil {
		return domain.ClaimResult{}, domain.InvalidParam("user", err.Error())
	}

	var result domain.ClaimResult
	err = s.ledger.InMarketTx(ctx, marketID, func(tx domain.MarketTx) error {
		m := tx.Market()
		if !m.Resolved {
			return domain.NewMarketError(domain.ErrNotResolved, marketID, "", "")
		}
		pos, err := tx.Position(ctx, user)
		if err != nil {
			return err
		}
		if pos.Shares(m.WinningSide()) == 0 {
			return domain.NewMarketError(domain.ErrNoWinningPosition, marketID, "user", user)
		}
		if pos.Claimed {
			return domain.NewMarketError(domain.ErrAlreadyClaimed, marketID, "user", user)
		}

		key := "claim-" + strconv.FormatInt(marketID, 10) + "-" + user
		rc, err := s.transfer.TransferOut(domain.WithIdempotencyKey(ctx, key), user, pos.Payout)
		if err != nil {
			return err
		}

		claimedAt := s.now().UTC()
		pos.Claimed = true
		pos.ClaimedAt = &claimedAt
		pos.ClaimReceipt = rc.ID
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}

		result = domain.ClaimResult{
			MarketID: marketID,
			User:     user,
			Payout:   pos.Payout,
			Fee:      pos.Fee,
			Receipt:  rc.ID,
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return domain.ClaimResult{}, err
		}
		return domain.ClaimResult{}, fmt.Errorf("claim_service: claim %d: %w", marketID, err)
	}

	s.logger.InfoContext(ctx, "payout claimed",
		slog.Int64("market_id", marketID),
		slog.String("user", user),
		slog.Int64("payout", result.Payout),
		slog.Int64("fee", result.Fee),
	)
	s.events.Audit(ctx, "payout.claimed", map[string]any{
		"market_id": marketID,
		"user":      user,
		"payout":    result.Payout,
		"fee":       result.Fee,
		"receipt":   result.Receipt,
	})
	s.events.Publish(ctx, domain.ChannelPayoutClaimed, domain.MarketEvent{
		MarketID: marketID,
		User:     user,
		Amount:   result.Payout,
	})
	return result, nil
}
