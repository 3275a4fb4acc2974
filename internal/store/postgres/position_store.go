package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrifutures/marketd/internal/domain"
)

// PositionStore serves position reads outside a market transaction. Writes
// only happen through the Ledger.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `market_id, user_addr, yes_shares, no_shares,
	claimed, payout, fee, claim_receipt, claimed_at, created_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.MarketID, &p.User, &p.YesShares, &p.NoShares,
		&p.Claimed, &p.Payout, &p.Fee, &p.ClaimReceipt, &p.ClaimedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func collectPosition(row pgx.CollectableRow) (domain.Position, error) { return scanPosition(row) }

func getPosition(ctx context.Context, q querier, marketID int64, user string) (domain.Position, error) {
	sql, args := selectFrom("positions", positionSelectCols).
		where("market_id = @market", "market", marketID).
		where("user_addr = @user", "user", user).
		build()
	return scanPosition(q.QueryRow(ctx, sql, args))
}

func listMarketPositions(ctx context.Context, q querier, marketID int64) ([]domain.Position, error) {
	sql, args := selectFrom("positions", positionSelectCols).
		where("market_id = @market", "market", marketID).
		orderBy("user_addr").
		build()
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, collectPosition)
}

// Get returns the position of user in a market, or ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, marketID int64, user string) (domain.Position, error) {
	p, err := getPosition(ctx, s.pool, marketID, user)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.Position{}, domain.NewMarketError(domain.ErrNotFound, marketID, "user", user)
	case err != nil:
		return domain.Position{}, fmt.Errorf("postgres: position %d/%s: %w", marketID, user, err)
	}
	return p, nil
}

// ListByMarket is ordered by user address.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.Position, error) {
	positions, err := listMarketPositions(ctx, s.pool, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: positions of market %d: %w", marketID, err)
	}
	return positions, nil
}

// ListByUser pages through a user's positions, newest market first.
func (s *PositionStore) ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Position, error) {
	sql, args := selectFrom("positions", positionSelectCols).
		where("user_addr = @user", "user", user).
		orderBy("market_id DESC").
		page(opts).
		build()

	rows, err := s.pool.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("postgres: positions of %s: %w", user, err)
	}
	positions, err := pgx.CollectRows(rows, collectPosition)
	if err != nil {
		return nil, fmt.Errorf("postgres: positions of %s: %w", user, err)
	}
	return positions, nil
}
