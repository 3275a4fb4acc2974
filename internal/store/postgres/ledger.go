package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrifutures/marketd/internal/domain"
)

// Ledger implements domain.Ledger. Each unit of work is a single transaction
// holding a row lock on the market, so concurrent stakes, claims and the
// resolution commit on the same market are serialised by PostgreSQL.
type Ledger struct {
	pool *pgxpool.Pool
}

var _ domain.Ledger = (*Ledger)(nil)

// NewLedger creates a new Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// InMarketTx locks the market row, runs fn, and commits when fn returns nil.
func (l *Ledger) InMarketTx(ctx context.Context, marketID int64, fn func(tx domain.MarketTx) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin market tx %d: %w", marketID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1 FOR UPDATE`
	m, err := scanMarket(tx.QueryRow(ctx, query, marketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewMarketError(domain.ErrNotFound, marketID, "", "")
		}
		return fmt.Errorf("postgres: lock market %d: %w", marketID, err)
	}

	if err := fn(&marketTx{tx: tx, market: m}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit market tx %d: %w", marketID, err)
	}
	return nil
}

type marketTx struct {
	tx     pgx.Tx
	market domain.Market
}

func (t *marketTx) Market() domain.Market { return t.market }

func (t *marketTx) UpdateMarket(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			yes_pool          = $2,
			no_pool           = $3,
			resolved          = $4,
			outcome           = $5,
			resolution_time   = $6,
			oracle_price      = $7,
			oracle_confidence = $8
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query,
		m.ID, m.YesPool, m.NoPool, m.Resolved, m.Outcome,
		m.ResolutionTime, m.OraclePrice, m.OracleConfidence,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewMarketError(domain.ErrNotFound, m.ID, "", "")
	}
	t.market = m
	return nil
}

func (t *marketTx) Position(ctx context.Context, user string) (domain.Position, error) {
	p, err := getPosition(ctx, t.tx, t.market.ID, user)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{MarketID: t.market.ID, User: user}, nil
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d/%s: %w", t.market.ID, user, err)
	}
	return p, nil
}

func (t *marketTx) Positions(ctx context.Context) ([]domain.Position, error) {
	positions, err := listMarketPositions(ctx, t.tx, t.market.ID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %d: %w", t.market.ID, err)
	}
	return positions, nil
}

func (t *marketTx) SavePosition(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			market_id, user_addr, yes_shares, no_shares,
			claimed, payout, fee, claim_receipt, claimed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (market_id, user_addr) DO UPDATE SET
			yes_shares    = EXCLUDED.yes_shares,
			no_shares     = EXCLUDED.no_shares,
			claimed       = EXCLUDED.claimed,
			payout        = EXCLUDED.payout,
			fee           = EXCLUDED.fee,
			claim_receipt = EXCLUDED.claim_receipt,
			claimed_at    = EXCLUDED.claimed_at,
			updated_at    = NOW()`
	_, err := t.tx.Exec(ctx, query,
		t.market.ID, p.User, p.YesShares, p.NoShares,
		p.Claimed, p.Payout, p.Fee, p.ClaimReceipt, p.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %d/%s: %w", t.market.ID, p.User, err)
	}
	return nil
}

func (t *marketTx) AppendStakeEvent(ctx context.Context, ev domain.StakeEvent) (domain.StakeEvent, error) {
	ev.MarketID = t.market.ID
	out, err := insertStakeEvent(ctx, t.tx, ev)
	if err != nil {
		return domain.StakeEvent{}, fmt.Errorf("postgres: append stake event %d/%s: %w", t.market.ID, ev.User, err)
	}
	return out, nil
}
