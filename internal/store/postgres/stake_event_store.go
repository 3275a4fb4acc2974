package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrifutures/marketd/internal/domain"
)

// StakeEventStore implements domain.StakeEventStore using PostgreSQL.
type StakeEventStore struct {
	pool *pgxpool.Pool
}

var _ domain.StakeEventStore = (*StakeEventStore)(nil)

// NewStakeEventStore creates a new StakeEventStore backed by the given pool.
func NewStakeEventStore(pool *pgxpool.Pool) *StakeEventStore {
	return &StakeEventStore{pool: pool}
}

const stakeEventSelectCols = `id, market_id, user_addr, side, amount, shares, receipt, created_at`

func scanStakeEvents(rows pgx.Rows) ([]domain.StakeEvent, error) {
	defer rows.Close()
	var events []domain.StakeEvent
	for rows.Next() {
		var ev domain.StakeEvent
		var side string
		if err := rows.Scan(
			&ev.ID, &ev.MarketID, &ev.User, &side,
			&ev.Amount, &ev.Shares, &ev.Receipt, &ev.Timestamp,
		); err != nil {
			return nil, err
		}
		ev.Side = domain.Side(side)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func insertStakeEvent(ctx context.Context, q querier, ev domain.StakeEvent) (domain.StakeEvent, error) {
	const query = `
		INSERT INTO stake_events (market_id, user_addr, side, amount, shares, receipt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := q.QueryRow(ctx, query,
		ev.MarketID, ev.User, string(ev.Side), ev.Amount, ev.Shares, ev.Receipt, ev.Timestamp.UTC(),
	).Scan(&ev.ID)
	return ev, err
}

// ListByMarket returns the stakes placed on a market, oldest first.
func (s *StakeEventStore) ListByMarket(ctx context.Context, marketID int64, opts domain.ListOpts) ([]domain.StakeEvent, error) {
	sql, args := selectFrom("stake_events", stakeEventSelectCols).
		where("market_id = @market", "market", marketID).
		between("created_at", opts.Since, opts.Until).
		orderBy("id").
		page(opts).
		build()

	rows, err := s.pool.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("postgres: stakes of market %d: %w", marketID, err)
	}
	events, err := scanStakeEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: stakes of market %d: %w", marketID, err)
	}
	return events, nil
}

// ListBefore returns every stake event recorded strictly before the cutoff.
func (s *StakeEventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.StakeEvent, error) {
	query := `SELECT ` + stakeEventSelectCols + ` FROM stake_events WHERE created_at < $1 ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: list stake events before %s: %w", before.Format(time.RFC3339), err)
	}
	events, err := scanStakeEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan stake events: %w", err)
	}
	return events, nil
}

// Stats returns the stake count, distinct participants and most recent stake
// time for a market.
func (s *StakeEventStore) Stats(ctx context.Context, marketID int64) (domain.StakeStats, error) {
	const query = `
		SELECT COUNT(*), COUNT(DISTINCT user_addr), MAX(created_at)
		FROM stake_events WHERE market_id = $1`
	var st domain.StakeStats
	if err := s.pool.QueryRow(ctx, query, marketID).Scan(&st.Stakes, &st.Participants, &st.LastStakeAt); err != nil {
		return domain.StakeStats{}, fmt.Errorf("postgres: stake stats for market %d: %w", marketID, err)
	}
	return st, nil
}
