package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrifutures/marketd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, commodity, threshold_price, expiry_time, creation_time,
	yes_pool, no_pool, resolved, outcome, resolution_time,
	oracle_price, oracle_confidence, creator`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var commodity string
	err := row.Scan(
		&m.ID, &commodity, &m.ThresholdPrice, &m.ExpiryTime, &m.CreationTime,
		&m.YesPool, &m.NoPool, &m.Resolved, &m.Outcome, &m.ResolutionTime,
		&m.OraclePrice, &m.OracleConfidence, &m.Creator,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Commodity = domain.Commodity(commodity)
	return m, nil
}

func scanMarkets(rows pgx.Rows) ([]domain.Market, error) {
	defer rows.Close()
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Create inserts a new market and returns it with its assigned id.
func (s *MarketStore) Create(ctx context.Context, p domain.CreateMarketParams, now time.Time) (domain.Market, error) {
	const query = `
		INSERT INTO markets (commodity, threshold_price, expiry_time, creation_time, creator)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + marketSelectCols

	m, err := scanMarket(s.pool.QueryRow(ctx, query,
		string(p.Commodity), p.ThresholdPrice, p.ExpiryTime.UTC(), now.UTC(), p.Creator,
	))
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: create market: %w", err)
	}
	return m, nil
}

// GetByID retrieves a market by its id.
func (s *MarketStore) GetByID(ctx context.Context, id int64) (domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1`
	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.NewMarketError(domain.ErrNotFound, id, "", "")
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns markets matching filter, newest first.
func (s *MarketStore) List(ctx context.Context, filter domain.MarketFilter, now time.Time) ([]domain.Market, error) {
	q := selectFrom("markets", marketSelectCols)
	if filter.Commodity != "" {
		q.where("commodity = @commodity", "commodity", string(filter.Commodity))
	}
	switch filter.State {
	case domain.MarketStateOpen:
		q.where("resolved = FALSE AND expiry_time > @now", "now", now.UTC())
	case domain.MarketStateExpiredUnresolved:
		q.where("resolved = FALSE AND expiry_time <= @now", "now", now.UTC())
	case domain.MarketStateResolved:
		q.where("resolved = TRUE", "", nil)
	}
	sql, args := q.between("creation_time", filter.Since, filter.Until).
		orderBy("id DESC").
		page(filter.ListOpts).
		build()

	rows, err := s.pool.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	markets, err := scanMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan markets: %w", err)
	}
	return markets, nil
}

// ListExpiredUnresolved returns every unresolved market whose expiry is at or
// before now, oldest expiry first.
func (s *MarketStore) ListExpiredUnresolved(ctx context.Context, now time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + `
		FROM markets
		WHERE resolved = FALSE AND expiry_time <= $1
		ORDER BY expiry_time ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired markets: %w", err)
	}
	markets, err := scanMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan expired markets: %w", err)
	}
	return markets, nil
}
