package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets.
type MarketStore interface {
	Create(ctx context.Context, params CreateMarketParams, now time.Time) (Market, error)
	GetByID(ctx context.Context, id int64) (Market, error)
	List(ctx context.Context, filter MarketFilter, now time.Time) ([]Market, error)
	ListExpiredUnresolved(ctx context.Context, now time.Time) ([]Market, error)
}

// PositionStore reads positions outside a market transaction.
type PositionStore interface {
	Get(ctx context.Context, marketID int64, user string) (Position, error)
	ListByMarket(ctx context.Context, marketID int64) ([]Position, error)
	ListByUser(ctx context.Context, user string, opts ListOpts) ([]Position, error)
}

// StakeEventStore reads the append-only stake log.
type StakeEventStore interface {
	ListByMarket(ctx context.Context, marketID int64, opts ListOpts) ([]StakeEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]StakeEvent, error)
	Stats(ctx context.Context, marketID int64) (StakeStats, error)
}

// StakeStats summarises the stake log of one market.
type StakeStats struct {
	Stakes       int64
	Participants int64
	LastStakeAt  *time.Time
}

// MarketTx is the unit of work for a single market. All reads observe the
// locked market row and all writes commit together or not at all.
type MarketTx interface {
	// Market returns the locked market as of the latest UpdateMarket.
	Market() Market
	UpdateMarket(ctx context.Context, m Market) error
	// Position returns the user's position, or a zero position keyed to the
	// user if none exists yet.
	Position(ctx context.Context, user string) (Position, error)
	Positions(ctx context.Context) ([]Position, error)
	SavePosition(ctx context.Context, p Position) error
	AppendStakeEvent(ctx context.Context, ev StakeEvent) (StakeEvent, error)
}

// Ledger serialises mutations per market.
type Ledger interface {
	// InMarketTx locks marketID, runs fn, and commits if fn returns nil.
	// It returns ErrNotFound for an unknown market.
	InMarketTx(ctx context.Context, marketID int64, fn func(tx MarketTx) error) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
