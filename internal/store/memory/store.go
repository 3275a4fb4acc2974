// Package memory is an in-process implementation of the market ledger and
// its read stores. It backs the "memory" storage mode and the service tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
)

// Store holds every market, position, stake event and audit row in memory.
type Store struct {
	mu        sync.RWMutex
	markets   map[int64]domain.Market
	positions map[int64]map[string]domain.Position
	events    []domain.StakeEvent
	audit     []domain.AuditEntry
	nextID    int64
	nextEvent int64
	nextAudit int64

	locksMu sync.Mutex
	locks   map[int64]chan struct{}

	now func() time.Time
}

var (
	_ domain.MarketStore     = (*Store)(nil)
	_ domain.StakeEventStore = (*Store)(nil)
	_ domain.Ledger          = (*Store)(nil)
	_ domain.PositionStore   = (*Positions)(nil)
	_ domain.AuditStore      = (*Audit)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		markets:   make(map[int64]domain.Market),
		positions: make(map[int64]map[string]domain.Position),
		locks:     make(map[int64]chan struct{}),
		now:       time.Now,
	}
}

// WithClock replaces the time source used for position and stake event
// timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Positions is a thin view of the Store that satisfies domain.PositionStore
// without clashing with the StakeEventStore ListByMarket method.
type Positions struct{ s *Store }

// PositionStore returns the position view of the Store.
func (s *Store) PositionStore() *Positions { return &Positions{s: s} }

// Audit is the audit log view of the Store.
type Audit struct{ s *Store }

// AuditStore returns the audit log view of the Store.
func (s *Store) AuditStore() *Audit { return &Audit{s: s} }

// ---------------------------------------------------------------------------
// Markets
// ---------------------------------------------------------------------------

// Create inserts a new market with the next sequential id.
func (s *Store) Create(_ context.Context, p domain.CreateMarketParams, now time.Time) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	m := domain.Market{
		ID:             s.nextID,
		Commodity:      p.Commodity,
		ThresholdPrice: p.ThresholdPrice,
		ExpiryTime:     p.ExpiryTime.UTC(),
		CreationTime:   now.UTC(),
		Creator:        p.Creator,
	}
	s.markets[m.ID] = m
	return m, nil
}

// GetByID returns the committed state of a market.
func (s *Store) GetByID(_ context.Context, id int64) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.NewMarketError(domain.ErrNotFound, id, "", "")
	}
	return m, nil
}

// List returns markets matching filter, newest first.
func (s *Store) List(_ context.Context, filter domain.MarketFilter, now time.Time) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Market
	for _, m := range s.markets {
		if filter.Commodity != "" && m.Commodity != filter.Commodity {
			continue
		}
		if filter.State != "" && m.State(now) != filter.State {
			continue
		}
		if filter.Since != nil && m.CreationTime.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && m.CreationTime.After(*filter.Until) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, filter.ListOpts), nil
}

// ListExpiredUnresolved returns unresolved markets whose expiry is at or
// before now, oldest expiry first.
func (s *Store) ListExpiredUnresolved(_ context.Context, now time.Time) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Market
	for _, m := range s.markets {
		if m.State(now) == domain.MarketStateExpiredUnresolved {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryTime.Equal(out[j].ExpiryTime) {
			return out[i].ExpiryTime.Before(out[j].ExpiryTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// Get returns the position of user in marketID.
func (v *Positions) Get(_ context.Context, marketID int64, user string) (domain.Position, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	p, ok := v.s.positions[marketID][user]
	if !ok {
		return domain.Position{}, domain.NewMarketError(domain.ErrNotFound, marketID, "user", user)
	}
	return p, nil
}

// ListByMarket returns every position in a market ordered by user.
func (v *Positions) ListByMarket(_ context.Context, marketID int64) ([]domain.Position, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return sortedPositions(v.s.positions[marketID]), nil
}

// ListByUser returns a user's positions across markets, newest market first.
func (v *Positions) ListByUser(_ context.Context, user string, opts domain.ListOpts) ([]domain.Position, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var out []domain.Position
	for _, byUser := range v.s.positions {
		if p, ok := byUser[user]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID > out[j].MarketID })
	return paginate(out, opts), nil
}

// ---------------------------------------------------------------------------
// Stake events
// ---------------------------------------------------------------------------

// ListByMarket returns the stakes placed on a market, oldest first.
func (s *Store) ListByMarket(_ context.Context, marketID int64, opts domain.ListOpts) ([]domain.StakeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StakeEvent
	for _, ev := range s.events {
		if ev.MarketID != marketID {
			continue
		}
		if opts.Since != nil && ev.Timestamp.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && ev.Timestamp.After(*opts.Until) {
			continue
		}
		out = append(out, ev)
	}
	return paginate(out, opts), nil
}

// ListBefore returns every stake event recorded strictly before the cutoff.
func (s *Store) ListBefore(_ context.Context, before time.Time) ([]domain.StakeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StakeEvent
	for _, ev := range s.events {
		if ev.Timestamp.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Stats summarises the stake log of a market.
func (s *Store) Stats(_ context.Context, marketID int64) (domain.StakeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st domain.StakeStats
	users := make(map[string]struct{})
	for _, ev := range s.events {
		if ev.MarketID != marketID {
			continue
		}
		st.Stakes++
		users[ev.User] = struct{}{}
		if st.LastStakeAt == nil || ev.Timestamp.After(*st.LastStakeAt) {
			ts := ev.Timestamp
			st.LastStakeAt = &ts
		}
	}
	st.Participants = int64(len(users))
	return st, nil
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// Log appends an audit entry.
func (a *Audit) Log(_ context.Context, event string, detail map[string]any) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAudit++
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        s.nextAudit,
		Event:     event,
		Detail:    maps.Clone(detail),
		CreatedAt: s.now().UTC(),
	})
	return nil
}

// List returns audit entries newest first.
func (a *Audit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s := a.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, opts), nil
}

// ListBefore returns audit entries created strictly before the cutoff.
func (a *Audit) ListBefore(_ context.Context, before time.Time) ([]domain.AuditEntry, error) {
	s := a.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEntry
	for _, e := range s.audit {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func sortedPositions(byUser map[string]domain.Position) []domain.Position {
	out := slices.Collect(maps.Values(byUser))
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
