package memory

import (
	"context"
	"maps"

	"github.com/afrifutures/marketd/internal/domain"
)

// InMarketTx serialises work on one market behind a per-market lock. Writes
// are staged and applied only when fn returns nil.
func (s *Store) InMarketTx(ctx context.Context, marketID int64, fn func(tx domain.MarketTx) error) error {
	lock := s.marketLock(marketID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	m, err := s.GetByID(ctx, marketID)
	if err != nil {
		return err
	}

	tx := &memTx{s: s, market: m, staged: make(map[string]domain.Position)}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) marketLock(marketID int64) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[marketID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[marketID] = l
	}
	return l
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markets[tx.market.ID] = tx.market

	if len(tx.staged) > 0 {
		byUser, ok := s.positions[tx.market.ID]
		if !ok {
			byUser = make(map[string]domain.Position)
			s.positions[tx.market.ID] = byUser
		}
		maps.Copy(byUser, tx.staged)
	}
	for _, ev := range tx.events {
		s.nextEvent++
		ev.ID = s.nextEvent
		s.events = append(s.events, ev)
	}
}

type memTx struct {
	s      *Store
	market domain.Market
	staged map[string]domain.Position
	events []domain.StakeEvent
}

func (t *memTx) Market() domain.Market { return t.market }

func (t *memTx) UpdateMarket(_ context.Context, m domain.Market) error {
	t.market = m
	return nil
}

func (t *memTx) Position(_ context.Context, user string) (domain.Position, error) {
	if p, ok := t.staged[user]; ok {
		return p, nil
	}
	t.s.mu.RLock()
	p, ok := t.s.positions[t.market.ID][user]
	t.s.mu.RUnlock()
	if !ok {
		return domain.Position{MarketID: t.market.ID, User: user}, nil
	}
	return p, nil
}

func (t *memTx) Positions(_ context.Context) ([]domain.Position, error) {
	t.s.mu.RLock()
	merged := maps.Clone(t.s.positions[t.market.ID])
	t.s.mu.RUnlock()
	if merged == nil {
		merged = make(map[string]domain.Position)
	}
	maps.Copy(merged, t.staged)
	return sortedPositions(merged), nil
}

func (t *memTx) SavePosition(_ context.Context, p domain.Position) error {
	now := t.s.now().UTC()
	p.MarketID = t.market.ID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.staged[p.User] = p
	return nil
}

func (t *memTx) AppendStakeEvent(_ context.Context, ev domain.StakeEvent) (domain.StakeEvent, error) {
	ev.MarketID = t.market.ID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.s.now().UTC()
	}
	t.events = append(t.events, ev)
	return ev, nil
}
