package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/afrifutures/marketd/internal/domain"
)

// CachedOracle writes every successful upstream quote through to a QuoteCache
// and serves Latest from the cache for display. GetPrice always goes to the
// upstream feed so resolution never sees a cached price.
type CachedOracle struct {
	upstream domain.PriceOracle
	cache    domain.QuoteCache
	logger   *slog.Logger
}

var _ domain.PriceOracle = (*CachedOracle)(nil)

// NewCachedOracle wraps upstream with cache.
func NewCachedOracle(upstream domain.PriceOracle, cache domain.QuoteCache, logger *slog.Logger) *CachedOracle {
	return &CachedOracle{
		upstream: upstream,
		cache:    cache,
		logger:   logger.With(slog.String("component", "oracle_cache")),
	}
}

// GetPrice queries the upstream feed and refreshes the cache.
func (o *CachedOracle) GetPrice(ctx context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	q, err := o.upstream.GetPrice(ctx, c)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if err := o.cache.SetQuote(ctx, q); err != nil {
		o.logger.WarnContext(ctx, "failed to cache quote",
			slog.String("commodity", string(c)),
			slog.String("error", err.Error()),
		)
	}
	return q, nil
}

// Latest returns the cached quote if one is present and otherwise falls back
// to the upstream feed.
func (o *CachedOracle) Latest(ctx context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	q, err := o.cache.GetQuote(ctx, c)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		o.logger.WarnContext(ctx, "quote cache read failed",
			slog.String("commodity", string(c)),
			slog.String("error", err.Error()),
		)
	}
	q, err = o.GetPrice(ctx, c)
	if err != nil && !errors.Is(err, domain.ErrOracleUnavailable) {
		return domain.PriceQuote{}, fmt.Errorf("oracle: latest %s: %w: %w", c, domain.ErrOracleUnavailable, err)
	}
	return q, err
}
