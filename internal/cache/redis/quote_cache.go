package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afrifutures/marketd/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at "marketd:quote:{COMMODITY}" with fields price, confidence, ts
// (Unix nanoseconds) and source, and expires after ttl.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. A zero ttl
// keeps quotes until overwritten.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.rdb, ttl: ttl}
}

func quoteKey(c domain.Commodity) string {
	return key("quote", string(c))
}

// SetQuote stores the latest quote for its commodity.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.PriceQuote) error {
	key := quoteKey(q.Commodity)
	fields := map[string]any{
		"price":      strconv.FormatInt(q.Price, 10),
		"confidence": strconv.Itoa(q.Confidence),
		"ts":         strconv.FormatInt(q.Timestamp.UnixNano(), 10),
		"source":     q.Source,
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Commodity, err)
	}
	return nil
}

// GetQuote returns the cached quote for a commodity or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(c)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", c, err)
	}
	q, err := decodeQuote(c, vals)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", c, err)
	}
	return q, nil
}

func decodeQuote(c domain.Commodity, vals map[string]string) (domain.PriceQuote, error) {
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	price, err := strconv.ParseInt(vals["price"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("parse price: %w", err)
	}
	conf, err := strconv.Atoi(vals["confidence"])
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("parse confidence: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("parse ts: %w", err)
	}
	return domain.PriceQuote{
		Commodity:  c,
		Price:      price,
		Confidence: conf,
		Timestamp:  time.Unix(0, tsNano).UTC(),
		Source:     vals["source"],
	}, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
