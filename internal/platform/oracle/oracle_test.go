package oracle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrifutures/marketd/internal/domain"
)

func TestClientGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/prices/COFFEE", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"commodity":"COFFEE","price":2456789,"decimals":4,"confidence":96,"timestamp":1767225600,"source":"ice"}`)
	}))
	defer srv.Close()

	q, err := NewClient(srv.URL, "k", time.Second).GetPrice(context.Background(), domain.CommodityCoffee)
	require.NoError(t, err)
	assert.Equal(t, int64(24567), q.Price) // 245.6789 -> 24567 cents
	assert.Equal(t, 96, q.Confidence)
	assert.Equal(t, "ice", q.Source)
	assert.Equal(t, int64(1767225600), q.Timestamp.Unix())
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		is     error
	}{
		{"not found", http.StatusNotFound, `{}`, domain.ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, `{}`, domain.ErrRateLimited},
		{"server error", http.StatusBadGateway, `oops`, domain.ErrOracleUnavailable},
		{"bad request", http.StatusBadRequest, `nope`, nil},
		{"bad confidence", http.StatusOK, `{"price":100,"decimals":2,"confidence":140,"timestamp":1}`, nil},
		{"wrong commodity", http.StatusOK, `{"commodity":"GOLD","price":100,"decimals":2,"confidence":90,"timestamp":1}`, nil},
		{"sub-cent price", http.StatusOK, `{"price":1,"decimals":6,"confidence":90,"timestamp":1}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", time.Second).GetPrice(context.Background(), domain.CommodityTea)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestClientWithoutBaseURL(t *testing.T) {
	_, err := NewClient("", "", time.Second).GetPrice(context.Background(), domain.CommodityCocoa)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

type memQuotes struct {
	mu sync.Mutex
	m  map[domain.Commodity]domain.PriceQuote
}

func (c *memQuotes) SetQuote(_ context.Context, q domain.PriceQuote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[q.Commodity] = q
	return nil
}

func (c *memQuotes) GetQuote(_ context.Context, com domain.Commodity) (domain.PriceQuote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.m[com]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return q, nil
}

type countingOracle struct {
	calls int
	price int64
}

func (o *countingOracle) GetPrice(_ context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	o.calls++
	return domain.PriceQuote{Commodity: c, Price: o.price, Confidence: 99, Timestamp: time.Now()}, nil
}

func TestCachedOracle(t *testing.T) {
	ctx := context.Background()
	up := &countingOracle{price: 500}
	cache := &memQuotes{m: map[domain.Commodity]domain.PriceQuote{}}
	o := NewCachedOracle(up, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))

	q, err := o.Latest(ctx, domain.CommodityGold)
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.Price)
	assert.Equal(t, 1, up.calls)

	up.price = 600
	q, err = o.Latest(ctx, domain.CommodityGold)
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.Price, "display reads come from the cache")
	assert.Equal(t, 1, up.calls)

	q, err = o.GetPrice(ctx, domain.CommodityGold)
	require.NoError(t, err)
	assert.Equal(t, int64(600), q.Price, "GetPrice always queries upstream")
	assert.Equal(t, 2, up.calls)
}
