package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
	"github.com/afrifutures/marketd/internal/service"
)

// MarketService is what the market handler needs from the ledger.
type MarketService interface {
	CreateMarket(ctx context.Context, p domain.CreateMarketParams) (domain.Market, error)
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
	ListMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error)
	ListExpiredUnresolved(ctx context.Context) ([]domain.Market, error)
	Stats(ctx context.Context, id int64) (service.MarketStats, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	markets MarketService
	now     func() time.Time
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, now: time.Now, logger: logger.With(slog.String("handler", "market"))}
}

type createMarketRequest struct {
	Commodity      string    `json:"commodity"`
	ThresholdPrice int64     `json:"threshold_price"`
	ExpiryTime     time.Time `json:"expiry_time"`
	Creator        string    `json:"creator"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}
	c, err := domain.ParseCommodity(req.Commodity)
	if err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), domain.CreateMarketParams{
		Commodity:      c,
		ThresholdPrice: req.ThresholdPrice,
		ExpiryTime:     req.ExpiryTime,
		Creator:        req.Creator,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMarketJSON(m, h.now()))
}

type listMarketsResponse struct {
	Markets []marketJSON `json:"markets"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets, optionally filtered by commodity and state.
// GET /api/markets?commodity=COFFEE&state=OPEN&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.MarketFilter{ListOpts: parseListOpts(r)}
	if raw := q.Get("commodity"); raw != "" {
		c, err := domain.ParseCommodity(raw)
		if err != nil {
			writeDomainError(w, r, h.logger, "list markets", err)
			return
		}
		filter.Commodity = c
	}
	if raw := q.Get("state"); raw != "" {
		switch st := domain.MarketState(raw); st {
		case domain.MarketStateOpen, domain.MarketStateExpiredUnresolved, domain.MarketStateResolved:
			filter.State = st
		default:
			writeDomainError(w, r, h.logger, "list markets", domain.InvalidParam("state", raw))
			return
		}
	}

	markets, err := h.markets.ListMarkets(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, h.logger, "list markets", err)
		return
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: toMarketsJSON(markets, h.now()),
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// GetMarket returns one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "get market", err)
		return
	}
	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketJSON(m, h.now()))
}

// ListExpired returns the resolution worklist.
// GET /api/markets/expired
func (h *MarketHandler) ListExpired(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.ListExpiredUnresolved(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "list expired markets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": toMarketsJSON(markets, h.now())})
}

// Stats returns activity and a health score.
// GET /api/markets/{id}/stats
func (h *MarketHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "market stats", err)
		return
	}
	st, err := h.markets.Stats(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "market stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsJSON(st, h.now()))
}
