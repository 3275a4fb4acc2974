package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
)

// QuoteSource returns the latest display quote for a commodity.
type QuoteSource interface {
	Latest(ctx context.Context, c domain.Commodity) (domain.PriceQuote, error)
}

// PriceHandler serves display prices. These quotes never feed resolution.
type PriceHandler struct {
	quotes QuoteSource
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(quotes QuoteSource, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{quotes: quotes, logger: logger.With(slog.String("handler", "price"))}
}

// Latest returns the latest quote.
// GET /api/prices/{commodity}
func (h *PriceHandler) Latest(w http.ResponseWriter, r *http.Request) {
	c, err := domain.ParseCommodity(r.PathValue("commodity"))
	if err != nil {
		writeDomainError(w, r, h.logger, "latest price", err)
		return
	}
	q, err := h.quotes.Latest(r.Context(), c)
	if err != nil {
		writeDomainError(w, r, h.logger, "latest price", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commodity":  string(q.Commodity),
		"price":      q.Price,
		"confidence": q.Confidence,
		"timestamp":  q.Timestamp.UTC().Format(time.RFC3339),
		"source":     q.Source,
	})
}
