package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
)

// ResolutionService resolves a single market.
type ResolutionService interface {
	Resolve(ctx context.Context, marketID int64) (domain.ResolutionResult, error)
}

// ClaimService pays out winning positions.
type ClaimService interface {
	Claim(ctx context.Context, marketID int64, user string) (domain.ClaimResult, error)
}

// SettlementHandler serves resolve and claim.
type SettlementHandler struct {
	resolution ResolutionService
	claims     ClaimService
	logger     *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(resolution ResolutionService, claims ClaimService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{resolution: resolution, claims: claims, logger: logger.With(slog.String("handler", "settlement"))}
}

type resolveResponse struct {
	MarketID         int64     `json:"market_id"`
	Outcome          bool      `json:"outcome"`
	OraclePrice      int64     `json:"oracle_price"`
	OracleConfidence int       `json:"oracle_confidence"`
	Receipt          string    `json:"receipt"`
	ResolvedAt       time.Time `json:"resolved_at"`
}

// Resolve settles an expired market against the oracle. The route is
// protected by the API key.
// POST /api/markets/{id}/resolve
func (h *SettlementHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve", err)
		return
	}
	res, err := h.resolution.Resolve(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		MarketID:         res.MarketID,
		Outcome:          res.Outcome,
		OraclePrice:      res.OraclePrice,
		OracleConfidence: res.OracleConfidence,
		Receipt:          res.Receipt,
		ResolvedAt:       res.ResolvedAt,
	})
}

type claimRequest struct {
	User string `json:"user"`
}

// Claim pays out the caller's winning position.
// POST /api/markets/{id}/claim
func (h *SettlementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "claim", err)
		return
	}
	var req claimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "claim", err)
		return
	}
	res, err := h.claims.Claim(r.Context(), id, req.User)
	if err != nil {
		writeDomainError(w, r, h.logger, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": res.MarketID,
		"user":      res.User,
		"payout":    res.Payout,
		"fee":       res.Fee,
		"receipt":   res.Receipt,
	})
}
