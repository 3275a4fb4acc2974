package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/afrifutures/marketd/internal/domain"
)

// StakingService is what the staking handler needs from the staking engine.
type StakingService interface {
	Stake(ctx context.Context, marketID int64, user string, side domain.Side, amount int64) (domain.StakeResult, error)
	GetOdds(ctx context.Context, marketID int64) (domain.Odds, error)
	CalculatePayoutPreview(ctx context.Context, marketID int64, side domain.Side, amount int64) (int64, error)
	ListStakes(ctx context.Context, marketID int64, opts domain.ListOpts) ([]domain.StakeEvent, error)
	ListPositions(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Position, error)
}

// StakingHandler serves stake, odds, preview and position endpoints.
type StakingHandler struct {
	staking StakingService
	logger  *slog.Logger
}

// NewStakingHandler creates a StakingHandler.
func NewStakingHandler(staking StakingService, logger *slog.Logger) *StakingHandler {
	return &StakingHandler{staking: staking, logger: logger.With(slog.String("handler", "staking"))}
}

type stakeRequest struct {
	User   string `json:"user"`
	Side   string `json:"side"`
	Amount int64  `json:"amount"`
}

type stakeResponse struct {
	MarketID   int64  `json:"market_id"`
	Side       string `json:"side"`
	Shares     int64  `json:"shares"`
	NewYesPool int64  `json:"new_yes_pool"`
	NewNoPool  int64  `json:"new_no_pool"`
	Receipt    string `json:"receipt"`
}

// Stake places a stake.
// POST /api/markets/{id}/stakes
func (h *StakingHandler) Stake(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "stake", err)
		return
	}
	var req stakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "stake", err)
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeDomainError(w, r, h.logger, "stake", err)
		return
	}

	res, err := h.staking.Stake(r.Context(), id, req.User, side, req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, "stake", err)
		return
	}
	writeJSON(w, http.StatusCreated, stakeResponse{
		MarketID:   res.MarketID,
		Side:       string(res.Side),
		Shares:     res.Shares,
		NewYesPool: res.NewYesPool,
		NewNoPool:  res.NewNoPool,
		Receipt:    res.Receipt,
	})
}

// ListStakes returns the stake history of a market.
// GET /api/markets/{id}/stakes
func (h *StakingHandler) ListStakes(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "list stakes", err)
		return
	}
	events, err := h.staking.ListStakes(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list stakes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stakes": toStakeEventsJSON(events)})
}

// Odds returns the implied odds.
// GET /api/markets/{id}/odds
func (h *StakingHandler) Odds(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "odds", err)
		return
	}
	odds, err := h.staking.GetOdds(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "odds", err)
		return
	}
	writeJSON(w, http.StatusOK, toOddsJSON(odds))
}

// Preview returns the payout a hypothetical stake would receive.
// GET /api/markets/{id}/preview?side=YES&amount=100
func (h *StakingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "preview", err)
		return
	}
	q := r.URL.Query()
	side, err := domain.ParseSide(q.Get("side"))
	if err != nil {
		writeDomainError(w, r, h.logger, "preview", err)
		return
	}
	amount, err := strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil {
		writeDomainError(w, r, h.logger, "preview", domain.InvalidParam("amount", "must be an integer"))
		return
	}

	payout, err := h.staking.CalculatePayoutPreview(r.Context(), id, side, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"side":      string(side),
		"amount":    amount,
		"payout":    payout,
	})
}

// ListPositions returns a user's positions.
// GET /api/positions?user=0x...
func (h *StakingHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "invalid_parameters", "user query parameter required")
		return
	}
	positions, err := h.staking.ListPositions(r.Context(), user, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list positions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": toPositionsJSON(positions)})
}
