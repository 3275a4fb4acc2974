// Package handler implements the JSON HTTP endpoints of the market daemon.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/afrifutures/marketd/internal/domain"
	"github.com/afrifutures/marketd/internal/server/middleware"
)

const maxBodyBytes = 1 << 16

// writeJSON marshals v as JSON and writes it with the given status. If
// marshaling fails it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

type errorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	MarketID int64  `json:"market_id,omitempty"`
	Field    string `json:"field,omitempty"`
}

// writeError sends a JSON error with an explicit kind.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

var kindStatus = map[string]int{
	"not_found":           http.StatusNotFound,
	"invalid_parameters":  http.StatusBadRequest,
	"market_not_expired":  http.StatusBadRequest,
	"below_minimum_stake": http.StatusBadRequest,
	"market_closed":       http.StatusConflict,
	"already_resolved":    http.StatusConflict,
	"not_resolved":        http.StatusConflict,
	"no_winning_position": http.StatusConflict,
	"already_claimed":     http.StatusConflict,
	"lock_held":           http.StatusConflict,
	"insufficient_funds":  http.StatusPaymentRequired,
	"transfer_failed":     http.StatusBadGateway,
	"oracle_unavailable":  http.StatusServiceUnavailable,
	"rate_limited":        http.StatusTooManyRequests,
	"unauthorized":        http.StatusUnauthorized,
}

// writeDomainError maps err to a status code by its sentinel. Internal errors
// are logged and their text is not returned.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	kind := domain.ErrorKind(err)
	status, ok := kindStatus[kind]
	if !ok {
		logger.ErrorContext(r.Context(), op+" failed",
			slog.String("request_id", middleware.RequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, kind, op+" failed")
		return
	}

	resp := errorResponse{Error: err.Error(), Kind: kind}
	var me *domain.MarketError
	if errors.As(err, &me) {
		resp.MarketID = me.MarketID
		resp.Field = me.Field
	}
	if status >= http.StatusInternalServerError {
		logger.WarnContext(r.Context(), op+" failed",
			slog.String("request_id", middleware.RequestID(r.Context())),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.InvalidParam("body", err.Error())
	}
	return nil
}

// parseListOpts extracts pagination from the query string. Defaults:
// limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, 500)
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

// marketID parses the {id} path value.
func marketID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.InvalidParam("id", fmt.Sprintf("invalid market id %q", raw))
	}
	return id, nil
}
