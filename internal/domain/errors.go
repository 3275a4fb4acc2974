package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrMarketClosed      = errors.New("market closed")
	ErrBelowMinimumStake = errors.New("below minimum stake")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrAlreadyResolved   = errors.New("market already resolved")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrNotResolved       = errors.New("market not resolved")
	ErrNoWinningPosition = errors.New("no winning position")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")

	// ErrMarketNotExpired is a parameter error: resolution was requested
	// before the market's expiry.
	ErrMarketNotExpired = fmt.Errorf("%w: market not expired", ErrInvalidParameters)
)

// MarketError attaches the market and offending field to one of the sentinel
// errors above. errors.Is matches against the wrapped sentinel.
type MarketError struct {
	Err      error
	MarketID int64
	Field    string
	Detail   string
}

func (e *MarketError) Error() string {
	msg := e.Err.Error()
	if e.MarketID != 0 {
		msg = fmt.Sprintf("market %d: %s", e.MarketID, msg)
	}
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *MarketError) Unwrap() error { return e.Err }

// NewMarketError builds a MarketError for the given sentinel.
func NewMarketError(err error, marketID int64, field, detail string) *MarketError {
	return &MarketError{Err: err, MarketID: marketID, Field: field, Detail: detail}
}

// InvalidParam is shorthand for a field validation failure.
func InvalidParam(field, detail string) *MarketError {
	return &MarketError{Err: ErrInvalidParameters, Field: field, Detail: detail}
}

// ErrorKind returns a stable machine-readable name for the sentinel wrapped by
// err, or "internal" if none matches.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMarketNotExpired):
		return "market_not_expired"
	case errors.Is(err, ErrInvalidParameters):
		return "invalid_parameters"
	case errors.Is(err, ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, ErrBelowMinimumStake):
		return "below_minimum_stake"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrOracleUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, ErrNotResolved):
		return "not_resolved"
	case errors.Is(err, ErrNoWinningPosition):
		return "no_winning_position"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrLockHeld):
		return "lock_held"
	default:
		return "internal"
	}
}
