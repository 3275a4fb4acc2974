package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side is the outcome a stake backs.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// ParseSide parses "yes"/"no" case-insensitively.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideYes:
		return SideYes, nil
	case SideNo:
		return SideNo, nil
	default:
		return "", InvalidParam("side", fmt.Sprintf("unknown side %q", s))
	}
}

// MarketState is derived from the market fields and the current time.
type MarketState string

const (
	MarketStateOpen              MarketState = "OPEN"
	MarketStateExpiredUnresolved MarketState = "EXPIRED_UNRESOLVED"
	MarketStateResolved          MarketState = "RESOLVED"
)

// Market is a binary question on whether a commodity price is at or above
// ThresholdPrice at ExpiryTime. Prices and pools are in minor units.
type Market struct {
	ID               int64
	Commodity        Commodity
	ThresholdPrice   int64
	ExpiryTime       time.Time
	CreationTime     time.Time
	YesPool          int64
	NoPool           int64
	Resolved         bool
	Outcome          bool // true = YES won; meaningful only when Resolved
	ResolutionTime   *time.Time
	OraclePrice      int64
	OracleConfidence int
	Creator          string
}

// State returns the lifecycle state of the market at now.
func (m Market) State(now time.Time) MarketState {
	switch {
	case m.Resolved:
		return MarketStateResolved
	case now.Before(m.ExpiryTime):
		return MarketStateOpen
	default:
		return MarketStateExpiredUnresolved
	}
}

// TotalPool is the sum of both pools.
func (m Market) TotalPool() int64 { return m.YesPool + m.NoPool }

// Pool returns the pool backing side.
func (m Market) Pool(side Side) int64 {
	if side == SideYes {
		return m.YesPool
	}
	return m.NoPool
}

// WinningSide returns the side that won. It is only meaningful once Resolved.
func (m Market) WinningSide() Side {
	if m.Outcome {
		return SideYes
	}
	return SideNo
}

// CreateMarketParams is the input to market creation.
type CreateMarketParams struct {
	Commodity      Commodity
	ThresholdPrice int64
	ExpiryTime     time.Time
	Creator        string
}

// MarketFilter narrows market listings.
type MarketFilter struct {
	Commodity Commodity
	State     MarketState
	ListOpts
}

// Odds are implied percentages for each side with two decimal places. The
// basis-point fields are exact and always sum to 10000.
type Odds struct {
	YesOdds float64
	NoOdds  float64
	YesBps  int64
	NoBps   int64
}
