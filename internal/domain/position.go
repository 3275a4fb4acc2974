package domain

import "time"

// Position is a user's holdings in one market. It is created on first stake
// and never deleted.
type Position struct {
	MarketID     int64
	User         string
	YesShares    int64
	NoShares     int64
	Claimed      bool
	Payout       int64 // net amount allocated at resolution
	Fee          int64
	ClaimReceipt string
	ClaimedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Shares returns the shares held on side.
func (p Position) Shares(side Side) int64 {
	if side == SideYes {
		return p.YesShares
	}
	return p.NoShares
}

// AddShares credits shares to side.
func (p *Position) AddShares(side Side, shares int64) {
	if side == SideYes {
		p.YesShares += shares
	} else {
		p.NoShares += shares
	}
}

// StakeEvent is an append-only record of a single stake.
type StakeEvent struct {
	ID        int64
	MarketID  int64
	User      string
	Side      Side
	Amount    int64
	Shares    int64
	Receipt   string
	Timestamp time.Time
}

// StakeResult is returned by a successful stake.
type StakeResult struct {
	MarketID   int64
	Side       Side
	Shares     int64
	NewYesPool int64
	NewNoPool  int64
	Receipt    string
}

// ResolutionResult is returned by a successful resolution.
type ResolutionResult struct {
	MarketID         int64
	Outcome          bool
	OraclePrice      int64
	OracleConfidence int
	Receipt          string
	ResolvedAt       time.Time
}

// ClaimResult is returned by a successful claim.
type ClaimResult struct {
	MarketID int64
	User     string
	Payout   int64
	Fee      int64
	Receipt  string
}
