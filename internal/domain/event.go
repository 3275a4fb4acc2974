package domain

import "time"

// Bus channels for live market events.
const (
	ChannelMarketCreated  = "market.created"
	ChannelStakePlaced    = "market.stake"
	ChannelMarketResolved = "market.resolved"
	ChannelPayoutClaimed  = "market.claim"
	ChannelOracleFailure  = "oracle.failure"
)

// MarketEvent is the JSON payload published on the signal bus and pushed to
// websocket clients.
type MarketEvent struct {
	Type      string    `json:"type"`
	MarketID  int64     `json:"market_id"`
	Commodity Commodity `json:"commodity,omitempty"`
	User      string    `json:"user,omitempty"`
	Side      Side      `json:"side,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	YesPool   int64     `json:"yes_pool"`
	NoPool    int64     `json:"no_pool"`
	Outcome   *bool     `json:"outcome,omitempty"`
	Price     int64     `json:"price,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
