package service

import (
	"math"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
)

// MarketStats summarises a market for display.
type MarketStats struct {
	Market       domain.Market
	State        domain.MarketState
	Odds         domain.Odds
	Volume       int64
	Stakes       int64
	Participants int64
	LastStakeAt  *time.Time
	Health       Health
}

// Health is a 0-100 score of how attractive a market is to stake in.
type Health struct {
	Score        int
	Level        string
	Liquidity    int // 0-30
	Participants int // 0-25
	Balance      int // 0-20
	Timing       int // 0-25
}

// Volume bands are in minor units (cents).
var liquidityBands = []struct {
	over   int64
	points int
}{
	{100_000_000, 30},
	{50_000_000, 25},
	{10_000_000, 20},
	{5_000_000, 15},
}

// ScoreHealth grades a market on liquidity, participation, how balanced the
// odds are and how long remains until expiry.
func ScoreHealth(volume, participants int64, odds domain.Odds, untilExpiry time.Duration) Health {
	h := Health{Liquidity: 5}
	for _, b := range liquidityBands {
		if volume > b.over {
			h.Liquidity = b.points
			break
		}
	}

	switch {
	case participants > 200:
		h.Participants = 25
	case participants > 150:
		h.Participants = 20
	case participants > 100:
		h.Participants = 15
	case participants > 50:
		h.Participants = 10
	default:
		h.Participants = 3
	}

	// Spread between the implied probabilities, 0 (even) to 1 (one-sided).
	spread := math.Abs(float64(odds.YesBps-odds.NoBps)) / 10_000
	switch {
	case spread < 0.1:
		h.Balance = 20
	case spread < 0.2:
		h.Balance = 15
	case spread < 0.4:
		h.Balance = 10
	case spread < 0.6:
		h.Balance = 5
	}

	days := int(math.Ceil(untilExpiry.Hours() / 24))
	switch {
	case days > 60:
		h.Timing = 25
	case days > 30:
		h.Timing = 20
	case days > 14:
		h.Timing = 15
	case days > 7:
		h.Timing = 10
	case days > 1:
		h.Timing = 5
	}

	h.Score = min(100, h.Liquidity+h.Participants+h.Balance+h.Timing)
	switch {
	case h.Score >= 80:
		h.Level = "excellent"
	case h.Score >= 65:
		h.Level = "good"
	case h.Score >= 50:
		h.Level = "fair"
	case h.Score >= 35:
		h.Level = "poor"
	default:
		h.Level = "very_poor"
	}
	return h
}
