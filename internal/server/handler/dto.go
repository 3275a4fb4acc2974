package handler

import (
	"time"

	"github.com/afrifutures/marketd/internal/domain"
	"github.com/afrifutures/marketd/internal/service"
)

type marketJSON struct {
	ID               int64      `json:"id"`
	Commodity        string     `json:"commodity"`
	ThresholdPrice   int64      `json:"threshold_price"`
	ExpiryTime       time.Time  `json:"expiry_time"`
	CreationTime     time.Time  `json:"creation_time"`
	YesPool          int64      `json:"yes_pool"`
	NoPool           int64      `json:"no_pool"`
	State            string     `json:"state"`
	Resolved         bool       `json:"resolved"`
	Outcome          *bool      `json:"outcome,omitempty"`
	ResolutionTime   *time.Time `json:"resolution_time,omitempty"`
	OraclePrice      int64      `json:"oracle_price,omitempty"`
	OracleConfidence int        `json:"oracle_confidence,omitempty"`
	Creator          string     `json:"creator"`
}

func toMarketJSON(m domain.Market, now time.Time) marketJSON {
	out := marketJSON{
		ID:             m.ID,
		Commodity:      string(m.Commodity),
		ThresholdPrice: m.ThresholdPrice,
		ExpiryTime:     m.ExpiryTime,
		CreationTime:   m.CreationTime,
		YesPool:        m.YesPool,
		NoPool:         m.NoPool,
		State:          string(m.State(now)),
		Resolved:       m.Resolved,
		Creator:        m.Creator,
	}
	if m.Resolved {
		outcome := m.Outcome
		out.Outcome = &outcome
		out.ResolutionTime = m.ResolutionTime
		out.OraclePrice = m.OraclePrice
		out.OracleConfidence = m.OracleConfidence
	}
	return out
}

func toMarketsJSON(ms []domain.Market, now time.Time) []marketJSON {
	out := make([]marketJSON, len(ms))
	for i, m := range ms {
		out[i] = toMarketJSON(m, now)
	}
	return out
}

type oddsJSON struct {
	YesOdds float64 `json:"yes_odds"`
	NoOdds  float64 `json:"no_odds"`
	YesBps  int64   `json:"yes_bps"`
	NoBps   int64   `json:"no_bps"`
}

func toOddsJSON(o domain.Odds) oddsJSON {
	return oddsJSON{YesOdds: o.YesOdds, NoOdds: o.NoOdds, YesBps: o.YesBps, NoBps: o.NoBps}
}

type positionJSON struct {
	MarketID     int64      `json:"market_id"`
	User         string     `json:"user"`
	YesShares    int64      `json:"yes_shares"`
	NoShares     int64      `json:"no_shares"`
	Claimed      bool       `json:"claimed"`
	Payout       int64      `json:"payout"`
	Fee          int64      `json:"fee"`
	ClaimReceipt string     `json:"claim_receipt,omitempty"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
}

func toPositionsJSON(ps []domain.Position) []positionJSON {
	out := make([]positionJSON, len(ps))
	for i, p := range ps {
		out[i] = positionJSON{
			MarketID:     p.MarketID,
			User:         p.User,
			YesShares:    p.YesShares,
			NoShares:     p.NoShares,
			Claimed:      p.Claimed,
			Payout:       p.Payout,
			Fee:          p.Fee,
			ClaimReceipt: p.ClaimReceipt,
			ClaimedAt:    p.ClaimedAt,
		}
	}
	return out
}

type stakeEventJSON struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Side      string    `json:"side"`
	Amount    int64     `json:"amount"`
	Shares    int64     `json:"shares"`
	Receipt   string    `json:"receipt"`
	Timestamp time.Time `json:"timestamp"`
}

func toStakeEventsJSON(evs []domain.StakeEvent) []stakeEventJSON {
	out := make([]stakeEventJSON, len(evs))
	for i, ev := range evs {
		out[i] = stakeEventJSON{
			ID:        ev.ID,
			User:      ev.User,
			Side:      string(ev.Side),
			Amount:    ev.Amount,
			Shares:    ev.Shares,
			Receipt:   ev.Receipt,
			Timestamp: ev.Timestamp,
		}
	}
	return out
}

type healthJSON struct {
	Score        int    `json:"score"`
	Level        string `json:"level"`
	Liquidity    int    `json:"liquidity"`
	Participants int    `json:"participants"`
	Balance      int    `json:"balance"`
	Timing       int    `json:"timing"`
}

type statsJSON struct {
	Market       marketJSON `json:"market"`
	Odds         oddsJSON   `json:"odds"`
	Volume       int64      `json:"volume"`
	Stakes       int64      `json:"stakes"`
	Participants int64      `json:"participants"`
	LastStakeAt  *time.Time `json:"last_stake_at,omitempty"`
	Health       healthJSON `json:"health"`
}

func toStatsJSON(st service.MarketStats, now time.Time) statsJSON {
	h := st.Health
	return statsJSON{
		Market:       toMarketJSON(st.Market, now),
		Odds:         toOddsJSON(st.Odds),
		Volume:       st.Volume,
		Stakes:       st.Stakes,
		Participants: st.Participants,
		LastStakeAt:  st.LastStakeAt,
		Health: healthJSON{
			Score:        h.Score,
			Level:        h.Level,
			Liquidity:    h.Liquidity,
			Participants: h.Participants,
			Balance:      h.Balance,
			Timing:       h.Timing,
		},
	}
}
