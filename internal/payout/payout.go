// Package payout holds the pari-mutuel settlement arithmetic shared by the
// staking preview and resolution. All amounts are integer minor units; the
// only rounding is a floor at each division.
package payout

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/afrifutures/marketd/internal/domain"
)

// BpsDenominator is the basis-point scale for fees and odds.
const BpsDenominator = 10_000

var (
	hundred = decimal.NewFromInt(100)
	bpsDen  = decimal.NewFromInt(BpsDenominator)
)

// Breakdown is the settlement of one winning holding.
type Breakdown struct {
	Principal int64 // winning shares returned 1:1
	Winnings  int64 // pro-rata share of the losing pool, before fee
	Fee       int64 // platform fee, charged on Winnings only
	Net       int64 // Principal + Winnings - Fee
}

// Compute settles userShares of the winning side against the given pools.
// When either pool is empty there is nothing to win and the principal is
// returned without fee.
func Compute(userShares, winningPool, losingPool, feeBps int64) Breakdown {
	if userShares <= 0 {
		return Breakdown{}
	}
	if winningPool <= 0 || losingPool <= 0 {
		return Breakdown{Principal: userShares, Net: userShares}
	}
	winnings := floorDiv(decimal.NewFromInt(userShares).Mul(decimal.NewFromInt(losingPool)), decimal.NewFromInt(winningPool))
	return withFee(userShares, winnings, feeBps)
}

// Preview returns the net payout a new stake of amount on side would receive
// if the market resolved in its favour with no further stakes. It uses the
// same floor formula as Compute and therefore never overstates the payout
// allocated at resolution for those pools.
func Preview(m domain.Market, side domain.Side, amount, feeBps int64) int64 {
	if amount <= 0 || amount > math.MaxInt64-m.TotalPool() {
		return 0
	}
	winning := m.Pool(side) + amount
	losing := m.Pool(side.Opposite())
	return Compute(amount, winning, losing, feeBps).Net
}

// Odds returns the implied percentage for each side. Both pools empty means
// even odds.
func Odds(yesPool, noPool int64) domain.Odds {
	total := yesPool + noPool
	if total <= 0 {
		return domain.Odds{YesOdds: 50, NoOdds: 50, YesBps: BpsDenominator / 2, NoBps: BpsDenominator / 2}
	}
	yesBps := decimal.NewFromInt(yesPool).Mul(bpsDen).Div(decimal.NewFromInt(total)).Round(0).IntPart()
	noBps := BpsDenominator - yesBps
	return domain.Odds{
		YesOdds: decimal.New(yesBps, -2).InexactFloat64(),
		NoOdds:  decimal.New(noBps, -2).InexactFloat64(),
		YesBps:  yesBps,
		NoBps:   noBps,
	}
}

// FeeRate renders feeBps as a percentage string, e.g. 200 -> "2".
func FeeRate(feeBps int64) string {
	return decimal.NewFromInt(feeBps).Mul(hundred).Div(bpsDen).String()
}

// Holding is a user's winning-side shares going into allocation.
type Holding struct {
	User   string
	Shares int64
}

// Allocation is the resolved settlement for one holding.
type Allocation struct {
	User string
	Breakdown
}

// Allocate distributes the losing pool across the winning holdings. Each
// holding first receives its floored pro-rata share; the remaining units go
// one each to the holdings with the largest remainders (ties broken by user).
// With feeBps == 0 the returned Net values sum to winningPool + losingPool
// whenever the holdings sum to winningPool.
func Allocate(holdings []Holding, winningPool, losingPool, feeBps int64) []Allocation {
	out := make([]Allocation, 0, len(holdings))
	if winningPool <= 0 || losingPool <= 0 {
		for _, h := range holdings {
			if h.Shares <= 0 {
				continue
			}
			out = append(out, Allocation{User: h.User, Breakdown: Breakdown{Principal: h.Shares, Net: h.Shares}})
		}
		return out
	}

	type slot struct {
		user      string
		shares    int64
		winnings  int64
		remainder decimal.Decimal
	}
	slots := make([]slot, 0, len(holdings))
	wp := decimal.NewFromInt(winningPool)
	lp := decimal.NewFromInt(losingPool)
	var distributed int64
	for _, h := range holdings {
		if h.Shares <= 0 {
			continue
		}
		q, r := decimal.NewFromInt(h.Shares).Mul(lp).QuoRem(wp, 0)
		w := q.IntPart()
		distributed += w
		slots = append(slots, slot{user: h.User, shares: h.Shares, winnings: w, remainder: r})
	}

	order := make([]int, len(slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := slots[order[a]], slots[order[b]]
		if c := sa.remainder.Cmp(sb.remainder); c != 0 {
			return c > 0
		}
		return sa.user < sb.user
	})
	leftover := losingPool - distributed
	for i := 0; leftover > 0 && i < len(order); i++ {
		if slots[order[i]].remainder.IsZero() {
			break
		}
		slots[order[i]].winnings++
		leftover--
	}

	for _, s := range slots {
		out = append(out, Allocation{User: s.user, Breakdown: withFee(s.shares, s.winnings, feeBps)})
	}
	return out
}

func withFee(principal, winnings, feeBps int64) Breakdown {
	var fee int64
	if feeBps > 0 && winnings > 0 {
		fee = floorDiv(decimal.NewFromInt(winnings).Mul(decimal.NewFromInt(feeBps)), bpsDen)
	}
	return Breakdown{
		Principal: principal,
		Winnings:  winnings,
		Fee:       fee,
		Net:       principal + winnings - fee,
	}
}

// floorDiv divides two non-negative integers exactly and discards the
// remainder.
func floorDiv(num, den decimal.Decimal) int64 {
	q, _ := num.QuoRem(den, 0)
	return q.IntPart()
}
