package payout

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrifutures/marketd/internal/domain"
)

func TestComputeBasicWin(t *testing.T) {
	// A stakes 100 YES, B stakes 50 NO, YES wins, 2% fee on winnings.
	b := Compute(100, 100, 50, 200)
	assert.Equal(t, Breakdown{Principal: 100, Winnings: 50, Fee: 1, Net: 149}, b)

	// Same market with no fee pays out the entire pool.
	assert.Equal(t, int64(150), Compute(100, 100, 50, 0).Net)
}

func TestComputeDegenerateOneSided(t *testing.T) {
	// Everyone backed YES and YES won: principal back, no fee.
	b := Compute(70, 200, 0, 200)
	assert.Equal(t, Breakdown{Principal: 70, Net: 70}, b)

	assert.Equal(t, Breakdown{}, Compute(0, 100, 50, 200))
}

func TestComputeFloors(t *testing.T) {
	// 1 * 100 / 3 = 33.33 -> 33; fee floor(33*0.02)=0.
	b := Compute(1, 3, 100, 200)
	assert.Equal(t, int64(33), b.Winnings)
	assert.Equal(t, int64(0), b.Fee)
	assert.Equal(t, int64(34), b.Net)
}

func TestOdds(t *testing.T) {
	tests := []struct {
		yes, no         int64
		wantYes, wantNo float64
	}{
		{0, 0, 50, 50},
		{100, 50, 66.67, 33.33},
		{1, 2, 33.33, 66.67},
		{500, 0, 100, 0},
		{0, 9, 0, 100},
		{1, 1_000_000, 0, 100},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d", tt.yes, tt.no), func(t *testing.T) {
			o := Odds(tt.yes, tt.no)
			assert.Equal(t, int64(BpsDenominator), o.YesBps+o.NoBps)
			assert.InDelta(t, tt.wantYes, o.YesOdds, 1e-9)
			assert.InDelta(t, tt.wantNo, o.NoOdds, 1e-9)
			assert.InDelta(t, 100, o.YesOdds+o.NoOdds, 1e-9)
		})
	}
}

func TestAllocateConservesPoolWithoutFee(t *testing.T) {
	cases := []struct {
		name     string
		holdings []Holding
		losing   int64
	}{
		{"single", []Holding{{"a", 100}}, 50},
		{"thirds", []Holding{{"a", 1}, {"b", 1}, {"c", 1}}, 100},
		{"uneven", []Holding{{"a", 7}, {"b", 13}, {"c", 29}, {"d", 1}}, 997},
		{"tiny losing pool", []Holding{{"a", 5}, {"b", 5}, {"c", 5}}, 1},
		{"one sided", []Holding{{"a", 10}, {"b", 20}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var winning int64
			for _, h := range tc.holdings {
				winning += h.Shares
			}
			allocs := Allocate(tc.holdings, winning, tc.losing, 0)
			require.Len(t, allocs, len(tc.holdings))

			var sum int64
			for _, a := range allocs {
				sum += a.Net
				assert.Zero(t, a.Fee)
			}
			assert.Equal(t, winning+tc.losing, sum)
		})
	}
}

func TestAllocateNeverBelowFloorFormula(t *testing.T) {
	holdings := []Holding{{"a", 3}, {"b", 3}, {"c", 4}}
	const winning, losing, fee = 10, 33, 200
	allocs := Allocate(holdings, winning, losing, fee)
	for i, a := range allocs {
		floor := Compute(holdings[i].Shares, winning, losing, fee)
		assert.GreaterOrEqual(t, a.Net, floor.Net, a.User)
		assert.LessOrEqual(t, a.Net-floor.Net, int64(1), a.User)
	}
}

func TestAllocateRemainderTieBreaksByUser(t *testing.T) {
	// Each holder is owed 0.5 of a unit; only one unit is left over.
	allocs := Allocate([]Holding{{"b", 1}, {"a", 1}}, 2, 1, 0)
	got := map[string]int64{}
	for _, a := range allocs {
		got[a.User] = a.Winnings
	}
	assert.Equal(t, map[string]int64{"a": 1, "b": 0}, got)
}

func TestPreviewMatchesResolution(t *testing.T) {
	m := domain.Market{YesPool: 0, NoPool: 50}
	preview := Preview(m, domain.SideYes, 100, 200)
	assert.Equal(t, int64(149), preview)

	allocs := Allocate([]Holding{{"a", 100}}, 100, 50, 200)
	require.Len(t, allocs, 1)
	assert.LessOrEqual(t, preview, allocs[0].Net)

	assert.Zero(t, Preview(m, domain.SideNo, 0, 200))
}

func TestPreviewBeyondPoolCapacity(t *testing.T) {
	m := domain.Market{YesPool: math.MaxInt64 - 5, NoPool: 3}
	assert.Zero(t, Preview(m, domain.SideYes, 10, 200))
	assert.Zero(t, Preview(m, domain.SideNo, 3, 200))
	assert.Positive(t, Preview(m, domain.SideNo, 2, 200))
}

func TestFeeRate(t *testing.T) {
	assert.Equal(t, "2", FeeRate(200))
	assert.Equal(t, "0.25", FeeRate(25))
}
