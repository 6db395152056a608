package games

import (
	"testing"

	"casino/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiscCount(t *testing.T) *DiscCount {
	t.Helper()
	g, err := NewDiscCount(DefaultDiscCountConfig())
	require.NoError(t, err)
	return g
}

func TestDiscCount_WinningSets(t *testing.T) {
	g := newDiscCount(t)

	tests := []struct {
		name    string
		discs   []int
		winners []string
		display string
	}{
		{"four red", []int{1, 1, 1, 1}, []string{BetFourRed, BetEven}, "4 Do"},
		{"four white", []int{0, 0, 0, 0}, []string{BetFourWhite, BetEven}, "4 Trang"},
		{"two and two", []int{1, 0, 1, 0}, []string{BetTwoTwo, BetEven}, "2 Do 2 Trang"},
		{"three red", []int{1, 1, 0, 1}, []string{BetThreeRed, BetOdd}, "3 Do 1 Trang"},
		{"one red", []int{0, 0, 1, 0}, []string{BetOneRed, BetOdd}, "1 Do 3 Trang"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := g.Evaluate("seed", "hash", tt.discs)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.winners, result.WinningBetIDs())
			assert.Equal(t, tt.display, result.Display)
		})
	}
}

func TestDiscCount_FourRedExcludesOpposites(t *testing.T) {
	g := newDiscCount(t)
	result, err := g.Evaluate("seed", "hash", []int{1, 1, 1, 1})
	require.NoError(t, err)

	assert.False(t, result.Wins(BetFourWhite))
	assert.False(t, result.Wins(BetOdd))
}

func TestDiscCount_Payout(t *testing.T) {
	g := newDiscCount(t)
	result, err := g.Evaluate("seed", "hash", []int{1, 1, 1, 1})
	require.NoError(t, err)

	stake := decimal.NewFromInt(10_000)
	even := &entities.Bet{BetTypeID: BetEven, Amount: stake}
	fourRed := &entities.Bet{BetTypeID: BetFourRed, Amount: stake}
	odd := &entities.Bet{BetTypeID: BetOdd, Amount: stake}

	assert.True(t, stake.Equal(g.Payout(even, result)))
	assert.True(t, decimal.NewFromInt(100_000).Equal(g.Payout(fourRed, result)))
	assert.True(t, g.Payout(odd, result).IsZero())
}

func TestDiscCount_RoomLimits(t *testing.T) {
	g := newDiscCount(t)

	vip, err := g.Limits("vip")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1_000_000).Equal(vip.MinBet))
	assert.True(t, decimal.NewFromInt(100_000_000).Equal(vip.MaxBet))

	room1, err := g.Limits("room1")
	require.NoError(t, err)
	assert.False(t, room1.Contains(decimal.NewFromInt(100_001)))

	_, err = g.Limits("nope")
	code, ok := entities.RejectionCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, entities.RejectUnknownRoom, code)

	assert.Len(t, g.Rooms(), 4)
}

func TestDiscCount_DrawProducesBinaryValues(t *testing.T) {
	g := newDiscCount(t)

	for id := int64(1); id <= 50; id++ {
		raw, err := g.Draw("some-seed", id)
		require.NoError(t, err)
		require.Len(t, raw, 4)
		for _, v := range raw {
			assert.Contains(t, []int{0, 1}, v)
		}
	}
}

func TestNewDiscCount_RejectsInvertedRoom(t *testing.T) {
	cfg := DefaultDiscCountConfig()
	cfg.Rooms = []Room{{ID: "bad", Limits: Limits{MinBet: decimal.NewFromInt(10), MaxBet: decimal.NewFromInt(1)}}}

	_, err := NewDiscCount(cfg)
	assert.Error(t, err)
}
