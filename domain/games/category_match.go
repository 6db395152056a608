package games

import (
	"fmt"
	"strings"
	"time"

	"casino/domain/entities"
	"casino/domain/fairness"

	"github.com/shopspring/decimal"
)

const (
	CategoryMatchGameID = "baucua"

	categoryDraws = 3
)

// Categories in draw order; a draw value is the index into this slice
var Categories = []string{"bau", "cua", "tom", "ca", "nai", "ga"}

var categoryNames = map[string]string{
	"bau": "Bầu",
	"cua": "Cua",
	"tom": "Tôm",
	"ca":  "Cá",
	"nai": "Nai",
	"ga":  "Gà",
}

// CategoryMatchConfig tunes the category-matching game
type CategoryMatchConfig struct {
	Timing             Timing
	Limits             Limits
	PerMatchMultiplier decimal.Decimal
}

// DefaultCategoryMatchConfig returns the stock settings
func DefaultCategoryMatchConfig() CategoryMatchConfig {
	return CategoryMatchConfig{
		Timing:             Timing{RoundDuration: 50 * time.Second, BettingDuration: 40 * time.Second},
		Limits:             Limits{MinBet: decimal.NewFromInt(1_000), MaxBet: decimal.NewFromInt(5_000_000)},
		PerMatchMultiplier: mustDecimal("1.0"),
	}
}

// CategoryMatch rolls three six-sided category dice. A bet on a category pays
// per matching die and returns the stake when it matched at least once.
type CategoryMatch struct {
	betCatalogue
	cfg CategoryMatchConfig
}

// NewCategoryMatch creates the game from cfg
func NewCategoryMatch(cfg CategoryMatchConfig) (*CategoryMatch, error) {
	if err := cfg.Timing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s timing: %w", CategoryMatchGameID, err)
	}

	types := make([]entities.BetType, 0, len(Categories))
	for _, id := range Categories {
		types = append(types, entities.BetType{ID: id, DisplayName: categoryNames[id], Multiplier: cfg.PerMatchMultiplier})
	}

	return &CategoryMatch{betCatalogue: newBetCatalogue(types...), cfg: cfg}, nil
}

func (g *CategoryMatch) ID() string                     { return CategoryMatchGameID }
func (g *CategoryMatch) DisplayName() string            { return "Bầu Cua" }
func (g *CategoryMatch) Rooms() []Room                  { return nil }
func (g *CategoryMatch) RoundDuration() time.Duration   { return g.cfg.Timing.RoundDuration }
func (g *CategoryMatch) BettingDuration() time.Duration { return g.cfg.Timing.BettingDuration }

func (g *CategoryMatch) Limits(room string) (Limits, error) {
	if room != "" {
		return Limits{}, entities.Reject(entities.RejectUnknownRoom, "%s has no rooms", CategoryMatchGameID)
	}
	return g.cfg.Limits, nil
}

func (g *CategoryMatch) Draw(seed string, roundID int64) ([]int, error) {
	raw := make([]int, categoryDraws)
	for k := 0; k < categoryDraws; k++ {
		value, err := fairness.Derive(seed, "baucua", roundID+int64(k), len(Categories))
		if err != nil {
			return nil, err
		}
		raw[k] = value
	}
	return raw, nil
}

func (g *CategoryMatch) Evaluate(seed, hash string, raw []int) (*entities.GameResult, error) {
	if len(raw) != categoryDraws {
		return nil, fmt.Errorf("%s expects %d draws, got %d", CategoryMatchGameID, categoryDraws, len(raw))
	}

	counts := make(map[string]int, len(Categories))
	for _, id := range Categories {
		counts[id] = 0
	}
	labels := make([]string, 0, categoryDraws)
	winning := make(map[string]bool)
	for _, v := range raw {
		if v < 0 || v >= len(Categories) {
			return nil, fmt.Errorf("category value out of range: %d", v)
		}
		id := Categories[v]
		counts[id]++
		winning[id] = true
		labels = append(labels, categoryNames[id])
	}

	return &entities.GameResult{
		ServerSeed:     seed,
		ServerSeedHash: hash,
		RawValues:      append([]int(nil), raw...),
		Display:        strings.Join(labels, " - "),
		WinningBets:    winning,
		MatchCounts:    counts,
	}, nil
}

// Payout returns stake + stake*matches*multiplier, or zero without a match
func (g *CategoryMatch) Payout(bet *entities.Bet, result *entities.GameResult) decimal.Decimal {
	if result == nil {
		return decimal.Zero
	}
	matches := result.MatchCount(bet.BetTypeID)
	if matches <= 0 {
		return decimal.Zero
	}
	bt, ok := g.BetType(bet.BetTypeID)
	if !ok {
		return decimal.Zero
	}
	winnings := bet.Amount.Mul(decimal.NewFromInt(int64(matches))).Mul(bt.Multiplier)
	return winnings.Add(bet.Amount).Round(2)
}
