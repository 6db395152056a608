package games

import (
	"fmt"
	"time"

	"casino/domain/entities"
	"casino/domain/fairness"

	"github.com/shopspring/decimal"
)

const (
	DiceTotalGameID = "taixiu"

	BetTai = "tai" // total 11-18
	BetXiu = "xiu" // total 3-10

	diceCount     = 3
	taiThreshold  = 11
	diceTripleTag = "BA"
)

// DiceTotalConfig tunes the dice-total game
type DiceTotalConfig struct {
	Timing     Timing
	Limits     Limits
	Multiplier decimal.Decimal
}

// DefaultDiceTotalConfig returns the stock dice-total settings
func DefaultDiceTotalConfig() DiceTotalConfig {
	return DiceTotalConfig{
		Timing:     Timing{RoundDuration: 60 * time.Second, BettingDuration: 50 * time.Second},
		Limits:     Limits{MinBet: decimal.NewFromInt(1_000), MaxBet: decimal.NewFromInt(10_000_000)},
		Multiplier: mustDecimal("1.98"),
	}
}

// DiceTotal is the three-dice upper/lower game. A triple wins for the house.
type DiceTotal struct {
	betCatalogue
	cfg DiceTotalConfig
}

// NewDiceTotal creates the game from cfg
func NewDiceTotal(cfg DiceTotalConfig) (*DiceTotal, error) {
	if err := cfg.Timing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s timing: %w", DiceTotalGameID, err)
	}
	return &DiceTotal{
		betCatalogue: newBetCatalogue(
			entities.BetType{ID: BetTai, DisplayName: "Tài", Multiplier: cfg.Multiplier},
			entities.BetType{ID: BetXiu, DisplayName: "Xỉu", Multiplier: cfg.Multiplier},
		),
		cfg: cfg,
	}, nil
}

func (g *DiceTotal) ID() string                     { return DiceTotalGameID }
func (g *DiceTotal) DisplayName() string            { return "Tài Xỉu" }
func (g *DiceTotal) Rooms() []Room                  { return nil }
func (g *DiceTotal) RoundDuration() time.Duration   { return g.cfg.Timing.RoundDuration }
func (g *DiceTotal) BettingDuration() time.Duration { return g.cfg.Timing.BettingDuration }

func (g *DiceTotal) Limits(room string) (Limits, error) {
	if room != "" {
		return Limits{}, entities.Reject(entities.RejectUnknownRoom, "%s has no rooms", DiceTotalGameID)
	}
	return g.cfg.Limits, nil
}

// Draw rolls three dice with consecutive nonces starting at the round id
func (g *DiceTotal) Draw(seed string, roundID int64) ([]int, error) {
	return []int{
		fairness.RollDie(seed, "dice1", roundID),
		fairness.RollDie(seed, "dice2", roundID+1),
		fairness.RollDie(seed, "dice3", roundID+2),
	}, nil
}

func (g *DiceTotal) Evaluate(seed, hash string, raw []int) (*entities.GameResult, error) {
	if len(raw) != diceCount {
		return nil, fmt.Errorf("%s expects %d dice, got %d", DiceTotalGameID, diceCount, len(raw))
	}
	for _, face := range raw {
		if face < 1 || face > 6 {
			return nil, fmt.Errorf("die face out of range: %d", face)
		}
	}

	a, b, c := raw[0], raw[1], raw[2]
	total := a + b + c
	result := &entities.GameResult{
		ServerSeed:     seed,
		ServerSeedHash: hash,
		RawValues:      append([]int(nil), raw...),
		WinningBets:    make(map[string]bool),
	}

	switch {
	case IsTriple(raw):
		result.Display = fmt.Sprintf("%s %d (%d + %d + %d = %d) - NHA CAI THANG", diceTripleTag, a, a, b, c, total)
	case total >= taiThreshold:
		result.WinningBets[BetTai] = true
		result.Display = fmt.Sprintf("TAI (%d + %d + %d = %d)", a, b, c, total)
	default:
		result.WinningBets[BetXiu] = true
		result.Display = fmt.Sprintf("XIU (%d + %d + %d = %d)", a, b, c, total)
	}

	return result, nil
}

func (g *DiceTotal) Payout(bet *entities.Bet, result *entities.GameResult) decimal.Decimal {
	return g.multiplierPayout(bet, result)
}

// IsTriple reports whether all three dice show the same face
func IsTriple(raw []int) bool {
	return len(raw) == diceCount && raw[0] == raw[1] && raw[1] == raw[2]
}

// DiceSum totals the dice
func DiceSum(raw []int) int {
	total := 0
	for _, v := range raw {
		total += v
	}
	return total
}
