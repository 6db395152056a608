// Package games holds the outcome and payout rules for each game variant.
// Rules are plain values: given the revealed seed and round id they produce
// the draws, the displayed outcome and the payout for any bet.
package games

import (
	"fmt"
	"sort"
	"time"

	"casino/domain/entities"

	"github.com/shopspring/decimal"
)

// Rules is implemented by every game variant
type Rules interface {
	ID() string
	DisplayName() string
	BetTypes() []entities.BetType
	BetType(id string) (entities.BetType, bool)
	// Rooms returns the room catalogue, nil for games without rooms
	Rooms() []Room
	Limits(room string) (Limits, error)
	RoundDuration() time.Duration
	BettingDuration() time.Duration
	Draw(seed string, roundID int64) ([]int, error)
	Evaluate(seed, hash string, raw []int) (*entities.GameResult, error)
	Payout(bet *entities.Bet, result *entities.GameResult) decimal.Decimal
}

// Limits bounds a single bet amount
type Limits struct {
	MinBet decimal.Decimal
	MaxBet decimal.Decimal
}

// Contains reports whether amount lies within [MinBet, MaxBet]
func (l Limits) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(l.MinBet) && amount.LessThanOrEqual(l.MaxBet)
}

// Room is a betting table with its own limits
type Room struct {
	ID          string
	DisplayName string
	Limits      Limits
}

// Timing holds the round cadence of a game
type Timing struct {
	RoundDuration   time.Duration
	BettingDuration time.Duration
}

// Validate checks that betting closes before the round ends
func (t Timing) Validate() error {
	if t.BettingDuration <= 0 {
		return fmt.Errorf("betting duration must be positive")
	}
	if t.RoundDuration <= t.BettingDuration {
		return fmt.Errorf("round duration %s must exceed betting duration %s", t.RoundDuration, t.BettingDuration)
	}
	return nil
}

// betCatalogue is the shared bet-type lookup used by every game
type betCatalogue struct {
	ordered []entities.BetType
	byID    map[string]entities.BetType
}

func newBetCatalogue(types ...entities.BetType) betCatalogue {
	c := betCatalogue{ordered: types, byID: make(map[string]entities.BetType, len(types))}
	for _, bt := range types {
		c.byID[bt.ID] = bt
	}
	return c
}

func (c betCatalogue) BetTypes() []entities.BetType {
	out := make([]entities.BetType, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func (c betCatalogue) BetType(id string) (entities.BetType, bool) {
	bt, ok := c.byID[id]
	return bt, ok
}

// multiplierPayout pays amount * multiplier for bets in the winning set
func (c betCatalogue) multiplierPayout(bet *entities.Bet, result *entities.GameResult) decimal.Decimal {
	if result == nil || !result.Wins(bet.BetTypeID) {
		return decimal.Zero
	}
	bt, ok := c.byID[bet.BetTypeID]
	if !ok {
		return decimal.Zero
	}
	return bet.Amount.Mul(bt.Multiplier).Round(2)
}

// Registry indexes rules by game id
type Registry struct {
	rules map[string]Rules
}

// NewRegistry builds a registry from the given games
func NewRegistry(rules ...Rules) *Registry {
	r := &Registry{rules: make(map[string]Rules, len(rules))}
	for _, rule := range rules {
		r.rules[rule.ID()] = rule
	}
	return r
}

// Get returns the rules for gameID
func (r *Registry) Get(gameID string) (Rules, bool) {
	rules, ok := r.rules[gameID]
	return rules, ok
}

// All returns every registered game sorted by id
func (r *Registry) All() []Rules {
	out := make([]Rules, 0, len(r.rules))
	for _, rules := range r.rules {
		out = append(out, rules)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func mustDecimal(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
