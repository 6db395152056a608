package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var oneMillion = decimal.NewFromInt(1_000_000)

// JackpotConfig controls accumulation and triggering for one game's pool
type JackpotConfig struct {
	ContributionRate   decimal.Decimal
	BaseTriggerChance  float64
	TriggerScalingRate float64
	MinJackpot         decimal.Decimal
	SeedAmount         decimal.Decimal
}

// DefaultJackpotConfig returns the stock pool settings
func DefaultJackpotConfig() JackpotConfig {
	return JackpotConfig{
		ContributionRate:   decimal.RequireFromString("0.002"),
		BaseTriggerChance:  0.00001,
		TriggerScalingRate: 0.000001,
		MinJackpot:         decimal.NewFromInt(100_000),
		SeedAmount:         decimal.NewFromInt(10_000),
	}
}

// Validate enforces the allowed parameter ranges
func (c JackpotConfig) Validate() error {
	if !c.ContributionRate.IsPositive() || c.ContributionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("contribution rate must be in (0, 1), got %s", c.ContributionRate)
	}
	if c.BaseTriggerChance <= 0 || c.BaseTriggerChance >= 1 {
		return fmt.Errorf("base trigger chance must be in (0, 1), got %v", c.BaseTriggerChance)
	}
	if c.TriggerScalingRate < 0 || c.TriggerScalingRate >= 1 {
		return fmt.Errorf("trigger scaling rate must be in [0, 1), got %v", c.TriggerScalingRate)
	}
	if !c.MinJackpot.IsPositive() {
		return fmt.Errorf("minimum jackpot must be positive, got %s", c.MinJackpot)
	}
	if c.SeedAmount.IsNegative() {
		return fmt.Errorf("seed amount cannot be negative, got %s", c.SeedAmount)
	}
	return nil
}

// Contribution is the share of betAmount added to the pool, floored to cents
func (c JackpotConfig) Contribution(betAmount decimal.Decimal) decimal.Decimal {
	return betAmount.Mul(c.ContributionRate).RoundFloor(2)
}

// TriggerChance returns base + (pool / 1,000,000) * scaling
func (c JackpotConfig) TriggerChance(pool decimal.Decimal) float64 {
	scaled, _ := pool.Div(oneMillion).Float64()
	return c.BaseTriggerChance + scaled*c.TriggerScalingRate
}

// JackpotPool is the accumulated side pot for one game
type JackpotPool struct {
	GameID     string          `db:"game_id"`
	PoolAmount decimal.Decimal `db:"pool_amount"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// JackpotWin records one pool payout
type JackpotWin struct {
	ID       int64           `db:"id"`
	GameID   string          `db:"game_id"`
	WinnerID uuid.UUID       `db:"winner_id"`
	Amount   decimal.Decimal `db:"amount"`
	RoundID  *int64          `db:"round_id"`
	WonAt    time.Time       `db:"won_at"`
}

// JackpotStats summarises a pool for display
type JackpotStats struct {
	GameID        string
	Pool          decimal.Decimal
	TriggerChance float64
	MinJackpot    decimal.Decimal
}
