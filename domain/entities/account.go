package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds a balance and lifetime play aggregates
type Account struct {
	ID           uuid.UUID       `db:"id"`
	Balance      decimal.Decimal `db:"balance"`
	TotalWagered decimal.Decimal `db:"total_wagered"`
	TotalWon     decimal.Decimal `db:"total_won"`
	TotalLost    decimal.Decimal `db:"total_lost"`
	GamesPlayed  int64           `db:"games_played"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// NetProfit returns winnings minus losses
func (a *Account) NetProfit() decimal.Decimal {
	return a.TotalWon.Sub(a.TotalLost)
}

// AccountAggregates is an increment applied to an account's lifetime totals.
// Won is net of the returned stake, so NetProfit matches the balance drift
// from play.
type AccountAggregates struct {
	Wagered     decimal.Decimal
	Won         decimal.Decimal
	Lost        decimal.Decimal
	GamesPlayed int64
}

// IsZero reports whether applying the increment would change nothing
func (a AccountAggregates) IsZero() bool {
	return a.Wagered.IsZero() && a.Won.IsZero() && a.Lost.IsZero() && a.GamesPlayed == 0
}
