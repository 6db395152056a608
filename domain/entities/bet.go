package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetType is a named wager category within a game
type BetType struct {
	ID          string
	DisplayName string
	Multiplier  decimal.Decimal
}

// Bet is a single accepted wager on a round
type Bet struct {
	ID        int64           `db:"id"`
	RoundID   int64           `db:"round_id"`
	AccountID uuid.UUID       `db:"account_id"`
	BetTypeID string          `db:"bet_type_id"`
	Amount    decimal.Decimal `db:"amount"`
	Payout    decimal.Decimal `db:"payout"`
	Won       bool            `db:"won"`
	Settled   bool            `db:"settled"`
	CreatedAt time.Time       `db:"created_at"`
}

// Validate checks the amount and payout rules
func (b *Bet) Validate() error {
	if b.AccountID == uuid.Nil {
		return fmt.Errorf("bet account id is required")
	}
	if !b.Amount.IsPositive() {
		return fmt.Errorf("bet amount must be positive, got %s", b.Amount)
	}
	if b.Payout.IsNegative() {
		return fmt.Errorf("bet payout cannot be negative, got %s", b.Payout)
	}
	return nil
}
