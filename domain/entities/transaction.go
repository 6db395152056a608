package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one append-only ledger entry
type Transaction struct {
	ID            int64           `db:"id"`
	AccountID     uuid.UUID       `db:"account_id"`
	Type          TransactionType `db:"type"`
	Amount        decimal.Decimal `db:"amount"` // signed
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	Game          string          `db:"game"`
	RoundID       *int64          `db:"round_id"`
	Description   string          `db:"description"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Validate checks that the entry is internally consistent
func (t *Transaction) Validate() error {
	if t.AccountID == uuid.Nil {
		return fmt.Errorf("account id is required")
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("unknown transaction type %q", t.Type)
	}
	if t.Amount.IsZero() {
		return fmt.Errorf("transaction amount cannot be zero")
	}
	if t.BalanceBefore.IsNegative() || t.BalanceAfter.IsNegative() {
		return fmt.Errorf("balances cannot be negative: before=%s after=%s", t.BalanceBefore, t.BalanceAfter)
	}
	if !t.BalanceBefore.Add(t.Amount).Equal(t.BalanceAfter) {
		return fmt.Errorf("balance mismatch: %s + %s != %s", t.BalanceBefore, t.Amount, t.BalanceAfter)
	}
	return nil
}
