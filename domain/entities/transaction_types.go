package entities

// TransactionType represents the kind of ledger entry
type TransactionType string

// All transaction types supported by the ledger
const (
	// Plain balance movements
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"

	// Game-related movements
	TransactionTypeBet     TransactionType = "BET"
	TransactionTypeWin     TransactionType = "WIN"
	TransactionTypeRefund  TransactionType = "REFUND"
	TransactionTypeJackpot TransactionType = "JACKPOT"

	// Administrative adjustments
	TransactionTypeAdminGive TransactionType = "ADMIN_GIVE"
	TransactionTypeAdminTake TransactionType = "ADMIN_TAKE"
)

// IsWinType returns true if the transaction pays out game winnings
func (tt TransactionType) IsWinType() bool {
	return tt == TransactionTypeWin || tt == TransactionTypeJackpot
}

// IsGameRelated returns true if the transaction originates from a round
func (tt TransactionType) IsGameRelated() bool {
	return tt == TransactionTypeBet || tt == TransactionTypeRefund || tt.IsWinType()
}

// IsAdminType returns true for administrative adjustments
func (tt TransactionType) IsAdminType() bool {
	return tt == TransactionTypeAdminGive || tt == TransactionTypeAdminTake
}

// IsDebit returns true if the transaction type always removes funds
func (tt TransactionType) IsDebit() bool {
	return tt == TransactionTypeWithdraw ||
		tt == TransactionTypeBet ||
		tt == TransactionTypeAdminTake
}

// IsValid reports whether tt is one of the known types
func (tt TransactionType) IsValid() bool {
	switch tt {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeBet, TransactionTypeWin,
		TransactionTypeRefund, TransactionTypeJackpot, TransactionTypeAdminGive, TransactionTypeAdminTake:
		return true
	}
	return false
}

// String returns the string representation of the transaction type
func (tt TransactionType) String() string {
	return string(tt)
}
