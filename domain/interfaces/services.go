package interfaces

import (
	"context"

	"casino/domain/entities"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceCache is an advisory copy of account balances. Misses and errors
// must always fall back to the store.
type BalanceCache interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, bool, error)
	SetBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error
	InvalidateBalance(ctx context.Context, accountID uuid.UUID) error
}

// JackpotCache is an advisory copy of jackpot pool amounts
type JackpotCache interface {
	GetPool(ctx context.Context, gameID string) (decimal.Decimal, bool, error)
	SetPool(ctx context.Context, gameID string, amount decimal.Decimal) error
	InvalidatePool(ctx context.Context, gameID string) error
}

// MetricsRecorder receives engine and ledger measurements
type MetricsRecorder interface {
	RecordBetPlaced(gameID string, amount decimal.Decimal)
	RecordBetRejected(gameID string, code entities.RejectionCode)
	RecordPayout(gameID string, amount decimal.Decimal)
	RecordRoundEnded(gameID string, forced bool)
	UpdateActiveRounds(gameID string, delta int64)
	RecordJackpotWin(gameID string, amount decimal.Decimal)
	RecordBalanceTransaction(transactionType entities.TransactionType)
	RecordDegradedRead(operation string)
}
