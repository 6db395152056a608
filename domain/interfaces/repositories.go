package interfaces

import (
	"context"
	"time"

	"casino/domain/entities"
	"casino/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// GetByID retrieves an account, nil when it does not exist
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)

	// GetOrCreateForUpdate creates the account at zero if absent and locks its
	// row for the rest of the transaction
	GetOrCreateForUpdate(ctx context.Context, id uuid.UUID) (*entities.Account, error)

	// UpdateBalance sets the balance of a locked account
	UpdateBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal) error

	// AddAggregates increments the wager/win/loss counters
	AddAggregates(ctx context.Context, id uuid.UUID, delta entities.AccountAggregates) error
}

// TransactionRepository defines the interface for the append-only ledger log
type TransactionRepository interface {
	// Record appends a transaction and fills its ID and CreatedAt
	Record(ctx context.Context, tx *entities.Transaction) error

	// GetByAccount returns the newest transactions of an account first
	GetByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*entities.Transaction, error)

	// GetByRound returns every transaction tied to a round in insertion order
	GetByRound(ctx context.Context, roundID int64) ([]*entities.Transaction, error)

	// CountByAccount returns how many transactions an account has
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)

	// DeleteOlderThan removes transactions created before cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RoundRepository defines the interface for round persistence
type RoundRepository interface {
	// Create inserts the round and assigns its ID
	Create(ctx context.Context, round *entities.Round) error

	// Update persists state, result and end time
	Update(ctx context.Context, round *entities.Round) error

	// GetByID loads a stored round, nil when missing
	GetByID(ctx context.Context, id int64) (*entities.RoundRecord, error)

	// GetRecent returns the latest ended rounds of a timeline, newest first
	GetRecent(ctx context.Context, gameID, room string, limit int) ([]*entities.RoundRecord, error)

	// GetUnfinished returns rounds that never reached ENDED or still hold unsettled bets
	GetUnfinished(ctx context.Context) ([]*entities.RoundRecord, error)
}

// BetRepository defines the interface for bet data access
type BetRepository interface {
	// Create inserts an unsettled bet and fills its ID and CreatedAt
	Create(ctx context.Context, bet *entities.Bet) error

	// GetByRound returns the bets of a round ordered by ID
	GetByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error)

	// MarkSettled finalizes a bet. Returns false when it was already settled.
	MarkSettled(ctx context.Context, betID int64, won bool, payout decimal.Decimal) (bool, error)
}

// JackpotRepository defines the interface for jackpot pools and wins
type JackpotRepository interface {
	// GetPool returns the pool row, nil when it was never created
	GetPool(ctx context.Context, gameID string) (*entities.JackpotPool, error)

	// EnsurePool creates the pool at seed if missing and returns it
	EnsurePool(ctx context.Context, gameID string, seed decimal.Decimal) (*entities.JackpotPool, error)

	// AddToPool atomically increments the pool, creating it at seed first
	AddToPool(ctx context.Context, gameID string, amount, seed decimal.Decimal) (decimal.Decimal, error)

	// GetPoolForUpdate locks the pool row for the rest of the transaction
	GetPoolForUpdate(ctx context.Context, gameID string) (*entities.JackpotPool, error)

	// ResetPool sets the pool back to seed
	ResetPool(ctx context.Context, gameID string, seed decimal.Decimal) error

	// RecordWin appends a jackpot win and fills its ID and WonAt
	RecordWin(ctx context.Context, win *entities.JackpotWin) error

	// GetRecentWins returns the latest wins of a game, newest first
	GetRecentWins(ctx context.Context, gameID string, limit int) ([]*entities.JackpotWin, error)
}

// EventPublisher collects domain events inside a unit of work
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and releases pending events
	Commit() error

	// Rollback rolls back the transaction and drops pending events
	Rollback() error

	// Repository getters
	AccountRepository() AccountRepository
	TransactionRepository() TransactionRepository
	RoundRepository() RoundRepository
	BetRepository() BetRepository
	JackpotRepository() JackpotRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
