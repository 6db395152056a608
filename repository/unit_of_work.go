package repository

import (
	"context"
	"errors"
	"fmt"

	"casino/database"
	"casino/domain/interfaces"
	"casino/events"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	accountRepo      interfaces.AccountRepository
	transactionRepo  interfaces.TransactionRepository
	roundRepo        interfaces.RoundRepository
	betRepo          interfaces.BetRepository
	jackpotRepo      interfaces.JackpotRepository
}

type unitOfWorkFactory struct {
	db      *database.DB
	emitter events.Emitter
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory. Events published
// inside a unit of work reach emitter only after a successful commit.
func NewUnitOfWorkFactory(db *database.DB, emitter events.Emitter) interfaces.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:      db,
		emitter: emitter,
	}
}

// Create creates a new UnitOfWork instance
func (f *unitOfWorkFactory) Create() interfaces.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.emitter),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.accountRepo = newAccountRepositoryWithTx(tx)
	u.transactionRepo = newTransactionRepositoryWithTx(tx)
	u.roundRepo = newRoundRepositoryWithTx(tx)
	u.betRepo = newBetRepositoryWithTx(tx)
	u.jackpotRepo = newJackpotRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	u.transactionalBus.Flush(u.ctx)

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	// Discard pending events on rollback
	u.transactionalBus.Discard()

	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil
	return nil
}

// AccountRepository returns the account repository for this unit of work
func (u *unitOfWork) AccountRepository() interfaces.AccountRepository {
	if u.accountRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.accountRepo
}

// TransactionRepository returns the transaction repository for this unit of work
func (u *unitOfWork) TransactionRepository() interfaces.TransactionRepository {
	if u.transactionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionRepo
}

// RoundRepository returns the round repository for this unit of work
func (u *unitOfWork) RoundRepository() interfaces.RoundRepository {
	if u.roundRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.roundRepo
}

// BetRepository returns the bet repository for this unit of work
func (u *unitOfWork) BetRepository() interfaces.BetRepository {
	if u.betRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.betRepo
}

// JackpotRepository returns the jackpot repository for this unit of work
func (u *unitOfWork) JackpotRepository() interfaces.JackpotRepository {
	if u.jackpotRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.jackpotRepo
}

// EventBus returns the transactional event publisher for this unit of work
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	return u.transactionalBus
}
