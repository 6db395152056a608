package services

import (
	"context"
	"fmt"
	"time"

	"casino/domain/entities"
	"casino/domain/interfaces"
	"casino/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Entry describes why a balance moved
type Entry struct {
	Type        entities.TransactionType
	Game        string
	RoundID     *int64
	Description string
}

// Posting is a signed balance change requested by a Transact callback
type Posting struct {
	Amount      decimal.Decimal
	Type        entities.TransactionType
	Game        string
	RoundID     *int64
	Description string
	// Stake is the wager a win posting pays back. TotalWon only counts
	// the payout above it.
	Stake decimal.Decimal
}

// Receipt is the outcome of a Transact call. Transaction is nil when the
// callback asked for no balance change.
type Receipt struct {
	AccountID   uuid.UUID
	Balance     decimal.Decimal
	Transaction *entities.Transaction
}

// TransactFunc runs inside the account's transaction with its row locked
type TransactFunc func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error)

// Ledger owns every balance mutation. Mutations of one account are
// serialized by its lock; different accounts never wait on each other.
type Ledger struct {
	uowFactory interfaces.UnitOfWorkFactory
	cache      interfaces.BalanceCache
	metrics    interfaces.MetricsRecorder
	locks      *AccountLocks
}

// NewLedger creates a ledger. cache and metrics may be nil.
func NewLedger(uowFactory interfaces.UnitOfWorkFactory, cache interfaces.BalanceCache, metrics interfaces.MetricsRecorder) *Ledger {
	if cache == nil {
		cache = noopBalanceCache{}
	}
	return &Ledger{
		uowFactory: uowFactory,
		cache:      cache,
		metrics:    metricsOrNoop(metrics),
		locks:      NewAccountLocks(),
	}
}

// Locks exposes the ledger's lock registry
func (l *Ledger) Locks() *AccountLocks {
	return l.locks
}

// GetBalance returns the balance from the cache, falling back to the store.
// The second value is false when the store could not be read; the balance is
// then zero.
func (l *Ledger) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, bool) {
	if balance, ok, err := l.cache.GetBalance(ctx, accountID); err != nil {
		log.WithFields(log.Fields{
			"account_id": accountID,
		}).WithError(err).Debug("Balance cache read failed")
	} else if ok {
		return balance, true
	}

	var balance decimal.Decimal
	err := l.read(ctx, func(uow interfaces.UnitOfWork) error {
		account, err := uow.AccountRepository().GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account != nil {
			balance = account.Balance
		}
		return nil
	})
	if err != nil {
		log.WithFields(log.Fields{
			"account_id": accountID,
		}).WithError(err).Warn("Failed to read balance, reporting zero")
		l.metrics.RecordDegradedRead("get_balance")
		return decimal.Zero, false
	}
	return balance, true
}

// HasBalance reports whether the account can cover amount
func (l *Ledger) HasBalance(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) bool {
	balance, ok := l.GetBalance(ctx, accountID)
	return ok && balance.GreaterThanOrEqual(amount)
}

// Deposit credits a positive amount and returns the new balance
func (l *Ledger) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, entry Entry) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, entities.Reject(entities.RejectInvalidAmount, "deposit amount must be positive, got %s", amount)
	}
	if entry.Type == "" {
		entry.Type = entities.TransactionTypeDeposit
	}

	receipt, err := l.Transact(ctx, accountID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
		return entry.posting(amount), nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return receipt.Balance, nil
}

// Withdraw debits a positive amount. The balance is left unchanged when it
// cannot cover the amount.
func (l *Ledger) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, entry Entry) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, entities.Reject(entities.RejectInvalidAmount, "withdraw amount must be positive, got %s", amount)
	}
	if entry.Type == "" {
		entry.Type = entities.TransactionTypeWithdraw
	}

	receipt, err := l.Transact(ctx, accountID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
		return entry.posting(amount.Neg()), nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return receipt.Balance, nil
}

// SetBalance moves the balance to target with an administrative entry for
// the difference
func (l *Ledger) SetBalance(ctx context.Context, accountID uuid.UUID, target decimal.Decimal, reason string) (decimal.Decimal, error) {
	if target.IsNegative() {
		return decimal.Zero, entities.Reject(entities.RejectInvalidAmount, "balance cannot be negative, got %s", target)
	}

	receipt, err := l.Transact(ctx, accountID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
		diff := target.Sub(account.Balance)
		if diff.IsZero() {
			return nil, nil
		}
		txType := entities.TransactionTypeAdminGive
		if diff.IsNegative() {
			txType = entities.TransactionTypeAdminTake
		}
		return &Posting{Amount: diff, Type: txType, Description: reason}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"balance":    receipt.Balance,
		"reason":     reason,
	}).Info("Balance set by administrator")
	return receipt.Balance, nil
}

// Transact runs fn and applies the posting it returns as one atomic unit.
// Nothing is written when fn or any later step fails.
func (l *Ledger) Transact(ctx context.Context, accountID uuid.UUID, fn TransactFunc) (*Receipt, error) {
	release := l.locks.Acquire(accountID)
	defer release()

	uow := l.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", entities.ErrPersistence, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := uow.Rollback(); rbErr != nil {
			log.WithFields(log.Fields{
				"account_id": accountID,
			}).WithError(rbErr).Error("Failed to roll back ledger transaction")
		}
	}()

	account, err := uow.AccountRepository().GetOrCreateForUpdate(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to lock account %s: %w", entities.ErrPersistence, accountID, err)
	}

	posting, err := fn(ctx, uow, account)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{AccountID: accountID, Balance: account.Balance}
	if posting != nil && !posting.Amount.IsZero() {
		tx, err := l.apply(ctx, uow, account, posting)
		if err != nil {
			return nil, err
		}
		receipt.Balance = tx.BalanceAfter
		receipt.Transaction = tx
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit ledger transaction: %w", entities.ErrPersistence, err)
	}
	committed = true

	if receipt.Transaction != nil {
		l.metrics.RecordBalanceTransaction(receipt.Transaction.Type)
		l.refreshCache(ctx, accountID, receipt.Balance)
	}
	return receipt, nil
}

func (l *Ledger) apply(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account, posting *Posting) (*entities.Transaction, error) {
	newBalance := account.Balance.Add(posting.Amount)
	if newBalance.IsNegative() {
		return nil, &entities.InsufficientFundsError{
			AccountID: account.ID,
			Balance:   account.Balance,
			Requested: posting.Amount.Neg(),
		}
	}

	if err := uow.AccountRepository().UpdateBalance(ctx, account.ID, newBalance); err != nil {
		return nil, fmt.Errorf("%w: failed to update balance: %w", entities.ErrPersistence, err)
	}

	tx := &entities.Transaction{
		AccountID:     account.ID,
		Type:          posting.Type,
		Amount:        posting.Amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
		Game:          posting.Game,
		RoundID:       posting.RoundID,
		Description:   posting.Description,
	}
	if err := uow.TransactionRepository().Record(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: failed to record transaction: %w", entities.ErrPersistence, err)
	}

	if delta := aggregatesFor(posting); !delta.IsZero() {
		if err := uow.AccountRepository().AddAggregates(ctx, account.ID, delta); err != nil {
			return nil, fmt.Errorf("%w: failed to update aggregates: %w", entities.ErrPersistence, err)
		}
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		AccountID:       account.ID,
		TransactionID:   tx.ID,
		OldBalance:      account.Balance,
		NewBalance:      newBalance,
		ChangeAmount:    posting.Amount,
		TransactionType: posting.Type,
	})

	log.WithFields(log.Fields{
		"account_id": account.ID,
		"type":       posting.Type,
		"amount":     posting.Amount,
		"balance":    newBalance,
	}).Debug("Ledger posting applied")
	return tx, nil
}

func aggregatesFor(posting *Posting) entities.AccountAggregates {
	switch {
	case posting.Type == entities.TransactionTypeBet:
		return entities.AccountAggregates{Wagered: posting.Amount.Abs(), GamesPlayed: 1}
	case posting.Type.IsWinType():
		net := posting.Amount.Sub(posting.Stake)
		if net.IsNegative() {
			return entities.AccountAggregates{Lost: net.Neg()}
		}
		return entities.AccountAggregates{Won: net}
	}
	return entities.AccountAggregates{}
}

func (l *Ledger) refreshCache(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) {
	if err := l.cache.SetBalance(ctx, accountID, balance); err != nil {
		log.WithFields(log.Fields{
			"account_id": accountID,
		}).WithError(err).Warn("Failed to cache balance, invalidating")
		if err := l.cache.InvalidateBalance(ctx, accountID); err != nil {
			log.WithFields(log.Fields{
				"account_id": accountID,
			}).WithError(err).Warn("Failed to invalidate cached balance")
		}
	}
}

// EndSession drops the account's lock once nothing holds it
func (l *Ledger) EndSession(accountID uuid.UUID) {
	l.locks.Discard(accountID)
}

// GetAccount returns the account with its aggregates, nil when it does not exist
func (l *Ledger) GetAccount(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	var account *entities.Account
	err := l.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		account, err = uow.AccountRepository().GetByID(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account %s: %w", entities.ErrPersistence, accountID, err)
	}
	return account, nil
}

// History returns the newest transactions of an account first
func (l *Ledger) History(ctx context.Context, accountID uuid.UUID, limit int) ([]*entities.Transaction, error) {
	var txs []*entities.Transaction
	err := l.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		txs, err = uow.TransactionRepository().GetByAccount(ctx, accountID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get transaction history: %w", entities.ErrPersistence, err)
	}
	return txs, nil
}

// CountTransactions returns how many ledger entries an account has
func (l *Ledger) CountTransactions(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := l.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		count, err = uow.TransactionRepository().CountByAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count transactions: %w", entities.ErrPersistence, err)
	}
	return count, nil
}

// RoundTransactions returns every ledger entry tied to a round
func (l *Ledger) RoundTransactions(ctx context.Context, roundID int64) ([]*entities.Transaction, error) {
	var txs []*entities.Transaction
	err := l.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		txs, err = uow.TransactionRepository().GetByRound(ctx, roundID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get round transactions: %w", entities.ErrPersistence, err)
	}
	return txs, nil
}

// PurgeTransactionsOlderThan deletes ledger entries created before cutoff.
// Balances are unaffected.
func (l *Ledger) PurgeTransactionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	uow := l.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("%w: failed to begin transaction: %w", entities.ErrPersistence, err)
	}

	deleted, err := uow.TransactionRepository().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		_ = uow.Rollback()
		return 0, fmt.Errorf("%w: failed to purge transactions: %w", entities.ErrPersistence, err)
	}
	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("%w: failed to commit purge: %w", entities.ErrPersistence, err)
	}
	return deleted, nil
}

// read runs fn in a unit of work that is always rolled back
func (l *Ledger) read(ctx context.Context, fn func(uow interfaces.UnitOfWork) error) error {
	uow := l.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		_ = uow.Rollback()
	}()
	return fn(uow)
}

func (e Entry) posting(amount decimal.Decimal) *Posting {
	return &Posting{
		Amount:      amount,
		Type:        e.Type,
		Game:        e.Game,
		RoundID:     e.RoundID,
		Description: e.Description,
	}
}

type noopBalanceCache struct{}

func (noopBalanceCache) GetBalance(context.Context, uuid.UUID) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (noopBalanceCache) SetBalance(context.Context, uuid.UUID, decimal.Decimal) error { return nil }
func (noopBalanceCache) InvalidateBalance(context.Context, uuid.UUID) error           { return nil }
