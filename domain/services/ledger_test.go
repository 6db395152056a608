package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"casino/domain/entities"
	"casino/domain/interfaces"
	"casino/domain/testhelpers"
	"casino/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestLedger() (*Ledger, *testhelpers.MemoryStore, *testhelpers.EventRecorder) {
	recorder := &testhelpers.EventRecorder{}
	store := testhelpers.NewMemoryStore(recorder)
	return NewLedger(store, nil, nil), store, recorder
}

func TestLedger_DepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	ledger, store, recorder := newTestLedger()
	accountID := uuid.New()

	balance, err := ledger.Deposit(ctx, accountID, money("10000"), Entry{Description: "welcome"})
	require.NoError(t, err)
	assert.True(t, balance.Equal(money("10000")))

	balance, err = ledger.Withdraw(ctx, accountID, money("2500.50"), Entry{})
	require.NoError(t, err)
	assert.True(t, balance.Equal(money("7499.50")))

	got, ok := ledger.GetBalance(ctx, accountID)
	assert.True(t, ok)
	assert.True(t, got.Equal(money("7499.50")))

	txs := store.Transactions(accountID)
	require.Len(t, txs, 2)
	assert.Equal(t, entities.TransactionTypeDeposit, txs[0].Type)
	assert.Equal(t, "welcome", txs[0].Description)
	assert.True(t, txs[0].BalanceBefore.IsZero())
	assert.Equal(t, entities.TransactionTypeWithdraw, txs[1].Type)
	assert.True(t, txs[1].Amount.Equal(money("-2500.50")))
	assert.True(t, txs[1].BalanceAfter.Equal(money("7499.50")))

	changes := recorder.OfType(events.EventTypeBalanceChange)
	require.Len(t, changes, 2)
	last := changes[1].(events.BalanceChangeEvent)
	assert.Equal(t, accountID, last.AccountID)
	assert.True(t, last.OldBalance.Equal(money("10000")))
	assert.True(t, last.NewBalance.Equal(money("7499.50")))
}

func TestLedger_WithdrawInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newTestLedger()
	accountID := uuid.New()
	store.SeedAccount(accountID, money("100"))

	_, err := ledger.Withdraw(ctx, accountID, money("100.01"), Entry{})

	var fundsErr *entities.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.True(t, fundsErr.Balance.Equal(money("100")))
	assert.True(t, fundsErr.Requested.Equal(money("100.01")))

	code, ok := entities.RejectionCodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, entities.RejectInsufficientBalance, code)

	account, _ := store.Account(accountID)
	assert.True(t, account.Balance.Equal(money("100")))
	assert.Empty(t, store.Transactions(accountID))
}

func TestLedger_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger()

	for _, amount := range []string{"0", "-5"} {
		_, err := ledger.Deposit(ctx, uuid.New(), money(amount), Entry{})
		code, ok := entities.RejectionCodeOf(err)
		require.True(t, ok, "deposit of %s", amount)
		assert.Equal(t, entities.RejectInvalidAmount, code)

		_, err = ledger.Withdraw(ctx, uuid.New(), money(amount), Entry{})
		code, ok = entities.RejectionCodeOf(err)
		require.True(t, ok, "withdraw of %s", amount)
		assert.Equal(t, entities.RejectInvalidAmount, code)
	}
}

func TestLedger_SetBalance(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newTestLedger()
	accountID := uuid.New()
	store.SeedAccount(accountID, money("500"))

	t.Run("raises with an admin give", func(t *testing.T) {
		balance, err := ledger.SetBalance(ctx, accountID, money("800"), "support refund")
		require.NoError(t, err)
		assert.True(t, balance.Equal(money("800")))

		txs := store.Transactions(accountID)
		require.Len(t, txs, 1)
		assert.Equal(t, entities.TransactionTypeAdminGive, txs[0].Type)
		assert.True(t, txs[0].Amount.Equal(money("300")))
		assert.Equal(t, "support refund", txs[0].Description)
	})

	t.Run("lowers with an admin take", func(t *testing.T) {
		balance, err := ledger.SetBalance(ctx, accountID, money("200"), "chargeback")
		require.NoError(t, err)
		assert.True(t, balance.Equal(money("200")))

		txs := store.Transactions(accountID)
		require.Len(t, txs, 2)
		assert.Equal(t, entities.TransactionTypeAdminTake, txs[1].Type)
		assert.True(t, txs[1].Amount.Equal(money("-600")))
	})

	t.Run("same balance records nothing", func(t *testing.T) {
		balance, err := ledger.SetBalance(ctx, accountID, money("200"), "noop")
		require.NoError(t, err)
		assert.True(t, balance.Equal(money("200")))
		assert.Len(t, store.Transactions(accountID), 2)
	})

	t.Run("negative target rejected", func(t *testing.T) {
		_, err := ledger.SetBalance(ctx, accountID, money("-1"), "bad")
		code, ok := entities.RejectionCodeOf(err)
		require.True(t, ok)
		assert.Equal(t, entities.RejectInvalidAmount, code)
	})
}

func TestLedger_ConcurrentMutationsOnOneAccount(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newTestLedger()
	accountID := uuid.New()
	store.SeedAccount(accountID, money("10000"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := ledger.Deposit(ctx, accountID, money("100"), Entry{})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := ledger.Withdraw(ctx, accountID, money("50"), Entry{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	account, _ := store.Account(accountID)
	assert.True(t, account.Balance.Equal(money("12500")), "got %s", account.Balance)

	txs := store.Transactions(accountID)
	require.Len(t, txs, 100)
	for i := 1; i < len(txs); i++ {
		assert.True(t, txs[i].BalanceBefore.Equal(txs[i-1].BalanceAfter), "entry %d does not chain", i)
	}
}

func TestLedger_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newTestLedger()
	accountID := uuid.New()
	store.SeedAccount(accountID, money("1000"))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Withdraw(ctx, accountID, money("100"), Entry{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var fundsErr *entities.InsufficientFundsError
				assert.ErrorAs(t, err, &fundsErr)
				rejected++
				return
			}
			succeeded++
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 15, rejected)
	account, _ := store.Account(accountID)
	assert.True(t, account.Balance.IsZero())
}

func TestLedger_DistinctAccountsDoNotBlock(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newTestLedger()
	slow, fast := uuid.New(), uuid.New()
	store.SeedAccount(slow, money("100"))
	store.SeedAccount(fast, money("100"))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := ledger.Transact(ctx, slow, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
			close(entered)
			<-release
			return nil, nil
		})
		assert.NoError(t, err)
	}()
	<-entered

	balance, err := ledger.Deposit(ctx, fast, money("1"), Entry{})
	require.NoError(t, err)
	assert.True(t, balance.Equal(money("101")))

	close(release)
	<-done
}

func TestLedger_TransactIsAllOrNothing(t *testing.T) {
	ctx := context.Background()

	t.Run("callback error discards its writes", func(t *testing.T) {
		ledger, store, recorder := newTestLedger()
		accountID := uuid.New()
		store.SeedAccount(accountID, money("1000"))
		boom := errors.New("boom")

		_, err := ledger.Transact(ctx, accountID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
			require.NoError(t, uow.JackpotRepository().ResetPool(ctx, "taixiu", money("5")))
			uow.EventBus().Publish(events.JackpotWonEvent{GameID: "taixiu"})
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		_, ok := store.Pool("taixiu")
		assert.False(t, ok)
		assert.Empty(t, recorder.Events())
	})

	t.Run("failed transaction insert leaves balance unchanged", func(t *testing.T) {
		ledger, store, recorder := newTestLedger()
		accountID := uuid.New()
		store.SeedAccount(accountID, money("1000"))
		store.FailOn("transactions.Record", errors.New("disk full"))

		_, err := ledger.Deposit(ctx, accountID, money("50"), Entry{})
		assert.ErrorIs(t, err, entities.ErrPersistence)

		account, _ := store.Account(accountID)
		assert.True(t, account.Balance.Equal(money("1000")))
		assert.Empty(t, recorder.Events())
	})

	t.Run("failed commit leaves balance unchanged", func(t *testing.T) {
		ledger, store, _ := newTestLedger()
		accountID := uuid.New()
		store.SeedAccount(accountID, money("1000"))
		store.FailOn("commit", errors.New("connection reset"))

		_, err := ledger.Withdraw(ctx, accountID, money("50"), Entry{})
		assert.ErrorIs(t, err, entities.ErrPersistence)

		store.ClearFailures()
		balance, ok := ledger.GetBalance(ctx, accountID)
		assert.True(t, ok)
		assert.True(t, balance.Equal(money("1000")))
	})
}

func TestLedger_Aggregates(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newTestLedger()
	accountID := uuid.New()
	store.SeedAccount(accountID, money("5000"))
	roundID := int64(7)

	_, err := ledger.Transact(ctx, accountID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
		return &Posting{Amount: money("-1000"), Type: entities.TransactionTypeBet, Game: "taixiu", RoundID: &roundID}, nil
	})
	require.NoError(t, err)
	_, err = ledger.Transact(ctx, accountID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
		return &Posting{Amount: money("1980"), Type: entities.TransactionTypeWin, Game: "taixiu", RoundID: &roundID}, nil
	})
	require.NoError(t, err)

	account, err := ledger.GetAccount(ctx, accountID)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, account.Balance.Equal(money("5980")))
	assert.True(t, account.TotalWagered.Equal(money("1000")))
	assert.True(t, account.TotalWon.Equal(money("1980")))
	assert.Equal(t, int64(1), account.GamesPlayed)

	roundTxs, err := ledger.RoundTransactions(ctx, roundID)
	require.NoError(t, err)
	require.Len(t, roundTxs, 2)
	assert.Equal(t, entities.TransactionTypeBet, roundTxs[0].Type)
	assert.Equal(t, entities.TransactionTypeWin, roundTxs[1].Type)

	history, err := ledger.History(ctx, accountID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entities.TransactionTypeWin, history[0].Type)

	count, err := ledger.CountTransactions(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	missing, err := ledger.GetAccount(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLedger_WinAggregatesAreNetOfStake(t *testing.T) {
	ctx := context.Background()
	roundID := int64(8)

	tests := []struct {
		name   string
		payout string
		stake  string
		won    string
		lost   string
	}{
		{name: "double payout", payout: "1980", stake: "1000", won: "980", lost: "0"},
		{name: "stake returned only", payout: "1000", stake: "1000", won: "0", lost: "0"},
		{name: "partial return", payout: "500", stake: "1000", won: "0", lost: "500"},
		{name: "no stake", payout: "250", stake: "0", won: "250", lost: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, store, _ := newTestLedger()
			accountID := uuid.New()
			store.SeedAccount(accountID, money("0"))

			_, err := ledger.Transact(ctx, accountID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
				return &Posting{
					Amount:  money(tt.payout),
					Type:    entities.TransactionTypeWin,
					Game:    "xocdia",
					RoundID: &roundID,
					Stake:   money(tt.stake),
				}, nil
			})
			require.NoError(t, err)

			account, ok := store.Account(accountID)
			require.True(t, ok)
			assert.True(t, account.Balance.Equal(money(tt.payout)))
			assert.True(t, account.TotalWon.Equal(money(tt.won)), "got %s", account.TotalWon)
			assert.True(t, account.TotalLost.Equal(money(tt.lost)), "got %s", account.TotalLost)
		})
	}
}

func TestLedger_PurgeTransactionsOlderThan(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newTestLedger()
	clock := newTestClock()
	store.SetClock(clock.Now)
	accountID := uuid.New()

	_, err := ledger.Deposit(ctx, accountID, money("100"), Entry{})
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)
	_, err = ledger.Deposit(ctx, accountID, money("100"), Entry{})
	require.NoError(t, err)

	deleted, err := ledger.PurgeTransactionsOlderThan(ctx, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	txs := store.Transactions(accountID)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].BalanceAfter.Equal(money("200")))

	balance, ok := ledger.GetBalance(ctx, accountID)
	assert.True(t, ok)
	assert.True(t, balance.Equal(money("200")))
}

func TestLedger_CacheIsWrittenAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemoryStore(nil)
	cache := new(testhelpers.MockBalanceCache)
	ledger := NewLedger(store, cache, nil)
	accountID := uuid.New()

	cache.On("SetBalance", mock.Anything, accountID, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(money("250"))
	})).Return(nil).Once()

	_, err := ledger.Deposit(ctx, accountID, money("250"), Entry{})
	require.NoError(t, err)
	cache.AssertExpectations(t)
}

func TestLedger_CacheErrorInvalidates(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemoryStore(nil)
	cache := new(testhelpers.MockBalanceCache)
	ledger := NewLedger(store, cache, nil)
	accountID := uuid.New()

	cache.On("SetBalance", mock.Anything, accountID, mock.Anything).Return(errors.New("redis down")).Once()
	cache.On("InvalidateBalance", mock.Anything, accountID).Return(nil).Once()

	balance, err := ledger.Deposit(ctx, accountID, money("10"), Entry{})
	require.NoError(t, err)
	assert.True(t, balance.Equal(money("10")))
	cache.AssertExpectations(t)
}

func TestLedger_FailedMutationDoesNotTouchCache(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemoryStore(nil)
	cache := new(testhelpers.MockBalanceCache)
	ledger := NewLedger(store, cache, nil)
	accountID := uuid.New()

	_, err := ledger.Withdraw(ctx, accountID, money("10"), Entry{})
	require.Error(t, err)
	cache.AssertNotCalled(t, "SetBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestLedger_GetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips the store", func(t *testing.T) {
		store := testhelpers.NewMemoryStore(nil)
		store.FailOn("begin", errors.New("store must not be read"))
		cache := new(testhelpers.MockBalanceCache)
		ledger := NewLedger(store, cache, nil)
		accountID := uuid.New()

		cache.On("GetBalance", mock.Anything, accountID).Return(money("42"), true, nil)

		balance, ok := ledger.GetBalance(ctx, accountID)
		assert.True(t, ok)
		assert.True(t, balance.Equal(money("42")))
	})

	t.Run("cache error falls back to the store", func(t *testing.T) {
		store := testhelpers.NewMemoryStore(nil)
		cache := new(testhelpers.MockBalanceCache)
		ledger := NewLedger(store, cache, nil)
		accountID := uuid.New()
		store.SeedAccount(accountID, money("77"))

		cache.On("GetBalance", mock.Anything, accountID).Return(decimal.Zero, false, errors.New("timeout"))

		balance, ok := ledger.GetBalance(ctx, accountID)
		assert.True(t, ok)
		assert.True(t, balance.Equal(money("77")))
	})

	t.Run("unknown account reads as zero", func(t *testing.T) {
		ledger, _, _ := newTestLedger()

		balance, ok := ledger.GetBalance(ctx, uuid.New())
		assert.True(t, ok)
		assert.True(t, balance.IsZero())
	})

	t.Run("store failure reports a degraded read", func(t *testing.T) {
		store := testhelpers.NewMemoryStore(nil)
		store.FailOn("begin", errors.New("connection refused"))
		metrics := new(testhelpers.MockMetricsRecorder)
		metrics.On("RecordDegradedRead", "get_balance")
		ledger := NewLedger(store, nil, metrics)

		balance, ok := ledger.GetBalance(ctx, uuid.New())
		assert.False(t, ok)
		assert.True(t, balance.IsZero())
		metrics.AssertExpectations(t)

		assert.False(t, ledger.HasBalance(ctx, uuid.New(), money("0")))
	})
}

func TestLedger_RollsBackWhenAccountLockFails(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()

	uow := testhelpers.NewMockUnitOfWork()
	uow.On("Begin", ctx).Return(nil)
	uow.On("Rollback").Return(nil).Once()
	uow.Accounts.On("GetOrCreateForUpdate", ctx, accountID).Return(nil, errors.New("deadlock detected"))

	factory := new(testhelpers.MockUnitOfWorkFactory)
	factory.On("Create").Return(uow)

	ledger := NewLedger(factory, nil, nil)
	_, err := ledger.Deposit(ctx, accountID, money("10"), Entry{})

	assert.ErrorIs(t, err, entities.ErrPersistence)
	assert.Contains(t, err.Error(), "deadlock detected")
	uow.AssertAllExpectations(t)
	uow.AssertNotCalled(t, "Commit")
}

func TestLedger_EndSessionDropsLock(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger()
	accountID := uuid.New()

	_, err := ledger.Deposit(ctx, accountID, money("1"), Entry{})
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Locks().Len())

	ledger.EndSession(accountID)
	assert.Equal(t, 0, ledger.Locks().Len())
}
