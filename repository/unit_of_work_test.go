package repository

import (
	"context"
	"testing"
	"time"

	"casino/events"
	"casino/repository/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	bus := events.NewBus()
	received := make(chan events.Event, 4)
	bus.Subscribe(events.EventTypeBalanceChange, func(ctx context.Context, event events.Event) {
		received <- event
	})

	factory := NewUnitOfWorkFactory(testDB.DB, bus)
	accounts := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	t.Run("commit persists and flushes events", func(t *testing.T) {
		id := uuid.New()
		uow := factory.Create()
		require.NoError(t, uow.Begin(ctx))

		_, err := uow.AccountRepository().GetOrCreateForUpdate(ctx, id)
		require.NoError(t, err)
		require.NoError(t, uow.AccountRepository().UpdateBalance(ctx, id, testutil.Money(500)))
		uow.EventBus().Publish(events.BalanceChangeEvent{AccountID: id, NewBalance: testutil.Money(500)})
		require.NoError(t, uow.Commit())

		account, err := accounts.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.True(t, testutil.Money(500).Equal(account.Balance))

		select {
		case ev := <-received:
			assert.Equal(t, id, ev.(events.BalanceChangeEvent).AccountID)
		case <-time.After(2 * time.Second):
			t.Fatal("event not flushed after commit")
		}
	})

	t.Run("rollback reverts and drops events", func(t *testing.T) {
		id := uuid.New()
		uow := factory.Create()
		require.NoError(t, uow.Begin(ctx))

		_, err := uow.AccountRepository().GetOrCreateForUpdate(ctx, id)
		require.NoError(t, err)
		uow.EventBus().Publish(events.BalanceChangeEvent{AccountID: id})
		require.NoError(t, uow.Rollback())
		require.NoError(t, uow.Rollback())

		account, err := accounts.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, account)

		select {
		case <-received:
			t.Fatal("event delivered after rollback")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("double begin and commit without begin", func(t *testing.T) {
		uow := factory.Create()
		assert.Error(t, uow.Commit())

		require.NoError(t, uow.Begin(ctx))
		assert.Error(t, uow.Begin(ctx))
		require.NoError(t, uow.Rollback())
	})

	t.Run("repositories require begin", func(t *testing.T) {
		uow := factory.Create()
		assert.Panics(t, func() { uow.AccountRepository() })
	})

	t.Run("truncate empties tables", func(t *testing.T) {
		id := testutil.SeedAccount(t, testDB.DB, 100)
		testDB.TruncateAll(t)

		account, err := accounts.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, account)
	})
}
