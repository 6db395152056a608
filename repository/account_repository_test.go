package repository

import (
	"context"
	"testing"

	"casino/domain/entities"
	"casino/repository/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	t.Run("missing account", func(t *testing.T) {
		account, err := repo.GetByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, account)
	})

	t.Run("created lazily at zero", func(t *testing.T) {
		id := uuid.New()
		account, err := repo.GetOrCreateForUpdate(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, id, account.ID)
		assert.True(t, account.Balance.IsZero())

		again, err := repo.GetOrCreateForUpdate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, account.CreatedAt, again.CreatedAt)
	})

	t.Run("update balance and aggregates", func(t *testing.T) {
		id := testutil.SeedAccount(t, testDB.DB, 10_000)

		require.NoError(t, repo.UpdateBalance(ctx, id, decimal.RequireFromString("9000.50")))
		require.NoError(t, repo.AddAggregates(ctx, id, entities.AccountAggregates{
			Wagered:     testutil.Money(1000),
			Lost:        testutil.Money(1000),
			GamesPlayed: 1,
		}))

		account, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "9000.5", account.Balance.String())
		assert.True(t, testutil.Money(1000).Equal(account.TotalWagered))
		assert.True(t, testutil.Money(1000).Equal(account.TotalLost))
		assert.Equal(t, int64(1), account.GamesPlayed)
	})

	t.Run("balance cannot go negative", func(t *testing.T) {
		id := testutil.SeedAccount(t, testDB.DB, 100)
		assert.Error(t, repo.UpdateBalance(ctx, id, testutil.Money(-1)))
	})

	t.Run("update unknown account", func(t *testing.T) {
		assert.Error(t, repo.UpdateBalance(ctx, uuid.New(), testutil.Money(5)))
	})
}
