package cache

import (
	"context"
	"errors"
	"testing"

	"casino/config"
	"casino/domain/interfaces"

	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ interfaces.BalanceCache = (*RedisCache)(nil)
	_ interfaces.JackpotCache = (*RedisCache)(nil)
	_ interfaces.BalanceCache = Noop{}
	_ interfaces.JackpotCache = Noop{}
)

func TestRedisCache_Balance(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client)
	ctx := context.Background()
	id := uuid.New()
	key := "casino:account:" + id.String() + ":balance"

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet(key).RedisNil()

		_, ok, err := c.GetBalance(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set then hit", func(t *testing.T) {
		mock.ExpectSet(key, "10980.00", DefaultBalanceTTL).SetVal("OK")
		mock.ExpectGet(key).SetVal("10980.00")

		require.NoError(t, c.SetBalance(ctx, id, decimal.NewFromInt(10980)))
		balance, ok, err := c.GetBalance(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, decimal.NewFromInt(10980).Equal(balance))
	})

	t.Run("invalidate", func(t *testing.T) {
		mock.ExpectDel(key).SetVal(1)
		require.NoError(t, c.InvalidateBalance(ctx, id))
	})

	t.Run("backend error", func(t *testing.T) {
		mock.ExpectGet(key).SetErr(errors.New("connection refused"))

		_, ok, err := c.GetBalance(ctx, id)
		assert.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt value is dropped", func(t *testing.T) {
		mock.ExpectGet(key).SetVal("not-a-number")
		mock.ExpectDel(key).SetVal(1)

		_, ok, err := c.GetBalance(ctx, id)
		assert.Error(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_Pool(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client)
	ctx := context.Background()
	key := "casino:jackpot:taixiu:pool"

	mock.ExpectSet(key, "10002.50", DefaultPoolTTL).SetVal("OK")
	mock.ExpectGet(key).SetVal("10002.50")
	mock.ExpectDel(key).SetVal(1)

	require.NoError(t, c.SetPool(ctx, "taixiu", decimal.RequireFromString("10002.5")))
	pool, ok, err := c.GetPool(ctx, "taixiu")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10002.5", pool.String())
	require.NoError(t, c.InvalidatePool(ctx, "taixiu"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_DisabledWithoutAddress(t *testing.T) {
	cfg := config.NewTestConfig()
	assert.Nil(t, Connect(context.Background(), cfg))
}

func TestNoop(t *testing.T) {
	_, ok, err := Noop{}.GetBalance(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.False(t, ok)
}
