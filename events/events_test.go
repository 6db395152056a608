package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"casino/domain/entities"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionalBus_FlushDeliversToBus(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	received := make(chan BalanceChangeEvent, 1)
	mainBus.Subscribe(EventTypeBalanceChange, func(ctx context.Context, event Event) {
		if balanceEvent, ok := event.(BalanceChangeEvent); ok {
			received <- balanceEvent
		}
	})

	testEvent := BalanceChangeEvent{
		AccountID:       uuid.New(),
		TransactionID:   7,
		OldBalance:      decimal.NewFromInt(1000),
		NewBalance:      decimal.NewFromInt(2980),
		ChangeAmount:    decimal.NewFromInt(1980),
		TransactionType: entities.TransactionTypeWin,
	}

	transactionalBus.Publish(testEvent)
	assert.Equal(t, 1, transactionalBus.Pending())

	transactionalBus.Flush(context.Background())
	assert.Equal(t, 0, transactionalBus.Pending())

	select {
	case got := <-received:
		assert.Equal(t, testEvent.AccountID, got.AccountID)
		assert.True(t, testEvent.NewBalance.Equal(got.NewBalance))
		assert.Equal(t, entities.TransactionTypeWin, got.TransactionType)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not received within timeout")
	}
}

func TestTransactionalBus_MultipleEvents(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	var wg sync.WaitGroup
	wg.Add(3)
	var mu sync.Mutex
	seen := make(map[int64]bool)

	mainBus.Subscribe(EventTypeBetPlaced, func(ctx context.Context, event Event) {
		defer wg.Done()
		bet := event.(BetPlacedEvent)
		mu.Lock()
		seen[bet.BetID] = true
		mu.Unlock()
	})

	for id := int64(1); id <= 3; id++ {
		transactionalBus.Publish(BetPlacedEvent{BetID: id, GameID: "taixiu", Amount: decimal.NewFromInt(1000)})
	}
	transactionalBus.Flush(context.Background())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every event was delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 3)
}

func TestTransactionalBus_Discard(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	received := make(chan bool, 1)
	mainBus.Subscribe(EventTypeJackpotWon, func(ctx context.Context, event Event) {
		received <- true
	})

	transactionalBus.Publish(JackpotWonEvent{GameID: "taixiu", WinnerID: uuid.New(), Amount: decimal.NewFromInt(100000)})
	transactionalBus.Discard()
	transactionalBus.Flush(context.Background())

	select {
	case <-received:
		t.Fatal("event was received despite being discarded")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewBus()

	received := make(chan struct{}, 1)
	bus.Subscribe(EventTypeRoundStarted, func(ctx context.Context, event Event) {
		panic("boom")
	})
	bus.Subscribe(EventTypeRoundStarted, func(ctx context.Context, event Event) {
		received <- struct{}{}
	})

	require.NotPanics(t, func() {
		bus.Emit(context.Background(), RoundStartedEvent{RoundID: 1, GameID: "xocdia", Room: "room1"})
	})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("healthy handler did not run")
	}
}

func TestTransactionalBus_FlushIgnoresCancelledContext(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	received := make(chan error, 1)
	mainBus.Subscribe(EventTypeRoundEnded, func(ctx context.Context, event Event) {
		received <- ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	transactionalBus.Publish(RoundEndedEvent{RoundID: 3})
	cancel()
	transactionalBus.Flush(ctx)

	select {
	case err := <-received:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}
