package events

import (
	"context"
	"sync"
	"time"

	"casino/domain/entities"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeRoundStarted  EventType = "round_started"
	EventTypeRoundResult   EventType = "round_result"
	EventTypeRoundEnded    EventType = "round_ended"
	EventTypeJackpotWon    EventType = "jackpot_won"
	EventTypeBetPlaced     EventType = "bet_placed"
	EventTypeBalanceChange EventType = "balance_change"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// RoundStartedEvent announces a new round. Only the seed commitment is
// published; the seed itself stays secret until the result.
type RoundStartedEvent struct {
	RoundID        int64
	GameID         string
	Room           string
	ServerSeedHash string
	StartedAt      time.Time
	BettingEndsAt  time.Time
	RoundEndsAt    time.Time
}

func (e RoundStartedEvent) Type() EventType {
	return EventTypeRoundStarted
}

// RoundResultEvent reveals the seed together with the outcome
type RoundResultEvent struct {
	RoundID        int64
	GameID         string
	Room           string
	ServerSeed     string
	ServerSeedHash string
	RawValues      []int
	Display        string
	WinningBets    []string
}

func (e RoundResultEvent) Type() EventType {
	return EventTypeRoundResult
}

// RoundEndedEvent reports settlement totals for a round
type RoundEndedEvent struct {
	RoundID      int64
	GameID       string
	Room         string
	BetCount     int
	TotalWagered decimal.Decimal
	TotalPaid    decimal.Decimal
	FailedBets   int
	EndedAt      time.Time
}

func (e RoundEndedEvent) Type() EventType {
	return EventTypeRoundEnded
}

// JackpotWonEvent represents a jackpot payout
type JackpotWonEvent struct {
	GameID   string
	WinnerID uuid.UUID
	Amount   decimal.Decimal
	RoundID  int64
}

func (e JackpotWonEvent) Type() EventType {
	return EventTypeJackpotWon
}

// BetPlacedEvent represents an accepted bet
type BetPlacedEvent struct {
	BetID     int64
	RoundID   int64
	AccountID uuid.UUID
	GameID    string
	Room      string
	BetTypeID string
	Amount    decimal.Decimal
}

func (e BetPlacedEvent) Type() EventType {
	return EventTypeBetPlaced
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	AccountID       uuid.UUID
	TransactionID   int64
	OldBalance      decimal.Decimal
	NewBalance      decimal.Decimal
	ChangeAmount    decimal.Decimal
	TransactionType entities.TransactionType
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Emitter delivers committed events to their consumers
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Handlers run asynchronously so a slow consumer never blocks a round
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work and only hands
// them to the real emitter once the transaction committed.
type TransactionalBus struct {
	real    Emitter
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real Emitter) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the number of events waiting for a commit
func (b *TransactionalBus) Pending() int {
	return len(b.pending)
}

// called after successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events from transactional bus")

	if b.real == nil {
		b.pending = nil
		return
	}

	// Emission is detached from the request context; the transaction is already over
	eventCtx := context.WithoutCancel(ctx)

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// called after db rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
