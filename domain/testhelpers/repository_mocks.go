package testhelpers

import (
	"context"
	"time"

	"casino/domain/entities"
	"casino/domain/interfaces"
	"casino/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepository) GetOrCreateForUpdate(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal) error {
	args := m.Called(ctx, id, newBalance)
	return args.Error(0)
}

func (m *MockAccountRepository) AddAggregates(ctx context.Context, id uuid.UUID, delta entities.AccountAggregates) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Record(ctx context.Context, tx *entities.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*entities.Transaction, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByRound(ctx context.Context, roundID int64) ([]*entities.Transaction, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockRoundRepository is a mock implementation of RoundRepository
type MockRoundRepository struct {
	mock.Mock
}

func (m *MockRoundRepository) Create(ctx context.Context, round *entities.Round) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockRoundRepository) Update(ctx context.Context, round *entities.Round) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockRoundRepository) GetByID(ctx context.Context, id int64) (*entities.RoundRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.RoundRecord), args.Error(1)
}

func (m *MockRoundRepository) GetRecent(ctx context.Context, gameID, room string, limit int) ([]*entities.RoundRecord, error) {
	args := m.Called(ctx, gameID, room, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.RoundRecord), args.Error(1)
}

func (m *MockRoundRepository) GetUnfinished(ctx context.Context) ([]*entities.RoundRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.RoundRecord), args.Error(1)
}

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *entities.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) GetByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) MarkSettled(ctx context.Context, betID int64, won bool, payout decimal.Decimal) (bool, error) {
	args := m.Called(ctx, betID, won, payout)
	return args.Bool(0), args.Error(1)
}

// MockJackpotRepository is a mock implementation of JackpotRepository
type MockJackpotRepository struct {
	mock.Mock
}

func (m *MockJackpotRepository) GetPool(ctx context.Context, gameID string) (*entities.JackpotPool, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.JackpotPool), args.Error(1)
}

func (m *MockJackpotRepository) EnsurePool(ctx context.Context, gameID string, seed decimal.Decimal) (*entities.JackpotPool, error) {
	args := m.Called(ctx, gameID, seed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.JackpotPool), args.Error(1)
}

func (m *MockJackpotRepository) AddToPool(ctx context.Context, gameID string, amount, seed decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, gameID, amount, seed)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockJackpotRepository) GetPoolForUpdate(ctx context.Context, gameID string) (*entities.JackpotPool, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.JackpotPool), args.Error(1)
}

func (m *MockJackpotRepository) ResetPool(ctx context.Context, gameID string, seed decimal.Decimal) error {
	args := m.Called(ctx, gameID, seed)
	return args.Error(0)
}

func (m *MockJackpotRepository) RecordWin(ctx context.Context, win *entities.JackpotWin) error {
	args := m.Called(ctx, win)
	return args.Error(0)
}

func (m *MockJackpotRepository) GetRecentWins(ctx context.Context, gameID string, limit int) ([]*entities.JackpotWin, error) {
	args := m.Called(ctx, gameID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.JackpotWin), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork that hands out the
// mock repositories it holds
type MockUnitOfWork struct {
	mock.Mock

	Accounts     *MockAccountRepository
	Transactions *MockTransactionRepository
	Rounds       *MockRoundRepository
	Bets         *MockBetRepository
	Jackpots     *MockJackpotRepository
	Events       *MockEventPublisher
}

// NewMockUnitOfWork creates a unit of work with fresh repository mocks
func NewMockUnitOfWork() *MockUnitOfWork {
	return &MockUnitOfWork{
		Accounts:     new(MockAccountRepository),
		Transactions: new(MockTransactionRepository),
		Rounds:       new(MockRoundRepository),
		Bets:         new(MockBetRepository),
		Jackpots:     new(MockJackpotRepository),
		Events:       new(MockEventPublisher),
	}
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) AccountRepository() interfaces.AccountRepository {
	return m.Accounts
}

func (m *MockUnitOfWork) TransactionRepository() interfaces.TransactionRepository {
	return m.Transactions
}

func (m *MockUnitOfWork) RoundRepository() interfaces.RoundRepository {
	return m.Rounds
}

func (m *MockUnitOfWork) BetRepository() interfaces.BetRepository {
	return m.Bets
}

func (m *MockUnitOfWork) JackpotRepository() interfaces.JackpotRepository {
	return m.Jackpots
}

func (m *MockUnitOfWork) EventBus() interfaces.EventPublisher {
	return m.Events
}

// AssertAllExpectations checks the unit of work and every repository mock
func (m *MockUnitOfWork) AssertAllExpectations(t mock.TestingT) {
	m.AssertExpectations(t)
	m.Accounts.AssertExpectations(t)
	m.Transactions.AssertExpectations(t)
	m.Rounds.AssertExpectations(t)
	m.Bets.AssertExpectations(t)
	m.Jackpots.AssertExpectations(t)
	m.Events.AssertExpectations(t)
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() interfaces.UnitOfWork {
	args := m.Called()
	return args.Get(0).(interfaces.UnitOfWork)
}
