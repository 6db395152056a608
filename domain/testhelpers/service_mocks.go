package testhelpers

import (
	"context"

	"casino/domain/entities"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockBalanceCache is a mock implementation of BalanceCache
type MockBalanceCache struct {
	mock.Mock
}

func (m *MockBalanceCache) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, bool, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(decimal.Decimal), args.Bool(1), args.Error(2)
}

func (m *MockBalanceCache) SetBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error {
	args := m.Called(ctx, accountID, balance)
	return args.Error(0)
}

func (m *MockBalanceCache) InvalidateBalance(ctx context.Context, accountID uuid.UUID) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

// MockJackpotCache is a mock implementation of JackpotCache
type MockJackpotCache struct {
	mock.Mock
}

func (m *MockJackpotCache) GetPool(ctx context.Context, gameID string) (decimal.Decimal, bool, error) {
	args := m.Called(ctx, gameID)
	return args.Get(0).(decimal.Decimal), args.Bool(1), args.Error(2)
}

func (m *MockJackpotCache) SetPool(ctx context.Context, gameID string, amount decimal.Decimal) error {
	args := m.Called(ctx, gameID, amount)
	return args.Error(0)
}

func (m *MockJackpotCache) InvalidatePool(ctx context.Context, gameID string) error {
	args := m.Called(ctx, gameID)
	return args.Error(0)
}

// MockMetricsRecorder is a mock implementation of MetricsRecorder. Tests
// usually register permissive expectations with mock.Anything.
type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) RecordBetPlaced(gameID string, amount decimal.Decimal) {
	m.Called(gameID, amount)
}

func (m *MockMetricsRecorder) RecordBetRejected(gameID string, code entities.RejectionCode) {
	m.Called(gameID, code)
}

func (m *MockMetricsRecorder) RecordPayout(gameID string, amount decimal.Decimal) {
	m.Called(gameID, amount)
}

func (m *MockMetricsRecorder) RecordRoundEnded(gameID string, forced bool) {
	m.Called(gameID, forced)
}

func (m *MockMetricsRecorder) UpdateActiveRounds(gameID string, delta int64) {
	m.Called(gameID, delta)
}

func (m *MockMetricsRecorder) RecordJackpotWin(gameID string, amount decimal.Decimal) {
	m.Called(gameID, amount)
}

func (m *MockMetricsRecorder) RecordBalanceTransaction(transactionType entities.TransactionType) {
	m.Called(transactionType)
}

func (m *MockMetricsRecorder) RecordDegradedRead(operation string) {
	m.Called(operation)
}
