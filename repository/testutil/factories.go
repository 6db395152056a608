package testutil

import (
	"context"
	"testing"
	"time"

	"casino/database"
	"casino/domain/entities"
	"casino/domain/fairness"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// NewTestRound creates a round in BETTING with a fresh committed seed
func NewTestRound(t *testing.T, gameID, room string) *entities.Round {
	t.Helper()
	seed, err := fairness.GenerateSeed()
	require.NoError(t, err)

	round := entities.NewRound(gameID, room, seed, fairness.Commit(seed), time.Now().UTC())
	require.NoError(t, round.StartBetting())
	return round
}

// NewTestBet creates an unsettled bet
func NewTestBet(roundID int64, accountID uuid.UUID, betTypeID string, amount int64) *entities.Bet {
	return &entities.Bet{
		RoundID:   roundID,
		AccountID: accountID,
		BetTypeID: betTypeID,
		Amount:    decimal.NewFromInt(amount),
	}
}

// SeedAccount inserts an account with the given balance directly
func SeedAccount(t *testing.T, db *database.DB, balance int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(context.Background(),
		`INSERT INTO accounts (id, balance) VALUES ($1, $2)`, id, decimal.NewFromInt(balance))
	require.NoError(t, err)
	return id
}

// Money is shorthand for decimal.NewFromInt in assertions
func Money(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount)
}
