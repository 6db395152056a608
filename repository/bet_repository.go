package repository

import (
	"context"
	"fmt"

	"casino/database"
	"casino/domain/entities"
	"casino/domain/interfaces"

	"github.com/shopspring/decimal"
)

type betRepository struct {
	q Queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) interfaces.BetRepository {
	return &betRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx Queryable) interfaces.BetRepository {
	return &betRepository{q: tx}
}

func (r *betRepository) Create(ctx context.Context, bet *entities.Bet) error {
	if err := bet.Validate(); err != nil {
		return fmt.Errorf("invalid bet: %w", err)
	}

	query := `
		INSERT INTO bets (round_id, account_id, bet_type_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.q.QueryRow(ctx, query,
		bet.RoundID,
		bet.AccountID,
		bet.BetTypeID,
		bet.Amount,
	).Scan(&bet.ID, &bet.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bet: %w", err)
	}
	return nil
}

func (r *betRepository) GetByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error) {
	query := `
		SELECT id, round_id, account_id, bet_type_id, amount, payout, won, settled, created_at
		FROM bets
		WHERE round_id = $1
		ORDER BY id`

	rows, err := r.q.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets of round %d: %w", roundID, err)
	}
	defer rows.Close()

	var bets []*entities.Bet
	for rows.Next() {
		var bet entities.Bet
		err := rows.Scan(
			&bet.ID,
			&bet.RoundID,
			&bet.AccountID,
			&bet.BetTypeID,
			&bet.Amount,
			&bet.Payout,
			&bet.Won,
			&bet.Settled,
			&bet.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, &bet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bets: %w", err)
	}
	return bets, nil
}

// MarkSettled only touches unsettled rows, so replaying settlement is harmless
func (r *betRepository) MarkSettled(ctx context.Context, betID int64, won bool, payout decimal.Decimal) (bool, error) {
	query := `
		UPDATE bets
		SET won = $2, payout = $3, settled = TRUE
		WHERE id = $1 AND settled = FALSE`

	result, err := r.q.Exec(ctx, query, betID, won, payout)
	if err != nil {
		return false, fmt.Errorf("failed to settle bet %d: %w", betID, err)
	}
	return result.RowsAffected() == 1, nil
}
