package repository

import (
	"context"
	"errors"
	"fmt"

	"casino/database"
	"casino/domain/entities"
	"casino/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, balance, total_wagered, total_won, total_lost, games_played, created_at, updated_at`

type accountRepository struct {
	q Queryable
}

// NewAccountRepository creates an account repository on the pool
func NewAccountRepository(db *database.DB) interfaces.AccountRepository {
	return &accountRepository{q: db.Pool}
}

func newAccountRepositoryWithTx(tx Queryable) interfaces.AccountRepository {
	return &accountRepository{q: tx}
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return account, nil
}

// GetOrCreateForUpdate inserts the account at zero when absent, then takes a
// row lock that holds until the surrounding transaction ends.
func (r *accountRepository) GetOrCreateForUpdate(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	if _, err := r.q.Exec(ctx, `INSERT INTO accounts (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return nil, fmt.Errorf("failed to create account %s: %w", id, err)
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s: %w", id, err)
	}
	return account, nil
}

func (r *accountRepository) UpdateBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.q.Exec(ctx, query, id, newBalance)
	if err != nil {
		return fmt.Errorf("failed to update balance of account %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", id)
	}
	return nil
}

func (r *accountRepository) AddAggregates(ctx context.Context, id uuid.UUID, delta entities.AccountAggregates) error {
	if delta.IsZero() {
		return nil
	}

	query := `
		UPDATE accounts
		SET total_wagered = total_wagered + $2,
		    total_won = total_won + $3,
		    total_lost = total_lost + $4,
		    games_played = games_played + $5,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.q.Exec(ctx, query, id, delta.Wagered, delta.Won, delta.Lost, delta.GamesPlayed)
	if err != nil {
		return fmt.Errorf("failed to update aggregates of account %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", id)
	}
	return nil
}

func scanAccount(row pgx.Row) (*entities.Account, error) {
	var account entities.Account
	err := row.Scan(
		&account.ID,
		&account.Balance,
		&account.TotalWagered,
		&account.TotalWon,
		&account.TotalLost,
		&account.GamesPlayed,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
