package repository

import (
	"context"
	"fmt"
	"time"

	"casino/database"
	"casino/domain/entities"
	"casino/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, account_id, type, amount, balance_before, balance_after,
	COALESCE(game, ''), round_id, COALESCE(description, ''), created_at`

type transactionRepository struct {
	q Queryable
}

// NewTransactionRepository creates a transaction repository on the pool
func NewTransactionRepository(db *database.DB) interfaces.TransactionRepository {
	return &transactionRepository{q: db.Pool}
}

func newTransactionRepositoryWithTx(tx Queryable) interfaces.TransactionRepository {
	return &transactionRepository{q: tx}
}

func (r *transactionRepository) Record(ctx context.Context, tx *entities.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	query := `
		INSERT INTO transactions (account_id, type, amount, balance_before, balance_after, game, round_id, description)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''))
		RETURNING id, created_at`

	err := r.q.QueryRow(ctx, query,
		tx.AccountID,
		tx.Type,
		tx.Amount,
		tx.BalanceBefore,
		tx.BalanceAfter,
		tx.Game,
		tx.RoundID,
		tx.Description,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record %s transaction for account %s: %w", tx.Type, tx.AccountID, err)
	}
	return nil
}

func (r *transactionRepository) GetByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*entities.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions of account %s: %w", accountID, err)
	}
	return collectTransactions(rows)
}

func (r *transactionRepository) GetByRound(ctx context.Context, roundID int64) ([]*entities.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE round_id = $1
		ORDER BY id`

	rows, err := r.q.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions of round %d: %w", roundID, err)
	}
	return collectTransactions(rows)
}

func (r *transactionRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions of account %s: %w", accountID, err)
	}
	return count, nil
}

func (r *transactionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.q.Exec(ctx, `DELETE FROM transactions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return result.RowsAffected(), nil
}

func collectTransactions(rows pgx.Rows) ([]*entities.Transaction, error) {
	defer rows.Close()

	var txs []*entities.Transaction
	for rows.Next() {
		var tx entities.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.Type,
			&tx.Amount,
			&tx.BalanceBefore,
			&tx.BalanceAfter,
			&tx.Game,
			&tx.RoundID,
			&tx.Description,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}
