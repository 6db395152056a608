package repository

import (
	"context"
	"errors"
	"fmt"

	"casino/database"
	"casino/domain/entities"
	"casino/domain/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type jackpotRepository struct {
	q Queryable
}

// NewJackpotRepository creates a jackpot repository on the pool
func NewJackpotRepository(db *database.DB) interfaces.JackpotRepository {
	return &jackpotRepository{q: db.Pool}
}

func newJackpotRepositoryWithTx(tx Queryable) interfaces.JackpotRepository {
	return &jackpotRepository{q: tx}
}

func (r *jackpotRepository) GetPool(ctx context.Context, gameID string) (*entities.JackpotPool, error) {
	pool, err := r.selectPool(ctx, `SELECT game_id, pool_amount, updated_at FROM jackpots WHERE game_id = $1`, gameID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get jackpot pool %s: %w", gameID, err)
	}
	return pool, nil
}

func (r *jackpotRepository) EnsurePool(ctx context.Context, gameID string, seed decimal.Decimal) (*entities.JackpotPool, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO jackpots (game_id, pool_amount)
		VALUES ($1, $2)
		ON CONFLICT (game_id) DO NOTHING`, gameID, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create jackpot pool %s: %w", gameID, err)
	}

	pool, err := r.selectPool(ctx, `SELECT game_id, pool_amount, updated_at FROM jackpots WHERE game_id = $1`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get jackpot pool %s: %w", gameID, err)
	}
	return pool, nil
}

// AddToPool increments in a single statement, so concurrent contributions
// never lose an update
func (r *jackpotRepository) AddToPool(ctx context.Context, gameID string, amount, seed decimal.Decimal) (decimal.Decimal, error) {
	query := `
		INSERT INTO jackpots (game_id, pool_amount)
		VALUES ($1, $3::numeric + $2::numeric)
		ON CONFLICT (game_id) DO UPDATE
		SET pool_amount = jackpots.pool_amount + $2::numeric, updated_at = NOW()
		RETURNING pool_amount`

	var pool decimal.Decimal
	if err := r.q.QueryRow(ctx, query, gameID, amount, seed).Scan(&pool); err != nil {
		return decimal.Zero, fmt.Errorf("failed to add %s to jackpot pool %s: %w", amount, gameID, err)
	}
	return pool, nil
}

func (r *jackpotRepository) GetPoolForUpdate(ctx context.Context, gameID string) (*entities.JackpotPool, error) {
	pool, err := r.selectPool(ctx, `SELECT game_id, pool_amount, updated_at FROM jackpots WHERE game_id = $1 FOR UPDATE`, gameID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock jackpot pool %s: %w", gameID, err)
	}
	return pool, nil
}

func (r *jackpotRepository) ResetPool(ctx context.Context, gameID string, seed decimal.Decimal) error {
	query := `
		INSERT INTO jackpots (game_id, pool_amount)
		VALUES ($1, $2)
		ON CONFLICT (game_id) DO UPDATE
		SET pool_amount = EXCLUDED.pool_amount, updated_at = NOW()`

	if _, err := r.q.Exec(ctx, query, gameID, seed); err != nil {
		return fmt.Errorf("failed to reset jackpot pool %s: %w", gameID, err)
	}
	return nil
}

func (r *jackpotRepository) RecordWin(ctx context.Context, win *entities.JackpotWin) error {
	query := `
		INSERT INTO jackpot_wins (game_id, winner_id, amount, round_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, won_at`

	err := r.q.QueryRow(ctx, query, win.GameID, win.WinnerID, win.Amount, win.RoundID).Scan(&win.ID, &win.WonAt)
	if err != nil {
		return fmt.Errorf("failed to record jackpot win for %s: %w", win.GameID, err)
	}
	return nil
}

func (r *jackpotRepository) GetRecentWins(ctx context.Context, gameID string, limit int) ([]*entities.JackpotWin, error) {
	query := `
		SELECT id, game_id, winner_id, amount, round_id, won_at
		FROM jackpot_wins
		WHERE game_id = $1
		ORDER BY won_at DESC, id DESC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jackpot wins of %s: %w", gameID, err)
	}
	defer rows.Close()

	var wins []*entities.JackpotWin
	for rows.Next() {
		var win entities.JackpotWin
		if err := rows.Scan(&win.ID, &win.GameID, &win.WinnerID, &win.Amount, &win.RoundID, &win.WonAt); err != nil {
			return nil, fmt.Errorf("failed to scan jackpot win: %w", err)
		}
		wins = append(wins, &win)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jackpot wins: %w", err)
	}
	return wins, nil
}

func (r *jackpotRepository) selectPool(ctx context.Context, query, gameID string) (*entities.JackpotPool, error) {
	var pool entities.JackpotPool
	if err := r.q.QueryRow(ctx, query, gameID).Scan(&pool.GameID, &pool.PoolAmount, &pool.UpdatedAt); err != nil {
		return nil, err
	}
	return &pool, nil
}
