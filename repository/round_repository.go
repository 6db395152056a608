package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casino/database"
	"casino/domain/entities"
	"casino/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

const roundColumns = `id, game_id, room, server_seed, server_seed_hash, state, raw_result,
	COALESCE(display_result, ''), started_at, ended_at`

type roundRepository struct {
	q Queryable
}

// NewRoundRepository creates a round repository on the pool
func NewRoundRepository(db *database.DB) interfaces.RoundRepository {
	return &roundRepository{q: db.Pool}
}

func newRoundRepositoryWithTx(tx Queryable) interfaces.RoundRepository {
	return &roundRepository{q: tx}
}

func (r *roundRepository) Create(ctx context.Context, round *entities.Round) error {
	rawResult, display, err := encodeResult(round.Result())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rounds (game_id, room, server_seed, server_seed_hash, state, raw_result, display_result, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		RETURNING id`

	err = r.q.QueryRow(ctx, query,
		round.GameID,
		round.Room,
		round.ServerSeed,
		round.ServerSeedHash,
		round.State(),
		rawResult,
		display,
		round.StartedAt,
		round.EndedAt(),
	).Scan(&round.ID)
	if err != nil {
		return fmt.Errorf("failed to create round for %s: %w", round.Key(), err)
	}
	return nil
}

func (r *roundRepository) Update(ctx context.Context, round *entities.Round) error {
	rawResult, display, err := encodeResult(round.Result())
	if err != nil {
		return err
	}

	query := `
		UPDATE rounds
		SET state = $2,
		    raw_result = COALESCE($3, raw_result),
		    display_result = COALESCE(NULLIF($4, ''), display_result),
		    ended_at = $5
		WHERE id = $1`

	result, err := r.q.Exec(ctx, query, round.ID, round.State(), rawResult, display, round.EndedAt())
	if err != nil {
		return fmt.Errorf("failed to update round %d: %w", round.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("round %d not found", round.ID)
	}
	return nil
}

func (r *roundRepository) GetByID(ctx context.Context, id int64) (*entities.RoundRecord, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`

	record, err := scanRound(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round %d: %w", id, err)
	}
	return record, nil
}

func (r *roundRepository) GetRecent(ctx context.Context, gameID, room string, limit int) ([]*entities.RoundRecord, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM rounds
		WHERE game_id = $1 AND room = $2 AND state = 'ENDED' AND raw_result IS NOT NULL
		ORDER BY started_at DESC, id DESC
		LIMIT $3`

	rows, err := r.q.Query(ctx, query, gameID, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent rounds of %s: %w", entities.RoundKey(gameID, room), err)
	}
	return collectRounds(rows)
}

func (r *roundRepository) GetUnfinished(ctx context.Context) ([]*entities.RoundRecord, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM rounds
		WHERE state <> 'ENDED'
		   OR EXISTS (SELECT 1 FROM bets WHERE bets.round_id = rounds.id AND NOT bets.settled)
		ORDER BY id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinished rounds: %w", err)
	}
	return collectRounds(rows)
}

func encodeResult(result *entities.GameResult) ([]byte, string, error) {
	if result == nil {
		return nil, "", nil
	}
	raw, err := json.Marshal(result.RawValues)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode raw result: %w", err)
	}
	return raw, result.Display, nil
}

func scanRound(row pgx.Row) (*entities.RoundRecord, error) {
	var (
		record  entities.RoundRecord
		raw     []byte
		endedAt *time.Time
	)
	err := row.Scan(
		&record.ID,
		&record.GameID,
		&record.Room,
		&record.ServerSeed,
		&record.ServerSeedHash,
		&record.State,
		&raw,
		&record.Display,
		&record.StartedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &record.RawResult); err != nil {
			return nil, fmt.Errorf("failed to decode raw result of round %d: %w", record.ID, err)
		}
	}
	record.EndedAt = endedAt
	return &record, nil
}

func collectRounds(rows pgx.Rows) ([]*entities.RoundRecord, error) {
	defer rows.Close()

	var records []*entities.RoundRecord
	for rows.Next() {
		record, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rounds: %w", err)
	}
	return records, nil
}
