package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"casino/domain/entities"
	"casino/domain/interfaces"
	"casino/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var errJackpotUnavailable = errors.New("jackpot pool below minimum")

// JackpotEngine accumulates per-game pools from bets and pays them out to a
// round participant when a trigger roll succeeds
type JackpotEngine struct {
	uowFactory interfaces.UnitOfWorkFactory
	ledger     *Ledger
	cache      interfaces.JackpotCache
	metrics    interfaces.MetricsRecorder
	roller     JackpotRoller

	mu      sync.RWMutex
	configs map[string]entities.JackpotConfig
}

// NewJackpotEngine creates an engine. cache and metrics may be nil; a nil
// roller means committed rolls.
func NewJackpotEngine(uowFactory interfaces.UnitOfWorkFactory, ledger *Ledger, cache interfaces.JackpotCache, metrics interfaces.MetricsRecorder, roller JackpotRoller) *JackpotEngine {
	if cache == nil {
		cache = noopJackpotCache{}
	}
	if roller == nil {
		roller = CommittedRoller{}
	}
	return &JackpotEngine{
		uowFactory: uowFactory,
		ledger:     ledger,
		cache:      cache,
		metrics:    metricsOrNoop(metrics),
		roller:     roller,
		configs:    make(map[string]entities.JackpotConfig),
	}
}

// Register enables a pool for gameID
func (j *JackpotEngine) Register(gameID string, cfg entities.JackpotConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid jackpot config for %s: %w", gameID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.configs[gameID] = cfg
	return nil
}

// Config returns the pool settings of gameID
func (j *JackpotEngine) Config(gameID string) (entities.JackpotConfig, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	cfg, ok := j.configs[gameID]
	return cfg, ok
}

// TriggerChance returns the probability that a round with pool triggers
func TriggerChance(cfg entities.JackpotConfig, pool decimal.Decimal) float64 {
	return cfg.TriggerChance(pool)
}

// ContributeWithin adds the bet's share to the pool inside uow and returns
// the contributed amount. Games without a pool contribute nothing.
func (j *JackpotEngine) ContributeWithin(ctx context.Context, uow interfaces.UnitOfWork, gameID string, betAmount decimal.Decimal) (decimal.Decimal, error) {
	cfg, ok := j.Config(gameID)
	if !ok {
		return decimal.Zero, nil
	}

	amount := cfg.Contribution(betAmount)
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}

	pool, err := uow.JackpotRepository().AddToPool(ctx, gameID, amount, cfg.SeedAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to add to jackpot pool: %w", entities.ErrPersistence, err)
	}

	log.WithFields(log.Fields{
		"game_id":      gameID,
		"contribution": amount,
		"pool":         pool,
	}).Debug("Jackpot contribution added")
	return amount, nil
}

// Contribute adds the bet's share to the pool in its own transaction
func (j *JackpotEngine) Contribute(ctx context.Context, gameID string, betAmount decimal.Decimal) (decimal.Decimal, error) {
	uow := j.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to begin transaction: %w", entities.ErrPersistence, err)
	}

	amount, err := j.ContributeWithin(ctx, uow, gameID, betAmount)
	if err != nil {
		_ = uow.Rollback()
		return decimal.Zero, err
	}
	if err := uow.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to commit contribution: %w", entities.ErrPersistence, err)
	}

	j.InvalidatePool(ctx, gameID)
	return amount, nil
}

// InvalidatePool drops the cached pool after a committed change
func (j *JackpotEngine) InvalidatePool(ctx context.Context, gameID string) {
	if err := j.cache.InvalidatePool(ctx, gameID); err != nil {
		log.WithFields(log.Fields{
			"game_id": gameID,
		}).WithError(err).Warn("Failed to invalidate cached jackpot pool")
	}
}

// GetPool returns the current pool, creating it at the seed amount when missing
func (j *JackpotEngine) GetPool(ctx context.Context, gameID string) (decimal.Decimal, error) {
	if pool, ok, err := j.cache.GetPool(ctx, gameID); err == nil && ok {
		return pool, nil
	}

	cfg, ok := j.Config(gameID)
	if !ok {
		return decimal.Zero, fmt.Errorf("no jackpot registered for game %s", gameID)
	}

	uow := j.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to begin transaction: %w", entities.ErrPersistence, err)
	}
	pool, err := uow.JackpotRepository().EnsurePool(ctx, gameID, cfg.SeedAmount)
	if err != nil {
		_ = uow.Rollback()
		return decimal.Zero, fmt.Errorf("%w: failed to load jackpot pool: %w", entities.ErrPersistence, err)
	}
	if err := uow.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to commit jackpot pool: %w", entities.ErrPersistence, err)
	}

	if err := j.cache.SetPool(ctx, gameID, pool.PoolAmount); err != nil {
		log.WithFields(log.Fields{
			"game_id": gameID,
		}).WithError(err).Debug("Failed to cache jackpot pool")
	}
	return pool.PoolAmount, nil
}

// CheckTrigger rolls for the round's jackpot. On a hit one participant
// receives the whole pool and the pool returns to its seed amount. Returns
// nil when nothing was won.
func (j *JackpotEngine) CheckTrigger(ctx context.Context, round *entities.Round, participants []uuid.UUID) (*entities.JackpotWin, error) {
	cfg, ok := j.Config(round.GameID)
	if !ok || len(participants) == 0 {
		return nil, nil
	}

	pool, err := j.GetPool(ctx, round.GameID)
	if err != nil {
		return nil, err
	}
	if pool.LessThan(cfg.MinJackpot) {
		return nil, nil
	}

	chance := cfg.TriggerChance(pool)
	if j.roller.Roll(round) >= chance {
		return nil, nil
	}

	ordered := make([]uuid.UUID, len(participants))
	copy(ordered, participants)
	sortAccountIDs(ordered)
	winnerID := ordered[j.roller.Pick(round, len(ordered))]

	roundID := round.ID
	var win *entities.JackpotWin
	_, err = j.ledger.Transact(ctx, winnerID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
		locked, err := uow.JackpotRepository().GetPoolForUpdate(ctx, round.GameID)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to lock jackpot pool: %w", entities.ErrPersistence, err)
		}
		if locked == nil || locked.PoolAmount.LessThan(cfg.MinJackpot) {
			return nil, errJackpotUnavailable
		}

		if err := uow.JackpotRepository().ResetPool(ctx, round.GameID, cfg.SeedAmount); err != nil {
			return nil, fmt.Errorf("%w: failed to reset jackpot pool: %w", entities.ErrPersistence, err)
		}

		win = &entities.JackpotWin{
			GameID:   round.GameID,
			WinnerID: winnerID,
			Amount:   locked.PoolAmount,
			RoundID:  &roundID,
		}
		if err := uow.JackpotRepository().RecordWin(ctx, win); err != nil {
			return nil, fmt.Errorf("%w: failed to record jackpot win: %w", entities.ErrPersistence, err)
		}

		uow.EventBus().Publish(events.JackpotWonEvent{
			GameID:   round.GameID,
			WinnerID: winnerID,
			Amount:   locked.PoolAmount,
			RoundID:  roundID,
		})

		return &Posting{
			Amount:      locked.PoolAmount,
			Type:        entities.TransactionTypeJackpot,
			Game:        round.GameID,
			RoundID:     &roundID,
			Description: "Jackpot",
		}, nil
	})
	if errors.Is(err, errJackpotUnavailable) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.InvalidatePool(ctx, round.GameID)
	j.metrics.RecordJackpotWin(round.GameID, win.Amount)

	log.WithFields(log.Fields{
		"game_id":   round.GameID,
		"round_id":  roundID,
		"winner_id": winnerID,
		"amount":    win.Amount,
		"chance":    chance,
	}).Info("Jackpot won")
	return win, nil
}

// Stats summarises the pool of gameID
func (j *JackpotEngine) Stats(ctx context.Context, gameID string) (*entities.JackpotStats, error) {
	cfg, ok := j.Config(gameID)
	if !ok {
		return nil, fmt.Errorf("no jackpot registered for game %s: %w", gameID, entities.ErrNotFound)
	}

	pool, err := j.GetPool(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return &entities.JackpotStats{
		GameID:        gameID,
		Pool:          pool,
		TriggerChance: cfg.TriggerChance(pool),
		MinJackpot:    cfg.MinJackpot,
	}, nil
}

// RecentWins returns the latest payouts of gameID, newest first
func (j *JackpotEngine) RecentWins(ctx context.Context, gameID string, limit int) ([]*entities.JackpotWin, error) {
	uow := j.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", entities.ErrPersistence, err)
	}
	defer func() {
		_ = uow.Rollback()
	}()

	wins, err := uow.JackpotRepository().GetRecentWins(ctx, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get jackpot wins: %w", entities.ErrPersistence, err)
	}
	return wins, nil
}

func sortAccountIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(a, b int) bool {
		return ids[a].String() < ids[b].String()
	})
}

type noopJackpotCache struct{}

func (noopJackpotCache) GetPool(context.Context, string) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (noopJackpotCache) SetPool(context.Context, string, decimal.Decimal) error { return nil }
func (noopJackpotCache) InvalidatePool(context.Context, string) error           { return nil }
