package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"casino/domain/entities"
	"casino/domain/fairness"
	"casino/domain/games"
	"casino/domain/interfaces"
	"casino/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var errAlreadySettled = errors.New("bet already settled")

// DefaultBetCooldown is the minimum gap between two bets of one account
const DefaultBetCooldown = time.Second

// BetRequest is a wager submitted by a player
type BetRequest struct {
	AccountID uuid.UUID
	GameID    string
	Room      string
	BetTypeID string
	Amount    decimal.Decimal
}

// EngineConfig holds the round engine's tunables
type EngineConfig struct {
	BetCooldown time.Duration
	HistorySize int
	Now         func() time.Time
}

// DefaultEngineConfig returns the stock engine settings
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BetCooldown: DefaultBetCooldown,
		HistorySize: games.DefaultHistorySize,
		Now:         time.Now,
	}
}

// SettlementSummary reports what a settlement pass did
type SettlementSummary struct {
	RoundID  int64
	Settled  int
	Skipped  int
	Refunded int
	Paid     decimal.Decimal
	Failed   []int64

	firstErr error
}

// RoundVerification is the outcome of recomputing a round from its seed
type RoundVerification struct {
	RoundID          int64
	GameID           string
	Room             string
	ServerSeed       string
	ServerSeedHash   string
	RecordedValues   []int
	RecomputedValues []int
	Display          string
	CommitmentValid  bool
	ResultValid      bool
}

// Valid reports whether both the commitment and the outcome check out
func (v *RoundVerification) Valid() bool {
	return v.CommitmentValid && v.ResultValid
}

// RoundEngine drives rounds through their lifecycle, accepts bets and
// settles them. It owns no timers; a scheduler calls the phase methods.
type RoundEngine struct {
	uowFactory interfaces.UnitOfWorkFactory
	ledger     *Ledger
	jackpot    *JackpotEngine
	registry   *games.Registry
	rooms      *RoomManager
	metrics    interfaces.MetricsRecorder
	cfg        EngineConfig

	mu     sync.RWMutex
	active map[string]*entities.Round

	cooldownMu sync.Mutex
	cooldowns  map[uuid.UUID]time.Time

	history map[string]*games.DiceHistory
}

// NewRoundEngine wires the engine. rooms may be nil when no registered game
// uses rooms; metrics may be nil.
func NewRoundEngine(
	uowFactory interfaces.UnitOfWorkFactory,
	ledger *Ledger,
	jackpot *JackpotEngine,
	registry *games.Registry,
	rooms *RoomManager,
	metrics interfaces.MetricsRecorder,
	cfg EngineConfig,
) *RoundEngine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = games.DefaultHistorySize
	}

	e := &RoundEngine{
		uowFactory: uowFactory,
		ledger:     ledger,
		jackpot:    jackpot,
		registry:   registry,
		rooms:      rooms,
		metrics:    metricsOrNoop(metrics),
		cfg:        cfg,
		active:     make(map[string]*entities.Round),
		cooldowns:  make(map[uuid.UUID]time.Time),
		history:    make(map[string]*games.DiceHistory),
	}
	if _, ok := registry.Get(games.DiceTotalGameID); ok {
		e.history[games.DiceTotalGameID] = games.NewDiceHistory(cfg.HistorySize)
	}
	return e
}

// Registry returns the game rules the engine runs
func (e *RoundEngine) Registry() *games.Registry {
	return e.registry
}

// StartRound opens a new round on the (gameID, room) timeline. If the
// timeline already has a live round, that round is returned.
func (e *RoundEngine) StartRound(ctx context.Context, gameID, room string) (*entities.Round, error) {
	rules, ok := e.registry.Get(gameID)
	if !ok {
		return nil, entities.Reject(entities.RejectUnknownGame, "game %q does not exist", gameID)
	}
	if _, err := rules.Limits(room); err != nil {
		return nil, err
	}
	if current := e.ActiveRound(gameID, room); current != nil {
		return current, nil
	}

	seed, err := fairness.GenerateSeed()
	if err != nil {
		return nil, fmt.Errorf("failed to generate server seed: %w", err)
	}

	now := e.cfg.Now()
	round := entities.NewRound(gameID, room, seed, fairness.Commit(seed), now)
	if err := round.StartBetting(); err != nil {
		return nil, err
	}

	started := events.RoundStartedEvent{
		GameID:         gameID,
		Room:           room,
		ServerSeedHash: round.ServerSeedHash,
		StartedAt:      now,
		BettingEndsAt:  now.Add(rules.BettingDuration()),
		RoundEndsAt:    now.Add(rules.RoundDuration()),
	}
	err = e.inUnitOfWork(ctx, func(uow interfaces.UnitOfWork) error {
		if err := uow.RoundRepository().Create(ctx, round); err != nil {
			return err
		}
		started.RoundID = round.ID
		uow.EventBus().Publish(started)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create round: %w", entities.ErrPersistence, err)
	}

	key := round.Key()
	e.mu.Lock()
	if current := e.active[key]; current != nil && !current.IsEnded() {
		e.mu.Unlock()
		e.forceEnd(ctx, round, errors.New("timeline already has a live round"))
		return current, nil
	}
	e.active[key] = round
	e.mu.Unlock()

	e.metrics.UpdateActiveRounds(gameID, 1)
	log.WithFields(log.Fields{
		"round_id":  round.ID,
		"game_id":   gameID,
		"room":      room,
		"seed_hash": round.ServerSeedHash,
	}).Info("Round started")
	return round, nil
}

// SubmitBet validates and places a bet on the timeline's live round. The
// debit, the bet row and the jackpot contribution commit together.
func (e *RoundEngine) SubmitBet(ctx context.Context, req BetRequest) (*entities.Bet, error) {
	rules, ok := e.registry.Get(req.GameID)
	if !ok {
		return nil, e.reject(req, entities.Reject(entities.RejectUnknownGame, "game %q does not exist", req.GameID))
	}

	round := e.ActiveRound(req.GameID, req.Room)
	if round == nil {
		return nil, e.reject(req, entities.Reject(entities.RejectRoundNotActive, "no round is running"))
	}
	if round.State() != entities.RoundStateBetting {
		return nil, e.reject(req, entities.Reject(entities.RejectBettingClosed, "betting is closed for round %d", round.ID))
	}

	betType, ok := rules.BetType(req.BetTypeID)
	if !ok {
		return nil, e.reject(req, entities.Reject(entities.RejectUnknownBetType, "bet type %q does not exist", req.BetTypeID))
	}

	if len(rules.Rooms()) > 0 && (e.rooms == nil || !e.rooms.InRoom(req.AccountID, req.Room)) {
		return nil, e.reject(req, entities.Reject(entities.RejectNotInRoom, "join room %s before betting", req.Room))
	}

	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, e.reject(req, entities.Reject(entities.RejectInvalidAmount, "invalid bet amount %s", req.Amount))
	}

	now := e.cfg.Now()
	if remaining := e.cooldownRemaining(req.AccountID, now); remaining > 0 {
		return nil, e.reject(req, entities.Reject(entities.RejectCooldown, "wait %s before betting again", remaining.Round(time.Millisecond)))
	}

	limits, err := rules.Limits(req.Room)
	if err != nil {
		return nil, e.reject(req, err)
	}
	if req.Amount.LessThan(limits.MinBet) {
		return nil, e.reject(req, entities.Reject(entities.RejectBelowMinBet, "minimum bet is %s", limits.MinBet))
	}
	if req.Amount.GreaterThan(limits.MaxBet) {
		return nil, e.reject(req, entities.Reject(entities.RejectAboveMaxBet, "maximum bet is %s", limits.MaxBet))
	}

	if !e.ledger.HasBalance(ctx, req.AccountID, req.Amount) {
		return nil, e.reject(req, entities.Reject(entities.RejectInsufficientBalance, "balance does not cover %s", req.Amount))
	}

	restoreCooldown, err := e.claimCooldown(req.AccountID, now)
	if err != nil {
		return nil, e.reject(req, err)
	}

	reservation, err := round.ReserveBet()
	if err != nil {
		restoreCooldown()
		return nil, e.reject(req, entities.Reject(entities.RejectBettingClosed, "betting is closed for round %d", round.ID))
	}

	bet := &entities.Bet{
		RoundID:   round.ID,
		AccountID: req.AccountID,
		BetTypeID: betType.ID,
		Amount:    req.Amount,
	}
	roundID := round.ID
	_, err = e.ledger.Transact(ctx, req.AccountID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
		if account.Balance.LessThan(req.Amount) {
			return nil, &entities.InsufficientFundsError{AccountID: account.ID, Balance: account.Balance, Requested: req.Amount}
		}
		if err := uow.BetRepository().Create(ctx, bet); err != nil {
			return nil, fmt.Errorf("%w: failed to record bet: %w", entities.ErrPersistence, err)
		}
		if e.jackpot != nil {
			if _, err := e.jackpot.ContributeWithin(ctx, uow, round.GameID, req.Amount); err != nil {
				return nil, err
			}
		}
		uow.EventBus().Publish(events.BetPlacedEvent{
			BetID:     bet.ID,
			RoundID:   roundID,
			AccountID: req.AccountID,
			GameID:    round.GameID,
			Room:      round.Room,
			BetTypeID: betType.ID,
			Amount:    req.Amount,
		})
		return &Posting{
			Amount:      req.Amount.Neg(),
			Type:        entities.TransactionTypeBet,
			Game:        round.GameID,
			RoundID:     &roundID,
			Description: fmt.Sprintf("Bet %s", betType.DisplayName),
		}, nil
	})
	if err != nil {
		reservation.Cancel()
		restoreCooldown()
		return nil, e.reject(req, err)
	}
	reservation.Commit(bet)

	if e.jackpot != nil {
		e.jackpot.InvalidatePool(ctx, round.GameID)
	}
	e.metrics.RecordBetPlaced(round.GameID, req.Amount)

	log.WithFields(log.Fields{
		"bet_id":     bet.ID,
		"round_id":   roundID,
		"account_id": req.AccountID,
		"bet_type":   betType.ID,
		"amount":     req.Amount,
	}).Debug("Bet placed")
	return bet, nil
}

// CloseBetting stops accepting bets and waits for in-flight ones to finish
func (e *RoundEngine) CloseBetting(ctx context.Context, round *entities.Round) error {
	if err := round.CloseBetting(); err != nil {
		return err
	}
	if err := e.persist(ctx, round); err != nil {
		log.WithFields(log.Fields{
			"round_id": round.ID,
		}).WithError(err).Warn("Failed to persist closed round")
	}

	log.WithFields(log.Fields{
		"round_id":  round.ID,
		"game_id":   round.GameID,
		"room":      round.Room,
		"bet_count": len(round.Bets()),
	}).Debug("Betting closed")
	return nil
}

// ComputeResult draws the outcome from the round's seed and reveals it. Any
// failure ends the round without settlement.
func (e *RoundEngine) ComputeResult(ctx context.Context, round *entities.Round) (*entities.GameResult, error) {
	result, err := e.computeResult(round)
	if err != nil {
		e.abandon(ctx, round, err)
		return nil, err
	}

	if err := round.SetResult(result); err != nil {
		e.abandon(ctx, round, err)
		return nil, err
	}

	revealed := events.RoundResultEvent{
		RoundID:        round.ID,
		GameID:         round.GameID,
		Room:           round.Room,
		ServerSeed:     round.ServerSeed,
		ServerSeedHash: round.ServerSeedHash,
		RawValues:      result.RawValues,
		Display:        result.Display,
		WinningBets:    result.WinningBetIDs(),
	}
	if err := e.persist(ctx, round, revealed); err != nil {
		err = fmt.Errorf("%w: failed to persist round result: %w", entities.ErrPersistence, err)
		e.abandon(ctx, round, err)
		return nil, err
	}

	if history, ok := e.history[round.Key()]; ok {
		history.Record(round.ID, result.RawValues)
	}

	log.WithFields(log.Fields{
		"round_id": round.ID,
		"game_id":  round.GameID,
		"room":     round.Room,
		"result":   result.Display,
	}).Info("Round result computed")
	return result, nil
}

func (e *RoundEngine) computeResult(round *entities.Round) (*entities.GameResult, error) {
	rules, ok := e.registry.Get(round.GameID)
	if !ok {
		return nil, fmt.Errorf("no rules registered for game %s", round.GameID)
	}
	raw, err := rules.Draw(round.ServerSeed, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to draw round %d: %w", round.ID, err)
	}
	result, err := rules.Evaluate(round.ServerSeed, round.ServerSeedHash, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate round %d: %w", round.ID, err)
	}
	return result, nil
}

// EndRound settles every bet, rolls the jackpot and closes the round. The
// round is ENDED when this returns, even on error; bets that failed to settle
// are reported in a SettlementError and can be settled with ResettleRound.
func (e *RoundEngine) EndRound(ctx context.Context, round *entities.Round) error {
	result := round.Result()
	if state := round.State(); state != entities.RoundStateResult || result == nil {
		err := &entities.StateError{RoundID: round.ID, From: state, Op: "end"}
		e.abandon(ctx, round, err)
		return err
	}

	rules, ok := e.registry.Get(round.GameID)
	if !ok {
		err := fmt.Errorf("no rules registered for game %s", round.GameID)
		e.forceEnd(ctx, round, err)
		return err
	}

	bets := round.Bets()
	summary := e.settleBets(ctx, round, rules, result, bets)

	if e.jackpot != nil {
		if _, err := e.jackpot.CheckTrigger(ctx, round, round.Participants()); err != nil {
			log.WithFields(log.Fields{
				"round_id": round.ID,
				"game_id":  round.GameID,
			}).WithError(err).Error("Jackpot check failed")
		}
	}

	now := e.cfg.Now()
	if err := round.End(now); err != nil {
		e.forceEnd(ctx, round, err)
		return err
	}
	e.deactivate(round)
	e.metrics.RecordRoundEnded(round.GameID, false)

	ended := events.RoundEndedEvent{
		RoundID:      round.ID,
		GameID:       round.GameID,
		Room:         round.Room,
		BetCount:     len(bets),
		TotalWagered: round.TotalWagered(),
		TotalPaid:    summary.Paid,
		FailedBets:   len(summary.Failed),
		EndedAt:      now,
	}
	if err := e.persist(ctx, round, ended); err != nil {
		log.WithFields(log.Fields{
			"round_id": round.ID,
		}).WithError(err).Error("Failed to persist ended round")
		if len(summary.Failed) == 0 {
			return fmt.Errorf("%w: failed to persist ended round %d: %w", entities.ErrPersistence, round.ID, err)
		}
	}

	log.WithFields(log.Fields{
		"round_id":    round.ID,
		"game_id":     round.GameID,
		"room":        round.Room,
		"bets":        len(bets),
		"paid":        summary.Paid,
		"failed_bets": len(summary.Failed),
	}).Info("Round ended")

	if len(summary.Failed) > 0 {
		return &entities.SettlementError{RoundID: round.ID, Failed: summary.Failed, Err: summary.firstErr}
	}
	return nil
}

func (e *RoundEngine) settleBets(ctx context.Context, round *entities.Round, rules games.Rules, result *entities.GameResult, bets []*entities.Bet) *SettlementSummary {
	summary := &SettlementSummary{RoundID: round.ID, Paid: decimal.Zero}

	for _, bet := range bets {
		if bet.Settled {
			summary.Skipped++
			continue
		}

		var (
			payout      decimal.Decimal
			txType      entities.TransactionType
			description string
		)
		if result == nil {
			payout = bet.Amount
			txType = entities.TransactionTypeRefund
			description = fmt.Sprintf("Refund round %d", round.ID)
		} else {
			payout = rules.Payout(bet, result)
			txType = entities.TransactionTypeWin
			description = fmt.Sprintf("Win %s", result.Display)
		}

		settled, err := e.settleBet(ctx, round, bet, payout, txType, description)
		if err != nil {
			log.WithFields(log.Fields{
				"round_id":   round.ID,
				"bet_id":     bet.ID,
				"account_id": bet.AccountID,
				"payout":     payout,
			}).WithError(err).Error("Failed to settle bet")
			summary.Failed = append(summary.Failed, bet.ID)
			if summary.firstErr == nil {
				summary.firstErr = err
			}
			continue
		}
		if !settled {
			summary.Skipped++
			continue
		}

		summary.Settled++
		if txType == entities.TransactionTypeRefund {
			summary.Refunded++
		}
		if payout.IsPositive() {
			summary.Paid = summary.Paid.Add(payout)
			if txType == entities.TransactionTypeWin {
				e.metrics.RecordPayout(round.GameID, payout)
			}
		}
	}
	return summary
}

// settleBet finalizes one bet. It returns false when the bet had already been
// settled by an earlier pass.
func (e *RoundEngine) settleBet(ctx context.Context, round *entities.Round, bet *entities.Bet, payout decimal.Decimal, txType entities.TransactionType, description string) (bool, error) {
	won := txType == entities.TransactionTypeWin && payout.IsPositive()
	roundID := round.ID

	_, err := e.ledger.Transact(ctx, bet.AccountID, func(ctx context.Context, uow interfaces.UnitOfWork, account *entities.Account) (*Posting, error) {
		marked, err := uow.BetRepository().MarkSettled(ctx, bet.ID, won, payout)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to mark bet settled: %w", entities.ErrPersistence, err)
		}
		if !marked {
			return nil, errAlreadySettled
		}

		if !payout.IsPositive() {
			lost := entities.AccountAggregates{Lost: bet.Amount}
			if err := uow.AccountRepository().AddAggregates(ctx, bet.AccountID, lost); err != nil {
				return nil, fmt.Errorf("%w: failed to record loss: %w", entities.ErrPersistence, err)
			}
			return nil, nil
		}

		posting := &Posting{
			Amount:      payout,
			Type:        txType,
			Game:        round.GameID,
			RoundID:     &roundID,
			Description: description,
		}
		if won {
			posting.Stake = bet.Amount
		}
		return posting, nil
	})
	if errors.Is(err, errAlreadySettled) {
		bet.Settled = true
		return false, nil
	}
	if err != nil {
		return false, err
	}

	bet.Settled = true
	bet.Won = won
	bet.Payout = payout
	return true, nil
}

// ResettleRound settles whatever a previous pass left unsettled. Rounds that
// never produced a result have their open bets refunded. Live rounds are
// refused.
func (e *RoundEngine) ResettleRound(ctx context.Context, roundID int64) (*SettlementSummary, error) {
	var (
		record *entities.RoundRecord
		bets   []*entities.Bet
	)
	err := e.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		record, err = uow.RoundRepository().GetByID(ctx, roundID)
		if err != nil || record == nil {
			return err
		}
		bets, err = uow.BetRepository().GetByRound(ctx, roundID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load round %d: %w", entities.ErrPersistence, roundID, err)
	}
	if record == nil {
		return nil, fmt.Errorf("round %d: %w", roundID, entities.ErrNotFound)
	}
	if e.isActive(record) {
		return nil, &entities.StateError{RoundID: roundID, From: record.State, Op: "resettle"}
	}

	rules, ok := e.registry.Get(record.GameID)
	if !ok {
		return nil, fmt.Errorf("no rules registered for game %s", record.GameID)
	}

	var result *entities.GameResult
	if record.HasResult() {
		raw, err := rules.Draw(record.ServerSeed, record.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to draw round %d: %w", roundID, err)
		}
		if !slices.Equal(raw, record.RawResult) {
			return nil, fmt.Errorf("round %d: stored result %v does not match seed draw %v", roundID, record.RawResult, raw)
		}
		result, err = rules.Evaluate(record.ServerSeed, record.ServerSeedHash, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate round %d: %w", roundID, err)
		}
	}

	endedAt := record.EndedAt
	if endedAt == nil {
		now := e.cfg.Now()
		endedAt = &now
	}
	round := entities.RestoreRound(record.ID, record.GameID, record.Room, record.ServerSeed, record.ServerSeedHash,
		entities.RoundStateEnded, result, record.StartedAt, endedAt, bets)

	summary := e.settleBets(ctx, round, rules, result, round.Bets())

	if record.State != entities.RoundStateEnded {
		if err := e.persist(ctx, round); err != nil {
			return summary, fmt.Errorf("%w: failed to close round %d: %w", entities.ErrPersistence, roundID, err)
		}
	}

	log.WithFields(log.Fields{
		"round_id": roundID,
		"settled":  summary.Settled,
		"skipped":  summary.Skipped,
		"refunded": summary.Refunded,
		"failed":   len(summary.Failed),
	}).Info("Round resettled")

	if len(summary.Failed) > 0 {
		return summary, &entities.SettlementError{RoundID: roundID, Failed: summary.Failed, Err: summary.firstErr}
	}
	return summary, nil
}

// RecoverUnfinished closes rounds left live by a previous process, settling
// or refunding their bets. Returns how many rounds were recovered.
func (e *RoundEngine) RecoverUnfinished(ctx context.Context) (int, error) {
	var records []*entities.RoundRecord
	err := e.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		records, err = uow.RoundRepository().GetUnfinished(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to load unfinished rounds: %w", entities.ErrPersistence, err)
	}

	recovered := 0
	var errs []error
	for _, record := range records {
		if e.isActive(record) {
			continue
		}
		if _, err := e.ResettleRound(ctx, record.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		recovered++
	}
	return recovered, errors.Join(errs...)
}

// VerifyRound recomputes the commitment and the draws of a revealed round
func (e *RoundEngine) VerifyRound(ctx context.Context, roundID int64) (*RoundVerification, error) {
	var record *entities.RoundRecord
	err := e.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		record, err = uow.RoundRepository().GetByID(ctx, roundID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load round %d: %w", entities.ErrPersistence, roundID, err)
	}
	if record == nil {
		return nil, fmt.Errorf("round %d: %w", roundID, entities.ErrNotFound)
	}
	if !record.HasResult() {
		return nil, entities.Reject(entities.RejectRoundNotSettled, "round %d has not revealed its result", roundID)
	}

	rules, ok := e.registry.Get(record.GameID)
	if !ok {
		return nil, fmt.Errorf("no rules registered for game %s", record.GameID)
	}
	raw, err := rules.Draw(record.ServerSeed, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to draw round %d: %w", roundID, err)
	}
	result, err := rules.Evaluate(record.ServerSeed, record.ServerSeedHash, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate round %d: %w", roundID, err)
	}

	return &RoundVerification{
		RoundID:          record.ID,
		GameID:           record.GameID,
		Room:             record.Room,
		ServerSeed:       record.ServerSeed,
		ServerSeedHash:   record.ServerSeedHash,
		RecordedValues:   record.RawResult,
		RecomputedValues: raw,
		Display:          result.Display,
		CommitmentValid:  fairness.Verify(record.ServerSeed, record.ServerSeedHash),
		ResultValid:      slices.Equal(raw, record.RawResult),
	}, nil
}

// Shutdown ends every live round without settling it
func (e *RoundEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	live := make([]*entities.Round, 0, len(e.active))
	for key, round := range e.active {
		live = append(live, round)
		delete(e.active, key)
	}
	e.mu.Unlock()

	var errs []error
	now := e.cfg.Now()
	for _, round := range live {
		if !round.ForceEnd(now) {
			continue
		}
		round.WaitForBets()
		e.metrics.UpdateActiveRounds(round.GameID, -1)
		e.metrics.RecordRoundEnded(round.GameID, true)
		if err := e.persist(ctx, round); err != nil {
			errs = append(errs, fmt.Errorf("failed to persist round %d: %w", round.ID, err))
		}
	}

	log.WithField("rounds", len(live)).Info("Round engine shut down")
	return errors.Join(errs...)
}

// EndSession forgets the account's cooldown, room seat and ledger lock
func (e *RoundEngine) EndSession(ctx context.Context, accountID uuid.UUID) {
	e.cooldownMu.Lock()
	delete(e.cooldowns, accountID)
	e.cooldownMu.Unlock()

	if e.rooms != nil {
		e.rooms.Leave(accountID)
	}
	e.ledger.EndSession(accountID)

	log.WithFields(log.Fields{
		"account_id": accountID,
	}).Debug("Session ended")
}

// ActiveRound returns the live round of a timeline, nil when there is none
func (e *RoundEngine) ActiveRound(gameID, room string) *entities.Round {
	e.mu.RLock()
	round := e.active[entities.RoundKey(gameID, room)]
	e.mu.RUnlock()

	if round == nil || round.IsEnded() {
		return nil
	}
	return round
}

// RoundSnapshot is the public view of a live round. The server seed stays
// hidden until the result is revealed.
type RoundSnapshot struct {
	ID             int64
	GameID         string
	Room           string
	State          entities.RoundState
	ServerSeedHash string
	StartedAt      time.Time
	BettingEndsAt  time.Time
}

// CurrentRound describes the live round of a timeline
func (e *RoundEngine) CurrentRound(gameID, room string) (*RoundSnapshot, bool) {
	round := e.ActiveRound(gameID, room)
	if round == nil {
		return nil, false
	}
	snapshot := &RoundSnapshot{
		ID:             round.ID,
		GameID:         round.GameID,
		Room:           round.Room,
		State:          round.State(),
		ServerSeedHash: round.ServerSeedHash,
		StartedAt:      round.StartedAt,
		BettingEndsAt:  round.StartedAt,
	}
	if rules, ok := e.registry.Get(gameID); ok {
		snapshot.BettingEndsAt = round.StartedAt.Add(rules.BettingDuration())
	}
	return snapshot, true
}

// ActiveRounds returns every live round ordered by timeline
func (e *RoundEngine) ActiveRounds() []*entities.Round {
	e.mu.RLock()
	rounds := make([]*entities.Round, 0, len(e.active))
	for _, round := range e.active {
		if !round.IsEnded() {
			rounds = append(rounds, round)
		}
	}
	e.mu.RUnlock()

	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Key() < rounds[j].Key() })
	return rounds
}

// History returns the outcome trend of a dice game
func (e *RoundEngine) History(gameID string) (*games.DiceHistory, bool) {
	history, ok := e.history[gameID]
	return history, ok
}

// WarmHistory loads recent results from storage into the trend histories
func (e *RoundEngine) WarmHistory(ctx context.Context) error {
	for key, history := range e.history {
		var records []*entities.RoundRecord
		err := e.read(ctx, func(uow interfaces.UnitOfWork) error {
			var err error
			records, err = uow.RoundRepository().GetRecent(ctx, key, "", e.cfg.HistorySize)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: failed to load recent rounds of %s: %w", entities.ErrPersistence, key, err)
		}
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].HasResult() {
				history.Record(records[i].ID, records[i].RawResult)
			}
		}
	}
	return nil
}

func (e *RoundEngine) reject(req BetRequest, err error) error {
	if code, ok := entities.RejectionCodeOf(err); ok {
		e.metrics.RecordBetRejected(req.GameID, code)
		log.WithFields(log.Fields{
			"account_id": req.AccountID,
			"game_id":    req.GameID,
			"room":       req.Room,
			"code":       code,
		}).Debug("Bet rejected")
	}
	return err
}

func (e *RoundEngine) cooldownRemaining(accountID uuid.UUID, now time.Time) time.Duration {
	if e.cfg.BetCooldown <= 0 {
		return 0
	}

	e.cooldownMu.Lock()
	defer e.cooldownMu.Unlock()

	last, ok := e.cooldowns[accountID]
	if !ok {
		return 0
	}
	return e.cfg.BetCooldown - now.Sub(last)
}

// claimCooldown stamps the account's cooldown and returns a func that undoes
// the stamp when the bet does not go through
func (e *RoundEngine) claimCooldown(accountID uuid.UUID, now time.Time) (func(), error) {
	if e.cfg.BetCooldown <= 0 {
		return func() {}, nil
	}

	e.cooldownMu.Lock()
	defer e.cooldownMu.Unlock()

	previous, had := e.cooldowns[accountID]
	if had {
		if remaining := e.cfg.BetCooldown - now.Sub(previous); remaining > 0 {
			return nil, entities.Reject(entities.RejectCooldown, "wait %s before betting again", remaining.Round(time.Millisecond))
		}
	}
	e.cooldowns[accountID] = now

	return func() {
		e.cooldownMu.Lock()
		defer e.cooldownMu.Unlock()
		if !e.cooldowns[accountID].Equal(now) {
			return
		}
		if had {
			e.cooldowns[accountID] = previous
		} else {
			delete(e.cooldowns, accountID)
		}
	}, nil
}

func (e *RoundEngine) forceEnd(ctx context.Context, round *entities.Round, cause error) bool {
	if !round.ForceEnd(e.cfg.Now()) {
		return false
	}
	e.deactivate(round)
	e.metrics.RecordRoundEnded(round.GameID, true)

	if err := e.persist(ctx, round); err != nil {
		log.WithFields(log.Fields{
			"round_id": round.ID,
		}).WithError(err).Error("Failed to persist force-ended round")
	}
	log.WithFields(log.Fields{
		"round_id": round.ID,
		"game_id":  round.GameID,
		"room":     round.Room,
	}).WithError(cause).Error("Round force-ended")
	return true
}

// abandon force-ends a round that can no longer produce a result and
// refunds its bets right away. Bets it cannot refund stay unsettled for
// RecoverUnfinished.
func (e *RoundEngine) abandon(ctx context.Context, round *entities.Round, cause error) {
	if !e.forceEnd(ctx, round, cause) {
		return
	}
	round.WaitForBets()
	if len(round.Bets()) == 0 {
		return
	}
	if _, err := e.ResettleRound(ctx, round.ID); err != nil {
		log.WithFields(log.Fields{
			"round_id": round.ID,
			"game_id":  round.GameID,
		}).WithError(err).Error("Failed to refund abandoned round")
	}
}

func (e *RoundEngine) deactivate(round *entities.Round) {
	key := round.Key()

	e.mu.Lock()
	removed := e.active[key] == round
	if removed {
		delete(e.active, key)
	}
	e.mu.Unlock()

	if removed {
		e.metrics.UpdateActiveRounds(round.GameID, -1)
	}
}

func (e *RoundEngine) isActive(record *entities.RoundRecord) bool {
	round := e.ActiveRound(record.GameID, record.Room)
	return round != nil && round.ID == record.ID
}

func (e *RoundEngine) persist(ctx context.Context, round *entities.Round, evts ...events.Event) error {
	return e.inUnitOfWork(ctx, func(uow interfaces.UnitOfWork) error {
		if err := uow.RoundRepository().Update(ctx, round); err != nil {
			return err
		}
		for _, evt := range evts {
			uow.EventBus().Publish(evt)
		}
		return nil
	})
}

func (e *RoundEngine) inUnitOfWork(ctx context.Context, fn func(uow interfaces.UnitOfWork) error) error {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	if err := fn(uow); err != nil {
		_ = uow.Rollback()
		return err
	}
	return uow.Commit()
}

func (e *RoundEngine) read(ctx context.Context, fn func(uow interfaces.UnitOfWork) error) error {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		_ = uow.Rollback()
	}()
	return fn(uow)
}
