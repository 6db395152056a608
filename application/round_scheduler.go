package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"casino/domain/entities"
	"casino/domain/games"

	log "github.com/sirupsen/logrus"
)

// RoundDriver is the phase API the scheduler drives
type RoundDriver interface {
	StartRound(ctx context.Context, gameID, room string) (*entities.Round, error)
	CloseBetting(ctx context.Context, round *entities.Round) error
	ComputeResult(ctx context.Context, round *entities.Round) (*entities.GameResult, error)
	EndRound(ctx context.Context, round *entities.Round) error
}

// Timeline is one (game, room) sequence of rounds
type Timeline struct {
	GameID          string
	Room            string
	BettingDuration time.Duration
	RoundDuration   time.Duration
}

// TimelinesFor returns one timeline per roomless game and one per room
func TimelinesFor(registry *games.Registry) []Timeline {
	var timelines []Timeline
	for _, rules := range registry.All() {
		rooms := rules.Rooms()
		if len(rooms) == 0 {
			timelines = append(timelines, Timeline{
				GameID:          rules.ID(),
				BettingDuration: rules.BettingDuration(),
				RoundDuration:   rules.RoundDuration(),
			})
			continue
		}
		for _, room := range rooms {
			timelines = append(timelines, Timeline{
				GameID:          rules.ID(),
				Room:            room.ID,
				BettingDuration: rules.BettingDuration(),
				RoundDuration:   rules.RoundDuration(),
			})
		}
	}
	return timelines
}

// RoundScheduler runs every timeline on its own goroutine:
// start, wait for betting to close, compute, wait out the round, end.
type RoundScheduler struct {
	driver     RoundDriver
	timelines  []Timeline
	retryDelay time.Duration
}

// NewRoundScheduler creates a scheduler for timelines
func NewRoundScheduler(driver RoundDriver, timelines []Timeline) *RoundScheduler {
	return &RoundScheduler{
		driver:     driver,
		timelines:  timelines,
		retryDelay: 5 * time.Second,
	}
}

// Start launches the timelines. The returned func stops them and waits for
// every goroutine to return; a round interrupted mid-way stays live for the
// engine's shutdown to force-end.
func (s *RoundScheduler) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	var wg sync.WaitGroup

	for _, timeline := range s.timelines {
		wg.Add(1)
		go func(tl Timeline) {
			defer wg.Done()
			s.run(ctx, stopChan, tl)
		}(timeline)
	}

	log.WithField("timelines", len(s.timelines)).Info("Round scheduler started")

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopChan)
			wg.Wait()
			log.Info("Round scheduler stopped")
		})
	}
}

func (s *RoundScheduler) run(ctx context.Context, stop <-chan struct{}, tl Timeline) {
	fields := log.Fields{"game_id": tl.GameID, "room": tl.Room}
	log.WithFields(fields).Debug("Timeline started")

	for {
		ok, err := s.playRound(ctx, stop, tl)
		if !ok {
			log.WithFields(fields).Debug("Timeline shutting down")
			return
		}
		if err != nil {
			log.WithFields(fields).WithError(err).Error("Round failed")
			if !wait(ctx, stop, s.retryDelay) {
				return
			}
		}
	}
}

// playRound runs one round. It returns false when the scheduler was stopped.
func (s *RoundScheduler) playRound(ctx context.Context, stop <-chan struct{}, tl Timeline) (bool, error) {
	round, err := s.driver.StartRound(ctx, tl.GameID, tl.Room)
	if err != nil {
		return true, err
	}

	if !wait(ctx, stop, tl.BettingDuration) {
		return false, nil
	}

	if err := s.driver.CloseBetting(ctx, round); err != nil {
		return true, err
	}
	if _, err := s.driver.ComputeResult(ctx, round); err != nil {
		// the engine already ended the round; start the next one right away
		log.WithFields(log.Fields{
			"round_id": round.ID,
			"game_id":  tl.GameID,
			"room":     tl.Room,
		}).WithError(err).Error("Failed to compute round result")
		return true, nil
	}

	if !wait(ctx, stop, tl.RoundDuration-tl.BettingDuration) {
		return false, nil
	}

	if err := s.driver.EndRound(ctx, round); err != nil {
		var settlementErr *entities.SettlementError
		if errors.As(err, &settlementErr) {
			log.WithFields(log.Fields{
				"round_id":    round.ID,
				"failed_bets": settlementErr.Failed,
			}).WithError(err).Error("Round ended with unsettled bets")
			return true, nil
		}
		return true, err
	}
	return true, nil
}

// wait sleeps for d and reports false when interrupted
func wait(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-stop:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
