package entities

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RoundState is a step of the round lifecycle
type RoundState string

const (
	RoundStateWaiting     RoundState = "WAITING"
	RoundStateBetting     RoundState = "BETTING"
	RoundStateCalculating RoundState = "CALCULATING"
	RoundStateResult      RoundState = "RESULT"
	RoundStateEnded       RoundState = "ENDED"
)

// IsValid reports whether s is a known state
func (s RoundState) IsValid() bool {
	switch s {
	case RoundStateWaiting, RoundStateBetting, RoundStateCalculating, RoundStateResult, RoundStateEnded:
		return true
	}
	return false
}

// RoundKey identifies a (game, room) timeline
func RoundKey(gameID, room string) string {
	if room == "" {
		return gameID
	}
	return gameID + ":" + room
}

// Round is one betting/outcome/settlement cycle. Phase methods are expected to
// be called by a single writer; bet reservations may come from many goroutines.
type Round struct {
	ID             int64
	GameID         string
	Room           string
	ServerSeed     string
	ServerSeedHash string
	StartedAt      time.Time

	mu      sync.Mutex
	state   RoundState
	result  *GameResult
	endedAt *time.Time
	bets    map[uuid.UUID][]*Bet
	pending sync.WaitGroup
}

// NewRound creates a round in WAITING state
func NewRound(gameID, room, serverSeed, serverSeedHash string, startedAt time.Time) *Round {
	return &Round{
		GameID:         gameID,
		Room:           room,
		ServerSeed:     serverSeed,
		ServerSeedHash: serverSeedHash,
		StartedAt:      startedAt,
		state:          RoundStateWaiting,
		bets:           make(map[uuid.UUID][]*Bet),
	}
}

// RestoreRound rebuilds a round loaded from storage
func RestoreRound(id int64, gameID, room, serverSeed, serverSeedHash string, state RoundState, result *GameResult, startedAt time.Time, endedAt *time.Time, bets []*Bet) *Round {
	r := NewRound(gameID, room, serverSeed, serverSeedHash, startedAt)
	r.ID = id
	r.state = state
	r.result = result
	r.endedAt = endedAt
	for _, bet := range bets {
		r.bets[bet.AccountID] = append(r.bets[bet.AccountID], bet)
	}
	return r
}

// Key returns the round's timeline key
func (r *Round) Key() string {
	return RoundKey(r.GameID, r.Room)
}

// State returns the current state
func (r *Round) State() RoundState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Result returns the attached result, nil before CALCULATING completes
func (r *Round) Result() *GameResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// EndedAt returns when the round ended, nil while it is live
func (r *Round) EndedAt() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endedAt
}

// IsEnded reports whether the round reached its terminal state
func (r *Round) IsEnded() bool {
	return r.State() == RoundStateEnded
}

// StartBetting moves WAITING to BETTING
func (r *Round) StartBetting() error {
	return r.transition(RoundStateWaiting, RoundStateBetting, "start betting")
}

// CloseBetting moves BETTING to CALCULATING and waits for in-flight bet
// reservations to finish, so the bet set is final when it returns.
func (r *Round) CloseBetting() error {
	if err := r.transition(RoundStateBetting, RoundStateCalculating, "close betting"); err != nil {
		return err
	}
	r.pending.Wait()
	return nil
}

// SetResult attaches the outcome and moves CALCULATING to RESULT. A round
// holds at most one result.
func (r *Round) SetResult(result *GameResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoundStateCalculating {
		return &StateError{RoundID: r.ID, From: r.state, Op: "set result"}
	}
	r.result = result
	r.state = RoundStateResult
	return nil
}

// End moves RESULT to ENDED
func (r *Round) End(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoundStateResult {
		return &StateError{RoundID: r.ID, From: r.state, Op: "end"}
	}
	r.state = RoundStateEnded
	r.endedAt = &now
	return nil
}

// ForceEnd moves any live state to ENDED. Returns false if already ended.
func (r *Round) ForceEnd(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == RoundStateEnded {
		return false
	}
	r.state = RoundStateEnded
	r.endedAt = &now
	return true
}

// WaitForBets blocks until every outstanding bet reservation is committed
// or cancelled.
func (r *Round) WaitForBets() {
	r.pending.Wait()
}

func (r *Round) transition(from, to RoundState, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != from {
		return &StateError{RoundID: r.ID, From: r.state, Op: op}
	}
	r.state = to
	return nil
}

// BetReservation holds the round open for one bet while it is being paid for
type BetReservation struct {
	round *Round
	once  sync.Once
}

// ReserveBet claims a slot for a bet. It fails unless the round is BETTING.
// Every reservation must end with Commit or Cancel.
func (r *Round) ReserveBet() (*BetReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoundStateBetting {
		return nil, &StateError{RoundID: r.ID, From: r.state, Op: "add bet"}
	}
	r.pending.Add(1)
	return &BetReservation{round: r}, nil
}

// Commit appends the bet to the round and releases the reservation
func (res *BetReservation) Commit(bet *Bet) {
	res.once.Do(func() {
		r := res.round
		r.mu.Lock()
		r.bets[bet.AccountID] = append(r.bets[bet.AccountID], bet)
		r.mu.Unlock()
		r.pending.Done()
	})
}

// Cancel releases the reservation without adding a bet
func (res *BetReservation) Cancel() {
	res.once.Do(func() {
		res.round.pending.Done()
	})
}

// AddBet appends a bet directly; only valid while BETTING
func (r *Round) AddBet(bet *Bet) error {
	reservation, err := r.ReserveBet()
	if err != nil {
		return err
	}
	reservation.Commit(bet)
	return nil
}

// Bets returns every bet on the round ordered by id, then creation time
func (r *Round) Bets() []*Bet {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*Bet, 0)
	for _, bets := range r.bets {
		all = append(all, bets...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ID != all[j].ID {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}

// BetsFor returns the bets placed by one account
func (r *Round) BetsFor(accountID uuid.UUID) []*Bet {
	r.mu.Lock()
	defer r.mu.Unlock()

	bets := make([]*Bet, len(r.bets[accountID]))
	copy(bets, r.bets[accountID])
	return bets
}

// Participants returns the accounts with at least one bet, sorted by id
func (r *Round) Participants() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.bets))
	for id, bets := range r.bets {
		if len(bets) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// TotalWagered sums every bet amount on the round
func (r *Round) TotalWagered() decimal.Decimal {
	total := decimal.Zero
	for _, bet := range r.Bets() {
		total = total.Add(bet.Amount)
	}
	return total
}

// RoundRecord is a round as stored, without its in-memory bet set
type RoundRecord struct {
	ID             int64
	GameID         string
	Room           string
	ServerSeed     string
	ServerSeedHash string
	State          RoundState
	RawResult      []int
	Display        string
	StartedAt      time.Time
	EndedAt        *time.Time
}

// HasResult reports whether an outcome was persisted
func (r *RoundRecord) HasResult() bool {
	return len(r.RawResult) > 0
}
