package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"casino/domain/entities"
	"casino/domain/interfaces"
	"casino/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps every table in memory and hands out units of work over
// it. Writes are buffered per unit of work and applied on commit; row locks
// block until the holder commits or rolls back, like SELECT ... FOR UPDATE.
type MemoryStore struct {
	mu   sync.Mutex
	cond *sync.Cond

	accounts     map[uuid.UUID]entities.Account
	transactions []entities.Transaction
	rounds       map[int64]entities.RoundRecord
	bets         map[int64]entities.Bet
	pools        map[string]entities.JackpotPool
	wins         []entities.JackpotWin

	nextTxID    int64
	nextRoundID int64
	nextBetID   int64
	nextWinID   int64

	locks    map[string]*memoryUnitOfWork
	failures map[string]error
	emitter  events.Emitter
	now      func() time.Time
}

// NewMemoryStore creates an empty store. Committed events go to emitter,
// which may be nil.
func NewMemoryStore(emitter events.Emitter) *MemoryStore {
	s := &MemoryStore{
		accounts: make(map[uuid.UUID]entities.Account),
		rounds:   make(map[int64]entities.RoundRecord),
		bets:     make(map[int64]entities.Bet),
		pools:    make(map[string]entities.JackpotPool),
		locks:    make(map[string]*memoryUnitOfWork),
		failures: make(map[string]error),
		emitter:  emitter,
		now:      time.Now,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetClock replaces the time source used for row timestamps
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create implements interfaces.UnitOfWorkFactory
func (s *MemoryStore) Create() interfaces.UnitOfWork {
	return &memoryUnitOfWork{store: s}
}

// FailOn makes every later call of op return err until cleared. Ops are
// "begin", "commit" and "<table>.<method>" such as "bets.MarkSettled".
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// ClearFailures removes every injected failure
func (s *MemoryStore) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]error)
}

func (s *MemoryStore) fail(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[op]
}

// SeedAccount stores an account with balance directly
func (s *MemoryStore) SeedAccount(id uuid.UUID, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.accounts[id] = entities.Account{ID: id, Balance: balance, CreatedAt: now, UpdatedAt: now}
}

// Account returns the committed account row
func (s *MemoryStore) Account(id uuid.UUID) (entities.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	return account, ok
}

// Transactions returns the committed ledger entries of an account in order
func (s *MemoryStore) Transactions(accountID uuid.UUID) []entities.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entities.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out
}

// Bet returns the committed bet row
func (s *MemoryStore) Bet(id int64) (entities.Bet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.bets[id]
	return bet, ok
}

// Round returns the committed round row
func (s *MemoryStore) Round(id int64) (entities.RoundRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[id]
	return round, ok
}

// Pool returns the committed pool amount of gameID
func (s *MemoryStore) Pool(gameID string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, ok := s.pools[gameID]
	return pool.PoolAmount, ok
}

// SetPool stores a pool amount directly
func (s *MemoryStore) SetPool(gameID string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[gameID] = entities.JackpotPool{GameID: gameID, PoolAmount: amount, UpdatedAt: s.now()}
}

// Wins returns every committed jackpot win in order
func (s *MemoryStore) Wins() []entities.JackpotWin {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.JackpotWin, len(s.wins))
	copy(out, s.wins)
	return out
}

// memoryUnitOfWork buffers the writes of one transaction
type memoryUnitOfWork struct {
	store  *MemoryStore
	ctx    context.Context
	active bool
	bus    *events.TransactionalBus

	accounts     map[uuid.UUID]entities.Account
	rounds       map[int64]entities.RoundRecord
	bets         map[int64]entities.Bet
	pools        map[string]entities.JackpotPool
	transactions []entities.Transaction
	wins         []entities.JackpotWin
	purgeBefore  *time.Time
	held         []string
}

func (u *memoryUnitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	if err := u.store.fail("begin"); err != nil {
		return err
	}

	u.ctx = ctx
	u.active = true
	u.bus = events.NewTransactionalBus(u.store.emitter)
	u.accounts = make(map[uuid.UUID]entities.Account)
	u.rounds = make(map[int64]entities.RoundRecord)
	u.bets = make(map[int64]entities.Bet)
	u.pools = make(map[string]entities.JackpotPool)
	return nil
}

func (u *memoryUnitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}
	if err := u.store.fail("commit"); err != nil {
		return err
	}

	s := u.store
	s.mu.Lock()
	if u.purgeBefore != nil {
		kept := s.transactions[:0]
		for _, tx := range s.transactions {
			if !tx.CreatedAt.Before(*u.purgeBefore) {
				kept = append(kept, tx)
			}
		}
		s.transactions = kept
	}
	for id, account := range u.accounts {
		s.accounts[id] = account
	}
	for id, round := range u.rounds {
		s.rounds[id] = round
	}
	for id, bet := range u.bets {
		s.bets[id] = bet
	}
	for id, pool := range u.pools {
		s.pools[id] = pool
	}
	s.transactions = append(s.transactions, u.transactions...)
	s.wins = append(s.wins, u.wins...)
	u.releaseLocked()
	s.mu.Unlock()

	u.active = false
	u.bus.Flush(u.ctx)
	return nil
}

func (u *memoryUnitOfWork) Rollback() error {
	if !u.active {
		return nil
	}
	u.store.mu.Lock()
	u.releaseLocked()
	u.store.mu.Unlock()

	u.active = false
	u.bus.Discard()
	return nil
}

// releaseLocked drops every row lock; the store mutex must be held
func (u *memoryUnitOfWork) releaseLocked() {
	for _, key := range u.held {
		if u.store.locks[key] == u {
			delete(u.store.locks, key)
		}
	}
	u.held = nil
	u.store.cond.Broadcast()
}

// lockRow blocks until this unit of work holds key; the store mutex must be held
func (u *memoryUnitOfWork) lockRow(key string) {
	s := u.store
	for {
		holder := s.locks[key]
		if holder == nil {
			s.locks[key] = u
			u.held = append(u.held, key)
			return
		}
		if holder == u {
			return
		}
		s.cond.Wait()
	}
}

func (u *memoryUnitOfWork) mustBeActive() {
	if !u.active {
		panic("transaction not started - call Begin() first")
	}
}

func (u *memoryUnitOfWork) AccountRepository() interfaces.AccountRepository {
	u.mustBeActive()
	return memoryAccounts{u}
}

func (u *memoryUnitOfWork) TransactionRepository() interfaces.TransactionRepository {
	u.mustBeActive()
	return memoryTransactions{u}
}

func (u *memoryUnitOfWork) RoundRepository() interfaces.RoundRepository {
	u.mustBeActive()
	return memoryRounds{u}
}

func (u *memoryUnitOfWork) BetRepository() interfaces.BetRepository {
	u.mustBeActive()
	return memoryBets{u}
}

func (u *memoryUnitOfWork) JackpotRepository() interfaces.JackpotRepository {
	u.mustBeActive()
	return memoryJackpots{u}
}

func (u *memoryUnitOfWork) EventBus() interfaces.EventPublisher {
	u.mustBeActive()
	return u.bus
}

// account returns the row as this unit of work sees it; store mutex held
func (u *memoryUnitOfWork) account(id uuid.UUID) (entities.Account, bool) {
	if account, ok := u.accounts[id]; ok {
		return account, true
	}
	account, ok := u.store.accounts[id]
	return account, ok
}

func (u *memoryUnitOfWork) bet(id int64) (entities.Bet, bool) {
	if bet, ok := u.bets[id]; ok {
		return bet, true
	}
	bet, ok := u.store.bets[id]
	return bet, ok
}

func (u *memoryUnitOfWork) pool(gameID string) (entities.JackpotPool, bool) {
	if pool, ok := u.pools[gameID]; ok {
		return pool, true
	}
	pool, ok := u.store.pools[gameID]
	return pool, ok
}

func (u *memoryUnitOfWork) round(id int64) (entities.RoundRecord, bool) {
	if round, ok := u.rounds[id]; ok {
		return round, true
	}
	round, ok := u.store.rounds[id]
	return round, ok
}

type memoryAccounts struct{ u *memoryUnitOfWork }

func (r memoryAccounts) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	if err := r.u.store.fail("accounts.GetByID"); err != nil {
		return nil, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	account, ok := r.u.account(id)
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (r memoryAccounts) GetOrCreateForUpdate(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	if err := r.u.store.fail("accounts.GetOrCreateForUpdate"); err != nil {
		return nil, err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	r.u.lockRow("account:" + id.String())
	account, ok := r.u.account(id)
	if !ok {
		now := s.now()
		account = entities.Account{ID: id, CreatedAt: now, UpdatedAt: now}
		r.u.accounts[id] = account
	}
	return &account, nil
}

func (r memoryAccounts) UpdateBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal) error {
	if err := r.u.store.fail("accounts.UpdateBalance"); err != nil {
		return err
	}
	if newBalance.IsNegative() {
		return fmt.Errorf("balance cannot be negative")
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := r.u.account(id)
	if !ok {
		return fmt.Errorf("account %s not found", id)
	}
	account.Balance = newBalance
	account.UpdatedAt = s.now()
	r.u.accounts[id] = account
	return nil
}

func (r memoryAccounts) AddAggregates(ctx context.Context, id uuid.UUID, delta entities.AccountAggregates) error {
	if err := r.u.store.fail("accounts.AddAggregates"); err != nil {
		return err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := r.u.account(id)
	if !ok {
		return fmt.Errorf("account %s not found", id)
	}
	account.TotalWagered = account.TotalWagered.Add(delta.Wagered)
	account.TotalWon = account.TotalWon.Add(delta.Won)
	account.TotalLost = account.TotalLost.Add(delta.Lost)
	account.GamesPlayed += delta.GamesPlayed
	r.u.accounts[id] = account
	return nil
}

type memoryTransactions struct{ u *memoryUnitOfWork }

func (r memoryTransactions) Record(ctx context.Context, tx *entities.Transaction) error {
	if err := r.u.store.fail("transactions.Record"); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTxID++
	tx.ID = s.nextTxID
	tx.CreatedAt = s.now()
	r.u.transactions = append(r.u.transactions, *tx)
	return nil
}

// visible returns committed plus pending entries; store mutex held
func (r memoryTransactions) visible() []entities.Transaction {
	all := make([]entities.Transaction, 0, len(r.u.store.transactions)+len(r.u.transactions))
	all = append(all, r.u.store.transactions...)
	return append(all, r.u.transactions...)
}

func (r memoryTransactions) GetByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*entities.Transaction, error) {
	if err := r.u.store.fail("transactions.GetByAccount"); err != nil {
		return nil, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	var out []*entities.Transaction
	all := r.visible()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].AccountID != accountID {
			continue
		}
		tx := all[i]
		out = append(out, &tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memoryTransactions) GetByRound(ctx context.Context, roundID int64) ([]*entities.Transaction, error) {
	if err := r.u.store.fail("transactions.GetByRound"); err != nil {
		return nil, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	var out []*entities.Transaction
	for _, tx := range r.visible() {
		if tx.RoundID != nil && *tx.RoundID == roundID {
			tx := tx
			out = append(out, &tx)
		}
	}
	return out, nil
}

func (r memoryTransactions) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if err := r.u.store.fail("transactions.CountByAccount"); err != nil {
		return 0, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	var count int64
	for _, tx := range r.visible() {
		if tx.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (r memoryTransactions) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := r.u.store.fail("transactions.DeleteOlderThan"); err != nil {
		return 0, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	var count int64
	for _, tx := range r.u.store.transactions {
		if tx.CreatedAt.Before(cutoff) {
			count++
		}
	}
	r.u.purgeBefore = &cutoff
	return count, nil
}

type memoryRounds struct{ u *memoryUnitOfWork }

func recordOf(round *entities.Round) entities.RoundRecord {
	record := entities.RoundRecord{
		ID:             round.ID,
		GameID:         round.GameID,
		Room:           round.Room,
		ServerSeed:     round.ServerSeed,
		ServerSeedHash: round.ServerSeedHash,
		State:          round.State(),
		StartedAt:      round.StartedAt,
		EndedAt:        round.EndedAt(),
	}
	if result := round.Result(); result != nil {
		record.RawResult = append([]int(nil), result.RawValues...)
		record.Display = result.Display
	}
	return record
}

func (r memoryRounds) Create(ctx context.Context, round *entities.Round) error {
	if err := r.u.store.fail("rounds.Create"); err != nil {
		return err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRoundID++
	round.ID = s.nextRoundID
	r.u.rounds[round.ID] = recordOf(round)
	return nil
}

func (r memoryRounds) Update(ctx context.Context, round *entities.Round) error {
	if err := r.u.store.fail("rounds.Update"); err != nil {
		return err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := r.u.round(round.ID)
	if !ok {
		return fmt.Errorf("round %d not found", round.ID)
	}
	record := recordOf(round)
	if !record.HasResult() {
		record.RawResult = existing.RawResult
		record.Display = existing.Display
	}
	r.u.rounds[round.ID] = record
	return nil
}

func (r memoryRounds) GetByID(ctx context.Context, id int64) (*entities.RoundRecord, error) {
	if err := r.u.store.fail("rounds.GetByID"); err != nil {
		return nil, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	record, ok := r.u.round(id)
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// sortedRounds returns the visible rounds by id; store mutex held
func (r memoryRounds) sortedRounds() []entities.RoundRecord {
	byID := make(map[int64]entities.RoundRecord, len(r.u.store.rounds))
	for id, round := range r.u.store.rounds {
		byID[id] = round
	}
	for id, round := range r.u.rounds {
		byID[id] = round
	}
	out := make([]entities.RoundRecord, 0, len(byID))
	for _, round := range byID {
		out = append(out, round)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memoryRounds) GetRecent(ctx context.Context, gameID, room string, limit int) ([]*entities.RoundRecord, error) {
	if err := r.u.store.fail("rounds.GetRecent"); err != nil {
		return nil, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	all := r.sortedRounds()
	var out []*entities.RoundRecord
	for i := len(all) - 1; i >= 0; i-- {
		round := all[i]
		if round.GameID != gameID || round.Room != room || round.State != entities.RoundStateEnded || !round.HasResult() {
			continue
		}
		out = append(out, &round)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memoryRounds) GetUnfinished(ctx context.Context) ([]*entities.RoundRecord, error) {
	if err := r.u.store.fail("rounds.GetUnfinished"); err != nil {
		return nil, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	open := make(map[int64]bool)
	for id, bet := range r.u.store.bets {
		if _, staged := r.u.bets[id]; !staged && !bet.Settled {
			open[bet.RoundID] = true
		}
	}
	for _, bet := range r.u.bets {
		if !bet.Settled {
			open[bet.RoundID] = true
		}
	}

	var out []*entities.RoundRecord
	for _, round := range r.sortedRounds() {
		if round.State != entities.RoundStateEnded || open[round.ID] {
			round := round
			out = append(out, &round)
		}
	}
	return out, nil
}

type memoryBets struct{ u *memoryUnitOfWork }

func (r memoryBets) Create(ctx context.Context, bet *entities.Bet) error {
	if err := r.u.store.fail("bets.Create"); err != nil {
		return err
	}
	if err := bet.Validate(); err != nil {
		return fmt.Errorf("invalid bet: %w", err)
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBetID++
	bet.ID = s.nextBetID
	bet.CreatedAt = s.now()
	bet.Settled = false
	r.u.bets[bet.ID] = *bet
	return nil
}

func (r memoryBets) GetByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error) {
	if err := r.u.store.fail("bets.GetByRound"); err != nil {
		return nil, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	byID := make(map[int64]entities.Bet)
	for id, bet := range r.u.store.bets {
		byID[id] = bet
	}
	for id, bet := range r.u.bets {
		byID[id] = bet
	}

	var out []*entities.Bet
	for _, bet := range byID {
		if bet.RoundID == roundID {
			bet := bet
			out = append(out, &bet)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryBets) MarkSettled(ctx context.Context, betID int64, won bool, payout decimal.Decimal) (bool, error) {
	if err := r.u.store.fail("bets.MarkSettled"); err != nil {
		return false, err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	r.u.lockRow(fmt.Sprintf("bet:%d", betID))
	bet, ok := r.u.bet(betID)
	if !ok || bet.Settled {
		return false, nil
	}
	bet.Won = won
	bet.Payout = payout
	bet.Settled = true
	r.u.bets[betID] = bet
	return true, nil
}

type memoryJackpots struct{ u *memoryUnitOfWork }

func (r memoryJackpots) GetPool(ctx context.Context, gameID string) (*entities.JackpotPool, error) {
	if err := r.u.store.fail("jackpots.GetPool"); err != nil {
		return nil, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	pool, ok := r.u.pool(gameID)
	if !ok {
		return nil, nil
	}
	return &pool, nil
}

func (r memoryJackpots) EnsurePool(ctx context.Context, gameID string, seed decimal.Decimal) (*entities.JackpotPool, error) {
	if err := r.u.store.fail("jackpots.EnsurePool"); err != nil {
		return nil, err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := r.u.pool(gameID)
	if !ok {
		pool = entities.JackpotPool{GameID: gameID, PoolAmount: seed, UpdatedAt: s.now()}
		r.u.pools[gameID] = pool
	}
	return &pool, nil
}

func (r memoryJackpots) AddToPool(ctx context.Context, gameID string, amount, seed decimal.Decimal) (decimal.Decimal, error) {
	if err := r.u.store.fail("jackpots.AddToPool"); err != nil {
		return decimal.Zero, err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	r.u.lockRow("pool:" + gameID)
	pool, ok := r.u.pool(gameID)
	if !ok {
		pool = entities.JackpotPool{GameID: gameID, PoolAmount: seed}
	}
	pool.PoolAmount = pool.PoolAmount.Add(amount)
	pool.UpdatedAt = s.now()
	r.u.pools[gameID] = pool
	return pool.PoolAmount, nil
}

func (r memoryJackpots) GetPoolForUpdate(ctx context.Context, gameID string) (*entities.JackpotPool, error) {
	if err := r.u.store.fail("jackpots.GetPoolForUpdate"); err != nil {
		return nil, err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	r.u.lockRow("pool:" + gameID)
	pool, ok := r.u.pool(gameID)
	if !ok {
		return nil, nil
	}
	return &pool, nil
}

func (r memoryJackpots) ResetPool(ctx context.Context, gameID string, seed decimal.Decimal) error {
	if err := r.u.store.fail("jackpots.ResetPool"); err != nil {
		return err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	r.u.lockRow("pool:" + gameID)
	r.u.pools[gameID] = entities.JackpotPool{GameID: gameID, PoolAmount: seed, UpdatedAt: s.now()}
	return nil
}

func (r memoryJackpots) RecordWin(ctx context.Context, win *entities.JackpotWin) error {
	if err := r.u.store.fail("jackpots.RecordWin"); err != nil {
		return err
	}
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextWinID++
	win.ID = s.nextWinID
	win.WonAt = s.now()
	r.u.wins = append(r.u.wins, *win)
	return nil
}

func (r memoryJackpots) GetRecentWins(ctx context.Context, gameID string, limit int) ([]*entities.JackpotWin, error) {
	if err := r.u.store.fail("jackpots.GetRecentWins"); err != nil {
		return nil, err
	}
	r.u.store.mu.Lock()
	defer r.u.store.mu.Unlock()

	all := append(append([]entities.JackpotWin(nil), r.u.store.wins...), r.u.wins...)
	var out []*entities.JackpotWin
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].GameID != gameID {
			continue
		}
		win := all[i]
		out = append(out, &win)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
