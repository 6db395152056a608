package services

import (
	"sync"
	"testing"
	"time"

	"casino/domain/entities"
	"casino/domain/games"
	"casino/domain/testhelpers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func money(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixedRoller always returns the same trigger roll and winner index
type fixedRoller struct {
	roll float64
	pick int
}

func (r fixedRoller) Roll(*entities.Round) float64  { return r.roll }
func (r fixedRoller) Pick(*entities.Round, int) int { return r.pick }

// fixedDraw wraps a game so every round draws raw, or fails with err
type fixedDraw struct {
	games.Rules
	raw []int
	err error
}

func (f fixedDraw) Draw(string, int64) ([]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]int(nil), f.raw...), nil
}

func defaultGames(t *testing.T) []games.Rules {
	t.Helper()

	diceTotal, err := games.NewDiceTotal(games.DefaultDiceTotalConfig())
	require.NoError(t, err)
	discCount, err := games.NewDiscCount(games.DefaultDiscCountConfig())
	require.NoError(t, err)
	categoryMatch, err := games.NewCategoryMatch(games.DefaultCategoryMatchConfig())
	require.NoError(t, err)
	return []games.Rules{diceTotal, discCount, categoryMatch}
}

type testEnv struct {
	store    *testhelpers.MemoryStore
	recorder *testhelpers.EventRecorder
	clock    *testClock
	ledger   *Ledger
	jackpot  *JackpotEngine
	rooms    *RoomManager
	engine   *RoundEngine
}

// newTestEnv wires the services over an in-memory store. Without rules the
// three stock games are registered; every game gets the default jackpot.
func newTestEnv(t *testing.T, roller JackpotRoller, rules ...games.Rules) *testEnv {
	t.Helper()

	if len(rules) == 0 {
		rules = defaultGames(t)
	}
	if roller == nil {
		roller = fixedRoller{roll: 1}
	}

	recorder := &testhelpers.EventRecorder{}
	store := testhelpers.NewMemoryStore(recorder)
	clock := newTestClock()
	store.SetClock(clock.Now)

	registry := games.NewRegistry(rules...)
	ledger := NewLedger(store, nil, nil)
	jackpot := NewJackpotEngine(store, ledger, nil, nil, roller)
	for _, rule := range rules {
		require.NoError(t, jackpot.Register(rule.ID(), entities.DefaultJackpotConfig()))
	}
	rooms := NewRoomManager(ledger, registry, DefaultJoinBalanceMultiplier)

	cfg := DefaultEngineConfig()
	cfg.Now = clock.Now
	engine := NewRoundEngine(store, ledger, jackpot, registry, rooms, nil, cfg)

	return &testEnv{
		store:    store,
		recorder: recorder,
		clock:    clock,
		ledger:   ledger,
		jackpot:  jackpot,
		rooms:    rooms,
		engine:   engine,
	}
}

// fund creates an account holding balance
func (env *testEnv) fund(balance string) uuid.UUID {
	id := uuid.New()
	env.store.SeedAccount(id, money(balance))
	return id
}

func (env *testEnv) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	account, ok := env.store.Account(id)
	require.True(t, ok, "account %s should exist", id)
	return account.Balance
}
