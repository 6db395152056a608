package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"casino/domain/entities"
	"casino/domain/fairness"
	"casino/domain/games"
	"casino/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diceWithDraw(t *testing.T, raw ...int) games.Rules {
	t.Helper()
	dice, err := games.NewDiceTotal(games.DefaultDiceTotalConfig())
	require.NoError(t, err)
	return fixedDraw{Rules: dice, raw: raw}
}

func bet(accountID uuid.UUID, gameID, room, betType, amount string) BetRequest {
	return BetRequest{
		AccountID: accountID,
		GameID:    gameID,
		Room:      room,
		BetTypeID: betType,
		Amount:    money(amount),
	}
}

// playRound closes betting, computes the result and ends the round
func playRound(t *testing.T, env *testEnv, round *entities.Round) error {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.engine.CloseBetting(ctx, round))
	_, err := env.engine.ComputeResult(ctx, round)
	require.NoError(t, err)
	return env.engine.EndRound(ctx, round)
}

func TestRoundEngine_EndToEndDiceRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, diceWithDraw(t, 5, 5, 3))
	player := env.fund("10000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	assert.Equal(t, entities.RoundStateBetting, round.State())

	placed, err := env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	require.NoError(t, err)
	assert.NotZero(t, placed.ID)
	assert.True(t, env.balance(t, player).Equal(money("9000")))

	require.NoError(t, env.engine.CloseBetting(ctx, round))
	result, err := env.engine.ComputeResult(ctx, round)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5, 3}, result.RawValues)
	assert.Equal(t, "TAI (5 + 5 + 3 = 13)", result.Display)

	require.NoError(t, env.engine.EndRound(ctx, round))
	assert.True(t, round.IsEnded())
	assert.Nil(t, env.engine.ActiveRound(games.DiceTotalGameID, ""))

	assert.True(t, env.balance(t, player).Equal(money("10980")), "got %s", env.balance(t, player))

	txs := env.store.Transactions(player)
	require.Len(t, txs, 2)
	assert.Equal(t, entities.TransactionTypeBet, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(money("-1000")))
	assert.Equal(t, entities.TransactionTypeWin, txs[1].Type)
	assert.True(t, txs[1].Amount.Equal(money("1980")))
	require.NotNil(t, txs[1].RoundID)
	assert.Equal(t, round.ID, *txs[1].RoundID)

	stored, ok := env.store.Bet(placed.ID)
	require.True(t, ok)
	assert.True(t, stored.Settled)
	assert.True(t, stored.Won)
	assert.True(t, stored.Payout.Equal(money("1980")))

	record, ok := env.store.Round(round.ID)
	require.True(t, ok)
	assert.Equal(t, entities.RoundStateEnded, record.State)
	assert.Equal(t, []int{5, 5, 3}, record.RawResult)

	pool, ok := env.store.Pool(games.DiceTotalGameID)
	require.True(t, ok)
	assert.True(t, pool.Equal(money("10002")), "got %s", pool)

	account, _ := env.store.Account(player)
	assert.True(t, account.TotalWagered.Equal(money("1000")))
	assert.True(t, account.TotalWon.Equal(money("980")))
	assert.True(t, account.NetProfit().Equal(money("980")))
	assert.Equal(t, int64(1), account.GamesPlayed)

	history, ok := env.engine.History(games.DiceTotalGameID)
	require.True(t, ok)
	stats := history.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.TaiCount)
}

func TestRoundEngine_PublishesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, diceWithDraw(t, 1, 2, 3))
	player := env.fund("5000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	_, err = env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	require.NoError(t, err)
	require.NoError(t, playRound(t, env, round))

	started := env.recorder.OfType(events.EventTypeRoundStarted)
	require.Len(t, started, 1)
	startedEvent := started[0].(events.RoundStartedEvent)
	assert.Equal(t, round.ID, startedEvent.RoundID)
	assert.Equal(t, round.ServerSeedHash, startedEvent.ServerSeedHash)
	assert.Equal(t, startedEvent.StartedAt.Add(50*time.Second), startedEvent.BettingEndsAt)

	placed := env.recorder.OfType(events.EventTypeBetPlaced)
	require.Len(t, placed, 1)
	assert.Equal(t, player, placed[0].(events.BetPlacedEvent).AccountID)

	revealed := env.recorder.OfType(events.EventTypeRoundResult)
	require.Len(t, revealed, 1)
	resultEvent := revealed[0].(events.RoundResultEvent)
	assert.Equal(t, round.ServerSeed, resultEvent.ServerSeed)
	assert.True(t, fairness.Verify(resultEvent.ServerSeed, resultEvent.ServerSeedHash))
	assert.Equal(t, []string{games.BetXiu}, resultEvent.WinningBets)

	ended := env.recorder.OfType(events.EventTypeRoundEnded)
	require.Len(t, ended, 1)
	endedEvent := ended[0].(events.RoundEndedEvent)
	assert.Equal(t, 1, endedEvent.BetCount)
	assert.True(t, endedEvent.TotalWagered.Equal(money("1000")))
	assert.True(t, endedEvent.TotalPaid.IsZero())

	account, _ := env.store.Account(player)
	assert.True(t, account.Balance.Equal(money("4000")))
	assert.True(t, account.TotalLost.Equal(money("1000")))
}

func TestRoundEngine_StartRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	t.Run("returns the live round of a timeline", func(t *testing.T) {
		first, err := env.engine.StartRound(ctx, games.CategoryMatchGameID, "")
		require.NoError(t, err)
		second, err := env.engine.StartRound(ctx, games.CategoryMatchGameID, "")
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("rooms are separate timelines", func(t *testing.T) {
		room1, err := env.engine.StartRound(ctx, games.DiscCountGameID, "room1")
		require.NoError(t, err)
		vip, err := env.engine.StartRound(ctx, games.DiscCountGameID, "vip")
		require.NoError(t, err)
		assert.NotEqual(t, room1.ID, vip.ID)
		assert.Len(t, env.engine.ActiveRounds(), 3)
	})

	t.Run("unknown game and room are rejected", func(t *testing.T) {
		_, err := env.engine.StartRound(ctx, "roulette", "")
		code, ok := entities.RejectionCodeOf(err)
		require.True(t, ok)
		assert.Equal(t, entities.RejectUnknownGame, code)

		_, err = env.engine.StartRound(ctx, games.DiscCountGameID, "room9")
		code, ok = entities.RejectionCodeOf(err)
		require.True(t, ok)
		assert.Equal(t, entities.RejectUnknownRoom, code)
	})

	t.Run("seed stays secret until the result", func(t *testing.T) {
		round := env.engine.ActiveRound(games.CategoryMatchGameID, "")
		require.NotNil(t, round)
		assert.Len(t, round.ServerSeed, 64)
		assert.Equal(t, fairness.Commit(round.ServerSeed), round.ServerSeedHash)
		for _, evt := range env.recorder.OfType(events.EventTypeRoundResult) {
			assert.NotEqual(t, round.ServerSeed, evt.(events.RoundResultEvent).ServerSeed)
		}
	})
}

func TestRoundEngine_CurrentRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, ok := env.engine.CurrentRound(games.DiceTotalGameID, "")
	assert.False(t, ok)

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)

	snapshot, ok := env.engine.CurrentRound(games.DiceTotalGameID, "")
	require.True(t, ok)
	assert.Equal(t, round.ID, snapshot.ID)
	assert.Equal(t, entities.RoundStateBetting, snapshot.State)
	assert.Equal(t, round.ServerSeedHash, snapshot.ServerSeedHash)
	assert.Equal(t, 50*time.Second, snapshot.BettingEndsAt.Sub(snapshot.StartedAt))

	require.NoError(t, env.engine.CloseBetting(ctx, round))
	snapshot, ok = env.engine.CurrentRound(games.DiceTotalGameID, "")
	require.True(t, ok)
	assert.Equal(t, entities.RoundStateCalculating, snapshot.State)

	_, ok = env.engine.CurrentRound(games.DiscCountGameID, "room1")
	assert.False(t, ok)
}

func TestRoundEngine_SubmitBetRejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	_, err = env.engine.StartRound(ctx, games.DiscCountGameID, "room1")
	require.NoError(t, err)

	rich := env.fund("100000000")
	poor := env.fund("500")

	tests := []struct {
		name string
		req  BetRequest
		code entities.RejectionCode
	}{
		{"unknown game", bet(rich, "roulette", "", "red", "1000"), entities.RejectUnknownGame},
		{"no live round", bet(rich, games.CategoryMatchGameID, "", "cua", "1000"), entities.RejectRoundNotActive},
		{"unknown bet type", bet(rich, games.DiceTotalGameID, "", "triple", "1000"), entities.RejectUnknownBetType},
		{"not seated", bet(rich, games.DiscCountGameID, "room1", "chan", "1000"), entities.RejectNotInRoom},
		{"zero amount", bet(rich, games.DiceTotalGameID, "", games.BetTai, "0"), entities.RejectInvalidAmount},
		{"fractional cents", bet(rich, games.DiceTotalGameID, "", games.BetTai, "1000.001"), entities.RejectInvalidAmount},
		{"below minimum", bet(rich, games.DiceTotalGameID, "", games.BetTai, "999.99"), entities.RejectBelowMinBet},
		{"above maximum", bet(rich, games.DiceTotalGameID, "", games.BetTai, "10000000.01"), entities.RejectAboveMaxBet},
		{"insufficient balance", bet(poor, games.DiceTotalGameID, "", games.BetXiu, "1000"), entities.RejectInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.SubmitBet(ctx, tt.req)

			var validationErr *entities.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.code, validationErr.Code)
			assert.NotEmpty(t, validationErr.Message)
		})
	}

	account, _ := env.store.Account(rich)
	assert.True(t, account.Balance.Equal(money("100000000")), "rejected bets must not move money")
	assert.Empty(t, env.store.Transactions(rich))
}

func TestRoundEngine_BettingClosed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	player := env.fund("10000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	require.NoError(t, env.engine.CloseBetting(ctx, round))

	_, err = env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	code, ok := entities.RejectionCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, entities.RejectBettingClosed, code)

	err = env.engine.CloseBetting(ctx, round)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestRoundEngine_Cooldown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	player := env.fund("10000")

	_, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)

	_, err = env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	require.NoError(t, err)

	env.clock.Advance(999 * time.Millisecond)
	_, err = env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	code, ok := entities.RejectionCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, entities.RejectCooldown, code)

	env.clock.Advance(time.Millisecond)
	_, err = env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetXiu, "1000"))
	require.NoError(t, err)

	t.Run("rejected bet does not start a cooldown", func(t *testing.T) {
		other := env.fund("10000")
		_, err := env.engine.SubmitBet(ctx, bet(other, games.DiceTotalGameID, "", games.BetTai, "1"))
		require.Error(t, err)

		_, err = env.engine.SubmitBet(ctx, bet(other, games.DiceTotalGameID, "", games.BetTai, "1000"))
		require.NoError(t, err)
	})

	t.Run("ending the session clears the cooldown", func(t *testing.T) {
		env.engine.EndSession(ctx, player)
		_, err := env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
		require.NoError(t, err)
	})
}

func TestRoundEngine_EndSessionReleasesAccountState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	players := make([]uuid.UUID, 0, 20)
	for i := 0; i < 20; i++ {
		player := env.fund("200000")
		_, err := env.ledger.Deposit(ctx, player, money("10"), Entry{})
		require.NoError(t, err)
		require.NoError(t, env.rooms.Join(ctx, player, "room1"))
		players = append(players, player)
	}
	assert.Equal(t, 20, env.ledger.Locks().Len())

	for _, player := range players {
		env.engine.EndSession(ctx, player)
	}
	assert.Zero(t, env.ledger.Locks().Len())
	assert.Empty(t, env.rooms.Players("room1"))
}

func TestRoundEngine_RoomBets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	player := env.fund("200000")

	_, err := env.engine.StartRound(ctx, games.DiscCountGameID, "room1")
	require.NoError(t, err)
	require.NoError(t, env.rooms.Join(ctx, player, "room1"))

	t.Run("room limits apply", func(t *testing.T) {
		_, err := env.engine.SubmitBet(ctx, bet(player, games.DiscCountGameID, "room1", "chan", "100000.01"))
		code, ok := entities.RejectionCodeOf(err)
		require.True(t, ok)
		assert.Equal(t, entities.RejectAboveMaxBet, code)
	})

	t.Run("seated player can bet", func(t *testing.T) {
		placed, err := env.engine.SubmitBet(ctx, bet(player, games.DiscCountGameID, "room1", "4do", "1000"))
		require.NoError(t, err)
		assert.Equal(t, "4do", placed.BetTypeID)
	})

	t.Run("leaving the room blocks further bets", func(t *testing.T) {
		env.clock.Advance(time.Second)
		env.engine.EndSession(ctx, player)
		_, err := env.engine.SubmitBet(ctx, bet(player, games.DiscCountGameID, "room1", "le", "1000"))
		code, ok := entities.RejectionCodeOf(err)
		require.True(t, ok)
		assert.Equal(t, entities.RejectNotInRoom, code)
	})
}

func TestRoundEngine_ConcurrentBetsAcrossAccounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, diceWithDraw(t, 6, 6, 1))

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)

	players := make([]uuid.UUID, 30)
	for i := range players {
		players[i] = env.fund("5000")
	}

	var wg sync.WaitGroup
	for i, player := range players {
		wg.Add(1)
		go func(i int, player uuid.UUID) {
			defer wg.Done()
			side := games.BetTai
			if i%2 == 1 {
				side = games.BetXiu
			}
			_, err := env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", side, "2000"))
			assert.NoError(t, err)
		}(i, player)
	}
	wg.Wait()

	require.Len(t, round.Bets(), 30)
	require.NoError(t, playRound(t, env, round))

	for i, player := range players {
		expected := money("3000")
		if i%2 == 0 {
			expected = money("6960")
		}
		assert.True(t, env.balance(t, player).Equal(expected), "player %d has %s", i, env.balance(t, player))
	}

	pool, _ := env.store.Pool(games.DiceTotalGameID)
	assert.True(t, pool.Equal(money("10120")), "got %s", pool)
}

func TestRoundEngine_TripleHouseWins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, diceWithDraw(t, 4, 4, 4))
	tai, xiu := env.fund("5000"), env.fund("5000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	_, err = env.engine.SubmitBet(ctx, bet(tai, games.DiceTotalGameID, "", games.BetTai, "1000"))
	require.NoError(t, err)
	_, err = env.engine.SubmitBet(ctx, bet(xiu, games.DiceTotalGameID, "", games.BetXiu, "1000"))
	require.NoError(t, err)
	require.NoError(t, playRound(t, env, round))

	assert.True(t, env.balance(t, tai).Equal(money("4000")))
	assert.True(t, env.balance(t, xiu).Equal(money("4000")))
	assert.Equal(t, "BA 4 (4 + 4 + 4 = 12) - NHA CAI THANG", round.Result().Display)
}

func TestRoundEngine_SettlementFailureAndResettle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, diceWithDraw(t, 5, 5, 3))
	player := env.fund("10000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	placed, err := env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	require.NoError(t, err)

	require.NoError(t, env.engine.CloseBetting(ctx, round))
	_, err = env.engine.ComputeResult(ctx, round)
	require.NoError(t, err)

	env.store.FailOn("bets.MarkSettled", errors.New("lock timeout"))
	err = env.engine.EndRound(ctx, round)

	var settlementErr *entities.SettlementError
	require.ErrorAs(t, err, &settlementErr)
	assert.Equal(t, round.ID, settlementErr.RoundID)
	assert.Equal(t, []int64{placed.ID}, settlementErr.Failed)
	assert.ErrorIs(t, err, entities.ErrPersistence)
	assert.True(t, round.IsEnded())
	assert.True(t, env.balance(t, player).Equal(money("9000")))

	env.store.ClearFailures()
	summary, err := env.engine.ResettleRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Settled)
	assert.True(t, summary.Paid.Equal(money("1980")))
	assert.True(t, env.balance(t, player).Equal(money("10980")))

	t.Run("settling again changes nothing", func(t *testing.T) {
		summary, err := env.engine.ResettleRound(ctx, round.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Settled)
		assert.Equal(t, 1, summary.Skipped)
		assert.True(t, env.balance(t, player).Equal(money("10980")))
		assert.Len(t, env.store.Transactions(player), 2)
	})
}

func TestRoundEngine_ResettleRefusesLiveRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)

	_, err = env.engine.ResettleRound(ctx, round.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	_, err = env.engine.ResettleRound(ctx, 999)
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestRoundEngine_ComputeFailureForcesEnd(t *testing.T) {
	ctx := context.Background()
	dice, err := games.NewDiceTotal(games.DefaultDiceTotalConfig())
	require.NoError(t, err)
	env := newTestEnv(t, nil, fixedDraw{Rules: dice, err: errors.New("entropy exhausted")})

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	require.NoError(t, env.engine.CloseBetting(ctx, round))

	_, err = env.engine.ComputeResult(ctx, round)
	require.Error(t, err)
	assert.True(t, round.IsEnded())
	assert.Nil(t, env.engine.ActiveRound(games.DiceTotalGameID, ""))

	record, ok := env.store.Round(round.ID)
	require.True(t, ok)
	assert.Equal(t, entities.RoundStateEnded, record.State)

	err = env.engine.EndRound(ctx, round)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestRoundEngine_ComputeFailureRefundsBets(t *testing.T) {
	ctx := context.Background()
	dice, err := games.NewDiceTotal(games.DefaultDiceTotalConfig())
	require.NoError(t, err)
	env := newTestEnv(t, nil, fixedDraw{Rules: dice, err: errors.New("entropy exhausted")})
	player := env.fund("10000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	placed, err := env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	require.NoError(t, err)
	require.NoError(t, env.engine.CloseBetting(ctx, round))

	_, err = env.engine.ComputeResult(ctx, round)
	require.Error(t, err)
	assert.True(t, round.IsEnded())
	assert.True(t, env.balance(t, player).Equal(money("10000")))

	stored, ok := env.store.Bet(placed.ID)
	require.True(t, ok)
	assert.True(t, stored.Settled)
	assert.False(t, stored.Won)

	txs := env.store.Transactions(player)
	require.Len(t, txs, 2)
	assert.Equal(t, entities.TransactionTypeBet, txs[0].Type)
	assert.Equal(t, entities.TransactionTypeRefund, txs[1].Type)

	recovered, err := env.engine.RecoverUnfinished(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestRoundEngine_RecoverAfterShutdown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	player := env.fund("10000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	_, err = env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	require.NoError(t, err)

	require.NoError(t, env.engine.Shutdown(ctx))
	record, ok := env.store.Round(round.ID)
	require.True(t, ok)
	assert.Equal(t, entities.RoundStateEnded, record.State)
	assert.True(t, env.balance(t, player).Equal(money("9000")))

	restarted := NewRoundEngine(env.store, env.ledger, env.jackpot, env.engine.Registry(), env.rooms, nil, DefaultEngineConfig())
	recovered, err := restarted.RecoverUnfinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.True(t, env.balance(t, player).Equal(money("10000")))

	txs := env.store.Transactions(player)
	require.Len(t, txs, 2)
	assert.Equal(t, entities.TransactionTypeRefund, txs[1].Type)

	recovered, err = restarted.RecoverUnfinished(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestRoundEngine_ShutdownAndRefund(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	player := env.fund("10000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	_, err = env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	require.NoError(t, err)

	require.NoError(t, env.engine.Shutdown(ctx))
	assert.True(t, round.IsEnded())
	assert.Empty(t, env.engine.ActiveRounds())
	assert.True(t, env.balance(t, player).Equal(money("9000")), "shutdown does not settle")

	summary, err := env.engine.ResettleRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Refunded)
	assert.True(t, env.balance(t, player).Equal(money("10000")))

	txs := env.store.Transactions(player)
	require.Len(t, txs, 2)
	assert.Equal(t, entities.TransactionTypeRefund, txs[1].Type)
}

func TestRoundEngine_RecoverUnfinished(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	player := env.fund("10000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	_, err = env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetXiu, "1000"))
	require.NoError(t, err)

	// a fresh engine over the same store sees the round as left over
	restarted := NewRoundEngine(env.store, env.ledger, env.jackpot, env.engine.Registry(), env.rooms, nil, DefaultEngineConfig())
	recovered, err := restarted.RecoverUnfinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	record, ok := env.store.Round(round.ID)
	require.True(t, ok)
	assert.Equal(t, entities.RoundStateEnded, record.State)
	assert.True(t, env.balance(t, player).Equal(money("10000")))

	recovered, err = restarted.RecoverUnfinished(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestRoundEngine_VerifyRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	round, err := env.engine.StartRound(ctx, games.CategoryMatchGameID, "")
	require.NoError(t, err)

	_, err = env.engine.VerifyRound(ctx, round.ID)
	code, ok := entities.RejectionCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, entities.RejectRoundNotSettled, code)

	require.NoError(t, playRound(t, env, round))

	verification, err := env.engine.VerifyRound(ctx, round.ID)
	require.NoError(t, err)
	assert.True(t, verification.Valid())
	assert.Equal(t, round.Result().RawValues, verification.RecomputedValues)
	assert.Equal(t, round.Result().Display, verification.Display)

	_, err = env.engine.VerifyRound(ctx, 12345)
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestRoundEngine_JackpotPaidAtRoundEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedRoller{roll: 0, pick: 0}, diceWithDraw(t, 1, 1, 2))
	env.store.SetPool(games.DiceTotalGameID, money("300000"))
	player := env.fund("5000")

	round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
	require.NoError(t, err)
	_, err = env.engine.SubmitBet(ctx, bet(player, games.DiceTotalGameID, "", games.BetTai, "1000"))
	require.NoError(t, err)
	require.NoError(t, playRound(t, env, round))

	// lost the bet, won the pool including its own contribution
	expected := money("4000").Add(money("300002"))
	assert.True(t, env.balance(t, player).Equal(expected), "got %s", env.balance(t, player))

	pool, _ := env.store.Pool(games.DiceTotalGameID)
	assert.True(t, pool.Equal(money("10000")))
	require.Len(t, env.store.Wins(), 1)
}

func TestRoundEngine_WarmHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, diceWithDraw(t, 6, 5, 4))

	for i := 0; i < 3; i++ {
		round, err := env.engine.StartRound(ctx, games.DiceTotalGameID, "")
		require.NoError(t, err)
		require.NoError(t, playRound(t, env, round))
	}

	restarted := NewRoundEngine(env.store, env.ledger, env.jackpot, env.engine.Registry(), env.rooms, nil, DefaultEngineConfig())
	require.NoError(t, restarted.WarmHistory(ctx))

	history, ok := restarted.History(games.DiceTotalGameID)
	require.True(t, ok)
	assert.Equal(t, 3, history.Len())
	assert.Equal(t, 3, history.Stats().TaiCount)

	_, ok = restarted.History(games.DiscCountGameID)
	assert.False(t, ok)
}
