package services

import (
	"math/rand/v2"

	"casino/domain/entities"
	"casino/domain/fairness"
)

// Jackpot roll modes
const (
	RollModeCommitted = "committed"
	RollModeRandom    = "random"
)

// JackpotRoller supplies the trigger roll and winner index for a round
type JackpotRoller interface {
	// Roll returns a value in [0, 1) compared against the trigger chance
	Roll(round *entities.Round) float64
	// Pick returns an index in [0, n)
	Pick(round *entities.Round, n int) int
}

// NewJackpotRoller returns the roller for mode, defaulting to committed rolls
func NewJackpotRoller(mode string) JackpotRoller {
	if mode == RollModeRandom {
		return RandomRoller{}
	}
	return CommittedRoller{}
}

// CommittedRoller derives both values from the round's revealed seed, so a
// jackpot outcome can be recomputed by anyone holding the seed.
type CommittedRoller struct{}

func (CommittedRoller) Roll(round *entities.Round) float64 {
	return fairness.Fraction(round.ServerSeed, "jackpot", round.ID)
}

func (CommittedRoller) Pick(round *entities.Round, n int) int {
	if n <= 1 {
		return 0
	}
	idx, err := fairness.Derive(round.ServerSeed, "jackpot-winner", round.ID, n)
	if err != nil {
		return 0
	}
	return idx
}

// RandomRoller uses the process RNG; outcomes are not verifiable
type RandomRoller struct{}

func (RandomRoller) Roll(*entities.Round) float64 {
	return rand.Float64()
}

func (RandomRoller) Pick(_ *entities.Round, n int) int {
	if n <= 1 {
		return 0
	}
	return rand.IntN(n)
}
