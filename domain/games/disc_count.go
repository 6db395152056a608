package games

import (
	"fmt"
	"time"

	"casino/domain/entities"
	"casino/domain/fairness"

	"github.com/shopspring/decimal"
)

const (
	DiscCountGameID = "xocdia"

	BetEven       = "chan"
	BetOdd        = "le"
	BetFourRed    = "4do"
	BetFourWhite  = "4trang"
	BetThreeRed   = "3d1t"
	BetOneRed     = "1d3t"
	BetTwoTwo     = "2d2t"
	discCount     = 4
	discRedMarker = 1
)

// DiscCountConfig tunes the disc-counting game
type DiscCountConfig struct {
	Timing Timing
	Rooms  []Room
}

// DefaultDiscCountConfig returns the stock rooms and cadence
func DefaultDiscCountConfig() DiscCountConfig {
	return DiscCountConfig{
		Timing: Timing{RoundDuration: 60 * time.Second, BettingDuration: 50 * time.Second},
		Rooms: []Room{
			{ID: "room1", DisplayName: "Phòng 1", Limits: Limits{MinBet: decimal.NewFromInt(1_000), MaxBet: decimal.NewFromInt(100_000)}},
			{ID: "room2", DisplayName: "Phòng 2", Limits: Limits{MinBet: decimal.NewFromInt(10_000), MaxBet: decimal.NewFromInt(1_000_000)}},
			{ID: "room3", DisplayName: "Phòng 3", Limits: Limits{MinBet: decimal.NewFromInt(100_000), MaxBet: decimal.NewFromInt(10_000_000)}},
			{ID: "vip", DisplayName: "Phòng VIP", Limits: Limits{MinBet: decimal.NewFromInt(1_000_000), MaxBet: decimal.NewFromInt(100_000_000)}},
		},
	}
}

// discWinners maps a red count to the bet types it pays
var discWinners = map[int][]string{
	0: {BetEven, BetFourWhite},
	1: {BetOdd, BetOneRed},
	2: {BetEven, BetTwoTwo},
	3: {BetOdd, BetThreeRed},
	4: {BetEven, BetFourRed},
}

// DiscCount is the four-disc red/white game played in rooms
type DiscCount struct {
	betCatalogue
	cfg   DiscCountConfig
	rooms map[string]Room
}

// NewDiscCount creates the game from cfg
func NewDiscCount(cfg DiscCountConfig) (*DiscCount, error) {
	if err := cfg.Timing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s timing: %w", DiscCountGameID, err)
	}
	if len(cfg.Rooms) == 0 {
		return nil, fmt.Errorf("%s needs at least one room", DiscCountGameID)
	}

	rooms := make(map[string]Room, len(cfg.Rooms))
	for _, room := range cfg.Rooms {
		if room.Limits.MinBet.GreaterThan(room.Limits.MaxBet) {
			return nil, fmt.Errorf("room %s: min bet exceeds max bet", room.ID)
		}
		rooms[room.ID] = room
	}

	return &DiscCount{
		betCatalogue: newBetCatalogue(
			entities.BetType{ID: BetEven, DisplayName: "Chẵn", Multiplier: mustDecimal("1.0")},
			entities.BetType{ID: BetOdd, DisplayName: "Lẻ", Multiplier: mustDecimal("1.0")},
			entities.BetType{ID: BetFourRed, DisplayName: "4 Đỏ", Multiplier: mustDecimal("10.0")},
			entities.BetType{ID: BetFourWhite, DisplayName: "4 Trắng", Multiplier: mustDecimal("10.0")},
			entities.BetType{ID: BetThreeRed, DisplayName: "3 Đỏ 1 Trắng", Multiplier: mustDecimal("2.45")},
			entities.BetType{ID: BetOneRed, DisplayName: "1 Đỏ 3 Trắng", Multiplier: mustDecimal("2.45")},
			entities.BetType{ID: BetTwoTwo, DisplayName: "2 Đỏ 2 Trắng", Multiplier: mustDecimal("2.0")},
		),
		cfg:   cfg,
		rooms: rooms,
	}, nil
}

func (g *DiscCount) ID() string                     { return DiscCountGameID }
func (g *DiscCount) DisplayName() string            { return "Xóc Đĩa" }
func (g *DiscCount) RoundDuration() time.Duration   { return g.cfg.Timing.RoundDuration }
func (g *DiscCount) BettingDuration() time.Duration { return g.cfg.Timing.BettingDuration }

func (g *DiscCount) Rooms() []Room {
	out := make([]Room, len(g.cfg.Rooms))
	copy(out, g.cfg.Rooms)
	return out
}

// Room looks up a room by id
func (g *DiscCount) Room(id string) (Room, bool) {
	room, ok := g.rooms[id]
	return room, ok
}

func (g *DiscCount) Limits(room string) (Limits, error) {
	r, ok := g.rooms[room]
	if !ok {
		return Limits{}, entities.Reject(entities.RejectUnknownRoom, "room %q does not exist", room)
	}
	return r.Limits, nil
}

// Draw flips four discs; 1 is red
func (g *DiscCount) Draw(seed string, roundID int64) ([]int, error) {
	raw := make([]int, discCount)
	for i := 0; i < discCount; i++ {
		value, err := fairness.Derive(seed, "disc", roundID+int64(i), 2)
		if err != nil {
			return nil, err
		}
		raw[i] = value
	}
	return raw, nil
}

func (g *DiscCount) Evaluate(seed, hash string, raw []int) (*entities.GameResult, error) {
	if len(raw) != discCount {
		return nil, fmt.Errorf("%s expects %d discs, got %d", DiscCountGameID, discCount, len(raw))
	}

	red := 0
	for _, v := range raw {
		switch v {
		case discRedMarker:
			red++
		case 0:
		default:
			return nil, fmt.Errorf("disc value out of range: %d", v)
		}
	}

	result := &entities.GameResult{
		ServerSeed:     seed,
		ServerSeedHash: hash,
		RawValues:      append([]int(nil), raw...),
		WinningBets:    make(map[string]bool),
		Display:        discDisplay(red),
	}
	for _, id := range discWinners[red] {
		result.WinningBets[id] = true
	}
	return result, nil
}

func (g *DiscCount) Payout(bet *entities.Bet, result *entities.GameResult) decimal.Decimal {
	return g.multiplierPayout(bet, result)
}

// RedCount counts red discs in a draw
func RedCount(raw []int) int {
	red := 0
	for _, v := range raw {
		if v == discRedMarker {
			red++
		}
	}
	return red
}

func discDisplay(red int) string {
	switch red {
	case discCount:
		return "4 Do"
	case 0:
		return "4 Trang"
	default:
		return fmt.Sprintf("%d Do %d Trang", red, discCount-red)
	}
}
