package services

import (
	"context"
	"sort"
	"sync"

	"casino/domain/entities"
	"casino/domain/games"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// DefaultJoinBalanceMultiplier is how many minimum bets an account must hold
// to sit at a table
const DefaultJoinBalanceMultiplier = 10

type balanceChecker interface {
	HasBalance(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) bool
}

type roomEntry struct {
	gameID string
	room   games.Room
}

// RoomManager tracks which table each account sits at. An account is in at
// most one room at a time.
type RoomManager struct {
	balances   balanceChecker
	multiplier decimal.Decimal
	catalogue  map[string]roomEntry
	ordered    []games.Room

	mu         sync.RWMutex
	membership map[uuid.UUID]string
	players    map[string]map[uuid.UUID]struct{}
}

// NewRoomManager collects the rooms of every game in registry
func NewRoomManager(balances balanceChecker, registry *games.Registry, multiplier int64) *RoomManager {
	m := &RoomManager{
		balances:   balances,
		multiplier: decimal.NewFromInt(multiplier),
		catalogue:  make(map[string]roomEntry),
		membership: make(map[uuid.UUID]string),
		players:    make(map[string]map[uuid.UUID]struct{}),
	}

	for _, rules := range registry.All() {
		for _, room := range rules.Rooms() {
			if existing, ok := m.catalogue[room.ID]; ok {
				log.WithFields(log.Fields{
					"room":     room.ID,
					"game_id":  rules.ID(),
					"owned_by": existing.gameID,
				}).Warn("Duplicate room id ignored")
				continue
			}
			m.catalogue[room.ID] = roomEntry{gameID: rules.ID(), room: room}
			m.ordered = append(m.ordered, room)
		}
	}
	return m
}

// Join seats the account at roomID, leaving any previous room. The account
// must hold multiplier times the room's minimum bet.
func (m *RoomManager) Join(ctx context.Context, accountID uuid.UUID, roomID string) error {
	entry, ok := m.catalogue[roomID]
	if !ok {
		return entities.Reject(entities.RejectUnknownRoom, "room %q does not exist", roomID)
	}

	required := entry.room.Limits.MinBet.Mul(m.multiplier)
	if !m.balances.HasBalance(ctx, accountID, required) {
		return entities.Reject(entities.RejectInsufficientBalance, "joining %s requires a balance of at least %s", entry.room.DisplayName, required)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if previous, ok := m.membership[accountID]; ok {
		if previous == roomID {
			return nil
		}
		delete(m.players[previous], accountID)
	}
	m.membership[accountID] = roomID
	if m.players[roomID] == nil {
		m.players[roomID] = make(map[uuid.UUID]struct{})
	}
	m.players[roomID][accountID] = struct{}{}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"room":       roomID,
	}).Debug("Account joined room")
	return nil
}

// Leave removes the account from its room and returns the room it left
func (m *RoomManager) Leave(accountID uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.membership[accountID]
	if !ok {
		return "", false
	}
	delete(m.membership, accountID)
	delete(m.players[roomID], accountID)
	return roomID, true
}

// RoomOf returns the account's current room
func (m *RoomManager) RoomOf(accountID uuid.UUID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.membership[accountID]
	return roomID, ok
}

// InRoom reports whether the account sits at roomID
func (m *RoomManager) InRoom(accountID uuid.UUID, roomID string) bool {
	current, ok := m.RoomOf(accountID)
	return ok && current == roomID
}

// Players returns the accounts seated at roomID sorted by id
func (m *RoomManager) Players(roomID string) []uuid.UUID {
	m.mu.RLock()
	ids := make([]uuid.UUID, 0, len(m.players[roomID]))
	for id := range m.players[roomID] {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sortAccountIDs(ids)
	return ids
}

// Rooms returns every known room
func (m *RoomManager) Rooms() []games.Room {
	out := make([]games.Room, len(m.ordered))
	copy(out, m.ordered)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Limits.MinBet.LessThan(out[j].Limits.MinBet)
	})
	return out
}

// Room looks up a room and the game it belongs to
func (m *RoomManager) Room(roomID string) (games.Room, string, bool) {
	entry, ok := m.catalogue[roomID]
	return entry.room, entry.gameID, ok
}
