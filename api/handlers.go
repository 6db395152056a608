package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"casino/domain/entities"
	"casino/domain/games"
	"casino/domain/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// RoundService is the part of the round engine the HTTP adapter uses
type RoundService interface {
	SubmitBet(ctx context.Context, req services.BetRequest) (*entities.Bet, error)
	VerifyRound(ctx context.Context, roundID int64) (*services.RoundVerification, error)
	ResettleRound(ctx context.Context, roundID int64) (*services.SettlementSummary, error)
	CurrentRound(gameID, room string) (*services.RoundSnapshot, bool)
	History(gameID string) (*games.DiceHistory, bool)
	EndSession(ctx context.Context, accountID uuid.UUID)
}

// AccountService is the part of the ledger the HTTP adapter uses
type AccountService interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, bool)
	History(ctx context.Context, accountID uuid.UUID, limit int) ([]*entities.Transaction, error)
	SetBalance(ctx context.Context, accountID uuid.UUID, target decimal.Decimal, reason string) (decimal.Decimal, error)
}

// RoomService seats accounts at tables
type RoomService interface {
	Join(ctx context.Context, accountID uuid.UUID, roomID string) error
	Leave(accountID uuid.UUID) (string, bool)
}

// JackpotService reports pool state
type JackpotService interface {
	Stats(ctx context.Context, gameID string) (*entities.JackpotStats, error)
	RecentWins(ctx context.Context, gameID string, limit int) ([]*entities.JackpotWin, error)
}

// Handler serves the casino HTTP API
type Handler struct {
	rounds   RoundService
	accounts AccountService
	rooms    RoomService
	jackpots JackpotService
	validate *validator.Validate
}

// NewHandler creates the HTTP handlers
func NewHandler(rounds RoundService, accounts AccountService, rooms RoomService, jackpots JackpotService) *Handler {
	return &Handler{
		rounds:   rounds,
		accounts: accounts,
		rooms:    rooms,
		jackpots: jackpots,
		validate: validator.New(),
	}
}

type placeBetRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	GameID    string `json:"game_id" validate:"required,max=32"`
	Room      string `json:"room" validate:"max=32"`
	BetType   string `json:"bet_type" validate:"required,max=32"`
	Amount    string `json:"amount" validate:"required,numeric"`
}

type betResponse struct {
	ID        int64           `json:"id"`
	RoundID   int64           `json:"round_id"`
	AccountID uuid.UUID       `json:"account_id"`
	BetType   string          `json:"bet_type"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
}

// PlaceBet handles POST /api/v1/bets
func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if !h.decode(w, r, &req) {
		return
	}

	accountID := uuid.MustParse(req.AccountID)
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(entities.RejectInvalidAmount), "amount is not a number")
		return
	}

	bet, err := h.rounds.SubmitBet(r.Context(), services.BetRequest{
		AccountID: accountID,
		GameID:    req.GameID,
		Room:      req.Room,
		BetTypeID: req.BetType,
		Amount:    amount,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	balance, _ := h.accounts.GetBalance(r.Context(), accountID)
	writeJSON(w, http.StatusCreated, betResponse{
		ID:        bet.ID,
		RoundID:   bet.RoundID,
		AccountID: bet.AccountID,
		BetType:   bet.BetTypeID,
		Amount:    bet.Amount,
		Balance:   balance,
	})
}

type balanceResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Available bool            `json:"available"`
}

// GetBalance handles GET /api/v1/accounts/{id}/balance. A store outage
// answers zero with available=false.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}

	balance, available := h.accounts.GetBalance(r.Context(), accountID)
	writeJSON(w, http.StatusOK, balanceResponse{
		AccountID: accountID,
		Balance:   balance,
		Available: available,
	})
}

type transactionResponse struct {
	ID            int64           `json:"id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Game          string          `json:"game,omitempty"`
	RoundID       *int64          `json:"round_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// GetTransactions handles GET /api/v1/accounts/{id}/transactions?limit=n
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	txs, err := h.accounts.History(r.Context(), accountID, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			ID:            tx.ID,
			Type:          string(tx.Type),
			Amount:        tx.Amount,
			BalanceBefore: tx.BalanceBefore,
			BalanceAfter:  tx.BalanceAfter,
			Game:          tx.Game,
			RoundID:       tx.RoundID,
			Description:   tx.Description,
			CreatedAt:     tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

type joinRoomRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

// JoinRoom handles POST /api/v1/rooms/{room}/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	room := chi.URLParam(r, "room")
	if err := h.rooms.Join(r.Context(), uuid.MustParse(req.AccountID), room); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"room": room})
}

type leaveRoomRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

// LeaveRoom handles POST /api/v1/rooms/leave
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req leaveRoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	room, ok := h.rooms.Leave(uuid.MustParse(req.AccountID))
	if !ok {
		writeError(w, http.StatusNotFound, "not_seated", "account is not seated in a room")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"room": room})
}

// EndSession handles POST /api/v1/accounts/{id}/session/end. It drops the
// account's cooldown, room seat and ledger lock.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}

	h.rounds.EndSession(r.Context(), accountID)
	writeJSON(w, http.StatusOK, map[string]any{"account_id": accountID, "ended": true})
}

type currentRoundResponse struct {
	RoundID        int64     `json:"round_id"`
	GameID         string    `json:"game_id"`
	Room           string    `json:"room,omitempty"`
	State          string    `json:"state"`
	ServerSeedHash string    `json:"server_seed_hash"`
	StartedAt      time.Time `json:"started_at"`
	BettingEndsAt  time.Time `json:"betting_ends_at"`
}

// GetCurrentRound handles GET /api/v1/games/{game}/rounds/current?room=r
func (h *Handler) GetCurrentRound(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game")
	room := r.URL.Query().Get("room")

	snapshot, ok := h.rounds.CurrentRound(gameID, room)
	if !ok {
		writeError(w, http.StatusNotFound, "no_live_round", "no round is running on this table")
		return
	}
	writeJSON(w, http.StatusOK, currentRoundResponse{
		RoundID:        snapshot.ID,
		GameID:         snapshot.GameID,
		Room:           snapshot.Room,
		State:          string(snapshot.State),
		ServerSeedHash: snapshot.ServerSeedHash,
		StartedAt:      snapshot.StartedAt,
		BettingEndsAt:  snapshot.BettingEndsAt,
	})
}

type diceOutcomeResponse struct {
	RoundID int64 `json:"round_id"`
	Dice    []int `json:"dice"`
	Total   int   `json:"total"`
	Triple  bool  `json:"triple"`
}

type historyResponse struct {
	GameID        string                `json:"game_id"`
	Total         int                   `json:"total"`
	TaiCount      int                   `json:"tai_count"`
	XiuCount      int                   `json:"xiu_count"`
	TripleCount   int                   `json:"triple_count"`
	TaiPercent    float64               `json:"tai_percent"`
	XiuPercent    float64               `json:"xiu_percent"`
	TriplePercent float64               `json:"triple_percent"`
	CurrentStreak int                   `json:"current_streak"`
	CurrentSide   string                `json:"current_side,omitempty"`
	LongestTaiRun int                   `json:"longest_tai_run"`
	LongestXiuRun int                   `json:"longest_xiu_run"`
	Recent        []diceOutcomeResponse `json:"recent"`
}

// GetGameHistory handles GET /api/v1/games/{game}/history
func (h *Handler) GetGameHistory(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game")

	history, ok := h.rounds.History(gameID)
	if !ok {
		writeError(w, http.StatusNotFound, "no_history", "game keeps no result history")
		return
	}

	stats := history.Stats()
	resp := historyResponse{
		GameID:        gameID,
		Total:         stats.Total,
		TaiCount:      stats.TaiCount,
		XiuCount:      stats.XiuCount,
		TripleCount:   stats.TripleCount,
		TaiPercent:    stats.TaiPercent,
		XiuPercent:    stats.XiuPercent,
		TriplePercent: stats.TriplePercent,
		CurrentStreak: stats.CurrentStreak,
		CurrentSide:   stats.CurrentSide,
		LongestTaiRun: stats.LongestTaiRun,
		LongestXiuRun: stats.LongestXiuRun,
		Recent:        []diceOutcomeResponse{},
	}
	for _, outcome := range history.Recent(0) {
		resp.Recent = append(resp.Recent, diceOutcomeResponse{
			RoundID: outcome.RoundID,
			Dice:    outcome.Dice,
			Total:   outcome.Total,
			Triple:  outcome.Triple,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type verificationResponse struct {
	RoundID          int64  `json:"round_id"`
	GameID           string `json:"game_id"`
	Room             string `json:"room,omitempty"`
	ServerSeed       string `json:"server_seed"`
	ServerSeedHash   string `json:"server_seed_hash"`
	RecordedValues   []int  `json:"recorded_values"`
	RecomputedValues []int  `json:"recomputed_values"`
	Display          string `json:"display"`
	CommitmentValid  bool   `json:"commitment_valid"`
	ResultValid      bool   `json:"result_valid"`
	Valid            bool   `json:"valid"`
}

// VerifyRound handles GET /api/v1/rounds/{id}/verify
func (h *Handler) VerifyRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := roundParam(w, r)
	if !ok {
		return
	}

	v, err := h.rounds.VerifyRound(r.Context(), roundID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verificationResponse{
		RoundID:          v.RoundID,
		GameID:           v.GameID,
		Room:             v.Room,
		ServerSeed:       v.ServerSeed,
		ServerSeedHash:   v.ServerSeedHash,
		RecordedValues:   v.RecordedValues,
		RecomputedValues: v.RecomputedValues,
		Display:          v.Display,
		CommitmentValid:  v.CommitmentValid,
		ResultValid:      v.ResultValid,
		Valid:            v.Valid(),
	})
}

type jackpotWinResponse struct {
	WinnerID uuid.UUID       `json:"winner_id"`
	Amount   decimal.Decimal `json:"amount"`
	RoundID  *int64          `json:"round_id,omitempty"`
	WonAt    time.Time       `json:"won_at"`
}

type jackpotResponse struct {
	GameID        string               `json:"game_id"`
	Pool          decimal.Decimal      `json:"pool"`
	MinJackpot    decimal.Decimal      `json:"min_jackpot"`
	TriggerChance float64              `json:"trigger_chance"`
	RecentWins    []jackpotWinResponse `json:"recent_wins"`
}

// GetJackpot handles GET /api/v1/jackpots/{game}
func (h *Handler) GetJackpot(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game")

	stats, err := h.jackpots.Stats(r.Context(), gameID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	wins, err := h.jackpots.RecentWins(r.Context(), gameID, 10)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := jackpotResponse{
		GameID:        stats.GameID,
		Pool:          stats.Pool,
		MinJackpot:    stats.MinJackpot,
		TriggerChance: stats.TriggerChance,
		RecentWins:    make([]jackpotWinResponse, 0, len(wins)),
	}
	for _, win := range wins {
		resp.RecentWins = append(resp.RecentWins, jackpotWinResponse{
			WinnerID: win.WinnerID,
			Amount:   win.Amount,
			RoundID:  win.RoundID,
			WonAt:    win.WonAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type setBalanceRequest struct {
	Balance string `json:"balance" validate:"required,numeric"`
	Reason  string `json:"reason" validate:"required,max=200"`
}

// SetBalance handles PUT /api/v1/admin/accounts/{id}/balance
func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}
	var req setBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	target, err := decimal.NewFromString(req.Balance)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(entities.RejectInvalidAmount), "balance is not a number")
		return
	}

	balance, err := h.accounts.SetBalance(r.Context(), accountID, target, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	log.WithFields(log.Fields{
		"admin":      AdminSubject(r.Context()),
		"account_id": accountID,
		"balance":    balance,
		"reason":     req.Reason,
	}).Info("Balance set by admin")
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: accountID, Balance: balance, Available: true})
}

type settlementResponse struct {
	RoundID  int64           `json:"round_id"`
	Settled  int             `json:"settled"`
	Skipped  int             `json:"skipped"`
	Refunded int             `json:"refunded"`
	Paid     decimal.Decimal `json:"paid"`
	Failed   []int64         `json:"failed"`
}

// ResettleRound handles POST /api/v1/admin/rounds/{id}/resettle
func (h *Handler) ResettleRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := roundParam(w, r)
	if !ok {
		return
	}

	summary, err := h.rounds.ResettleRound(r.Context(), roundID)
	var settlementErr *entities.SettlementError
	if err != nil && !errors.As(err, &settlementErr) {
		writeDomainError(w, r, err)
		return
	}

	log.WithFields(log.Fields{
		"admin":    AdminSubject(r.Context()),
		"round_id": roundID,
		"settled":  summary.Settled,
		"failed":   len(summary.Failed),
	}).Info("Round resettled by admin")

	status := http.StatusOK
	if settlementErr != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, settlementResponse{
		RoundID:  summary.RoundID,
		Settled:  summary.Settled,
		Skipped:  summary.Skipped,
		Refunded: summary.Refunded,
		Paid:     summary.Paid,
		Failed:   append([]int64{}, summary.Failed...),
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// decode reads a single JSON object into dst and validates it
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must only contain a single JSON object")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func accountParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "account id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func roundParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "round id must be a positive integer")
		return 0, false
	}
	return id, true
}
