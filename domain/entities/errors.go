package entities

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTransition is wrapped by every StateError
	ErrInvalidTransition = errors.New("invalid round state transition")

	// ErrPersistence marks failures of the durable store
	ErrPersistence = errors.New("persistence failure")

	// ErrConcurrency marks a broken serialization guarantee. It indicates a bug.
	ErrConcurrency = errors.New("concurrency violation")
)

// RejectionCode identifies why a request was rejected
type RejectionCode string

const (
	RejectUnknownGame         RejectionCode = "unknown_game"
	RejectRoundNotActive      RejectionCode = "round_not_active"
	RejectBettingClosed       RejectionCode = "betting_closed"
	RejectUnknownBetType      RejectionCode = "unknown_bet_type"
	RejectCooldown            RejectionCode = "cooldown"
	RejectBelowMinBet         RejectionCode = "below_min_bet"
	RejectAboveMaxBet         RejectionCode = "above_max_bet"
	RejectNotInRoom           RejectionCode = "not_in_room"
	RejectUnknownRoom         RejectionCode = "unknown_room"
	RejectInvalidAmount       RejectionCode = "invalid_amount"
	RejectInsufficientBalance RejectionCode = "insufficient_balance"
	RejectRoundNotSettled     RejectionCode = "round_not_settled"
)

// ValidationError is a recoverable rejection with an actionable reason
type ValidationError struct {
	Code    RejectionCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Reject builds a ValidationError
func Reject(code RejectionCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// StateError reports an operation attempted in the wrong round state
type StateError struct {
	RoundID int64
	From    RoundState
	Op      string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("round %d: cannot %s while %s", e.RoundID, e.Op, e.From)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidTransition
}

// InsufficientFundsError is returned when a debit would make a balance negative
type InsufficientFundsError struct {
	AccountID uuid.UUID
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance for account %s: have %s, need %s", e.AccountID, e.Balance, e.Requested)
}

// SettlementError reports bets that could not be settled when a round ended.
// The round is ENDED regardless; the failed bets can be settled again later.
type SettlementError struct {
	RoundID int64
	Failed  []int64
	Err     error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("round %d: %d bet(s) failed to settle: %v", e.RoundID, len(e.Failed), e.Err)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// RejectionCodeOf extracts the rejection code from err, if any
func RejectionCodeOf(err error) (RejectionCode, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Code, true
	}
	var fundsErr *InsufficientFundsError
	if errors.As(err, &fundsErr) {
		return RejectInsufficientBalance, true
	}
	return "", false
}

// ErrNotFound is returned when a requested round or account does not exist
var ErrNotFound = errors.New("not found")
