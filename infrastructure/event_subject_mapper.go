package infrastructure

import (
	"fmt"

	"casino/events"
)

// Subjects the engine publishes to
const (
	SubjectRoundStarted   = "casino.rounds.started"
	SubjectRoundResult    = "casino.rounds.result"
	SubjectRoundEnded     = "casino.rounds.ended"
	SubjectJackpotWon     = "casino.jackpots.won"
	SubjectBetPlaced      = "casino.bets.placed"
	SubjectBalanceChanged = "casino.accounts.balance_changed"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeRoundStarted:
		return SubjectRoundStarted
	case events.EventTypeRoundResult:
		return SubjectRoundResult
	case events.EventTypeRoundEnded:
		return SubjectRoundEnded
	case events.EventTypeJackpotWon:
		return SubjectJackpotWon
	case events.EventTypeBetPlaced:
		return SubjectBetPlaced
	case events.EventTypeBalanceChange:
		return SubjectBalanceChanged
	default:
		return fmt.Sprintf("casino.unknown.%s", event.Type())
	}
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	switch subject {
	case SubjectRoundStarted:
		return events.EventTypeRoundStarted
	case SubjectRoundResult:
		return events.EventTypeRoundResult
	case SubjectRoundEnded:
		return events.EventTypeRoundEnded
	case SubjectJackpotWon:
		return events.EventTypeJackpotWon
	case SubjectBetPlaced:
		return events.EventTypeBetPlaced
	case SubjectBalanceChanged:
		return events.EventTypeBalanceChange
	default:
		return events.EventType(subject)
	}
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		SubjectRoundStarted,
		SubjectRoundResult,
		SubjectRoundEnded,
		SubjectJackpotWon,
		SubjectBetPlaced,
		SubjectBalanceChanged,
	}
}
