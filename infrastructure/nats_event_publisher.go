package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casino/events"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// EventStreamName is the JetStream stream carrying every engine subject
const EventStreamName = "casino_events"

// EventEnvelope wraps an event payload for the wire
type EventEnvelope struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	Timestamp     *timestamppb.Timestamp `json:"timestamp"`
	SourceService string                 `json:"source_service"`
	Payload       json.RawMessage        `json:"payload"`
}

// MessagePublisher sends raw messages to a subject. msgID lets the broker drop
// redelivered duplicates; empty disables deduplication.
type MessagePublisher interface {
	Publish(ctx context.Context, subject, msgID string, data []byte) error
}

// PublishRecorder counts forwarded events
type PublishRecorder interface {
	RecordEventPublished(eventType string, ok bool)
}

// NATSEventPublisher forwards committed events to NATS after handing them to
// the in-process emitter
type NATSEventPublisher struct {
	publisher     MessagePublisher
	subjectMapper *EventSubjectMapper
	local         events.Emitter
	source        string
	recorder      PublishRecorder
	now           func() time.Time
}

// NewNATSEventPublisher creates a new NATS event publisher. local and
// recorder may be nil.
func NewNATSEventPublisher(publisher MessagePublisher, subjectMapper *EventSubjectMapper, local events.Emitter, source string, recorder PublishRecorder) *NATSEventPublisher {
	return &NATSEventPublisher{
		publisher:     publisher,
		subjectMapper: subjectMapper,
		local:         local,
		source:        source,
		recorder:      recorder,
		now:           time.Now,
	}
}

// Emit implements events.Emitter. Forwarding failures are logged; the local
// emitter always receives the event.
func (p *NATSEventPublisher) Emit(ctx context.Context, event events.Event) {
	if p.local != nil {
		p.local.Emit(ctx, event)
	}

	if err := p.Publish(ctx, event); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to forward event to NATS")
	}
}

// Publish publishes an event to NATS using the appropriate subject
func (p *NATSEventPublisher) Publish(ctx context.Context, event events.Event) error {
	subject := p.subjectMapper.MapEventToSubject(event)

	envelope, err := p.envelope(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	err = p.publisher.Publish(ctx, subject, envelope.EventID, data)
	if errors.Is(err, nats.ErrNoStreamResponse) {
		// no stream bound to the subject; nothing is listening
		err = nil
	}
	if p.recorder != nil {
		p.recorder.RecordEventPublished(string(event.Type()), err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")
	return nil
}

func (p *NATSEventPublisher) envelope(event events.Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     timestamppb.New(p.now()),
		SourceService: p.source,
		Payload:       payload,
	}, nil
}

// StreamEnsurer creates JetStream streams
type StreamEnsurer interface {
	EnsureStream(streamName string, subjects []string, maxAge time.Duration) error
}

// EnsureEventStream makes sure the stream covering every engine subject exists
func (p *NATSEventPublisher) EnsureEventStream(client StreamEnsurer, maxAge time.Duration) error {
	return client.EnsureStream(EventStreamName, p.subjectMapper.GetAllSubjects(), maxAge)
}
