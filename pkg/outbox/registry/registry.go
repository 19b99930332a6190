package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/config"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/imobcrm/crm-backend/pkg/outbox"
	"github.com/imobcrm/crm-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row or message body.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError tells the publisher and consumers to stop retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry registers every CRM event on the lead events topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.LeadEventsTopic)
	if topic == "" {
		return nil, fmt.Errorf("lead events topic is required")
	}

	changed := func() any { return &payloads.ClientChangedEvent{} }
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventClientCreated,
		enums.EventClientUpdated,
		enums.EventClientDeleted,
		enums.EventClientEventAppended,
		enums.EventLeadIngested,
		enums.EventLeadAssigned,
		enums.EventLeadArchived,
	} {
		reg.register(EventDescriptor{EventType: eventType, AggregateType: enums.AggregateClient, Topic: topic, PayloadFactory: changed})
	}
	reg.register(EventDescriptor{
		EventType:      enums.EventClientStatusChanged,
		AggregateType:  enums.AggregateClient,
		Topic:          topic,
		PayloadFactory: func() any { return &payloads.ClientStatusChangedEvent{} },
	})
	reg.register(EventDescriptor{
		EventType:      enums.EventClientsImported,
		AggregateType:  enums.AggregateUser,
		Topic:          topic,
		PayloadFactory: func() any { return &payloads.ClientsImportedEvent{} },
	})
	reg.register(EventDescriptor{
		EventType:      enums.EventUserRegistered,
		AggregateType:  enums.AggregateUser,
		Topic:          topic,
		PayloadFactory: func() any { return &payloads.UserRegisteredEvent{} },
	})
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates an outbox row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}
	return r.Decode(event.EventType, event.AggregateType, event.Payload)
}

// Decode resolves a raw envelope published for eventType. Consumers call it
// with the message attributes.
func (r *EventRegistry) Decode(eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, raw []byte) (*ResolvedEvent, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %q", eventType))
	}
	if desc.AggregateType != aggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, aggregateType))
	}

	envelope, err := outbox.DecodeEnvelope(raw)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", eventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
