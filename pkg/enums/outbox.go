package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateClient OutboxAggregateType = "client"
	AggregateUser   OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateClient,
	AggregateUser,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventClientCreated       OutboxEventType = "client_created"
	EventClientUpdated       OutboxEventType = "client_updated"
	EventClientDeleted       OutboxEventType = "client_deleted"
	EventClientEventAppended OutboxEventType = "client_event_appended"
	EventClientStatusChanged OutboxEventType = "client_status_changed"
	EventClientsImported     OutboxEventType = "clients_imported"
	EventLeadIngested        OutboxEventType = "lead_ingested"
	EventLeadAssigned        OutboxEventType = "lead_assigned"
	EventLeadArchived        OutboxEventType = "lead_archived"
	EventUserRegistered      OutboxEventType = "user_registered"
)

var validOutboxEventTypes = []OutboxEventType{
	EventClientCreated,
	EventClientUpdated,
	EventClientDeleted,
	EventClientEventAppended,
	EventClientStatusChanged,
	EventClientsImported,
	EventLeadIngested,
	EventLeadAssigned,
	EventLeadArchived,
	EventUserRegistered,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
