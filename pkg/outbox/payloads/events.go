package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// ClientSnapshot is the state of a client after the change that emitted it.
type ClientSnapshot struct {
	ClientID  uuid.UUID          `json:"client_id"`
	OwnerID   *uuid.UUID         `json:"owner_id,omitempty"`
	Status    enums.ClientStatus `json:"status"`
	Origin    string             `json:"origin,omitempty"`
	Source    string             `json:"source,omitempty"`
	SaleValue *decimal.Decimal   `json:"sale_value,omitempty"`
	Archived  bool               `json:"archived"`
}

// TimelineEntry describes a single appended timeline event.
type TimelineEntry struct {
	EventID    uuid.UUID               `json:"event_id"`
	Type       enums.TimelineEventType `json:"type"`
	OccurredAt time.Time               `json:"occurred_at"`
	AuthorID   *uuid.UUID              `json:"author_id,omitempty"`
}

// ClientChangedEvent covers created, updated, deleted and lead pool moves.
type ClientChangedEvent struct {
	Client          ClientSnapshot `json:"client"`
	PreviousOwnerID *uuid.UUID     `json:"previous_owner_id,omitempty"`
	Timeline        *TimelineEntry `json:"timeline,omitempty"`
}

// ClientStatusChangedEvent records a funnel stage move.
type ClientStatusChangedEvent struct {
	Client         ClientSnapshot     `json:"client"`
	PreviousStatus enums.ClientStatus `json:"previous_status"`
	Timeline       *TimelineEntry     `json:"timeline,omitempty"`
}

// ClientsImportedEvent summarizes a bulk import.
type ClientsImportedEvent struct {
	ClientIDs []uuid.UUID `json:"client_ids"`
	OwnerID   *uuid.UUID  `json:"owner_id,omitempty"`
}

// UserRegisteredEvent is emitted when an account is created.
type UserRegisteredEvent struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
}
