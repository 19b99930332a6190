package warehouse

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/outbox/payloads"
	"github.com/imobcrm/crm-backend/pkg/outbox/registry"
)

// TimelineFactRow mirrors the timeline_events BigQuery schema. One row per
// published CRM event.
type TimelineFactRow struct {
	EventID      string             `bigquery:"event_id"`
	EventType    string             `bigquery:"event_type"`
	ClientID     *string            `bigquery:"client_id"`
	OwnerID      *string            `bigquery:"owner_id"`
	TimelineType *string            `bigquery:"timeline_type"`
	Status       *string            `bigquery:"status"`
	SaleValue    *big.Rat           `bigquery:"sale_value"`
	OccurredAt   time.Time          `bigquery:"occurred_at"`
	IngestedAt   time.Time          `bigquery:"ingested_at"`
	Payload      cbigquery.NullJSON `bigquery:"payload"`
}

// BuildTimelineFact flattens a decoded event into a warehouse row. Events
// without a client snapshot keep only the envelope columns.
func BuildTimelineFact(event *registry.ResolvedEvent, ingestedAt time.Time) (TimelineFactRow, error) {
	if event == nil {
		return TimelineFactRow{}, fmt.Errorf("nil event")
	}
	row := TimelineFactRow{
		EventID:    event.Envelope.EventID,
		EventType:  string(event.Descriptor.EventType),
		OccurredAt: event.Envelope.OccurredAt.UTC(),
		IngestedAt: ingestedAt.UTC(),
	}
	payload, err := encodeJSON(event.Envelope.Data)
	if err != nil {
		return TimelineFactRow{}, err
	}
	row.Payload = payload

	switch p := event.Payload.(type) {
	case *payloads.ClientChangedEvent:
		applySnapshot(&row, p.Client)
		applyTimeline(&row, p.Timeline)
	case *payloads.ClientStatusChangedEvent:
		applySnapshot(&row, p.Client)
		applyTimeline(&row, p.Timeline)
	case *payloads.ClientsImportedEvent:
		row.OwnerID = uuidString(p.OwnerID)
	case *payloads.UserRegisteredEvent:
		row.OwnerID = uuidString(&p.UserID)
	}
	return row, nil
}

func applySnapshot(row *TimelineFactRow, snap payloads.ClientSnapshot) {
	row.ClientID = uuidString(&snap.ClientID)
	row.OwnerID = uuidString(snap.OwnerID)
	if snap.Status != "" {
		status := string(snap.Status)
		row.Status = &status
	}
	if snap.SaleValue != nil {
		row.SaleValue = snap.SaleValue.Rat()
	}
}

func applyTimeline(row *TimelineFactRow, entry *payloads.TimelineEntry) {
	if entry == nil {
		return
	}
	typ := string(entry.Type)
	row.TimelineType = &typ
	if !entry.OccurredAt.IsZero() {
		row.OccurredAt = entry.OccurredAt.UTC()
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	s := id.String()
	return &s
}

func encodeJSON(raw json.RawMessage) (cbigquery.NullJSON, error) {
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	if !json.Valid(raw) {
		return cbigquery.NullJSON{}, fmt.Errorf("payload is not valid json")
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
