package bi

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

var (
	ownerA = uuid.MustParse("0b6f8a43-3c0e-4f61-9d55-1f0f5a2c0a01")
	ownerB = uuid.MustParse("0b6f8a43-3c0e-4f61-9d55-1f0f5a2c0a02")
	epoch  = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
)

// at returns epoch plus the given days and hours.
func at(days, hours int) time.Time {
	return epoch.AddDate(0, 0, days).Add(time.Duration(hours) * time.Hour)
}

func event(typ enums.TimelineEventType, when time.Time) models.ClientEvent {
	return models.ClientEvent{ID: uuid.New(), Type: typ, OccurredAt: when}
}

type clientOpt func(*models.Client)

func withSale(value string) clientOpt {
	return func(c *models.Client) {
		c.SaleValue = decimal.NewNullDecimal(decimal.RequireFromString(value))
	}
}

func withCreatedAt(t time.Time) clientOpt {
	return func(c *models.Client) { c.CreatedAt = &t }
}

func unassigned() clientOpt {
	return func(c *models.Client) { c.OwnerID = nil }
}

func ownedBy(id uuid.UUID) clientOpt {
	return func(c *models.Client) { c.OwnerID = &id }
}

func newClient(status enums.ClientStatus, events []models.ClientEvent, opts ...clientOpt) models.Client {
	owner := ownerA
	c := models.Client{
		ID:      uuid.New(),
		OwnerID: &owner,
		Name:    "Cliente",
		Status:  status,
		Events:  events,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func window(startDay, endDay int) Query {
	return Query{Start: at(startDay, 0), End: at(endDay, 24).Add(-time.Nanosecond)}
}

// memorySource returns every record regardless of the query, so the tests
// exercise the in-memory predicates.
type memorySource struct {
	mu      sync.Mutex
	clients []models.Client
	err     error
	queries []ClientQuery
}

func (m *memorySource) FindClients(_ context.Context, q ClientQuery) ([]models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.Client, len(m.clients))
	copy(out, m.clients)
	return out, nil
}
