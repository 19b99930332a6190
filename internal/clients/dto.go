package clients

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/imobcrm/crm-backend/pkg/pagination"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated caller of a client operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// CanSee reports whether the actor may read or modify a record owned by owner.
// Pool records are only reachable through the supervisor endpoints.
func (a Actor) CanSee(owner *uuid.UUID) bool {
	if a.Role.IsSupervisor() {
		return true
	}
	return owner != nil && *owner == a.UserID
}

// CreateClientInput is the payload for Create and BulkImport rows.
type CreateClientInput struct {
	Name         string             `json:"nome" validate:"required,max=200"`
	Email        *string            `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string            `json:"telefone,omitempty" validate:"omitempty,max=40"`
	Origin       string             `json:"origem,omitempty" validate:"max=120"`
	Source       string             `json:"fonte,omitempty" validate:"max=120"`
	Notes        *string            `json:"observacoes,omitempty"`
	Status       enums.ClientStatus `json:"status,omitempty"`
	FollowUpAt   *time.Time         `json:"dataFollowup,omitempty"`
	CustomFields map[string]any     `json:"camposPersonalizados,omitempty"`
	Timeline     []AppendEventInput `json:"timeline,omitempty" validate:"dive"`
	SaleValue    *decimal.Decimal   `json:"valorVenda,omitempty"`
}

// UpdateClientInput patches a client. Nil fields are left untouched.
type UpdateClientInput struct {
	Name          *string             `json:"nome,omitempty" validate:"omitempty,min=1,max=200"`
	Email         *string             `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string             `json:"telefone,omitempty" validate:"omitempty,max=40"`
	Origin        *string             `json:"origem,omitempty" validate:"omitempty,max=120"`
	Source        *string             `json:"fonte,omitempty" validate:"omitempty,max=120"`
	Notes         *string             `json:"observacoes,omitempty"`
	Status        *enums.ClientStatus `json:"status,omitempty"`
	FollowUpAt    *time.Time          `json:"dataFollowup,omitempty"`
	ClearFollowUp bool                `json:"limparFollowup,omitempty"`
	CustomFields  map[string]any      `json:"camposPersonalizados,omitempty"`
	SaleValue     *decimal.Decimal    `json:"valorVenda,omitempty"`
}

// AppendEventInput adds one entry to a client's timeline.
type AppendEventInput struct {
	Type       enums.TimelineEventType `json:"tipo" validate:"required"`
	Content    *string                 `json:"conteudo,omitempty"`
	OccurredAt *time.Time              `json:"data,omitempty"`
	// SaleValue is required when Type is VendaGerada.
	SaleValue *decimal.Decimal `json:"valorVenda,omitempty"`
}

// ListParams filters List and ListArchived.
type ListParams struct {
	pagination.Params
	Status   *enums.ClientStatus
	Archived *bool
	OwnerID  *uuid.UUID
	Search   string
}

// BulkImportResult reports how many rows an import stored.
type BulkImportResult struct {
	InsertedCount int `json:"insertedCount"`
}

// ClientDTO is the API view of a client and its timeline.
type ClientDTO struct {
	ID           uuid.UUID          `json:"id"`
	OwnerID      *uuid.UUID         `json:"ownerId"`
	Name         string             `json:"nome"`
	Email        *string            `json:"email,omitempty"`
	Phone        *string            `json:"telefone,omitempty"`
	Origin       string             `json:"origem,omitempty"`
	Source       string             `json:"fonte,omitempty"`
	Notes        *string            `json:"observacoes,omitempty"`
	ExternalRef  *string            `json:"idExterno,omitempty"`
	Status       enums.ClientStatus `json:"status"`
	SaleValue    *decimal.Decimal   `json:"valorVenda,omitempty"`
	IsArchived   bool               `json:"isArchived"`
	CreatedAt    *time.Time         `json:"dataCadastro,omitempty"`
	FollowUpAt   *time.Time         `json:"dataFollowup,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	CustomFields map[string]any     `json:"camposPersonalizados,omitempty"`
	Timeline     []EventDTO         `json:"timeline"`
}

// EventDTO is one timeline entry.
type EventDTO struct {
	ID         uuid.UUID               `json:"id"`
	Type       enums.TimelineEventType `json:"tipo"`
	Content    *string                 `json:"conteudo,omitempty"`
	AuthorID   *uuid.UUID              `json:"autorId,omitempty"`
	OccurredAt time.Time               `json:"data"`
}

// ListResult is a page of clients.
type ListResult = pagination.Page[ClientDTO]

// FromModel maps a client row to its API view.
func FromModel(c models.Client) ClientDTO {
	dto := ClientDTO{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		Name:        c.Name,
		Email:       c.Email,
		Phone:       c.Phone,
		Origin:      c.Origin,
		Source:      c.Source,
		Notes:       c.Notes,
		ExternalRef: c.ExternalRef,
		Status:      c.Status,
		IsArchived:  c.IsArchived,
		CreatedAt:   c.CreatedAt,
		FollowUpAt:  c.FollowUpAt,
		UpdatedAt:   c.UpdatedAt,
		Timeline:    make([]EventDTO, 0, len(c.Events)),
	}
	if c.SaleValue.Valid {
		v := c.SaleValue.Decimal
		dto.SaleValue = &v
	}
	if len(c.CustomFields) > 0 {
		dto.CustomFields = map[string]any(c.CustomFields)
	}
	for _, e := range c.Events {
		dto.Timeline = append(dto.Timeline, EventDTO{
			ID:         e.ID,
			Type:       e.Type,
			Content:    e.Content,
			AuthorID:   e.AuthorID,
			OccurredAt: e.OccurredAt,
		})
	}
	return dto
}

func cursorOf(c ClientDTO) pagination.Cursor {
	at := c.UpdatedAt
	if c.CreatedAt != nil {
		at = *c.CreatedAt
	}
	return pagination.Cursor{At: at, ID: c.ID}
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
