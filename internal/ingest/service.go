package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/db"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/outbox"
	"github.com/imobcrm/crm-backend/pkg/outbox/payloads"
	"gorm.io/gorm"
)

const (
	defaultOrigin     = "Tráfego Pago"
	defaultSource     = "External API"
	noteTemplate      = "Lead recebido de fonte externa: %s"
	externalRefPrefix = "ext-"
)

// ExternalLeadInput is the payload accepted from landing pages and ad platforms.
type ExternalLeadInput struct {
	Name   string  `json:"nome" validate:"required,max=200"`
	Email  *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone  *string `json:"telefone,omitempty" validate:"omitempty,max=40"`
	Origin string  `json:"origem,omitempty" validate:"max=120"`
	Source string  `json:"fonte,omitempty" validate:"max=120"`
	Notes  *string `json:"observacoes,omitempty"`
}

// LeadReceipt acknowledges an ingested lead.
type LeadReceipt struct {
	ID          uuid.UUID `json:"id"`
	ExternalRef string    `json:"idExterno"`
}

type clientCreator interface {
	Create(ctx context.Context, tx *gorm.DB, client *models.Client) error
}

// Service turns external submissions into pooled leads.
type Service interface {
	CreateExternalLead(ctx context.Context, input ExternalLeadInput) (*LeadReceipt, error)
}

type service struct {
	clients clientCreator
	tx      db.TxRunner
	outbox  outbox.Emitter
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(clients clientCreator, tx db.TxRunner, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if clients == nil || tx == nil || emitter == nil || logg == nil {
		return nil, fmt.Errorf("ingest service dependencies required")
	}
	return &service{
		clients: clients,
		tx:      tx,
		outbox:  emitter,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateExternalLead stores the lead unowned in the pool with a single
// Observacao entry naming where it came from.
func (s *service) CreateExternalLead(ctx context.Context, input ExternalLeadInput) (*LeadReceipt, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nome is required")
	}
	origin := orDefault(input.Origin, defaultOrigin)
	source := orDefault(input.Source, defaultSource)

	now := s.now()
	ref := externalRefPrefix + uuid.NewString()
	note := fmt.Sprintf(noteTemplate, source)
	client := &models.Client{
		Name:        name,
		Email:       trimmed(input.Email),
		Phone:       trimmed(input.Phone),
		Origin:      origin,
		Source:      source,
		Notes:       trimmed(input.Notes),
		ExternalRef: &ref,
		Status:      enums.ClientStatusPrimeiroAtendimento,
		IsArchived:  true,
		CreatedAt:   &now,
		Events: []models.ClientEvent{{
			Type:       enums.TimelineObservacao,
			Content:    &note,
			OccurredAt: now,
		}},
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.clients.Create(ctx, tx, client); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "external reference collision")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store external lead")
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLeadIngested,
			AggregateType: enums.AggregateClient,
			AggregateID:   client.ID,
			Data: payloads.ClientChangedEvent{
				Client: payloads.ClientSnapshot{
					ClientID: client.ID,
					Status:   client.Status,
					Origin:   origin,
					Source:   source,
					Archived: true,
				},
				Timeline: &payloads.TimelineEntry{
					EventID:    client.Events[0].ID,
					Type:       enums.TimelineObservacao,
					OccurredAt: now,
				},
			},
			OccurredAt: now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue outbox event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"client_id": client.ID.String(),
		"source":    source,
	}), "external lead ingested")
	return &LeadReceipt{ID: client.ID, ExternalRef: ref}, nil
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
