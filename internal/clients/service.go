package clients

import (
	"context"
	"errors"
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
	"github.com/imobcrm/crm-backend/pkg/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type clientsRepository interface {
	Create(ctx context.Context, tx *gorm.DB, client *models.Client) error
	CreateBatch(ctx context.Context, tx *gorm.DB, clients []models.Client) error
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Client, error)
	List(ctx context.Context, opts listQuery) ([]models.Client, error)
	Save(ctx context.Context, tx *gorm.DB, client *models.Client) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	AppendEvent(ctx context.Context, tx *gorm.DB, event *models.ClientEvent) error
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service manages client records, their timelines and the lead pool.
type Service interface {
	Create(ctx context.Context, actor Actor, input CreateClientInput) (*ClientDTO, error)
	List(ctx context.Context, actor Actor, params ListParams) (*ListResult, error)
	Get(ctx context.Context, actor Actor, id uuid.UUID) (*ClientDTO, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateClientInput) (*ClientDTO, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
	BulkImport(ctx context.Context, actor Actor, rows []CreateClientInput) (*BulkImportResult, error)
	AppendEvent(ctx context.Context, actor Actor, id uuid.UUID, input AppendEventInput) (*ClientDTO, error)
	ChangeStatus(ctx context.Context, actor Actor, id uuid.UUID, status enums.ClientStatus) (*ClientDTO, error)
	ListArchived(ctx context.Context, actor Actor, params ListParams) (*ListResult, error)
	AssignLead(ctx context.Context, actor Actor, id, userID uuid.UUID) (*ClientDTO, error)
	ArchiveLead(ctx context.Context, actor Actor, id uuid.UUID) (*ClientDTO, error)
}

// ServiceParams bundles the dependencies of the client service.
type ServiceParams struct {
	Repo   clientsRepository
	Users  userLookup
	Tx     db.TxRunner
	Outbox outbox.Emitter
	Logger *logger.Logger
}

type service struct {
	repo   clientsRepository
	users  userLookup
	tx     db.TxRunner
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("clients repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users lookup required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   params.Repo,
		users:  params.Users,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateClientInput) (*ClientDTO, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	now := s.now()
	owner := actor.UserID
	client, err := s.buildClient(input, &owner, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, client); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create client")
		}
		return s.emit(ctx, tx, actor, enums.EventClientCreated, payloads.ClientChangedEvent{Client: snapshot(client)}, client.ID)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithClientID(ctx, client.ID.String()), "client created")
	dto := FromModel(*client)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor Actor, params ListParams) (*ListResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	query, err := s.listQuery(params)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsSupervisor() {
		query.ownerID = &actor.UserID
	}
	return s.page(ctx, query, params.Limit)
}

func (s *service) ListArchived(ctx context.Context, actor Actor, params ListParams) (*ListResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	query, err := s.listQuery(params)
	if err != nil {
		return nil, err
	}
	archived := true
	query.archived = &archived
	query.ownerID = nil
	return s.page(ctx, query, params.Limit)
}

func (s *service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*ClientDTO, error) {
	client, err := s.load(ctx, nil, actor, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*client)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateClientInput) (*ClientDTO, error) {
	var updated *models.Client
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		client, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if err := applyUpdate(client, input); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, client); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update client")
		}
		updated = client
		return s.emit(ctx, tx, actor, enums.EventClientUpdated, payloads.ClientChangedEvent{Client: snapshot(client)}, client.ID)
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*updated)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		client, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete client")
		}
		return s.emit(ctx, tx, actor, enums.EventClientDeleted, payloads.ClientChangedEvent{Client: snapshot(client)}, id)
	})
}

func (s *service) BulkImport(ctx context.Context, actor Actor, rows []CreateClientInput) (*BulkImportResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &BulkImportResult{InsertedCount: 0}, nil
	}

	now := s.now()
	owner := actor.UserID
	batch := make([]models.Client, 0, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for i, row := range rows {
		client, err := s.buildClient(row, &owner, now)
		if err != nil {
			if te := pkgerrors.As(err); te != nil {
				return nil, te.WithDetails(map[string]any{"row": i})
			}
			return nil, err
		}
		client.ID = uuid.New()
		for j := range client.Events {
			client.Events[j].ClientID = client.ID
		}
		batch = append(batch, *client)
		ids = append(ids, client.ID)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateBatch(ctx, tx, batch); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "import clients")
		}
		return s.emit(ctx, tx, actor, enums.EventClientsImported, payloads.ClientsImportedEvent{ClientIDs: ids, OwnerID: &owner}, actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "inserted", len(batch)), "clients imported")
	return &BulkImportResult{InsertedCount: len(batch)}, nil
}

func (s *service) AppendEvent(ctx context.Context, actor Actor, id uuid.UUID, input AppendEventInput) (*ClientDTO, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid timeline event type %q", input.Type)
	}
	if input.Type == enums.TimelineVendaGerada {
		if input.SaleValue == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "valorVenda is required for VendaGerada")
		}
		if input.SaleValue.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "valorVenda must not be negative")
		}
	}

	var updated *models.Client
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		client, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		event := s.newEvent(input, &actor.UserID)
		event.ClientID = client.ID
		if err := s.repo.AppendEvent(ctx, tx, &event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append timeline event")
		}
		// A sale moves the record to its final stage in the same write.
		if input.Type == enums.TimelineVendaGerada {
			client.Status = enums.ClientStatusVendaGerada
			client.SaleValue = decimal.NewNullDecimal(*input.SaleValue)
			if err := s.repo.Save(ctx, tx, client); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sale")
			}
		}
		client.Events = append(client.Events, event)
		updated = client
		return s.emit(ctx, tx, actor, enums.EventClientEventAppended, payloads.ClientChangedEvent{
			Client:   snapshot(client),
			Timeline: timelineEntry(event),
		}, client.ID)
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*updated)
	return &dto, nil
}

func (s *service) ChangeStatus(ctx context.Context, actor Actor, id uuid.UUID, status enums.ClientStatus) (*ClientDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", status)
	}
	var updated *models.Client
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		client, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if status == enums.ClientStatusVendaGerada && !client.SaleValue.Valid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "register the sale as a VendaGerada event")
		}
		previous := client.Status
		client.Status = status
		if err := s.repo.Save(ctx, tx, client); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "change status")
		}
		updated = client
		return s.emit(ctx, tx, actor, enums.EventClientStatusChanged, payloads.ClientStatusChangedEvent{
			Client:         snapshot(client),
			PreviousStatus: previous,
		}, client.ID)
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*updated)
	return &dto, nil
}

func (s *service) AssignLead(ctx context.Context, actor Actor, id, userID uuid.UUID) (*ClientDTO, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.Role.IsSupervisor() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins and managers assign leads")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "userId is required")
	}
	broker, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	if !broker.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "user is inactive")
	}

	var updated *models.Client
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		client, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		previous := client.OwnerID
		client.OwnerID = &broker.ID
		client.IsArchived = false
		if err := s.repo.Save(ctx, tx, client); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign lead")
		}
		updated = client
		return s.emit(ctx, tx, actor, enums.EventLeadAssigned, payloads.ClientChangedEvent{
			Client:          snapshot(client),
			PreviousOwnerID: previous,
		}, client.ID)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"client_id": id.String(), "assignee_id": userID.String()}), "lead assigned")
	dto := FromModel(*updated)
	return &dto, nil
}

func (s *service) ArchiveLead(ctx context.Context, actor Actor, id uuid.UUID) (*ClientDTO, error) {
	var updated *models.Client
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		client, err := s.load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		previous := client.OwnerID
		client.OwnerID = nil
		client.IsArchived = true
		if err := s.repo.Save(ctx, tx, client); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive lead")
		}
		updated = client
		return s.emit(ctx, tx, actor, enums.EventLeadArchived, payloads.ClientChangedEvent{
			Client:          snapshot(client),
			PreviousOwnerID: previous,
		}, client.ID)
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*updated)
	return &dto, nil
}

// load fetches a client and enforces ownership.
func (s *service) load(ctx context.Context, tx *gorm.DB, actor Actor, id uuid.UUID) (*models.Client, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	}
	client, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load client")
	}
	if !actor.CanSee(client.OwnerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "client belongs to another broker")
	}
	return client, nil
}

func (s *service) listQuery(params ListParams) (listQuery, error) {
	query := listQuery{
		ownerID:  params.OwnerID,
		status:   params.Status,
		archived: params.Archived,
		search:   params.Search,
		limit:    pagination.LimitWithBuffer(params.Limit),
	}
	if params.Status != nil && !params.Status.IsValid() {
		return listQuery{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *params.Status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return listQuery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.cursor = cursor
	return query, nil
}

func (s *service) page(ctx context.Context, query listQuery, limit int) (*ListResult, error) {
	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list clients")
	}
	dtos := make([]ClientDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	result := pagination.Build(dtos, limit, cursorOf)
	return &result, nil
}

func (s *service) buildClient(input CreateClientInput, owner *uuid.UUID, now time.Time) (*models.Client, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nome is required")
	}
	status := input.Status
	if status == "" {
		status = enums.ClientStatusPrimeiroAtendimento
	}
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", status)
	}

	client := &models.Client{
		OwnerID:    owner,
		Name:       name,
		Email:      trimmedPtr(input.Email),
		Phone:      trimmedPtr(input.Phone),
		Origin:     strings.TrimSpace(input.Origin),
		Source:     strings.TrimSpace(input.Source),
		Notes:      trimmedPtr(input.Notes),
		Status:     status,
		CreatedAt:  &now,
		FollowUpAt: utcPtr(input.FollowUpAt),
	}
	if len(input.CustomFields) > 0 {
		client.CustomFields = datatypes.JSONMap(input.CustomFields)
	}
	if input.SaleValue != nil {
		client.SaleValue = decimal.NewNullDecimal(*input.SaleValue)
	}
	for _, entry := range input.Timeline {
		if !entry.Type.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid timeline event type %q", entry.Type)
		}
		client.Events = append(client.Events, s.newEvent(entry, owner))
	}
	return client, nil
}

func (s *service) newEvent(input AppendEventInput, author *uuid.UUID) models.ClientEvent {
	occurred := s.now()
	if input.OccurredAt != nil && !input.OccurredAt.IsZero() {
		occurred = input.OccurredAt.UTC()
	}
	return models.ClientEvent{
		Type:       input.Type,
		Content:    trimmedPtr(input.Content),
		AuthorID:   author,
		OccurredAt: occurred,
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor Actor, eventType enums.OutboxEventType, data any, aggregateID uuid.UUID) error {
	aggregate := enums.AggregateClient
	if eventType == enums.EventClientsImported {
		aggregate = enums.AggregateUser
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role},
		Data:          data,
		OccurredAt:    s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue outbox event")
	}
	return nil
}

func applyUpdate(client *models.Client, input UpdateClientInput) error {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "nome must not be empty")
		}
		client.Name = name
	}
	if input.Email != nil {
		client.Email = trimmedPtr(input.Email)
	}
	if input.Phone != nil {
		client.Phone = trimmedPtr(input.Phone)
	}
	if input.Origin != nil {
		client.Origin = strings.TrimSpace(*input.Origin)
	}
	if input.Source != nil {
		client.Source = strings.TrimSpace(*input.Source)
	}
	if input.Notes != nil {
		client.Notes = trimmedPtr(input.Notes)
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *input.Status)
		}
		client.Status = *input.Status
	}
	switch {
	case input.ClearFollowUp:
		client.FollowUpAt = nil
	case input.FollowUpAt != nil:
		client.FollowUpAt = utcPtr(input.FollowUpAt)
	}
	if input.CustomFields != nil {
		client.CustomFields = datatypes.JSONMap(input.CustomFields)
	}
	if input.SaleValue != nil {
		if input.SaleValue.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "valorVenda must not be negative")
		}
		client.SaleValue = decimal.NewNullDecimal(*input.SaleValue)
	}
	if input.Status != nil && client.Status == enums.ClientStatusVendaGerada && !client.SaleValue.Valid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "register the sale as a VendaGerada event")
	}
	return nil
}

func snapshot(c *models.Client) payloads.ClientSnapshot {
	snap := payloads.ClientSnapshot{
		ClientID: c.ID,
		OwnerID:  c.OwnerID,
		Status:   c.Status,
		Origin:   c.Origin,
		Source:   c.Source,
		Archived: c.IsArchived,
	}
	if c.SaleValue.Valid {
		v := c.SaleValue.Decimal
		snap.SaleValue = &v
	}
	return snap
}

func timelineEntry(e models.ClientEvent) *payloads.TimelineEntry {
	return &payloads.TimelineEntry{EventID: e.ID, Type: e.Type, OccurredAt: e.OccurredAt, AuthorID: e.AuthorID}
}

func requireActor(actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
