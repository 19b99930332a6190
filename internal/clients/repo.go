package clients

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/internal/bi"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/imobcrm/crm-backend/pkg/pagination"
	"gorm.io/gorm"
)

const (
	importBatchSize = 500
	// sortKey orders legacy rows without a registration date by last update.
	sortKey = "COALESCE(clients.created_at, clients.updated_at)"
)

// Repository exposes client persistence. It also serves as the BI source.
type Repository struct {
	db *gorm.DB
}

var _ bi.Source = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// listQuery is the storage-level form of ListParams.
type listQuery struct {
	ownerID  *uuid.UUID
	status   *enums.ClientStatus
	archived *bool
	search   string
	cursor   *pagination.Cursor
	limit    int
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// Create inserts a client together with any events already attached.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, client *models.Client) error {
	return r.conn(ctx, tx).Create(client).Error
}

// CreateBatch inserts clients in batches inside the caller's transaction.
func (r *Repository) CreateBatch(ctx context.Context, tx *gorm.DB, clients []models.Client) error {
	if len(clients) == 0 {
		return nil
	}
	return r.conn(ctx, tx).CreateInBatches(&clients, importBatchSize).Error
}

// FindByID loads a client with its timeline in chronological order.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := r.conn(ctx, tx).
		Preload("Events", orderedEvents).
		First(&client, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// List returns one page of clients, newest first.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.Client, error) {
	query := r.db.WithContext(ctx).Model(&models.Client{})
	if opts.ownerID != nil {
		query = query.Where("owner_id = ?", *opts.ownerID)
	}
	if opts.status != nil {
		query = query.Where("status = ?", *opts.status)
	}
	if opts.archived != nil {
		query = query.Where("is_archived = ?", *opts.archived)
	}
	if term := strings.ToLower(strings.TrimSpace(opts.search)); term != "" {
		like := "%" + term + "%"
		query = query.Where("(LOWER(name) LIKE ? OR LOWER(COALESCE(email, '')) LIKE ? OR COALESCE(phone, '') LIKE ?)", like, like, like)
	}
	if opts.cursor != nil {
		at := opts.cursor.At.UTC()
		query = query.Where("("+sortKey+" < ?) OR ("+sortKey+" = ? AND clients.id < ?)", at, at, opts.cursor.ID)
	}

	var rows []models.Client
	err := query.
		Preload("Events", orderedEvents).
		Order(sortKey + " DESC").
		Order("clients.id DESC").
		Limit(opts.limit).
		Find(&rows).Error
	return rows, err
}

// Save writes every column of client.
func (r *Repository) Save(ctx context.Context, tx *gorm.DB, client *models.Client) error {
	return r.conn(ctx, tx).Omit("Events").Save(client).Error
}

// Delete removes a client. Its events cascade.
func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	conn := r.conn(ctx, tx)
	if err := conn.Where("client_id = ?", id).Delete(&models.ClientEvent{}).Error; err != nil {
		return err
	}
	res := conn.Delete(&models.Client{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AppendEvent stores one timeline entry.
func (r *Repository) AppendEvent(ctx context.Context, tx *gorm.DB, event *models.ClientEvent) error {
	return r.conn(ctx, tx).Create(event).Error
}

// FindClients returns the clients holding at least one event inside the
// window, narrowed by owner, event type and status, with full timelines.
func (r *Repository) FindClients(ctx context.Context, q bi.ClientQuery) ([]models.Client, error) {
	window := r.db.WithContext(ctx).
		Model(&models.ClientEvent{}).
		Select("1").
		Where("client_events.client_id = clients.id").
		Where("client_events.occurred_at >= ? AND client_events.occurred_at <= ?", q.Start.UTC(), q.End.UTC())
	if q.EventType != nil {
		window = window.Where("client_events.type = ?", *q.EventType)
	}

	query := r.db.WithContext(ctx).Model(&models.Client{}).Where("EXISTS (?)", window)
	switch {
	case len(q.OwnerIDs) > 0 && q.IncludeUnassigned:
		query = query.Where("(owner_id IN ? OR owner_id IS NULL)", q.OwnerIDs)
	case len(q.OwnerIDs) > 0:
		query = query.Where("owner_id IN ?", q.OwnerIDs)
	case !q.IncludeUnassigned:
		query = query.Where("owner_id IS NOT NULL")
	}
	if len(q.Statuses) > 0 {
		query = query.Where("status IN ?", q.Statuses)
	}

	var rows []models.Client
	err := query.Preload("Events", orderedEvents).Find(&rows).Error
	return rows, err
}

// FindDueFollowUps returns owned, active clients whose follow-up falls in
// [from, to].
func (r *Repository) FindDueFollowUps(ctx context.Context, from, to time.Time) ([]models.Client, error) {
	var rows []models.Client
	err := r.db.WithContext(ctx).
		Where("owner_id IS NOT NULL AND is_archived = ?", false).
		Where("follow_up_at >= ? AND follow_up_at <= ?", from.UTC(), to.UTC()).
		Order("follow_up_at ASC").
		Find(&rows).Error
	return rows, err
}

// FindStale returns owned, unsold, active clients whose latest event (or
// registration, when they have none) is older than cutoff.
func (r *Repository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Client, error) {
	recent := r.db.WithContext(ctx).
		Model(&models.ClientEvent{}).
		Select("1").
		Where("client_events.client_id = clients.id AND client_events.occurred_at >= ?", cutoff.UTC())

	var rows []models.Client
	err := r.db.WithContext(ctx).
		Where("owner_id IS NOT NULL AND is_archived = ?", false).
		Where("status <> ?", enums.ClientStatusVendaGerada).
		Where("NOT EXISTS (?)", recent).
		Where(sortKey+" < ?", cutoff.UTC()).
		Order(sortKey + " ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ReturnToPool detaches owner from a client that is still stale at cutoff.
// Only owner_id and is_archived change. It reports false when the client was
// sold, reassigned or touched since it was selected.
func (r *Repository) ReturnToPool(ctx context.Context, tx *gorm.DB, id, owner uuid.UUID, cutoff time.Time) (bool, error) {
	conn := r.conn(ctx, tx)
	recent := conn.Session(&gorm.Session{NewDB: true}).
		Model(&models.ClientEvent{}).
		Select("1").
		Where("client_events.client_id = clients.id AND client_events.occurred_at >= ?", cutoff.UTC())

	res := conn.Model(&models.Client{}).
		Where("id = ? AND owner_id = ? AND is_archived = ?", id, owner, false).
		Where("status <> ?", enums.ClientStatusVendaGerada).
		Where("NOT EXISTS (?)", recent).
		Updates(map[string]any{"owner_id": nil, "is_archived": true})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func orderedEvents(db *gorm.DB) *gorm.DB {
	return db.Order("client_events.occurred_at ASC").Order("client_events.id ASC")
}
