package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/internal/clients"
	"github.com/imobcrm/crm-backend/pkg/db"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/outbox"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStaleLeadJobReturnsIdleLeadsToPool(t *testing.T) {
	conn, err := db.OpenInMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Client{}, &models.ClientEvent{}, &models.OutboxEvent{}))
	client := db.NewFromConn(conn)
	repo := clients.NewRepository(conn)

	now := time.Date(2025, 4, 30, 6, 0, 0, 0, time.UTC)
	owner := uuid.New()
	old := now.AddDate(0, 0, -60)
	recent := now.AddDate(0, 0, -2)

	idle := &models.Client{Name: "Idle", OwnerID: &owner, Status: enums.ClientStatusInteressado, CreatedAt: &old,
		Events: []models.ClientEvent{{Type: enums.TimelineLigacao, OccurredAt: old}}}
	active := &models.Client{Name: "Active", OwnerID: &owner, Status: enums.ClientStatusInteressado, CreatedAt: &old,
		Events: []models.ClientEvent{{Type: enums.TimelineLigacao, OccurredAt: recent}}}
	for _, c := range []*models.Client{idle, active} {
		require.NoError(t, repo.Create(context.Background(), nil, c))
	}

	job, err := NewStaleLeadJob(StaleLeadJobParams{
		Logger:  logger.Nop(),
		Clients: repo,
		Tx:      client,
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Days:    30,
	})
	require.NoError(t, err)
	job.(*staleLeadJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	got, err := repo.FindByID(context.Background(), nil, idle.ID)
	require.NoError(t, err)
	require.True(t, got.IsArchived)
	require.Nil(t, got.OwnerID)
	require.Len(t, got.Events, 2)
	require.Equal(t, enums.TimelineObservacao, got.Events[1].Type)
	require.Contains(t, *got.Events[1].Content, "30 dias")

	untouched, err := repo.FindByID(context.Background(), nil, active.ID)
	require.NoError(t, err)
	require.False(t, untouched.IsArchived)
	require.NotNil(t, untouched.OwnerID)

	var evt models.OutboxEvent
	require.NoError(t, conn.First(&evt).Error)
	require.Equal(t, enums.EventLeadArchived, evt.EventType)
	require.Equal(t, idle.ID, evt.AggregateID)

	// The archived lead has no owner any more, so a second run finds nothing.
	require.NoError(t, job.Run(context.Background()))
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

// racingStore lets a broker act on the lead after FindStale selected it.
type racingStore struct {
	*clients.Repository
	afterFind func([]models.Client)
}

func (s *racingStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Client, error) {
	rows, err := s.Repository.FindStale(ctx, cutoff, limit)
	if err == nil {
		s.afterFind(rows)
	}
	return rows, err
}

func TestStaleLeadJobSkipsLeadsChangedAfterSelection(t *testing.T) {
	conn, err := db.OpenInMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Client{}, &models.ClientEvent{}, &models.OutboxEvent{}))
	repo := clients.NewRepository(conn)
	ctx := context.Background()

	now := time.Date(2025, 4, 30, 6, 0, 0, 0, time.UTC)
	owner, other := uuid.New(), uuid.New()
	old := now.AddDate(0, 0, -60)

	sold := &models.Client{Name: "Sold", OwnerID: &owner, Status: enums.ClientStatusInteressado, CreatedAt: &old,
		Events: []models.ClientEvent{{Type: enums.TimelineLigacao, OccurredAt: old}}}
	moved := &models.Client{Name: "Moved", OwnerID: &owner, Status: enums.ClientStatusInteressado, CreatedAt: &old,
		Events: []models.ClientEvent{{Type: enums.TimelineLigacao, OccurredAt: old}}}
	for _, c := range []*models.Client{sold, moved} {
		require.NoError(t, repo.Create(ctx, nil, c))
	}

	store := &racingStore{Repository: repo, afterFind: func(rows []models.Client) {
		require.Len(t, rows, 2)
		require.NoError(t, conn.Model(&models.Client{}).Where("id = ?", sold.ID).Updates(map[string]any{
			"status":     enums.ClientStatusVendaGerada,
			"sale_value": decimal.RequireFromString("420000.00"),
		}).Error)
		require.NoError(t, repo.AppendEvent(ctx, nil, &models.ClientEvent{
			ClientID: sold.ID, Type: enums.TimelineVendaGerada, OccurredAt: now.Add(-time.Hour),
		}))
		require.NoError(t, conn.Model(&models.Client{}).Where("id = ?", moved.ID).Update("owner_id", other).Error)
	}}

	job, err := NewStaleLeadJob(StaleLeadJobParams{
		Logger:  logger.Nop(),
		Clients: store,
		Tx:      db.NewFromConn(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Days:    30,
	})
	require.NoError(t, err)
	job.(*staleLeadJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(ctx))

	got, err := repo.FindByID(ctx, nil, sold.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ClientStatusVendaGerada, got.Status)
	require.True(t, got.SaleValue.Valid)
	require.True(t, decimal.RequireFromString("420000").Equal(got.SaleValue.Decimal))
	require.Equal(t, owner, *got.OwnerID)
	require.False(t, got.IsArchived)
	require.Len(t, got.Events, 2)

	reassigned, err := repo.FindByID(ctx, nil, moved.ID)
	require.NoError(t, err)
	require.Equal(t, other, *reassigned.OwnerID)
	require.False(t, reassigned.IsArchived)
	require.Len(t, reassigned.Events, 1)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}
