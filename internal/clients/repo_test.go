package clients

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/internal/bi"
	"github.com/imobcrm/crm-backend/pkg/db"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRepo(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	conn, err := db.OpenInMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Client{}, &models.ClientEvent{}))
	return NewRepository(conn), conn
}

func day(d, h int) time.Time {
	return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC)
}

func seed(t *testing.T, repo *Repository, owner *uuid.UUID, status enums.ClientStatus, created time.Time, events ...models.ClientEvent) *models.Client {
	t.Helper()
	c := &models.Client{Name: "c", OwnerID: owner, Status: status, CreatedAt: &created, Events: events}
	require.NoError(t, repo.Create(context.Background(), nil, c))
	return c
}

func ev(typ enums.TimelineEventType, at time.Time) models.ClientEvent {
	return models.ClientEvent{Type: typ, OccurredAt: at}
}

func TestFindClientsSelectsByWindowActivity(t *testing.T) {
	repo, _ := newRepo(t)
	owner := uuid.New()
	other := uuid.New()

	inside := seed(t, repo, &owner, enums.ClientStatusInteressado, day(1, 9),
		ev(enums.TimelineLigacao, day(1, 10)),
		ev(enums.TimelineObservacao, day(5, 10)))
	seed(t, repo, &owner, enums.ClientStatusInteressado, day(1, 9), ev(enums.TimelineLigacao, day(20, 10)))
	seed(t, repo, &other, enums.ClientStatusInteressado, day(1, 9), ev(enums.TimelineLigacao, day(5, 10)))
	pooled := seed(t, repo, nil, enums.ClientStatusArquivado, day(1, 9), ev(enums.TimelineLigacao, day(5, 10)))

	q := bi.ClientQuery{Query: bi.Query{Start: day(4, 0), End: day(6, 0), OwnerIDs: []uuid.UUID{owner}}}
	rows, err := repo.FindClients(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, inside.ID, rows[0].ID)
	// The whole timeline comes back, not just the in-window slice.
	require.Len(t, rows[0].Events, 2)
	require.True(t, rows[0].Events[0].OccurredAt.Before(rows[0].Events[1].OccurredAt))

	q.OwnerIDs = nil
	rows, err = repo.FindClients(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	q.IncludeUnassigned = true
	rows, err = repo.FindClients(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	typ := enums.TimelineLigacao
	q.EventType = &typ
	q.Statuses = []enums.ClientStatus{enums.ClientStatusArquivado}
	rows, err = repo.FindClients(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, pooled.ID, rows[0].ID)
}

func TestFindDueFollowUps(t *testing.T) {
	repo, conn := newRepo(t)
	owner := uuid.New()

	due := seed(t, repo, &owner, enums.ClientStatusInteressado, day(1, 9))
	late := seed(t, repo, &owner, enums.ClientStatusInteressado, day(1, 9))
	pooled := seed(t, repo, nil, enums.ClientStatusInteressado, day(1, 9))
	require.NoError(t, conn.Model(due).Update("follow_up_at", day(10, 14)).Error)
	require.NoError(t, conn.Model(late).Update("follow_up_at", day(12, 14)).Error)
	require.NoError(t, conn.Model(pooled).Update("follow_up_at", day(10, 15)).Error)

	rows, err := repo.FindDueFollowUps(context.Background(), day(10, 0), day(10, 23))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, due.ID, rows[0].ID)
}

func TestFindStale(t *testing.T) {
	repo, _ := newRepo(t)
	owner := uuid.New()
	cutoff := day(15, 0)

	stale := seed(t, repo, &owner, enums.ClientStatusInteressado, day(1, 9), ev(enums.TimelineLigacao, day(2, 9)))
	seed(t, repo, &owner, enums.ClientStatusInteressado, day(1, 9), ev(enums.TimelineLigacao, day(16, 9)))
	seed(t, repo, &owner, enums.ClientStatusVendaGerada, day(1, 9), ev(enums.TimelineVendaGerada, day(2, 9)))
	seed(t, repo, &owner, enums.ClientStatusPrimeiroAtendimento, day(15, 9))
	silent := seed(t, repo, &owner, enums.ClientStatusPrimeiroAtendimento, day(3, 9))

	rows, err := repo.FindStale(context.Background(), cutoff, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, stale.ID, rows[0].ID)
	require.Equal(t, silent.ID, rows[1].ID)

	rows, err = repo.FindStale(context.Background(), cutoff, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestListSearchMatchesNameEmailAndPhone(t *testing.T) {
	repo, _ := newRepo(t)
	owner := uuid.New()
	email := "joao@imob.com"
	c := &models.Client{Name: "João Lima", Email: &email, OwnerID: &owner, Status: enums.ClientStatusInteressado}
	require.NoError(t, repo.Create(context.Background(), nil, c))
	seed(t, repo, &owner, enums.ClientStatusInteressado, day(1, 9))

	rows, err := repo.List(context.Background(), listQuery{search: "IMOB", limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, c.ID, rows[0].ID)
}
