package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/mailer"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeFollowUps struct {
	rows     []models.Client
	from, to time.Time
}

func (f *fakeFollowUps) FindDueFollowUps(_ context.Context, from, to time.Time) ([]models.Client, error) {
	f.from, f.to = from, to
	return f.rows, nil
}

type fakeOwners map[uuid.UUID]*models.User

func (f fakeOwners) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeDedupe struct {
	keys map[string]bool
}

func (f *fakeDedupe) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeDedupe) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.keys, k)
	}
	return nil
}

func (f *fakeDedupe) DedupeKey(scope string, parts ...string) string {
	return "crm:dedupe:" + scope + ":" + strings.Join(parts, ":")
}

type fakeSender struct {
	digests []mailer.Digest
	err     error
}

func (f *fakeSender) SendFollowUpDigest(_ context.Context, d mailer.Digest) error {
	if f.err != nil {
		return f.err
	}
	f.digests = append(f.digests, d)
	return nil
}

type reminderFixture struct {
	job    *followUpRemindersJob
	finder *fakeFollowUps
	dedupe *fakeDedupe
	sender *fakeSender
	owner  *models.User
	now    time.Time
}

func newReminderFixture(t *testing.T) *reminderFixture {
	t.Helper()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	owner := &models.User{ID: uuid.New(), Name: "Rita", Email: "rita@imob.com", IsActive: true}
	idle := &models.User{ID: uuid.New(), Name: "Off", Email: "off@imob.com"}

	due := now.Add(3 * time.Hour)
	phone := "+55 11 90000-0000"
	finder := &fakeFollowUps{rows: []models.Client{
		{ID: uuid.New(), Name: "Cliente A", OwnerID: &owner.ID, FollowUpAt: &due, Phone: &phone, Status: enums.ClientStatusInteressado},
		{ID: uuid.New(), Name: "Cliente B", OwnerID: &owner.ID, FollowUpAt: &due, Status: enums.ClientStatusPrimeiroAtendimento},
		{ID: uuid.New(), Name: "Cliente C", OwnerID: &idle.ID, FollowUpAt: &due},
	}}

	f := &reminderFixture{
		finder: finder,
		dedupe: &fakeDedupe{keys: map[string]bool{}},
		sender: &fakeSender{},
		owner:  owner,
		now:    now,
	}
	job, err := NewFollowUpRemindersJob(FollowUpRemindersJobParams{
		Logger:    logger.Nop(),
		Clients:   finder,
		Users:     fakeOwners{owner.ID: owner, idle.ID: idle},
		Dedupe:    f.dedupe,
		Mailer:    f.sender,
		Lookahead: 12 * time.Hour,
	})
	require.NoError(t, err)
	f.job = job.(*followUpRemindersJob)
	f.job.now = func() time.Time { return now }
	return f
}

func TestFollowUpRemindersSendsOneDigestPerOwner(t *testing.T) {
	f := newReminderFixture(t)

	require.NoError(t, f.job.Run(context.Background()))
	require.True(t, f.finder.from.Equal(f.now))
	require.True(t, f.finder.to.Equal(f.now.Add(12*time.Hour)))

	require.Len(t, f.sender.digests, 1)
	digest := f.sender.digests[0]
	require.Equal(t, "rita@imob.com", digest.To)
	require.Len(t, digest.FollowUps, 2)
	require.Equal(t, "+55 11 90000-0000", digest.FollowUps[0].Phone)
}

func TestFollowUpRemindersAreDeduplicated(t *testing.T) {
	f := newReminderFixture(t)
	require.NoError(t, f.job.Run(context.Background()))
	require.NoError(t, f.job.Run(context.Background()))
	require.Len(t, f.sender.digests, 1)
}

func TestFollowUpRemindersReleaseClaimsOnSendFailure(t *testing.T) {
	f := newReminderFixture(t)
	f.sender.err = errors.New("smtp down")

	require.Error(t, f.job.Run(context.Background()))
	require.Empty(t, f.dedupe.keys)

	f.sender.err = nil
	require.NoError(t, f.job.Run(context.Background()))
	require.Len(t, f.sender.digests, 1)
}

func TestFollowUpRemindersReportMissingOwner(t *testing.T) {
	f := newReminderFixture(t)
	stray := uuid.New()
	due := f.now.Add(time.Hour)
	f.finder.rows = append(f.finder.rows, models.Client{ID: uuid.New(), OwnerID: &stray, FollowUpAt: &due})

	err := f.job.Run(context.Background())
	require.Error(t, err)
	// The healthy owner still gets a digest.
	require.Len(t, f.sender.digests, 1)
}
