package cron

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/mailer"
	"go.uber.org/multierr"
)

const (
	defaultFollowUpLookahead = 24 * time.Hour
	reminderDedupeScope      = "followup"
)

type followUpFinder interface {
	FindDueFollowUps(ctx context.Context, from, to time.Time) ([]models.Client, error)
}

type ownerLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type reminderDeduper interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	DedupeKey(scope string, parts ...string) string
}

type FollowUpRemindersJobParams struct {
	Logger    *logger.Logger
	Clients   followUpFinder
	Users     ownerLookup
	Dedupe    reminderDeduper
	Mailer    mailer.Sender
	Lookahead time.Duration
	Location  *time.Location
}

// NewFollowUpRemindersJob emails every owner a digest of the follow-ups due
// within the lookahead. Each (client, follow-up day) is reminded once.
func NewFollowUpRemindersJob(params FollowUpRemindersJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Clients == nil:
		return nil, fmt.Errorf("clients repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Dedupe == nil:
		return nil, fmt.Errorf("dedupe store required")
	case params.Mailer == nil:
		return nil, fmt.Errorf("mailer required")
	}
	lookahead := params.Lookahead
	if lookahead <= 0 {
		lookahead = defaultFollowUpLookahead
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &followUpRemindersJob{
		logg:      params.Logger,
		clients:   params.Clients,
		users:     params.Users,
		dedupe:    params.Dedupe,
		mailer:    params.Mailer,
		lookahead: lookahead,
		loc:       loc,
		now:       time.Now,
	}, nil
}

type followUpRemindersJob struct {
	logg      *logger.Logger
	clients   followUpFinder
	users     ownerLookup
	dedupe    reminderDeduper
	mailer    mailer.Sender
	lookahead time.Duration
	loc       *time.Location
	now       func() time.Time
}

func (j *followUpRemindersJob) Name() string { return "followup-reminders" }

func (j *followUpRemindersJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.clients.FindDueFollowUps(ctx, now, now.Add(j.lookahead))
	if err != nil {
		return fmt.Errorf("find due follow-ups: %w", err)
	}

	byOwner := map[uuid.UUID][]models.Client{}
	for _, c := range due {
		if c.OwnerID == nil || c.FollowUpAt == nil {
			continue
		}
		byOwner[*c.OwnerID] = append(byOwner[*c.OwnerID], c)
	}

	owners := make([]uuid.UUID, 0, len(byOwner))
	for id := range byOwner {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(a, b int) bool { return owners[a].String() < owners[b].String() })

	var errs error
	sent := 0
	for _, ownerID := range owners {
		n, err := j.remindOwner(ctx, ownerID, byOwner[ownerID])
		sent += n
		errs = multierr.Append(errs, err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"due":       len(due),
		"owners":    len(owners),
		"reminders": sent,
	}), "follow-up reminders processed")
	return errs
}

// remindOwner sends one digest with the owner's not-yet-reminded follow-ups.
// Claimed dedupe keys are released when the send fails so the next cycle retries.
func (j *followUpRemindersJob) remindOwner(ctx context.Context, ownerID uuid.UUID, clients []models.Client) (int, error) {
	owner, err := j.users.FindByID(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("load owner %s: %w", ownerID, err)
	}
	if !owner.IsActive || owner.Email == "" {
		return 0, nil
	}

	ttl := j.lookahead + 24*time.Hour
	var claimed []string
	digest := mailer.Digest{To: owner.Email, Name: owner.Name}
	for _, c := range clients {
		key := j.dedupe.DedupeKey(reminderDedupeScope, c.ID.String(), c.FollowUpAt.In(j.loc).Format(time.DateOnly))
		fresh, err := j.dedupe.SetNX(ctx, key, ownerID.String(), ttl)
		if err != nil {
			return 0, multierr.Append(fmt.Errorf("claim reminder: %w", err), j.release(ctx, claimed))
		}
		if !fresh {
			continue
		}
		claimed = append(claimed, key)
		item := mailer.FollowUp{ClientName: c.Name, Status: string(c.Status), DueAt: *c.FollowUpAt}
		if c.Phone != nil {
			item.Phone = *c.Phone
		}
		digest.FollowUps = append(digest.FollowUps, item)
	}
	if len(digest.FollowUps) == 0 {
		return 0, nil
	}

	if err := j.mailer.SendFollowUpDigest(ctx, digest); err != nil {
		return 0, multierr.Append(fmt.Errorf("send digest to %s: %w", ownerID, err), j.release(ctx, claimed))
	}
	return len(digest.FollowUps), nil
}

func (j *followUpRemindersJob) release(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return j.dedupe.Del(ctx, keys...)
}
