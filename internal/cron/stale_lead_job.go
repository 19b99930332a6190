package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/db"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/outbox"
	"github.com/imobcrm/crm-backend/pkg/outbox/payloads"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultStaleLeadDays  = 30
	defaultStaleLeadBatch = 200
	staleLeadNote         = "Lead devolvido ao bolsão após %d dias sem interação"
)

type staleLeadStore interface {
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Client, error)
	ReturnToPool(ctx context.Context, tx *gorm.DB, id, owner uuid.UUID, cutoff time.Time) (bool, error)
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Client, error)
	AppendEvent(ctx context.Context, tx *gorm.DB, event *models.ClientEvent) error
}

type StaleLeadJobParams struct {
	Logger  *logger.Logger
	Clients staleLeadStore
	Tx      db.TxRunner
	Outbox  outbox.Emitter
	Days    int
	Batch   int
}

// NewStaleLeadJob returns idle leads to the pool. A lead is idle when it is
// owned, unsold and has had no timeline activity for Days days.
func NewStaleLeadJob(params StaleLeadJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Clients == nil:
		return nil, fmt.Errorf("clients repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	days := params.Days
	if days <= 0 {
		days = defaultStaleLeadDays
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultStaleLeadBatch
	}
	return &staleLeadJob{
		logg:    params.Logger,
		clients: params.Clients,
		tx:      params.Tx,
		outbox:  params.Outbox,
		days:    days,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type staleLeadJob struct {
	logg    *logger.Logger
	clients staleLeadStore
	tx      db.TxRunner
	outbox  outbox.Emitter
	days    int
	batch   int
	now     func() time.Time
}

func (j *staleLeadJob) Name() string { return "stale-lead-archiver" }

func (j *staleLeadJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.AddDate(0, 0, -j.days)
	stale, err := j.clients.FindStale(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("find stale leads: %w", err)
	}

	var errs error
	archived, skipped := 0, 0
	for i := range stale {
		if stale[i].OwnerID == nil {
			continue
		}
		ok, err := j.archive(ctx, stale[i].ID, *stale[i].OwnerID, cutoff, now)
		switch {
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("archive %s: %w", stale[i].ID, err))
		case ok:
			archived++
		default:
			skipped++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"found":    len(stale),
		"archived": archived,
		"skipped":  skipped,
	}), "stale leads returned to pool")
	return errs
}

// archive re-checks staleness inside the transaction. A lead that changed
// after FindStale is skipped and reported as false.
func (j *staleLeadJob) archive(ctx context.Context, id, owner uuid.UUID, cutoff, now time.Time) (bool, error) {
	archived := false
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.clients.ReturnToPool(ctx, tx, id, owner, cutoff)
		if err != nil || !ok {
			return err
		}
		client, err := j.clients.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		archived = true

		note := fmt.Sprintf(staleLeadNote, j.days)
		event := models.ClientEvent{
			ClientID:   client.ID,
			Type:       enums.TimelineObservacao,
			Content:    &note,
			OccurredAt: now,
		}
		if err := j.clients.AppendEvent(ctx, tx, &event); err != nil {
			return err
		}

		snapshot := payloads.ClientSnapshot{
			ClientID: client.ID,
			Status:   client.Status,
			Origin:   client.Origin,
			Source:   client.Source,
			Archived: true,
		}
		if client.SaleValue.Valid {
			v := client.SaleValue.Decimal
			snapshot.SaleValue = &v
		}
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLeadArchived,
			AggregateType: enums.AggregateClient,
			AggregateID:   client.ID,
			Data: payloads.ClientChangedEvent{
				Client:          snapshot,
				PreviousOwnerID: &owner,
				Timeline: &payloads.TimelineEntry{
					EventID:    event.ID,
					Type:       event.Type,
					OccurredAt: now,
				},
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return false, err
	}
	return archived, nil
}
