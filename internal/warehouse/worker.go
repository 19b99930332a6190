package warehouse

import (
	"context"
	"errors"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/outbox/registry"
)

// ConsumerName scopes idempotency markers for this worker.
const ConsumerName = "warehouse"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type eventDecoder interface {
	Decode(eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, raw []byte) (*registry.ResolvedEvent, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

type rowWriter interface {
	Insert(ctx context.Context, row TimelineFactRow) error
	Flush(ctx context.Context) error
}

// WorkerParams bundles the worker dependencies.
type WorkerParams struct {
	Subscription receiver
	Decoder      eventDecoder
	Idempotency  idempotencyChecker
	Writer       rowWriter
	Logger       *logger.Logger
}

// Worker consumes CRM events from Pub/Sub and lands them in BigQuery.
type Worker struct {
	subscription receiver
	decoder      eventDecoder
	idempotency  idempotencyChecker
	writer       rowWriter
	logg         *logger.Logger
	now          func() time.Time
}

func NewWorker(params WorkerParams) (*Worker, error) {
	switch {
	case params.Subscription == nil:
		return nil, errors.New("warehouse subscription is required")
	case params.Decoder == nil:
		return nil, errors.New("event decoder is required")
	case params.Idempotency == nil:
		return nil, errors.New("idempotency manager is required")
	case params.Writer == nil:
		return nil, errors.New("warehouse writer is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Worker{
		subscription: params.Subscription,
		decoder:      params.Decoder,
		idempotency:  params.Idempotency,
		writer:       params.Writer,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

type outcome struct {
	nack bool
}

// Run receives until ctx is canceled, then flushes buffered rows.
func (w *Worker) Run(ctx context.Context) error {
	err := w.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if w.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if flushErr := w.writer.Flush(flushCtx); flushErr != nil {
		w.logg.Error(ctx, "final warehouse flush failed", flushErr)
	}
	return err
}

func (w *Worker) process(ctx context.Context, msg *gcppubsub.Message) outcome {
	fields := map[string]any{
		"message_id":     msg.ID,
		"event_id":       attr(msg, "event_id"),
		"event_type":     attr(msg, "event_type"),
		"aggregate_type": attr(msg, "aggregate_type"),
		"aggregate_id":   attr(msg, "aggregate_id"),
	}
	logCtx := w.logg.WithFields(ctx, fields)

	event, err := w.decoder.Decode(
		enums.OutboxEventType(attr(msg, "event_type")),
		enums.OutboxAggregateType(attr(msg, "aggregate_type")),
		msg.Data,
	)
	if err != nil {
		// Malformed messages never become valid; redelivery would loop.
		w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "invalid warehouse envelope")
		return outcome{}
	}
	eventID := event.Envelope.EventID

	already, err := w.idempotency.CheckAndMarkProcessed(logCtx, ConsumerName, eventID)
	if err != nil {
		w.logg.Error(logCtx, "idempotency check failed", err)
		return outcome{nack: true}
	}
	if already {
		w.logg.Debug(logCtx, "event already processed")
		return outcome{}
	}

	row, err := BuildTimelineFact(event, w.now())
	if err != nil {
		w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "unmappable warehouse event")
		return outcome{}
	}
	if err := w.writer.Insert(logCtx, row); err != nil {
		w.logg.Error(logCtx, "warehouse insert failed", err)
		if relErr := w.idempotency.Release(logCtx, ConsumerName, eventID); relErr != nil {
			w.logg.Error(logCtx, "idempotency release failed", relErr)
		}
		return outcome{nack: true}
	}

	w.logg.Debug(logCtx, "warehouse event stored")
	return outcome{}
}

func attr(msg *gcppubsub.Message, key string) string {
	return strings.TrimSpace(msg.Attributes[key])
}
