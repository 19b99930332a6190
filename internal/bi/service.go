package bi

import (
	"context"
	"fmt"
	"time"

	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Service computes the BI dashboards. Every call reads fresh data; nothing is cached.
type Service interface {
	KPIs(ctx context.Context, q Query) (*KPIs, error)
	Funnel(ctx context.Context, q Query) (*Funnel, error)
	ConversionSeries(ctx context.Context, q Query) ([]SeriesPoint, error)
}

type recorder interface {
	ObserveAggregation(op string, elapsed time.Duration, population int)
}

type service struct {
	source  Source
	logg    *logger.Logger
	metrics recorder
	now     func() time.Time
}

// ServiceParams bundles the dependencies of the BI service.
type ServiceParams struct {
	Source  Source
	Logger  *logger.Logger
	Metrics recorder
}

func NewService(params ServiceParams) (Service, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("bi source is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		source:  params.Source,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// KPIs fans out the sales, calls and documentation reads concurrently. The
// first failing read cancels the others and its error is returned as is.
func (s *service) KPIs(ctx context.Context, q Query) (*KPIs, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	started := s.now()

	var sales, calls, docs []models.Client
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sales, err = s.source.FindClients(gctx, q.withEventType(enums.TimelineVendaGerada))
		return err
	})
	g.Go(func() (err error) {
		calls, err = s.source.FindClients(gctx, q.withEventType(enums.TimelineLigacao))
		return err
	})
	g.Go(func() (err error) {
		docs, err = s.source.FindClients(gctx, q.withStatuses(enums.DocumentationStatuses...))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kpis := computeKPIs(q, sales, calls, docs)
	s.observe(ctx, "kpis", q, started, len(sales)+len(calls)+len(docs))
	return &kpis, nil
}

func (s *service) Funnel(ctx context.Context, q Query) (*Funnel, error) {
	population, started, err := s.population(ctx, q)
	if err != nil {
		return nil, err
	}
	funnel := computeFunnel(population)
	s.observe(ctx, "funnel", q, started, len(population))
	return &funnel, nil
}

func (s *service) ConversionSeries(ctx context.Context, q Query) ([]SeriesPoint, error) {
	population, started, err := s.population(ctx, q)
	if err != nil {
		return nil, err
	}
	points := buildSeries(population, q)
	s.observe(ctx, "conversion_series", q, started, len(population))
	return points, nil
}

func (s *service) population(ctx context.Context, q Query) ([]models.Client, time.Time, error) {
	if err := q.Validate(); err != nil {
		return nil, time.Time{}, err
	}
	started := s.now()
	base := ClientQuery{Query: q}
	clients, err := s.source.FindClients(ctx, base)
	if err != nil {
		return nil, started, err
	}
	return filterPopulation(clients, base), started, nil
}

func (s *service) observe(ctx context.Context, op string, q Query, started time.Time, population int) {
	elapsed := s.now().Sub(started)
	if s.metrics != nil {
		s.metrics.ObserveAggregation(op, elapsed, population)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"population":  population,
		"duration_ms": elapsed.Milliseconds(),
		"start":       dayKey(q.Start),
		"end":         dayKey(q.End),
		"owners":      len(q.OwnerIDs),
	})
	s.logg.Info(ctx, "bi."+op+".complete")
}
