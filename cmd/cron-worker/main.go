package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imobcrm/crm-backend/internal/clients"
	"github.com/imobcrm/crm-backend/internal/cron"
	"github.com/imobcrm/crm-backend/internal/users"
	"github.com/imobcrm/crm-backend/pkg/config"
	"github.com/imobcrm/crm-backend/pkg/db"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/mailer"
	"github.com/imobcrm/crm-backend/pkg/metrics"
	"github.com/imobcrm/crm-backend/pkg/migrate"
	"github.com/imobcrm/crm-backend/pkg/outbox"
	"github.com/imobcrm/crm-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	clientRepo := clients.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	registry := cron.NewRegistry()

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(retention); err != nil {
		return nil, err
	}

	stale, err := cron.NewStaleLeadJob(cron.StaleLeadJobParams{
		Logger:  logg,
		Clients: clientRepo,
		Tx:      dbClient,
		Outbox:  outbox.NewService(outboxRepo, logg),
		Days:    cfg.Cron.StaleLeadDays,
		Batch:   cfg.Cron.StaleLeadBatch,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(stale); err != nil {
		return nil, err
	}

	if !cfg.SMTP.Enabled() {
		logg.Warn(context.Background(), "smtp not configured, follow-up reminders disabled")
		return registry, nil
	}

	loc := cfg.Cron.Location()
	sender, err := mailer.NewSMTPSender(cfg.SMTP, loc)
	if err != nil {
		return nil, err
	}
	reminders, err := cron.NewFollowUpRemindersJob(cron.FollowUpRemindersJobParams{
		Logger:    logg,
		Clients:   clientRepo,
		Users:     users.NewRepository(dbClient.DB()),
		Dedupe:    redisClient,
		Mailer:    sender,
		Lookahead: cfg.Cron.FollowUpLookahead,
		Location:  loc,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(reminders); err != nil {
		return nil, err
	}
	return registry, nil
}
