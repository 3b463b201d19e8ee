package main

import (
	"context"
	"database/sql"
	"log/slog"

	catalogstore "medisupply/internal/catalog/store"
	compliancemetrics "medisupply/internal/compliance/metrics"
	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	compliancestore "medisupply/internal/compliance/store"
	ordersstore "medisupply/internal/orders/store"
	"medisupply/internal/platform/config"
	"medisupply/internal/platform/logger"
	"medisupply/internal/platform/postgres"
	"medisupply/pkg/platform/audit/publisher"
	auditpostgres "medisupply/pkg/platform/audit/store/postgres"
)

// deps is what every subcommand runs against. The job always works on
// Postgres; in-memory stores would lose their results on exit.
type deps struct {
	cfg     *config.Config
	log     *slog.Logger
	db      *sql.DB
	service *service.Service
	audit   *publisher.Publisher
}

func openDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log).With("component", "compliance-job")

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.ApplySchema {
		if err := postgres.ApplySchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	thresholds, err := models.NewThresholds(cfg.Compliance.OKThreshold, cfg.Compliance.WarningThreshold)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	pub := publisher.NewPublisher(auditpostgres.New(db), publisher.WithLogger(log))
	svc := service.New(compliancestore.NewPostgres(db),
		service.WithLogger(log),
		service.WithMetrics(compliancemetrics.New()),
		service.WithAuditor(pub),
		service.WithThresholds(thresholds),
		service.WithConcurrency(cfg.Compliance.Concurrency),
		service.WithOrders(ordersstore.NewPostgres(db), catalogstore.NewPostgres(db)),
	)
	return &deps{cfg: cfg, log: log, db: db, service: svc, audit: pub}, nil
}

func (d *deps) Close() {
	d.audit.Close()
	_ = d.db.Close()
}
