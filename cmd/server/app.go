package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	catalogstore "medisupply/internal/catalog/store"
	compliancemetrics "medisupply/internal/compliance/metrics"
	"medisupply/internal/compliance/models"
	complianceservice "medisupply/internal/compliance/service"
	compliancestore "medisupply/internal/compliance/store"
	inventorymetrics "medisupply/internal/inventory/metrics"
	inventoryservice "medisupply/internal/inventory/service"
	inventorystore "medisupply/internal/inventory/store"
	"medisupply/internal/orders/idempotency"
	ordersmetrics "medisupply/internal/orders/metrics"
	ordersservice "medisupply/internal/orders/service"
	ordersstore "medisupply/internal/orders/store"
	"medisupply/internal/platform/config"
	"medisupply/internal/platform/kafka"
	"medisupply/internal/platform/postgres"
	"medisupply/internal/platform/redis"
	"medisupply/pkg/platform/audit"
	"medisupply/pkg/platform/audit/publisher"
	"medisupply/pkg/platform/audit/relay"
	auditmemory "medisupply/pkg/platform/audit/store/memory"
	auditpostgres "medisupply/pkg/platform/audit/store/postgres"
)

// orderStore is the order store as seen by both the lifecycle engine and
// the sales snapshot builder.
type orderStore interface {
	ordersservice.Store
	complianceservice.Orders
}

// app holds the wired services and the resources to release on exit.
type app struct {
	inventory  *inventoryservice.Service
	orders     *ordersservice.Service
	compliance *complianceservice.Service
	relay      *relay.Relay
	checks     map[string]func(context.Context) error
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build selects Postgres when a database URL is configured and in-memory
// stores with demo data otherwise. Redis and Kafka are optional in both.
func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{checks: map[string]func(context.Context) error{}}

	var (
		db          *sql.DB
		catalog     catalogstore.Source
		memCatalog  *catalogstore.InMemory
		invStore    inventoryservice.Store
		orders      orderStore
		compStore   complianceservice.Store
		memCompl    *compliancestore.InMemory
		auditStore  audit.Store
		outboxStore *auditpostgres.Store
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if cfg.Database.ApplySchema {
			if err := postgres.ApplySchema(ctx, db); err != nil {
				a.Close()
				return nil, err
			}
		}
		a.checks["postgres"] = db.PingContext
		catalog = catalogstore.NewPostgres(db)
		invStore = inventorystore.NewPostgres(db)
		orders = ordersstore.NewPostgres(db)
		compStore = compliancestore.NewPostgres(db)
		outboxStore = auditpostgres.New(db)
		auditStore = outboxStore
		log.Info("using postgres stores")
	} else {
		memCatalog = catalogstore.NewInMemory()
		memCompl = compliancestore.NewInMemory()
		catalog = memCatalog
		invStore = inventorystore.NewInMemory()
		orders = ordersstore.NewInMemory()
		compStore = memCompl
		auditStore = auditmemory.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	pub := publisher.NewPublisher(auditStore, publisher.WithLogger(log))
	a.closers = append(a.closers, pub.Close)

	var idem ordersservice.IdempotencyStore = idempotency.NewInMemory()
	productCatalog := catalog
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.checks["redis"] = rdb.Health
		productCatalog = catalogstore.NewCached(catalog, rdb.Client, cfg.Catalog.CacheTTL, log)
		idem = idempotency.NewRedis(rdb.Client)
		log.Info("redis catalog cache and idempotency enabled")
	}

	a.inventory = inventoryservice.New(invStore,
		inventoryservice.WithLogger(log),
		inventoryservice.WithMetrics(inventorymetrics.New()),
		inventoryservice.WithAuditor(pub),
	)
	a.orders = ordersservice.New(orders, a.inventory, productCatalog,
		ordersservice.WithLogger(log),
		ordersservice.WithMetrics(ordersmetrics.New()),
		ordersservice.WithAuditor(pub),
		ordersservice.WithIdempotency(idem, cfg.Orders.IdempotencyTTL),
	)
	thresholds, err := models.NewThresholds(cfg.Compliance.OKThreshold, cfg.Compliance.WarningThreshold)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.compliance = complianceservice.New(compStore,
		complianceservice.WithLogger(log),
		complianceservice.WithMetrics(compliancemetrics.New()),
		complianceservice.WithAuditor(pub),
		complianceservice.WithThresholds(thresholds),
		complianceservice.WithConcurrency(cfg.Compliance.Concurrency),
		complianceservice.WithOrders(orders, productCatalog),
	)

	if memCatalog != nil && cfg.Server.SeedDemoData {
		if err := seedDemo(ctx, memCatalog, memCompl, a.inventory, a.compliance); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
		log.Info("demo data seeded")
	}

	if cfg.Kafka.Enabled() {
		if outboxStore == nil {
			log.Warn("kafka configured without postgres; audit outbox relay disabled")
			return a, nil
		}
		client, err := kafka.NewClient(cfg.Kafka, kgo.DefaultProduceTopic(cfg.Kafka.AuditTopic))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		if err := kafka.EnsureTopics(ctx, client, cfg.Kafka.Partitions, cfg.Kafka.AuditTopic); err != nil {
			a.Close()
			return nil, err
		}
		a.checks["kafka"] = client.Ping
		a.relay = relay.New(outboxStore, client, cfg.Kafka.AuditTopic,
			cfg.Kafka.RelayInterval, cfg.Kafka.RelayBatchSize, log)
		log.Info("audit outbox relay enabled", "topic", cfg.Kafka.AuditTopic)
	}
	return a, nil
}
