package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/shopsync/internal/collections"
	"github.com/odyssey-erp/shopsync/internal/customers"
	"github.com/odyssey-erp/shopsync/internal/engine"
	jobmetrics "github.com/odyssey-erp/shopsync/internal/jobs"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/lock"
	"github.com/odyssey-erp/shopsync/internal/orders"
	"github.com/odyssey-erp/shopsync/internal/products"
	"github.com/odyssey-erp/shopsync/internal/promotions"
	"github.com/odyssey-erp/shopsync/internal/remote"
	"github.com/odyssey-erp/shopsync/internal/tutorials"
)

// Engine bundles the sync components shared by the server, worker and CLI.
type Engine struct {
	Orchestrator *engine.Orchestrator
	Service      *engine.Service
	Events       *ledger.EventLog
	Metrics      *jobmetrics.Metrics
}

// NewEngine wires repositories, the remote client, the run lock and metrics.
// A nil redisClient disables the cross-process lock; registerer nil uses the
// default Prometheus registerer.
func NewEngine(cfg *Config, pool *pgxpool.Pool, redisClient redis.UniversalClient, logger *slog.Logger, registerer prometheus.Registerer) (*Engine, error) {
	client, err := remote.NewHTTPClient(cfg.Remote(), nil, logger.With(slog.String("component", "remote")))
	if err != nil {
		return nil, fmt.Errorf("app: remote client: %w", err)
	}
	events := ledger.NewEventLog(pool, logger.With(slog.String("component", "eventlog")))
	resolver := ledger.NewResolver(ledger.NewPGLookup(pool))
	catalog := remote.NewCatalog(client, cfg.TutorialsCollectionID, cfg.TutorialTag)
	engineLogger := logger.With(slog.String("component", "engine"))

	var locker lock.Locker
	if redisClient != nil {
		locker = lock.NewRedisLocker(redisClient, "")
	}
	metrics := jobmetrics.NewMetrics(registerer)

	orchestrator := engine.NewOrchestrator(engine.Deps{
		Requester:   client,
		Resolver:    resolver,
		Products:    products.NewRepository(pool),
		Collections: collections.NewRepository(pool),
		Customers:   customers.NewRepository(pool),
		Orders:      orders.NewRepository(pool),
		Promotions:  promotions.NewRepository(pool),
		Reconciler:  engine.NewReconciler(tutorials.NewRepository(pool), catalog, events, engineLogger, cfg.SyncPageSize),
	}, engine.Options{
		PageSize:  cfg.SyncPageSize,
		LockTTL:   cfg.SyncLockTTL,
		Locker:    locker,
		Metrics:   metrics,
		Events:    events,
		Logger:    engineLogger,
		MirrorTag: cfg.TutorialTag,
	})
	return &Engine{
		Orchestrator: orchestrator,
		Service:      engine.NewService(orchestrator),
		Events:       events,
		Metrics:      metrics,
	}, nil
}
