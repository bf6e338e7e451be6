package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/shopsync/cmd/synctl/cli"
	"github.com/odyssey-erp/shopsync/internal/app"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/platform/cache"
	"github.com/odyssey-erp/shopsync/internal/platform/db"
	"github.com/odyssey-erp/shopsync/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := &envBackend{}
	err := cli.NewRootCommand(backend).ExecuteContext(ctx)
	if closeErr := backend.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// envBackend connects to Postgres and Redis on first use, configured from
// the environment.
type envBackend struct {
	cfg       *app.Config
	logger    *slog.Logger
	pool      *pgxpool.Pool
	redis     *redis.Client
	client    *jobs.Client
	inspector *asynq.Inspector
}

func (b *envBackend) config() (*app.Config, error) {
	if b.cfg != nil {
		return b.cfg, nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	b.cfg = cfg
	b.logger = app.NewLogger(cfg).With(slog.String("process", "synctl"))
	return cfg, nil
}

func (b *envBackend) database(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	cfg, err := b.config()
	if err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	b.pool = pool
	return pool, nil
}

func (b *envBackend) Runner(ctx context.Context) (jobs.Runner, error) {
	pool, err := b.database(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, b.cfg.Redis())
	if err != nil {
		return nil, err
	}
	b.redis = redisClient
	eng, err := app.NewEngine(b.cfg, pool, redisClient, b.logger, nil)
	if err != nil {
		return nil, err
	}
	return eng.Service, nil
}

func (b *envBackend) Queue(context.Context) (cli.Enqueuer, error) {
	cfg, err := b.config()
	if err != nil {
		return nil, err
	}
	client, err := jobs.NewClient(cfg.Redis().Asynq())
	if err != nil {
		return nil, err
	}
	b.client = client
	return client, nil
}

func (b *envBackend) Inspector(context.Context) (jobs.QueueInspector, error) {
	cfg, err := b.config()
	if err != nil {
		return nil, err
	}
	b.inspector = asynq.NewInspector(cfg.Redis().Asynq())
	return b.inspector, nil
}

func (b *envBackend) Events(ctx context.Context) (cli.EventReader, error) {
	pool, err := b.database(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.NewEventLog(pool, b.logger), nil
}

func (b *envBackend) Close() error {
	var errs []error
	if b.inspector != nil {
		errs = append(errs, b.inspector.Close())
	}
	if b.client != nil {
		errs = append(errs, b.client.Close())
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.pool != nil {
		b.pool.Close()
	}
	return errors.Join(errs...)
}
