package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/shopsync/internal/engine"
	jobmetrics "github.com/odyssey-erp/shopsync/internal/jobs"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/lock"
)

// Runner executes sync batches. engine.Service satisfies it.
type Runner interface {
	Sync(ctx context.Context, kind ledger.Kind) (engine.Result, error)
	SyncAll(ctx context.Context) (engine.AllResult, error)
}

// SyncJob executes sync tasks on the worker.
type SyncJob struct {
	Runner  Runner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSyncJob wires dependencies for the sync handlers.
func NewSyncJob(runner Runner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SyncJob {
	return &SyncJob{
		Runner:  runner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handlers lists the task registrations served by the job.
func (j *SyncJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskSyncEntity, Handler: j.HandleEntity},
		{Type: TaskSyncAll, Handler: j.HandleAll},
		{Type: TaskSyncTutorials, Handler: j.HandleTutorials},
	}
}

// HandleEntity processes TaskSyncEntity tasks.
func (j *SyncJob) HandleEntity(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("sync entity: runner not configured")
	}
	var payload SyncEntityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("sync entity payload: %v: %w", err, asynq.SkipRetry)
	}
	kind, err := ledger.ParseKind(payload.Entity)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return j.runKind(ctx, TaskSyncEntity, kind)
}

// HandleTutorials processes TaskSyncTutorials tasks.
func (j *SyncJob) HandleTutorials(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("sync tutorials: runner not configured")
	}
	return j.runKind(ctx, TaskSyncTutorials, ledger.KindTutorial)
}

// HandleAll processes TaskSyncAll tasks. The task fails, and is retried, when
// any entity batch aborted; per-record failures are only logged.
func (j *SyncJob) HandleAll(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("sync all: runner not configured")
	}
	tracker := j.metrics().Track(TaskSyncAll)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	all, err := j.Runner.SyncAll(ctx)
	if err == nil {
		err = all.Err()
	}
	logger := j.log(TaskSyncAll)
	if err != nil {
		resultErr = err
		logger.Error("full sync incomplete", slog.Int("failed", all.Failed), slog.Any("error", err))
		return resultErr
	}
	logger.Info("full sync finished",
		slog.Int("created", all.Created),
		slog.Int("updated", all.Updated),
		slog.Int("failed", all.Failed),
		slog.Int("total", all.Total),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *SyncJob) runKind(ctx context.Context, task string, kind ledger.Kind) error {
	tracker := j.metrics().Track(task)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log(task).With(slog.String("entity", kind.String()))
	start := j.now()
	res, err := j.Runner.Sync(ctx, kind)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		resultErr = err
		if errors.Is(err, lock.ErrHeld) {
			logger.Warn("sync already running, will retry", slog.Any("error", err))
		} else {
			logger.Error("sync batch aborted", slog.String("run_id", res.RunID), slog.Any("error", err))
		}
		return resultErr
	}
	logger.Info("sync batch finished",
		slog.String("run_id", res.RunID),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("failed", res.Failed),
		slog.Int("total", res.Total),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *SyncJob) metrics() *jobmetrics.Metrics {
	if j == nil {
		return nil
	}
	return j.Metrics
}

func (j *SyncJob) log(task string) *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *SyncJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
