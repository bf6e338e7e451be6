package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/shopsync/internal/ledger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSyncEntity runs one entity batch.
	TaskSyncEntity = "sync:entity"
	// TaskSyncAll runs every entity batch in dependency order.
	TaskSyncAll = "sync:all"
	// TaskSyncTutorials runs the tutorial mirror on its own.
	TaskSyncTutorials = "sync:tutorials"
)

// uniqueFor keeps a second identical task out of the queue while the first
// is still pending or running.
const uniqueFor = 15 * time.Minute

// SyncEntityPayload names the entity kind to sync.
type SyncEntityPayload struct {
	Entity string `json:"entity"`
}

// NewSyncEntityTask constructs the task for one entity kind. Tutorials get
// their own task type so the mirror can be routed and inspected separately.
func NewSyncEntityTask(kind ledger.Kind) (*asynq.Task, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("sync task: invalid entity kind %d", int(kind))
	}
	if kind == ledger.KindTutorial {
		return NewSyncTutorialsTask(), nil
	}
	body, err := json.Marshal(SyncEntityPayload{Entity: kind.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncEntity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Unique(uniqueFor)), nil
}

// NewSyncAllTask constructs the full-sync task.
func NewSyncAllTask() *asynq.Task {
	return asynq.NewTask(TaskSyncAll, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1), asynq.Unique(uniqueFor))
}

// NewSyncTutorialsTask constructs the tutorial mirror task.
func NewSyncTutorialsTask() *asynq.Task {
	return asynq.NewTask(TaskSyncTutorials, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Unique(uniqueFor))
}
