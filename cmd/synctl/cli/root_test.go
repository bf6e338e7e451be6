package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/shopsync/internal/engine"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/jobs"
)

type stubRunner struct {
	synced []ledger.Kind
	all    int
}

func (s *stubRunner) Sync(_ context.Context, kind ledger.Kind) (engine.Result, error) {
	s.synced = append(s.synced, kind)
	return engine.Result{Entity: kind.String(), RunID: "run-1", Created: 2, Updated: 1, Total: 3}, nil
}

func (s *stubRunner) SyncAll(context.Context) (engine.AllResult, error) {
	s.all++
	return engine.AllResult{Results: []engine.Result{
		{Entity: "product", RunID: "run-1", Created: 1, Total: 1},
		{Entity: "order", RunID: "run-1", Updated: 4, Failed: 1, Total: 5},
	}, Created: 1, Updated: 4, Failed: 1, Total: 6}, nil
}

type stubQueue struct {
	kinds []ledger.Kind
	all   int
	err   error
}

func (s *stubQueue) EnqueueSync(_ context.Context, kind ledger.Kind) (string, error) {
	s.kinds = append(s.kinds, kind)
	return "task-" + kind.String(), s.err
}

func (s *stubQueue) EnqueueAll(context.Context) (string, error) {
	s.all++
	return "task-all", s.err
}

type stubInspector struct{}

func (stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Pending: 3, Active: 1}, nil
}

type stubEvents struct {
	filter ledger.RecentFilter
	rows   []ledger.Event
}

func (s *stubEvents) Recent(_ context.Context, filter ledger.RecentFilter) ([]ledger.Event, error) {
	s.filter = filter
	return s.rows, nil
}

type stubBackend struct {
	runner *stubRunner
	queue  *stubQueue
	events *stubEvents
}

func (b *stubBackend) Runner(context.Context) (jobs.Runner, error) { return b.runner, nil }
func (b *stubBackend) Queue(context.Context) (Enqueuer, error) { return b.queue, nil }
func (b *stubBackend) Inspector(context.Context) (jobs.QueueInspector, error) {
	return stubInspector{}, nil
}
func (b *stubBackend) Events(context.Context) (EventReader, error) { return b.events, nil }
func (b *stubBackend) Close() error { return nil }

func newBackend() *stubBackend {
	return &stubBackend{runner: &stubRunner{}, queue: &stubQueue{}, events: &stubEvents{}}
}

func execute(t *testing.T, backend Backend, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(backend)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunEntityPrintsCounts(t *testing.T) {
	backend := newBackend()
	out, err := execute(t, backend, "run", "products")
	require.NoError(t, err)
	assert.Equal(t, []ledger.Kind{ledger.KindProduct}, backend.runner.synced)
	assert.Contains(t, out, "ENTITY")
	assert.Contains(t, out, "product")
	assert.Contains(t, out, "run-1")
}

func TestRunAllJSON(t *testing.T) {
	backend := newBackend()
	out, err := execute(t, backend, "run", "all", "--json")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.runner.all)

	var results []engine.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "order", results[1].Entity)
	assert.Equal(t, 1, results[1].Failed)
}

func TestRunRejectsUnknownEntity(t *testing.T) {
	_, err := execute(t, newBackend(), "run", "widgets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity kind")
}

func TestEnqueue(t *testing.T) {
	backend := newBackend()
	out, err := execute(t, backend, "enqueue", "customer")
	require.NoError(t, err)
	assert.Equal(t, []ledger.Kind{ledger.KindCustomer}, backend.queue.kinds)
	assert.Equal(t, "enqueued customer as task-customer\n", out)

	out, err = execute(t, backend, "enqueue", "all", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id":"task-all","entity":"all"}`, out)
}

func TestEnqueueWrapsQueueError(t *testing.T) {
	backend := newBackend()
	backend.queue.err = errors.New("redis down")
	_, err := execute(t, backend, "enqueue", "order")
	require.Error(t, err)
	assert.Equal(t, "enqueue order: redis down", err.Error())
}

func TestQueueStats(t *testing.T) {
	out, err := execute(t, newBackend(), "queue", "--json")
	require.NoError(t, err)

	var stats jobs.QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, jobs.QueueDefault, stats.Queue)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 1, stats.Active)
}

func TestLogFilters(t *testing.T) {
	id := int64(7)
	backend := newBackend()
	backend.events.rows = []ledger.Event{{
		ID: 1, Kind: ledger.KindOrder, EntityID: &id, Action: "update",
		Outcome: ledger.OutcomeError, Message: "constraint", At: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}}

	out, err := execute(t, backend, "log", "--entity", "orders", "--outcome", "error", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, ledger.RecentFilter{Kind: ledger.KindOrder, Outcome: ledger.OutcomeError, Limit: 5}, backend.events.filter)
	assert.Contains(t, out, "2024-05-01T08:00:00Z")
	assert.Contains(t, out, "constraint")

	out, err = execute(t, backend, "log", "--json")
	require.NoError(t, err)
	var views []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "order", views[0]["entity"])
	assert.EqualValues(t, 7, views[0]["entity_id"])
}

func TestLogRejectsBadOutcome(t *testing.T) {
	_, err := execute(t, newBackend(), "log", "--outcome", "maybe")
	require.Error(t, err)
}
