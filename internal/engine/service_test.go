package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/shopsync/internal/ledger"
)

type blockingRunner struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blockingRunner) Sync(ctx context.Context, kind ledger.Kind) (Result, error) {
	n := b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	return Result{Entity: kind.String(), Created: int(n)}, ctx.Err()
}

func (b *blockingRunner) SyncAll(ctx context.Context) AllResult {
	b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	return AllResult{Total: 1}
}

func TestServiceJoinsInFlightRun(t *testing.T) {
	runner := newBlockingRunner()
	svc := NewService(runner)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Sync(context.Background(), ledger.KindProduct)
			assert.NoError(t, err)
			results[i] = res
		}()
		if i == 0 {
			<-runner.started
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(runner.release)
	wg.Wait()

	require.Equal(t, int32(1), runner.calls.Load())
	require.Equal(t, results[0], results[1])
}

func TestServiceCallerCancelDoesNotAbortRun(t *testing.T) {
	runner := newBlockingRunner()
	svc := NewService(runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.SyncAll(ctx)
		done <- err
	}()
	<-runner.started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(runner.release)
	res, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
}

func TestServiceRejectsUnknownKind(t *testing.T) {
	o := NewOrchestrator(Deps{}, Options{})
	_, err := NewService(o).Sync(context.Background(), ledger.Kind(99))
	require.Error(t, err)
}
