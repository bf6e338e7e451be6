package engine

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/shopsync/internal/ledger"
)

// Runner is the orchestrator surface used by trigger layers.
type Runner interface {
	Sync(ctx context.Context, kind ledger.Kind) (Result, error)
	SyncAll(ctx context.Context) AllResult
}

// Service collapses identical concurrent triggers within the process into a
// single run; callers that join an in-flight run receive its result.
type Service struct {
	runner Runner
	group  singleflight.Group
}

// NewService wraps runner.
func NewService(runner Runner) *Service {
	return &Service{runner: runner}
}

// Sync runs or joins the batch for kind.
func (s *Service) Sync(ctx context.Context, kind ledger.Kind) (Result, error) {
	if !kind.Valid() {
		return s.runner.Sync(ctx, kind)
	}
	ch := s.group.DoChan("sync:"+kind.String(), func() (interface{}, error) {
		return s.runner.Sync(context.WithoutCancel(ctx), kind)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return Result{}, out.Err
		}
		return out.Val.(Result), nil
	}
}

// SyncAll runs or joins a full sync.
func (s *Service) SyncAll(ctx context.Context) (AllResult, error) {
	ch := s.group.DoChan("sync:all", func() (interface{}, error) {
		return s.runner.SyncAll(context.WithoutCancel(ctx)), nil
	})
	select {
	case <-ctx.Done():
		return AllResult{}, ctx.Err()
	case out := <-ch:
		return out.Val.(AllResult), nil
	}
}
