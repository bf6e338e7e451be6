package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/odyssey-erp/shopsync/internal/gid"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/remote"
)

// Handler maps one remote record type onto its repository.
type Handler[R any] interface {
	Kind() ledger.Kind
	RemoteID(rec R) string
	Describe(rec R) string
	// Apply writes rec and its owned children in one transaction. existing is
	// the local id already linked to the record, or 0 when none is.
	Apply(ctx context.Context, existing int64, rec R) (Applied, error)
}

// Applied reports what Apply did to the ledger.
type Applied struct {
	ID      int64
	Created bool
	Detail  map[string]any
}

// Action returns the event-log action matching the write.
func (a Applied) Action() string {
	if a.Created {
		return ledger.ActionCreate
	}
	return ledger.ActionUpdate
}

// EntitySyncer upserts single remote records and records the outcome.
type EntitySyncer[R any] struct {
	handler  Handler[R]
	resolver *ledger.Resolver
	events   ledger.Recorder
	logger   *slog.Logger
}

// NewEntitySyncer wires a handler to the resolver and event log.
func NewEntitySyncer[R any](handler Handler[R], resolver *ledger.Resolver, events ledger.Recorder, logger *slog.Logger) *EntitySyncer[R] {
	if events == nil {
		events = ledger.Discard{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EntitySyncer[R]{handler: handler, resolver: resolver, events: events, logger: logger}
}

// Kind returns the entity kind handled.
func (s *EntitySyncer[R]) Kind() ledger.Kind { return s.handler.Kind() }

// Sync writes one remote record. Every call produces exactly one event; the
// error, if any, is returned so the caller can count the failure.
func (s *EntitySyncer[R]) Sync(ctx context.Context, rec R) (Applied, error) {
	kind := s.handler.Kind()
	remoteID := s.handler.RemoteID(rec)
	label := s.handler.Describe(rec)

	applied, err := s.apply(ctx, kind, remoteID, rec)

	detail := map[string]any{"remote_id": remoteID}
	if runID := RunID(ctx); runID != "" {
		detail["run_id"] = runID
	}
	for k, v := range applied.Detail {
		detail[k] = v
	}
	evt := ledger.Event{Kind: kind, Action: applied.Action(), Detail: detail}
	if applied.ID > 0 {
		id := applied.ID
		evt.EntityID = &id
	}
	if err != nil {
		detail["error_class"] = errorClass(err)
		evt.Outcome = ledger.OutcomeError
		evt.Message = fmt.Sprintf("%s %q failed: %v", kind, label, err)
		s.events.Record(ctx, evt)
		s.logger.Warn("sync item failed", slog.String("entity", kind.String()), slog.String("remote_id", remoteID), slog.Any("error", err))
		return applied, err
	}
	evt.Outcome = ledger.OutcomeSuccess
	if applied.Created {
		evt.Message = fmt.Sprintf("%s %q created", kind, label)
	} else {
		evt.Message = fmt.Sprintf("%s %q updated", kind, label)
	}
	s.events.Record(ctx, evt)
	return applied, nil
}

func (s *EntitySyncer[R]) apply(ctx context.Context, kind ledger.Kind, remoteID string, rec R) (Applied, error) {
	existing, err := s.resolver.ToLocal(ctx, kind, remoteID)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			return Applied{}, err
		}
		existing = 0
	}
	return s.handler.Apply(ctx, existing, rec)
}

// errorClass buckets errors for the event detail.
func errorClass(err error) string {
	switch {
	case remote.IsTransport(err):
		return "transport"
	case remote.IsApplication(err):
		return "remote"
	case errors.Is(err, gid.ErrMalformed), errors.Is(err, ledger.ErrKindMismatch), errors.Is(err, ledger.ErrInvalidRecord),
		errors.Is(err, ledger.ErrMissingChildKey), errors.Is(err, ledger.ErrDuplicateChild):
		return "mapping"
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, ledger.ErrForeignKey), errors.Is(err, ledger.ErrRemoteIDConflict):
		return "constraint"
	default:
		return "internal"
	}
}
