package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/shopsync/internal/engine"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/lock"
	"github.com/odyssey-erp/shopsync/internal/platform/httpx"
	"github.com/odyssey-erp/shopsync/internal/remote"
)

// Syncer runs batches in-process. engine.Service satisfies it.
type Syncer interface {
	Sync(ctx context.Context, kind ledger.Kind) (engine.Result, error)
	SyncAll(ctx context.Context) (engine.AllResult, error)
}

// Enqueuer hands batches to the background worker.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, kind ledger.Kind) (string, error)
	EnqueueAll(ctx context.Context) (string, error)
}

// EventReader reads the sync event log.
type EventReader interface {
	Recent(ctx context.Context, filter ledger.RecentFilter) ([]ledger.Event, error)
}

// Handler exposes the sync triggers over HTTP.
type Handler struct {
	logger    *slog.Logger
	syncer    Syncer
	queue     Enqueuer
	events    EventReader
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the sync handler. queue may be nil when no worker is
// configured; the enqueue routes then answer 503.
func NewHandler(logger *slog.Logger, syncer Syncer, queue Enqueuer, events EventReader) *Handler {
	limiter := httprate.Limit(6, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint))
	return &Handler{
		logger:    logger,
		syncer:    syncer,
		queue:     queue,
		events:    events,
		rateLimit: limiter,
	}
}

// MountRoutes registers the sync endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/sync/all", h.HandleSyncAll)
		r.Post("/sync/{entity}", h.HandleSync)
		r.Post("/sync/{entity}/enqueue", h.HandleEnqueue)
	})
	r.Get("/sync/log", h.HandleLog)
}

// HandleSync runs one entity batch and answers with its counts.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	kind, err := ledger.ParseKind(chi.URLParam(r, "entity"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	res, err := h.syncer.Sync(r.Context(), kind)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		h.logger.Warn("sync request failed", slog.String("entity", kind.String()), slog.Any("error", err))
		if res.Total > 0 && !errors.Is(err, lock.ErrHeld) {
			// Records before the failing page are committed; report them.
			p := httpx.ProblemFor(classify(err))
			httpx.JSON(w, p.Status, partialResult{ProblemDetail: p, Result: res})
			return
		}
		httpx.RespondError(w, classify(err))
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// partialResult is a problem document carrying the counts of a batch that
// aborted after some records were applied.
type partialResult struct {
	httpx.ProblemDetail
	engine.Result
}

// HandleSyncAll runs every entity in sequence. Per-entity failures are
// reported inside the composite result.
func (h *Handler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.syncer.SyncAll(r.Context())
	if err != nil {
		httpx.RespondError(w, classify(err))
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// HandleEnqueue schedules a batch on the worker queue.
func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httpx.RespondError(w, fmt.Errorf("%w: background queue not configured", httpx.ErrUnavailable))
		return
	}
	entity := chi.URLParam(r, "entity")
	var (
		taskID string
		err    error
	)
	if strings.EqualFold(entity, "all") {
		taskID, err = h.queue.EnqueueAll(r.Context())
	} else {
		kind, perr := ledger.ParseKind(entity)
		if perr != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, perr))
			return
		}
		taskID, err = h.queue.EnqueueSync(r.Context(), kind)
	}
	if err != nil {
		h.logger.Error("enqueue sync failed", slog.String("entity", entity), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "entity": strings.ToLower(entity)})
}

type eventView struct {
	ID       int64          `json:"id"`
	Entity   string         `json:"entity"`
	EntityID *int64         `json:"entity_id,omitempty"`
	Action   string         `json:"action"`
	Outcome  string         `json:"outcome"`
	Message  string         `json:"message"`
	Detail   map[string]any `json:"detail,omitempty"`
	At       time.Time      `json:"at"`
}

// HandleLog lists recent event-log rows, newest first. Optional query
// parameters: entity, outcome, limit.
func (h *Handler) HandleLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ledger.RecentFilter
	if raw := q.Get("entity"); raw != "" {
		kind, err := ledger.ParseKind(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
			return
		}
		filter.Kind = kind
	}
	if raw := strings.ToUpper(q.Get("outcome")); raw != "" {
		switch ledger.Outcome(raw) {
		case ledger.OutcomeSuccess, ledger.OutcomeError, ledger.OutcomeStarted:
			filter.Outcome = ledger.Outcome(raw)
		default:
			httpx.RespondError(w, fmt.Errorf("%w: unknown outcome %q", httpx.ErrValidation, raw))
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: limit must be a positive integer", httpx.ErrValidation))
			return
		}
		filter.Limit = n
	}

	events, err := h.events.Recent(r.Context(), filter)
	if err != nil {
		h.logger.Error("read sync log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]eventView, 0, len(events))
	for _, evt := range events {
		out = append(out, eventView{
			ID: evt.ID, Entity: evt.Kind.String(), EntityID: evt.EntityID, Action: evt.Action,
			Outcome: string(evt.Outcome), Message: evt.Message, Detail: evt.Detail, At: evt.At,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": out})
}

// classify picks the problem status for a batch-level error.
func classify(err error) error {
	switch {
	case errors.Is(err, lock.ErrHeld):
		return fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	case remote.IsTransport(err), remote.IsApplication(err):
		return fmt.Errorf("%w: %v", httpx.ErrUpstream, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", httpx.ErrUnavailable, err)
	default:
		return err
	}
}
