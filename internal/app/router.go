package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	enginehttp "github.com/odyssey-erp/shopsync/internal/engine/http"
	"github.com/odyssey-erp/shopsync/internal/observability"
	"github.com/odyssey-erp/shopsync/internal/platform/httpx"
	"github.com/odyssey-erp/shopsync/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	SyncHandler *enginehttp.Handler
	JobHandler  *jobs.Handler
	Metrics     *observability.Metrics
	// Checks are pinged by /readyz, keyed by name.
	Checks map[string]Pinger
}

// NewRouter constructs the chi.Router with shopsync defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status, code := map[string]string{}, http.StatusOK
		for name, check := range params.Checks {
			if err := check.Ping(ctx); err != nil {
				params.Logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				status[name] = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	})
	r.Handle("/metrics", params.Metrics.Handler())

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.SyncHandler != nil {
		token := ""
		if params.Config != nil {
			token = params.Config.APIToken
		}
		r.Group(func(r chi.Router) {
			r.Use(RequireToken(token))
			params.SyncHandler.MountRoutes(r)
		})
	}
	return r
}
