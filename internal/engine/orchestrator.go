package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/shopsync/internal/collections"
	"github.com/odyssey-erp/shopsync/internal/customers"
	jobmetrics "github.com/odyssey-erp/shopsync/internal/jobs"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/lock"
	"github.com/odyssey-erp/shopsync/internal/orders"
	"github.com/odyssey-erp/shopsync/internal/products"
	"github.com/odyssey-erp/shopsync/internal/promotions"
	"github.com/odyssey-erp/shopsync/internal/remote"
)

// Result is the aggregate outcome of one entity batch. Error is set only when
// the batch could not run to completion (page fetch failure, lock held).
type Result struct {
	Entity  string           `json:"entity"`
	RunID   string           `json:"run_id"`
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Failed  int              `json:"failed"`
	Total   int              `json:"total"`
	Error   string           `json:"error,omitempty"`
	Mirror  *ReconcileResult `json:"mirror,omitempty"`

	err error
}

// Err returns the batch-level error, if any.
func (r Result) Err() error { return r.err }

func (r *Result) fail(err error) {
	r.err = err
	r.Error = err.Error()
}

// AllResult is the composite outcome of SyncAll.
type AllResult struct {
	Results []Result `json:"results"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Total   int      `json:"total"`
}

// Err returns the first batch-level error among the results.
func (a AllResult) Err() error {
	for _, r := range a.Results {
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Requester   remote.Requester
	Resolver    *ledger.Resolver
	Products    products.Repository
	Collections collections.Repository
	Customers   customers.Repository
	Orders      orders.Repository
	Promotions  promotions.Repository
	Reconciler  *Reconciler
}

// Options tune batch execution.
type Options struct {
	PageSize int
	LockTTL  time.Duration
	Locker   lock.Locker
	Metrics  *jobmetrics.Metrics
	Events   ledger.Recorder
	Logger   *slog.Logger
	// MirrorTag marks catalog items owned by the tutorial mirror; product
	// batches skip them.
	MirrorTag string
}

// Orchestrator drives full batch syncs per entity kind.
type Orchestrator struct {
	requester   remote.Requester
	products    *EntitySyncer[remote.Product]
	collections *EntitySyncer[remote.Collection]
	customers   *EntitySyncer[remote.Customer]
	orders      *EntitySyncer[remote.Order]
	promotions  *EntitySyncer[remote.Promotion]
	reconciler  *Reconciler

	pageSize int
	lockTTL  time.Duration
	locker   lock.Locker
	metrics  *jobmetrics.Metrics
	events   ledger.Recorder
	logger   *slog.Logger
	newRunID func() string
	productQ map[string]any
}

// NewOrchestrator wires per-entity syncers over deps.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.Events == nil {
		opts.Events = ledger.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Minute
	}
	ev, lg := opts.Events, opts.Logger
	return &Orchestrator{
		requester:   deps.Requester,
		products:    NewEntitySyncer[remote.Product](NewProductHandler(deps.Products), deps.Resolver, ev, lg),
		collections: NewEntitySyncer[remote.Collection](NewCollectionHandler(deps.Collections, deps.Resolver), deps.Resolver, ev, lg),
		customers:   NewEntitySyncer[remote.Customer](NewCustomerHandler(deps.Customers), deps.Resolver, ev, lg),
		orders:      NewEntitySyncer[remote.Order](NewOrderHandler(deps.Orders, deps.Resolver), deps.Resolver, ev, lg),
		promotions:  NewEntitySyncer[remote.Promotion](NewPromotionHandler(deps.Promotions), deps.Resolver, ev, lg),
		reconciler:  deps.Reconciler,
		pageSize:    opts.PageSize,
		lockTTL:     opts.LockTTL,
		locker:      opts.Locker,
		metrics:     opts.Metrics,
		events:      ev,
		logger:      lg,
		newRunID:    uuid.NewString,
		productQ:    remote.ExcludeTag(opts.MirrorTag),
	}
}

// SyncProducts mirrors products with their variants and images, skipping
// items tagged for the tutorial mirror.
func (o *Orchestrator) SyncProducts(ctx context.Context) Result {
	return o.guard(ctx, ledger.KindProduct, func(ctx context.Context, res *Result) error {
		return runBatch(ctx, o, o.products, remote.ProductsQuery, remote.FieldProducts, o.productQ, res)
	})
}

// SyncCollections mirrors collections and their product memberships.
func (o *Orchestrator) SyncCollections(ctx context.Context) Result {
	return o.guard(ctx, ledger.KindCollection, func(ctx context.Context, res *Result) error {
		return runBatch(ctx, o, o.collections, remote.CollectionsQuery, remote.FieldCollections, nil, res)
	})
}

// SyncCustomers mirrors customers and their addresses.
func (o *Orchestrator) SyncCustomers(ctx context.Context) Result {
	return o.guard(ctx, ledger.KindCustomer, func(ctx context.Context, res *Result) error {
		return runBatch(ctx, o, o.customers, remote.CustomersQuery, remote.FieldCustomers, nil, res)
	})
}

// SyncOrders mirrors orders with line items, transactions and fulfillments.
func (o *Orchestrator) SyncOrders(ctx context.Context) Result {
	return o.guard(ctx, ledger.KindOrder, func(ctx context.Context, res *Result) error {
		return runBatch(ctx, o, o.orders, remote.OrdersQuery, remote.FieldOrders, nil, res)
	})
}

// SyncPromotions mirrors discount codes.
func (o *Orchestrator) SyncPromotions(ctx context.Context) Result {
	return o.guard(ctx, ledger.KindPromotion, func(ctx context.Context, res *Result) error {
		return runBatch(ctx, o, o.promotions, remote.PromotionsQuery, remote.FieldPromotions, nil, res)
	})
}

// SyncTutorials runs the bidirectional tutorial mirror.
func (o *Orchestrator) SyncTutorials(ctx context.Context) Result {
	return o.guard(ctx, ledger.KindTutorial, func(ctx context.Context, res *Result) error {
		if o.reconciler == nil {
			return errors.New("tutorial mirror not configured")
		}
		mirror, err := o.reconciler.Run(ctx)
		res.Mirror = &mirror
		res.Created = mirror.CreatedLocal + mirror.CreatedRemote
		res.Updated = mirror.UpdatedRemote + mirror.Linked
		res.Failed = mirror.Failed
		res.Total = mirror.Total
		return err
	})
}

// Sync runs the batch for one kind.
func (o *Orchestrator) Sync(ctx context.Context, kind ledger.Kind) (Result, error) {
	switch kind {
	case ledger.KindProduct:
		return o.SyncProducts(ctx), nil
	case ledger.KindCollection:
		return o.SyncCollections(ctx), nil
	case ledger.KindCustomer:
		return o.SyncCustomers(ctx), nil
	case ledger.KindOrder:
		return o.SyncOrders(ctx), nil
	case ledger.KindPromotion:
		return o.SyncPromotions(ctx), nil
	case ledger.KindTutorial:
		return o.SyncTutorials(ctx), nil
	default:
		return Result{}, fmt.Errorf("engine: unknown entity kind %d", int(kind))
	}
}

// SyncAll runs every kind in sequence. Customers run before orders so the
// order-to-customer lookup sees this run's customers. A failed batch does not
// stop the remaining kinds.
func (o *Orchestrator) SyncAll(ctx context.Context) AllResult {
	var all AllResult
	for _, kind := range ledger.Kinds {
		if ctx.Err() != nil {
			res := Result{Entity: kind.String()}
			res.fail(ctx.Err())
			all.Results = append(all.Results, res)
			continue
		}
		res, _ := o.Sync(ctx, kind)
		all.Results = append(all.Results, res)
		all.Created += res.Created
		all.Updated += res.Updated
		all.Failed += res.Failed
		all.Total += res.Total
	}
	return all
}

// guard takes the per-kind lease, tags the run and records the start and
// summary events around fn.
func (o *Orchestrator) guard(ctx context.Context, kind ledger.Kind, fn func(context.Context, *Result) error) Result {
	res := Result{Entity: kind.String(), RunID: o.newRunID()}
	ctx = WithRunID(ctx, res.RunID)
	tracker := o.metrics.Track("sync:" + kind.String())

	if o.locker != nil {
		lease, err := o.locker.Acquire(ctx, kind.String(), o.lockTTL)
		if err != nil {
			res.fail(err)
			o.logger.Warn("sync run skipped", slog.String("entity", kind.String()), slog.Any("error", err))
			o.events.Record(ctx, ledger.Event{
				Kind: kind, Action: ledger.ActionBatch, Outcome: ledger.OutcomeError,
				Message: fmt.Sprintf("%s sync not started: %v", kind, err),
				Detail:  map[string]any{"run_id": res.RunID},
			})
			_ = tracker.End(err)
			return res
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				o.logger.Warn("lock release failed", slog.String("key", lease.Key()), slog.Any("error", err))
			}
		}()
	}

	o.events.Record(ctx, ledger.Event{
		Kind: kind, Action: ledger.ActionBatch, Outcome: ledger.OutcomeStarted,
		Message: fmt.Sprintf("%s sync started", kind),
		Detail:  map[string]any{"run_id": res.RunID},
	})
	o.logger.Info("sync started", slog.String("entity", kind.String()), slog.String("run_id", res.RunID))

	if err := fn(ctx, &res); err != nil {
		res.fail(err)
	}

	summary := ledger.Event{
		Kind: kind, Action: ledger.ActionBatch, Outcome: ledger.OutcomeSuccess,
		Message: fmt.Sprintf("%s sync finished: %d created, %d updated, %d failed of %d",
			kind, res.Created, res.Updated, res.Failed, res.Total),
		Detail: map[string]any{
			"run_id": res.RunID, "created": res.Created, "updated": res.Updated,
			"failed": res.Failed, "total": res.Total,
		},
	}
	if res.err != nil {
		summary.Outcome = ledger.OutcomeError
		summary.Message = fmt.Sprintf("%s sync aborted after %d records: %v", kind, res.Total, res.err)
		summary.Detail["error_class"] = errorClass(res.err)
	}
	o.events.Record(ctx, summary)
	o.metrics.AddItems(kind.String(), "created", res.Created)
	o.metrics.AddItems(kind.String(), "updated", res.Updated)
	o.metrics.AddItems(kind.String(), "failed", res.Failed)
	_ = tracker.End(res.err)

	o.logger.Info("sync finished",
		slog.String("entity", kind.String()),
		slog.String("run_id", res.RunID),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("failed", res.Failed),
		slog.Int("total", res.Total),
		slog.Any("error", res.err),
	)
	return res
}

// runBatch pages through the remote connection and syncs each record in
// order. Per-record failures are counted; only fetch errors abort.
func runBatch[R any](ctx context.Context, o *Orchestrator, syncer *EntitySyncer[R], query, field string, vars map[string]any, res *Result) error {
	return remote.Paginate(ctx, o.requester, query, field, vars, o.pageSize, func(ctx context.Context, page []R) error {
		for _, rec := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			res.Total++
			applied, err := syncer.Sync(ctx, rec)
			switch {
			case err != nil:
				res.Failed++
			case applied.Created:
				res.Created++
			default:
				res.Updated++
			}
		}
		return nil
	})
}
