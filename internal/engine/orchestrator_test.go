package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/lock"
	"github.com/odyssey-erp/shopsync/internal/products"
	"github.com/odyssey-erp/shopsync/internal/remote"
)

func productNode(n int, handle string, variants ...int) map[string]any {
	vs := make([]any, 0, len(variants))
	for i, v := range variants {
		vs = append(vs, map[string]any{
			"id":       fmt.Sprintf("gid://shopify/ProductVariant/%d", v),
			"title":    fmt.Sprintf("Variant %d", v),
			"sku":      fmt.Sprintf("SKU-%d", v),
			"price":    "19.90",
			"position": i + 1,
		})
	}
	return map[string]any{
		"id":       fmt.Sprintf("gid://shopify/Product/%d", n),
		"title":    fmt.Sprintf("Product %d", n),
		"handle":   handle,
		"status":   "ACTIVE",
		"tags":     []string{"cafe"},
		"variants": map[string]any{"nodes": vs, "pageInfo": map[string]any{"hasNextPage": false}},
		"images":   map[string]any{"nodes": []any{}, "pageInfo": map[string]any{"hasNextPage": false}},
	}
}

type productFixture struct {
	clock    *clock
	repo     *memProducts
	remote   *pagedRemote
	events   *memEvents
	resolver *ledger.Resolver
}

func newProductFixture() *productFixture {
	c := newClock()
	repo := newMemProducts(c)
	return &productFixture{
		clock:    c,
		repo:     repo,
		remote:   newPagedRemote(),
		events:   &memEvents{},
		resolver: ledger.NewResolver(memLookup{products: repo}),
	}
}

func (f *productFixture) orchestrator(opts Options) *Orchestrator {
	if opts.Events == nil {
		opts.Events = f.events
	}
	opts.PageSize = 2
	o := NewOrchestrator(Deps{Requester: f.remote, Resolver: f.resolver, Products: f.repo}, opts)
	o.newRunID = func() string { return "run-1" }
	return o
}

func TestSyncProductsCreatesNewAndUpdatesLinked(t *testing.T) {
	f := newProductFixture()
	existingRemote := "gid://shopify/Product/1"
	existingID, err := f.repo.Create(context.Background(), products.Product{
		RemoteID: &existingRemote, Title: "Old title", Handle: "cafe-molido", Status: "DRAFT",
	})
	require.NoError(t, err)
	before := f.repo.rows[existingID].UpdatedAt

	f.remote.serve(remote.ProductsQuery, remote.FieldProducts,
		[]any{productNode(1, "cafe-molido", 11), productNode(2, "cafe-grano", 21, 22)},
		[]any{productNode(3, "taza", 31)},
	)

	res := f.orchestrator(Options{}).SyncProducts(context.Background())
	require.NoError(t, res.Err())
	require.Equal(t, 2, res.Created)
	require.Equal(t, 1, res.Updated)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, 3, res.Total)

	updated := f.repo.rows[existingID]
	require.Equal(t, "Product 1", updated.Title)
	require.Equal(t, existingRemote, *updated.RemoteID)
	require.True(t, updated.UpdatedAt.After(before))
	require.NotNil(t, updated.LastSyncedAt)
	require.Len(t, f.repo.rows, 3)

	require.Equal(t, 1, f.events.count(ledger.OutcomeStarted, ledger.ActionBatch))
	require.Equal(t, 2, f.events.count(ledger.OutcomeSuccess, ledger.ActionCreate))
	require.Equal(t, 1, f.events.count(ledger.OutcomeSuccess, ledger.ActionUpdate))
	require.Equal(t, 1, f.events.count(ledger.OutcomeSuccess, ledger.ActionBatch))
	for _, evt := range f.events.events {
		require.Equal(t, "run-1", evt.Detail["run_id"])
	}
}

func TestSyncProductsIsIdempotent(t *testing.T) {
	f := newProductFixture()
	f.remote.serve(remote.ProductsQuery, remote.FieldProducts,
		[]any{productNode(1, "a", 11), productNode(2, "b", 21)},
		[]any{productNode(3, "c", 31)},
	)
	o := f.orchestrator(Options{})

	first := o.SyncProducts(context.Background())
	require.Equal(t, 3, first.Created)

	second := o.SyncProducts(context.Background())
	require.NoError(t, second.Err())
	require.Equal(t, 0, second.Created)
	require.Equal(t, 3, second.Updated)
	require.Len(t, f.repo.rows, 3)
	for n := 1; n <= 3; n++ {
		require.Equal(t, 1, f.repo.countRemote(fmt.Sprintf("gid://shopify/Product/%d", n)))
	}
}

func TestSyncProductsIsolatesItemFailure(t *testing.T) {
	f := newProductFixture()
	f.repo.failCreate = func(p products.Product) error {
		if p.Handle == "broken" {
			return fmt.Errorf("create product: %w (productos_handle_key)", ledger.ErrConflict)
		}
		return nil
	}
	f.remote.serve(remote.ProductsQuery, remote.FieldProducts,
		[]any{productNode(1, "a", 11), productNode(2, "broken", 21)},
		[]any{productNode(3, "c", 31, 32)},
	)

	res := f.orchestrator(Options{}).SyncProducts(context.Background())
	require.NoError(t, res.Err())
	require.Equal(t, 2, res.Created+res.Updated)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 3, res.Total)

	third, err := f.repo.GetByRemoteID(context.Background(), "gid://shopify/Product/3")
	require.NoError(t, err)
	require.Len(t, f.repo.variants.list(third.ID), 2)

	var failed *ledger.Event
	for i := range f.events.events {
		if f.events.events[i].Outcome == ledger.OutcomeError {
			failed = &f.events.events[i]
		}
	}
	require.NotNil(t, failed)
	require.Equal(t, "constraint", failed.Detail["error_class"])
	require.Equal(t, "gid://shopify/Product/2", failed.Detail["remote_id"])
}

func TestSyncProductsSurvivesBrokenEventLog(t *testing.T) {
	f := newProductFixture()
	f.remote.serve(remote.ProductsQuery, remote.FieldProducts,
		[]any{productNode(1, "a", 11), productNode(2, "b", 21)},
	)

	res := f.orchestrator(Options{Events: ledger.NewEventLog(brokenDB{}, nil)}).SyncProducts(context.Background())
	require.NoError(t, res.Err())
	require.Equal(t, 2, res.Created)
	require.Equal(t, 0, res.Failed)
}

func TestSyncProductsReplacesVariantSet(t *testing.T) {
	f := newProductFixture()
	o := f.orchestrator(Options{})
	f.remote.serve(remote.ProductsQuery, remote.FieldProducts, []any{productNode(1, "a", 101, 102, 103)})
	require.Equal(t, 1, o.SyncProducts(context.Background()).Created)

	f.remote.serve(remote.ProductsQuery, remote.FieldProducts, []any{productNode(1, "a", 103, 102, 104)})
	res := o.SyncProducts(context.Background())
	require.Equal(t, 1, res.Updated)

	p, err := f.repo.GetByRemoteID(context.Background(), "gid://shopify/Product/1")
	require.NoError(t, err)
	var keys []string
	for _, v := range f.repo.variants.list(p.ID) {
		keys = append(keys, v.RemoteID)
	}
	require.Equal(t, []string{
		"gid://shopify/ProductVariant/103",
		"gid://shopify/ProductVariant/102",
		"gid://shopify/ProductVariant/104",
	}, keys)
}

func TestSyncProductsLinksUnlinkedRowByHandle(t *testing.T) {
	f := newProductFixture()
	localID, err := f.repo.Create(context.Background(), products.Product{Title: "Taza", Handle: "taza", Status: "ACTIVE"})
	require.NoError(t, err)
	f.remote.serve(remote.ProductsQuery, remote.FieldProducts, []any{productNode(7, "taza", 71)})

	res := f.orchestrator(Options{}).SyncProducts(context.Background())
	require.Equal(t, 0, res.Created)
	require.Equal(t, 1, res.Updated)
	require.Equal(t, "gid://shopify/Product/7", *f.repo.rows[localID].RemoteID)
}

func TestSyncProductsCountsMalformedIDAsMappingFailure(t *testing.T) {
	f := newProductFixture()
	bad := productNode(1, "a")
	bad["id"] = "gid://shopify/Product/abc"
	wrongType := productNode(2, "b")
	wrongType["id"] = "gid://shopify/Customer/2"
	f.remote.serve(remote.ProductsQuery, remote.FieldProducts, []any{bad, wrongType, productNode(3, "c")})

	res := f.orchestrator(Options{}).SyncProducts(context.Background())
	require.NoError(t, res.Err())
	require.Equal(t, 2, res.Failed)
	require.Equal(t, 1, res.Created)
	require.Equal(t, 2, f.events.count(ledger.OutcomeError, ledger.ActionUpdate))
}

func TestSyncProductsAbortsOnPageFailure(t *testing.T) {
	f := newProductFixture()
	f.remote.fail[remote.ProductsQuery] = &remote.TransportError{Op: "request", StatusCode: 401, Err: errors.New("invalid token")}

	res := f.orchestrator(Options{}).SyncProducts(context.Background())
	require.Error(t, res.Err())
	require.True(t, remote.IsTransport(res.Err()))
	require.NotEmpty(t, res.Error)
	require.Equal(t, 1, f.events.count(ledger.OutcomeError, ledger.ActionBatch))
}

func TestSyncProductsExcludesMirrorTag(t *testing.T) {
	f := newProductFixture()
	f.remote.serve(remote.ProductsQuery, remote.FieldProducts, []any{productNode(1, "taza", 11)})

	res := f.orchestrator(Options{MirrorTag: "tutorial"}).SyncProducts(context.Background())
	require.NoError(t, res.Err())
	require.Equal(t, `-tag:"tutorial"`, f.remote.seen[remote.ProductsQuery]["query"])

	res = f.orchestrator(Options{}).SyncProducts(context.Background())
	require.NoError(t, res.Err())
	require.NotContains(t, f.remote.seen[remote.ProductsQuery], "query")
}

func TestSyncRejectsConcurrentRunOfSameKind(t *testing.T) {
	f := newProductFixture()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := lock.NewRedisLocker(client, "")
	f.remote.serve(remote.ProductsQuery, remote.FieldProducts, []any{productNode(1, "a")})

	held, err := locker.Acquire(context.Background(), ledger.KindProduct.String(), time.Minute)
	require.NoError(t, err)

	o := f.orchestrator(Options{Locker: locker})
	res := o.SyncProducts(context.Background())
	require.ErrorIs(t, res.Err(), lock.ErrHeld)
	require.Empty(t, f.repo.rows)

	require.NoError(t, held.Release(context.Background()))
	res = o.SyncProducts(context.Background())
	require.NoError(t, res.Err())
	require.Equal(t, 1, res.Created)
	require.False(t, mr.Exists("sync:lock:product"))
}

func TestSyncAllContinuesAfterFailedKind(t *testing.T) {
	c := newClock()
	prods := newMemProducts(c)
	custs := newMemCustomers(c)
	rem := newPagedRemote()
	rem.fail[remote.ProductsQuery] = &remote.TransportError{Op: "request", Err: errors.New("connection reset")}
	rem.serve(remote.CollectionsQuery, remote.FieldCollections)
	rem.serve(remote.CustomersQuery, remote.FieldCustomers, []any{customerNode(1, "ana@example.com", "gid://shopify/MailingAddress/10?model_name=CustomerAddress")})
	rem.serve(remote.OrdersQuery, remote.FieldOrders)
	rem.serve(remote.PromotionsQuery, remote.FieldPromotions)

	resolver := ledger.NewResolver(memLookup{products: prods, customers: custs})
	tuts := newMemTutorials(c)
	o := NewOrchestrator(Deps{
		Requester: rem, Resolver: resolver, Products: prods, Customers: custs,
		Reconciler: NewReconciler(tuts, newMemCatalog(), nil, nil, 10),
	}, Options{})

	all := o.SyncAll(context.Background())
	require.Len(t, all.Results, len(ledger.Kinds))
	require.Equal(t, "product", all.Results[0].Entity)
	require.Error(t, all.Results[0].Err())
	require.Equal(t, "customer", all.Results[2].Entity)
	require.NoError(t, all.Results[2].Err())
	require.Equal(t, 1, all.Results[2].Created)
	require.Equal(t, 1, all.Created)
	require.Error(t, all.Err())
}
