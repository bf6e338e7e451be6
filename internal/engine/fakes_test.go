package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/shopsync/internal/customers"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/products"
	"github.com/odyssey-erp/shopsync/internal/remote"
	"github.com/odyssey-erp/shopsync/internal/tutorials"
)

// clock hands out strictly increasing timestamps.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// memChildren is an in-memory ledger.ChildStore.
type memChildren[C ledger.Keyed] struct {
	rows map[int64]map[string]memChild[C]
}

type memChild[C any] struct {
	child C
	pos   int
}

func newMemChildren[C ledger.Keyed]() *memChildren[C] {
	return &memChildren[C]{rows: make(map[int64]map[string]memChild[C])}
}

func (m *memChildren[C]) DeleteMissing(_ context.Context, parentID int64, keep []string) (int64, error) {
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	var n int64
	for key := range m.rows[parentID] {
		if !keepSet[key] {
			delete(m.rows[parentID], key)
			n++
		}
	}
	return n, nil
}

func (m *memChildren[C]) Upsert(_ context.Context, parentID int64, position int, child C) (bool, error) {
	if m.rows[parentID] == nil {
		m.rows[parentID] = make(map[string]memChild[C])
	}
	_, exists := m.rows[parentID][child.Key()]
	m.rows[parentID][child.Key()] = memChild[C]{child: child, pos: position}
	return !exists, nil
}

func (m *memChildren[C]) list(parentID int64) []C {
	entries := make([]memChild[C], 0, len(m.rows[parentID]))
	for _, e := range m.rows[parentID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })
	out := make([]C, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.child)
	}
	return out
}

// memProducts is an in-memory products.Repository.
type memProducts struct {
	rows       map[int64]*products.Product
	nextID     int64
	variants   *memChildren[products.Variant]
	images     *memChildren[products.Image]
	clock      *clock
	failCreate func(products.Product) error
}

func newMemProducts(c *clock) *memProducts {
	return &memProducts{
		rows:     make(map[int64]*products.Product),
		variants: newMemChildren[products.Variant](),
		images:   newMemChildren[products.Image](),
		clock:    c,
	}
}

func (m *memProducts) WithTx(ctx context.Context, fn func(context.Context, products.Repository) error) error {
	return fn(ctx, m)
}

func (m *memProducts) Get(_ context.Context, id int64) (*products.Product, error) {
	if p, ok := m.rows[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ledger.ErrNotFound
}

func (m *memProducts) GetByRemoteID(_ context.Context, remoteID string) (*products.Product, error) {
	for _, p := range m.rows {
		if p.RemoteID != nil && *p.RemoteID == remoteID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *memProducts) GetByHandle(_ context.Context, handle string) (*products.Product, error) {
	for _, p := range m.rows {
		if p.Handle == handle {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *memProducts) Create(ctx context.Context, p products.Product) (int64, error) {
	if m.failCreate != nil {
		if err := m.failCreate(p); err != nil {
			return 0, err
		}
	}
	if p.RemoteID != nil {
		if _, err := m.GetByRemoteID(ctx, *p.RemoteID); err == nil {
			return 0, fmt.Errorf("create product: %w (productos_remote_id_key)", ledger.ErrConflict)
		}
	}
	m.nextID++
	now := m.clock.Now()
	p.ID, p.CreatedAt, p.UpdatedAt = m.nextID, now, now
	m.rows[p.ID] = &p
	return p.ID, nil
}

func (m *memProducts) Update(_ context.Context, id int64, p products.Product) error {
	row, ok := m.rows[id]
	if !ok {
		return ledger.ErrNotFound
	}
	p.ID, p.RemoteID, p.CreatedAt, p.LastSyncedAt = row.ID, row.RemoteID, row.CreatedAt, row.LastSyncedAt
	p.UpdatedAt = m.clock.Now()
	m.rows[id] = &p
	return nil
}

func (m *memProducts) Delete(_ context.Context, id int64) error {
	if _, ok := m.rows[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memProducts) Search(context.Context, products.SearchFilter) ([]products.Product, int, error) {
	var out []products.Product
	for _, p := range m.rows {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *memProducts) LinkRemote(_ context.Context, id int64, remoteID string) error {
	row, ok := m.rows[id]
	if !ok || (row.RemoteID != nil && *row.RemoteID != remoteID) {
		return ledger.ErrRemoteIDConflict
	}
	row.RemoteID = &remoteID
	row.UpdatedAt = m.clock.Now()
	return nil
}

func (m *memProducts) MarkSynced(_ context.Context, id int64, at time.Time) error {
	if row, ok := m.rows[id]; ok {
		row.LastSyncedAt = &at
	}
	return nil
}

func (m *memProducts) ListVariants(_ context.Context, productID int64) ([]products.Variant, error) {
	return m.variants.list(productID), nil
}

func (m *memProducts) Variants() ledger.ChildStore[products.Variant] { return m.variants }
func (m *memProducts) Images() ledger.ChildStore[products.Image]     { return m.images }

func (m *memProducts) countRemote(remoteID string) int {
	n := 0
	for _, p := range m.rows {
		if p.RemoteID != nil && *p.RemoteID == remoteID {
			n++
		}
	}
	return n
}

// memCustomers is an in-memory customers.Repository.
type memCustomers struct {
	rows      map[int64]*customers.Customer
	nextID    int64
	addresses *memChildren[customers.Address]
	clock     *clock
}

func newMemCustomers(c *clock) *memCustomers {
	return &memCustomers{rows: make(map[int64]*customers.Customer), addresses: newMemChildren[customers.Address](), clock: c}
}

func (m *memCustomers) WithTx(ctx context.Context, fn func(context.Context, customers.Repository) error) error {
	return fn(ctx, m)
}

func (m *memCustomers) Get(_ context.Context, id int64) (*customers.Customer, error) {
	if c, ok := m.rows[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, ledger.ErrNotFound
}

func (m *memCustomers) GetByRemoteID(_ context.Context, remoteID string) (*customers.Customer, error) {
	for _, c := range m.rows {
		if c.RemoteID != nil && *c.RemoteID == remoteID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *memCustomers) GetByEmail(_ context.Context, email string) (*customers.Customer, error) {
	for _, c := range m.rows {
		if c.Email != nil && *c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *memCustomers) Create(_ context.Context, c customers.Customer) (int64, error) {
	m.nextID++
	now := m.clock.Now()
	c.ID, c.CreatedAt, c.UpdatedAt = m.nextID, now, now
	m.rows[c.ID] = &c
	return c.ID, nil
}

func (m *memCustomers) Update(_ context.Context, id int64, c customers.Customer) error {
	row, ok := m.rows[id]
	if !ok {
		return ledger.ErrNotFound
	}
	c.ID, c.RemoteID, c.CreatedAt = row.ID, row.RemoteID, row.CreatedAt
	c.UpdatedAt = m.clock.Now()
	m.rows[id] = &c
	return nil
}

func (m *memCustomers) Delete(_ context.Context, id int64) error {
	delete(m.rows, id)
	return nil
}

func (m *memCustomers) Search(context.Context, customers.SearchFilter) ([]customers.Customer, int, error) {
	return nil, 0, nil
}

func (m *memCustomers) LinkRemote(_ context.Context, id int64, remoteID string) error {
	row, ok := m.rows[id]
	if !ok || (row.RemoteID != nil && *row.RemoteID != remoteID) {
		return ledger.ErrRemoteIDConflict
	}
	row.RemoteID = &remoteID
	return nil
}

func (m *memCustomers) MarkSynced(_ context.Context, id int64, at time.Time) error {
	if row, ok := m.rows[id]; ok {
		row.LastSyncedAt = &at
	}
	return nil
}

func (m *memCustomers) ListAddresses(_ context.Context, customerID int64) ([]customers.Address, error) {
	return m.addresses.list(customerID), nil
}

func (m *memCustomers) Addresses() ledger.ChildStore[customers.Address] { return addressKeeper{m.addresses} }

func (m *memCustomers) SetDefaultAddress(_ context.Context, customerID int64, remoteID string) error {
	rows := m.addresses.rows[customerID]
	if _, ok := rows[remoteID]; remoteID != "" && !ok {
		return ledger.ErrNotFound
	}
	for key, e := range rows {
		e.child.IsDefault = key == remoteID
		rows[key] = e
	}
	return nil
}

// addressKeeper mirrors the SQL upsert, which never touches the default flag.
type addressKeeper struct {
	*memChildren[customers.Address]
}

func (a addressKeeper) Upsert(ctx context.Context, customerID int64, position int, addr customers.Address) (bool, error) {
	if prev, ok := a.rows[customerID][addr.Key()]; ok {
		addr.IsDefault = prev.child.IsDefault
	} else {
		addr.IsDefault = false
	}
	return a.memChildren.Upsert(ctx, customerID, position, addr)
}

// memTutorials is an in-memory tutorials.Repository.
type memTutorials struct {
	rows    map[int64]*tutorials.Tutorial
	nextID  int64
	clock   *clock
	markErr error
}

func newMemTutorials(c *clock) *memTutorials {
	return &memTutorials{rows: make(map[int64]*tutorials.Tutorial), clock: c}
}

func (m *memTutorials) WithTx(ctx context.Context, fn func(context.Context, tutorials.Repository) error) error {
	return fn(ctx, m)
}

func (m *memTutorials) Get(_ context.Context, id int64) (*tutorials.Tutorial, error) {
	if t, ok := m.rows[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, ledger.ErrNotFound
}

func (m *memTutorials) GetByRemoteID(_ context.Context, remoteID string) (*tutorials.Tutorial, error) {
	for _, t := range m.rows {
		if t.RemoteID != nil && *t.RemoteID == remoteID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *memTutorials) GetBySlug(_ context.Context, slug string) (*tutorials.Tutorial, error) {
	for _, t := range m.rows {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *memTutorials) Create(ctx context.Context, t tutorials.Tutorial) (int64, error) {
	if _, err := m.GetBySlug(ctx, t.Slug); err == nil {
		return 0, fmt.Errorf("create tutorial: %w (tutoriales_slug_key)", ledger.ErrConflict)
	}
	m.nextID++
	now := m.clock.Now()
	t.ID, t.CreatedAt, t.UpdatedAt = m.nextID, now, now
	m.rows[t.ID] = &t
	return t.ID, nil
}

func (m *memTutorials) Update(_ context.Context, id int64, t tutorials.Tutorial) error {
	row, ok := m.rows[id]
	if !ok {
		return ledger.ErrNotFound
	}
	t.ID, t.RemoteID, t.CreatedAt = row.ID, row.RemoteID, row.CreatedAt
	t.UpdatedAt = m.clock.Now()
	m.rows[id] = &t
	return nil
}

func (m *memTutorials) List(context.Context) ([]tutorials.Tutorial, error) {
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]tutorials.Tutorial, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.rows[id])
	}
	return out, nil
}

func (m *memTutorials) ListUnlinked(ctx context.Context) ([]tutorials.Tutorial, error) {
	all, _ := m.List(ctx)
	var out []tutorials.Tutorial
	for _, t := range all {
		if !t.Linked() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTutorials) LinkRemote(_ context.Context, id int64, remoteID string) error {
	row, ok := m.rows[id]
	if !ok || (row.RemoteID != nil && *row.RemoteID != remoteID) {
		return ledger.ErrRemoteIDConflict
	}
	row.RemoteID = &remoteID
	return nil
}

func (m *memTutorials) MarkSynced(_ context.Context, id int64, at time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	if row, ok := m.rows[id]; ok {
		row.LastSyncedAt = &at
	}
	return nil
}

func (m *memTutorials) linkedCount() int {
	n := 0
	for _, t := range m.rows {
		if t.Linked() {
			n++
		}
	}
	return n
}

// memLookup resolves ids against the in-memory repositories.
type memLookup struct {
	products  *memProducts
	customers *memCustomers
}

func (l memLookup) LocalID(ctx context.Context, kind ledger.Kind, remoteID string) (int64, error) {
	switch {
	case kind == ledger.KindProduct && l.products != nil:
		p, err := l.products.GetByRemoteID(ctx, remoteID)
		if err != nil {
			return 0, err
		}
		return p.ID, nil
	case kind == ledger.KindCustomer && l.customers != nil:
		c, err := l.customers.GetByRemoteID(ctx, remoteID)
		if err != nil {
			return 0, err
		}
		return c.ID, nil
	}
	return 0, ledger.ErrNotFound
}

func (l memLookup) RemoteID(context.Context, ledger.Kind, int64) (string, error) {
	return "", ledger.ErrNotFound
}

// pagedRemote serves canned connection pages per query.
type pagedRemote struct {
	fields map[string]string
	pages  map[string][][]any
	fail   map[string]error
	// last variables sent per query
	seen map[string]map[string]any
}

func newPagedRemote() *pagedRemote {
	return &pagedRemote{
		fields: map[string]string{},
		pages:  map[string][][]any{},
		fail:   map[string]error{},
		seen:   map[string]map[string]any{},
	}
}

func (p *pagedRemote) serve(query, field string, pages ...[]any) {
	p.fields[query] = field
	p.pages[query] = pages
}

func (p *pagedRemote) Request(_ context.Context, query string, vars map[string]any, out any) error {
	p.seen[query] = vars
	if err := p.fail[query]; err != nil {
		return err
	}
	field, ok := p.fields[query]
	if !ok {
		return &remote.TransportError{Op: "request", Err: errors.New("unexpected query")}
	}
	idx := 0
	if after, ok := vars["after"].(*string); ok && after != nil {
		fmt.Sscanf(*after, "page-%d", &idx)
	}
	pages := p.pages[query]
	var nodes []any
	if idx < len(pages) {
		nodes = pages[idx]
	}
	hasNext := idx+1 < len(pages)
	payload := map[string]any{field: map[string]any{
		"nodes":    nodes,
		"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": fmt.Sprintf("page-%d", idx+1)},
	}}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// memCatalog is an in-memory remote catalog.
type memCatalog struct {
	items  []remote.CatalogItem
	nextID int64
	failOn map[string]error
}

func newMemCatalog() *memCatalog { return &memCatalog{nextID: 5000, failOn: map[string]error{}} }

func (c *memCatalog) add(title, handle string, published bool) remote.CatalogItem {
	c.nextID++
	status := "DRAFT"
	if published {
		status = "ACTIVE"
	}
	item := remote.CatalogItem{
		ID:     fmt.Sprintf("gid://shopify/Product/%d", c.nextID),
		Title:  title,
		Handle: handle,
		Status: status,
		Tags:   []string{"tutorial"},
	}
	c.items = append(c.items, item)
	return item
}

func (c *memCatalog) ListTagged(ctx context.Context, _ int, visit func(context.Context, []remote.CatalogItem) error) error {
	if err := c.failOn["list"]; err != nil {
		return err
	}
	snapshot := append([]remote.CatalogItem(nil), c.items...)
	return visit(ctx, snapshot)
}

func (c *memCatalog) CreateItem(_ context.Context, in remote.ItemInput) (remote.CatalogItem, error) {
	if err := c.failOn[in.Title]; err != nil {
		return remote.CatalogItem{}, err
	}
	return c.add(in.Title, in.Handle, in.Published), nil
}

func (c *memCatalog) UpdateItem(_ context.Context, id string, in remote.ItemInput) (remote.CatalogItem, error) {
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Title = in.Title
			c.items[i].Status = "DRAFT"
			if in.Published {
				c.items[i].Status = "ACTIVE"
			}
			return c.items[i], nil
		}
	}
	return remote.CatalogItem{}, &remote.UserErrors{Op: "productUpdate", Errors: []remote.UserError{{Message: "Product does not exist"}}}
}

// memEvents captures recorded events.
type memEvents struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (m *memEvents) Record(_ context.Context, evt ledger.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *memEvents) count(outcome ledger.Outcome, action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Outcome == outcome && (action == "" || e.Action == action) {
			n++
		}
	}
	return n
}

// brokenDB fails every statement, driving ledger.EventLog's failure path.
type brokenDB struct{}

func (brokenDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("relation \"registro_sincronizacion\" does not exist")
}

func (brokenDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("connection refused")
}

func (brokenDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}
