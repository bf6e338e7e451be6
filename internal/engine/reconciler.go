package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/shopsync/internal/gid"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/remote"
	"github.com/odyssey-erp/shopsync/internal/tutorials"
)

// State is the mirror state of one tutorial.
type State int

const (
	StateLocalOnly State = iota + 1
	StateRemoteOnly
	StateLinked
	StateLinkedStale
)

func (s State) String() string {
	switch s {
	case StateLocalOnly:
		return "local_only"
	case StateRemoteOnly:
		return "remote_only"
	case StateLinked:
		return "linked"
	case StateLinkedStale:
		return "linked_stale"
	default:
		return "unknown"
	}
}

// Classify places a local/remote pair in the mirror state machine. Either side
// may be nil, not both.
func Classify(local *tutorials.Tutorial, item *remote.CatalogItem) State {
	switch {
	case local == nil:
		return StateRemoteOnly
	case !local.Linked() || item == nil:
		return StateLocalOnly
	case local.Title != item.Title || local.Published != item.Published():
		return StateLinkedStale
	default:
		return StateLinked
	}
}

// Catalog is the remote side of the tutorial mirror.
type Catalog interface {
	ListTagged(ctx context.Context, pageSize int, visit func(context.Context, []remote.CatalogItem) error) error
	CreateItem(ctx context.Context, in remote.ItemInput) (remote.CatalogItem, error)
	UpdateItem(ctx context.Context, id string, in remote.ItemInput) (remote.CatalogItem, error)
}

// ReconcileResult counts the work of one mirror run.
type ReconcileResult struct {
	CreatedLocal  int `json:"created_local"`
	CreatedRemote int `json:"created_remote"`
	UpdatedRemote int `json:"updated_remote"`
	Linked        int `json:"linked"`
	Failed        int `json:"failed"`
	Total         int `json:"total"`
}

// Reconciler keeps tutorials and their catalog items converged.
type Reconciler struct {
	repo     tutorials.Repository
	catalog  Catalog
	events   ledger.Recorder
	logger   *slog.Logger
	pageSize int
	now      func() time.Time
}

// NewReconciler constructs a Reconciler.
func NewReconciler(repo tutorials.Repository, catalog Catalog, events ledger.Recorder, logger *slog.Logger, pageSize int) *Reconciler {
	if events == nil {
		events = ledger.Discard{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{repo: repo, catalog: catalog, events: events, logger: logger, pageSize: pageSize, now: time.Now}
}

// mirror is the working set of one run, built once from both sides.
type mirror struct {
	locals   []*tutorials.Tutorial
	byRemote map[string]*tutorials.Tutorial
	bySlug   map[string]*tutorials.Tutorial
	items    []remote.CatalogItem
	byID     map[string]*remote.CatalogItem
}

// Run executes the three passes. A listing failure on either side aborts the
// run; per-tutorial failures are counted and recorded.
func (r *Reconciler) Run(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	m, err := r.load(ctx)
	if err != nil {
		return res, err
	}
	res.Total = len(m.locals)
	for i := range m.items {
		if m.byRemote[m.items[i].ID] == nil {
			res.Total++
		}
	}

	r.pullRemote(ctx, m, &res)
	r.pushLocal(ctx, m, &res)
	r.pushUpdates(ctx, m, &res)
	return res, nil
}

func (r *Reconciler) load(ctx context.Context) (*mirror, error) {
	rows, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tutorials: %w", err)
	}
	m := &mirror{
		byRemote: make(map[string]*tutorials.Tutorial),
		bySlug:   make(map[string]*tutorials.Tutorial),
		byID:     make(map[string]*remote.CatalogItem),
	}
	for i := range rows {
		t := &rows[i]
		m.locals = append(m.locals, t)
		m.bySlug[t.Slug] = t
		if t.Linked() {
			m.byRemote[*t.RemoteID] = t
		}
	}
	err = r.catalog.ListTagged(ctx, r.pageSize, func(_ context.Context, page []remote.CatalogItem) error {
		m.items = append(m.items, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list catalog items: %w", err)
	}
	for _, item := range m.items {
		m.byID[item.ID] = &item
	}
	return m, nil
}

// pullRemote is pass 1: catalog items with no linked local become tutorials.
// An unlinked local with the same slug is linked instead of duplicated.
func (r *Reconciler) pullRemote(ctx context.Context, m *mirror, res *ReconcileResult) {
	for i := range m.items {
		item := &m.items[i]
		if m.byRemote[item.ID] != nil {
			continue
		}
		slug := Slugify(item.Handle)
		if slug == "" {
			slug = Slugify(item.Title)
		}

		if local := m.bySlug[slug]; local != nil && !local.Linked() {
			if err := r.repo.LinkRemote(ctx, local.ID, item.ID); err != nil {
				r.fail(ctx, res, local.ID, ledger.ActionLink, item.ID, local.Title, err)
				continue
			}
			id := item.ID
			local.RemoteID = &id
			m.byRemote[id] = local
			res.Linked++
			r.ok(ctx, local.ID, ledger.ActionLink, fmt.Sprintf("tutorial %q linked to %s", local.Title, id), map[string]any{"remote_id": id, "slug": slug})
			continue
		}
		if m.bySlug[slug] != nil || slug == "" {
			slug = uniqueSlug(slug, item.ID)
		}

		t, err := tutorialFromItem(*item, slug)
		if err == nil {
			t.ID, err = r.repo.Create(ctx, t)
		}
		if err != nil {
			r.fail(ctx, res, 0, ledger.ActionCreate, item.ID, item.Title, err)
			continue
		}
		detail := map[string]any{"remote_id": item.ID, "slug": t.Slug}
		r.markSynced(ctx, t.ID, detail)
		m.locals = append(m.locals, &t)
		m.byRemote[item.ID] = &t
		m.bySlug[t.Slug] = &t
		res.CreatedLocal++
		r.ok(ctx, t.ID, ledger.ActionCreate, fmt.Sprintf("tutorial %q created from catalog", t.Title), detail)
	}
}

// pushLocal is pass 2: published locals without a remote id get a catalog
// item. The id is persisted before the next tutorial is considered.
func (r *Reconciler) pushLocal(ctx context.Context, m *mirror, res *ReconcileResult) {
	for _, t := range m.locals {
		if t.Linked() || !t.Published {
			continue
		}
		item, err := r.catalog.CreateItem(ctx, itemInput(t))
		if err != nil {
			r.fail(ctx, res, t.ID, ledger.ActionPush, "", t.Title, err)
			continue
		}
		if err := r.repo.LinkRemote(ctx, t.ID, item.ID); err != nil {
			// The item exists remotely but is not linked; the id in the event
			// detail is what an operator needs to link it by hand.
			r.fail(ctx, res, t.ID, ledger.ActionLink, item.ID, t.Title, err)
			continue
		}
		id := item.ID
		detail := map[string]any{"remote_id": id}
		r.markSynced(ctx, t.ID, detail)
		t.RemoteID = &id
		m.byRemote[id] = t
		m.byID[id] = &item
		res.CreatedRemote++
		r.ok(ctx, t.ID, ledger.ActionPush, fmt.Sprintf("tutorial %q published to catalog", t.Title), detail)
	}
}

// pushUpdates is pass 3: linked tutorials whose mirrored fields differ are
// pushed; the local side wins. The overwritten remote values are kept in the
// event detail.
func (r *Reconciler) pushUpdates(ctx context.Context, m *mirror, res *ReconcileResult) {
	for _, t := range m.locals {
		if !t.Linked() {
			continue
		}
		item := m.byID[*t.RemoteID]
		if item == nil {
			r.logger.Warn("linked tutorial missing from catalog", slog.Int64("tutorial_id", t.ID), slog.String("remote_id", *t.RemoteID))
			continue
		}
		if Classify(t, item) != StateLinkedStale {
			continue
		}
		previous := map[string]any{"title": item.Title, "status": item.Status}
		updated, err := r.catalog.UpdateItem(ctx, item.ID, itemInput(t))
		if err != nil {
			r.fail(ctx, res, t.ID, ledger.ActionPush, item.ID, t.Title, err)
			continue
		}
		*item = updated
		detail := map[string]any{"remote_id": item.ID, "previous": previous}
		r.markSynced(ctx, t.ID, detail)
		res.UpdatedRemote++
		r.ok(ctx, t.ID, ledger.ActionPush, fmt.Sprintf("tutorial %q pushed to catalog", t.Title), detail)
	}
}

// markSynced stamps last_synced_at. The mirror step already happened, so a
// failure is logged and noted in the step's event detail instead of failing it.
func (r *Reconciler) markSynced(ctx context.Context, id int64, detail map[string]any) {
	if err := r.repo.MarkSynced(ctx, id, r.now()); err != nil {
		r.logger.Warn("mark tutorial synced failed", slog.Int64("tutorial_id", id), slog.Any("error", err))
		detail["mark_synced_error"] = err.Error()
	}
}

func (r *Reconciler) ok(ctx context.Context, id int64, action, msg string, detail map[string]any) {
	if runID := RunID(ctx); runID != "" {
		detail["run_id"] = runID
	}
	evt := ledger.Event{Kind: ledger.KindTutorial, Action: action, Outcome: ledger.OutcomeSuccess, Message: msg, Detail: detail}
	if id > 0 {
		evt.EntityID = &id
	}
	r.events.Record(ctx, evt)
}

func (r *Reconciler) fail(ctx context.Context, res *ReconcileResult, id int64, action, remoteID, title string, err error) {
	res.Failed++
	detail := map[string]any{"error_class": errorClass(err)}
	if remoteID != "" {
		detail["remote_id"] = remoteID
	}
	if runID := RunID(ctx); runID != "" {
		detail["run_id"] = runID
	}
	evt := ledger.Event{
		Kind: ledger.KindTutorial, Action: action, Outcome: ledger.OutcomeError,
		Message: fmt.Sprintf("tutorial %q %s failed: %v", title, action, err),
		Detail:  detail,
	}
	if id > 0 {
		evt.EntityID = &id
	}
	r.events.Record(ctx, evt)
	r.logger.Warn("tutorial mirror step failed", slog.String("action", action), slog.String("remote_id", remoteID), slog.Any("error", err))
}

func tutorialFromItem(item remote.CatalogItem, slug string) (tutorials.Tutorial, error) {
	if _, err := ledger.ExpectKind(ledger.KindTutorial, item.ID); err != nil {
		return tutorials.Tutorial{}, err
	}
	id := item.ID
	t := tutorials.Tutorial{
		RemoteID:      &id,
		Title:         item.Title,
		Slug:          slug,
		Summary:       summarize(plainText(item.DescriptionHTML), 280),
		Content:       item.DescriptionHTML,
		Difficulty:    tutorials.DefaultDifficulty,
		EstimatedTime: tutorials.DefaultEstimatedTime,
		Published:     item.Published(),
	}
	if item.Difficulty != nil && strings.TrimSpace(item.Difficulty.Value) != "" {
		t.Difficulty = strings.TrimSpace(item.Difficulty.Value)
	}
	if item.EstimatedTime != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(item.EstimatedTime.Value)); err == nil && n > 0 {
			t.EstimatedTime = n
		}
	}
	return t, check(t)
}

func itemInput(t *tutorials.Tutorial) remote.ItemInput {
	return remote.ItemInput{
		Title:           t.Title,
		Handle:          t.Slug,
		DescriptionHTML: t.Content,
		Published:       t.Published,
		Difficulty:      t.Difficulty,
		EstimatedTime:   t.EstimatedTime,
	}
}

// uniqueSlug disambiguates a colliding slug with the item's numeric id.
func uniqueSlug(slug, remoteID string) string {
	suffix := remoteID
	if id, err := gid.Parse(remoteID); err == nil {
		suffix = strconv.FormatInt(id.Number, 10)
	}
	if slug == "" {
		return "tutorial-" + suffix
	}
	return slug + "-" + suffix
}

func summarize(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit])) + "…"
}
