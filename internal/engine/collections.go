package engine

import (
	"context"
	"time"

	"github.com/odyssey-erp/shopsync/internal/collections"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/remote"
)

// CollectionHandler syncs collections and their ordered memberships. Products
// not yet in the ledger are skipped and reported in the event detail.
type CollectionHandler struct {
	repo     collections.Repository
	resolver *ledger.Resolver
	now      func() time.Time
}

// NewCollectionHandler returns a handler that maps member products through resolver.
func NewCollectionHandler(repo collections.Repository, resolver *ledger.Resolver) *CollectionHandler {
	return &CollectionHandler{repo: repo, resolver: resolver, now: time.Now}
}

func (h *CollectionHandler) Kind() ledger.Kind                     { return ledger.KindCollection }
func (h *CollectionHandler) RemoteID(rec remote.Collection) string { return rec.ID }
func (h *CollectionHandler) Describe(rec remote.Collection) string { return rec.Title }

// Apply upserts the collection and reconciles its membership list.
func (h *CollectionHandler) Apply(ctx context.Context, existing int64, rec remote.Collection) (Applied, error) {
	remoteID := rec.ID
	c := collections.Collection{
		RemoteID:    &remoteID,
		Title:       rec.Title,
		Handle:      rec.Handle,
		Description: rec.DescriptionHTML,
		SortOrder:   rec.SortOrder,
	}
	if err := check(c); err != nil {
		return Applied{}, err
	}

	members := make([]collections.Member, 0, len(rec.Products.Nodes))
	var skipped []string
	for _, ref := range rec.Products.Nodes {
		productID, err := h.resolver.ToLocal(ctx, ledger.KindProduct, ref.ID)
		if err != nil {
			if notFound(err) {
				skipped = append(skipped, ref.ID)
				continue
			}
			return Applied{}, err
		}
		members = append(members, collections.Member{ProductID: productID, ProductRemoteID: ref.ID})
	}
	policy := ledger.PolicyReplaceAll
	if rec.Products.PageInfo.HasNextPage {
		policy = ledger.PolicyMerge
	}

	var out Applied
	err := h.repo.WithTx(ctx, func(ctx context.Context, repo collections.Repository) error {
		id, created := existing, false
		if id == 0 {
			row, err := repo.GetByHandle(ctx, c.Handle)
			switch {
			case err == nil:
				if err := claim(ctx, ledger.KindCollection, row.ID, row.RemoteID, rec.ID, repo.LinkRemote); err != nil {
					return err
				}
				id = row.ID
			case !notFound(err):
				return err
			}
		}
		if id == 0 {
			newID, err := repo.Create(ctx, c)
			if err != nil {
				return err
			}
			id, created = newID, true
		} else if err := repo.Update(ctx, id, c); err != nil {
			return err
		}
		mres, err := ledger.ReconcileChildren(ctx, repo.Members(), id, members, policy)
		if err != nil {
			return err
		}
		if err := repo.MarkSynced(ctx, id, h.now()); err != nil {
			return err
		}
		detail := map[string]any{"members": mres}
		if len(skipped) > 0 {
			detail["skipped_products"] = skipped
		}
		out = Applied{ID: id, Created: created, Detail: detail}
		return nil
	})
	if err != nil {
		return Applied{ID: existing}, err
	}
	return out, nil
}
