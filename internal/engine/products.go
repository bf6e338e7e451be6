package engine

import (
	"context"
	"time"

	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/products"
	"github.com/odyssey-erp/shopsync/internal/remote"
)

// ProductHandler syncs products with their variants and images.
type ProductHandler struct {
	repo products.Repository
	now  func() time.Time
}

// NewProductHandler returns a handler writing products through repo.
func NewProductHandler(repo products.Repository) *ProductHandler {
	return &ProductHandler{repo: repo, now: time.Now}
}

func (h *ProductHandler) Kind() ledger.Kind                  { return ledger.KindProduct }
func (h *ProductHandler) RemoteID(rec remote.Product) string { return rec.ID }
func (h *ProductHandler) Describe(rec remote.Product) string { return rec.Title }

// Apply upserts the product and reconciles its variant and image sets.
func (h *ProductHandler) Apply(ctx context.Context, existing int64, rec remote.Product) (Applied, error) {
	p, variants, images, err := mapProduct(rec)
	if err != nil {
		return Applied{}, err
	}
	variantPolicy, imagePolicy := ledger.PolicyReplaceAll, ledger.PolicyReplaceAll
	if rec.Variants.PageInfo.HasNextPage {
		variantPolicy = ledger.PolicyMerge
	}
	if rec.Images.PageInfo.HasNextPage {
		imagePolicy = ledger.PolicyMerge
	}

	var out Applied
	err = h.repo.WithTx(ctx, func(ctx context.Context, repo products.Repository) error {
		id, created := existing, false
		if id == 0 {
			row, err := repo.GetByHandle(ctx, p.Handle)
			switch {
			case err == nil:
				if err := claim(ctx, ledger.KindProduct, row.ID, row.RemoteID, rec.ID, repo.LinkRemote); err != nil {
					return err
				}
				id = row.ID
			case !notFound(err):
				return err
			}
		}
		if id == 0 {
			newID, err := repo.Create(ctx, p)
			if err != nil {
				return err
			}
			id, created = newID, true
		} else if err := repo.Update(ctx, id, p); err != nil {
			return err
		}
		vres, err := ledger.ReconcileChildren(ctx, repo.Variants(), id, variants, variantPolicy)
		if err != nil {
			return err
		}
		ires, err := ledger.ReconcileChildren(ctx, repo.Images(), id, images, imagePolicy)
		if err != nil {
			return err
		}
		if err := repo.MarkSynced(ctx, id, h.now()); err != nil {
			return err
		}
		out = Applied{ID: id, Created: created, Detail: map[string]any{
			"variants": vres, "images": ires,
		}}
		return nil
	})
	if err != nil {
		return Applied{ID: existing}, err
	}
	return out, nil
}

func mapProduct(rec remote.Product) (products.Product, []products.Variant, []products.Image, error) {
	remoteID := rec.ID
	p := products.Product{
		RemoteID:    &remoteID,
		Title:       rec.Title,
		Description: rec.DescriptionHTML,
		Handle:      rec.Handle,
		Vendor:      rec.Vendor,
		ProductType: rec.ProductType,
		Status:      rec.Status,
		Tags:        rec.Tags,
	}
	if err := check(p); err != nil {
		return p, nil, nil, err
	}

	variantForImage := make(map[string]string)
	variants := make([]products.Variant, 0, len(rec.Variants.Nodes))
	for _, rv := range rec.Variants.Nodes {
		id, err := childID(rv.ID)
		if err != nil {
			return p, nil, nil, err
		}
		v := products.Variant{
			RemoteID:  id,
			Title:     rv.Title,
			SKU:       rv.SKU,
			Price:     rv.Price.Float64(),
			Inventory: rv.InventoryQuantity,
			Position:  rv.Position,
		}
		if rv.CompareAtPrice != nil {
			cmp := rv.CompareAtPrice.Float64()
			v.CompareAtPrice = &cmp
		}
		if err := check(v); err != nil {
			return p, nil, nil, err
		}
		if rv.Image != nil && rv.Image.ID != "" {
			variantForImage[rv.Image.ID] = id
		}
		variants = append(variants, v)
	}

	images := make([]products.Image, 0, len(rec.Images.Nodes))
	for _, ri := range rec.Images.Nodes {
		id, err := childID(ri.ID)
		if err != nil {
			return p, nil, nil, err
		}
		img := products.Image{
			RemoteID:        id,
			URL:             ri.URL,
			AltText:         ri.AltText,
			VariantRemoteID: variantForImage[ri.ID],
		}
		if err := check(img); err != nil {
			return p, nil, nil, err
		}
		images = append(images, img)
	}
	return p, variants, images, nil
}
