package engine

import (
	"context"
	"time"

	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/promotions"
	"github.com/odyssey-erp/shopsync/internal/remote"
)

// PromotionHandler syncs discount codes.
type PromotionHandler struct {
	repo promotions.Repository
	now  func() time.Time
}

// NewPromotionHandler returns a handler writing discount codes through repo.
func NewPromotionHandler(repo promotions.Repository) *PromotionHandler {
	return &PromotionHandler{repo: repo, now: time.Now}
}

func (h *PromotionHandler) Kind() ledger.Kind                    { return ledger.KindPromotion }
func (h *PromotionHandler) RemoteID(rec remote.Promotion) string { return rec.ID }

func (h *PromotionHandler) Describe(rec remote.Promotion) string {
	if code := rec.CodeDiscount.Code(); code != "" {
		return code
	}
	return rec.CodeDiscount.Title
}

// Apply upserts the discount code.
func (h *PromotionHandler) Apply(ctx context.Context, existing int64, rec remote.Promotion) (Applied, error) {
	p := mapPromotion(rec)
	if err := check(p); err != nil {
		return Applied{}, err
	}

	var out Applied
	err := h.repo.WithTx(ctx, func(ctx context.Context, repo promotions.Repository) error {
		id, created := existing, false
		if id == 0 && p.Code != nil {
			row, err := repo.GetByCode(ctx, *p.Code)
			switch {
			case err == nil:
				if err := claim(ctx, ledger.KindPromotion, row.ID, row.RemoteID, rec.ID, repo.LinkRemote); err != nil {
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
		if err := repo.MarkSynced(ctx, id, h.now()); err != nil {
			return err
		}
		out = Applied{ID: id, Created: created}
		return nil
	})
	if err != nil {
		return Applied{ID: existing}, err
	}
	return out, nil
}

func mapPromotion(rec remote.Promotion) promotions.Promotion {
	d := rec.CodeDiscount
	remoteID := rec.ID
	p := promotions.Promotion{
		RemoteID:   &remoteID,
		Title:      d.Title,
		Code:       strPtr(d.Code()),
		Type:       d.Typename,
		Status:     d.Status,
		StartsAt:   d.StartsAt,
		EndsAt:     d.EndsAt,
		UsageLimit: d.UsageLimit,
		UsageCount: d.AsyncUsageCount,
	}
	if d.CustomerGets != nil {
		switch v := d.CustomerGets.Value; {
		case v.Percentage != nil:
			p.Value = *v.Percentage * 100
			p.IsPercentage = true
		case v.Amount != nil:
			p.Value = v.Amount.Amount.Float64()
		}
	}
	return p
}
