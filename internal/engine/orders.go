package engine

import (
	"context"
	"time"

	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/orders"
	"github.com/odyssey-erp/shopsync/internal/remote"
)

// OrderHandler syncs orders with line items, transactions and fulfillments.
// Customers and products are resolved through the ledger; unknown references
// are stored as NULL.
type OrderHandler struct {
	repo     orders.Repository
	resolver *ledger.Resolver
	now      func() time.Time
}

// NewOrderHandler returns a handler that maps customer and product references through resolver.
func NewOrderHandler(repo orders.Repository, resolver *ledger.Resolver) *OrderHandler {
	return &OrderHandler{repo: repo, resolver: resolver, now: time.Now}
}

func (h *OrderHandler) Kind() ledger.Kind                { return ledger.KindOrder }
func (h *OrderHandler) RemoteID(rec remote.Order) string { return rec.ID }
func (h *OrderHandler) Describe(rec remote.Order) string { return rec.Name }

// Apply upserts the order header and reconciles its child sets.
func (h *OrderHandler) Apply(ctx context.Context, existing int64, rec remote.Order) (Applied, error) {
	o, err := h.mapOrder(ctx, rec)
	if err != nil {
		return Applied{}, err
	}
	lines, err := h.mapLineItems(ctx, rec.LineItems.Nodes)
	if err != nil {
		return Applied{}, err
	}
	txns, err := mapTransactions(rec.Transactions)
	if err != nil {
		return Applied{}, err
	}
	shipments, err := mapFulfillments(rec.Fulfillments)
	if err != nil {
		return Applied{}, err
	}
	// A truncated line-item page must not delete the lines it did not include.
	linePolicy := ledger.PolicyReplaceAll
	if rec.LineItems.PageInfo.HasNextPage {
		linePolicy = ledger.PolicyMerge
	}

	var out Applied
	err = h.repo.WithTx(ctx, func(ctx context.Context, repo orders.Repository) error {
		id, created := existing, false
		if id == 0 {
			newID, err := repo.Create(ctx, o)
			if err != nil {
				return err
			}
			id, created = newID, true
		} else if err := repo.Update(ctx, id, o); err != nil {
			return err
		}
		lres, err := ledger.ReconcileChildren(ctx, repo.LineItems(), id, lines, linePolicy)
		if err != nil {
			return err
		}
		tres, err := ledger.ReconcileChildren(ctx, repo.Transactions(), id, txns, ledger.PolicyReplaceAll)
		if err != nil {
			return err
		}
		fres, err := ledger.ReconcileChildren(ctx, repo.Fulfillments(), id, shipments, ledger.PolicyReplaceAll)
		if err != nil {
			return err
		}
		if err := repo.MarkSynced(ctx, id, h.now()); err != nil {
			return err
		}
		out = Applied{ID: id, Created: created, Detail: map[string]any{
			"line_items": lres, "line_item_policy": linePolicy.String(),
			"transactions": tres, "fulfillments": fres,
		}}
		return nil
	})
	if err != nil {
		return Applied{ID: existing}, err
	}
	return out, nil
}

func (h *OrderHandler) mapOrder(ctx context.Context, rec remote.Order) (orders.Order, error) {
	remoteID := rec.ID
	o := orders.Order{
		RemoteID:          &remoteID,
		Number:            rec.Name,
		Email:             rec.Email,
		FinancialStatus:   rec.DisplayFinancialStatus,
		FulfillmentStatus: rec.DisplayFulfillmentStatus,
		Currency:          rec.CurrencyCode,
		Subtotal:          rec.SubtotalPriceSet.ShopMoney.Amount.Float64(),
		Tax:               rec.TotalTaxSet.ShopMoney.Amount.Float64(),
		Total:             rec.TotalPriceSet.ShopMoney.Amount.Float64(),
		ProcessedAt:       rec.ProcessedAt,
		CancelledAt:       rec.CancelledAt,
	}
	if rec.Customer != nil && rec.Customer.ID != "" {
		customerID, err := h.resolver.ToLocal(ctx, ledger.KindCustomer, rec.Customer.ID)
		switch {
		case err == nil:
			o.CustomerID = &customerID
		case !notFound(err):
			return o, err
		}
	}
	return o, check(o)
}

func (h *OrderHandler) mapLineItems(ctx context.Context, nodes []remote.LineItem) ([]orders.LineItem, error) {
	out := make([]orders.LineItem, 0, len(nodes))
	for _, rl := range nodes {
		id, err := childID(rl.ID)
		if err != nil {
			return nil, err
		}
		l := orders.LineItem{
			RemoteID:  id,
			Title:     rl.Title,
			SKU:       rl.SKU,
			Quantity:  rl.Quantity,
			UnitPrice: rl.OriginalUnitPriceSet.ShopMoney.Amount.Float64(),
		}
		if rl.Product != nil && rl.Product.ID != "" {
			productID, err := h.resolver.ToLocal(ctx, ledger.KindProduct, rl.Product.ID)
			switch {
			case err == nil:
				l.ProductID = &productID
			case !notFound(err):
				return nil, err
			}
		}
		if rl.Variant != nil {
			if l.VariantRemoteID, err = childID(rl.Variant.ID); err != nil {
				return nil, err
			}
		}
		if err := check(l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func mapTransactions(nodes []remote.Transaction) ([]orders.Transaction, error) {
	out := make([]orders.Transaction, 0, len(nodes))
	for _, rt := range nodes {
		id, err := childID(rt.ID)
		if err != nil {
			return nil, err
		}
		t := orders.Transaction{
			RemoteID:    id,
			Kind:        rt.Kind,
			Status:      rt.Status,
			Amount:      rt.AmountSet.ShopMoney.Amount.Float64(),
			Currency:    rt.AmountSet.ShopMoney.CurrencyCode,
			Gateway:     rt.Gateway,
			ProcessedAt: rt.ProcessedAt,
		}
		if err := check(t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func mapFulfillments(nodes []remote.Fulfillment) ([]orders.Fulfillment, error) {
	out := make([]orders.Fulfillment, 0, len(nodes))
	for _, rf := range nodes {
		id, err := childID(rf.ID)
		if err != nil {
			return nil, err
		}
		f := orders.Fulfillment{RemoteID: id, Status: rf.Status}
		if len(rf.TrackingInfo) > 0 {
			f.Company = rf.TrackingInfo[0].Company
			f.TrackingNumber = rf.TrackingInfo[0].Number
			f.TrackingURL = rf.TrackingInfo[0].URL
		}
		if err := check(f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
