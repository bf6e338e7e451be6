package engine

import (
	"context"
	"strings"
	"time"

	"github.com/odyssey-erp/shopsync/internal/customers"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/remote"
)

// CustomerHandler syncs customers and addresses. Unlinked customers are
// matched by email before a new row is created.
type CustomerHandler struct {
	repo customers.Repository
	now  func() time.Time
}

// NewCustomerHandler returns a handler writing customers through repo.
func NewCustomerHandler(repo customers.Repository) *CustomerHandler {
	return &CustomerHandler{repo: repo, now: time.Now}
}

func (h *CustomerHandler) Kind() ledger.Kind                   { return ledger.KindCustomer }
func (h *CustomerHandler) RemoteID(rec remote.Customer) string { return rec.ID }

func (h *CustomerHandler) Describe(rec remote.Customer) string {
	name := strings.TrimSpace(rec.FirstName + " " + rec.LastName)
	if name == "" && rec.Email != nil {
		return *rec.Email
	}
	return name
}

// Apply upserts the customer, then reconciles addresses and the default address.
func (h *CustomerHandler) Apply(ctx context.Context, existing int64, rec remote.Customer) (Applied, error) {
	c, addresses, defaultID, err := mapCustomer(rec)
	if err != nil {
		return Applied{}, err
	}

	var out Applied
	err = h.repo.WithTx(ctx, func(ctx context.Context, repo customers.Repository) error {
		id, created := existing, false
		if id == 0 && c.Email != nil {
			row, err := repo.GetByEmail(ctx, *c.Email)
			switch {
			case err == nil:
				if err := claim(ctx, ledger.KindCustomer, row.ID, row.RemoteID, rec.ID, repo.LinkRemote); err != nil {
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
		ares, err := ledger.ReconcileChildren(ctx, repo.Addresses(), id, addresses, ledger.PolicyReplaceAll)
		if err != nil {
			return err
		}
		if err := repo.SetDefaultAddress(ctx, id, defaultID); err != nil {
			return err
		}
		if err := repo.MarkSynced(ctx, id, h.now()); err != nil {
			return err
		}
		out = Applied{ID: id, Created: created, Detail: map[string]any{
			"addresses": ares, "default_address": defaultID,
		}}
		return nil
	})
	if err != nil {
		return Applied{ID: existing}, err
	}
	return out, nil
}

func mapCustomer(rec remote.Customer) (customers.Customer, []customers.Address, string, error) {
	remoteID := rec.ID
	c := customers.Customer{
		RemoteID:         &remoteID,
		FirstName:        rec.FirstName,
		LastName:         rec.LastName,
		Phone:            rec.Phone,
		State:            rec.State,
		AcceptsMarketing: rec.AcceptsMarketing(),
		Tags:             rec.Tags,
		Note:             rec.Note,
	}
	if rec.Email != nil {
		c.Email = strPtr(strings.TrimSpace(*rec.Email))
	}
	if err := check(c); err != nil {
		return c, nil, "", err
	}

	addresses := make([]customers.Address, 0, len(rec.Addresses))
	for _, ra := range rec.Addresses {
		id, err := childID(ra.ID)
		if err != nil {
			return c, nil, "", err
		}
		a := customers.Address{
			RemoteID: id,
			Address1: ra.Address1,
			Address2: ra.Address2,
			City:     ra.City,
			Province: ra.Province,
			Zip:      ra.Zip,
			Country:  ra.Country,
			Phone:    ra.Phone,
		}
		if err := check(a); err != nil {
			return c, nil, "", err
		}
		addresses = append(addresses, a)
	}

	defaultID := ""
	if rec.DefaultAddress != nil && rec.DefaultAddress.ID != "" {
		id, err := childID(rec.DefaultAddress.ID)
		if err != nil {
			return c, nil, "", err
		}
		defaultID = id
	}
	return c, addresses, defaultID, nil
}
