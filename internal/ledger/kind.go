// Package ledger holds the primitives shared by every entity reconciler:
// the closed set of synchronised entity kinds, remote id resolution, the
// append-only sync event log and child-collection reconciliation.
package ledger

import (
	"fmt"
	"strings"
)

// Kind enumerates the entity types mirrored from the remote platform.
type Kind int

const (
	KindProduct Kind = iota + 1
	KindCollection
	KindCustomer
	KindOrder
	KindPromotion
	KindTutorial
)

// Kinds lists every kind in the order a full sync runs them. Customers come
// before orders so order→customer lookups resolve.
var Kinds = []Kind{KindProduct, KindCollection, KindCustomer, KindOrder, KindPromotion, KindTutorial}

func (k Kind) String() string {
	switch k {
	case KindProduct:
		return "product"
	case KindCollection:
		return "collection"
	case KindCustomer:
		return "customer"
	case KindOrder:
		return "order"
	case KindPromotion:
		return "promotion"
	case KindTutorial:
		return "tutorial"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Table returns the local table holding rows of this kind.
func (k Kind) Table() string {
	switch k {
	case KindProduct:
		return "productos"
	case KindCollection:
		return "colecciones"
	case KindCustomer:
		return "clientes"
	case KindOrder:
		return "pedidos"
	case KindPromotion:
		return "promociones"
	case KindTutorial:
		return "tutoriales"
	}
	panic(fmt.Sprintf("ledger: no table for %s", k))
}

// RemoteType is the entity segment of remote ids created for this kind.
// Tutorials are mirrored as catalog products.
func (k Kind) RemoteType() string {
	switch k {
	case KindProduct, KindTutorial:
		return "Product"
	case KindCollection:
		return "Collection"
	case KindCustomer:
		return "Customer"
	case KindOrder:
		return "Order"
	case KindPromotion:
		return "DiscountCodeNode"
	}
	panic(fmt.Sprintf("ledger: no remote type for %s", k))
}

// Accepts reports whether a remote id of type typ may belong to this kind.
func (k Kind) Accepts(typ string) bool {
	if k == KindPromotion {
		return typ == "DiscountCodeNode" || typ == "DiscountAutomaticNode"
	}
	return typ == k.RemoteType()
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= KindProduct && k <= KindTutorial
}

// ParseKind accepts singular or plural names, case-insensitively.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, k := range Kinds {
		if n == k.String() || n == k.String()+"s" {
			return k, nil
		}
	}
	return 0, fmt.Errorf("ledger: unknown entity kind %q", name)
}
