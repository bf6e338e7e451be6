package collections

import "time"

// Collection groups products in a curated order.
type Collection struct {
	ID           int64      `json:"id"`
	RemoteID     *string    `json:"remote_id,omitempty"`
	Title        string     `json:"title" validate:"required,max=255"`
	Handle       string     `json:"handle" validate:"required,max=255"`
	Description  string     `json:"description"`
	SortOrder    string     `json:"sort_order"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// Member places a product inside a collection.
type Member struct {
	ProductID       int64  `json:"product_id"`
	ProductRemoteID string `json:"product_remote_id"`
	Position        int    `json:"position"`
}

// Key implements ledger.Keyed; memberships are keyed by the product's remote id.
func (m Member) Key() string { return m.ProductRemoteID }

// SearchFilter narrows Search.
type SearchFilter struct {
	Query  string
	Limit  int
	Offset int
}
