package orders

import "time"

// Order mirrors a platform order header.
type Order struct {
	ID                int64      `json:"id"`
	RemoteID          *string    `json:"remote_id,omitempty"`
	Number            string     `json:"number" validate:"required"`
	CustomerID        *int64     `json:"customer_id,omitempty"`
	Email             string     `json:"email"`
	FinancialStatus   string     `json:"financial_status"`
	FulfillmentStatus string     `json:"fulfillment_status"`
	Currency          string     `json:"currency" validate:"omitempty,len=3"`
	Subtotal          float64    `json:"subtotal" validate:"gte=0"`
	Tax               float64    `json:"tax" validate:"gte=0"`
	Total             float64    `json:"total" validate:"gte=0"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty"`
}

// LineItem is one purchased product line.
type LineItem struct {
	RemoteID        string  `json:"remote_id" validate:"required"`
	ProductID       *int64  `json:"product_id,omitempty"`
	VariantRemoteID string  `json:"variant_remote_id,omitempty"`
	Title           string  `json:"title" validate:"required"`
	SKU             string  `json:"sku"`
	Quantity        int     `json:"quantity" validate:"gte=0"`
	UnitPrice       float64 `json:"unit_price"`
	Position        int     `json:"position"`
}

// Key implements ledger.Keyed.
func (l LineItem) Key() string { return l.RemoteID }

// Transaction is a payment movement against an order.
type Transaction struct {
	RemoteID    string     `json:"remote_id" validate:"required"`
	Kind        string     `json:"kind" validate:"required"`
	Status      string     `json:"status" validate:"required"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	Gateway     string     `json:"gateway"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Position    int        `json:"position"`
}

// Key implements ledger.Keyed.
func (t Transaction) Key() string { return t.RemoteID }

// Fulfillment is a shipment of some or all of an order.
type Fulfillment struct {
	RemoteID       string `json:"remote_id" validate:"required"`
	Status         string `json:"status" validate:"required"`
	Company        string `json:"company"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
	Position       int    `json:"position"`
}

// Key implements ledger.Keyed.
func (f Fulfillment) Key() string { return f.RemoteID }

// SearchFilter narrows Search.
type SearchFilter struct {
	Query      string
	CustomerID *int64
	Limit      int
	Offset     int
}
