package customers

import "time"

// Customer mirrors a platform customer account.
type Customer struct {
	ID               int64      `json:"id"`
	RemoteID         *string    `json:"remote_id,omitempty"`
	Email            *string    `json:"email,omitempty" validate:"omitempty,email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Phone            *string    `json:"phone,omitempty"`
	State            string     `json:"state" validate:"omitempty,oneof=ENABLED DISABLED INVITED DECLINED"`
	AcceptsMarketing bool       `json:"accepts_marketing"`
	Tags             []string   `json:"tags"`
	Note             string     `json:"note"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastSyncedAt     *time.Time `json:"last_synced_at,omitempty"`
}

// Address is a postal address owned by a customer.
type Address struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customer_id"`
	RemoteID   string `json:"remote_id" validate:"required"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	City       string `json:"city"`
	Province   string `json:"province"`
	Zip        string `json:"zip"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"is_default"`
	Position   int    `json:"position"`
}

// Key implements ledger.Keyed.
func (a Address) Key() string { return a.RemoteID }

// SearchFilter narrows Search.
type SearchFilter struct {
	Query  string
	Limit  int
	Offset int
}
