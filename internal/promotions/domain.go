package promotions

import "time"

// Promotion mirrors a discount code or automatic discount.
type Promotion struct {
	ID           int64      `json:"id"`
	RemoteID     *string    `json:"remote_id,omitempty"`
	Title        string     `json:"title" validate:"required,max=255"`
	Code         *string    `json:"code,omitempty"`
	Type         string     `json:"type"`
	Status       string     `json:"status" validate:"omitempty,oneof=ACTIVE EXPIRED SCHEDULED"`
	Value        float64    `json:"value" validate:"gte=0"`
	IsPercentage bool       `json:"is_percentage"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	UsageLimit   *int       `json:"usage_limit,omitempty"`
	UsageCount   int        `json:"usage_count" validate:"gte=0"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// SearchFilter narrows Search.
type SearchFilter struct {
	Query  string
	Status string
	Limit  int
	Offset int
}
