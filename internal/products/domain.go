package products

import "time"

// Product is a local catalog row mirrored from the remote platform.
type Product struct {
	ID           int64      `json:"id"`
	RemoteID     *string    `json:"remote_id,omitempty"`
	Title        string     `json:"title" validate:"required,max=255"`
	Description  string     `json:"description"`
	Handle       string     `json:"handle" validate:"required,max=255"`
	Vendor       string     `json:"vendor"`
	ProductType  string     `json:"product_type"`
	Status       string     `json:"status" validate:"oneof=ACTIVE DRAFT ARCHIVED"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// Variant is a purchasable option of a product.
type Variant struct {
	ID             int64    `json:"id"`
	ProductID      int64    `json:"product_id"`
	RemoteID       string   `json:"remote_id" validate:"required"`
	Title          string   `json:"title"`
	SKU            string   `json:"sku"`
	Price          float64  `json:"price" validate:"gte=0"`
	CompareAtPrice *float64 `json:"compare_at_price,omitempty"`
	Inventory      int      `json:"inventory"`
	Position       int      `json:"position"`
}

// Key implements ledger.Keyed.
func (v Variant) Key() string { return v.RemoteID }

// Image belongs to a product and optionally to one of its variants.
type Image struct {
	ID              int64  `json:"id"`
	ProductID       int64  `json:"product_id"`
	VariantID       *int64 `json:"variant_id,omitempty"`
	VariantRemoteID string `json:"variant_remote_id,omitempty"`
	RemoteID        string `json:"remote_id" validate:"required"`
	URL             string `json:"url" validate:"required,url"`
	AltText         string `json:"alt_text"`
	Position        int    `json:"position"`
}

// Key implements ledger.Keyed.
func (i Image) Key() string { return i.RemoteID }

// SearchFilter narrows Search.
type SearchFilter struct {
	Query  string
	Status string
	Linked *bool
	Limit  int
	Offset int
}
