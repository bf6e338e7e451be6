package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Decimal decodes the platform's Money/Decimal scalars, which arrive as JSON
// strings, as well as plain numbers.
type Decimal float64

func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*d = 0
			return nil
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("remote: decimal %q: %w", b, err)
	}
	*d = Decimal(f)
	return nil
}

func (d Decimal) Float64() float64 { return float64(d) }

// PageInfo is the cursor block of a connection.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// Connection is a paginated list of nodes.
type Connection[T any] struct {
	Nodes    []T      `json:"nodes"`
	PageInfo PageInfo `json:"pageInfo"`
}

// Ref is a bare node reference.
type Ref struct {
	ID string `json:"id"`
}

// MoneyBag mirrors the shopMoney wrapper of *Set price fields.
type MoneyBag struct {
	ShopMoney struct {
		Amount       Decimal `json:"amount"`
		CurrencyCode string  `json:"currencyCode"`
	} `json:"shopMoney"`
}

type Product struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	DescriptionHTML string              `json:"descriptionHtml"`
	Handle          string              `json:"handle"`
	Vendor          string              `json:"vendor"`
	ProductType     string              `json:"productType"`
	Status          string              `json:"status"`
	Tags            []string            `json:"tags"`
	Variants        Connection[Variant] `json:"variants"`
	Images          Connection[Image]   `json:"images"`
}

type Variant struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	SKU               string   `json:"sku"`
	Price             Decimal  `json:"price"`
	CompareAtPrice    *Decimal `json:"compareAtPrice"`
	InventoryQuantity int      `json:"inventoryQuantity"`
	Position          int      `json:"position"`
	Image             *Ref     `json:"image"`
}

type Image struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

type Collection struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Handle          string          `json:"handle"`
	DescriptionHTML string          `json:"descriptionHtml"`
	SortOrder       string          `json:"sortOrder"`
	Products        Connection[Ref] `json:"products"`
}

type Customer struct {
	ID                    string            `json:"id"`
	Email                 *string           `json:"email"`
	FirstName             string            `json:"firstName"`
	LastName              string            `json:"lastName"`
	Phone                 *string           `json:"phone"`
	State                 string            `json:"state"`
	Tags                  []string          `json:"tags"`
	Note                  string            `json:"note"`
	EmailMarketingConsent *MarketingConsent `json:"emailMarketingConsent"`
	Addresses             []Address         `json:"addresses"`
	DefaultAddress        *Ref              `json:"defaultAddress"`
}

type MarketingConsent struct {
	MarketingState string `json:"marketingState"`
}

// AcceptsMarketing reports a SUBSCRIBED email marketing state.
func (c Customer) AcceptsMarketing() bool {
	return c.EmailMarketingConsent != nil && c.EmailMarketingConsent.MarketingState == "SUBSCRIBED"
}

type Address struct {
	ID       string `json:"id"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
}

type Order struct {
	ID                       string               `json:"id"`
	Name                     string               `json:"name"`
	Email                    string               `json:"email"`
	Customer                 *Ref                 `json:"customer"`
	DisplayFinancialStatus   string               `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus string               `json:"displayFulfillmentStatus"`
	CurrencyCode             string               `json:"currencyCode"`
	SubtotalPriceSet         MoneyBag             `json:"subtotalPriceSet"`
	TotalTaxSet              MoneyBag             `json:"totalTaxSet"`
	TotalPriceSet            MoneyBag             `json:"totalPriceSet"`
	ProcessedAt              *time.Time           `json:"processedAt"`
	CancelledAt              *time.Time           `json:"cancelledAt"`
	LineItems                Connection[LineItem] `json:"lineItems"`
	Transactions             []Transaction        `json:"transactions"`
	Fulfillments             []Fulfillment        `json:"fulfillments"`
}

type LineItem struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	SKU                  string   `json:"sku"`
	Quantity             int      `json:"quantity"`
	OriginalUnitPriceSet MoneyBag `json:"originalUnitPriceSet"`
	Product              *Ref     `json:"product"`
	Variant              *Ref     `json:"variant"`
}

type Transaction struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	AmountSet   MoneyBag   `json:"amountSet"`
	Gateway     string     `json:"gateway"`
	ProcessedAt *time.Time `json:"processedAt"`
}

type Fulfillment struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	TrackingInfo []TrackingInfo `json:"trackingInfo"`
}

type TrackingInfo struct {
	Company string `json:"company"`
	Number  string `json:"number"`
	URL     string `json:"url"`
}

// Promotion is a code discount node.
type Promotion struct {
	ID           string       `json:"id"`
	CodeDiscount CodeDiscount `json:"codeDiscount"`
}

type CodeDiscount struct {
	Typename        string     `json:"__typename"`
	Title           string     `json:"title"`
	Status          string     `json:"status"`
	StartsAt        *time.Time `json:"startsAt"`
	EndsAt          *time.Time `json:"endsAt"`
	UsageLimit      *int       `json:"usageLimit"`
	AsyncUsageCount int        `json:"asyncUsageCount"`
	Codes           struct {
		Nodes []struct {
			Code string `json:"code"`
		} `json:"nodes"`
	} `json:"codes"`
	CustomerGets *struct {
		Value struct {
			Percentage *float64 `json:"percentage"`
			Amount     *struct {
				Amount Decimal `json:"amount"`
			} `json:"amount"`
		} `json:"value"`
	} `json:"customerGets"`
}

// Code returns the first redeem code, if any.
func (d CodeDiscount) Code() string {
	if len(d.Codes.Nodes) == 0 {
		return ""
	}
	return d.Codes.Nodes[0].Code
}

// CatalogItem is a product viewed through the tutorial mirror.
type CatalogItem struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Handle          string     `json:"handle"`
	DescriptionHTML string     `json:"descriptionHtml"`
	Status          string     `json:"status"`
	Tags            []string   `json:"tags"`
	Difficulty      *Metafield `json:"difficulty"`
	EstimatedTime   *Metafield `json:"estimatedTime"`
}

// Published reports whether the item is visible on the storefront.
func (c CatalogItem) Published() bool { return c.Status == "ACTIVE" }

type Metafield struct {
	Value string `json:"value"`
}
