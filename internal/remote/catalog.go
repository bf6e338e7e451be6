package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ItemInput is the mirrored field set pushed to the catalog.
type ItemInput struct {
	Title           string
	Handle          string
	DescriptionHTML string
	Published       bool
	Tags            []string
	Difficulty      string
	EstimatedTime   int
}

// Catalog manages tutorial mirror items on the remote platform.
type Catalog struct {
	r            Requester
	collectionID string
	tag          string
}

// NewCatalog binds the mirror to a tag and, optionally, the collection new
// items are joined to.
func NewCatalog(r Requester, collectionID, tag string) *Catalog {
	if tag == "" {
		tag = "tutorial"
	}
	return &Catalog{r: r, collectionID: collectionID, tag: tag}
}

// Tag is the marker tag of mirrored items.
func (c *Catalog) Tag() string { return c.tag }

// ListTagged visits every catalog item carrying the mirror tag.
func (c *Catalog) ListTagged(ctx context.Context, pageSize int, visit func(context.Context, []CatalogItem) error) error {
	vars := map[string]any{"query": "tag:" + strconv.Quote(c.tag)}
	return Paginate(ctx, c.r, CatalogItemsQuery, FieldProducts, vars, pageSize, visit)
}

// ExcludeTag returns list variables filtering out products carrying tag, so
// mirrored catalog items stay out of the product ledger. An empty tag
// filters nothing.
func ExcludeTag(tag string) map[string]any {
	if tag == "" {
		return nil
	}
	return map[string]any{"query": "-tag:" + strconv.Quote(tag)}
}

// CreateItem creates a catalog item and joins it to the tutorials collection.
func (c *Catalog) CreateItem(ctx context.Context, in ItemInput) (CatalogItem, error) {
	input := map[string]any{
		"title":           in.Title,
		"handle":          in.Handle,
		"descriptionHtml": in.DescriptionHTML,
		"productType":     "Tutorial",
		"status":          statusFor(in.Published),
		"tags":            c.tags(in.Tags),
		"metafields":      metafields(in),
	}
	if c.collectionID != "" {
		input["collectionsToJoin"] = []string{c.collectionID}
	}
	var out struct {
		ProductCreate struct {
			Product    *CatalogItem `json:"product"`
			UserErrors []UserError  `json:"userErrors"`
		} `json:"productCreate"`
	}
	if err := c.r.Request(ctx, productCreateMutation, map[string]any{"input": input}, &out); err != nil {
		return CatalogItem{}, err
	}
	if err := CheckUserErrors("productCreate", out.ProductCreate.UserErrors); err != nil {
		return CatalogItem{}, err
	}
	if out.ProductCreate.Product == nil || out.ProductCreate.Product.ID == "" {
		return CatalogItem{}, errors.New("remote productCreate: no product returned")
	}
	return *out.ProductCreate.Product, nil
}

// UpdateItem pushes title and published state to an existing item.
func (c *Catalog) UpdateItem(ctx context.Context, id string, in ItemInput) (CatalogItem, error) {
	input := map[string]any{
		"id":     id,
		"title":  in.Title,
		"status": statusFor(in.Published),
	}
	var out struct {
		ProductUpdate struct {
			Product    *CatalogItem `json:"product"`
			UserErrors []UserError  `json:"userErrors"`
		} `json:"productUpdate"`
	}
	if err := c.r.Request(ctx, productUpdateMutation, map[string]any{"input": input}, &out); err != nil {
		return CatalogItem{}, err
	}
	if err := CheckUserErrors("productUpdate", out.ProductUpdate.UserErrors); err != nil {
		return CatalogItem{}, err
	}
	if out.ProductUpdate.Product == nil {
		return CatalogItem{}, fmt.Errorf("remote productUpdate %s: no product returned", id)
	}
	return *out.ProductUpdate.Product, nil
}

func (c *Catalog) tags(extra []string) []string {
	tags := []string{c.tag}
	for _, t := range extra {
		if t != "" && t != c.tag {
			tags = append(tags, t)
		}
	}
	return tags
}

func statusFor(published bool) string {
	if published {
		return "ACTIVE"
	}
	return "DRAFT"
}

func metafields(in ItemInput) []map[string]any {
	var out []map[string]any
	if in.Difficulty != "" {
		out = append(out, map[string]any{
			"namespace": "tutorial", "key": "difficulty",
			"type": "single_line_text_field", "value": in.Difficulty,
		})
	}
	if in.EstimatedTime > 0 {
		out = append(out, map[string]any{
			"namespace": "tutorial", "key": "estimated_time",
			"type": "number_integer", "value": strconv.Itoa(in.EstimatedTime),
		})
	}
	return out
}
