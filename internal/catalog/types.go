// Package catalog defines the product feed types shared across subsystems
// and implements the paginated catalog fetcher.
package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Variant is a purchasable variation of a product (size, bottle count, ...).
type Variant struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Price     string `json:"price"`
	Available bool   `json:"available"`
}

// Image is a product image reference.
type Image struct {
	Src string `json:"src"`
}

// Tags accepts both the array form served by products.json and the
// comma-separated string form some storefronts return.
type Tags []string

// UnmarshalJSON decodes either a JSON array of strings or a single string.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("decode tags: %w", err)
	}
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*t = out
	return nil
}

// Product is one raw record from a site's products.json feed. Raw retains
// the original payload byte-for-byte for persistence and downstream
// consumers.
type Product struct {
	ID          int64     `json:"id"`
	Handle      string    `json:"handle"`
	Title       string    `json:"title"`
	ProductType string    `json:"product_type"`
	BodyHTML    string    `json:"body_html"`
	Vendor      string    `json:"vendor"`
	PublishedAt string    `json:"published_at"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
	Tags        Tags      `json:"tags"`
	Variants    []Variant `json:"variants"`
	Images      []Image   `json:"images"`

	Raw json.RawMessage `json:"-"`
}

// Available reports whether the product's first variant is purchasable.
// Products without variants are treated as unavailable.
func (p Product) Available() bool {
	if len(p.Variants) == 0 {
		return false
	}
	return p.Variants[0].Available
}

// Price returns the first variant's price as a decimal, with ok=false when
// no variant carries a parseable price.
func (p Product) Price() (float64, bool) {
	if len(p.Variants) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Variants[0].Price), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// PriceString returns the first variant's price as served by the feed, or
// "0.00" when no variant exists.
func (p Product) PriceString() string {
	if len(p.Variants) == 0 || p.Variants[0].Price == "" {
		return "0.00"
	}
	return p.Variants[0].Price
}

// URL builds the canonical storefront URL for the product.
func (p Product) URL(site string) string {
	return siteJoin(site, "products/"+p.Handle)
}

// CartURL builds an add-to-cart link for one variant.
func (p Product) CartURL(site string, v Variant) string {
	return siteJoin(site, fmt.Sprintf("cart/%d:1", v.ID))
}

// ImageURL returns the first image source, or "" when the product has none.
func (p Product) ImageURL() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].Src
}

// Snapshot is the last observed (availability, price) for one product,
// held in memory per site between monitor cycles.
type Snapshot struct {
	Available bool
	Price     float64
	HasPrice  bool
}

// Observe condenses a product into its snapshot form.
func Observe(p Product) Snapshot {
	price, ok := p.Price()
	return Snapshot{
		Available: p.Available(),
		Price:     price,
		HasPrice:  ok,
	}
}

func siteJoin(site, suffix string) string {
	if site == "" {
		return suffix
	}
	if !strings.HasSuffix(site, "/") {
		site += "/"
	}
	return site + suffix
}

// feedPage mirrors the wire shape of one products.json page. Records stay
// raw so each product keeps its original payload alongside the decoded form.
// The pointer distinguishes an empty page from a body missing the products
// key entirely, which is treated as malformed.
type feedPage struct {
	Products *[]json.RawMessage `json:"products"`
}

// decodeFeedPage parses one response body into products, preserving the raw
// per-product JSON.
func decodeFeedPage(body []byte) ([]Product, error) {
	var page feedPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode products page: %w", err)
	}
	if page.Products == nil {
		return nil, fmt.Errorf("products key missing from page body")
	}
	products := make([]Product, 0, len(*page.Products))
	for _, raw := range *page.Products {
		var p Product
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode product record: %w", err)
		}
		p.Raw = append(json.RawMessage(nil), raw...)
		products = append(products, p)
	}
	return products, nil
}
