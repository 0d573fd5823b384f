// Package domain holds the storefront's data model: stores, products,
// categories, cart entries and order drafts.
package domain

import (
	"sort"
	"strings"
)

// UncategorizedID is the synthetic category for products without one.
const (
	UncategorizedID   = "uncategorized"
	UncategorizedName = "Uncategorized"
)

// Store is a catalog storefront. Replaced wholesale on every reload.
type Store struct {
	ID          string `json:"id"`
	Slug        string `json:"slug,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Variant is the variant chosen to represent a product in the cart.
type Variant struct {
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	SKU               string `json:"sku,omitempty"`
	QuantityAvailable int    `json:"quantity_available"`
}

// Product is a displayable catalog item. Variant and Price are nil when the
// backend could not resolve them.
type Product struct {
	ID           string   `json:"id"`
	Slug         string   `json:"slug,omitempty"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	CategoryID   string   `json:"category_id,omitempty"`
	CategoryName string   `json:"category_name,omitempty"`
	Variant      *Variant `json:"variant,omitempty"`
	Price        *Money   `json:"price,omitempty"`
}

// Purchasable reports whether the product has both a resolved variant
// identity and a price.
func (p Product) Purchasable() bool {
	return p.Variant != nil && p.Variant.ID != "" && p.Price != nil
}

// Category groups a store's products. Products are ordered by name.
type Category struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

// GroupByCategory buckets products by their category reference. Products
// without one land in the synthetic uncategorized category. Each category's
// products are sorted by name, case-insensitively.
func GroupByCategory(products []Product) map[string]Category {
	out := make(map[string]Category)
	for _, p := range products {
		id, name := p.CategoryID, p.CategoryName
		if id == "" {
			id, name = UncategorizedID, UncategorizedName
		}
		cat, ok := out[id]
		if !ok {
			cat = Category{ID: id, Name: name}
		}
		cat.Products = append(cat.Products, p)
		out[id] = cat
	}
	for id, cat := range out {
		sort.SliceStable(cat.Products, func(i, j int) bool {
			return lessFold(cat.Products[i].Name, cat.Products[j].Name)
		})
		out[id] = cat
	}
	return out
}

// SortedCategories returns the categories ordered by display name,
// case-insensitively, with the ID as tie breaker.
func SortedCategories(categories map[string]Category) []Category {
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if li != lj {
			return li < lj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FirstCategoryID returns the ID of the lexicographically first category, or
// "" when there are none.
func FirstCategoryID(categories map[string]Category) string {
	sorted := SortedCategories(categories)
	if len(sorted) == 0 {
		return ""
	}
	return sorted[0].ID
}

func lessFold(a, b string) bool {
	return strings.ToLower(a) < strings.ToLower(b)
}
