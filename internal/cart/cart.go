// Package cart holds the buyer's cart for the currently selected store.
//
// A Cart is not safe for concurrent use; the session controller owns it and
// guards it with its own lock.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/miniapp_storefront/internal/domain"
)

// Cart maps product IDs to entries. It never holds an entry with a
// quantity below one.
type Cart struct {
	entries  map[string]*domain.CartEntry
	order    []string
	currency string
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{entries: make(map[string]*domain.CartEntry)}
}

// SetQuantity sets the quantity for a product. A quantity of zero or less
// removes the entry; a positive quantity inserts it or replaces the stored
// product snapshot. A priced product makes its currency the cart currency,
// even when the call removes it.
func (c *Cart) SetQuantity(p domain.Product, quantity int) {
	if p.Price != nil && p.Price.Currency != "" {
		c.currency = p.Price.Currency
	}

	if quantity <= 0 {
		c.remove(p.ID)
		return
	}

	if e, ok := c.entries[p.ID]; ok {
		e.Product = p
		e.Quantity = quantity
		return
	}
	c.entries[p.ID] = &domain.CartEntry{Product: p, Quantity: quantity}
	c.order = append(c.order, p.ID)
}

func (c *Cart) remove(id string) {
	if _, ok := c.entries[id]; ok {
		delete(c.entries, id)
		for i, oid := range c.order {
			if oid == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	if len(c.entries) == 0 {
		c.currency = ""
	}
}

// Quantity returns the quantity held for a product, zero when absent.
func (c *Cart) Quantity(productID string) int {
	if e, ok := c.entries[productID]; ok {
		return e.Quantity
	}
	return 0
}

// Entries returns copies of the entries in insertion order.
func (c *Cart) Entries() []domain.CartEntry {
	out := make([]domain.CartEntry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.entries[id])
	}
	return out
}

// Purchasable returns the entries that can be part of an order.
func (c *Cart) Purchasable() []domain.CartEntry {
	out := make([]domain.CartEntry, 0, len(c.order))
	for _, id := range c.order {
		if e := c.entries[id]; e.Product.Purchasable() {
			out = append(out, *e)
		}
	}
	return out
}

// Len is the number of distinct products.
func (c *Cart) Len() int { return len(c.entries) }

// IsEmpty reports whether the cart has no entries.
func (c *Cart) IsEmpty() bool { return len(c.entries) == 0 }

// Currency is the inferred cart currency, empty while unknown.
func (c *Cart) Currency() string { return c.currency }

// Summarize derives the item count and total from the priced entries.
// Amounts are summed as-is; mixed currencies are not converted.
func (c *Cart) Summarize() domain.CartSummary {
	items := 0
	total := decimal.Zero
	for _, id := range c.order {
		e := c.entries[id]
		if e.Product.Price == nil {
			continue
		}
		items += e.Quantity
		total = total.Add(e.Product.Price.Mul(e.Quantity).Amount)
	}
	return domain.CartSummary{
		Items: items,
		Total: domain.Money{Amount: total, Currency: c.currency},
	}
}

// Clear empties the cart and forgets the currency.
func (c *Cart) Clear() {
	c.entries = make(map[string]*domain.CartEntry)
	c.order = nil
	c.currency = ""
}
