package domain

// CartEntry is a product snapshot and its quantity. Quantity is always >= 1.
type CartEntry struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal is price x quantity, or nil for an unpriced product.
func (e CartEntry) Subtotal() *Money {
	if e.Product.Price == nil {
		return nil
	}
	m := e.Product.Price.Mul(e.Quantity)
	return &m
}

// CartSummary is derived from the cart on demand.
type CartSummary struct {
	Items int   `json:"items"`
	Total Money `json:"total"`
}

// Buyer is the identity attached to an order draft.
type Buyer struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Username    string `json:"username,omitempty"`
	Guest       bool   `json:"guest"`
}

// OrderLine is one line of an order draft.
type OrderLine struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// MetadataItem is a key/value pair stored on the order draft.
type MetadataItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OrderRequest is the buyer context of a submission.
type OrderRequest struct {
	Buyer   Buyer
	StoreID string
	Total   Money
}

// Metadata renders the buyer context as order metadata.
func (r OrderRequest) Metadata() []MetadataItem {
	items := []MetadataItem{
		{Key: "buyer_id", Value: r.Buyer.ID},
		{Key: "buyer_kind", Value: buyerKind(r.Buyer)},
		{Key: "store_id", Value: r.StoreID},
		{Key: "order_total", Value: r.Total.String()},
	}
	if r.Buyer.DisplayName != "" {
		items = append(items, MetadataItem{Key: "buyer_name", Value: r.Buyer.DisplayName})
	}
	if r.Buyer.Username != "" {
		items = append(items, MetadataItem{Key: "buyer_username", Value: r.Buyer.Username})
	}
	return items
}

// OrderDraft is the result of a successful submission.
type OrderDraft struct {
	ConfirmationReference string `json:"confirmation_reference"`
	FollowUpLink          string `json:"follow_up_link,omitempty"`
}

// LinesFor builds order lines from the purchasable entries only.
func LinesFor(entries []CartEntry) []OrderLine {
	lines := make([]OrderLine, 0, len(entries))
	for _, e := range entries {
		if !e.Product.Purchasable() || e.Quantity <= 0 {
			continue
		}
		lines = append(lines, OrderLine{VariantID: e.Product.Variant.ID, Quantity: e.Quantity})
	}
	return lines
}

func buyerKind(b Buyer) string {
	if b.Guest {
		return "guest"
	}
	return "host_user"
}
