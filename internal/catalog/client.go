// Package catalog talks to the commerce backend: it lists stores, loads a
// store's categorized menu and creates order drafts.
package catalog

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	sferrors "github.com/R3E-Network/miniapp_storefront/internal/errors"
	"github.com/R3E-Network/miniapp_storefront/internal/domain"
	"github.com/R3E-Network/miniapp_storefront/internal/graphql"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

const (
	defaultPageSize = 100
	maxPages        = 20
)

// Doer executes GraphQL operations. *graphql.Client implements it.
type Doer interface {
	Do(ctx context.Context, req graphql.Request) (gjson.Result, error)
}

// Config holds catalog client configuration.
type Config struct {
	// Channel is the sales channel slug used for catalog queries.
	Channel string
	// ChannelID is the channel identifier draft orders are created in.
	ChannelID string
	PageSize  int
	Logger    *logger.Logger
}

// Client is the catalog backend client. It holds no session state; identical
// concurrent queries share a single round trip.
type Client struct {
	gql       Doer
	channel   string
	channelID string
	pageSize  int
	group     singleflight.Group
	log       *logger.Logger
}

// New creates a catalog client.
func New(gql Doer, cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		gql:       gql,
		channel:   cfg.Channel,
		channelID: cfg.ChannelID,
		pageSize:  pageSize,
		log:       log,
	}
}

// FetchStores lists the stores in backend order. An empty result is valid.
func (c *Client) FetchStores(ctx context.Context) ([]domain.Store, error) {
	key := "stores|" + c.channel + "|" + graphql.InitDataFrom(ctx)
	v, err := c.shared(ctx, key, func(ctx context.Context) (interface{}, error) {
		return c.fetchStores(ctx)
	})
	if err != nil {
		return nil, err
	}
	list := v.([]domain.Store)
	out := make([]domain.Store, len(list))
	copy(out, list)
	return out, nil
}

// shared runs fn once for all concurrent callers of key. The round trip runs
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (c *Client) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetchStores(ctx context.Context) ([]domain.Store, error) {
	stores := []domain.Store{}
	err := c.paginate(ctx, "ListStores", listStoresQuery, "collections", map[string]interface{}{
		"channel": c.channel,
	}, func(node gjson.Result) {
		stores = append(stores, storeFrom(node))
	})
	if err != nil {
		return nil, err
	}
	c.log.WithField("count", len(stores)).Debug("stores loaded")
	return stores, nil
}

// FetchStoreCatalog loads the products of one store grouped by category.
func (c *Client) FetchStoreCatalog(ctx context.Context, storeID string) (map[string]domain.Category, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, sferrors.Invariant("FetchStoreCatalog", "a store must be selected")
	}
	key := "catalog|" + c.channel + "|" + storeID + "|" + graphql.InitDataFrom(ctx)
	v, err := c.shared(ctx, key, func(ctx context.Context) (interface{}, error) {
		return c.fetchProducts(ctx, storeID)
	})
	if err != nil {
		return nil, err
	}
	return domain.GroupByCategory(v.([]domain.Product)), nil
}

func (c *Client) fetchProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	var products []domain.Product
	err := c.paginate(ctx, "ListStoreCatalog", listStoreCatalogQuery, "products", map[string]interface{}{
		"storeId": storeID,
		"channel": c.channel,
	}, func(node gjson.Result) {
		products = append(products, productFrom(node))
	})
	if err != nil {
		return nil, err
	}
	c.log.WithField("store_id", storeID).WithField("count", len(products)).Debug("store catalog loaded")
	return products, nil
}

// paginate walks a connection until hasNextPage is false, calling fn for
// every edge node. A connection longer than maxPages is an error.
func (c *Client) paginate(ctx context.Context, op, query, root string, vars map[string]interface{}, fn func(gjson.Result)) error {
	var after interface{}
	for page := 0; page < maxPages; page++ {
		v := make(map[string]interface{}, len(vars)+2)
		for k, val := range vars {
			v[k] = val
		}
		v["first"] = c.pageSize
		v["after"] = after

		data, err := c.gql.Do(ctx, graphql.Request{
			OperationName: op,
			Query:         query,
			Variables:     v,
			Idempotent:    true,
		})
		if err != nil {
			return err
		}

		conn := data.Get(root)
		conn.Get("edges").ForEach(func(_, edge gjson.Result) bool {
			if node := edge.Get("node"); node.Exists() {
				fn(node)
			}
			return true
		})

		cursor := conn.Get("pageInfo.endCursor").String()
		if !conn.Get("pageInfo.hasNextPage").Bool() || cursor == "" {
			return nil
		}
		after = cursor
	}
	c.log.WithField("operation", op).WithField("pages", maxPages).Warn("pagination exceeded page limit")
	return sferrors.Backend(op, sferrors.Detail{Message: "result exceeds the page limit", Code: "PAGE_LIMIT"})
}

// SubmitOrder creates an order draft from the purchasable entries.
func (c *Client) SubmitOrder(ctx context.Context, entries []domain.CartEntry, req domain.OrderRequest) (domain.OrderDraft, error) {
	const op = "CreateOrderDraft"

	lines := domain.LinesFor(entries)
	if len(lines) == 0 {
		return domain.OrderDraft{}, sferrors.Invariant(op, "the order has no purchasable lines")
	}

	data, err := c.gql.Do(ctx, graphql.Request{
		OperationName: op,
		Query:         createOrderDraftMutation,
		Variables: map[string]interface{}{
			"input": map[string]interface{}{
				"channelId": c.channelID,
				"userEmail": req.Buyer.Email,
				"lines":     lines,
				"metadata":  req.Metadata(),
			},
		},
	})
	if err != nil {
		return domain.OrderDraft{}, err
	}

	result := data.Get("draftOrderCreate")
	if errs := result.Get("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		details := make([]sferrors.Detail, 0, len(errs.Array()))
		errs.ForEach(func(_, e gjson.Result) bool {
			details = append(details, sferrors.Detail{
				Field:   e.Get("field").String(),
				Message: e.Get("message").String(),
				Code:    e.Get("code").String(),
			})
			return true
		})
		return domain.OrderDraft{}, sferrors.Validation(op, details...)
	}

	order := result.Get("order")
	ref := order.Get("number").String()
	if ref == "" {
		ref = order.Get("id").String()
	}
	if ref == "" {
		return domain.OrderDraft{}, sferrors.Backend(op, sferrors.Detail{Message: "the order draft carries no reference"})
	}

	c.log.WithField("store_id", req.StoreID).WithField("reference", ref).Info("order draft created")
	return domain.OrderDraft{
		ConfirmationReference: ref,
		FollowUpLink:          order.Get("redirectUrl").String(),
	}, nil
}

// =============================================================================
// Mapping
// =============================================================================

func storeFrom(node gjson.Result) domain.Store {
	return domain.Store{
		ID:          node.Get("id").String(),
		Slug:        node.Get("slug").String(),
		Name:        node.Get("name").String(),
		Description: plainText(node.Get("description")),
		ImageURL:    node.Get("backgroundImage.url").String(),
	}
}

// productFrom resolves the first variant in backend order, whatever its
// stock, and prices it from the variant's gross price, falling back to the
// start of the product's price range.
func productFrom(node gjson.Result) domain.Product {
	p := domain.Product{
		ID:           node.Get("id").String(),
		Slug:         node.Get("slug").String(),
		Name:         node.Get("name").String(),
		Description:  plainText(node.Get("description")),
		ImageURL:     node.Get("thumbnail.url").String(),
		CategoryID:   node.Get("category.id").String(),
		CategoryName: node.Get("category.name").String(),
	}

	first := node.Get("variants.0")
	if first.Exists() && first.Get("id").String() != "" {
		p.Variant = &domain.Variant{
			ID:                first.Get("id").String(),
			Name:              first.Get("name").String(),
			SKU:               first.Get("sku").String(),
			QuantityAvailable: int(first.Get("quantityAvailable").Int()),
		}
		p.Price = moneyFrom(first.Get("pricing.price.gross"))
	}
	if p.Price == nil {
		p.Price = moneyFrom(node.Get("pricing.priceRange.start.gross"))
	}
	return p
}

func moneyFrom(gross gjson.Result) *domain.Money {
	amount := gross.Get("amount")
	if !amount.Exists() || amount.Type == gjson.Null {
		return nil
	}
	raw := amount.String()
	if amount.Type == gjson.Number {
		raw = amount.Raw
	}
	m, err := domain.NewMoney(raw, gross.Get("currency").String())
	if err != nil {
		return nil
	}
	return &m
}

// plainText flattens a rich-text description (an EditorJS document with
// blocks[].data.text) to plain text. Plain strings pass through.
func plainText(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	raw := v.String()
	doc := gjson.Parse(raw)
	if !doc.IsObject() || !doc.Get("blocks").IsArray() {
		return strings.TrimSpace(raw)
	}
	var parts []string
	doc.Get("blocks").ForEach(func(_, b gjson.Result) bool {
		if t := strings.TrimSpace(b.Get("data.text").String()); t != "" {
			parts = append(parts, t)
		}
		return true
	})
	return strings.Join(parts, "\n")
}
