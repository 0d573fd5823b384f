// Package testutil provides in-memory test doubles for the storefront.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/miniapp_storefront/internal/domain"
	"github.com/R3E-Network/miniapp_storefront/internal/graphql"
)

// Priced builds a purchasable product whose variant ID is "v-" + id.
func Priced(id, name, categoryID, categoryName, amount, currency string) domain.Product {
	price := domain.MustMoney(amount, currency)
	return domain.Product{
		ID:           id,
		Name:         name,
		CategoryID:   categoryID,
		CategoryName: categoryName,
		Variant:      &domain.Variant{ID: "v-" + id},
		Price:        &price,
	}
}

// Order is one submission recorded by MemoryCatalog.
type Order struct {
	Entries    []domain.CartEntry
	Request    domain.OrderRequest
	Credential string
}

// MemoryCatalog is an in-memory catalog backend. It records the init data
// credential carried by every call.
type MemoryCatalog struct {
	products *MemoryStore[string, []domain.Product]

	mu          sync.Mutex
	stores      []domain.Store
	storesErr   error
	catalogErr  error
	submitErr   error
	draft       domain.OrderDraft
	orders      []Order
	credentials []string
}

// NewMemoryCatalog creates an empty catalog that confirms orders as "1001".
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		products: NewMemoryStore[string, []domain.Product](),
		draft:    domain.OrderDraft{ConfirmationReference: "1001"},
	}
}

// AddStore appends a store and replaces its products.
func (m *MemoryCatalog) AddStore(store domain.Store, products ...domain.Product) {
	m.mu.Lock()
	m.stores = append(m.stores, store)
	m.mu.Unlock()
	m.products.Set(store.ID, products)
}

// SetDraft sets the result of later submissions.
func (m *MemoryCatalog) SetDraft(draft domain.OrderDraft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = draft
}

// FailStores makes FetchStores return err; nil restores it.
func (m *MemoryCatalog) FailStores(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storesErr = err
}

// FailCatalog makes FetchStoreCatalog return err; nil restores it.
func (m *MemoryCatalog) FailCatalog(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogErr = err
}

// FailSubmit makes SubmitOrder return err; nil restores it.
func (m *MemoryCatalog) FailSubmit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

func (m *MemoryCatalog) FetchStores(ctx context.Context) ([]domain.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials = append(m.credentials, graphql.InitDataFrom(ctx))
	if m.storesErr != nil {
		return nil, m.storesErr
	}
	return append([]domain.Store(nil), m.stores...), nil
}

func (m *MemoryCatalog) FetchStoreCatalog(ctx context.Context, storeID string) (map[string]domain.Category, error) {
	m.mu.Lock()
	m.credentials = append(m.credentials, graphql.InitDataFrom(ctx))
	err := m.catalogErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	products, ok := m.products.Get(storeID)
	if !ok {
		return nil, fmt.Errorf("store not found: %s", storeID)
	}
	return domain.GroupByCategory(products), nil
}

func (m *MemoryCatalog) SubmitOrder(ctx context.Context, entries []domain.CartEntry, req domain.OrderRequest) (domain.OrderDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred := graphql.InitDataFrom(ctx)
	m.credentials = append(m.credentials, cred)
	if m.submitErr != nil {
		return domain.OrderDraft{}, m.submitErr
	}
	m.orders = append(m.orders, Order{Entries: entries, Request: req, Credential: cred})
	return m.draft, nil
}

// Orders returns the successful submissions in order.
func (m *MemoryCatalog) Orders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Order(nil), m.orders...)
}

// Credentials returns the init data seen by each call, in call order.
func (m *MemoryCatalog) Credentials() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.credentials...)
}

// MemoryStore is a generic in-memory store for testing.
type MemoryStore[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore[K comparable, V any]() *MemoryStore[K, V] {
	return &MemoryStore[K, V]{items: make(map[K]V)}
}

// Set stores an item.
func (s *MemoryStore[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// Get retrieves an item.
func (s *MemoryStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Count returns the number of items.
func (s *MemoryStore[K, V]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
