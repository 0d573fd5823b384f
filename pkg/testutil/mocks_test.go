package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/miniapp_storefront/internal/domain"
	"github.com/R3E-Network/miniapp_storefront/internal/graphql"
)

func TestMemoryCatalog(t *testing.T) {
	cat := NewMemoryCatalog()
	cat.AddStore(domain.Store{ID: "s1", Name: "Diner"}, Priced("tea", "Tea", "c1", "Drinks", "2.50", "EUR"))
	ctx := graphql.WithInitData(context.Background(), "user=1")

	stores, err := cat.FetchStores(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 1)

	cats, err := cat.FetchStoreCatalog(ctx, "s1")
	require.NoError(t, err)
	require.Contains(t, cats, "c1")
	assert.True(t, cats["c1"].Products[0].Purchasable())

	_, err = cat.FetchStoreCatalog(ctx, "missing")
	assert.Error(t, err)

	draft, err := cat.SubmitOrder(ctx, nil, domain.OrderRequest{StoreID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "1001", draft.ConfirmationReference)
	require.Len(t, cat.Orders(), 1)
	assert.Equal(t, "user=1", cat.Orders()[0].Credential)
	assert.Len(t, cat.Credentials(), 4)
}

func TestMemoryCatalog_Failures(t *testing.T) {
	cat := NewMemoryCatalog()
	boom := errors.New("boom")

	cat.FailStores(boom)
	_, err := cat.FetchStores(context.Background())
	assert.ErrorIs(t, err, boom)

	cat.FailSubmit(boom)
	_, err = cat.SubmitOrder(context.Background(), nil, domain.OrderRequest{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, cat.Orders())
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore[string, int]()
	s.Set("a", 1)
	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, s.Count())
}
