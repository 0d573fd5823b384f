package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/miniapp_storefront/internal/config"
	"github.com/R3E-Network/miniapp_storefront/internal/domain"
	sferrors "github.com/R3E-Network/miniapp_storefront/internal/errors"
	"github.com/R3E-Network/miniapp_storefront/internal/graphql"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

// scriptedDoer answers each operation with a canned "data" document.
type scriptedDoer struct {
	mu        sync.Mutex
	responses map[string][]string
	err       error
	requests  []graphql.Request
	initData  []string
	delay     time.Duration

	// started is signalled when a request arrives; gate, when set, holds
	// the request until it is closed or ctx is done.
	started chan struct{}
	gate    chan struct{}
}

func (d *scriptedDoer) Do(ctx context.Context, req graphql.Request) (gjson.Result, error) {
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return gjson.Result{}, ctx.Err()
		}
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	d.initData = append(d.initData, graphql.InitDataFrom(ctx))
	if d.err != nil {
		return gjson.Result{}, d.err
	}
	queue := d.responses[req.OperationName]
	if len(queue) == 0 {
		return gjson.Parse(`{}`), nil
	}
	next := queue[0]
	if len(queue) > 1 {
		d.responses[req.OperationName] = queue[1:]
	}
	return gjson.Parse(next), nil
}

func (d *scriptedDoer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func newTestCatalog(d Doer) *Client {
	return New(d, Config{Channel: "default-channel", ChannelID: "Q2hhbm5lbDox", PageSize: 2, Logger: logger.NewDiscard()})
}

// =============================================================================
// Stores
// =============================================================================

func TestFetchStores_PreservesOrderAndPaginates(t *testing.T) {
	d := &scriptedDoer{responses: map[string][]string{
		"ListStores": {
			`{"collections":{"pageInfo":{"hasNextPage":true,"endCursor":"c1"},"edges":[
				{"node":{"id":"s2","slug":"pizza","name":"Pizza Place","backgroundImage":{"url":"https://img/p.png"}}},
				{"node":{"id":"s1","slug":"bar","name":"Bar"}}]}}`,
			`{"collections":{"pageInfo":{"hasNextPage":false,"endCursor":"c2"},"edges":[
				{"node":{"id":"s3","name":"Cafe","description":"{\"blocks\":[{\"data\":{\"text\":\"Fresh coffee\"}}]}"}}]}}`,
		},
	}}
	c := newTestCatalog(d)

	stores, err := c.FetchStores(context.Background())
	require.NoError(t, err)
	require.Len(t, stores, 3)
	assert.Equal(t, []string{"s2", "s1", "s3"}, []string{stores[0].ID, stores[1].ID, stores[2].ID})
	assert.Equal(t, "https://img/p.png", stores[0].ImageURL)
	assert.Equal(t, "Fresh coffee", stores[2].Description)

	require.Equal(t, 2, d.calls())
	assert.True(t, d.requests[0].Idempotent)
	assert.Nil(t, d.requests[0].Variables["after"])
	assert.Equal(t, "c1", d.requests[1].Variables["after"])
	assert.Equal(t, "default-channel", d.requests[1].Variables["channel"])
}

func TestFetchStores_EmptyIsNotAnError(t *testing.T) {
	d := &scriptedDoer{responses: map[string][]string{
		"ListStores": {`{"collections":{"edges":[]}}`},
	}}

	stores, err := newTestCatalog(d).FetchStores(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stores)
	assert.Empty(t, stores)
}

func TestFetchStores_FailureIsNeverPartial(t *testing.T) {
	d := &scriptedDoer{err: sferrors.Transport("ListStores", 502, nil)}

	stores, err := newTestCatalog(d).FetchStores(context.Background())
	require.Error(t, err)
	assert.Nil(t, stores)
	assert.True(t, sferrors.IsTransport(err))
}

func TestFetchStores_ConcurrentCallsShareOneRequest(t *testing.T) {
	d := &scriptedDoer{
		delay: 50 * time.Millisecond,
		responses: map[string][]string{
			"ListStores": {`{"collections":{"edges":[{"node":{"id":"s1","name":"Bar"}}]}}`},
		},
	}
	c := newTestCatalog(d)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stores, err := c.FetchStores(context.Background())
			assert.NoError(t, err)
			assert.Len(t, stores, 1)
		}()
	}
	wg.Wait()

	assert.Less(t, d.calls(), 5)
}

func TestFetchStores_CancelledCallerDoesNotFailOthers(t *testing.T) {
	d := &scriptedDoer{
		started: make(chan struct{}, 4),
		gate:    make(chan struct{}),
		responses: map[string][]string{
			"ListStores": {`{"collections":{"edges":[{"node":{"id":"s1","name":"Bar"}}]}}`},
		},
	}
	c := newTestCatalog(d)

	ctxA, cancelA := context.WithCancel(graphql.WithInitData(context.Background(), "user=ada"))
	defer cancelA()
	ctxB := graphql.WithInitData(context.Background(), "user=ada")

	errA := make(chan error, 1)
	go func() {
		_, err := c.FetchStores(ctxA)
		errA <- err
	}()
	<-d.started

	type result struct {
		stores []domain.Store
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		stores, err := c.FetchStores(ctxB)
		resB <- result{stores, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(d.gate)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Len(t, res.stores, 1)
	case <-time.After(time.Second):
		t.Fatal("second caller never finished")
	}

	require.Equal(t, 1, d.calls())
	assert.Equal(t, []string{"user=ada"}, d.initData, "the shared request keeps the caller's credentials")
}

func TestFetchStores_PageLimitIsAnError(t *testing.T) {
	d := &scriptedDoer{responses: map[string][]string{
		"ListStores": {`{"collections":{"pageInfo":{"hasNextPage":true,"endCursor":"more"},"edges":[
			{"node":{"id":"s1","name":"Bar"}}]}}`},
	}}

	stores, err := newTestCatalog(d).FetchStores(context.Background())
	require.Error(t, err)
	assert.Nil(t, stores)
	assert.True(t, sferrors.IsBackend(err))
	assert.Equal(t, maxPages, d.calls())
}

// =============================================================================
// Store catalog
// =============================================================================

const catalogPage = `{"products":{"edges":[
	{"node":{"id":"p1","name":"cola","category":{"id":"c-drinks","name":"Drinks"},
		"pricing":{"priceRange":{"start":{"gross":{"amount":9.99,"currency":"USD"}}}},
		"variants":[
			{"id":"v1","name":"Can","sku":"COLA-1","quantityAvailable":0,"pricing":{"price":{"gross":{"amount":5,"currency":"USD"}}}},
			{"id":"v2","name":"Bottle","pricing":{"price":{"gross":{"amount":7,"currency":"USD"}}}}]}},
	{"node":{"id":"p2","name":"Burger","category":{"id":"c-food","name":"Food"},
		"pricing":{"priceRange":{"start":{"gross":{"amount":12.5,"currency":"usd"}}}},
		"variants":[{"id":"v3","name":"Default"}]}},
	{"node":{"id":"p3","name":"Mystery box","variants":[]}},
	{"node":{"id":"p4","name":"apple juice","category":{"id":"c-drinks","name":"Drinks"},
		"pricing":{"priceRange":{"start":{"gross":{"amount":3,"currency":"USD"}}}},
		"variants":[]}}
]}}`

func TestFetchStoreCatalog_GroupsAndResolvesPrices(t *testing.T) {
	d := &scriptedDoer{responses: map[string][]string{"ListStoreCatalog": {catalogPage}}}

	cats, err := newTestCatalog(d).FetchStoreCatalog(context.Background(), "store-1")
	require.NoError(t, err)
	require.Len(t, cats, 3)

	drinks := cats["c-drinks"]
	require.Len(t, drinks.Products, 2)
	assert.Equal(t, "apple juice", drinks.Products[0].Name)

	cola := drinks.Products[1]
	require.NotNil(t, cola.Variant)
	assert.Equal(t, "v1", cola.Variant.ID, "first variant wins even when out of stock")
	assert.Equal(t, "5.00 USD", cola.Price.String())
	assert.True(t, cola.Purchasable())

	juice := drinks.Products[0]
	assert.Nil(t, juice.Variant)
	assert.False(t, juice.Purchasable())

	burger := cats["c-food"].Products[0]
	require.NotNil(t, burger.Price)
	assert.Equal(t, "12.50 USD", burger.Price.String(), "falls back to the price range")
	assert.True(t, burger.Purchasable())

	mystery := cats[domain.UncategorizedID].Products[0]
	assert.Nil(t, mystery.Price)
	assert.False(t, mystery.Purchasable())

	assert.Equal(t, "store-1", d.requests[0].Variables["storeId"])
}

func TestFetchStoreCatalog_RequiresStore(t *testing.T) {
	_, err := newTestCatalog(&scriptedDoer{}).FetchStoreCatalog(context.Background(), " ")
	require.Error(t, err)
	assert.True(t, sferrors.IsInvariant(err))
}

// =============================================================================
// Orders
// =============================================================================

func orderEntries() []domain.CartEntry {
	price := domain.MustMoney("5", "USD")
	return []domain.CartEntry{
		{Product: domain.Product{ID: "p1", Variant: &domain.Variant{ID: "v1"}, Price: &price}, Quantity: 2},
		{Product: domain.Product{ID: "p9"}, Quantity: 1},
	}
}

func orderRequest() domain.OrderRequest {
	return domain.OrderRequest{
		Buyer:   domain.Buyer{ID: "b1", Email: "tg-b1@buyers.example"},
		StoreID: "store-1",
		Total:   domain.MustMoney("10", "USD"),
	}
}

func TestSubmitOrder_Success(t *testing.T) {
	d := &scriptedDoer{responses: map[string][]string{
		"CreateOrderDraft": {`{"draftOrderCreate":{"order":{"id":"T3JkZXI6MQ==","number":"1042","redirectUrl":"https://pay.example/1042"},"errors":[]}}`},
	}}

	draft, err := newTestCatalog(d).SubmitOrder(context.Background(), orderEntries(), orderRequest())
	require.NoError(t, err)
	assert.Equal(t, "1042", draft.ConfirmationReference)
	assert.Equal(t, "https://pay.example/1042", draft.FollowUpLink)

	require.Equal(t, 1, d.calls())
	req := d.requests[0]
	assert.False(t, req.Idempotent)
	input := req.Variables["input"].(map[string]interface{})
	assert.Equal(t, "Q2hhbm5lbDox", input["channelId"])
	assert.Equal(t, "tg-b1@buyers.example", input["userEmail"])
	assert.Equal(t, []domain.OrderLine{{VariantID: "v1", Quantity: 2}}, input["lines"])
}

func TestSubmitOrder_FallsBackToID(t *testing.T) {
	d := &scriptedDoer{responses: map[string][]string{
		"CreateOrderDraft": {`{"draftOrderCreate":{"order":{"id":"T3JkZXI6MQ=="},"errors":[]}}`},
	}}

	draft, err := newTestCatalog(d).SubmitOrder(context.Background(), orderEntries(), orderRequest())
	require.NoError(t, err)
	assert.Equal(t, "T3JkZXI6MQ==", draft.ConfirmationReference)
	assert.Empty(t, draft.FollowUpLink)
}

func TestSubmitOrder_ValidationErrors(t *testing.T) {
	d := &scriptedDoer{responses: map[string][]string{
		"CreateOrderDraft": {`{"draftOrderCreate":{"order":null,"errors":[{"field":"lines","message":"Variant v1 is out of stock","code":"INSUFFICIENT_STOCK"}]}}`},
	}}

	_, err := newTestCatalog(d).SubmitOrder(context.Background(), orderEntries(), orderRequest())
	require.Error(t, err)

	var ve *sferrors.ValidationError
	require.True(t, sferrors.As(err, &ve))
	require.Len(t, ve.Details, 1)
	assert.Equal(t, "INSUFFICIENT_STOCK", ve.Details[0].Code)
	assert.Equal(t, "Order rejected: Variant v1 is out of stock", sferrors.UserMessage(err, ""))
}

func TestSubmitOrder_NoPurchasableLines(t *testing.T) {
	d := &scriptedDoer{}
	_, err := newTestCatalog(d).SubmitOrder(context.Background(), orderEntries()[1:], orderRequest())
	require.Error(t, err)
	assert.True(t, sferrors.IsInvariant(err))
	assert.Equal(t, 0, d.calls())
}

// =============================================================================
// Over HTTP
// =============================================================================

func TestCatalog_OverHTTPCarriesAuthorization(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "tma query_id=AAE&hash=ff", r.Header.Get("Authorization"))

		var body struct {
			OperationName string `json:"operationName"`
		}
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "ListStores", body.OperationName)

		_, _ = w.Write([]byte(`{"data":{"collections":{"edges":[{"node":{"id":"s1","name":"Bar"}}]}}}`))
	}))
	defer srv.Close()

	gql, err := graphql.New(graphql.Config{Endpoint: srv.URL, Logger: logger.NewDiscard()})
	require.NoError(t, err)

	ctx := graphql.WithInitData(context.Background(), "query_id=AAE&hash=ff")
	stores, err := newTestCatalog(gql).FetchStores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, "Bar", stores[0].Name)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.BackendConfig{
		Endpoint:         "http://backend.test/graphql/",
		Channel:          "default-channel",
		ChannelID:        "Q2hhbm5lbDox",
		Timeout:          time.Second,
		MaxRetries:       1,
		BreakerThreshold: 3,
		BreakerTimeout:   time.Second,
		PageSize:         25,
	}

	client, gql, err := NewFromConfig(cfg, logger.NewDiscard())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, graphql.CircuitClosed, gql.CircuitState())
	assert.Equal(t, 25, client.pageSize)

	_, _, err = NewFromConfig(config.BackendConfig{}, logger.NewDiscard())
	assert.Error(t, err)
}
