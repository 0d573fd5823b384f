package graphql

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/R3E-Network/miniapp_storefront/internal/errors"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

func newTestClient(t *testing.T, url string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Endpoint: url,
		Retry: RetryConfig{
			MaxRetries:           2,
			InitialBackoff:       time.Millisecond,
			MaxBackoff:           5 * time.Millisecond,
			BackoffMultiplier:    2,
			RetryableStatusCodes: []int{http.StatusServiceUnavailable},
		},
		Logger: logger.NewDiscard(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestDo_ReturnsDataAndSendsEnvelope(t *testing.T) {
	var got map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"data":{"shop":{"name":"Demo"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	ctx := WithInitData(context.Background(), "user=%7B%7D&hash=abc")

	data, err := c.Do(ctx, Request{
		OperationName: "Shop",
		Query:         "query Shop { shop { name } }",
		Variables:     map[string]interface{}{"channel": "default"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Demo", data.Get("shop.name").String())
	assert.Equal(t, "tma user=%7B%7D&hash=abc", auth)
	assert.Equal(t, "Shop", got["operationName"])
	assert.Equal(t, map[string]interface{}{"channel": "default"}, got["variables"])
}

func TestDo_AnonymousHasNoAuthorization(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.AuthScheme = "Bearer" })
	_, err := c.Do(context.Background(), Request{OperationName: "Ping", Query: "{__typename}"})
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		check   func(error) bool
		message string
	}{
		{"http 500", http.StatusInternalServerError, `oops`, sferrors.IsTransport, ""},
		{"malformed body", http.StatusOK, `{not json`, sferrors.IsTransport, ""},
		{"graphql errors", http.StatusOK, `{"errors":[{"message":"channel not found","path":["products"]}]}`, sferrors.IsBackend, "channel not found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, nil)
			_, err := c.Do(context.Background(), Request{OperationName: "Q", Query: "{x}", Idempotent: true})
			require.Error(t, err)
			assert.True(t, tc.check(err), "unexpected error type: %v", err)
			if tc.message != "" {
				assert.Contains(t, sferrors.UserMessage(err, ""), tc.message)
			}
		})
	}
}

func TestDo_RetriesIdempotentQueries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	data, err := c.Do(context.Background(), Request{OperationName: "Q", Query: "{ok}", Idempotent: true})
	require.NoError(t, err)
	assert.True(t, data.Get("ok").Bool())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_NeverRetriesMutations(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Do(context.Background(), Request{OperationName: "M", Query: "mutation { x }"})
	require.Error(t, err)

	var te *sferrors.TransportError
	require.True(t, sferrors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_TimeoutIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.HTTPClient = &http.Client{Timeout: 20 * time.Millisecond}
		cfg.Retry = RetryConfig{}
	})
	_, err := c.Do(context.Background(), Request{OperationName: "Slow", Query: "{x}", Idempotent: true})
	require.Error(t, err)
	assert.True(t, sferrors.IsTransport(err))
}

func TestDo_CircuitOpensAfterFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.CircuitBreaker = CircuitBreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}
	})

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), Request{OperationName: "Q", Query: "{x}"})
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, c.CircuitState())

	_, err := c.Do(context.Background(), Request{OperationName: "Q", Query: "{x}"})
	require.Error(t, err)
	assert.True(t, sferrors.Is(err, sferrors.ErrCircuitOpen))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_HalfOpenTrialRetriesItself(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.CircuitBreaker = CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Second}
	})
	now := time.Unix(1000, 0)
	c.breaker.now = func() time.Time { return now }

	_, err := c.Do(context.Background(), Request{OperationName: "M", Query: "mutation{x}"})
	require.Error(t, err)
	require.Equal(t, CircuitOpen, c.CircuitState())

	now = now.Add(2 * time.Second)
	data, err := c.Do(context.Background(), Request{OperationName: "Q", Query: "{ok}", Idempotent: true})
	require.NoError(t, err)
	assert.True(t, data.Get("ok").Bool())
	assert.Equal(t, CircuitClosed, c.CircuitState())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

// =============================================================================
// Circuit breaker
// =============================================================================

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Second})
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), sferrors.ErrCircuitOpen)

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second})
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Second)

	require.NoError(t, cb.Allow())
	assert.ErrorIs(t, cb.Allow(), sferrors.ErrCircuitOpen, "a second request waits for the trial")

	cb.Release()
	require.NoError(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Allow())
	assert.ErrorIs(t, cb.Allow(), sferrors.ErrCircuitOpen)

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Second})
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), sferrors.ErrCircuitOpen)

	now = now.Add(2 * time.Second)
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_DisabledWithZeroThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestRetryConfig_Backoff(t *testing.T) {
	rc := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, rc.backoff(1))
	assert.Equal(t, 200*time.Millisecond, rc.backoff(2))
	assert.Equal(t, 300*time.Millisecond, rc.backoff(3))
}
