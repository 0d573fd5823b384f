// Package graphql is a small GraphQL-over-HTTP client for the catalog backend.
// Responses are navigated with gjson rather than decoded into structs, so
// callers only pay for the fields they read.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	sferrors "github.com/R3E-Network/miniapp_storefront/internal/errors"
	"github.com/R3E-Network/miniapp_storefront/internal/httputil"
	"github.com/R3E-Network/miniapp_storefront/internal/metrics"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

const (
	// DefaultAuthScheme prefixes the raw host init data in the Authorization header.
	DefaultAuthScheme = "tma"

	maxResponseBytes = 8 << 20
)

// Config holds client configuration.
type Config struct {
	Endpoint       string
	AuthScheme     string
	Timeout        time.Duration
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
	// RateLimit is requests per second towards the backend; zero disables it.
	RateLimit  float64
	RateBurst  int
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Request is one GraphQL operation. Only Idempotent requests are retried.
type Request struct {
	OperationName string
	Query         string
	Variables     map[string]interface{}
	Idempotent    bool
}

// Client sends GraphQL operations to a single endpoint.
type Client struct {
	endpoint   string
	authScheme string
	httpClient *http.Client
	retry      RetryConfig
	breaker    *CircuitBreaker
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a GraphQL client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("graphql")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = httputil.NewClient(timeout)
	}

	scheme := strings.TrimSpace(cfg.AuthScheme)
	if scheme == "" {
		scheme = DefaultAuthScheme
	}

	cbCfg := cfg.CircuitBreaker
	if cbCfg.OnStateChange == nil {
		cbCfg.OnStateChange = func(from, to CircuitState) {
			log.WithField("from", from.String()).WithField("to", to.String()).Warn("backend circuit changed state")
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		endpoint:   endpoint,
		authScheme: scheme,
		httpClient: httpClient,
		retry:      cfg.Retry,
		breaker:    NewCircuitBreaker(cbCfg),
		limiter:    limiter,
		log:        log,
	}, nil
}

// CircuitState returns the backend circuit state.
func (c *Client) CircuitState() CircuitState {
	return c.breaker.State()
}

// Do sends the request and returns its "data" member. Failures are
// *errors.TransportError (network, timeout, non-2xx, malformed body, open
// circuit) or *errors.BackendError (non-empty top-level errors).
func (c *Client) Do(ctx context.Context, req Request) (gjson.Result, error) {
	op := req.OperationName
	if op == "" {
		op = "anonymous"
	}

	start := time.Now()
	data, err := c.do(ctx, op, req)
	metrics.RecordBackendRequest(op, outcome(err), time.Since(start))
	return data, err
}

func (c *Client) do(ctx context.Context, op string, req Request) (gjson.Result, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"operationName": req.OperationName,
		"query":         req.Query,
		"variables":     req.Variables,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: encode request: %w", op, err)
	}

	attempts := 1
	if req.Idempotent && c.retry.MaxRetries > 0 {
		attempts += c.retry.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metrics.RecordBackendRetry(op)
			c.log.WithField("operation", op).WithField("attempt", attempt).WithError(lastErr).Warn("retrying backend request")
			if err := sleep(ctx, c.retry.backoff(attempt-1)); err != nil {
				return gjson.Result{}, sferrors.Transport(op, 0, err)
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return gjson.Result{}, sferrors.Transport(op, 0, err)
			}
		}
		if err := c.breaker.Allow(); err != nil {
			return gjson.Result{}, sferrors.Transport(op, 0, err)
		}

		body, err := c.roundTrip(ctx, op, payload)
		if err != nil {
			lastErr = err
			if attempt < attempts && c.retry.retryable(err) {
				c.breaker.Release()
				continue
			}
			c.breaker.RecordFailure()
			return gjson.Result{}, err
		}
		c.breaker.RecordSuccess()
		return decode(op, body)
	}
	return gjson.Result{}, lastErr
}

func (c *Client) roundTrip(ctx context.Context, op string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sferrors.Transport(op, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if raw := InitDataFrom(ctx); raw != "" {
		httpReq.Header.Set("Authorization", c.authScheme+" "+raw)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, sferrors.Transport(op, 0, err)
	}
	defer resp.Body.Close()

	body, truncated, err := httputil.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, sferrors.Transport(op, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, sferrors.Transport(op, resp.StatusCode, fmt.Errorf("unexpected status: %s", snippet(body)))
	}
	if truncated {
		return nil, sferrors.Transport(op, resp.StatusCode, httputil.ErrBodyTooLarge)
	}
	return body, nil
}

func decode(op string, body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, sferrors.Transport(op, 0, fmt.Errorf("malformed response: %s", snippet(body)))
	}
	doc := gjson.ParseBytes(body)

	if errs := doc.Get("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		details := make([]sferrors.Detail, 0, len(errs.Array()))
		errs.ForEach(func(_, e gjson.Result) bool {
			details = append(details, sferrors.Detail{
				Field:   joinPath(e.Get("path")),
				Message: e.Get("message").String(),
				Code:    e.Get("extensions.code").String(),
			})
			return true
		})
		return gjson.Result{}, sferrors.Backend(op, details...)
	}
	return doc.Get("data"), nil
}

func joinPath(path gjson.Result) string {
	if !path.IsArray() {
		return ""
	}
	parts := make([]string, 0, len(path.Array()))
	for _, p := range path.Array() {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ".")
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case sferrors.IsBackend(err):
		return metrics.OutcomeBackend
	default:
		return metrics.OutcomeTransport
	}
}

// =============================================================================
// Init data propagation
// =============================================================================

type initDataKey struct{}

// WithInitData attaches the host's raw init data to ctx. Requests made with
// the returned context carry it in the Authorization header.
func WithInitData(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, initDataKey{}, raw)
}

// InitDataFrom returns the raw init data attached to ctx, if any.
func InitDataFrom(ctx context.Context) string {
	if raw, ok := ctx.Value(initDataKey{}).(string); ok {
		return raw
	}
	return ""
}
