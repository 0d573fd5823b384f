package catalog

import (
	"github.com/R3E-Network/miniapp_storefront/internal/config"
	"github.com/R3E-Network/miniapp_storefront/internal/graphql"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

// NewFromConfig builds the GraphQL transport and a catalog client on top of
// it from backend configuration.
func NewFromConfig(cfg config.BackendConfig, log *logger.Logger) (*Client, *graphql.Client, error) {
	if log == nil {
		log = logger.NewDefault("catalog")
	}

	retry := graphql.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryBackoff > 0 {
		retry.InitialBackoff = cfg.RetryBackoff
	}

	breaker := graphql.DefaultCircuitBreakerConfig()
	breaker.FailureThreshold = cfg.BreakerThreshold
	if cfg.BreakerTimeout > 0 {
		breaker.OpenTimeout = cfg.BreakerTimeout
	}

	gql, err := graphql.New(graphql.Config{
		Endpoint:       cfg.Endpoint,
		AuthScheme:     cfg.AuthScheme,
		Timeout:        cfg.Timeout,
		Retry:          retry,
		CircuitBreaker: breaker,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Logger:         log.Named("graphql"),
	})
	if err != nil {
		return nil, nil, err
	}

	client := New(gql, Config{
		Channel:   cfg.Channel,
		ChannelID: cfg.ChannelID,
		PageSize:  cfg.PageSize,
		Logger:    log,
	})
	return client, gql, nil
}
