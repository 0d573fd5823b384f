package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired sets the values that have no default.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STOREFRONT_CHANNEL_ID", "Q2hhbm5lbDox")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/graphql/", cfg.Backend.Endpoint)
	assert.Equal(t, "tma", cfg.Backend.AuthScheme)
	assert.Equal(t, "default-channel", cfg.Backend.Channel)
	assert.Equal(t, "Q2hhbm5lbDox", cfg.Backend.ChannelID)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2, cfg.Backend.MaxRetries)
	assert.Equal(t, ":8080", cfg.Bridge.Addr)
	assert.Equal(t, 4*time.Second, cfg.Session.NotificationTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultMessages(), cfg.Messages)
}

func TestLoad_Environment(t *testing.T) {
	setRequired(t)
	t.Setenv("STOREFRONT_BACKEND_URL", "https://shop.example/graphql/")
	t.Setenv("STOREFRONT_CHANNEL", "eu")
	t.Setenv("STOREFRONT_BACKEND_TIMEOUT", "3s")
	t.Setenv("STOREFRONT_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("STOREFRONT_LOG_FORMAT", "text")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example/graphql/", cfg.Backend.Endpoint)
	assert.Equal(t, "eu", cfg.Backend.Channel)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Bridge.Origins())
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STOREFRONT_CHANNEL_ID=Q2hhbm5lbDoy\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("STOREFRONT_CHANNEL_ID") })

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "Q2hhbm5lbDoy", cfg.Backend.ChannelID)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"relative endpoint", "STOREFRONT_BACKEND_URL", "/graphql"},
		{"page size too large", "STOREFRONT_BACKEND_PAGE_SIZE", "500"},
		{"negative retries", "STOREFRONT_BACKEND_MAX_RETRIES", "-1"},
		{"email domain", "STOREFRONT_BUYER_EMAIL_DOMAIN", "localhost"},
		{"bad duration", "STOREFRONT_BACKEND_TIMEOUT", "soon"},
		{"missing channel id", "STOREFRONT_CHANNEL_ID", " "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoadMessages_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("review_order: Checkout\norder_placed: \"Bestellung %s aufgegeben\"\n"), 0o600))

	msgs, err := LoadMessages(path)
	require.NoError(t, err)

	assert.Equal(t, "Checkout", msgs.ReviewOrder)
	assert.Equal(t, "Bestellung %s aufgegeben", msgs.OrderPlaced)
	assert.Equal(t, DefaultMessages().NothingToSubmit, msgs.NothingToSubmit)
}

func TestLoadMessages_Errors(t *testing.T) {
	_, err := LoadMessages(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("review_order: [unterminated"), 0o600))
	_, err = LoadMessages(path)
	require.Error(t, err)
}
