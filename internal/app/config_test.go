package app

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, MailDeliveryQueue, cfg.MailDelivery)
	assert.InDelta(t, 0.8, cfg.AlertMinOnTimeRate, 1e-9)
	assert.False(t, cfg.IsProduction())
}

func TestMiddlewareStackWithoutConfig(t *testing.T) {
	var cfg *Config
	assert.False(t, cfg.IsProduction())

	var stack []func(http.Handler) http.Handler
	require.NotPanics(t, func() {
		stack = MiddlewareStack(MiddlewareConfig{})
	})
	assert.NotEmpty(t, stack)
}

func TestLoadConfigRejectsUnknownDelivery(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("MAIL_DELIVERY", "carrier-pigeon")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
