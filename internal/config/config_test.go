package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_API_BASE_URL", "https://store.example.com/api/")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://store.example.com/api", cfg.StoreAPI.BaseURL)
	assert.Equal(t, "EUR", cfg.Checkout.Currency)
	assert.Equal(t, 5*time.Minute, cfg.Checkout.SettingsTTL)
	assert.Equal(t, 3*time.Second, cfg.Checkout.SettingsTimeout)
	assert.Equal(t, 5*time.Second, cfg.Checkout.CouponTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Checkout.SessionTTL)
	assert.Equal(t, OrderStorePostgres, cfg.OrderStore)
	assert.Equal(t, uint64(2), cfg.Stripe.MaxRetries)
	assert.Equal(t, 5, cfg.Stripe.BreakerThreshold)
	assert.False(t, cfg.Checkout.RequireAuth)
	assert.Equal(t, "/checkout", cfg.Checkout.ReturnPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_API_BASE_URL", "https://store.example.com")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("ORDER_STORE", "REMOTE")
	t.Setenv("SETTINGS_TIMEOUT", "750ms")
	t.Setenv("CHECKOUT_REQUIRE_AUTH", "true")
	t.Setenv("CHECKOUT_CURRENCY", "usd")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, OrderStoreRemote, cfg.OrderStore)
	assert.Equal(t, 750*time.Millisecond, cfg.Checkout.SettingsTimeout)
	assert.True(t, cfg.Checkout.RequireAuth)
	assert.Equal(t, "USD", cfg.Checkout.Currency)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STORE_API_BASE_URL", "https://store.example.com")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("COUPON_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COUPON_TIMEOUT")
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreAPI:   StoreAPIConfig{BaseURL: "https://store"},
		Stripe:     StripeConfig{SecretKey: "sk"},
		Checkout:   CheckoutConfig{Currency: "EUR"},
		OrderStore: OrderStorePostgres,
	}
	require.NoError(t, base.Validate())

	missingURL := base
	missingURL.StoreAPI.BaseURL = ""
	assert.Error(t, missingURL.Validate())

	missingKey := base
	missingKey.Stripe.SecretKey = ""
	assert.Error(t, missingKey.Validate())

	badStore := base
	badStore.OrderStore = "mysql"
	assert.Error(t, badStore.Validate())
}
