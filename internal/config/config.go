package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	Database    DatabaseConfig
	StoreAPI    StoreAPIConfig
	Stripe      StripeConfig
	Checkout    CheckoutConfig
	Mail        MailConfig
	OrderStore  string
	LogLevel    string
	// DevAPIKey seeds a storefront client when ORDER_STORE=memory
	DevAPIKey   string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// StoreAPIConfig points at the store backend that owns settings, coupons, carts and remote orders
type StoreAPIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type StripeConfig struct {
	SecretKey string
	AccountID string
	// MaxRetries bounds intent-creation retries on gateway unavailability
	MaxRetries       uint64
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type CheckoutConfig struct {
	Currency        string
	SettingsTTL     time.Duration
	SettingsTimeout time.Duration
	CouponTimeout   time.Duration
	SessionTTL      time.Duration
	RequireAuth     bool
	LoginURL        string
	ReturnPath      string
}

type MailConfig struct {
	SendGridAPIKey string
	FromAddress    string
	FromName       string
}

const (
	OrderStorePostgres = "postgres"
	OrderStoreRemote   = "remote"
	OrderStoreMemory   = "memory"
)

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("ORDER_STORE", OrderStorePostgres)

	viper.AutomaticEnv()

	// .env is optional
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "checkout"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		StoreAPI: StoreAPIConfig{
			BaseURL: strings.TrimSuffix(getEnvOrViper("STORE_API_BASE_URL", ""), "/"),
			Token:   getEnvOrViper("STORE_API_TOKEN", ""),
		},
		Stripe: StripeConfig{
			SecretKey: getEnvOrViper("STRIPE_SECRET_KEY", ""),
			AccountID: getEnvOrViper("STRIPE_ACCOUNT_ID", ""),
		},
		Checkout: CheckoutConfig{
			Currency:   strings.ToUpper(getEnvOrViper("CHECKOUT_CURRENCY", "EUR")),
			LoginURL:   getEnvOrViper("CHECKOUT_LOGIN_URL", "/login"),
			ReturnPath: getEnvOrViper("CHECKOUT_RETURN_PATH", "/checkout"),
		},
		Mail: MailConfig{
			SendGridAPIKey: getEnvOrViper("SENDGRID_API_KEY", ""),
			FromAddress:    getEnvOrViper("MAIL_FROM_ADDRESS", "orders@example.com"),
			FromName:       getEnvOrViper("MAIL_FROM_NAME", "Store"),
		},
		OrderStore: strings.ToLower(getEnvOrViper("ORDER_STORE", OrderStorePostgres)),
		LogLevel:   getEnvOrViper("LOG_LEVEL", "info"),
		DevAPIKey:  getEnvOrViper("DEV_API_KEY", ""),
	}

	var err error
	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"STORE_API_TIMEOUT", "30s", &cfg.StoreAPI.Timeout},
		{"SETTINGS_TTL", "5m", &cfg.Checkout.SettingsTTL},
		{"SETTINGS_TIMEOUT", "3s", &cfg.Checkout.SettingsTimeout},
		{"COUPON_TIMEOUT", "5s", &cfg.Checkout.CouponTimeout},
		{"CHECKOUT_SESSION_TTL", "2h", &cfg.Checkout.SessionTTL},
		{"STRIPE_BREAKER_COOLDOWN", "30s", &cfg.Stripe.BreakerCooldown},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	if cfg.Checkout.RequireAuth, err = strconv.ParseBool(getEnvOrViper("CHECKOUT_REQUIRE_AUTH", "false")); err != nil {
		return nil, fmt.Errorf("CHECKOUT_REQUIRE_AUTH: %w", err)
	}
	if cfg.Stripe.MaxRetries, err = strconv.ParseUint(getEnvOrViper("STRIPE_MAX_RETRIES", "2"), 10, 64); err != nil {
		return nil, fmt.Errorf("STRIPE_MAX_RETRIES: %w", err)
	}
	if cfg.Stripe.BreakerThreshold, err = strconv.Atoi(getEnvOrViper("STRIPE_BREAKER_THRESHOLD", "5")); err != nil {
		return nil, fmt.Errorf("STRIPE_BREAKER_THRESHOLD: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.StoreAPI.BaseURL == "" {
		return fmt.Errorf("STORE_API_BASE_URL is required")
	}
	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	switch c.OrderStore {
	case OrderStorePostgres, OrderStoreRemote, OrderStoreMemory:
	default:
		return fmt.Errorf("ORDER_STORE must be one of %q, %q, %q; got %q", OrderStorePostgres, OrderStoreRemote, OrderStoreMemory, c.OrderStore)
	}
	if len(c.Checkout.Currency) != 3 {
		return fmt.Errorf("CHECKOUT_CURRENCY must be an ISO 4217 code, got %q", c.Checkout.Currency)
	}
	return nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvOrViper(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
