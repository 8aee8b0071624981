package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/checkoutapi/internal/api"
	"github.com/jafarshop/checkoutapi/internal/config"
	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/notify"
	"github.com/jafarshop/checkoutapi/internal/payments"
	"github.com/jafarshop/checkoutapi/internal/repository"
	"github.com/jafarshop/checkoutapi/internal/repository/memory"
	"github.com/jafarshop/checkoutapi/internal/repository/postgres"
	"github.com/jafarshop/checkoutapi/internal/service"
	"github.com/jafarshop/checkoutapi/internal/storeapi"
)

const janitorInterval = time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Environment == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	store := storeapi.NewClient(cfg.StoreAPI, logger)

	gateway, err := payments.NewStripeAdapter(cfg.Stripe, logger)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}

	repos, orders, db, err := openOrderStore(cfg, store, gateway, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	settings := service.NewSettingsProvider(store, cfg.Checkout.SettingsTTL, cfg.Checkout.SettingsTimeout, logger)
	coupons := service.NewCouponLedger(store, cfg.Checkout.CouponTimeout, logger)
	notifier := notify.NewSendGridNotifier(cfg.Mail, logger)
	submitter := service.NewOrderSubmitter(orders, store, notifier, cfg.Checkout.Currency, logger)
	checkout := service.NewCheckoutService(settings, coupons, store, gateway, submitter, service.CheckoutOptions{
		Currency:    cfg.Checkout.Currency,
		SessionTTL:  cfg.Checkout.SessionTTL,
		RequireAuth: cfg.Checkout.RequireAuth,
		LoginURL:    cfg.Checkout.LoginURL,
		ReturnPath:  cfg.Checkout.ReturnPath,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go checkout.RunJanitor(ctx, janitorInterval)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(cfg, repos, checkout, settings, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("order_store", cfg.OrderStore),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}

	// Let in-flight confirmations and intent releases finish
	submitter.Wait()
	checkout.Wait()
	return nil
}

// openOrderStore picks where orders live. Storefront clients and idempotency
// keys always use repos.
func openOrderStore(cfg *config.Config, store *storeapi.Client, capturer service.PaymentCapturer, logger *zap.Logger) (*repository.Repositories, service.OrderStore, *sql.DB, error) {
	switch cfg.OrderStore {
	case config.OrderStoreMemory:
		repos := memory.NewRepositories()
		if err := seedDevClient(repos, cfg.DevAPIKey); err != nil {
			return nil, nil, nil, err
		}
		logger.Warn("Using in-memory storage; orders are lost on restart")
		return repos, service.NewRepositoryOrderStore(repos, capturer, logger), nil, nil
	}

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	repos := postgres.NewRepositories(db, logger)

	if cfg.OrderStore == config.OrderStoreRemote {
		// The store backend captures payment when it accepts the order
		return repos, store, db, nil
	}
	return repos, service.NewRepositoryOrderStore(repos, capturer, logger), db, nil
}

func seedDevClient(repos *repository.Repositories, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("DEV_API_KEY is required when ORDER_STORE=%s", config.OrderStoreMemory)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash dev API key: %w", err)
	}
	return repos.Client.Create(context.Background(), &domain.StorefrontClient{
		Name:         "development",
		APIKeyPrefix: postgres.KeyPrefix(apiKey),
		APIKeyHash:   string(hash),
		IsActive:     true,
	})
}
