package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/api/handlers"
	"github.com/jafarshop/checkoutapi/internal/api/middleware"
	"github.com/jafarshop/checkoutapi/internal/config"
	"github.com/jafarshop/checkoutapi/internal/repository"
	"github.com/jafarshop/checkoutapi/internal/service"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, repos *repository.Repositories, checkout *service.CheckoutService, settings service.SettingsReader, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers.RegisterJSONFieldNames()
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes (storefront clients only)
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(repos, logger))
	{
		v1.GET("/shipping-methods", handlers.HandleShippingMethods(settings))
		v1.GET("/orders/:id", handlers.HandleGetOrder(repos, logger))

		sessions := v1.Group("/checkout/sessions")
		{
			sessions.POST("", handlers.HandleCreateCheckout(checkout, logger))
			sessions.GET("/:id", handlers.HandleGetCheckout(checkout, logger))
			sessions.PUT("/:id/guest-info", handlers.HandleGuestInfo(checkout, logger))
			sessions.PUT("/:id/shipping-address", handlers.HandleShippingAddress(checkout, logger))
			sessions.PUT("/:id/shipping-method", handlers.HandleShippingMethod(checkout, logger))
			sessions.POST("/:id/payment/intent", handlers.HandlePaymentIntent(checkout, logger))
			sessions.POST("/:id/payment/confirm", handlers.HandleConfirmPayment(checkout, logger))
			sessions.PUT("/:id/payment/saved-card", handlers.HandleSavedCard(checkout, logger))
			sessions.POST("/:id/coupon", handlers.HandleApplyCoupon(checkout, logger))
			sessions.DELETE("/:id/coupon", handlers.HandleRemoveCoupon(checkout, logger))
			sessions.POST("/:id/advance", handlers.HandleAdvance(checkout, logger))
			sessions.POST("/:id/retreat", handlers.HandleRetreat(checkout, logger))
			sessions.POST("/:id/jump", handlers.HandleJump(checkout, logger))
			sessions.POST("/:id/submit",
				middleware.IdempotencyMiddleware(repos, logger),
				handlers.HandleSubmit(checkout, repos, logger),
			)
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if client, ok := middleware.GetClientFromContext(c); ok {
			fields = append(fields, zap.String("client", client.Name))
		}
		logger.Info("HTTP request", fields...)
	}
}
