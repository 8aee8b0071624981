package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/repository"
)

const clientContextKey = "storefront_client"

// AuthMiddleware authenticates storefront clients by bearer API key
func AuthMiddleware(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		apiKey, ok := strings.CutPrefix(header, "Bearer ")
		apiKey = strings.TrimSpace(apiKey)
		if !ok || apiKey == "" {
			abortUnauthorized(c, "missing API key")
			return
		}

		client, err := repos.Client.GetByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			logger.Info("Rejected API key",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			abortUnauthorized(c, "invalid API key")
			return
		}

		c.Set(clientContextKey, client)
		c.Next()
	}
}

// GetClientFromContext returns the authenticated storefront client
func GetClientFromContext(c *gin.Context) (*domain.StorefrontClient, bool) {
	v, ok := c.Get(clientContextKey)
	if !ok {
		return nil, false
	}
	client, ok := v.(*domain.StorefrontClient)
	return client, ok
}

// SetClient stores client on the request context
func SetClient(c *gin.Context, client *domain.StorefrontClient) {
	c.Set(clientContextKey, client)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"kind":      "UNAUTHORIZED",
			"message":   message,
			"retryable": false,
		},
	})
}
