package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/repository"
	"github.com/jafarshop/checkoutapi/pkg/errors"
)

// IdempotencyHeader carries the client's idempotency key
const IdempotencyHeader = "Idempotency-Key"

const (
	idempotencyKeyContextKey  = "idempotency_key"
	idempotencyHashContextKey = "idempotency_request_hash"
	idempotencyHitContextKey  = "idempotency_existing"
)

// IdempotencyMiddleware looks up a repeated Idempotency-Key. A hit with the
// same request is exposed through GetIdempotencyInfo; reusing a key for a
// different request is rejected.
func IdempotencyMiddleware(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if key == "" {
			c.Next()
			return
		}

		client, ok := GetClientFromContext(c)
		if !ok {
			abortUnauthorized(c, "unauthorized")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"kind": "BAD_REQUEST", "message": "unreadable body", "retryable": false},
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := RequestHash(c.Request.Method, c.Request.URL.Path, body)
		c.Set(idempotencyKeyContextKey, key)
		c.Set(idempotencyHashContextKey, hash)

		existing, err := repos.IdempotencyKey.Get(c.Request.Context(), client.ID, key)
		if err != nil {
			if _, notFound := err.(*errors.ErrNotFound); !notFound {
				logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
			}
			c.Next()
			return
		}

		if existing.RequestHash != hash {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
				"error": gin.H{
					"kind":      "IDEMPOTENCY_KEY_REUSED",
					"message":   "Idempotency-Key was already used for a different request",
					"retryable": false,
				},
			})
			return
		}

		logger.Info("Replaying idempotent request",
			zap.String("key", key),
			zap.String("order_ref", existing.OrderRef),
		)
		c.Set(idempotencyHitContextKey, existing)
		c.Next()
	}
}

// GetIdempotencyInfo returns the request's key and hash and the stored
// record when the request is a repeat
func GetIdempotencyInfo(c *gin.Context) (key, requestHash string, existing *domain.IdempotencyKey, isExisting bool) {
	key = c.GetString(idempotencyKeyContextKey)
	requestHash = c.GetString(idempotencyHashContextKey)
	if v, ok := c.Get(idempotencyHitContextKey); ok {
		existing, isExisting = v.(*domain.IdempotencyKey)
	}
	return key, requestHash, existing, isExisting
}

// RequestHash fingerprints a request for idempotency comparison
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(h.Sum(nil))
}
