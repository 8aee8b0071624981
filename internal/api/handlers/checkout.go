package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/api/middleware"
	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/repository"
	"github.com/jafarshop/checkoutapi/internal/service"
)

// sessionAction runs one checkout operation for the authenticated client
type sessionAction func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error)

func sessionHandler(svc *service.CheckoutService, logger *zap.Logger, action sessionAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		client, ok := middleware.GetClientFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "unauthorized", false, ""))
			return
		}

		out, err := action(c, client.ID, c.Param("id"))
		if err != nil {
			if _, invalid := err.(validationError); invalid {
				respondValidation(c, err)
				return
			}
			respondError(c, logger, err, svc.LoginURL())
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

type validationError struct{ error }

func (e validationError) Unwrap() error { return e.error }

func bind(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return validationError{err}
	}
	return nil
}

// HandleCreateCheckout handles POST /v1/checkout/sessions
func HandleCreateCheckout(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		client, ok := middleware.GetClientFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "unauthorized", false, ""))
			return
		}

		var req service.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, err)
			return
		}

		view, err := svc.Create(c.Request.Context(), client.ID, req)
		if err != nil {
			respondError(c, logger, err, svc.LoginURL())
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

// HandleGetCheckout handles GET /v1/checkout/sessions/:id
func HandleGetCheckout(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		return svc.Get(c.Request.Context(), clientID, id)
	})
}

// HandleGuestInfo handles PUT /v1/checkout/sessions/:id/guest-info
func HandleGuestInfo(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		var req service.GuestInfoRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return svc.SetGuestInformation(c.Request.Context(), clientID, id, req)
	})
}

// HandleShippingAddress handles PUT /v1/checkout/sessions/:id/shipping-address
func HandleShippingAddress(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		var req service.AddressRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return svc.SetShippingAddress(c.Request.Context(), clientID, id, req)
	})
}

// HandleShippingMethod handles PUT /v1/checkout/sessions/:id/shipping-method
func HandleShippingMethod(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		var req service.ShippingMethodRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return svc.SelectShippingMethod(c.Request.Context(), clientID, id, req)
	})
}

// HandlePaymentIntent handles POST /v1/checkout/sessions/:id/payment/intent
func HandlePaymentIntent(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		return svc.CreatePaymentIntent(c.Request.Context(), clientID, id)
	})
}

// HandleConfirmPayment handles POST /v1/checkout/sessions/:id/payment/confirm
func HandleConfirmPayment(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		var req service.ConfirmPaymentRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return svc.ConfirmPayment(c.Request.Context(), clientID, id, req)
	})
}

// HandleSavedCard handles PUT /v1/checkout/sessions/:id/payment/saved-card
func HandleSavedCard(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		var req service.SavedCardRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return svc.UseSavedCard(c.Request.Context(), clientID, id, req)
	})
}

// HandleApplyCoupon handles POST /v1/checkout/sessions/:id/coupon
func HandleApplyCoupon(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		var req service.CouponRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return svc.ApplyCoupon(c.Request.Context(), clientID, id, req.Code)
	})
}

// HandleRemoveCoupon handles DELETE /v1/checkout/sessions/:id/coupon
func HandleRemoveCoupon(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		return svc.RemoveCoupon(c.Request.Context(), clientID, id)
	})
}

// HandleAdvance handles POST /v1/checkout/sessions/:id/advance
func HandleAdvance(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		return svc.Advance(c.Request.Context(), clientID, id)
	})
}

// HandleRetreat handles POST /v1/checkout/sessions/:id/retreat
func HandleRetreat(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		return svc.Retreat(c.Request.Context(), clientID, id)
	})
}

// HandleJump handles POST /v1/checkout/sessions/:id/jump
func HandleJump(svc *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return sessionHandler(svc, logger, func(c *gin.Context, clientID uuid.UUID, id string) (interface{}, error) {
		var req service.JumpRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		if !req.Step.IsValid() {
			return nil, validationError{&invalidStepError{step: req.Step}}
		}
		return svc.JumpTo(c.Request.Context(), clientID, id, req.Step)
	})
}

type invalidStepError struct{ step domain.Step }

func (e *invalidStepError) Error() string {
	return "unknown step " + string(e.step)
}

// HandleSubmit handles POST /v1/checkout/sessions/:id/submit
func HandleSubmit(svc *service.CheckoutService, repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		client, ok := middleware.GetClientFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "unauthorized", false, ""))
			return
		}

		// Check if this is an idempotent request
		idempotencyKey, requestHash, existing, isExisting := middleware.GetIdempotencyInfo(c)
		if isExisting {
			c.Data(http.StatusOK, "application/json; charset=utf-8", existing.Response)
			return
		}

		resp, err := svc.Submit(c.Request.Context(), client.ID, c.Param("id"))
		if err != nil {
			respondError(c, logger, err, svc.LoginURL())
			return
		}

		// Store idempotency key if provided
		if idempotencyKey != "" {
			replay := *resp
			replay.Replayed = true
			body, err := json.Marshal(replay)
			if err == nil {
				record := &domain.IdempotencyKey{
					Key:         idempotencyKey,
					ClientID:    client.ID,
					OrderRef:    resp.OrderID,
					RequestHash: requestHash,
					Response:    body,
				}
				err = repos.IdempotencyKey.Create(c.Request.Context(), record)
			}
			if err != nil {
				// Don't fail the request if idempotency storage fails
				logger.Warn("Failed to store idempotency key", zap.Error(err))
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
