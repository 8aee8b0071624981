package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/api/middleware"
	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/pricing"
	"github.com/jafarshop/checkoutapi/internal/repository"
	"github.com/jafarshop/checkoutapi/pkg/errors"
)

// OrderResponse represents the order response
type OrderResponse struct {
	ID              string                  `json:"id"`
	Status          domain.OrderStatus      `json:"status"`
	CustomerID      string                  `json:"customer_id,omitempty"`
	ContactEmail    string                  `json:"contact_email"`
	ContactName     string                  `json:"contact_name,omitempty"`
	ContactPhone    string                  `json:"contact_phone,omitempty"`
	ShippingAddress domain.ShippingAddress  `json:"shipping_address"`
	BillingAddress  domain.ShippingAddress  `json:"billing_address"`
	ShippingMethod  domain.ShippingMethodID `json:"shipping_method"`
	PaymentRef      string                  `json:"payment_ref,omitempty"`
	CouponCode      string                  `json:"coupon_code,omitempty"`
	Currency        string                  `json:"currency"`
	Subtotal        string                  `json:"subtotal"`
	Tax             string                  `json:"tax"`
	Shipping        string                  `json:"shipping"`
	Discount        string                  `json:"discount"`
	Total           string                  `json:"total"`
	Items           []OrderItemResponse     `json:"items"`
	CreatedAt       string                  `json:"created_at"`
}

type OrderItemResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// HandleGetOrder handles GET /v1/orders/:id
func HandleGetOrder(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		client, ok := middleware.GetClientFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "unauthorized", false, ""))
			return
		}

		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("BAD_REQUEST", "invalid order ID", false, ""))
			return
		}

		order, err := repos.Order.GetByID(c.Request.Context(), orderID)
		if err != nil {
			if _, ok := err.(*errors.ErrNotFound); ok {
				c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "order not found", false, ""))
				return
			}
			logger.Error("Failed to get order", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "internal error", false, ""))
			return
		}

		// Verify client owns this order
		if order.ClientID != client.ID {
			c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "access denied", false, ""))
			return
		}

		items, err := repos.OrderItem.GetByOrderID(c.Request.Context(), orderID)
		if err != nil {
			logger.Error("Failed to get order items", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "internal error", false, ""))
			return
		}

		c.JSON(http.StatusOK, newOrderResponse(order, items))
	}
}

func newOrderResponse(order *domain.Order, items []*domain.OrderItem) OrderResponse {
	itemResponses := make([]OrderItemResponse, len(items))
	for i, item := range items {
		itemResponses[i] = OrderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: pricing.Display(item.UnitPrice),
			Quantity:  item.Quantity,
		}
	}

	return OrderResponse{
		ID:              order.ID.String(),
		Status:          order.Status,
		CustomerID:      order.CustomerID,
		ContactEmail:    order.ContactEmail,
		ContactName:     order.ContactName,
		ContactPhone:    order.ContactPhone,
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		ShippingMethod:  order.ShippingMethod,
		PaymentRef:      order.PaymentRef,
		CouponCode:      order.CouponCode,
		Currency:        order.Currency,
		Subtotal:        pricing.Display(order.Subtotal),
		Tax:             pricing.Display(order.Tax),
		Shipping:        pricing.Display(order.Shipping),
		Discount:        pricing.Display(order.Discount),
		Total:           pricing.Display(order.Total),
		Items:           itemResponses,
		CreatedAt:       order.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
