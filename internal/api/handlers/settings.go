package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/pricing"
	"github.com/jafarshop/checkoutapi/internal/service"
)

type shippingMethodView struct {
	ID                domain.ShippingMethodID `json:"id"`
	Name              string                  `json:"name"`
	Description       string                  `json:"description"`
	Price             string                  `json:"price"`
	EstimatedDelivery string                  `json:"estimated_delivery"`
}

// ShippingMethodsResponse lists the active tiers and the free-shipping threshold
type ShippingMethodsResponse struct {
	Methods               []shippingMethodView `json:"methods"`
	FreeShippingThreshold *string              `json:"free_shipping_threshold,omitempty"`
}

// HandleShippingMethods handles GET /v1/shipping-methods
func HandleShippingMethods(settings service.SettingsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := settings.ShippingSettings(c.Request.Context())

		methods := pricing.AvailableMethods(current)
		resp := ShippingMethodsResponse{Methods: make([]shippingMethodView, len(methods))}
		for i, m := range methods {
			resp.Methods[i] = shippingMethodView{
				ID:                m.ID,
				Name:              m.Name,
				Description:       m.Description,
				Price:             pricing.Display(m.Price),
				EstimatedDelivery: m.EstimatedDelivery,
			}
		}
		if current.FreeThreshold.Active {
			threshold := pricing.Display(current.FreeThreshold.Price)
			resp.FreeShippingThreshold = &threshold
		}

		c.JSON(http.StatusOK, resp)
	}
}
