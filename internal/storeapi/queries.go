package storeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/pricing"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

const (
	taxSettingsPath      = "/settings/tax"
	shippingSettingsPath = "/settings/shipping"
	cartPath             = "/carts/%s"
)

// GetTaxSettings fetches the store's VAT configuration
func (c *Client) GetTaxSettings(ctx context.Context) (pricing.TaxSettings, error) {
	var out pricing.TaxSettings
	if err := c.Execute(ctx, http.MethodGet, taxSettingsPath, nil, &out, nil); err != nil {
		return pricing.TaxSettings{}, err
	}
	return out, nil
}

// GetShippingSettings fetches the shipping tiers and free-shipping threshold
func (c *Client) GetShippingSettings(ctx context.Context) (pricing.ShippingSettings, error) {
	var out pricing.ShippingSettings
	if err := c.Execute(ctx, http.MethodGet, shippingSettingsPath, nil, &out, nil); err != nil {
		return pricing.ShippingSettings{}, err
	}
	return out, nil
}

type cartResponse struct {
	ID    string `json:"id"`
	Items []struct {
		ProductID string          `json:"productId"`
		Name      string          `json:"name"`
		UnitPrice decimal.Decimal `json:"unitPrice"`
		Quantity  int             `json:"quantity"`
		Digital   bool            `json:"digital"`
	} `json:"items"`
}

// GetCartLines fetches the lines of a cart
func (c *Client) GetCartLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	var out cartResponse
	err := c.Execute(ctx, http.MethodGet, fmt.Sprintf(cartPath, url.PathEscape(cartID)), nil, &out, nil)
	if err != nil {
		return nil, classifyCartError(cartID, err)
	}

	lines := make([]domain.CartLine, 0, len(out.Items))
	for _, item := range out.Items {
		lines = append(lines, domain.CartLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Digital:   item.Digital,
		})
	}
	return lines, nil
}

// classifyCartError maps a failed cart read onto the checkout error kinds.
// Server-side failures are retryable; any other refusal means the cart
// cannot be checked out.
func classifyCartError(cartID string, err error) error {
	apiErr, ok := AsAPIError(err)
	switch {
	case !ok:
		return err
	case apiErr.StatusCode == http.StatusNotFound:
		return &apperrors.ErrNotFound{Resource: "cart", ID: cartID}
	case apiErr.Temporary():
		return apperrors.Wrap(apperrors.KindNetworkError, "cart service unavailable", err)
	default:
		return apperrors.Wrap(apperrors.KindIncompleteCheckout, "cart cannot be read", err)
	}
}
