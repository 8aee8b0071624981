package storeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/checkoutapi/internal/domain"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

const (
	applyCouponPath = "/coupons/apply"
	ordersPath      = "/orders"
)

type applyCouponRequest struct {
	Code      string          `json:"code"`
	CartTotal decimal.Decimal `json:"cartTotal"`
}

type applyCouponResponse struct {
	Coupon struct {
		Code  string          `json:"code"`
		Type  string          `json:"type"`
		Value decimal.Decimal `json:"value"`
	} `json:"coupon"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// ApplyCoupon asks the coupon service to validate code against cartTotal.
// The returned discount is the server's figure, unmodified.
func (c *Client) ApplyCoupon(ctx context.Context, code string, cartTotal decimal.Decimal) (domain.AppliedCoupon, error) {
	var out applyCouponResponse
	err := c.Execute(ctx, http.MethodPost, applyCouponPath, applyCouponRequest{Code: code, CartTotal: cartTotal}, &out, nil)
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok {
			if apiErr.Temporary() {
				return domain.AppliedCoupon{}, apperrors.Wrap(apperrors.KindNetworkError, "coupon service unavailable", err)
			}
			return domain.AppliedCoupon{}, apperrors.Rejected(apperrors.KindCouponRejected, apiErr.Message)
		}
		return domain.AppliedCoupon{}, err
	}

	couponCode := out.Coupon.Code
	if couponCode == "" {
		couponCode = code
	}
	return domain.AppliedCoupon{
		Coupon: domain.Coupon{
			Code:          couponCode,
			DiscountType:  domain.DiscountType(strings.ToLower(out.Coupon.Type)),
			DiscountValue: out.Coupon.Value,
		},
		DiscountAmount: out.DiscountAmount,
		CartTotal:      cartTotal,
	}, nil
}

// ClearCart empties a cart after its order was placed
func (c *Client) ClearCart(ctx context.Context, cartID string) error {
	return c.Execute(ctx, http.MethodDelete, fmt.Sprintf(cartPath, url.PathEscape(cartID)), nil, nil, nil)
}

type createOrderResponse struct {
	ID      string `json:"id"`
	OrderID string `json:"orderId"`
}

// CreateOrder creates an order on the store backend. The backend
// de-duplicates on the Idempotency-Key header.
func (c *Client) CreateOrder(ctx context.Context, payload domain.OrderPayload) (string, error) {
	headers := map[string]string{}
	if payload.IdempotencyKey != "" {
		headers["Idempotency-Key"] = payload.IdempotencyKey
	}

	var out createOrderResponse
	if err := c.Execute(ctx, http.MethodPost, ordersPath, payload, &out, headers); err != nil {
		if apiErr, ok := AsAPIError(err); ok {
			return "", &apperrors.CheckoutError{
				Kind:   apperrors.KindOrderCreationFailed,
				Reason: apiErr.Message,
				Err:    err,
			}
		}
		return "", err
	}

	id := out.ID
	if id == "" {
		id = out.OrderID
	}
	if id == "" {
		return "", apperrors.Wrap(apperrors.KindOrderCreationFailed, "store returned no order id", nil)
	}
	return id, nil
}
