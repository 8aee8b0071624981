package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Contact is who the order confirmation goes to
type Contact struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// PaymentReference identifies the authorized payment behind an order
type PaymentReference struct {
	PaymentIntentID  string `json:"payment_intent_id,omitempty"`
	SavedCardID      string `json:"saved_card_id,omitempty"`
	CardType         string `json:"card_type,omitempty"`
	CardNumberMasked string `json:"card_number_masked,omitempty"`
	AmountMinor      int64  `json:"amount_minor,omitempty"`
}

// OrderPayload is the full order handed to an order store.
// IdempotencyKey and ClientID travel out of band.
type OrderPayload struct {
	IdempotencyKey  string           `json:"-"`
	ClientID        uuid.UUID        `json:"-"`
	CustomerID      string           `json:"customer_id,omitempty"`
	Contact         Contact          `json:"contact"`
	ShippingAddress ShippingAddress  `json:"shipping_address"`
	BillingAddress  ShippingAddress  `json:"billing_address"`
	ShippingMethod  ShippingMethodID `json:"shipping_method"`
	Payment         PaymentReference `json:"payment"`
	CouponCode      string           `json:"coupon_code,omitempty"`
	Currency        string           `json:"currency"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	Tax             decimal.Decimal  `json:"tax"`
	Shipping        decimal.Decimal  `json:"shipping"`
	Discount        decimal.Decimal  `json:"discount"`
	Total           decimal.Decimal  `json:"total"`
	Lines           []CartLine       `json:"lines"`
}
