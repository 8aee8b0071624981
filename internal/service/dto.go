package service

import (
	"time"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/pricing"
)

// CreateSessionRequest opens a checkout for an existing cart
type CreateSessionRequest struct {
	CartID     string `json:"cart_id" binding:"required"`
	CustomerID string `json:"customer_id,omitempty"`
	Email      string `json:"email,omitempty"`
}

// GuestInfoRequest represents the guest-info step payload
type GuestInfoRequest struct {
	Email    string `json:"email" binding:"required"`
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Advance  bool   `json:"advance,omitempty"`
}

// AddressRequest represents a shipping or billing address
type AddressRequest struct {
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
	Advance      bool   `json:"advance,omitempty"`
}

// ToDomain converts the request into a domain address
func (r AddressRequest) ToDomain() *domain.ShippingAddress {
	return &domain.ShippingAddress{
		FullName:     r.FullName,
		AddressLine1: r.AddressLine1,
		AddressLine2: r.AddressLine2,
		City:         r.City,
		Region:       r.Region,
		PostalCode:   r.PostalCode,
		Country:      r.Country,
		Phone:        r.Phone,
	}
}

// ShippingMethodRequest selects a shipping tier
type ShippingMethodRequest struct {
	MethodID domain.ShippingMethodID `json:"method_id" binding:"required"`
	Advance  bool                    `json:"advance,omitempty"`
}

// BillingRequest is shared by both ways of paying.
// A nil BillingSameAsShipping keeps the current choice.
type BillingRequest struct {
	BillingSameAsShipping *bool           `json:"billing_same_as_shipping,omitempty"`
	BillingAddress        *AddressRequest `json:"billing_address,omitempty"`
}

// ConfirmPaymentRequest confirms the pending intent with a tokenized card
type ConfirmPaymentRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
	CardholderName  string `json:"cardholder_name"`
	BillingRequest
	Advance bool `json:"advance,omitempty"`
}

// SavedCardRequest pays with a stored card of a signed-in customer
type SavedCardRequest struct {
	SavedCardID string `json:"saved_card_id" binding:"required"`
	BillingRequest
	Advance bool `json:"advance,omitempty"`
}

// CouponRequest applies a discount code
type CouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// JumpRequest moves directly to a step
type JumpRequest struct {
	Step domain.Step `json:"step" binding:"required"`
}

// PaymentIntentResponse is handed to the frontend card widget
type PaymentIntentResponse struct {
	RequiresPayment bool   `json:"requires_payment"`
	ClientSecret    string `json:"client_secret,omitempty"`
	AmountMinor     int64  `json:"amount_minor"`
	Currency        string `json:"currency"`
}

// LineView is a cart line formatted for display
type LineView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
	Digital   bool   `json:"digital,omitempty"`
}

// QuoteView is the price breakdown formatted for display
type QuoteView struct {
	Currency            string     `json:"currency"`
	Lines               []LineView `json:"lines"`
	CartTotal           string     `json:"cart_total"`
	SubtotalExVAT       string     `json:"subtotal_ex_vat"`
	Tax                 string     `json:"tax"`
	TaxRatePercent      string     `json:"tax_rate_percent"`
	Shipping            string     `json:"shipping"`
	FreeShippingApplied bool       `json:"free_shipping_applied"`
	Discount            string     `json:"discount"`
	Total               string     `json:"total"`
	TotalMinor          int64      `json:"total_minor"`
}

// NewQuoteView formats b for display
func NewQuoteView(b pricing.Breakdown, currency string) QuoteView {
	lines := make([]LineView, 0, len(b.Lines))
	for _, l := range b.Lines {
		lines = append(lines, LineView{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: pricing.Display(l.UnitPrice),
			LineTotal: pricing.Display(l.LineTotal()),
			Digital:   l.Digital,
		})
	}
	return QuoteView{
		Currency:            currency,
		Lines:               lines,
		CartTotal:           pricing.Display(b.CartTotal),
		SubtotalExVAT:       pricing.Display(b.SubtotalExVAT),
		Tax:                 pricing.Display(b.Tax),
		TaxRatePercent:      b.TaxRate.Shift(2).String(),
		Shipping:            pricing.Display(b.ShippingCost),
		FreeShippingApplied: b.FreeShippingApplied,
		Discount:            pricing.Display(b.Discount),
		Total:               pricing.Display(b.Total),
		TotalMinor:          pricing.MinorUnits(b.Total),
	}
}

// SessionView is the full checkout as returned to the storefront
type SessionView struct {
	ID              string                  `json:"id"`
	State           domain.CheckoutState    `json:"state"`
	Steps           []domain.Step           `json:"steps"`
	CompletedSteps  []domain.Step           `json:"completed_steps"`
	ReachableSteps  []domain.Step           `json:"reachable_steps"`
	ShippingMethods []domain.ShippingMethod `json:"shipping_methods"`
	Quote           QuoteView               `json:"quote"`
	Notices         []string                `json:"notices,omitempty"`
	ExpiresAt       time.Time               `json:"expires_at"`
}

// SubmitResponse is returned once the order exists
type SubmitResponse struct {
	OrderID  string `json:"order_id"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
	Replayed bool   `json:"replayed,omitempty"`
}
