package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StorefrontClient is a frontend allowed to drive checkouts through the API
type StorefrontClient struct {
	ID           uuid.UUID
	Name         string
	APIKeyPrefix string
	APIKeyHash   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CartLine is a read-only line from the external cart.
// UnitPrice already includes VAT.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Digital   bool            `json:"digital"`
}

// LineTotal returns unit price times quantity
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// GuestInformation is collected when the buyer is not signed in
type GuestInformation struct {
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// IsComplete reports whether a usable contact email is present
func (g *GuestInformation) IsComplete() bool {
	if g == nil {
		return false
	}
	email := strings.TrimSpace(g.Email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// ShippingAddress is also used for the billing address
type ShippingAddress struct {
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
}

// IsComplete checks that every required field is non-empty
func (a *ShippingAddress) IsComplete() bool {
	if a == nil {
		return false
	}
	for _, v := range []string{a.FullName, a.AddressLine1, a.City, a.Region, a.PostalCode, a.Country} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// ShippingMethod is a selectable shipping tier with its price snapshot
type ShippingMethod struct {
	ID                ShippingMethodID `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Price             decimal.Decimal  `json:"price"`
	EstimatedDelivery string           `json:"estimated_delivery"`
}

// Coupon as returned by the coupon service
type Coupon struct {
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// AppliedCoupon is a coupon plus the discount the server computed for CartTotal.
// It is only valid while the cart total still equals CartTotal.
type AppliedCoupon struct {
	Coupon         Coupon          `json:"coupon"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CartTotal      decimal.Decimal `json:"cart_total"`
}

// ValidFor reports whether the coupon was computed against cartTotal
func (c *AppliedCoupon) ValidFor(cartTotal decimal.Decimal) bool {
	return c != nil && c.CartTotal.Equal(cartTotal)
}

// PaymentOutcome holds masked card data and gateway references only
type PaymentOutcome struct {
	CardNumberMasked string `json:"card_number_masked"`
	CardholderName   string `json:"cardholder_name"`
	ExpiryDisplay    string `json:"expiry_display"`
	CardType         string `json:"card_type"`
	SavedCardID      string `json:"saved_card_id,omitempty"`
	PaymentIntentID  string `json:"payment_intent_id"`
	AmountMinor      int64  `json:"amount_minor"`
	Currency         string `json:"currency"`
}

// PendingIntent is a payment intent created for the current total
type PendingIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
}

// CheckoutState is the central checkout aggregate. The order total is never
// stored here; it is always derived by the pricing calculator.
type CheckoutState struct {
	CurrentStep           Step              `json:"current_step"`
	Authenticated         bool              `json:"authenticated"`
	CustomerID            string            `json:"customer_id,omitempty"`
	CartID                string            `json:"cart_id"`
	GuestInformation      *GuestInformation `json:"guest_information,omitempty"`
	ShippingAddress       *ShippingAddress  `json:"shipping_address,omitempty"`
	ShippingMethod        *ShippingMethod   `json:"shipping_method,omitempty"`
	PaymentOutcome        *PaymentOutcome   `json:"payment_outcome,omitempty"`
	SavedCardID           string            `json:"saved_card_id,omitempty"`
	BillingSameAsShipping bool              `json:"billing_same_as_shipping"`
	BillingAddress        *ShippingAddress  `json:"billing_address,omitempty"`
	AppliedCoupon         *AppliedCoupon    `json:"applied_coupon,omitempty"`
	DiscountAmount        decimal.Decimal   `json:"discount_amount"`
	PendingIntent         *PendingIntent    `json:"-"`
	IdempotencyKey        string            `json:"idempotency_key"`
	ClientID              uuid.UUID         `json:"-"`
}

// ApplyCoupon records a coupon and its trusted discount
func (s *CheckoutState) ApplyCoupon(c AppliedCoupon) {
	s.AppliedCoupon = &c
	s.DiscountAmount = c.DiscountAmount
}

// ClearCoupon drops the coupon and resets the discount to zero
func (s *CheckoutState) ClearCoupon() {
	s.AppliedCoupon = nil
	s.DiscountAmount = decimal.Zero
}

// HasPayment reports whether a payment reference is present
func (s *CheckoutState) HasPayment() bool {
	return s.PaymentOutcome != nil || strings.TrimSpace(s.SavedCardID) != ""
}

// EffectiveBillingAddress resolves the billing address
func (s *CheckoutState) EffectiveBillingAddress() *ShippingAddress {
	if s.BillingSameAsShipping {
		return s.ShippingAddress
	}
	return s.BillingAddress
}

// ContactEmail returns the guest email, if any
func (s *CheckoutState) ContactEmail() string {
	if s.GuestInformation == nil {
		return ""
	}
	return strings.TrimSpace(s.GuestInformation.Email)
}

// Order is a persisted order
type Order struct {
	ID              uuid.UUID
	ClientID        uuid.UUID
	IdempotencyKey  string
	Status          OrderStatus
	CustomerID      string
	ContactEmail    string
	ContactName     string
	ContactPhone    string
	ShippingAddress ShippingAddress
	BillingAddress  ShippingAddress
	ShippingMethod  ShippingMethodID
	PaymentRef      string
	SavedCardID     string
	CouponCode      string
	Currency        string
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is a line snapshot taken at submission time
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	CreatedAt time.Time
}

// IdempotencyKey links a client-supplied key to the order it produced.
// OrderRef is the order store's ID, which is not a local row for remote
// stores. Response is the JSON body replayed for repeats.
type IdempotencyKey struct {
	Key         string
	ClientID    uuid.UUID
	OrderRef    string
	RequestHash string
	Response    []byte
	CreatedAt   time.Time
}

// OrderEvent represents an audit event for an order
type OrderEvent struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	EventType string
	EventData map[string]interface{} // JSONB
	CreatedAt time.Time
}
