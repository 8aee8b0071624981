// Package testkit provides in-process stand-ins for the store backend and
// the payment gateway. The HTTP and feature suites run the real checkout
// service against them.
package testkit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/payments"
	"github.com/jafarshop/checkoutapi/pkg/errors"
)

// DeclinedPaymentMethod is a payment method the Gateway always declines
const DeclinedPaymentMethod = "pm_card_declined"

// Store plays the store backend: carts, coupons and remote orders
type Store struct {
	mu      sync.Mutex
	carts   map[string][]domain.CartLine
	coupons map[string]decimal.Decimal
	orders  map[string]domain.OrderPayload
	byKey   map[string]string
	cleared []string
	nextID  int
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{
		carts:   make(map[string][]domain.CartLine),
		coupons: make(map[string]decimal.Decimal),
		orders:  make(map[string]domain.OrderPayload),
		byKey:   make(map[string]string),
	}
}

// SetCart replaces the lines of a cart
func (s *Store) SetCart(cartID string, lines ...domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cartID] = append([]domain.CartLine(nil), lines...)
}

// AddCoupon registers a fixed-amount coupon
func (s *Store) AddCoupon(code string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[strings.ToUpper(code)] = amount
}

func (s *Store) GetCartLines(_ context.Context, cartID string) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.carts[cartID]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "cart", ID: cartID}
	}
	return append([]domain.CartLine(nil), lines...), nil
}

func (s *Store) ClearCart(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cartID] = nil
	s.cleared = append(s.cleared, cartID)
	return nil
}

// ApplyCoupon returns the registered amount as the discount. Like the real
// backend it does not cap the amount at the cart total.
func (s *Store) ApplyCoupon(_ context.Context, code string, cartTotal decimal.Decimal) (domain.AppliedCoupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount, ok := s.coupons[strings.ToUpper(code)]
	if !ok {
		return domain.AppliedCoupon{}, errors.Rejected(errors.KindCouponRejected, "This coupon code does not exist.")
	}
	return domain.AppliedCoupon{
		Coupon:         domain.Coupon{Code: strings.ToUpper(code), DiscountType: domain.DiscountTypeFixed, DiscountValue: amount},
		DiscountAmount: amount,
		CartTotal:      cartTotal,
	}, nil
}

// CreateOrder stores the payload once per idempotency key
func (s *Store) CreateOrder(_ context.Context, payload domain.OrderPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byKey[payload.IdempotencyKey]; ok {
		return id, nil
	}
	s.nextID++
	id := fmt.Sprintf("ord-%d", s.nextID)
	s.orders[id] = payload
	s.byKey[payload.IdempotencyKey] = id
	return id, nil
}

// Order returns a created order's payload
func (s *Store) Order(id string) (domain.OrderPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.orders[id]
	return p, ok
}

// OrderCount is the number of distinct orders created
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// Cleared lists the carts cleared after an order
func (s *Store) Cleared() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleared...)
}

// Gateway plays the card processor. Intent IDs encode the amount. Like
// Stripe it replays the intent created under an idempotency key and will
// not confirm a cancelled intent.
type Gateway struct {
	mu        sync.Mutex
	intents   map[string]payments.Intent
	byKey     map[string]string
	cancelled []string
	captured  []string
}

// NewGateway returns a gateway with no intents
func NewGateway() *Gateway {
	return &Gateway{intents: make(map[string]payments.Intent), byKey: make(map[string]string)}
}

func (g *Gateway) CreateIntent(_ context.Context, amountMinor int64, currency, key string) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byKey[key]; ok && key != "" {
		return g.intents[id], nil
	}
	id := fmt.Sprintf("pi_%d_%d", amountMinor, len(g.intents)+1)
	intent := payments.Intent{ID: id, ClientSecret: id + "_secret_test", AmountMinor: amountMinor, Currency: currency}
	g.intents[id] = intent
	g.byKey[key] = id
	return intent, nil
}

func (g *Gateway) Confirm(_ context.Context, clientSecret string, card payments.CardData, _ payments.BillingDetails) (domain.PaymentOutcome, error) {
	id, ok := payments.IntentIDFromClientSecret(clientSecret)
	if !ok {
		return domain.PaymentOutcome{}, errors.New(errors.KindPaymentGatewayError, "malformed client secret")
	}
	if card.PaymentMethodID == DeclinedPaymentMethod {
		return domain.PaymentOutcome{}, errors.Rejected(errors.KindPaymentDeclined, "Your card was declined.")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return domain.PaymentOutcome{}, errors.New(errors.KindPaymentGatewayError, "unknown payment intent")
	}
	for _, c := range g.cancelled {
		if c == id {
			return domain.PaymentOutcome{}, errors.New(errors.KindPaymentGatewayError, "payment intent was canceled")
		}
	}
	return domain.PaymentOutcome{
		PaymentIntentID:  intent.ID,
		CardNumberMasked: "**** **** **** 4242",
		CardType:         "Visa",
		AmountMinor:      intent.AmountMinor,
		Currency:         intent.Currency,
	}, nil
}

func (g *Gateway) Cancel(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

func (g *Gateway) Capture(_ context.Context, intentID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captured = append(g.captured, intentID)
	return nil
}

// Cancelled lists the intents released so far
func (g *Gateway) Cancelled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cancelled...)
}

// Captured lists the intents captured so far
func (g *Gateway) Captured() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.captured...)
}
