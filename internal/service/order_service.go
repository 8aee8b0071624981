package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/notify"
	"github.com/jafarshop/checkoutapi/internal/pricing"
	"github.com/jafarshop/checkoutapi/internal/repository"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

var tracer = otel.Tracer("github.com/jafarshop/checkoutapi/internal/service")

// OrderStore creates orders, de-duplicating on payload.IdempotencyKey
type OrderStore interface {
	CreateOrder(ctx context.Context, payload domain.OrderPayload) (string, error)
}

// CartStore reads and clears the external cart
type CartStore interface {
	GetCartLines(ctx context.Context, cartID string) ([]domain.CartLine, error)
	ClearCart(ctx context.Context, cartID string) error
}

// PaymentCapturer captures an authorized payment
type PaymentCapturer interface {
	Capture(ctx context.Context, intentID, idempotencyKey string) error
}

// Notifier sends the order confirmation
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, c notify.OrderConfirmation) error
}

// SubmitResult is returned once an order exists
type SubmitResult struct {
	OrderID  string
	Total    string
	Currency string
}

// OrderSubmitter turns a complete checkout into exactly one order
type OrderSubmitter struct {
	store    OrderStore
	carts    CartStore
	notifier Notifier
	currency string
	logger   *zap.Logger

	group   singleflight.Group
	pending sync.WaitGroup
}

// NewOrderSubmitter creates a new order submitter. notifier may be nil.
func NewOrderSubmitter(store OrderStore, carts CartStore, notifier Notifier, currency string, logger *zap.Logger) *OrderSubmitter {
	return &OrderSubmitter{
		store:    store,
		carts:    carts,
		notifier: notifier,
		currency: strings.ToUpper(currency),
		logger:   logger,
	}
}

// Submit validates state against b and creates the order. Concurrent calls
// with the same idempotency key share one store call; the store itself
// de-duplicates retries of a key that already produced an order.
func (s *OrderSubmitter) Submit(ctx context.Context, state *domain.CheckoutState, b pricing.Breakdown) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "checkout.SubmitOrder")
	defer span.End()

	if err := s.validate(state, b); err != nil {
		span.SetStatus(codes.Error, string(apperrors.KindIncompleteCheckout))
		return nil, err
	}

	payload := s.BuildPayload(state, b)
	span.SetAttributes(
		attribute.String("checkout.idempotency_key", payload.IdempotencyKey),
		attribute.String("checkout.total", payload.Total.StringFixed(pricing.MoneyPlaces)),
	)

	v, err, shared := s.group.Do(payload.IdempotencyKey, func() (interface{}, error) {
		return s.store.CreateOrder(ctx, payload)
	})
	if err != nil {
		err = classifyOrderError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.KindOf(err)))
		s.logger.Error("Failed to create order",
			zap.String("idempotency_key", payload.IdempotencyKey),
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}
	orderID := v.(string)

	s.logger.Info("Order submitted",
		zap.String("order_id", orderID),
		zap.String("idempotency_key", payload.IdempotencyKey),
		zap.Bool("shared", shared),
	)

	s.afterSuccess(ctx, state, payload, orderID)

	return &SubmitResult{
		OrderID:  orderID,
		Total:    payload.Total.StringFixed(pricing.MoneyPlaces),
		Currency: payload.Currency,
	}, nil
}

func (s *OrderSubmitter) validate(state *domain.CheckoutState, b pricing.Breakdown) error {
	var missing []string
	if !state.ShippingAddress.IsComplete() {
		missing = append(missing, "shipping address")
	}
	if state.ShippingMethod == nil || !state.ShippingMethod.ID.IsValid() {
		missing = append(missing, "shipping method")
	}
	if !state.HasPayment() {
		missing = append(missing, "payment")
	}
	if !state.BillingSameAsShipping && !state.BillingAddress.IsComplete() {
		missing = append(missing, "billing address")
	}
	if !state.Authenticated && !state.GuestInformation.IsComplete() {
		missing = append(missing, "contact email")
	}
	if len(b.Lines) == 0 {
		missing = append(missing, "cart items")
	}
	if strings.TrimSpace(state.IdempotencyKey) == "" {
		missing = append(missing, "idempotency key")
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.KindIncompleteCheckout, "missing "+strings.Join(missing, ", "))
	}

	if state.AppliedCoupon != nil && !state.AppliedCoupon.ValidFor(b.CartTotal) {
		return apperrors.New(apperrors.KindIncompleteCheckout, "discount code must be re-applied to the current cart")
	}
	if state.PaymentOutcome != nil && state.PaymentOutcome.AmountMinor != pricing.MinorUnits(b.Total) {
		return apperrors.New(apperrors.KindIncompleteCheckout, "payment does not match the order total")
	}
	return nil
}

// BuildPayload assembles the closed order payload from state and b
func (s *OrderSubmitter) BuildPayload(state *domain.CheckoutState, b pricing.Breakdown) domain.OrderPayload {
	payload := domain.OrderPayload{
		IdempotencyKey: state.IdempotencyKey,
		ClientID:       state.ClientID,
		CustomerID:     state.CustomerID,
		ShippingMethod: state.ShippingMethod.ID,
		Currency:       s.currency,
		Subtotal:       b.SubtotalExVAT,
		Tax:            b.Tax,
		Shipping:       b.ShippingCost,
		Discount:       b.Discount,
		Total:          b.Total,
		Lines:          append([]domain.CartLine(nil), b.Lines...),
	}
	if state.GuestInformation != nil {
		payload.Contact = domain.Contact{
			Email: state.ContactEmail(),
			Name:  state.GuestInformation.FullName,
			Phone: state.GuestInformation.Phone,
		}
	}
	if state.ShippingAddress != nil {
		payload.ShippingAddress = *state.ShippingAddress
		if payload.Contact.Name == "" {
			payload.Contact.Name = state.ShippingAddress.FullName
		}
		if payload.Contact.Phone == "" {
			payload.Contact.Phone = state.ShippingAddress.Phone
		}
	}
	if billing := state.EffectiveBillingAddress(); billing != nil {
		payload.BillingAddress = *billing
	}
	if p := state.PaymentOutcome; p != nil {
		payload.Payment = domain.PaymentReference{
			PaymentIntentID:  p.PaymentIntentID,
			CardType:         p.CardType,
			CardNumberMasked: p.CardNumberMasked,
			AmountMinor:      p.AmountMinor,
		}
	} else {
		payload.Payment = domain.PaymentReference{SavedCardID: state.SavedCardID}
	}
	if state.AppliedCoupon != nil {
		payload.CouponCode = state.AppliedCoupon.Coupon.Code
	}
	return payload
}

func (s *OrderSubmitter) afterSuccess(ctx context.Context, state *domain.CheckoutState, payload domain.OrderPayload, orderID string) {
	ctx = context.WithoutCancel(ctx)

	if s.carts != nil && state.CartID != "" {
		if err := s.carts.ClearCart(ctx, state.CartID); err != nil {
			s.logger.Warn("Failed to clear cart after order",
				zap.String("order_id", orderID),
				zap.String("cart_id", state.CartID),
				zap.Error(err),
			)
		}
	}

	if s.notifier == nil || payload.Contact.Email == "" {
		return
	}
	confirmation := notify.OrderConfirmation{
		OrderID:  orderID,
		Email:    payload.Contact.Email,
		Name:     payload.Contact.Name,
		Currency: payload.Currency,
		Lines:    payload.Lines,
		Shipping: payload.Shipping,
		Discount: payload.Discount,
		Total:    payload.Total,
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		mailCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.notifier.SendOrderConfirmation(mailCtx, confirmation); err != nil {
			s.logger.Warn("Failed to send order confirmation",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until background confirmation emails have been handed off
func (s *OrderSubmitter) Wait() {
	s.pending.Wait()
}

func classifyOrderError(err error) error {
	if ce, ok := apperrors.AsCheckout(err); ok {
		switch ce.Kind {
		case apperrors.KindOrderCreationFailed, apperrors.KindNetworkError, apperrors.KindTimeoutError:
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTimeoutError, "create order", err)
	}
	return &apperrors.CheckoutError{Kind: apperrors.KindOrderCreationFailed, Message: "create order", Err: err}
}

type repositoryOrderStore struct {
	repos    *repository.Repositories
	capturer PaymentCapturer
	logger   *zap.Logger
}

// NewRepositoryOrderStore stores orders through repos and captures the
// authorized payment once the order row exists. capturer may be nil.
func NewRepositoryOrderStore(repos *repository.Repositories, capturer PaymentCapturer, logger *zap.Logger) OrderStore {
	return &repositoryOrderStore{
		repos:    repos,
		capturer: capturer,
		logger:   logger,
	}
}

// CreateOrder persists the order from a checkout payload
func (s *repositoryOrderStore) CreateOrder(ctx context.Context, payload domain.OrderPayload) (string, error) {
	order := &domain.Order{
		ClientID:        payload.ClientID,
		IdempotencyKey:  payload.IdempotencyKey,
		Status:          domain.OrderStatusPlaced,
		CustomerID:      payload.CustomerID,
		ContactEmail:    payload.Contact.Email,
		ContactName:     payload.Contact.Name,
		ContactPhone:    payload.Contact.Phone,
		ShippingAddress: payload.ShippingAddress,
		BillingAddress:  payload.BillingAddress,
		ShippingMethod:  payload.ShippingMethod,
		PaymentRef:      payload.Payment.PaymentIntentID,
		SavedCardID:     payload.Payment.SavedCardID,
		CouponCode:      payload.CouponCode,
		Currency:        payload.Currency,
		Subtotal:        payload.Subtotal,
		Tax:             payload.Tax,
		Shipping:        payload.Shipping,
		Discount:        payload.Discount,
		Total:           payload.Total,
	}

	items := make([]*domain.OrderItem, 0, len(payload.Lines))
	for _, line := range payload.Lines {
		items = append(items, &domain.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	created, err := s.repos.Order.CreateWithItems(ctx, order, items)
	if err != nil {
		return "", &apperrors.CheckoutError{
			Kind:   apperrors.KindOrderCreationFailed,
			Reason: "the order could not be saved",
			Err:    err,
		}
	}
	if !created {
		s.logger.Info("Order already exists for idempotency key",
			zap.String("order_id", order.ID.String()),
			zap.String("idempotency_key", payload.IdempotencyKey),
		)
		return order.ID.String(), nil
	}

	s.recordEvent(ctx, order.ID, "order_created", map[string]interface{}{
		"status":      order.Status,
		"total":       order.Total.StringFixed(pricing.MoneyPlaces),
		"coupon_code": order.CouponCode,
	})

	if s.capturer != nil && order.PaymentRef != "" {
		if err := s.capturer.Capture(ctx, order.PaymentRef, order.IdempotencyKey); err != nil {
			s.logger.Error("Failed to capture payment",
				zap.String("order_id", order.ID.String()),
				zap.String("payment_intent", order.PaymentRef),
				zap.Error(err),
			)
			s.recordEvent(ctx, order.ID, "payment_capture_failed", map[string]interface{}{
				"payment_intent": order.PaymentRef,
				"error":          fmt.Sprint(apperrors.KindOf(err)),
			})
		} else {
			s.recordEvent(ctx, order.ID, "payment_captured", map[string]interface{}{
				"payment_intent": order.PaymentRef,
			})
		}
	}

	return order.ID.String(), nil
}

func (s *repositoryOrderStore) recordEvent(ctx context.Context, orderID uuid.UUID, eventType string, data map[string]interface{}) {
	event := &domain.OrderEvent{
		OrderID:   orderID,
		EventType: eventType,
		EventData: data,
	}
	if err := s.repos.OrderEvent.Create(ctx, event); err != nil {
		s.logger.Warn("Failed to record order event",
			zap.String("order_id", orderID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
