package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/config"
	"github.com/jafarshop/checkoutapi/internal/domain"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

var tracer = otel.Tracer("github.com/jafarshop/checkoutapi/internal/payments")

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type stripePaymentMethodAPI interface {
	Update(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

// CardData is a tokenized card from the frontend. Raw card numbers never reach the server.
type CardData struct {
	PaymentMethodID string
	CardholderName  string
}

// BillingDetails is attached to the payment method before confirmation
type BillingDetails struct {
	Name    string
	Email   string
	Phone   string
	Address *domain.ShippingAddress
}

// Intent is a created payment intent
type Intent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
}

// StripeAdapter wraps the Stripe payment intent API
type StripeAdapter struct {
	intents        stripeIntentAPI
	paymentMethods stripePaymentMethodAPI
	account        string
	breaker        *Breaker
	maxRetries     uint64
	newBackOff     func() backoff.BackOff
	logger         *zap.Logger
}

// NewStripeAdapter creates a Stripe adapter from configuration
func NewStripeAdapter(cfg config.StripeConfig, logger *zap.Logger) (*StripeAdapter, error) {
	apiKey := strings.TrimSpace(cfg.SecretKey)
	if apiKey == "" {
		return nil, errors.New("stripe: api key is required")
	}
	sc := client.New(apiKey, nil)
	return newStripeAdapter(sc.PaymentIntents, sc.PaymentMethods, cfg, logger), nil
}

func newStripeAdapter(intents stripeIntentAPI, methods stripePaymentMethodAPI, cfg config.StripeConfig, logger *zap.Logger) *StripeAdapter {
	return &StripeAdapter{
		intents:        intents,
		paymentMethods: methods,
		account:        strings.TrimSpace(cfg.AccountID),
		breaker:        NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, logger),
		maxRetries:     cfg.MaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		logger: logger,
	}
}

// CreateIntent creates a manual-capture payment intent for amountMinor.
// idempotencyKey names this one intent and is sent unchanged on every retry.
// Gateway outages are retried with exponential backoff; every other
// failure is returned at once.
func (a *StripeAdapter) CreateIntent(ctx context.Context, amountMinor int64, currency, idempotencyKey string) (Intent, error) {
	ctx, span := tracer.Start(ctx, "payments.CreateIntent", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int64("payment.amount_minor", amountMinor), attribute.String("payment.currency", currency))

	if amountMinor <= 0 {
		err := apperrors.New(apperrors.KindPaymentGatewayError, "amount must be positive")
		span.SetStatus(codes.Error, err.Error())
		return Intent{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountMinor),
		Currency:      stripe.String(strings.ToLower(currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		PaymentMethodTypes: []*string{
			stripe.String("card"),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if a.account != "" {
		params.SetStripeAccount(a.account)
	}

	var intent *stripe.PaymentIntent
	attempt := 0
	op := func() error {
		attempt++
		done, ok := a.breaker.Allow()
		if !ok {
			return backoff.Permanent(errCircuitOpen())
		}
		pi, err := a.intents.New(params)
		if err != nil {
			mapped := a.record(done, err)
			if apperrors.Is(mapped, apperrors.KindGatewayUnavailable) {
				a.logger.Warn("Payment gateway unavailable",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return mapped
			}
			return backoff.Permanent(mapped)
		}
		done(true)
		intent = pi
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), a.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if _, ok := apperrors.AsCheckout(err); !ok {
			err = apperrors.Wrap(apperrors.KindGatewayUnavailable, "create payment intent", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.KindOf(err)))
		return Intent{}, err
	}

	a.logger.Info("Payment intent created",
		zap.String("payment_intent", intent.ID),
		zap.Int64("amount", intent.Amount),
		zap.Int("attempts", attempt),
	)

	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountMinor:  intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
	}, nil
}

// Confirm attaches billing details to the tokenized card and confirms the
// intent behind clientSecret. It is never retried automatically.
func (a *StripeAdapter) Confirm(ctx context.Context, clientSecret string, card CardData, billing BillingDetails) (domain.PaymentOutcome, error) {
	ctx, span := tracer.Start(ctx, "payments.Confirm", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	outcome, err := a.confirm(ctx, clientSecret, card, billing)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.KindOf(err)))
		a.logger.Info("Payment confirmation failed",
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.Error(err),
		)
		return domain.PaymentOutcome{}, err
	}
	span.SetAttributes(attribute.String("payment.intent_id", outcome.PaymentIntentID))
	return outcome, nil
}

func (a *StripeAdapter) confirm(ctx context.Context, clientSecret string, card CardData, billing BillingDetails) (domain.PaymentOutcome, error) {
	intentID, ok := IntentIDFromClientSecret(clientSecret)
	if !ok {
		return domain.PaymentOutcome{}, apperrors.New(apperrors.KindPaymentGatewayError, "malformed client secret")
	}
	pmID := strings.TrimSpace(card.PaymentMethodID)
	if pmID == "" {
		return domain.PaymentOutcome{}, apperrors.Rejected(apperrors.KindPaymentDeclined, "card details are required")
	}
	done, ok := a.breaker.Allow()
	if !ok {
		return domain.PaymentOutcome{}, errCircuitOpen()
	}

	pmParams := &stripe.PaymentMethodParams{
		BillingDetails: billingParams(card, billing),
	}
	pmParams.Context = ctx
	if a.account != "" {
		pmParams.SetStripeAccount(a.account)
	}
	if _, err := a.paymentMethods.Update(pmID, pmParams); err != nil {
		return domain.PaymentOutcome{}, a.record(done, err)
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(pmID),
	}
	params.Context = ctx
	params.AddExpand("payment_method")
	if a.account != "" {
		params.SetStripeAccount(a.account)
	}

	intent, err := a.intents.Confirm(intentID, params)
	if err != nil {
		return domain.PaymentOutcome{}, a.record(done, err)
	}
	done(true)

	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		reason := "the card was declined"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			reason = intent.LastPaymentError.Msg
		}
		return domain.PaymentOutcome{}, apperrors.Rejected(apperrors.KindPaymentDeclined, reason)
	case stripe.PaymentIntentStatusRequiresAction:
		return domain.PaymentOutcome{}, apperrors.Rejected(apperrors.KindPaymentDeclined, "card authentication was not completed")
	default:
		return domain.PaymentOutcome{}, apperrors.New(apperrors.KindPaymentGatewayError, fmt.Sprintf("unexpected payment status %s", intent.Status))
	}

	a.logger.Info("Payment intent confirmed",
		zap.String("payment_intent", intent.ID),
		zap.String("status", string(intent.Status)),
	)

	brand, last4, expMonth, expYear, holder := cardDetails(intent.PaymentMethod)
	if holder == "" {
		holder = card.CardholderName
	}
	return domain.PaymentOutcome{
		CardNumberMasked: MaskCardNumber(last4),
		CardholderName:   holder,
		ExpiryDisplay:    ExpiryDisplay(expMonth, expYear),
		CardType:         CardTypeName(brand),
		PaymentIntentID:  intent.ID,
		AmountMinor:      intent.Amount,
		Currency:         strings.ToUpper(string(intent.Currency)),
	}, nil
}

// Capture captures an authorized intent once its order exists
func (a *StripeAdapter) Capture(ctx context.Context, intentID, idempotencyKey string) error {
	ctx, span := tracer.Start(ctx, "payments.Capture", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.SetIdempotencyKey(key + "-capture")
	}
	if a.account != "" {
		params.SetStripeAccount(a.account)
	}
	done, ok := a.breaker.Allow()
	if !ok {
		err := errCircuitOpen()
		span.SetStatus(codes.Error, string(apperrors.KindOf(err)))
		return err
	}
	if _, err := a.intents.Capture(intentID, params); err != nil {
		mapped := a.record(done, err)
		span.RecordError(mapped)
		span.SetStatus(codes.Error, string(apperrors.KindOf(mapped)))
		return mapped
	}
	done(true)
	return nil
}

// Cancel releases an authorization that will no longer be used
func (a *StripeAdapter) Cancel(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if a.account != "" {
		params.SetStripeAccount(a.account)
	}
	done, ok := a.breaker.Allow()
	if !ok {
		return errCircuitOpen()
	}
	if _, err := a.intents.Cancel(intentID, params); err != nil {
		return a.record(done, err)
	}
	done(true)
	return nil
}

// record maps err and reports the call's outcome to the breaker. Only
// outages count against the gateway.
func (a *StripeAdapter) record(done func(healthy bool), err error) error {
	mapped := mapStripeError(err)
	done(!apperrors.Is(mapped, apperrors.KindGatewayUnavailable))
	return mapped
}

func errCircuitOpen() error {
	return apperrors.New(apperrors.KindGatewayUnavailable, "payment gateway circuit open")
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return apperrors.Wrap(apperrors.KindGatewayUnavailable, "payment gateway unreachable", err)
	}
	if stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
		stripeErr.Type == stripe.ErrorTypeAPI {
		return apperrors.Wrap(apperrors.KindGatewayUnavailable, "payment gateway error", err)
	}
	if stripeErr.Type == stripe.ErrorTypeCard {
		reason := stripeErr.Msg
		if reason == "" {
			reason = "the card was declined"
		}
		return &apperrors.CheckoutError{Kind: apperrors.KindPaymentDeclined, Reason: reason, Err: err}
	}
	return apperrors.Wrap(apperrors.KindPaymentGatewayError, "payment gateway rejected the request", err)
}

func billingParams(card CardData, billing BillingDetails) *stripe.PaymentMethodBillingDetailsParams {
	name := strings.TrimSpace(card.CardholderName)
	if name == "" {
		name = billing.Name
	}
	details := &stripe.PaymentMethodBillingDetailsParams{}
	if name != "" {
		details.Name = stripe.String(name)
	}
	if billing.Email != "" {
		details.Email = stripe.String(billing.Email)
	}
	if billing.Phone != "" {
		details.Phone = stripe.String(billing.Phone)
	}
	if addr := billing.Address; addr != nil {
		details.Address = &stripe.AddressParams{
			Line1:      stripe.String(addr.AddressLine1),
			City:       stripe.String(addr.City),
			State:      stripe.String(addr.Region),
			PostalCode: stripe.String(addr.PostalCode),
			Country:    stripe.String(addr.Country),
		}
		if addr.AddressLine2 != "" {
			details.Address.Line2 = stripe.String(addr.AddressLine2)
		}
	}
	return details
}
