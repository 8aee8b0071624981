package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v78"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/config"
	"github.com/jafarshop/checkoutapi/internal/domain"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

type fakeIntents struct {
	newErrs     []error
	newCalls    int
	lastNew     *stripe.PaymentIntentParams
	confirmResp *stripe.PaymentIntent
	confirmErr  error
	confirmID   string
	captured    []string
	canceled    []string
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.newCalls++
	f.lastNew = params
	if len(f.newErrs) > 0 {
		err := f.newErrs[0]
		f.newErrs = f.newErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret_abc",
		Amount:       *params.Amount,
		Currency:     stripe.Currency(*params.Currency),
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}, nil
}

func (f *fakeIntents) Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.confirmID = id
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.confirmResp, nil
}

func (f *fakeIntents) Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	f.captured = append(f.captured, id)
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

func (f *fakeIntents) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	f.canceled = append(f.canceled, id)
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
}

type fakePaymentMethods struct {
	updated *stripe.PaymentMethodParams
	err     error
}

func (f *fakePaymentMethods) Update(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	f.updated = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentMethod{ID: id}, nil
}

func newTestAdapter(intents *fakeIntents, methods *fakePaymentMethods, cfg config.StripeConfig) *StripeAdapter {
	a := newStripeAdapter(intents, methods, cfg, zap.NewNop())
	a.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return a
}

func serverError() error {
	return &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusServiceUnavailable, Msg: "unavailable"}
}

func authorizedIntent() *stripe.PaymentIntent {
	return &stripe.PaymentIntent{
		ID:       "pi_123",
		Amount:   10599,
		Currency: "eur",
		Status:   stripe.PaymentIntentStatusRequiresCapture,
		PaymentMethod: &stripe.PaymentMethod{
			ID:             "pm_1",
			BillingDetails: &stripe.PaymentMethodBillingDetails{Name: "Ana García"},
			Card: &stripe.PaymentMethodCard{
				Brand:    stripe.PaymentMethodCardBrandVisa,
				Last4:    "4242",
				ExpMonth: 3,
				ExpYear:  2031,
			},
		},
	}
}

func TestCreateIntentUsesManualCapture(t *testing.T) {
	intents := &fakeIntents{}
	a := newTestAdapter(intents, &fakePaymentMethods{}, config.StripeConfig{MaxRetries: 2})

	intent, err := a.CreateIntent(context.Background(), 10599, "EUR", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	assert.Equal(t, int64(10599), intent.AmountMinor)
	assert.Equal(t, "EUR", intent.Currency)
	assert.Equal(t, string(stripe.PaymentIntentCaptureMethodManual), *intents.lastNew.CaptureMethod)
	assert.Equal(t, "eur", *intents.lastNew.Currency)
	require.NotNil(t, intents.lastNew.IdempotencyKey)
	assert.Equal(t, "key-1", *intents.lastNew.IdempotencyKey)
}

func TestCreateIntentRetriesGatewayOutage(t *testing.T) {
	intents := &fakeIntents{newErrs: []error{serverError(), errors.New("dial tcp: connection refused")}}
	a := newTestAdapter(intents, &fakePaymentMethods{}, config.StripeConfig{MaxRetries: 2})

	_, err := a.CreateIntent(context.Background(), 500, "EUR", "key")
	require.NoError(t, err)
	assert.Equal(t, 3, intents.newCalls)
}

func TestCreateIntentGivesUpAfterMaxRetries(t *testing.T) {
	intents := &fakeIntents{newErrs: []error{serverError(), serverError(), serverError(), serverError()}}
	a := newTestAdapter(intents, &fakePaymentMethods{}, config.StripeConfig{MaxRetries: 1})

	_, err := a.CreateIntent(context.Background(), 500, "EUR", "key")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindGatewayUnavailable))
	assert.Equal(t, 2, intents.newCalls)
}

func TestCreateIntentDoesNotRetryInvalidRequest(t *testing.T) {
	intents := &fakeIntents{newErrs: []error{&stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest}}}
	a := newTestAdapter(intents, &fakePaymentMethods{}, config.StripeConfig{MaxRetries: 3})

	_, err := a.CreateIntent(context.Background(), 500, "EUR", "key")
	assert.True(t, apperrors.Is(err, apperrors.KindPaymentGatewayError))
	assert.Equal(t, 1, intents.newCalls)
}

func TestCreateIntentCircuitBreaker(t *testing.T) {
	const cooldown = 50 * time.Millisecond
	intents := &fakeIntents{newErrs: []error{serverError(), serverError()}}
	a := newTestAdapter(intents, &fakePaymentMethods{}, config.StripeConfig{MaxRetries: 0, BreakerThreshold: 2, BreakerCooldown: cooldown})

	for i := 0; i < 2; i++ {
		_, err := a.CreateIntent(context.Background(), 500, "EUR", "key")
		require.True(t, apperrors.Is(err, apperrors.KindGatewayUnavailable))
	}
	require.True(t, a.breaker.Open())

	_, err := a.CreateIntent(context.Background(), 500, "EUR", "key")
	assert.True(t, apperrors.Is(err, apperrors.KindGatewayUnavailable))
	assert.Equal(t, 2, intents.newCalls, "open circuit fails fast")

	time.Sleep(cooldown + 20*time.Millisecond)
	_, err = a.CreateIntent(context.Background(), 500, "EUR", "key")
	require.NoError(t, err)
	assert.False(t, a.breaker.Open())
}

func TestConfirmReturnsMaskedOutcome(t *testing.T) {
	intents := &fakeIntents{confirmResp: authorizedIntent()}
	methods := &fakePaymentMethods{}
	a := newTestAdapter(intents, methods, config.StripeConfig{})

	outcome, err := a.Confirm(context.Background(), "pi_123_secret_abc",
		CardData{PaymentMethodID: "pm_1", CardholderName: "Ana García"},
		BillingDetails{Email: "ana@example.com", Address: &domain.ShippingAddress{AddressLine1: "Calle Mayor 1", City: "Madrid", Region: "Madrid", PostalCode: "28013", Country: "ES"}},
	)
	require.NoError(t, err)

	assert.Equal(t, "pi_123", intents.confirmID)
	assert.Equal(t, "**** **** **** 4242", outcome.CardNumberMasked)
	assert.Equal(t, "03/31", outcome.ExpiryDisplay)
	assert.Equal(t, "Visa", outcome.CardType)
	assert.Equal(t, "Ana García", outcome.CardholderName)
	assert.Equal(t, "pi_123", outcome.PaymentIntentID)
	assert.Equal(t, int64(10599), outcome.AmountMinor)
	assert.Equal(t, "EUR", outcome.Currency)

	require.NotNil(t, methods.updated)
	assert.Equal(t, "Ana García", *methods.updated.BillingDetails.Name)
	assert.Equal(t, "ES", *methods.updated.BillingDetails.Address.Country)
}

func TestConfirmMapsDeclines(t *testing.T) {
	cases := []struct {
		name string
		resp *stripe.PaymentIntent
		err  error
		want apperrors.Kind
	}{
		{
			name: "card error",
			err:  &stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired, Msg: "Your card has insufficient funds."},
			want: apperrors.KindPaymentDeclined,
		},
		{
			name: "requires payment method",
			resp: &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusRequiresPaymentMethod},
			want: apperrors.KindPaymentDeclined,
		},
		{
			name: "requires action",
			resp: &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusRequiresAction},
			want: apperrors.KindPaymentDeclined,
		},
		{
			name: "canceled",
			resp: &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusCanceled},
			want: apperrors.KindPaymentGatewayError,
		},
		{
			name: "invalid request",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest},
			want: apperrors.KindPaymentGatewayError,
		},
		{
			name: "gateway down",
			err:  serverError(),
			want: apperrors.KindGatewayUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAdapter(&fakeIntents{confirmResp: tc.resp, confirmErr: tc.err}, &fakePaymentMethods{}, config.StripeConfig{})
			_, err := a.Confirm(context.Background(), "pi_123_secret_abc", CardData{PaymentMethodID: "pm_1"}, BillingDetails{})
			require.Error(t, err)
			assert.Equal(t, tc.want, apperrors.KindOf(err))
		})
	}
}

func TestConfirmDeclineCarriesGatewayReason(t *testing.T) {
	a := newTestAdapter(&fakeIntents{confirmErr: &stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired, Msg: "Your card was declined."}}, &fakePaymentMethods{}, config.StripeConfig{})

	_, err := a.Confirm(context.Background(), "pi_123_secret_abc", CardData{PaymentMethodID: "pm_1"}, BillingDetails{})
	ce, ok := apperrors.AsCheckout(err)
	require.True(t, ok)
	assert.Equal(t, "Your card was declined.", ce.Reason)
	assert.Equal(t, apperrors.ActionReenterCard, ce.RetryAction())
}

func TestConfirmRejectsMalformedSecret(t *testing.T) {
	intents := &fakeIntents{confirmResp: authorizedIntent()}
	a := newTestAdapter(intents, &fakePaymentMethods{}, config.StripeConfig{})

	_, err := a.Confirm(context.Background(), "garbage", CardData{PaymentMethodID: "pm_1"}, BillingDetails{})
	assert.True(t, apperrors.Is(err, apperrors.KindPaymentGatewayError))
	assert.Empty(t, intents.confirmID)
}

func TestCaptureAndCancel(t *testing.T) {
	intents := &fakeIntents{}
	a := newTestAdapter(intents, &fakePaymentMethods{}, config.StripeConfig{})

	require.NoError(t, a.Capture(context.Background(), "pi_1", "key"))
	require.NoError(t, a.Cancel(context.Background(), "pi_2"))
	assert.Equal(t, []string{"pi_1"}, intents.captured)
	assert.Equal(t, []string{"pi_2"}, intents.canceled)
}

func TestCardHelpers(t *testing.T) {
	id, ok := IntentIDFromClientSecret("pi_3Mabc_secret_xyz")
	assert.True(t, ok)
	assert.Equal(t, "pi_3Mabc", id)
	_, ok = IntentIDFromClientSecret("seti_1_secret_x")
	assert.False(t, ok)

	assert.Equal(t, "**** **** **** 1234", MaskCardNumber("4111111111111234"))
	assert.Equal(t, "12/09", ExpiryDisplay(12, 2009))
	assert.Equal(t, "", ExpiryDisplay(13, 2030))
	assert.Equal(t, "American Express", CardTypeName("amex"))
	assert.Equal(t, "Card", CardTypeName(""))
}
