package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/payments"
	"github.com/jafarshop/checkoutapi/internal/pricing"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

// SettingsReader returns usable settings, falling back internally on failure
type SettingsReader interface {
	TaxSettings(ctx context.Context) pricing.TaxSettings
	ShippingSettings(ctx context.Context) pricing.ShippingSettings
}

// PaymentGateway creates and confirms payment intents
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, idempotencyKey string) (payments.Intent, error)
	Confirm(ctx context.Context, clientSecret string, card payments.CardData, billing payments.BillingDetails) (domain.PaymentOutcome, error)
	Cancel(ctx context.Context, intentID string) error
}

// CheckoutOptions holds the checkout configuration
type CheckoutOptions struct {
	Currency    string
	SessionTTL  time.Duration
	RequireAuth bool
	LoginURL    string
	ReturnPath  string
}

// CheckoutService drives checkout sessions through the step state machine.
// A session allows one network mutation at a time; local step edits only
// wait for the session lock and are refused while an order is being placed.
type CheckoutService struct {
	settings  SettingsReader
	coupons   *CouponLedger
	carts     CartStore
	gateway   PaymentGateway
	submitter *OrderSubmitter
	sessions  *sessionStore
	opts      CheckoutOptions
	logger    *zap.Logger

	releases sync.WaitGroup
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	settings SettingsReader,
	coupons *CouponLedger,
	carts CartStore,
	gateway PaymentGateway,
	submitter *OrderSubmitter,
	opts CheckoutOptions,
	logger *zap.Logger,
) *CheckoutService {
	opts.Currency = strings.ToUpper(opts.Currency)
	return &CheckoutService{
		settings:  settings,
		coupons:   coupons,
		carts:     carts,
		gateway:   gateway,
		submitter: submitter,
		sessions:  newSessionStore(opts.SessionTTL),
		opts:      opts,
		logger:    logger,
	}
}

// LoginURL is where buyers are sent when sign-in is required. It carries
// ReturnPath so the buyer lands back in checkout.
func (s *CheckoutService) LoginURL() string {
	if s.opts.LoginURL == "" || s.opts.ReturnPath == "" {
		return s.opts.LoginURL
	}
	u, err := url.Parse(s.opts.LoginURL)
	if err != nil {
		return s.opts.LoginURL
	}
	q := u.Query()
	q.Set("returnTo", s.opts.ReturnPath)
	u.RawQuery = q.Encode()
	return u.String()
}

type settingsSnapshot struct {
	tax      pricing.TaxSettings
	shipping pricing.ShippingSettings
}

func (s *CheckoutService) loadSettings(ctx context.Context) settingsSnapshot {
	return settingsSnapshot{
		tax:      s.settings.TaxSettings(ctx),
		shipping: s.settings.ShippingSettings(ctx),
	}
}

// Create opens a checkout for req.CartID
func (s *CheckoutService) Create(ctx context.Context, clientID uuid.UUID, req CreateSessionRequest) (*SessionView, error) {
	authenticated := strings.TrimSpace(req.CustomerID) != ""
	if s.opts.RequireAuth && !authenticated {
		return nil, apperrors.New(apperrors.KindAuthRequired, "sign in to check out")
	}

	lines, err := s.carts.GetCartLines(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperrors.New(apperrors.KindIncompleteCheckout, "cart is empty")
	}

	machine := domain.NewStateMachine(authenticated)
	sess := &checkoutSession{
		id:       newSessionID(),
		clientID: clientID,
		machine:  machine,
		lines:    lines,
		state: domain.CheckoutState{
			CurrentStep:           machine.First(),
			Authenticated:         authenticated,
			CustomerID:            strings.TrimSpace(req.CustomerID),
			CartID:                req.CartID,
			BillingSameAsShipping: true,
			IdempotencyKey:        uuid.NewString(),
			ClientID:              clientID,
		},
	}
	if email := strings.TrimSpace(req.Email); email != "" && !authenticated {
		sess.state.GuestInformation = &domain.GuestInformation{Email: email}
	}
	s.sessions.add(sess)

	s.logger.Info("Checkout started",
		zap.String("checkout_id", sess.id),
		zap.String("client_id", clientID.String()),
		zap.String("cart_id", req.CartID),
		zap.Bool("authenticated", authenticated),
	)

	settings := s.loadSettings(ctx)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess, settings, nil)
}

// Get returns the checkout with a fresh quote. The cart is re-read and an
// applied coupon re-validated unless another mutation is running.
func (s *CheckoutService) Get(ctx context.Context, clientID uuid.UUID, id string) (*SessionView, error) {
	sess, err := s.sessions.get(clientID, id)
	if err != nil {
		return nil, err
	}

	var notices []string
	if sess.begin(opRefresh) == nil {
		notices, err = s.refresh(ctx, sess)
		sess.end()
		if err != nil {
			s.logger.Warn("Cart refresh failed, using last snapshot",
				zap.String("checkout_id", id),
				zap.Error(err),
			)
		}
	}

	settings := s.loadSettings(ctx)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess, settings, notices)
}

// SetGuestInformation stores the guest contact details
func (s *CheckoutService) SetGuestInformation(ctx context.Context, clientID uuid.UUID, id string, req GuestInfoRequest) (*SessionView, error) {
	return s.mutateLocal(ctx, clientID, id, func(sess *checkoutSession, st *domain.CheckoutState, _ settingsSnapshot) error {
		if !sess.machine.Contains(domain.StepGuestInfo) {
			return &apperrors.ErrInvalidStateTransition{From: st.CurrentStep, To: domain.StepGuestInfo}
		}
		st.GuestInformation = &domain.GuestInformation{
			Email:    strings.TrimSpace(req.Email),
			FullName: strings.TrimSpace(req.FullName),
			Phone:    strings.TrimSpace(req.Phone),
		}
		if req.Advance {
			return submitStep(sess.machine, st, domain.StepGuestInfo)
		}
		return nil
	})
}

// SetShippingAddress stores the shipping address
func (s *CheckoutService) SetShippingAddress(ctx context.Context, clientID uuid.UUID, id string, req AddressRequest) (*SessionView, error) {
	return s.mutateLocal(ctx, clientID, id, func(sess *checkoutSession, st *domain.CheckoutState, _ settingsSnapshot) error {
		st.ShippingAddress = req.ToDomain()
		if req.Advance {
			return submitStep(sess.machine, st, domain.StepShippingAddress)
		}
		return nil
	})
}

// SelectShippingMethod snapshots the chosen tier at its current price
func (s *CheckoutService) SelectShippingMethod(ctx context.Context, clientID uuid.UUID, id string, req ShippingMethodRequest) (*SessionView, error) {
	return s.mutateLocal(ctx, clientID, id, func(sess *checkoutSession, st *domain.CheckoutState, settings settingsSnapshot) error {
		method, ok := pricing.FindMethod(settings.shipping, req.MethodID)
		if !ok {
			return apperrors.New(apperrors.KindStepIncomplete, fmt.Sprintf("shipping method %q is not available", req.MethodID))
		}
		st.ShippingMethod = &method
		if req.Advance {
			return submitStep(sess.machine, st, domain.StepShippingMethod)
		}
		return nil
	})
}

// UseSavedCard pays with a stored card. Only signed-in buyers have saved cards.
func (s *CheckoutService) UseSavedCard(ctx context.Context, clientID uuid.UUID, id string, req SavedCardRequest) (*SessionView, error) {
	return s.mutateLocal(ctx, clientID, id, func(sess *checkoutSession, st *domain.CheckoutState, _ settingsSnapshot) error {
		if !st.Authenticated {
			return apperrors.New(apperrors.KindAuthRequired, "sign in to use a saved card")
		}
		applyBilling(st, req.BillingRequest)
		st.SavedCardID = strings.TrimSpace(req.SavedCardID)
		st.PaymentOutcome = nil
		st.PendingIntent = nil
		if req.Advance {
			return submitStep(sess.machine, st, domain.StepPayment)
		}
		return nil
	})
}

// RemoveCoupon drops the applied coupon
func (s *CheckoutService) RemoveCoupon(ctx context.Context, clientID uuid.UUID, id string) (*SessionView, error) {
	return s.mutateLocal(ctx, clientID, id, func(_ *checkoutSession, st *domain.CheckoutState, _ settingsSnapshot) error {
		s.coupons.Remove(st)
		return nil
	})
}

// Advance moves to the next step
func (s *CheckoutService) Advance(ctx context.Context, clientID uuid.UUID, id string) (*SessionView, error) {
	return s.mutateLocal(ctx, clientID, id, func(sess *checkoutSession, st *domain.CheckoutState, _ settingsSnapshot) error {
		return sess.machine.Advance(st)
	})
}

// Retreat moves to the previous step
func (s *CheckoutService) Retreat(ctx context.Context, clientID uuid.UUID, id string) (*SessionView, error) {
	return s.mutateLocal(ctx, clientID, id, func(sess *checkoutSession, st *domain.CheckoutState, _ settingsSnapshot) error {
		return sess.machine.Retreat(st)
	})
}

// JumpTo moves directly to step
func (s *CheckoutService) JumpTo(ctx context.Context, clientID uuid.UUID, id string, step domain.Step) (*SessionView, error) {
	return s.mutateLocal(ctx, clientID, id, func(sess *checkoutSession, st *domain.CheckoutState, _ settingsSnapshot) error {
		return sess.machine.JumpTo(st, step)
	})
}

// ApplyCoupon validates code against the current cart total. A result that
// arrives after the buyer moved on is discarded with StaleRequest.
func (s *CheckoutService) ApplyCoupon(ctx context.Context, clientID uuid.UUID, id, code string) (*SessionView, error) {
	sess, err := s.sessions.get(clientID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.begin(opCoupon); err != nil {
		return nil, err
	}
	defer sess.end()

	settings := s.loadSettings(ctx)

	sess.mu.Lock()
	generation := sess.generation
	cartTotal := pricing.CartTotal(sess.lines)
	sess.mu.Unlock()

	applied, err := s.coupons.Apply(ctx, code, cartTotal)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation != generation {
		s.logger.Info("Discarding stale coupon result",
			zap.String("checkout_id", id),
			zap.String("code", code),
		)
		return nil, apperrors.New(apperrors.KindStaleRequest, "checkout changed while the code was being checked")
	}
	if err != nil {
		return nil, err
	}

	sess.state.ApplyCoupon(applied)
	sess.generation++
	return s.viewLocked(sess, settings, nil)
}

// CreatePaymentIntent prepares an intent for the current total. A zero total
// needs no card and is recorded as paid.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, clientID uuid.UUID, id string) (*PaymentIntentResponse, error) {
	sess, err := s.sessions.get(clientID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.begin(opPayment); err != nil {
		return nil, err
	}
	defer sess.end()

	settings := s.loadSettings(ctx)

	sess.mu.Lock()
	if err := sess.machine.CanJumpTo(&sess.state, domain.StepPayment); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	b, _, err := s.quoteLocked(sess, settings)
	if err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	amount := pricing.MinorUnits(b.Total)

	if amount == 0 {
		sess.state.PendingIntent = nil
		sess.state.SavedCardID = ""
		sess.state.PaymentOutcome = &domain.PaymentOutcome{Currency: s.opts.Currency}
		sess.mu.Unlock()
		return &PaymentIntentResponse{RequiresPayment: false, Currency: s.opts.Currency}, nil
	}
	if p := sess.state.PendingIntent; p != nil && p.AmountMinor == amount {
		sess.mu.Unlock()
		return &PaymentIntentResponse{RequiresPayment: true, ClientSecret: p.ClientSecret, AmountMinor: amount, Currency: p.Currency}, nil
	}
	key := sess.nextIntentKey()
	sess.mu.Unlock()

	intent, err := s.gateway.CreateIntent(ctx, amount, s.opts.Currency, key)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if b, _, err = s.quoteLocked(sess, settings); err != nil || pricing.MinorUnits(b.Total) != amount {
		s.release(intent.ID)
		return nil, apperrors.New(apperrors.KindStaleRequest, "order total changed while preparing payment")
	}

	if prev := sess.state.PendingIntent; prev != nil && prev.ID != intent.ID {
		s.release(prev.ID)
	}
	sess.state.PendingIntent = &domain.PendingIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountMinor:  intent.AmountMinor,
		Currency:     intent.Currency,
	}
	return &PaymentIntentResponse{
		RequiresPayment: true,
		ClientSecret:    intent.ClientSecret,
		AmountMinor:     intent.AmountMinor,
		Currency:        intent.Currency,
	}, nil
}

// ConfirmPayment confirms the pending intent with a tokenized card.
// Confirmation is not bound to the caller's context and is never retried.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, clientID uuid.UUID, id string, req ConfirmPaymentRequest) (*SessionView, error) {
	sess, err := s.sessions.get(clientID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.begin(opPayment); err != nil {
		return nil, err
	}
	defer sess.end()

	settings := s.loadSettings(ctx)

	sess.mu.Lock()
	next := sess.state
	applyBilling(&next, req.BillingRequest)
	pending := next.PendingIntent
	billing := next.EffectiveBillingAddress()
	email := next.ContactEmail()
	sess.mu.Unlock()

	if pending == nil {
		return nil, apperrors.New(apperrors.KindIncompleteCheckout, "no payment has been started")
	}
	if !billing.IsComplete() {
		return nil, apperrors.New(apperrors.KindStepIncomplete, "billing address is incomplete")
	}

	outcome, err := s.gateway.Confirm(context.WithoutCancel(ctx), pending.ClientSecret,
		payments.CardData{PaymentMethodID: req.PaymentMethodID, CardholderName: req.CardholderName},
		payments.BillingDetails{Name: billing.FullName, Email: email, Phone: billing.Phone, Address: billing},
	)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err != nil {
		if apperrors.Is(err, apperrors.KindPaymentDeclined) {
			sess.state.PaymentOutcome = nil
		}
		return nil, err
	}

	applyBilling(&sess.state, req.BillingRequest)
	sess.state.SavedCardID = ""
	sess.state.PaymentOutcome = &outcome
	if p := sess.state.PendingIntent; p != nil && p.ID == outcome.PaymentIntentID {
		sess.state.PendingIntent = nil
	}
	sess.generation++

	s.logger.Info("Payment authorized",
		zap.String("checkout_id", id),
		zap.String("payment_intent", outcome.PaymentIntentID),
		zap.Int64("amount_minor", outcome.AmountMinor),
	)

	if req.Advance && sess.state.CurrentStep == domain.StepPayment {
		next := sess.state
		if err := sess.machine.Advance(&next); err == nil {
			sess.state = next
		}
	}
	return s.viewLocked(sess, settings, nil)
}

// Submit places the order. The cart is re-read and the coupon re-validated
// first; work continues even if the caller goes away. A retried submit of a
// completed checkout returns the original order.
func (s *CheckoutService) Submit(ctx context.Context, clientID uuid.UUID, id string) (*SubmitResponse, error) {
	sess, err := s.sessions.get(clientID, id)
	if err != nil {
		if resp, ok := s.sessions.completedResult(clientID, id); ok {
			resp.Replayed = true
			return &resp, nil
		}
		return nil, err
	}
	if err := sess.begin(opSubmit); err != nil {
		return nil, err
	}
	defer sess.end()

	ctx = context.WithoutCancel(ctx)

	notices, err := s.refresh(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(notices) > 0 {
		return nil, apperrors.New(apperrors.KindIncompleteCheckout, strings.Join(notices, "; "))
	}

	settings := s.loadSettings(ctx)

	sess.mu.Lock()
	if sess.state.CurrentStep != domain.StepReview {
		sess.mu.Unlock()
		return nil, apperrors.New(apperrors.KindStepIncomplete, "review the order before submitting")
	}
	b, notice, err := s.quoteLocked(sess, settings)
	state := sess.state
	sess.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if notice != "" {
		return nil, apperrors.New(apperrors.KindIncompleteCheckout, notice)
	}

	result, err := s.submitter.Submit(ctx, &state, b)
	if err != nil {
		return nil, err
	}

	resp := SubmitResponse{OrderID: result.OrderID, Total: result.Total, Currency: result.Currency}
	s.sessions.complete(sess, resp)

	s.logger.Info("Checkout completed",
		zap.String("checkout_id", id),
		zap.String("order_id", result.OrderID),
	)
	return &resp, nil
}

// RunJanitor drops expired sessions every interval until ctx is done
func (s *CheckoutService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.sweep(); n > 0 {
				s.logger.Info("Expired checkouts removed", zap.Int("count", n))
			}
		}
	}
}

// Wait blocks until background intent releases have finished
func (s *CheckoutService) Wait() {
	s.releases.Wait()
}

// mutateLocal applies fn to a copy of the state and commits it only when fn succeeds
func (s *CheckoutService) mutateLocal(
	ctx context.Context,
	clientID uuid.UUID,
	id string,
	fn func(sess *checkoutSession, st *domain.CheckoutState, settings settingsSnapshot) error,
) (*SessionView, error) {
	sess, err := s.sessions.get(clientID, id)
	if err != nil {
		return nil, err
	}
	settings := s.loadSettings(ctx)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.inFlight == opSubmit {
		return nil, apperrors.New(apperrors.KindSubmissionInProgress, "order is being placed")
	}

	prev := sess.state
	next := sess.state
	if err := fn(sess, &next, settings); err != nil {
		return nil, err
	}
	sess.state = next
	sess.generation++
	s.releaseDropped(prev, next)

	return s.viewLocked(sess, settings, nil)
}

// refresh re-reads the cart and re-validates the coupon when the cart total
// moved. Rejections clear the coupon and come back as notices.
func (s *CheckoutService) refresh(ctx context.Context, sess *checkoutSession) ([]string, error) {
	sess.mu.Lock()
	cartID := sess.state.CartID
	sess.mu.Unlock()

	lines, err := s.carts.GetCartLines(ctx, cartID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	total := pricing.CartTotal(lines)
	if !total.Equal(pricing.CartTotal(sess.lines)) {
		sess.generation++
	}
	sess.lines = lines
	coupon := sess.state.AppliedCoupon
	generation := sess.generation
	sess.mu.Unlock()

	if coupon == nil || coupon.ValidFor(total) {
		return nil, nil
	}

	applied, err := s.coupons.Apply(ctx, coupon.Coupon.Code, total)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation != generation {
		return nil, nil
	}
	switch {
	case err == nil:
		sess.state.ApplyCoupon(applied)
		sess.generation++
		return nil, nil
	case apperrors.Is(err, apperrors.KindCouponRejected):
		sess.state.ClearCoupon()
		sess.generation++
		s.logger.Info("Coupon no longer applies to cart",
			zap.String("checkout_id", sess.id),
			zap.String("code", coupon.Coupon.Code),
		)
		notice := fmt.Sprintf("discount code %s was removed because the cart changed", coupon.Coupon.Code)
		if ce, ok := apperrors.AsCheckout(err); ok && ce.Reason != "" {
			notice += ": " + ce.Reason
		}
		return []string{notice}, nil
	default:
		return nil, err
	}
}

// quoteLocked prices the session and drops payment data that no longer
// matches the total. The returned notice is non-empty when that happened.
func (s *CheckoutService) quoteLocked(sess *checkoutSession, settings settingsSnapshot) (pricing.Breakdown, string, error) {
	b, err := pricing.Calculate(pricing.Input{
		Lines:          sess.lines,
		ShippingMethod: sess.state.ShippingMethod,
		Tax:            settings.tax,
		Shipping:       settings.shipping,
		DiscountAmount: sess.state.DiscountAmount,
	})
	if err != nil {
		return pricing.Breakdown{}, "", apperrors.Wrap(apperrors.KindIncompleteCheckout, "cart cannot be priced", err)
	}
	return b, s.reconcilePaymentLocked(sess, pricing.MinorUnits(b.Total)), nil
}

func (s *CheckoutService) reconcilePaymentLocked(sess *checkoutSession, totalMinor int64) string {
	st := &sess.state
	if p := st.PendingIntent; p != nil && p.AmountMinor != totalMinor {
		st.PendingIntent = nil
		s.release(p.ID)
	}

	o := st.PaymentOutcome
	if o == nil || o.AmountMinor == totalMinor {
		return ""
	}
	st.PaymentOutcome = nil
	if o.PaymentIntentID != "" {
		s.release(o.PaymentIntentID)
	}
	sess.machine.RewindTo(st, domain.StepPayment)
	sess.generation++

	s.logger.Info("Payment reset after total changed",
		zap.String("checkout_id", sess.id),
		zap.Int64("authorized_minor", o.AmountMinor),
		zap.Int64("total_minor", totalMinor),
	)
	return "the order total changed, please confirm payment again"
}

func (s *CheckoutService) viewLocked(sess *checkoutSession, settings settingsSnapshot, notices []string) (*SessionView, error) {
	b, notice, err := s.quoteLocked(sess, settings)
	if err != nil {
		return nil, err
	}
	if notice != "" {
		notices = append(notices, notice)
	}

	completed := make([]domain.Step, 0, len(sess.machine.Steps()))
	for _, step := range sess.machine.Steps() {
		if sess.machine.IsComplete(step, &sess.state) {
			completed = append(completed, step)
		}
	}

	return &SessionView{
		ID:              sess.id,
		State:           sess.state,
		Steps:           sess.machine.Steps(),
		CompletedSteps:  completed,
		ReachableSteps:  sess.machine.Reachable(&sess.state),
		ShippingMethods: pricing.AvailableMethods(settings.shipping),
		Quote:           NewQuoteView(b, s.opts.Currency),
		Notices:         notices,
		ExpiresAt:       sess.expiresAt,
	}, nil
}

// releaseDropped cancels intents referenced by prev but not by next
func (s *CheckoutService) releaseDropped(prev, next domain.CheckoutState) {
	kept := map[string]bool{}
	if next.PendingIntent != nil {
		kept[next.PendingIntent.ID] = true
	}
	if next.PaymentOutcome != nil {
		kept[next.PaymentOutcome.PaymentIntentID] = true
	}
	if prev.PendingIntent != nil && !kept[prev.PendingIntent.ID] {
		s.release(prev.PendingIntent.ID)
	}
	if prev.PaymentOutcome != nil && prev.PaymentOutcome.PaymentIntentID != "" && !kept[prev.PaymentOutcome.PaymentIntentID] {
		s.release(prev.PaymentOutcome.PaymentIntentID)
	}
}

// release cancels an intent in the background
func (s *CheckoutService) release(intentID string) {
	if intentID == "" || s.gateway == nil {
		return
	}
	s.releases.Add(1)
	go func() {
		defer s.releases.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.gateway.Cancel(ctx, intentID); err != nil {
			s.logger.Warn("Failed to release payment intent",
				zap.String("payment_intent", intentID),
				zap.Error(err),
			)
		}
	}()
}

// submitStep validates step and advances when it is the current one
func submitStep(m *domain.StateMachine, st *domain.CheckoutState, step domain.Step) error {
	if st.CurrentStep == step {
		return m.Advance(st)
	}
	if !m.IsComplete(step, st) {
		return apperrors.New(apperrors.KindStepIncomplete, fmt.Sprintf("%s is incomplete", step))
	}
	return nil
}

func applyBilling(st *domain.CheckoutState, req BillingRequest) {
	if req.BillingSameAsShipping != nil {
		st.BillingSameAsShipping = *req.BillingSameAsShipping
	}
	if req.BillingAddress != nil {
		st.BillingAddress = req.BillingAddress.ToDomain()
	}
}
