package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrNotFound is returned when a resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized is returned when credentials are missing or invalid
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	return e.Message
}

// ErrInvalidStateTransition is returned when a move is not part of the transition table
type ErrInvalidStateTransition struct {
	From fmt.Stringer
	To   fmt.Stringer
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// Kind classifies checkout failures for propagation and display.
type Kind string

const (
	KindStepIncomplete       Kind = "STEP_INCOMPLETE"
	KindCouponRejected       Kind = "COUPON_REJECTED"
	KindGatewayUnavailable   Kind = "GATEWAY_UNAVAILABLE"
	KindPaymentDeclined      Kind = "PAYMENT_DECLINED"
	KindPaymentGatewayError  Kind = "PAYMENT_GATEWAY_ERROR"
	KindSettingsFetchFailed  Kind = "SETTINGS_FETCH_FAILED"
	KindIncompleteCheckout   Kind = "INCOMPLETE_CHECKOUT"
	KindOrderCreationFailed  Kind = "ORDER_CREATION_FAILED"
	KindNetworkError         Kind = "NETWORK_ERROR"
	KindTimeoutError         Kind = "TIMEOUT_ERROR"
	KindAuthRequired         Kind = "AUTH_REQUIRED"
	KindSubmissionInProgress Kind = "SUBMISSION_IN_PROGRESS"
	KindStaleRequest         Kind = "STALE_REQUEST"
)

// RetryAction names the single primary action offered to the buyer.
type RetryAction string

const (
	ActionNone         RetryAction = ""
	ActionRetry        RetryAction = "retry"
	ActionReenterCard  RetryAction = "reenter_payment"
	ActionLogin        RetryAction = "login"
	ActionCorrectInput RetryAction = "correct_input"
)

// CheckoutError is the single error shape surfaced by the checkout engine.
// Message is safe to show to a buyer; Reason carries collaborator detail
// (coupon rejection reason, server message) that is also buyer-safe.
type CheckoutError struct {
	Kind    Kind
	Message string
	Reason  string
	Err     error
}

func (e *CheckoutError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the buyer may replay the same action.
func (e *CheckoutError) Retryable() bool {
	switch e.Kind {
	case KindGatewayUnavailable, KindPaymentGatewayError, KindNetworkError,
		KindTimeoutError, KindOrderCreationFailed, KindSubmissionInProgress,
		KindPaymentDeclined:
		return true
	default:
		return false
	}
}

// RetryAction returns the primary action the UI should offer.
func (e *CheckoutError) RetryAction() RetryAction {
	switch e.Kind {
	case KindPaymentDeclined:
		return ActionReenterCard
	case KindAuthRequired:
		return ActionLogin
	case KindStepIncomplete, KindCouponRejected, KindIncompleteCheckout:
		return ActionCorrectInput
	case KindSettingsFetchFailed, KindStaleRequest:
		return ActionNone
	}
	if e.Retryable() {
		return ActionRetry
	}
	return ActionNone
}

var userMessages = map[Kind]string{
	KindStepIncomplete:       "Please complete this step before continuing.",
	KindCouponRejected:       "This discount code cannot be applied.",
	KindGatewayUnavailable:   "The payment service is temporarily unavailable.",
	KindPaymentDeclined:      "Your payment was declined. Please use another card.",
	KindPaymentGatewayError:  "Something went wrong while processing your payment.",
	KindSettingsFetchFailed:  "Prices are being shown with default settings.",
	KindIncompleteCheckout:   "Some checkout details are missing.",
	KindOrderCreationFailed:  "We could not place your order.",
	KindNetworkError:         "Connection problem. Please try again.",
	KindTimeoutError:         "The request took too long. Please try again.",
	KindAuthRequired:         "Please sign in to continue.",
	KindSubmissionInProgress: "Your previous request is still being processed.",
	KindStaleRequest:         "This request is no longer current.",
}

// UserMessage returns short buyer-facing text. Raw error text is never included.
func (e *CheckoutError) UserMessage() string {
	base := userMessages[e.Kind]
	if base == "" {
		base = "Something went wrong."
	}
	if e.Reason != "" && (e.Kind == KindCouponRejected || e.Kind == KindOrderCreationFailed || e.Kind == KindPaymentDeclined) {
		return base + " " + e.Reason
	}
	if e.Message != "" && (e.Kind == KindStepIncomplete || e.Kind == KindIncompleteCheckout) {
		return base + " " + e.Message
	}
	return base
}

// New builds a CheckoutError of the given kind.
func New(kind Kind, message string) *CheckoutError {
	return &CheckoutError{Kind: kind, Message: message}
}

// Wrap builds a CheckoutError that keeps err as its cause.
func Wrap(kind Kind, message string, err error) *CheckoutError {
	return &CheckoutError{Kind: kind, Message: message, Err: err}
}

// Rejected builds a CheckoutError carrying a collaborator-supplied reason.
func Rejected(kind Kind, reason string) *CheckoutError {
	return &CheckoutError{Kind: kind, Reason: reason}
}

// KindOf extracts the Kind from err, or "" when err is not a CheckoutError.
func KindOf(err error) Kind {
	var ce *CheckoutError
	if stderrors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Is reports whether err is a CheckoutError of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// AsCheckout extracts the CheckoutError from err.
func AsCheckout(err error) (*CheckoutError, bool) {
	var ce *CheckoutError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
