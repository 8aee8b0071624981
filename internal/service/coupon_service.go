package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/domain"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

// CouponAPI validates a code against a cart total
type CouponAPI interface {
	ApplyCoupon(ctx context.Context, code string, cartTotal decimal.Decimal) (domain.AppliedCoupon, error)
}

const DefaultCouponTimeout = 5 * time.Second

// CouponLedger applies and removes discount codes. The discount amount is
// always the coupon service's figure; it is never recomputed locally.
type CouponLedger struct {
	api     CouponAPI
	timeout time.Duration
	logger  *zap.Logger
}

// NewCouponLedger creates a new coupon ledger
func NewCouponLedger(api CouponAPI, timeout time.Duration, logger *zap.Logger) *CouponLedger {
	if timeout <= 0 {
		timeout = DefaultCouponTimeout
	}
	return &CouponLedger{api: api, timeout: timeout, logger: logger}
}

// Apply validates code for cartTotal. Failures are CouponRejected (with the
// server's reason), TimeoutError or NetworkError.
func (l *CouponLedger) Apply(ctx context.Context, code string, cartTotal decimal.Decimal) (domain.AppliedCoupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.AppliedCoupon{}, apperrors.Rejected(apperrors.KindCouponRejected, "code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	applied, err := l.api.ApplyCoupon(ctx, code, cartTotal)
	if err != nil {
		if _, ok := apperrors.AsCheckout(err); !ok {
			if ctx.Err() != nil {
				err = apperrors.Wrap(apperrors.KindTimeoutError, "coupon apply", err)
			} else {
				err = apperrors.Wrap(apperrors.KindNetworkError, "coupon apply", err)
			}
		}
		l.logger.Info("Coupon not applied",
			zap.String("code", code),
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.Error(err),
		)
		return domain.AppliedCoupon{}, err
	}

	if applied.DiscountAmount.IsNegative() {
		return domain.AppliedCoupon{}, apperrors.Rejected(apperrors.KindCouponRejected, "invalid discount amount")
	}
	applied.CartTotal = cartTotal
	return applied, nil
}

// Remove clears the coupon from state. It cannot fail.
func (l *CouponLedger) Remove(state *domain.CheckoutState) {
	state.ClearCoupon()
}
