package domain

// Step identifies a checkout step
type Step string

const (
	StepGuestInfo       Step = "guest-info"
	StepShippingAddress Step = "shipping-address"
	StepShippingMethod  Step = "shipping-method"
	StepPayment         Step = "payment"
	StepReview          Step = "review"
)

func (s Step) String() string {
	return string(s)
}

// IsValid checks if the step is one of the defined checkout steps
func (s Step) IsValid() bool {
	switch s {
	case StepGuestInfo,
		StepShippingAddress,
		StepShippingMethod,
		StepPayment,
		StepReview:
		return true
	default:
		return false
	}
}

// DiscountType is how a coupon's value is interpreted by the coupon service
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// IsValid checks if the discount type is known
func (t DiscountType) IsValid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

// ShippingMethodID identifies a shipping tier
type ShippingMethodID string

const (
	ShippingMethodStandard ShippingMethodID = "standard"
	ShippingMethodExpress  ShippingMethodID = "express"
)

// IsValid checks if the shipping method is known
func (id ShippingMethodID) IsValid() bool {
	return id == ShippingMethodStandard || id == ShippingMethodExpress
}

// OrderStatus represents the status of a placed order
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "PLACED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusCancelled:
		return true
	default:
		return false
	}
}
