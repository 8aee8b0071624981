package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/checkoutapi/internal/domain"
)

// MoneyPlaces is the number of decimal places money is kept at
const MoneyPlaces = 2

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// TaxSettings mirrors the settings service tax payload
type TaxSettings struct {
	Active         bool   `json:"active"`
	Rate           string `json:"rate"`
	IncludeInPrice bool   `json:"includeInPrice"`
}

// MethodSettings is the price and availability of one shipping tier
type MethodSettings struct {
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

// ThresholdSettings configures the free-shipping promotion
type ThresholdSettings struct {
	Active bool            `json:"active"`
	Price  decimal.Decimal `json:"price"`
}

// ShippingSettings mirrors the settings service shipping payload
type ShippingSettings struct {
	Standard      MethodSettings    `json:"standard"`
	Express       MethodSettings    `json:"express"`
	FreeThreshold ThresholdSettings `json:"freeThreshold"`
}

// DefaultTaxSettings is used when the settings service cannot be reached
func DefaultTaxSettings() TaxSettings {
	return TaxSettings{Active: true, Rate: "21", IncludeInPrice: true}
}

// DefaultShippingSettings is used when the settings service cannot be reached
func DefaultShippingSettings() ShippingSettings {
	return ShippingSettings{
		Standard:      MethodSettings{Price: decimal.RequireFromString("5.99"), Active: true},
		Express:       MethodSettings{Price: decimal.RequireFromString("12.99"), Active: true},
		FreeThreshold: ThresholdSettings{Active: false},
	}
}

// RateFraction converts the percent string into a fraction in [0, 1).
// An inactive tax yields zero.
func (t TaxSettings) RateFraction() (decimal.Decimal, error) {
	if !t.Active {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(t.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q: %w", t.Rate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(hundred) {
		return decimal.Zero, fmt.Errorf("tax rate %s out of range", rate)
	}
	return rate.Div(hundred), nil
}

// Input is everything a pricing pass depends on
type Input struct {
	Lines          []domain.CartLine
	ShippingMethod *domain.ShippingMethod
	Tax            TaxSettings
	Shipping       ShippingSettings
	DiscountAmount decimal.Decimal
}

// Breakdown is the derived order total. It is recomputed on every input
// change and never stored on the checkout state.
type Breakdown struct {
	CartTotal           decimal.Decimal   `json:"cart_total"`
	SubtotalExVAT       decimal.Decimal   `json:"subtotal_ex_vat"`
	Tax                 decimal.Decimal   `json:"tax"`
	TaxRate             decimal.Decimal   `json:"tax_rate"`
	ShippingCost        decimal.Decimal   `json:"shipping_cost"`
	FreeShippingApplied bool              `json:"free_shipping_applied"`
	TotalBeforeDiscount decimal.Decimal   `json:"total_before_discount"`
	Discount            decimal.Decimal   `json:"discount"`
	Total               decimal.Decimal   `json:"total"`
	Lines               []domain.CartLine `json:"lines"`
}

// Calculate turns cart lines, shipping choice, settings and discount into a
// breakdown. It has no side effects.
func Calculate(in Input) (Breakdown, error) {
	cartTotal := decimal.Zero
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return Breakdown{}, fmt.Errorf("line %s: quantity must be positive", line.ProductID)
		}
		if line.UnitPrice.IsNegative() {
			return Breakdown{}, fmt.Errorf("line %s: unit price cannot be negative", line.ProductID)
		}
		cartTotal = cartTotal.Add(line.LineTotal())
	}
	cartTotal = cartTotal.Round(MoneyPlaces)

	shippingCost := decimal.Zero
	freeShipping := false
	if in.ShippingMethod != nil {
		shippingCost = in.ShippingMethod.Price
		if qualifiesForFreeShipping(in.ShippingMethod.ID, cartTotal, in.Shipping.FreeThreshold) {
			shippingCost = decimal.Zero
			freeShipping = true
		}
	}

	rate, err := in.Tax.RateFraction()
	if err != nil {
		return Breakdown{}, err
	}
	subtotal := cartTotal
	tax := decimal.Zero
	if rate.IsPositive() {
		subtotal = cartTotal.Div(one.Add(rate)).Round(MoneyPlaces)
		tax = cartTotal.Sub(subtotal)
	}

	before := cartTotal.Add(shippingCost)
	discount := in.DiscountAmount
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(before) {
		discount = before
	}
	total := before.Sub(discount)

	lines := make([]domain.CartLine, len(in.Lines))
	copy(lines, in.Lines)

	return Breakdown{
		CartTotal:           cartTotal,
		SubtotalExVAT:       subtotal,
		Tax:                 tax,
		TaxRate:             rate,
		ShippingCost:        shippingCost,
		FreeShippingApplied: freeShipping,
		TotalBeforeDiscount: before,
		Discount:            discount,
		Total:               total,
		Lines:               lines,
	}, nil
}

// The promotion is restricted to the standard tier; express is always charged.
func qualifiesForFreeShipping(method domain.ShippingMethodID, cartTotal decimal.Decimal, threshold ThresholdSettings) bool {
	return threshold.Active &&
		method == domain.ShippingMethodStandard &&
		cartTotal.GreaterThanOrEqual(threshold.Price)
}

// CartTotal sums VAT-inclusive line totals
func CartTotal(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total.Round(MoneyPlaces)
}

// MinorUnits converts an amount to integer minor units for the gateway
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(MoneyPlaces).Mul(hundred).IntPart()
}

// FromMinorUnits converts gateway minor units back to an amount
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -MoneyPlaces)
}

// Display truncates to two places for presentation
func Display(amount decimal.Decimal) string {
	return amount.Truncate(MoneyPlaces).StringFixed(MoneyPlaces)
}

var methodCatalog = map[domain.ShippingMethodID]domain.ShippingMethod{
	domain.ShippingMethodStandard: {
		ID:                domain.ShippingMethodStandard,
		Name:              "Standard shipping",
		Description:       "Tracked delivery by regular post",
		EstimatedDelivery: "3-5 business days",
	},
	domain.ShippingMethodExpress: {
		ID:                domain.ShippingMethodExpress,
		Name:              "Express shipping",
		Description:       "Priority courier delivery",
		EstimatedDelivery: "1-2 business days",
	},
}

// AvailableMethods lists the active shipping tiers priced from settings.
// Prices are the configured prices before any free-shipping adjustment.
func AvailableMethods(settings ShippingSettings) []domain.ShippingMethod {
	methods := make([]domain.ShippingMethod, 0, 2)
	if settings.Standard.Active {
		m := methodCatalog[domain.ShippingMethodStandard]
		m.Price = settings.Standard.Price
		methods = append(methods, m)
	}
	if settings.Express.Active {
		m := methodCatalog[domain.ShippingMethodExpress]
		m.Price = settings.Express.Price
		methods = append(methods, m)
	}
	return methods
}

// FindMethod returns the active method with the given ID
func FindMethod(settings ShippingSettings, id domain.ShippingMethodID) (domain.ShippingMethod, bool) {
	for _, m := range AvailableMethods(settings) {
		if m.ID == id {
			return m, true
		}
	}
	return domain.ShippingMethod{}, false
}
