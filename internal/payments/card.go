package payments

import (
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
)

var brandNames = map[string]string{
	"amex":       "American Express",
	"diners":     "Diners Club",
	"discover":   "Discover",
	"eftpos_au":  "eftpos",
	"jcb":        "JCB",
	"mastercard": "Mastercard",
	"unionpay":   "UnionPay",
	"visa":       "Visa",
}

// MaskCardNumber renders the last four digits only
func MaskCardNumber(last4 string) string {
	last4 = strings.TrimSpace(last4)
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	return "**** **** **** " + last4
}

// ExpiryDisplay formats a card expiry as MM/YY
func ExpiryDisplay(month, year int64) string {
	if month < 1 || month > 12 || year <= 0 {
		return ""
	}
	return fmt.Sprintf("%02d/%02d", month, year%100)
}

// CardTypeName maps a gateway brand code to a display name
func CardTypeName(brand string) string {
	brand = strings.ToLower(strings.TrimSpace(brand))
	if name, ok := brandNames[brand]; ok {
		return name
	}
	if brand == "" || brand == "unknown" {
		return "Card"
	}
	return strings.ToUpper(brand[:1]) + brand[1:]
}

func cardDetails(pm *stripe.PaymentMethod) (brand, last4 string, expMonth, expYear int64, holder string) {
	if pm == nil {
		return "", "", 0, 0, ""
	}
	if pm.BillingDetails != nil {
		holder = pm.BillingDetails.Name
	}
	if pm.Card == nil {
		return "", "", 0, 0, holder
	}
	return string(pm.Card.Brand), pm.Card.Last4, pm.Card.ExpMonth, pm.Card.ExpYear, holder
}

// IntentIDFromClientSecret extracts "pi_123" from "pi_123_secret_abc"
func IntentIDFromClientSecret(secret string) (string, bool) {
	secret = strings.TrimSpace(secret)
	idx := strings.Index(secret, "_secret_")
	if idx <= 0 || !strings.HasPrefix(secret, "pi_") {
		return "", false
	}
	return secret[:idx], true
}
