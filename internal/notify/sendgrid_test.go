package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/config"
	"github.com/jafarshop/checkoutapi/internal/domain"
)

func confirmation() OrderConfirmation {
	return OrderConfirmation{
		OrderID:  "ord-1",
		Email:    "ana@example.com",
		Name:     "Ana",
		Currency: "EUR",
		Lines:    []domain.CartLine{{Name: "Mug <blue>", UnitPrice: decimal.RequireFromString("25.00"), Quantity: 2}},
		Shipping: decimal.RequireFromString("5.99"),
		Discount: decimal.RequireFromString("10.00"),
		Total:    decimal.RequireFromString("95.99"),
	}
}

func TestSendOrderConfirmation(t *testing.T) {
	n := NewSendGridNotifier(config.MailConfig{FromAddress: "orders@shop.test", FromName: "Shop"}, zap.NewNop())

	var sent *mail.SGMailV3
	n.send = func(_ context.Context, msg *mail.SGMailV3) (int, string, error) {
		sent = msg
		return 202, "", nil
	}

	require.NoError(t, n.SendOrderConfirmation(context.Background(), confirmation()))
	require.NotNil(t, sent)
	assert.Equal(t, "orders@shop.test", sent.From.Address)
	assert.Equal(t, "Order confirmation ord-1", sent.Subject)
	require.Len(t, sent.Personalizations, 1)
	assert.Equal(t, "ana@example.com", sent.Personalizations[0].To[0].Address)

	require.Len(t, sent.Content, 2)
	assert.Contains(t, sent.Content[0].Value, "2 x Mug <blue>  50.00 EUR")
	assert.Contains(t, sent.Content[0].Value, "Discount: -10.00 EUR")
	assert.Contains(t, sent.Content[1].Value, "Mug &lt;blue&gt;")
}

func TestSendOrderConfirmationFailures(t *testing.T) {
	n := NewSendGridNotifier(config.MailConfig{}, zap.NewNop())
	n.send = func(context.Context, *mail.SGMailV3) (int, string, error) {
		return 401, `{"errors":[{"message":"bad key"}]}`, nil
	}
	assert.Error(t, n.SendOrderConfirmation(context.Background(), confirmation()))

	n.send = func(context.Context, *mail.SGMailV3) (int, string, error) {
		return 0, "", errors.New("dial tcp")
	}
	assert.Error(t, n.SendOrderConfirmation(context.Background(), confirmation()))

	noRecipient := confirmation()
	noRecipient.Email = ""
	assert.Error(t, n.SendOrderConfirmation(context.Background(), noRecipient))
}

func TestDisabledNotifierIsNoop(t *testing.T) {
	n := NewSendGridNotifier(config.MailConfig{}, zap.NewNop())
	assert.NoError(t, n.SendOrderConfirmation(context.Background(), confirmation()))
}
