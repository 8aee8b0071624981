package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/config"
	"github.com/jafarshop/checkoutapi/internal/domain"
)

// OrderConfirmation is what the buyer is told after a successful order
type OrderConfirmation struct {
	OrderID  string
	Email    string
	Name     string
	Currency string
	Lines    []domain.CartLine
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

type sendFunc func(ctx context.Context, msg *mail.SGMailV3) (status int, body string, err error)

// SendGridNotifier mails order confirmations. Without an API key it only logs.
type SendGridNotifier struct {
	fromAddress string
	fromName    string
	send        sendFunc
	logger      *zap.Logger
}

// NewSendGridNotifier creates a notifier from mail configuration
func NewSendGridNotifier(cfg config.MailConfig, logger *zap.Logger) *SendGridNotifier {
	n := &SendGridNotifier{
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		logger:      logger,
	}
	if key := strings.TrimSpace(cfg.SendGridAPIKey); key != "" {
		client := sendgrid.NewSendClient(key)
		n.send = func(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, msg)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		}
	}
	return n
}

// SendOrderConfirmation sends one confirmation email
func (n *SendGridNotifier) SendOrderConfirmation(ctx context.Context, c OrderConfirmation) error {
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("order %s: no recipient", c.OrderID)
	}
	if n.send == nil {
		n.logger.Info("Mail disabled, skipping order confirmation",
			zap.String("order_id", c.OrderID),
		)
		return nil
	}

	subject := fmt.Sprintf("Order confirmation %s", c.OrderID)
	text, htmlBody := renderConfirmation(c)
	msg := mail.NewSingleEmail(
		mail.NewEmail(n.fromName, n.fromAddress),
		subject,
		mail.NewEmail(c.Name, c.Email),
		text,
		htmlBody,
	)

	status, body, err := n.send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", status, body)
	}

	n.logger.Info("Order confirmation sent",
		zap.String("order_id", c.OrderID),
		zap.Int("status", status),
	)
	return nil
}

func renderConfirmation(c OrderConfirmation) (string, string) {
	var text strings.Builder
	fmt.Fprintf(&text, "Thank you for your order %s.\n\n", c.OrderID)
	for _, line := range c.Lines {
		fmt.Fprintf(&text, "%d x %s  %s %s\n", line.Quantity, line.Name, line.LineTotal().StringFixed(2), c.Currency)
	}
	fmt.Fprintf(&text, "\nShipping: %s %s\n", c.Shipping.StringFixed(2), c.Currency)
	if c.Discount.IsPositive() {
		fmt.Fprintf(&text, "Discount: -%s %s\n", c.Discount.StringFixed(2), c.Currency)
	}
	fmt.Fprintf(&text, "Total: %s %s\n", c.Total.StringFixed(2), c.Currency)

	plain := text.String()
	return plain, "<pre>" + html.EscapeString(plain) + "</pre>"
}
