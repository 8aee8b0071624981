package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/config"
	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/pricing"
	"github.com/jafarshop/checkoutapi/internal/service"
	"github.com/jafarshop/checkoutapi/internal/storeapi"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run cmd/price-quote/main.go <standard|express|none> <price>x<qty> [<price>x<qty> ...]")
		fmt.Println("Example: go run cmd/price-quote/main.go standard 25.00x2 9.99x1")
		os.Exit(1)
	}

	lines, err := parseLines(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid line: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	client := storeapi.NewClient(cfg.StoreAPI, logger)
	settings := service.NewSettingsProvider(client, cfg.Checkout.SettingsTTL, cfg.Checkout.SettingsTimeout, logger)

	ctx := context.Background()
	shipping := settings.ShippingSettings(ctx)

	var method *domain.ShippingMethod
	if id := domain.ShippingMethodID(strings.ToLower(os.Args[1])); id != "none" {
		m, ok := pricing.FindMethod(shipping, id)
		if !ok {
			fmt.Fprintf(os.Stderr, "Shipping method %q is not available\n", id)
			os.Exit(1)
		}
		method = &m
	}

	b, err := pricing.Calculate(pricing.Input{
		Lines:          lines,
		ShippingMethod: method,
		Tax:            settings.TaxSettings(ctx),
		Shipping:       shipping,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to price cart: %v\n", err)
		os.Exit(1)
	}

	currency := cfg.Checkout.Currency
	fmt.Printf("Cart total:        %s %s\n", pricing.Display(b.CartTotal), currency)
	fmt.Printf("Subtotal ex. VAT:  %s %s\n", pricing.Display(b.SubtotalExVAT), currency)
	fmt.Printf("VAT (%s%%):        %s %s\n", b.TaxRate.Mul(decimal.NewFromInt(100)).String(), pricing.Display(b.Tax), currency)
	if b.FreeShippingApplied {
		fmt.Printf("Shipping:          free\n")
	} else {
		fmt.Printf("Shipping:          %s %s\n", pricing.Display(b.ShippingCost), currency)
	}
	fmt.Printf("Total:             %s %s (%d minor units)\n", pricing.Display(b.Total), currency, pricing.MinorUnits(b.Total))
}

// parseLines reads "<price>x<qty>" arguments
func parseLines(args []string) ([]domain.CartLine, error) {
	lines := make([]domain.CartLine, 0, len(args))
	for i, arg := range args {
		priceStr, qtyStr, ok := strings.Cut(strings.ToLower(arg), "x")
		if !ok {
			qtyStr = "1"
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		qty, err := strconv.Atoi(qtyStr)
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("%s: quantity must be a positive integer", arg)
		}
		lines = append(lines, domain.CartLine{
			ProductID: fmt.Sprintf("line-%d", i+1),
			Name:      arg,
			UnitPrice: price,
			Quantity:  qty,
		})
	}
	return lines, nil
}
