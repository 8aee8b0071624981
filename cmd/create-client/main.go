package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/checkoutapi/internal/config"
	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/repository/postgres"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/create-client/main.go <client-name> [api-key]")
		fmt.Println("Example: go run cmd/create-client/main.go \"Web storefront\"")
		os.Exit(1)
	}

	clientName := os.Args[1]
	apiKey := ""
	if len(os.Args) > 2 {
		apiKey = strings.TrimSpace(os.Args[2])
	}
	if apiKey == "" {
		apiKey = generateAPIKey()
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

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Hash the API key
	apiKeyHash, err := bcrypt.GenerateFromPassword([]byte(apiKey), 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash API key: %v\n", err)
		os.Exit(1)
	}

	repos := postgres.NewRepositories(db, logger)

	client := &domain.StorefrontClient{
		Name:         clientName,
		APIKeyPrefix: postgres.KeyPrefix(apiKey),
		APIKeyHash:   string(apiKeyHash),
		IsActive:     true,
	}

	if err := repos.Client.Create(context.Background(), client); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Storefront client created\n\n")
	fmt.Printf("Client ID: %s\n", client.ID.String())
	fmt.Printf("Client Name: %s\n", client.Name)
	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("\nIMPORTANT: Save this API key securely. It cannot be shown again.\n")
	fmt.Printf("\nUse this API key in the Authorization header:\n")
	fmt.Printf("Authorization: Bearer %s\n", apiKey)
}

// generateAPIKey builds a key from two random UUIDs
func generateAPIKey() string {
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	return "sk_" + raw
}
