package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/pkg/errors"
)

// APIKeyPrefixLen is how many leading key characters are stored in clear for lookup
const APIKeyPrefixLen = 8

type clientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClientRepository creates a new storefront client repository
func NewClientRepository(db *sql.DB, logger *zap.Logger) *clientRepository {
	return &clientRepository{
		db:     db,
		logger: logger,
	}
}

// KeyPrefix returns the lookup prefix stored next to the bcrypt hash
func KeyPrefix(apiKey string) string {
	if len(apiKey) <= APIKeyPrefixLen {
		return apiKey
	}
	return apiKey[:APIKeyPrefixLen]
}

func (r *clientRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.StorefrontClient, error) {
	// bcrypt hashes are salted, so candidates are narrowed by prefix and
	// then verified one by one.
	query := `
		SELECT id, name, api_key_hash, is_active, created_at, updated_at
		FROM storefront_clients
		WHERE is_active = true AND api_key_prefix = $1
	`

	rows, err := r.db.QueryContext(ctx, query, KeyPrefix(apiKey))
	if err != nil {
		r.logger.Error("Failed to query storefront clients", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var client domain.StorefrontClient
		if err := rows.Scan(
			&client.ID,
			&client.Name,
			&client.APIKeyHash,
			&client.IsActive,
			&client.CreatedAt,
			&client.UpdatedAt,
		); err != nil {
			r.logger.Warn("Failed to scan storefront client", zap.Error(err))
			continue
		}

		if bcrypt.CompareHashAndPassword([]byte(client.APIKeyHash), []byte(apiKey)) == nil {
			return &client, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *clientRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.StorefrontClient, error) {
	query := `
		SELECT id, name, api_key_hash, is_active, created_at, updated_at
		FROM storefront_clients
		WHERE id = $1
	`

	var client domain.StorefrontClient
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&client.ID,
		&client.Name,
		&client.APIKeyHash,
		&client.IsActive,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "storefront client", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get storefront client by ID", zap.Error(err))
		return nil, err
	}

	return &client, nil
}

// Create expects APIKeyPrefix to be derived by the caller from the clear key
func (r *clientRepository) Create(ctx context.Context, client *domain.StorefrontClient) error {
	query := `
		INSERT INTO storefront_clients (id, name, api_key_prefix, api_key_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now()
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	if client.UpdatedAt.IsZero() {
		client.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		client.APIKeyPrefix,
		client.APIKeyHash,
		client.IsActive,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create storefront client", zap.Error(err))
		return err
	}

	return nil
}

func (r *clientRepository) Update(ctx context.Context, client *domain.StorefrontClient) error {
	query := `
		UPDATE storefront_clients
		SET name = $2, api_key_prefix = $3, api_key_hash = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`

	client.UpdatedAt = time.Now()

	res, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		client.APIKeyPrefix,
		client.APIKeyHash,
		client.IsActive,
		client.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update storefront client", zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &errors.ErrNotFound{Resource: "storefront client", ID: client.ID.String()}
	}

	return nil
}
