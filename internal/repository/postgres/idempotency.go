package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/pkg/errors"
)

type idempotencyKeyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdempotencyKeyRepository creates a new idempotency key repository
func NewIdempotencyKeyRepository(db *sql.DB, logger *zap.Logger) *idempotencyKeyRepository {
	return &idempotencyKeyRepository{db: db, logger: logger}
}

func (r *idempotencyKeyRepository) Get(ctx context.Context, clientID uuid.UUID, key string) (*domain.IdempotencyKey, error) {
	query := `
		SELECT key, client_id, order_ref, request_hash, response, created_at
		FROM idempotency_keys
		WHERE client_id = $1 AND key = $2
	`
	var k domain.IdempotencyKey
	err := r.db.QueryRowContext(ctx, query, clientID, key).Scan(&k.Key, &k.ClientID, &k.OrderRef, &k.RequestHash, &k.Response, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
	}
	if err != nil {
		r.logger.Error("Failed to get idempotency key", zap.Error(err))
		return nil, err
	}
	return &k, nil
}

// Create is a no-op when the key is already stored for the client
func (r *idempotencyKeyRepository) Create(ctx context.Context, key *domain.IdempotencyKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO idempotency_keys (key, client_id, order_ref, request_hash, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, key.Key, key.ClientID, key.OrderRef, key.RequestHash, string(key.Response), key.CreatedAt)
	if err != nil && !isUniqueViolation(err) {
		r.logger.Error("Failed to create idempotency key", zap.Error(err))
		return err
	}
	return nil
}
