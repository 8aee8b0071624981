package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/jafarshop/checkoutapi/internal/domain"
)

// ClientRepository stores storefront API clients
type ClientRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.StorefrontClient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StorefrontClient, error)
	Create(ctx context.Context, client *domain.StorefrontClient) error
	Update(ctx context.Context, client *domain.StorefrontClient) error
}

// OrderRepository stores placed orders
type OrderRepository interface {
	// CreateWithItems inserts the order and its items atomically. When an
	// order with the same idempotency key exists, order is filled from it
	// and created is false.
	CreateWithItems(ctx context.Context, order *domain.Order, items []*domain.OrderItem) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
}

// OrderItemRepository reads order line snapshots
type OrderItemRepository interface {
	GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderItem, error)
}

// OrderEventRepository records order audit events
type OrderEventRepository interface {
	Create(ctx context.Context, event *domain.OrderEvent) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderEvent, error)
}

// IdempotencyKeyRepository maps client idempotency keys to orders
type IdempotencyKeyRepository interface {
	Get(ctx context.Context, clientID uuid.UUID, key string) (*domain.IdempotencyKey, error)
	Create(ctx context.Context, key *domain.IdempotencyKey) error
}

// Repositories holds all repositories
type Repositories struct {
	Client         ClientRepository
	Order          OrderRepository
	OrderItem      OrderItemRepository
	OrderEvent     OrderEventRepository
	IdempotencyKey IdempotencyKeyRepository
}
