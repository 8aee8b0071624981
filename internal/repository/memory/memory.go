// Package memory keeps repositories in process memory. It backs the test
// suites and the server's ORDER_STORE=memory development mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/repository"
	"github.com/jafarshop/checkoutapi/pkg/errors"
)

// NewRepositories returns a fresh, empty set of in-memory repositories
func NewRepositories() *repository.Repositories {
	orders := &orderRepository{
		byID:  make(map[uuid.UUID]*domain.Order),
		byKey: make(map[string]uuid.UUID),
		items: make(map[uuid.UUID][]*domain.OrderItem),
	}
	return &repository.Repositories{
		Client:         &clientRepository{clients: make(map[uuid.UUID]*domain.StorefrontClient)},
		Order:          orders,
		OrderItem:      orders,
		OrderEvent:     &orderEventRepository{events: make(map[uuid.UUID][]*domain.OrderEvent)},
		IdempotencyKey: &idempotencyKeyRepository{keys: make(map[string]*domain.IdempotencyKey)},
	}
}

type clientRepository struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*domain.StorefrontClient
}

func (r *clientRepository) GetByAPIKey(_ context.Context, apiKey string) (*domain.StorefrontClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if !c.IsActive {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(c.APIKeyHash), []byte(apiKey)) == nil {
			cp := *c
			return &cp, nil
		}
	}
	return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *clientRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.StorefrontClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "storefront client", ID: id.String()}
	}
	cp := *c
	return &cp, nil
}

func (r *clientRepository) Create(_ context.Context, client *domain.StorefrontClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	cp := *client
	r.clients[client.ID] = &cp
	return nil
}

func (r *clientRepository) Update(_ context.Context, client *domain.StorefrontClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client.ID]; !ok {
		return &errors.ErrNotFound{Resource: "storefront client", ID: client.ID.String()}
	}
	client.UpdatedAt = time.Now()
	cp := *client
	r.clients[client.ID] = &cp
	return nil
}

type orderRepository struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*domain.Order
	byKey map[string]uuid.UUID
	items map[uuid.UUID][]*domain.OrderItem
}

func (r *orderRepository) CreateWithItems(_ context.Context, order *domain.Order, items []*domain.OrderItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[order.IdempotencyKey]; ok {
		*order = *r.byID[id]
		return false, nil
	}

	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	stored := make([]*domain.OrderItem, 0, len(items))
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = order.ID
		item.CreatedAt = now
		cp := *item
		stored = append(stored, &cp)
	}

	cp := *order
	r.byID[order.ID] = &cp
	r.byKey[order.IdempotencyKey] = order.ID
	r.items[order.ID] = stored
	return true, nil
}

func (r *orderRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	cp := *o
	return &cp, nil
}

func (r *orderRepository) GetByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "order", ID: key}
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *orderRepository) GetByOrderID(_ context.Context, orderID uuid.UUID) ([]*domain.OrderItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := r.items[orderID]
	out := make([]*domain.OrderItem, 0, len(items))
	for _, item := range items {
		cp := *item
		out = append(out, &cp)
	}
	return out, nil
}

// Count returns the number of stored orders
func (r *orderRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

type orderEventRepository struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]*domain.OrderEvent
}

func (r *orderEventRepository) Create(_ context.Context, event *domain.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	cp := *event
	r.events[event.OrderID] = append(r.events[event.OrderID], &cp)
	return nil
}

func (r *orderEventRepository) GetByOrderID(_ context.Context, orderID uuid.UUID) ([]*domain.OrderEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := append([]*domain.OrderEvent(nil), r.events[orderID]...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

type idempotencyKeyRepository struct {
	mu   sync.RWMutex
	keys map[string]*domain.IdempotencyKey
}

func idempotencyMapKey(clientID uuid.UUID, key string) string {
	return clientID.String() + "|" + strings.TrimSpace(key)
}

func (r *idempotencyKeyRepository) Get(_ context.Context, clientID uuid.UUID, key string) (*domain.IdempotencyKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[idempotencyMapKey(clientID, key)]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
	}
	cp := *k
	return &cp, nil
}

func (r *idempotencyKeyRepository) Create(_ context.Context, key *domain.IdempotencyKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mk := idempotencyMapKey(key.ClientID, key.Key)
	if _, exists := r.keys[mk]; exists {
		return nil
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	cp := *key
	r.keys[mk] = &cp
	return nil
}
