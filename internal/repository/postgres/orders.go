package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/pkg/errors"
)

const orderColumns = `
	id, client_id, idempotency_key, status, customer_id, contact_email, contact_name, contact_phone,
	shipping_address, billing_address, shipping_method, payment_ref, saved_card_id,
	coupon_code, currency, subtotal, tax, shipping, discount, total, created_at, updated_at
`

type orderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB, logger *zap.Logger) *orderRepository {
	return &orderRepository{db: db, logger: logger}
}

func (r *orderRepository) CreateWithItems(ctx context.Context, order *domain.Order, items []*domain.OrderItem) (bool, error) {
	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return false, fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	billing, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return false, fmt.Errorf("failed to marshal billing address: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	err = tx.QueryRowContext(ctx, query,
		order.ID,
		uuid.NullUUID{UUID: order.ClientID, Valid: order.ClientID != uuid.Nil},
		order.IdempotencyKey,
		order.Status,
		nullString(order.CustomerID),
		order.ContactEmail,
		order.ContactName,
		order.ContactPhone,
		string(shipping),
		string(billing),
		order.ShippingMethod,
		order.PaymentRef,
		nullString(order.SavedCardID),
		nullString(order.CouponCode),
		order.Currency,
		order.Subtotal,
		order.Tax,
		order.Shipping,
		order.Discount,
		order.Total,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&id)
	if err == sql.ErrNoRows {
		// another submission with this key won
		tx.Rollback()
		existing, err := r.GetByIdempotencyKey(ctx, order.IdempotencyKey)
		if err != nil {
			return false, err
		}
		*order = *existing
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to create order", zap.Error(err))
		return false, err
	}

	if err := insertItems(ctx, tx, order.ID, items, now); err != nil {
		r.logger.Error("Failed to create order items", zap.Error(err))
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, items []*domain.OrderItem, now time.Time) error {
	if len(items) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items)*7)
	for i, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = orderID
		item.CreatedAt = now

		n := i * 7
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		args = append(args, item.ID, item.OrderID, item.ProductID, item.Name, item.UnitPrice, item.Quantity, item.CreatedAt)
	}

	query := `
		INSERT INTO order_items (id, order_id, product_id, name, unit_price, quantity, created_at)
		VALUES ` + strings.Join(placeholders, ", ")
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get order by ID", zap.Error(err))
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "order", ID: key}
	}
	if err != nil {
		r.logger.Error("Failed to get order by idempotency key", zap.Error(err))
		return nil, err
	}
	return order, nil
}

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var order domain.Order
	var clientID uuid.NullUUID
	var customerID, savedCardID, couponCode sql.NullString
	var shipping, billing []byte

	err := row.Scan(
		&order.ID,
		&clientID,
		&order.IdempotencyKey,
		&order.Status,
		&customerID,
		&order.ContactEmail,
		&order.ContactName,
		&order.ContactPhone,
		&shipping,
		&billing,
		&order.ShippingMethod,
		&order.PaymentRef,
		&savedCardID,
		&couponCode,
		&order.Currency,
		&order.Subtotal,
		&order.Tax,
		&order.Shipping,
		&order.Discount,
		&order.Total,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.ClientID = clientID.UUID
	order.CustomerID = customerID.String
	order.SavedCardID = savedCardID.String
	order.CouponCode = couponCode.String
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
		}
	}
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &order.BillingAddress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal billing address: %w", err)
		}
	}
	return &order, nil
}

type orderItemRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderItemRepository creates a new order item repository
func NewOrderItemRepository(db *sql.DB, logger *zap.Logger) *orderItemRepository {
	return &orderItemRepository{db: db, logger: logger}
}

func (r *orderItemRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, name, unit_price, quantity, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, product_id
	`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to query order items", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var items []*domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

type orderEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderEventRepository creates a new order event repository
func NewOrderEventRepository(db *sql.DB, logger *zap.Logger) *orderEventRepository {
	return &orderEventRepository{db: db, logger: logger}
}

func (r *orderEventRepository) Create(ctx context.Context, event *domain.OrderEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO order_events (id, order_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, event.ID, event.OrderID, event.EventType, string(data), event.CreatedAt); err != nil {
		r.logger.Error("Failed to create order event", zap.Error(err))
		return err
	}
	return nil
}

func (r *orderEventRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderEvent, error) {
	query := `
		SELECT id, order_id, event_type, event_data, created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.OrderEvent
	for rows.Next() {
		var event domain.OrderEvent
		var data []byte
		if err := rows.Scan(&event.ID, &event.OrderID, &event.EventType, &data, &event.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &event.EventData); err != nil {
				return nil, err
			}
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
