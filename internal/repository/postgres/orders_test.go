package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/internal/domain"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

const (
	insertOrderSQL = `INSERT INTO orders .* ON CONFLICT \(idempotency_key\) DO NOTHING RETURNING id`
	insertItemsSQL = `INSERT INTO order_items \(id, order_id, product_id, name, unit_price, quantity, created_at\) VALUES`
	orderByKeySQL  = `SELECT .* FROM orders WHERE idempotency_key = \$1`
)

var orderRowColumns = []string{
	"id", "client_id", "idempotency_key", "status", "customer_id", "contact_email", "contact_name", "contact_phone",
	"shipping_address", "billing_address", "shipping_method", "payment_ref", "saved_card_id",
	"coupon_code", "currency", "subtotal", "tax", "shipping", "discount", "total", "created_at", "updated_at",
}

func newMock(t *testing.T) (*orderRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewOrderRepository(db, zap.NewNop()), mock
}

func sampleOrder(key string) (*domain.Order, []*domain.OrderItem) {
	order := &domain.Order{
		ClientID:        uuid.New(),
		IdempotencyKey:  key,
		Status:          domain.OrderStatusPlaced,
		ContactEmail:    "ana@example.com",
		ShippingAddress: domain.ShippingAddress{FullName: "Ana García", City: "Madrid"},
		ShippingMethod:  domain.ShippingMethodStandard,
		PaymentRef:      "pi_1",
		Currency:        "EUR",
		Subtotal:        decimal.RequireFromString("41.32"),
		Tax:             decimal.RequireFromString("8.68"),
		Shipping:        decimal.RequireFromString("5.99"),
		Total:           decimal.RequireFromString("55.99"),
	}
	items := []*domain.OrderItem{
		{ProductID: "p-1", Name: "Mug", UnitPrice: decimal.RequireFromString("25.00"), Quantity: 2},
	}
	return order, items
}

// insertArgs matches the order insert, pinning only the idempotency key
func insertArgs(key string) []driver.Value {
	args := make([]driver.Value, len(orderRowColumns))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[2] = key
	return args
}

func TestCreateWithItemsInsertsOrderAndItems(t *testing.T) {
	repo, mock := newMock(t)
	order, items := sampleOrder("key-1")

	mock.ExpectBegin()
	mock.ExpectQuery(insertOrderSQL).
		WithArgs(insertArgs("key-1")...).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))
	mock.ExpectExec(insertItemsSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.CreateWithItems(context.Background(), order, items)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, order.ID)
	assert.Equal(t, order.ID, items[0].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithItemsReturnsExistingOrderOnKeyConflict(t *testing.T) {
	repo, mock := newMock(t)
	order, items := sampleOrder("key-1")

	existingID := uuid.New()
	clientID := uuid.New()
	createdAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(insertOrderSQL).
		WithArgs(insertArgs("key-1")...).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()
	mock.ExpectQuery(orderByKeySQL).
		WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows(orderRowColumns).AddRow(
			existingID.String(), clientID.String(), "key-1", "PLACED", nil, "ana@example.com", "Ana García", "",
			[]byte(`{"full_name":"Ana García","city":"Madrid"}`), []byte(`{}`), "standard", "pi_1", nil,
			"SAVE10", "EUR", "41.32", "8.68", "5.99", "10.00", "45.99", createdAt, createdAt,
		))

	created, err := repo.CreateWithItems(context.Background(), order, items)
	require.NoError(t, err)
	assert.False(t, created, "a second insert with the same key creates nothing")
	assert.Equal(t, existingID, order.ID)
	assert.Equal(t, clientID, order.ClientID)
	assert.Equal(t, "SAVE10", order.CouponCode)
	assert.Equal(t, "45.99", order.Total.StringFixed(2))
	assert.Equal(t, "Madrid", order.ShippingAddress.City)
	assert.NoError(t, mock.ExpectationsWereMet(), "no items are written for the losing insert")
}

func TestCreateWithItemsRollsBackWhenItemsFail(t *testing.T) {
	repo, mock := newMock(t)
	order, items := sampleOrder("key-2")

	mock.ExpectBegin()
	mock.ExpectQuery(insertOrderSQL).
		WithArgs(insertArgs("key-2")...).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))
	mock.ExpectExec(insertItemsSQL).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	created, err := repo.CreateWithItems(context.Background(), order, items)
	require.Error(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIdempotencyKeyNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(orderByKeySQL).WithArgs("missing").WillReturnRows(sqlmock.NewRows(orderRowColumns))

	_, err := repo.GetByIdempotencyKey(context.Background(), "missing")
	var notFound *apperrors.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyKeyCreateIgnoresDuplicates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewIdempotencyKeyRepository(db, zap.NewNop())

	key := &domain.IdempotencyKey{Key: "key-1", ClientID: uuid.New(), OrderRef: "ord-1", RequestHash: "abc", Response: []byte(`{}`)}
	mock.ExpectExec(`INSERT INTO idempotency_keys`).WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectExec(`INSERT INTO idempotency_keys`).WillReturnError(errors.New("connection reset"))

	assert.NoError(t, repo.Create(context.Background(), key))
	assert.Error(t, repo.Create(context.Background(), key))
	assert.NoError(t, mock.ExpectationsWereMet())
}
