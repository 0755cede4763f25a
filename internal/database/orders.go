package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getNextOrderNumber = `
SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS INTEGER)), 0) + 1
FROM orders
`

// GetNextOrderNumber returns the next sequence number for order numbers.
func (q *Queries) GetNextOrderNumber(ctx context.Context) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextOrderNumber).Scan(&n)
	return n, err
}

const createOrder = `
INSERT INTO orders (order_number, user_id, status_id, payment_method, shipping_address, phone, notes, subtotal, total_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, order_number, user_id, status_id, payment_method, shipping_address, phone, notes,
          subtotal, total_amount, processed_by, created_at, updated_at
`

type CreateOrderParams struct {
	OrderNumber     string
	UserID          uuid.UUID
	StatusID        int32
	PaymentMethod   pgtype.Text
	ShippingAddress pgtype.Text
	Phone           pgtype.Text
	Notes           pgtype.Text
	Subtotal        pgtype.Numeric
	TotalAmount     pgtype.Numeric
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber, arg.UserID, arg.StatusID, arg.PaymentMethod, arg.ShippingAddress,
		arg.Phone, arg.Notes, arg.Subtotal, arg.TotalAmount)
	return scanOrder(row)
}

const createOrderItem = `
INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, product_id, quantity, unit_price, subtotal
`

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	UnitPrice pgtype.Numeric
	Subtotal  pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.ProductID, arg.Quantity, arg.UnitPrice, arg.Subtotal)
	var oi OrderItem
	err := row.Scan(&oi.ID, &oi.OrderID, &oi.ProductID, &oi.Quantity, &oi.UnitPrice, &oi.Subtotal)
	return oi, err
}

const getOrder = `
SELECT id, order_number, user_id, status_id, payment_method, shipping_address, phone, notes,
       subtotal, total_amount, processed_by, created_at, updated_at
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `
SELECT id, order_number, user_id, status_id, payment_method, shipping_address, phone, notes,
       subtotal, total_amount, processed_by, created_at, updated_at
FROM orders
WHERE id = $1
FOR UPDATE
`

// GetOrderForUpdate locks the order row so the read-status-then-write-status
// sequence is serialized per order.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrders = `
SELECT id, order_number, user_id, status_id, payment_method, shipping_address, phone, notes,
       subtotal, total_amount, processed_by, created_at, updated_at
FROM orders
WHERE ($1::uuid IS NULL OR user_id = $1)
  AND ($2::int IS NULL OR status_id = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`

type ListOrdersParams struct {
	UserID   pgtype.UUID
	StatusID pgtype.Int4
	Limit    int32
	Offset   int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.UserID, arg.StatusID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.StatusID, &o.PaymentMethod,
			&o.ShippingAddress, &o.Phone, &o.Notes, &o.Subtotal, &o.TotalAmount,
			&o.ProcessedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const listOrderItemsByOrder = `
SELECT id, order_id, product_id, quantity, unit_price, subtotal
FROM order_items
WHERE order_id = $1
ORDER BY id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var oi OrderItem
		if err := rows.Scan(&oi.ID, &oi.OrderID, &oi.ProductID, &oi.Quantity, &oi.UnitPrice, &oi.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, oi)
	}
	return items, rows.Err()
}

const updateOrderStatus = `
UPDATE orders
SET status_id = $2, processed_by = $3, updated_at = NOW()
WHERE id = $1 AND status_id = $4
RETURNING id, order_number, user_id, status_id, payment_method, shipping_address, phone, notes,
          subtotal, total_amount, processed_by, created_at, updated_at
`

type UpdateOrderStatusParams struct {
	ID             uuid.UUID
	StatusID       int32
	ProcessedBy    pgtype.UUID
	ExpectedStatus int32
}

// UpdateOrderStatus writes the new status only when the current status still
// matches the one the caller decided against. pgx.ErrNoRows means the read was
// stale.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.StatusID, arg.ProcessedBy, arg.ExpectedStatus)
	return scanOrder(row)
}

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.StatusID, &o.PaymentMethod,
		&o.ShippingAddress, &o.Phone, &o.Notes, &o.Subtotal, &o.TotalAmount,
		&o.ProcessedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}
