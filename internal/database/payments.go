package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createPayment = `
INSERT INTO payments (order_id, payment_method, amount, status, reference_number, processed_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, payment_method, amount, status, reference_number, processed_by, processed_at
`

type CreatePaymentParams struct {
	OrderID         uuid.UUID
	PaymentMethod   string
	Amount          pgtype.Numeric
	Status          string
	ReferenceNumber pgtype.Text
	ProcessedBy     pgtype.UUID
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment,
		arg.OrderID, arg.PaymentMethod, arg.Amount, arg.Status, arg.ReferenceNumber, arg.ProcessedBy)
	return scanPayment(row)
}

const listPaymentsByOrder = `
SELECT id, order_id, payment_method, amount, status, reference_number, processed_by, processed_at
FROM payments
WHERE order_id = $1
ORDER BY processed_at
`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.PaymentMethod, &p.Amount, &p.Status,
			&p.ReferenceNumber, &p.ProcessedBy, &p.ProcessedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// The dominant payment is the latest COMPLETED one if any, otherwise the
// latest record of any status.
const getDominantPayment = `
SELECT id, order_id, payment_method, amount, status, reference_number, processed_by, processed_at
FROM payments
WHERE order_id = $1
ORDER BY (status = 'COMPLETED') DESC, processed_at DESC
LIMIT 1
`

func (q *Queries) GetDominantPayment(ctx context.Context, orderID uuid.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getDominantPayment, orderID))
}

const markPaymentCompleted = `
UPDATE payments
SET status = 'COMPLETED', processed_by = $2, processed_at = NOW()
WHERE id = $1 AND status = 'PENDING'
RETURNING id, order_id, payment_method, amount, status, reference_number, processed_by, processed_at
`

type MarkPaymentCompletedParams struct {
	ID          uuid.UUID
	ProcessedBy pgtype.UUID
}

func (q *Queries) MarkPaymentCompleted(ctx context.Context, arg MarkPaymentCompletedParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, markPaymentCompleted, arg.ID, arg.ProcessedBy))
}

func scanPayment(row interface{ Scan(dest ...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.PaymentMethod, &p.Amount, &p.Status,
		&p.ReferenceNumber, &p.ProcessedBy, &p.ProcessedAt)
	return p, err
}
