package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createInventoryAdjustment = `
INSERT INTO inventory_adjustments (product_id, delta, reason, note, created_by)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, product_id, delta, reason, note, created_by, created_at
`

type CreateInventoryAdjustmentParams struct {
	ProductID uuid.UUID
	Delta     int32
	Reason    string
	Note      pgtype.Text
	CreatedBy uuid.UUID
}

func (q *Queries) CreateInventoryAdjustment(ctx context.Context, arg CreateInventoryAdjustmentParams) (InventoryAdjustment, error) {
	row := q.db.QueryRow(ctx, createInventoryAdjustment,
		arg.ProductID, arg.Delta, arg.Reason, arg.Note, arg.CreatedBy)
	var ia InventoryAdjustment
	err := row.Scan(&ia.ID, &ia.ProductID, &ia.Delta, &ia.Reason, &ia.Note, &ia.CreatedBy, &ia.CreatedAt)
	return ia, err
}

const listAdjustmentsByProduct = `
SELECT id, product_id, delta, reason, note, created_by, created_at
FROM inventory_adjustments
WHERE product_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

type ListAdjustmentsByProductParams struct {
	ProductID uuid.UUID
	Limit     int32
	Offset    int32
}

func (q *Queries) ListAdjustmentsByProduct(ctx context.Context, arg ListAdjustmentsByProductParams) ([]InventoryAdjustment, error) {
	rows, err := q.db.Query(ctx, listAdjustmentsByProduct, arg.ProductID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InventoryAdjustment
	for rows.Next() {
		var ia InventoryAdjustment
		if err := rows.Scan(&ia.ID, &ia.ProductID, &ia.Delta, &ia.Reason, &ia.Note, &ia.CreatedBy, &ia.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, ia)
	}
	return items, rows.Err()
}
