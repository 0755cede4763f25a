package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createProduct = `
INSERT INTO products (category_id, name, description, price, image_url, stock)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, category_id, name, description, price, image_url, stock, is_active, created_at, updated_at
`

type CreateProductParams struct {
	CategoryID  uuid.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	ImageUrl    pgtype.Text
	Stock       int32
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct,
		arg.CategoryID, arg.Name, arg.Description, arg.Price, arg.ImageUrl, arg.Stock)
	return scanProduct(row)
}

const getProduct = `
SELECT id, category_id, name, description, price, image_url, stock, is_active, created_at, updated_at
FROM products
WHERE id = $1 AND is_active = TRUE
`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const listProducts = `
SELECT id, category_id, name, description, price, image_url, stock, is_active, created_at, updated_at
FROM products
WHERE is_active = TRUE
  AND ($1::uuid IS NULL OR category_id = $1)
ORDER BY name
LIMIT $2 OFFSET $3
`

type ListProductsParams struct {
	CategoryID pgtype.UUID
	Limit      int32
	Offset     int32
}

func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProducts, arg.CategoryID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price,
			&p.ImageUrl, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const updateProduct = `
UPDATE products
SET category_id = $2, name = $3, description = $4, price = $5, image_url = $6, updated_at = NOW()
WHERE id = $1 AND is_active = TRUE
RETURNING id, category_id, name, description, price, image_url, stock, is_active, created_at, updated_at
`

type UpdateProductParams struct {
	ID          uuid.UUID
	CategoryID  uuid.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	ImageUrl    pgtype.Text
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, updateProduct,
		arg.ID, arg.CategoryID, arg.Name, arg.Description, arg.Price, arg.ImageUrl)
	return scanProduct(row)
}

const softDeleteProduct = `
UPDATE products
SET is_active = FALSE, updated_at = NOW()
WHERE id = $1 AND is_active = TRUE
RETURNING id
`

func (q *Queries) SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var deleted uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteProduct, id).Scan(&deleted)
	return deleted, err
}

// applyStockDeltas applies all deltas in one statement. The stock CHECK
// constraint (stock >= 0) makes any insufficient decrement fail the whole
// statement, so there is never a partial application across products.
const applyStockDeltas = `
UPDATE products p
SET stock = p.stock + d.delta, updated_at = NOW()
FROM (SELECT unnest($1::uuid[]) AS id, unnest($2::int[]) AS delta) d
WHERE p.id = d.id
`

type ApplyStockDeltasParams struct {
	ProductIds []uuid.UUID
	Deltas     []int32
}

// ApplyStockDeltas returns the number of product rows updated. A count lower
// than len(ProductIds) means some product was missing.
func (q *Queries) ApplyStockDeltas(ctx context.Context, arg ApplyStockDeltasParams) (int64, error) {
	tag, err := q.db.Exec(ctx, applyStockDeltas, arg.ProductIds, arg.Deltas)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const getProductStocksForUpdate = `
SELECT id, stock
FROM products
WHERE id = ANY($1::uuid[])
ORDER BY id
FOR UPDATE
`

type ProductStock struct {
	ID    uuid.UUID
	Stock int32
}

// GetProductStocksForUpdate locks the product rows (in a stable order, to
// avoid deadlocks between concurrent confirmations) and returns their current
// stock.
func (q *Queries) GetProductStocksForUpdate(ctx context.Context, ids []uuid.UUID) ([]ProductStock, error) {
	rows, err := q.db.Query(ctx, getProductStocksForUpdate, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ProductStock
	for rows.Next() {
		var ps ProductStock
		if err := rows.Scan(&ps.ID, &ps.Stock); err != nil {
			return nil, err
		}
		items = append(items, ps)
	}
	return items, rows.Err()
}

func scanProduct(row interface{ Scan(dest ...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price,
		&p.ImageUrl, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
