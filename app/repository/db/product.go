package db

import (
	"context"
	"database/sql"
	"log/slog"
	"order-service/app/domain"
)

type productRepository struct {
	conn *sql.DB
}

func NewProductRepository(db *sql.DB) domain.ProductRepository {
	return &productRepository{db}
}

func (r *productRepository) GetByID(ctx context.Context, id string) (domain.Product, error) {
	query := `SELECT id, name, price, discount, stock_remaining, stock_reserved, created_at, updated_at
	FROM products WHERE id = $1`

	var product domain.Product
	err := r.conn.QueryRowContext(ctx, query, id).Scan(&product.ID, &product.Name, &product.Price,
		&product.Discount, &product.StockRemaining, &product.StockReserved,
		&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return product, domain.ErrNotFound
		}
		slog.ErrorContext(ctx, "[productRepository] GetByID", "queryRowContext", err)
		return product, err
	}

	return product, nil
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	query := `SELECT id, name, price, discount, stock_remaining, stock_reserved, created_at, updated_at
	FROM products WHERE id = ANY($1)`

	rows, err := r.conn.QueryContext(ctx, query, ids)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] GetByIDs", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]domain.Product)
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Price, &product.Discount,
			&product.StockRemaining, &product.StockReserved,
			&product.CreatedAt, &product.UpdatedAt); err != nil {
			slog.ErrorContext(ctx, "[productRepository] GetByIDs", "scan", err)
			return nil, err
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[productRepository] GetByIDs", "rowError", err)
		return nil, err
	}

	return products, nil
}

func (r *productRepository) GetStockLevels(ctx context.Context, ids []string) (map[string]int64, error) {
	query := `SELECT id, stock_remaining FROM products WHERE id = ANY($1)`

	rows, err := r.conn.QueryContext(ctx, query, ids)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] GetStockLevels", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	levels := make(map[string]int64)
	for rows.Next() {
		var id string
		var remaining int64
		if err := rows.Scan(&id, &remaining); err != nil {
			slog.ErrorContext(ctx, "[productRepository] GetStockLevels", "scan", err)
			return nil, err
		}
		levels[id] = remaining
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[productRepository] GetStockLevels", "rowError", err)
		return nil, err
	}

	return levels, nil
}

// DeductStock is a conditional decrement: the WHERE guard makes the write a
// compare-and-swap at single-product granularity, so concurrent orders for
// the same product never drive stock_remaining negative. stock_reserved is
// clamped at zero because a deduction may arrive without a prior
// reservation.
func (r *productRepository) DeductStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error {
	query := `UPDATE products
	SET stock_remaining = stock_remaining - $2,
		stock_reserved = GREATEST(stock_reserved - $2, 0),
		updated_at = NOW()
	WHERE id = $1 AND stock_remaining >= $2`

	res, err := tx.ExecContext(ctx, query, productID, quantity)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] DeductStock", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] DeductStock", "rowsAffected", err)
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrInsufficientStock
	}

	return nil
}

func (r *productRepository) RefundStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error {
	query := `UPDATE products
	SET stock_remaining = stock_remaining + $2, updated_at = NOW()
	WHERE id = $1`

	res, err := tx.ExecContext(ctx, query, productID, quantity)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] RefundStock", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] RefundStock", "rowsAffected", err)
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *productRepository) ReserveStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error {
	query := `UPDATE products
	SET stock_reserved = stock_reserved + $2, updated_at = NOW()
	WHERE id = $1 AND stock_remaining - stock_reserved >= $2`

	res, err := tx.ExecContext(ctx, query, productID, quantity)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] ReserveStock", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] ReserveStock", "rowsAffected", err)
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrInsufficientStock
	}

	return nil
}

func (r *productRepository) ReleaseStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error {
	query := `UPDATE products
	SET stock_reserved = GREATEST(stock_reserved - $2, 0), updated_at = NOW()
	WHERE id = $1`

	res, err := tx.ExecContext(ctx, query, productID, quantity)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] ReleaseStock", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] ReleaseStock", "rowsAffected", err)
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *productRepository) AppendStockHistory(ctx context.Context, tx *sql.Tx, entry domain.StockHistoryEntry) error {
	query := `INSERT INTO stock_history (product_id, action, quantity, order_id, reason)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5)`

	_, err := tx.ExecContext(ctx, query, entry.ProductID, entry.Action, entry.Quantity, entry.OrderID, entry.Reason)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] AppendStockHistory", "execContext", err)
		return err
	}

	return nil
}

func (r *productRepository) GetStockHistory(ctx context.Context, productID string) ([]domain.StockHistoryEntry, error) {
	query := `SELECT id, product_id, action, quantity, COALESCE(order_id, ''), reason, created_at
	FROM stock_history WHERE product_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.conn.QueryContext(ctx, query, productID)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] GetStockHistory", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	var entries []domain.StockHistoryEntry
	for rows.Next() {
		var entry domain.StockHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.Action, &entry.Quantity,
			&entry.OrderID, &entry.Reason, &entry.CreatedAt); err != nil {
			slog.ErrorContext(ctx, "[productRepository] GetStockHistory", "scan", err)
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[productRepository] GetStockHistory", "rowError", err)
		return nil, err
	}

	return entries, nil
}

func (r *productRepository) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] WithTransaction", "beginTx", err)
		return err
	}

	if err := fn(ctx, tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			slog.ErrorContext(ctx, "[productRepository] WithTransaction", "rollback", rollbackErr)
			return err
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.ErrorContext(ctx, "[productRepository] WithTransaction", "commit", err)
		return err
	}

	return nil
}
