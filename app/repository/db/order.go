package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"order-service/app/domain"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type orderRepository struct {
	conn *sql.DB
}

func NewOrderRepository(db *sql.DB) domain.OrderRepository {
	return &orderRepository{db}
}

func (r *orderRepository) Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] Create", "marshalAddress", err)
		return err
	}

	query := `INSERT INTO orders (order_id, tracking_code, user_id, status, delivery_price, total_price,
		payment, shipping_address, origin, destination, carrier, last_location, est_delivery)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = tx.ExecContext(ctx, query, order.OrderID, order.TrackingCode, order.UserID, order.Status,
		order.DeliveryPrice, order.TotalPrice, order.Payment, address,
		order.Origin, order.Destination, order.Carrier, order.LastLocation, order.EstDelivery)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation, backs the orderId collision check
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrConflict
		}
		slog.ErrorContext(ctx, "[orderRepository] Create", "execContext", err)
		return err
	}

	itemQuery := `INSERT INTO order_items (order_id, product_id, name, quantity, price)
	VALUES ($1, $2, $3, $4, $5)`
	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, itemQuery, order.OrderID, item.ProductID, item.Name, item.Quantity, item.Price); err != nil {
			slog.ErrorContext(ctx, "[orderRepository] Create", "insertItem", err)
			return err
		}
	}

	return nil
}

func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	query := `SELECT order_id, tracking_code, user_id, status, delivery_price, total_price, payment,
		shipping_address, origin, destination, carrier, last_location, est_delivery, created_at, updated_at
	FROM orders WHERE order_id = $1`

	var order domain.Order
	var address []byte
	err := r.conn.QueryRowContext(ctx, query, orderID).Scan(&order.OrderID, &order.TrackingCode,
		&order.UserID, &order.Status, &order.DeliveryPrice, &order.TotalPrice, &order.Payment,
		&address, &order.Origin, &order.Destination, &order.Carrier, &order.LastLocation,
		&order.EstDelivery, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return order, domain.ErrNotFound
		}
		slog.ErrorContext(ctx, "[orderRepository] GetByOrderID", "queryRowContext", err)
		return order, err
	}

	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		slog.ErrorContext(ctx, "[orderRepository] GetByOrderID", "unmarshalAddress", err)
		return order, err
	}

	items, err := r.getItems(ctx, orderID)
	if err != nil {
		return order, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ExistsByOrderID(ctx context.Context, orderID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM orders WHERE order_id = $1)`

	var exists bool
	if err := r.conn.QueryRowContext(ctx, query, orderID).Scan(&exists); err != nil {
		slog.ErrorContext(ctx, "[orderRepository] ExistsByOrderID", "queryRowContext", err)
		return false, err
	}

	return exists, nil
}

func (r *orderRepository) GetByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	query := `SELECT order_id, tracking_code, user_id, status, delivery_price, total_price, payment,
		shipping_address, origin, destination, carrier, last_location, est_delivery, created_at, updated_at
	FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	return r.queryOrders(ctx, query, userID)
}

func (r *orderRepository) GetAll(ctx context.Context) ([]domain.Order, error) {
	query := `SELECT order_id, tracking_code, user_id, status, delivery_price, total_price, payment,
		shipping_address, origin, destination, carrier, last_location, est_delivery, created_at, updated_at
	FROM orders ORDER BY created_at DESC`

	return r.queryOrders(ctx, query)
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] queryOrders", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		var address []byte
		if err := rows.Scan(&order.OrderID, &order.TrackingCode, &order.UserID, &order.Status,
			&order.DeliveryPrice, &order.TotalPrice, &order.Payment, &address,
			&order.Origin, &order.Destination, &order.Carrier, &order.LastLocation,
			&order.EstDelivery, &order.CreatedAt, &order.UpdatedAt); err != nil {
			slog.ErrorContext(ctx, "[orderRepository] queryOrders", "scan", err)
			return nil, err
		}
		if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
			slog.ErrorContext(ctx, "[orderRepository] queryOrders", "unmarshalAddress", err)
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[orderRepository] queryOrders", "rowError", err)
		return nil, err
	}

	for i := range orders {
		items, err := r.getItems(ctx, orders[i].OrderID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r *orderRepository) getItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	query := `SELECT product_id, name, quantity, price FROM order_items WHERE order_id = $1 ORDER BY id`

	rows, err := r.conn.QueryContext(ctx, query, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] getItems", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.Price); err != nil {
			slog.ErrorContext(ctx, "[orderRepository] getItems", "scan", err)
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[orderRepository] getItems", "rowError", err)
		return nil, err
	}

	return items, nil
}

// TransitionStatus is the conditional counterpart of DeductStock for order
// state: the status predicate makes the transition a compare-and-swap, so
// two racing cancels cannot both pass the guard.
func (r *orderRepository) TransitionStatus(ctx context.Context, tx *sql.Tx, orderID string, from []domain.OrderStatus, to domain.OrderStatus) error {
	query := `UPDATE orders SET status = $2, updated_at = NOW()
	WHERE order_id = $1 AND status = ANY($3)`

	res, err := tx.ExecContext(ctx, query, orderID, to, statusStrings(from))
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] TransitionStatus", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] TransitionStatus", "rowsAffected", err)
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrInvalidTransition
	}

	return nil
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func (r *orderRepository) UpdateShipment(ctx context.Context, orderID string, req domain.OrderUpdateRequest) error {
	sets := []string{}
	args := []any{orderID}
	placeholder := 2

	appendSet := func(column string, value any) {
		sets = append(sets, column+" = $"+strconv.Itoa(placeholder))
		args = append(args, value)
		placeholder++
	}

	if req.Status != nil {
		appendSet("status", *req.Status)
	}
	if req.Carrier != nil {
		appendSet("carrier", *req.Carrier)
	}
	if req.LastLocation != nil {
		appendSet("last_location", *req.LastLocation)
	}
	if req.EstDelivery != nil {
		appendSet("est_delivery", *req.EstDelivery)
	}

	if len(sets) == 0 {
		return nil
	}

	query := `UPDATE orders SET ` + strings.Join(sets, ", ") + `, updated_at = NOW() WHERE order_id = $1`

	// A status write must not pull an order out of a terminal state; the
	// predicate enforces it at the row so a concurrent cancel cannot be
	// overwritten between check and write.
	statusGuarded := req.Status != nil
	if statusGuarded {
		query += ` AND status <> ALL($` + strconv.Itoa(placeholder) + `)`
		args = append(args, statusStrings([]domain.OrderStatus{
			domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusRefunded,
		}))
	}

	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] UpdateShipment", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] UpdateShipment", "rowsAffected", err)
		return err
	}

	if rowsAffected == 0 {
		if statusGuarded {
			return domain.ErrInvalidTransition
		}
		return domain.ErrNotFound
	}

	return nil
}

func (r *orderRepository) Delete(ctx context.Context, tx *sql.Tx, orderID string, from []domain.OrderStatus) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		slog.ErrorContext(ctx, "[orderRepository] Delete", "deleteItems", err)
		return err
	}

	// The status predicate keeps the refund decision taken before the
	// transaction valid at delete time: a concurrent lifecycle change
	// matches no row, and the refund rolls back with the aborted delete.
	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE order_id = $1 AND status = ANY($2)`,
		orderID, statusStrings(from))
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] Delete", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] Delete", "rowsAffected", err)
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrConflict
	}

	return nil
}

func (r *orderRepository) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] WithTransaction", "beginTx", err)
		return err
	}

	if err := fn(ctx, tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			slog.ErrorContext(ctx, "[orderRepository] WithTransaction", "rollback", rollbackErr)
			return err
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.ErrorContext(ctx, "[orderRepository] WithTransaction", "commit", err)
		return err
	}

	return nil
}
