package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"order-service/app/domain"
	"order-service/config"
	"sync/atomic"
	"time"
)

const (
	orderOrigin   = "Warehouse A"
	orderCarrier  = "FedEx"
	deliveryAfter = 3 * 24 * time.Hour
)

// orderSeq disambiguates ids generated within the same millisecond; the
// repository's uniqueness check still guards against cross-process clashes.
var orderSeq atomic.Int64

func newOrderRef() (orderID, trackingCode string) {
	ts := time.Now().UnixMilli()
	seq := orderSeq.Add(1)
	return fmt.Sprintf("ORD-%d-%d", ts, seq), fmt.Sprintf("TRK%d%d", ts, seq)
}

type orderUsecase struct {
	orderRepo   domain.OrderRepository
	productRepo domain.ProductRepository
	verifier    domain.StockVerifier
	ledger      domain.StockLedger
	idemStore   domain.IdempotencyStore
	cfg         *config.Config
}

func NewOrderUsecase(
	orderRepo domain.OrderRepository,
	productRepo domain.ProductRepository,
	verifier domain.StockVerifier,
	ledger domain.StockLedger,
	idemStore domain.IdempotencyStore,
	cfg *config.Config) domain.OrderService {
	return &orderUsecase{orderRepo, productRepo, verifier, ledger, idemStore, cfg}
}

// CreateOrder runs the create-order workflow: validate, check availability,
// price the snapshot, generate ids, re-verify, then persist the order and
// deduct stock inside one transaction. A failed deduction rolls the order
// row back with it, so the caller never sees a confirmation that does not
// correspond to an actual stock deduction.
func (u *orderUsecase) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderCreateResult, error) {
	var res domain.OrderCreateResult

	if req.IdempotencyKey != "" {
		prev, ok, err := u.idemStore.GetOrder(ctx, req.IdempotencyKey)
		if err != nil {
			slog.WarnContext(ctx, "[orderUsecase] CreateOrder", "idempotencyGet", err)
		} else if ok {
			slog.InfoContext(ctx, "[orderUsecase] CreateOrder", "idempotentReplay", prev.OrderID)
			return prev, nil
		}
	}

	if req.UserID == "" || req.Payment == "" || len(req.ProductSelected) == 0 {
		return res, fmt.Errorf("%w: missing required order details", domain.ErrValidation)
	}

	violations, err := u.verifier.CheckAvailability(ctx, req.ProductSelected)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] CreateOrder", "checkAvailability", err)
		return res, err
	}
	if len(violations) > 0 {
		return res, domain.NewStockError("Insufficient stock for one or more items", violations)
	}

	items, totalPrice, err := u.priceItems(ctx, req.ProductSelected)
	if err != nil {
		return res, err
	}
	totalPrice += req.DeliveryPrice

	orderID, trackingCode := newOrderRef()
	exists, err := u.orderRepo.ExistsByOrderID(ctx, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] CreateOrder", "existsByOrderID", err)
		return res, err
	}
	if exists {
		return res, fmt.Errorf("%w: order id collision, please retry", domain.ErrConflict)
	}

	// Re-check before committing: stock may have moved since the first
	// availability check while prices were being looked up.
	violations, err = u.verifier.VerifyBeforeDeduction(ctx, req.ProductSelected)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] CreateOrder", "verifyBeforeDeduction", err)
		return res, err
	}
	if len(violations) > 0 {
		return res, domain.NewStockError("Stock verification failed. Inventory may have changed.", violations)
	}

	now := time.Now()
	order := &domain.Order{
		OrderID:         orderID,
		TrackingCode:    trackingCode,
		UserID:          req.UserID,
		Items:           items,
		DeliveryPrice:   req.DeliveryPrice,
		TotalPrice:      totalPrice,
		Payment:         req.Payment,
		ShippingAddress: req.ShippingAddress,
		Origin:          orderOrigin,
		Destination:     req.ShippingAddress.Country,
		Carrier:         orderCarrier,
		LastLocation:    orderOrigin,
		EstDelivery:     now.Add(deliveryAfter),
		Status:          domain.OrderStatusInTransit,
	}

	err = u.orderRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := u.orderRepo.Create(ctx, tx, order); err != nil {
			slog.ErrorContext(ctx, "[orderUsecase] CreateOrder", "createOrder", err)
			return err
		}

		// The conditional updates inside Deduct are the authoritative
		// check; a failure here aborts the whole transaction.
		if err := u.ledger.Deduct(ctx, tx, order.Items, orderID); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		var stockErr *domain.StockError
		if errors.As(err, &stockErr) || errors.Is(err, domain.ErrConflict) {
			return res, err
		}
		slog.ErrorContext(ctx, "[orderUsecase] CreateOrder", "transactionError", err)
		return res, fmt.Errorf("%w: error processing inventory, order cancelled", domain.ErrInternal)
	}

	u.ledger.PublishAvailability(ctx, lineItemIDs(req.ProductSelected))

	res = domain.OrderCreateResult{OrderID: orderID, TrackingCode: trackingCode}

	if req.IdempotencyKey != "" {
		if err := u.idemStore.SetOrder(ctx, req.IdempotencyKey, res); err != nil {
			slog.WarnContext(ctx, "[orderUsecase] CreateOrder", "idempotencySet", err)
		}
	}

	slog.InfoContext(ctx, "[orderUsecase] CreateOrder", "orderCreated", orderID)
	return res, nil
}

// priceItems builds the immutable line-item snapshot. Prices come from the
// catalog at this moment, discounted, and are frozen into the order.
func (u *orderUsecase) priceItems(ctx context.Context, selected []domain.LineItem) ([]domain.OrderItem, float64, error) {
	ids := lineItemIDs(selected)

	products, err := u.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] priceItems", "getProducts", err)
		return nil, 0, err
	}

	var total float64
	items := make([]domain.OrderItem, 0, len(selected))
	for _, sel := range selected {
		product, ok := products[sel.ProductID]
		if !ok {
			return nil, 0, fmt.Errorf("%w: product with ID %s not found", domain.ErrNotFound, sel.ProductID)
		}

		unitPrice := product.DiscountedPrice()
		total += unitPrice * float64(sel.Quantity)

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  sel.Quantity,
			Price:     unitPrice,
		})
	}

	return items, total, nil
}

// CancelOrder refunds the order's stock and marks it cancelled in one
// transaction. A refund failure aborts the status change: the order stays
// in its prior status rather than silently losing the stock adjustment.
func (u *orderUsecase) CancelOrder(ctx context.Context, orderID string) error {
	order, err := u.orderRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] CancelOrder", "getOrder", err)
		return err
	}

	if !order.Status.Cancellable() {
		return fmt.Errorf("%w: cannot cancel order with status: %s", domain.ErrInvalidTransition, order.Status)
	}

	err = u.orderRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// The conditional transition is the authoritative cancellable
		// check: of any number of racing lifecycle calls, exactly one
		// passes it, so the refund below runs at most once per order.
		err := u.orderRepo.TransitionStatus(ctx, tx, orderID,
			[]domain.OrderStatus{domain.OrderStatusInTransit, domain.OrderStatusProcessing},
			domain.OrderStatusCancelled)
		if err != nil {
			return err
		}
		return u.ledger.Refund(ctx, tx, order.Items, orderID, "Order cancelled by customer")
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("%w: order is no longer cancellable", domain.ErrInvalidTransition)
		}
		slog.ErrorContext(ctx, "[orderUsecase] CancelOrder", "transactionError", err)
		return fmt.Errorf("%w: error processing stock refund", domain.ErrInternal)
	}

	u.ledger.PublishAvailability(ctx, orderItemIDs(order.Items))

	slog.InfoContext(ctx, "[orderUsecase] CancelOrder", "orderCancelled", orderID)
	return nil
}

// DeleteOrder refunds first and removes the row only once the refund is in
// the same committed transaction, so a refund failure never leaves stock
// short with no order row tying it back.
func (u *orderUsecase) DeleteOrder(ctx context.Context, orderID string) error {
	order, err := u.orderRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] DeleteOrder", "getOrder", err)
		return err
	}

	// Cancelled and Refunded orders already returned their stock; a second
	// refund here would double-credit it. The delete carries the statuses
	// that decision was based on, so a concurrent cancel aborts it instead
	// of letting both refunds commit.
	needsRefund := order.Status != domain.OrderStatusCancelled && order.Status != domain.OrderStatusRefunded
	deletableFrom := []domain.OrderStatus{domain.OrderStatusCancelled, domain.OrderStatusRefunded}
	if needsRefund {
		deletableFrom = []domain.OrderStatus{domain.OrderStatusInTransit, domain.OrderStatusProcessing,
			domain.OrderStatusShipped, domain.OrderStatusDelivered}
	}

	err = u.orderRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if needsRefund {
			if err := u.ledger.Refund(ctx, tx, order.Items, orderID, "Order deleted/cancelled"); err != nil {
				return err
			}
		}
		return u.orderRepo.Delete(ctx, tx, orderID, deletableFrom)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("%w: order changed, please retry", domain.ErrConflict)
		}
		slog.ErrorContext(ctx, "[orderUsecase] DeleteOrder", "transactionError", err)
		return fmt.Errorf("%w: error deleting order", domain.ErrInternal)
	}

	if needsRefund {
		u.ledger.PublishAvailability(ctx, orderItemIDs(order.Items))
	}

	slog.InfoContext(ctx, "[orderUsecase] DeleteOrder", "orderDeleted", orderID)
	return nil
}

// UpdateOrder changes shipment metadata and non-stock-affecting status
// fields. Cancellation and refunds must go through their lifecycle paths so
// the compensating stock writes happen.
func (u *orderUsecase) UpdateOrder(ctx context.Context, orderID string, req domain.OrderUpdateRequest) (domain.Order, error) {
	if req.Status != nil {
		if !req.Status.Valid() {
			return domain.Order{}, fmt.Errorf("%w: unknown order status: %s", domain.ErrValidation, *req.Status)
		}
		if *req.Status == domain.OrderStatusCancelled || *req.Status == domain.OrderStatusRefunded {
			return domain.Order{}, fmt.Errorf("%w: status %s requires the cancel flow", domain.ErrInvalidTransition, *req.Status)
		}

		// Terminal orders have settled their stock; reviving one would
		// re-arm the cancel refund. The repository enforces the same rule
		// in the write itself.
		current, err := u.orderRepo.GetByOrderID(ctx, orderID)
		if err != nil {
			slog.ErrorContext(ctx, "[orderUsecase] UpdateOrder", "getOrder", err)
			return domain.Order{}, err
		}
		if current.Status.Terminal() {
			return domain.Order{}, fmt.Errorf("%w: order is %s", domain.ErrInvalidTransition, current.Status)
		}
	}

	if err := u.orderRepo.UpdateShipment(ctx, orderID, req); err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] UpdateOrder", "updateShipment", err)
		return domain.Order{}, err
	}

	order, err := u.orderRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] UpdateOrder", "getOrder", err)
		return domain.Order{}, err
	}

	return order, nil
}

func (u *orderUsecase) GetUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := u.orderRepo.GetByUserID(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] GetUserOrders", "getByUserID", err)
		return nil, err
	}

	return orders, nil
}

func (u *orderUsecase) GetAdminOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := u.orderRepo.GetAll(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] GetAdminOrders", "getAll", err)
		return nil, err
	}

	return orders, nil
}

func lineItemIDs(items []domain.LineItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func orderItemIDs(items []domain.OrderItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
