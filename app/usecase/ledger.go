package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"order-service/app/domain"
	"order-service/config"
)

const (
	reasonDeducted = "Order confirmed and paid"
	reasonReserved = "Reserved for checkout"
	reasonReleased = "Reservation released"
)

// stockLedger is the only component that writes stock_remaining and
// stock_reserved. Every mutation appends to the stock_history audit trail
// in the same transaction, so the trail always reconciles with the counters.
type stockLedger struct {
	productRepo domain.ProductRepository
	broker      domain.BrokerPublisher
	cfg         *config.Config
}

func NewStockLedger(productRepo domain.ProductRepository, broker domain.BrokerPublisher, cfg *config.Config) domain.StockLedger {
	return &stockLedger{productRepo, broker, cfg}
}

// Deduct applies the per-item conditional decrement within the caller's
// transaction. The first failed guard aborts with a StockError carrying the
// current availability; the transaction rollback undoes items already
// deducted, so no separate compensation pass is needed.
func (l *stockLedger) Deduct(ctx context.Context, tx *sql.Tx, items []domain.OrderItem, orderID string) error {
	for _, item := range items {
		err := l.productRepo.DeductStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				return l.deductViolation(ctx, item)
			}
			slog.ErrorContext(ctx, "[stockLedger] Deduct", "deductStock", err)
			return err
		}

		err = l.productRepo.AppendStockHistory(ctx, tx, domain.StockHistoryEntry{
			ProductID: item.ProductID,
			Action:    domain.StockActionDeducted,
			Quantity:  item.Quantity,
			OrderID:   orderID,
			Reason:    reasonDeducted,
		})
		if err != nil {
			slog.ErrorContext(ctx, "[stockLedger] Deduct", "appendHistory", err)
			return err
		}
	}

	return nil
}

func (l *stockLedger) deductViolation(ctx context.Context, item domain.OrderItem) error {
	violation := domain.StockViolation{
		ProductID: item.ProductID,
		Requested: item.Quantity,
		Error:     "Product no longer available",
	}

	// Read outside the failed guard for error detail; the conditional
	// update held no lock on the row.
	product, err := l.productRepo.GetByID(ctx, item.ProductID)
	if err == nil {
		violation.ProductName = product.Name
		violation.Available = product.StockRemaining
		violation.Error = fmt.Sprintf("Stock depleted. Only %d remaining.", product.StockRemaining)
	}

	return domain.NewStockError("Stock no longer available", []domain.StockViolation{violation})
}

func (l *stockLedger) Refund(ctx context.Context, tx *sql.Tx, items []domain.OrderItem, orderID, reason string) error {
	for _, item := range items {
		if err := l.productRepo.RefundStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			slog.ErrorContext(ctx, "[stockLedger] Refund", "refundStock", err)
			return err
		}

		err := l.productRepo.AppendStockHistory(ctx, tx, domain.StockHistoryEntry{
			ProductID: item.ProductID,
			Action:    domain.StockActionRefunded,
			Quantity:  item.Quantity,
			OrderID:   orderID,
			Reason:    reason,
		})
		if err != nil {
			slog.ErrorContext(ctx, "[stockLedger] Refund", "appendHistory", err)
			return err
		}
	}

	return nil
}

// Reserve claims units against available stock for an in-flight checkout.
// The whole item list reserves atomically or not at all.
func (l *stockLedger) Reserve(ctx context.Context, items []domain.LineItem, orderID string) error {
	err := l.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, item := range items {
			if item.Quantity <= 0 {
				return fmt.Errorf("%w: invalid quantity for product %s", domain.ErrValidation, item.ProductID)
			}

			err := l.productRepo.ReserveStock(ctx, tx, item.ProductID, item.Quantity)
			if err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					return l.reserveViolation(ctx, item)
				}
				slog.ErrorContext(ctx, "[stockLedger] Reserve", "reserveStock", err)
				return err
			}

			err = l.productRepo.AppendStockHistory(ctx, tx, domain.StockHistoryEntry{
				ProductID: item.ProductID,
				Action:    domain.StockActionReserved,
				Quantity:  item.Quantity,
				OrderID:   orderID,
				Reason:    reasonReserved,
			})
			if err != nil {
				slog.ErrorContext(ctx, "[stockLedger] Reserve", "appendHistory", err)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.PublishAvailability(ctx, lineItemIDs(items))
	return nil
}

func (l *stockLedger) reserveViolation(ctx context.Context, item domain.LineItem) error {
	violation := domain.StockViolation{
		ProductID: item.ProductID,
		Requested: item.Quantity,
		Error:     "Product not found",
	}

	product, err := l.productRepo.GetByID(ctx, item.ProductID)
	if err == nil {
		available := max(0, product.AvailableStock())
		violation.ProductName = product.Name
		violation.Available = available
		violation.Remaining = product.StockRemaining
		violation.Error = fmt.Sprintf("Insufficient stock for %s. Available: %d units", product.Name, available)
	}

	return domain.NewStockError("Insufficient stock to reserve", []domain.StockViolation{violation})
}

func (l *stockLedger) Release(ctx context.Context, items []domain.LineItem, orderID string) error {
	err := l.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, item := range items {
			// A negative quantity would inflate stock_reserved through the
			// clamped decrement.
			if item.Quantity <= 0 {
				return fmt.Errorf("%w: invalid quantity for product %s", domain.ErrValidation, item.ProductID)
			}

			if err := l.productRepo.ReleaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				slog.ErrorContext(ctx, "[stockLedger] Release", "releaseStock", err)
				return err
			}

			err := l.productRepo.AppendStockHistory(ctx, tx, domain.StockHistoryEntry{
				ProductID: item.ProductID,
				Action:    domain.StockActionUnreserved,
				Quantity:  item.Quantity,
				OrderID:   orderID,
				Reason:    reasonReleased,
			})
			if err != nil {
				slog.ErrorContext(ctx, "[stockLedger] Release", "appendHistory", err)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.PublishAvailability(ctx, lineItemIDs(items))
	return nil
}

// PublishAvailability broadcasts the post-commit available quantity for each
// product. Best effort: a broker outage must not fail the stock operation
// that already committed.
func (l *stockLedger) PublishAvailability(ctx context.Context, ids []string) {
	products, err := l.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "[stockLedger] PublishAvailability", "getProducts", err)
		return
	}

	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			continue
		}
		err := l.broker.PublishStockAvailable(ctx, domain.StockMessage{
			ProductID: product.ID,
			Available: max(0, product.AvailableStock()),
		})
		if err != nil {
			slog.WarnContext(ctx, "[stockLedger] PublishAvailability", "publish", err)
		}
	}
}
