package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"order-service/app/domain"
	"order-service/config"
)

type stockVerifier struct {
	productRepo domain.ProductRepository
	cfg         *config.Config
}

func NewStockVerifier(productRepo domain.ProductRepository, cfg *config.Config) domain.StockVerifier {
	return &stockVerifier{productRepo, cfg}
}

// CheckAvailability is the read-side precheck against available stock
// (remaining minus reserved). It has no side effects; an empty result means
// every line item is satisfiable right now, not that it will stay so.
func (u *stockVerifier) CheckAvailability(ctx context.Context, items []domain.LineItem) ([]domain.StockViolation, error) {
	var violations []domain.StockViolation

	for _, item := range items {
		product, err := u.productRepo.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				violations = append(violations, domain.StockViolation{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Available: 0,
					Error:     "Product not found",
				})
				continue
			}
			slog.ErrorContext(ctx, "[stockVerifier] CheckAvailability", "getProduct", err)
			return nil, err
		}

		if item.Quantity <= 0 {
			violations = append(violations, domain.StockViolation{
				ProductID:   item.ProductID,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   product.StockRemaining,
				Error:       "Invalid quantity",
			})
			continue
		}

		available := product.AvailableStock()
		if product.StockRemaining <= 0 || available < item.Quantity {
			violations = append(violations, domain.StockViolation{
				ProductID:   item.ProductID,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   max(0, available),
				Remaining:   product.StockRemaining,
				Error:       fmt.Sprintf("Insufficient stock for %s. Available: %d units", product.Name, max(0, available)),
			})
		}
	}

	return violations, nil
}

// VerifyBeforeDeduction is the narrower check used at the no-second-chances
// moment right before stock is mutated. It only looks at stock_remaining,
// because at that point the order either fully commits or rolls back;
// reservations no longer matter.
func (u *stockVerifier) VerifyBeforeDeduction(ctx context.Context, items []domain.LineItem) ([]domain.StockViolation, error) {
	var violations []domain.StockViolation

	for _, item := range items {
		product, err := u.productRepo.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				violations = append(violations, domain.StockViolation{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Error:     "Product no longer available",
				})
				continue
			}
			slog.ErrorContext(ctx, "[stockVerifier] VerifyBeforeDeduction", "getProduct", err)
			return nil, err
		}

		if product.StockRemaining < item.Quantity {
			violations = append(violations, domain.StockViolation{
				ProductID:   item.ProductID,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   product.StockRemaining,
				Error:       fmt.Sprintf("Stock depleted. Only %d remaining.", product.StockRemaining),
			})
		}
	}

	return violations, nil
}

func (u *stockVerifier) GetStockHistory(ctx context.Context, productID string) (domain.StockHistoryReport, error) {
	product, err := u.productRepo.GetByID(ctx, productID)
	if err != nil {
		slog.ErrorContext(ctx, "[stockVerifier] GetStockHistory", "getProduct", err)
		return domain.StockHistoryReport{}, err
	}

	history, err := u.productRepo.GetStockHistory(ctx, productID)
	if err != nil {
		slog.ErrorContext(ctx, "[stockVerifier] GetStockHistory", "getHistory", err)
		return domain.StockHistoryReport{}, err
	}

	return domain.StockHistoryReport{
		ProductID:      product.ID,
		ProductName:    product.Name,
		CurrentStock:   product.StockRemaining,
		ReservedStock:  product.StockReserved,
		AvailableStock: product.AvailableStock(),
		History:        history,
	}, nil
}

func (u *stockVerifier) GetStockLevels(ctx context.Context, ids []string) (map[string]int64, error) {
	levels, err := u.productRepo.GetStockLevels(ctx, ids)
	if err != nil {
		slog.ErrorContext(ctx, "[stockVerifier] GetStockLevels", "getStockLevels", err)
		return nil, err
	}

	return levels, nil
}
