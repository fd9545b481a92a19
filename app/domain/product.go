package domain

import (
	"context"
	"database/sql"
	"time"
)

type StockAction string

const (
	StockActionReserved   StockAction = "reserved"
	StockActionUnreserved StockAction = "unreserved"
	StockActionDeducted   StockAction = "deducted"
	StockActionRefunded   StockAction = "refunded"
)

type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Price          float64   `json:"price"`
	Discount       int64     `json:"discount"`
	StockRemaining int64     `json:"stock_remaining"`
	StockReserved  int64     `json:"stock_reserved"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AvailableStock is the number of units a new order may claim: physical
// stock minus units held by active reservations.
func (p Product) AvailableStock() int64 {
	return p.StockRemaining - p.StockReserved
}

// DiscountedPrice is the unit price at purchase time. Discount is a
// 0-100 percentage.
func (p Product) DiscountedPrice() float64 {
	if p.Discount > 0 {
		return p.Price * (1 - float64(p.Discount)/100)
	}
	return p.Price
}

// StockHistoryEntry is one row of a product's append-only stock audit
// trail. Entries are only ever inserted, never updated or deleted.
type StockHistoryEntry struct {
	ID        int64       `json:"id"`
	ProductID string      `json:"product_id"`
	Action    StockAction `json:"action"`
	Quantity  int64       `json:"quantity"`
	OrderID   string      `json:"orderId,omitempty"`
	Reason    string      `json:"reason"`
	CreatedAt time.Time   `json:"timestamp"`
}

type StockHistoryReport struct {
	ProductID      string              `json:"productId"`
	ProductName    string              `json:"productName"`
	CurrentStock   int64               `json:"currentStock"`
	ReservedStock  int64               `json:"reservedStock"`
	AvailableStock int64               `json:"availableStock"`
	History        []StockHistoryEntry `json:"history"`
}

type LineItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int64  `json:"quantity"`
}

type ValidateStockRequest struct {
	ProductSelected []LineItem `json:"productSelected" validate:"required,min=1,dive"`
}

type StockLevelsRequest struct {
	ProductIDs []string `json:"productIds" validate:"required,min=1"`
}

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (Product, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]Product, error)
	GetStockLevels(ctx context.Context, ids []string) (map[string]int64, error)

	// DeductStock decrements stock_remaining by quantity with a
	// stock_remaining >= quantity guard, and decrements stock_reserved
	// clamped at zero. Returns ErrInsufficientStock when the guard fails.
	DeductStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error
	RefundStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error
	// ReserveStock increments stock_reserved with an
	// available >= quantity guard.
	ReserveStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error
	ReleaseStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error

	AppendStockHistory(ctx context.Context, tx *sql.Tx, entry StockHistoryEntry) error
	GetStockHistory(ctx context.Context, productID string) ([]StockHistoryEntry, error)

	WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error
}

// StockVerifier is the pure read side: no method mutates stock.
type StockVerifier interface {
	CheckAvailability(ctx context.Context, items []LineItem) ([]StockViolation, error)
	VerifyBeforeDeduction(ctx context.Context, items []LineItem) ([]StockViolation, error)
	GetStockHistory(ctx context.Context, productID string) (StockHistoryReport, error)
	GetStockLevels(ctx context.Context, ids []string) (map[string]int64, error)
}

// StockLedger owns every mutation of stock_remaining/stock_reserved; no
// other component writes those fields.
type StockLedger interface {
	Deduct(ctx context.Context, tx *sql.Tx, items []OrderItem, orderID string) error
	Refund(ctx context.Context, tx *sql.Tx, items []OrderItem, orderID, reason string) error
	Reserve(ctx context.Context, items []LineItem, orderID string) error
	Release(ctx context.Context, items []LineItem, orderID string) error
	PublishAvailability(ctx context.Context, productIDs []string)
}
