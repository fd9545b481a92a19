package domain

import (
	"context"
	"database/sql"
	"time"
)

type OrderStatus string

const (
	OrderStatusInTransit  OrderStatus = "In Transit"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusRefunded   OrderStatus = "Refunded"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusInTransit, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// Terminal statuses permit no further stock-affecting transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// Cancellable reports whether an order in this status may still be
// cancelled with a compensating refund.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusInTransit || s == OrderStatusProcessing
}

// OrderItem is an immutable snapshot captured at order-creation time.
// Price is the discounted unit price at purchase, not a live reference;
// historical orders must not change when the product price does.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
}

type ShippingAddress struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Address    string `json:"address" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
}

type Order struct {
	OrderID         string          `json:"orderId"`
	TrackingCode    string          `json:"trackingCode"`
	UserID          string          `json:"userId"`
	Items           []OrderItem     `json:"productSelected"`
	DeliveryPrice   float64         `json:"deliveryPrice"`
	TotalPrice      float64         `json:"totalPrice"`
	Payment         string          `json:"payment"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Origin          string          `json:"from"`
	Destination     string          `json:"to"`
	Carrier         string          `json:"carrier"`
	LastLocation    string          `json:"lastLocation"`
	EstDelivery     time.Time       `json:"estDelivery"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type OrderCreateRequest struct {
	UserID          string          `json:"userId" validate:"required"`
	ProductSelected []LineItem      `json:"productSelected" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddress `json:"shippingAddress" validate:"required"`
	Payment         string          `json:"payment" validate:"required"`
	DeliveryPrice   float64         `json:"deliveryPrice"`

	// Set from the Idempotency-Key header, never from the body.
	IdempotencyKey string `json:"-"`
}

type OrderCreateResult struct {
	OrderID      string `json:"orderId"`
	TrackingCode string `json:"trackingCode"`
}

// OrderUpdateRequest updates shipment metadata and status only. The
// productSelected snapshot and price fields are not writable post-creation.
type OrderUpdateRequest struct {
	Status       *OrderStatus `json:"status" validate:"omitempty"`
	Carrier      *string      `json:"carrier"`
	LastLocation *string      `json:"lastLocation"`
	EstDelivery  *time.Time   `json:"estDelivery"`
}

type OrderRepository interface {
	Create(ctx context.Context, tx *sql.Tx, order *Order) error
	GetByOrderID(ctx context.Context, orderID string) (Order, error)
	ExistsByOrderID(ctx context.Context, orderID string) (bool, error)
	GetByUserID(ctx context.Context, userID string) ([]Order, error)
	GetAll(ctx context.Context) ([]Order, error)
	// TransitionStatus moves the order to the target status only when its
	// current status is one of from. Returns ErrInvalidTransition when the
	// guard matches no row, so racing lifecycle calls can win at most once.
	TransitionStatus(ctx context.Context, tx *sql.Tx, orderID string, from []OrderStatus, to OrderStatus) error
	UpdateShipment(ctx context.Context, orderID string, req OrderUpdateRequest) error
	// Delete removes the order only while its status is one of from;
	// ErrConflict when a concurrent lifecycle change invalidated the
	// caller's refund decision.
	Delete(ctx context.Context, tx *sql.Tx, orderID string, from []OrderStatus) error

	WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error
}

type OrderService interface {
	CreateOrder(ctx context.Context, req OrderCreateRequest) (OrderCreateResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	DeleteOrder(ctx context.Context, orderID string) error
	UpdateOrder(ctx context.Context, orderID string, req OrderUpdateRequest) (Order, error)
	GetUserOrders(ctx context.Context, userID string) ([]Order, error)
	GetAdminOrders(ctx context.Context) ([]Order, error)
}
