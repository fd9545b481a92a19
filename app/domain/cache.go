package domain

import "context"

// IdempotencyStore maps a client-supplied idempotency key to the order it
// already produced. Best effort: a store outage degrades order creation to
// non-idempotent, it never blocks it.
type IdempotencyStore interface {
	GetOrder(ctx context.Context, key string) (OrderCreateResult, bool, error)
	SetOrder(ctx context.Context, key string, res OrderCreateResult) error
}
