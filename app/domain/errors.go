package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrBadRequest        = errors.New("bad request")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInternal          = errors.New("internal server error")
)

// StockViolation describes a single unsatisfiable line item. Clients need
// the per-item detail to highlight exactly which cart lines failed.
type StockViolation struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	Requested   int64  `json:"requested"`
	Available   int64  `json:"available"`
	Remaining   int64  `json:"remaining,omitempty"`
	Error       string `json:"error"`
}

// StockError carries the full violation list for a failed availability check
// or deduction. It unwraps to ErrInsufficientStock so callers can classify
// it with errors.Is.
type StockError struct {
	Message    string
	Violations []StockViolation
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s: %d item(s) unsatisfiable", e.Message, len(e.Violations))
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

func NewStockError(message string, violations []StockViolation) *StockError {
	return &StockError{Message: message, Violations: violations}
}
