package response

import (
	"errors"
	"order-service/app/domain"

	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message,omitempty"`
	Data    any                     `json:"data,omitempty"`
	Errors  []domain.StockViolation `json:"errors,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

func Success(data any) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

func SuccessMessage(message string) *Response {
	return &Response{
		Success: true,
		Message: message,
	}
}

func Error(err error) *Response {
	return &Response{
		Success: false,
		Error:   err.Error(),
	}
}

func FromError(err error) (int, *Response) {
	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		return fiber.StatusBadRequest, &Response{
			Success: false,
			Message: stockErr.Message,
			Errors:  stockErr.Violations,
		}
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest, Error(err)
	case errors.Is(err, domain.ErrInvalidTransition):
		return fiber.StatusBadRequest, Error(err)
	case errors.Is(err, domain.ErrBadRequest):
		return fiber.StatusBadRequest, Error(err)
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized, Error(err)
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, Error(err)
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, Error(err)
	default:
		return fiber.StatusInternalServerError, Error(domain.ErrInternal)
	}
}
