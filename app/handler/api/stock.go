package handler

import (
	"log/slog"
	"order-service/app/domain"
	"order-service/app/handler/api/response"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type StockHandler struct {
	verifier  domain.StockVerifier
	ledger    domain.StockLedger
	validator *validator.Validate
}

func NewStockHandler(verifier domain.StockVerifier, ledger domain.StockLedger, validator *validator.Validate) *StockHandler {
	return &StockHandler{
		verifier:  verifier,
		ledger:    ledger,
		validator: validator,
	}
}

func (h *StockHandler) ValidateStock(c *fiber.Ctx) error {
	var req domain.ValidateStockRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] ValidateStock", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] ValidateStock", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(&response.Response{
			Success: false,
			Message: "No products selected",
		})
	}

	violations, err := h.verifier.CheckAvailability(c.Context(), req.ProductSelected)
	if err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] ValidateStock", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	if len(violations) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(&response.Response{
			Success: false,
			Message: "Insufficient stock for some items",
			Errors:  violations,
		})
	}

	return c.Status(fiber.StatusOK).JSON(response.SuccessMessage("All items are in stock"))
}

func (h *StockHandler) GetStockHistory(c *fiber.Ctx) error {
	productID := c.Params("product_id")
	if productID == "" {
		slog.ErrorContext(c.Context(), "[stockHandler] GetStockHistory", "productID", "missing")
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	report, err := h.verifier.GetStockHistory(c.Context(), productID)
	if err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] GetStockHistory", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(report))
}

func (h *StockHandler) GetStockLevels(c *fiber.Ctx) error {
	var req domain.StockLevelsRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] GetStockLevels", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] GetStockLevels", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	levels, err := h.verifier.GetStockLevels(c.Context(), req.ProductIDs)
	if err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] GetStockLevels", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(levels))
}

type reservationRequest struct {
	OrderID         string            `json:"orderId" validate:"required"`
	ProductSelected []domain.LineItem `json:"productSelected" validate:"required,min=1,dive"`
}

func (h *StockHandler) Reserve(c *fiber.Ctx) error {
	var req reservationRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Reserve", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Reserve", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	if err := h.ledger.Reserve(c.Context(), req.ProductSelected, req.OrderID); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Reserve", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusCreated).JSON(response.SuccessMessage("Stock reserved"))
}

func (h *StockHandler) Release(c *fiber.Ctx) error {
	var req reservationRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Release", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Release", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	if err := h.ledger.Release(c.Context(), req.ProductSelected, req.OrderID); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Release", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.SuccessMessage("Stock reservation released"))
}
