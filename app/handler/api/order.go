package handler

import (
	"log/slog"
	"order-service/app/domain"
	"order-service/app/handler/api/response"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type OrderHandler struct {
	orderUsecase domain.OrderService
	validator    *validator.Validate
}

func NewOrderHandler(orderUsecase domain.OrderService, validator *validator.Validate) *OrderHandler {
	return &OrderHandler{
		orderUsecase: orderUsecase,
		validator:    validator,
	}
}

type orderCreatedResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	OrderID      string `json:"orderId"`
	TrackingCode string `json:"trackingCode"`
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var req domain.OrderCreateRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] Create", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] Create", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(&response.Response{
			Success: false,
			Message: "Missing required order details",
		})
	}

	req.IdempotencyKey = c.Get("Idempotency-Key")

	res, err := h.orderUsecase.CreateOrder(c.Context(), req)
	if err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] Create", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusCreated).JSON(orderCreatedResponse{
		Success:      true,
		Message:      "Order saved successfully and stock deducted",
		OrderID:      res.OrderID,
		TrackingCode: res.TrackingCode,
	})
}

func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	orderID := c.Params("order_id")
	if orderID == "" {
		slog.ErrorContext(c.Context(), "[orderHandler] Cancel", "orderID", "missing")
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.orderUsecase.CancelOrder(c.Context(), orderID); err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] Cancel", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.SuccessMessage("Order cancelled successfully and stock restored"))
}

func (h *OrderHandler) Delete(c *fiber.Ctx) error {
	orderID := c.Params("order_id")
	if orderID == "" {
		slog.ErrorContext(c.Context(), "[orderHandler] Delete", "orderID", "missing")
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.orderUsecase.DeleteOrder(c.Context(), orderID); err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] Delete", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.SuccessMessage("Order deleted successfully and stock restored"))
}

func (h *OrderHandler) Update(c *fiber.Ctx) error {
	orderID := c.Params("order_id")
	if orderID == "" {
		slog.ErrorContext(c.Context(), "[orderHandler] Update", "orderID", "missing")
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	var req domain.OrderUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] Update", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	order, err := h.orderUsecase.UpdateOrder(c.Context(), orderID, req)
	if err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] Update", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(order))
}

func (h *OrderHandler) GetUserOrders(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		slog.ErrorContext(c.Context(), "[orderHandler] GetUserOrders", "userID", "missing")
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	orders, err := h.orderUsecase.GetUserOrders(c.Context(), userID)
	if err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] GetUserOrders", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(orders))
}

func (h *OrderHandler) GetAdminOrders(c *fiber.Ctx) error {
	orders, err := h.orderUsecase.GetAdminOrders(c.Context())
	if err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] GetAdminOrders", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(orders))
}
