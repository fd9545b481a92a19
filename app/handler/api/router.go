package handler

import (
	"order-service/app/middleware"
	"order-service/config"

	"github.com/gofiber/fiber/v2"
)

func SetupRouter(app *fiber.App, orderHandler *OrderHandler, stockHandler *StockHandler, cfg *config.Config) {

	api := app.Group("/order-service").Use(middleware.Auth(cfg.Jwt.SecretKey))

	api.Post("/orders/validate-stock", stockHandler.ValidateStock)
	api.Post("/orders", orderHandler.Create)
	api.Post("/orders/:order_id/cancel", orderHandler.Cancel)
	api.Get("/orders/user/:user_id", orderHandler.GetUserOrders)

	api.Get("/products/:product_id/stock-history", stockHandler.GetStockHistory)
	api.Post("/products/stock-levels", stockHandler.GetStockLevels)

	admin := api.Group("/admin").Use(middleware.RequireAdmin())
	admin.Get("/orders", orderHandler.GetAdminOrders)
	admin.Put("/orders/:order_id", orderHandler.Update)
	admin.Delete("/orders/:order_id", orderHandler.Delete)

	internal := app.Group("/internal/order-service").Use(middleware.AuthInternal(cfg))
	internal.Post("/orders/reserve", stockHandler.Reserve)
	internal.Post("/orders/release", stockHandler.Release)
}
