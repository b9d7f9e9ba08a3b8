package orders

import (
	"tixgate/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupOrderRoutes configures order, ticket and scanner routes
func SetupOrderRoutes(rg *gin.RouterGroup, controller *Controller) {
	// Payment gateway callback, authenticated by shared secret header
	rg.POST("/webhooks/payment", controller.PaymentWebhook)

	orders := rg.Group("/orders")
	orders.Use(middleware.JWTAuth())
	{
		orders.POST("", controller.CreateOrder)       // POST /api/v1/orders
		orders.GET("/:id", controller.GetOrder)       // GET  /api/v1/orders/:id
		orders.POST("/:id/cancel", controller.Cancel) // POST /api/v1/orders/:id/cancel

		admin := orders.Group("")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/refunds-due", controller.ListRefundsDue)                // GET  /api/v1/orders/refunds-due
			admin.POST("/:id/refund-processed", controller.MarkRefundProcessed) // POST /api/v1/orders/:id/refund-processed
		}
	}

	tickets := rg.Group("/tickets")
	tickets.Use(middleware.JWTAuth())
	{
		tickets.GET("/:id/qr", controller.TicketQR) // GET /api/v1/tickets/:id/qr
	}

	// Gate scanners authenticate with staff tokens
	scanner := rg.Group("/checkin")
	scanner.Use(middleware.JWTAuth(), middleware.RequireRoles("ADMIN", "ORGANIZER"))
	{
		scanner.POST("", controller.CheckIn) // POST /api/v1/checkin
	}
}
