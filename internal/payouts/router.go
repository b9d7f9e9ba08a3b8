package payouts

import (
	"tixgate/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPayoutRoutes configures settlement routes. The handshake is split
// by role: admins aggregate, release and initiate; only the organizer can
// confirm receipt.
func SetupPayoutRoutes(rg *gin.RouterGroup, controller *Controller) {
	payouts := rg.Group("/payouts")
	payouts.Use(middleware.JWTAuth())
	{
		admin := payouts.Group("")
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/aggregate", controller.Aggregate)          // POST /api/v1/payouts/aggregate
			admin.POST("/:id/release", controller.ReleaseReceipt)   // POST /api/v1/payouts/:id/release
			admin.POST("/:id/initiate", controller.InitiatePayment) // POST /api/v1/payouts/:id/initiate
		}

		organizer := payouts.Group("")
		organizer.Use(middleware.RequireRoles("ORGANIZER"))
		{
			organizer.POST("/:id/confirm", controller.ConfirmReceived) // POST /api/v1/payouts/:id/confirm
			organizer.GET("/mine/list", controller.ListMine)           // GET  /api/v1/payouts/mine/list
		}

		// Admins and the owning organizer can read a payout
		payouts.GET("/:id", middleware.RequireRoles("ADMIN", "ORGANIZER"), controller.GetPayout)
	}
}
