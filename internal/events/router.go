package events

import (
	"tixgate/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupEventRoutes configures all event-related routes
func SetupEventRoutes(rg *gin.RouterGroup, controller *Controller) {
	events := rg.Group("/events")
	{
		// Public read access
		events.GET("/:id", controller.GetEvent)
		events.GET("/:id/availability", controller.GetAvailability)
	}

	organizer := rg.Group("/events")
	organizer.Use(middleware.JWTAuth(), middleware.RequireRoles("ORGANIZER", "ADMIN"))
	{
		organizer.POST("", controller.CreateEvent)
		organizer.POST("/:id/publish", controller.PublishEvent)
		organizer.GET("/mine/list", controller.ListMyEvents)
	}
}
