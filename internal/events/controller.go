package events

import (
	"errors"
	"net/http"

	"tixgate/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

func organizerIDFromContext(ctx *gin.Context) (uuid.UUID, bool) {
	userIDInterface, exists := ctx.Get("user_id")
	if !exists {
		response.Error(ctx, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}
	userIDStr, ok := userIDInterface.(string)
	if !ok {
		response.Error(ctx, http.StatusInternalServerError, "Invalid user ID format")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}

// CreateEvent handles POST /api/v1/events
func (c *Controller) CreateEvent(ctx *gin.Context) {
	organizerID, ok := organizerIDFromContext(ctx)
	if !ok {
		return
	}

	var req CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	event, err := c.service.CreateEvent(ctx.Request.Context(), organizerID, req)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Failed to create event", nil, err.Error())
		return
	}

	response.Success(ctx, http.StatusCreated, "Event created", event.ToResponse())
}

// GetEvent handles GET /api/v1/events/:id
func (c *Controller) GetEvent(ctx *gin.Context) {
	eventID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid event ID")
		return
	}

	event, err := c.service.GetEvent(ctx.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			response.Error(ctx, http.StatusNotFound, "Event not found")
			return
		}
		response.Error(ctx, http.StatusInternalServerError, "Failed to load event")
		return
	}

	response.Success(ctx, http.StatusOK, "Event", event.ToResponse())
}

// PublishEvent handles POST /api/v1/events/:id/publish
func (c *Controller) PublishEvent(ctx *gin.Context) {
	organizerID, ok := organizerIDFromContext(ctx)
	if !ok {
		return
	}

	eventID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid event ID")
		return
	}

	if err := c.service.PublishEvent(ctx.Request.Context(), eventID, organizerID); err != nil {
		if errors.Is(err, ErrEventNotFound) {
			response.Error(ctx, http.StatusNotFound, "Event not found")
			return
		}
		response.RespondJSON(ctx, "error", http.StatusUnprocessableEntity, "Failed to publish event", nil, err.Error())
		return
	}

	response.Success(ctx, http.StatusOK, "Event published", nil)
}

// GetAvailability handles GET /api/v1/events/:id/availability
func (c *Controller) GetAvailability(ctx *gin.Context) {
	eventID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid event ID")
		return
	}

	availability, err := c.service.Availability(ctx.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			response.Error(ctx, http.StatusNotFound, "Event not found")
			return
		}
		response.Error(ctx, http.StatusInternalServerError, "Failed to load availability")
		return
	}

	response.Success(ctx, http.StatusOK, "Availability", availability)
}

// ListMyEvents handles GET /api/v1/events/mine
func (c *Controller) ListMyEvents(ctx *gin.Context) {
	organizerID, ok := organizerIDFromContext(ctx)
	if !ok {
		return
	}

	list, err := c.service.ListOrganizerEvents(ctx.Request.Context(), organizerID)
	if err != nil {
		response.Error(ctx, http.StatusInternalServerError, "Failed to list events")
		return
	}

	resp := make([]EventResponse, 0, len(list))
	for i := range list {
		resp = append(resp, list[i].ToResponse())
	}
	response.Success(ctx, http.StatusOK, "Events", resp)
}
