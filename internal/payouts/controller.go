package payouts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tixgate/internal/events"
	"tixgate/internal/shared/utils/response"
	"tixgate/internal/users"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// Aggregate handles POST /api/v1/payouts/aggregate
func (c *Controller) Aggregate(ctx *gin.Context) {
	var req AggregateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid event id")
		return
	}

	payout, err := c.service.Aggregate(ctx.Request.Context(), eventID)
	if err != nil {
		c.respondPayoutError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Payout aggregated", payout)
}

// GetPayout handles GET /api/v1/payouts/:id
func (c *Controller) GetPayout(ctx *gin.Context) {
	requesterID, ok := requesterFromContext(ctx)
	if !ok {
		return
	}

	payoutID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid payout id")
		return
	}

	isAdmin := ctx.GetString("user_role") == string(users.RoleAdmin)
	payout, err := c.service.GetPayout(ctx.Request.Context(), payoutID, requesterID, isAdmin)
	if err != nil {
		c.respondPayoutError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Payout retrieved", payout)
}

// ListMine handles GET /api/v1/payouts/mine/list
func (c *Controller) ListMine(ctx *gin.Context) {
	organizerID, ok := requesterFromContext(ctx)
	if !ok {
		return
	}

	payouts, err := c.service.ListOrganizerPayouts(ctx.Request.Context(), organizerID)
	if err != nil {
		response.Error(ctx, http.StatusInternalServerError, "Failed to list payouts")
		return
	}

	response.Success(ctx, http.StatusOK, "Payouts retrieved", gin.H{
		"payouts": payouts,
		"count":   len(payouts),
	})
}

// ReleaseReceipt handles POST /api/v1/payouts/:id/release
func (c *Controller) ReleaseReceipt(ctx *gin.Context) {
	payoutID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid payout id")
		return
	}

	if err := c.service.ReleaseReceipt(ctx.Request.Context(), payoutID); err != nil {
		c.respondPayoutError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Receipt released to organizer", nil)
}

// InitiatePayment handles POST /api/v1/payouts/:id/initiate
func (c *Controller) InitiatePayment(ctx *gin.Context) {
	adminID, ok := requesterFromContext(ctx)
	if !ok {
		return
	}

	payoutID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid payout id")
		return
	}

	var req InitiateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	code, err := c.service.InitiatePayment(ctx.Request.Context(), payoutID, req.PaymentMethod, adminID)
	if err != nil {
		c.respondPayoutError(ctx, err)
		return
	}

	// The code is shown once, here, for out-of-band delivery to the
	// organizer. It is not retrievable afterwards.
	response.Success(ctx, http.StatusOK, "Transfer initiated", gin.H{
		"confirmation_code": code,
	})
}

// ConfirmReceived handles POST /api/v1/payouts/:id/confirm
func (c *Controller) ConfirmReceived(ctx *gin.Context) {
	organizerID, ok := requesterFromContext(ctx)
	if !ok {
		return
	}

	payoutID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid payout id")
		return
	}

	var req ConfirmRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := c.service.ConfirmReceived(ctx.Request.Context(), payoutID, organizerID, req); err != nil {
		c.respondPayoutError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Payout confirmed as received", nil)
}

func (c *Controller) respondPayoutError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPayoutNotFound), errors.Is(err, events.ErrEventNotFound):
		response.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotPayoutOwner):
		response.Error(ctx, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrPayoutAlreadyPaid), errors.Is(err, ErrAlreadyInitiated),
		errors.Is(err, ErrNotInitiated):
		response.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, ErrBadConfirmationCode):
		response.Error(ctx, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrTooManyAttempts):
		response.Error(ctx, http.StatusTooManyRequests, err.Error())
	default:
		response.Error(ctx, http.StatusInternalServerError, "Internal server error")
	}
}

func requesterFromContext(ctx *gin.Context) (uuid.UUID, bool) {
	raw, exists := ctx.Get("user_id")
	if !exists {
		response.Error(ctx, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	str, ok := raw.(string)
	if !ok {
		response.Error(ctx, http.StatusInternalServerError, "Invalid user id in token")
		return uuid.Nil, false
	}

	requesterID, err := uuid.Parse(str)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid user id in token")
		return uuid.Nil, false
	}

	return requesterID, true
}
