package orders

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tixgate/internal/capacity"
	"tixgate/internal/events"
	"tixgate/internal/shared/utils/response"
)

type Controller struct {
	service       Service
	webhookSecret string
}

func NewController(service Service, webhookSecret string) *Controller {
	return &Controller{
		service:       service,
		webhookSecret: webhookSecret,
	}
}

// CreateOrder handles POST /api/v1/orders
func (c *Controller) CreateOrder(ctx *gin.Context) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	order, err := c.service.CreateOrder(ctx.Request.Context(), userID, req)
	if err != nil {
		c.respondOrderError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusCreated, "Order created, awaiting payment", order)
}

// GetOrder handles GET /api/v1/orders/:id
func (c *Controller) GetOrder(ctx *gin.Context) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid order id")
		return
	}

	order, err := c.service.GetOrder(ctx.Request.Context(), orderID, userID)
	if err != nil {
		c.respondOrderError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Order retrieved", order)
}

// PaymentWebhook handles POST /api/v1/webhooks/payment. The gateway
// authenticates with a shared secret header instead of a user JWT.
func (c *Controller) PaymentWebhook(ctx *gin.Context) {
	token := ctx.GetHeader("X-Webhook-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(c.webhookSecret)) != 1 {
		response.Error(ctx, http.StatusUnauthorized, "Invalid webhook token")
		return
	}

	var req PaymentWebhookRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid webhook payload: "+err.Error())
		return
	}

	if err := c.service.HandlePaymentResult(ctx.Request.Context(), req); err != nil {
		if errors.Is(err, ErrHoldLost) {
			// Acknowledge the delivery; the refund is recorded and the
			// gateway must not retry.
			response.Success(ctx, http.StatusOK, "Payment received after hold expiry, refund recorded", nil)
			return
		}
		c.respondOrderError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Payment result processed", nil)
}

// Cancel handles POST /api/v1/orders/:id/cancel
func (c *Controller) Cancel(ctx *gin.Context) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid order id")
		return
	}

	order, err := c.service.Cancel(ctx.Request.Context(), orderID, userID)
	if err != nil {
		c.respondOrderError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Order cancelled, refund due", order)
}

// MarkRefundProcessed handles POST /api/v1/orders/:id/refund-processed
func (c *Controller) MarkRefundProcessed(ctx *gin.Context) {
	orderID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid order id")
		return
	}

	if err := c.service.MarkRefundProcessed(ctx.Request.Context(), orderID); err != nil {
		c.respondOrderError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Refund marked processed", nil)
}

// ListRefundsDue handles GET /api/v1/orders/refunds-due
func (c *Controller) ListRefundsDue(ctx *gin.Context) {
	due, err := c.service.ListRefundsDue(ctx.Request.Context())
	if err != nil {
		response.Error(ctx, http.StatusInternalServerError, "Failed to list refunds due")
		return
	}

	response.Success(ctx, http.StatusOK, "Refunds due retrieved", gin.H{
		"refunds": due,
		"count":   len(due),
	})
}

// TicketQR handles GET /api/v1/tickets/:id/qr
func (c *Controller) TicketQR(ctx *gin.Context) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return
	}

	ticketID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid ticket id")
		return
	}

	png, err := c.service.TicketQR(ctx.Request.Context(), ticketID, userID)
	if err != nil {
		c.respondOrderError(ctx, err)
		return
	}

	ctx.Data(http.StatusOK, "image/png", png)
}

// CheckIn handles POST /api/v1/checkin
func (c *Controller) CheckIn(ctx *gin.Context) {
	var req CheckInRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := c.service.CheckIn(ctx.Request.Context(), req, ctx.ClientIP())
	if err != nil {
		response.Error(ctx, http.StatusInternalServerError, "Scan failed")
		return
	}

	if !result.Valid {
		// Refusals are a normal scanner outcome, not a protocol error
		response.Success(ctx, http.StatusOK, "Ticket refused", result)
		return
	}

	response.Success(ctx, http.StatusOK, "Ticket admitted", result)
}

func (c *Controller) respondOrderError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrTicketNotFound),
		errors.Is(err, events.ErrEventNotFound):
		response.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOrderOwner):
		response.Error(ctx, http.StatusForbidden, err.Error())
	case errors.Is(err, capacity.ErrCapacityExceeded):
		response.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, ErrOrderNotPending), errors.Is(err, ErrOrderNotConfirmed):
		response.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, ErrBookingClosed), errors.Is(err, ErrNotCancellable),
		errors.Is(err, ErrCancellationWindowClosed), errors.Is(err, ErrRefundNotDue):
		response.Error(ctx, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, capacity.ErrUnknownCategory), errors.Is(err, capacity.ErrInvalidQuantity):
		response.Error(ctx, http.StatusBadRequest, err.Error())
	default:
		response.Error(ctx, http.StatusInternalServerError, "Internal server error")
	}
}

func userIDFromContext(ctx *gin.Context) (uuid.UUID, bool) {
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

	userID, err := uuid.Parse(str)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid user id in token")
		return uuid.Nil, false
	}

	return userID, true
}
