package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"tixgate/internal/capacity"
	"tixgate/internal/credential"
	"tixgate/internal/events"
	"tixgate/internal/transitions"
	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"
)

// Ledger is the slice of the capacity service this package needs
type Ledger interface {
	Hold(ctx context.Context, eventID uuid.UUID, items []capacity.HoldRequest, ttl time.Duration) (*capacity.CapacityHold, error)
	GetHold(ctx context.Context, holdID uuid.UUID) (*capacity.CapacityHold, error)
	Commit(ctx context.Context, holdID uuid.UUID) error
	Release(ctx context.Context, holdID uuid.UUID) error
	ReleaseCommitted(ctx context.Context, holdID uuid.UUID) error
}

// EventCatalog is the slice of the events service this package needs
type EventCatalog interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*events.Event, error)
}

type Service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderResponse, error)

	HandlePaymentResult(ctx context.Context, req PaymentWebhookRequest) error
	Cancel(ctx context.Context, orderID, userID uuid.UUID) (*OrderResponse, error)

	MarkRefundProcessed(ctx context.Context, orderID uuid.UUID) error
	ListRefundsDue(ctx context.Context) ([]RefundWorkItem, error)

	TicketQR(ctx context.Context, ticketID, userID uuid.UUID) ([]byte, error)
	CheckIn(ctx context.Context, req CheckInRequest, scannerIP string) (*ScanResult, error)
}

type service struct {
	repo     Repository
	ledger   Ledger
	catalog  EventCatalog
	signer   *credential.Signer
	producer transitions.Producer
	log      *logger.Logger

	holdTTL time.Duration
	qrSize  int
	now     func() time.Time
}

func NewService(repo Repository, ledger Ledger, catalog EventCatalog, signer *credential.Signer, producer transitions.Producer, log *logger.Logger, holdTTL time.Duration, qrSize int) Service {
	return &service{
		repo:     repo,
		ledger:   ledger,
		catalog:  catalog,
		signer:   signer,
		producer: producer,
		log:      log,
		holdTTL:  holdTTL,
		qrSize:   qrSize,
		now:      time.Now,
	}
}

// CreateOrder places the capacity hold and records the pending order in
// one step. The order stays PENDING until the payment webhook settles it.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*OrderResponse, error) {
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		return nil, fmt.Errorf("invalid event id: %w", err)
	}

	event, err := s.catalog.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.BookingOpen(s.now()) {
		return nil, ErrBookingClosed
	}

	items := make([]capacity.HoldRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, capacity.HoldRequest{
			Category: item.Category,
			Quantity: item.Quantity,
		})
	}

	hold, err := s.ledger.Hold(ctx, eventID, items, s.holdTTL)
	if err != nil {
		return nil, err
	}

	order := &Order{
		OrderRef:    generateOrderRef(s.now()),
		UserID:      userID,
		EventID:     eventID,
		HoldID:      hold.ID,
		Quantity:    hold.TotalQuantity(),
		TotalAmount: hold.TotalAmount(),
		Status:      StatusPending,
		RefundStage: RefundNone,
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		// Give the seats back; the sweep would reclaim them anyway but
		// there is no reason to sit on them for the full TTL.
		if relErr := s.ledger.Release(ctx, hold.ID); relErr != nil {
			s.log.Error("Failed to release hold after order create failure",
				"hold_id", hold.ID.String(), "error", relErr.Error())
		}
		return nil, err
	}

	resp := order.ToResponse()
	resp.HoldExpires = &hold.ExpiresAt
	return &resp, nil
}

func (s *service) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderResponse, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	resp := order.ToResponse()
	return &resp, nil
}

// HandlePaymentResult settles a pending order from the payment webhook.
// Replays are no-ops: the PENDING status gate lets exactly one delivery
// mint tickets, every other delivery observes the done state.
func (s *service) HandlePaymentResult(ctx context.Context, req PaymentWebhookRequest) error {
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order id: %w", err)
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if req.Result == "succeeded" {
		if req.Amount != 0 && math.Abs(req.Amount-order.TotalAmount) > 0.005 {
			s.log.Warn("Webhook amount mismatch",
				"order_id", order.ID.String(),
				"webhook_amount", req.Amount,
				"order_total", order.TotalAmount)
		}
		return s.settleSuccess(ctx, order)
	}
	return s.settleFailure(ctx, order)
}

func (s *service) settleSuccess(ctx context.Context, order *Order) error {
	switch order.Status {
	case StatusConfirmed:
		return nil // webhook replay
	case StatusCancelled:
		return ErrOrderNotPending
	}

	err := s.ledger.Commit(ctx, order.HoldID)
	switch {
	case err == nil:
	case errors.Is(err, capacity.ErrHoldNotActive):
		// The commit already landed: a concurrent delivery won it, or a
		// crash split an earlier delivery between commit and confirm.
		// The hold status check below decides which; the PENDING gate on
		// ConfirmOrder makes finishing the job here a safe no-op when a
		// true concurrent winner confirmed first.
	case errors.Is(err, capacity.ErrHoldExpired), errors.Is(err, capacity.ErrHoldNotFound):
		return s.cancelHoldLost(ctx, order)
	default:
		return err
	}

	hold, err := s.ledger.GetHold(ctx, order.HoldID)
	if err != nil {
		return err
	}
	if hold.Status != capacity.HoldCommitted {
		// Released or swept out from under a still-pending order; the
		// seats are gone.
		return s.cancelHoldLost(ctx, order)
	}

	tickets := mintTickets(order, hold)
	confirmed, err := s.repo.ConfirmOrder(ctx, order.ID, tickets)
	if err != nil {
		return err
	}
	if !confirmed {
		// The order left PENDING between our read and the flip. A
		// concurrent delivery that confirmed first is a replay; a cancel
		// racing in needs the committed capacity put back.
		current, gErr := s.repo.GetOrderByID(ctx, order.ID)
		if gErr != nil {
			return gErr
		}
		if current.Status == StatusConfirmed {
			return nil
		}
		if relErr := s.ledger.ReleaseCommitted(ctx, order.HoldID); relErr != nil &&
			!errors.Is(relErr, capacity.ErrHoldNotCommitted) {
			s.log.Error("Failed to release capacity for unconfirmable order",
				"order_id", order.ID.String(), "error", relErr.Error())
		}
		return ErrOrderNotPending
	}

	metrics.OrderConfirmed()
	s.log.LogOrderConfirmed(ctx, order.ID.String(), order.EventID.String(), order.UserID.String())
	s.publish(ctx, transitions.NewEvent(transitions.TypeOrderConfirmed, order.EventID, order.ID, map[string]interface{}{
		"order_ref": order.OrderRef,
		"quantity":  order.Quantity,
		"amount":    order.TotalAmount,
	}))
	return nil
}

// cancelHoldLost parks the captured amount for refund when payment
// settles after the seats are gone.
func (s *service) cancelHoldLost(ctx context.Context, order *Order) error {
	if _, err := s.repo.CancelPending(ctx, order.ID, order.TotalAmount, s.now()); err != nil {
		return err
	}
	metrics.OrderCancelled()
	s.log.Warn("Payment settled after hold was lost, refund due",
		"order_id", order.ID.String(), "amount", order.TotalAmount)
	return ErrHoldLost
}

func (s *service) settleFailure(ctx context.Context, order *Order) error {
	if order.Status != StatusPending {
		return nil
	}

	if err := s.ledger.Release(ctx, order.HoldID); err != nil &&
		!errors.Is(err, capacity.ErrHoldNotActive) &&
		!errors.Is(err, capacity.ErrHoldNotFound) {
		return err
	}

	if _, err := s.repo.CancelPending(ctx, order.ID, 0, s.now()); err != nil {
		return err
	}

	metrics.OrderCancelled()
	return nil
}

// Cancel is the buyer-initiated path. Only confirmed orders inside the
// event's cancellation window qualify; the refund amount is computed
// here, never taken from the request.
func (s *service) Cancel(ctx context.Context, orderID, userID uuid.UUID) (*OrderResponse, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	if order.Status != StatusConfirmed {
		if order.Status == StatusCancelled {
			// A crash between the cancel flip and the capacity release
			// leaves the hold committed. The COMMITTED -> RELEASED gate
			// makes finishing the release on retry an idempotent repair.
			if relErr := s.ledger.ReleaseCommitted(ctx, order.HoldID); relErr == nil {
				resp := order.ToResponse()
				return &resp, nil
			}
		}
		return nil, ErrOrderNotConfirmed
	}

	event, err := s.catalog.GetEvent(ctx, order.EventID)
	if err != nil {
		return nil, err
	}
	if !event.Cancellable {
		return nil, ErrNotCancellable
	}
	if !event.CancellableAt(s.now()) {
		return nil, ErrCancellationWindowClosed
	}

	refund := order.TotalAmount

	cancelled, err := s.repo.CancelConfirmed(ctx, orderID, refund, s.now())
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, ErrOrderNotConfirmed
	}

	if err := s.ledger.ReleaseCommitted(ctx, order.HoldID); err != nil {
		return nil, fmt.Errorf("order cancelled but capacity release failed: %w", err)
	}

	metrics.OrderCancelled()
	s.log.LogOrderCancelled(ctx, order.ID.String(), order.EventID.String(), order.UserID.String())
	s.publish(ctx, transitions.NewEvent(transitions.TypeOrderCancelled, order.EventID, order.ID, map[string]interface{}{
		"order_ref":     order.OrderRef,
		"refund_amount": refund,
	}))

	return s.GetOrder(ctx, orderID, userID)
}

func (s *service) MarkRefundProcessed(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	processed, err := s.repo.MarkRefundProcessed(ctx, orderID)
	if err != nil {
		return err
	}
	if !processed {
		return ErrRefundNotDue
	}

	s.publish(ctx, transitions.NewEvent(transitions.TypeOrderRefundProcessed, order.EventID, order.ID, map[string]interface{}{
		"order_ref": order.OrderRef,
		"amount":    order.RefundAmount,
	}))
	return nil
}

func (s *service) ListRefundsDue(ctx context.Context) ([]RefundWorkItem, error) {
	orders, err := s.repo.ListRefundsDue(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]RefundWorkItem, 0, len(orders))
	for _, o := range orders {
		line := RefundWorkItem{
			OrderID:  o.ID.String(),
			OrderRef: o.OrderRef,
			EventID:  o.EventID.String(),
			UserID:   o.UserID.String(),
			Amount:   o.RefundAmount,
		}
		if o.CancelledAt != nil {
			line.CancelledAt = *o.CancelledAt
		}
		due = append(due, line)
	}
	return due, nil
}

// TicketQR renders the signed credential for one ticket as a QR PNG.
// Only the order owner gets it, and only while the order is confirmed.
func (s *service) TicketQR(ctx context.Context, ticketID, userID uuid.UUID) ([]byte, error) {
	ticket, order, err := s.repo.GetTicketWithOrder(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	if order.Status != StatusConfirmed {
		return nil, ErrOrderNotConfirmed
	}

	cred := s.signer.Issue(ticket.ID.String())
	return cred.QRPNG(s.qrSize)
}

// CheckIn verifies a scanned credential and admits at most once. All
// integrity failures come back as a refused ScanResult, not an error;
// errors are reserved for infrastructure trouble.
func (s *service) CheckIn(ctx context.Context, req CheckInRequest, scannerIP string) (*ScanResult, error) {
	if !s.signer.Verify(req.TicketID, req.Tag) {
		return s.refuse(ctx, req.TicketID, ReasonBadSignature, scannerIP), nil
	}

	ticketID, err := uuid.Parse(req.TicketID)
	if err != nil {
		return s.refuse(ctx, req.TicketID, ReasonBadSignature, scannerIP), nil
	}

	scan, err := s.repo.GetTicketScan(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return s.refuse(ctx, req.TicketID, ReasonBadSignature, scannerIP), nil
		}
		return nil, err
	}

	switch scan.OrderStatus {
	case StatusPending:
		return s.refuse(ctx, req.TicketID, ReasonNotPaid, scannerIP), nil
	case StatusCancelled:
		return s.refuse(ctx, req.TicketID, ReasonCancelled, scannerIP), nil
	}

	admitted, err := s.repo.CheckInTicket(ctx, ticketID, s.now())
	if err != nil {
		return nil, err
	}
	if !admitted {
		// The flip is gated on both the ticket and the owning order, so
		// re-read to tell a used ticket apart from a cancellation that
		// raced in after the first read.
		current, rErr := s.repo.GetTicketScan(ctx, ticketID)
		if rErr != nil {
			return nil, rErr
		}
		switch current.OrderStatus {
		case StatusPending:
			return s.refuse(ctx, req.TicketID, ReasonNotPaid, scannerIP), nil
		case StatusCancelled:
			return s.refuse(ctx, req.TicketID, ReasonCancelled, scannerIP), nil
		}
		result := s.refuse(ctx, req.TicketID, ReasonAlreadyUsed, scannerIP)
		result.CheckedInAt = current.CheckedInAt
		return result, nil
	}

	metrics.CheckIn("admitted")
	checkedInAt := s.now()
	return &ScanResult{
		Valid:       true,
		TicketID:    scan.TicketID.String(),
		Category:    scan.Category,
		EventName:   scan.EventName,
		EventStart:  &scan.EventStart,
		CheckedInAt: &checkedInAt,
	}, nil
}

func (s *service) refuse(ctx context.Context, ticketID string, reason ScanReason, scannerIP string) *ScanResult {
	metrics.CheckIn(reason.String())
	s.log.LogScanRejected(ctx, ticketID, reason.String(), scannerIP)
	return &ScanResult{
		Valid:  false,
		Reason: reason,
	}
}

func (s *service) publish(ctx context.Context, event *transitions.Event) {
	if err := s.producer.Publish(ctx, event); err != nil {
		s.log.Error("Failed to publish transition event",
			"type", string(event.Type), "subject_id", event.SubjectID.String(), "error", err.Error())
	}
}

// mintTickets expands the hold's item snapshot into one ticket per unit
// of quantity.
func mintTickets(order *Order, hold *capacity.CapacityHold) []Ticket {
	tickets := make([]Ticket, 0, hold.TotalQuantity())
	for _, item := range hold.Items {
		for i := 0; i < item.Quantity; i++ {
			tickets = append(tickets, Ticket{
				OrderID:       order.ID,
				EventID:       order.EventID,
				Category:      item.Category,
				PricePaid:     item.PriceEach,
				CheckInStatus: NotCheckedIn,
			})
		}
	}
	return tickets
}

func generateOrderRef(now time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		return fmt.Sprintf("ORD-%s-%d", now.Format("20060102"), now.UnixNano()%1_000_000)
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}
