package orders

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tixgate/internal/capacity"
	"tixgate/internal/credential"
	"tixgate/internal/events"
	"tixgate/internal/transitions"
	"tixgate/pkg/logger"
)

// fakeLedger reproduces the hold lifecycle gates in memory: one status
// flip per hold, expiry observed at commit time.
type fakeLedger struct {
	mu     sync.Mutex
	prices map[string]float64
	holds  map[uuid.UUID]*capacity.CapacityHold
	now    func() time.Time

	released          []uuid.UUID
	releasedCommitted []uuid.UUID
}

func newFakeLedger(prices map[string]float64, now func() time.Time) *fakeLedger {
	return &fakeLedger{
		prices: prices,
		holds:  make(map[uuid.UUID]*capacity.CapacityHold),
		now:    now,
	}
}

func (f *fakeLedger) Hold(ctx context.Context, eventID uuid.UUID, items []capacity.HoldRequest, ttl time.Duration) (*capacity.CapacityHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hold := &capacity.CapacityHold{
		ID:        uuid.New(),
		EventID:   eventID,
		Status:    capacity.HoldActive,
		ExpiresAt: f.now().Add(ttl),
	}
	for _, item := range items {
		price, ok := f.prices[item.Category]
		if !ok {
			return nil, capacity.ErrUnknownCategory
		}
		hold.Items = append(hold.Items, capacity.HoldItem{
			HoldID:    hold.ID,
			Category:  item.Category,
			Quantity:  item.Quantity,
			PriceEach: price,
		})
	}

	f.holds[hold.ID] = hold
	return hold, nil
}

func (f *fakeLedger) GetHold(ctx context.Context, holdID uuid.UUID) (*capacity.CapacityHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hold, ok := f.holds[holdID]
	if !ok {
		return nil, capacity.ErrHoldNotFound
	}
	copied := *hold
	copied.Items = append([]capacity.HoldItem(nil), hold.Items...)
	return &copied, nil
}

func (f *fakeLedger) Commit(ctx context.Context, holdID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hold, ok := f.holds[holdID]
	if !ok {
		return capacity.ErrHoldNotFound
	}
	if hold.Status != capacity.HoldActive {
		if hold.Status == capacity.HoldExpired {
			return capacity.ErrHoldExpired
		}
		return capacity.ErrHoldNotActive
	}
	if !f.now().Before(hold.ExpiresAt) {
		return capacity.ErrHoldExpired
	}
	hold.Status = capacity.HoldCommitted
	return nil
}

func (f *fakeLedger) Release(ctx context.Context, holdID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hold, ok := f.holds[holdID]
	if !ok {
		return capacity.ErrHoldNotFound
	}
	if hold.Status != capacity.HoldActive {
		return capacity.ErrHoldNotActive
	}
	hold.Status = capacity.HoldReleased
	f.released = append(f.released, holdID)
	return nil
}

func (f *fakeLedger) ReleaseCommitted(ctx context.Context, holdID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hold, ok := f.holds[holdID]
	if !ok {
		return capacity.ErrHoldNotFound
	}
	if hold.Status != capacity.HoldCommitted {
		return capacity.ErrHoldNotCommitted
	}
	hold.Status = capacity.HoldReleased
	f.releasedCommitted = append(f.releasedCommitted, holdID)
	return nil
}

func (f *fakeLedger) expire(holdID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds[holdID].Status = capacity.HoldExpired
}

// fakeOrderRepo applies the same status gates as the SQL layer
type fakeOrderRepo struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*Order
	tickets map[uuid.UUID]*Ticket
	catalog *fakeCatalog
}

func newFakeOrderRepo(catalog *fakeCatalog) *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:  make(map[uuid.UUID]*Order),
		tickets: make(map[uuid.UUID]*Ticket),
		catalog: catalog,
	}
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, order *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	copied := *order
	copied.Tickets = nil
	for _, t := range f.tickets {
		if t.OrderID == id {
			copied.Tickets = append(copied.Tickets, *t)
		}
	}
	return &copied, nil
}

func (f *fakeOrderRepo) ConfirmOrder(ctx context.Context, id uuid.UUID, tickets []Ticket) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Status != StatusPending {
		return false, nil
	}
	order.Status = StatusConfirmed
	for i := range tickets {
		t := tickets[i]
		t.ID = uuid.New()
		f.tickets[t.ID] = &t
	}
	return true, nil
}

func (f *fakeOrderRepo) CancelPending(ctx context.Context, id uuid.UUID, refundDue float64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Status != StatusPending {
		return false, nil
	}
	order.Status = StatusCancelled
	order.CancelledAt = &now
	if refundDue > 0 {
		order.RefundStage = RefundDue
		order.RefundAmount = refundDue
	}
	return true, nil
}

func (f *fakeOrderRepo) CancelConfirmed(ctx context.Context, id uuid.UUID, refund float64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Status != StatusConfirmed {
		return false, nil
	}
	order.Status = StatusCancelled
	order.RefundStage = RefundDue
	order.RefundAmount = refund
	order.CancelledAt = &now
	return true, nil
}

func (f *fakeOrderRepo) MarkRefundProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.RefundStage != RefundDue {
		return false, nil
	}
	order.RefundStage = RefundProcessed
	return true, nil
}

func (f *fakeOrderRepo) ListRefundsDue(ctx context.Context) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []Order
	for _, o := range f.orders {
		if o.RefundStage == RefundDue {
			due = append(due, *o)
		}
	}
	return due, nil
}

func (f *fakeOrderRepo) GetTicketScan(ctx context.Context, ticketID uuid.UUID) (*TicketScan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	order := f.orders[ticket.OrderID]
	event := f.catalog.events[ticket.EventID]
	return &TicketScan{
		TicketID:      ticket.ID,
		Category:      ticket.Category,
		CheckInStatus: ticket.CheckInStatus,
		CheckedInAt:   ticket.CheckedInAt,
		OrderStatus:   order.Status,
		HolderID:      order.UserID,
		EventID:       ticket.EventID,
		EventName:     event.Name,
		EventStart:    event.StartTime,
	}, nil
}

func (f *fakeOrderRepo) GetTicketWithOrder(ctx context.Context, ticketID uuid.UUID) (*Ticket, *Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok {
		return nil, nil, ErrTicketNotFound
	}
	order := f.orders[ticket.OrderID]
	ticketCopy := *ticket
	orderCopy := *order
	return &ticketCopy, &orderCopy, nil
}

func (f *fakeOrderRepo) CheckInTicket(ctx context.Context, ticketID uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok || ticket.CheckInStatus != NotCheckedIn {
		return false, nil
	}
	if order, ok := f.orders[ticket.OrderID]; !ok || order.Status != StatusConfirmed {
		return false, nil
	}
	ticket.CheckInStatus = CheckedIn
	ticket.CheckedInAt = &now
	return true, nil
}

func (f *fakeOrderRepo) ticketIDs(orderID uuid.UUID) []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, t := range f.tickets {
		if t.OrderID == orderID {
			ids = append(ids, id)
		}
	}
	return ids
}

type fakeCatalog struct {
	events map[uuid.UUID]*events.Event
}

func (f *fakeCatalog) GetEvent(ctx context.Context, id uuid.UUID) (*events.Event, error) {
	event, ok := f.events[id]
	if !ok {
		return nil, events.ErrEventNotFound
	}
	return event, nil
}

type recordingProducer struct {
	mu     sync.Mutex
	events []*transitions.Event
}

func (r *recordingProducer) Publish(ctx context.Context, event *transitions.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingProducer) Close() error { return nil }

func (r *recordingProducer) types() []transitions.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []transitions.Type
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc      *service
	repo     *fakeOrderRepo
	ledger   *fakeLedger
	catalog  *fakeCatalog
	producer *recordingProducer
	eventID  uuid.UUID
	userID   uuid.UUID
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	start := time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)
	now := start.Add(-48 * time.Hour)
	clock := &now

	eventID := uuid.New()
	catalog := &fakeCatalog{events: map[uuid.UUID]*events.Event{
		eventID: {
			ID:                    eventID,
			Name:                  "Summer Gala",
			Status:                events.StatusPublished,
			StartTime:             start,
			EndTime:               start.Add(4 * time.Hour),
			Cancellable:           true,
			CancellationWindowMin: events.DefaultCancellationWindowMin,
			OrganizerID:           uuid.New(),
		},
	}}

	nowFn := func() time.Time { return *clock }
	ledger := newFakeLedger(map[string]float64{"GA": 50, "VIP": 120}, nowFn)
	repo := newFakeOrderRepo(catalog)
	producer := &recordingProducer{}

	svc := &service{
		repo:     repo,
		ledger:   ledger,
		catalog:  catalog,
		signer:   credential.NewSigner("scan-test-secret"),
		producer: producer,
		log:      logger.GetDefault(),
		holdTTL:  10 * time.Minute,
		qrSize:   128,
		now:      nowFn,
	}

	return &fixture{
		svc:      svc,
		repo:     repo,
		ledger:   ledger,
		catalog:  catalog,
		producer: producer,
		eventID:  eventID,
		userID:   uuid.New(),
		clock:    clock,
	}
}

func (fx *fixture) createOrder(t *testing.T) *OrderResponse {
	t.Helper()
	resp, err := fx.svc.CreateOrder(context.Background(), fx.userID, CreateOrderRequest{
		EventID: fx.eventID.String(),
		Items: []OrderItemInput{
			{Category: "GA", Quantity: 2},
			{Category: "VIP", Quantity: 1},
		},
	})
	require.NoError(t, err)
	return resp
}

func (fx *fixture) confirmOrder(t *testing.T, orderID string) {
	t.Helper()
	require.NoError(t, fx.svc.HandlePaymentResult(context.Background(), PaymentWebhookRequest{
		OrderID: orderID,
		Result:  "succeeded",
	}))
}

func TestCreateOrderPlacesHoldAndStaysPending(t *testing.T) {
	fx := newFixture(t)

	resp := fx.createOrder(t)

	assert.Equal(t, StatusPending.String(), resp.Status)
	assert.Equal(t, 3, resp.Quantity)
	assert.InDelta(t, 220.0, resp.TotalAmount, 0.001)
	assert.NotEmpty(t, resp.OrderRef)
	require.NotNil(t, resp.HoldExpires)
	assert.Empty(t, resp.Tickets, "tickets are minted on confirmation, not at checkout")
}

func TestCreateOrderRefusedAfterEventStart(t *testing.T) {
	fx := newFixture(t)
	*fx.clock = fx.catalog.events[fx.eventID].StartTime.Add(time.Minute)

	_, err := fx.svc.CreateOrder(context.Background(), fx.userID, CreateOrderRequest{
		EventID: fx.eventID.String(),
		Items:   []OrderItemInput{{Category: "GA", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrBookingClosed)
}

func TestPaymentSuccessConfirmsAndMintsTickets(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)

	fx.confirmOrder(t, resp.ID)

	orderID := uuid.MustParse(resp.ID)
	order, err := fx.svc.GetOrder(context.Background(), orderID, fx.userID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed.String(), order.Status)
	require.Len(t, order.Tickets, 3)

	categories := map[string]int{}
	for _, ticket := range order.Tickets {
		categories[ticket.Category]++
		assert.Equal(t, NotCheckedIn.String(), ticket.CheckInStatus)
	}
	assert.Equal(t, 2, categories["GA"])
	assert.Equal(t, 1, categories["VIP"])

	assert.Equal(t, []transitions.Type{transitions.TypeOrderConfirmed}, fx.producer.types())
}

func TestPaymentWebhookReplayIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)

	fx.confirmOrder(t, resp.ID)
	fx.confirmOrder(t, resp.ID)
	fx.confirmOrder(t, resp.ID)

	order, err := fx.svc.GetOrder(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, err)
	assert.Len(t, order.Tickets, 3, "replayed webhook must not mint extra tickets")
	assert.Len(t, fx.producer.types(), 1, "replayed webhook must not republish")
}

func TestPaymentAmountMismatchIsLogged(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)

	var buf bytes.Buffer
	fx.svc.log = &logger.Logger{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, fx.svc.HandlePaymentResult(context.Background(), PaymentWebhookRequest{
		OrderID: resp.ID,
		Result:  "succeeded",
		Amount:  199.0,
	}))

	order, err := fx.svc.GetOrder(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed.String(), order.Status, "a gateway rounding quirk must not block settlement")
	assert.Contains(t, buf.String(), "Webhook amount mismatch")
}

func TestPaymentRetryFinishesInterruptedSettlement(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)

	// The first delivery committed the hold and then died before the
	// order flip. The retry must not be acknowledged as done while the
	// order is still pending.
	require.NoError(t, fx.ledger.Commit(context.Background(), uuid.MustParse(resp.HoldID)))

	fx.confirmOrder(t, resp.ID)

	order, err := fx.svc.GetOrder(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed.String(), order.Status)
	assert.Len(t, order.Tickets, 3)
	assert.Equal(t, []transitions.Type{transitions.TypeOrderConfirmed}, fx.producer.types())
}

func TestPaymentSuccessAfterHoldReleased(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)

	require.NoError(t, fx.ledger.Release(context.Background(), uuid.MustParse(resp.HoldID)))

	err := fx.svc.HandlePaymentResult(context.Background(), PaymentWebhookRequest{
		OrderID: resp.ID,
		Result:  "succeeded",
	})
	assert.ErrorIs(t, err, ErrHoldLost)

	order, err := fx.svc.GetOrder(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled.String(), order.Status)
	assert.Equal(t, RefundDue.String(), order.RefundStage)
	assert.Empty(t, order.Tickets)
}

func TestPaymentSuccessAfterHoldExpiry(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)

	fx.ledger.expire(uuid.MustParse(resp.HoldID))

	err := fx.svc.HandlePaymentResult(context.Background(), PaymentWebhookRequest{
		OrderID: resp.ID,
		Result:  "succeeded",
	})
	assert.ErrorIs(t, err, ErrHoldLost)

	order, err := fx.svc.GetOrder(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled.String(), order.Status)
	assert.Equal(t, RefundDue.String(), order.RefundStage)
	assert.InDelta(t, 220.0, order.RefundAmount, 0.001)
	assert.Empty(t, order.Tickets)
}

func TestPaymentFailureReleasesHold(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)

	require.NoError(t, fx.svc.HandlePaymentResult(context.Background(), PaymentWebhookRequest{
		OrderID: resp.ID,
		Result:  "failed",
	}))

	order, err := fx.svc.GetOrder(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled.String(), order.Status)
	assert.Equal(t, RefundNone.String(), order.RefundStage, "nothing was captured, nothing to refund")
	assert.Contains(t, fx.ledger.released, uuid.MustParse(resp.HoldID))
}

func TestCancelInsideWindow(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	// 13 hours before start, one hour inside the 12h default window
	*fx.clock = fx.catalog.events[fx.eventID].StartTime.Add(-13 * time.Hour)

	cancelled, err := fx.svc.Cancel(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled.String(), cancelled.Status)
	assert.Equal(t, RefundDue.String(), cancelled.RefundStage)
	assert.InDelta(t, 220.0, cancelled.RefundAmount, 0.001, "refund is the full captured amount, server-computed")
	assert.Contains(t, fx.ledger.releasedCommitted, uuid.MustParse(resp.HoldID))
	assert.Equal(t, []transitions.Type{transitions.TypeOrderConfirmed, transitions.TypeOrderCancelled}, fx.producer.types())
}

func TestCancelOutsideWindow(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	// 11 hours before start, one hour past the deadline
	*fx.clock = fx.catalog.events[fx.eventID].StartTime.Add(-11 * time.Hour)

	_, err := fx.svc.Cancel(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	assert.ErrorIs(t, err, ErrCancellationWindowClosed)

	order, getErr := fx.svc.GetOrder(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusConfirmed.String(), order.Status)
}

func TestCancelRetryRepairsStrandedCapacity(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)
	*fx.clock = fx.catalog.events[fx.eventID].StartTime.Add(-20 * time.Hour)

	// The first cancel flipped the order and then died before the
	// capacity release.
	orderID := uuid.MustParse(resp.ID)
	cancelled, err := fx.repo.CancelConfirmed(context.Background(), orderID, 220.0, *fx.clock)
	require.NoError(t, err)
	require.True(t, cancelled)
	require.Empty(t, fx.ledger.releasedCommitted)

	retried, err := fx.svc.Cancel(context.Background(), orderID, fx.userID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled.String(), retried.Status)
	assert.Contains(t, fx.ledger.releasedCommitted, uuid.MustParse(resp.HoldID))

	// A further retry finds nothing left to repair
	_, err = fx.svc.Cancel(context.Background(), orderID, fx.userID)
	assert.ErrorIs(t, err, ErrOrderNotConfirmed)
}

func TestCancelNotCancellableEvent(t *testing.T) {
	fx := newFixture(t)
	fx.catalog.events[fx.eventID].Cancellable = false
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	_, err := fx.svc.Cancel(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestCancelPendingOrderRejected(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)

	_, err := fx.svc.Cancel(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	assert.ErrorIs(t, err, ErrOrderNotConfirmed)
}

func TestCancelByStrangerRejected(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	_, err := fx.svc.Cancel(context.Background(), uuid.MustParse(resp.ID), uuid.New())
	assert.ErrorIs(t, err, ErrNotOrderOwner)
}

func TestRefundWorklist(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)
	*fx.clock = fx.catalog.events[fx.eventID].StartTime.Add(-20 * time.Hour)

	_, err := fx.svc.Cancel(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, err)

	due, err := fx.svc.ListRefundsDue(context.Background())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, resp.ID, due[0].OrderID)

	require.NoError(t, fx.svc.MarkRefundProcessed(context.Background(), uuid.MustParse(resp.ID)))

	due, err = fx.svc.ListRefundsDue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, due)

	// Advancing twice is refused, never silently skipped
	err = fx.svc.MarkRefundProcessed(context.Background(), uuid.MustParse(resp.ID))
	assert.ErrorIs(t, err, ErrRefundNotDue)
}

func TestCheckInAdmitsOnceThenRefuses(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	ticketID := fx.repo.ticketIDs(uuid.MustParse(resp.ID))[0]
	cred := fx.svc.signer.Issue(ticketID.String())

	first, err := fx.svc.CheckIn(context.Background(), CheckInRequest{TicketID: cred.TicketID, Tag: cred.Tag}, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.Equal(t, "Summer Gala", first.EventName)

	second, err := fx.svc.CheckIn(context.Background(), CheckInRequest{TicketID: cred.TicketID, Tag: cred.Tag}, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, second.Valid)
	assert.Equal(t, ReasonAlreadyUsed, second.Reason)
}

func TestConcurrentScansSingleWinner(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	ticketID := fx.repo.ticketIDs(uuid.MustParse(resp.ID))[0]
	cred := fx.svc.signer.Issue(ticketID.String())

	const scanners = 8
	results := make(chan *ScanResult, scanners)
	var wg sync.WaitGroup
	wg.Add(scanners)
	for i := 0; i < scanners; i++ {
		go func() {
			defer wg.Done()
			result, err := fx.svc.CheckIn(context.Background(), CheckInRequest{TicketID: cred.TicketID, Tag: cred.Tag}, "10.0.0.2")
			if !assert.NoError(t, err) {
				return
			}
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for result := range results {
		if result.Valid {
			admitted++
		} else {
			assert.Equal(t, ReasonAlreadyUsed, result.Reason)
		}
	}
	assert.Equal(t, 1, admitted)
}

func TestCheckInForgedTag(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	ticketID := fx.repo.ticketIDs(uuid.MustParse(resp.ID))[0]

	result, err := fx.svc.CheckIn(context.Background(), CheckInRequest{
		TicketID: ticketID.String(),
		Tag:      "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
	}, "10.0.0.3")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonBadSignature, result.Reason)
}

func TestCheckInUnknownTicket(t *testing.T) {
	fx := newFixture(t)

	// Valid MAC over an id that was never minted
	cred := fx.svc.signer.Issue(uuid.New().String())

	result, err := fx.svc.CheckIn(context.Background(), CheckInRequest{TicketID: cred.TicketID, Tag: cred.Tag}, "10.0.0.4")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonBadSignature, result.Reason)
}

func TestCheckInCancelledOrder(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	ticketID := fx.repo.ticketIDs(uuid.MustParse(resp.ID))[0]
	cred := fx.svc.signer.Issue(ticketID.String())

	*fx.clock = fx.catalog.events[fx.eventID].StartTime.Add(-20 * time.Hour)
	_, err := fx.svc.Cancel(context.Background(), uuid.MustParse(resp.ID), fx.userID)
	require.NoError(t, err)

	result, err := fx.svc.CheckIn(context.Background(), CheckInRequest{TicketID: cred.TicketID, Tag: cred.Tag}, "10.0.0.5")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonCancelled, result.Reason)
}

// cancelRacingRepo lands a buyer cancellation right after the scan read,
// in the window before the check-in flip.
type cancelRacingRepo struct {
	*fakeOrderRepo
	orderID uuid.UUID
	cancel  sync.Once
}

func (r *cancelRacingRepo) GetTicketScan(ctx context.Context, ticketID uuid.UUID) (*TicketScan, error) {
	scan, err := r.fakeOrderRepo.GetTicketScan(ctx, ticketID)
	r.cancel.Do(func() {
		r.fakeOrderRepo.CancelConfirmed(ctx, r.orderID, 0, time.Now())
	})
	return scan, err
}

func TestCheckInRefusedWhenCancelRacesScan(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	orderID := uuid.MustParse(resp.ID)
	ticketID := fx.repo.ticketIDs(orderID)[0]
	cred := fx.svc.signer.Issue(ticketID.String())

	fx.svc.repo = &cancelRacingRepo{fakeOrderRepo: fx.repo, orderID: orderID}

	result, err := fx.svc.CheckIn(context.Background(), CheckInRequest{TicketID: cred.TicketID, Tag: cred.Tag}, "10.0.0.6")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonCancelled, result.Reason)

	for _, ticket := range fx.repo.tickets {
		assert.Equal(t, NotCheckedIn, ticket.CheckInStatus, "cancelled order's ticket must not be admitted")
	}
}

func TestTicketQR(t *testing.T) {
	fx := newFixture(t)
	resp := fx.createOrder(t)
	fx.confirmOrder(t, resp.ID)

	ticketID := fx.repo.ticketIDs(uuid.MustParse(resp.ID))[0]

	png, err := fx.svc.TicketQR(context.Background(), ticketID, fx.userID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	_, err = fx.svc.TicketQR(context.Background(), ticketID, uuid.New())
	assert.ErrorIs(t, err, ErrNotOrderOwner)
}
