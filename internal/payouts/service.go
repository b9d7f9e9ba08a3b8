package payouts

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tixgate/internal/events"
	"tixgate/internal/transitions"
	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"
	"tixgate/pkg/ratelimit"
)

// EventCatalog is the slice of the events service this package needs
type EventCatalog interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*events.Event, error)
}

// AttemptLimiter throttles confirmation-code guesses per payout
type AttemptLimiter interface {
	AllowAction(ctx context.Context, scope string, limit int) (*ratelimit.Result, error)
}

type Service interface {
	Aggregate(ctx context.Context, eventID uuid.UUID) (*PayoutResponse, error)
	GetPayout(ctx context.Context, payoutID, requesterID uuid.UUID, isAdmin bool) (*PayoutResponse, error)
	ListOrganizerPayouts(ctx context.Context, organizerID uuid.UUID) ([]PayoutResponse, error)

	ReleaseReceipt(ctx context.Context, payoutID uuid.UUID) error

	// InitiatePayment returns the one-time confirmation code exactly
	// once; only its bcrypt hash is stored.
	InitiatePayment(ctx context.Context, payoutID uuid.UUID, method string, adminID uuid.UUID) (string, error)

	ConfirmReceived(ctx context.Context, payoutID, organizerID uuid.UUID, req ConfirmRequest) error
}

type service struct {
	repo     Repository
	catalog  EventCatalog
	limiter  AttemptLimiter
	producer transitions.Producer
	log      *logger.Logger

	codeLength      int
	confirmAttempts int
	now             func() time.Time
}

func NewService(repo Repository, catalog EventCatalog, limiter AttemptLimiter, producer transitions.Producer, log *logger.Logger, codeLength, confirmAttempts int) Service {
	return &service{
		repo:            repo,
		catalog:         catalog,
		limiter:         limiter,
		producer:        producer,
		log:             log,
		codeLength:      codeLength,
		confirmAttempts: confirmAttempts,
		now:             time.Now,
	}
}

// Aggregate computes (or recomputes) what the organizer is owed from the
// event's confirmed orders. Safe to re-run as revenue accrues; refused
// once the payout is PAID.
func (s *service) Aggregate(ctx context.Context, eventID uuid.UUID) (*PayoutResponse, error) {
	event, err := s.catalog.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	revenue, err := s.repo.SumConfirmedRevenue(ctx, eventID)
	if err != nil {
		return nil, err
	}

	deductions := platformFee(revenue)
	payout := &Payout{
		EventID:         eventID,
		OrganizerID:     event.OrganizerID,
		TotalRevenue:    revenue.Round(2),
		Deductions:      deductions,
		NetPayable:      revenue.Sub(deductions).Round(2),
		Status:          StatusPending,
		SettlementStage: StageNone,
	}

	saved, err := s.repo.UpsertAggregate(ctx, payout)
	if err != nil {
		return nil, err
	}

	resp := saved.ToResponse()
	return &resp, nil
}

func (s *service) GetPayout(ctx context.Context, payoutID, requesterID uuid.UUID, isAdmin bool) (*PayoutResponse, error) {
	payout, err := s.repo.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	if !isAdmin {
		if payout.OrganizerID != requesterID {
			return nil, ErrNotPayoutOwner
		}
		// The organizer sees nothing until the admin releases the receipt
		if !payout.AvailableToOrg {
			return nil, ErrPayoutNotFound
		}
	}

	resp := payout.ToResponse()
	return &resp, nil
}

func (s *service) ListOrganizerPayouts(ctx context.Context, organizerID uuid.UUID) ([]PayoutResponse, error) {
	payouts, err := s.repo.ListByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, err
	}

	responses := make([]PayoutResponse, 0, len(payouts))
	for i := range payouts {
		if !payouts[i].AvailableToOrg {
			continue
		}
		responses = append(responses, payouts[i].ToResponse())
	}
	return responses, nil
}

// ReleaseReceipt exposes the computed payout to the organizer. Moves no
// money.
func (s *service) ReleaseReceipt(ctx context.Context, payoutID uuid.UUID) error {
	released, err := s.repo.ReleaseReceipt(ctx, payoutID)
	if err != nil {
		return err
	}
	if !released {
		return ErrPayoutAlreadyPaid
	}
	return nil
}

// InitiatePayment records that the admin started the transfer out-of-band
// and mints the one-time code the organizer will confirm with.
func (s *service) InitiatePayment(ctx context.Context, payoutID uuid.UUID, method string, adminID uuid.UUID) (string, error) {
	if _, err := s.repo.GetByID(ctx, payoutID); err != nil {
		return "", err
	}

	code, err := generateConfirmationCode(s.codeLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate confirmation code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash confirmation code: %w", err)
	}

	initiated, err := s.repo.Initiate(ctx, payoutID, method, adminID, string(hash))
	if err != nil {
		return "", err
	}
	if !initiated {
		return "", ErrAlreadyInitiated
	}

	return code, nil
}

// ConfirmReceived is the organizer's half of the handshake. A wrong code
// reveals nothing and is rate-limited per payout; a right one while the
// transfer is INITIATED settles the payout.
func (s *service) ConfirmReceived(ctx context.Context, payoutID, organizerID uuid.UUID, req ConfirmRequest) error {
	result, err := s.limiter.AllowAction(ctx, "payout:confirm:"+payoutID.String(), s.confirmAttempts)
	if err != nil {
		// Redis trouble must not open a brute-force window
		return fmt.Errorf("confirmation attempt check failed: %w", err)
	}
	if !result.Allowed {
		return ErrTooManyAttempts
	}

	payout, err := s.repo.GetByID(ctx, payoutID)
	if err != nil {
		return err
	}
	if payout.OrganizerID != organizerID {
		return ErrNotPayoutOwner
	}
	if payout.SettlementStage != StageInitiated {
		return ErrNotInitiated
	}

	if bcrypt.CompareHashAndPassword([]byte(payout.CodeHash), []byte(req.Code)) != nil {
		s.log.Warn("Payout confirmation code rejected",
			"payout_id", payoutID.String(), "organizer_id", organizerID.String())
		return ErrBadConfirmationCode
	}

	confirmed, err := s.repo.ConfirmPaid(ctx, payoutID, req.TransactionReference, s.now())
	if err != nil {
		return err
	}
	if !confirmed {
		return ErrNotInitiated
	}

	metrics.PayoutSettled()
	s.log.LogPayoutSettled(ctx, payoutID.String(), payout.EventID.String())
	if pubErr := s.producer.Publish(ctx, transitions.NewEvent(transitions.TypePayoutPaid, payout.EventID, payout.ID, map[string]interface{}{
		"net_payable": payout.NetPayable.StringFixed(2),
	})); pubErr != nil {
		s.log.Error("Failed to publish payout transition",
			"payout_id", payoutID.String(), "error", pubErr.Error())
	}

	return nil
}

// codeAlphabet omits ambiguous characters (0/O, 1/I). 32 symbols divide
// 256 evenly, so byte-mod indexing stays uniform.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateConfirmationCode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	code := make([]byte, length)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}
