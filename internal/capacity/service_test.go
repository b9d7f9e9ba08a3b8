package capacity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo keeps the ledger in memory but enforces the same guard the
// SQL statements do: every mutation checks the invariant and the status
// gate under one lock, so races resolve to a single winner.
type fakeRepo struct {
	mu    sync.Mutex
	units map[uuid.UUID]*CapacityUnit
	holds map[uuid.UUID]*CapacityHold
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		units: make(map[uuid.UUID]*CapacityUnit),
		holds: make(map[uuid.UUID]*CapacityHold),
	}
}

func (f *fakeRepo) SeedUnits(ctx context.Context, units []CapacityUnit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range units {
		u := units[i]
		u.ID = uuid.New()
		f.units[u.ID] = &u
	}
	return nil
}

func (f *fakeRepo) GetUnitsByEvent(ctx context.Context, eventID uuid.UUID) ([]CapacityUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []CapacityUnit
	for _, u := range f.units {
		if u.EventID == eventID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetUnitsByCategories(ctx context.Context, eventID uuid.UUID, categories []string) ([]CapacityUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	var out []CapacityUnit
	for _, u := range f.units {
		if u.EventID == eventID && wanted[u.Category] {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateHold(ctx context.Context, hold *CapacityHold) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// All-or-nothing, like the SQL transaction
	for _, item := range hold.Items {
		unit, ok := f.units[item.UnitID]
		if !ok {
			return ErrUnknownCategory
		}
		if !unit.Unbounded && unit.Total-unit.Held-unit.Confirmed < item.Quantity {
			return fmt.Errorf("category %s: %w", item.Category, ErrCapacityExceeded)
		}
	}
	for _, item := range hold.Items {
		f.units[item.UnitID].Held += item.Quantity
	}

	hold.ID = uuid.New()
	for i := range hold.Items {
		hold.Items[i].HoldID = hold.ID
	}
	stored := *hold
	stored.Items = append([]HoldItem(nil), hold.Items...)
	f.holds[hold.ID] = &stored
	return nil
}

func (f *fakeRepo) GetHold(ctx context.Context, holdID uuid.UUID) (*CapacityHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hold, ok := f.holds[holdID]
	if !ok {
		return nil, ErrHoldNotFound
	}
	copied := *hold
	copied.Items = append([]HoldItem(nil), hold.Items...)
	return &copied, nil
}

func (f *fakeRepo) CommitHold(ctx context.Context, holdID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hold, ok := f.holds[holdID]
	if !ok {
		return ErrHoldNotFound
	}
	if hold.Status != HoldActive {
		if hold.Status == HoldExpired {
			return ErrHoldExpired
		}
		return ErrHoldNotActive
	}
	if !now.Before(hold.ExpiresAt) {
		return ErrHoldExpired
	}

	hold.Status = HoldCommitted
	for _, item := range hold.Items {
		unit := f.units[item.UnitID]
		unit.Held -= item.Quantity
		unit.Confirmed += item.Quantity
	}
	return nil
}

func (f *fakeRepo) ReleaseHold(ctx context.Context, holdID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hold, ok := f.holds[holdID]
	if !ok {
		return ErrHoldNotFound
	}
	if hold.Status != HoldActive {
		return ErrHoldNotActive
	}

	hold.Status = HoldReleased
	for _, item := range hold.Items {
		f.units[item.UnitID].Held -= item.Quantity
	}
	return nil
}

func (f *fakeRepo) ReleaseCommitted(ctx context.Context, holdID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hold, ok := f.holds[holdID]
	if !ok {
		return ErrHoldNotFound
	}
	if hold.Status != HoldCommitted {
		return ErrHoldNotCommitted
	}

	hold.Status = HoldReleased
	for _, item := range hold.Items {
		f.units[item.UnitID].Confirmed -= item.Quantity
	}
	return nil
}

func (f *fakeRepo) SweepExpired(ctx context.Context, now time.Time, batch int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	swept := 0
	for _, hold := range f.holds {
		if swept >= batch {
			break
		}
		if hold.Status != HoldActive || now.Before(hold.ExpiresAt) {
			continue
		}
		hold.Status = HoldExpired
		for _, item := range hold.Items {
			f.units[item.UnitID].Held -= item.Quantity
		}
		swept++
	}
	return swept, nil
}

func newTestService(repo Repository, now time.Time) *service {
	return &service{
		repo: repo,
		now:  func() time.Time { return now },
	}
}

func seedEvent(t *testing.T, svc Service, units []UnitSeed) uuid.UUID {
	t.Helper()
	eventID := uuid.New()
	require.NoError(t, svc.SeedUnits(context.Background(), eventID, units))
	return eventID
}

func TestHoldReducesAvailability(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 10, PriceEach: 50},
	})

	hold, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 3}}, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, HoldActive, hold.Status)
	assert.Equal(t, 3, hold.TotalQuantity())
	assert.InDelta(t, 150.0, hold.TotalAmount(), 0.001)

	availability, err := svc.Availability(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, availability, 1)
	assert.Equal(t, 3, availability[0].Held)
	assert.Equal(t, 7, availability[0].Available)
}

func TestHoldRefusedWhenSoldOut(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 5, PriceEach: 50},
	})

	_, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 5}}, 10*time.Minute)
	require.NoError(t, err)

	_, err = svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 1}}, 10*time.Minute)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestConcurrentHoldsNeverOversell(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 10, PriceEach: 25},
	})

	const attempts = 50
	var wg sync.WaitGroup
	var successes int32
	var mu sync.Mutex
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 1}}, 10*time.Minute)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrCapacityExceeded)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), successes)

	availability, err := svc.Availability(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 10, availability[0].Held)
	assert.Equal(t, 0, availability[0].Available)
}

func TestHoldIsAllOrNothing(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 10, PriceEach: 25},
		{Category: "VIP", Total: 1, PriceEach: 100},
	})

	// Exhaust VIP first
	_, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "VIP", Quantity: 1}}, 10*time.Minute)
	require.NoError(t, err)

	// Mixed request must not touch GA when VIP refuses
	_, err = svc.Hold(context.Background(), eventID, []HoldRequest{
		{Category: "GA", Quantity: 2},
		{Category: "VIP", Quantity: 1},
	}, 10*time.Minute)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	availability, err := svc.Availability(context.Background(), eventID)
	require.NoError(t, err)
	for _, unit := range availability {
		if unit.Category == "GA" {
			assert.Equal(t, 0, unit.Held)
		}
	}
}

func TestHoldUnknownCategory(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 10, PriceEach: 25},
	})

	_, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "BALCONY", Quantity: 1}}, 10*time.Minute)
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestSeatUnitRequiresQuantityOne(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "A-12", Total: 1, PriceEach: 80},
	})

	_, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "A-12", Quantity: 2}}, 10*time.Minute)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestUnboundedUnitNeverRefuses(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "REGISTRATION", Unbounded: true, PriceEach: 0},
	})

	for i := 0; i < 20; i++ {
		_, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "REGISTRATION", Quantity: 100}}, 10*time.Minute)
		require.NoError(t, err)
	}
}

func TestCommitMovesHeldToConfirmed(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now()
	svc := newTestService(repo, now)
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 10, PriceEach: 25},
	})

	hold, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 4}}, 10*time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Commit(context.Background(), hold.ID))

	availability, err := svc.Availability(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 0, availability[0].Held)
	assert.Equal(t, 4, availability[0].Confirmed)
	assert.Equal(t, 6, availability[0].Available)

	// A second commit of the same hold must not double-apply
	err = svc.Commit(context.Background(), hold.ID)
	assert.ErrorIs(t, err, ErrHoldNotActive)
}

func TestCommitExpiredHold(t *testing.T) {
	repo := newFakeRepo()
	start := time.Now()
	svc := newTestService(repo, start)
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 10, PriceEach: 25},
	})

	hold, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 2}}, 10*time.Minute)
	require.NoError(t, err)

	late := newTestService(repo, start.Add(11*time.Minute))
	err = late.Commit(context.Background(), hold.ID)
	assert.ErrorIs(t, err, ErrHoldExpired)
}

func TestReleaseReturnsCapacity(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 10, PriceEach: 25},
	})

	hold, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 5}}, 10*time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Release(context.Background(), hold.ID))

	availability, err := svc.Availability(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 0, availability[0].Held)
	assert.Equal(t, 10, availability[0].Available)

	err = svc.Release(context.Background(), hold.ID)
	assert.ErrorIs(t, err, ErrHoldNotActive)
}

func TestReleaseCommittedReturnsConfirmedCapacity(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 10, PriceEach: 25},
	})

	hold, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 3}}, 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.Commit(context.Background(), hold.ID))

	require.NoError(t, svc.ReleaseCommitted(context.Background(), hold.ID))

	availability, err := svc.Availability(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 0, availability[0].Confirmed)
	assert.Equal(t, 10, availability[0].Available)
}

func TestSweepReclaimsOnlyExpiredHolds(t *testing.T) {
	repo := newFakeRepo()
	start := time.Now()
	svc := newTestService(repo, start)
	eventID := seedEvent(t, svc, []UnitSeed{
		{Category: "GA", Total: 10, PriceEach: 25},
	})

	short, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 2}}, 1*time.Minute)
	require.NoError(t, err)
	long, err := svc.Hold(context.Background(), eventID, []HoldRequest{{Category: "GA", Quantity: 3}}, 30*time.Minute)
	require.NoError(t, err)

	later := newTestService(repo, start.Add(5*time.Minute))
	swept, err := later.SweepExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	availability, err := later.Availability(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 3, availability[0].Held)

	// Re-running the sweep must find nothing
	swept, err = later.SweepExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	// Expired hold can no longer commit; untouched hold still can
	assert.ErrorIs(t, later.Commit(context.Background(), short.ID), ErrHoldExpired)
	assert.NoError(t, later.Commit(context.Background(), long.ID))
}
