package units_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"unitrack/internal/core/apperror"
	"unitrack/internal/core/id"
	"unitrack/internal/core/tx"
	"unitrack/internal/core/types"
	"unitrack/internal/domain/units"
	"unitrack/internal/infrastructure/cache"
	"unitrack/internal/infrastructure/lock"
	"unitrack/internal/infrastructure/storage/memory"
	"unitrack/pkg/logger"
)

const facilityA = "fac-a"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store *memory.Store
	svc   *units.Service
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	c := &clock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := units.NewService(units.ServiceConfig{
		Repo:       store,
		TxManager:  store,
		Operations: store,
		Locker:     lock.NewLocal(),
		Clock:      c.Now,
	})
	return &fixture{store: store, svc: svc, clock: c}
}

func intPtr(v int) *int { return &v }

func (f *fixture) create(t *testing.T, name string, qty int, received time.Time) *units.CreateResult {
	t.Helper()
	res, err := f.svc.CreateUnits(context.Background(), units.ProductData{
		ProductName:  name,
		Quantity:     qty,
		PricePerUnit: types.MustMoney("2.50"),
		ReceivedDate: received,
	}, facilityA, "clerk")
	require.NoError(t, err)
	return res
}

func (f *fixture) available(t *testing.T, name string) int {
	t.Helper()
	active, err := f.store.FindActive(context.Background(), facilityA, name, false)
	require.NoError(t, err)
	total := 0
	for _, u := range active {
		total += u.Quantity
	}
	return total
}

func TestCreateUnits_WidgetScenario(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, "Widget", 5, time.Time{})

	assert.Equal(t, "WID-001", res.Batch.BatchID)
	require.Len(t, res.Units, 5)
	for i, u := range res.Units {
		assert.Equal(t, fmt.Sprintf("WID-001-%03d", i+1), u.UnitSKU)
		assert.Equal(t, 1, u.Quantity)
		assert.Equal(t, 1, u.InitialQuantity)
		assert.Equal(t, units.StatusActive, u.Status)
		assert.True(t, types.MustMoney("2.50").Equal(u.TotalPrice))
		require.Len(t, u.History, 1)
		assert.Equal(t, units.ActionCreated, u.History[0].Action)
		assert.Equal(t, "clerk", u.History[0].ActorID)
		assert.Equal(t, units.CreatedDetails{Batch: "WID-001", Unit: i + 1}, u.History[0].Details)
	}

	second := f.create(t, "widget", 2, time.Time{})
	assert.Equal(t, "WID-002", second.Batch.BatchID)

	other := f.create(t, "Widgetron", 1, time.Time{})
	assert.Equal(t, "WIN-001", other.Batch.BatchID)

	again := f.create(t, "WIDGETRON", 1, time.Time{})
	assert.Equal(t, "WIN-002", again.Batch.BatchID)
}

func TestCreateUnits_SKUsAreUniqueAcrossFacilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "Widget", 1, time.Time{})
	require.Len(t, first.Units, 1)
	assert.Equal(t, "WID-001-001", first.Units[0].UnitSKU)

	res, err := f.svc.CreateUnits(ctx, units.ProductData{
		ProductName: "Widget", Quantity: 1, PricePerUnit: types.Zero(),
	}, "fac-b", "clerk")
	require.NoError(t, err)
	assert.Equal(t, "WID", res.Batch.Prefix)
	assert.Equal(t, "WID-002", res.Batch.BatchID)
	require.Len(t, res.Units, 1)
	assert.Equal(t, "WID-002-001", res.Units[0].UnitSKU)
	assert.NotEqual(t, first.Units[0].UnitSKU, res.Units[0].UnitSKU)

	// the prefix is still reused per facility
	again := f.create(t, "widget", 1, time.Time{})
	assert.Equal(t, "WID-003", again.Batch.BatchID)

	// sku lookups do not cross facilities
	_, err = f.svc.GetUnit(ctx, "fac-b", "WID-001-001")
	assert.True(t, apperror.IsNotFound(err))
	u, err := f.svc.GetUnit(ctx, "fac-b", "WID-002-001")
	require.NoError(t, err)
	assert.Equal(t, "fac-b", u.FacilityID)
}

func TestCreateUnits_LogsCarryFacility(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.WithLogger(context.Background(), logger.NewFromCore(core))

	_, err := f.svc.CreateUnits(ctx, units.ProductData{
		ProductName: "Widget", Quantity: 1, PricePerUnit: types.Zero(),
	}, "fac-b", "clerk")
	require.NoError(t, err)

	created := logs.FilterMessage("units created").All()
	require.Len(t, created, 1)
	fields := created[0].ContextMap()
	assert.Equal(t, "fac-b", fields["facility_id"])
	assert.Equal(t, "WID-001", fields["batch_id"])
}

func TestCreateUnits_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]units.ProductData{
		"zero quantity":   {ProductName: "Widget", Quantity: 0},
		"negative price":  {ProductName: "Widget", Quantity: 1, PricePerUnit: types.MustMoney("-1")},
		"blank name":      {ProductName: "  ", Quantity: 1},
		"too many units":  {ProductName: "Widget", Quantity: units.MaxUnitsPerBatch + 1},
		"negative window": {ProductName: "Widget", Quantity: 1, AlertWindowDays: intPtr(-1)},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateUnits(ctx, data, facilityA, "clerk")
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
		})
	}
}

func TestCreateUnits_ExplicitZeroAlertWindow(t *testing.T) {
	f := newFixture(t)
	expires := f.clock.Now().AddDate(0, 0, 10)

	res, err := f.svc.CreateUnits(context.Background(), units.ProductData{
		ProductName: "Saline", Quantity: 1, PricePerUnit: types.Zero(),
		ExpiryDate: &expires, AlertWindowDays: intPtr(0),
	}, facilityA, "clerk")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Units[0].Expiry.AlertWindowDays)
	assert.Equal(t, units.ExpiryFresh, res.Units[0].Expiry.Status)

	res, err = f.svc.CreateUnits(context.Background(), units.ProductData{
		ProductName: "Saline", Quantity: 1, PricePerUnit: types.Zero(), ExpiryDate: &expires,
	}, facilityA, "clerk")
	require.NoError(t, err)
	assert.Equal(t, units.DefaultAlertWindowDays, res.Units[0].Expiry.AlertWindowDays)
	assert.Equal(t, units.ExpiryExpiring, res.Units[0].Expiry.Status)
}

func TestCreateUnits_ConcurrentBatchesAreUnique(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.CreateUnits(context.Background(), units.ProductData{
				ProductName: "Widget", Quantity: 2, PricePerUnit: types.Zero(),
			}, facilityA, "clerk")
			if assert.NoError(t, err) {
				results[i] = res.Batch.BatchID
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, b := range results {
		assert.False(t, seen[b], "duplicate batch %s", b)
		seen[b] = true
	}
	assert.True(t, seen["WID-001"])
	assert.True(t, seen["WID-010"])
}

func TestCreateUnits_RetriesOnSKUCollision(t *testing.T) {
	f := newFixture(t)
	repo := &collidingRepo{Repository: f.store, collisions: 2}
	svc := units.NewService(units.ServiceConfig{Repo: repo, TxManager: f.store, Clock: f.clock.Now})

	res, err := svc.CreateUnits(context.Background(), units.ProductData{
		ProductName: "Widget", Quantity: 1, PricePerUnit: types.Zero(),
	}, facilityA, "clerk")
	require.NoError(t, err)
	assert.Equal(t, "WID-001", res.Batch.BatchID)
	assert.Equal(t, 3, repo.calls)

	repo = &collidingRepo{Repository: f.store, collisions: 5}
	svc = units.NewService(units.ServiceConfig{Repo: repo, TxManager: f.store, Clock: f.clock.Now})
	_, err = svc.CreateUnits(context.Background(), units.ProductData{
		ProductName: "Gadget", Quantity: 1, PricePerUnit: types.Zero(),
	}, facilityA, "clerk")
	assert.True(t, apperror.IsDuplicate(err))
	assert.Equal(t, units.DefaultMaxCreateAttempts, repo.calls)
}

type collidingRepo struct {
	units.Repository
	collisions int
	calls      int
}

func (r *collidingRepo) InsertUnits(ctx context.Context, batch []*units.Unit) error {
	r.calls++
	if r.calls <= r.collisions {
		return apperror.NewDuplicate("unit", "unit_sku", batch[0].UnitSKU)
	}
	return r.Repository.InsertUnits(ctx, batch)
}

func TestDistribute_FIFOAcrossBatches(t *testing.T) {
	f := newFixture(t)
	d1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 7)
	d3 := d1.AddDate(0, 0, 14)

	// created out of receipt order: FIFO follows received date
	f.create(t, "Widget", 10, d3) // WID-001
	f.create(t, "Widget", 5, d1)  // WID-002
	f.create(t, "Widget", 3, d2)  // WID-003

	res, err := f.svc.Distribute(context.Background(), units.DistributionRequest{
		FacilityID:  facilityA,
		ProductName: "Widget",
		Quantity:    6,
		Reason:      "ward 3",
		ActorID:     "nurse",
	})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Distributed)
	require.Len(t, res.Units, 6)
	wantSKUs := []string{"WID-002-001", "WID-002-002", "WID-002-003", "WID-002-004", "WID-002-005", "WID-003-001"}
	for i, cu := range res.Units {
		assert.Equal(t, wantSKUs[i], cu.UnitSKU)
		assert.Equal(t, i+1, cu.FIFOPosition)
		assert.Equal(t, 1, cu.QuantityTaken)
		assert.Equal(t, 0, cu.Remaining)
	}
	assert.Equal(t, []string{"WID-002", "WID-003"}, res.Batches())
	assert.True(t, types.MustMoney("15").Equal(res.TotalValue))
	assert.Equal(t, 12, f.available(t, "Widget"))

	u, err := f.svc.GetUnit(context.Background(), facilityA, "WID-003-001")
	require.NoError(t, err)
	assert.Equal(t, units.StatusExhausted, u.Status)
	require.Len(t, u.Distributions, 1)
	assert.Equal(t, "ward 3", u.Distributions[0].Reason)
	assert.Equal(t, 0, u.Distributions[0].RemainingAfter)
	require.Len(t, u.History, 2)
	assert.Equal(t, units.DistributedDetails{DistributedQuantity: 1, Reason: "ward 3", FIFOPosition: 6}, u.History[1].Details)
}

func TestDistribute_SameReceivedDateUsesCreationOrder(t *testing.T) {
	f := newFixture(t)
	d := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.create(t, "Widget", 2, d)
	f.create(t, "Widget", 2, d)

	res, err := f.svc.Distribute(context.Background(), units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Widget", Quantity: 3, Reason: "ward",
	})
	require.NoError(t, err)
	assert.Equal(t, "WID-001-001", res.Units[0].UnitSKU)
	assert.Equal(t, "WID-001-002", res.Units[1].UnitSKU)
	assert.Equal(t, "WID-002-001", res.Units[2].UnitSKU)
}

func TestDistribute_InsufficientTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Widget", 5, time.Time{})
	f.create(t, "Widget", 3, time.Time{})

	_, err := f.svc.Distribute(context.Background(), units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Widget", Quantity: 9, Reason: "ward",
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientInventory, appErr.Code)
	assert.Equal(t, 8, appErr.Details["available"])
	assert.Equal(t, 9, appErr.Details["requested"])
	assert.Equal(t, 8, f.available(t, "Widget"))
}

func TestDistribute_Errors(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Widget", 1, time.Time{})
	ctx := context.Background()

	_, err := f.svc.Distribute(ctx, units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Gizmo", Quantity: 1, Reason: "ward",
	})
	assert.True(t, apperror.IsNotFound(err))

	// product name matches exactly
	_, err = f.svc.Distribute(ctx, units.DistributionRequest{
		FacilityID: facilityA, ProductName: "widget", Quantity: 1, Reason: "ward",
	})
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.Distribute(ctx, units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Widget", Quantity: 0, Reason: "ward",
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.Distribute(ctx, units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Widget", Quantity: 1,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

type failingUpdates struct {
	units.Repository
	failAfter int
	calls     int
}

func (r *failingUpdates) UpdateUnit(ctx context.Context, upd units.UnitUpdate) error {
	r.calls++
	if r.calls > r.failAfter {
		return errors.New("connection reset")
	}
	return r.Repository.UpdateUnit(ctx, upd)
}

func TestDistribute_AtomicStoreRollsBack(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Widget", 4, time.Time{})

	svc := units.NewService(units.ServiceConfig{
		Repo:      &failingUpdates{Repository: f.store, failAfter: 2},
		TxManager: f.store,
		Clock:     f.clock.Now,
	})
	_, err := svc.Distribute(context.Background(), units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Widget", Quantity: 3, Reason: "ward",
	})
	require.Error(t, err)
	assert.False(t, apperror.HasCode(err, apperror.CodePartialDistribution))
	assert.Equal(t, 4, f.available(t, "Widget"))
}

func TestDistribute_NonAtomicReportsPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Widget", 4, time.Time{})

	svc := units.NewService(units.ServiceConfig{
		Repo:      &failingUpdates{Repository: f.store, failAfter: 2},
		TxManager: tx.None{},
		Clock:     f.clock.Now,
	})
	_, err := svc.Distribute(context.Background(), units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Widget", Quantity: 3, Reason: "ward",
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodePartialDistribution, appErr.Code)
	assert.Equal(t, []string{"WID-001-001", "WID-001-002"}, appErr.Details["consumed_skus"])
	assert.Equal(t, 1, appErr.Details["remaining"])
	assert.Equal(t, 2, f.available(t, "Widget"))
}

func TestDistribute_OperationIDReplays(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Widget", 5, time.Time{})
	ctx := context.Background()
	req := units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Widget", Quantity: 2, Reason: "ward", OperationID: "op-1",
	}

	first, err := f.svc.Distribute(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Distribute(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	require.Len(t, second.Units, len(first.Units))
	for i := range first.Units {
		assert.Equal(t, first.Units[i].UnitSKU, second.Units[i].UnitSKU)
	}
	assert.Equal(t, 3, f.available(t, "Widget"))

	_, err = f.svc.CreateUnits(ctx, units.ProductData{
		ProductName: "Widget", Quantity: 1, OperationID: "op-1",
	}, facilityA, "clerk")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))
}

func TestCreateUnits_OperationIDReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := units.ProductData{ProductName: "Widget", Quantity: 3, OperationID: "op-7"}

	first, err := f.svc.CreateUnits(ctx, data, facilityA, "clerk")
	require.NoError(t, err)
	second, err := f.svc.CreateUnits(ctx, data, facilityA, "clerk")
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Batch.BatchID, second.Batch.BatchID)
	assert.Len(t, second.Units, 3)
	assert.Equal(t, 3, f.available(t, "Widget"))
}

func TestChangeStatus(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Widget", 2, time.Time{})
	ctx := context.Background()

	u, err := f.svc.ChangeStatus(ctx, units.ChangeStatusRequest{
		FacilityID: facilityA, UnitSKU: "WID-001-001", Status: units.StatusDamaged, Reason: "dropped", ActorID: "lead",
	})
	require.NoError(t, err)
	assert.Equal(t, units.StatusDamaged, u.Status)
	last := u.History[len(u.History)-1]
	assert.Equal(t, units.StatusChangedDetails{From: units.StatusActive, To: units.StatusDamaged, Reason: "dropped"}, last.Details)

	// damaged units are skipped by distribution
	res, err := f.svc.Distribute(ctx, units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Widget", Quantity: 1, Reason: "ward",
	})
	require.NoError(t, err)
	assert.Equal(t, "WID-001-002", res.Units[0].UnitSKU)

	_, err = f.svc.ChangeStatus(ctx, units.ChangeStatusRequest{
		FacilityID: facilityA, UnitSKU: "WID-001-002", Status: units.StatusActive,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	u, err = f.svc.ChangeStatus(ctx, units.ChangeStatusRequest{
		FacilityID: facilityA, UnitSKU: "WID-001-001", Status: units.StatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, units.StatusActive, u.Status)

	_, err = f.svc.ChangeStatus(ctx, units.ChangeStatusRequest{
		FacilityID: facilityA, UnitSKU: "WID-009-001", Status: units.StatusDamaged,
	})
	assert.True(t, apperror.IsNotFound(err))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, units.CanTransition(units.StatusActive, units.StatusRecalled, 1))
	assert.True(t, units.CanTransition(units.StatusRecalled, units.StatusDamaged, 1))
	assert.False(t, units.CanTransition(units.StatusActive, units.StatusActive, 1))
	assert.False(t, units.CanTransition(units.StatusActive, units.StatusExhausted, 1))
	assert.False(t, units.CanTransition(units.StatusExhausted, units.StatusDamaged, 0))
	assert.False(t, units.CanTransition(units.StatusDamaged, units.StatusActive, 0))
}

func (f *fixture) createExpiring(t *testing.T, name string, qty int, expires time.Time) {
	t.Helper()
	_, err := f.svc.CreateUnits(context.Background(), units.ProductData{
		ProductName: name, Quantity: qty, PricePerUnit: types.Zero(), ExpiryDate: &expires,
	}, facilityA, "clerk")
	require.NoError(t, err)
}

func TestDistribute_DrainsOldestAndSplitsTheNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	t1, t2, t3 := now.AddDate(0, 0, -3), now.AddDate(0, 0, -2), now.AddDate(0, 0, -1)

	stocked := func(sku string, qty int, received time.Time) *units.Unit {
		return &units.Unit{
			ID:              id.New(),
			FacilityID:      facilityA,
			ProductName:     "Saline",
			BatchID:         sku[:7],
			UnitSKU:         sku,
			Quantity:        qty,
			InitialQuantity: qty,
			PricePerUnit:    types.MustMoney("1.00"),
			TotalPrice:      types.MustMoney("1.00"),
			ReceivedDate:    received,
			Status:          units.StatusActive,
			Version:         1,
		}
	}
	// inserted newest first so creation order disagrees with received order
	require.NoError(t, f.store.InsertUnits(ctx, []*units.Unit{
		stocked("SAL-003-001", 10, t3),
		stocked("SAL-002-001", 3, t2),
		stocked("SAL-001-001", 5, t1),
	}))

	res, err := f.svc.Distribute(ctx, units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Saline", Quantity: 6, Reason: "ward", ActorID: "nurse",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Distributed)
	assert.True(t, types.MustMoney("6.00").Equal(res.TotalValue))
	require.Len(t, res.Units, 2)
	assert.Equal(t, units.ConsumedUnit{
		UnitSKU: "SAL-001-001", BatchID: "SAL-001", QuantityTaken: 5, Remaining: 0, FIFOPosition: 1,
		UnitPrice: res.Units[0].UnitPrice,
	}, res.Units[0])
	assert.Equal(t, units.ConsumedUnit{
		UnitSKU: "SAL-002-001", BatchID: "SAL-002", QuantityTaken: 1, Remaining: 2, FIFOPosition: 2,
		UnitPrice: res.Units[1].UnitPrice,
	}, res.Units[1])

	oldest, err := f.store.GetBySKU(ctx, facilityA, "SAL-001-001")
	require.NoError(t, err)
	assert.Equal(t, 0, oldest.Quantity)
	assert.Equal(t, units.StatusExhausted, oldest.Status)
	require.Len(t, oldest.Distributions, 1)
	assert.Equal(t, 5, oldest.Distributions[0].QuantityTaken)
	assert.Equal(t, 0, oldest.Distributions[0].RemainingAfter)

	middle, err := f.store.GetBySKU(ctx, facilityA, "SAL-002-001")
	require.NoError(t, err)
	assert.Equal(t, 2, middle.Quantity)
	assert.Equal(t, units.StatusActive, middle.Status)
	assert.Equal(t, 2, middle.Version)
	require.Len(t, middle.Distributions, 1)
	assert.Equal(t, 1, middle.Distributions[0].QuantityTaken)
	assert.Equal(t, 2, middle.Distributions[0].RemainingAfter)
	require.Len(t, middle.History, 1)
	assert.Equal(t, units.ActionDistributed, middle.History[0].Action)
	details, ok := middle.History[0].Details.(units.DistributedDetails)
	require.True(t, ok)
	assert.Equal(t, 2, details.FIFOPosition)

	newest, err := f.store.GetBySKU(ctx, facilityA, "SAL-003-001")
	require.NoError(t, err)
	assert.Equal(t, 10, newest.Quantity)
	assert.Equal(t, units.StatusActive, newest.Status)
	assert.Equal(t, 1, newest.Version)
	assert.Empty(t, newest.Distributions)

	assert.Equal(t, 12, f.available(t, "Saline"))
}

func TestListExpiring(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.createExpiring(t, "Saline", 2, now.AddDate(0, 0, 10))
	f.createExpiring(t, "Gauze", 1, now.AddDate(0, 0, 90))
	f.createExpiring(t, "Insulin", 1, now.AddDate(0, 0, 3))
	f.create(t, "Widget", 1, time.Time{})

	f.clock.Advance(5 * 24 * time.Hour) // insulin is now expired

	var groups []units.Group[units.ExpiryStatus]
	for g, err := range f.svc.ListExpiring(context.Background(), facilityA, 30) {
		require.NoError(t, err)
		groups = append(groups, g)
	}

	require.Len(t, groups, 2)
	assert.Equal(t, units.ExpiryExpired, groups[0].Key)
	require.Len(t, groups[0].Units, 1)
	assert.Equal(t, "Insulin", groups[0].Units[0].ProductName)
	assert.Equal(t, units.ExpiryExpired, groups[0].Units[0].Expiry.Status)

	assert.Equal(t, units.ExpiryExpiring, groups[1].Key)
	assert.Len(t, groups[1].Units, 2)
	for _, u := range groups[1].Units {
		assert.Equal(t, "Saline", u.ProductName)
	}
}

func TestListExpiring_WideWindowKeepsKeysAndStatusesAligned(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.createExpiring(t, "Insulin", 1, now.AddDate(0, 0, 10))
	f.createExpiring(t, "Saline", 1, now.AddDate(0, 0, 45)) // own window is 30 days

	var groups []units.Group[units.ExpiryStatus]
	for g, err := range f.svc.ListExpiring(context.Background(), facilityA, 60) {
		require.NoError(t, err)
		groups = append(groups, g)
	}

	require.Len(t, groups, 2)
	assert.Equal(t, units.ExpiryExpiring, groups[0].Key)
	require.Len(t, groups[0].Units, 1)
	assert.Equal(t, "Insulin", groups[0].Units[0].ProductName)

	assert.Equal(t, units.ExpiryFresh, groups[1].Key)
	require.Len(t, groups[1].Units, 1)
	assert.Equal(t, "SAL-001-001", groups[1].Units[0].UnitSKU)
	assert.Equal(t, 30, groups[1].Units[0].Expiry.AlertWindowDays)

	for _, g := range groups {
		for _, u := range g.Units {
			assert.Equal(t, g.Key, u.Expiry.Status, u.UnitSKU)
		}
	}
}

type countingRepo struct {
	units.Repository
	expiryCalls int
	activeCalls int
}

func (r *countingRepo) ListByExpiry(ctx context.Context, facilityID string, f units.ExpiryFilter) ([]*units.Unit, error) {
	r.expiryCalls++
	return r.Repository.ListByExpiry(ctx, facilityID, f)
}

func (r *countingRepo) FindActive(ctx context.Context, facilityID, name string, forUpdate bool) ([]*units.Unit, error) {
	r.activeCalls++
	return r.Repository.FindActive(ctx, facilityID, name, forUpdate)
}

func TestListings_AreLazy(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.createExpiring(t, "Saline", 1, now.Add(-time.Hour))
	f.createExpiring(t, "Gauze", 1, now.AddDate(0, 0, 2))
	f.create(t, "Apron", 1, time.Time{})
	f.create(t, "Bandage", 1, time.Time{})

	repo := &countingRepo{Repository: f.store}
	svc := units.NewService(units.ServiceConfig{Repo: repo, TxManager: f.store, Clock: f.clock.Now})

	seq := svc.ListExpiring(context.Background(), facilityA, 0)
	assert.Equal(t, 0, repo.expiryCalls)
	for range seq {
		break
	}
	assert.Equal(t, 1, repo.expiryCalls)

	// restartable
	count := 0
	for _, err := range seq {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count)

	for g, err := range svc.ListLowStock(context.Background(), facilityA, 5) {
		require.NoError(t, err)
		assert.Equal(t, "Apron", g.Key)
		break
	}
	assert.Equal(t, 1, repo.activeCalls)
}

func TestListLowStock(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Widget", 10, time.Time{})
	f.create(t, "Gadget", 3, time.Time{})
	f.create(t, "Bolt", 2, time.Time{})
	f.create(t, "Anchor", 1, time.Time{})
	ctx := context.Background()

	_, err := f.svc.Distribute(ctx, units.DistributionRequest{
		FacilityID: facilityA, ProductName: "Anchor", Quantity: 1, Reason: "site",
	})
	require.NoError(t, err)

	var keys []string
	for g, err := range f.svc.ListLowStock(ctx, facilityA, 3) {
		require.NoError(t, err)
		keys = append(keys, g.Key)
		for _, u := range g.Units {
			assert.Equal(t, units.StatusActive, u.Status)
		}
	}
	// Anchor has nothing left and is not low stock
	assert.Equal(t, []string{"Bolt", "Gadget"}, keys)

	for _, err := range f.svc.ListLowStock(ctx, facilityA, 0) {
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	}
}

func TestRefreshExpiry(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.createExpiring(t, "Saline", 2, now.AddDate(0, 0, 40))
	f.create(t, "Widget", 1, time.Time{})
	ctx := context.Background()

	n, err := f.svc.RefreshExpiry(ctx, facilityA)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(15 * 24 * time.Hour)
	n, err = f.svc.RefreshAllExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := f.store.GetBySKU(ctx, facilityA, "SAL-001-001")
	require.NoError(t, err)
	assert.Equal(t, units.ExpiryExpiring, stored.Expiry.Status)
	assert.Equal(t, 2, stored.Version)
}

func TestCreateUnits_PrefixLookupsGoThroughOverride(t *testing.T) {
	store := memory.New()
	prefixes := cache.NewPrefixCache(store, 0)
	svc := units.NewService(units.ServiceConfig{Repo: store, TxManager: store, Prefixes: prefixes})
	ctx := context.Background()

	for range 3 {
		_, err := svc.CreateUnits(ctx, units.ProductData{ProductName: "Widget", Quantity: 1}, facilityA, "clerk")
		require.NoError(t, err)
	}

	res, err := svc.CreateUnits(ctx, units.ProductData{ProductName: "widget", Quantity: 1}, facilityA, "clerk")
	require.NoError(t, err)
	assert.Equal(t, "WID-004", res.Batch.BatchID)

	hits, misses := prefixes.Stats()
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, uint64(2), hits)
}
