package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil)
}

func seedLot(t *testing.T, svc *Service, branchID int64, qty int, serials []Serial) Lot {
	t.Helper()
	lot, err := svc.CreateLot(context.Background(), CreateLotInput{
		BranchID:     branchID,
		ItemID:       10,
		SupplierID:   5,
		DateReceived: time.Now().AddDate(0, 0, -7),
		Cost:         52000,
		SRP:          61900,
		Color:        "Red",
		DRNumber:     "DR-1001",
		PurchasedQty: qty,
		Serials:      serials,
	})
	require.NoError(t, err)
	return lot
}

func TestCreateLotWithSerials(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	lot := seedLot(t, svc, 1, 3, []Serial{
		{ChassisNo: "CH-1", EngineNo: "EN-1"},
		{ChassisNo: "CH-2", EngineNo: "EN-2"},
		{ChassisNo: "CH-3", EngineNo: "EN-3"},
	})
	require.Equal(t, 3, lot.EndingQty)

	counts, err := svc.Reconcile(context.Background(), lot.ID)
	require.NoError(t, err)
	require.Equal(t, 3, counts.Available)
	require.Equal(t, 3, counts.Total)
}

func TestCreateLotAutoCreatesPlaceholders(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	lot := seedLot(t, svc, 1, 2, nil)

	counts, err := svc.Reconcile(context.Background(), lot.ID)
	require.NoError(t, err)
	require.Equal(t, 2, counts.Available)

	units, err := repo.ListLotsByBranch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, units, 1)
}

func TestCreateLotsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	// The second lot reuses a serial from the first; the whole batch must
	// roll back, not just the offending lot.
	_, err := svc.CreateLots(ctx, 0, []CreateLotInput{
		{BranchID: 1, ItemID: 10, PurchasedQty: 1, Serials: []Serial{{ChassisNo: "CH-1", EngineNo: "EN-1"}}},
		{BranchID: 1, ItemID: 11, PurchasedQty: 1, Serials: []Serial{{ChassisNo: "CH-1", EngineNo: "EN-2"}}},
	})
	require.ErrorIs(t, err, ErrDuplicateSerial)

	lots, err := svc.GetLotsForBranch(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, lots)

	lotsOut, err := svc.CreateLots(ctx, 0, []CreateLotInput{
		{BranchID: 1, ItemID: 10, PurchasedQty: 1, Serials: []Serial{{ChassisNo: "CH-1", EngineNo: "EN-1"}}},
		{BranchID: 1, ItemID: 11, PurchasedQty: 1, Serials: []Serial{{ChassisNo: "CH-2", EngineNo: "EN-2"}}},
	})
	require.NoError(t, err)
	require.Len(t, lotsOut, 2)
}

func TestCreateUnitsRejectsActiveDuplicateSerial(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot := seedLot(t, svc, 1, 1, []Serial{{ChassisNo: "CH-1", EngineNo: "EN-1"}})

	_, err := svc.CreateUnits(ctx, lot.ID, []Serial{{ChassisNo: "CH-1", EngineNo: "EN-9"}}, 0)
	require.ErrorIs(t, err, ErrDuplicateSerial)

	_, err = svc.CreateUnits(ctx, lot.ID, []Serial{{ChassisNo: "CH-9", EngineNo: "EN-1"}}, 0)
	require.ErrorIs(t, err, ErrDuplicateSerial)

	// A failed batch must not leave partial units behind.
	counts, err := svc.Reconcile(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Total)
}

func TestTransferredSerialMayReappear(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot := seedLot(t, svc, 1, 1, []Serial{{ChassisNo: "CH-1", EngineNo: "EN-1"}})

	result, err := svc.TransferUnit(ctx, TransferInput{UnitID: 1, ToBranchID: 2})
	require.NoError(t, err)

	// The destination counterpart carries the same serials; that duplicate is
	// intentional history and must not have been rejected.
	require.Equal(t, "CH-1", result.DestinationUnit.ChassisNo)
	require.Equal(t, "EN-1", result.DestinationUnit.EngineNo)

	// A third active unit with the same chassis is still an error: the
	// counterpart at branch 2 is active.
	_, err = svc.CreateUnits(ctx, lot.ID, []Serial{{ChassisNo: "CH-1"}}, 0)
	require.ErrorIs(t, err, ErrDuplicateSerial)
}

func TestStatusTransitions(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	seedLot(t, svc, 1, 1, []Serial{{ChassisNo: "CH-1", EngineNo: "EN-1"}})

	unit, err := svc.MarkReserved(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, StatusReserved, unit.Status)

	unit, err = svc.Release(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, StatusAvailable, unit.Status)

	unit, err = svc.MarkSold(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, StatusSold, unit.Status)

	// Sold is terminal.
	_, err = svc.MarkReserved(ctx, 1, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.MarkSold(ctx, 1, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkSoldFromReserved(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot := seedLot(t, svc, 1, 1, []Serial{{ChassisNo: "CH-1", EngineNo: "EN-1"}})

	_, err := svc.MarkReserved(ctx, 1, 0)
	require.NoError(t, err)
	unit, err := svc.MarkSold(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, StatusSold, unit.Status)

	got, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.SoldQty)
	require.Equal(t, 0, got.EndingQty)
}

func TestRevertSoldRestoresUnitAndCounter(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot := seedLot(t, svc, 1, 1, []Serial{{ChassisNo: "CH-1", EngineNo: "EN-1"}})

	_, err := svc.MarkSold(ctx, 1, 0)
	require.NoError(t, err)

	unit, err := svc.RevertSold(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, StatusAvailable, unit.Status)

	got, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.SoldQty)
	require.Equal(t, 1, got.EndingQty)

	// Only a sold unit can be reverted.
	_, err = svc.RevertSold(ctx, 1, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkSoldKeepsCounterIdentity(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot := seedLot(t, svc, 1, 3, nil)

	_, err := svc.MarkSold(ctx, 1, 0)
	require.NoError(t, err)

	got, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.SoldQty)
	require.Equal(t, got.BeginningQty+got.PurchasedQty-got.TransferredQty-got.SoldQty, got.EndingQty)

	counts, err := svc.Reconcile(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, got.EndingQty, counts.Ending())
	require.Equal(t, got.SoldQty, counts.Sold)
}

func TestUpdateCountersLegacyEntryMode(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	// Lot with counters only, no unit rows: legacy bulk entry.
	lot, err := svc.CreateLot(ctx, CreateLotInput{
		BranchID: 1, ItemID: 10, BeginningQty: 5,
	})
	require.NoError(t, err)

	sold := 2
	updated, err := svc.UpdateCounters(ctx, lot.ID, CounterUpdate{SoldQty: &sold})
	require.NoError(t, err)
	require.Equal(t, 2, updated.SoldQty)
	require.Equal(t, 3, updated.EndingQty)
}

func TestUpdateCountersRejectsNegativeEnding(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, CreateLotInput{BranchID: 1, ItemID: 10, BeginningQty: 2})
	require.NoError(t, err)

	sold := 3
	_, err = svc.UpdateCounters(ctx, lot.ID, CounterUpdate{SoldQty: &sold})
	require.ErrorIs(t, err, ErrCounterOverflow)
}

func TestUpdateCountersRejectsDesyncFromUnits(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot := seedLot(t, svc, 1, 3, nil)

	// No units are sold, so claiming one sold must be rejected, not clamped.
	sold := 1
	_, err := svc.UpdateCounters(ctx, lot.ID, CounterUpdate{SoldQty: &sold})
	require.ErrorIs(t, err, ErrCounterOverflow)

	got, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.SoldQty)
}

type recordedEvents struct {
	sold        []UnitSoldEvent
	transferred []UnitTransferredEvent
}

func (r *recordedEvents) HandleUnitSold(ctx context.Context, evt UnitSoldEvent) {
	r.sold = append(r.sold, evt)
}

func (r *recordedEvents) HandleUnitTransferred(ctx context.Context, evt UnitTransferredEvent) {
	r.transferred = append(r.transferred, evt)
}

func TestIntegrationEventsFireOnCommit(t *testing.T) {
	repo := newMemoryRepo()
	events := &recordedEvents{}
	svc := NewService(repo, nil, nil, events)
	ctx := context.Background()

	seedLot(t, svc, 1, 2, []Serial{
		{ChassisNo: "CH-1", EngineNo: "EN-1"},
		{ChassisNo: "CH-2", EngineNo: "EN-2"},
	})

	_, err := svc.MarkSold(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, events.sold, 1)
	require.Equal(t, int64(1), events.sold[0].UnitID)

	result, err := svc.TransferUnit(ctx, TransferInput{UnitID: 2, ToBranchID: 2})
	require.NoError(t, err)
	require.Len(t, events.transferred, 1)
	require.Equal(t, result.DestinationUnit.ID, events.transferred[0].DestinationUnitID)
	require.Equal(t, int64(1), events.transferred[0].FromBranchID)
	require.Equal(t, int64(2), events.transferred[0].ToBranchID)

	// A failed operation must not emit.
	_, err = svc.MarkSold(ctx, 1, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Len(t, events.sold, 1)
}

func TestComputeAging(t *testing.T) {
	asOf := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

	lot := Lot{DateReceived: asOf.AddDate(0, 0, -14)}
	require.Equal(t, 14, ComputeAging(lot, asOf))

	// Received in the future (clock skew on manual entry) ages zero.
	lot = Lot{DateReceived: asOf.AddDate(0, 0, 3)}
	require.Equal(t, 0, ComputeAging(lot, asOf))

	// Pending lots have no age.
	require.Equal(t, 0, ComputeAging(Lot{}, asOf))
}

func TestGetLotsForBranchIncludesPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	seedLot(t, svc, 1, 1, nil)
	_, err := svc.CreateLot(ctx, CreateLotInput{BranchID: 1, ItemID: 11, BeginningQty: 1})
	require.NoError(t, err)

	lots, err := svc.GetLotsForBranch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lots, 2)

	pending := 0
	for _, lot := range lots {
		if lot.Pending() {
			pending++
		}
	}
	require.Equal(t, 1, pending)
}
