package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcileMatchesCountersAfterOperations(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot := seedLot(t, svc, 1, 4, []Serial{
		{ChassisNo: "CH-1", EngineNo: "EN-1"},
		{ChassisNo: "CH-2", EngineNo: "EN-2"},
		{ChassisNo: "CH-3", EngineNo: "EN-3"},
		{ChassisNo: "CH-4", EngineNo: "EN-4"},
	})

	_, err := svc.MarkSold(ctx, 1, 0)
	require.NoError(t, err)
	_, err = svc.TransferUnit(ctx, TransferInput{UnitID: 2, ToBranchID: 2})
	require.NoError(t, err)
	_, err = svc.MarkReserved(ctx, 3, 0)
	require.NoError(t, err)

	counts, err := svc.Reconcile(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Available)
	require.Equal(t, 1, counts.Reserved)
	require.Equal(t, 1, counts.Sold)
	require.Equal(t, 4, counts.Total)
	require.Equal(t, 2, counts.Ending())

	stored, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, counts.Ending(), stored.EndingQty)
	require.Equal(t, counts.Sold, stored.SoldQty)
}

func TestReconcileIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot := seedLot(t, svc, 1, 2, nil)
	_, err := svc.MarkSold(ctx, 1, 0)
	require.NoError(t, err)

	first, err := svc.Reconcile(ctx, lot.ID)
	require.NoError(t, err)
	second, err := svc.Reconcile(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestReconcileUnknownLot(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Reconcile(context.Background(), 42)
	require.ErrorIs(t, err, ErrLotNotFound)
}

func TestReconcileAllFlagsDesync(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	clean := seedLot(t, svc, 1, 2, []Serial{
		{ChassisNo: "CH-1", EngineNo: "EN-1"},
		{ChassisNo: "CH-2", EngineNo: "EN-2"},
	})

	// Legacy lot: counters without unit rows is a legitimate state.
	legacy, err := svc.CreateLot(ctx, CreateLotInput{BranchID: 1, ItemID: 11, BeginningQty: 5})
	require.NoError(t, err)

	// Desync the clean lot's stored counters behind the service's back.
	drifted := seedLot(t, svc, 2, 1, []Serial{{ChassisNo: "CH-9", EngineNo: "EN-9"}})
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetLotCounters(ctx, drifted.ID, 0, 1)
	})
	require.NoError(t, err)

	report, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)

	byLot := map[int64]Discrepancy{}
	for _, d := range report {
		byLot[d.LotID] = d
	}

	require.False(t, byLot[clean.ID].HasDiscrepancy)
	require.False(t, byLot[legacy.ID].HasDiscrepancy)

	got := byLot[drifted.ID]
	require.True(t, got.HasDiscrepancy)
	require.Equal(t, 1, got.StoredSold)
	require.Equal(t, 0, got.ComputedSold)
	require.Equal(t, 1, got.ComputedEnding)
}
