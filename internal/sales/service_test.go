package sales

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-dms/meridian-dms/internal/inventory"
)

type memoryRepo struct {
	mu           sync.Mutex
	sales        map[int64]*Sale
	installments map[int64][]Installment
	nextSale     int64
	nextInst     int64
	failOn       string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sales:        map[int64]*Sale{},
		installments: map[int64][]Installment{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (r *memoryRepo) GetSale(ctx context.Context, id int64) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, ErrNotFound
	}
	return *sale, nil
}

func (r *memoryRepo) ListSalesByBranch(ctx context.Context, branchID int64) ([]Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Sale
	for _, sale := range r.sales {
		if sale.BranchID == branchID {
			result = append(result, *sale)
		}
	}
	return result, nil
}

func (r *memoryRepo) ListInstallments(ctx context.Context, saleID int64) ([]Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Installment(nil), r.installments[saleID]...), nil
}

func (r *memoryRepo) ListOverdueInstallments(ctx context.Context, asOf time.Time) ([]OverdueView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var views []OverdueView
	for saleID, insts := range r.installments {
		for _, inst := range insts {
			if inst.Status != InstallmentPaid && inst.DueDate.Before(asOf) {
				views = append(views, OverdueView{
					Installment: inst,
					Sale:        *r.sales[saleID],
					DaysLate:    int(asOf.Sub(inst.DueDate).Hours() / 24),
				})
			}
		}
	}
	return views, nil
}

// memoryTx buffers writes and applies them on commit, so a failed
// transaction leaves the repo untouched.
type memoryTx struct {
	repo    *memoryRepo
	pending []func()
}

func (t *memoryTx) commit() {
	for _, apply := range t.pending {
		apply()
	}
}

func (t *memoryTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	if t.repo.failOn == "InsertSale" {
		return 0, context.DeadlineExceeded
	}
	t.repo.nextSale++
	id := t.repo.nextSale
	sale.ID = id
	sale.CreatedAt = time.Now()
	sale.UpdatedAt = sale.CreatedAt
	t.pending = append(t.pending, func() { t.repo.sales[id] = &sale })
	return id, nil
}

func (t *memoryTx) InsertInstallment(ctx context.Context, inst Installment) error {
	t.repo.nextInst++
	inst.ID = t.repo.nextInst
	t.pending = append(t.pending, func() {
		t.repo.installments[inst.SaleID] = append(t.repo.installments[inst.SaleID], inst)
	})
	return nil
}

func (t *memoryTx) UpdateInstallment(ctx context.Context, inst Installment) error {
	t.pending = append(t.pending, func() {
		rows := t.repo.installments[inst.SaleID]
		for i := range rows {
			if rows[i].ID == inst.ID {
				rows[i] = inst
			}
		}
	})
	return nil
}

func (t *memoryTx) SetSaleStatus(ctx context.Context, saleID int64, status SaleStatus) error {
	t.pending = append(t.pending, func() {
		if sale, ok := t.repo.sales[saleID]; ok {
			sale.Status = status
			sale.UpdatedAt = time.Now()
		}
	})
	return nil
}

type fakeInventory struct {
	units map[int64]inventory.Unit
	lots  map[int64]inventory.Lot
	sold  map[int64]bool
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		units: map[int64]inventory.Unit{
			7: {ID: 7, LotID: 3, ChassisNo: "CH-7", Status: inventory.StatusAvailable},
		},
		lots: map[int64]inventory.Lot{
			3: {ID: 3, BranchID: 1, ItemID: 10},
		},
		sold: map[int64]bool{},
	}
}

func (f *fakeInventory) GetUnit(ctx context.Context, unitID int64) (inventory.Unit, error) {
	unit, ok := f.units[unitID]
	if !ok {
		return inventory.Unit{}, inventory.ErrUnitNotFound
	}
	return unit, nil
}

func (f *fakeInventory) GetLot(ctx context.Context, lotID int64) (inventory.Lot, error) {
	lot, ok := f.lots[lotID]
	if !ok {
		return inventory.Lot{}, inventory.ErrLotNotFound
	}
	return lot, nil
}

func (f *fakeInventory) MarkSold(ctx context.Context, unitID, actorID int64) (inventory.Unit, error) {
	if f.sold[unitID] {
		return inventory.Unit{}, inventory.ErrInvalidTransition
	}
	f.sold[unitID] = true
	unit := f.units[unitID]
	unit.Status = inventory.StatusSold
	f.units[unitID] = unit
	return unit, nil
}

func (f *fakeInventory) RevertSold(ctx context.Context, unitID, actorID int64) (inventory.Unit, error) {
	if !f.sold[unitID] {
		return inventory.Unit{}, inventory.ErrInvalidTransition
	}
	delete(f.sold, unitID)
	unit := f.units[unitID]
	unit.Status = inventory.StatusAvailable
	f.units[unitID] = unit
	return unit, nil
}

func newTestService(repo *memoryRepo, inv *fakeInventory) *Service {
	return NewService(repo, inv, nil)
}

func financedSale(t *testing.T, svc *Service) (Sale, []Installment) {
	t.Helper()
	sale, schedule, err := svc.RecordSale(context.Background(), RecordSaleInput{
		UnitID:       7,
		CustomerName: "Reyes, Marco",
		Price:        61900,
		DownPayment:  9900,
		TermMonths:   12,
	})
	require.NoError(t, err)
	return sale, schedule
}

func TestRecordSaleValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeInventory())
	ctx := context.Background()

	cases := []struct {
		name  string
		input RecordSaleInput
	}{
		{"missing customer", RecordSaleInput{UnitID: 7, Price: 61900, DownPayment: 61900}},
		{"zero price", RecordSaleInput{UnitID: 7, CustomerName: "X", Price: 0}},
		{"down over price", RecordSaleInput{UnitID: 7, CustomerName: "X", Price: 1000, DownPayment: 2000}},
		{"term too long", RecordSaleInput{UnitID: 7, CustomerName: "X", Price: 1000, DownPayment: 100, TermMonths: 61}},
		{"cash underpaid", RecordSaleInput{UnitID: 7, CustomerName: "X", Price: 1000, DownPayment: 500, TermMonths: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.RecordSale(ctx, tc.input)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRecordCashSale(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeInventory())

	sale, schedule, err := svc.RecordSale(context.Background(), RecordSaleInput{
		UnitID:       7,
		CustomerName: "Dela Cruz, Ana",
		Price:        61900,
		DownPayment:  61900,
		TermMonths:   0,
	})
	require.NoError(t, err)
	require.Equal(t, SaleStatusCompleted, sale.Status)
	require.Empty(t, schedule)
	require.Equal(t, int64(1), sale.BranchID)
	require.NotEmpty(t, sale.Number)
}

func TestScheduleSumsToFinancedAmount(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeInventory())

	sale, schedule := financedSale(t, svc)
	require.Len(t, schedule, 12)

	var sum float64
	for i, inst := range schedule {
		require.Equal(t, i+1, inst.Seq)
		require.Equal(t, InstallmentPending, inst.Status)
		require.Equal(t, sale.SoldAt.AddDate(0, i+1, 0), inst.DueDate)
		sum += inst.Amount
	}
	// 52000 / 12 does not divide evenly; the last row absorbs the remainder.
	require.InDelta(t, sale.Financed(), sum, 0.0001)
	require.Greater(t, schedule[11].Amount, schedule[0].Amount)
}

func TestScheduleRoundingCases(t *testing.T) {
	from := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		financed float64
		term     int
	}{
		{51900, 12},
		{100, 3},
		{99999.99, 36},
		{1000, 7},
	} {
		schedule := BuildSchedule(tc.financed, tc.term, from)
		require.Len(t, schedule, tc.term)
		var sum float64
		for _, inst := range schedule {
			sum = math.Round((sum+inst.Amount)*100) / 100
		}
		require.Equal(t, tc.financed, sum)
	}
}

func TestRecordSaleBlockedWhenUnitAlreadySold(t *testing.T) {
	repo := newMemoryRepo()
	inv := newFakeInventory()
	svc := newTestService(repo, inv)
	ctx := context.Background()

	financedSale(t, svc)

	_, _, err := svc.RecordSale(ctx, RecordSaleInput{
		UnitID:       7,
		CustomerName: "Second Buyer",
		Price:        61900,
		DownPayment:  61900,
	})
	require.ErrorIs(t, err, inventory.ErrInvalidTransition)
	require.Len(t, repo.sales, 1)
}

func TestRecordSaleRollsBackOnStorageFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failOn = "InsertSale"
	inv := newFakeInventory()
	svc := newTestService(repo, inv)
	ctx := context.Background()

	_, _, err := svc.RecordSale(ctx, RecordSaleInput{
		UnitID:       7,
		CustomerName: "Reyes, Marco",
		Price:        61900,
		DownPayment:  10000,
		TermMonths:   12,
	})
	require.Error(t, err)
	require.Empty(t, repo.sales)
	require.Empty(t, repo.installments)

	// The sold transition must have been compensated, not left stranded.
	unit, err := inv.GetUnit(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusAvailable, unit.Status)

	// The unit is sellable again once storage recovers.
	repo.failOn = ""
	_, _, err = svc.RecordSale(ctx, RecordSaleInput{
		UnitID:       7,
		CustomerName: "Reyes, Marco",
		Price:        61900,
		DownPayment:  61900,
	})
	require.NoError(t, err)
}

func TestPostPaymentPartialThenPaid(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeInventory())
	ctx := context.Background()

	sale, schedule := financedSale(t, svc)
	first := schedule[0].Amount

	touched, err := svc.PostPayment(ctx, PaymentInput{SaleID: sale.ID, Amount: 2000})
	require.NoError(t, err)
	require.Len(t, touched, 1)
	require.Equal(t, InstallmentPartial, touched[0].Status)

	touched, err = svc.PostPayment(ctx, PaymentInput{SaleID: sale.ID, Amount: first - 2000})
	require.NoError(t, err)
	require.Len(t, touched, 1)
	require.Equal(t, InstallmentPaid, touched[0].Status)
	require.False(t, touched[0].PaidAt.IsZero())
}

func TestPostPaymentRejectsFractionalCents(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeInventory())
	ctx := context.Background()

	sale, schedule := financedSale(t, svc)

	// Half of 4333.33 is 2166.665: not payable in cash.
	_, err := svc.PostPayment(ctx, PaymentInput{SaleID: sale.ID, Amount: schedule[0].Amount / 2})
	require.ErrorIs(t, err, ErrValidation)

	got, installments, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, SaleStatusActive, got.Status)
	for _, inst := range installments {
		require.Zero(t, inst.PaidAmount)
	}
}

func TestPostPaymentSpansInstallments(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeInventory())
	ctx := context.Background()

	sale, schedule := financedSale(t, svc)

	touched, err := svc.PostPayment(ctx, PaymentInput{
		SaleID: sale.ID,
		Amount: schedule[0].Amount + 2000,
	})
	require.NoError(t, err)
	require.Len(t, touched, 2)
	require.Equal(t, InstallmentPaid, touched[0].Status)
	require.Equal(t, InstallmentPartial, touched[1].Status)
}

func TestPostPaymentOverpaymentRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeInventory())
	ctx := context.Background()

	sale, _ := financedSale(t, svc)

	_, err := svc.PostPayment(ctx, PaymentInput{SaleID: sale.ID, Amount: sale.Financed() + 1})
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestPostPaymentCompletesSale(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeInventory())
	ctx := context.Background()

	sale, _ := financedSale(t, svc)

	_, err := svc.PostPayment(ctx, PaymentInput{SaleID: sale.ID, Amount: sale.Financed()})
	require.NoError(t, err)

	got, installments, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, SaleStatusCompleted, got.Status)
	for _, inst := range installments {
		require.Equal(t, InstallmentPaid, inst.Status)
	}

	_, err = svc.PostPayment(ctx, PaymentInput{SaleID: sale.ID, Amount: 100})
	require.ErrorIs(t, err, ErrCompleted)
}

func TestListOverdue(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeInventory())
	ctx := context.Background()

	sale, _ := financedSale(t, svc)

	views, err := svc.ListOverdue(ctx)
	require.NoError(t, err)
	require.Empty(t, views)

	// Two months on, the first installment is late.
	svc.clock = func() time.Time { return sale.SoldAt.AddDate(0, 2, 1) }

	views, err = svc.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		require.Equal(t, sale.ID, v.Sale.ID)
		require.Greater(t, v.DaysLate, 0)
	}
}
