package sales

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-dms/meridian-dms/internal/inventory"
	"github.com/meridian-dms/meridian-dms/internal/shared"
)

// InventoryPort exposes the inventory operations a sale needs. RevertSold is
// the compensation for a sold CAS whose sale rows failed to persist.
type InventoryPort interface {
	GetUnit(ctx context.Context, unitID int64) (inventory.Unit, error)
	GetLot(ctx context.Context, lotID int64) (inventory.Lot, error)
	MarkSold(ctx context.Context, unitID, actorID int64) (inventory.Unit, error)
	RevertSold(ctx context.Context, unitID, actorID int64) (inventory.Unit, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates unit sales and installment collection.
type Service struct {
	repo      RepositoryPort
	inventory InventoryPort
	audit     AuditPort
	clock     func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, inv InventoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, inventory: inv, audit: audit, clock: time.Now}
}

// RecordSaleInput describes a new sale.
type RecordSaleInput struct {
	Number          string
	UnitID          int64
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Price           float64
	DownPayment     float64
	TermMonths      int
	ActorID         int64
}

// PaymentInput applies money to a sale's open installments.
type PaymentInput struct {
	SaleID  int64
	Amount  float64
	ActorID int64
}

// RecordSale marks the unit sold in inventory and persists the sale with its
// amortization schedule. The inventory transition runs first: its
// compare-and-set is what stops two clerks selling the same unit. If the sale
// rows then fail to persist, the sold transition is reverted.
func (s *Service) RecordSale(ctx context.Context, input RecordSaleInput) (Sale, []Installment, error) {
	if input.CustomerName == "" {
		return Sale{}, nil, fmt.Errorf("%w: customer name required", ErrValidation)
	}
	if input.Price <= 0 {
		return Sale{}, nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if input.DownPayment < 0 || input.DownPayment > input.Price {
		return Sale{}, nil, fmt.Errorf("%w: down payment out of range", ErrValidation)
	}
	if input.TermMonths < 0 || input.TermMonths > 60 {
		return Sale{}, nil, fmt.Errorf("%w: term months out of range", ErrValidation)
	}
	if input.TermMonths == 0 && input.DownPayment != input.Price {
		return Sale{}, nil, fmt.Errorf("%w: cash sale must be fully paid", ErrValidation)
	}

	unit, err := s.inventory.GetUnit(ctx, input.UnitID)
	if err != nil {
		return Sale{}, nil, err
	}
	lot, err := s.inventory.GetLot(ctx, unit.LotID)
	if err != nil {
		return Sale{}, nil, err
	}

	if _, err := s.inventory.MarkSold(ctx, input.UnitID, input.ActorID); err != nil {
		return Sale{}, nil, err
	}

	if input.Number == "" {
		input.Number = "SL-" + uuid.NewString()[:8]
	}
	soldAt := s.clock()
	sale := Sale{
		Number:          input.Number,
		BranchID:        lot.BranchID,
		UnitID:          unit.ID,
		LotID:           lot.ID,
		CustomerName:    input.CustomerName,
		CustomerPhone:   input.CustomerPhone,
		CustomerAddress: input.CustomerAddress,
		Price:           input.Price,
		DownPayment:     input.DownPayment,
		TermMonths:      input.TermMonths,
		Status:          SaleStatusActive,
		SoldAt:          soldAt,
		CreatedBy:       input.ActorID,
	}
	if input.TermMonths == 0 {
		sale.Status = SaleStatusCompleted
	}

	schedule := BuildSchedule(sale.Financed(), input.TermMonths, soldAt)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		for i := range schedule {
			schedule[i].SaleID = id
			if err := tx.InsertInstallment(ctx, schedule[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// The unit was already CAS'd to sold; put it back so a failed write
		// does not strand it with no sale behind it.
		if _, rbErr := s.inventory.RevertSold(ctx, input.UnitID, input.ActorID); rbErr != nil {
			return Sale{}, nil, fmt.Errorf("%w; revert sold unit %d: %w", err, input.UnitID, rbErr)
		}
		return Sale{}, nil, err
	}

	s.recordAudit(ctx, input.ActorID, "sales:record", sale.ID, map[string]any{
		"unit_id": unit.ID,
		"number":  sale.Number,
	})
	return sale, schedule, nil
}

// BuildSchedule splits the financed amount into equal monthly rows, with the
// last row absorbing the rounding remainder so the rows sum exactly.
func BuildSchedule(financed float64, termMonths int, from time.Time) []Installment {
	if termMonths <= 0 || financed <= 0 {
		return nil
	}
	monthly := math.Floor(financed/float64(termMonths)*100) / 100
	schedule := make([]Installment, termMonths)
	running := 0.0
	for i := 0; i < termMonths; i++ {
		amount := monthly
		if i == termMonths-1 {
			amount = math.Round((financed-running)*100) / 100
		}
		running += amount
		schedule[i] = Installment{
			Seq:     i + 1,
			DueDate: from.AddDate(0, i+1, 0),
			Amount:  amount,
			Status:  InstallmentPending,
		}
	}
	return schedule
}

// PostPayment applies the amount to the oldest open installments. When every
// row is paid the sale completes.
func (s *Service) PostPayment(ctx context.Context, input PaymentInput) ([]Installment, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	// Money moves in whole cents; a fractional cent would drift the running
	// paid totals away from the schedule.
	if math.Abs(input.Amount*100-math.Round(input.Amount*100)) > 1e-6 {
		return nil, fmt.Errorf("%w: amount must be whole cents", ErrValidation)
	}
	sale, err := s.repo.GetSale(ctx, input.SaleID)
	if err != nil {
		return nil, err
	}
	if sale.Status == SaleStatusCompleted {
		return nil, ErrCompleted
	}
	installments, err := s.repo.ListInstallments(ctx, input.SaleID)
	if err != nil {
		return nil, err
	}

	var open float64
	for _, inst := range installments {
		open += inst.Balance()
	}
	if input.Amount > open+0.005 {
		return nil, ErrOverpayment
	}

	now := s.clock()
	remaining := input.Amount
	var touched []Installment
	for i := range installments {
		if remaining <= 0 {
			break
		}
		inst := &installments[i]
		balance := inst.Balance()
		if balance <= 0 {
			continue
		}
		applied := math.Min(balance, remaining)
		inst.PaidAmount = math.Round((inst.PaidAmount+applied)*100) / 100
		remaining = math.Round((remaining-applied)*100) / 100
		if inst.Balance() <= 0.005 {
			inst.Status = InstallmentPaid
			inst.PaidAt = now
		} else {
			inst.Status = InstallmentPartial
		}
		touched = append(touched, *inst)
	}

	allPaid := true
	for _, inst := range installments {
		if inst.Status != InstallmentPaid {
			allPaid = false
			break
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, inst := range touched {
			if err := tx.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
		}
		if allPaid {
			return tx.SetSaleStatus(ctx, input.SaleID, SaleStatusCompleted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, input.ActorID, "sales:payment", input.SaleID, map[string]any{"amount": input.Amount})
	return touched, nil
}

// ListOverdue returns unpaid installments past due as of now.
func (s *Service) ListOverdue(ctx context.Context) ([]OverdueView, error) {
	return s.repo.ListOverdueInstallments(ctx, s.clock())
}

// GetSale returns the sale with its schedule.
func (s *Service) GetSale(ctx context.Context, saleID int64) (Sale, []Installment, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return Sale{}, nil, err
	}
	installments, err := s.repo.ListInstallments(ctx, saleID)
	if err != nil {
		return Sale{}, nil, err
	}
	return sale, installments, nil
}

// ListSalesForBranch returns sales recorded at the branch.
func (s *Service) ListSalesForBranch(ctx context.Context, branchID int64) ([]Sale, error) {
	return s.repo.ListSalesByBranch(ctx, branchID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: fmt.Sprintf("%d", saleID),
		Meta:     meta,
	})
}
