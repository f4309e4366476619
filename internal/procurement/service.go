package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-dms/meridian-dms/internal/inventory"
	"github.com/meridian-dms/meridian-dms/internal/shared"
)

// InventoryPort exposes the inventory operations receiving needs. CreateLots
// posts every lot in one transaction.
type InventoryPort interface {
	CreateLots(ctx context.Context, actorID int64, inputs []inventory.CreateLotInput) ([]inventory.Lot, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchase order flows.
type Service struct {
	repo      RepositoryPort
	inventory InventoryPort
	audit     AuditPort
	clock     func() time.Time
}

// NewService constructs a procurement service.
func NewService(repo RepositoryPort, inv InventoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, inventory: inv, audit: audit, clock: time.Now}
}

// CreatePOInput describes a new purchase order.
type CreatePOInput struct {
	Number       string
	SupplierID   int64
	BranchID     int64
	ExpectedDate time.Time
	Note         string
	ActorID      int64
	Lines        []POLineInput
}

// POLineInput describes one ordered model.
type POLineInput struct {
	ItemID   int64
	Qty      int
	UnitCost float64
	SRP      float64
	Color    string
}

// ReceiveInput posts delivered units into inventory.
type ReceiveInput struct {
	POID     int64
	DRNumber string
	SINumber string
	ActorID  int64
	// Serials per line, keyed by line ID. Missing entries get placeholder
	// serials the way direct lot entry does.
	Serials map[int64][]inventory.Serial
}

// PaymentInput records money sent to the supplier.
type PaymentInput struct {
	POID   int64
	Number string
	Amount float64
}

// CreatePurchaseOrder persists the PO header and lines as DRAFT.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if input.SupplierID == 0 || input.BranchID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier and branch are required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one line", ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	po := PurchaseOrder{
		Number:       input.Number,
		SupplierID:   input.SupplierID,
		BranchID:     input.BranchID,
		Status:       POStatusDraft,
		OrderDate:    s.clock(),
		ExpectedDate: input.ExpectedDate,
		Note:         input.Note,
		CreatedBy:    input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for _, line := range input.Lines {
			if line.ItemID == 0 || line.Qty <= 0 || line.UnitCost < 0 {
				return fmt.Errorf("%w: bad line", ErrValidation)
			}
			if err := tx.InsertPOLine(ctx, POLine{
				POID: id, ItemID: line.ItemID, Qty: line.Qty,
				UnitCost: line.UnitCost, SRP: line.SRP, Color: line.Color,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "procurement:po_create", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// ApprovePurchaseOrder transitions DRAFT to APPROVED.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, poID, actorID int64) error {
	err := s.transition(ctx, poID, POStatusDraft, POStatusApproved, time.Time{})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "procurement:po_approve", poID, nil)
	return nil
}

// CancelPurchaseOrder cancels an order that has not been received.
func (s *Service) CancelPurchaseOrder(ctx context.Context, poID, actorID int64) error {
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != POStatusDraft && po.Status != POStatusApproved {
		return ErrInvalidState
	}
	if err := s.transition(ctx, poID, po.Status, POStatusCancelled, time.Time{}); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "procurement:po_cancel", poID, nil)
	return nil
}

// ReceivePurchaseOrder posts one inventory lot per PO line and marks the
// order RECEIVED. Receiving is all-or-nothing at the order level: every line
// is validated before anything posts, the lots land in one inventory
// transaction, and a posting failure puts the order back to APPROVED.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, input ReceiveInput) ([]inventory.Lot, error) {
	po, lines, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return nil, err
	}
	if po.Status != POStatusApproved {
		return nil, ErrInvalidState
	}

	receivedAt := s.clock()
	inputs := make([]inventory.CreateLotInput, 0, len(lines))
	for _, line := range lines {
		serials := input.Serials[line.ID]
		if len(serials) != 0 && len(serials) != line.Qty {
			return nil, fmt.Errorf("%w: line %d expects %d serials", ErrValidation, line.ID, line.Qty)
		}
		inputs = append(inputs, inventory.CreateLotInput{
			BranchID:     po.BranchID,
			ItemID:       line.ItemID,
			SupplierID:   po.SupplierID,
			DateReceived: receivedAt,
			Cost:         line.UnitCost,
			SRP:          line.SRP,
			Color:        line.Color,
			DRNumber:     input.DRNumber,
			SINumber:     input.SINumber,
			Remarks:      "Received via " + po.Number,
			PurchasedQty: line.Qty,
			Serials:      serials,
		})
	}

	// Claim the order before posting so a concurrent receive of the same PO
	// loses the status CAS instead of double-posting lots.
	if err := s.transition(ctx, input.POID, POStatusApproved, POStatusReceived, receivedAt); err != nil {
		return nil, err
	}
	lots, err := s.inventory.CreateLots(ctx, input.ActorID, inputs)
	if err != nil {
		if rbErr := s.transition(ctx, input.POID, POStatusReceived, POStatusApproved, time.Time{}); rbErr != nil {
			return nil, fmt.Errorf("%w; revert receipt of PO %d: %w", err, input.POID, rbErr)
		}
		return nil, err
	}
	s.recordAudit(ctx, input.ActorID, "procurement:po_receive", input.POID, map[string]any{"lots": len(lots)})
	return lots, nil
}

// RecordPayment posts a supplier payment against a received order. When the
// balance reaches zero the order closes.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (SupplierPayment, error) {
	if input.Amount <= 0 {
		return SupplierPayment{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	po, lines, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return SupplierPayment{}, err
	}
	if po.Status != POStatusReceived {
		return SupplierPayment{}, ErrInvalidState
	}
	paid, err := s.repo.PaymentsTotal(ctx, input.POID)
	if err != nil {
		return SupplierPayment{}, err
	}
	total := orderTotal(lines)
	if paid+input.Amount > total+0.005 {
		return SupplierPayment{}, ErrOverpayment
	}
	if input.Number == "" {
		input.Number = generateNumber("PAY")
	}
	payment := SupplierPayment{POID: input.POID, Number: input.Number, Amount: input.Amount, PaidAt: s.clock()}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id
		if paid+input.Amount >= total-0.005 {
			ok, err := tx.UpdatePOStatus(ctx, input.POID, POStatusReceived, POStatusClosed, time.Time{})
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidState
			}
		}
		return nil
	})
	if err != nil {
		return SupplierPayment{}, err
	}
	return payment, nil
}

// ListPayables returns received orders with balances and due dates, flagging
// those past the supplier's credit terms as of now.
func (s *Service) ListPayables(ctx context.Context) ([]PayableView, error) {
	pos, err := s.repo.ListPOsByStatus(ctx, POStatusReceived)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	views := make([]PayableView, 0, len(pos))
	for _, po := range pos {
		_, lines, err := s.repo.GetPO(ctx, po.ID)
		if err != nil {
			return nil, err
		}
		paid, err := s.repo.PaymentsTotal(ctx, po.ID)
		if err != nil {
			return nil, err
		}
		terms, err := s.repo.SupplierTermsDays(ctx, po.SupplierID)
		if err != nil {
			return nil, err
		}
		total := orderTotal(lines)
		due := po.ReceivedAt.AddDate(0, 0, terms)
		views = append(views, PayableView{
			PO:          po,
			Total:       total,
			Paid:        paid,
			Outstanding: total - paid,
			DueDate:     due,
			Overdue:     now.After(due),
		})
	}
	return views, nil
}

// GetPurchaseOrder returns the PO with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, poID int64) (PurchaseOrder, []POLine, error) {
	return s.repo.GetPO(ctx, poID)
}

// ListPayments returns payments posted against the order.
func (s *Service) ListPayments(ctx context.Context, poID int64) ([]SupplierPayment, error) {
	return s.repo.ListPayments(ctx, poID)
}

func (s *Service) transition(ctx context.Context, poID int64, from, to POStatus, receivedAt time.Time) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.UpdatePOStatus(ctx, poID, from, to, receivedAt)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}
		return nil
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, poID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: fmt.Sprintf("%d", poID),
		Meta:     meta,
	})
}

func orderTotal(lines []POLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.Total()
	}
	return total
}

func generateNumber(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
