package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-dms/meridian-dms/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the unit ledger, lot counters and transfers.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	integration IntegrationHandler
	clock       func() time.Time
}

// NewService builds Service. audit, idem and integration may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, integration IntegrationHandler) *Service {
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		integration: integration,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateLot records a receiving event. When purchased quantity is given
// without serials, placeholder units are created so the unit ledger stays
// authoritative for counts; serials can be filled in later.
func (s *Service) CreateLot(ctx context.Context, input CreateLotInput) (Lot, error) {
	lot, serials, err := buildLot(input)
	if err != nil {
		return Lot{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err = s.insertLotTx(ctx, tx, lot, serials)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	s.auditLotCreate(ctx, input.ActorID, lot)
	return lot, nil
}

// CreateLots posts several receiving events in one transaction: either every
// lot and its units land or none do. Procurement receives multi-line orders
// through this so a failure on a later line cannot post the earlier ones.
func (s *Service) CreateLots(ctx context.Context, actorID int64, inputs []CreateLotInput) ([]Lot, error) {
	if len(inputs) == 0 {
		return nil, errors.New("inventory: at least one lot required")
	}
	lots := make([]Lot, len(inputs))
	serialSets := make([][]Serial, len(inputs))
	for i, input := range inputs {
		lot, serials, err := buildLot(input)
		if err != nil {
			return nil, err
		}
		lots[i] = lot
		serialSets[i] = serials
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for i := range lots {
			lot, err := s.insertLotTx(ctx, tx, lots[i], serialSets[i])
			if err != nil {
				return err
			}
			lots[i] = lot
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, lot := range lots {
		s.auditLotCreate(ctx, actorID, lot)
	}
	return lots, nil
}

func buildLot(input CreateLotInput) (Lot, []Serial, error) {
	if input.BranchID == 0 || input.ItemID == 0 {
		return Lot{}, nil, errors.New("inventory: branch and item required")
	}
	if input.BeginningQty < 0 || input.PurchasedQty < 0 {
		return Lot{}, nil, ErrCounterOverflow
	}
	if len(input.Serials) > 0 && len(input.Serials) != input.PurchasedQty {
		return Lot{}, nil, fmt.Errorf("inventory: %d serials given for purchased qty %d", len(input.Serials), input.PurchasedQty)
	}
	serials := input.Serials
	if len(serials) == 0 && input.PurchasedQty > 0 {
		serials = make([]Serial, input.PurchasedQty)
	}
	lot := Lot{
		BranchID:     input.BranchID,
		ItemID:       input.ItemID,
		SupplierID:   input.SupplierID,
		DateReceived: input.DateReceived,
		Cost:         input.Cost,
		SRP:          input.SRP,
		Color:        input.Color,
		DRNumber:     input.DRNumber,
		SINumber:     input.SINumber,
		Remarks:      input.Remarks,
		BeginningQty: input.BeginningQty,
		PurchasedQty: input.PurchasedQty,
	}
	lot.EndingQty = lot.BeginningQty + lot.PurchasedQty
	return lot, serials, nil
}

func (s *Service) insertLotTx(ctx context.Context, tx TxRepository, lot Lot, serials []Serial) (Lot, error) {
	id, err := tx.InsertLot(ctx, lot)
	if err != nil {
		return Lot{}, err
	}
	lot.ID = id
	for i, serial := range serials {
		if _, err := s.insertUnit(ctx, tx, lot.ID, i+1, serial, ""); err != nil {
			return Lot{}, err
		}
	}
	return lot, nil
}

func (s *Service) auditLotCreate(ctx context.Context, actorID int64, lot Lot) {
	s.recordAudit(ctx, actorID, "inventory:lot_create", "inventory_lot", lot.ID, map[string]any{
		"branch_id":     lot.BranchID,
		"item_id":       lot.ItemID,
		"purchased_qty": lot.PurchasedQty,
	})
}

// CreateUnits registers serialized units under an existing lot.
func (s *Service) CreateUnits(ctx context.Context, lotID int64, serials []Serial, actorID int64) ([]Unit, error) {
	if lotID == 0 {
		return nil, ErrLotNotFound
	}
	if len(serials) == 0 {
		return nil, errors.New("inventory: at least one serial required")
	}
	var units []Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetLotForUpdate(ctx, lotID); err != nil {
			return err
		}
		next, err := tx.NextUnitNumber(ctx, lotID)
		if err != nil {
			return err
		}
		for i, serial := range serials {
			unit, err := s.insertUnit(ctx, tx, lotID, next+i, serial, "")
			if err != nil {
				return err
			}
			units = append(units, unit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "inventory:units_create", "inventory_lot", lotID, map[string]any{"count": len(units)})
	return units, nil
}

func (s *Service) insertUnit(ctx context.Context, tx TxRepository, lotID int64, number int, serial Serial, remarks string) (Unit, error) {
	if !serial.Empty() {
		exists, err := tx.ActiveSerialExists(ctx, serial.ChassisNo, serial.EngineNo)
		if err != nil {
			return Unit{}, err
		}
		if exists {
			return Unit{}, fmt.Errorf("%w: chassis %q engine %q", ErrDuplicateSerial, serial.ChassisNo, serial.EngineNo)
		}
	}
	unit := Unit{
		LotID:      lotID,
		UnitNumber: number,
		ChassisNo:  serial.ChassisNo,
		EngineNo:   serial.EngineNo,
		Status:     StatusAvailable,
		Remarks:    remarks,
	}
	id, err := tx.InsertUnit(ctx, unit)
	if err != nil {
		return Unit{}, err
	}
	unit.ID = id
	return unit, nil
}

// MarkSold transitions an available unit to sold and bumps the lot counter.
func (s *Service) MarkSold(ctx context.Context, unitID, actorID int64) (Unit, error) {
	unit, err := s.transition(ctx, unitID, []UnitStatus{StatusAvailable, StatusReserved}, StatusSold, func(ctx context.Context, tx TxRepository, u Unit) error {
		return tx.AddLotCounters(ctx, u.LotID, 0, 0, 0, 1)
	})
	if err != nil {
		return Unit{}, err
	}
	s.recordAudit(ctx, actorID, "inventory:unit_sold", "vehicle_unit", unitID, nil)
	if s.integration != nil {
		s.integration.HandleUnitSold(ctx, UnitSoldEvent{UnitID: unit.ID, LotID: unit.LotID, SoldAt: s.clock()})
	}
	return unit, nil
}

// MarkReserved holds an available unit for a pending sale.
func (s *Service) MarkReserved(ctx context.Context, unitID, actorID int64) (Unit, error) {
	unit, err := s.transition(ctx, unitID, []UnitStatus{StatusAvailable}, StatusReserved, nil)
	if err != nil {
		return Unit{}, err
	}
	s.recordAudit(ctx, actorID, "inventory:unit_reserved", "vehicle_unit", unitID, nil)
	return unit, nil
}

// Release returns a reserved unit to available.
func (s *Service) Release(ctx context.Context, unitID, actorID int64) (Unit, error) {
	unit, err := s.transition(ctx, unitID, []UnitStatus{StatusReserved}, StatusAvailable, nil)
	if err != nil {
		return Unit{}, err
	}
	s.recordAudit(ctx, actorID, "inventory:unit_released", "vehicle_unit", unitID, nil)
	return unit, nil
}

// RevertSold puts a sold unit back on the floor and unwinds the lot counter.
// It is a compensation path for callers that mark a unit sold and then fail
// to persist their own records; it is not mounted on any route.
func (s *Service) RevertSold(ctx context.Context, unitID, actorID int64) (Unit, error) {
	unit, err := s.transition(ctx, unitID, []UnitStatus{StatusSold}, StatusAvailable, func(ctx context.Context, tx TxRepository, u Unit) error {
		return tx.AddLotCounters(ctx, u.LotID, 0, 0, 0, -1)
	})
	if err != nil {
		return Unit{}, err
	}
	s.recordAudit(ctx, actorID, "inventory:unit_sale_reverted", "vehicle_unit", unitID, nil)
	return unit, nil
}

// transition performs a compare-and-set status change. extra runs inside the
// same transaction after the CAS succeeds.
func (s *Service) transition(ctx context.Context, unitID int64, from []UnitStatus, to UnitStatus, extra func(context.Context, TxRepository, Unit) error) (Unit, error) {
	var unit Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		expected, ok := matchStatus(current.Status, from)
		if !ok {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
		updated, err := tx.UpdateUnitStatus(ctx, unitID, expected, to, 0, "")
		if err != nil {
			return err
		}
		if !updated {
			// Lost the race: someone else moved the unit first.
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, to)
		}
		current.Status = to
		if extra != nil {
			if err := extra(ctx, tx, current); err != nil {
				return err
			}
		}
		unit = current
		return nil
	})
	return unit, err
}

func matchStatus(current UnitStatus, allowed []UnitStatus) (UnitStatus, bool) {
	for _, status := range allowed {
		if current == status {
			return status, true
		}
	}
	return "", false
}

// UpdateCounters applies a manual counter edit. Counters are a projection of
// unit state: edits are only accepted while the lot owns no units (legacy
// bulk-entry mode) or when the requested values match actual unit counts.
func (s *Service) UpdateCounters(ctx context.Context, lotID int64, update CounterUpdate) (Lot, error) {
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetLotForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		transferred := current.TransferredQty
		if update.TransferredQty != nil {
			transferred = *update.TransferredQty
		}
		sold := current.SoldQty
		if update.SoldQty != nil {
			sold = *update.SoldQty
		}
		if transferred < 0 || sold < 0 {
			return ErrCounterOverflow
		}
		ending := current.BeginningQty + current.PurchasedQty - transferred - sold
		if ending < 0 {
			return ErrCounterOverflow
		}
		counts, err := tx.CountUnitsByStatus(ctx, lotID)
		if err != nil {
			return err
		}
		if counts.Total > 0 {
			if sold != counts.Sold || ending != counts.Ending() {
				return ErrCounterOverflow
			}
		}
		if err := tx.SetLotCounters(ctx, lotID, transferred, sold); err != nil {
			return err
		}
		current.TransferredQty = transferred
		current.SoldQty = sold
		current.EndingQty = ending
		lot = current
		return nil
	})
	if err != nil {
		return Lot{}, err
	}
	s.recordAudit(ctx, update.ActorID, "inventory:counters_update", "inventory_lot", lotID, map[string]any{
		"transferred_qty": lot.TransferredQty,
		"sold_qty":        lot.SoldQty,
	})
	return lot, nil
}

// ComputeAging returns whole days the lot has been on hand as of asOf.
// Pending lots age zero.
func ComputeAging(lot Lot, asOf time.Time) int {
	if lot.Pending() {
		return 0
	}
	days := int(asOf.Sub(lot.DateReceived).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// GetLot loads one lot.
func (s *Service) GetLot(ctx context.Context, lotID int64) (Lot, error) {
	return s.repo.GetLot(ctx, lotID)
}

// GetUnit loads one unit.
func (s *Service) GetUnit(ctx context.Context, unitID int64) (Unit, error) {
	return s.repo.GetUnit(ctx, unitID)
}

// GetLotsForBranch lists current and pending lots at a branch.
func (s *Service) GetLotsForBranch(ctx context.Context, branchID int64) ([]Lot, error) {
	if branchID == 0 {
		return nil, errors.New("inventory: branch required")
	}
	return s.repo.ListLotsByBranch(ctx, branchID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
