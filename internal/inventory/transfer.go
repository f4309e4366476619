package inventory

import (
	"context"
	"errors"
	"fmt"
)

// TransferUnit relocates one available unit to another branch. The
// destination lot is reused when an existing lot at the destination matches
// the source lot's item/colour/supplier; otherwise a new lot is opened.
// All writes commit as one transaction; the source unit's compare-and-set
// status change is the serialization point, so of two concurrent callers
// exactly one succeeds and the other observes ErrInvalidTransition.
func (s *Service) TransferUnit(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.UnitID == 0 {
		return TransferResult{}, ErrUnitNotFound
	}
	if input.ToBranchID == 0 {
		return TransferResult{}, errors.New("inventory: destination branch required")
	}

	// Validation reads happen outside the write path; the checks are
	// re-asserted under the transaction by the CAS update.
	unit, err := s.repo.GetUnit(ctx, input.UnitID)
	if err != nil {
		return TransferResult{}, err
	}
	if unit.Status != StatusAvailable {
		return TransferResult{}, fmt.Errorf("%w: %s unit cannot be transferred", ErrInvalidTransition, unit.Status)
	}
	sourceLot, err := s.repo.GetLot(ctx, unit.LotID)
	if err != nil {
		return TransferResult{}, err
	}
	if sourceLot.BranchID == input.ToBranchID {
		return TransferResult{}, ErrSameBranch
	}

	insertedKey := false
	if s.idempotency != nil && input.RefCode != "" {
		if err := s.idempotency.CheckAndInsert(ctx, "TRANSFER:"+input.RefCode, "inventory"); err != nil {
			return TransferResult{}, err
		}
		insertedKey = true
	}

	var result TransferResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.GetUnit(ctx, input.UnitID)
		if err != nil {
			return err
		}
		if source.Status != StatusAvailable {
			return fmt.Errorf("%w: %s unit cannot be transferred", ErrInvalidTransition, source.Status)
		}
		srcLot, err := tx.GetLotForUpdate(ctx, source.LotID)
		if err != nil {
			return err
		}
		if srcLot.BranchID == input.ToBranchID {
			return ErrSameBranch
		}

		destLot, err := s.findOrCreateDestinationLot(ctx, tx, srcLot, input.ToBranchID)
		if err != nil {
			return err
		}

		// Serialization point: the second concurrent transfer of this unit
		// sees zero rows updated here and the whole transaction rolls back.
		// The source must leave the active set before the counterpart is
		// inserted, or the active-serial uniqueness guard would reject the
		// duplicate serials.
		updated, err := tx.UpdateUnitStatus(ctx, source.ID, StatusAvailable, StatusTransferred, 0, input.Remarks)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: unit already moved", ErrInvalidTransition)
		}

		number, err := tx.NextUnitNumber(ctx, destLot.ID)
		if err != nil {
			return err
		}
		destUnit := Unit{
			LotID:          destLot.ID,
			UnitNumber:     number,
			ChassisNo:      source.ChassisNo,
			EngineNo:       source.EngineNo,
			Status:         StatusAvailable,
			OriginalLotID:  srcLot.ID,
			OriginalUnitID: source.ID,
			Remarks:        input.Remarks,
		}
		destID, err := tx.InsertUnit(ctx, destUnit)
		if err != nil {
			return err
		}
		destUnit.ID = destID

		if err := tx.SetCounterpart(ctx, source.ID, destUnit.ID); err != nil {
			return err
		}
		source.Status = StatusTransferred
		source.CounterpartUnitID = destUnit.ID
		if input.Remarks != "" {
			source.Remarks = input.Remarks
		}

		if err := tx.AddLotCounters(ctx, srcLot.ID, 0, 0, 1, 0); err != nil {
			return err
		}

		result = TransferResult{SourceUnit: source, DestinationUnit: destUnit, DestinationLot: destLot}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, "TRANSFER:"+input.RefCode)
		}
		return TransferResult{}, classifyTransferErr(err)
	}

	s.recordAudit(ctx, input.ActorID, "inventory:unit_transfer", "vehicle_unit", input.UnitID, map[string]any{
		"to_branch_id":  input.ToBranchID,
		"dest_lot_id":   result.DestinationLot.ID,
		"dest_unit_id":  result.DestinationUnit.ID,
		"source_lot_id": result.SourceUnit.LotID,
	})
	if s.integration != nil {
		s.integration.HandleUnitTransferred(ctx, UnitTransferredEvent{
			SourceUnitID:      result.SourceUnit.ID,
			DestinationUnitID: result.DestinationUnit.ID,
			FromBranchID:      sourceLot.BranchID,
			ToBranchID:        input.ToBranchID,
			TransferredAt:     s.clock(),
		})
	}
	return result, nil
}

func (s *Service) findOrCreateDestinationLot(ctx context.Context, tx TxRepository, srcLot Lot, toBranchID int64) (Lot, error) {
	destLot, err := tx.FindMatchingLotForUpdate(ctx, toBranchID, srcLot.ItemID, srcLot.SupplierID, srcLot.Color)
	if err == nil {
		if err := tx.AddLotCounters(ctx, destLot.ID, 1, 0, 0, 0); err != nil {
			return Lot{}, err
		}
		destLot.BeginningQty++
		destLot.EndingQty++
		return destLot, nil
	}
	if !errors.Is(err, ErrLotNotFound) {
		return Lot{}, err
	}
	destLot = Lot{
		BranchID:     toBranchID,
		ItemID:       srcLot.ItemID,
		SupplierID:   srcLot.SupplierID,
		DateReceived: s.clock(),
		Cost:         srcLot.Cost,
		SRP:          srcLot.SRP,
		Color:        srcLot.Color,
		Remarks:      fmt.Sprintf("Transfer in from lot %d", srcLot.ID),
		BeginningQty: 1,
		EndingQty:    1,
	}
	id, err := tx.InsertLot(ctx, destLot)
	if err != nil {
		return Lot{}, err
	}
	destLot.ID = id
	return destLot, nil
}

// classifyTransferErr keeps validation errors as-is and wraps storage
// failures so callers can distinguish "fix input and retry" from "the
// operation did not complete".
func classifyTransferErr(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrSameBranch),
		errors.Is(err, ErrUnitNotFound),
		errors.Is(err, ErrLotNotFound),
		errors.Is(err, ErrDuplicateSerial):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
}

// ListTransferredUnits returns transferred rows with every other location the
// serial appears at across the full lineage chain.
func (s *Service) ListTransferredUnits(ctx context.Context, filter TransferFilter) ([]TransferredUnitView, error) {
	return s.repo.ListTransferredUnits(ctx, filter)
}
