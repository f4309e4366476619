package inventory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryRepo is an in-memory RepositoryPort with copy-on-write transactions:
// fn runs against a deep copy and the copy replaces live state only on
// success, which mirrors the rollback behaviour of the real repository.
type memoryRepo struct {
	mu       sync.Mutex
	state    *memState
	branches map[int64]string
	// failOn makes the named tx method return an error, for atomicity tests.
	failOn string
}

type memState struct {
	lots     map[int64]*Lot
	units    map[int64]*Unit
	nextLot  int64
	nextUnit int64
}

type memoryTx struct {
	repo  *memoryRepo
	state *memState
}

var errInjected = errors.New("injected storage failure")

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: &memState{
			lots:  map[int64]*Lot{},
			units: map[int64]*Unit{},
		},
		branches: map[int64]string{1: "Main", 2: "North", 3: "East"},
	}
}

func (s *memState) clone() *memState {
	next := &memState{
		lots:     make(map[int64]*Lot, len(s.lots)),
		units:    make(map[int64]*Unit, len(s.units)),
		nextLot:  s.nextLot,
		nextUnit: s.nextUnit,
	}
	for id, lot := range s.lots {
		copied := *lot
		next.lots[id] = &copied
	}
	for id, unit := range s.units {
		copied := *unit
		next.units[id] = &copied
	}
	return next
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r, state: draft}); err != nil {
		return err
	}
	r.state = draft
	return nil
}

func (r *memoryRepo) GetUnit(ctx context.Context, id int64) (Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return getUnit(r.state, id)
}

func (r *memoryRepo) GetLot(ctx context.Context, id int64) (Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return getLot(r.state, id)
}

func (r *memoryRepo) GetBranchName(ctx context.Context, id int64) (string, error) {
	return r.branches[id], nil
}

func (r *memoryRepo) ListLotsByBranch(ctx context.Context, branchID int64) ([]Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lots []Lot
	for _, lot := range r.state.lots {
		if lot.BranchID == branchID {
			lots = append(lots, *lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].ID < lots[j].ID })
	return lots, nil
}

func (r *memoryRepo) CountUnitsByStatus(ctx context.Context, lotID int64) (StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return countUnits(r.state, lotID), nil
}

func (r *memoryRepo) LineageUnits(ctx context.Context, unitID int64) ([]Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lineage(r.state, unitID), nil
}

func (r *memoryRepo) ListTransferredUnits(ctx context.Context, filter TransferFilter) ([]TransferredUnitView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var views []TransferredUnitView
	for _, unit := range r.state.units {
		if unit.Status != StatusTransferred {
			continue
		}
		lot := r.state.lots[unit.LotID]
		if filter.BranchID != 0 && lot.BranchID != filter.BranchID {
			continue
		}
		if filter.Search != "" &&
			!strings.Contains(unit.ChassisNo, filter.Search) &&
			!strings.Contains(unit.EngineNo, filter.Search) {
			continue
		}
		view := TransferredUnitView{
			Unit:       *unit,
			LotID:      unit.LotID,
			BranchID:   lot.BranchID,
			BranchName: r.branches[lot.BranchID],
			ItemID:     lot.ItemID,
			Color:      lot.Color,
		}
		for _, other := range lineage(r.state, unit.ID) {
			if other.ID == unit.ID {
				continue
			}
			otherLot := r.state.lots[other.LotID]
			view.Counterparts = append(view.Counterparts, Counterpart{
				UnitID:     other.ID,
				LotID:      other.LotID,
				BranchID:   otherLot.BranchID,
				BranchName: r.branches[otherLot.BranchID],
				ChassisNo:  other.ChassisNo,
				EngineNo:   other.EngineNo,
				Status:     other.Status,
			})
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Unit.ID < views[j].Unit.ID })
	return views, nil
}

func (r *memoryRepo) ListDiscrepancies(ctx context.Context) ([]Discrepancy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Discrepancy
	for _, lot := range r.state.lots {
		counts := countUnits(r.state, lot.ID)
		d := Discrepancy{
			LotID:          lot.ID,
			BranchID:       lot.BranchID,
			StoredEnding:   lot.EndingQty,
			StoredSold:     lot.SoldQty,
			ComputedEnding: counts.Ending(),
			ComputedSold:   counts.Sold,
			UnitTotal:      counts.Total,
		}
		if counts.Total > 0 {
			d.HasDiscrepancy = d.StoredEnding != d.ComputedEnding || d.StoredSold != d.ComputedSold
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LotID < result[j].LotID })
	return result, nil
}

func (tx *memoryTx) GetUnit(ctx context.Context, id int64) (Unit, error) {
	return getUnit(tx.state, id)
}

func (tx *memoryTx) GetLot(ctx context.Context, id int64) (Lot, error) {
	return getLot(tx.state, id)
}

func (tx *memoryTx) GetLotForUpdate(ctx context.Context, id int64) (Lot, error) {
	return getLot(tx.state, id)
}

func (tx *memoryTx) FindMatchingLotForUpdate(ctx context.Context, branchID, itemID, supplierID int64, color string) (Lot, error) {
	var match *Lot
	for _, lot := range tx.state.lots {
		if lot.BranchID != branchID || lot.ItemID != itemID || lot.Color != color || lot.SupplierID != supplierID {
			continue
		}
		if match == nil || lot.ID < match.ID {
			match = lot
		}
	}
	if match == nil {
		return Lot{}, ErrLotNotFound
	}
	return *match, nil
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	if tx.repo.failOn == "InsertLot" {
		return 0, errInjected
	}
	tx.state.nextLot++
	lot.ID = tx.state.nextLot
	lot.CreatedAt = time.Now()
	lot.UpdatedAt = lot.CreatedAt
	tx.state.lots[lot.ID] = &lot
	return lot.ID, nil
}

func (tx *memoryTx) InsertUnit(ctx context.Context, unit Unit) (int64, error) {
	if tx.repo.failOn == "InsertUnit" {
		return 0, errInjected
	}
	tx.state.nextUnit++
	unit.ID = tx.state.nextUnit
	unit.CreatedAt = time.Now()
	unit.UpdatedAt = unit.CreatedAt
	tx.state.units[unit.ID] = &unit
	return unit.ID, nil
}

func (tx *memoryTx) NextUnitNumber(ctx context.Context, lotID int64) (int, error) {
	max := 0
	for _, unit := range tx.state.units {
		if unit.LotID == lotID && unit.UnitNumber > max {
			max = unit.UnitNumber
		}
	}
	return max + 1, nil
}

func (tx *memoryTx) ActiveSerialExists(ctx context.Context, chassisNo, engineNo string) (bool, error) {
	for _, unit := range tx.state.units {
		if !unit.Status.Active() {
			continue
		}
		if chassisNo != "" && unit.ChassisNo == chassisNo {
			return true, nil
		}
		if engineNo != "" && unit.EngineNo == engineNo {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) UpdateUnitStatus(ctx context.Context, unitID int64, from, to UnitStatus, counterpartID int64, remarks string) (bool, error) {
	if tx.repo.failOn == "UpdateUnitStatus" {
		return false, errInjected
	}
	unit, ok := tx.state.units[unitID]
	if !ok || unit.Status != from {
		return false, nil
	}
	unit.Status = to
	if counterpartID != 0 {
		unit.CounterpartUnitID = counterpartID
	}
	if remarks != "" {
		unit.Remarks = remarks
	}
	unit.UpdatedAt = time.Now()
	return true, nil
}

func (tx *memoryTx) SetCounterpart(ctx context.Context, unitID, counterpartID int64) error {
	if tx.repo.failOn == "SetCounterpart" {
		return errInjected
	}
	unit, ok := tx.state.units[unitID]
	if !ok {
		return ErrUnitNotFound
	}
	unit.CounterpartUnitID = counterpartID
	unit.UpdatedAt = time.Now()
	return nil
}

func (tx *memoryTx) AddLotCounters(ctx context.Context, lotID int64, beginning, purchased, transferred, sold int) error {
	if tx.repo.failOn == "AddLotCounters" {
		return errInjected
	}
	lot, ok := tx.state.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	lot.BeginningQty += beginning
	lot.PurchasedQty += purchased
	lot.TransferredQty += transferred
	lot.SoldQty += sold
	lot.EndingQty = lot.BeginningQty + lot.PurchasedQty - lot.TransferredQty - lot.SoldQty
	lot.UpdatedAt = time.Now()
	return nil
}

func (tx *memoryTx) SetLotCounters(ctx context.Context, lotID int64, transferred, sold int) error {
	lot, ok := tx.state.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	lot.TransferredQty = transferred
	lot.SoldQty = sold
	lot.EndingQty = lot.BeginningQty + lot.PurchasedQty - transferred - sold
	lot.UpdatedAt = time.Now()
	return nil
}

func (tx *memoryTx) CountUnitsByStatus(ctx context.Context, lotID int64) (StatusCounts, error) {
	return countUnits(tx.state, lotID), nil
}

func getUnit(s *memState, id int64) (Unit, error) {
	unit, ok := s.units[id]
	if !ok {
		return Unit{}, ErrUnitNotFound
	}
	return *unit, nil
}

func getLot(s *memState, id int64) (Lot, error) {
	lot, ok := s.lots[id]
	if !ok {
		return Lot{}, ErrLotNotFound
	}
	return *lot, nil
}

func countUnits(s *memState, lotID int64) StatusCounts {
	var c StatusCounts
	for _, unit := range s.units {
		if unit.LotID != lotID {
			continue
		}
		c.Total++
		switch unit.Status {
		case StatusAvailable:
			c.Available++
		case StatusReserved:
			c.Reserved++
		case StatusSold:
			c.Sold++
		}
	}
	return c
}

func lineage(s *memState, unitID int64) []Unit {
	seen := map[int64]bool{}
	queue := []int64{unitID}
	var units []Unit
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		unit, ok := s.units[id]
		if !ok {
			continue
		}
		units = append(units, *unit)
		if unit.OriginalUnitID != 0 {
			queue = append(queue, unit.OriginalUnitID)
		}
		if unit.CounterpartUnitID != 0 {
			queue = append(queue, unit.CounterpartUnitID)
		}
		for _, other := range s.units {
			if other.OriginalUnitID == id || other.CounterpartUnitID == id {
				queue = append(queue, other.ID)
			}
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units
}
