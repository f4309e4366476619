package inventory

import (
	"errors"
	"time"
)

// UnitStatus enumerates the lifecycle states of a vehicle unit.
type UnitStatus string

const (
	// StatusAvailable marks a unit on hand and sellable.
	StatusAvailable UnitStatus = "AVAILABLE"
	// StatusReserved marks a unit held for a pending sale.
	StatusReserved UnitStatus = "RESERVED"
	// StatusSold is terminal for the unit row.
	StatusSold UnitStatus = "SOLD"
	// StatusTransferred is terminal; the unit lives on as a counterpart row
	// at the destination branch.
	StatusTransferred UnitStatus = "TRANSFERRED"
)

// Active reports whether the status counts against serial uniqueness.
// Transferred rows are historical and may share serials with their
// counterparts.
func (s UnitStatus) Active() bool {
	return s == StatusAvailable || s == StatusReserved || s == StatusSold
}

// Lot is one receiving event at a branch: a group of units of the same
// model/colour plus the movement counters shown on the stock position screen.
type Lot struct {
	ID             int64
	BranchID       int64
	ItemID         int64
	SupplierID     int64 // 0 when the lot was not sourced from a supplier
	DateReceived   time.Time
	Cost           float64
	SRP            float64
	Color          string
	DRNumber       string
	SINumber       string
	Remarks        string
	BeginningQty   int
	PurchasedQty   int
	TransferredQty int
	SoldQty        int
	EndingQty      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Pending reports whether the lot has not been physically received yet.
func (l Lot) Pending() bool {
	return l.DateReceived.IsZero()
}

// Unit is one serialized physical vehicle.
type Unit struct {
	ID                int64
	LotID             int64
	UnitNumber        int
	ChassisNo         string
	EngineNo          string
	Status            UnitStatus
	OriginalLotID     int64 // provenance: lot the unit was transferred out of
	OriginalUnitID    int64 // provenance: unit this row was created from
	CounterpartUnitID int64 // forward link set when this row is transferred
	Remarks           string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Serial carries the chassis/engine pair for a unit being registered.
type Serial struct {
	ChassisNo string
	EngineNo  string
}

// Empty reports whether both numbers are blank (placeholder unit).
func (s Serial) Empty() bool {
	return s.ChassisNo == "" && s.EngineNo == ""
}

// CreateLotInput describes a receiving event.
type CreateLotInput struct {
	BranchID     int64
	ItemID       int64
	SupplierID   int64
	DateReceived time.Time
	Cost         float64
	SRP          float64
	Color        string
	DRNumber     string
	SINumber     string
	Remarks      string
	BeginningQty int
	PurchasedQty int
	Serials      []Serial
	ActorID      int64
}

// CounterUpdate carries a manual counter edit. Nil fields are left as-is.
type CounterUpdate struct {
	TransferredQty *int
	SoldQty        *int
	ActorID        int64
}

// TransferInput describes a unit relocation request.
type TransferInput struct {
	UnitID     int64
	ToBranchID int64
	Remarks    string
	ActorID    int64
	// RefCode is an optional caller-supplied idempotency code. When set,
	// replays of the same code are rejected before any write.
	RefCode string
}

// TransferResult is returned by a successful transfer.
type TransferResult struct {
	SourceUnit      Unit
	DestinationUnit Unit
	DestinationLot  Lot
}

// TransferFilter narrows the transferred-units listing.
type TransferFilter struct {
	BranchID int64
	From     time.Time
	To       time.Time
	Search   string
	Limit    int
}

// Counterpart is one other location a serial currently or previously
// appears at, discovered by walking the lineage links.
type Counterpart struct {
	UnitID     int64
	LotID      int64
	BranchID   int64
	BranchName string
	ChassisNo  string
	EngineNo   string
	Status     UnitStatus
}

// TransferredUnitView is one row of the transferred-units report.
type TransferredUnitView struct {
	Unit         Unit
	LotID        int64
	BranchID     int64
	BranchName   string
	ItemID       int64
	Color        string
	Counterparts []Counterpart
}

// StatusCounts is the reconciler output for one lot.
type StatusCounts struct {
	Available int
	Reserved  int
	Sold      int
	Total     int
}

// Ending is the live on-hand count derived from unit rows.
func (c StatusCounts) Ending() int {
	return c.Available + c.Reserved
}

// Discrepancy flags a lot whose stored counters disagree with unit rows.
// Lots with zero units are legacy-entry lots and are never flagged.
type Discrepancy struct {
	LotID          int64
	BranchID       int64
	StoredEnding   int
	StoredSold     int
	ComputedEnding int
	ComputedSold   int
	UnitTotal      int
	HasDiscrepancy bool
}

// Domain errors. Validation errors are detected before any write.
var (
	// ErrDuplicateSerial indicates a chassis or engine number already in use
	// by an active unit.
	ErrDuplicateSerial = errors.New("inventory: duplicate serial number")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("inventory: invalid status transition")
	// ErrUnitNotFound indicates a missing unit row.
	ErrUnitNotFound = errors.New("inventory: unit not found")
	// ErrLotNotFound indicates a missing lot row.
	ErrLotNotFound = errors.New("inventory: lot not found")
	// ErrSameBranch indicates a transfer to the unit's own branch.
	ErrSameBranch = errors.New("inventory: destination branch equals source branch")
	// ErrCounterOverflow indicates a counter edit that would go negative or
	// desynchronise from actual unit counts.
	ErrCounterOverflow = errors.New("inventory: counters disagree with unit ledger")
	// ErrTransferFailed wraps a storage failure inside the transfer
	// transaction. The whole operation was rolled back.
	ErrTransferFailed = errors.New("inventory: transfer failed")
)
