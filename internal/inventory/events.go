package inventory

import (
	"context"
	"time"
)

// UnitTransferredEvent is emitted after a transfer commits.
type UnitTransferredEvent struct {
	SourceUnitID      int64
	DestinationUnitID int64
	FromBranchID      int64
	ToBranchID        int64
	TransferredAt     time.Time
}

// UnitSoldEvent is emitted after a unit is marked sold.
type UnitSoldEvent struct {
	UnitID int64
	LotID  int64
	SoldAt time.Time
}

// IntegrationHandler receives inventory events for downstream consumers.
// Handlers run after the owning transaction has committed, so they must
// absorb their own failures; the operation itself already succeeded.
type IntegrationHandler interface {
	HandleUnitTransferred(ctx context.Context, evt UnitTransferredEvent)
	HandleUnitSold(ctx context.Context, evt UnitSoldEvent)
}
