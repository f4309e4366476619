package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dms/meridian-dms/internal/inventory"
)

func TestInventoryEventsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	events := NewInventoryEvents(registry)
	ctx := context.Background()

	events.HandleUnitSold(ctx, inventory.UnitSoldEvent{UnitID: 1, LotID: 3, SoldAt: time.Now()})
	events.HandleUnitSold(ctx, inventory.UnitSoldEvent{UnitID: 2, LotID: 3, SoldAt: time.Now()})
	events.HandleUnitTransferred(ctx, inventory.UnitTransferredEvent{
		SourceUnitID:      1,
		DestinationUnitID: 9,
		FromBranchID:      1,
		ToBranchID:        2,
		TransferredAt:     time.Now(),
	})

	require.Equal(t, 2.0, testutil.ToFloat64(events.soldTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(events.transferredTotal.WithLabelValues("1", "2")))
}
