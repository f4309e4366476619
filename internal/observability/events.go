package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridian-dms/meridian-dms/internal/inventory"
)

// InventoryEvents feeds unit lifecycle events into Prometheus counters. It
// implements inventory.IntegrationHandler; handlers run after the owning
// transaction committed, so recording is fire-and-forget.
type InventoryEvents struct {
	soldTotal        prometheus.Counter
	transferredTotal *prometheus.CounterVec
}

// NewInventoryEvents registers the unit counters. A nil registerer falls back
// to the process default.
func NewInventoryEvents(reg prometheus.Registerer) *InventoryEvents {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e := &InventoryEvents{
		soldTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_units_sold_total",
			Help: "Units marked sold.",
		}),
		transferredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_units_transferred_total",
			Help: "Units relocated between branches.",
		}, []string{"from_branch", "to_branch"}),
	}
	reg.MustRegister(e.soldTotal, e.transferredTotal)
	return e
}

func (e *InventoryEvents) HandleUnitSold(ctx context.Context, evt inventory.UnitSoldEvent) {
	e.soldTotal.Inc()
}

func (e *InventoryEvents) HandleUnitTransferred(ctx context.Context, evt inventory.UnitTransferredEvent) {
	e.transferredTotal.WithLabelValues(
		strconv.FormatInt(evt.FromBranchID, 10),
		strconv.FormatInt(evt.ToBranchID, 10),
	).Inc()
}
