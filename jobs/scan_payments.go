package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-dms/meridian-dms/internal/jobs"
	"github.com/meridian-dms/meridian-dms/internal/procurement"
	"github.com/meridian-dms/meridian-dms/internal/sales"
)

// PayablesSource lists open supplier obligations.
type PayablesSource interface {
	ListPayables(ctx context.Context) ([]procurement.PayableView, error)
}

// ReceivablesSource lists overdue customer installments.
type ReceivablesSource interface {
	ListOverdue(ctx context.Context) ([]sales.OverdueView, error)
}

// PaymentsDueScan surfaces overdue supplier payables and customer
// installments so the back office sees them before month end.
type PaymentsDueScan struct {
	Payables    PayablesSource
	Receivables ReceivablesSource
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// Handle processes TaskPaymentsDueScan tasks.
func (s *PaymentsDueScan) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.Metrics.Track("payments_due_scan")

	payables, err := s.Payables.ListPayables(ctx)
	if err != nil {
		s.Logger.Error("payables scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	overduePayables := 0
	for _, p := range payables {
		if !p.Overdue {
			continue
		}
		overduePayables++
		s.Logger.Warn("supplier payable overdue",
			slog.Int64("po_id", p.PO.ID),
			slog.String("po_number", p.PO.Number),
			slog.Float64("outstanding", p.Outstanding),
			slog.Time("due_date", p.DueDate))
	}
	s.Metrics.SetOverdue("payable", overduePayables)

	installments, err := s.Receivables.ListOverdue(ctx)
	if err != nil {
		s.Logger.Error("receivables scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, v := range installments {
		s.Logger.Warn("installment overdue",
			slog.Int64("sale_id", v.Sale.ID),
			slog.String("customer", v.Sale.CustomerName),
			slog.Int("seq", v.Installment.Seq),
			slog.Int("days_late", v.DaysLate))
	}
	s.Metrics.SetOverdue("installment", len(installments))

	s.Logger.Info("payments-due scan finished",
		slog.Int("overdue_payables", overduePayables),
		slog.Int("overdue_installments", len(installments)))
	return tracker.End(nil)
}
