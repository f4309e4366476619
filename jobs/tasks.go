package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryScan triggers the nightly lot-versus-unit reconciliation.
	TaskInventoryScan = "inventory:discrepancy_scan"
	// TaskPaymentsDueScan checks supplier payables and customer installments
	// for overdue balances.
	TaskPaymentsDueScan = "finance:payments_due_scan"
)

// ScanPayload carries scheduling metadata shared by the periodic scans.
type ScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewInventoryScanTask constructs the reconciliation scan task.
func NewInventoryScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryScan, body, asynq.Queue(QueueDefault)), nil
}

// NewPaymentsDueScanTask constructs the payments-due scan task.
func NewPaymentsDueScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentsDueScan, body, asynq.Queue(QueueDefault)), nil
}
