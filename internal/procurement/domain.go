package procurement

import (
	"errors"
	"time"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusApproved  POStatus = "APPROVED"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusClosed    POStatus = "CLOSED"
	POStatusCancelled POStatus = "CANCELLED"
)

var (
	ErrValidation   = errors.New("procurement: validation failed")
	ErrInvalidState = errors.New("procurement: invalid state transition")
	ErrNotFound     = errors.New("procurement: not found")
	ErrOverpayment  = errors.New("procurement: payment exceeds outstanding balance")
)

// PurchaseOrder is an order of serialized units from a supplier.
type PurchaseOrder struct {
	ID           int64     `json:"id"`
	Number       string    `json:"number"`
	SupplierID   int64     `json:"supplier_id"`
	BranchID     int64     `json:"branch_id"`
	Status       POStatus  `json:"status"`
	OrderDate    time.Time `json:"order_date"`
	ExpectedDate time.Time `json:"expected_date"`
	ReceivedAt   time.Time `json:"received_at,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// POLine is one vehicle model on a purchase order.
type POLine struct {
	ID       int64   `json:"id"`
	POID     int64   `json:"po_id"`
	ItemID   int64   `json:"item_id"`
	Qty      int     `json:"qty"`
	UnitCost float64 `json:"unit_cost"`
	SRP      float64 `json:"srp"`
	Color    string  `json:"color"`
}

// Total returns the line amount.
func (l POLine) Total() float64 {
	return float64(l.Qty) * l.UnitCost
}

// SupplierPayment records money sent against a received purchase order.
type SupplierPayment struct {
	ID     int64     `json:"id"`
	POID   int64     `json:"po_id"`
	Number string    `json:"number"`
	Amount float64   `json:"amount"`
	PaidAt time.Time `json:"paid_at"`
}

// PayableView summarizes what is still owed on a received order.
type PayableView struct {
	PO          PurchaseOrder `json:"po"`
	Total       float64       `json:"total"`
	Paid        float64       `json:"paid"`
	Outstanding float64       `json:"outstanding"`
	DueDate     time.Time     `json:"due_date"`
	Overdue     bool          `json:"overdue"`
}
