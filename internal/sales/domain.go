package sales

import (
	"errors"
	"time"
)

// Sale lifecycle statuses. Sales never revert: the unit row in inventory is
// terminally sold once the sale posts.
type SaleStatus string

const (
	SaleStatusActive    SaleStatus = "ACTIVE"
	SaleStatusCompleted SaleStatus = "COMPLETED"
)

// Installment payment statuses.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPartial InstallmentStatus = "PARTIAL"
	InstallmentPaid    InstallmentStatus = "PAID"
)

var (
	ErrValidation  = errors.New("sales: validation failed")
	ErrNotFound    = errors.New("sales: not found")
	ErrOverpayment = errors.New("sales: payment exceeds balance")
	ErrCompleted   = errors.New("sales: sale already completed")
)

// Sale records a unit leaving inventory to a customer, cash or financed.
type Sale struct {
	ID              int64      `json:"id"`
	Number          string     `json:"number"`
	BranchID        int64      `json:"branch_id"`
	UnitID          int64      `json:"unit_id"`
	LotID           int64      `json:"lot_id"`
	CustomerName    string     `json:"customer_name"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	CustomerAddress string     `json:"customer_address,omitempty"`
	Price           float64    `json:"price"`
	DownPayment     float64    `json:"down_payment"`
	TermMonths      int        `json:"term_months"`
	Status          SaleStatus `json:"status"`
	SoldAt          time.Time  `json:"sold_at"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Financed returns the amount carried to installments.
func (s Sale) Financed() float64 {
	return s.Price - s.DownPayment
}

// Installment is one monthly amortization row.
type Installment struct {
	ID         int64             `json:"id"`
	SaleID     int64             `json:"sale_id"`
	Seq        int               `json:"seq"`
	DueDate    time.Time         `json:"due_date"`
	Amount     float64           `json:"amount"`
	PaidAmount float64           `json:"paid_amount"`
	PaidAt     time.Time         `json:"paid_at,omitempty"`
	Status     InstallmentStatus `json:"status"`
}

// Balance returns what remains unpaid on the row.
func (i Installment) Balance() float64 {
	return i.Amount - i.PaidAmount
}

// OverdueView is an installment past due with customer context.
type OverdueView struct {
	Installment Installment `json:"installment"`
	Sale        Sale        `json:"sale"`
	DaysLate    int         `json:"days_late"`
}
