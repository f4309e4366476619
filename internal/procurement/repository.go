package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-dms/meridian-dms/internal/platform/db"
)

// TxRepository groups writes that must land atomically.
type TxRepository interface {
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line POLine) error
	UpdatePOStatus(ctx context.Context, poID int64, from, to POStatus, receivedAt time.Time) (bool, error)
	InsertPayment(ctx context.Context, payment SupplierPayment) (int64, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error)
	ListPOsByStatus(ctx context.Context, status POStatus) ([]PurchaseOrder, error)
	PaymentsTotal(ctx context.Context, poID int64) (float64, error)
	ListPayments(ctx context.Context, poID int64) ([]SupplierPayment, error)
	SupplierTermsDays(ctx context.Context, supplierID int64) (int, error)
}

// Repository is the pgx implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const poColumns = `id, number, supplier_id, branch_id, status, order_date, expected_date,
	COALESCE(received_at, 'epoch'::timestamptz), COALESCE(note, ''), created_by, created_at, updated_at`

func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	var po PurchaseOrder
	var status string
	err := r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id).
		Scan(&po.ID, &po.Number, &po.SupplierID, &po.BranchID, &status, &po.OrderDate, &po.ExpectedDate,
			&po.ReceivedAt, &po.Note, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, ErrNotFound
		}
		return PurchaseOrder{}, nil, err
	}
	po.Status = POStatus(status)

	rows, err := r.pool.Query(ctx, `
		SELECT id, po_id, item_id, qty, unit_cost, srp, COALESCE(color, '')
		FROM purchase_order_lines WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	var lines []POLine
	for rows.Next() {
		var l POLine
		if err := rows.Scan(&l.ID, &l.POID, &l.ItemID, &l.Qty, &l.UnitCost, &l.SRP, &l.Color); err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, l)
	}
	return po, lines, rows.Err()
}

func (r *Repository) ListPOsByStatus(ctx context.Context, status POStatus) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pos []PurchaseOrder
	for rows.Next() {
		var po PurchaseOrder
		var st string
		if err := rows.Scan(&po.ID, &po.Number, &po.SupplierID, &po.BranchID, &st, &po.OrderDate, &po.ExpectedDate,
			&po.ReceivedAt, &po.Note, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt); err != nil {
			return nil, err
		}
		po.Status = POStatus(st)
		pos = append(pos, po)
	}
	return pos, rows.Err()
}

func (r *Repository) PaymentsTotal(ctx context.Context, poID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM supplier_payments WHERE po_id = $1`, poID).Scan(&total)
	return total, err
}

func (r *Repository) ListPayments(ctx context.Context, poID int64) ([]SupplierPayment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, po_id, number, amount, paid_at FROM supplier_payments WHERE po_id = $1 ORDER BY paid_at`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []SupplierPayment
	for rows.Next() {
		var p SupplierPayment
		if err := rows.Scan(&p.ID, &p.POID, &p.Number, &p.Amount, &p.PaidAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *Repository) SupplierTermsDays(ctx context.Context, supplierID int64) (int, error) {
	var days int
	err := r.pool.QueryRow(ctx, `SELECT terms_days FROM suppliers WHERE id = $1`, supplierID).Scan(&days)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return days, err
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (number, supplier_id, branch_id, status, order_date, expected_date, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING id`,
		po.Number, po.SupplierID, po.BranchID, string(po.Status), po.OrderDate, po.ExpectedDate, po.Note, po.CreatedBy).
		Scan(&id)
	return id, err
}

func (t *txRepository) InsertPOLine(ctx context.Context, line POLine) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO purchase_order_lines (po_id, item_id, qty, unit_cost, srp, color)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`,
		line.POID, line.ItemID, line.Qty, line.UnitCost, line.SRP, line.Color)
	return err
}

func (t *txRepository) UpdatePOStatus(ctx context.Context, poID int64, from, to POStatus, receivedAt time.Time) (bool, error) {
	var received any
	if !receivedAt.IsZero() {
		received = receivedAt
	}
	res, err := t.tx.Exec(ctx, `
		UPDATE purchase_orders
		SET status = $1, received_at = COALESCE($2, received_at), updated_at = now()
		WHERE id = $3 AND status = $4`,
		string(to), received, poID, string(from))
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (t *txRepository) InsertPayment(ctx context.Context, payment SupplierPayment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO supplier_payments (po_id, number, amount, paid_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		payment.POID, payment.Number, payment.Amount, payment.PaidAt).Scan(&id)
	return id, err
}

var _ RepositoryPort = (*Repository)(nil)
