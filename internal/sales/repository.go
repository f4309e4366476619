package sales

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
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertInstallment(ctx context.Context, inst Installment) error
	UpdateInstallment(ctx context.Context, inst Installment) error
	SetSaleStatus(ctx context.Context, saleID int64, status SaleStatus) error
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSalesByBranch(ctx context.Context, branchID int64) ([]Sale, error)
	ListInstallments(ctx context.Context, saleID int64) ([]Installment, error)
	ListOverdueInstallments(ctx context.Context, asOf time.Time) ([]OverdueView, error)
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

const saleColumns = `id, number, branch_id, unit_id, lot_id, customer_name,
	COALESCE(customer_phone, ''), COALESCE(customer_address, ''),
	price, down_payment, term_months, status, sold_at, created_by, created_at, updated_at`

const saleColumnsAliased = `s.id, s.number, s.branch_id, s.unit_id, s.lot_id, s.customer_name,
	COALESCE(s.customer_phone, ''), COALESCE(s.customer_address, ''),
	s.price, s.down_payment, s.term_months, s.status, s.sold_at, s.created_by, s.created_at, s.updated_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var status string
	err := row.Scan(&s.ID, &s.Number, &s.BranchID, &s.UnitID, &s.LotID, &s.CustomerName,
		&s.CustomerPhone, &s.CustomerAddress,
		&s.Price, &s.DownPayment, &s.TermMonths, &status, &s.SoldAt, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, err
	}
	s.Status = SaleStatus(status)
	return s, nil
}

func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	return scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
}

func (r *Repository) ListSalesByBranch(ctx context.Context, branchID int64) ([]Sale, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE branch_id = $1 ORDER BY id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sales []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

func (r *Repository) ListInstallments(ctx context.Context, saleID int64) ([]Installment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, seq, due_date, amount, paid_amount, COALESCE(paid_at, 'epoch'::timestamptz), status
		FROM sale_installments WHERE sale_id = $1 ORDER BY seq`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var insts []Installment
	for rows.Next() {
		var i Installment
		var status string
		if err := rows.Scan(&i.ID, &i.SaleID, &i.Seq, &i.DueDate, &i.Amount, &i.PaidAmount, &i.PaidAt, &status); err != nil {
			return nil, err
		}
		i.Status = InstallmentStatus(status)
		insts = append(insts, i)
	}
	return insts, rows.Err()
}

func (r *Repository) ListOverdueInstallments(ctx context.Context, asOf time.Time) ([]OverdueView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.sale_id, i.seq, i.due_date, i.amount, i.paid_amount,
		       COALESCE(i.paid_at, 'epoch'::timestamptz), i.status, `+saleColumnsAliased+`
		FROM sale_installments i
		JOIN sales s ON s.id = i.sale_id
		WHERE i.status <> 'PAID' AND i.due_date < $1
		ORDER BY i.due_date`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var views []OverdueView
	for rows.Next() {
		var v OverdueView
		var istatus, sstatus string
		if err := rows.Scan(&v.Installment.ID, &v.Installment.SaleID, &v.Installment.Seq,
			&v.Installment.DueDate, &v.Installment.Amount, &v.Installment.PaidAmount,
			&v.Installment.PaidAt, &istatus,
			&v.Sale.ID, &v.Sale.Number, &v.Sale.BranchID, &v.Sale.UnitID, &v.Sale.LotID,
			&v.Sale.CustomerName, &v.Sale.CustomerPhone, &v.Sale.CustomerAddress,
			&v.Sale.Price, &v.Sale.DownPayment, &v.Sale.TermMonths, &sstatus,
			&v.Sale.SoldAt, &v.Sale.CreatedBy, &v.Sale.CreatedAt, &v.Sale.UpdatedAt); err != nil {
			return nil, err
		}
		v.Installment.Status = InstallmentStatus(istatus)
		v.Sale.Status = SaleStatus(sstatus)
		v.DaysLate = int(asOf.Sub(v.Installment.DueDate).Hours() / 24)
		views = append(views, v)
	}
	return views, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales (number, branch_id, unit_id, lot_id, customer_name, customer_phone, customer_address,
			price, down_payment, term_months, status, sold_at, created_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		sale.Number, sale.BranchID, sale.UnitID, sale.LotID, sale.CustomerName, sale.CustomerPhone, sale.CustomerAddress,
		sale.Price, sale.DownPayment, sale.TermMonths, string(sale.Status), sale.SoldAt, sale.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) InsertInstallment(ctx context.Context, inst Installment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sale_installments (sale_id, seq, due_date, amount, paid_amount, status)
		VALUES ($1, $2, $3, $4, 0, $5)`,
		inst.SaleID, inst.Seq, inst.DueDate, inst.Amount, string(inst.Status))
	return err
}

func (t *txRepository) UpdateInstallment(ctx context.Context, inst Installment) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE sale_installments SET paid_amount = $1, paid_at = NULLIF($2, 'epoch'::timestamptz), status = $3
		WHERE id = $4`,
		inst.PaidAmount, inst.PaidAt, string(inst.Status), inst.ID)
	return err
}

func (t *txRepository) SetSaleStatus(ctx context.Context, saleID int64, status SaleStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales SET status = $1, updated_at = now() WHERE id = $2`, string(status), saleID)
	return err
}

var _ RepositoryPort = (*Repository)(nil)
