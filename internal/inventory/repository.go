package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists lots and units in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside a transaction.
// Status writes are compare-and-set; counter writes are atomic increments.
type TxRepository interface {
	GetUnit(ctx context.Context, id int64) (Unit, error)
	GetLot(ctx context.Context, id int64) (Lot, error)
	GetLotForUpdate(ctx context.Context, id int64) (Lot, error)
	// FindMatchingLotForUpdate returns the oldest lot at the branch with the
	// same item/colour/supplier, row-locked, or ErrLotNotFound.
	FindMatchingLotForUpdate(ctx context.Context, branchID, itemID, supplierID int64, color string) (Lot, error)
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	InsertUnit(ctx context.Context, unit Unit) (int64, error)
	NextUnitNumber(ctx context.Context, lotID int64) (int, error)
	// ActiveSerialExists reports whether any available/reserved/sold unit
	// already carries the chassis or engine number.
	ActiveSerialExists(ctx context.Context, chassisNo, engineNo string) (bool, error)
	// UpdateUnitStatus transitions the unit only when its current status still
	// equals from; reports whether a row was updated.
	UpdateUnitStatus(ctx context.Context, unitID int64, from, to UnitStatus, counterpartID int64, remarks string) (bool, error)
	// SetCounterpart records the forward lineage link on a transferred unit.
	SetCounterpart(ctx context.Context, unitID, counterpartID int64) error
	// AddLotCounters applies atomic deltas and recomputes the stored ending.
	AddLotCounters(ctx context.Context, lotID int64, beginning, purchased, transferred, sold int) error
	SetLotCounters(ctx context.Context, lotID int64, transferred, sold int) error
	CountUnitsByStatus(ctx context.Context, lotID int64) (StatusCounts, error)
}

// Reader exposes the read side used by queries and the provenance cursor.
type Reader interface {
	GetUnit(ctx context.Context, id int64) (Unit, error)
	GetLot(ctx context.Context, id int64) (Lot, error)
	GetBranchName(ctx context.Context, id int64) (string, error)
}

// RepositoryPort is the full persistence surface the service depends on.
type RepositoryPort interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListLotsByBranch(ctx context.Context, branchID int64) ([]Lot, error)
	ListTransferredUnits(ctx context.Context, filter TransferFilter) ([]TransferredUnitView, error)
	LineageUnits(ctx context.Context, unitID int64) ([]Unit, error)
	CountUnitsByStatus(ctx context.Context, lotID int64) (StatusCounts, error)
	ListDiscrepancies(ctx context.Context) ([]Discrepancy, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const unitColumns = `id, lot_id, unit_number, chassis_no, engine_no, status, original_lot_id, original_unit_id, counterpart_unit_id, remarks, created_at, updated_at`

const lotColumns = `id, branch_id, item_id, supplier_id, date_received, cost, srp, color, dr_number, si_number, remarks, beginning_qty, purchased_qty, transferred_qty, sold_qty, ending_qty, created_at, updated_at`

func scanUnit(row pgx.Row) (Unit, error) {
	var u Unit
	var originalLot, originalUnit, counterpart *int64
	err := row.Scan(&u.ID, &u.LotID, &u.UnitNumber, &u.ChassisNo, &u.EngineNo, &u.Status,
		&originalLot, &originalUnit, &counterpart, &u.Remarks, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, ErrUnitNotFound
		}
		return Unit{}, err
	}
	u.OriginalLotID = deref(originalLot)
	u.OriginalUnitID = deref(originalUnit)
	u.CounterpartUnitID = deref(counterpart)
	return u, nil
}

func scanLot(row pgx.Row) (Lot, error) {
	var l Lot
	var supplier *int64
	var received *time.Time
	err := row.Scan(&l.ID, &l.BranchID, &l.ItemID, &supplier, &received, &l.Cost, &l.SRP,
		&l.Color, &l.DRNumber, &l.SINumber, &l.Remarks,
		&l.BeginningQty, &l.PurchasedQty, &l.TransferredQty, &l.SoldQty, &l.EndingQty,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	l.SupplierID = deref(supplier)
	if received != nil {
		l.DateReceived = *received
	}
	return l, nil
}

func (r *Repository) GetUnit(ctx context.Context, id int64) (Unit, error) {
	return scanUnit(r.pool.QueryRow(ctx, `SELECT `+unitColumns+` FROM vehicle_units WHERE id=$1`, id))
}

func (r *Repository) GetLot(ctx context.Context, id int64) (Lot, error) {
	return scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM inventory_lots WHERE id=$1`, id))
}

func (r *Repository) GetBranchName(ctx context.Context, id int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM branches WHERE id=$1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return name, err
}

func (r *Repository) ListLotsByBranch(ctx context.Context, branchID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM inventory_lots WHERE branch_id=$1 ORDER BY date_received DESC NULLS FIRST, id DESC`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// ListTransferredUnits lists transferred rows plus every location in their
// lineage, resolved with a recursive walk over the link columns.
func (r *Repository) ListTransferredUnits(ctx context.Context, filter TransferFilter) ([]TransferredUnitView, error) {
	query := `SELECT u.id, u.lot_id, u.unit_number, u.chassis_no, u.engine_no, u.status,
		u.original_lot_id, u.original_unit_id, u.counterpart_unit_id, u.remarks, u.created_at, u.updated_at,
		l.branch_id, b.name, l.item_id, l.color
	FROM vehicle_units u
	JOIN inventory_lots l ON l.id = u.lot_id
	JOIN branches b ON b.id = l.branch_id
	WHERE u.status = 'TRANSFERRED'`
	args := []any{}
	n := 0
	if filter.BranchID != 0 {
		n++
		query += ` AND l.branch_id = $` + strconv.Itoa(n)
		args = append(args, filter.BranchID)
	}
	if !filter.From.IsZero() {
		n++
		query += ` AND u.updated_at >= $` + strconv.Itoa(n)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		n++
		query += ` AND u.updated_at <= $` + strconv.Itoa(n)
		args = append(args, filter.To)
	}
	if filter.Search != "" {
		n++
		query += ` AND (u.chassis_no ILIKE $` + strconv.Itoa(n) + ` OR u.engine_no ILIKE $` + strconv.Itoa(n) + `)`
		args = append(args, "%"+filter.Search+"%")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	n++
	query += ` ORDER BY u.updated_at DESC, u.id DESC LIMIT $` + strconv.Itoa(n)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []TransferredUnitView
	for rows.Next() {
		var v TransferredUnitView
		var originalLot, originalUnit, counterpart *int64
		if err := rows.Scan(&v.Unit.ID, &v.Unit.LotID, &v.Unit.UnitNumber, &v.Unit.ChassisNo, &v.Unit.EngineNo, &v.Unit.Status,
			&originalLot, &originalUnit, &counterpart, &v.Unit.Remarks, &v.Unit.CreatedAt, &v.Unit.UpdatedAt,
			&v.BranchID, &v.BranchName, &v.ItemID, &v.Color); err != nil {
			return nil, err
		}
		v.Unit.OriginalLotID = deref(originalLot)
		v.Unit.OriginalUnitID = deref(originalUnit)
		v.Unit.CounterpartUnitID = deref(counterpart)
		v.LotID = v.Unit.LotID
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range views {
		counterparts, err := r.lineageCounterparts(ctx, views[i].Unit.ID)
		if err != nil {
			return nil, err
		}
		views[i].Counterparts = counterparts
	}
	return views, nil
}

// LineageUnits returns every unit row connected to unitID through
// original/counterpart links, including the unit itself.
func (r *Repository) LineageUnits(ctx context.Context, unitID int64) ([]Unit, error) {
	rows, err := r.pool.Query(ctx, `WITH RECURSIVE lineage AS (
		SELECT `+unitColumns+` FROM vehicle_units WHERE id = $1
		UNION
		SELECT u.id, u.lot_id, u.unit_number, u.chassis_no, u.engine_no, u.status,
			u.original_lot_id, u.original_unit_id, u.counterpart_unit_id, u.remarks, u.created_at, u.updated_at
		FROM vehicle_units u
		JOIN lineage ln ON u.id = ln.original_unit_id
			OR u.id = ln.counterpart_unit_id
			OR u.original_unit_id = ln.id
			OR u.counterpart_unit_id = ln.id
	)
	SELECT `+unitColumns+` FROM lineage ORDER BY id`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *Repository) lineageCounterparts(ctx context.Context, unitID int64) ([]Counterpart, error) {
	units, err := r.LineageUnits(ctx, unitID)
	if err != nil {
		return nil, err
	}
	var counterparts []Counterpart
	for _, u := range units {
		if u.ID == unitID {
			continue
		}
		lot, err := r.GetLot(ctx, u.LotID)
		if err != nil {
			return nil, err
		}
		name, err := r.GetBranchName(ctx, lot.BranchID)
		if err != nil {
			return nil, err
		}
		counterparts = append(counterparts, Counterpart{
			UnitID:     u.ID,
			LotID:      u.LotID,
			BranchID:   lot.BranchID,
			BranchName: name,
			ChassisNo:  u.ChassisNo,
			EngineNo:   u.EngineNo,
			Status:     u.Status,
		})
	}
	return counterparts, nil
}

func (r *Repository) CountUnitsByStatus(ctx context.Context, lotID int64) (StatusCounts, error) {
	return countUnitsByStatus(ctx, r.pool, lotID)
}

// ListDiscrepancies compares stored counters against unit counts per lot.
func (r *Repository) ListDiscrepancies(ctx context.Context) ([]Discrepancy, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.branch_id, l.ending_qty, l.sold_qty,
		COUNT(u.id) FILTER (WHERE u.status IN ('AVAILABLE','RESERVED')),
		COUNT(u.id) FILTER (WHERE u.status = 'SOLD'),
		COUNT(u.id)
	FROM inventory_lots l
	LEFT JOIN vehicle_units u ON u.lot_id = l.id
	GROUP BY l.id
	ORDER BY l.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.LotID, &d.BranchID, &d.StoredEnding, &d.StoredSold,
			&d.ComputedEnding, &d.ComputedSold, &d.UnitTotal); err != nil {
			return nil, err
		}
		if d.UnitTotal > 0 {
			d.HasDiscrepancy = d.StoredEnding != d.ComputedEnding || d.StoredSold != d.ComputedSold
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countUnitsByStatus(ctx context.Context, q queryer, lotID int64) (StatusCounts, error) {
	var c StatusCounts
	err := q.QueryRow(ctx, `SELECT
		COUNT(*) FILTER (WHERE status = 'AVAILABLE'),
		COUNT(*) FILTER (WHERE status = 'RESERVED'),
		COUNT(*) FILTER (WHERE status = 'SOLD'),
		COUNT(*)
	FROM vehicle_units WHERE lot_id = $1`, lotID).
		Scan(&c.Available, &c.Reserved, &c.Sold, &c.Total)
	return c, err
}

func (r *txRepository) GetUnit(ctx context.Context, id int64) (Unit, error) {
	return scanUnit(r.tx.QueryRow(ctx, `SELECT `+unitColumns+` FROM vehicle_units WHERE id=$1`, id))
}

func (r *txRepository) GetLot(ctx context.Context, id int64) (Lot, error) {
	return scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM inventory_lots WHERE id=$1`, id))
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, id int64) (Lot, error) {
	return scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM inventory_lots WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) FindMatchingLotForUpdate(ctx context.Context, branchID, itemID, supplierID int64, color string) (Lot, error) {
	return scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM inventory_lots
		WHERE branch_id=$1 AND item_id=$2 AND color=$3 AND COALESCE(supplier_id, 0)=$4
		ORDER BY id ASC LIMIT 1 FOR UPDATE`, branchID, itemID, color, supplierID))
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_lots
		(branch_id, item_id, supplier_id, date_received, cost, srp, color, dr_number, si_number, remarks,
		 beginning_qty, purchased_qty, transferred_qty, sold_qty, ending_qty, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW()) RETURNING id`,
		lot.BranchID, lot.ItemID, nullInt(lot.SupplierID), nullTime(lot.DateReceived),
		lot.Cost, lot.SRP, lot.Color, lot.DRNumber, lot.SINumber, lot.Remarks,
		lot.BeginningQty, lot.PurchasedQty, lot.TransferredQty, lot.SoldQty, lot.EndingQty).Scan(&id)
	return id, err
}

func (r *txRepository) InsertUnit(ctx context.Context, unit Unit) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO vehicle_units
		(lot_id, unit_number, chassis_no, engine_no, status, original_lot_id, original_unit_id, counterpart_unit_id, remarks, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		unit.LotID, unit.UnitNumber, unit.ChassisNo, unit.EngineNo, string(unit.Status),
		nullInt(unit.OriginalLotID), nullInt(unit.OriginalUnitID), nullInt(unit.CounterpartUnitID), unit.Remarks).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateSerial
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) NextUnitNumber(ctx context.Context, lotID int64) (int, error) {
	var next int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(unit_number), 0) + 1 FROM vehicle_units WHERE lot_id=$1`, lotID).Scan(&next)
	return next, err
}

func (r *txRepository) ActiveSerialExists(ctx context.Context, chassisNo, engineNo string) (bool, error) {
	if chassisNo == "" && engineNo == "" {
		return false, nil
	}
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM vehicle_units
		WHERE status IN ('AVAILABLE','RESERVED','SOLD')
		AND (($1 <> '' AND chassis_no = $1) OR ($2 <> '' AND engine_no = $2))
	)`, chassisNo, engineNo).Scan(&exists)
	return exists, err
}

func (r *txRepository) UpdateUnitStatus(ctx context.Context, unitID int64, from, to UnitStatus, counterpartID int64, remarks string) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE vehicle_units
		SET status=$1,
			counterpart_unit_id=COALESCE($2, counterpart_unit_id),
			remarks=CASE WHEN $3 <> '' THEN $3 ELSE remarks END,
			updated_at=NOW()
		WHERE id=$4 AND status=$5`,
		string(to), nullInt(counterpartID), remarks, unitID, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) SetCounterpart(ctx context.Context, unitID, counterpartID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE vehicle_units SET counterpart_unit_id=$1, updated_at=NOW() WHERE id=$2`, counterpartID, unitID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnitNotFound
	}
	return nil
}

func (r *txRepository) AddLotCounters(ctx context.Context, lotID int64, beginning, purchased, transferred, sold int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_lots
		SET beginning_qty = beginning_qty + $1,
			purchased_qty = purchased_qty + $2,
			transferred_qty = transferred_qty + $3,
			sold_qty = sold_qty + $4,
			ending_qty = (beginning_qty + $1) + (purchased_qty + $2) - (transferred_qty + $3) - (sold_qty + $4),
			updated_at = NOW()
		WHERE id = $5`, beginning, purchased, transferred, sold, lotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepository) SetLotCounters(ctx context.Context, lotID int64, transferred, sold int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_lots
		SET transferred_qty = $1,
			sold_qty = $2,
			ending_qty = beginning_qty + purchased_qty - $1 - $2,
			updated_at = NOW()
		WHERE id = $3`, transferred, sold, lotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepository) CountUnitsByStatus(ctx context.Context, lotID int64) (StatusCounts, error) {
	return countUnitsByStatus(ctx, r.tx, lotID)
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
