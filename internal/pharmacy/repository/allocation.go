package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
)

// DepartmentAllocation (an "intent") is a quantity of one medication batch
// earmarked for one clinical department. When the quantity reaches zero the
// row keeps its id but is reclassified to the reclaim pool; it is never
// reused for new stock.
type DepartmentAllocation struct {
	ID             string     `db:"id" json:"id"`
	MedicationID   string     `db:"medication_id" json:"medication_id"`
	BatchNumber    string     `db:"batch_number" json:"batch_number"`
	Department     Department `db:"department" json:"department"`
	Quantity       int        `db:"quantity" json:"quantity"`
	UnitPriceCents int        `db:"unit_price_cents" json:"unit_price_cents"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// AllocationFilter narrows department inventory listings.
type AllocationFilter struct {
	MedicationID string
	Department   Department
	// MaxQuantity, when > 0, returns only allocations at or below the
	// threshold (low-stock view).
	MaxQuantity int
	// Since, when set, returns only allocations created after it.
	Since *time.Time
	// OrderBy is one of "recent", "value", "quantity". Defaults to recent.
	OrderBy string
}

// AllocationRepository handles department allocation persistence
type AllocationRepository struct {
	db *database.DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *database.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Create creates a new allocation row
func (r *AllocationRepository) Create(ctx context.Context, alloc *DepartmentAllocation) error {
	if alloc.ID == "" {
		alloc.ID = uuid.New().String()
	}

	query := `
		INSERT INTO department_allocations (
			id, medication_id, batch_number, department, quantity, unit_price_cents
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		alloc.ID, alloc.MedicationID, alloc.BatchNumber, alloc.Department,
		alloc.Quantity, alloc.UnitPriceCents,
	).Scan(&alloc.CreatedAt, &alloc.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets an allocation by ID
func (r *AllocationRepository) GetByID(ctx context.Context, id string) (*DepartmentAllocation, error) {
	var alloc DepartmentAllocation
	query := `SELECT * FROM department_allocations WHERE id = $1`
	if err := r.db.GetContext(ctx, &alloc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("allocation")
		}
		return nil, err
	}
	return &alloc, nil
}

// GetByIDForUpdate locks the allocation row for the current transaction.
func (r *AllocationRepository) GetByIDForUpdate(ctx context.Context, id string) (*DepartmentAllocation, error) {
	var alloc DepartmentAllocation
	query := `SELECT * FROM department_allocations WHERE id = $1 FOR UPDATE`
	if err := r.db.GetContext(ctx, &alloc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("allocation")
		}
		return nil, err
	}
	return &alloc, nil
}

// FindActiveForUpdate finds the active (quantity > 0, not reclaimed) row for
// a (medication, batch, department) triple and locks it. Returns NotFound
// when no such row exists, in which case the caller creates a fresh one.
// Zero rows are history and are never resurrected.
func (r *AllocationRepository) FindActiveForUpdate(ctx context.Context, medicationID, batchNumber string, department Department) (*DepartmentAllocation, error) {
	var alloc DepartmentAllocation
	query := `
		SELECT * FROM department_allocations
		WHERE medication_id = $1 AND batch_number = $2 AND department = $3 AND quantity > 0
		FOR UPDATE
	`
	if err := r.db.GetContext(ctx, &alloc, query, medicationID, batchNumber, department); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("allocation")
		}
		return nil, err
	}
	return &alloc, nil
}

// SetQuantity persists a new quantity for an allocation. Callers hold the
// row lock.
func (r *AllocationRepository) SetQuantity(ctx context.Context, id string, quantity int) error {
	query := `UPDATE department_allocations SET quantity = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, quantity)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("allocation")
	}
	return nil
}

// Reclassify moves a zero-quantity allocation into the reclaim pool. The
// row id is preserved so downstream displays still resolve it.
func (r *AllocationRepository) Reclassify(ctx context.Context, id string) error {
	query := `
		UPDATE department_allocations
		SET department = $2, updated_at = NOW()
		WHERE id = $1 AND quantity = 0
	`
	result, err := r.db.ExecContext(ctx, query, id, DepartmentReclaimPool)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.InvalidQuantity("only zero-quantity allocations can move to the reclaim pool")
	}
	return nil
}

// Delete removes an allocation row. Used by removeAllocation, which returns
// the quantity to available stock; moved and reclaimed rows stay as history.
func (r *AllocationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM department_allocations WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("allocation")
	}
	return nil
}

// List lists allocations according to the filter. Reclaimed rows are
// excluded from department views; they remain reachable by id.
func (r *AllocationRepository) List(ctx context.Context, filter AllocationFilter) ([]*DepartmentAllocation, error) {
	query := `
		SELECT * FROM department_allocations
		WHERE department != 'reclaim_pool'
		  AND ($1 = '' OR medication_id = $1)
		  AND ($2 = '' OR department = $2)
		  AND ($3 <= 0 OR quantity <= $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
	`
	switch filter.OrderBy {
	case "value":
		query += ` ORDER BY quantity * unit_price_cents DESC`
	case "quantity":
		query += ` ORDER BY quantity ASC`
	default:
		query += ` ORDER BY created_at DESC`
	}

	var allocs []*DepartmentAllocation
	err := r.db.SelectContext(ctx, &allocs, query,
		filter.MedicationID, string(filter.Department), filter.MaxQuantity, filter.Since)
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

// ListZeroQuantity returns allocations that have hit zero but have not yet
// been reclassified. Reclassification happens inline with the move that
// drains the row, so this list is normally empty; entries here indicate an
// interrupted move and feed alerting.
func (r *AllocationRepository) ListZeroQuantity(ctx context.Context) ([]*DepartmentAllocation, error) {
	var allocs []*DepartmentAllocation
	query := `
		SELECT * FROM department_allocations
		WHERE quantity = 0 AND department != 'reclaim_pool'
		ORDER BY updated_at
	`
	if err := r.db.SelectContext(ctx, &allocs, query); err != nil {
		return nil, err
	}
	return allocs, nil
}

// SumQuantities sums every allocation row (active and reclaimed) for a
// medication. Part of the conservation check.
func (r *AllocationRepository) SumQuantities(ctx context.Context, medicationID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(quantity) FROM department_allocations WHERE medication_id = $1`
	if err := r.db.GetContext(ctx, &total, query, medicationID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// DepartmentSummary aggregates allocation quantity and value per department.
type DepartmentSummary struct {
	Department Department `db:"department" json:"department"`
	Rows       int        `db:"rows" json:"rows"`
	Units      int        `db:"units" json:"units"`
	ValueCents int64      `db:"value_cents" json:"value_cents"`
}

// SummarizeByDepartment aggregates active allocations per department.
func (r *AllocationRepository) SummarizeByDepartment(ctx context.Context) ([]*DepartmentSummary, error) {
	var summaries []*DepartmentSummary
	query := `
		SELECT department,
		       COUNT(*) AS rows,
		       COALESCE(SUM(quantity), 0) AS units,
		       COALESCE(SUM(quantity::bigint * unit_price_cents), 0) AS value_cents
		FROM department_allocations
		WHERE department != 'reclaim_pool' AND quantity > 0
		GROUP BY department
		ORDER BY department
	`
	if err := r.db.SelectContext(ctx, &summaries, query); err != nil {
		return nil, err
	}
	return summaries, nil
}
