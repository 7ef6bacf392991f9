package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
)

// Movement is one append-only audit record of units dispatched out of a
// department allocation. Movements are never mutated or deleted; together
// with sales they are the authoritative ledger the cached stock counters
// are reconciled against.
type Movement struct {
	ID              string     `db:"id" json:"id"`
	MedicationID    string     `db:"medication_id" json:"medication_id"`
	AllocationID    string     `db:"allocation_id" json:"allocation_id"`
	Quantity        int        `db:"quantity" json:"quantity"`
	FromDepartment  Department `db:"from_department" json:"from_department"`
	ToDepartment    Department `db:"to_department" json:"to_department"`
	BatchNumber     string     `db:"batch_number" json:"batch_number"`
	UnitPriceCents  int        `db:"unit_price_cents" json:"unit_price_cents"`
	Reason          string     `db:"reason" json:"reason"`
	PerformedBy     string     `db:"performed_by" json:"performed_by"`
	PerformedByName string     `db:"performed_by_name" json:"performed_by_name"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	MedicationID   string
	AllocationID   string
	FromDepartment Department
	From           *time.Time
	To             *time.Time
	Limit          int
}

// MovementRepository handles the append-only movement ledger
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Insert appends a movement record. There is deliberately no update or
// delete on this repository.
func (r *MovementRepository) Insert(ctx context.Context, mv *Movement) error {
	if mv.ID == "" {
		mv.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_movements (
			id, medication_id, allocation_id, quantity, from_department,
			to_department, batch_number, unit_price_cents, reason,
			performed_by, performed_by_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		mv.ID, mv.MedicationID, mv.AllocationID, mv.Quantity, mv.FromDepartment,
		mv.ToDepartment, mv.BatchNumber, mv.UnitPriceCents, mv.Reason,
		mv.PerformedBy, mv.PerformedByName,
	).Scan(&mv.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// List lists movements for the given filter, newest first.
func (r *MovementRepository) List(ctx context.Context, filter MovementFilter) ([]*Movement, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var movements []*Movement
	query := `
		SELECT * FROM stock_movements
		WHERE ($1 = '' OR medication_id = $1)
		  AND ($2 = '' OR allocation_id = $2)
		  AND ($3 = '' OR from_department = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		ORDER BY created_at DESC
		LIMIT $6
	`
	err := r.db.SelectContext(ctx, &movements, query,
		filter.MedicationID, filter.AllocationID, string(filter.FromDepartment), filter.From, filter.To, limit)
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// SumQuantities sums every moved unit for a medication. Part of the
// conservation check.
func (r *MovementRepository) SumQuantities(ctx context.Context, medicationID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(quantity) FROM stock_movements WHERE medication_id = $1`
	if err := r.db.GetContext(ctx, &total, query, medicationID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}
