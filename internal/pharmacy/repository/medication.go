package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
)

// Medication statuses
const (
	MedicationStatusActive   = "active"
	MedicationStatusInactive = "inactive"
)

// Medication is the master stock record for one drug from one manufacturer.
// AvailableStock counts units not yet allocated to any department or sold.
// TotalStock counts every unit ever received; only receipts grow it.
type Medication struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Manufacturer   string    `db:"manufacturer" json:"manufacturer"`
	Category       string    `db:"category" json:"category"`
	Unit           string    `db:"unit" json:"unit"`
	AvailableStock int       `db:"available_stock" json:"available_stock"`
	TotalStock     int       `db:"total_stock" json:"total_stock"`
	MRPCents       int       `db:"mrp_cents" json:"mrp_cents"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// MedicationRepository handles medication persistence
type MedicationRepository struct {
	db *database.DB
}

// NewMedicationRepository creates a new medication repository
func NewMedicationRepository(db *database.DB) *MedicationRepository {
	return &MedicationRepository{db: db}
}

// Create creates a new medication
func (r *MedicationRepository) Create(ctx context.Context, med *Medication) error {
	if med.ID == "" {
		med.ID = uuid.New().String()
	}
	if med.Status == "" {
		med.Status = MedicationStatusActive
	}

	query := `
		INSERT INTO medications (
			id, name, manufacturer, category, unit,
			available_stock, total_stock, mrp_cents, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		med.ID, med.Name, med.Manufacturer, med.Category, med.Unit,
		med.AvailableStock, med.TotalStock, med.MRPCents, med.Status,
	).Scan(&med.CreatedAt, &med.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a medication by ID
func (r *MedicationRepository) GetByID(ctx context.Context, id string) (*Medication, error) {
	var med Medication
	query := `SELECT * FROM medications WHERE id = $1`
	if err := r.db.GetContext(ctx, &med, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medication")
		}
		return nil, err
	}
	return &med, nil
}

// GetByIDForUpdate locks the medication row for the duration of the current
// transaction. Every read-then-write of the stock counters goes through this
// so concurrent allocations cannot both pass a stale availability check.
func (r *MedicationRepository) GetByIDForUpdate(ctx context.Context, id string) (*Medication, error) {
	var med Medication
	query := `SELECT * FROM medications WHERE id = $1 FOR UPDATE`
	if err := r.db.GetContext(ctx, &med, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medication")
		}
		return nil, err
	}
	return &med, nil
}

// FindActiveByNameManufacturer looks up an active medication by trimmed,
// case-insensitive (name, manufacturer). Returns NotFound when no match.
func (r *MedicationRepository) FindActiveByNameManufacturer(ctx context.Context, name, manufacturer string) (*Medication, error) {
	var med Medication
	query := `
		SELECT * FROM medications
		WHERE lower(name) = lower(trim($1))
		  AND lower(manufacturer) = lower(trim($2))
		  AND status = 'active'
	`
	if err := r.db.GetContext(ctx, &med, query, name, manufacturer); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medication")
		}
		return nil, err
	}
	return &med, nil
}

// List lists medications with pagination, optionally filtered by category.
func (r *MedicationRepository) List(ctx context.Context, page, perPage int, category string) ([]*Medication, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	var total int64
	countQuery := `SELECT COUNT(*) FROM medications WHERE status = 'active' AND ($1 = '' OR category = $1)`
	if err := r.db.GetContext(ctx, &total, countQuery, category); err != nil {
		return nil, 0, err
	}

	var meds []*Medication
	query := `
		SELECT * FROM medications
		WHERE status = 'active' AND ($1 = '' OR category = $1)
		ORDER BY name
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &meds, query, category, perPage, offset); err != nil {
		return nil, 0, err
	}
	return meds, total, nil
}

// UpdateCounters persists the stock counters and retail price after a
// ledger operation. Callers hold the row lock from GetByIDForUpdate.
func (r *MedicationRepository) UpdateCounters(ctx context.Context, med *Medication) error {
	query := `
		UPDATE medications
		SET available_stock = $2, total_stock = $3, mrp_cents = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, med.ID, med.AvailableStock, med.TotalStock, med.MRPCents)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medication")
	}
	return nil
}

// SetAvailableStock overwrites the cached available counter. Used only by
// the reconciliation routine.
func (r *MedicationRepository) SetAvailableStock(ctx context.Context, id string, available int) error {
	query := `UPDATE medications SET available_stock = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, available)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medication")
	}
	return nil
}

// Deactivate marks a medication inactive. Medications are never hard-deleted.
func (r *MedicationRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE medications SET status = 'inactive', updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medication")
	}
	return nil
}

// TotalInventoryValueCents sums available stock at retail price across
// active medications.
func (r *MedicationRepository) TotalInventoryValueCents(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	query := `SELECT SUM(available_stock::bigint * mrp_cents) FROM medications WHERE status = 'active'`
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

// GetAllActive gets all active medications
func (r *MedicationRepository) GetAllActive(ctx context.Context) ([]*Medication, error) {
	var meds []*Medication
	query := `SELECT * FROM medications WHERE status = 'active' ORDER BY name`
	if err := r.db.SelectContext(ctx, &meds, query); err != nil {
		return nil, err
	}
	return meds, nil
}
