package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
)

// Batch is one received lot of a medication sharing an expiry date and
// purchase cost. CurrentQuantity shrinks as allocation and sale consume
// units; a batch is retired (never deleted) once empty and expired.
type Batch struct {
	ID                 string     `db:"id" json:"id"`
	MedicationID       string     `db:"medication_id" json:"medication_id"`
	BatchNumber        string     `db:"batch_number" json:"batch_number"`
	ExpiryDate         *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	ManufacturingDate  *time.Time `db:"manufacturing_date" json:"manufacturing_date,omitempty"`
	ReceivedQuantity   int        `db:"received_quantity" json:"received_quantity"`
	CurrentQuantity    int        `db:"current_quantity" json:"current_quantity"`
	PurchasePriceCents int        `db:"purchase_price_cents" json:"purchase_price_cents"`
	SellingPriceCents  int        `db:"selling_price_cents" json:"selling_price_cents"`
	Supplier           *string    `db:"supplier" json:"supplier,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// BatchMonthlyStats aggregates per-batch activity for one calendar month.
type BatchMonthlyStats struct {
	BatchNumber    string `db:"batch_number" json:"batch_number"`
	UnitsSold      int    `db:"units_sold" json:"units_sold"`
	UnitsPurchased int    `db:"units_purchased" json:"units_purchased"`
	UnitsRemaining int    `db:"units_remaining" json:"units_remaining"`
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medication_batches (
			id, medication_id, batch_number, expiry_date, manufacturing_date,
			received_quantity, current_quantity, purchase_price_cents,
			selling_price_cents, supplier
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		batch.ID, batch.MedicationID, batch.BatchNumber, batch.ExpiryDate,
		batch.ManufacturingDate, batch.ReceivedQuantity, batch.CurrentQuantity,
		batch.PurchasePriceCents, batch.SellingPriceCents, batch.Supplier,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM medication_batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetByNumber gets a batch by medication and batch number.
func (r *BatchRepository) GetByNumber(ctx context.Context, medicationID, batchNumber string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM medication_batches WHERE medication_id = $1 AND batch_number = $2`
	if err := r.db.GetContext(ctx, &batch, query, medicationID, batchNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetByNumberForUpdate locks the batch row for the current transaction.
func (r *BatchRepository) GetByNumberForUpdate(ctx context.Context, medicationID, batchNumber string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM medication_batches WHERE medication_id = $1 AND batch_number = $2 FOR UPDATE`
	if err := r.db.GetContext(ctx, &batch, query, medicationID, batchNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListByMedication lists batches for a medication, earliest expiry first.
func (r *BatchRepository) ListByMedication(ctx context.Context, medicationID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM medication_batches
		WHERE medication_id = $1
		ORDER BY expiry_date NULLS LAST, batch_number
	`
	if err := r.db.SelectContext(ctx, &batches, query, medicationID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListConsumableForUpdate locks and returns the batches with remaining
// units in earliest-expiry order. Sales consume from this list (FEFO).
func (r *BatchRepository) ListConsumableForUpdate(ctx context.Context, medicationID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM medication_batches
		WHERE medication_id = $1 AND current_quantity > 0
		ORDER BY expiry_date NULLS LAST, batch_number
		FOR UPDATE
	`
	if err := r.db.SelectContext(ctx, &batches, query, medicationID); err != nil {
		return nil, err
	}
	return batches, nil
}

// AddReceipt increments both the received and current quantity for a batch
// receipt, optionally refreshing prices.
func (r *BatchRepository) AddReceipt(ctx context.Context, id string, quantity, purchasePriceCents, sellingPriceCents int) error {
	query := `
		UPDATE medication_batches
		SET received_quantity = received_quantity + $2,
		    current_quantity = current_quantity + $2,
		    purchase_price_cents = CASE WHEN $3 > 0 THEN $3 ELSE purchase_price_cents END,
		    selling_price_cents = CASE WHEN $4 > 0 THEN $4 ELSE selling_price_cents END,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, quantity, purchasePriceCents, sellingPriceCents)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// SetCurrentQuantity persists a batch's remaining quantity after consumption
// or a returned allocation. Callers hold the row lock.
func (r *BatchRepository) SetCurrentQuantity(ctx context.Context, id string, quantity int) error {
	query := `UPDATE medication_batches SET current_quantity = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, quantity)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// GetExpiringBatches gets batches with stock expiring within the given days.
func (r *BatchRepository) GetExpiringBatches(ctx context.Context, withinDays int) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM medication_batches
		WHERE current_quantity > 0
		AND expiry_date IS NOT NULL
		AND expiry_date <= NOW() + INTERVAL '1 day' * $1
		AND expiry_date >= NOW()
		ORDER BY expiry_date
	`
	if err := r.db.SelectContext(ctx, &batches, query, withinDays); err != nil {
		return nil, err
	}
	return batches, nil
}

// GetExpiredBatches gets batches that still hold stock past expiry.
func (r *BatchRepository) GetExpiredBatches(ctx context.Context) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM medication_batches
		WHERE current_quantity > 0
		AND expiry_date IS NOT NULL
		AND expiry_date < NOW()
		ORDER BY expiry_date
	`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

// MonthlyStats aggregates sold/purchased/remaining units per batch of a
// medication for the month containing the given time. Sales are attributed
// to batches by the FEFO policy recorded on each sale row.
func (r *BatchRepository) MonthlyStats(ctx context.Context, medicationID string, month time.Time) ([]*BatchMonthlyStats, error) {
	var stats []*BatchMonthlyStats
	query := `
		SELECT b.batch_number,
		       COALESCE(s.units_sold, 0) AS units_sold,
		       CASE WHEN date_trunc('month', b.created_at) = date_trunc('month', $2::timestamptz)
		            THEN b.received_quantity ELSE 0 END AS units_purchased,
		       b.current_quantity AS units_remaining
		FROM medication_batches b
		LEFT JOIN (
			SELECT batch_number, SUM(quantity) AS units_sold
			FROM sale_transactions
			WHERE medication_id = $1
			  AND date_trunc('month', created_at) = date_trunc('month', $2::timestamptz)
			  AND batch_number IS NOT NULL
			GROUP BY batch_number
		) s ON s.batch_number = b.batch_number
		WHERE b.medication_id = $1
		ORDER BY b.expiry_date NULLS LAST, b.batch_number
	`
	if err := r.db.SelectContext(ctx, &stats, query, medicationID, month); err != nil {
		return nil, err
	}
	return stats, nil
}
