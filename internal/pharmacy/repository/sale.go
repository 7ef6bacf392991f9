package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
)

// SaleTransaction is one append-only record of a billed unit sale. The sale
// ledger is the source of truth for revenue and quantity-sold queries; the
// medication counters are a cache rebuilt from it when they drift.
type SaleTransaction struct {
	ID               string    `db:"id" json:"id"`
	MedicationID     string    `db:"medication_id" json:"medication_id"`
	Quantity         int       `db:"quantity" json:"quantity"`
	UnitPriceCents   int       `db:"unit_price_cents" json:"unit_price_cents"`
	TotalAmountCents int       `db:"total_amount_cents" json:"total_amount_cents"`
	Counterparty     string    `db:"counterparty" json:"counterparty"`
	PerformedBy      string    `db:"performed_by" json:"performed_by"`
	Reference        *string   `db:"reference" json:"reference,omitempty"`
	IdempotencyKey   *string   `db:"idempotency_key" json:"-"`
	BatchNumber      *string   `db:"batch_number" json:"batch_number,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// SaleRepository handles the append-only sale ledger
type SaleRepository struct {
	db *database.DB
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *database.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// Insert appends a sale record. Sales are never mutated or deleted.
func (r *SaleRepository) Insert(ctx context.Context, sale *SaleTransaction) error {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sale_transactions (
			id, medication_id, quantity, unit_price_cents, total_amount_cents,
			counterparty, performed_by, reference, idempotency_key, batch_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		sale.ID, sale.MedicationID, sale.Quantity, sale.UnitPriceCents,
		sale.TotalAmountCents, sale.Counterparty, sale.PerformedBy,
		sale.Reference, sale.IdempotencyKey, sale.BatchNumber,
	).Scan(&sale.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByIdempotencyKey returns the sale previously recorded under the key,
// or NotFound. Point-of-sale retries use this to avoid double-counting.
func (r *SaleRepository) GetByIdempotencyKey(ctx context.Context, key string) (*SaleTransaction, error) {
	var sale SaleTransaction
	query := `SELECT * FROM sale_transactions WHERE idempotency_key = $1`
	if err := r.db.GetContext(ctx, &sale, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("sale")
		}
		return nil, err
	}
	return &sale, nil
}

// ListByMedication lists sales for a medication, newest first.
func (r *SaleRepository) ListByMedication(ctx context.Context, medicationID string, limit int) ([]*SaleTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var sales []*SaleTransaction
	query := `
		SELECT * FROM sale_transactions
		WHERE medication_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &sales, query, medicationID, limit); err != nil {
		return nil, err
	}
	return sales, nil
}

// SumQuantities sums every sold unit for a medication. Part of the
// conservation check.
func (r *SaleRepository) SumQuantities(ctx context.Context, medicationID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(quantity) FROM sale_transactions WHERE medication_id = $1`
	if err := r.db.GetContext(ctx, &total, query, medicationID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// RevenueCentsBetween sums revenue over a time window.
func (r *SaleRepository) RevenueCentsBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var total sql.NullInt64
	query := `
		SELECT SUM(total_amount_cents) FROM sale_transactions
		WHERE created_at >= $1 AND created_at < $2
	`
	if err := r.db.GetContext(ctx, &total, query, from, to); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}
