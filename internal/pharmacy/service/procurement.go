package service

import (
	"context"
	"strings"
	"time"

	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// ProcurementService consolidates incoming purchases into the medication
// master and the batch registry. A purchase for a medication already on the
// shelf restocks it; a purchase for an unknown (name, manufacturer) pair
// creates it.
type ProcurementService struct {
	db             *database.DB
	medicationRepo *repository.MedicationRepository
	batchRepo      *repository.BatchRepository
	publisher      *events.PharmacyEventPublisher
	logger         *logger.Logger
}

// NewProcurementService creates a new procurement service
func NewProcurementService(
	db *database.DB,
	medicationRepo *repository.MedicationRepository,
	batchRepo *repository.BatchRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *ProcurementService {
	return &ProcurementService{
		db:             db,
		medicationRepo: medicationRepo,
		batchRepo:      batchRepo,
		publisher:      publisher,
		logger:         log,
	}
}

// PurchaseInput carries one incoming purchase line.
type PurchaseInput struct {
	Name               string
	Manufacturer       string
	Category           string
	Unit               string
	Quantity           int
	MRPCents           int
	BatchNumber        string
	ExpiryDate         *time.Time
	PurchasePriceCents int
	SellingPriceCents  int
	Supplier           string
}

// PurchaseResult reports what a purchase did to the master records.
type PurchaseResult struct {
	Medication        *repository.Medication `json:"medication"`
	Batch             *repository.Batch      `json:"batch"`
	CreatedMedication bool                   `json:"created_medication"`
	CreatedBatch      bool                   `json:"created_batch"`
}

func validatePurchase(input *PurchaseInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Manufacturer = strings.TrimSpace(input.Manufacturer)
	input.BatchNumber = strings.TrimSpace(input.BatchNumber)

	details := make(map[string]string)
	if len(input.Name) < 2 {
		details["name"] = "must be at least 2 characters"
	}
	if len(input.Manufacturer) < 2 {
		details["manufacturer"] = "must be at least 2 characters"
	}
	// The batch number is optional; the registry row is only kept when the
	// supplier paperwork names one.
	if input.BatchNumber != "" && len(input.BatchNumber) < 2 {
		details["batch_number"] = "must be at least 2 characters"
	}
	if input.Quantity <= 0 {
		details["quantity"] = "must be greater than 0"
	}
	if input.MRPCents <= 0 {
		details["mrp"] = "must be greater than 0"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// BuyMedicine consolidates one purchase. Existing active medication:
// counters are incremented and the retail price refreshed. Unknown
// medication: a new master row is created. When a batch number is supplied
// the registry is kept in step too, topping up an existing batch of the
// same number or registering a new one.
func (s *ProcurementService) BuyMedicine(ctx context.Context, input PurchaseInput) (*PurchaseResult, error) {
	if err := validatePurchase(&input); err != nil {
		return nil, err
	}

	result := &PurchaseResult{}
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		med, err := s.medicationRepo.FindActiveByNameManufacturer(ctx, input.Name, input.Manufacturer)
		switch {
		case err == nil:
			med, err = s.medicationRepo.GetByIDForUpdate(ctx, med.ID)
			if err != nil {
				return err
			}
			med.AvailableStock += input.Quantity
			med.TotalStock += input.Quantity
			med.MRPCents = input.MRPCents
			if err := s.medicationRepo.UpdateCounters(ctx, med); err != nil {
				return err
			}
		case errors.Is(err, errors.ErrNotFound):
			med = &repository.Medication{
				Name:           input.Name,
				Manufacturer:   input.Manufacturer,
				Category:       input.Category,
				Unit:           input.Unit,
				AvailableStock: input.Quantity,
				TotalStock:     input.Quantity,
				MRPCents:       input.MRPCents,
			}
			if err := s.medicationRepo.Create(ctx, med); err != nil {
				return err
			}
			result.CreatedMedication = true
		default:
			return err
		}
		result.Medication = med

		if input.BatchNumber == "" {
			return nil
		}

		batch, err := s.batchRepo.GetByNumberForUpdate(ctx, med.ID, input.BatchNumber)
		switch {
		case err == nil:
			if err := s.batchRepo.AddReceipt(ctx, batch.ID, input.Quantity, input.PurchasePriceCents, input.SellingPriceCents); err != nil {
				return err
			}
			batch.ReceivedQuantity += input.Quantity
			batch.CurrentQuantity += input.Quantity
			if input.PurchasePriceCents > 0 {
				batch.PurchasePriceCents = input.PurchasePriceCents
			}
			if input.SellingPriceCents > 0 {
				batch.SellingPriceCents = input.SellingPriceCents
			}
		case errors.Is(err, errors.ErrNotFound):
			batch = &repository.Batch{
				MedicationID:       med.ID,
				BatchNumber:        input.BatchNumber,
				ExpiryDate:         input.ExpiryDate,
				ReceivedQuantity:   input.Quantity,
				CurrentQuantity:    input.Quantity,
				PurchasePriceCents: input.PurchasePriceCents,
				SellingPriceCents:  input.SellingPriceCents,
			}
			if input.Supplier != "" {
				batch.Supplier = &input.Supplier
			}
			if err := s.batchRepo.Create(ctx, batch); err != nil {
				return err
			}
			result.CreatedBatch = true
		default:
			return err
		}
		result.Batch = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.CreatedMedication {
		s.publisher.PublishMedicationCreated(ctx, result.Medication)
	} else {
		s.publisher.PublishStockRestocked(ctx, result.Medication, input.Quantity)
	}
	return result, nil
}

// BatchRowResult reports the outcome of one row in a bulk batch import.
type BatchRowResult struct {
	Row   int               `json:"row"`
	Batch *repository.Batch `json:"batch,omitempty"`
	Error string            `json:"error,omitempty"`
}

// ImportBatchRows registers a list of batches against an existing
// medication, one transaction per row so a bad line does not sink the rest.
// Duplicate batch numbers are reported per row, not merged.
func (s *ProcurementService) ImportBatchRows(ctx context.Context, medicationID string, rows []PurchaseInput) ([]BatchRowResult, error) {
	med, err := s.medicationRepo.GetByID(ctx, medicationID)
	if err != nil {
		return nil, err
	}

	results := make([]BatchRowResult, 0, len(rows))
	for i, row := range rows {
		res := BatchRowResult{Row: i + 1}

		row.Name = med.Name
		row.Manufacturer = med.Manufacturer
		if strings.TrimSpace(row.BatchNumber) == "" {
			res.Error = "batch_number is required"
			results = append(results, res)
			continue
		}
		if err := validatePurchase(&row); err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		err := s.db.WithTx(ctx, func(ctx context.Context) error {
			if _, err := s.batchRepo.GetByNumber(ctx, medicationID, row.BatchNumber); err == nil {
				return errors.DuplicateBatch(row.BatchNumber)
			} else if !errors.Is(err, errors.ErrNotFound) {
				return err
			}

			batch := &repository.Batch{
				MedicationID:       medicationID,
				BatchNumber:        row.BatchNumber,
				ExpiryDate:         row.ExpiryDate,
				ReceivedQuantity:   row.Quantity,
				CurrentQuantity:    row.Quantity,
				PurchasePriceCents: row.PurchasePriceCents,
				SellingPriceCents:  row.SellingPriceCents,
			}
			if row.Supplier != "" {
				batch.Supplier = &row.Supplier
			}
			if err := s.batchRepo.Create(ctx, batch); err != nil {
				return err
			}
			res.Batch = batch

			locked, err := s.medicationRepo.GetByIDForUpdate(ctx, medicationID)
			if err != nil {
				return err
			}
			locked.AvailableStock += row.Quantity
			locked.TotalStock += row.Quantity
			return s.medicationRepo.UpdateCounters(ctx, locked)
		})
		if err != nil {
			res.Batch = nil
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	return results, nil
}
