package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// StockService owns the medication master counters and the department
// allocation operations against them. Every read-then-write runs inside one
// transaction holding the medication row lock, so concurrent sessions cannot
// jointly overdraw stock.
type StockService struct {
	db             *database.DB
	medicationRepo *repository.MedicationRepository
	batchRepo      *repository.BatchRepository
	allocationRepo *repository.AllocationRepository
	movementRepo   *repository.MovementRepository
	saleRepo       *repository.SaleRepository
	publisher      *events.PharmacyEventPublisher
	logger         *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	db *database.DB,
	medicationRepo *repository.MedicationRepository,
	batchRepo *repository.BatchRepository,
	allocationRepo *repository.AllocationRepository,
	movementRepo *repository.MovementRepository,
	saleRepo *repository.SaleRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *StockService {
	return &StockService{
		db:             db,
		medicationRepo: medicationRepo,
		batchRepo:      batchRepo,
		allocationRepo: allocationRepo,
		movementRepo:   movementRepo,
		saleRepo:       saleRepo,
		publisher:      publisher,
		logger:         log,
	}
}

// CreateMedicationInput carries the validated fields for a new medication.
type CreateMedicationInput struct {
	Name            string
	Manufacturer    string
	Category        string
	Unit            string
	MRPCents        int
	InitialQuantity int
}

// CreateMedication creates a new medication with available = total =
// initial quantity. An active medication with the same case-insensitive
// (name, manufacturer) pair is a duplicate; callers should restock instead.
func (s *StockService) CreateMedication(ctx context.Context, input CreateMedicationInput) (*repository.Medication, error) {
	name := strings.TrimSpace(input.Name)
	manufacturer := strings.TrimSpace(input.Manufacturer)

	details := make(map[string]string)
	if len(name) < 2 {
		details["name"] = "must be at least 2 characters"
	}
	if len(manufacturer) < 2 {
		details["manufacturer"] = "must be at least 2 characters"
	}
	if input.InitialQuantity <= 0 {
		details["quantity"] = "must be greater than 0"
	}
	if input.MRPCents <= 0 {
		details["mrp"] = "must be greater than 0"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	var med *repository.Medication
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		if existing, err := s.medicationRepo.FindActiveByNameManufacturer(ctx, name, manufacturer); err == nil && existing != nil {
			return errors.DuplicateMedication(name, manufacturer)
		} else if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}

		med = &repository.Medication{
			Name:           name,
			Manufacturer:   manufacturer,
			Category:       input.Category,
			Unit:           input.Unit,
			AvailableStock: input.InitialQuantity,
			TotalStock:     input.InitialQuantity,
			MRPCents:       input.MRPCents,
		}
		return s.medicationRepo.Create(ctx, med)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishMedicationCreated(ctx, med)
	return med, nil
}

// Restock increments both counters by additionalQuantity and optionally
// overwrites the retail price (newMRPCents <= 0 keeps the current price).
func (s *StockService) Restock(ctx context.Context, medicationID string, additionalQuantity, newMRPCents int) (*repository.Medication, error) {
	if additionalQuantity <= 0 {
		return nil, errors.InvalidQuantity("restock quantity must be greater than 0")
	}

	var med *repository.Medication
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		med, err = s.medicationRepo.GetByIDForUpdate(ctx, medicationID)
		if err != nil {
			return err
		}

		med.AvailableStock += additionalQuantity
		med.TotalStock += additionalQuantity
		if newMRPCents > 0 {
			med.MRPCents = newMRPCents
		}
		return s.medicationRepo.UpdateCounters(ctx, med)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishStockRestocked(ctx, med, additionalQuantity)
	return med, nil
}

// AllocateInput carries the fields for a department allocation.
type AllocateInput struct {
	MedicationID   string
	BatchNumber    string
	Department     repository.Department
	Quantity       int
	UnitPriceCents int
}

// AllocateToDepartment moves units from available stock into a department
// intent. All-or-nothing: the full quantity must be available centrally and
// in the named batch. An active row for the same (medication, batch,
// department) is topped up; reclaimed zero rows stay untouched and a fresh
// row is created instead.
func (s *StockService) AllocateToDepartment(ctx context.Context, input AllocateInput) (*repository.DepartmentAllocation, error) {
	if input.Quantity <= 0 {
		return nil, errors.InvalidQuantity("allocation quantity must be greater than 0")
	}
	if !input.Department.IsClinical() {
		return nil, errors.Validation(map[string]string{
			"department": fmt.Sprintf("unknown department %q", input.Department),
		})
	}

	var med *repository.Medication
	var alloc *repository.DepartmentAllocation
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		med, err = s.medicationRepo.GetByIDForUpdate(ctx, input.MedicationID)
		if err != nil {
			return err
		}

		if input.Quantity > med.AvailableStock {
			return errors.InsufficientStock(input.Quantity, med.AvailableStock)
		}

		// The registry is best effort here. Stock created or restocked
		// without a batch row still allocates; the named batch number is
		// carried on the allocation either way.
		batch, err := s.lockBatch(ctx, input.MedicationID, input.BatchNumber)
		if err != nil {
			return err
		}

		unitPrice := input.UnitPriceCents
		if unitPrice <= 0 {
			if batch != nil && batch.SellingPriceCents > 0 {
				unitPrice = batch.SellingPriceCents
			} else {
				unitPrice = med.MRPCents
			}
		}

		alloc, err = s.allocationRepo.FindActiveForUpdate(ctx, input.MedicationID, input.BatchNumber, input.Department)
		switch {
		case err == nil:
			alloc.Quantity += input.Quantity
			if err := s.allocationRepo.SetQuantity(ctx, alloc.ID, alloc.Quantity); err != nil {
				return err
			}
		case errors.Is(err, errors.ErrNotFound):
			alloc = &repository.DepartmentAllocation{
				MedicationID:   input.MedicationID,
				BatchNumber:    input.BatchNumber,
				Department:     input.Department,
				Quantity:       input.Quantity,
				UnitPriceCents: unitPrice,
			}
			if err := s.allocationRepo.Create(ctx, alloc); err != nil {
				return err
			}
		default:
			return err
		}

		if err := s.consumeFromBatch(ctx, batch, input.Quantity); err != nil {
			return err
		}

		med.AvailableStock -= input.Quantity
		return s.medicationRepo.UpdateCounters(ctx, med)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishStockAllocated(ctx, med, alloc)
	return alloc, nil
}

// lockBatch locks the named batch row when the registry has one. A missing
// row is not an error; the counters remain authoritative.
func (s *StockService) lockBatch(ctx context.Context, medicationID, batchNumber string) (*repository.Batch, error) {
	batch, err := s.batchRepo.GetByNumberForUpdate(ctx, medicationID, batchNumber)
	switch {
	case err == nil:
		return batch, nil
	case errors.Is(err, errors.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// consumeFromBatch drains up to quantity units from the registry row. A row
// holding fewer units drains to zero; the shortfall surfaces on the next
// reconciliation run, not here.
func (s *StockService) consumeFromBatch(ctx context.Context, batch *repository.Batch, quantity int) error {
	if batch == nil || quantity <= 0 {
		return nil
	}
	take := quantity
	if take > batch.CurrentQuantity {
		take = batch.CurrentQuantity
	}
	if take == 0 {
		return nil
	}
	return s.batchRepo.SetCurrentQuantity(ctx, batch.ID, batch.CurrentQuantity-take)
}

// returnToBatch puts units back into the registry row, capped at the
// received quantity so 0 <= current <= received holds.
func (s *StockService) returnToBatch(ctx context.Context, batch *repository.Batch, quantity int) error {
	if batch == nil || quantity <= 0 {
		return nil
	}
	restored := batch.CurrentQuantity + quantity
	if restored > batch.ReceivedQuantity {
		restored = batch.ReceivedQuantity
	}
	if restored == batch.CurrentQuantity {
		return nil
	}
	return s.batchRepo.SetCurrentQuantity(ctx, batch.ID, restored)
}

// AdjustAllocationQuantity corrects an allocation to newQuantity. Increases
// draw from available stock (and the batch); decreases return to it.
func (s *StockService) AdjustAllocationQuantity(ctx context.Context, allocationID string, newQuantity int) (*repository.DepartmentAllocation, error) {
	if newQuantity < 0 {
		return nil, errors.InvalidQuantity("allocation quantity must not be negative")
	}

	var alloc *repository.DepartmentAllocation
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		alloc, err = s.allocationRepo.GetByIDForUpdate(ctx, allocationID)
		if err != nil {
			return err
		}
		if alloc.Department.IsReclaimPool() {
			return errors.InvalidQuantity("reclaimed allocations are history and cannot be adjusted")
		}

		delta := newQuantity - alloc.Quantity
		if delta == 0 {
			return nil
		}

		med, err := s.medicationRepo.GetByIDForUpdate(ctx, alloc.MedicationID)
		if err != nil {
			return err
		}

		batch, err := s.lockBatch(ctx, alloc.MedicationID, alloc.BatchNumber)
		if err != nil {
			return err
		}

		if delta > 0 && delta > med.AvailableStock {
			return errors.InsufficientStock(delta, med.AvailableStock)
		}

		alloc.Quantity = newQuantity
		if err := s.allocationRepo.SetQuantity(ctx, alloc.ID, newQuantity); err != nil {
			return err
		}
		if delta > 0 {
			if err := s.consumeFromBatch(ctx, batch, delta); err != nil {
				return err
			}
		} else {
			if err := s.returnToBatch(ctx, batch, -delta); err != nil {
				return err
			}
		}

		med.AvailableStock -= delta
		return s.medicationRepo.UpdateCounters(ctx, med)
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// RemoveAllocation deletes the allocation and returns its full quantity to
// available stock. Total stock is unaffected; this is an internal transfer.
// Reclaimed rows are audit history and cannot be removed.
func (s *StockService) RemoveAllocation(ctx context.Context, allocationID string) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		alloc, err := s.allocationRepo.GetByIDForUpdate(ctx, allocationID)
		if err != nil {
			return err
		}
		if alloc.Department.IsReclaimPool() {
			return errors.InvalidQuantity("reclaimed allocations are history and cannot be removed")
		}

		med, err := s.medicationRepo.GetByIDForUpdate(ctx, alloc.MedicationID)
		if err != nil {
			return err
		}

		if err := s.allocationRepo.Delete(ctx, alloc.ID); err != nil {
			return err
		}

		if alloc.Quantity > 0 {
			batch, err := s.lockBatch(ctx, alloc.MedicationID, alloc.BatchNumber)
			if err != nil {
				return err
			}
			if err := s.returnToBatch(ctx, batch, alloc.Quantity); err != nil {
				return err
			}

			med.AvailableStock += alloc.Quantity
			if err := s.medicationRepo.UpdateCounters(ctx, med); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetMedication gets a medication with its batches.
func (s *StockService) GetMedication(ctx context.Context, id string) (*MedicationWithBatches, error) {
	med, err := s.medicationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	batches, err := s.batchRepo.ListByMedication(ctx, id)
	if err != nil {
		return nil, err
	}

	return &MedicationWithBatches{Medication: med, Batches: batches}, nil
}

// ListMedications lists medications with pagination.
func (s *StockService) ListMedications(ctx context.Context, page, perPage int, category string) ([]*repository.Medication, int64, error) {
	return s.medicationRepo.List(ctx, page, perPage, category)
}

// ListAllocations lists department allocations for the distribution views.
func (s *StockService) ListAllocations(ctx context.Context, filter repository.AllocationFilter) ([]*repository.DepartmentAllocation, error) {
	return s.allocationRepo.List(ctx, filter)
}

// ListZeroQuantityAllocations returns allocations at zero that have not been
// reclassified yet. Normally empty; entries indicate an interrupted move.
func (s *StockService) ListZeroQuantityAllocations(ctx context.Context) ([]*repository.DepartmentAllocation, error) {
	return s.allocationRepo.ListZeroQuantity(ctx)
}

// MedicationWithBatches pairs a medication with its batches.
type MedicationWithBatches struct {
	*repository.Medication
	Batches []*repository.Batch `json:"batches"`
}

// ReconciliationReport describes the outcome of a reconciliation run.
type ReconciliationReport struct {
	MedicationID   string `json:"medication_id"`
	TotalStock     int    `json:"total_stock"`
	AllocatedUnits int    `json:"allocated_units"`
	MovedUnits     int    `json:"moved_units"`
	SoldUnits      int    `json:"sold_units"`
	CachedStock    int    `json:"cached_available_stock"`
	DerivedStock   int    `json:"derived_available_stock"`
	Drift          int    `json:"drift"`
}

// RecomputeAvailableStock derives the available counter from the ledgers
// and overwrites the cached value. The ledgers are authoritative: total
// stock minus every unit sitting in an allocation row, moved out through
// the movement ledger, or sold through the sale ledger is what remains
// available. Used after detected drift or crash recovery.
func (s *StockService) RecomputeAvailableStock(ctx context.Context, medicationID string) (*ReconciliationReport, error) {
	var report *ReconciliationReport
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		med, err := s.medicationRepo.GetByIDForUpdate(ctx, medicationID)
		if err != nil {
			return err
		}

		allocated, err := s.allocationRepo.SumQuantities(ctx, medicationID)
		if err != nil {
			return err
		}
		moved, err := s.movementRepo.SumQuantities(ctx, medicationID)
		if err != nil {
			return err
		}
		sold, err := s.saleRepo.SumQuantities(ctx, medicationID)
		if err != nil {
			return err
		}

		derived := med.TotalStock - allocated - moved - sold
		report = &ReconciliationReport{
			MedicationID:   medicationID,
			TotalStock:     med.TotalStock,
			AllocatedUnits: allocated,
			MovedUnits:     moved,
			SoldUnits:      sold,
			CachedStock:    med.AvailableStock,
			DerivedStock:   derived,
			Drift:          med.AvailableStock - derived,
		}

		if derived < 0 {
			return errors.Consistency(fmt.Sprintf(
				"ledger-derived available stock for medication %s is %d; ledgers record more units than were ever received",
				medicationID, derived))
		}

		if report.Drift == 0 {
			return nil
		}

		s.logger.Warn().
			Str("medication_id", medicationID).
			Int("cached", med.AvailableStock).
			Int("derived", derived).
			Msg("available stock drifted from ledger; overwriting cached counter")

		return s.medicationRepo.SetAvailableStock(ctx, medicationID, derived)
	})
	if err != nil {
		return report, err
	}

	if report.Drift != 0 {
		s.publisher.PublishStockReconciled(ctx, medicationID, report.CachedStock, report.DerivedStock)
	}
	return report, nil
}
