package service

import (
	"context"
	"strings"

	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/pkg/actor"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// SalesService records retail sales against available stock. Each sale is
// one immutable ledger row; batch consumption drains the earliest-expiring
// batches first.
type SalesService struct {
	db             *database.DB
	medicationRepo *repository.MedicationRepository
	batchRepo      *repository.BatchRepository
	saleRepo       *repository.SaleRepository
	publisher      *events.PharmacyEventPublisher
	logger         *logger.Logger
}

// NewSalesService creates a new sales service
func NewSalesService(
	db *database.DB,
	medicationRepo *repository.MedicationRepository,
	batchRepo *repository.BatchRepository,
	saleRepo *repository.SaleRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *SalesService {
	return &SalesService{
		db:             db,
		medicationRepo: medicationRepo,
		batchRepo:      batchRepo,
		saleRepo:       saleRepo,
		publisher:      publisher,
		logger:         log,
	}
}

// RecordSaleInput carries the fields for a retail sale.
type RecordSaleInput struct {
	MedicationID   string
	Quantity       int
	UnitPriceCents int
	// TotalCents, when > 0, overrides quantity times unit price so a
	// discounted total can be recorded.
	TotalCents     int
	Counterparty   string
	Reference      string
	IdempotencyKey string
}

// RecordSale records a sale of quantity units, decrementing available stock
// and draining batches earliest expiry first. A repeated request carrying
// the same idempotency key returns the already-recorded sale without
// touching stock again.
func (s *SalesService) RecordSale(ctx context.Context, input RecordSaleInput) (*repository.SaleTransaction, error) {
	if input.Quantity <= 0 {
		return nil, errors.InvalidQuantity("sale quantity must be greater than 0")
	}
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)

	if input.IdempotencyKey != "" {
		if existing, err := s.saleRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey); err == nil {
			s.logger.Info().
				Str("sale_id", existing.ID).
				Str("idempotency_key", input.IdempotencyKey).
				Msg("replayed sale request, returning recorded transaction")
			return existing, nil
		} else if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
	}

	act := actor.FromContext(ctx)
	if act == nil {
		act = actor.SystemActor()
	}

	var sale *repository.SaleTransaction
	var availableAfter int
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		med, err := s.medicationRepo.GetByIDForUpdate(ctx, input.MedicationID)
		if err != nil {
			return err
		}
		if input.Quantity > med.AvailableStock {
			return errors.InsufficientStock(input.Quantity, med.AvailableStock)
		}

		unitPrice := input.UnitPriceCents
		if unitPrice <= 0 {
			unitPrice = med.MRPCents
		}

		// Drain batches earliest expiry first, spilling the remainder
		// into the next batch. The sale row is attributed to the first
		// batch touched. The counters are authoritative: stock received
		// without a batch row sells with no batch attribution, and a
		// registry short of units drains to zero rather than failing.
		batches, err := s.batchRepo.ListConsumableForUpdate(ctx, input.MedicationID)
		if err != nil {
			return err
		}

		var firstBatch *string
		remaining := input.Quantity
		for _, batch := range batches {
			if remaining == 0 {
				break
			}
			take := remaining
			if take > batch.CurrentQuantity {
				take = batch.CurrentQuantity
			}
			if err := s.batchRepo.SetCurrentQuantity(ctx, batch.ID, batch.CurrentQuantity-take); err != nil {
				return err
			}
			if firstBatch == nil {
				bn := batch.BatchNumber
				firstBatch = &bn
			}
			remaining -= take
		}

		total := unitPrice * input.Quantity
		if input.TotalCents > 0 {
			total = input.TotalCents
		}

		sale = &repository.SaleTransaction{
			MedicationID:     input.MedicationID,
			Quantity:         input.Quantity,
			UnitPriceCents:   unitPrice,
			TotalAmountCents: total,
			Counterparty:     input.Counterparty,
			PerformedBy:      act.ID,
			BatchNumber:      firstBatch,
		}
		if input.Reference != "" {
			sale.Reference = &input.Reference
		}
		if input.IdempotencyKey != "" {
			sale.IdempotencyKey = &input.IdempotencyKey
		}
		if err := s.saleRepo.Insert(ctx, sale); err != nil {
			return err
		}

		med.AvailableStock -= input.Quantity
		availableAfter = med.AvailableStock
		return s.medicationRepo.UpdateCounters(ctx, med)
	})
	if err != nil {
		// A unique violation on the idempotency key means a concurrent
		// request recorded the same sale between our lookup and insert.
		if input.IdempotencyKey != "" && errors.Is(err, errors.ErrConflict) {
			if existing, lookupErr := s.saleRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	s.publisher.PublishSaleRecorded(ctx, sale, availableAfter)
	return sale, nil
}

// ListSales returns the sale ledger for one medication, newest first.
func (s *SalesService) ListSales(ctx context.Context, medicationID string, limit int) ([]*repository.SaleTransaction, error) {
	return s.saleRepo.ListByMedication(ctx, medicationID, limit)
}
