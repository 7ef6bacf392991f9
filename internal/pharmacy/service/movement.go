package service

import (
	"context"
	"fmt"

	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/pkg/actor"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// MovementService records medicine leaving a department allocation. The
// movement ledger is append-only; rows are never updated or deleted.
type MovementService struct {
	db             *database.DB
	allocationRepo *repository.AllocationRepository
	movementRepo   *repository.MovementRepository
	publisher      *events.PharmacyEventPublisher
	logger         *logger.Logger
}

// NewMovementService creates a new movement service
func NewMovementService(
	db *database.DB,
	allocationRepo *repository.AllocationRepository,
	movementRepo *repository.MovementRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *MovementService {
	return &MovementService{
		db:             db,
		allocationRepo: allocationRepo,
		movementRepo:   movementRepo,
		publisher:      publisher,
		logger:         log,
	}
}

// MoveMedicineInput carries the fields for a dispatch out of an allocation.
type MoveMedicineInput struct {
	AllocationID string
	Quantity     int
	Reason       string
}

// MoveMedicine dispatches quantity units out of a department allocation.
// The destination on the ledger row is always the reclaim pool; moved units
// leave the department without returning to available stock. The decrement,
// the ledger row, and the reclaim-pool reclassification when the allocation
// reaches zero all land in one transaction; either every record exists or
// none does.
func (s *MovementService) MoveMedicine(ctx context.Context, input MoveMedicineInput) (*repository.Movement, error) {
	if input.Quantity <= 0 {
		return nil, errors.InvalidQuantity("movement quantity must be greater than 0")
	}

	act := actor.FromContext(ctx)
	if act == nil {
		act = actor.SystemActor()
	}

	var mv *repository.Movement
	var reclassified bool
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		alloc, err := s.allocationRepo.GetByIDForUpdate(ctx, input.AllocationID)
		if err != nil {
			return err
		}
		if alloc.Department.IsReclaimPool() {
			return errors.InvalidQuantity("allocation has already been reclaimed and holds no stock")
		}
		if alloc.Quantity == 0 {
			return errors.InvalidQuantity("allocation holds no stock to move")
		}
		if input.Quantity > alloc.Quantity {
			return errors.InvalidQuantity(fmt.Sprintf(
				"cannot move %d units; allocation holds %d", input.Quantity, alloc.Quantity))
		}

		remaining := alloc.Quantity - input.Quantity
		if err := s.allocationRepo.SetQuantity(ctx, alloc.ID, remaining); err != nil {
			return err
		}

		mv = &repository.Movement{
			MedicationID:    alloc.MedicationID,
			AllocationID:    alloc.ID,
			Quantity:        input.Quantity,
			FromDepartment:  alloc.Department,
			ToDepartment:    repository.DepartmentReclaimPool,
			BatchNumber:     alloc.BatchNumber,
			UnitPriceCents:  alloc.UnitPriceCents,
			Reason:          input.Reason,
			PerformedBy:     act.ID,
			PerformedByName: act.Name,
		}
		if err := s.movementRepo.Insert(ctx, mv); err != nil {
			return err
		}

		if remaining == 0 {
			if err := s.allocationRepo.Reclassify(ctx, alloc.ID); err != nil {
				return err
			}
			reclassified = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishMedicineMoved(ctx, mv, reclassified)
	return mv, nil
}

// ListMovements returns movement history, newest first.
func (s *MovementService) ListMovements(ctx context.Context, filter repository.MovementFilter) ([]*repository.Movement, error) {
	return s.movementRepo.List(ctx, filter)
}
