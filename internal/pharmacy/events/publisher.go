package events

import (
	"context"

	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
	"github.com/pharmacore/pharmacy-backend/pkg/messaging"
)

// PharmacyEventPublisher publishes ledger events. Publishing happens after
// commit and never fails the operation; failures are logged.
type PharmacyEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher creates a new pharmacy event publisher
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}

	return &PharmacyEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishMedicationCreated publishes a medication created event
func (p *PharmacyEventPublisher) PublishMedicationCreated(ctx context.Context, med *repository.Medication) {
	if p == nil {
		return
	}

	data := messaging.MedicationCreatedEvent{
		MedicationID: med.ID,
		Name:         med.Name,
		Manufacturer: med.Manufacturer,
		Quantity:     med.TotalStock,
		MRPCents:     med.MRPCents,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMedicationCreated, data); err != nil {
		p.logger.Error().Err(err).Str("medication_id", med.ID).Msg("failed to publish medication created event")
	}
}

// PublishStockRestocked publishes a restock event
func (p *PharmacyEventPublisher) PublishStockRestocked(ctx context.Context, med *repository.Medication, quantity int) {
	if p == nil {
		return
	}

	data := messaging.StockRestockedEvent{
		MedicationID:   med.ID,
		Quantity:       quantity,
		AvailableStock: med.AvailableStock,
		TotalStock:     med.TotalStock,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockRestocked, data); err != nil {
		p.logger.Error().Err(err).Str("medication_id", med.ID).Msg("failed to publish restock event")
	}
}

// PublishStockAllocated publishes an allocation event
func (p *PharmacyEventPublisher) PublishStockAllocated(ctx context.Context, med *repository.Medication, alloc *repository.DepartmentAllocation) {
	if p == nil {
		return
	}

	data := messaging.StockAllocatedEvent{
		MedicationID:   med.ID,
		AllocationID:   alloc.ID,
		BatchNumber:    alloc.BatchNumber,
		Department:     alloc.Department.String(),
		Quantity:       alloc.Quantity,
		AvailableStock: med.AvailableStock,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockAllocated, data); err != nil {
		p.logger.Error().Err(err).Str("allocation_id", alloc.ID).Msg("failed to publish allocation event")
	}
}

// PublishMedicineMoved publishes a movement ledger event
func (p *PharmacyEventPublisher) PublishMedicineMoved(ctx context.Context, mv *repository.Movement, reclassified bool) {
	if p == nil {
		return
	}

	data := messaging.MedicineMovedEvent{
		MedicationID: mv.MedicationID,
		AllocationID: mv.AllocationID,
		MovementID:   mv.ID,
		Quantity:     mv.Quantity,
		FromDept:     mv.FromDepartment.String(),
		ToDept:       mv.ToDepartment.String(),
		Reclassified: reclassified,
		PerformedBy:  mv.PerformedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMedicineMoved, data); err != nil {
		p.logger.Error().Err(err).Str("movement_id", mv.ID).Msg("failed to publish movement event")
	}
}

// PublishSaleRecorded publishes a sale ledger event
func (p *PharmacyEventPublisher) PublishSaleRecorded(ctx context.Context, sale *repository.SaleTransaction, availableStock int) {
	if p == nil {
		return
	}

	data := messaging.SaleRecordedEvent{
		MedicationID:   sale.MedicationID,
		SaleID:         sale.ID,
		Quantity:       sale.Quantity,
		TotalCents:     sale.TotalAmountCents,
		AvailableStock: availableStock,
	}

	if err := p.publisher.Publish(ctx, messaging.EventSaleRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("sale_id", sale.ID).Msg("failed to publish sale event")
	}
}

// PublishStockReconciled publishes a reconciliation event
func (p *PharmacyEventPublisher) PublishStockReconciled(ctx context.Context, medicationID string, cached, derived int) {
	if p == nil {
		return
	}

	data := messaging.StockReconciledEvent{
		MedicationID: medicationID,
		CachedStock:  cached,
		DerivedStock: derived,
		Drift:        cached - derived,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReconciled, data); err != nil {
		p.logger.Error().Err(err).Str("medication_id", medicationID).Msg("failed to publish reconciliation event")
	}
}
