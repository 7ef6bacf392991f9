package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	EventMedicationCreated = "pharmacy.medication.created"
	EventStockRestocked    = "pharmacy.stock.restocked"
	EventStockAllocated    = "pharmacy.stock.allocated"
	EventMedicineMoved     = "pharmacy.medicine.moved"
	EventSaleRecorded      = "pharmacy.sale.recorded"
	EventStockReconciled   = "pharmacy.stock.reconciled"
)

// Exchange names
const (
	ExchangePharmacyEvents = "pharmacy.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// MedicationCreatedEvent is published when procurement creates a new medication
type MedicationCreatedEvent struct {
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Quantity     int    `json:"quantity"`
	MRPCents     int    `json:"mrp_cents"`
}

// StockRestockedEvent is published when existing stock is incremented
type StockRestockedEvent struct {
	MedicationID   string `json:"medication_id"`
	Quantity       int    `json:"quantity"`
	AvailableStock int    `json:"available_stock"`
	TotalStock     int    `json:"total_stock"`
}

// StockAllocatedEvent is published when units are assigned to a department
type StockAllocatedEvent struct {
	MedicationID   string `json:"medication_id"`
	AllocationID   string `json:"allocation_id"`
	BatchNumber    string `json:"batch_number"`
	Department     string `json:"department"`
	Quantity       int    `json:"quantity"`
	AvailableStock int    `json:"available_stock"`
}

// MedicineMovedEvent is published for every movement ledger append
type MedicineMovedEvent struct {
	MedicationID string `json:"medication_id"`
	AllocationID string `json:"allocation_id"`
	MovementID   string `json:"movement_id"`
	Quantity     int    `json:"quantity"`
	FromDept     string `json:"from_department"`
	ToDept       string `json:"to_department"`
	Reclassified bool   `json:"reclassified"`
	PerformedBy  string `json:"performed_by"`
}

// SaleRecordedEvent is published for every sale ledger append
type SaleRecordedEvent struct {
	MedicationID   string `json:"medication_id"`
	SaleID         string `json:"sale_id"`
	Quantity       int    `json:"quantity"`
	TotalCents     int    `json:"total_cents"`
	AvailableStock int    `json:"available_stock"`
}

// StockReconciledEvent is published when the reconciliation routine runs
type StockReconciledEvent struct {
	MedicationID string `json:"medication_id"`
	CachedStock  int    `json:"cached_stock"`
	DerivedStock int    `json:"derived_stock"`
	Drift        int    `json:"drift"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
