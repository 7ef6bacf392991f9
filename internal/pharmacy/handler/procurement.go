package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
	"github.com/pharmacore/pharmacy-backend/pkg/httputil"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// ProcurementHandler handles purchase consolidation endpoints
type ProcurementHandler struct {
	service *service.ProcurementService
	logger  *logger.Logger
}

// NewProcurementHandler creates a new procurement handler
func NewProcurementHandler(svc *service.ProcurementService, log *logger.Logger) *ProcurementHandler {
	return &ProcurementHandler{
		service: svc,
		logger:  log,
	}
}

type purchaseRequest struct {
	Name               string `json:"name" validate:"required"`
	Manufacturer       string `json:"manufacturer" validate:"required"`
	Category           string `json:"category"`
	Unit               string `json:"unit"`
	Quantity           int    `json:"quantity" validate:"required,gt=0"`
	MRPCents           int    `json:"mrp_cents" validate:"required,gt=0"`
	BatchNumber        string `json:"batch_number"`
	ExpiryDate         string `json:"expiry_date"`
	PurchasePriceCents int    `json:"purchase_price_cents"`
	SellingPriceCents  int    `json:"selling_price_cents"`
	Supplier           string `json:"supplier"`
}

func (r purchaseRequest) toInput() (service.PurchaseInput, error) {
	input := service.PurchaseInput{
		Name:               r.Name,
		Manufacturer:       r.Manufacturer,
		Category:           r.Category,
		Unit:               r.Unit,
		Quantity:           r.Quantity,
		MRPCents:           r.MRPCents,
		BatchNumber:        r.BatchNumber,
		PurchasePriceCents: r.PurchasePriceCents,
		SellingPriceCents:  r.SellingPriceCents,
		Supplier:           r.Supplier,
	}
	if r.ExpiryDate != "" {
		t, err := time.Parse("2006-01-02", r.ExpiryDate)
		if err != nil {
			return input, errors.Validation(map[string]string{
				"expiry_date": "must be a date in YYYY-MM-DD format",
			})
		}
		input.ExpiryDate = &t
	}
	return input, nil
}

// Buy consolidates one incoming purchase
func (h *ProcurementHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	input, err := req.toInput()
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.BuyMedicine(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	status := http.StatusOK
	if result.CreatedMedication {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, result)
}

// ImportBatches registers a list of batches against a medication
func (h *ProcurementHandler) ImportBatches(w http.ResponseWriter, r *http.Request) {
	medicationID := chi.URLParam(r, "id")

	var req struct {
		Rows []purchaseRequest `json:"rows" validate:"required,min=1,dive"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	rows := make([]service.PurchaseInput, 0, len(req.Rows))
	for _, row := range req.Rows {
		input, err := row.toInput()
		if err != nil {
			httputil.Error(w, err)
			return
		}
		rows = append(rows, input)
	}

	results, err := h.service.ImportBatchRows(r.Context(), medicationID, rows)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, results)
}
