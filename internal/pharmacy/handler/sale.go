package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmacore/pharmacy-backend/pkg/httputil"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// SaleHandler handles sale ledger endpoints
type SaleHandler struct {
	service *service.SalesService
	logger  *logger.Logger
}

// NewSaleHandler creates a new sale handler
func NewSaleHandler(svc *service.SalesService, log *logger.Logger) *SaleHandler {
	return &SaleHandler{
		service: svc,
		logger:  log,
	}
}

// Create records a sale. The Idempotency-Key header makes retries safe.
func (h *SaleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MedicationID   string `json:"medication_id" validate:"required"`
		Quantity       int    `json:"quantity" validate:"required,gt=0"`
		UnitPriceCents int    `json:"unit_price_cents"`
		TotalCents     int    `json:"total_cents"`
		Counterparty   string `json:"counterparty"`
		Reference      string `json:"reference"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	sale, err := h.service.RecordSale(r.Context(), service.RecordSaleInput{
		MedicationID:   req.MedicationID,
		Quantity:       req.Quantity,
		UnitPriceCents: req.UnitPriceCents,
		TotalCents:     req.TotalCents,
		Counterparty:   req.Counterparty,
		Reference:      req.Reference,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, sale)
}

// ListByMedication lists sales for one medication, newest first
func (h *SaleHandler) ListByMedication(w http.ResponseWriter, r *http.Request) {
	medicationID := chi.URLParam(r, "id")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sales, err := h.service.ListSales(r.Context(), medicationID, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sales)
}
