package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmacore/pharmacy-backend/pkg/httputil"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// MedicationHandler handles medication endpoints
type MedicationHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewMedicationHandler creates a new medication handler
func NewMedicationHandler(svc *service.StockService, log *logger.Logger) *MedicationHandler {
	return &MedicationHandler{
		service: svc,
		logger:  log,
	}
}

// List lists medications
func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	category := r.URL.Query().Get("category")

	meds, total, err := h.service.ListMedications(r.Context(), page, perPage, category)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, meds, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get gets a medication with its batches
func (h *MedicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	med, err := h.service.GetMedication(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, med)
}

// Create creates a new medication
func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name" validate:"required"`
		Manufacturer string `json:"manufacturer" validate:"required"`
		Category     string `json:"category"`
		Unit         string `json:"unit"`
		MRPCents     int    `json:"mrp_cents" validate:"required,gt=0"`
		Quantity     int    `json:"quantity" validate:"required,gt=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	med, err := h.service.CreateMedication(r.Context(), service.CreateMedicationInput{
		Name:            req.Name,
		Manufacturer:    req.Manufacturer,
		Category:        req.Category,
		Unit:            req.Unit,
		MRPCents:        req.MRPCents,
		InitialQuantity: req.Quantity,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, med)
}

// Restock adds stock to an existing medication
func (h *MedicationHandler) Restock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Quantity int `json:"quantity" validate:"required,gt=0"`
		MRPCents int `json:"mrp_cents"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	med, err := h.service.Restock(r.Context(), id, req.Quantity, req.MRPCents)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, med)
}

// Reconcile recomputes available stock from the ledgers
func (h *MedicationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.service.RecomputeAvailableStock(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
