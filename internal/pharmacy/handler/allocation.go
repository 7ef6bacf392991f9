package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmacore/pharmacy-backend/pkg/httputil"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// AllocationHandler handles department allocation endpoints
type AllocationHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc *service.StockService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log,
	}
}

// List lists department allocations
func (h *AllocationHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.AllocationFilter{
		MedicationID: r.URL.Query().Get("medication_id"),
		Department:   repository.Department(r.URL.Query().Get("department")),
		OrderBy:      r.URL.Query().Get("order_by"),
	}

	if max := r.URL.Query().Get("max_quantity"); max != "" {
		if n, err := strconv.Atoi(max); err == nil {
			filter.MaxQuantity = n
		}
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = &t
		}
	}

	allocs, err := h.service.ListAllocations(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, allocs)
}

// ListZeroQuantity lists zero allocations awaiting reclassification
func (h *AllocationHandler) ListZeroQuantity(w http.ResponseWriter, r *http.Request) {
	allocs, err := h.service.ListZeroQuantityAllocations(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, allocs)
}

// Create allocates stock to a department
func (h *AllocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MedicationID   string `json:"medication_id" validate:"required"`
		BatchNumber    string `json:"batch_number" validate:"required"`
		Department     string `json:"department" validate:"required"`
		Quantity       int    `json:"quantity" validate:"required,gt=0"`
		UnitPriceCents int    `json:"unit_price_cents"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	dept, err := repository.ParseDepartment(req.Department)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	alloc, err := h.service.AllocateToDepartment(r.Context(), service.AllocateInput{
		MedicationID:   req.MedicationID,
		BatchNumber:    req.BatchNumber,
		Department:     dept,
		Quantity:       req.Quantity,
		UnitPriceCents: req.UnitPriceCents,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, alloc)
}

// UpdateQuantity corrects an allocation's quantity
func (h *AllocationHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Quantity int `json:"quantity" validate:"gte=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	alloc, err := h.service.AdjustAllocationQuantity(r.Context(), id, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alloc)
}

// Delete removes an allocation and returns its stock
func (h *AllocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.RemoveAllocation(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
