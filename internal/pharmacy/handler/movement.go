package handler

import (
	"net/http"
	"strconv"

	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmacore/pharmacy-backend/pkg/httputil"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// MovementHandler handles movement ledger endpoints
type MovementHandler struct {
	service *service.MovementService
	logger  *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(svc *service.MovementService, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		service: svc,
		logger:  log,
	}
}

// Create dispatches medicine out of a department allocation. The
// destination is always the reclaim pool; the request names no target.
func (h *MovementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AllocationID string `json:"allocation_id" validate:"required"`
		Quantity     int    `json:"quantity" validate:"required,gt=0"`
		Reason       string `json:"reason"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	mv, err := h.service.MoveMedicine(r.Context(), service.MoveMedicineInput{
		AllocationID: req.AllocationID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, mv)
}

// List lists movement history
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.MovementFilter{
		MedicationID: r.URL.Query().Get("medication_id"),
		AllocationID: r.URL.Query().Get("allocation_id"),
	}
	if dept := r.URL.Query().Get("department"); dept != "" {
		filter.FromDepartment = repository.Department(dept)
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}

	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, movements)
}
