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

// ReportHandler handles dashboard and audit report endpoints
type ReportHandler struct {
	service *service.ReportService
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.ReportService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: svc,
		logger:  log,
	}
}

// Dashboard serves the overview figures
func (h *ReportHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.GetDashboard(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dashboard)
}

// LowStock lists medications at or below the threshold
func (h *ReportHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	meds, err := h.service.LowStockMedications(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, meds)
}

// ExpiringBatches lists batches expiring within the warning window
func (h *ReportHandler) ExpiringBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.ExpiringBatches(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// ExpiredBatches lists expired batches that still hold units
func (h *ReportHandler) ExpiredBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.ExpiredBatches(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// DepartmentSummaries aggregates allocations per department
func (h *ReportHandler) DepartmentSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.DepartmentSummaries(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summaries)
}

// BatchMonthlyStats reports per-batch sale activity for one month
func (h *ReportHandler) BatchMonthlyStats(w http.ResponseWriter, r *http.Request) {
	medicationID := chi.URLParam(r, "id")

	month := time.Now().UTC()
	if m := r.URL.Query().Get("month"); m != "" {
		parsed, err := time.Parse("2006-01", m)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{
				"month": "must be in YYYY-MM format",
			}))
			return
		}
		month = parsed
	}

	stats, err := h.service.BatchMonthlyStats(r.Context(), medicationID, month)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}
