package service

import (
	"context"
	"time"

	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/pkg/config"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
)

// ReportService serves the read-only dashboard and audit views. Queries run
// outside transactions; figures are point-in-time snapshots.
type ReportService struct {
	db             *database.DB
	medicationRepo *repository.MedicationRepository
	batchRepo      *repository.BatchRepository
	allocationRepo *repository.AllocationRepository
	saleRepo       *repository.SaleRepository
	cfg            config.LedgerConfig
	logger         *logger.Logger
}

// NewReportService creates a new report service
func NewReportService(
	db *database.DB,
	medicationRepo *repository.MedicationRepository,
	batchRepo *repository.BatchRepository,
	allocationRepo *repository.AllocationRepository,
	saleRepo *repository.SaleRepository,
	cfg config.LedgerConfig,
	log *logger.Logger,
) *ReportService {
	return &ReportService{
		db:             db,
		medicationRepo: medicationRepo,
		batchRepo:      batchRepo,
		allocationRepo: allocationRepo,
		saleRepo:       saleRepo,
		cfg:            cfg,
		logger:         log,
	}
}

// Dashboard is the summary payload for the pharmacy overview screen.
type Dashboard struct {
	TotalInventoryValueCents int64                           `json:"total_inventory_value_cents"`
	LowStockMedications      []*repository.Medication        `json:"low_stock_medications"`
	ExpiringBatchCount       int                             `json:"expiring_batch_count"`
	ExpiredBatchCount        int                             `json:"expired_batch_count"`
	RevenueTodayCents        int64                           `json:"revenue_today_cents"`
	DepartmentSummaries      []*repository.DepartmentSummary `json:"department_summaries"`
}

// GetDashboard assembles the overview figures.
func (s *ReportService) GetDashboard(ctx context.Context) (*Dashboard, error) {
	value, err := s.medicationRepo.TotalInventoryValueCents(ctx)
	if err != nil {
		return nil, err
	}

	lowStock, err := s.LowStockMedications(ctx)
	if err != nil {
		return nil, err
	}

	expiring, err := s.batchRepo.GetExpiringBatches(ctx, s.cfg.ExpiryWarningDays)
	if err != nil {
		return nil, err
	}

	expired, err := s.batchRepo.GetExpiredBatches(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	revenue, err := s.saleRepo.RevenueCentsBetween(ctx, startOfDay, now)
	if err != nil {
		return nil, err
	}

	summaries, err := s.allocationRepo.SummarizeByDepartment(ctx)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		TotalInventoryValueCents: value,
		LowStockMedications:      lowStock,
		ExpiringBatchCount:       len(expiring),
		ExpiredBatchCount:        len(expired),
		RevenueTodayCents:        revenue,
		DepartmentSummaries:      summaries,
	}, nil
}

// LowStockMedications returns active medications at or below the configured
// threshold, taken against the available counter.
func (s *ReportService) LowStockMedications(ctx context.Context) ([]*repository.Medication, error) {
	meds, err := s.medicationRepo.GetAllActive(ctx)
	if err != nil {
		return nil, err
	}

	low := make([]*repository.Medication, 0)
	for _, med := range meds {
		if med.AvailableStock <= s.cfg.LowStockThreshold {
			low = append(low, med)
		}
	}
	return low, nil
}

// ExpiringBatches returns batches expiring within the configured window.
func (s *ReportService) ExpiringBatches(ctx context.Context) ([]*repository.Batch, error) {
	return s.batchRepo.GetExpiringBatches(ctx, s.cfg.ExpiryWarningDays)
}

// ExpiredBatches returns batches past their expiry that still hold units.
func (s *ReportService) ExpiredBatches(ctx context.Context) ([]*repository.Batch, error) {
	return s.batchRepo.GetExpiredBatches(ctx)
}

// DepartmentSummaries aggregates current allocations per department.
func (s *ReportService) DepartmentSummaries(ctx context.Context) ([]*repository.DepartmentSummary, error) {
	return s.allocationRepo.SummarizeByDepartment(ctx)
}

// BatchMonthlyStats reports per-batch sale activity for one calendar month.
func (s *ReportService) BatchMonthlyStats(ctx context.Context, medicationID string, month time.Time) ([]*repository.BatchMonthlyStats, error) {
	return s.batchRepo.MonthlyStats(ctx, medicationID, month)
}
