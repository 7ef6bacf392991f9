package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/handler"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmacore/pharmacy-backend/pkg/config"
	"github.com/pharmacore/pharmacy-backend/pkg/database"
	"github.com/pharmacore/pharmacy-backend/pkg/httputil"
	"github.com/pharmacore/pharmacy-backend/pkg/logger"
	"github.com/pharmacore/pharmacy-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pharmacy-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pharmacy-service", cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewPharmacyEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	medicationRepo := repository.NewMedicationRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	saleRepo := repository.NewSaleRepository(db)

	// Initialize services
	stockService := service.NewStockService(db, medicationRepo, batchRepo, allocationRepo, movementRepo, saleRepo, publisher, log)
	movementService := service.NewMovementService(db, allocationRepo, movementRepo, publisher, log)
	procurementService := service.NewProcurementService(db, medicationRepo, batchRepo, publisher, log)
	salesService := service.NewSalesService(db, medicationRepo, batchRepo, saleRepo, publisher, log)
	reportService := service.NewReportService(db, medicationRepo, batchRepo, allocationRepo, saleRepo, cfg.Ledger, log)

	// Initialize handlers
	medicationHandler := handler.NewMedicationHandler(stockService, log)
	allocationHandler := handler.NewAllocationHandler(stockService, log)
	movementHandler := handler.NewMovementHandler(movementService, log)
	procurementHandler := handler.NewProcurementHandler(procurementService, log)
	saleHandler := handler.NewSaleHandler(salesService, log)
	reportHandler := handler.NewReportHandler(reportService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			return strings.HasSuffix(origin, ".pharmacore.health")
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "pharmacy-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		r.Use(httputil.Authenticate(&cfg.JWT))

		// Medication routes
		r.Route("/medications", func(r chi.Router) {
			r.Get("/", medicationHandler.List)
			r.Post("/", medicationHandler.Create)
			r.Get("/{id}", medicationHandler.Get)
			r.Post("/{id}/restock", medicationHandler.Restock)
			r.Post("/{id}/reconcile", medicationHandler.Reconcile)
			r.Post("/{id}/batches/import", procurementHandler.ImportBatches)
			r.Get("/{id}/sales", saleHandler.ListByMedication)
			r.Get("/{id}/batch-stats", reportHandler.BatchMonthlyStats)
		})

		// Procurement
		r.Post("/purchases", procurementHandler.Buy)

		// Department allocation routes
		r.Route("/allocations", func(r chi.Router) {
			r.Get("/", allocationHandler.List)
			r.Post("/", allocationHandler.Create)
			r.Get("/zero-quantity", allocationHandler.ListZeroQuantity)
			r.Put("/{id}/quantity", allocationHandler.UpdateQuantity)
			r.Delete("/{id}", allocationHandler.Delete)
		})

		// Movement ledger routes
		r.Route("/movements", func(r chi.Router) {
			r.Get("/", movementHandler.List)
			r.Post("/", movementHandler.Create)
		})

		// Sale ledger
		r.Post("/sales", saleHandler.Create)

		// Reports
		r.Route("/reports", func(r chi.Router) {
			r.Get("/dashboard", reportHandler.Dashboard)
			r.Get("/low-stock", reportHandler.LowStock)
			r.Get("/expiring-batches", reportHandler.ExpiringBatches)
			r.Get("/expired-batches", reportHandler.ExpiredBatches)
			r.Get("/departments", reportHandler.DepartmentSummaries)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
