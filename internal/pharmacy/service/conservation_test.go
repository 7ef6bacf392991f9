package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
	"github.com/pharmacore/pharmacy-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedAllocationRow(id, medID, batchNumber string, dept repository.Department, quantity, unitPriceCents int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "medication_id", "batch_number", "department", "quantity",
		"unit_price_cents", "created_at", "updated_at",
	}).AddRow(id, medID, batchNumber, string(dept), quantity, unitPriceCents, now, now)
}

func storedMedicationRow(id string, available, total, mrpCents int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "manufacturer", "category", "unit",
		"available_stock", "total_stock", "mrp_cents", "status",
		"created_at", "updated_at",
	}).AddRow(id, "Paracetamol 500mg", "ACME", "analgesic", "tablet",
		available, total, mrpCents, "active", now, now)
}

func sumRow(n int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"sum"}).AddRow(n)
}

// The full lifecycle of one medication created straight on the counters,
// with no batch registry rows at any point: create 100, allocate 30 to a
// department, move the 30 out (draining and reclaiming the allocation),
// sell 20, then reconcile and find zero drift.
func TestStockLedger_CreateAllocateMoveSellLifecycle(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	stock := newStockService(mockDB)
	movements := newMovementService(mockDB)
	sales := newSalesService(mockDB)
	ctx := context.Background()

	// Create: available = total = 100.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM medications").
		WithArgs("Paracetamol 500mg", "ACME").
		WillReturnRows(emptyMedicationRows())
	mockDB.ExpectQuery("INSERT INTO medications").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	mockDB.ExpectCommit()

	med, err := stock.CreateMedication(ctx, service.CreateMedicationInput{
		Name:            "Paracetamol 500mg",
		Manufacturer:    "ACME",
		MRPCents:        1000,
		InitialQuantity: 100,
	})
	require.NoError(t, err)
	require.Equal(t, 100, med.AvailableStock)
	require.Equal(t, 100, med.TotalStock)

	// Allocate 30 on batch B1. No registry row exists for B1; the
	// allocation succeeds on the counters alone and available drops to 70.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1 FOR UPDATE").
		WithArgs(med.ID).
		WillReturnRows(storedMedicationRow(med.ID, 100, 100, 1000))
	mockDB.ExpectQuery("SELECT * FROM medication_batches WHERE medication_id = $1 AND batch_number = $2 FOR UPDATE").
		WithArgs(med.ID, "B1").
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectQuery("SELECT * FROM department_allocations").
		WithArgs(med.ID, "B1", "icu").
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectQuery("INSERT INTO department_allocations").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	mockDB.ExpectExec("UPDATE medications").
		WithArgs(med.ID, 70, 100, 1000).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	alloc, err := stock.AllocateToDepartment(ctx, service.AllocateInput{
		MedicationID: med.ID,
		BatchNumber:  "B1",
		Department:   repository.DepartmentICU,
		Quantity:     30,
	})
	require.NoError(t, err)
	require.Equal(t, 30, alloc.Quantity)
	require.Equal(t, 1000, alloc.UnitPriceCents)

	// Move the full 30 out: the allocation drains to zero and is
	// reclassified; available stays at 70.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM department_allocations WHERE id = $1 FOR UPDATE").
		WithArgs(alloc.ID).
		WillReturnRows(storedAllocationRow(alloc.ID, med.ID, "B1", repository.DepartmentICU, 30, 1000))
	mockDB.ExpectExec("UPDATE department_allocations SET quantity = $2").
		WithArgs(alloc.ID, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO stock_movements").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mockDB.ExpectExec("UPDATE department_allocations").
		WithArgs(alloc.ID, "reclaim_pool").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	mv, err := movements.MoveMedicine(ctx, service.MoveMedicineInput{
		AllocationID: alloc.ID,
		Quantity:     30,
		Reason:       "ward transfer",
	})
	require.NoError(t, err)
	require.Equal(t, repository.DepartmentReclaimPool, mv.ToDepartment)

	// Sell 20 at the retail price: available drops to 50 and the sale
	// carries no batch attribution because the registry is empty.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1 FOR UPDATE").
		WithArgs(med.ID).
		WillReturnRows(storedMedicationRow(med.ID, 70, 100, 1000))
	mockDB.ExpectQuery("SELECT * FROM medication_batches").
		WithArgs(med.ID).
		WillReturnRows(consumableBatchRows())
	mockDB.ExpectQuery("INSERT INTO sale_transactions").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mockDB.ExpectExec("UPDATE medications").
		WithArgs(med.ID, 50, 100, 1000).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	sale, err := sales.RecordSale(ctx, service.RecordSaleInput{
		MedicationID: med.ID,
		Quantity:     20,
		Counterparty: "walk-in",
	})
	require.NoError(t, err)
	assert.Equal(t, 20000, sale.TotalAmountCents)
	assert.Nil(t, sale.BatchNumber)

	// Reconcile: 100 total - 0 allocated - 30 moved - 20 sold = 50, which
	// matches the cached counter. No drift, no overwrite.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1 FOR UPDATE").
		WithArgs(med.ID).
		WillReturnRows(storedMedicationRow(med.ID, 50, 100, 1000))
	mockDB.ExpectQuery("SELECT SUM(quantity) FROM department_allocations").
		WithArgs(med.ID).
		WillReturnRows(sumRow(0))
	mockDB.ExpectQuery("SELECT SUM(quantity) FROM stock_movements").
		WithArgs(med.ID).
		WillReturnRows(sumRow(30))
	mockDB.ExpectQuery("SELECT SUM(quantity) FROM sale_transactions").
		WithArgs(med.ID).
		WillReturnRows(sumRow(20))
	mockDB.ExpectCommit()

	report, err := stock.RecomputeAvailableStock(ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, report.DerivedStock)
	assert.Equal(t, 0, report.Drift)

	mockDB.ExpectationsWereMet(t)
}

// A seeded random walk over allocate, move, adjust and sell. A shadow model
// tracks the counters the way the ledgers should; after every accepted or
// rejected operation the conservation equation
// available + allocations + moved + sold == total must hold and available
// must never go negative.
func TestStockLedger_RandomizedOperationsConserveStock(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	stock := newStockService(mockDB)
	movements := newMovementService(mockDB)
	sales := newSalesService(mockDB)
	ctx := context.Background()

	const medID = "med-1"
	const mrp = 500
	const total = 400

	type allocModel struct {
		id        string
		batch     string
		qty       int
		reclaimed bool
	}

	available := total
	moved := 0
	sold := 0
	var allocs []*allocModel

	sumAllocated := func() int {
		n := 0
		for _, a := range allocs {
			n += a.qty
		}
		return n
	}
	checkInvariant := func(step int) {
		require.GreaterOrEqual(t, available, 0, "step %d: available went negative", step)
		require.Equal(t, total, available+sumAllocated()+moved+sold,
			"step %d: conservation violated", step)
	}

	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 60; step++ {
		switch op := rng.Intn(4); op {
		case 0: // allocate a fresh batch
			qty := 1 + rng.Intn(60)
			batch := fmt.Sprintf("LOT%03d", step)

			mockDB.ExpectBegin()
			mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1 FOR UPDATE").
				WithArgs(medID).
				WillReturnRows(storedMedicationRow(medID, available, total, mrp))
			if qty > available {
				mockDB.ExpectRollback()

				_, err := stock.AllocateToDepartment(ctx, service.AllocateInput{
					MedicationID: medID,
					BatchNumber:  batch,
					Department:   repository.DepartmentICU,
					Quantity:     qty,
				})
				require.True(t, errors.Is(err, errors.ErrInsufficientStock), "step %d", step)
				break
			}
			mockDB.ExpectQuery("SELECT * FROM medication_batches WHERE medication_id = $1 AND batch_number = $2 FOR UPDATE").
				WithArgs(medID, batch).
				WillReturnError(sql.ErrNoRows)
			mockDB.ExpectQuery("SELECT * FROM department_allocations").
				WithArgs(medID, batch, "icu").
				WillReturnError(sql.ErrNoRows)
			mockDB.ExpectQuery("INSERT INTO department_allocations").
				WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
					AddRow(time.Now(), time.Now()))
			mockDB.ExpectExec("UPDATE medications").
				WithArgs(medID, available-qty, total, mrp).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mockDB.ExpectCommit()

			alloc, err := stock.AllocateToDepartment(ctx, service.AllocateInput{
				MedicationID: medID,
				BatchNumber:  batch,
				Department:   repository.DepartmentICU,
				Quantity:     qty,
			})
			require.NoError(t, err, "step %d", step)
			available -= qty
			allocs = append(allocs, &allocModel{id: alloc.ID, batch: batch, qty: qty})

		case 1: // move out of a random allocation
			if len(allocs) == 0 {
				continue
			}
			a := allocs[rng.Intn(len(allocs))]
			qty := 1 + rng.Intn(40)

			dept := repository.DepartmentICU
			if a.reclaimed {
				dept = repository.DepartmentReclaimPool
			}
			mockDB.ExpectBegin()
			mockDB.ExpectQuery("SELECT * FROM department_allocations WHERE id = $1 FOR UPDATE").
				WithArgs(a.id).
				WillReturnRows(storedAllocationRow(a.id, medID, a.batch, dept, a.qty, mrp))
			if a.reclaimed || a.qty == 0 || qty > a.qty {
				mockDB.ExpectRollback()

				_, err := movements.MoveMedicine(ctx, service.MoveMedicineInput{
					AllocationID: a.id,
					Quantity:     qty,
				})
				require.True(t, errors.Is(err, errors.ErrInvalidQuantity), "step %d", step)
				break
			}
			mockDB.ExpectExec("UPDATE department_allocations SET quantity = $2").
				WithArgs(a.id, a.qty-qty).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mockDB.ExpectQuery("INSERT INTO stock_movements").
				WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
			if a.qty-qty == 0 {
				mockDB.ExpectExec("UPDATE department_allocations").
					WithArgs(a.id, "reclaim_pool").
					WillReturnResult(sqlmock.NewResult(0, 1))
			}
			mockDB.ExpectCommit()

			_, err := movements.MoveMedicine(ctx, service.MoveMedicineInput{
				AllocationID: a.id,
				Quantity:     qty,
			})
			require.NoError(t, err, "step %d", step)
			a.qty -= qty
			moved += qty
			if a.qty == 0 {
				a.reclaimed = true
			}

		case 2: // adjust a random allocation
			if len(allocs) == 0 {
				continue
			}
			a := allocs[rng.Intn(len(allocs))]
			newQty := rng.Intn(70)
			delta := newQty - a.qty

			dept := repository.DepartmentICU
			if a.reclaimed {
				dept = repository.DepartmentReclaimPool
			}
			mockDB.ExpectBegin()
			mockDB.ExpectQuery("SELECT * FROM department_allocations WHERE id = $1 FOR UPDATE").
				WithArgs(a.id).
				WillReturnRows(storedAllocationRow(a.id, medID, a.batch, dept, a.qty, mrp))
			if a.reclaimed {
				mockDB.ExpectRollback()

				_, err := stock.AdjustAllocationQuantity(ctx, a.id, newQty)
				require.True(t, errors.Is(err, errors.ErrInvalidQuantity), "step %d", step)
				break
			}
			if delta == 0 {
				mockDB.ExpectCommit()

				_, err := stock.AdjustAllocationQuantity(ctx, a.id, newQty)
				require.NoError(t, err, "step %d", step)
				break
			}
			mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1 FOR UPDATE").
				WithArgs(medID).
				WillReturnRows(storedMedicationRow(medID, available, total, mrp))
			mockDB.ExpectQuery("SELECT * FROM medication_batches WHERE medication_id = $1 AND batch_number = $2 FOR UPDATE").
				WithArgs(medID, a.batch).
				WillReturnError(sql.ErrNoRows)
			if delta > available {
				mockDB.ExpectRollback()

				_, err := stock.AdjustAllocationQuantity(ctx, a.id, newQty)
				require.True(t, errors.Is(err, errors.ErrInsufficientStock), "step %d", step)
				break
			}
			mockDB.ExpectExec("UPDATE department_allocations SET quantity = $2").
				WithArgs(a.id, newQty).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mockDB.ExpectExec("UPDATE medications").
				WithArgs(medID, available-delta, total, mrp).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mockDB.ExpectCommit()

			_, err := stock.AdjustAllocationQuantity(ctx, a.id, newQty)
			require.NoError(t, err, "step %d", step)
			a.qty = newQty
			available -= delta

		case 3: // sell
			qty := 1 + rng.Intn(80)

			mockDB.ExpectBegin()
			mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1 FOR UPDATE").
				WithArgs(medID).
				WillReturnRows(storedMedicationRow(medID, available, total, mrp))
			if qty > available {
				mockDB.ExpectRollback()

				_, err := sales.RecordSale(ctx, service.RecordSaleInput{
					MedicationID: medID,
					Quantity:     qty,
				})
				require.True(t, errors.Is(err, errors.ErrInsufficientStock), "step %d", step)
				break
			}
			mockDB.ExpectQuery("SELECT * FROM medication_batches").
				WithArgs(medID).
				WillReturnRows(consumableBatchRows())
			mockDB.ExpectQuery("INSERT INTO sale_transactions").
				WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
			mockDB.ExpectExec("UPDATE medications").
				WithArgs(medID, available-qty, total, mrp).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mockDB.ExpectCommit()

			_, err := sales.RecordSale(ctx, service.RecordSaleInput{
				MedicationID: medID,
				Quantity:     qty,
			})
			require.NoError(t, err, "step %d", step)
			available -= qty
			sold += qty
		}

		checkInvariant(step)
	}

	// Final reconciliation over the model's ledger totals: zero drift.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1 FOR UPDATE").
		WithArgs(medID).
		WillReturnRows(storedMedicationRow(medID, available, total, mrp))
	mockDB.ExpectQuery("SELECT SUM(quantity) FROM department_allocations").
		WithArgs(medID).
		WillReturnRows(sumRow(sumAllocated()))
	mockDB.ExpectQuery("SELECT SUM(quantity) FROM stock_movements").
		WithArgs(medID).
		WillReturnRows(sumRow(moved))
	mockDB.ExpectQuery("SELECT SUM(quantity) FROM sale_transactions").
		WithArgs(medID).
		WillReturnRows(sumRow(sold))
	mockDB.ExpectCommit()

	report, err := stock.RecomputeAvailableStock(ctx, medID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Drift)
	assert.Equal(t, available, report.DerivedStock)

	mockDB.ExpectationsWereMet(t)
}
