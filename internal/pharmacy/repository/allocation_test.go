package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
	"github.com/pharmacore/pharmacy-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allocationColumns() []string {
	return []string{
		"id", "medication_id", "batch_number", "department", "quantity",
		"unit_price_cents", "created_at", "updated_at",
	}
}

func TestAllocationRepository_Create(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectQuery("INSERT INTO department_allocations").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	repo := repository.NewAllocationRepository(mockDB.DB)
	alloc := &repository.DepartmentAllocation{
		MedicationID:   "med-1",
		BatchNumber:    "B001",
		Department:     repository.DepartmentICU,
		Quantity:       30,
		UnitPriceCents: 250,
	}

	err := repo.Create(context.Background(), alloc)
	require.NoError(t, err)
	assert.NotEmpty(t, alloc.ID)

	mockDB.ExpectationsWereMet(t)
}

func TestAllocationRepository_FindActiveForUpdate_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT * FROM department_allocations").
		WithArgs("med-1", "B001", "icu").
		WillReturnRows(sqlmock.NewRows(allocationColumns()))

	repo := repository.NewAllocationRepository(mockDB.DB)
	_, err := repo.FindActiveForUpdate(context.Background(), "med-1", "B001", repository.DepartmentICU)

	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestAllocationRepository_Reclassify(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE department_allocations").
		WithArgs("alloc-1", "reclaim_pool").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := repository.NewAllocationRepository(mockDB.DB)
	err := repo.Reclassify(context.Background(), "alloc-1")
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestAllocationRepository_Reclassify_NonZeroQuantity(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	// The guarded UPDATE touches no rows when the allocation still holds
	// stock, so reclassification of a non-zero row must fail.
	mockDB.ExpectExec("UPDATE department_allocations").
		WithArgs("alloc-1", "reclaim_pool").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := repository.NewAllocationRepository(mockDB.DB)
	err := repo.Reclassify(context.Background(), "alloc-1")

	assert.True(t, errors.Is(err, errors.ErrInvalidQuantity))
	mockDB.ExpectationsWereMet(t)
}

func TestAllocationRepository_SumQuantities_Empty(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT SUM(quantity) FROM department_allocations").
		WithArgs("med-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))

	repo := repository.NewAllocationRepository(mockDB.DB)
	total, err := repo.SumQuantities(context.Background(), "med-1")
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	mockDB.ExpectationsWereMet(t)
}
