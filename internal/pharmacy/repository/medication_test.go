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

func medicationColumns() []string {
	return []string{
		"id", "name", "manufacturer", "category", "unit",
		"available_stock", "total_stock", "mrp_cents", "status",
		"created_at", "updated_at",
	}
}

func TestMedicationRepository_Create(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectQuery("INSERT INTO medications").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	repo := repository.NewMedicationRepository(mockDB.DB)
	med := &repository.Medication{
		Name:           "Paracetamol 500mg",
		Manufacturer:   "Cipla",
		Category:       "analgesic",
		Unit:           "tablet",
		AvailableStock: 100,
		TotalStock:     100,
		MRPCents:       250,
	}

	err := repo.Create(context.Background(), med)
	require.NoError(t, err)

	assert.NotEmpty(t, med.ID)
	assert.Equal(t, repository.MedicationStatusActive, med.Status)
	assert.Equal(t, now, med.CreatedAt)

	mockDB.ExpectationsWereMet(t)
}

func TestMedicationRepository_GetByID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	rows := sqlmock.NewRows(medicationColumns()).
		AddRow("med-1", "Paracetamol 500mg", "Cipla", "analgesic", "tablet",
			70, 100, 250, "active", now, now)
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WithArgs("med-1").
		WillReturnRows(rows)

	repo := repository.NewMedicationRepository(mockDB.DB)
	med, err := repo.GetByID(context.Background(), "med-1")
	require.NoError(t, err)

	assert.Equal(t, "med-1", med.ID)
	assert.Equal(t, 70, med.AvailableStock)
	assert.Equal(t, 100, med.TotalStock)

	mockDB.ExpectationsWereMet(t)
}

func TestMedicationRepository_GetByID_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(medicationColumns()))

	repo := repository.NewMedicationRepository(mockDB.DB)
	_, err := repo.GetByID(context.Background(), "missing")

	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestMedicationRepository_FindActiveByNameManufacturer_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT * FROM medications").
		WithArgs("Paracetamol 500mg", "Cipla").
		WillReturnRows(sqlmock.NewRows(medicationColumns()))

	repo := repository.NewMedicationRepository(mockDB.DB)
	_, err := repo.FindActiveByNameManufacturer(context.Background(), "Paracetamol 500mg", "Cipla")

	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestMedicationRepository_UpdateCounters(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE medications").
		WithArgs("med-1", 70, 100, 250).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := repository.NewMedicationRepository(mockDB.DB)
	err := repo.UpdateCounters(context.Background(), &repository.Medication{
		ID: "med-1", AvailableStock: 70, TotalStock: 100, MRPCents: 250,
	})
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestMedicationRepository_UpdateCounters_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE medications").
		WithArgs("missing", 70, 100, 250).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := repository.NewMedicationRepository(mockDB.DB)
	err := repo.UpdateCounters(context.Background(), &repository.Medication{
		ID: "missing", AvailableStock: 70, TotalStock: 100, MRPCents: 250,
	})

	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestMedicationRepository_TotalInventoryValueCents_Empty(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT SUM(available_stock::bigint * mrp_cents) FROM medications").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))

	repo := repository.NewMedicationRepository(mockDB.DB)
	total, err := repo.TotalInventoryValueCents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	mockDB.ExpectationsWereMet(t)
}
