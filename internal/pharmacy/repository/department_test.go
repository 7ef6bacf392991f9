package repository_test

import (
	"testing"

	"github.com/pharmacore/pharmacy-backend/internal/pharmacy/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDepartment(t *testing.T) {
	t.Run("accepts clinical departments", func(t *testing.T) {
		for _, dept := range repository.Departments() {
			parsed, err := repository.ParseDepartment(string(dept))
			require.NoError(t, err)
			assert.Equal(t, dept, parsed)
			assert.True(t, parsed.IsClinical())
			assert.False(t, parsed.IsReclaimPool())
		}
	})

	t.Run("rejects unknown codes", func(t *testing.T) {
		_, err := repository.ParseDepartment("warehouse")
		assert.Error(t, err)

		_, err = repository.ParseDepartment("")
		assert.Error(t, err)
	})

	t.Run("rejects the reclaim pool", func(t *testing.T) {
		_, err := repository.ParseDepartment(string(repository.DepartmentReclaimPool))
		assert.Error(t, err)
	})
}

func TestDepartmentReclaimPool(t *testing.T) {
	assert.True(t, repository.DepartmentReclaimPool.IsReclaimPool())
	assert.False(t, repository.DepartmentReclaimPool.IsClinical())

	// The listing used by endpoints must never offer the reclaim pool as a
	// destination.
	for _, dept := range repository.Departments() {
		assert.False(t, dept.IsReclaimPool())
	}
}
