package repository

import (
	"fmt"

	"github.com/pharmacore/pharmacy-backend/pkg/errors"
)

// Department is the typed destination of a stock allocation. The reclaim
// pool is a member of the same type so that the zero-quantity transition is
// a typed reclassification, not a string comparison scattered around callers.
type Department string

// Clinical departments plus the reserved reclaim pool.
const (
	DepartmentICU        Department = "icu"
	DepartmentEmergency  Department = "emergency"
	DepartmentSurgery    Department = "surgery"
	DepartmentPediatrics Department = "pediatrics"
	DepartmentCardiology Department = "cardiology"
	DepartmentRadiology  Department = "radiology"
	DepartmentPathology  Department = "pathology"
	DepartmentOutpatient Department = "outpatient_pharmacy"

	// DepartmentReclaimPool is the catalog bucket for allocations whose
	// quantity has dropped to zero. It is not a physical location.
	DepartmentReclaimPool Department = "reclaim_pool"
)

var clinicalDepartments = map[Department]bool{
	DepartmentICU:        true,
	DepartmentEmergency:  true,
	DepartmentSurgery:    true,
	DepartmentPediatrics: true,
	DepartmentCardiology: true,
	DepartmentRadiology:  true,
	DepartmentPathology:  true,
	DepartmentOutpatient: true,
}

// ParseDepartment validates a clinical department code. The reclaim pool is
// deliberately rejected here: callers never allocate to it directly, rows
// only arrive there through reclassification.
func ParseDepartment(code string) (Department, error) {
	d := Department(code)
	if !clinicalDepartments[d] {
		return "", errors.BadRequest(fmt.Sprintf("unknown department %q", code))
	}
	return d, nil
}

// Departments returns every clinical department, for listing endpoints.
func Departments() []Department {
	return []Department{
		DepartmentICU,
		DepartmentEmergency,
		DepartmentSurgery,
		DepartmentPediatrics,
		DepartmentCardiology,
		DepartmentRadiology,
		DepartmentPathology,
		DepartmentOutpatient,
	}
}

// IsReclaimPool reports whether the department is the reserved reclaim pool.
func (d Department) IsReclaimPool() bool {
	return d == DepartmentReclaimPool
}

// IsClinical reports whether the department is a real clinical department.
func (d Department) IsClinical() bool {
	return clinicalDepartments[d]
}

func (d Department) String() string {
	return string(d)
}
