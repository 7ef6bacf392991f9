package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pharmacore/pharmacy-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error. Service-level checks reject bad
// quantities before any write; this mapping is the backstop for races the
// checks cannot see.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return mapUniqueConstraint(pqErr)

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps ledger CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "available_stock"):
		return errors.InsufficientStock(0, 0)

	case strings.Contains(constraint, "current_quantity"):
		return errors.InvalidQuantity("batch quantity must stay between zero and the received quantity")

	case strings.Contains(constraint, "quantity"):
		return errors.InvalidQuantity("quantity must not be negative")

	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: active, inactive",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// mapUniqueConstraint creates duplicate errors for ledger uniqueness violations.
func mapUniqueConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "batch_number"):
		return errors.DuplicateBatch("")

	case strings.Contains(constraint, "name_manufacturer"):
		return errors.Conflict("an active medication with this name and manufacturer already exists")

	case strings.Contains(constraint, "idempotency_key"):
		return errors.Conflict("this sale has already been recorded")

	default:
		return errors.Conflict("a record with these values already exists")
	}
}
