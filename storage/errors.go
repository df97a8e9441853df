package storage

import "errors"

// Storage error constants
var (
	// ErrNotFound is returned when a record does not exist in its table.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidConfidence is returned when an indicator confidence is NaN
	// or infinite. Non-finite confidence values have no total order, so they
	// are rejected at the store boundary instead of surfacing as undefined
	// behavior during confidence ranking.
	ErrInvalidConfidence = errors.New("indicator confidence is not a finite number")
)
