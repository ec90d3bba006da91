package storage

import "errors"

// Store errors. Decision and metrics stores are append-only.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when a record with the same key is already
	// stored. Stored records are never updated.
	ErrDuplicateKey = errors.New("record already stored")

	// ErrInvalidInput is returned for records that cannot be stored.
	ErrInvalidInput = errors.New("invalid record")
)
