package repositories

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a conditional write lost against a concurrent one.
	ErrConflict = errors.New("record changed concurrently")
)
