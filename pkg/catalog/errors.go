package catalog

import "errors"

var (
	// ErrServerNotFound is returned when the requested server is not in
	// the catalog.
	ErrServerNotFound = errors.New("server not found")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")
)
