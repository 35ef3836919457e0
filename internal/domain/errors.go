package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("unavailable")
)

// Specific errors.
var (
	// ErrLocationNotFound is the only error that aborts a report request.
	ErrLocationNotFound = fmt.Errorf("location: %w", ErrNotFound)

	ErrDataUnavailable       = fmt.Errorf("data: %w", ErrUnavailable)
	ErrTimeout               = fmt.Errorf("timeout: %w", ErrUnavailable)
	ErrNoScene               = fmt.Errorf("no scene in window: %w", ErrDataUnavailable)
	ErrGeometryMismatch      = fmt.Errorf("geometry crs mismatch: %w", ErrUnsupported)
	ErrUnsupportedProjection = fmt.Errorf("projection: %w", ErrUnsupported)
	ErrInvalidPoint          = fmt.Errorf("point: %w", ErrInvalidInput)
	ErrReferenceNotLoaded    = fmt.Errorf("reference dataset not loaded: %w", ErrUnavailable)
	ErrNotReady              = fmt.Errorf("service not ready: %w", ErrUnavailable)
	ErrStorageUnavailable    = fmt.Errorf("storage: %w", ErrUnavailable)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// SourceError represents a failed call against an external data source
// (raster backend, POI source, geocoder).
type SourceError struct {
	Source    string // Source name, e.g. "earthengine", "overpass"
	Operation string // Operation that failed
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s %s: %v", e.Source, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (download, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
