package domain

import (
	"errors"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:      "lon",
		Value:      200.0,
		Constraint: "[-180, 180]",
		Message:    "longitude must be between -180 and 180",
	}

	if got := err.Error(); got == "" {
		t.Error("Error() should not return empty string")
	}

	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should unwrap to ErrInvalidInput")
	}
}

func TestSourceError(t *testing.T) {
	tests := []struct {
		name string
		err  *SourceError
	}{
		{
			name: "with operation",
			err: &SourceError{
				Source:    "overpass",
				Operation: "query",
				Err:       errors.New("connection reset"),
			},
		},
		{
			name: "without operation",
			err: &SourceError{
				Source: "nominatim",
				Err:    ErrLocationNotFound,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got == "" {
				t.Error("Error() should not return empty string")
			}
			if !errors.Is(tt.err, tt.err.Err) {
				t.Error("Unwrap should return the underlying error")
			}
		})
	}
}

func TestStorageError(t *testing.T) {
	tests := []struct {
		name string
		err  *StorageError
	}{
		{
			name: "with key",
			err: &StorageError{
				Operation: "download",
				Key:       "water_polygons.shp",
				Err:       errors.New("network error"),
			},
		},
		{
			name: "without key",
			err: &StorageError{
				Operation: "list",
				Err:       errors.New("access denied"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got == "" {
				t.Error("Error() should not return empty string")
			}
			if !errors.Is(tt.err, tt.err.Err) {
				t.Error("Unwrap should return the underlying error")
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "backend.credentials.private_key",
		Message: "required",
	}

	if got := err.Error(); got == "" {
		t.Error("Error() should not return empty string")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ConfigError should unwrap to ErrInvalidInput")
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"ErrLocationNotFound", ErrLocationNotFound, ErrNotFound},
		{"ErrDataUnavailable", ErrDataUnavailable, ErrUnavailable},
		{"ErrTimeout", ErrTimeout, ErrUnavailable},
		{"ErrNoScene", ErrNoScene, ErrDataUnavailable},
		{"ErrGeometryMismatch", ErrGeometryMismatch, ErrUnsupported},
		{"ErrUnsupportedProjection", ErrUnsupportedProjection, ErrUnsupported},
		{"ErrInvalidPoint", ErrInvalidPoint, ErrInvalidInput},
		{"ErrReferenceNotLoaded", ErrReferenceNotLoaded, ErrUnavailable},
		{"ErrNotReady", ErrNotReady, ErrUnavailable},
		{"ErrStorageUnavailable", ErrStorageUnavailable, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.wantErr) {
				t.Errorf("%s should wrap %v", tt.name, tt.wantErr)
			}
		})
	}

	if errors.Is(ErrTimeout, ErrNotFound) {
		t.Error("ErrTimeout must not be treated as not found")
	}
}
