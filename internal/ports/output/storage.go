// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"
	"path"
	"strings"
)

// ObjectStorage defines the secondary port for object storage operations.
type ObjectStorage interface {
	// List returns all reference dataset files in the storage.
	List(ctx context.Context) ([]StorageObject, error)

	// Download downloads an object to the local filesystem.
	Download(ctx context.Context, key string, dest string) error

	// GetReader returns a reader for the given object.
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// StorageObject represents a file in object storage.
type StorageObject struct {
	Key          string // Object key/path
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
}

// StorageType represents the type of storage backend.
type StorageType string

// Storage backends.
const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeHTTP  StorageType = "http"
	StorageTypeLocal StorageType = "local"
)

// ReferenceExtensions are the file extensions of loadable reference datasets.
var ReferenceExtensions = []string{".shp", ".gpkg"}

// ShapefileSidecars are the companion files downloaded with a .shp.
var ShapefileSidecars = []string{".shx", ".dbf", ".prj", ".cpg"}

// IsReferenceFile reports whether an object key names a reference dataset.
func IsReferenceFile(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	for _, e := range ReferenceExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
