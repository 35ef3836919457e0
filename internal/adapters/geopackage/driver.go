// Package geopackage reads reference water polygons from GeoPackage files
// and reprojects geometries with SpatiaLite.
package geopackage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3_with_extensions"

const spatiaLiteEntryPoint = "sqlite3_modspatialite_init"

// Ensure sqlite3 driver is registered with extension support.
func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return loadFirst(getSpatiaLiteLibraryPaths(), func(path string) error {
				return conn.LoadExtension(path, spatiaLiteEntryPoint)
			})
		},
	})
}

// loadFirst stops at the first path that loads. Only platform paths that
// exist on this host are expected to succeed.
func loadFirst(paths []string, load func(path string) error) error {
	var errs []error
	for _, path := range paths {
		err := load(path)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}
	return fmt.Errorf("loading SpatiaLite: %w", errors.Join(errs...))
}

// getSpatiaLiteLibraryPaths returns a list of paths to try for loading SpatiaLite.
// The environment variable wins over the platform-specific paths.
func getSpatiaLiteLibraryPaths() []string {
	if envPath := os.Getenv("SPATIALITE_LIBRARY_PATH"); envPath != "" {
		return []string{envPath}
	}

	return []string{
		// Alpine Linux (Docker containers)
		"/usr/lib/mod_spatialite.so",
		"/usr/lib/mod_spatialite.so.8",

		// Debian/Ubuntu amd64
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so",
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so.8",

		// Debian/Ubuntu arm64
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so",
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so.8",

		// macOS Homebrew
		"/usr/local/lib/mod_spatialite.dylib",
		"/opt/homebrew/lib/mod_spatialite.dylib",

		// Generic names (resolved via LD_LIBRARY_PATH)
		"mod_spatialite.so",
		"mod_spatialite",
		"mod_spatialite.dylib",
	}
}

// checkSpatiaLite verifies that the extension was loaded by the driver.
func checkSpatiaLite(ctx context.Context, db *sql.DB) error {
	var version string
	if err := db.QueryRowContext(ctx, "SELECT spatialite_version()").Scan(&version); err != nil {
		return fmt.Errorf("SpatiaLite extension not available: %w", err)
	}
	return nil
}
