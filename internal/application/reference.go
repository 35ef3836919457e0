// Package application contains the application services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/input"
	"github.com/jobrunner/geosight/internal/ports/output"
)

// ReferenceCatalog loads the reference water polygon datasets once per
// process and shares them read-only across queries.
type ReferenceCatalog struct {
	mu       sync.RWMutex
	once     sync.Once
	done     chan struct{}
	status   domain.ReferenceStatus
	datasets []*domain.ReferenceDataset
	sources  []string
	err      error

	loaders  []output.ReferenceLoader
	storage  output.ObjectStorage
	metrics  output.MetricsCollector
	logger   *slog.Logger
	cacheDir string
	key      string
	timeout  time.Duration // per storage operation; 0 is unbounded
}

// NewReferenceCatalog creates a new reference catalog. A nil storage
// leaves the catalog permanently absent. When key is set only that object
// is loaded; otherwise every reference file in storage is. Each storage
// list, existence check and download is bounded by storageTimeout.
func NewReferenceCatalog(
	storage output.ObjectStorage,
	loaders []output.ReferenceLoader,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cacheDir string,
	key string,
	storageTimeout time.Duration,
) *ReferenceCatalog {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &ReferenceCatalog{
		done:     make(chan struct{}),
		status:   domain.ReferenceStatusPending,
		loaders:  loaders,
		storage:  storage,
		metrics:  metrics,
		logger:   logger,
		cacheDir: cacheDir,
		key:      key,
		timeout:  storageTimeout,
	}
}

// Datasets returns the loaded datasets, starting the load on first use.
// Callers wait for the single load until their context ends; the load
// itself keeps running for later callers.
func (c *ReferenceCatalog) Datasets(ctx context.Context) ([]*domain.ReferenceDataset, error) {
	c.once.Do(func() {
		// The load outlives the request that triggered it.
		loadCtx := context.WithoutCancel(ctx)
		go func() {
			defer close(c.done)
			c.load(loadCtx)
		}()
	})

	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for reference datasets: %w", ctx.Err())
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.status {
	case domain.ReferenceStatusReady:
		return c.datasets, nil
	case domain.ReferenceStatusAbsent:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrReferenceNotLoaded, c.err)
	}
}

// Load triggers the one-time load, typically at startup.
func (c *ReferenceCatalog) Load(ctx context.Context) error {
	_, err := c.Datasets(ctx)
	return err
}

// Info implements input.ReferenceCatalog.
func (c *ReferenceCatalog) Info(_ context.Context) input.ReferenceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := input.ReferenceInfo{
		Status:  c.status,
		Sources: append([]string(nil), c.sources...),
	}
	for _, ds := range c.datasets {
		info.Features += ds.Len()
		if info.SRID == 0 {
			info.SRID = ds.SRID
		}
	}
	if c.err != nil {
		info.Error = c.err.Error()
	}
	return info
}

// Status returns the load state.
func (c *ReferenceCatalog) Status() domain.ReferenceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *ReferenceCatalog) setStatus(status domain.ReferenceStatus, err error) {
	c.mu.Lock()
	c.status = status
	c.err = err
	c.mu.Unlock()
}

func (c *ReferenceCatalog) load(ctx context.Context) {
	if c.storage == nil {
		c.logger.Info("no reference storage configured")
		c.setStatus(domain.ReferenceStatusAbsent, nil)
		return
	}

	c.setStatus(domain.ReferenceStatusLoading, nil)
	c.logger.Info("loading reference datasets from storage")

	keys, err := c.referenceKeys(ctx)
	if err != nil {
		c.logger.Error("failed to list reference datasets", "error", err)
		c.setStatus(domain.ReferenceStatusFailed, err)
		return
	}
	if len(keys) == 0 {
		c.logger.Warn("no reference datasets found")
		c.setStatus(domain.ReferenceStatusAbsent, nil)
		return
	}

	var (
		datasets []*domain.ReferenceDataset
		sources  []string
		errs     []error
		features int
	)
	for _, key := range keys {
		ds, err := c.loadOne(ctx, key)
		if err != nil {
			c.logger.Error("failed to load reference dataset", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		datasets = append(datasets, ds)
		sources = append(sources, key)
		features += ds.Len()
		c.logger.Info("reference dataset loaded",
			"key", key,
			"srid", ds.SRID,
			"features", ds.Len(),
		)
	}

	c.mu.Lock()
	c.datasets = datasets
	c.sources = sources
	c.mu.Unlock()
	c.metrics.SetReferenceFeatures(features)

	if len(datasets) == 0 {
		c.setStatus(domain.ReferenceStatusFailed, errors.Join(errs...))
		return
	}
	// Partially loaded catalogs still serve queries.
	c.setStatus(domain.ReferenceStatusReady, errors.Join(errs...))
}

// referenceKeys returns the object keys to load, sorted.
func (c *ReferenceCatalog) referenceKeys(ctx context.Context) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	objects, err := c.storage.List(ctx)
	c.metrics.ObserveStorageDuration("list", time.Since(start))
	c.metrics.IncStorageOperations("list", err == nil)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, obj := range objects {
		if !output.IsReferenceFile(obj.Key) {
			continue
		}
		if c.key != "" && obj.Key != c.key {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// loadOne downloads a dataset (with its shapefile sidecars) and reads it.
func (c *ReferenceCatalog) loadOne(ctx context.Context, key string) (*domain.ReferenceDataset, error) {
	localPath := filepath.Join(c.cacheDir, filepath.FromSlash(key))

	loader := c.loaderFor(localPath)
	if loader == nil {
		return nil, fmt.Errorf("no loader for %s: %w", filepath.Ext(key), domain.ErrUnsupported)
	}

	if err := c.download(ctx, key, localPath); err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(key), ".shp") {
		base := strings.TrimSuffix(key, filepath.Ext(key))
		localBase := strings.TrimSuffix(localPath, filepath.Ext(localPath))
		for _, ext := range output.ShapefileSidecars {
			exists, err := c.exists(ctx, base+ext)
			if err != nil || !exists {
				continue
			}
			if err := c.download(ctx, base+ext, localBase+ext); err != nil {
				return nil, err
			}
		}
	}

	ds, err := loader.Load(ctx, localPath)
	if err != nil {
		return nil, err
	}
	if ds.ID == "" {
		ds.ID = deriveDatasetID(key)
	}
	return ds, nil
}

func (c *ReferenceCatalog) exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.storage.Exists(ctx, key)
}

func (c *ReferenceCatalog) download(ctx context.Context, key, dest string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := c.storage.Download(ctx, key, dest)
	c.metrics.ObserveStorageDuration("download", time.Since(start))
	c.metrics.IncStorageOperations("download", err == nil)
	if err != nil {
		return &domain.StorageError{Operation: "download", Key: key, Err: err}
	}
	return nil
}

func (c *ReferenceCatalog) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *ReferenceCatalog) loaderFor(path string) output.ReferenceLoader {
	for _, l := range c.loaders {
		if l.Supports(path) {
			return l
		}
	}
	return nil
}

// deriveDatasetID extracts a dataset ID from a file path or object key.
func deriveDatasetID(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
