// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/jobrunner/geosight/internal/adapters/earthengine"
	"github.com/jobrunner/geosight/internal/adapters/geopackage"
	httpAdapter "github.com/jobrunner/geosight/internal/adapters/http"
	"github.com/jobrunner/geosight/internal/adapters/kafka"
	"github.com/jobrunner/geosight/internal/adapters/metrics"
	"github.com/jobrunner/geosight/internal/adapters/nominatim"
	"github.com/jobrunner/geosight/internal/adapters/overpass"
	"github.com/jobrunner/geosight/internal/adapters/projection"
	"github.com/jobrunner/geosight/internal/adapters/shapefile"
	"github.com/jobrunner/geosight/internal/adapters/storage"
	"github.com/jobrunner/geosight/internal/application"
	"github.com/jobrunner/geosight/internal/config"
	"github.com/jobrunner/geosight/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Storage    output.ObjectStorage
	Catalog    *application.ReferenceCatalog
	Analysis   *application.AnalysisService
	Health     *application.HealthService
	HTTPServer *httpAdapter.Server
	Metrics    *metrics.Collector

	closers []io.Closer
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	var collector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("geosight", nil)
		collector = app.Metrics
	}

	components := map[string]string{
		"backend":    "earthengine",
		"poi":        "overpass",
		"geocoder":   "nominatim",
		"publisher":  "disabled",
		"storage":    "disabled",
	}

	// Reference datasets
	if cfg.Reference.Enabled {
		store, err := initStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		app.Storage = store
		components["storage"] = cfg.Storage.Type
	}
	app.Catalog = application.NewReferenceCatalog(
		app.Storage,
		[]output.ReferenceLoader{
			geopackage.NewLoader(cfg.Reference.Layer, cfg.Reference.NameAttribute),
			shapefile.NewLoader(cfg.Reference.NameAttribute),
		},
		collector,
		logger,
		cfg.Reference.CacheDir,
		cfg.Reference.Key,
		cfg.Reference.StorageTimeout,
	)

	transformer, engine, err := app.initTransformer(ctx, cfg.Projection)
	if err != nil {
		return nil, fmt.Errorf("initializing projection: %w", err)
	}
	components["projection"] = engine

	backend, err := initBackend(cfg.Backend, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing backend: %w", err)
	}

	poi := overpass.NewClient(overpass.Config{
		BaseURL: cfg.POI.BaseURL,
		Rate:    cfg.POI.Rate,
		Burst:   cfg.POI.Burst,
		Timeout: cfg.POI.Timeout,
	}, logger)

	geocoder := nominatim.NewCachedGeocoder(nominatim.NewClient(nominatim.Config{
		BaseURL:   cfg.Geocoder.BaseURL,
		UserAgent: cfg.Geocoder.UserAgent,
		Rate:      cfg.Geocoder.Rate,
		Timeout:   cfg.Geocoder.Timeout,
	}, logger), cfg.Geocoder.CacheSize)

	var publisher output.ReportPublisher
	if cfg.Publisher.Enabled {
		p := kafka.NewPublisher(cfg.Publisher.Brokers, cfg.Publisher.Topic, logger)
		app.closers = append(app.closers, p)
		publisher = p
		components["publisher"] = "kafka"
	}

	// Application services
	clock := clockwork.NewRealClock()
	timeout := cfg.Analysis.CallTimeout
	thresholds := cfg.Classification.Thresholds()

	aggregator := application.NewRegionAggregator(backend, collector, logger, timeout)

	landCover := application.NewLandCoverAnalyzer(
		backend,
		aggregator,
		collector,
		clock,
		logger,
		timeout,
		thresholds,
		application.SceneOptions{
			Collection: cfg.Scene.Collection,
			Lookback:   cfg.Scene.Lookback,
			Scale:      cfg.Scene.Scale,
		},
		cfg.Analysis.LandCoverGridSize,
		sourceOptions(cfg.Analysis.WorldCover),
	)

	water := application.NewWaterBodyResolver(
		poi,
		app.Catalog,
		transformer,
		collector,
		logger,
		timeout,
		cfg.Reference.Window,
	)

	app.Analysis = application.NewAnalysisService(
		landCover,
		aggregator,
		water,
		backend,
		geocoder,
		publisher,
		collector,
		clock,
		logger,
		application.AnalysisServiceConfig{
			Soil:                 sourceOptions(cfg.Soil.Texture),
			Occurrence:           sourceOptions(cfg.Water.Occurrence),
			WaterMask:            sourceOptions(cfg.Water.Mask),
			PresenceThresholdPct: cfg.Water.PresenceThresholdPct,
			SearchRadius:         cfg.Water.SearchRadius,
			Rainfall:             sourceOptions(cfg.Climate.Rainfall),
			SoilMoisture:         sourceOptions(cfg.Climate.SoilMoisture),
			WorldCover:           sourceOptions(cfg.Analysis.WorldCover),
			Thresholds:           thresholds,
			MapZoom:              cfg.Analysis.MapZoom,
			MapRadius:            cfg.Analysis.MapRadius,
			CallTimeout:          timeout,
		},
	)

	app.Health = application.NewHealthService(app.Catalog, components)

	var instrumentation httpAdapter.Instrumentation
	if app.Metrics != nil {
		instrumentation = app.Metrics
	}
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		httpAdapter.Services{
			Analyzer: app.Analysis,
			Maps:     app.Analysis,
			Catalog:  app.Catalog,
			Health:   app.Health,
		},
		thresholds,
		instrumentation,
		cfg.Metrics.Path,
		logger,
	)

	return app, nil
}

// Start loads the reference datasets in the background and serves HTTP
// until shutdown. Without storage the catalog settles as absent.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.Catalog.Load(ctx); err != nil {
			a.Logger.Warn("reference datasets unavailable", "error", err)
		}
	}()

	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	return a.Close()
}

// Close releases publishers and database handles.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Logger.Error("close error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}

// openSpatiaLite is replaced in tests.
var openSpatiaLite = func(ctx context.Context) (*geopackage.Transformer, error) {
	return geopackage.NewTransformer(ctx)
}

// initTransformer returns the coordinate transformer and the name of the
// engine in use. Without the SpatiaLite extension the builtin engine serves.
func (a *App) initTransformer(ctx context.Context, cfg config.ProjectionConfig) (output.CoordinateTransformer, string, error) {
	switch cfg.Engine {
	case "spatialite", "":
		t, err := openSpatiaLite(ctx)
		if err != nil {
			a.Logger.Warn("SpatiaLite unavailable, using builtin projection", "error", err)
			return projection.NewTransformer(), "builtin", nil
		}
		a.closers = append(a.closers, t)
		return t, "spatialite", nil
	case "builtin":
		return projection.NewTransformer(), "builtin", nil
	default:
		return nil, "", fmt.Errorf("unknown projection engine: %s", cfg.Engine)
	}
}

// initBackend creates the Earth Engine client. A static access token skips
// the service-account exchange.
func initBackend(cfg config.BackendConfig, logger *slog.Logger) (*earthengine.Client, error) {
	var tokens earthengine.TokenSource
	if cfg.AccessToken != "" {
		tokens = earthengine.StaticToken(cfg.AccessToken)
	} else {
		sa, err := earthengine.NewServiceAccount(earthengine.ServiceAccountConfig{
			ClientEmail:  cfg.Credentials.ClientEmail,
			PrivateKeyID: cfg.Credentials.PrivateKeyID,
			PrivateKey:   cfg.Credentials.PrivateKey,
			TokenURI:     cfg.Credentials.TokenURI,
		}, &http.Client{Timeout: cfg.Timeout}, clockwork.NewRealClock())
		if err != nil {
			return nil, err
		}
		tokens = sa
	}

	return earthengine.NewClient(earthengine.Config{
		BaseURL: cfg.BaseURL,
		Project: cfg.Project,
		Timeout: cfg.Timeout,
	}, tokens, logger), nil
}

func sourceOptions(c config.SourceConfig) application.SourceOptions {
	return application.SourceOptions{
		Source: c.DataSource(),
		Radius: c.Radius,
		Scale:  c.Scale,
	}
}

// initStorage initializes the appropriate storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch output.StorageType(cfg.Type) {
	case output.StorageTypeLocal:
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case output.StorageTypeS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case output.StorageTypeAzure:
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case output.StorageTypeHTTP:
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
