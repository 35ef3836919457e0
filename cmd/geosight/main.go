// Package main provides the entry point for the geosight site analysis service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/geosight/internal/app"
	"github.com/jobrunner/geosight/internal/config"
	"github.com/jobrunner/geosight/internal/domain"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "geosight",
	Short: "geosight - geospatial site analysis service",
	Long: `geosight reports on the land around a coordinate or place name.

It combines satellite band indices, land cover, soil texture, water
presence and climate aggregates into a single site report and serves
it over a REST API.

Features:
  - Spectral index classification (NDVI, NDWI, NDBI)
  - USDA soil texture with crop recommendations
  - Nearest named water body from OSM and reference polygons
  - Reference datasets from local, AWS S3, Azure or HTTP storage
  - Prometheus metrics`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("geosight %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Print a site report for a place or coordinate",
	Example: `  geosight analyze --place "Lake Constance"
  geosight analyze --lat 47.6 --lon 9.4`,
	RunE: runAnalyze,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().String("project", "", "earth engine cloud project")
	rootCmd.PersistentFlags().String("credentials", "", "service account key file")
	rootCmd.PersistentFlags().String("projection", "spatialite", "projection engine (spatialite, builtin)")

	// Server flags
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().Int("port", 8080, "server port")
	rootCmd.Flags().Float64("rate-limit", 0, "API requests per second (0 disables)")

	// Storage flags
	rootCmd.PersistentFlags().String("storage-type", "local", "reference storage type (local, s3, azure, http)")
	rootCmd.PersistentFlags().String("storage-path", "./reference", "local reference storage path")

	// CORS flags
	rootCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")

	// Analyze flags
	analyzeCmd.Flags().String("place", "", "place name to geocode")
	analyzeCmd.Flags().Float64("lat", 0, "latitude in degrees")
	analyzeCmd.Flags().Float64("lon", 0, "longitude in degrees")
	analyzeCmd.MarkFlagsRequiredTogether("lat", "lon")
	analyzeCmd.MarkFlagsMutuallyExclusive("place", "lat")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("backend.project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("backend.credentials.file", rootCmd.PersistentFlags().Lookup("credentials"))
	_ = viper.BindPFlag("projection.engine", rootCmd.PersistentFlags().Lookup("projection"))
	_ = viper.BindPFlag("server.host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.rate_limit", rootCmd.Flags().Lookup("rate-limit"))
	_ = viper.BindPFlag("storage.type", rootCmd.PersistentFlags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local_path", rootCmd.PersistentFlags().Lookup("storage-path"))
	_ = viper.BindPFlag("server.cors.allowed_origins", rootCmd.Flags().Lookup("cors"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting geosight",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"reference", cfg.Reference.Enabled,
		"storage_type", cfg.Storage.Type,
		"projection", cfg.Projection.Engine,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize application
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address())
		if err := application.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		cancel()
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down server")
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	place, _ := cmd.Flags().GetString("place")
	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	place = strings.TrimSpace(place)
	if place == "" && !cmd.Flags().Changed("lat") {
		return errors.New("either --place or --lat and --lon is required")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The report goes to stdout, logs to stderr.
	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = application.Close() }()

	// A one-shot run waits for the reference datasets instead of racing them.
	if err := application.Catalog.Load(ctx); err != nil {
		logger.Warn("reference datasets unavailable", "error", err)
	}

	var report domain.SiteReport
	if place != "" {
		report, err = application.Analysis.AnalyzePlace(ctx, place)
	} else {
		var p domain.GeoPoint
		if p, err = domain.NewGeoPoint(lat, lon); err != nil {
			return err
		}
		report, err = application.Analysis.Analyze(ctx, p)
	}
	if err != nil {
		return fmt.Errorf("analyzing site: %w", err)
	}

	return printJSON(cmd.OutOrStdout(), report)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
