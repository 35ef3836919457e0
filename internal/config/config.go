// Package config provides configuration management using Viper.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jobrunner/geosight/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Backend        BackendConfig        `mapstructure:"backend"`
	Geocoder       GeocoderConfig       `mapstructure:"geocoder"`
	POI            POIConfig            `mapstructure:"poi"`
	Reference      ReferenceConfig      `mapstructure:"reference"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Projection     ProjectionConfig     `mapstructure:"projection"`
	Classification ClassificationConfig `mapstructure:"classification"`
	Scene          SceneConfig          `mapstructure:"scene"`
	Soil           SoilConfig           `mapstructure:"soil"`
	Water          WaterConfig          `mapstructure:"water"`
	Climate        ClimateConfig        `mapstructure:"climate"`
	Analysis       AnalysisConfig       `mapstructure:"analysis"`
	Publisher      PublisherConfig      `mapstructure:"publisher"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst       int           `mapstructure:"rate_burst"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// BackendConfig holds the earth-observation backend configuration.
type BackendConfig struct {
	BaseURL     string            `mapstructure:"base_url"`
	Project     string            `mapstructure:"project"`
	AccessToken string            `mapstructure:"access_token"` // static token, skips service account auth
	Timeout     time.Duration     `mapstructure:"timeout"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
}

// CredentialsConfig is a service-account key. Either File points at a JSON
// key file or the fields are set directly.
type CredentialsConfig struct {
	File         string `mapstructure:"file" json:"-"`
	Type         string `mapstructure:"type" json:"type"`
	ProjectID    string `mapstructure:"project_id" json:"project_id"`
	PrivateKeyID string `mapstructure:"private_key_id" json:"private_key_id"`
	PrivateKey   string `mapstructure:"private_key" json:"private_key"`
	ClientEmail  string `mapstructure:"client_email" json:"client_email"`
	TokenURI     string `mapstructure:"token_uri" json:"token_uri"`
}

// Resolve fills the fields from File when one is configured. Fields set
// directly take precedence over the file.
func (c *CredentialsConfig) Resolve() error {
	if c.File == "" {
		return nil
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("reading credentials file: %w", err)
	}
	var fromFile CredentialsConfig
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("parsing credentials file: %w", err)
	}

	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&c.Type, fromFile.Type)
	fill(&c.ProjectID, fromFile.ProjectID)
	fill(&c.PrivateKeyID, fromFile.PrivateKeyID)
	fill(&c.PrivateKey, fromFile.PrivateKey)
	fill(&c.ClientEmail, fromFile.ClientEmail)
	fill(&c.TokenURI, fromFile.TokenURI)
	return nil
}

// Missing returns the names of required fields that are empty.
func (c *CredentialsConfig) Missing() []string {
	required := []struct {
		name  string
		value string
	}{
		{"type", c.Type},
		{"project_id", c.ProjectID},
		{"private_key_id", c.PrivateKeyID},
		{"private_key", c.PrivateKey},
		{"client_email", c.ClientEmail},
		{"token_uri", c.TokenURI},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	return missing
}

// GeocoderConfig holds Nominatim configuration.
type GeocoderConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Rate      float64       `mapstructure:"rate"` // requests per second
	CacheSize int           `mapstructure:"cache_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// POIConfig holds Overpass configuration.
type POIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Rate    float64       `mapstructure:"rate"`
	Burst   int           `mapstructure:"burst"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReferenceConfig holds reference water polygon dataset configuration.
type ReferenceConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Key           string  `mapstructure:"key"` // object key; empty loads every reference file
	CacheDir      string  `mapstructure:"cache_dir"`
	Layer         string  `mapstructure:"layer"` // GeoPackage layer; empty uses the first
	NameAttribute string  `mapstructure:"name_attribute"`
	Window        float64 `mapstructure:"window"` // candidate search window in metres

	StorageTimeout time.Duration `mapstructure:"storage_timeout"` // per list or download
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string      `mapstructure:"type"` // s3, azure, http, local
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
	HTTP      HTTPConfig  `mapstructure:"http"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP download configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"` // default: index.txt
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// ProjectionConfig selects the coordinate transformation engine. SpatiaLite
// falls back to the builtin engine when the extension cannot be loaded.
type ProjectionConfig struct {
	Engine string `mapstructure:"engine"` // builtin, spatialite
}

// ClassificationConfig holds the land cover rule thresholds.
type ClassificationConfig struct {
	Vegetation float64 `mapstructure:"vegetation"`
	Water      float64 `mapstructure:"water"`
	BuiltUp    float64 `mapstructure:"built_up"`
}

// Thresholds converts the configuration into domain thresholds.
func (c ClassificationConfig) Thresholds() domain.Thresholds {
	return domain.Thresholds{Vegetation: c.Vegetation, Water: c.Water, BuiltUp: c.BuiltUp}
}

// SceneConfig holds satellite scene selection configuration.
type SceneConfig struct {
	Collection string        `mapstructure:"collection"`
	Lookback   time.Duration `mapstructure:"lookback"`
	Scale      float64       `mapstructure:"scale"`
}

// SourceConfig is a reducible backend band.
type SourceConfig struct {
	Dataset    string  `mapstructure:"dataset"`
	Band       string  `mapstructure:"band"`
	Collection bool    `mapstructure:"collection"`
	Radius     float64 `mapstructure:"radius"`
	Scale      float64 `mapstructure:"scale"`
}

// DataSource returns the backend data source.
func (s SourceConfig) DataSource() domain.DataSource {
	return domain.DataSource{Dataset: s.Dataset, Band: s.Band, Collection: s.Collection}
}

// SoilConfig holds soil texture sampling configuration.
type SoilConfig struct {
	Texture SourceConfig `mapstructure:"texture"`
}

// WaterConfig holds water presence and naming configuration.
type WaterConfig struct {
	PresenceThresholdPct float64      `mapstructure:"presence_threshold_pct"`
	SearchRadius         float64      `mapstructure:"search_radius"`
	Occurrence           SourceConfig `mapstructure:"occurrence"`
	Mask                 SourceConfig `mapstructure:"mask"`
}

// ClimateConfig holds climate aggregate configuration.
type ClimateConfig struct {
	Rainfall     SourceConfig `mapstructure:"rainfall"`
	SoilMoisture SourceConfig `mapstructure:"soil_moisture"`
}

// AnalysisConfig holds orchestration configuration.
type AnalysisConfig struct {
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	LandCoverGridSize float64       `mapstructure:"landcover_grid_radius"` // metres; 0 disables the grid
	WorldCover        SourceConfig  `mapstructure:"worldcover"`
	MapZoom           int           `mapstructure:"map_zoom"`
	MapRadius         float64       `mapstructure:"map_radius"` // metres clipped around the point
}

// PublisherConfig holds Kafka report publishing configuration.
type PublisherConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 90*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.cors.allowed_origins", []string{})
	viper.SetDefault("server.rate_limit", 0.0)
	viper.SetDefault("server.rate_burst", 10)

	// Backend defaults
	viper.SetDefault("backend.base_url", "https://earthengine.googleapis.com/v1")
	viper.SetDefault("backend.timeout", 60*time.Second)
	viper.SetDefault("backend.credentials.token_uri", "https://oauth2.googleapis.com/token")

	// Geocoder defaults (Nominatim usage policy: at most one request per second)
	viper.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	viper.SetDefault("geocoder.user_agent", "geosight")
	viper.SetDefault("geocoder.rate", 1.0)
	viper.SetDefault("geocoder.cache_size", 1024)
	viper.SetDefault("geocoder.timeout", 10*time.Second)

	// POI defaults
	viper.SetDefault("poi.base_url", "https://overpass-api.de/api/interpreter")
	viper.SetDefault("poi.rate", 1.0)
	viper.SetDefault("poi.burst", 2)
	viper.SetDefault("poi.timeout", 30*time.Second)

	// Reference dataset defaults
	viper.SetDefault("reference.enabled", true)
	viper.SetDefault("reference.cache_dir", "./data")
	viper.SetDefault("reference.name_attribute", "name")
	viper.SetDefault("reference.window", 50000.0)
	viper.SetDefault("reference.storage_timeout", 5*time.Minute)

	// Storage defaults
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local_path", "./reference")
	viper.SetDefault("storage.http.index_file", "index.txt")
	viper.SetDefault("storage.http.timeout", 5*time.Minute)

	viper.SetDefault("projection.engine", "spatialite")

	// Classification defaults
	viper.SetDefault("classification.vegetation", domain.DefaultVegetationThreshold)
	viper.SetDefault("classification.water", domain.DefaultWaterThreshold)
	viper.SetDefault("classification.built_up", domain.DefaultBuiltUpThreshold)

	// Scene defaults
	viper.SetDefault("scene.collection", "COPERNICUS/S2_SR_HARMONIZED")
	viper.SetDefault("scene.lookback", 90*24*time.Hour)
	viper.SetDefault("scene.scale", 10.0)

	// Soil defaults
	viper.SetDefault("soil.texture.dataset", "OpenLandMap/SOL/SOL_TEXTURE-CLASS_USDA-TT_M/v02")
	viper.SetDefault("soil.texture.band", "b0")
	viper.SetDefault("soil.texture.radius", 0.0)
	viper.SetDefault("soil.texture.scale", 250.0)

	// Water defaults
	viper.SetDefault("water.presence_threshold_pct", domain.DefaultPresenceThresholdPct)
	viper.SetDefault("water.search_radius", 5000.0)
	viper.SetDefault("water.occurrence.dataset", "JRC/GSW1_4/GlobalSurfaceWater")
	viper.SetDefault("water.occurrence.band", "occurrence")
	viper.SetDefault("water.occurrence.radius", 5000.0)
	viper.SetDefault("water.occurrence.scale", 30.0)
	viper.SetDefault("water.mask.dataset", "MODIS/006/MOD44W")
	viper.SetDefault("water.mask.collection", true)
	viper.SetDefault("water.mask.band", "water_mask")
	viper.SetDefault("water.mask.radius", 5000.0)
	viper.SetDefault("water.mask.scale", 250.0)

	// Climate defaults
	viper.SetDefault("climate.rainfall.dataset", "UCSB-CHG/CHIRPS/DAILY")
	viper.SetDefault("climate.rainfall.collection", true)
	viper.SetDefault("climate.rainfall.band", "precipitation")
	viper.SetDefault("climate.rainfall.radius", 0.0)
	viper.SetDefault("climate.rainfall.scale", 5000.0)
	viper.SetDefault("climate.soil_moisture.dataset", "NASA_USDA/HSL/SMAP10KM_soil_moisture")
	viper.SetDefault("climate.soil_moisture.collection", true)
	viper.SetDefault("climate.soil_moisture.band", "ssm")
	viper.SetDefault("climate.soil_moisture.radius", 0.0)
	viper.SetDefault("climate.soil_moisture.scale", 5000.0)

	// Analysis defaults
	viper.SetDefault("analysis.call_timeout", 20*time.Second)
	viper.SetDefault("analysis.landcover_grid_radius", 0.0)
	viper.SetDefault("analysis.worldcover.dataset", "ESA/WorldCover/v100")
	viper.SetDefault("analysis.worldcover.collection", true)
	viper.SetDefault("analysis.worldcover.band", "Map")
	viper.SetDefault("analysis.worldcover.radius", 1000.0)
	viper.SetDefault("analysis.worldcover.scale", 10.0)
	viper.SetDefault("analysis.map_zoom", 14)
	viper.SetDefault("analysis.map_radius", 1000.0)

	// Publisher defaults
	viper.SetDefault("publisher.enabled", false)
	viper.SetDefault("publisher.topic", "site-reports")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from a .env file, the environment and a config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// A missing .env file is not an error.
	_ = godotenv.Load()

	// Environment variable binding
	viper.SetEnvPrefix("GEOSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/geosight")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Backend.Credentials.Resolve(); err != nil {
		return nil, fmt.Errorf("loading backend credentials: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Backend.BaseURL == "" {
		return &domain.ConfigError{Field: "backend.base_url", Message: "required"}
	}
	if c.Backend.Project == "" {
		return &domain.ConfigError{Field: "backend.project", Message: "required"}
	}
	if c.Backend.AccessToken == "" {
		if missing := c.Backend.Credentials.Missing(); len(missing) > 0 {
			return &domain.ConfigError{
				Field:   "backend.credentials",
				Message: "missing " + strings.Join(missing, ", "),
			}
		}
	}

	th := c.Classification
	for name, v := range map[string]float64{
		"classification.vegetation": th.Vegetation,
		"classification.water":      th.Water,
		"classification.built_up":   th.BuiltUp,
	} {
		if v < -1 || v > 1 {
			return &domain.ConfigError{Field: name, Message: "must be within [-1, 1]"}
		}
	}
	if c.Water.PresenceThresholdPct < 0 || c.Water.PresenceThresholdPct > 100 {
		return &domain.ConfigError{Field: "water.presence_threshold_pct", Message: "must be within [0, 100]"}
	}
	if c.Water.SearchRadius <= 0 {
		return &domain.ConfigError{Field: "water.search_radius", Message: "must be positive"}
	}
	if c.Analysis.CallTimeout <= 0 {
		return &domain.ConfigError{Field: "analysis.call_timeout", Message: "must be positive"}
	}

	if c.POI.Timeout != 0 && c.POI.Timeout < time.Second {
		return &domain.ConfigError{Field: "poi.timeout", Message: "must be at least 1s"}
	}

	switch c.Projection.Engine {
	case "builtin", "spatialite":
	default:
		return fmt.Errorf("unknown projection engine: %s", c.Projection.Engine)
	}

	if c.Publisher.Enabled {
		if len(c.Publisher.Brokers) == 0 {
			return &domain.ConfigError{Field: "publisher.brokers", Message: "required when publishing is enabled"}
		}
		if c.Publisher.Topic == "" {
			return &domain.ConfigError{Field: "publisher.topic", Message: "required when publishing is enabled"}
		}
	}

	if !c.Reference.Enabled {
		return nil
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("S3 region is required")
		}
	case "azure":
		if c.Storage.Azure.Container == "" {
			return fmt.Errorf("azure container is required")
		}
		if c.Storage.Azure.AccountName == "" && c.Storage.Azure.ConnectionString == "" {
			return fmt.Errorf("azure account name or connection string is required")
		}
	case "http":
		if c.Storage.HTTP.BaseURL == "" {
			return fmt.Errorf("HTTP base URL is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
