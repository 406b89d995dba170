//nolint:lll
package config

import (
	"time"

	"github.com/MeKo-Tech/bookscan/internal/camera"
)

// Config represents the complete configuration for bookscan.
// It covers every command (isbn, scan, watch, lookup, history, serve) and
// is loaded from configuration files, environment variables and flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Live and still-image scanning
	Scanner ScannerConfig `mapstructure:"scanner" yaml:"scanner" json:"scanner"`

	// Video sources
	Camera CameraConfig `mapstructure:"camera" yaml:"camera" json:"camera"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Used-price lookups
	Price PriceConfig `mapstructure:"price" yaml:"price" json:"price"`

	// Book metadata lookups
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata" json:"metadata"`

	// Scan history
	Storage StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`
}

// ScannerConfig contains acquisition and decoding settings.
type ScannerConfig struct {
	AcquireTimeout    time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout" json:"acquire_timeout"`
	DecodeInterval    time.Duration `mapstructure:"decode_interval" yaml:"decode_interval" json:"decode_interval"`
	FacingMode        string        `mapstructure:"facing_mode" yaml:"facing_mode" json:"facing_mode"`
	Width             int           `mapstructure:"width" yaml:"width" json:"width"`
	Height            int           `mapstructure:"height" yaml:"height" json:"height"`
	CameraAPI         string        `mapstructure:"camera_api" yaml:"camera_api" json:"camera_api"`
	Formats           []string      `mapstructure:"formats" yaml:"formats" json:"formats"`
	TryHarder         bool          `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
	MaxImageDimension int           `mapstructure:"max_image_dimension" yaml:"max_image_dimension" json:"max_image_dimension"`
	PDFPages          string        `mapstructure:"pdf_pages" yaml:"pdf_pages" json:"pdf_pages"`
	PDFPassword       string        `mapstructure:"pdf_password" yaml:"pdf_password,omitempty" json:"-"`
}

// CameraConfig lists the video sources a session may open.
type CameraConfig struct {
	Sources       []camera.SourceConfig `mapstructure:"sources" yaml:"sources" json:"sources"`
	DefaultSource string                `mapstructure:"default_source" yaml:"default_source" json:"default_source"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string   `mapstructure:"host" yaml:"host" json:"host"`
	Port            int      `mapstructure:"port" yaml:"port" json:"port"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	MaxUploadMB     int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int      `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxBatch        int      `mapstructure:"max_batch" yaml:"max_batch" json:"max_batch"`

	// Rate limiting of the price endpoints
	RateLimitEnabled  bool  `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// PriceConfig contains storefront scraping settings.
type PriceConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Currency       string        `mapstructure:"currency" yaml:"currency" json:"currency"`
	ConversionRate float64       `mapstructure:"conversion_rate" yaml:"conversion_rate" json:"conversion_rate"`
	MinDelay       time.Duration `mapstructure:"min_delay" yaml:"min_delay" json:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay" yaml:"max_delay" json:"max_delay"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	UserAgents     []string      `mapstructure:"user_agents" yaml:"user_agents" json:"user_agents"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" json:"cache_ttl"`
}

// MetadataConfig contains Google Books settings.
type MetadataConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// StorageConfig locates the scan history database.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}
