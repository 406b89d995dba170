package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "bookscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "BOOKSCAN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	// Use the global viper instance to ensure flag bindings work
	return &Loader{v: viper.GetViper()}
}

// Load reads the first bookscan.* file found on the search paths, applies
// environment overrides and defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load without the final Validate call. The config
// commands use it so a broken file can still be inspected.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No file on the search paths: defaults and environment only.
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
// BOOKSCAN_PRICE_BASE_URL overrides price.base_url.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
// Durations are stored as strings so that written files stay readable.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	// Scanner defaults
	l.v.SetDefault("scanner.acquire_timeout", defaults.Scanner.AcquireTimeout.String())
	l.v.SetDefault("scanner.decode_interval", defaults.Scanner.DecodeInterval.String())
	l.v.SetDefault("scanner.facing_mode", defaults.Scanner.FacingMode)
	l.v.SetDefault("scanner.width", defaults.Scanner.Width)
	l.v.SetDefault("scanner.height", defaults.Scanner.Height)
	l.v.SetDefault("scanner.camera_api", defaults.Scanner.CameraAPI)
	l.v.SetDefault("scanner.formats", defaults.Scanner.Formats)
	l.v.SetDefault("scanner.try_harder", defaults.Scanner.TryHarder)
	l.v.SetDefault("scanner.max_image_dimension", defaults.Scanner.MaxImageDimension)
	l.v.SetDefault("scanner.pdf_pages", defaults.Scanner.PDFPages)
	l.v.SetDefault("scanner.pdf_password", defaults.Scanner.PDFPassword)

	// Camera defaults; sources only come from files
	l.v.SetDefault("camera.default_source", defaults.Camera.DefaultSource)

	// Server defaults
	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	l.v.SetDefault("server.max_batch", defaults.Server.MaxBatch)
	l.v.SetDefault("server.rate_limit_enabled", defaults.Server.RateLimitEnabled)
	l.v.SetDefault("server.requests_per_minute", defaults.Server.RequestsPerMinute)
	l.v.SetDefault("server.requests_per_hour", defaults.Server.RequestsPerHour)
	l.v.SetDefault("server.max_requests_per_day", defaults.Server.MaxRequestsPerDay)
	l.v.SetDefault("server.max_data_per_day", defaults.Server.MaxDataPerDay)

	// Price defaults
	l.v.SetDefault("price.base_url", defaults.Price.BaseURL)
	l.v.SetDefault("price.currency", defaults.Price.Currency)
	l.v.SetDefault("price.conversion_rate", defaults.Price.ConversionRate)
	l.v.SetDefault("price.min_delay", defaults.Price.MinDelay.String())
	l.v.SetDefault("price.max_delay", defaults.Price.MaxDelay.String())
	l.v.SetDefault("price.timeout", defaults.Price.Timeout.String())
	l.v.SetDefault("price.user_agents", defaults.Price.UserAgents)
	l.v.SetDefault("price.cache_ttl", defaults.Price.CacheTTL.String())

	// Metadata defaults
	l.v.SetDefault("metadata.base_url", defaults.Metadata.BaseURL)
	l.v.SetDefault("metadata.api_key", defaults.Metadata.APIKey)
	l.v.SetDefault("metadata.timeout", defaults.Metadata.Timeout.String())

	// Storage defaults
	l.v.SetDefault("storage.path", defaults.Storage.Path)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes the defaults to filename, bookscan.yaml
// when empty.
func GenerateDefaultConfigFile(filename string) error {
	loader := &Loader{v: viper.New()}
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists && configDir != "" {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/bookscan")
}
