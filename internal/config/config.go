package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/bookscan/internal/barcode"
	"github.com/MeKo-Tech/bookscan/internal/camera"
	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
	"github.com/MeKo-Tech/bookscan/internal/scanner"
	"github.com/MeKo-Tech/bookscan/internal/utils"
)

// Camera API selections for scanner.camera_api.
const (
	CameraAPIAuto   = "auto"
	CameraAPIModern = "modern"
	CameraAPILegacy = "legacy"
	CameraAPIEngine = "engine"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Scanner: ScannerConfig{
			AcquireTimeout:    scanner.DefaultAcquireTimeout,
			DecodeInterval:    barcode.DefaultInterval,
			FacingMode:        string(camera.FacingEnvironment),
			Width:             1280,
			Height:            720,
			CameraAPI:         CameraAPIAuto,
			Formats:           []string{"ean13", "ean8", "upca", "upce"},
			TryHarder:         false,
			MaxImageDimension: utils.DefaultImageConstraints().MaxDimension,
		},
		Camera: CameraConfig{},
		Server: ServerConfig{
			Host:              "localhost",
			Port:              3001,
			AllowedOrigins:    []string{"http://localhost:3000"},
			MaxUploadMB:       20,
			TimeoutSec:        30,
			ShutdownTimeout:   10,
			MaxBatch:          10,
			RateLimitEnabled:  false,
			RequestsPerMinute: 30,
			RequestsPerHour:   300,
			MaxRequestsPerDay: 1000,
			MaxDataPerDay:     200 * 1024 * 1024,
		},
		Price: PriceConfig{
			BaseURL:        price.DefaultBaseURL,
			Currency:       price.BaseCurrency,
			ConversionRate: 1,
			MinDelay:       time.Second,
			MaxDelay:       2 * time.Second,
			Timeout:        30 * time.Second,
			CacheTTL:       6 * time.Hour,
		},
		Metadata: MetadataConfig{
			BaseURL: metadata.DefaultBaseURL,
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path: DefaultStoragePath(),
		},
	}
}

// DefaultStoragePath places the history database under the XDG data home.
func DefaultStoragePath() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "bookscan", "history.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "bookscan", "history.db")
	}
	return "bookscan.db"
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if err := c.Scanner.validate(); err != nil {
		return err
	}
	if err := c.Camera.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Price.validate(); err != nil {
		return err
	}
	if c.Metadata.BaseURL != "" {
		if err := validateURL(c.Metadata.BaseURL, "metadata.base_url"); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path must not be empty")
	}
	return nil
}

func (s *ScannerConfig) validate() error {
	if s.AcquireTimeout < 0 {
		return fmt.Errorf("invalid scanner.acquire_timeout: %s (must not be negative)", s.AcquireTimeout)
	}
	if s.DecodeInterval < 0 {
		return fmt.Errorf("invalid scanner.decode_interval: %s (must not be negative)", s.DecodeInterval)
	}
	if _, err := camera.ParseFacingMode(s.FacingMode); err != nil {
		return fmt.Errorf("invalid scanner.facing_mode: %w", err)
	}
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("invalid scanner resolution: %dx%d", s.Width, s.Height)
	}
	validAPIs := []string{CameraAPIAuto, CameraAPIModern, CameraAPILegacy, CameraAPIEngine}
	if !slices.Contains(validAPIs, s.CameraAPI) {
		return fmt.Errorf("invalid scanner.camera_api: %s (must be one of: %s)", s.CameraAPI, strings.Join(validAPIs, ", "))
	}
	if _, err := barcode.ParseFormats(s.Formats); err != nil {
		return fmt.Errorf("invalid scanner.formats: %w", err)
	}
	if s.MaxImageDimension <= 0 {
		return fmt.Errorf("invalid scanner.max_image_dimension: %d (must be positive)", s.MaxImageDimension)
	}
	return nil
}

func (cc *CameraConfig) validate() error {
	seen := make(map[string]bool, len(cc.Sources))
	for i, sc := range cc.Sources {
		if sc.Name == "" {
			return fmt.Errorf("camera.sources[%d]: name is required", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("camera.sources[%d]: duplicate name %q", i, sc.Name)
		}
		seen[sc.Name] = true

		if (sc.URL == "") == (sc.Dir == "") {
			return fmt.Errorf("camera source %q: exactly one of url and dir must be set", sc.Name)
		}
		if sc.URL != "" {
			if err := validateURL(sc.URL, "camera source "+sc.Name); err != nil {
				return err
			}
		}
		if _, err := camera.ParseFacingMode(string(sc.Facing)); err != nil {
			return fmt.Errorf("camera source %q: %w", sc.Name, err)
		}
	}
	if cc.DefaultSource != "" && !seen[cc.DefaultSource] {
		return fmt.Errorf("camera.default_source %q is not a configured source", cc.DefaultSource)
	}
	return nil
}

func (s *ServerConfig) validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", s.Port)
	}
	if s.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", s.MaxUploadMB)
	}
	if s.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", s.TimeoutSec)
	}
	if s.MaxBatch <= 0 {
		return fmt.Errorf("invalid server.max_batch: %d (must be positive)", s.MaxBatch)
	}
	if s.RateLimitEnabled && (s.RequestsPerMinute <= 0 || s.RequestsPerHour <= 0) {
		return errors.New("rate limiting requires positive requests_per_minute and requests_per_hour")
	}
	return nil
}

func (p *PriceConfig) validate() error {
	if p.BaseURL != "" {
		if err := validateURL(p.BaseURL, "price.base_url"); err != nil {
			return err
		}
	}
	if p.MinDelay < 0 || p.MaxDelay < p.MinDelay {
		return fmt.Errorf("invalid price delay range: %s..%s", p.MinDelay, p.MaxDelay)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("invalid price.timeout: %s (must be positive)", p.Timeout)
	}
	if p.CacheTTL < 0 {
		return fmt.Errorf("invalid price.cache_ttl: %s (must not be negative)", p.CacheTTL)
	}
	// Currency and rate are checked by price.New, which knows the ISO table.
	if !strings.EqualFold(p.Currency, price.BaseCurrency) && p.ConversionRate <= 0 {
		return fmt.Errorf("price.conversion_rate must be positive for currency %s", p.Currency)
	}
	return nil
}

func validateURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q is not an absolute URL", name, raw)
	}
	return nil
}

// ToRegistry builds the camera registry from the configured sources.
func (c *Config) ToRegistry() *camera.Registry {
	return camera.NewRegistry(c.Camera.Sources, camera.WithPreferred(c.Camera.DefaultSource))
}

// ToScannerOptions converts the scanner section into session options backed
// by reg.
func (c *Config) ToScannerOptions(reg *camera.Registry) (scanner.Options, error) {
	formats, err := barcode.ParseFormats(c.Scanner.Formats)
	if err != nil {
		return scanner.Options{}, err
	}
	if len(formats) == 0 {
		formats = barcode.BookFormats()
	}
	facing, err := camera.ParseFacingMode(c.Scanner.FacingMode)
	if err != nil {
		return scanner.Options{}, err
	}

	opts := scanner.DefaultOptions()
	opts.Constraints = camera.Constraints{FacingMode: facing, Width: c.Scanner.Width, Height: c.Scanner.Height}
	opts.AcquireTimeout = c.Scanner.AcquireTimeout
	opts.DeviceID = c.Camera.DefaultSource
	opts.Image.MaxDimension = c.Scanner.MaxImageDimension
	opts.PDFPages = c.Scanner.PDFPages
	opts.PDFPassword = c.Scanner.PDFPassword
	opts.NewEngine = scanner.DefaultEngineFactory(
		barcode.WithInterval(c.Scanner.DecodeInterval),
		barcode.WithOptions(barcode.Options{Formats: formats, TryHarder: c.Scanner.TryHarder}),
		barcode.WithDeviceOpener(deviceOpener(reg)),
	)

	switch c.Scanner.CameraAPI {
	case CameraAPIModern:
		opts.Chain = camera.Chain{camera.ModernStrategy{Devices: reg}}
	case CameraAPILegacy:
		opts.Chain = camera.Chain{camera.LegacyStrategy{Legacy: reg.Legacy()}}
	case CameraAPIEngine:
		opts.Chain = camera.Chain{}
	default:
		if len(reg.Sources()) > 0 {
			opts.Host = camera.Host{Devices: reg, Legacy: reg.Legacy()}
		}
	}
	return opts, nil
}

// deviceOpener lets the decode engine open a registry source on its own.
func deviceOpener(reg *camera.Registry) barcode.DeviceOpener {
	return func(ctx context.Context, deviceID string) (barcode.FrameSource, func(), error) {
		v, release, err := reg.OpenVideo(ctx, deviceID)
		if err != nil {
			return nil, nil, err
		}
		return v, release, nil
	}
}

// ToPriceClient builds the storefront client.
func (c *Config) ToPriceClient() (*price.Client, error) {
	opts := []price.Option{
		price.WithTimeout(c.Price.Timeout),
		price.WithDelay(c.Price.MinDelay, c.Price.MaxDelay),
		price.WithConversion(c.Price.Currency, c.Price.ConversionRate),
	}
	if len(c.Price.UserAgents) > 0 {
		opts = append(opts, price.WithUserAgents(c.Price.UserAgents))
	}
	return price.New(c.Price.BaseURL, opts...)
}

// ToMetadataClient builds the Google Books client.
func (c *Config) ToMetadataClient() *metadata.Client {
	return metadata.New(c.Metadata.BaseURL, c.Metadata.APIKey, metadata.WithTimeout(c.Metadata.Timeout))
}
