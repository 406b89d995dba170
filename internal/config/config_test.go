package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/bookscan/internal/camera"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, CameraAPIAuto, cfg.Scanner.CameraAPI)
	assert.Equal(t, "environment", cfg.Scanner.FacingMode)
	assert.Equal(t, 1280, cfg.Scanner.Width)
	assert.Equal(t, 720, cfg.Scanner.Height)
}

func TestDefaultStoragePath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, "/data/bookscan/history.db", DefaultStoragePath())

	home := t.TempDir()
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", home)
	assert.Equal(t, home+"/.local/share/bookscan/history.db", DefaultStoragePath())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"negative acquire timeout", func(c *Config) { c.Scanner.AcquireTimeout = -time.Second }, "acquire_timeout"},
		{"zero acquire timeout disables the bound", func(c *Config) { c.Scanner.AcquireTimeout = 0 }, ""},
		{"facing mode", func(c *Config) { c.Scanner.FacingMode = "sideways" }, "facing_mode"},
		{"facing alias", func(c *Config) { c.Scanner.FacingMode = "rear" }, ""},
		{"camera api", func(c *Config) { c.Scanner.CameraAPI = "v4l" }, "camera_api"},
		{"format", func(c *Config) { c.Scanner.Formats = []string{"ean13", "pdf417"} }, "scanner.formats"},
		{"image dimension", func(c *Config) { c.Scanner.MaxImageDimension = 0 }, "max_image_dimension"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"upload size", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max upload size"},
		{"batch", func(c *Config) { c.Server.MaxBatch = 0 }, "max_batch"},
		{"rate limit", func(c *Config) {
			c.Server.RateLimitEnabled = true
			c.Server.RequestsPerMinute = 0
		}, "rate limiting"},
		{"price url", func(c *Config) { c.Price.BaseURL = "amazon.co.jp" }, "price.base_url"},
		{"delay range", func(c *Config) { c.Price.MaxDelay = c.Price.MinDelay / 2 }, "delay range"},
		{"price timeout", func(c *Config) { c.Price.Timeout = 0 }, "price.timeout"},
		{"conversion rate", func(c *Config) {
			c.Price.Currency = "USD"
			c.Price.ConversionRate = 0
		}, "conversion_rate"},
		{"metadata url", func(c *Config) { c.Metadata.BaseURL = "/books" }, "metadata.base_url"},
		{"storage", func(c *Config) { c.Storage.Path = " " }, "storage.path"},
		{"source without name", func(c *Config) {
			c.Camera.Sources = []camera.SourceConfig{{Dir: "/frames"}}
		}, "name is required"},
		{"duplicate source", func(c *Config) {
			c.Camera.Sources = []camera.SourceConfig{{Name: "a", Dir: "/x"}, {Name: "a", Dir: "/y"}}
		}, "duplicate name"},
		{"source with url and dir", func(c *Config) {
			c.Camera.Sources = []camera.SourceConfig{{Name: "a", Dir: "/x", URL: "http://cam/video"}}
		}, "exactly one of url and dir"},
		{"source with neither", func(c *Config) {
			c.Camera.Sources = []camera.SourceConfig{{Name: "a"}}
		}, "exactly one of url and dir"},
		{"source url", func(c *Config) {
			c.Camera.Sources = []camera.SourceConfig{{Name: "a", URL: "cam:8080"}}
		}, "not an absolute URL"},
		{"source facing", func(c *Config) {
			c.Camera.Sources = []camera.SourceConfig{{Name: "a", Dir: "/x", Facing: "up"}}
		}, "camera source \"a\""},
		{"unknown default source", func(c *Config) {
			c.Camera.Sources = []camera.SourceConfig{{Name: "a", Dir: "/x"}}
			c.Camera.DefaultSource = "b"
		}, "default_source"},
		{"valid sources", func(c *Config) {
			c.Camera.Sources = []camera.SourceConfig{
				{Name: "phone", URL: "http://10.0.0.5:8080/video", Facing: camera.FacingEnvironment},
				{Name: "replay", Dir: "/frames"},
			}
			c.Camera.DefaultSource = "replay"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ToScannerOptions(t *testing.T) {
	sources := []camera.SourceConfig{{Name: "replay", Dir: t.TempDir()}}

	t.Run("auto with sources uses both device apis", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Camera.Sources = sources
		cfg.Camera.DefaultSource = "replay"
		cfg.Scanner.AcquireTimeout = 2 * time.Second
		cfg.Scanner.MaxImageDimension = 1024

		opts, err := cfg.ToScannerOptions(cfg.ToRegistry())
		require.NoError(t, err)

		assert.NotNil(t, opts.Host.Devices)
		assert.NotNil(t, opts.Host.Legacy)
		assert.Nil(t, opts.Chain)
		assert.Equal(t, camera.Constraints{FacingMode: camera.FacingEnvironment, Width: 1280, Height: 720}, opts.Constraints)
		assert.Equal(t, 2*time.Second, opts.AcquireTimeout)
		assert.Equal(t, "replay", opts.DeviceID)
		assert.Equal(t, 1024, opts.Image.MaxDimension)
		require.NotNil(t, opts.NewEngine)
		assert.NotNil(t, opts.NewEngine())
	})

	t.Run("auto without sources leaves device selection to the engine", func(t *testing.T) {
		cfg := DefaultConfig()
		opts, err := cfg.ToScannerOptions(cfg.ToRegistry())
		require.NoError(t, err)
		assert.Nil(t, opts.Host.Devices)
		assert.Nil(t, opts.Host.Legacy)
	})

	chains := map[string][]string{
		CameraAPIModern: {"modern"},
		CameraAPILegacy: {"legacy"},
		CameraAPIEngine: {},
	}
	for api, want := range chains {
		t.Run(api, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Camera.Sources = sources
			cfg.Scanner.CameraAPI = api

			opts, err := cfg.ToScannerOptions(cfg.ToRegistry())
			require.NoError(t, err)
			require.NotNil(t, opts.Chain)
			names := []string{}
			for _, s := range opts.Chain {
				names = append(names, s.Name())
			}
			assert.Equal(t, want, names)
		})
	}

	t.Run("bad format", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Scanner.Formats = []string{"aztec"}
		_, err := cfg.ToScannerOptions(cfg.ToRegistry())
		assert.Error(t, err)
	})
}

func TestDeviceOpener(t *testing.T) {
	reg := camera.NewRegistry(nil)
	src, release, err := deviceOpener(reg)(context.Background(), "")
	require.ErrorIs(t, err, camera.ErrNoSource)
	assert.Nil(t, src)
	assert.Nil(t, release)
}

func TestConfig_ToPriceClient(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.ToPriceClient()
	require.NoError(t, err)

	cfg.Price.Currency = "usd"
	cfg.Price.ConversionRate = 0.0067
	cfg.Price.UserAgents = []string{"test-agent"}
	_, err = cfg.ToPriceClient()
	require.NoError(t, err)

	cfg.Price.Currency = "DOLLARS"
	_, err = cfg.ToPriceClient()
	assert.Error(t, err)
}

func TestConfig_ToMetadataClient(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotNil(t, cfg.ToMetadataClient())
}
