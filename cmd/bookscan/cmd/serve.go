package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/bookscan/internal/server"
	"github.com/MeKo-Tech/bookscan/internal/version"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server for the book scanner frontend.

The server provides the following endpoints:
  GET    /health                   - Health check
  GET    /api/info                 - API description
  GET    /api/amazon-price/{isbn}  - Used price for one ISBN
  POST   /api/amazon-prices        - Used prices for a JSON array of ISBNs
  GET    /api/books/{isbn}         - Book metadata
  POST   /api/scan/image           - Read the ISBN from an uploaded image or PDF
  GET    /ws/scan                  - Live scanning over a websocket frame feed
  GET    /api/history              - Scan history (also /api/history.csv)
  DELETE /api/history/{isbn}       - Forget one book
  GET    /metrics                  - Prometheus metrics

Examples:
  bookscan serve
  bookscan serve --port 8080
  bookscan serve --host 0.0.0.0 --allowed-origins https://scanner.example`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		allowedOrigins := cfg.Server.AllowedOrigins
		if cmd.Flags().Changed("allowed-origins") {
			raw, _ := cmd.Flags().GetString("allowed-origins")
			allowedOrigins = strings.Split(raw, ",")
		}

		maxUploadSize := cfg.Server.MaxUploadMB
		if cmd.Flags().Changed("max-upload-size") {
			maxUploadSize, _ = cmd.Flags().GetInt("max-upload-size")
		}

		timeout := cfg.Server.TimeoutSec
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetInt("timeout")
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		maxBatch := cfg.Server.MaxBatch
		if cmd.Flags().Changed("max-batch") {
			maxBatch, _ = cmd.Flags().GetInt("max-batch")
		}

		rateLimitEnabled := cfg.Server.RateLimitEnabled
		if cmd.Flags().Changed("rate-limit-enabled") {
			rateLimitEnabled, _ = cmd.Flags().GetBool("rate-limit-enabled")
		}

		requestsPerMinute := cfg.Server.RequestsPerMinute
		if cmd.Flags().Changed("requests-per-minute") {
			requestsPerMinute, _ = cmd.Flags().GetInt("requests-per-minute")
		}

		requestsPerHour := cfg.Server.RequestsPerHour
		if cmd.Flags().Changed("requests-per-hour") {
			requestsPerHour, _ = cmd.Flags().GetInt("requests-per-hour")
		}

		maxRequestsPerDay := cfg.Server.MaxRequestsPerDay
		if cmd.Flags().Changed("max-requests-per-day") {
			maxRequestsPerDay, _ = cmd.Flags().GetInt("max-requests-per-day")
		}

		maxDataPerDay := cfg.Server.MaxDataPerDay
		if cmd.Flags().Changed("max-data-per-day") {
			maxDataPerDay, _ = cmd.Flags().GetInt64("max-data-per-day")
		}

		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		scanOpts, err := cfg.ToScannerOptions(cfg.ToRegistry())
		if err != nil {
			return fmt.Errorf("invalid scanner configuration: %w", err)
		}
		history, err := openStore(cfg)
		if err != nil {
			return err
		}
		prices, err := priceFetcher(cfg, history)
		if err != nil {
			_ = history.Close()
			return err
		}

		serverConfig := server.Config{
			AllowedOrigins: allowedOrigins,
			MaxUploadMB:    int64(maxUploadSize),
			TimeoutSec:     timeout,
			MaxBatch:       maxBatch,
			Version:        version.Get().Version,
			RateLimit: server.RateLimitConfig{
				Enabled:           rateLimitEnabled,
				RequestsPerMinute: requestsPerMinute,
				RequestsPerHour:   requestsPerHour,
				MaxRequestsPerDay: maxRequestsPerDay,
				MaxDataPerDay:     maxDataPerDay,
			},
			Prices:  prices,
			Books:   cfg.ToMetadataClient(),
			History: history,
			Scanner: scanOpts,
		}

		apiServer, err := server.NewServer(serverConfig)
		if err != nil {
			_ = history.Close()
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		// Batch items each get the request timeout and wait the storefront
		// delay between them.
		writeTimeout := time.Duration(max(maxBatch, 1)) * (time.Duration(timeout)*time.Second + cfg.Price.MaxDelay)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(timeout) * time.Second,
			WriteTimeout:      writeTimeout,
		}

		go func() {
			slog.Info("Starting bookscan server", "host", host, "port", port, "history", cfg.Storage.Path)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		slog.Info("Shutting down HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}

		slog.Info("Closing scan history")
		if err := apiServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		} else {
			slog.Info("Server cleanup completed")
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 3001, "server port")
	serveCmd.Flags().String("allowed-origins", "http://localhost:3000", "comma-separated CORS origins, * for any")
	serveCmd.Flags().Int("max-upload-size", 20, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Int("max-batch", server.DefaultMaxBatch, "maximum ISBNs per batch price request")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting of the price endpoints")
	serveCmd.Flags().Int("requests-per-minute", 30, "maximum price requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 300, "maximum price requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 1000, "maximum price requests per day per client")
	serveCmd.Flags().Int64("max-data-per-day", 200*1024*1024, "maximum request data per day per client (bytes)")
}
