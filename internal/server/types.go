package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
	"github.com/MeKo-Tech/bookscan/internal/scanner"
	"github.com/MeKo-Tech/bookscan/internal/store"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	prices   price.Fetcher
	books    metadata.Lookuper
	history  store.Store
	scanOpts scanner.Options
	images   *scanner.Session

	allowedOrigins []string
	maxUploadMB    int64
	timeoutSec     int
	maxBatch       int
	version        string

	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
	now         func() time.Time
}

// Config holds server configuration. Prices, Books and History are optional;
// endpoints that need a missing dependency answer 503.
type Config struct {
	AllowedOrigins []string
	MaxUploadMB    int64
	TimeoutSec     int
	MaxBatch       int
	Version        string
	RateLimit      RateLimitConfig

	Prices  price.Fetcher
	Books   metadata.Lookuper
	History store.Store
	Scanner scanner.Options
}

// RateLimitConfig configures the limiter in front of the price endpoints.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// DefaultMaxBatch caps POST /api/amazon-prices.
const DefaultMaxBatch = 10

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type InfoResponse struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Description          string            `json:"description"`
	Endpoints            map[string]string `json:"endpoints"`
	SupportedISBNFormats []string          `json:"supported_isbn_formats"`
	MaxBatchSize         int               `json:"max_batch_size"`
}

// PriceResponse mirrors a price.Quote; on batch failures only ISBN and Error
// are set.
type PriceResponse struct {
	ISBN              string   `json:"isbn"`
	Price             *int     `json:"price"`
	Currency          string   `json:"currency"`
	Availability      string   `json:"availability,omitempty"`
	Type              string   `json:"type,omitempty"`
	URL               string   `json:"url,omitempty"`
	Converted         *float64 `json:"converted,omitempty"`
	ConvertedCurrency string   `json:"converted_currency,omitempty"`
	Error             string   `json:"error,omitempty"`
}

type ScanResponse struct {
	Success bool           `json:"success"`
	ISBN    string         `json:"isbn"`
	ISBN10  string         `json:"isbn10,omitempty"`
	Book    *metadata.Book `json:"book,omitempty"`
	Price   *price.Quote   `json:"price,omitempty"`
	Saved   bool           `json:"saved"`
}

type HistoryResponse struct {
	Records []*store.Record `json:"records"`
	Count   int             `json:"count"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer creates a new bookscan API server.
func NewServer(config Config) (*Server, error) {
	if config.MaxBatch <= 0 {
		config.MaxBatch = DefaultMaxBatch
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 20
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 30
	}

	s := &Server{
		prices:         config.Prices,
		books:          config.Books,
		history:        config.History,
		scanOpts:       config.Scanner,
		images:         scanner.New(config.Scanner),
		allowedOrigins: config.AllowedOrigins,
		maxUploadMB:    config.MaxUploadMB,
		timeoutSec:     config.TimeoutSec,
		maxBatch:       config.MaxBatch,
		version:        config.Version,
		now:            time.Now,
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	return s, nil
}

// Close releases the history store.
func (s *Server) Close() error {
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}

// Handler returns the routed API wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/", s.rootHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/info", s.infoHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/amazon-price/{isbn}", s.rateLimitMiddleware(s.priceHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/amazon-prices", s.rateLimitMiddleware(s.batchPriceHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/books/{isbn}", s.bookHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/scan/image", s.scanImageHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/history", s.historyHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/history.csv", s.historyCSVHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/history/{isbn}", s.deleteHistoryHandler).Methods(http.MethodDelete)
	r.HandleFunc("/ws/scan", s.scanWebSocketHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeErrorResponse(w, "The requested resource was not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	return s.corsMiddleware(r)
}

func newRequestID() string { return uuid.NewString() }
