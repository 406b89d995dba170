package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
)

const apiName = "Book Barcode Scanner API"

// rootHandler is the banner at /.
func (s *Server) rootHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": apiName,
		"info":    "/api/info",
		"health":  "/health",
	})
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Message: apiName + " is running",
		Version: s.version,
		Time:    s.now().UTC().Format(time.RFC3339),
	})
}

// infoHandler describes the API.
func (s *Server) infoHandler(w http.ResponseWriter, _ *http.Request) {
	version := s.version
	if version == "" {
		version = "dev"
	}
	s.writeJSON(w, http.StatusOK, InfoResponse{
		Name:        apiName,
		Version:     version,
		Description: "Backend for the book barcode scanner",
		Endpoints: map[string]string{
			"health":              "/health",
			"amazon_price":        "/api/amazon-price/{isbn}",
			"amazon_prices_batch": "/api/amazon-prices",
			"book":                "/api/books/{isbn}",
			"scan_image":          "/api/scan/image",
			"scan_live":           "/ws/scan",
			"history":             "/api/history",
			"history_csv":         "/api/history.csv",
			"api_info":            "/api/info",
			"metrics":             "/metrics",
		},
		SupportedISBNFormats: []string{"ISBN-10", "ISBN-13"},
		MaxBatchSize:         s.maxBatch,
	})
}

// priceHandler returns the used price for one ISBN.
func (s *Server) priceHandler(w http.ResponseWriter, r *http.Request) {
	cleaned := isbn.Normalize(mux.Vars(r)["isbn"])
	if !isbn.IsShape(cleaned) {
		s.writeErrorResponse(w, "Invalid ISBN format", http.StatusBadRequest)
		return
	}
	if s.prices == nil {
		s.writeErrorResponse(w, "Price lookup not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	slog.Info("Fetching price", "isbn", cleaned)
	q, err := s.prices.Fetch(ctx, cleaned)
	switch {
	case errors.Is(err, price.ErrInvalidISBN):
		s.writeErrorResponse(w, "Invalid ISBN format", http.StatusBadRequest)
	case errors.Is(err, price.ErrNotFound):
		s.writeErrorResponse(w, "Price information not found", http.StatusNotFound)
	case err != nil:
		slog.Error("Price lookup failed", "isbn", cleaned, "error", err)
		s.writeErrorResponse(w, "Internal server error: "+err.Error(), http.StatusInternalServerError)
	default:
		s.writeJSON(w, http.StatusOK, quoteResponse(cleaned, q))
	}
}

// bookHandler returns Google Books metadata for one ISBN.
func (s *Server) bookHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := isbn.Extract(mux.Vars(r)["isbn"])
	if !ok {
		s.writeErrorResponse(w, "Invalid ISBN format", http.StatusBadRequest)
		return
	}
	if s.books == nil {
		s.writeErrorResponse(w, "Metadata lookup not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	book, err := s.books.Lookup(ctx, key)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		s.writeErrorResponse(w, "Book not found", http.StatusNotFound)
	case err != nil:
		slog.Error("Metadata lookup failed", "isbn", key, "error", err)
		s.writeErrorResponse(w, "Internal server error: "+err.Error(), http.StatusInternalServerError)
	default:
		s.writeJSON(w, http.StatusOK, book)
	}
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
}

func quoteResponse(requested string, q *price.Quote) PriceResponse {
	resp := PriceResponse{
		ISBN:         requested,
		Price:        &q.Price,
		Currency:     q.Currency,
		Availability: q.Availability,
		Type:         q.Type,
		URL:          q.URL,
	}
	if resp.Currency == "" {
		resp.Currency = price.BaseCurrency
	}
	if q.ConvertedCurrency != "" {
		converted := q.Converted
		resp.Converted = &converted
		resp.ConvertedCurrency = q.ConvertedCurrency
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes the JSON error body shared by every endpoint.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
