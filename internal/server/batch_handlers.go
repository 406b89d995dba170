package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
	"github.com/MeKo-Tech/bookscan/internal/price"
)

// batchPriceHandler prices a JSON array of ISBNs. Per-item failures are
// reported inline; only a malformed or oversized request fails as a whole.
// Items are fetched one after another so the storefront delay applies
// between them; each fetch gets its own timeout.
func (s *Server) batchPriceHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var codes []string
	if err := json.NewDecoder(r.Body).Decode(&codes); err != nil {
		s.writeErrorResponse(w, "Request body must be a JSON array of ISBN strings", http.StatusBadRequest)
		return
	}
	if len(codes) > s.maxBatch {
		s.writeErrorResponse(w, fmt.Sprintf("Maximum %d ISBNs per request", s.maxBatch), http.StatusBadRequest)
		return
	}
	if s.prices == nil && len(codes) > 0 {
		s.writeErrorResponse(w, "Price lookup not configured", http.StatusServiceUnavailable)
		return
	}

	results := make([]PriceResponse, 0, len(codes))
	for _, raw := range codes {
		cleaned := isbn.Normalize(raw)
		if !isbn.IsShape(cleaned) {
			results = append(results, PriceResponse{ISBN: cleaned, Currency: price.BaseCurrency, Error: "Invalid ISBN format"})
			continue
		}

		if err := r.Context().Err(); err != nil {
			slog.Warn("Batch price lookup abandoned", "done", len(results), "count", len(codes), "error", err)
			return
		}

		ctx, cancel := s.requestContext(r)
		q, err := s.prices.Fetch(ctx, cleaned)
		cancel()
		switch {
		case errors.Is(err, price.ErrNotFound):
			results = append(results, PriceResponse{ISBN: cleaned, Currency: price.BaseCurrency, Error: "Price information not found"})
		case err != nil:
			slog.Error("Batch price lookup failed", "isbn", cleaned, "error", err)
			results = append(results, PriceResponse{ISBN: cleaned, Currency: price.BaseCurrency, Error: err.Error()})
		default:
			results = append(results, quoteResponse(cleaned, q))
		}
	}

	slog.Info("Batch price lookup finished", "count", len(codes))
	s.writeJSON(w, http.StatusOK, results)
}
