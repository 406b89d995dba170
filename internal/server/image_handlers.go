package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
	"github.com/MeKo-Tech/bookscan/internal/scanner"
	"github.com/MeKo-Tech/bookscan/internal/store"
)

// scanImageHandler resolves the ISBN in an uploaded photo or PDF.
// Query or form flags: lookup=true adds metadata and price, save=true records
// the scan in the history.
func (s *Server) scanImageHandler(w http.ResponseWriter, r *http.Request) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	ctx, cancel := s.requestContext(r)
	defer cancel()

	key, err := s.images.ScanImage(ctx, header.Filename, data)
	if err != nil {
		scanRequestsTotal.WithLabelValues("image", "error").Inc()
		s.writeScanError(w, err)
		return
	}
	scanRequestsTotal.WithLabelValues("image", "success").Inc()

	resp := ScanResponse{Success: true, ISBN: key}
	resp.ISBN10, _ = isbn.Convert13To10(key)

	if formBool(r, "lookup") {
		resp.Book, resp.Price = s.enrich(r, key)
	}
	if formBool(r, "save") {
		if s.history == nil {
			s.writeErrorResponse(w, "History not configured", http.StatusServiceUnavailable)
			return
		}
		_, err := s.history.Record(store.Scan{
			ISBN: key, Source: store.SourceImage, Book: resp.Book, Price: resp.Price, At: s.now(),
		})
		if err != nil {
			slog.Error("Failed to record scan", "isbn", key, "error", err)
			s.writeErrorResponse(w, "Failed to record scan", http.StatusInternalServerError)
			return
		}
		resp.Saved = true
	}

	slog.Info("Image scan resolved", "file", header.Filename, "isbn", key)
	s.writeJSON(w, http.StatusOK, resp)
}

// writeScanError maps still-image scan failures to status codes.
func (s *Server) writeScanError(w http.ResponseWriter, err error) {
	var decodeErr *scanner.ImageDecodeError
	var invalid *scanner.InvalidIdentifierError
	switch {
	case errors.As(err, &decodeErr):
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
	case errors.Is(err, scanner.ErrNoSymbolFound):
		s.writeErrorResponse(w, "No barcode found in image", http.StatusUnprocessableEntity)
	case errors.As(err, &invalid):
		s.writeErrorResponse(w, "Barcode is not an ISBN: "+invalid.Text, http.StatusUnprocessableEntity)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, "Scan timed out", http.StatusGatewayTimeout)
	default:
		slog.Error("Image scan failed", "error", err)
		s.writeErrorResponse(w, "Internal server error: "+err.Error(), http.StatusInternalServerError)
	}
}

// enrich looks up metadata and price for key. Failures are logged and leave
// the field empty; a scan never fails because a collaborator did.
func (s *Server) enrich(r *http.Request, key string) (*metadata.Book, *price.Quote) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	var book *metadata.Book
	if s.books != nil {
		b, err := s.books.Lookup(ctx, key)
		if err != nil && !errors.Is(err, metadata.ErrNotFound) {
			slog.Warn("Metadata lookup failed", "isbn", key, "error", err)
		}
		book = b
	}

	var quote *price.Quote
	if s.prices != nil {
		q, err := s.prices.Fetch(ctx, key)
		if err != nil && !errors.Is(err, price.ErrNotFound) {
			slog.Warn("Price lookup failed", "isbn", key, "error", err)
		}
		quote = q
	}
	return book, quote
}

func formBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.FormValue(name))
	return err == nil && v
}
