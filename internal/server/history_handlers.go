package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MeKo-Tech/bookscan/internal/store"
)

// historyHandler lists recorded books, most recently scanned first.
func (s *Server) historyHandler(w http.ResponseWriter, _ *http.Request) {
	if s.history == nil {
		s.writeErrorResponse(w, "History not configured", http.StatusServiceUnavailable)
		return
	}
	records, err := s.history.List()
	if err != nil {
		slog.Error("Failed to list history", "error", err)
		s.writeErrorResponse(w, "Failed to read history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*store.Record{}
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Records: records, Count: len(records)})
}

// historyCSVHandler downloads the history as CSV.
func (s *Server) historyCSVHandler(w http.ResponseWriter, _ *http.Request) {
	if s.history == nil {
		s.writeErrorResponse(w, "History not configured", http.StatusServiceUnavailable)
		return
	}
	// Buffer so a failed export can still become a JSON error.
	var buf bytes.Buffer
	if err := s.history.ExportCSV(&buf); err != nil {
		slog.Error("Failed to export history", "error", err)
		s.writeErrorResponse(w, "Failed to export history", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="bookscan-history.csv"`)
	_, _ = w.Write(buf.Bytes())
}

// deleteHistoryHandler forgets one book.
func (s *Server) deleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeErrorResponse(w, "History not configured", http.StatusServiceUnavailable)
		return
	}
	err := s.history.Delete(mux.Vars(r)["isbn"])
	switch {
	case errors.Is(err, store.ErrInvalidISBN):
		s.writeErrorResponse(w, "Invalid ISBN format", http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		s.writeErrorResponse(w, "ISBN not in history", http.StatusNotFound)
	case err != nil:
		slog.Error("Failed to delete history entry", "error", err)
		s.writeErrorResponse(w, "Failed to delete history entry", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
