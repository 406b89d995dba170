package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{
	"isbn", "isbn10", "title", "authors", "publisher", "published_date",
	"price", "currency", "price_type", "source", "count", "first_scanned", "last_scanned",
}

// ExportCSV writes the history as CSV, newest first.
func (s *BoltStore) ExportCSV(w io.Writer) error {
	records, err := s.List()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(csvRow(r)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(r *Record) []string {
	row := make([]string, len(csvHeader))
	row[0] = r.ISBN
	if b := r.Book; b != nil {
		row[1] = b.ISBN10
		row[2] = b.Title
		row[3] = strings.Join(b.Authors, "; ")
		row[4] = b.Publisher
		row[5] = b.PublishedDate
	}
	if q := r.Price; q != nil {
		row[6] = strconv.Itoa(q.Price)
		row[7] = q.Currency
		row[8] = q.Type
	}
	row[9] = r.Source
	row[10] = strconv.Itoa(r.Count)
	row[11] = r.FirstScanned.Format(time.RFC3339)
	row[12] = r.LastScanned.Format(time.RFC3339)
	return row
}

// ExportJSON writes the history as an indented JSON array, newest first.
func (s *BoltStore) ExportJSON(w io.Writer) error {
	records, err := s.List()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
