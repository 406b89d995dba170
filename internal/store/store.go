// Package store keeps the scan history and the price cache in a bbolt file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
)

const (
	booksBucket  = "books"
	pricesBucket = "prices"
)

var (
	// ErrNotFound is returned when no record exists for an ISBN.
	ErrNotFound = errors.New("store: book not found")

	// ErrInvalidISBN is returned for keys that are not ISBNs.
	ErrInvalidISBN = errors.New("store: invalid ISBN")
)

// Scan sources.
const (
	SourceCamera = "camera"
	SourceImage  = "image"
	SourceManual = "manual"
)

// Scan is one sighting of a book.
type Scan struct {
	ISBN   string
	Source string
	Book   *metadata.Book
	Price  *price.Quote
	At     time.Time
}

// Record is the history entry of one book.
type Record struct {
	ISBN         string         `json:"isbn"`
	Book         *metadata.Book `json:"book,omitempty"`
	Price        *price.Quote   `json:"price,omitempty"`
	Source       string         `json:"source,omitempty"`
	FirstScanned time.Time      `json:"first_scanned"`
	LastScanned  time.Time      `json:"last_scanned"`
	Count        int            `json:"count"`
}

type cachedQuote struct {
	Quote    *price.Quote `json:"quote"`
	CachedAt time.Time    `json:"cached_at"`
}

// Store is the history surface used by the server and the CLI.
type Store interface {
	Record(scan Scan) (*Record, error)
	Get(isbn string) (*Record, error)
	List() ([]*Record, error)
	Delete(isbn string) error
	ExportCSV(w io.Writer) error
	ExportJSON(w io.Writer) error
	price.Cache
	Close() error
}

// BoltStore implements Store on bbolt.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ Store = (*BoltStore)(nil)

// Open opens or creates the database at path.
func Open(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{booksBucket, pricesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Record adds a sighting. A known book has its count bumped and its
// metadata and price replaced when the scan carries new ones.
func (s *BoltStore) Record(scan Scan) (*Record, error) {
	key, ok := isbn.Extract(scan.ISBN)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidISBN, scan.ISBN)
	}
	at := scan.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	var rec Record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(booksBucket))
		if data := bucket.Get([]byte(key)); data != nil {
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
		} else {
			rec = Record{ISBN: key, FirstScanned: at}
		}

		rec.Count++
		if at.After(rec.LastScanned) {
			rec.LastScanned = at
		}
		if at.Before(rec.FirstScanned) {
			rec.FirstScanned = at
		}
		if scan.Source != "" {
			rec.Source = scan.Source
		}
		if scan.Book != nil {
			rec.Book = scan.Book
		}
		if scan.Price != nil {
			rec.Price = scan.Price
		}

		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return bucket.Put([]byte(key), data)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns the record of code, in either ISBN form.
func (s *BoltStore) Get(code string) (*Record, error) {
	key, ok := isbn.Extract(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidISBN, code)
	}

	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(booksBucket)).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every record, most recently scanned first.
func (s *BoltStore) List() ([]*Record, error) {
	records := make([]*Record, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(booksBucket)).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].LastScanned.Equal(records[j].LastScanned) {
			return records[i].LastScanned.After(records[j].LastScanned)
		}
		return records[i].ISBN < records[j].ISBN
	})
	return records, nil
}

// Delete removes the record of code and its cached price.
func (s *BoltStore) Delete(code string) error {
	key, ok := isbn.Extract(code)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidISBN, code)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(booksBucket))
		if bucket.Get([]byte(key)) == nil {
			return ErrNotFound
		}
		if err := bucket.Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket([]byte(pricesBucket)).Delete([]byte(key))
	})
}

// CachePrice stores q under its canonical ISBN.
func (s *BoltStore) CachePrice(q *price.Quote) error {
	if q == nil {
		return errors.New("store: nil quote")
	}
	key, ok := isbn.Extract(q.ISBN)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidISBN, q.ISBN)
	}
	data, err := json.Marshal(cachedQuote{Quote: q, CachedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshaling quote: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(pricesBucket)).Put([]byte(key), data)
	})
}

// CachedPrice returns the cached quote of code when it is younger than maxAge.
func (s *BoltStore) CachedPrice(code string, maxAge time.Duration) (*price.Quote, bool, error) {
	key, ok := isbn.Extract(code)
	if !ok {
		return nil, false, nil
	}

	var entry *cachedQuote
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(pricesBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, false, fmt.Errorf("unmarshaling quote: %w", err)
	}
	if entry == nil || entry.Quote == nil || s.now().Sub(entry.CachedAt) > maxAge {
		return nil, false, nil
	}
	return entry.Quote, true, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
