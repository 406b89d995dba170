package server

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/bookscan/internal/barcode"
	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
	"github.com/MeKo-Tech/bookscan/internal/scanner"
	"github.com/MeKo-Tech/bookscan/internal/store"
	"github.com/MeKo-Tech/bookscan/internal/testutil"
)

// fakePrices answers from a fixed table; unknown ISBNs are not found.
type fakePrices struct {
	mu     sync.Mutex
	quotes map[string]*price.Quote
	err    error
	calls  []string
}

func (f *fakePrices) Fetch(_ context.Context, code string) (*price.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, code)
	if f.err != nil {
		return nil, f.err
	}
	if q, ok := f.quotes[code]; ok {
		return q, nil
	}
	return nil, price.ErrNotFound
}

func (f *fakePrices) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// slowPrices answers every ISBN after delay unless ctx expires first.
type slowPrices struct {
	delay time.Duration
}

func (f slowPrices) Fetch(ctx context.Context, code string) (*price.Quote, error) {
	select {
	case <-time.After(f.delay):
		q := bookQuote()
		q.ISBN = code
		return q, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeBooks struct {
	books map[string]*metadata.Book
	err   error
}

func (f *fakeBooks) Lookup(_ context.Context, code string) (*metadata.Book, error) {
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.books[code]; ok {
		return b, nil
	}
	return nil, metadata.ErrNotFound
}

func bookQuote() *price.Quote {
	return &price.Quote{
		ISBN:         testutil.BookISBN13,
		Price:        1280,
		Currency:     price.BaseCurrency,
		Availability: "In Stock",
		Type:         price.OfferUsed,
		URL:          "https://www.amazon.co.jp/dp/" + testutil.BookISBN10,
	}
}

func bookMetadata() *metadata.Book {
	return &metadata.Book{
		ISBN:      testutil.BookISBN13,
		ISBN10:    testutil.BookISBN10,
		Title:     "Test Book",
		Authors:   []string{"Test Author"},
		Publisher: "Kodansha",
	}
}

func openTestStore(t *testing.T) *store.BoltStore {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	return st
}

func testScannerOptions() scanner.Options {
	opts := scanner.DefaultOptions()
	opts.NewEngine = scanner.DefaultEngineFactory(barcode.WithInterval(10 * time.Millisecond))
	opts.AcquireTimeout = 5 * time.Second
	return opts
}

// newTestServer builds a server with fake collaborators and a real history
// store. Fields set in cfg win over the defaults.
func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()

	if cfg.Prices == nil {
		cfg.Prices = &fakePrices{quotes: map[string]*price.Quote{testutil.BookISBN13: bookQuote()}}
	}
	if cfg.Books == nil {
		cfg.Books = &fakeBooks{books: map[string]*metadata.Book{testutil.BookISBN13: bookMetadata()}}
	}
	if cfg.History == nil {
		cfg.History = openTestStore(t)
	}
	if cfg.Scanner.NewEngine == nil {
		cfg.Scanner = testScannerOptions()
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// uploadRequest builds a multipart POST with data under the "image" field.
func uploadRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}
