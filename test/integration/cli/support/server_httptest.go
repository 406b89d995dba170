package support

import (
	"context"
	"fmt"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
	"github.com/MeKo-Tech/bookscan/internal/scanner"
	"github.com/MeKo-Tech/bookscan/internal/server"
	"github.com/MeKo-Tech/bookscan/internal/store"
	"github.com/MeKo-Tech/bookscan/internal/testutil"
)

// HTTPTestServerWrapper wraps httptest.Server for integration tests.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
	Catalog    *MockCatalog
}

// MockCatalog answers price and metadata lookups for the test book only.
type MockCatalog struct {
	Title string
	Price int
}

// Fetch returns a used-price quote for the test book.
func (m *MockCatalog) Fetch(_ context.Context, code string) (*price.Quote, error) {
	key, ok := isbn.Extract(code)
	if !ok {
		return nil, price.ErrInvalidISBN
	}
	if key != testutil.BookISBN13 {
		return nil, price.ErrNotFound
	}
	return &price.Quote{
		ISBN:         testutil.BookISBN10,
		Price:        m.Price,
		Currency:     price.BaseCurrency,
		Availability: "available",
		Type:         price.OfferUsed,
	}, nil
}

// Lookup returns metadata for the test book.
func (m *MockCatalog) Lookup(_ context.Context, code string) (*metadata.Book, error) {
	key, ok := isbn.Extract(code)
	if !ok || key != testutil.BookISBN13 {
		return nil, metadata.ErrNotFound
	}
	return &metadata.Book{ISBN: key, ISBN10: testutil.BookISBN10, Title: m.Title}, nil
}

// createTestHTTPServer serves the real API with a mock catalog and a history
// in the scenario's temp directory.
func (testCtx *TestContext) createTestHTTPServer() error {
	history, err := store.Open(filepath.Join(testCtx.TempDir, "server-history.db"))
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	catalog := &MockCatalog{Title: "Norwegian Wood", Price: 1280}
	opts := scanner.DefaultOptions()
	opts.AcquireTimeout = 5 * time.Second

	apiServer, err := server.NewServer(server.Config{
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxUploadMB:    1,
		TimeoutSec:     10,
		MaxBatch:       3,
		Version:        "test",
		Prices:         catalog,
		Books:          catalog,
		History:        history,
		Scanner:        opts,
	})
	if err != nil {
		_ = history.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv := httptest.NewServer(apiServer.Handler())

	u, err := url.Parse(srv.URL)
	if err != nil {
		srv.Close()
		_ = apiServer.Close()
		return fmt.Errorf("failed to parse server URL: %w", err)
	}
	testCtx.ServerHost = u.Hostname()
	if portStr := u.Port(); portStr != "" {
		testCtx.ServerPort, _ = strconv.Atoi(portStr)
	}

	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     srv,
		TestServer: apiServer,
		Catalog:    catalog,
	}
	return nil
}

// stopTestHTTPServer stops the httptest server and closes its history.
func (testCtx *TestContext) stopTestHTTPServer() error {
	wrapper := testCtx.HTTPTestServer
	testCtx.HTTPTestServer = nil
	if wrapper == nil {
		return nil
	}
	if wrapper.Server != nil {
		wrapper.Server.Close()
	}
	if wrapper.TestServer != nil {
		return wrapper.TestServer.Close()
	}
	return nil
}
