// Package metadata looks up bibliographic data for an ISBN through the
// Google Books volumes API.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
)

// DefaultBaseURL is the public Google Books endpoint.
const DefaultBaseURL = "https://www.googleapis.com/books/v1"

// ErrNotFound is returned when no volume matches the ISBN.
var ErrNotFound = errors.New("metadata: no volume found")

// Money is a list price.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Book is the metadata kept for a scanned ISBN.
type Book struct {
	ISBN          string   `json:"isbn"`
	ISBN10        string   `json:"isbn10,omitempty"`
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	Language      string   `json:"language,omitempty"`
	Description   string   `json:"description,omitempty"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	ListPrice     *Money   `json:"list_price,omitempty"`
}

// Lookuper returns metadata for an ISBN.
type Lookuper interface {
	Lookup(ctx context.Context, isbn string) (*Book, error)
}

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	VolumeInfo struct {
		Title               string   `json:"title"`
		Subtitle            string   `json:"subtitle"`
		Authors             []string `json:"authors"`
		Publisher           string   `json:"publisher"`
		PublishedDate       string   `json:"publishedDate"`
		PageCount           int      `json:"pageCount"`
		Language            string   `json:"language"`
		Description         string   `json:"description"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks struct {
			SmallThumbnail string `json:"smallThumbnail"`
			Thumbnail      string `json:"thumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
	SaleInfo struct {
		ListPrice *struct {
			Amount       float64 `json:"amount"`
			CurrencyCode string  `json:"currencyCode"`
		} `json:"listPrice"`
	} `json:"saleInfo"`
}

// Client queries the volumes API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ Lookuper = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a client. apiKey may be empty; Google Books serves
// unauthenticated requests at a lower quota.
func New(baseURL, apiKey string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the first volume matching code. Both ISBN forms are accepted;
// the result is keyed by the canonical ISBN-13.
func (c *Client) Lookup(ctx context.Context, code string) (*Book, error) {
	key, ok := isbn.Extract(code)
	if !ok {
		return nil, fmt.Errorf("metadata: %q is not an ISBN", code)
	}

	endpoint, err := url.Parse(c.baseURL + "/volumes")
	if err != nil {
		return nil, fmt.Errorf("parse books url: %w", err)
	}
	params := url.Values{}
	params.Set("q", "isbn:"+key)
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("books api returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var payload volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode books response: %w", err)
	}
	if len(payload.Items) == 0 {
		slog.Debug("No volume for ISBN", "isbn", key)
		return nil, ErrNotFound
	}
	return bookFrom(key, payload.Items[0]), nil
}

func bookFrom(key string, v volume) *Book {
	info := v.VolumeInfo
	b := &Book{
		ISBN:          key,
		Title:         info.Title,
		Subtitle:      info.Subtitle,
		Authors:       info.Authors,
		Publisher:     info.Publisher,
		PublishedDate: info.PublishedDate,
		PageCount:     info.PageCount,
		Language:      info.Language,
		Description:   info.Description,
		Thumbnail:     info.ImageLinks.Thumbnail,
	}
	if b.Thumbnail == "" {
		b.Thumbnail = info.ImageLinks.SmallThumbnail
	}
	for _, id := range info.IndustryIdentifiers {
		if id.Type == "ISBN_10" {
			b.ISBN10 = id.Identifier
		}
	}
	if b.ISBN10 == "" {
		b.ISBN10, _ = isbn.Convert13To10(key)
	}
	if lp := v.SaleInfo.ListPrice; lp != nil {
		b.ListPrice = &Money{Amount: lp.Amount, Currency: lp.CurrencyCode}
	}
	return b
}
