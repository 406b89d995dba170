package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/currency"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
)

// Fetcher returns the current price for an ISBN.
type Fetcher interface {
	Fetch(ctx context.Context, isbn string) (*Quote, error)
}

// DefaultBaseURL is the storefront searched by default.
const DefaultBaseURL = "https://www.amazon.co.jp"

// DefaultUserAgents are rotated across requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// productLinkLimit bounds how many search results are inspected.
const productLinkLimit = 3

type selector struct {
	css       string
	offerType string
}

var priceSelectors = []selector{
	{"#usedAccordionRow .a-price .a-offscreen", OfferUsed},
	{`[data-feature-name="usedAccordion"] .a-price .a-offscreen`, OfferUsed},
	{"#mbc .a-price .a-offscreen", OfferMarketplace},
	{`[data-feature-name="moreBuyingChoices"] .a-price .a-offscreen`, OfferMarketplace},
	{".a-price.a-text-price.a-size-medium .a-offscreen", OfferGeneral},
	{".a-price .a-offscreen", OfferGeneral},
}

// Client scrapes prices from the storefront.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgents []string
	minDelay   time.Duration
	maxDelay   time.Duration
	convertTo  string
	rate       float64
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ Fetcher = (*Client)(nil)

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

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUserAgents replaces the rotated user agents.
func WithUserAgents(agents []string) Option {
	return func(c *Client) {
		if len(agents) > 0 {
			c.userAgents = append([]string(nil), agents...)
		}
	}
}

// WithDelay sets the random pause taken before the product page is fetched.
func WithDelay(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if maxDelay < minDelay {
			maxDelay = minDelay
		}
		c.minDelay, c.maxDelay = minDelay, maxDelay
	}
}

// WithConversion reports every price also in code, using rate units of code
// per yen.
func WithConversion(code string, rate float64) Option {
	return func(c *Client) {
		c.convertTo = strings.ToUpper(strings.TrimSpace(code))
		c.rate = rate
	}
}

// New creates a Client for baseURL. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse price base url: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgents: DefaultUserAgents,
		minDelay:   time.Second,
		maxDelay:   2 * time.Second,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.convertTo == BaseCurrency {
		c.convertTo = ""
	}
	if c.convertTo != "" {
		if _, err := currency.ParseISO(c.convertTo); err != nil {
			return nil, fmt.Errorf("unknown currency %q: %w", c.convertTo, err)
		}
		if c.rate <= 0 {
			return nil, fmt.Errorf("conversion rate for %s must be positive", c.convertTo)
		}
	}
	return c, nil
}

// Fetch searches for code and returns the first price on its product page.
func (c *Client) Fetch(ctx context.Context, code string) (*Quote, error) {
	code = isbn.Normalize(code)
	if !isbn.IsShape(code) {
		lookupsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidISBN
	}

	q, err := c.fetch(ctx, code)
	switch {
	case err == nil:
		lookupsTotal.WithLabelValues("found").Inc()
	case errors.Is(err, ErrNotFound):
		lookupsTotal.WithLabelValues("not_found").Inc()
	default:
		lookupsTotal.WithLabelValues("error").Inc()
	}
	return q, err
}

func (c *Client) fetch(ctx context.Context, code string) (*Quote, error) {
	slog.Info("Searching storefront", "isbn", code)

	params := url.Values{}
	params.Set("k", code)
	params.Set("i", "stripbooks")
	params.Set("ref", "sr_nr_n_1")
	search, err := c.get(ctx, c.baseURL+"/s?"+params.Encode())
	if err != nil {
		return nil, err
	}

	productURL, ok := c.productURL(search)
	if !ok {
		slog.Warn("Product not found", "isbn", code)
		return nil, ErrNotFound
	}

	if err := c.sleep(ctx, c.delay()); err != nil {
		return nil, err
	}

	page, err := c.get(ctx, productURL)
	if err != nil {
		return nil, err
	}
	amount, offerType, ok := extractPrice(page)
	if !ok {
		slog.Warn("No used price found", "isbn", code, "url", productURL)
		return nil, ErrNotFound
	}
	slog.Info("Found price", "isbn", code, "price", amount, "type", offerType)

	q := &Quote{
		ISBN:         code,
		Price:        amount,
		Currency:     BaseCurrency,
		Availability: "available",
		Type:         offerType,
		URL:          productURL,
		FetchedAt:    time.Now().UTC(),
	}
	if c.convertTo != "" {
		q.Converted = float64(amount) * c.rate
		q.ConvertedCurrency = c.convertTo
	}
	return q, nil
}

// productURL returns the first product page link among the top results.
func (c *Client) productURL(doc *goquery.Document) (string, bool) {
	links := doc.Find(`a[class*="s-link"]`)
	if links.Length() == 0 {
		links = doc.Find("h2.s-size-mini a").First()
	}

	var found string
	links.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= productLinkLimit {
			return false
		}
		href, ok := s.Attr("href")
		if !ok || !strings.Contains(href, "/dp/") {
			return true
		}
		if strings.HasPrefix(href, "/") {
			href = c.baseURL + href
		}
		found = href
		return false
	})
	return found, found != ""
}

// extractPrice walks the selectors in priority order and returns the first
// positive price.
func extractPrice(doc *goquery.Document) (int, string, bool) {
	for _, sel := range priceSelectors {
		var amount int
		doc.Find(sel.css).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := ParsePrice(s.Text()); ok {
				amount = v
				return false
			}
			return true
		})
		if amount > 0 {
			return amount, sel.offerType, true
		}
	}
	return 0, "", false
}

func (c *Client) get(ctx context.Context, target string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgents[rand.IntN(len(c.userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func (c *Client) delay() time.Duration {
	if c.maxDelay <= c.minDelay {
		return c.minDelay
	}
	return c.minDelay + rand.N(c.maxDelay-c.minDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
