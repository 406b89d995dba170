// Package price looks up used-book prices on Amazon's Japanese storefront.
//
// Amazon offers no public API for marketplace offers, so Client scrapes the
// search and product pages. Requests are paced with a randomized delay and
// sent with browser-like headers; callers should still cache results.
package price

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no product or no price could be found.
	ErrNotFound = errors.New("price information not found")

	// ErrInvalidISBN is returned for input that is not ISBN shaped.
	ErrInvalidISBN = errors.New("invalid ISBN format")
)

// Offer types, in the order they are looked for on a product page.
const (
	OfferUsed        = "used"
	OfferMarketplace = "marketplace"
	OfferGeneral     = "general"
)

// BaseCurrency is the currency prices are scraped in.
const BaseCurrency = "JPY"

// Quote is a price found for one ISBN.
type Quote struct {
	ISBN         string `json:"isbn"`
	Price        int    `json:"price"`
	Currency     string `json:"currency"`
	Availability string `json:"availability"`
	Type         string `json:"type"`
	URL          string `json:"url,omitempty"`

	// Converted is Price in ConvertedCurrency, set when a conversion rate
	// is configured.
	Converted         float64   `json:"converted,omitempty"`
	ConvertedCurrency string    `json:"converted_currency,omitempty"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// StatusError reports an unexpected HTTP status from the storefront.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("price: %s returned status %d", e.URL, e.Code)
}
