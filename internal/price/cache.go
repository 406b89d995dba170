package price

import (
	"context"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
)

// Cache stores quotes between lookups.
type Cache interface {
	// CachedPrice returns the stored quote for isbn when it is younger than
	// maxAge. ok is false on a miss.
	CachedPrice(isbn string, maxAge time.Duration) (q *Quote, ok bool, err error)
	CachePrice(q *Quote) error
}

// CachedFetcher serves quotes from Cache and falls back to Next.
type CachedFetcher struct {
	Next  Fetcher
	Cache Cache
	TTL   time.Duration
}

var _ Fetcher = (*CachedFetcher)(nil)

// Fetch returns a cached quote or fetches and stores a fresh one. Cache
// failures are logged and never fail the lookup.
func (f *CachedFetcher) Fetch(ctx context.Context, code string) (*Quote, error) {
	code = isbn.Normalize(code)
	if f.Cache != nil && f.TTL > 0 {
		q, ok, err := f.Cache.CachedPrice(code, f.TTL)
		switch {
		case err != nil:
			slog.Warn("Price cache read failed", "isbn", code, "error", err)
		case ok:
			cacheTotal.WithLabelValues("hit").Inc()
			return q, nil
		default:
			cacheTotal.WithLabelValues("miss").Inc()
		}
	}

	q, err := f.Next.Fetch(ctx, code)
	if err != nil {
		return nil, err
	}
	if f.Cache != nil && f.TTL > 0 {
		if err := f.Cache.CachePrice(q); err != nil {
			slog.Warn("Price cache write failed", "isbn", code, "error", err)
		}
	}
	return q, nil
}
