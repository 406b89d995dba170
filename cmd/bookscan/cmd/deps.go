package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/bookscan/internal/config"
	"github.com/MeKo-Tech/bookscan/internal/price"
	"github.com/MeKo-Tech/bookscan/internal/store"
)

// openStore opens the history database named by cfg.
func openStore(cfg *config.Config) (*store.BoltStore, error) {
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", cfg.Storage.Path, err)
	}
	return st, nil
}

// priceFetcher returns the storefront client, cached in cache when one is
// given.
func priceFetcher(cfg *config.Config, cache price.Cache) (price.Fetcher, error) {
	client, err := cfg.ToPriceClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create price client: %w", err)
	}
	if cache == nil {
		return client, nil
	}
	return &price.CachedFetcher{Next: client, Cache: cache, TTL: cfg.Price.CacheTTL}, nil
}
