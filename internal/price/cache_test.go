package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	quotes  map[string]*Quote
	readErr error
	writes  int
}

func (m *memCache) CachedPrice(isbn string, maxAge time.Duration) (*Quote, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	q, ok := m.quotes[isbn]
	if !ok || time.Since(q.FetchedAt) > maxAge {
		return nil, false, nil
	}
	return q, true, nil
}

func (m *memCache) CachePrice(q *Quote) error {
	m.writes++
	m.quotes[q.ISBN] = q
	return nil
}

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, isbn string) (*Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Quote{ISBN: isbn, Price: 500, Currency: BaseCurrency, FetchedAt: time.Now()}, nil
}

func TestCachedFetcher(t *testing.T) {
	cache := &memCache{quotes: map[string]*Quote{}}
	next := &countingFetcher{}
	f := &CachedFetcher{Next: next, Cache: cache, TTL: time.Hour}

	q, err := f.Fetch(context.Background(), "978-4-06-131336-1")
	require.NoError(t, err)
	assert.Equal(t, "9784061313361", q.ISBN)

	_, err = f.Fetch(context.Background(), "9784061313361")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1, cache.writes)
}

func TestCachedFetcher_Expired(t *testing.T) {
	cache := &memCache{quotes: map[string]*Quote{
		"9784061313361": {ISBN: "9784061313361", FetchedAt: time.Now().Add(-2 * time.Hour)},
	}}
	next := &countingFetcher{}
	f := &CachedFetcher{Next: next, Cache: cache, TTL: time.Hour}

	q, err := f.Fetch(context.Background(), "9784061313361")
	require.NoError(t, err)
	assert.Equal(t, 500, q.Price)
	assert.Equal(t, 1, next.calls)
}

func TestCachedFetcher_CacheErrorsIgnored(t *testing.T) {
	cache := &memCache{quotes: map[string]*Quote{}, readErr: errors.New("disk gone")}
	next := &countingFetcher{}
	f := &CachedFetcher{Next: next, Cache: cache, TTL: time.Hour}

	_, err := f.Fetch(context.Background(), "9784061313361")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestCachedFetcher_NotFoundNotCached(t *testing.T) {
	cache := &memCache{quotes: map[string]*Quote{}}
	f := &CachedFetcher{Next: &countingFetcher{err: ErrNotFound}, Cache: cache, TTL: time.Hour}

	_, err := f.Fetch(context.Background(), "9784061313361")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, cache.writes)
}

func TestCachedFetcher_Disabled(t *testing.T) {
	next := &countingFetcher{}
	f := &CachedFetcher{Next: next}

	for range 2 {
		_, err := f.Fetch(context.Background(), "9784061313361")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, next.calls)
}
