package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter throttles clients of the price endpoints, which scrape a
// third-party storefront. Clients are keyed by address. A zero limit
// disables that check.
type RateLimiter struct {
	mu      sync.Mutex
	limits  RateLimitConfig
	clients map[string]*clientUsage
	now     func() time.Time
}

// window counts requests in a fixed span that opens with the first request
// after the previous span closed.
type window struct {
	span  time.Duration
	start time.Time
	count int
}

func (w *window) roll(now time.Time) {
	if w.start.IsZero() || now.Sub(w.start) >= w.span {
		w.start = now
		w.count = 0
	}
}

func (w *window) retryAfter(now time.Time) time.Duration {
	return w.span - now.Sub(w.start)
}

type clientUsage struct {
	minute window
	hour   window

	day      time.Time
	requests int
	bytes    int64
}

// Usage is a snapshot of one client's daily consumption.
type Usage struct {
	RequestsToday int
	DataToday     int64
}

// NewRateLimiter creates a limiter enforcing limits. Enabled is ignored.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		clients: make(map[string]*clientUsage),
		now:     time.Now,
	}
}

// CheckRateLimit admits a request of dataSize bytes from client, or returns
// a *RateLimitError or *QuotaExceededError. Rejected requests are not
// counted.
func (rl *RateLimiter) CheckRateLimit(client string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.clients[client]
	if !ok {
		u = &clientUsage{minute: window{span: time.Minute}, hour: window{span: time.Hour}}
		rl.clients[client] = u
	}

	u.minute.roll(now)
	u.hour.roll(now)
	if midnight := startOfDay(now); !u.day.Equal(midnight) {
		u.day = midnight
		u.requests = 0
		u.bytes = 0
	}

	if err := rl.checkWindow("minute", rl.limits.RequestsPerMinute, &u.minute, now); err != nil {
		return err
	}
	if err := rl.checkWindow("hour", rl.limits.RequestsPerHour, &u.hour, now); err != nil {
		return err
	}

	resets := u.day.AddDate(0, 0, 1)
	if limit := rl.limits.MaxRequestsPerDay; limit > 0 && u.requests >= limit {
		return &QuotaExceededError{Type: "requests", Limit: int64(limit), Used: int64(u.requests), Resets: resets}
	}
	if limit := rl.limits.MaxDataPerDay; limit > 0 && u.bytes+dataSize > limit {
		return &QuotaExceededError{Type: "data", Limit: limit, Used: u.bytes, Resets: resets}
	}

	u.minute.count++
	u.hour.count++
	u.requests++
	u.bytes += dataSize
	return nil
}

func (rl *RateLimiter) checkWindow(name string, limit int, w *window, now time.Time) error {
	if limit > 0 && w.count >= limit {
		return &RateLimitError{Type: name, Limit: limit, RetryAfter: w.retryAfter(now)}
	}
	return nil
}

// GetUsage reports what client has consumed today.
func (rl *RateLimiter) GetUsage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok || !u.day.Equal(startOfDay(rl.now())) {
		return Usage{}
	}
	return Usage{RequestsToday: u.requests, DataToday: u.bytes}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RateLimitError is returned when a per-minute or per-hour window is full.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError is returned when a daily quota is used up.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
