// Package ncei retrieves raw monthly ASOS extracts from the NOAA NCEI
// archive with bounded retries, jittered backoff, a circuit breaker, and
// an idempotent on-disk cache of raw extracts.
package ncei

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/asos-pipeline/internal/domain"
	"github.com/couchcryptid/asos-pipeline/internal/observability"
)

// DefaultBaseURL is the NCEI ASOS five-minute archive root.
const DefaultBaseURL = "https://www.ncei.noaa.gov/data/automated-surface-observing-system-five-minute/access"

// RetrievalError is a per-unit fetch failure. Permanent failures (missing
// month, malformed request) were not retried; transient ones exhausted the
// attempt budget.
type RetrievalError struct {
	Unit      domain.RetrievalUnit
	Permanent bool
	Attempts  int
	Err       error
}

func (e *RetrievalError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("fetch %s: %s failure after %d attempt(s): %v", e.Unit, kind, e.Attempts, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// statusError classifies an HTTP response failure.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

// transient reports whether the status is worth retrying: 5xx and 429.
func (e *statusError) transient() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration // per network request, not per unit
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Client fetches one retrieval unit per call. Safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	cache       *Cache
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewClient creates an archive client. The cache directory holds gzipped
// raw extracts keyed by unit; a non-empty cached extract short-circuits
// the network entirely.
func NewClient(opts Options, cache *Cache, clock clockwork.Clock,
	logger *slog.Logger, metrics *observability.Metrics) *Client {

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}

	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ncei-archive",
			Timeout: opts.BackoffMax,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 8
			},
		}),
		cache:       cache,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
	}
}

// URL returns the archive URL for a unit: {base}/{year}/64010{STATION}{YYYYMM}.dat.
func (c *Client) URL(unit domain.RetrievalUnit) string {
	return fmt.Sprintf("%s/%d/64010%s%04d%02d.dat",
		c.baseURL, unit.Year, unit.StationID, unit.Year, int(unit.Month))
}

// Fetch returns the raw extract for one unit, from cache when available.
// Transient failures retry with capped exponential backoff plus jitter;
// permanent failures return immediately. The returned error is always a
// *RetrievalError when the unit could not be fetched.
func (c *Client) Fetch(ctx context.Context, unit domain.RetrievalUnit) (domain.RawExtract, error) {
	if body, ok, err := c.cache.Load(unit); err != nil {
		c.logger.Warn("raw cache read failed, refetching", "unit", unit.String(), "error", err)
	} else if ok {
		c.metrics.FetchOutcomes.WithLabelValues("cache_hit").Inc()
		return domain.RawExtract{
			Unit:        unit,
			Body:        body,
			SourceURL:   c.URL(unit),
			RetrievedAt: c.clock.Now().UTC(),
			FromCache:   true,
		}, nil
	}

	url := c.URL(unit)
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := c.clock.Now()
		body, err := c.do(ctx, url)
		c.metrics.FetchDuration.Observe(c.clock.Since(start).Seconds())

		if err == nil {
			if cacheErr := c.cache.Store(unit, body); cacheErr != nil {
				c.logger.Warn("raw cache write failed", "unit", unit.String(), "error", cacheErr)
			}
			c.metrics.FetchOutcomes.WithLabelValues("fetched").Inc()
			return domain.RawExtract{
				Unit:        unit,
				Body:        body,
				SourceURL:   url,
				RetrievedAt: c.clock.Now().UTC(),
			}, nil
		}

		lastErr = err
		if permanent(err) {
			c.metrics.FetchOutcomes.WithLabelValues("failed").Inc()
			return domain.RawExtract{}, &RetrievalError{Unit: unit, Permanent: true, Attempts: attempt, Err: err}
		}
		if ctx.Err() != nil {
			break
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := jitteredBackoff(c.backoffBase, c.backoffMax, attempt)
		c.logger.Warn("transient fetch failure, backing off",
			"unit", unit.String(), "attempt", attempt, "delay", delay, "error", err)
		c.metrics.FetchRetries.Inc()
		if !c.sleep(ctx, delay) {
			break
		}
	}

	c.metrics.FetchOutcomes.WithLabelValues("failed").Inc()
	return domain.RawExtract{}, &RetrievalError{Unit: unit, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("archive request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
			return nil, &statusError{code: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read archive response: %w", err)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// permanent reports whether an error should not be retried: not-found and
// other non-transient HTTP statuses. Network errors, timeouts, 5xx, and an
// open breaker all count as transient.
func permanent(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return !se.transient()
	}
	return false
}

// jitteredBackoff doubles the base per attempt, caps it, then randomizes
// within [d/2, d) so concurrent units do not retry in lockstep.
func jitteredBackoff(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	half := d / 2
	return half + rand.N(half+1)
}

// sleep waits on the injected clock so tests with a fake clock never block
// on real time. Returns false on context cancellation.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
