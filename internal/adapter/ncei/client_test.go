package ncei_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/asos-pipeline/internal/adapter/ncei"
	"github.com/couchcryptid/asos-pipeline/internal/domain"
	"github.com/couchcryptid/asos-pipeline/internal/observability"
)

var testUnit = domain.RetrievalUnit{StationID: "KNYC", Year: 2024, Month: time.March}

const extractBody = "64010KNYC 94728NYC CITY CENTRAL PARK   NY2024030100000305   [data]\n"

// newTestClient wires a client at the given base URL with backoffs short
// enough for the retry paths to run in real time.
func newTestClient(t *testing.T, baseURL string) *ncei.Client {
	t.Helper()
	cache, err := ncei.NewCache(t.TempDir())
	require.NoError(t, err)

	return ncei.NewClient(ncei.Options{
		BaseURL:     baseURL,
		Timeout:     time.Second,
		MaxAttempts: 4,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}, cache,
		clockwork.NewRealClock(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(),
	)
}

func TestURL_ArchiveLayout(t *testing.T) {
	client := newTestClient(t, "https://example.test/access")
	got := client.URL(testUnit)
	assert.Equal(t, "https://example.test/access/2024/64010KNYC202403.dat", got)
}

func TestFetch_Success(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/2024/64010KNYC202403.dat", r.URL.Path)
		io.WriteString(w, extractBody) //nolint:errcheck
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	extract, err := client.Fetch(context.Background(), testUnit)
	require.NoError(t, err)

	assert.Equal(t, testUnit, extract.Unit)
	assert.Equal(t, []byte(extractBody), extract.Body)
	assert.False(t, extract.FromCache)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_SecondCallServedFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, extractBody) //nolint:errcheck
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Fetch(context.Background(), testUnit)
	require.NoError(t, err)

	extract, err := client.Fetch(context.Background(), testUnit)
	require.NoError(t, err)
	assert.True(t, extract.FromCache)
	assert.Equal(t, []byte(extractBody), extract.Body)
	assert.Equal(t, int32(1), hits.Load(), "cached unit must not touch the network")
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, extractBody) //nolint:errcheck
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	extract, err := client.Fetch(context.Background(), testUnit)
	require.NoError(t, err)
	assert.Equal(t, []byte(extractBody), extract.Body)
	assert.Equal(t, int32(4), hits.Load())
}

func TestFetch_NotFoundIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Fetch(context.Background(), testUnit)

	var rerr *ncei.RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, rerr.Permanent)
	assert.Equal(t, 1, rerr.Attempts)
	assert.Equal(t, int32(1), hits.Load(), "permanent failures must not retry")
}

func TestFetch_ExhaustsAttemptBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Fetch(context.Background(), testUnit)

	var rerr *ncei.RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.False(t, rerr.Permanent)
	assert.Equal(t, 4, rerr.Attempts)
	assert.Equal(t, int32(4), hits.Load())
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, srv.URL)
	_, err := client.Fetch(ctx, testUnit)

	var rerr *ncei.RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.False(t, rerr.Permanent)
}

func TestCache_LoadAbsent(t *testing.T) {
	cache, err := ncei.NewCache(t.TempDir())
	require.NoError(t, err)

	_, ok, err := cache.Load(testUnit)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_StoreLoadRoundTrip(t *testing.T) {
	cache, err := ncei.NewCache(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cache.Store(testUnit, []byte(extractBody)))
	body, ok, err := cache.Load(testUnit)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(extractBody), body)
}

func TestCache_EmptyExtractTreatedAsAbsent(t *testing.T) {
	cache, err := ncei.NewCache(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cache.Store(testUnit, nil))
	_, ok, err := cache.Load(testUnit)
	require.NoError(t, err)
	assert.False(t, ok, "empty cached extract must not satisfy the skip")
}

func TestRetrievalError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ncei.RetrievalError{Unit: testUnit, Attempts: 2, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "KNYC 2024-03")
	assert.Contains(t, err.Error(), "transient")
}
