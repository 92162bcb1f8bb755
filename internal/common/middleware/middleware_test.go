package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal(t *testing.T) {
	var got string
	h := Principal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Principal", "merchant-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "merchant-1", got)
}

func TestRequirePrincipal(t *testing.T) {
	called := false
	h := RequirePrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestCorrelationIDGenerated(t *testing.T) {
	var got string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetCorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get("X-Correlation-ID"))
}

func TestCorrelationIDPropagated(t *testing.T) {
	var got string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "corr-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "corr-42", got)
}

// mapIdempotencyStore is an in-memory IdempotencyStore for tests.
type mapIdempotencyStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapStore() *mapIdempotencyStore {
	return &mapIdempotencyStore{data: make(map[string][]byte)}
}

func (s *mapIdempotencyStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	return b, ok, nil
}

func (s *mapIdempotencyStore) Set(_ context.Context, key string, response []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = response
	return nil
}

func TestIdempotencyReplay(t *testing.T) {
	calls := 0
	h := Idempotency(newMapStore(), time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"payment_id":"pay-1"}}`))
	}))

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/payments/", nil)
		r.Header.Set("Idempotency-Key", "key-1")
		return r
	}

	first := httptest.NewRecorder()
	h.ServeHTTP(first, req())
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get("X-Idempotency-Replayed"))

	second := httptest.NewRecorder()
	h.ServeHTTP(second, req())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	assert.Equal(t, 1, calls)
}

func TestIdempotencyScopedToEndpoint(t *testing.T) {
	h := Idempotency(newMapStore(), time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("/payments/")
	require.Equal(t, http.StatusCreated, first.Code)

	// Same key on a different endpoint must not replay the first response
	other := send("/merchants/register")
	assert.Empty(t, other.Header().Get("X-Idempotency-Replayed"))
	assert.Contains(t, other.Body.String(), "/merchants/register")

	// Same key on the same endpoint replays
	replay := send("/payments/")
	assert.Equal(t, "true", replay.Header().Get("X-Idempotency-Replayed"))
	assert.Contains(t, replay.Body.String(), "/payments/")
}

func TestIdempotencySkipsFailures(t *testing.T) {
	calls := 0
	h := Idempotency(newMapStore(), time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/payments/", nil)
		req.Header.Set("Idempotency-Key", "key-1")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	// Error responses are never cached
	assert.Equal(t, 2, calls)
}

func TestIdempotencyIgnoresReads(t *testing.T) {
	calls := 0
	h := Idempotency(newMapStore(), time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/payments/pay-1", nil)
		req.Header.Set("Idempotency-Key", "key-1")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2, calls)
}
