package middleware

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (s *memoryStore) Get(_ context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[key], nil
}

func (s *memoryStore) Set(_ context.Context, entry *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.Key]; !ok {
		s.entries[entry.Key] = entry
	}
	return nil
}

func countingHandler(status int, body string) (http.Handler, *int) {
	calls := 0
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
		w.Write([]byte(body))
	}), &calls
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	next, calls := countingHandler(http.StatusOK, `{"completed":true}`)
	h := Idempotency(store, 0, zerolog.New(io.Discard))(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/cart_01/submit", nil)
		req.Header.Set(IdempotencyHeader, "key-1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `{"completed":true}`, w.Body.String())
		if i == 1 {
			assert.Equal(t, "true", w.Header().Get(ReplayedHeader))
		}
	}
	assert.Equal(t, 1, *calls)
}

func TestIdempotency_KeyScopedToPath(t *testing.T) {
	store := newMemoryStore()
	next, calls := countingHandler(http.StatusOK, `{}`)
	h := Idempotency(store, 0, zerolog.New(io.Discard))(next)

	for _, path := range []string{"/api/v1/checkout/cart_01/submit", "/api/v1/checkout/cart_02/submit"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(IdempotencyHeader, "same-key")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, *calls)
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	store := newMemoryStore()
	next, calls := countingHandler(http.StatusServiceUnavailable, `{"code":"provider_unavailable"}`)
	h := Idempotency(store, 0, zerolog.New(io.Discard))(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.Header.Set(IdempotencyHeader, "key-1")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, *calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_DifferentBodyConflicts(t *testing.T) {
	store := newMemoryStore()
	var seen []string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, string(body))
		w.WriteHeader(http.StatusOK)
	})
	h := Idempotency(store, 0, zerolog.New(io.Discard))(next)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
		req.Header.Set(IdempotencyHeader, "key-1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, send(`{"payment_method":"pm_card_visa"}`).Code)
	assert.Equal(t, http.StatusOK, send(`{"payment_method":"pm_card_visa"}`).Code)

	w := send(`{"payment_method":"pm_card_mastercard"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate_request")

	assert.Equal(t, []string{`{"payment_method":"pm_card_visa"}`}, seen)
}

func TestIdempotency_OversizedBodyRejected(t *testing.T) {
	store := newMemoryStore()
	next, calls := countingHandler(http.StatusOK, `{}`)
	h := Idempotency(store, 0, zerolog.New(io.Discard))(next)

	body := `{"payment_method":"` + strings.Repeat("x", maxIdempotencyBodySize) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
	req.Header.Set(IdempotencyHeader, "key-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "request_too_large")
	assert.Equal(t, 0, *calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_NoHeaderPassesThrough(t *testing.T) {
	store := newMemoryStore()
	next, calls := countingHandler(http.StatusOK, `{}`)
	h := Idempotency(store, 0, zerolog.New(io.Discard))(next)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/submit", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/submit", nil))
	assert.Equal(t, 2, *calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_LookupFailureServesRequest(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("connection refused")
	next, calls := countingHandler(http.StatusOK, `{}`)
	h := Idempotency(store, 0, zerolog.New(io.Discard))(next)

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set(IdempotencyHeader, "key-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, *calls)
}

func TestCartRateLimit_PerCart(t *testing.T) {
	r := chi.NewRouter()
	r.With(CartRateLimit(1)).Post("/checkout/{cartID}/submit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	send := func(cartID string) int {
		req := httptest.NewRequest(http.MethodPost, "/checkout/"+cartID+"/submit", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, send("cart_01"))
	assert.Equal(t, http.StatusTooManyRequests, send("cart_01"))
	assert.Equal(t, http.StatusOK, send("cart_02"))
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "same-origin-allow-popups", w.Header().Get("Cross-Origin-Opener-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "https://checkout.example/", nil)
	req.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}
